// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the relay/client configuration from a YAML file
// with ${VAR}/${VAR:default} environment substitution, falling back to
// compiled-in defaults when no file is found.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fallbackChain is the ordered list of candidate config files tried by
// Load when no explicit path is given: an environment-specific file
// first, then the generic defaults, then nothing (compiled defaults).
func fallbackChain(env string) []string {
	chain := make([]string, 0, 3)
	if env != "" {
		chain = append(chain, fmt.Sprintf("config/%s.yaml", env))
	}
	chain = append(chain, "config/default.yaml", "config.yaml")
	return chain
}

// Load reads configuration from path if non-empty, otherwise walks
// fallbackChain(env) until a readable file is found. env is typically
// SECURECHAT_ENV ("development", "production", ...). A .env file next
// to the working directory is loaded first so its variables are
// visible to ${VAR} substitution.
func Load(path, env string) (*Config, error) {
	loadDotEnv("")

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		return parse(raw)
	}

	for _, candidate := range fallbackChain(env) {
		raw, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: reading %s: %w", candidate, err)
		}
		return parse(raw)
	}

	return Default(), nil
}

func parse(raw []byte) (*Config, error) {
	cfg := Default()
	expanded := expandEnv(raw)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}
	return cfg, nil
}
