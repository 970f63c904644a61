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

package config

import "time"

// Config is the full set of tunables for a relay or client process.
// Zero-value Config is not usable directly; use Default() or Load()
// to get sane values.
type Config struct {
	Encryption   EncryptionConfig   `yaml:"encryption"`
	KeyExchange  KeyExchangeConfig  `yaml:"key_exchange"`
	Group        GroupConfig        `yaml:"group"`
	Contact      ContactConfig      `yaml:"contact"`
	Cleanup      CleanupConfig      `yaml:"cleanup"`
	Retry        RetryConfig        `yaml:"retry"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Storage      StorageConfig      `yaml:"storage"`
}

// EncryptionConfig toggles the envelope layer.
type EncryptionConfig struct {
	// Enabled gates whether end-to-end ENCRYPTED sealing is applied;
	// false sends those kinds in plaintext framing. SERVER_ENCRYPTED
	// transport wrapping does not read this flag and applies whenever a
	// pairing key exists.
	Enabled bool `yaml:"enabled"`
}

// KeyExchangeConfig governs the private and server key exchange engines.
type KeyExchangeConfig struct {
	TimeoutSeconds   uint32 `yaml:"timeout_seconds"`
	RekeyThreshold   uint64 `yaml:"rekey_threshold"`
	MaxRetryAttempts uint8  `yaml:"max_retry_attempts"`
}

// GroupConfig governs the group key distribution engine.
type GroupConfig struct {
	AckTimeoutSeconds uint32 `yaml:"ack_timeout_seconds"`
}

// ContactConfig governs contact-request lifetime.
type ContactConfig struct {
	RequestTTL time.Duration `yaml:"request_ttl"`
}

// CleanupConfig governs the periodic sweepers shared across
// pending key exchanges, pending acks, and expired contact requests.
type CleanupConfig struct {
	IntervalSeconds uint32 `yaml:"interval_seconds"`
}

// RetryConfig is the generic recoverable-error retry policy
// (timeouts, storage failures, and transient crypto failures retry;
// nothing else does).
type RetryConfig struct {
	MaxAttempts uint8 `yaml:"max_attempts"`
}

// ServerConfig is the relay's listen configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MetricsConfig governs the standalone Prometheus HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// StorageConfig governs the optional persistent session-key store.
type StorageConfig struct {
	// Enabled backs the in-memory session.Store with a pgstore.Store:
	// persisted keys are loaded into it at startup and new keys are
	// saved to the database.
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn"`
	// EncryptionKeyHex is the 32-byte (hex-encoded) AES-256 key used
	// to wrap session keys at rest. Persisted keys are never written
	// unwrapped.
	EncryptionKeyHex string `yaml:"encryption_key_hex"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Encryption: EncryptionConfig{Enabled: true},
		KeyExchange: KeyExchangeConfig{
			TimeoutSeconds:   30,
			RekeyThreshold:   1 << 30,
			MaxRetryAttempts: 3,
		},
		Group: GroupConfig{
			AckTimeoutSeconds: 15,
		},
		Contact: ContactConfig{
			RequestTTL: 7 * 24 * time.Hour,
		},
		Cleanup: CleanupConfig{
			IntervalSeconds: 5,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 1666,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Storage: StorageConfig{
			Enabled: false,
		},
	}
}
