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

// Package idgen generates opaque message ids by hashing the sender id
// and timestamp. Ids must be globally unique in practice; they carry
// no cryptographic meaning. The generator is injected into whatever
// builds messages; the only shared state is a process-wide counter
// that separates ids generated within the same millisecond.
package idgen

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
)

// Generator produces message ids from a sender id and a millisecond
// timestamp.
type Generator struct{}

// NewGenerator returns the default message-id Generator.
func NewGenerator() *Generator { return &Generator{} }

// Generate returns an opaque, globally-unique-in-practice id derived
// from senderID and timestampMs. Collisions are avoided by hashing in
// a monotonic per-process counter alongside the two required inputs,
// so two messages from the same sender in the same millisecond still
// diverge.
func (g *Generator) Generate(senderID int32, timestampMs int64) string {
	return generate(senderID, timestampMs, nextCounter())
}

func generate(senderID int32, timestampMs int64, counter uint32) string {
	buf := make([]byte, 4+8+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(senderID))
	binary.BigEndian.PutUint64(buf[4:12], uint64(timestampMs))
	binary.BigEndian.PutUint32(buf[12:16], counter)

	sum := sha256.Sum256(buf)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
