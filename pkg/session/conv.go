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

// Package session is the single authority over active session keys
// and their send/receive sequence counters. Every conversation —
// private pair, group, or relay link — owns one symmetric key plus a
// monotonic outbound counter and a replay watermark for inbound
// traffic.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PrivateConversationID returns the canonical conversation id for a
// peer pair, deterministic regardless of argument order:
// "private_"+min(a,b)+"_"+max(a,b).
func PrivateConversationID(a, b int32) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("private_%d_%d", lo, hi)
}

// GroupConversationID returns the canonical conversation id for a group.
func GroupConversationID(groupID int32) string {
	return fmt.Sprintf("group_%d", groupID)
}

// ServerConversationID returns the canonical conversation id for the
// client-relay link: "server_session_"+hash8(server_pub || client_pub).
func ServerConversationID(serverPub, clientPub []byte) string {
	h := sha256.Sum256(append(append([]byte(nil), serverPub...), clientPub...))
	return "server_session_" + hex.EncodeToString(h[:8])
}
