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

package session

import (
	"sync/atomic"
	"time"
)

// entry is the Store's internal record for one conversation: a single
// AES-256 key and the two sequence positions. The counters are
// atomic.Uint64 so NextSendSeq/ValidateRecvSeq don't need the
// Store-wide lock on the hot path.
type entry struct {
	key       []byte
	createdAt time.Time
	sendSeq   atomic.Uint64 // next value returned is the current count
	recvNext  atomic.Uint64 // lowest incoming sequence still acceptable
	sent      atomic.Uint64
	received  atomic.Uint64
}

// lastRecv is the highest accepted incoming sequence, or 0 when
// nothing has been accepted yet. recvNext is kept as last+1 so the
// strict greater-than replay rule still admits the stream's first
// sequence number, which is 0.
func (e *entry) lastRecv() uint64 {
	next := e.recvNext.Load()
	if next == 0 {
		return 0
	}
	return next - 1
}

// Stats is the read-only snapshot returned by Store.Stats.
type Stats struct {
	CreatedAt time.Time
	SendSeq   uint64
	RecvSeq   uint64
	Sent      uint64
	Received  uint64
}
