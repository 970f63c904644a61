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

package router

import (
	"sync"
	"time"

	"github.com/sage-x-project/securechat/pkg/wire"
)

// AckCallback completes a pending outbound command once the matching
// MESSAGE_ACK arrives, or once the entry's TTL runs out.
type AckCallback func(status wire.AckStatus, reason string)

type pendingCommand struct {
	callback  AckCallback
	expiresAt time.Time
}

// AckTable is the sender-side pending command table keyed by
// message_id. Entries resolve exactly once: either by the incoming
// ack or by the sweeper on expiry, whichever comes first.
type AckTable struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*pendingCommand

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	sweepDone   chan struct{}
}

// NewAckTable creates a table whose entries expire after ttl, swept
// every sweepInterval.
func NewAckTable(ttl, sweepInterval time.Duration) *AckTable {
	t := &AckTable{
		ttl:       ttl,
		entries:   make(map[string]*pendingCommand),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	t.sweepTicker = time.NewTicker(sweepInterval)
	go t.sweepLoop()
	return t
}

// Register tracks messageID until an ack arrives or the TTL expires.
func (t *AckTable) Register(messageID string, cb AckCallback) {
	t.mu.Lock()
	t.entries[messageID] = &pendingCommand{callback: cb, expiresAt: time.Now().Add(t.ttl)}
	t.mu.Unlock()
}

// Resolve completes messageID's command with the ack's outcome.
// It reports whether a pending entry existed.
func (t *AckTable) Resolve(messageID string, status wire.AckStatus, reason string) bool {
	t.mu.Lock()
	cmd, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if cmd.callback != nil {
		cmd.callback(status, reason)
	}
	return true
}

// Len reports the number of commands still awaiting an ack.
func (t *AckTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop halts the sweeper. Outstanding entries are completed as failed
// so no caller waits forever across shutdown.
func (t *AckTable) Stop() {
	close(t.stopSweep)
	<-t.sweepDone

	t.mu.Lock()
	remaining := t.entries
	t.entries = make(map[string]*pendingCommand)
	t.mu.Unlock()
	for _, cmd := range remaining {
		if cmd.callback != nil {
			cmd.callback(wire.AckFailed, "shutdown")
		}
	}
}

func (t *AckTable) sweepLoop() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.sweepExpired(time.Now())
		case <-t.stopSweep:
			t.sweepTicker.Stop()
			close(t.sweepDone)
			return
		}
	}
}

func (t *AckTable) sweepExpired(now time.Time) {
	t.mu.Lock()
	var expired []*pendingCommand
	for id, cmd := range t.entries {
		if now.After(cmd.expiresAt) {
			expired = append(expired, cmd)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, cmd := range expired {
		if cmd.callback != nil {
			cmd.callback(wire.AckFailed, "timeout")
		}
	}
}
