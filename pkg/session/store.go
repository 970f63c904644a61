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
	"sync"
	"time"

	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// RekeyThreshold is the default sequence count at which ShouldRotate
// starts recommending a rekey.
const RekeyThreshold = 1 << 30

// Store is the single authority for active session keys and their
// sequence counters. All operations are safe under concurrent access;
// a RWMutex guards the map itself while per-entry counters are atomic
// so NextSendSeq/ValidateRecvSeq never need the map-wide lock.
type Store struct {
	mu             sync.RWMutex
	entries        map[string]*entry
	rekeyThreshold uint64
}

// NewStore creates an empty in-memory Store using the default rekey
// threshold. Use NewStoreWithThreshold to override it from config.
func NewStore() *Store {
	return NewStoreWithThreshold(RekeyThreshold)
}

// NewStoreWithThreshold creates an empty Store with a custom rekey
// threshold.
func NewStoreWithThreshold(threshold uint64) *Store {
	return &Store{
		entries:        make(map[string]*entry),
		rekeyThreshold: threshold,
	}
}

// Store inserts or replaces the session key for conversationID,
// resetting both sequence counters to 0. Replacing the map entry
// wholesale (rather than mutating in place) is what keeps this atomic
// with respect to any NextSendSeq call already holding the previous
// *entry: that call completes against the stale entry and is
// discarded, while every call after Store returns observes the fresh
// counters.
func (s *Store) Store(conversationID string, key []byte) {
	e := &entry{key: append([]byte(nil), key...), createdAt: time.Now()}
	s.mu.Lock()
	s.entries[conversationID] = e
	s.mu.Unlock()
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
}

// GetKey returns the current session key for conversationID, if any.
func (s *Store) GetKey(conversationID string) ([]byte, bool) {
	e, ok := s.get(conversationID)
	if !ok {
		return nil, false
	}
	return e.key, true
}

// NextSendSeq atomically returns the next outbound sequence number
// for conversationID, starting from 0 and strictly increasing,
// gap-free, thereafter. Returns KindNoSession if no session has been
// stored yet.
func (s *Store) NextSendSeq(conversationID string) (uint64, error) {
	e, ok := s.get(conversationID)
	if !ok {
		return 0, wire.New(wire.KindNoSession, "no session for conversation "+conversationID, nil)
	}
	return e.sendSeq.Add(1) - 1, nil
}

// ValidateRecvSeq reports whether incoming is strictly greater than
// the last accepted sequence for conversationID, and if so advances
// the watermark and returns true. This is a strict "> last only"
// replay check, not a sliding window: out-of-order arrivals are
// dropped along with true replays, which is the right trade for an
// in-order transport.
func (s *Store) ValidateRecvSeq(conversationID string, incoming uint64) bool {
	e, ok := s.get(conversationID)
	if !ok {
		return false
	}
	for {
		next := e.recvNext.Load()
		if incoming < next {
			metrics.ReplayAttacksDetected.Inc()
			return false
		}
		if e.recvNext.CompareAndSwap(next, incoming+1) {
			e.received.Add(1)
			return true
		}
	}
}

// Remove deletes the session for conversationID, if any.
func (s *Store) Remove(conversationID string) {
	s.mu.Lock()
	_, existed := s.entries[conversationID]
	delete(s.entries, conversationID)
	s.mu.Unlock()
	if existed {
		metrics.SessionsActive.Dec()
	}
}

// Stats returns a snapshot of conversationID's counters and age.
func (s *Store) Stats(conversationID string) (Stats, bool) {
	e, ok := s.get(conversationID)
	if !ok {
		return Stats{}, false
	}
	return Stats{
		CreatedAt: e.createdAt,
		SendSeq:   e.sendSeq.Load(),
		RecvSeq:   e.lastRecv(),
		Sent:      e.sent.Load(),
		Received:  e.received.Load(),
	}, true
}

// MarkSent increments the sent counter, called by the envelope layer
// after a successful seal.
func (s *Store) MarkSent(conversationID string) {
	if e, ok := s.get(conversationID); ok {
		e.sent.Add(1)
	}
}

// ShouldRotate reports whether either counter has reached the
// configured rekey threshold.
func (s *Store) ShouldRotate(conversationID string) bool {
	e, ok := s.get(conversationID)
	if !ok {
		return false
	}
	return e.sendSeq.Load() >= s.rekeyThreshold || e.lastRecv() >= s.rekeyThreshold
}

// Has reports whether a session currently exists for conversationID.
func (s *Store) Has(conversationID string) bool {
	_, ok := s.get(conversationID)
	return ok
}

func (s *Store) get(conversationID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[conversationID]
	s.mu.RUnlock()
	return e, ok
}
