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

package keyexchange

import (
	"time"

	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// InitiateSecureConversation starts (or joins) an exchange with peer
// and returns a one-shot channel that yields nil once the session key
// is stored, or the failure otherwise. The channel is buffered and
// always receives exactly one value within timeout.
//
// Multiple concurrent callers for the same peer each get their own
// channel; all of them complete off the same underlying exchange.
func (e *PrivateEngine) InitiateSecureConversation(peer int32, timeout time.Duration) <-chan error {
	done := make(chan error, 1)

	if peer == e.self {
		done <- wire.New(wire.KindInvalidPeerID, "cannot initiate exchange with self", nil)
		return done
	}
	if e.HasSession(peer) {
		done <- nil
		return done
	}

	e.mu.Lock()
	e.waiters[peer] = append(e.waiters[peer], done)
	e.mu.Unlock()

	if err := e.EnsureSession(peer); err != nil {
		e.completeWaiters(peer, err)
		return done
	}

	// Completion normally comes from the engine when the exchange
	// lands; the timer is the backstop when the peer never answers.
	// It no-ops if the exchange already reached a terminal state.
	time.AfterFunc(timeout, func() {
		e.expirePeer(peer)
	})
	return done
}

// completeWaiters delivers err (nil for success) to every waiter
// registered for peer and clears the list.
func (e *PrivateEngine) completeWaiters(peer int32, err error) {
	e.mu.Lock()
	waiting := e.waiters[peer]
	delete(e.waiters, peer)
	e.mu.Unlock()

	for _, w := range waiting {
		w <- err
	}
}

// expirePeer marks peer's pending INITIATED exchange as expired (if
// still in flight) and fails its waiters. Invoked by the per-future
// timeout; the periodic sweeper applies the same expiry inline once
// the TTL passes.
func (e *PrivateEngine) expirePeer(peer int32) {
	e.mu.Lock()
	pend, ok := e.pending[peer]
	if !ok || pend.State != StateInitiated {
		e.mu.Unlock()
		return
	}
	pend.State = StateExpired
	e.mu.Unlock()

	metrics.KeyExchangesFailed.WithLabelValues("timeout").Inc()
	e.notifyFailure(peer, "key exchange timed out")
	e.completeWaiters(peer, wire.New(wire.KindTimeout, "key exchange timed out", nil))
}

// WithRetry runs fn up to maxAttempts times, stopping early when it
// succeeds or fails with a non-recoverable kind.
func WithRetry(maxAttempts int, fn func() error) error {
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last = fn()
		if last == nil {
			return nil
		}
		werr, ok := last.(*wire.Error)
		if !ok || !werr.Recoverable {
			return last
		}
	}
	return last
}
