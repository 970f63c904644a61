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
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Listener is notified once a private session reaches COMPLETED.
type Listener func(peerID int32)

// FailureListener is notified when an exchange expires or fails for
// good, with a human-readable reason.
type FailureListener func(peerID int32, reason string)

// PrivateEngine runs the one-round-trip peer-to-peer ECDH protocol: a
// mutex-guarded pending table keyed by peer id, singleflight-collapsed
// initiation, and a ticker-driven cleanup loop for expired entries.
type PrivateEngine struct {
	self   int32
	store  *session.Store
	sender Sender
	ids    *idgen.Generator

	mu               sync.Mutex
	pending          map[int32]*PendingKeyExchange
	listeners        []Listener
	failureListeners []FailureListener
	waiters          map[int32][]chan error

	sf singleflight.Group

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
}

// NewPrivateEngine builds a PrivateEngine for account self, storing
// sessions in store and delivering outbound messages through sender.
func NewPrivateEngine(self int32, store *session.Store, sender Sender) *PrivateEngine {
	e := &PrivateEngine{
		self:        self,
		store:       store,
		sender:      sender,
		ids:         idgen.NewGenerator(),
		pending:     make(map[int32]*PendingKeyExchange),
		waiters:     make(map[int32][]chan error),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	e.cleanupTicker = time.NewTicker(SweepInterval)
	go e.cleanupLoop()
	return e
}

// Subscribe registers a listener invoked after a session with a peer
// completes, from either the initiator or responder path.
func (e *PrivateEngine) Subscribe(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// SubscribeFailure registers a listener invoked when an exchange with
// a peer expires or exhausts its retries.
func (e *PrivateEngine) SubscribeFailure(l FailureListener) {
	e.mu.Lock()
	e.failureListeners = append(e.failureListeners, l)
	e.mu.Unlock()
}

// Initiate starts a fresh exchange with peer unconditionally,
// overwriting any existing pending entry. Callers that only want to
// start one if none exists should use EnsureSession.
func (e *PrivateEngine) Initiate(peer int32) error {
	if peer == e.self {
		metrics.KeyExchangesFailed.WithLabelValues("self_exchange").Inc()
		return wire.New(wire.KindInvalidPeerID, "cannot initiate exchange with self", nil)
	}

	eph, err := generateEphemeral()
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "generate ephemeral key", err)
	}

	e.mu.Lock()
	e.pending[peer] = &PendingKeyExchange{
		PeerID: peer, Ephemeral: eph, IsInitiator: true,
		State: StateInitiated, StartedAt: time.Now(),
	}
	e.mu.Unlock()

	spki, err := marshalSPKI(eph.PublicKey())
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "marshal ephemeral public key", err)
	}

	now := time.Now()
	msg := &wire.KeyExchangeMessage{
		Header:        wire.Header{ID: e.ids.Generate(e.self, now.UnixMilli()), Timestamp: now.UnixMilli(), FromID: e.self, ToID: peer},
		Kind:          wire.TypeKeyExchange,
		PublicKeySPKI: spki,
	}

	metrics.KeyExchangesInitiated.WithLabelValues("private").Inc()
	if err := e.sender.Send(msg); err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("timeout").Inc()
		return wire.New(wire.KindTimeout, "send KEY_EXCHANGE", err)
	}
	return nil
}

// EnsureSession is the idempotent entry point: a no-op if a session
// already exists or an exchange with peer is already pending;
// otherwise it initiates one. Concurrent callers for the same peer
// collapse onto a single Initiate via singleflight.
func (e *PrivateEngine) EnsureSession(peer int32) error {
	if e.HasSession(peer) {
		return nil
	}
	e.mu.Lock()
	pend, ok := e.pending[peer]
	pending := ok && pend.State == StateInitiated
	e.mu.Unlock()
	if pending {
		return nil
	}

	_, err, _ := e.sf.Do(fmt.Sprintf("%d", peer), func() (any, error) {
		if e.HasSession(peer) {
			return nil, nil
		}
		e.mu.Lock()
		pend, ok := e.pending[peer]
		stillPending := ok && pend.State == StateInitiated
		e.mu.Unlock()
		if stillPending {
			return nil, nil
		}
		return nil, e.Initiate(peer)
	})
	return err
}

// HandleRequest processes an inbound KEY_EXCHANGE as the responder,
// applying the simultaneous-initiation tie-break first: when both
// sides initiated at once, the lower id's initiation survives.
func (e *PrivateEngine) HandleRequest(msg *wire.KeyExchangeMessage) error {
	peer := msg.From()

	e.mu.Lock()
	existing, hasPending := e.pending[peer]
	if hasPending && existing.State == StateInitiated && existing.IsInitiator {
		if e.self < peer {
			// Self wins the tie-break: keep our own initiation in
			// flight and drop this duplicate request.
			e.mu.Unlock()
			return nil
		}
		// Self loses: discard our pending initiation and fall
		// through to respond to the incoming request instead.
		delete(e.pending, peer)
	}
	e.mu.Unlock()

	peerPub, err := parseSPKI(msg.PublicKeySPKI)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindInvalidPublicKey, "parse peer public key", err)
	}

	eph, err := generateEphemeral()
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "generate ephemeral key", err)
	}

	convID := session.PrivateConversationID(e.self, peer)
	key, err := deriveSessionKey(eph, peerPub, convID)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return err
	}
	e.store.Store(convID, key)

	e.mu.Lock()
	e.pending[peer] = &PendingKeyExchange{
		PeerID: peer, Ephemeral: eph, IsInitiator: false,
		State: StateCompleted, StartedAt: time.Now(),
	}
	e.mu.Unlock()

	spki, err := marshalSPKI(eph.PublicKey())
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "marshal ephemeral public key", err)
	}

	now := time.Now()
	resp := &wire.KeyExchangeMessage{
		Header:        wire.Header{ID: e.ids.Generate(e.self, now.UnixMilli()), Timestamp: now.UnixMilli(), FromID: e.self, ToID: peer},
		Kind:          wire.TypeKeyExchangeResponse,
		PublicKeySPKI: spki,
	}

	metrics.KeyExchangesCompleted.WithLabelValues("success").Inc()
	e.notify(peer)
	if err := e.sender.Send(resp); err != nil {
		return wire.New(wire.KindTimeout, "send KEY_EXCHANGE_RESPONSE", err)
	}
	return nil
}

// HandleResponse completes the exchange as the initiator.
func (e *PrivateEngine) HandleResponse(msg *wire.KeyExchangeMessage) error {
	peer := msg.From()

	e.mu.Lock()
	pend, ok := e.pending[peer]
	e.mu.Unlock()
	if !ok || pend.State != StateInitiated || !pend.IsInitiator {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindNoPendingExchange, "no pending initiation for peer", nil)
	}

	peerPub, err := parseSPKI(msg.PublicKeySPKI)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindInvalidPublicKey, "parse peer public key", err)
	}

	convID := session.PrivateConversationID(e.self, peer)
	key, err := deriveSessionKey(pend.Ephemeral, peerPub, convID)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return err
	}
	e.store.Store(convID, key)

	e.mu.Lock()
	pend.State = StateCompleted
	e.mu.Unlock()

	metrics.KeyExchangesCompleted.WithLabelValues("success").Inc()
	e.notify(peer)
	return nil
}

// HasSession reports whether a private session with peer currently exists.
func (e *PrivateEngine) HasSession(peer int32) bool {
	return e.store.Has(session.PrivateConversationID(e.self, peer))
}

// Invalidate tears down any session and pending state for peer.
func (e *PrivateEngine) Invalidate(peer int32) error {
	e.store.Remove(session.PrivateConversationID(e.self, peer))
	e.mu.Lock()
	delete(e.pending, peer)
	e.mu.Unlock()
	return nil
}

// Rotate forces a fresh exchange with peer, discarding any current session.
func (e *PrivateEngine) Rotate(peer int32) error {
	if err := e.Invalidate(peer); err != nil {
		return err
	}
	return e.Initiate(peer)
}

// Stop halts the cleanup loop; safe to call once.
func (e *PrivateEngine) Stop() {
	close(e.stopCleanup)
	<-e.cleanupDone
}

func (e *PrivateEngine) notify(peer int32) {
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()
	for _, l := range listeners {
		l(peer)
	}
	e.completeWaiters(peer, nil)
}

func (e *PrivateEngine) notifyFailure(peer int32, reason string) {
	e.mu.Lock()
	listeners := append([]FailureListener(nil), e.failureListeners...)
	e.mu.Unlock()
	for _, l := range listeners {
		l(peer, reason)
	}
}

func (e *PrivateEngine) cleanupLoop() {
	for {
		select {
		case <-e.cleanupTicker.C:
			e.sweepExpired(time.Now())
		case <-e.stopCleanup:
			e.cleanupTicker.Stop()
			close(e.cleanupDone)
			return
		}
	}
}

func (e *PrivateEngine) sweepExpired(now time.Time) {
	e.mu.Lock()
	var expiredPeers []int32
	for peer, p := range e.pending {
		if p.expired(now) {
			p.State = StateExpired
			expiredPeers = append(expiredPeers, peer)
		}
		if p.State == StateExpired || p.State == StateFailed || p.State == StateCompleted {
			delete(e.pending, peer)
		}
	}
	e.mu.Unlock()

	for _, peer := range expiredPeers {
		metrics.KeyExchangesFailed.WithLabelValues("timeout").Inc()
		e.notifyFailure(peer, "key exchange timed out")
		e.completeWaiters(peer, wire.New(wire.KindTimeout, "key exchange timed out", nil))
	}
}
