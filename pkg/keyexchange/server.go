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
	"sync"
	"time"

	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// ServerEngine is the client-to-relay pairing engine. The same type
// serves both roles, and both sides construct it with self == 0: on
// the relay it initiates by sending SERVER_KEY_EXCHANGE to a newly
// connected client, keyed by connection id; on the client it responds
// to the relay's SERVER_KEY_EXCHANGE, keyed by the relay's id 0. It
// shares the private engine's pending-table-with-TTL shape, keyed by
// the other side's id.
type ServerEngine struct {
	self   int32
	store  *session.Store
	sender Sender

	mu      sync.Mutex
	pending map[int32]*PendingKeyExchange
	// convIDs remembers, per peer id, which conversation the pairing
	// key landed under, since the id embeds both parties' public keys.
	convIDs map[int32]string

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
}

// NewServerEngine builds a ServerEngine for account self (0 for the relay).
func NewServerEngine(self int32, store *session.Store, sender Sender) *ServerEngine {
	e := &ServerEngine{
		self:        self,
		store:       store,
		sender:      sender,
		pending:     make(map[int32]*PendingKeyExchange),
		convIDs:     make(map[int32]string),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	e.cleanupTicker = time.NewTicker(SweepInterval)
	go e.cleanupLoop()
	return e
}

// InitiateAsRelay sends SERVER_KEY_EXCHANGE(server_pub) to a newly
// connected client. Only the relay side calls it.
func (e *ServerEngine) InitiateAsRelay(clientID int32) error {
	eph, err := generateEphemeral()
	if err != nil {
		return wire.New(wire.KindCryptoFailure, "generate ephemeral key", err)
	}
	spki, err := marshalSPKI(eph.PublicKey())
	if err != nil {
		return wire.New(wire.KindCryptoFailure, "marshal ephemeral public key", err)
	}

	e.mu.Lock()
	e.pending[clientID] = &PendingKeyExchange{PeerID: clientID, Ephemeral: eph, IsInitiator: true, State: StateInitiated, StartedAt: time.Now()}
	e.mu.Unlock()

	msg := &wire.ServerKeyExchangeMessage{Kind: wire.TypeServerKeyExchange, FromID: e.self, ToID: clientID, PublicKeySPKI: spki}
	metrics.KeyExchangesInitiated.WithLabelValues("server").Inc()
	if err := e.sender.Send(msg); err != nil {
		return wire.New(wire.KindTimeout, "send SERVER_KEY_EXCHANGE", err)
	}
	return nil
}

// HandleRequest processes an inbound SERVER_KEY_EXCHANGE as the client:
// generate an ephemeral keypair, derive the pairing key, and reply
// with SERVER_KEY_EXCHANGE_RESPONSE.
func (e *ServerEngine) HandleRequest(msg *wire.ServerKeyExchangeMessage) error {
	relayPub, err := parseSPKI(msg.PublicKeySPKI)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindInvalidPublicKey, "parse relay public key", err)
	}

	eph, err := generateEphemeral()
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "generate ephemeral key", err)
	}
	clientSPKI, err := marshalSPKI(eph.PublicKey())
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "marshal ephemeral public key", err)
	}

	convID := session.ServerConversationID(msg.PublicKeySPKI, clientSPKI)
	key, err := deriveSessionKey(eph, relayPub, convID)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return err
	}
	e.store.Store(convID, key)
	e.mu.Lock()
	e.convIDs[msg.From()] = convID
	e.mu.Unlock()

	resp := &wire.ServerKeyExchangeMessage{Kind: wire.TypeServerKeyExchangeResponse, FromID: e.self, ToID: msg.From(), PublicKeySPKI: clientSPKI}
	metrics.KeyExchangesCompleted.WithLabelValues("success").Inc()
	if err := e.sender.Send(resp); err != nil {
		return wire.New(wire.KindTimeout, "send SERVER_KEY_EXCHANGE_RESPONSE", err)
	}
	return nil
}

// HandleResponse processes the client's SERVER_KEY_EXCHANGE_RESPONSE
// as the relay, completing the pairing.
func (e *ServerEngine) HandleResponse(msg *wire.ServerKeyExchangeMessage) error {
	clientID := msg.From()
	e.mu.Lock()
	pend, ok := e.pending[clientID]
	e.mu.Unlock()
	if !ok || pend.State != StateInitiated || !pend.IsInitiator {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindNoPendingExchange, "no pending relay pairing for client", nil)
	}

	clientPub, err := parseSPKI(msg.PublicKeySPKI)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindInvalidPublicKey, "parse client public key", err)
	}

	serverSPKI, err := marshalSPKI(pend.Ephemeral.PublicKey())
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindCryptoFailure, "marshal ephemeral public key", err)
	}

	convID := session.ServerConversationID(serverSPKI, msg.PublicKeySPKI)
	key, err := deriveSessionKey(pend.Ephemeral, clientPub, convID)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return err
	}
	e.store.Store(convID, key)
	e.mu.Lock()
	e.convIDs[clientID] = convID
	e.mu.Unlock()

	e.mu.Lock()
	pend.State = StateCompleted
	e.mu.Unlock()

	metrics.KeyExchangesCompleted.WithLabelValues("success").Inc()
	return nil
}

// HasSession reports whether a pairing session with the relay/client
// identified by the given SPKI pair exists.
func (e *ServerEngine) HasSession(serverSPKI, clientSPKI []byte) bool {
	return e.store.Has(session.ServerConversationID(serverSPKI, clientSPKI))
}

// ConversationID returns the pairing conversation established with
// peer, if the exchange has completed.
func (e *ServerEngine) ConversationID(peer int32) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.convIDs[peer]
	return id, ok
}

// PairingKey returns the session key for the pairing with peer.
func (e *ServerEngine) PairingKey(peer int32) ([]byte, bool) {
	convID, ok := e.ConversationID(peer)
	if !ok {
		return nil, false
	}
	return e.store.GetKey(convID)
}

// Stop halts the cleanup loop; safe to call once.
func (e *ServerEngine) Stop() {
	close(e.stopCleanup)
	<-e.cleanupDone
}

func (e *ServerEngine) cleanupLoop() {
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

func (e *ServerEngine) sweepExpired(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.pending {
		if p.expired(now) {
			p.State = StateExpired
		}
		if p.State == StateExpired || p.State == StateFailed || p.State == StateCompleted {
			delete(e.pending, id)
		}
	}
}
