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

// Package keyexchange implements the three key exchange engines and
// their composite dispatcher: a private (peer-to-peer) ECDH engine,
// an admin-distributed group engine, and a server (client-to-relay)
// pairing engine. Each engine tracks its in-flight exchanges in a
// pending table with a TTL and a periodic sweeper and hands finished
// keys to the session store. The private engine also collapses
// concurrent initiations for the same peer; the group and server
// engines do not.
package keyexchange

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/sage-x-project/securechat/pkg/wire"
)

// State is a PendingKeyExchange's lifecycle stage.
type State int

const (
	StateInitiated State = iota
	StateReceived
	StateCompleted
	StateFailed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateReceived:
		return "RECEIVED"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// PendingTTL is how long an INITIATED exchange waits for a response
// before expiring.
const PendingTTL = 30 * time.Second

// SweepInterval is how often terminal/expired pending entries are
// pruned.
const SweepInterval = 5 * time.Second

// PendingKeyExchange tracks one in-flight ECDH with a single peer,
// keyed by that peer's id in the owning engine's pending table.
type PendingKeyExchange struct {
	PeerID      int32
	Ephemeral   *ecdh.PrivateKey
	IsInitiator bool
	State       State
	StartedAt   time.Time
}

func (p PendingKeyExchange) expired(now time.Time) bool {
	return p.State == StateInitiated && now.Sub(p.StartedAt) > PendingTTL
}

// Sender delivers an already-built wire.Message to its recipient.
// Engines depend on this narrow surface instead of holding a
// transport themselves.
type Sender interface {
	Send(msg wire.Message) error
}

// generateEphemeral mints a fresh X25519 keypair for one exchange.
func generateEphemeral() (*ecdh.PrivateKey, error) {
	return ecdh.X25519().GenerateKey(rand.Reader)
}

// GenerateEphemeral mints a fresh X25519 keypair, for callers that run
// a pairing outside the engines (the relay pairs per connection).
func GenerateEphemeral() (*ecdh.PrivateKey, error) {
	return generateEphemeral()
}

// MarshalPublicKey encodes pub in its wire form (X.509 SPKI).
func MarshalPublicKey(pub *ecdh.PublicKey) ([]byte, error) {
	return marshalSPKI(pub)
}

// ParsePublicKey decodes an X25519 public key from its wire form.
func ParsePublicKey(der []byte) (*ecdh.PublicKey, error) {
	return parseSPKI(der)
}

// DeriveSessionKey runs the ECDH + HKDF chain both sides of an
// exchange use, bound to conversationID.
func DeriveSessionKey(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey, conversationID string) ([]byte, error) {
	return deriveSessionKey(priv, peerPub, conversationID)
}

// marshalSPKI encodes pub as an X.509 SubjectPublicKeyInfo blob, the
// wire encoding KEY_EXCHANGE payloads carry.
func marshalSPKI(pub *ecdh.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// parseSPKI decodes an X25519 public key from its SPKI encoding.
func parseSPKI(der []byte) (*ecdh.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecdhPub, ok := pub.(*ecdh.PublicKey)
	if !ok || ecdhPub.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("keyexchange: not an X25519 public key: %T", pub)
	}
	return ecdhPub, nil
}

// deriveSessionKey computes shared = ECDH(priv, peerPub), then
// HKDF-SHA256(ikm=shared, salt=zeroes[32], info=conversationID)
// truncated to 32 bytes. info is the canonical conversation id so
// both parties land on the same key regardless of which side is the
// initiator. The zero salt is fine here: the ikm is already a
// high-entropy curve point, not a password.
func deriveSessionKey(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey, conversationID string) ([]byte, error) {
	shared, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("keyexchange: ecdh: %w", err)
	}
	salt := make([]byte, 32)
	reader := hkdf.New(sha256.New, shared, salt, []byte(conversationID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("keyexchange: hkdf: %w", err)
	}
	return key, nil
}
