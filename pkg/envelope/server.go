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

package envelope

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// ServerEnvelope seals/unseals the client-relay transport link
// (SERVER_ENCRYPTED). It takes the session key directly rather than
// through a session.Store lookup: the relay's pairing key is managed
// by pkg/keyexchange's server engine, which owns a single key per
// connection rather than per logical conversation. There is
// deliberately no sequence number or replay check here; the link runs
// over one long-lived TCP/WebSocket connection, and that transport is
// what provides its replay resistance.
type ServerEnvelope struct{}

// NewServer builds a ServerEnvelope.
func NewServer() *ServerEnvelope { return &ServerEnvelope{} }

// Seal encrypts inner under key and returns the SERVER_ENCRYPTED wrapper.
func (ServerEnvelope) Seal(key []byte, inner wire.Message) (*wire.ServerEncryptedMessage, error) {
	start := time.Now()
	plaintext, err := inner.Encode()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("server_seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "encode inner message", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("server_seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}

	var nonce [wire.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		metrics.CryptoErrors.WithLabelValues("server_seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "generate nonce", err)
	}

	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

	metrics.CryptoOperations.WithLabelValues("server_seal", "aes-gcm").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("server_seal", "aes-gcm").Observe(time.Since(start).Seconds())

	return &wire.ServerEncryptedMessage{
		FromID:      inner.From(),
		ToID:        inner.To(),
		OriginalTag: inner.Type(),
		Nonce:       nonce,
		Ciphertext:  ciphertext,
	}, nil
}

// Unseal decrypts msg under key and re-parses the recovered plaintext.
func (ServerEnvelope) Unseal(key []byte, msg *wire.ServerEncryptedMessage) (wire.Message, error) {
	start := time.Now()
	aead, err := newAEAD(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("server_unseal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}

	plaintext, err := aead.Open(nil, msg.Nonce[:], msg.Ciphertext, nil)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("server_unseal").Inc()
		return nil, wire.New(wire.KindAuthenticationFailure, "gcm authentication failed", err)
	}

	inner, err := wire.ParseMessage(wire.Packet{
		Type:    msg.OriginalTag,
		From:    msg.FromID,
		To:      msg.ToID,
		Payload: plaintext,
	})
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("server_unseal").Inc()
		return nil, err
	}

	metrics.CryptoOperations.WithLabelValues("server_unseal", "aes-gcm").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("server_unseal", "aes-gcm").Observe(time.Since(start).Seconds())
	return inner, nil
}
