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

// Package envelope implements the symmetric AEAD wrapping of message
// payloads: Seal encrypts an inner wire.Message under a
// conversation's session key, producing a wire.EncryptedMessage;
// Unseal reverses that and re-parses the original message. The cipher
// is AES-256-GCM with a random 96-bit nonce, and the outbound
// sequence number rides as associated data so a tampered sequence
// fails authentication along with a tampered ciphertext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"

	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Envelope seals and unseals messages for a session.Store's
// conversations. It holds no key material of its own; every key lookup
// goes through the Store so rekeying (session.Store.Store) takes
// effect on the very next Seal/Unseal call.
type Envelope struct {
	store *session.Store
	ids   *idgen.Generator
}

// New builds an Envelope backed by store.
func New(store *session.Store) *Envelope {
	return &Envelope{store: store, ids: idgen.NewGenerator()}
}

// Seal encrypts inner under conversationID's current session key and
// returns the EncryptedMessage wrapper ready for transmission. It
// assigns inner's outbound sequence number via session.Store and uses
// it as GCM associated data, binding the ciphertext to its position
// in the stream.
func (e *Envelope) Seal(conversationID string, inner wire.Message) (*wire.EncryptedMessage, error) {
	start := time.Now()
	key, ok := e.store.GetKey(conversationID)
	if !ok {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return nil, wire.New(wire.KindNoSession, "no session for conversation "+conversationID, nil)
	}

	plaintext, err := inner.Encode()
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "encode inner message", err)
	}

	seq, err := e.store.NextSendSeq(conversationID)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}

	var nonce [wire.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "generate nonce", err)
	}

	aad := seqAAD(seq)
	ciphertext := aead.Seal(nil, nonce[:], plaintext, aad)

	e.store.MarkSent(conversationID)
	metrics.CryptoOperations.WithLabelValues("seal", "aes-gcm").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("seal", "aes-gcm").Observe(time.Since(start).Seconds())

	// the wrapper reuses the inner message id so acknowledgments
	// resolve the sender's pending command regardless of whether the
	// acker saw the wrapper or the plaintext
	id := inner.MessageID()
	if id == "" {
		id = e.ids.Generate(inner.From(), time.Now().UnixMilli())
	}

	return &wire.EncryptedMessage{
		FromID:      inner.From(),
		ToID:        inner.To(),
		ID:          id,
		Timestamp:   time.Now().UnixMilli(),
		OriginalTag: inner.Type(),
		Sequence:    seq,
		Nonce:       nonce,
		Ciphertext:  ciphertext,
	}, nil
}

// Unseal decrypts msg under conversationID's current session key,
// enforces strict replay protection via session.Store.ValidateRecvSeq,
// and re-parses the recovered plaintext into its original Message
// kind.
func (e *Envelope) Unseal(conversationID string, msg *wire.EncryptedMessage) (wire.Message, error) {
	start := time.Now()
	key, ok := e.store.GetKey(conversationID)
	if !ok {
		metrics.CryptoErrors.WithLabelValues("unseal").Inc()
		return nil, wire.New(wire.KindNoSession, "no session for conversation "+conversationID, nil)
	}

	if !e.store.ValidateRecvSeq(conversationID, msg.Sequence) {
		metrics.CryptoErrors.WithLabelValues("unseal").Inc()
		return nil, wire.New(wire.KindReplayDetected, "sequence already seen or out of order", nil)
	}

	aead, err := newAEAD(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("unseal").Inc()
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}

	aad := seqAAD(msg.Sequence)
	plaintext, err := aead.Open(nil, msg.Nonce[:], msg.Ciphertext, aad)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("unseal").Inc()
		return nil, wire.New(wire.KindAuthenticationFailure, "gcm authentication failed", err)
	}

	inner, err := wire.ParseMessage(wire.Packet{
		Type:    msg.OriginalTag,
		From:    msg.FromID,
		To:      msg.ToID,
		Payload: plaintext,
	})
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("unseal").Inc()
		return nil, err
	}

	metrics.CryptoOperations.WithLabelValues("unseal", "aes-gcm").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("unseal", "aes-gcm").Observe(time.Since(start).Seconds())
	return inner, nil
}

// SealBytes AEAD-seals raw plaintext under key with a fresh random
// nonce, prefixing the nonce to the returned ciphertext. Used by
// pkg/keyexchange's group engine to wrap a group key under an
// already-established private session key, reusing this package's
// AEAD construction instead of duplicating it.
func SealBytes(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, wire.New(wire.KindCryptoFailure, "generate nonce", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenBytes reverses SealBytes.
func OpenBytes(key, data []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, wire.New(wire.KindCryptoFailure, "build aead", err)
	}
	n := aead.NonceSize()
	if len(data) < n {
		return nil, wire.New(wire.KindDecodeError, "ciphertext too short", nil)
	}
	plaintext, err := aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, wire.New(wire.KindAuthenticationFailure, "gcm authentication failed", err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seqAAD renders seq as 8-byte big-endian associated data, binding
// ciphertext to its sequence position without making the sequence
// itself secret.
func seqAAD(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
