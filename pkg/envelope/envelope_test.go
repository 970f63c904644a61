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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

func newSealedStore(t *testing.T, conversationID string) (*Envelope, *session.Store) {
	t.Helper()
	store := session.NewStore()
	store.Store(conversationID, make([]byte, 32))
	return New(store), store
}

func TestSealUnsealRoundTrip(t *testing.T) {
	const conv = "private_1_2"
	env, _ := newSealedStore(t, conv)

	text := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1000, FromID: 1, ToID: 2},
		Body:   "hello",
	}

	sealed, err := env.Seal(conv, text)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeText, sealed.OriginalTag)
	assert.Equal(t, uint64(0), sealed.Sequence)

	recovered, err := env.Unseal(conv, sealed)
	require.NoError(t, err)
	got, ok := recovered.(*wire.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Body)
}

func TestUnsealDetectsTamperedCiphertext(t *testing.T) {
	const conv = "private_1_2"
	env, _ := newSealedStore(t, conv)

	text := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1000, FromID: 1, ToID: 2},
		Body:   "hello",
	}
	sealed, err := env.Seal(conv, text)
	require.NoError(t, err)

	tampered := *sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xFF

	_, err = env.Unseal(conv, &tampered)
	require.Error(t, err)
	wireErr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.KindAuthenticationFailure, wireErr.Kind)
}

func TestUnsealRejectsReplayedSequence(t *testing.T) {
	const conv = "private_1_2"
	env, _ := newSealedStore(t, conv)

	text := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1000, FromID: 1, ToID: 2},
		Body:   "hello",
	}
	sealed, err := env.Seal(conv, text)
	require.NoError(t, err)

	_, err = env.Unseal(conv, sealed)
	require.NoError(t, err)

	_, err = env.Unseal(conv, sealed)
	require.Error(t, err)
	wireErr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.KindReplayDetected, wireErr.Kind)
}

func TestSealNoSession(t *testing.T) {
	store := session.NewStore()
	env := New(store)
	text := &wire.TextMessage{Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2}, Body: "x"}
	_, err := env.Seal("private_1_2", text)
	require.Error(t, err)
}

func TestServerEnvelopeRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	srv := NewServer()
	text := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1000, FromID: 1, ToID: 0},
		Body:   "via relay",
	}

	sealed, err := srv.Seal(key, text)
	require.NoError(t, err)

	recovered, err := srv.Unseal(key, sealed)
	require.NoError(t, err)
	got, ok := recovered.(*wire.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "via relay", got.Body)
}

func TestServerEnvelopeDetectsTamper(t *testing.T) {
	key := make([]byte, 32)
	srv := NewServer()
	text := &wire.TextMessage{Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 0}, Body: "x"}

	sealed, err := srv.Seal(key, text)
	require.NoError(t, err)
	sealed.Ciphertext[0] ^= 0xFF

	_, err = srv.Unseal(key, sealed)
	require.Error(t, err)
}

func TestShouldEncrypt(t *testing.T) {
	assert.True(t, ShouldEncrypt(wire.TypeText))
	assert.True(t, ShouldEncrypt(wire.TypeCreateGroup))
	assert.False(t, ShouldEncrypt(wire.TypeKeyExchange))
	assert.False(t, ShouldEncrypt(wire.TypeMessageAck))
	assert.False(t, ShouldEncrypt(wire.TypeCreateUser))
}
