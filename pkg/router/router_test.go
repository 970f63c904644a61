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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/pkg/envelope"
	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// captureSender records every message the router sends.
type captureSender struct {
	mu   sync.Mutex
	sent []wire.Message
}

func (c *captureSender) Send(msg wire.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) all() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Message(nil), c.sent...)
}

func newTestRouter(t *testing.T, providers ...Provider) (*Router, *session.Store, *envelope.Envelope, *events.Bus, *captureSender) {
	t.Helper()
	store := session.NewStore()
	env := envelope.New(store)
	bus := events.NewBus()
	sender := &captureSender{}
	r := New(2, store, env, bus, sender, Options{}, providers...)
	t.Cleanup(func() {
		r.Stop()
		bus.Close()
	})
	return r, store, env, bus, sender
}

func textProvider(got *[]string) Provider {
	return Provider{
		Kinds: []wire.MessageType{wire.TypeText},
		Handle: func(ctx *Context, msg wire.Message) error {
			text := msg.(*wire.TextMessage)
			*got = append(*got, text.Body)
			ctx.Events.Publish(events.TextMessageReceived{
				MessageID: text.MessageID(),
				From:      text.From(), To: text.To(),
				Body: text.Body,
			})
			return nil
		},
	}
}

func TestDispatchPlaintextText(t *testing.T) {
	var got []string
	r, _, _, bus, sender := newTestRouter(t, textProvider(&got))

	var received []events.Event
	bus.Subscribe(events.KindTextMessageReceived, events.ModeSync, func(ev events.Event) {
		received = append(received, ev)
	})

	msg := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2},
		Body:   "hello",
	}
	require.NoError(t, r.Dispatch(msg))
	assert.Equal(t, []string{"hello"}, got)
	require.Len(t, received, 1)

	// handler success produces a DELIVERED ack back to the sender
	sent := sender.all()
	require.Len(t, sent, 1)
	ack := sent[0].(*wire.AckMessage)
	assert.Equal(t, "m1", ack.AcknowledgedID)
	assert.Equal(t, wire.AckDelivered, ack.Status)
	assert.Equal(t, int32(1), ack.To())
}

func TestEncryptedPipelineUnsealsAndDispatches(t *testing.T) {
	var got []string
	r, store, _, _, _ := newTestRouter(t, textProvider(&got))

	conv := session.PrivateConversationID(1, 2)
	key := make([]byte, 32)
	key[0] = 0x42
	store.Store(conv, key)

	// the sending side has its own store with the same key
	peerStore := session.NewStore()
	peerStore.Store(conv, key)
	peerEnv := envelope.New(peerStore)

	inner := &wire.TextMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2},
		Body:   "sealed hello",
	}
	sealed, err := peerEnv.Seal(conv, inner)
	require.NoError(t, err)

	frame, err := wire.EncodeMessage(sealed)
	require.NoError(t, err)
	p, err := wire.DecodePacket(frame)
	require.NoError(t, err)

	require.NoError(t, r.HandlePacket(p))
	assert.Equal(t, []string{"sealed hello"}, got)
}

func TestReplayDroppedSilentlyWithWarning(t *testing.T) {
	var got []string
	r, store, _, bus, _ := newTestRouter(t, textProvider(&got))

	conv := session.PrivateConversationID(1, 2)
	key := make([]byte, 32)
	store.Store(conv, key)
	peerStore := session.NewStore()
	peerStore.Store(conv, key)
	peerEnv := envelope.New(peerStore)

	var warnings []events.Error
	bus.Subscribe(events.KindError, events.ModeSync, func(ev events.Event) {
		warnings = append(warnings, ev.(events.Error))
	})

	inner := &wire.TextMessage{Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2}, Body: "x"}
	sealed, err := peerEnv.Seal(conv, inner)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(sealed))
	require.NoError(t, r.Dispatch(sealed)) // replay: dropped, no error

	assert.Equal(t, []string{"x"}, got)
	require.Len(t, warnings, 1)
	assert.Equal(t, events.LevelWarning, warnings[0].Level)
	assert.Equal(t, events.ErrTypeDecryption, warnings[0].Type)

	stats, ok := store.Stats(conv)
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Received)
}

func TestTamperedCiphertextDropped(t *testing.T) {
	var got []string
	r, store, _, bus, _ := newTestRouter(t, textProvider(&got))

	conv := session.PrivateConversationID(1, 2)
	key := make([]byte, 32)
	store.Store(conv, key)
	peerStore := session.NewStore()
	peerStore.Store(conv, key)
	peerEnv := envelope.New(peerStore)

	var errs []events.Error
	bus.Subscribe(events.KindError, events.ModeSync, func(ev events.Event) {
		errs = append(errs, ev.(events.Error))
	})

	inner := &wire.TextMessage{Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2}, Body: "x"}
	sealed, err := peerEnv.Seal(conv, inner)
	require.NoError(t, err)
	sealed.Ciphertext[0] ^= 0x01

	require.NoError(t, r.Dispatch(sealed))
	assert.Empty(t, got)
	require.Len(t, errs, 1)
	assert.Equal(t, events.ErrTypeDecryption, errs[0].Type)
}

func TestNoHandlerPublishesError(t *testing.T) {
	r, _, _, bus, _ := newTestRouter(t)

	var errs []events.Error
	bus.Subscribe(events.KindError, events.ModeSync, func(ev events.Event) {
		errs = append(errs, ev.(events.Error))
	})

	msg := &wire.TextMessage{Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 2}, Body: "x"}
	err := r.Dispatch(msg)
	require.Error(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, events.ErrTypeNoHandler, errs[0].Type)
}

func TestAckResolvesPendingCommand(t *testing.T) {
	r, _, _, bus, _ := newTestRouter(t)

	var acked []events.MessageAcknowledged
	bus.Subscribe(events.KindMessageAcknowledged, events.ModeSync, func(ev events.Event) {
		acked = append(acked, ev.(events.MessageAcknowledged))
	})

	var status wire.AckStatus
	resolved := false
	r.RegisterCommand("cmd-1", func(s wire.AckStatus, reason string) {
		resolved = true
		status = s
	})

	ack := &wire.AckMessage{
		Header:         wire.Header{ID: "a1", Timestamp: 1, FromID: 0, ToID: 2},
		AcknowledgedID: "cmd-1",
		Status:         wire.AckSent,
	}
	require.NoError(t, r.Dispatch(ack))

	assert.True(t, resolved)
	assert.Equal(t, wire.AckSent, status)
	require.Len(t, acked, 1)
	assert.Equal(t, "cmd-1", acked[0].MessageID)
}

func TestAckTableExpiresCommands(t *testing.T) {
	table := NewAckTable(10*time.Millisecond, 5*time.Millisecond)
	defer table.Stop()

	done := make(chan wire.AckStatus, 1)
	table.Register("slow", func(s wire.AckStatus, reason string) {
		done <- s
	})

	select {
	case s := <-done:
		assert.Equal(t, wire.AckFailed, s)
	case <-time.After(2 * time.Second):
		t.Fatal("expired command never completed")
	}
	assert.Zero(t, table.Len())
}

func TestAckTableResolveBeatsExpiry(t *testing.T) {
	table := NewAckTable(time.Hour, time.Hour)
	defer table.Stop()

	var calls []wire.AckStatus
	table.Register("fast", func(s wire.AckStatus, reason string) {
		calls = append(calls, s)
	})
	assert.True(t, table.Resolve("fast", wire.AckDelivered, ""))
	assert.False(t, table.Resolve("fast", wire.AckDelivered, ""))
	assert.Equal(t, []wire.AckStatus{wire.AckDelivered}, calls)
}

func TestMarkReadSendsReadAck(t *testing.T) {
	r, _, _, _, sender := newTestRouter(t)

	require.NoError(t, r.MarkRead(1, "m42"))
	sent := sender.all()
	require.Len(t, sent, 1)
	ack := sent[0].(*wire.AckMessage)
	assert.Equal(t, wire.AckRead, ack.Status)
	assert.Equal(t, "m42", ack.AcknowledgedID)
	assert.Equal(t, int32(1), ack.To())
}
