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

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/pkg/wire"
)

func TestTCPConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	left, right := NewTCPConn(a), NewTCPConn(b)
	defer left.Close()
	defer right.Close()

	sent := wire.Packet{Type: wire.TypeText, From: 1, To: 2, Payload: []byte("m1|1000|hello")}

	errCh := make(chan error, 1)
	go func() { errCh <- left.WritePacket(sent) }()

	got, err := right.ReadPacket()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, sent, got)
}

func TestTCPConnMultipleFramesInOrder(t *testing.T) {
	a, b := net.Pipe()
	left, right := NewTCPConn(a), NewTCPConn(b)
	defer left.Close()
	defer right.Close()

	go func() {
		for i := byte(0); i < 3; i++ {
			_ = left.WritePacket(wire.Packet{Type: wire.TypeText, From: 1, To: 2, Payload: []byte{i}})
		}
	}()

	for i := byte(0); i < 3; i++ {
		got, err := right.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, []byte{i}, got.Payload)
	}
}

func TestTCPConnWriteAfterClose(t *testing.T) {
	a, b := net.Pipe()
	c := NewTCPConn(a)
	defer b.Close()

	require.NoError(t, c.Close())
	err := c.WritePacket(wire.Packet{Type: wire.TypeText, From: 1, To: 2})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTCPServerDispatchesConnections(t *testing.T) {
	received := make(chan wire.Packet, 1)
	srv := NewTCPServer(func(c Conn) {
		p, err := c.ReadPacket()
		if err == nil {
			received <- p
			_ = c.WritePacket(wire.Packet{Type: wire.TypeMessageAck, From: 0, To: p.From, Payload: []byte("a|1|x|0||{}")})
		}
	})
	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	client, err := DialTCP(addr)
	require.NoError(t, err)
	defer client.Close()

	sent := wire.Packet{Type: wire.TypeText, From: 1, To: 0, Payload: []byte("m1|1|hi")}
	require.NoError(t, client.WritePacket(sent))

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the packet")
	}

	reply, err := client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, wire.TypeMessageAck, reply.Type)
}
