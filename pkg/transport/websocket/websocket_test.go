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

package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/pkg/transport"
	"github.com/sage-x-project/securechat/pkg/wire"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestGatewayRoundTrip(t *testing.T) {
	srv := NewServer(func(c transport.Conn) {
		for {
			p, err := c.ReadPacket()
			if err != nil {
				return
			}
			// echo back with relay as sender
			p.From, p.To = 0, p.From
			if err := c.WritePacket(p); err != nil {
				return
			}
		}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer conn.Close()

	sent := wire.Packet{Type: wire.TypeText, From: 7, To: 0, Payload: []byte("m1|1|ping")}
	require.NoError(t, conn.WritePacket(sent))

	got, err := conn.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, wire.TypeText, got.Type)
	assert.Equal(t, int32(0), got.From)
	assert.Equal(t, int32(7), got.To)
	assert.Equal(t, sent.Payload, got.Payload)
}

func TestGatewayTracksConnections(t *testing.T) {
	connected := make(chan struct{})
	release := make(chan struct{})
	srv := NewServer(func(c transport.Conn) {
		close(connected)
		<-release
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	assert.Equal(t, 1, srv.ConnectionCount())
	close(release)
}

func TestWriteAfterClose(t *testing.T) {
	srv := NewServer(func(c transport.Conn) {
		_, _ = c.ReadPacket()
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(ts))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	err = conn.WritePacket(wire.Packet{Type: wire.TypeText, From: 1, To: 0})
	assert.ErrorIs(t, err, transport.ErrClosed)
}
