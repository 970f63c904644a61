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

// Package websocket binds the packet transport to WebSocket for
// browser-facing relay deployments. Each binary WebSocket message
// carries exactly one packet frame, so the relay code sees the same
// transport.Conn surface as the TCP binding.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/securechat/pkg/transport"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// WSConn adapts a WebSocket connection to transport.Conn.
type WSConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func newWSConn(conn *websocket.Conn, readTimeout, writeTimeout time.Duration) *WSConn {
	return &WSConn{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Dial connects to a relay's WebSocket endpoint
// (e.g. "wss://relay.example.com/ws").
func Dial(ctx context.Context, url string) (*WSConn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return newWSConn(conn, 60*time.Second, 30*time.Second), nil
}

// ReadPacket blocks until one binary message arrives and decodes it as
// a packet frame.
func (c *WSConn) ReadPacket() (wire.Packet, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return wire.Packet{}, err
		}
	}
	kind, frame, err := c.conn.ReadMessage()
	if err != nil {
		if c.isClosed() {
			return wire.Packet{}, transport.ErrClosed
		}
		return wire.Packet{}, err
	}
	if kind != websocket.BinaryMessage {
		return wire.Packet{}, fmt.Errorf("websocket: unexpected message kind %d", kind)
	}
	return wire.DecodePacket(frame)
}

// WritePacket sends p as one binary message.
func (c *WSConn) WritePacket(p wire.Packet) error {
	if c.isClosed() {
		return transport.ErrClosed
	}
	frame := wire.EncodePacket(p)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a close frame and tears the connection down.
func (c *WSConn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.conn.Close()
}

// RemoteAddr reports the peer's address for logging.
func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WSConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// Server upgrades HTTP requests to WebSocket connections and hands
// each one to the configured transport.Handler.
type Server struct {
	handler      transport.Handler
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	connMu      sync.Mutex
	connections map[*WSConn]struct{}
}

// NewServer builds a WebSocket gateway dispatching connections to
// handler.
func NewServer(handler transport.Handler) *Server {
	return &Server{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the browser front-end's
				// deployment origin is known.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		connections:  make(map[*WSConn]struct{}),
	}
}

// Handler returns the http.Handler to mount at the gateway path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}
		wc := newWSConn(conn, s.readTimeout, s.writeTimeout)
		s.addConnection(wc)
		defer func() {
			s.removeConnection(wc)
			_ = wc.Close()
		}()
		s.handler(wc)
	})
}

// ConnectionCount reports live gateway connections.
func (s *Server) ConnectionCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.connections)
}

// Close tears down every live connection.
func (s *Server) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for c := range s.connections {
		_ = c.Close()
	}
	s.connections = make(map[*WSConn]struct{})
	return nil
}

func (s *Server) addConnection(c *WSConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[c] = struct{}{}
}

func (s *Server) removeConnection(c *WSConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, c)
}
