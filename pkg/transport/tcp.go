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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sage-x-project/securechat/pkg/wire"
)

// frameHeaderSize is tag(1) + from(4) + to(4) + payload_size(4).
const frameHeaderSize = 13

// maxPayloadSize bounds a single frame's payload so a corrupt or
// hostile length field cannot force an arbitrary allocation.
const maxPayloadSize = 16 << 20

// TCPConn frames packets over a stream socket.
type TCPConn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

// NewTCPConn wraps an accepted or dialed stream connection.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{conn: conn, r: bufio.NewReader(conn)}
}

// DialTCP connects to a relay at addr ("host:port").
func DialTCP(addr string) (*TCPConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewTCPConn(conn), nil
}

// ReadPacket blocks until a complete frame arrives and decodes it.
func (c *TCPConn) ReadPacket() (wire.Packet, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.r, header); err != nil {
		if c.isClosed() {
			return wire.Packet{}, ErrClosed
		}
		return wire.Packet{}, err
	}

	size := binary.BigEndian.Uint32(header[9:13])
	if size > maxPayloadSize {
		return wire.Packet{}, fmt.Errorf("transport: frame payload %d exceeds limit", size)
	}

	frame := make([]byte, frameHeaderSize+int(size))
	copy(frame, header)
	if _, err := io.ReadFull(c.r, frame[frameHeaderSize:]); err != nil {
		return wire.Packet{}, err
	}
	return wire.DecodePacket(frame)
}

// WritePacket serializes p and writes it as one frame.
func (c *TCPConn) WritePacket(p wire.Packet) error {
	if c.isClosed() {
		return ErrClosed
	}
	frame := wire.EncodePacket(p)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// Close shuts the underlying socket down; subsequent reads and writes
// fail with ErrClosed.
func (c *TCPConn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr reports the peer's address for logging.
func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *TCPConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// TCPServer accepts relay connections and hands each one to a Handler
// on its own goroutine.
type TCPServer struct {
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[*TCPConn]struct{}
}

// NewTCPServer builds a server that dispatches accepted connections to
// handler.
func NewTCPServer(handler Handler) *TCPServer {
	return &TCPServer{
		handler: handler,
		conns:   make(map[*TCPConn]struct{}),
	}
}

// Listen binds addr and starts the accept loop on a new goroutine. It
// returns the bound address, which differs from addr when port 0 was
// requested.
func (s *TCPServer) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return ln.Addr().String(), nil
}

func (s *TCPServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tc := NewTCPConn(conn)
		s.mu.Lock()
		s.conns[tc] = struct{}{}
		s.mu.Unlock()
		go func() {
			defer func() {
				_ = tc.Close()
				s.mu.Lock()
				delete(s.conns, tc)
				s.mu.Unlock()
			}()
			s.handler(tc)
		}()
	}
}

// Close stops accepting and closes every live connection.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = make(map[*TCPConn]struct{})
	return err
}
