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

// Package transport carries packet frames between clients and the
// relay. The relay logic stays independent of the concrete transport:
// the reference client speaks length-prefixed frames over TCP, and a
// websocket binding carries the same frames as binary messages for
// browser-facing deployments.
package transport

import (
	"errors"

	"github.com/sage-x-project/securechat/pkg/wire"
)

// ErrClosed is returned by ReadPacket/WritePacket after Close.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional stream of packet frames. WritePacket is safe
// for concurrent callers; ReadPacket is not and belongs to a single
// reader goroutine per connection.
type Conn interface {
	ReadPacket() (wire.Packet, error)
	WritePacket(wire.Packet) error
	Close() error
	RemoteAddr() string
}

// Handler consumes an accepted connection. It runs on a dedicated
// goroutine and owns the connection until it returns.
type Handler func(Conn)
