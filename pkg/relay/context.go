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

package relay

import (
	"time"

	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// ServerContext is the capability object relay handlers receive: the
// collaborator repositories plus the narrow send surface for the
// originating connection and for any connected user. Handlers never
// see the relay or the socket directly.
type ServerContext struct {
	Users    repo.UserRepo
	Groups   repo.GroupRepo
	Contacts repo.ContactRepo

	// ClientID is the authenticated account behind the originating
	// connection, or 0 before registration.
	ClientID int32

	// Reply sends to the originating connection even before it is
	// bound to an account.
	Reply func(wire.Message) error
	// SendTo sends to any currently connected account.
	SendTo func(userID int32, msg wire.Message) error
	// BindUser associates the originating connection with an account,
	// making it routable by SendTo.
	BindUser func(userID int32)

	IDs *idgen.Generator
}

// Ack emits a server-generated MESSAGE_ACK for msg back to its origin.
func (ctx *ServerContext) Ack(msg wire.Message, status wire.AckStatus, reason string) error {
	now := time.Now()
	return ctx.Reply(&wire.AckMessage{
		Header: wire.Header{
			ID:        ctx.IDs.Generate(0, now.UnixMilli()),
			Timestamp: now.UnixMilli(),
			FromID:    0,
			ToID:      msg.From(),
		},
		AcknowledgedID: msg.MessageID(),
		Status:         status,
		ErrorReason:    reason,
	})
}

// handler processes one inbound message on the relay.
type handler func(ctx *ServerContext, msg wire.Message) error
