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

package keyexchange

import (
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Composite dispatches Initiate/HasSession/Invalidate by consulting
// the group repository, and inbound messages by the concrete
// wire.Message type produced by the codec (the 0xFF/0xFE first-byte
// inspection that separates group traffic from private traffic
// already happened in pkg/wire's decoder).
type Composite struct {
	private *PrivateEngine
	group   *GroupEngine
	groups  repo.GroupRepo
}

// NewComposite builds a Composite dispatcher over the two concrete
// engines and the group repository used to classify targets.
func NewComposite(private *PrivateEngine, group *GroupEngine, groups repo.GroupRepo) *Composite {
	return &Composite{private: private, group: group, groups: groups}
}

// Initiate starts a new exchange with target: a group key rotation if
// target names a group, otherwise a private ECDH.
func (c *Composite) Initiate(target int32) error {
	if _, ok := c.groups.Find(target); ok {
		return c.group.Rotate(target)
	}
	return c.private.Initiate(target)
}

// HasSession reports whether a usable session/group key exists for target.
func (c *Composite) HasSession(target int32) bool {
	if _, ok := c.groups.Find(target); ok {
		return c.group.HasSession(target)
	}
	return c.private.HasSession(target)
}

// Invalidate discards any session/group key and pending state for target.
func (c *Composite) Invalidate(target int32) error {
	if _, ok := c.groups.Find(target); ok {
		return c.group.Invalidate(target)
	}
	return c.private.Invalidate(target)
}

// Dispatch routes an inbound key-exchange message to whichever engine
// owns its concrete kind.
func (c *Composite) Dispatch(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.KeyExchangeMessage:
		if m.Kind == wire.TypeKeyExchangeResponse {
			return c.private.HandleResponse(m)
		}
		return c.private.HandleRequest(m)
	case *wire.GroupKeyDistributionMessage:
		return c.group.HandleDistribution(m)
	case *wire.GroupKeyAckMessage:
		return c.group.HandleAck(m)
	default:
		return wire.New(wire.KindProtocolViolation, "unexpected message kind for key exchange dispatch", nil)
	}
}

// Stop halts both engines' cleanup loops.
func (c *Composite) Stop() {
	c.private.Stop()
	c.group.Stop()
}
