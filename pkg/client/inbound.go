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

package client

import (
	"errors"
	"time"

	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/keyexchange"
	"github.com/sage-x-project/securechat/pkg/router"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// readLoop is the connection's single reader goroutine.
func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		p, err := c.conn.ReadPacket()
		if err != nil {
			return
		}
		if err := c.handlePacket(p); err != nil {
			var werr *wire.Error
			if errors.As(err, &werr) && werr.Kind == wire.KindDecodeError {
				c.log.Error("closing connection on decode error", logger.Error(err))
				c.bus.Publish(events.Error{
					Level:   events.LevelCritical,
					Type:    events.ErrTypeProtocol,
					Message: err.Error(),
				})
				_ = c.conn.Close()
				return
			}
			c.log.Warn("inbound packet failed", logger.Error(err))
		}
	}
}

func (c *Client) handlePacket(p wire.Packet) error {
	msg, err := wire.ParseMessage(p)
	if err != nil {
		return err
	}
	return c.handleMessage(msg)
}

func (c *Client) handleMessage(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.ServerKeyExchangeMessage:
		if m.Kind != wire.TypeServerKeyExchange {
			return wire.New(wire.KindProtocolViolation, "relay sent SERVER_KEY_EXCHANGE_RESPONSE", nil)
		}
		// the relay addresses us by connection id pre-registration;
		// the pairing conversation is keyed by the relay's id
		m.FromID = 0
		if err := c.pairing.HandleRequest(m); err != nil {
			return err
		}
		c.pairedOnce.Do(func() { close(c.paired) })
		return nil

	case *wire.ServerEncryptedMessage:
		key, ok := c.pairing.PairingKey(0)
		if !ok {
			return wire.New(wire.KindNoSession, "server envelope before pairing completed", nil)
		}
		inner, err := c.serverEnv.Unseal(key, m)
		if err != nil {
			return err
		}
		return c.handleMessage(inner)

	case *wire.AckConnectionMessage:
		c.bind(m.AssignedID)
		return nil

	case *wire.KeyExchangeMessage, *wire.GroupKeyDistributionMessage, *wire.GroupKeyAckMessage:
		if c.comp == nil {
			return wire.New(wire.KindNoSession, "key exchange before registration", nil)
		}
		if err := c.comp.Dispatch(msg); err != nil {
			return err
		}
		if d, ok := msg.(*wire.GroupKeyDistributionMessage); ok {
			c.bus.Publish(events.GroupKeyRotated{GroupID: d.GroupID})
		}
		return nil

	default:
		if c.router == nil {
			return wire.New(wire.KindNoSession, "message before registration", nil)
		}
		return c.router.Dispatch(msg)
	}
}

// bind finalizes registration: with the account id known, the key
// exchange engines and router come up and the connection event fires.
func (c *Client) bind(self int32) {
	if c.router != nil {
		return // duplicate ACK_CONNECTION
	}
	c.self = self

	sender := clientSender{c}
	c.private = keyexchange.NewPrivateEngine(self, c.store, sender)
	c.group = keyexchange.NewGroupEngine(self, c.store, sender, c.groups, c.private)
	c.comp = keyexchange.NewComposite(c.private, c.group, c.groups)

	c.private.Subscribe(func(peer int32) {
		c.bus.Publish(events.SecureConversationEstablished{PeerID: peer})
	})
	c.private.SubscribeFailure(func(peer int32, reason string) {
		c.bus.Publish(events.SecureConversationFailed{PeerID: peer, Reason: reason})
		c.bus.Publish(events.Error{
			Level:   events.LevelError,
			Type:    events.ErrTypeKeyExchange,
			Message: reason,
		})
	})

	c.router = router.New(self, c.store, c.env, c.bus, sender, router.Options{
		AckTTL:        time.Duration(c.cfg.Group.AckTimeoutSeconds) * time.Second,
		SweepInterval: time.Duration(c.cfg.Cleanup.IntervalSeconds) * time.Second,
		Groups:        c.groups,
	}, c.providers()...)

	c.bus.Publish(events.ConnectionEstablished{AssignedID: self})
	close(c.connected)
}

// providers is the client's static handler table.
func (c *Client) providers() []router.Provider {
	return []router.Provider{
		{
			Kinds: []wire.MessageType{wire.TypeText},
			Handle: func(ctx *router.Context, msg wire.Message) error {
				m := msg.(*wire.TextMessage)
				ctx.Events.Publish(events.TextMessageReceived{
					MessageID: m.MessageID(),
					From:      m.From(), To: m.To(),
					Body: m.Body,
				})
				return nil
			},
		},
		{
			Kinds: []wire.MessageType{wire.TypeMedia},
			Handle: func(ctx *router.Context, msg wire.Message) error {
				m := msg.(*wire.MediaMessage)
				ctx.Events.Publish(events.MediaMessageReceived{
					MessageID: m.MessageID(),
					From:      m.From(), To: m.To(),
					MediaType: m.MediaType, URL: m.URL, Caption: m.Caption,
				})
				return nil
			},
		},
		{
			Kinds: []wire.MessageType{wire.TypeContactRequest},
			Handle: func(ctx *router.Context, msg wire.Message) error {
				m := msg.(*wire.ContactRequestMessage)
				ctx.Events.Publish(events.ContactRequestReceived{
					MessageID: m.MessageID(),
					From:      m.From(), To: m.To(),
					Pseudo: m.RequesterPseudo,
				})
				return nil
			},
		},
		{
			Kinds: []wire.MessageType{wire.TypeContactRequestResponse},
			Handle: func(ctx *router.Context, msg wire.Message) error {
				m := msg.(*wire.ContactRequestResponseMessage)
				ctx.Events.Publish(events.ContactRequestResolved{
					From: m.From(), To: m.To(), Accepted: m.Accepted,
				})
				return nil
			},
		},
		{
			Kinds: []wire.MessageType{
				wire.TypeCreateGroup, wire.TypeAddGroupMember,
				wire.TypeRemoveGroupMember, wire.TypeLeaveGroup,
			},
			Handle: c.handleGroupChange,
		},
		{
			Kinds: []wire.MessageType{wire.TypeErrorMsg},
			Handle: func(ctx *router.Context, msg wire.Message) error {
				m := msg.(*wire.ErrorMessage)
				ctx.Events.Publish(events.Error{
					Level:   events.LevelError,
					Type:    m.Code,
					Message: m.Description,
				})
				return nil
			},
		},
	}
}

// handleGroupChange mirrors relay-announced membership and, on the
// admin, rotates the group key for the new member set. A member that
// was just removed drops its stale key instead.
func (c *Client) handleGroupChange(ctx *router.Context, msg wire.Message) error {
	m, ok := msg.(*wire.ManagementMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "management payload has wrong type", nil)
	}

	groupID := int32Param(m.Params, "group_id")
	adminID := int32Param(m.Params, "admin_id")
	members := int32Slice(m.Params["members"])
	subject := int32Param(m.Params, "member_id")

	removed := m.Kind == wire.TypeRemoveGroupMember && subject == c.self
	if removed {
		c.groups.Put(repo.Group{GroupID: groupID, AdminID: adminID, Members: members})
		if err := c.group.Invalidate(groupID); err != nil {
			return err
		}
		return nil
	}

	c.groups.Put(repo.Group{GroupID: groupID, AdminID: adminID, Members: members})

	if adminID == c.self {
		// Rotation needs a private session with every member before
		// the wrapped key can travel. Establishing those reads
		// responses off this same connection, so the wait must leave
		// the reader goroutine.
		go c.rotateWhenSessionsReady(groupID, members)
	}
	return nil
}

// rotateWhenSessionsReady establishes the missing pairwise sessions,
// then rotates the group key and fans it out, retrying recoverable
// failures.
func (c *Client) rotateWhenSessionsReady(groupID int32, members []int32) {
	timeout := time.Duration(c.cfg.KeyExchange.TimeoutSeconds) * time.Second
	pending := make([]<-chan error, 0, len(members))
	for _, m := range members {
		if m == c.self {
			continue
		}
		pending = append(pending, c.private.InitiateSecureConversation(m, timeout))
	}
	for _, done := range pending {
		if err := <-done; err != nil {
			c.bus.Publish(events.Error{
				Level:   events.LevelError,
				Type:    events.ErrTypeKeyExchange,
				Message: err.Error(),
			})
			return
		}
	}

	err := keyexchange.WithRetry(int(c.cfg.Retry.MaxAttempts), func() error {
		return c.group.Rotate(groupID)
	})
	if err != nil {
		c.bus.Publish(events.Error{
			Level:   events.LevelError,
			Type:    events.ErrTypeKeyExchange,
			Message: err.Error(),
		})
		return
	}
	c.bus.Publish(events.GroupKeyRotated{GroupID: groupID})
}

// int32Param reads a numeric management parameter; JSON numbers
// decode as float64.
func int32Param(params map[string]any, key string) int32 {
	switch v := params[key].(type) {
	case float64:
		return int32(v)
	case int32:
		return v
	case int:
		return int32(v)
	default:
		return 0
	}
}

// int32Slice reads a numeric list management parameter.
func int32Slice(value any) []int32 {
	switch vs := value.(type) {
	case []any:
		out := make([]int32, 0, len(vs))
		for _, v := range vs {
			switch n := v.(type) {
			case float64:
				out = append(out, int32(n))
			case int32:
				out = append(out, n)
			case int:
				out = append(out, int32(n))
			}
		}
		return out
	case []int32:
		return vs
	default:
		return nil
	}
}
