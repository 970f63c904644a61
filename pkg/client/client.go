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

// Package client is the reference chat client: it pairs with the
// relay for transport encryption, registers an account, runs the
// inbound router, and exposes the secure-conversation and messaging
// surface the front-end drives.
package client

import (
	"sync"
	"time"

	"github.com/sage-x-project/securechat/internal/config"
	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/envelope"
	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/keyexchange"
	"github.com/sage-x-project/securechat/pkg/router"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/transport"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Client is one connected chat account.
type Client struct {
	cfg *config.Config
	log logger.Logger
	bus *events.Bus
	ids *idgen.Generator

	conn      transport.Conn
	store     *session.Store
	env       *envelope.Envelope
	serverEnv *envelope.ServerEnvelope
	pairing   *keyexchange.ServerEngine
	groups    *repo.MemoryGroupRepo

	// set once the relay assigns the account id
	self    int32
	private *keyexchange.PrivateEngine
	group   *keyexchange.GroupEngine
	comp    *keyexchange.Composite
	router  *router.Router

	paired     chan struct{}
	pairedOnce sync.Once
	connected  chan struct{}
	readDone   chan struct{}
}

// New builds an unconnected Client.
func New(cfg *config.Config, log logger.Logger) *Client {
	store := session.NewStoreWithThreshold(cfg.KeyExchange.RekeyThreshold)
	c := &Client{
		cfg:       cfg,
		log:       log,
		bus:       events.NewBus(),
		ids:       idgen.NewGenerator(),
		store:     store,
		env:       envelope.New(store),
		serverEnv: envelope.NewServer(),
		groups:    repo.NewMemoryGroupRepo(),
		paired:    make(chan struct{}),
		connected: make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	c.pairing = keyexchange.NewServerEngine(0, store, clientSender{c})
	return c
}

// clientSender routes engine output through the client's transport
// wrapping policy.
type clientSender struct{ c *Client }

func (s clientSender) Send(msg wire.Message) error { return s.c.send(msg) }

// Events exposes the client's broker for front-end subscriptions.
func (c *Client) Events() *events.Bus { return c.bus }

// Self returns the relay-assigned account id, 0 before registration.
func (c *Client) Self() int32 { return c.self }

// SessionStore exposes the session store for inspection (stats,
// rotation checks); mutation stays with the engines.
func (c *Client) SessionStore() *session.Store { return c.store }

// Connect dials the relay and starts the read loop. The relay opens
// with a transport key exchange; Connect returns once that pairing
// completes.
func (c *Client) Connect(addr string) error {
	conn, err := transport.DialTCP(addr)
	if err != nil {
		return err
	}
	c.conn = conn
	go c.readLoop()

	select {
	case <-c.paired:
		return nil
	case <-time.After(time.Duration(c.cfg.KeyExchange.TimeoutSeconds) * time.Second):
		_ = conn.Close()
		return wire.New(wire.KindTimeout, "relay pairing timed out", nil)
	}
}

// Register creates the account on the relay and waits for the
// assigned id.
func (c *Client) Register(pseudo string) (int32, error) {
	return c.hello(&wire.CreateUserMessage{Header: c.newHeader(0), Pseudo: pseudo})
}

// Reconnect identifies an existing account by pseudonym.
func (c *Client) Reconnect(pseudo string) (int32, error) {
	return c.hello(&wire.ConnectUserMessage{Header: c.newHeader(0), Pseudo: pseudo})
}

func (c *Client) hello(msg wire.Message) (int32, error) {
	if err := c.send(msg); err != nil {
		return 0, err
	}
	select {
	case <-c.connected:
		return c.self, nil
	case <-time.After(time.Duration(c.cfg.KeyExchange.TimeoutSeconds) * time.Second):
		return 0, wire.New(wire.KindTimeout, "relay never acknowledged the connection", nil)
	}
}

// InitiateSecureConversation starts (or joins) a key exchange with
// peer and returns the one-shot completion channel.
func (c *Client) InitiateSecureConversation(peer int32) <-chan error {
	done := make(chan error, 1)
	if c.private == nil {
		done <- wire.New(wire.KindNoSession, "not registered", nil)
		return done
	}
	timeout := time.Duration(c.cfg.KeyExchange.TimeoutSeconds) * time.Second
	return c.private.InitiateSecureConversation(peer, timeout)
}

// SendText sends a TEXT message to a peer or group, sealed end-to-end
// when policy and session state allow. It returns the message id so
// callers can track the ack.
func (c *Client) SendText(to int32, body string, onAck router.AckCallback) (string, error) {
	msg := &wire.TextMessage{Header: c.newHeader(to), Body: body}
	if err := c.sendUserMessage(msg, onAck); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SendMedia sends a MEDIA reference message.
func (c *Client) SendMedia(to int32, mediaType, url, caption string, onAck router.AckCallback) (string, error) {
	msg := &wire.MediaMessage{Header: c.newHeader(to), MediaType: mediaType, URL: url, Caption: caption}
	if err := c.sendUserMessage(msg, onAck); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SendContactRequest asks peer to connect.
func (c *Client) SendContactRequest(to int32, pseudo string, onAck router.AckCallback) (string, error) {
	msg := &wire.ContactRequestMessage{Header: c.newHeader(to), RequesterPseudo: pseudo}
	if err := c.sendUserMessage(msg, onAck); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// RespondContactRequest answers a contact request from peer.
func (c *Client) RespondContactRequest(to int32, accepted bool) error {
	return c.send(&wire.ContactRequestResponseMessage{Header: c.newHeader(to), Accepted: accepted})
}

// CreateGroup asks the relay to create a group with the given
// members. The relay's fan-out triggers the local key distribution
// once it names this account as admin.
func (c *Client) CreateGroup(members []int32) error {
	ms := make([]any, len(members))
	for i, m := range members {
		ms[i] = m
	}
	msg := &wire.ManagementMessage{
		Header: c.newHeader(0),
		Kind:   wire.TypeCreateGroup,
		Params: map[string]any{"members": ms},
	}
	return c.send(msg)
}

// AddGroupMember asks the relay to add memberID; only the admin's
// request succeeds.
func (c *Client) AddGroupMember(groupID, memberID int32) error {
	return c.send(wire.NewAddGroupMemberMessage(c.newHeader(0), groupID, memberID))
}

// RemoveGroupMember asks the relay to remove memberID.
func (c *Client) RemoveGroupMember(groupID, memberID int32) error {
	return c.send(wire.NewRemoveGroupMemberMessage(c.newHeader(0), groupID, memberID))
}

// LeaveGroup removes this account from groupID.
func (c *Client) LeaveGroup(groupID int32) error {
	return c.send(wire.NewLeaveGroupMessage(c.newHeader(0), groupID))
}

// MarkRead emits a READ acknowledgment; the front-end calls it when
// the user views the message.
func (c *Client) MarkRead(peer int32, messageID string) error {
	if c.router == nil {
		return wire.New(wire.KindNoSession, "not registered", nil)
	}
	return c.router.MarkRead(peer, messageID)
}

// HasSecureSession reports whether a session key exists for target.
func (c *Client) HasSecureSession(target int32) bool {
	if c.comp == nil {
		return false
	}
	return c.comp.HasSession(target)
}

// Close tears down the connection and engines. Pending commands
// complete as failed.
func (c *Client) Close() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		<-c.readDone
	}
	if c.comp != nil {
		c.comp.Stop()
	}
	c.pairing.Stop()
	if c.router != nil {
		c.router.Stop()
	}
	c.bus.Close()
	return err
}

// sendUserMessage applies the end-to-end sealing policy, registers the
// ack command, and writes the result.
func (c *Client) sendUserMessage(msg wire.Message, onAck router.AckCallback) error {
	if c.router == nil {
		return wire.New(wire.KindNoSession, "not registered", nil)
	}

	out := msg
	if c.shouldSeal(msg) {
		sealed, err := c.env.Seal(c.conversationID(msg.To()), msg)
		if err != nil {
			return err
		}
		out = sealed
	}

	if onAck != nil {
		c.router.RegisterCommand(msg.MessageID(), onAck)
	}
	return c.send(out)
}

// shouldSeal is the outbound encryption policy: encryption enabled,
// the target is another client (or group), the kind is encryptable,
// and a session key exists.
func (c *Client) shouldSeal(msg wire.Message) bool {
	if !c.cfg.Encryption.Enabled || msg.To() == 0 {
		return false
	}
	if !envelope.ShouldEncrypt(msg.Type()) {
		return false
	}
	return c.store.Has(c.conversationID(msg.To()))
}

// conversationID resolves a target id to its session scope.
func (c *Client) conversationID(target int32) string {
	if _, ok := c.groups.Find(target); ok {
		return session.GroupConversationID(target)
	}
	return session.PrivateConversationID(c.self, target)
}

// send writes one message to the relay link, transport-encrypting
// eligible kinds once pairing is complete.
func (c *Client) send(msg wire.Message) error {
	out := msg
	if serverWrapEligible(msg.Type()) {
		if key, ok := c.pairing.PairingKey(0); ok {
			sealed, err := c.serverEnv.Seal(key, msg)
			if err != nil {
				return err
			}
			out = sealed
		}
	}
	payload, err := out.Encode()
	if err != nil {
		return err
	}
	return c.conn.WritePacket(wire.Packet{
		Type:    out.Type(),
		From:    out.From(),
		To:      out.To(),
		Payload: payload,
	})
}

func (c *Client) newHeader(to int32) wire.Header {
	now := time.Now()
	return wire.Header{
		ID:        c.ids.Generate(c.self, now.UnixMilli()),
		Timestamp: now.UnixMilli(),
		FromID:    c.self,
		ToID:      to,
	}
}

// serverWrapEligible mirrors the relay's transport-envelope policy:
// key exchange traffic and wrappers are never re-wrapped.
func serverWrapEligible(kind wire.MessageType) bool {
	switch kind {
	case wire.TypeKeyExchange, wire.TypeKeyExchangeResponse,
		wire.TypeServerKeyExchange, wire.TypeServerKeyExchangeResponse,
		wire.TypeEncrypted, wire.TypeServerEncrypted, wire.TypeNone:
		return false
	default:
		return true
	}
}
