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

// Package relay is the central server (account id 0). It pairs with
// each client connection for transport encryption, assigns account
// ids, mutates group membership, and forwards packets between clients.
// End-to-end encrypted payloads pass through opaque: nothing in this
// package can decrypt an ENCRYPTED wrapper.
package relay

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sage-x-project/securechat/internal/config"
	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/envelope"
	"github.com/sage-x-project/securechat/pkg/keyexchange"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/transport"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Relay is the packet-forwarding server.
type Relay struct {
	cfg      *config.Config
	log      logger.Logger
	users    repo.UserRepo
	groups   repo.GroupRepo
	contacts repo.ContactRepo

	store     *session.Store
	engine    *keyexchange.ServerEngine
	serverEnv *envelope.ServerEnvelope
	ids       *idgen.Generator

	srv        *transport.TCPServer
	handlers   map[wire.MessageType]handler
	nextConnID atomic.Int32

	mu     sync.Mutex
	byConn map[int32]*clientConn
	byUser map[int32]*clientConn

	// pendingContacts maps "sender:receiver" to the repository request
	// id so the eventual response can resolve it.
	pendingContacts map[[2]int32]string
}

// clientConn is one accepted connection and its pairing state.
type clientConn struct {
	connID int32
	conn   transport.Conn

	mu     sync.Mutex
	userID int32 // 0 until CREATE_USER/CONNECT_USER
}

func (c *clientConn) user() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *clientConn) bind(id int32) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// New builds a Relay over the given repositories.
func New(cfg *config.Config, log logger.Logger, users repo.UserRepo, groups repo.GroupRepo, contacts repo.ContactRepo) *Relay {
	r := &Relay{
		cfg:             cfg,
		log:             log,
		users:           users,
		groups:          groups,
		contacts:        contacts,
		store:           session.NewStoreWithThreshold(cfg.KeyExchange.RekeyThreshold),
		serverEnv:       envelope.NewServer(),
		ids:             idgen.NewGenerator(),
		byConn:          make(map[int32]*clientConn),
		byUser:          make(map[int32]*clientConn),
		pendingContacts: make(map[[2]int32]string),
	}
	r.engine = keyexchange.NewServerEngine(0, r.store, senderFunc(r.sendToConn))
	r.srv = transport.NewTCPServer(r.handleConnection)
	r.handlers = r.buildHandlerTable()
	return r
}

// senderFunc adapts the relay's connection-id addressed send to the
// key exchange engine's Sender interface.
type senderFunc func(msg wire.Message) error

func (f senderFunc) Send(msg wire.Message) error { return f(msg) }

// Listen binds addr and starts accepting clients. It returns the
// bound address.
func (r *Relay) Listen(addr string) (string, error) {
	bound, err := r.srv.Listen(addr)
	if err != nil {
		return "", err
	}
	r.log.Info("relay listening", logger.String("addr", bound))
	return bound, nil
}

// ConnHandler exposes the per-connection loop for alternate transport
// bindings (the websocket gateway hands accepted connections here).
func (r *Relay) ConnHandler() transport.Handler {
	return r.handleConnection
}

// Close stops the accept loop, drops every connection, and halts the
// pairing engine.
func (r *Relay) Close() error {
	err := r.srv.Close()
	r.engine.Stop()
	return err
}

// handleConnection owns one client connection for its lifetime.
func (r *Relay) handleConnection(conn transport.Conn) {
	connID := r.nextConnID.Add(1)
	c := &clientConn{connID: connID, conn: conn}

	r.mu.Lock()
	r.byConn[connID] = c
	r.mu.Unlock()
	defer r.dropConnection(c)

	// transport pairing starts immediately; designated control
	// traffic is SERVER_ENCRYPTED once it completes
	if err := r.engine.InitiateAsRelay(connID); err != nil {
		r.log.Error("pairing initiation failed", logger.Error(err))
		return
	}

	for {
		p, err := conn.ReadPacket()
		if err != nil {
			return
		}
		if err := r.handlePacket(c, p); err != nil {
			var werr *wire.Error
			if errors.As(err, &werr) && werr.Kind == wire.KindDecodeError {
				// framing is unrecoverable: close the link
				r.log.Error("closing connection on decode error",
					logger.String("remote", conn.RemoteAddr()), logger.Error(err))
				return
			}
			r.log.Warn("packet handling failed", logger.Error(err))
		}
	}
}

func (r *Relay) dropConnection(c *clientConn) {
	r.mu.Lock()
	delete(r.byConn, c.connID)
	if id := c.user(); id != 0 {
		if cur, ok := r.byUser[id]; ok && cur == c {
			delete(r.byUser, id)
		}
	}
	r.mu.Unlock()
	_ = c.conn.Close()
}

func (r *Relay) handlePacket(c *clientConn, p wire.Packet) error {
	msg, err := wire.ParseMessage(p)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *wire.ServerKeyExchangeMessage:
		if m.Kind != wire.TypeServerKeyExchangeResponse {
			return wire.New(wire.KindProtocolViolation, "client sent SERVER_KEY_EXCHANGE", nil)
		}
		// pairing state is keyed by connection, not account: the
		// client has no id yet at this point
		m.FromID = c.connID
		return r.engine.HandleResponse(m)

	case *wire.ServerEncryptedMessage:
		key, ok := r.engine.PairingKey(c.connID)
		if !ok {
			return wire.New(wire.KindNoSession, "server envelope before pairing completed", nil)
		}
		inner, err := r.serverEnv.Unseal(key, m)
		if err != nil {
			return err
		}
		return r.handleMessage(c, inner)

	default:
		return r.handleMessage(c, msg)
	}
}

// handleMessage routes a (transport-decrypted) message: addressed
// packets are forwarded between clients; relay-addressed packets go
// through the handler table.
func (r *Relay) handleMessage(c *clientConn, msg wire.Message) error {
	ctx := r.contextFor(c)

	switch m := msg.(type) {
	case *wire.ContactRequestMessage:
		r.trackContactRequest(m)
	case *wire.ContactRequestResponseMessage:
		r.resolveContactRequest(m)
	}

	if msg.To() != 0 {
		return r.forward(ctx, msg)
	}

	h, ok := r.handlers[msg.Type()]
	if !ok {
		_ = ctx.Ack(msg, wire.AckFailed, "unsupported operation")
		return wire.New(wire.KindProtocolViolation, "no relay handler for "+msg.Type().String(), nil)
	}
	return h(ctx, msg)
}

func (r *Relay) contextFor(c *clientConn) *ServerContext {
	return &ServerContext{
		Users:    r.users,
		Groups:   r.groups,
		Contacts: r.contacts,
		ClientID: c.user(),
		Reply: func(msg wire.Message) error {
			return r.deliver(c, msg)
		},
		SendTo:   r.sendToUser,
		BindUser: func(id int32) { r.bindUser(c, id) },
		IDs:      r.ids,
	}
}

func (r *Relay) bindUser(c *clientConn, id int32) {
	c.bind(id)
	r.mu.Lock()
	r.byUser[id] = c
	r.mu.Unlock()
}

// forward relays an addressed message to its recipient, acknowledging
// the origin with SENT on success. Group-addressed messages fan out to
// every current member except the sender.
func (r *Relay) forward(ctx *ServerContext, msg wire.Message) error {
	if g, ok := r.groups.Find(msg.To()); ok {
		for _, member := range g.Members {
			if member == msg.From() {
				continue
			}
			_ = r.sendToUser(member, msg)
		}
		if expectsServerAck(msg.Type()) {
			return ctx.Ack(msg, wire.AckSent, "")
		}
		return nil
	}

	if err := r.sendToUser(msg.To(), msg); err != nil {
		if expectsServerAck(msg.Type()) {
			_ = ctx.Ack(msg, wire.AckFailed, "recipient unavailable")
		}
		return err
	}
	if expectsServerAck(msg.Type()) {
		return ctx.Ack(msg, wire.AckSent, "")
	}
	return nil
}

// sendToUser delivers msg to a connected account.
func (r *Relay) sendToUser(userID int32, msg wire.Message) error {
	r.mu.Lock()
	c, ok := r.byUser[userID]
	r.mu.Unlock()
	if !ok {
		return wire.New(wire.KindNoSession, "recipient not connected", nil)
	}
	return r.deliver(c, msg)
}

// sendToConn delivers pairing traffic addressed by connection id.
func (r *Relay) sendToConn(msg wire.Message) error {
	r.mu.Lock()
	c, ok := r.byConn[msg.To()]
	r.mu.Unlock()
	if !ok {
		return wire.New(wire.KindNoSession, "connection gone", nil)
	}
	return r.writeMessage(c, msg)
}

// deliver transport-encrypts eligible kinds before writing. Key
// exchange traffic and wrappers are never re-wrapped.
func (r *Relay) deliver(c *clientConn, msg wire.Message) error {
	if serverWrapEligible(msg.Type()) {
		if key, ok := r.engine.PairingKey(c.connID); ok {
			wrapped, err := r.serverEnv.Seal(key, msg)
			if err != nil {
				return err
			}
			return r.writeMessage(c, wrapped)
		}
	}
	return r.writeMessage(c, msg)
}

func (r *Relay) writeMessage(c *clientConn, msg wire.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	metrics.MessagesProcessed.WithLabelValues(msg.Type().String(), "relayed").Inc()
	return c.conn.WritePacket(wire.Packet{
		Type:    msg.Type(),
		From:    msg.From(),
		To:      msg.To(),
		Payload: payload,
	})
}

// serverWrapEligible reports whether a kind travels inside the
// client-relay transport envelope.
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

// expectsServerAck reports whether the relay acknowledges processing a
// kind with a server-generated SENT/FAILED ack.
func expectsServerAck(kind wire.MessageType) bool {
	switch kind {
	case wire.TypeText, wire.TypeMedia, wire.TypeContactRequest,
		wire.TypeContactRequestResponse, wire.TypeEncrypted:
		return true
	default:
		return false
	}
}
