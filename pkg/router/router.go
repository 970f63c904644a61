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

// Package router dispatches decoded packets to message handlers. The
// inbound pipeline unseals ENCRYPTED wrappers, routes the typed
// message to the handler registered for its tag, emits acknowledgments
// back to the sender, and publishes events for the front-end. Handler
// registration is a static table built at startup; the hot path is a
// single map lookup.
package router

import (
	"time"

	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/envelope"
	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// Sender delivers an outbound message to the transport.
type Sender interface {
	Send(msg wire.Message) error
}

// Context is the capability object handlers receive: the event
// publisher, a way to send replies, and the local account id. Handlers
// get no access to the router itself.
type Context struct {
	Self   int32
	Events events.Publisher
	Send   func(wire.Message) error
}

// HandlerFunc processes one inbound message.
type HandlerFunc func(ctx *Context, msg wire.Message) error

// Provider declares which message kinds a handler accepts. The
// router's dispatch table is built from a provider list at startup;
// the first provider claiming a kind wins.
type Provider struct {
	Kinds  []wire.MessageType
	Handle HandlerFunc
}

// Options configures a Router beyond its required collaborators.
type Options struct {
	// AckTTL bounds how long an outbound command waits for its
	// MESSAGE_ACK before completing as failed.
	AckTTL time.Duration
	// SweepInterval is the pending-ack sweeper cadence.
	SweepInterval time.Duration
	// Groups resolves whether an encrypted wrapper's recipient is a
	// group, for conversation-id lookup. May be nil when the process
	// never participates in groups.
	Groups repo.GroupRepo
}

// Router owns the inbound dispatch pipeline and the outbound pending
// command table.
type Router struct {
	self     int32
	handlers map[wire.MessageType]HandlerFunc
	envelope *envelope.Envelope
	store    *session.Store
	bus      *events.Bus
	sender   Sender
	acks     *AckTable
	groups   repo.GroupRepo
	ids      *idgen.Generator
}

// New builds a Router over the given collaborators and provider list.
func New(self int32, store *session.Store, env *envelope.Envelope, bus *events.Bus, sender Sender, opts Options, providers ...Provider) *Router {
	if opts.AckTTL == 0 {
		opts.AckTTL = 30 * time.Second
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 5 * time.Second
	}

	r := &Router{
		self:     self,
		handlers: make(map[wire.MessageType]HandlerFunc),
		envelope: env,
		store:    store,
		bus:      bus,
		sender:   sender,
		acks:     NewAckTable(opts.AckTTL, opts.SweepInterval),
		groups:   opts.Groups,
		ids:      idgen.NewGenerator(),
	}

	r.register(Provider{Kinds: []wire.MessageType{wire.TypeMessageAck}, Handle: r.handleAck})
	for _, p := range providers {
		r.register(p)
	}
	return r
}

func (r *Router) register(p Provider) {
	for _, kind := range p.Kinds {
		if _, taken := r.handlers[kind]; taken {
			continue
		}
		r.handlers[kind] = p.Handle
	}
}

// RegisterCommand tracks an outbound message until its ack arrives.
// The callback also fires with FAILED(timeout) when no ack comes back
// within the configured TTL.
func (r *Router) RegisterCommand(messageID string, cb AckCallback) {
	r.acks.Register(messageID, cb)
}

// HandlePacket runs the inbound pipeline for one decoded packet.
// Decode failures at this level are unrecoverable framing problems:
// the error is returned so the connection owner can close the link.
func (r *Router) HandlePacket(p wire.Packet) error {
	start := time.Now()
	msg, err := wire.ParseMessage(p)
	if err != nil {
		r.bus.Publish(events.Error{Level: events.LevelCritical, Type: events.ErrTypeProtocol, Message: err.Error()})
		metrics.MessagesProcessed.WithLabelValues(p.Type.String(), "decode_error").Inc()
		return err
	}
	err = r.Dispatch(msg)
	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	return err
}

// Dispatch unseals msg if it is an encrypted wrapper, then routes it
// to the registered handler.
func (r *Router) Dispatch(msg wire.Message) error {
	if enc, ok := msg.(*wire.EncryptedMessage); ok {
		inner, err := r.unseal(enc)
		if err != nil || inner == nil {
			return err
		}
		msg = inner
	}

	handler, ok := r.handlers[msg.Type()]
	if !ok {
		r.bus.Publish(events.Error{
			Level:   events.LevelError,
			Type:    events.ErrTypeNoHandler,
			Message: "no handler for " + msg.Type().String(),
		})
		metrics.MessagesProcessed.WithLabelValues(msg.Type().String(), "no_handler").Inc()
		return wire.New(wire.KindProtocolViolation, "no handler for "+msg.Type().String(), nil)
	}

	ctx := &Context{Self: r.self, Events: r.bus, Send: r.send}
	if err := handler(ctx, msg); err != nil {
		r.bus.Publish(events.Error{Level: events.LevelError, Type: events.ErrTypeProtocol, Message: err.Error()})
		metrics.MessagesProcessed.WithLabelValues(msg.Type().String(), "handler_error").Inc()
		r.acknowledge(msg, wire.AckFailed, err.Error())
		return err
	}

	metrics.MessagesProcessed.WithLabelValues(msg.Type().String(), "success").Inc()
	r.acknowledge(msg, wire.AckDelivered, "")
	return nil
}

// unseal decrypts an ENCRYPTED wrapper. Replay and authentication
// failures drop the message silently apart from a WARNING event; the
// connection stays up.
func (r *Router) unseal(enc *wire.EncryptedMessage) (wire.Message, error) {
	inner, err := r.envelope.Unseal(r.conversationID(enc), enc)
	if err == nil {
		return inner, nil
	}

	if werr, ok := err.(*wire.Error); ok {
		switch werr.Kind {
		case wire.KindReplayDetected, wire.KindAuthenticationFailure:
			r.bus.Publish(events.Error{
				Level:   events.LevelWarning,
				Type:    events.ErrTypeDecryption,
				Message: werr.Error(),
			})
			return nil, nil
		}
	}
	r.bus.Publish(events.Error{Level: events.LevelError, Type: events.ErrTypeDecryption, Message: err.Error()})
	return nil, err
}

// conversationID resolves which session key an encrypted wrapper was
// sealed under: the group conversation when the recipient id names a
// group, the pairwise conversation otherwise.
func (r *Router) conversationID(enc *wire.EncryptedMessage) string {
	if r.groups != nil {
		if _, ok := r.groups.Find(enc.ToID); ok {
			return session.GroupConversationID(enc.ToID)
		}
	}
	return session.PrivateConversationID(enc.FromID, enc.ToID)
}

// acknowledge emits a MESSAGE_ACK for message kinds whose sender
// expects one. Acks, key exchange traffic, and relay bookkeeping kinds
// are never acknowledged.
func (r *Router) acknowledge(msg wire.Message, status wire.AckStatus, reason string) {
	if r.sender == nil || !expectsAck(msg.Type()) || msg.MessageID() == "" {
		return
	}
	now := time.Now()
	ack := &wire.AckMessage{
		Header: wire.Header{
			ID:        r.ids.Generate(r.self, now.UnixMilli()),
			Timestamp: now.UnixMilli(),
			FromID:    r.self,
			ToID:      msg.From(),
		},
		AcknowledgedID: msg.MessageID(),
		Status:         status,
		ErrorReason:    reason,
	}
	_ = r.sender.Send(ack)
}

// MarkRead emits a READ acknowledgment for messageID to peer. The
// front-end calls this when the user actually views the message; the
// core never infers it.
func (r *Router) MarkRead(peer int32, messageID string) error {
	now := time.Now()
	ack := &wire.AckMessage{
		Header: wire.Header{
			ID:        r.ids.Generate(r.self, now.UnixMilli()),
			Timestamp: now.UnixMilli(),
			FromID:    r.self,
			ToID:      peer,
		},
		AcknowledgedID: messageID,
		Status:         wire.AckRead,
	}
	return r.sender.Send(ack)
}

// handleAck resolves the pending command for an inbound MESSAGE_ACK
// and publishes the outcome.
func (r *Router) handleAck(ctx *Context, msg wire.Message) error {
	ack, ok := msg.(*wire.AckMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "MESSAGE_ACK payload has wrong type", nil)
	}
	r.acks.Resolve(ack.AcknowledgedID, ack.Status, ack.ErrorReason)
	ctx.Events.Publish(events.MessageAcknowledged{
		MessageID: ack.AcknowledgedID,
		Status:    ack.Status,
		Reason:    ack.ErrorReason,
	})
	if ack.Status == wire.AckCritical {
		ctx.Events.Publish(events.Error{
			Level:   events.LevelCritical,
			Type:    events.ErrTypeServerReject,
			Message: ack.ErrorReason,
		})
	}
	return nil
}

func (r *Router) send(msg wire.Message) error {
	if r.sender == nil {
		return wire.New(wire.KindInternalError, "router has no sender", nil)
	}
	return r.sender.Send(msg)
}

// expectsAck reports whether a kind participates in the ack
// discipline.
func expectsAck(kind wire.MessageType) bool {
	switch kind {
	case wire.TypeText, wire.TypeMedia, wire.TypeContactRequest,
		wire.TypeContactRequestResponse, wire.TypeCreateGroup,
		wire.TypeLeaveGroup, wire.TypeAddGroupMember, wire.TypeRemoveGroupMember,
		wire.TypeRemoveContact, wire.TypeUpdatePseudo:
		return true
	default:
		return false
	}
}

// Stop halts the pending-ack sweeper and fails outstanding commands.
func (r *Router) Stop() {
	r.acks.Stop()
}
