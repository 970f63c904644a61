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

	"github.com/sage-x-project/securechat/pkg/wire"
)

// buildHandlerTable wires the relay-addressed message kinds to their
// handlers. Addressed (client-to-client) kinds never reach this table;
// they are forwarded.
func (r *Relay) buildHandlerTable() map[wire.MessageType]handler {
	return map[wire.MessageType]handler{
		wire.TypeCreateUser:        r.handleCreateUser,
		wire.TypeConnectUser:       r.handleConnectUser,
		wire.TypeUpdatePseudo:      r.handleUpdatePseudo,
		wire.TypeCreateGroup:       r.handleGroupManagement,
		wire.TypeLeaveGroup:        r.handleGroupManagement,
		wire.TypeAddGroupMember:    r.handleGroupManagement,
		wire.TypeRemoveGroupMember: r.handleGroupManagement,
		wire.TypeRemoveContact:     r.handleRemoveContact,
	}
}

func (r *Relay) handleCreateUser(ctx *ServerContext, msg wire.Message) error {
	m, ok := msg.(*wire.CreateUserMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "CREATE_USER payload has wrong type", nil)
	}
	if _, taken := ctx.Users.FindByPseudo(m.Pseudo); taken {
		return ctx.Ack(msg, wire.AckFailed, "pseudo already taken")
	}
	u, err := ctx.Users.Create(m.Pseudo, nil)
	if err != nil {
		return ctx.Ack(msg, wire.AckFailed, "account creation failed")
	}
	ctx.BindUser(u.ID)

	now := time.Now()
	return ctx.Reply(&wire.AckConnectionMessage{
		Header: wire.Header{
			ID:        ctx.IDs.Generate(0, now.UnixMilli()),
			Timestamp: now.UnixMilli(),
			FromID:    0,
			ToID:      u.ID,
		},
		AssignedID: u.ID,
	})
}

func (r *Relay) handleConnectUser(ctx *ServerContext, msg wire.Message) error {
	m, ok := msg.(*wire.ConnectUserMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "CONNECT_USER payload has wrong type", nil)
	}
	u, found := ctx.Users.FindByPseudo(m.Pseudo)
	if !found {
		return ctx.Ack(msg, wire.AckFailed, "unknown user")
	}

	r.mu.Lock()
	_, alreadyConnected := r.byUser[u.ID]
	r.mu.Unlock()
	if alreadyConnected {
		// duplicate connect is a critical rejection: the origin
		// closes on a CRITICAL ack
		return ctx.Ack(msg, wire.AckCritical, "already connected")
	}
	ctx.BindUser(u.ID)

	now := time.Now()
	return ctx.Reply(&wire.AckConnectionMessage{
		Header: wire.Header{
			ID:        ctx.IDs.Generate(0, now.UnixMilli()),
			Timestamp: now.UnixMilli(),
			FromID:    0,
			ToID:      u.ID,
		},
		AssignedID: u.ID,
	})
}

func (r *Relay) handleUpdatePseudo(ctx *ServerContext, msg wire.Message) error {
	m, ok := msg.(*wire.UpdatePseudoMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "UPDATE_PSEUDO payload has wrong type", nil)
	}
	if ctx.ClientID == 0 {
		return ctx.Ack(msg, wire.AckFailed, "not registered")
	}
	if err := ctx.Users.UpdatePseudo(ctx.ClientID, m.NewPseudo); err != nil {
		return ctx.Ack(msg, wire.AckFailed, "pseudo update failed")
	}
	return ctx.Ack(msg, wire.AckSent, "")
}

// handleGroupManagement mutates membership and fans the change out to
// every member, admin included. Clients mirror the group locally; the
// admin's mirror update is what triggers the key rotation fan-out.
func (r *Relay) handleGroupManagement(ctx *ServerContext, msg wire.Message) error {
	m, ok := msg.(*wire.ManagementMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "management payload has wrong type", nil)
	}
	if ctx.ClientID == 0 {
		return ctx.Ack(msg, wire.AckFailed, "not registered")
	}

	switch m.Kind {
	case wire.TypeCreateGroup:
		members := int32Slice(m.Params["members"])
		g, err := ctx.Groups.Create(ctx.ClientID, members)
		if err != nil {
			return ctx.Ack(msg, wire.AckFailed, "group creation failed")
		}
		r.fanOutGroupChange(wire.TypeCreateGroup, g.GroupID, g.AdminID, g.Members, 0)
		return ctx.Ack(msg, wire.AckSent, "")

	case wire.TypeAddGroupMember:
		groupID, memberID := int32Param(m.Params, "group_id"), int32Param(m.Params, "member_id")
		g, found := ctx.Groups.Find(groupID)
		if !found {
			return ctx.Ack(msg, wire.AckFailed, "no such group")
		}
		if g.AdminID != ctx.ClientID {
			return ctx.Ack(msg, wire.AckFailed, "only the admin mutates membership")
		}
		g, err := ctx.Groups.AddMember(groupID, memberID)
		if err != nil {
			return ctx.Ack(msg, wire.AckFailed, "member add failed")
		}
		r.fanOutGroupChange(wire.TypeAddGroupMember, g.GroupID, g.AdminID, g.Members, memberID)
		return ctx.Ack(msg, wire.AckSent, "")

	case wire.TypeRemoveGroupMember:
		groupID, memberID := int32Param(m.Params, "group_id"), int32Param(m.Params, "member_id")
		g, found := ctx.Groups.Find(groupID)
		if !found {
			return ctx.Ack(msg, wire.AckFailed, "no such group")
		}
		if g.AdminID != ctx.ClientID {
			return ctx.Ack(msg, wire.AckFailed, "only the admin mutates membership")
		}
		if memberID == g.AdminID {
			return ctx.Ack(msg, wire.AckFailed, "admin cannot be removed")
		}
		g, err := ctx.Groups.RemoveMember(groupID, memberID)
		if err != nil {
			return ctx.Ack(msg, wire.AckFailed, "member removal failed")
		}
		// the removed member learns about it too, so it can drop its key
		r.fanOutGroupChange(wire.TypeRemoveGroupMember, g.GroupID, g.AdminID, append(g.Members, memberID), memberID)
		return ctx.Ack(msg, wire.AckSent, "")

	case wire.TypeLeaveGroup:
		groupID := int32Param(m.Params, "group_id")
		g, found := ctx.Groups.Find(groupID)
		if !found {
			return ctx.Ack(msg, wire.AckFailed, "no such group")
		}
		if ctx.ClientID == g.AdminID {
			return ctx.Ack(msg, wire.AckFailed, "admin cannot leave; dissolve instead")
		}
		g, err := ctx.Groups.RemoveMember(groupID, ctx.ClientID)
		if err != nil {
			return ctx.Ack(msg, wire.AckFailed, "leave failed")
		}
		r.fanOutGroupChange(wire.TypeRemoveGroupMember, g.GroupID, g.AdminID, append(g.Members, ctx.ClientID), ctx.ClientID)
		return ctx.Ack(msg, wire.AckSent, "")

	default:
		return ctx.Ack(msg, wire.AckFailed, "unsupported management kind")
	}
}

// fanOutGroupChange notifies every listed recipient of the new
// membership state.
func (r *Relay) fanOutGroupChange(kind wire.MessageType, groupID, adminID int32, recipients []int32, subjectID int32) {
	members := make([]any, 0, len(recipients))
	for _, m := range recipients {
		if kind == wire.TypeRemoveGroupMember && m == subjectID {
			continue
		}
		members = append(members, m)
	}

	now := time.Now()
	for _, recipient := range recipients {
		msg := &wire.ManagementMessage{
			Header: wire.Header{
				ID:        r.ids.Generate(0, now.UnixMilli()),
				Timestamp: now.UnixMilli(),
				FromID:    0,
				ToID:      recipient,
			},
			Kind: kind,
			Params: map[string]any{
				"group_id":  groupID,
				"admin_id":  adminID,
				"members":   members,
				"member_id": subjectID,
			},
		}
		_ = r.sendToUser(recipient, msg)
	}
}

func (r *Relay) handleRemoveContact(ctx *ServerContext, msg wire.Message) error {
	m, ok := msg.(*wire.ManagementMessage)
	if !ok {
		return wire.New(wire.KindProtocolViolation, "REMOVE_CONTACT payload has wrong type", nil)
	}
	if ctx.ClientID == 0 {
		return ctx.Ack(msg, wire.AckFailed, "not registered")
	}
	contactID := int32Param(m.Params, "contact_id")
	if !ctx.Contacts.IsContact(ctx.ClientID, contactID) {
		return ctx.Ack(msg, wire.AckFailed, "no such contact")
	}
	if err := ctx.Contacts.Remove(ctx.ClientID, contactID); err != nil {
		return ctx.Ack(msg, wire.AckFailed, "contact removal failed")
	}
	return ctx.Ack(msg, wire.AckSent, "")
}

// trackContactRequest records a forwarded CONTACT_REQUEST so the
// eventual response can resolve it in the repository.
func (r *Relay) trackContactRequest(m *wire.ContactRequestMessage) {
	req, err := r.contacts.CreateRequest(m.From(), m.To(), r.cfg.Contact.RequestTTL)
	if err != nil {
		r.log.Warn("contact request tracking failed")
		return
	}
	r.mu.Lock()
	r.pendingContacts[[2]int32{m.From(), m.To()}] = req.RequestID
	r.mu.Unlock()
}

// resolveContactRequest completes tracking when the receiver answers.
func (r *Relay) resolveContactRequest(m *wire.ContactRequestResponseMessage) {
	// the responder was the request's receiver
	key := [2]int32{m.To(), m.From()}
	r.mu.Lock()
	requestID, ok := r.pendingContacts[key]
	if ok {
		delete(r.pendingContacts, key)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if _, err := r.contacts.Resolve(requestID, m.Accepted); err != nil {
		r.log.Warn("contact request resolution failed")
	}
}

// int32Param reads a numeric management parameter; JSON decoding
// produces float64 for all numbers.
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
			if f, ok := v.(float64); ok {
				out = append(out, int32(f))
			}
		}
		return out
	case []int32:
		return vs
	default:
		return nil
	}
}
