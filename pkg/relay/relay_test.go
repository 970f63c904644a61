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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/internal/config"
	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/logger"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/wire"
)

func newTestRelay() *Relay {
	return New(config.Default(), logger.NewLogger(io.Discard, logger.ErrorLevel),
		repo.NewMemoryUserRepo(), repo.NewMemoryGroupRepo(), repo.NewMemoryContactRepo())
}

// capturingContext builds a ServerContext whose sends are recorded
// instead of hitting a socket.
func capturingContext(r *Relay, clientID int32) (*ServerContext, *[]wire.Message) {
	var sent []wire.Message
	boundID := int32(0)
	ctx := &ServerContext{
		Users:    r.users,
		Groups:   r.groups,
		Contacts: r.contacts,
		ClientID: clientID,
		Reply: func(msg wire.Message) error {
			sent = append(sent, msg)
			return nil
		},
		SendTo: func(userID int32, msg wire.Message) error {
			sent = append(sent, msg)
			return nil
		},
		BindUser: func(id int32) { boundID = id },
		IDs:      idgen.NewGenerator(),
	}
	_ = boundID
	return ctx, &sent
}

func TestCreateUserAssignsID(t *testing.T) {
	r := newTestRelay()
	ctx, sent := capturingContext(r, 0)

	msg := &wire.CreateUserMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 0, ToID: 0},
		Pseudo: "alice",
	}
	require.NoError(t, r.handleCreateUser(ctx, msg))

	require.Len(t, *sent, 1)
	ack, ok := (*sent)[0].(*wire.AckConnectionMessage)
	require.True(t, ok)
	assert.NotZero(t, ack.AssignedID)

	u, found := r.users.FindByPseudo("alice")
	require.True(t, found)
	assert.Equal(t, u.ID, ack.AssignedID)
}

func TestCreateUserRejectsDuplicatePseudo(t *testing.T) {
	r := newTestRelay()
	_, err := r.users.Create("alice", nil)
	require.NoError(t, err)

	ctx, sent := capturingContext(r, 0)
	msg := &wire.CreateUserMessage{
		Header: wire.Header{ID: "m1", Timestamp: 1, FromID: 0, ToID: 0},
		Pseudo: "alice",
	}
	require.NoError(t, r.handleCreateUser(ctx, msg))

	require.Len(t, *sent, 1)
	ack, ok := (*sent)[0].(*wire.AckMessage)
	require.True(t, ok)
	assert.Equal(t, wire.AckFailed, ack.Status)
}

func TestGroupManagementRequiresAdmin(t *testing.T) {
	r := newTestRelay()
	g, err := r.groups.Create(1, []int32{2, 3})
	require.NoError(t, err)

	// account 2 is not the admin
	ctx, sent := capturingContext(r, 2)
	msg := wire.NewAddGroupMemberMessage(
		wire.Header{ID: "m1", Timestamp: 1, FromID: 2, ToID: 0}, g.GroupID, 4)
	require.NoError(t, r.handleGroupManagement(ctx, msg))

	require.Len(t, *sent, 1)
	ack, ok := (*sent)[0].(*wire.AckMessage)
	require.True(t, ok)
	assert.Equal(t, wire.AckFailed, ack.Status)

	refreshed, _ := r.groups.Find(g.GroupID)
	assert.False(t, refreshed.HasMember(4))
}

func TestAdminCannotBeRemoved(t *testing.T) {
	r := newTestRelay()
	g, err := r.groups.Create(1, []int32{2})
	require.NoError(t, err)

	ctx, sent := capturingContext(r, 1)
	msg := wire.NewRemoveGroupMemberMessage(
		wire.Header{ID: "m1", Timestamp: 1, FromID: 1, ToID: 0}, g.GroupID, 1)
	require.NoError(t, r.handleGroupManagement(ctx, msg))

	require.Len(t, *sent, 1)
	ack := (*sent)[0].(*wire.AckMessage)
	assert.Equal(t, wire.AckFailed, ack.Status)
}

func TestServerWrapPolicy(t *testing.T) {
	assert.True(t, serverWrapEligible(wire.TypeText))
	assert.True(t, serverWrapEligible(wire.TypeMessageAck))
	assert.True(t, serverWrapEligible(wire.TypeAckConnection))
	assert.False(t, serverWrapEligible(wire.TypeKeyExchange))
	assert.False(t, serverWrapEligible(wire.TypeServerKeyExchangeResponse))
	assert.False(t, serverWrapEligible(wire.TypeEncrypted))
	assert.False(t, serverWrapEligible(wire.TypeServerEncrypted))
}

func TestParamCoercion(t *testing.T) {
	params := map[string]any{"group_id": float64(7), "members": []any{float64(1), float64(2)}}
	assert.Equal(t, int32(7), int32Param(params, "group_id"))
	assert.Equal(t, []int32{1, 2}, int32Slice(params["members"]))
	assert.Zero(t, int32Param(params, "missing"))
	assert.Nil(t, int32Slice(params["missing"]))
}
