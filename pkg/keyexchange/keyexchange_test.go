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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// senderFunc adapts a function to the Sender interface.
type senderFunc func(wire.Message) error

func (f senderFunc) Send(msg wire.Message) error { return f(msg) }

// party is one simulated client: its own session store and engines,
// wired to the test network.
type party struct {
	id     int32
	store  *session.Store
	priv   *PrivateEngine
	group  *GroupEngine
	comp   *Composite
}

// network delivers messages synchronously to the recipient's
// composite dispatcher, so a full exchange completes within the
// initiating call stack.
type network struct {
	mu      sync.Mutex
	parties map[int32]*party
	groups  *repo.MemoryGroupRepo
}

func newNetwork() *network {
	return &network{parties: make(map[int32]*party), groups: repo.NewMemoryGroupRepo()}
}

func (n *network) addParty(t *testing.T, id int32) *party {
	t.Helper()
	p := &party{id: id, store: session.NewStore()}
	send := senderFunc(func(msg wire.Message) error {
		n.mu.Lock()
		target, ok := n.parties[msg.To()]
		n.mu.Unlock()
		if !ok {
			return nil // peer unreachable: message silently dropped
		}
		return target.comp.Dispatch(msg)
	})
	p.priv = NewPrivateEngine(id, p.store, send)
	p.group = NewGroupEngine(id, p.store, send, n.groups, p.priv)
	p.comp = NewComposite(p.priv, p.group, n.groups)

	n.mu.Lock()
	n.parties[id] = p
	n.mu.Unlock()
	t.Cleanup(p.comp.Stop)
	return p
}

func (p *party) key(t *testing.T, conv string) []byte {
	t.Helper()
	key, ok := p.store.GetKey(conv)
	require.True(t, ok, "no key for %s on party %d", conv, p.id)
	return key
}

func TestECDHAgreement(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)
	bob := n.addParty(t, 2)

	require.NoError(t, alice.priv.EnsureSession(2))

	conv := session.PrivateConversationID(1, 2)
	aliceKey := alice.key(t, conv)
	bobKey := bob.key(t, conv)
	assert.Equal(t, aliceKey, bobKey)
	assert.Len(t, aliceKey, 32)
}

func TestSelfExchangeRejected(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)

	err := alice.priv.Initiate(1)
	require.Error(t, err)
	werr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.KindInvalidPeerID, werr.Kind)
	assert.False(t, werr.Recoverable)
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)
	n.addParty(t, 2)

	require.NoError(t, alice.priv.EnsureSession(2))
	conv := session.PrivateConversationID(1, 2)
	first := alice.key(t, conv)

	// second call must not rotate the established key
	require.NoError(t, alice.priv.EnsureSession(2))
	assert.Equal(t, first, alice.key(t, conv))
}

func TestDerivedKeysDifferPerConversation(t *testing.T) {
	a, err := generateEphemeral()
	require.NoError(t, err)
	b, err := generateEphemeral()
	require.NoError(t, err)

	k1, err := deriveSessionKey(a, b.PublicKey(), "private_1_2")
	require.NoError(t, err)
	k2, err := deriveSessionKey(a, b.PublicKey(), "private_1_3")
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.NotEqual(t, k1, k2)
}

func TestDerivationSymmetricAcrossRoles(t *testing.T) {
	a, err := generateEphemeral()
	require.NoError(t, err)
	b, err := generateEphemeral()
	require.NoError(t, err)

	ka, err := deriveSessionKey(a, b.PublicKey(), "private_1_2")
	require.NoError(t, err)
	kb, err := deriveSessionKey(b, a.PublicKey(), "private_1_2")
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

// queueSender holds messages for manual delivery, simulating two
// initiations crossing on the wire.
type queueSender struct {
	mu    sync.Mutex
	queue []wire.Message
}

func (q *queueSender) Send(msg wire.Message) error {
	q.mu.Lock()
	q.queue = append(q.queue, msg)
	q.mu.Unlock()
	return nil
}

func (q *queueSender) pop(t *testing.T) wire.Message {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.queue)
	msg := q.queue[0]
	q.queue = q.queue[1:]
	return msg
}

func TestSimultaneousInitiationConverges(t *testing.T) {
	aliceStore, bobStore := session.NewStore(), session.NewStore()
	aliceOut, bobOut := &queueSender{}, &queueSender{}

	alice := NewPrivateEngine(1, aliceStore, aliceOut)
	bob := NewPrivateEngine(2, bobStore, bobOut)
	t.Cleanup(alice.Stop)
	t.Cleanup(bob.Stop)

	// both sides initiate before either request is delivered
	require.NoError(t, alice.Initiate(2))
	require.NoError(t, bob.Initiate(1))

	aliceReq := aliceOut.pop(t).(*wire.KeyExchangeMessage)
	bobReq := bobOut.pop(t).(*wire.KeyExchangeMessage)

	// Alice (lower id) wins the tie-break: Bob's crossing request is
	// dropped on her side, no response is produced.
	require.NoError(t, alice.HandleRequest(bobReq))
	aliceOut.mu.Lock()
	assert.Empty(t, aliceOut.queue)
	aliceOut.mu.Unlock()

	// Bob loses: he discards his own initiation and responds to Alice.
	require.NoError(t, bob.HandleRequest(aliceReq))
	bobResp := bobOut.pop(t).(*wire.KeyExchangeMessage)
	require.Equal(t, wire.TypeKeyExchangeResponse, bobResp.Kind)

	require.NoError(t, alice.HandleResponse(bobResp))

	conv := session.PrivateConversationID(1, 2)
	aliceKey, ok := aliceStore.GetKey(conv)
	require.True(t, ok)
	bobKey, ok := bobStore.GetKey(conv)
	require.True(t, ok)
	assert.Equal(t, aliceKey, bobKey)
}

func TestResponseWithoutPendingRejected(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)

	eph, err := generateEphemeral()
	require.NoError(t, err)
	spki, err := marshalSPKI(eph.PublicKey())
	require.NoError(t, err)

	err = alice.priv.HandleResponse(&wire.KeyExchangeMessage{
		Header:        wire.Header{ID: "x", Timestamp: 1, FromID: 9, ToID: 1},
		Kind:          wire.TypeKeyExchangeResponse,
		PublicKeySPKI: spki,
	})
	require.Error(t, err)
	werr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.KindNoPendingExchange, werr.Kind)
}

func TestSecureConversationFutureCompletes(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)
	n.addParty(t, 2)

	select {
	case err := <-alice.priv.InitiateSecureConversation(2, 5*time.Second):
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("future never completed")
	}
	assert.True(t, alice.priv.HasSession(2))
}

func TestSecureConversationFutureTimesOut(t *testing.T) {
	n := newNetwork()
	alice := n.addParty(t, 1)
	// peer 9 is never added to the network: requests vanish

	var failedPeer int32
	var reason string
	var mu sync.Mutex
	alice.priv.SubscribeFailure(func(peer int32, r string) {
		mu.Lock()
		failedPeer, reason = peer, r
		mu.Unlock()
	})

	start := time.Now()
	select {
	case err := <-alice.priv.InitiateSecureConversation(9, 50*time.Millisecond):
		require.Error(t, err)
		werr, ok := err.(*wire.Error)
		require.True(t, ok)
		assert.Equal(t, wire.KindTimeout, werr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("future never completed")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, alice.priv.HasSession(9))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(9), failedPeer)
	assert.NotEmpty(t, reason)
}

func TestGroupCreationDistributesKey(t *testing.T) {
	n := newNetwork()
	admin := n.addParty(t, 1)
	bob := n.addParty(t, 2)
	carol := n.addParty(t, 3)

	// pairwise sessions must exist before the wrapped key can travel
	require.NoError(t, admin.priv.EnsureSession(2))
	require.NoError(t, admin.priv.EnsureSession(3))

	g, err := admin.group.CreateGroup([]int32{2, 3})
	require.NoError(t, err)

	conv := session.GroupConversationID(g.GroupID)
	adminKey := admin.key(t, conv)
	assert.Len(t, adminKey, 32)
	assert.Equal(t, adminKey, bob.key(t, conv))
	assert.Equal(t, adminKey, carol.key(t, conv))
}

func TestGroupRotatesOnMembershipChange(t *testing.T) {
	n := newNetwork()
	admin := n.addParty(t, 1)
	bob := n.addParty(t, 2)
	carol := n.addParty(t, 3)
	dave := n.addParty(t, 4)

	require.NoError(t, admin.priv.EnsureSession(2))
	require.NoError(t, admin.priv.EnsureSession(3))
	require.NoError(t, admin.priv.EnsureSession(4))

	g, err := admin.group.CreateGroup([]int32{2, 3})
	require.NoError(t, err)
	conv := session.GroupConversationID(g.GroupID)
	oldKey := append([]byte(nil), admin.key(t, conv)...)

	_, err = admin.group.AddMember(g.GroupID, 4)
	require.NoError(t, err)

	newKey := admin.key(t, conv)
	assert.NotEqual(t, oldKey, newKey, "membership change must rotate the key")
	for _, p := range []*party{bob, carol, dave} {
		assert.Equal(t, newKey, p.key(t, conv), "party %d missing rotated key", p.id)
	}

	// removal rotates again and the removed member keeps only a stale key
	_, err = admin.group.RemoveMember(g.GroupID, 2)
	require.NoError(t, err)
	latest := admin.key(t, conv)
	assert.NotEqual(t, newKey, latest)
	assert.Equal(t, latest, carol.key(t, conv))
	assert.Equal(t, latest, dave.key(t, conv))
	assert.NotEqual(t, latest, bob.key(t, conv))
}

func TestGroupDistributionRequiresPrivateSession(t *testing.T) {
	n := newNetwork()
	admin := n.addParty(t, 1)

	// member 9 is unreachable, so no private session can form and the
	// wrapped key cannot travel; creation stores the group key locally
	// but reports the distribution as retryable
	_, err := admin.group.CreateGroup([]int32{9})
	require.Error(t, err)
	werr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.True(t, werr.Recoverable)
}

func TestCompositeRoutesByTargetKind(t *testing.T) {
	n := newNetwork()
	admin := n.addParty(t, 1)
	n.addParty(t, 2)

	require.NoError(t, admin.priv.EnsureSession(2))
	g, err := admin.group.CreateGroup([]int32{2})
	require.NoError(t, err)

	assert.True(t, admin.comp.HasSession(g.GroupID)) // group id routes to group engine
	assert.True(t, admin.comp.HasSession(2))         // peer id routes to private engine

	require.NoError(t, admin.comp.Invalidate(g.GroupID))
	assert.False(t, admin.comp.HasSession(g.GroupID))
	assert.True(t, admin.comp.HasSession(2))
}

func TestWithRetryStopsOnNonRecoverable(t *testing.T) {
	calls := 0
	err := WithRetry(3, func() error {
		calls++
		return wire.New(wire.KindInvalidPeerID, "bad peer", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = WithRetry(3, func() error {
		calls++
		return wire.New(wire.KindTimeout, "slow", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = WithRetry(3, func() error {
		calls++
		if calls < 2 {
			return wire.New(wire.KindStorageFailure, "flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
