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
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sage-x-project/securechat/internal/idgen"
	"github.com/sage-x-project/securechat/internal/metrics"
	"github.com/sage-x-project/securechat/internal/repo"
	"github.com/sage-x-project/securechat/pkg/envelope"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/wire"
)

// pendingAck tracks one outstanding group-key distribution awaiting
// the member's GroupKeyAckMessage, with the same TTL/sweep idiom the
// private engine uses for its own pending table.
type pendingAck struct {
	groupID, memberID int32
	expiresAt         time.Time
}

// GroupEngine distributes and rotates group keys. The group key is a
// single AES-256 secret shared by all current members; only the admin
// generates and rotates it. Wrapping of the key for each recipient
// reuses pkg/envelope's AEAD construction over that recipient's
// already-established private session key.
type GroupEngine struct {
	self    int32
	store   *session.Store
	sender  Sender
	groups  repo.GroupRepo
	private *PrivateEngine
	ids     *idgen.Generator

	mu    sync.Mutex
	acks  map[string]*pendingAck
	acked map[string]struct{} // groupID:memberID that have acked, cleared on rotation

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
}

// NewGroupEngine builds a GroupEngine for account self.
func NewGroupEngine(self int32, store *session.Store, sender Sender, groups repo.GroupRepo, private *PrivateEngine) *GroupEngine {
	e := &GroupEngine{
		self: self, store: store, sender: sender, groups: groups, private: private,
		ids:         idgen.NewGenerator(),
		acks:        make(map[string]*pendingAck),
		acked:       make(map[string]struct{}),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	e.cleanupTicker = time.NewTicker(SweepInterval)
	go e.cleanupLoop()
	return e
}

// CreateGroup generates a fresh AES-256 group key, registers the group
// with the repository, stores the key locally, and fans the wrapped
// key out to every member except the admin itself.
func (e *GroupEngine) CreateGroup(members []int32) (repo.Group, error) {
	g, err := e.groups.Create(e.self, members)
	if err != nil {
		return repo.Group{}, wire.New(wire.KindStorageFailure, "create group", err)
	}

	key, err := randomKey()
	if err != nil {
		return repo.Group{}, wire.New(wire.KindCryptoFailure, "generate group key", err)
	}
	e.store.Store(session.GroupConversationID(g.GroupID), key)

	for _, member := range g.Members {
		if member == e.self {
			continue
		}
		if err := e.distribute(g.GroupID, member, key); err != nil {
			return g, err
		}
	}
	metrics.GroupRekeysTotal.WithLabelValues("membership_change").Inc()
	return g, nil
}

// AddMember rotates the group key and fans the new key out to every
// member, including the one just added.
func (e *GroupEngine) AddMember(groupID, memberID int32) (repo.Group, error) {
	g, err := e.groups.AddMember(groupID, memberID)
	if err != nil {
		return repo.Group{}, wire.New(wire.KindStorageFailure, "add group member", err)
	}
	if err := e.rotateAndFanOut(g); err != nil {
		return g, err
	}
	return g, nil
}

// RemoveMember rotates the group key and fans it out to the remaining
// members. Rotation is mandatory on removal: the departed member must
// not be able to read anything sent afterwards.
func (e *GroupEngine) RemoveMember(groupID, memberID int32) (repo.Group, error) {
	g, err := e.groups.RemoveMember(groupID, memberID)
	if err != nil {
		return repo.Group{}, wire.New(wire.KindStorageFailure, "remove group member", err)
	}
	if err := e.rotateAndFanOut(g); err != nil {
		return g, err
	}
	return g, nil
}

func (e *GroupEngine) rotateAndFanOut(g repo.Group) error {
	key, err := randomKey()
	if err != nil {
		return wire.New(wire.KindCryptoFailure, "generate group key", err)
	}
	e.store.Store(session.GroupConversationID(g.GroupID), key) // Store() resets counters atomically

	e.mu.Lock()
	for k := range e.acked {
		delete(e.acked, k)
	}
	e.mu.Unlock()

	for _, member := range g.Members {
		if member == e.self {
			continue
		}
		if err := e.distribute(g.GroupID, member, key); err != nil {
			return err
		}
	}
	metrics.GroupRekeysTotal.WithLabelValues("membership_change").Inc()
	return nil
}

// distribute wraps key under the private session key already shared
// with member, establishing one first if necessary, and sends the
// GroupKeyDistributionMessage.
func (e *GroupEngine) distribute(groupID, member int32, key []byte) error {
	if !e.private.HasSession(member) {
		if err := e.private.Initiate(member); err != nil {
			return err
		}
		if !e.private.HasSession(member) {
			// The wrapped key cannot travel until the private
			// exchange completes; callers retry distribution once the
			// private engine's completion listener fires.
			return wire.New(wire.KindTimeout, fmt.Sprintf("private session with %d not yet established", member), nil)
		}
	}

	privConv := session.PrivateConversationID(e.self, member)
	privKey, _ := e.store.GetKey(privConv)
	wrapped, err := envelope.SealBytes(privKey, key)
	if err != nil {
		return err
	}

	msg := &wire.GroupKeyDistributionMessage{
		FromID: e.self, ToID: member, GroupID: groupID, EncryptedKey: wrapped,
	}

	e.mu.Lock()
	e.acks[ackKey(groupID, member)] = &pendingAck{groupID: groupID, memberID: member, expiresAt: time.Now().Add(PendingTTL)}
	e.mu.Unlock()

	metrics.KeyExchangesInitiated.WithLabelValues("group").Inc()
	if err := e.sender.Send(msg); err != nil {
		return wire.New(wire.KindTimeout, "send group key distribution", err)
	}
	return nil
}

// HandleDistribution processes an inbound 0xFF group key distribution:
// unwrap it under the sender's already-established private session
// key, store it, and acknowledge.
func (e *GroupEngine) HandleDistribution(msg *wire.GroupKeyDistributionMessage) error {
	peer := msg.From()
	privConv := session.PrivateConversationID(e.self, peer)
	privKey, ok := e.store.GetKey(privConv)
	if !ok {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return wire.New(wire.KindNoSession, "no private session with distributor", nil)
	}

	key, err := envelope.OpenBytes(privKey, msg.EncryptedKey)
	if err != nil {
		metrics.KeyExchangesFailed.WithLabelValues("invalid").Inc()
		return err
	}
	e.store.Store(session.GroupConversationID(msg.GroupID), key)

	ack := &wire.GroupKeyAckMessage{FromID: e.self, ToID: peer, GroupID: msg.GroupID}
	metrics.KeyExchangesCompleted.WithLabelValues("success").Inc()
	if err := e.sender.Send(ack); err != nil {
		return wire.New(wire.KindTimeout, "send group key ack", err)
	}
	return nil
}

// HandleAck records that member acknowledged receipt of the current
// group key.
func (e *GroupEngine) HandleAck(msg *wire.GroupKeyAckMessage) error {
	e.mu.Lock()
	delete(e.acks, ackKey(msg.GroupID, msg.From()))
	e.acked[ackKey(msg.GroupID, msg.From())] = struct{}{}
	e.mu.Unlock()
	return nil
}

// HasSession reports whether a group key for groupID is currently stored.
func (e *GroupEngine) HasSession(groupID int32) bool {
	return e.store.Has(session.GroupConversationID(groupID))
}

// Invalidate removes the locally stored key for groupID, for group
// dissolution or this member's own removal.
func (e *GroupEngine) Invalidate(groupID int32) error {
	e.store.Remove(session.GroupConversationID(groupID))
	return nil
}

// Rotate re-generates and fans out a fresh group key to current members.
func (e *GroupEngine) Rotate(groupID int32) error {
	g, ok := e.groups.Find(groupID)
	if !ok {
		return wire.New(wire.KindNoSession, "unknown group", nil)
	}
	return e.rotateAndFanOut(g)
}

// Stop halts the cleanup loop; safe to call once.
func (e *GroupEngine) Stop() {
	close(e.stopCleanup)
	<-e.cleanupDone
}

func (e *GroupEngine) cleanupLoop() {
	for {
		select {
		case <-e.cleanupTicker.C:
			e.sweepExpired(time.Now())
		case <-e.stopCleanup:
			e.cleanupTicker.Stop()
			close(e.cleanupDone)
			return
		}
	}
}

func (e *GroupEngine) sweepExpired(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, p := range e.acks {
		if now.After(p.expiresAt) {
			delete(e.acks, k)
		}
	}
}

func ackKey(groupID, memberID int32) string {
	return fmt.Sprintf("%d:%d", groupID, memberID)
}

func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
