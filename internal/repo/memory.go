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

package repo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MemoryUserRepo is an in-memory UserRepo for tests and
// single-process deployments.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[int32]User
	nextID atomic.Int32
}

// NewMemoryUserRepo creates an empty MemoryUserRepo; ids are assigned
// starting from 1 since 0 is reserved for the relay.
func NewMemoryUserRepo() *MemoryUserRepo {
	r := &MemoryUserRepo{users: make(map[int32]User)}
	r.nextID.Store(1)
	return r
}

func (r *MemoryUserRepo) Create(pseudo string, publicKey []byte) (User, error) {
	id := r.nextID.Add(1) - 1
	u := User{ID: id, Pseudo: pseudo, PublicKey: append([]byte(nil), publicKey...)}
	r.mu.Lock()
	r.users[id] = u
	r.mu.Unlock()
	return u, nil
}

func (r *MemoryUserRepo) Get(id int32) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *MemoryUserRepo) FindByPseudo(pseudo string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Pseudo == pseudo {
			return u, true
		}
	}
	return User{}, false
}

func (r *MemoryUserRepo) UpdatePseudo(id int32, pseudo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("repo: no user %d", id)
	}
	u.Pseudo = pseudo
	r.users[id] = u
	return nil
}

// MemoryContactRepo is an in-memory ContactRepo.
type MemoryContactRepo struct {
	mu       sync.Mutex
	requests map[string]ContactRequest
	contacts map[int32]map[int32]struct{}
}

func NewMemoryContactRepo() *MemoryContactRepo {
	return &MemoryContactRepo{
		requests: make(map[string]ContactRequest),
		contacts: make(map[int32]map[int32]struct{}),
	}
}

func (r *MemoryContactRepo) CreateRequest(senderID, receiverID int32, ttl time.Duration) (ContactRequest, error) {
	now := time.Now()
	req := ContactRequest{
		RequestID:  uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Timestamp:  now,
		ExpiresAt:  now.Add(ttl),
		Status:     ContactPending,
	}
	r.mu.Lock()
	r.requests[req.RequestID] = req
	r.mu.Unlock()
	return req, nil
}

func (r *MemoryContactRepo) Resolve(requestID string, accepted bool) (ContactRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return ContactRequest{}, fmt.Errorf("repo: no contact request %s", requestID)
	}
	if time.Now().After(req.ExpiresAt) {
		req.Status = ContactExpired
		r.requests[requestID] = req
		return req, nil
	}
	if accepted {
		req.Status = ContactAccepted
		r.link(req.SenderID, req.ReceiverID)
	} else {
		req.Status = ContactRejected
	}
	r.requests[requestID] = req
	return req, nil
}

func (r *MemoryContactRepo) Remove(ownerID, contactID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlink(ownerID, contactID)
	return nil
}

func (r *MemoryContactRepo) IsContact(a, b int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.contacts[a]
	if !ok {
		return false
	}
	_, ok = peers[b]
	return ok
}

func (r *MemoryContactRepo) link(a, b int32) {
	if r.contacts[a] == nil {
		r.contacts[a] = make(map[int32]struct{})
	}
	if r.contacts[b] == nil {
		r.contacts[b] = make(map[int32]struct{})
	}
	r.contacts[a][b] = struct{}{}
	r.contacts[b][a] = struct{}{}
}

func (r *MemoryContactRepo) unlink(a, b int32) {
	delete(r.contacts[a], b)
	delete(r.contacts[b], a)
}

// MemoryGroupRepo is an in-memory GroupRepo.
type MemoryGroupRepo struct {
	mu     sync.Mutex
	groups map[int32]Group
	nextID atomic.Int32
}

func NewMemoryGroupRepo() *MemoryGroupRepo {
	r := &MemoryGroupRepo{groups: make(map[int32]Group)}
	r.nextID.Store(1)
	return r
}

func (r *MemoryGroupRepo) Find(groupID int32) (Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	return g, ok
}

// Put inserts or replaces a group record wholesale. Clients use it to
// mirror relay-announced membership state.
func (r *MemoryGroupRepo) Put(g Group) {
	r.mu.Lock()
	r.groups[g.GroupID] = g
	r.mu.Unlock()
}

func (r *MemoryGroupRepo) Create(adminID int32, members []int32) (Group, error) {
	id := r.nextID.Add(1) - 1
	all := append([]int32{adminID}, members...)
	g := Group{GroupID: id, AdminID: adminID, Members: dedupe(all)}
	r.mu.Lock()
	r.groups[id] = g
	r.mu.Unlock()
	return g, nil
}

func (r *MemoryGroupRepo) AddMember(groupID, memberID int32) (Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, fmt.Errorf("repo: no group %d", groupID)
	}
	if !g.HasMember(memberID) {
		g.Members = append(g.Members, memberID)
	}
	r.groups[groupID] = g
	return g, nil
}

func (r *MemoryGroupRepo) RemoveMember(groupID, memberID int32) (Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, fmt.Errorf("repo: no group %d", groupID)
	}
	out := g.Members[:0]
	for _, m := range g.Members {
		if m != memberID {
			out = append(out, m)
		}
	}
	g.Members = out
	r.groups[groupID] = g
	return g, nil
}

func dedupe(ids []int32) []int32 {
	seen := make(map[int32]struct{}, len(ids))
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
