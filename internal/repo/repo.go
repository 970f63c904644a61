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

// Package repo defines the user, contact, and group repositories the
// core depends on as narrow interfaces, with in-memory
// implementations for tests and single-process deployments. The
// actual on-disk stores live with the application, not here.
package repo

import "time"

// ContactStatus is a ContactRequest's lifecycle state.
type ContactStatus int

const (
	ContactPending ContactStatus = iota
	ContactAccepted
	ContactRejected
	ContactExpired
)

func (s ContactStatus) String() string {
	switch s {
	case ContactPending:
		return "PENDING"
	case ContactAccepted:
		return "ACCEPTED"
	case ContactRejected:
		return "REJECTED"
	case ContactExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Group is one chat group's membership record. The admin is always a
// member, and the member set is mutated only by the server, which
// fans out the change to every client.
type Group struct {
	GroupID int32
	AdminID int32
	Members []int32
}

// HasMember reports whether id is currently a member of g.
func (g Group) HasMember(id int32) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// ContactRequest tracks one pending/resolved contact invitation.
type ContactRequest struct {
	RequestID  string
	SenderID   int32
	ReceiverID int32
	Timestamp  time.Time
	ExpiresAt  time.Time
	Status     ContactStatus
}

// User is the minimal account record the core needs: an id, a
// display pseudonym, and the static X25519 public key other clients
// resolve when initiating a key exchange.
type User struct {
	ID        int32
	Pseudo    string
	PublicKey []byte
}

// UserRepo resolves account identity and pseudonym state.
type UserRepo interface {
	Create(pseudo string, publicKey []byte) (User, error)
	Get(id int32) (User, bool)
	FindByPseudo(pseudo string) (User, bool)
	UpdatePseudo(id int32, pseudo string) error
}

// ContactRepo tracks contact requests and the accepted contact graph.
type ContactRepo interface {
	CreateRequest(senderID, receiverID int32, ttl time.Duration) (ContactRequest, error)
	Resolve(requestID string, accepted bool) (ContactRequest, error)
	Remove(ownerID, contactID int32) error
	IsContact(a, b int32) bool
}

// GroupRepo resolves group membership and mutates the member set.
// The key exchange dispatcher uses Find to decide whether a target id
// names a group or a peer.
type GroupRepo interface {
	Find(groupID int32) (Group, bool)
	Create(adminID int32, members []int32) (Group, error)
	AddMember(groupID, memberID int32) (Group, error)
	RemoveMember(groupID, memberID int32) (Group, error)
}
