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

// Package events is the in-process broker message handlers publish to
// and application front-ends subscribe from. Subscriptions are keyed
// by an event-kind tag rather than reflection on event types, and
// subscriber lists are copied on write so publishers never block on a
// subscription mutation.
package events

import "github.com/sage-x-project/securechat/pkg/wire"

// Kind tags every event with its variant.
type Kind int

const (
	KindTextMessageReceived Kind = iota
	KindMediaMessageReceived
	KindContactRequestReceived
	KindContactRequestResolved
	KindConnectionEstablished
	KindSecureConversationEstablished
	KindSecureConversationFailed
	KindGroupKeyRotated
	KindMessageAcknowledged
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTextMessageReceived:
		return "TEXT_MESSAGE_RECEIVED"
	case KindMediaMessageReceived:
		return "MEDIA_MESSAGE_RECEIVED"
	case KindContactRequestReceived:
		return "CONTACT_REQUEST_RECEIVED"
	case KindContactRequestResolved:
		return "CONTACT_REQUEST_RESOLVED"
	case KindConnectionEstablished:
		return "CONNECTION_ESTABLISHED"
	case KindSecureConversationEstablished:
		return "SECURE_CONVERSATION_ESTABLISHED"
	case KindSecureConversationFailed:
		return "SECURE_CONVERSATION_FAILED"
	case KindGroupKeyRotated:
		return "GROUP_KEY_ROTATED"
	case KindMessageAcknowledged:
		return "MESSAGE_ACKNOWLEDGED"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the immutable snapshot delivered to subscribers.
type Event interface {
	EventKind() Kind
}

// TextMessageReceived fires when a TEXT payload reaches its handler.
type TextMessageReceived struct {
	MessageID string
	From, To  int32
	Body      string
}

func (TextMessageReceived) EventKind() Kind { return KindTextMessageReceived }

// MediaMessageReceived fires when a MEDIA payload reaches its handler.
type MediaMessageReceived struct {
	MessageID string
	From, To  int32
	MediaType string
	URL       string
	Caption   string
}

func (MediaMessageReceived) EventKind() Kind { return KindMediaMessageReceived }

// ContactRequestReceived fires when another user asks to connect.
type ContactRequestReceived struct {
	MessageID string
	From, To  int32
	Pseudo    string
}

func (ContactRequestReceived) EventKind() Kind { return KindContactRequestReceived }

// ContactRequestResolved fires when the peer answered a request.
type ContactRequestResolved struct {
	From, To int32
	Accepted bool
}

func (ContactRequestResolved) EventKind() Kind { return KindContactRequestResolved }

// ConnectionEstablished fires when the relay acknowledged the
// connection and assigned (or echoed) the local account id.
type ConnectionEstablished struct {
	AssignedID int32
}

func (ConnectionEstablished) EventKind() Kind { return KindConnectionEstablished }

// SecureConversationEstablished fires when a key exchange completes
// and the session key is stored.
type SecureConversationEstablished struct {
	PeerID int32
}

func (SecureConversationEstablished) EventKind() Kind { return KindSecureConversationEstablished }

// SecureConversationFailed fires when a key exchange expires or fails
// after exhausting retries.
type SecureConversationFailed struct {
	PeerID int32
	Reason string
}

func (SecureConversationFailed) EventKind() Kind { return KindSecureConversationFailed }

// GroupKeyRotated fires on the admin after a membership change forced
// a new group key, and on members when the new key is stored.
type GroupKeyRotated struct {
	GroupID int32
}

func (GroupKeyRotated) EventKind() Kind { return KindGroupKeyRotated }

// MessageAcknowledged fires when a MESSAGE_ACK resolves a pending
// outbound command.
type MessageAcknowledged struct {
	MessageID string
	Status    wire.AckStatus
	Reason    string
}

func (MessageAcknowledged) EventKind() Kind { return KindMessageAcknowledged }

// Level grades an Error event for the front-end.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Error is surfaced verbatim by the application front-end.
type Error struct {
	Level   Level
	Type    string
	Message string
}

func (Error) EventKind() Kind { return KindError }

// Error types surfaced through Error.Type.
const (
	ErrTypeDecryption   = "DECRYPTION_ERROR"
	ErrTypeKeyExchange  = "KEY_EXCHANGE_ERROR"
	ErrTypeNoHandler    = "NO_HANDLER"
	ErrTypeProtocol     = "PROTOCOL_ERROR"
	ErrTypeAckTimeout   = "ACK_TIMEOUT"
	ErrTypeServerReject = "SERVER_REJECTED"
)
