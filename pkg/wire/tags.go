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

// Package wire implements the bit-exact packet and message codec:
// typed packet framing plus the per-kind payload encodings
// (pipe-delimited text and fixed-layout binary) that let
// independently-built clients and relays interoperate.
package wire

import "fmt"

// MessageType is the one-byte tag identifying a packet's payload kind.
// It replaces the source's service-loader message-provider registry
// with a tagged variant: the tag drives a single decode dispatch in
// registry.go instead of class-based polymorphism.
type MessageType byte

const (
	TypeNone                     MessageType = 0x00
	TypeText                     MessageType = 0x01
	TypeMedia                    MessageType = 0x02
	TypeMessageAck                MessageType = 0x03
	TypeContactRequest            MessageType = 0x04
	TypeContactRequestResponse    MessageType = 0x05
	TypeCreateUser                MessageType = 0x06
	TypeConnectUser               MessageType = 0x07
	TypeAckConnection             MessageType = 0x08
	TypeUpdatePseudo              MessageType = 0x09
	TypeRemoveContact             MessageType = 0x0A
	TypeCreateGroup               MessageType = 0x0B
	TypeLeaveGroup                MessageType = 0x0C
	TypeAddGroupMember            MessageType = 0x0D
	TypeRemoveGroupMember         MessageType = 0x0E
	TypeKeyExchange               MessageType = 0x10
	TypeKeyExchangeResponse       MessageType = 0x11
	TypeServerKeyExchange         MessageType = 0x12
	TypeServerKeyExchangeResponse MessageType = 0x13
	TypeEncrypted                 MessageType = 0x14
	TypeServerEncrypted            MessageType = 0x15
	TypeErrorMsg                   MessageType = 0xEE
)

// String returns a human-readable name, used in logs and error messages.
func (t MessageType) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeText:
		return "TEXT"
	case TypeMedia:
		return "MEDIA"
	case TypeMessageAck:
		return "MESSAGE_ACK"
	case TypeContactRequest:
		return "CONTACT_REQUEST"
	case TypeContactRequestResponse:
		return "CONTACT_REQUEST_RESPONSE"
	case TypeCreateUser:
		return "CREATE_USER"
	case TypeConnectUser:
		return "CONNECT_USER"
	case TypeAckConnection:
		return "ACK_CONNECTION"
	case TypeUpdatePseudo:
		return "UPDATE_PSEUDO"
	case TypeRemoveContact:
		return "REMOVE_CONTACT"
	case TypeCreateGroup:
		return "CREATE_GROUP"
	case TypeLeaveGroup:
		return "LEAVE_GROUP"
	case TypeAddGroupMember:
		return "ADD_GROUP_MEMBER"
	case TypeRemoveGroupMember:
		return "REMOVE_GROUP_MEMBER"
	case TypeKeyExchange:
		return "KEY_EXCHANGE"
	case TypeKeyExchangeResponse:
		return "KEY_EXCHANGE_RESPONSE"
	case TypeServerKeyExchange:
		return "SERVER_KEY_EXCHANGE"
	case TypeServerKeyExchangeResponse:
		return "SERVER_KEY_EXCHANGE_RESPONSE"
	case TypeEncrypted:
		return "ENCRYPTED"
	case TypeServerEncrypted:
		return "SERVER_ENCRYPTED"
	case TypeErrorMsg:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
	}
}

// isText reports whether a kind is framed as pipe-delimited ASCII text.
func (t MessageType) isText() bool {
	switch t {
	case TypeText, TypeMedia, TypeMessageAck, TypeContactRequest,
		TypeContactRequestResponse, TypeCreateUser, TypeConnectUser,
		TypeAckConnection, TypeUpdatePseudo, TypeRemoveContact,
		TypeCreateGroup, TypeLeaveGroup, TypeAddGroupMember,
		TypeRemoveGroupMember, TypeKeyExchange, TypeKeyExchangeResponse,
		TypeErrorMsg:
		return true
	default:
		return false
	}
}

// Encryptable reports whether a kind is eligible for end-to-end
// sealing. Key exchange traffic, acks, and connection bootstrap kinds
// always travel outside the envelope.
func (t MessageType) Encryptable() bool {
	switch t {
	case TypeText, TypeMedia, TypeContactRequest,
		TypeCreateGroup, TypeLeaveGroup, TypeAddGroupMember, TypeRemoveGroupMember:
		return true
	default:
		return false
	}
}
