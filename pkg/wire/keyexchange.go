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

package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Group sub-protocol markers carried inside the KEY_EXCHANGE payload.
// Both are invalid leading bytes for the text
// encoding below (message ids never start with 0xFF/0xFE), which is
// what lets this decoder tell the two protocols apart by peeking at
// the first payload byte; the composite dispatcher then routes on the
// decoded message type.
const (
	GroupMarkerKeyDistribution byte = 0xFF
	GroupMarkerAck             byte = 0xFE
)

// KeyExchangeMessage is the private-engine KEY_EXCHANGE /
// KEY_EXCHANGE_RESPONSE payload: common text header plus the sender's
// X25519 public key, X.509 SubjectPublicKeyInfo-encoded and base64'd.
type KeyExchangeMessage struct {
	Header
	Kind         MessageType // TypeKeyExchange or TypeKeyExchangeResponse
	PublicKeySPKI []byte
}

func (m *KeyExchangeMessage) Type() MessageType { return m.Kind }

func (m *KeyExchangeMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	if len(m.PublicKeySPKI) == 0 {
		return nil, &EncodeError{Message: "public key is unset"}
	}
	encoded := base64.StdEncoding.EncodeToString(m.PublicKeySPKI)
	return []byte(encodeTextHeader(m.Header) + encoded), nil
}

func decodeKeyExchangeMessage(kind MessageType) decodeFunc {
	return func(payload []byte, from, to int32) (Message, error) {
		if len(payload) > 0 && (payload[0] == GroupMarkerKeyDistribution || payload[0] == GroupMarkerAck) {
			return decodeGroupSubMessage(payload, from, to)
		}
		parts, err := splitTextFields(payload, 3)
		if err != nil {
			return nil, err
		}
		hdr, err := parseTextHeader(parts)
		if err != nil {
			return nil, err
		}
		spki, err := base64.StdEncoding.DecodeString(parts[2])
		if err != nil {
			return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("bad public key base64: %w", err))
		}
		hdr.FromID, hdr.ToID = from, to
		return &KeyExchangeMessage{Header: hdr, Kind: kind, PublicKeySPKI: spki}, nil
	}
}

// GroupKeyDistributionMessage is the 0xFF sub-message: an admin
// distributing a wrapped group key to one member. Its binary layout
// carries no message_id/timestamp of its own; From/To come from the
// outer packet header.
type GroupKeyDistributionMessage struct {
	FromID, ToID int32
	GroupID      int32
	EncryptedKey []byte
}

func (m *GroupKeyDistributionMessage) Type() MessageType   { return TypeKeyExchange }
func (m *GroupKeyDistributionMessage) MessageID() string   { return "" }
func (m *GroupKeyDistributionMessage) TimestampMs() int64  { return 0 }
func (m *GroupKeyDistributionMessage) From() int32         { return m.FromID }
func (m *GroupKeyDistributionMessage) To() int32           { return m.ToID }

func (m *GroupKeyDistributionMessage) Encode() ([]byte, error) {
	out := make([]byte, 1+4+4+len(m.EncryptedKey))
	out[0] = GroupMarkerKeyDistribution
	binary.BigEndian.PutUint32(out[1:5], uint32(m.GroupID))
	binary.BigEndian.PutUint32(out[5:9], uint32(len(m.EncryptedKey)))
	copy(out[9:], m.EncryptedKey)
	return out, nil
}

// GroupKeyAckMessage is the 0xFE sub-message acknowledging receipt of
// a distributed group key.
type GroupKeyAckMessage struct {
	FromID, ToID int32
	GroupID      int32
}

func (m *GroupKeyAckMessage) Type() MessageType  { return TypeKeyExchange }
func (m *GroupKeyAckMessage) MessageID() string  { return "" }
func (m *GroupKeyAckMessage) TimestampMs() int64 { return 0 }
func (m *GroupKeyAckMessage) From() int32        { return m.FromID }
func (m *GroupKeyAckMessage) To() int32          { return m.ToID }

func (m *GroupKeyAckMessage) Encode() ([]byte, error) {
	out := make([]byte, 1+4)
	out[0] = GroupMarkerAck
	binary.BigEndian.PutUint32(out[1:5], uint32(m.GroupID))
	return out, nil
}

func decodeGroupSubMessage(payload []byte, from, to int32) (Message, error) {
	switch payload[0] {
	case GroupMarkerKeyDistribution:
		if len(payload) < 9 {
			return nil, NewDecodeError(ReasonTruncatedHeader, nil)
		}
		groupID := int32(binary.BigEndian.Uint32(payload[1:5]))
		encLen := binary.BigEndian.Uint32(payload[5:9])
		if uint32(len(payload)-9) != encLen {
			return nil, NewDecodeError(ReasonPayloadSizeMismatch, nil)
		}
		return &GroupKeyDistributionMessage{
			FromID: from, ToID: to, GroupID: groupID,
			EncryptedKey: append([]byte(nil), payload[9:]...),
		}, nil
	case GroupMarkerAck:
		if len(payload) != 5 {
			return nil, NewDecodeError(ReasonPayloadSizeMismatch, nil)
		}
		groupID := int32(binary.BigEndian.Uint32(payload[1:5]))
		return &GroupKeyAckMessage{FromID: from, ToID: to, GroupID: groupID}, nil
	default:
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("unknown group marker 0x%02X", payload[0]))
	}
}
