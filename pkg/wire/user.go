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
	"fmt"
	"strconv"
)

// CreateUserMessage is the CREATE_USER kind, sent by a new client to
// the relay with its desired pseudonym.
type CreateUserMessage struct {
	Header
	Pseudo string
}

func (m *CreateUserMessage) Type() MessageType { return TypeCreateUser }

func (m *CreateUserMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(encodeTextHeader(m.Header) + m.Pseudo), nil
}

func decodeCreateUserMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &CreateUserMessage{Header: hdr, Pseudo: parts[2]}, nil
}

// ConnectUserMessage is the CONNECT_USER kind, sent by a returning
// client identifying itself to the relay.
type ConnectUserMessage struct {
	Header
	Pseudo string
}

func (m *ConnectUserMessage) Type() MessageType { return TypeConnectUser }

func (m *ConnectUserMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(encodeTextHeader(m.Header) + m.Pseudo), nil
}

func decodeConnectUserMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &ConnectUserMessage{Header: hdr, Pseudo: parts[2]}, nil
}

// AckConnectionMessage is the ACK_CONNECTION kind the relay sends back
// echoing the client id it assigned.
type AckConnectionMessage struct {
	Header
	AssignedID int32
}

func (m *AckConnectionMessage) Type() MessageType { return TypeAckConnection }

func (m *AckConnectionMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s%d", encodeTextHeader(m.Header), m.AssignedID)), nil
}

func decodeAckConnectionMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("bad assigned id: %w", err))
	}
	hdr.FromID, hdr.ToID = from, to
	return &AckConnectionMessage{Header: hdr, AssignedID: int32(id)}, nil
}

// UpdatePseudoMessage is the UPDATE_PSEUDO kind.
type UpdatePseudoMessage struct {
	Header
	NewPseudo string
}

func (m *UpdatePseudoMessage) Type() MessageType { return TypeUpdatePseudo }

func (m *UpdatePseudoMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(encodeTextHeader(m.Header) + m.NewPseudo), nil
}

func decodeUpdatePseudoMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &UpdatePseudoMessage{Header: hdr, NewPseudo: parts[2]}, nil
}
