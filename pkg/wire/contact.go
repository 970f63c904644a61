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

import "fmt"

// ContactRequestMessage is the CONTACT_REQUEST kind.
type ContactRequestMessage struct {
	Header
	RequesterPseudo string
}

func (m *ContactRequestMessage) Type() MessageType { return TypeContactRequest }

func (m *ContactRequestMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(encodeTextHeader(m.Header) + m.RequesterPseudo), nil
}

func decodeContactRequestMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &ContactRequestMessage{Header: hdr, RequesterPseudo: parts[2]}, nil
}

// ContactRequestResponseMessage is the CONTACT_REQUEST_RESPONSE kind.
type ContactRequestResponseMessage struct {
	Header
	Accepted bool
}

func (m *ContactRequestResponseMessage) Type() MessageType { return TypeContactRequestResponse }

func (m *ContactRequestResponseMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	flag := "0"
	if m.Accepted {
		flag = "1"
	}
	return []byte(encodeTextHeader(m.Header) + flag), nil
}

func decodeContactRequestResponseMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	if parts[2] != "0" && parts[2] != "1" {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("bad accepted flag %q", parts[2]))
	}
	hdr.FromID, hdr.ToID = from, to
	return &ContactRequestResponseMessage{Header: hdr, Accepted: parts[2] == "1"}, nil
}
