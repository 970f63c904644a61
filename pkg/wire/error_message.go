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

// ErrorMessage is the ERROR kind, carried when one side reports a
// protocol-level failure to the other:
// "common_header|code|description".
type ErrorMessage struct {
	Header
	Code        string
	Description string
}

func (m *ErrorMessage) Type() MessageType { return TypeErrorMsg }

func (m *ErrorMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s%s|%s", encodeTextHeader(m.Header), m.Code, m.Description)), nil
}

func decodeErrorMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 4)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &ErrorMessage{Header: hdr, Code: parts[2], Description: parts[3]}, nil
}
