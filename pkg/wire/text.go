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

// TextMessage is the TEXT kind: "message_id|timestamp_ms|body".
type TextMessage struct {
	Header
	Body string
}

func (m *TextMessage) Type() MessageType { return TypeText }

func (m *TextMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(encodeTextHeader(m.Header) + m.Body), nil
}

func decodeTextMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 3)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &TextMessage{Header: hdr, Body: parts[2]}, nil
}

// MediaMessage is the MEDIA kind: an out-of-band media reference plus
// an optional caption. The media bytes themselves never travel on
// this control channel; only the reference and metadata do, and the
// storage backing the reference is the front-end's concern.
type MediaMessage struct {
	Header
	MediaType string // MIME type, e.g. "image/png"
	URL       string // opaque locator resolved by the out-of-scope repository
	Caption   string
}

func (m *MediaMessage) Type() MessageType { return TypeMedia }

func (m *MediaMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s%s|%s|%s", encodeTextHeader(m.Header), m.MediaType, m.URL, m.Caption)), nil
}

func decodeMediaMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 5)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	hdr.FromID, hdr.ToID = from, to
	return &MediaMessage{Header: hdr, MediaType: parts[2], URL: parts[3], Caption: parts[4]}, nil
}
