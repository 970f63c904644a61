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
	"strings"
)

// Message is the common contract every typed payload satisfies.
// Every kind carries message_id/timestamp/from/to; Encode produces
// only the kind-specific payload bytes (the outer packet header is
// added by EncodePacket/EncodeMessage).
type Message interface {
	Type() MessageType
	MessageID() string
	TimestampMs() int64
	From() int32
	To() int32
	Encode() ([]byte, error)
}

// Header is embedded by every concrete message type and implements the
// MessageID/TimestampMs/From/To methods of Message.
type Header struct {
	ID        string
	Timestamp int64
	FromID    int32
	ToID      int32
}

func (h Header) MessageID() string { return h.ID }
func (h Header) TimestampMs() int64 { return h.Timestamp }
func (h Header) From() int32        { return h.FromID }
func (h Header) To() int32          { return h.ToID }

func (h Header) validate() error {
	if h.ID == "" {
		return &EncodeError{Message: "message_id is unset"}
	}
	return nil
}

// encodeTextHeader renders the "message_id|timestamp_ms|" common prefix
// shared by every text-framed kind.
func encodeTextHeader(h Header) string {
	return fmt.Sprintf("%s|%d|", h.ID, h.Timestamp)
}

// splitTextFields splits an ASCII pipe-delimited payload into exactly
// n fields, preserving any embedded '|' characters in the final field.
func splitTextFields(payload []byte, n int) ([]string, error) {
	parts := strings.SplitN(string(payload), "|", n)
	if len(parts) != n {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("expected %d fields, got %d", n, len(parts)))
	}
	return parts, nil
}

// parseTextHeader extracts the common message_id/timestamp_ms prefix
// from the first two fields of an already-split payload.
func parseTextHeader(parts []string) (Header, error) {
	if len(parts) < 2 {
		return Header{}, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("missing header fields"))
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Header{}, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("bad timestamp: %w", err))
	}
	return Header{ID: parts[0], Timestamp: ts}, nil
}
