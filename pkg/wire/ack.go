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
	"encoding/json"
	"fmt"
	"strconv"
)

// AckStatus is the one-byte acknowledgment status of a MESSAGE_ACK.
type AckStatus byte

const (
	AckSent AckStatus = iota
	AckDelivered
	AckRead
	AckFailed
	AckCritical
)

func (s AckStatus) String() string {
	switch s {
	case AckSent:
		return "SENT"
	case AckDelivered:
		return "DELIVERED"
	case AckRead:
		return "READ"
	case AckFailed:
		return "FAILED"
	case AckCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// AckMessage is the MESSAGE_ACK kind: text,
// "common_header|acknowledged_id|status_byte|error_reason|json_extras".
type AckMessage struct {
	Header
	AcknowledgedID string
	Status         AckStatus
	ErrorReason    string
	Extras         map[string]any
}

func (m *AckMessage) Type() MessageType { return TypeMessageAck }

func (m *AckMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	extras := "{}"
	if len(m.Extras) > 0 {
		js, err := json.Marshal(m.Extras)
		if err != nil {
			return nil, &EncodeError{Message: "marshal ack extras: " + err.Error()}
		}
		extras = string(js)
	}
	return []byte(fmt.Sprintf("%s%s|%d|%s|%s",
		encodeTextHeader(m.Header), m.AcknowledgedID, byte(m.Status), m.ErrorReason, extras)), nil
}

func decodeAckMessage(payload []byte, from, to int32) (Message, error) {
	parts, err := splitTextFields(payload, 6)
	if err != nil {
		return nil, err
	}
	hdr, err := parseTextHeader(parts)
	if err != nil {
		return nil, err
	}
	statusVal, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil || statusVal > uint64(AckCritical) {
		return nil, NewDecodeError(ReasonInvalidPayload, fmt.Errorf("bad status byte %q", parts[3]))
	}
	var extras map[string]any
	if parts[5] != "" {
		if err := json.Unmarshal([]byte(parts[5]), &extras); err != nil {
			return nil, NewDecodeError(ReasonInvalidPayload, err)
		}
	}
	hdr.FromID, hdr.ToID = from, to
	return &AckMessage{
		Header:         hdr,
		AcknowledgedID: parts[2],
		Status:         AckStatus(statusVal),
		ErrorReason:    parts[4],
		Extras:         extras,
	}, nil
}
