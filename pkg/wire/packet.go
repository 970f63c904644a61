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

import "encoding/binary"

// headerSize is the fixed byte length of a Packet's frame header:
// tag(1) + from(4) + to(4) + payload_size(4).
const headerSize = 1 + 4 + 4 + 4

// Packet is the wire-level frame: a typed tag, sender/recipient ids
// (0 reserves the relay), and a length-delimited payload.
type Packet struct {
	Type    MessageType
	From    int32
	To      int32
	Payload []byte
}

// EncodePacket serializes a Packet into its frame bytes. It does not
// interpret Payload; callers obtain it from a Message's Encode method.
func EncodePacket(p Packet) []byte {
	out := make([]byte, headerSize+len(p.Payload))
	out[0] = byte(p.Type)
	binary.BigEndian.PutUint32(out[1:5], uint32(p.From))
	binary.BigEndian.PutUint32(out[5:9], uint32(p.To))
	binary.BigEndian.PutUint32(out[9:13], uint32(len(p.Payload)))
	copy(out[headerSize:], p.Payload)
	return out
}

// DecodePacket parses a single frame from b. b must contain exactly
// one frame; the transport layer is responsible for cutting the
// stream into frames. Extra trailing bytes are an error, matching
// payload_size mismatch semantics.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, NewDecodeError(ReasonTruncatedHeader, nil)
	}
	tag := MessageType(b[0])
	from := int32(binary.BigEndian.Uint32(b[1:5]))
	to := int32(binary.BigEndian.Uint32(b[5:9]))
	size := binary.BigEndian.Uint32(b[9:13])

	if !knownTag(tag) {
		return Packet{}, NewDecodeError(ReasonUnknownTag, nil)
	}

	payload := b[headerSize:]
	if uint32(len(payload)) != size {
		return Packet{}, NewDecodeError(ReasonPayloadSizeMismatch, nil)
	}

	return Packet{Type: tag, From: from, To: to, Payload: payload}, nil
}

// EncodeMessage serializes msg into a complete packet frame: its
// kind-specific payload encoding wrapped in the fixed header.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	return EncodePacket(Packet{
		Type:    msg.Type(),
		From:    msg.From(),
		To:      msg.To(),
		Payload: payload,
	}), nil
}

func knownTag(t MessageType) bool {
	_, ok := decoders[t]
	return ok
}
