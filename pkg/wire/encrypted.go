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
	"encoding/binary"
	"fmt"
)

// NonceSize is the AES-256-GCM nonce length used by both wrapper kinds.
const NonceSize = 12

// EncryptedMessage is the ENCRYPTED wrapper: binary
// `[int32 id_len][id_len UTF-8][int64 timestamp_ms][byte original_tag]
// [int64 sequence][12 bytes nonce][int32 ct_len][ct_len bytes ciphertext]`.
// It carries another Message sealed inside Ciphertext (pkg/envelope
// performs the actual seal/unseal; this type only frames the bytes).
type EncryptedMessage struct {
	FromID, ToID int32
	ID           string
	Timestamp    int64
	OriginalTag  MessageType
	Sequence     uint64
	Nonce        [NonceSize]byte
	Ciphertext   []byte
}

func (m *EncryptedMessage) Type() MessageType  { return TypeEncrypted }
func (m *EncryptedMessage) MessageID() string  { return m.ID }
func (m *EncryptedMessage) TimestampMs() int64 { return m.Timestamp }
func (m *EncryptedMessage) From() int32        { return m.FromID }
func (m *EncryptedMessage) To() int32          { return m.ToID }

func (m *EncryptedMessage) Encode() ([]byte, error) {
	if m.ID == "" {
		return nil, &EncodeError{Message: "message_id is unset"}
	}
	idBytes := []byte(m.ID)
	out := make([]byte, 4+len(idBytes)+8+1+8+NonceSize+4+len(m.Ciphertext))
	off := 0
	binary.BigEndian.PutUint32(out[off:], uint32(len(idBytes)))
	off += 4
	copy(out[off:], idBytes)
	off += len(idBytes)
	binary.BigEndian.PutUint64(out[off:], uint64(m.Timestamp))
	off += 8
	out[off] = byte(m.OriginalTag)
	off++
	binary.BigEndian.PutUint64(out[off:], m.Sequence)
	off += 8
	copy(out[off:], m.Nonce[:])
	off += NonceSize
	binary.BigEndian.PutUint32(out[off:], uint32(len(m.Ciphertext)))
	off += 4
	copy(out[off:], m.Ciphertext)
	return out, nil
}

func decodeEncryptedMessage(payload []byte, from, to int32) (Message, error) {
	if len(payload) < 4 {
		return nil, NewDecodeError(ReasonTruncatedHeader, nil)
	}
	off := 0
	idLen := binary.BigEndian.Uint32(payload[off:])
	off += 4
	if len(payload) < off+int(idLen)+8+1+8+NonceSize+4 {
		return nil, NewDecodeError(ReasonTruncatedHeader, nil)
	}
	id := string(payload[off : off+int(idLen)])
	off += int(idLen)
	ts := int64(binary.BigEndian.Uint64(payload[off:]))
	off += 8
	tag := MessageType(payload[off])
	off++
	seq := binary.BigEndian.Uint64(payload[off:])
	off += 8
	var nonce [NonceSize]byte
	copy(nonce[:], payload[off:off+NonceSize])
	off += NonceSize
	ctLen := binary.BigEndian.Uint32(payload[off:])
	off += 4
	if uint32(len(payload)-off) != ctLen {
		return nil, NewDecodeError(ReasonPayloadSizeMismatch, fmt.Errorf("ciphertext length mismatch"))
	}
	ct := append([]byte(nil), payload[off:]...)

	return &EncryptedMessage{
		FromID: from, ToID: to,
		ID: id, Timestamp: ts, OriginalTag: tag, Sequence: seq,
		Nonce: nonce, Ciphertext: ct,
	}, nil
}
