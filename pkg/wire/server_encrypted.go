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

// ServerEncryptedMessage is the SERVER_ENCRYPTED wrapper used for the
// client-relay transport link: binary `[int32 original_tag_ordinal]
// [12 bytes nonce][int32 ct_len][ct_len bytes ciphertext]`. Unlike
// ENCRYPTED it carries no sequence number: the link runs over a
// single long-lived connection, which is what provides its replay
// resistance.
type ServerEncryptedMessage struct {
	FromID, ToID int32
	OriginalTag  MessageType
	Nonce        [NonceSize]byte
	Ciphertext   []byte
}

func (m *ServerEncryptedMessage) Type() MessageType  { return TypeServerEncrypted }
func (m *ServerEncryptedMessage) MessageID() string  { return "" }
func (m *ServerEncryptedMessage) TimestampMs() int64 { return 0 }
func (m *ServerEncryptedMessage) From() int32        { return m.FromID }
func (m *ServerEncryptedMessage) To() int32          { return m.ToID }

func (m *ServerEncryptedMessage) Encode() ([]byte, error) {
	out := make([]byte, 4+NonceSize+4+len(m.Ciphertext))
	off := 0
	binary.BigEndian.PutUint32(out[off:], uint32(m.OriginalTag))
	off += 4
	copy(out[off:], m.Nonce[:])
	off += NonceSize
	binary.BigEndian.PutUint32(out[off:], uint32(len(m.Ciphertext)))
	off += 4
	copy(out[off:], m.Ciphertext)
	return out, nil
}

func decodeServerEncryptedMessage(payload []byte, from, to int32) (Message, error) {
	if len(payload) < 4+NonceSize+4 {
		return nil, NewDecodeError(ReasonTruncatedHeader, nil)
	}
	off := 0
	tag := MessageType(binary.BigEndian.Uint32(payload[off:]))
	off += 4
	var nonce [NonceSize]byte
	copy(nonce[:], payload[off:off+NonceSize])
	off += NonceSize
	ctLen := binary.BigEndian.Uint32(payload[off:])
	off += 4
	if uint32(len(payload)-off) != ctLen {
		return nil, NewDecodeError(ReasonPayloadSizeMismatch, fmt.Errorf("ciphertext length mismatch"))
	}
	ct := append([]byte(nil), payload[off:]...)
	return &ServerEncryptedMessage{FromID: from, ToID: to, OriginalTag: tag, Nonce: nonce, Ciphertext: ct}, nil
}
