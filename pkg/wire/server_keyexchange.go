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

// ServerKeyExchangeMessage covers both SERVER_KEY_EXCHANGE and
// SERVER_KEY_EXCHANGE_RESPONSE: binary `[int32 key_len][key_len bytes
// SPKI]`. The relay and client share this layout; Kind distinguishes
// which direction produced it.
type ServerKeyExchangeMessage struct {
	Kind          MessageType
	FromID, ToID  int32
	PublicKeySPKI []byte
}

func (m *ServerKeyExchangeMessage) Type() MessageType  { return m.Kind }
func (m *ServerKeyExchangeMessage) MessageID() string  { return "" }
func (m *ServerKeyExchangeMessage) TimestampMs() int64 { return 0 }
func (m *ServerKeyExchangeMessage) From() int32        { return m.FromID }
func (m *ServerKeyExchangeMessage) To() int32          { return m.ToID }

func (m *ServerKeyExchangeMessage) Encode() ([]byte, error) {
	if len(m.PublicKeySPKI) == 0 {
		return nil, &EncodeError{Message: "public key is unset"}
	}
	out := make([]byte, 4+len(m.PublicKeySPKI))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(m.PublicKeySPKI)))
	copy(out[4:], m.PublicKeySPKI)
	return out, nil
}

func decodeServerKeyExchangeMessage(kind MessageType) decodeFunc {
	return func(payload []byte, from, to int32) (Message, error) {
		if len(payload) < 4 {
			return nil, NewDecodeError(ReasonTruncatedHeader, nil)
		}
		keyLen := binary.BigEndian.Uint32(payload[0:4])
		if uint32(len(payload)-4) != keyLen {
			return nil, NewDecodeError(ReasonPayloadSizeMismatch, nil)
		}
		return &ServerKeyExchangeMessage{
			Kind: kind, FromID: from, ToID: to,
			PublicKeySPKI: append([]byte(nil), payload[4:]...),
		}, nil
	}
}
