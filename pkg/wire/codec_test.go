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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripTextMessage(t *testing.T) {
	msg := &TextMessage{
		Header: Header{ID: "abc123", Timestamp: 1700000000000, FromID: 1, ToID: 2},
		Body:   "hello|world", // embedded pipe in final field must survive
	}
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)

	text, ok := got.(*TextMessage)
	require.True(t, ok)
	assert.Equal(t, msg.ID, text.ID)
	assert.Equal(t, msg.Timestamp, text.Timestamp)
	assert.Equal(t, msg.FromID, text.FromID)
	assert.Equal(t, msg.ToID, text.ToID)
	assert.Equal(t, msg.Body, text.Body)
}

func TestRoundTripAckMessage(t *testing.T) {
	msg := &AckMessage{
		Header:         Header{ID: "ack-1", Timestamp: 42, FromID: 2, ToID: 1},
		AcknowledgedID: "abc123",
		Status:         AckFailed,
		ErrorReason:    "no_session",
		Extras:         map[string]any{"retry": float64(1)},
	}
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)

	ack, ok := got.(*AckMessage)
	require.True(t, ok)
	assert.Equal(t, msg.AcknowledgedID, ack.AcknowledgedID)
	assert.Equal(t, msg.Status, ack.Status)
	assert.Equal(t, msg.ErrorReason, ack.ErrorReason)
	assert.Equal(t, msg.Extras, ack.Extras)
}

func TestRoundTripKeyExchangeMessage(t *testing.T) {
	msg := &KeyExchangeMessage{
		Header:        Header{ID: "kx-1", Timestamp: 9, FromID: 1, ToID: 2},
		Kind:          TypeKeyExchange,
		PublicKeySPKI: []byte{0x01, 0x02, 0x03, 0x04},
	}
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)

	kx, ok := got.(*KeyExchangeMessage)
	require.True(t, ok)
	assert.Equal(t, msg.PublicKeySPKI, kx.PublicKeySPKI)
}

func TestRoundTripGroupKeyDistribution(t *testing.T) {
	msg := &GroupKeyDistributionMessage{
		FromID: 1, ToID: 2, GroupID: 10,
		EncryptedKey: []byte{0xAA, 0xBB, 0xCC},
	}
	frame := EncodePacket(Packet{Type: msg.Type(), From: 1, To: 2, Payload: must(msg.Encode())})

	got, err := DecodeMessage(frame)
	require.NoError(t, err)

	gk, ok := got.(*GroupKeyDistributionMessage)
	require.True(t, ok)
	assert.Equal(t, int32(10), gk.GroupID)
	assert.Equal(t, msg.EncryptedKey, gk.EncryptedKey)
}

func TestRoundTripGroupKeyAck(t *testing.T) {
	msg := &GroupKeyAckMessage{FromID: 2, ToID: 1, GroupID: 10}
	frame := EncodePacket(Packet{Type: msg.Type(), From: 2, To: 1, Payload: must(msg.Encode())})

	got, err := DecodeMessage(frame)
	require.NoError(t, err)

	gk, ok := got.(*GroupKeyAckMessage)
	require.True(t, ok)
	assert.Equal(t, int32(10), gk.GroupID)
}

func TestRoundTripServerKeyExchange(t *testing.T) {
	msg := &ServerKeyExchangeMessage{Kind: TypeServerKeyExchange, FromID: 0, ToID: 0, PublicKeySPKI: []byte{1, 2, 3}}
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)
	sk, ok := got.(*ServerKeyExchangeMessage)
	require.True(t, ok)
	assert.Equal(t, msg.PublicKeySPKI, sk.PublicKeySPKI)
}

func TestRoundTripEncryptedMessage(t *testing.T) {
	msg := &EncryptedMessage{
		FromID: 1, ToID: 2, ID: "enc-1", Timestamp: 123, OriginalTag: TypeText,
		Sequence: 7, Ciphertext: []byte("ciphertext-bytes"),
	}
	copy(msg.Nonce[:], []byte("123456789012"))
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)
	enc, ok := got.(*EncryptedMessage)
	require.True(t, ok)
	assert.Equal(t, msg.Sequence, enc.Sequence)
	assert.Equal(t, msg.Nonce, enc.Nonce)
	assert.Equal(t, msg.Ciphertext, enc.Ciphertext)
	assert.Equal(t, msg.OriginalTag, enc.OriginalTag)
}

func TestRoundTripServerEncryptedMessage(t *testing.T) {
	msg := &ServerEncryptedMessage{FromID: 0, ToID: 5, OriginalTag: TypeText, Ciphertext: []byte("xyz")}
	copy(msg.Nonce[:], []byte("abcdefghijkl"))
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)
	se, ok := got.(*ServerEncryptedMessage)
	require.True(t, ok)
	assert.Equal(t, msg.Ciphertext, se.Ciphertext)
}

func TestRoundTripManagementMessage(t *testing.T) {
	msg := NewAddGroupMemberMessage(Header{ID: "m-1", Timestamp: 1, FromID: 1, ToID: 0}, 10, 4)
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)
	mgmt, ok := got.(*ManagementMessage)
	require.True(t, ok)
	assert.Equal(t, TypeAddGroupMember, mgmt.Type())
	assert.Equal(t, float64(10), mgmt.Params["group_id"])
	assert.Equal(t, float64(4), mgmt.Params["member_id"])
}

func TestRoundTripErrorMessage(t *testing.T) {
	msg := &ErrorMessage{
		Header:      Header{ID: "e-1", Timestamp: 5, FromID: 0, ToID: 3},
		Code:        "PROTOCOL_ERROR",
		Description: "bad things|with pipes",
	}
	frame, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(frame)
	require.NoError(t, err)
	em, ok := got.(*ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, msg.Code, em.Code)
	assert.Equal(t, msg.Description, em.Description)
}

func TestDecodePacketTruncatedHeader(t *testing.T) {
	_, err := DecodePacket([]byte{0x01, 0x00})
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindDecodeError, werr.Kind)
}

func TestDecodePacketUnknownTag(t *testing.T) {
	frame := EncodePacket(Packet{Type: MessageType(0x7F), From: 1, To: 2, Payload: nil})
	_, err := DecodePacket(frame)
	require.Error(t, err)
}

func TestDecodePacketPayloadSizeMismatch(t *testing.T) {
	frame := EncodePacket(Packet{Type: TypeText, From: 1, To: 2, Payload: []byte("x")})
	// corrupt payload_size field to claim more bytes than present
	frame[9] = 0xFF
	_, err := DecodePacket(frame)
	require.Error(t, err)
}

func TestEncodeMissingMessageID(t *testing.T) {
	msg := &TextMessage{Header: Header{Timestamp: 1, FromID: 1, ToID: 2}, Body: "hi"}
	_, err := msg.Encode()
	require.Error(t, err)
}

func must(b []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return b
}
