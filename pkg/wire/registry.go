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

// decodeFunc decodes a kind-specific payload into a Message, given the
// sender/recipient ids carried by the outer packet header.
type decodeFunc func(payload []byte, from, to int32) (Message, error)

// decoders is the tagged-variant dispatch table: a literal map from
// tag to decode function, built once at init. Registering a new kind
// means adding a row here.
var decoders = map[MessageType]decodeFunc{
	TypeText:                     decodeTextMessage,
	TypeMedia:                    decodeMediaMessage,
	TypeMessageAck:               decodeAckMessage,
	TypeContactRequest:           decodeContactRequestMessage,
	TypeContactRequestResponse:   decodeContactRequestResponseMessage,
	TypeCreateUser:               decodeCreateUserMessage,
	TypeConnectUser:              decodeConnectUserMessage,
	TypeAckConnection:            decodeAckConnectionMessage,
	TypeUpdatePseudo:             decodeUpdatePseudoMessage,
	TypeRemoveContact:            decodeManagementMessage(TypeRemoveContact),
	TypeCreateGroup:              decodeManagementMessage(TypeCreateGroup),
	TypeLeaveGroup:               decodeManagementMessage(TypeLeaveGroup),
	TypeAddGroupMember:           decodeManagementMessage(TypeAddGroupMember),
	TypeRemoveGroupMember:        decodeManagementMessage(TypeRemoveGroupMember),
	TypeKeyExchange:              decodeKeyExchangeMessage(TypeKeyExchange),
	TypeKeyExchangeResponse:      decodeKeyExchangeMessage(TypeKeyExchangeResponse),
	TypeServerKeyExchange:        decodeServerKeyExchangeMessage(TypeServerKeyExchange),
	TypeServerKeyExchangeResponse: decodeServerKeyExchangeMessage(TypeServerKeyExchangeResponse),
	TypeEncrypted:                decodeEncryptedMessage,
	TypeServerEncrypted:          decodeServerEncryptedMessage,
	TypeErrorMsg:                 decodeErrorMessage,
}

// ParseMessage dispatches p's payload to the decoder registered for
// p.Type, reconstructing the typed Message.
func ParseMessage(p Packet) (Message, error) {
	decode, ok := decoders[p.Type]
	if !ok {
		return nil, NewDecodeError(ReasonUnknownTag, nil)
	}
	return decode(p.Payload, p.From, p.To)
}

// DecodeMessage is a convenience combining DecodePacket and ParseMessage
// for a single complete frame.
func DecodeMessage(frame []byte) (Message, error) {
	p, err := DecodePacket(frame)
	if err != nil {
		return nil, err
	}
	return ParseMessage(p)
}
