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

import "encoding/json"

// ManagementMessage covers the group/contact management kinds whose
// parameters vary by kind: CREATE_GROUP, LEAVE_GROUP, ADD_GROUP_MEMBER,
// REMOVE_GROUP_MEMBER, REMOVE_CONTACT. Parameters travel as a JSON
// object in the final pipe-delimited field, so new parameters never
// change the field count.
type ManagementMessage struct {
	Header
	Kind   MessageType
	Params map[string]any
}

func (m *ManagementMessage) Type() MessageType { return m.Kind }

func (m *ManagementMessage) Encode() ([]byte, error) {
	if err := m.Header.validate(); err != nil {
		return nil, err
	}
	params := m.Params
	if params == nil {
		params = map[string]any{}
	}
	js, err := json.Marshal(params)
	if err != nil {
		return nil, &EncodeError{Message: "marshal management params: " + err.Error()}
	}
	return append([]byte(encodeTextHeader(m.Header)), js...), nil
}

func decodeManagementMessage(kind MessageType) decodeFunc {
	return func(payload []byte, from, to int32) (Message, error) {
		parts, err := splitTextFields(payload, 3)
		if err != nil {
			return nil, err
		}
		hdr, err := parseTextHeader(parts)
		if err != nil {
			return nil, err
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(parts[2]), &params); err != nil {
			return nil, NewDecodeError(ReasonInvalidPayload, err)
		}
		hdr.FromID, hdr.ToID = from, to
		return &ManagementMessage{Header: hdr, Kind: kind, Params: params}, nil
	}
}

// NewCreateGroupMessage builds the CREATE_GROUP management message.
func NewCreateGroupMessage(hdr Header, groupID, adminID int32) *ManagementMessage {
	return &ManagementMessage{Header: hdr, Kind: TypeCreateGroup, Params: map[string]any{
		"group_id": groupID, "admin_id": adminID,
	}}
}

// NewLeaveGroupMessage builds the LEAVE_GROUP management message.
func NewLeaveGroupMessage(hdr Header, groupID int32) *ManagementMessage {
	return &ManagementMessage{Header: hdr, Kind: TypeLeaveGroup, Params: map[string]any{
		"group_id": groupID,
	}}
}

// NewAddGroupMemberMessage builds the ADD_GROUP_MEMBER management message.
func NewAddGroupMemberMessage(hdr Header, groupID, memberID int32) *ManagementMessage {
	return &ManagementMessage{Header: hdr, Kind: TypeAddGroupMember, Params: map[string]any{
		"group_id": groupID, "member_id": memberID,
	}}
}

// NewRemoveGroupMemberMessage builds the REMOVE_GROUP_MEMBER management message.
func NewRemoveGroupMemberMessage(hdr Header, groupID, memberID int32) *ManagementMessage {
	return &ManagementMessage{Header: hdr, Kind: TypeRemoveGroupMember, Params: map[string]any{
		"group_id": groupID, "member_id": memberID,
	}}
}

// NewRemoveContactMessage builds the REMOVE_CONTACT management message.
func NewRemoveContactMessage(hdr Header, contactID int32) *ManagementMessage {
	return &ManagementMessage{Header: hdr, Kind: TypeRemoveContact, Params: map[string]any{
		"contact_id": contactID,
	}}
}
