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

package client

import (
	"context"

	"github.com/sage-x-project/securechat/pkg/events"
	"github.com/sage-x-project/securechat/pkg/session"
	"github.com/sage-x-project/securechat/pkg/session/pgstore"
)

// EnablePersistence warm-starts the in-memory session store from the
// persistent key store and keeps it updated: private session keys are
// saved when an exchange completes, group keys when a rotation lands.
// Relay pairing keys are never persisted; they are ephemeral per
// connection.
//
// Call before Register/Reconnect so restored sessions are usable as
// soon as the account binds.
func (c *Client) EnablePersistence(ctx context.Context, store *pgstore.Store) error {
	keys, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for conv, key := range keys {
		c.store.Store(conv, key)
	}

	c.bus.Subscribe(events.KindSecureConversationEstablished, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.SecureConversationEstablished)
		conv := session.PrivateConversationID(c.self, m.PeerID)
		if key, ok := c.store.GetKey(conv); ok {
			_ = store.SaveSessionKey(ctx, conv, key)
		}
	})
	c.bus.Subscribe(events.KindGroupKeyRotated, events.ModeAsync, func(ev events.Event) {
		m := ev.(events.GroupKeyRotated)
		conv := session.GroupConversationID(m.GroupID)
		if key, ok := c.store.GetKey(conv); ok {
			_ = store.SaveSessionKey(ctx, conv, key)
		}
	})
	return nil
}
