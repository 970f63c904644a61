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

// Package pgstore is the optional persistent session-key store backed
// by PostgreSQL. Deployments that want sessions to survive a process
// restart point it at a database; everything else runs in-memory
// only. Key bytes never reach the database unwrapped.
package pgstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists session keys wrapped under a key-encryption key (KEK)
// so the database at rest never holds a usable session key.
type Store struct {
	db  *pgxpool.Pool
	kek cipher.AEAD
}

// New wraps an existing pgxpool.Pool. kek must be exactly 32 bytes
// (AES-256); callers typically derive it from config's
// StorageConfig.EncryptionKeyHex.
func New(db *pgxpool.Pool, kek []byte) (*Store, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("pgstore: kek: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pgstore: kek aead: %w", err)
	}
	return &Store{db: db, kek: aead}, nil
}

// Migrate creates the session_keys table if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_keys (
			conversation_id TEXT PRIMARY KEY,
			wrapped_key     BYTEA NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// SaveSessionKey wraps key under the KEK and upserts it.
func (s *Store) SaveSessionKey(ctx context.Context, conversationID string, key []byte) error {
	wrapped, err := s.wrap(key)
	if err != nil {
		return fmt.Errorf("pgstore: wrap: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO session_keys (conversation_id, wrapped_key)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET wrapped_key = $2, created_at = now()
	`, conversationID, wrapped)
	if err != nil {
		return fmt.Errorf("pgstore: save session key: %w", err)
	}
	return nil
}

// LoadSessionKey returns the unwrapped key for conversationID, or
// (nil, false, nil) if none is stored.
func (s *Store) LoadSessionKey(ctx context.Context, conversationID string) ([]byte, bool, error) {
	var wrapped []byte
	err := s.db.QueryRow(ctx, `
		SELECT wrapped_key FROM session_keys WHERE conversation_id = $1
	`, conversationID).Scan(&wrapped)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: load session key: %w", err)
	}
	key, err := s.unwrap(wrapped)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: unwrap: %w", err)
	}
	return key, true, nil
}

// DeleteSessionKey removes conversationID's persisted key, if any.
func (s *Store) DeleteSessionKey(ctx context.Context, conversationID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM session_keys WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("pgstore: delete session key: %w", err)
	}
	return nil
}

// LoadAll returns every persisted (conversation id, key) pair, for
// warm-starting an in-memory session.Store on process restart.
func (s *Store) LoadAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.Query(ctx, `SELECT conversation_id, wrapped_key FROM session_keys`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load all: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var wrapped []byte
		if err := rows.Scan(&id, &wrapped); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		key, err := s.unwrap(wrapped)
		if err != nil {
			return nil, fmt.Errorf("pgstore: unwrap %s: %w", id, err)
		}
		out[id] = key
	}
	return out, rows.Err()
}

func (s *Store) wrap(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.kek.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.kek.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) unwrap(data []byte) ([]byte, error) {
	n := s.kek.NonceSize()
	if len(data) < n {
		return nil, errors.New("wrapped key too short")
	}
	return s.kek.Open(nil, data[:n], data[n:], nil)
}
