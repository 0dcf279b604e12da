// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bastion-dev/bastion/internal/store"
)

// keyStore implements store.KeyStore. Keys are never deleted; revocation
// sets revoked_at so the audit trail stays attributable after rotation.
type keyStore struct {
	db *sql.DB
}

func (s *keyStore) Insert(ctx context.Context, key *store.APIKey) error {
	if key == nil || key.KeyID == "" || key.SecretHash == "" {
		return fmt.Errorf("api key requires key_id and secret_hash: %w", store.ErrInvalidInput)
	}

	const q = `INSERT INTO api_keys (key_id, secret_hash, prefix, created_at, revoked_at) VALUES (?, ?, ?, ?, ?)`

	var revokedAt any
	if key.RevokedAt != nil {
		revokedAt = formatTime(*key.RevokedAt)
	}
	_, err := s.db.ExecContext(ctx, q,
		key.KeyID, key.SecretHash, key.Prefix, formatTime(key.CreatedAt), revokedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting key %s: %w", key.KeyID, err)
	}
	return nil
}

func (s *keyStore) Get(ctx context.Context, keyID string) (*store.APIKey, error) {
	const q = `SELECT key_id, secret_hash, prefix, created_at, revoked_at FROM api_keys WHERE key_id = ?`

	key, err := scanKey(s.db.QueryRowContext(ctx, q, keyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("key %s: %w", keyID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting key %s: %w", keyID, err)
	}
	return key, nil
}

func (s *keyStore) List(ctx context.Context) ([]*store.APIKey, error) {
	const q = `SELECT key_id, secret_hash, prefix, created_at, revoked_at FROM api_keys ORDER BY created_at ASC, key_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var keys []*store.APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key row: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *keyStore) Revoke(ctx context.Context, keyID string, at time.Time) error {
	const q = `UPDATE api_keys SET revoked_at = ? WHERE key_id = ? AND revoked_at IS NULL`

	result, err := s.db.ExecContext(ctx, q, formatTime(at), keyID)
	if err != nil {
		return fmt.Errorf("revoking key %s: %w", keyID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for key %s: %w", keyID, err)
	}
	if rows == 0 {
		// Already revoked is not an error; a missing key is.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys WHERE key_id = ?`, keyID).Scan(&exists); err != nil {
			return fmt.Errorf("checking key %s: %w", keyID, err)
		}
		if exists == 0 {
			return fmt.Errorf("key %s: %w", keyID, store.ErrNotFound)
		}
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*store.APIKey, error) {
	var key store.APIKey
	var createdAt string
	var revokedAt sql.NullString
	if err := row.Scan(&key.KeyID, &key.SecretHash, &key.Prefix, &createdAt, &revokedAt); err != nil {
		return nil, err
	}

	var err error
	key.CreatedAt, err = ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s created_at: %w", key.KeyID, err)
	}
	if revokedAt.Valid && revokedAt.String != "" {
		t, err := ParseTime(revokedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing key %s revoked_at: %w", key.KeyID, err)
		}
		key.RevokedAt = &t
	}
	return &key, nil
}
