package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a PostgreSQL-backed API key store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL API key store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the api_keys table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			hash TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			revoked BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate api_keys table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, user_id, role, name, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, key.ID, key.Hash, key.UserID, key.Role, key.Name, key.CreatedAt, key.ExpiresAt, key.Revoked)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	var k APIKey
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hash, user_id, role, name, created_at, expires_at, revoked
		FROM api_keys WHERE hash = $1
	`, hash).Scan(&k.ID, &k.Hash, &k.UserID, &k.Role, &k.Name, &k.CreatedAt, &expiresAt, &k.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return &k, nil
}

func (s *PostgresStore) GetByUser(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, user_id, role, name, created_at, expires_at, revoked
		FROM api_keys WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKey
	for rows.Next() {
		var k APIKey
		var expiresAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.Hash, &k.UserID, &k.Role, &k.Name, &k.CreatedAt, &expiresAt, &k.Revoked); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}
