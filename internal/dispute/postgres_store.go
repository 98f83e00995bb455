package dispute

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is a PostgreSQL-backed dispute store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the disputes table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS disputes (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			filed_by TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'open',
			resolution TEXT NOT NULL DEFAULT '',
			resolution_amount BIGINT NOT NULL DEFAULT 0,
			resolution_notes TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_disputes_open_booking
			ON disputes(booking_id) WHERE status = 'open';
		CREATE INDEX IF NOT EXISTS idx_disputes_status ON disputes(status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate disputes table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, booking_id, filed_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.BookingID, d.FiledBy, d.Reason, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, booking_id, filed_by, reason, status, resolution,
			resolution_amount, resolution_notes, resolved_by, created_at, resolved_at
		FROM disputes WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetOpenByBooking(ctx context.Context, bookingID string) (*Dispute, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, booking_id, filed_by, reason, status, resolution,
			resolution_amount, resolution_notes, resolved_by, created_at, resolved_at
		FROM disputes WHERE booking_id = $1 AND status = 'open'
	`, bookingID))
}

// Claim is the resolution commit point. The WHERE status = 'open' clause makes
// the update conditional: of any number of concurrent resolvers exactly one
// matches the row, and every other caller observes zero rows affected.
func (s *PostgresStore) Claim(ctx context.Context, id string, res Resolution, amount int64, notes, resolvedBy string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'resolved',
			resolution = $2,
			resolution_amount = $3,
			resolution_notes = $4,
			resolved_by = $5,
			resolved_at = $6
		WHERE id = $1 AND status = 'open'
	`, id, string(res), amount, notes, resolvedBy, at)
	if err != nil {
		return fmt.Errorf("failed to claim dispute: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim result: %w", err)
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, filed_by, reason, status, resolution,
			resolution_amount, resolution_notes, resolved_by, created_at, resolved_at
		FROM disputes WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		var d Dispute
		var resolvedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.BookingID, &d.FiledBy, &d.Reason, &d.Status, &d.Resolution,
			&d.ResolutionAmount, &d.ResolutionNotes, &d.ResolvedBy, &d.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		if resolvedAt.Valid {
			d.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Dispute, error) {
	var d Dispute
	var resolvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.BookingID, &d.FiledBy, &d.Reason, &d.Status, &d.Resolution,
		&d.ResolutionAmount, &d.ResolutionNotes, &d.ResolvedBy, &d.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}
