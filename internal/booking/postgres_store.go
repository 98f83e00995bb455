package booking

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed booking store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL booking store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the bookings table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			booker_id TEXT NOT NULL,
			partner_id TEXT NOT NULL,
			total_amount BIGINT NOT NULL CHECK (total_amount > 0),
			partner_earning BIGINT NOT NULL CHECK (partner_earning > 0),
			platform_fee BIGINT NOT NULL CHECK (platform_fee >= 0),
			status TEXT NOT NULL,
			payout_status TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (total_amount = partner_earning + platform_fee)
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_booker ON bookings(booker_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_bookings_partner ON bookings(partner_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate bookings table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, booker_id, partner_id, total_amount, partner_earning,
			platform_fee, status, payout_status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.BookerID, b.PartnerID, b.TotalAmount, b.PartnerEarning,
		b.PlatformFee, b.Status, b.PayoutStatus, b.Note, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	var b Booking
	err := s.db.QueryRowContext(ctx, `
		SELECT id, booker_id, partner_id, total_amount, partner_earning,
			platform_fee, status, payout_status, note, created_at, updated_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.BookerID, &b.PartnerID, &b.TotalAmount, &b.PartnerEarning,
		&b.PlatformFee, &b.Status, &b.PayoutStatus, &b.Note, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// Transition performs a conditional status update. The WHERE clause on the
// current status makes the transition atomic: concurrent callers race on the
// row and exactly one wins.
func (s *PostgresStore) Transition(ctx context.Context, id string, from []Status, to Status, payout PayoutStatus) error {
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2,
			payout_status = COALESCE(NULLIF($3, ''), payout_status),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, string(to), string(payout), pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("failed to transition booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition result: %w", err)
	}
	if n == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booker_id, partner_id, total_amount, partner_earning,
			platform_fee, status, payout_status, note, created_at, updated_at
		FROM bookings
		WHERE booker_id = $1 OR partner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.BookerID, &b.PartnerID, &b.TotalAmount, &b.PartnerEarning,
			&b.PlatformFee, &b.Status, &b.PayoutStatus, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
