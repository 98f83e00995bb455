package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/amoree/amoree/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL.
//
// Non-negative balances are enforced by CHECK constraints, so a concurrent
// double-settle fails at the database rather than corrupting the cache.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_accounts (
			user_id         VARCHAR(64) PRIMARY KEY,
			available       BIGINT NOT NULL DEFAULT 0,
			escrow          BIGINT NOT NULL DEFAULT 0,
			total_spending  BIGINT NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_available_nonneg CHECK (available >= 0),
			CONSTRAINT chk_escrow_nonneg    CHECK (escrow >= 0),
			CONSTRAINT chk_spending_nonneg  CHECK (total_spending >= 0)
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id              VARCHAR(36) PRIMARY KEY,
			user_id         VARCHAR(64) NOT NULL,
			type            VARCHAR(20) NOT NULL,
			amount          BIGINT NOT NULL CHECK (amount > 0),
			status          VARCHAR(20) NOT NULL DEFAULT 'completed',
			description     TEXT,
			related_id      VARCHAR(64),
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_related ON transactions(related_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC);
	`)
	return err
}

func (p *PostgresStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	acct := &Account{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, escrow, total_spending, updated_at
		FROM wallet_accounts WHERE user_id = $1
	`, userID).Scan(&acct.Available, &acct.Escrow, &acct.TotalSpending, &acct.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Account{UserID: userID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (p *PostgresStore) Credit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	col := balanceColumn(field)
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO wallet_accounts (user_id, %[1]s, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			%[1]s      = wallet_accounts.%[1]s + $2,
			updated_at = NOW()
	`, col), userID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", mapPQError(err))
	}

	if err := insertTransaction(ctx, tx, userID, txType, amount, relatedID, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Debit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	col := balanceColumn(field)
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE wallet_accounts SET
			%[1]s      = %[1]s - $2,
			updated_at = NOW()
		WHERE user_id = $1
	`, col), userID, amount)
	if err != nil {
		// CHECK constraint violation means insufficient balance
		return fmt.Errorf("failed to update balance: %w", mapPQError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, userID, txType, amount, relatedID, description); err != nil {
		return err
	}
	return tx.Commit()
}

// Hold moves funds from available to escrow when a booking is created.
func (p *PostgresStore) Hold(ctx context.Context, userID string, amount int64, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET
			available  = available - $2,
			escrow     = escrow    + $2,
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to hold escrow: %w", mapPQError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAccountNotFound
	}

	if err := insertTransaction(ctx, tx, userID, TxEscrow, amount, relatedID, description); err != nil {
		return err
	}
	return tx.Commit()
}

// Settle applies one settlement across booker, partner, and platform accounts
// plus all of its transaction rows in a single database transaction.
func (p *PostgresStore) Settle(ctx context.Context, s Settlement) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Debit booker escrow; the CHECK constraint rejects a second settlement
	// of the same held funds.
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET
			escrow         = escrow - $2,
			available      = available + $3,
			total_spending = total_spending + $4,
			updated_at     = NOW()
		WHERE user_id = $1
	`, s.BookerID, s.EscrowRelease, s.BookerRefund, s.BookerSpend)
	if err != nil {
		return fmt.Errorf("failed to settle booker wallet: %w", mapPQError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAccountNotFound
	}

	if s.PartnerPayout > 0 {
		if err := upsertCredit(ctx, tx, s.PartnerID, s.PartnerPayout); err != nil {
			return fmt.Errorf("failed to credit partner: %w", err)
		}
	}
	if s.PlatformFee > 0 {
		if err := upsertCredit(ctx, tx, PlatformAccountID, s.PlatformFee); err != nil {
			return fmt.Errorf("failed to credit platform account: %w", err)
		}
	}

	for _, t := range s.Transactions() {
		if err := insertTransaction(ctx, tx, t.UserID, t.Type, t.Amount, t.RelatedID, t.Description); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, status, description, related_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Transaction
	for rows.Next() {
		e := &Transaction{}
		var description, relatedID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Status, &description, &relatedID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Description = description.String
		e.RelatedID = relatedID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func balanceColumn(field BalanceField) string {
	if field == FieldEscrow {
		return "escrow"
	}
	return "available"
}

func insertTransaction(ctx context.Context, tx *sql.Tx, userID string, txType TransactionType, amount int64, relatedID, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, status, description, related_id, created_at)
		VALUES ($1, $2, $3, $4, 'completed', $5, $6, NOW())
	`, idgen.WithPrefix("txn_"), userID, txType, amount, description, relatedID)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func upsertCredit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts (user_id, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = wallet_accounts.available + $2,
			updated_at = NOW()
	`, userID, amount)
	return err
}

// mapPQError translates CHECK-constraint violations into ErrInsufficientFunds.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" { // check_violation
		return ErrInsufficientFunds
	}
	return err
}
