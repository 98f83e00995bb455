// Package wallet tracks member balances for the Amoree marketplace.
//
// Each user has three running balances: available (spendable), escrow (held
// for bookings not yet settled), and total spending (lifetime completed
// spend). The balances are a cache over the append-only transactions log;
// every balance mutation writes a transaction row in the same unit of work.
//
// Balances are integers in the smallest currency unit and are mutated only
// through server-side privileged operations. Clients read, never write.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAccountNotFound   = errors.New("wallet: account not found")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
)

// PlatformAccountID is the reserved account that collects platform fees.
// It exists so fee retention shows up in the ledger instead of vanishing.
const PlatformAccountID = "platform"

// BalanceField selects which running balance a credit or debit applies to.
type BalanceField string

const (
	FieldAvailable BalanceField = "available"
	FieldEscrow    BalanceField = "escrow"
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TxRefund         TransactionType = "refund"
	TxBookingPayment TransactionType = "booking_payment"
	TxBookingEarning TransactionType = "booking_earning"
	TxTopup          TransactionType = "topup"
	TxWithdraw       TransactionType = "withdraw"
	TxEscrow         TransactionType = "escrow"
)

// StatusCompleted is the only transaction status this subsystem writes.
// There are no pending ledger states here.
const StatusCompleted = "completed"

// Account holds one user's running balances.
type Account struct {
	UserID        string    `json:"userId"`
	Available     int64     `json:"availableBalance"`
	Escrow        int64     `json:"escrowBalance"`
	TotalSpending int64     `json:"totalSpending"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"` // always positive
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	RelatedID   string          `json:"relatedId,omitempty"` // booking ID
	CreatedAt   time.Time       `json:"createdAt"`
}

// Settlement describes one atomic disposition of a booking's escrowed funds.
// Exactly one settlement is applied per booking, regardless of which
// resolution path produced it.
//
// Conservation invariant: EscrowRelease = BookerRefund + PartnerPayout +
// PlatformFee, and BookerSpend = EscrowRelease - BookerRefund. Validate
// rejects plans that do not balance, before any store mutation.
type Settlement struct {
	BookingID     string
	BookerID      string
	PartnerID     string
	EscrowRelease int64 // debited from booker's escrow (the full held amount)
	BookerRefund  int64 // credited to booker's available
	BookerSpend   int64 // added to booker's total spending
	PartnerPayout int64 // credited to partner's available
	PlatformFee   int64 // credited to the platform account
	Description   string
}

// Validate checks the settlement balances before it touches the ledger.
func (s Settlement) Validate() error {
	if s.BookingID == "" || s.BookerID == "" {
		return fmt.Errorf("%w: settlement missing booking or booker", ErrInvalidAmount)
	}
	if s.EscrowRelease <= 0 {
		return fmt.Errorf("%w: escrow release must be positive", ErrInvalidAmount)
	}
	if s.BookerRefund < 0 || s.PartnerPayout < 0 || s.PlatformFee < 0 || s.BookerSpend < 0 {
		return fmt.Errorf("%w: settlement legs must be non-negative", ErrInvalidAmount)
	}
	if s.BookerRefund+s.PartnerPayout+s.PlatformFee != s.EscrowRelease {
		return fmt.Errorf("%w: settlement does not conserve funds (release %d != refund %d + payout %d + fee %d)",
			ErrInvalidAmount, s.EscrowRelease, s.BookerRefund, s.PartnerPayout, s.PlatformFee)
	}
	if s.BookerSpend != s.EscrowRelease-s.BookerRefund {
		return fmt.Errorf("%w: booker spend %d must equal release minus refund", ErrInvalidAmount, s.BookerSpend)
	}
	if s.PartnerPayout > 0 && s.PartnerID == "" {
		return fmt.Errorf("%w: partner payout without partner", ErrInvalidAmount)
	}
	return nil
}

// Transactions returns the deterministic ledger entries for this settlement.
// IDs and timestamps are filled in by the store.
func (s Settlement) Transactions() []*Transaction {
	var txs []*Transaction
	if s.BookerRefund > 0 {
		txs = append(txs, &Transaction{
			UserID:      s.BookerID,
			Type:        TxRefund,
			Amount:      s.BookerRefund,
			Status:      StatusCompleted,
			Description: s.Description,
			RelatedID:   s.BookingID,
		})
	}
	if s.BookerSpend > 0 {
		txs = append(txs, &Transaction{
			UserID:      s.BookerID,
			Type:        TxBookingPayment,
			Amount:      s.BookerSpend,
			Status:      StatusCompleted,
			Description: s.Description,
			RelatedID:   s.BookingID,
		})
	}
	if s.PartnerPayout > 0 {
		txs = append(txs, &Transaction{
			UserID:      s.PartnerID,
			Type:        TxBookingEarning,
			Amount:      s.PartnerPayout,
			Status:      StatusCompleted,
			Description: s.Description,
			RelatedID:   s.BookingID,
		})
	}
	if s.PlatformFee > 0 {
		txs = append(txs, &Transaction{
			UserID:      PlatformAccountID,
			Type:        TxBookingEarning,
			Amount:      s.PlatformFee,
			Status:      StatusCompleted,
			Description: "platform fee",
			RelatedID:   s.BookingID,
		})
	}
	return txs
}

// Store persists wallet accounts and the transaction log. Every mutating
// operation applies the balance change and the transaction rows atomically.
type Store interface {
	GetAccount(ctx context.Context, userID string) (*Account, error)
	Credit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error
	Debit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error
	Hold(ctx context.Context, userID string, amount int64, relatedID, description string) error
	Settle(ctx context.Context, s Settlement) error
	History(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// Ledger manages member balances.
type Ledger struct {
	store Store
}

// New creates a new ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Balance returns a user's current balances.
func (l *Ledger) Balance(ctx context.Context, userID string) (*Account, error) {
	return l.store.GetAccount(ctx, userID)
}

// Topup credits a user's available balance (recorded by an operator after an
// out-of-band bank transfer; gateway integration lives elsewhere).
func (l *Ledger) Topup(ctx context.Context, userID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Credit(ctx, userID, FieldAvailable, amount, TxTopup, reference, "wallet topup")
}

// Withdraw debits a user's available balance.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acct.Available < amount {
		return ErrInsufficientFunds
	}
	return l.store.Debit(ctx, userID, FieldAvailable, amount, TxWithdraw, reference, "wallet withdrawal")
}

// HoldEscrow moves booking funds from a booker's available balance to escrow.
func (l *Ledger) HoldEscrow(ctx context.Context, bookerID string, amount int64, bookingID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acct, err := l.store.GetAccount(ctx, bookerID)
	if err != nil {
		return err
	}
	if acct.Available < amount {
		return ErrInsufficientFunds
	}
	return l.store.Hold(ctx, bookerID, amount, bookingID, "booking escrow hold")
}

// Settle applies one atomic settlement of escrowed booking funds.
func (l *Ledger) Settle(ctx context.Context, s Settlement) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return l.store.Settle(ctx, s)
}

// History returns recent ledger entries for a user.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, userID, limit)
}
