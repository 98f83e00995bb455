package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/amoree/amoree/internal/idgen"
)

// MemoryStore is an in-memory wallet store for demo/development mode.
type MemoryStore struct {
	accounts map[string]*Account
	entries  []*Transaction
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
	}
}

func (m *MemoryStore) account(userID string) *Account {
	acct, ok := m.accounts[userID]
	if !ok {
		acct = &Account{UserID: userID, UpdatedAt: time.Now()}
		m.accounts[userID] = acct
	}
	return acct
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acct, ok := m.accounts[userID]; ok {
		cp := *acct
		return &cp, nil
	}
	return &Account{UserID: userID, UpdatedAt: time.Now()}, nil
}

func (m *MemoryStore) append(userID string, txType TransactionType, amount int64, relatedID, description string) {
	m.entries = append(m.entries, &Transaction{
		ID:          idgen.WithPrefix("txn_"),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Status:      StatusCompleted,
		Description: description,
		RelatedID:   relatedID,
		CreatedAt:   time.Now(),
	})
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct := m.account(userID)
	switch field {
	case FieldEscrow:
		acct.Escrow += amount
	default:
		acct.Available += amount
	}
	acct.UpdatedAt = time.Now()
	m.append(userID, txType, amount, relatedID, description)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, userID string, field BalanceField, amount int64, txType TransactionType, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	switch field {
	case FieldEscrow:
		if acct.Escrow < amount {
			return ErrInsufficientFunds
		}
		acct.Escrow -= amount
	default:
		if acct.Available < amount {
			return ErrInsufficientFunds
		}
		acct.Available -= amount
	}
	acct.UpdatedAt = time.Now()
	m.append(userID, txType, amount, relatedID, description)
	return nil
}

func (m *MemoryStore) Hold(ctx context.Context, userID string, amount int64, relatedID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Available < amount {
		return ErrInsufficientFunds
	}
	acct.Available -= amount
	acct.Escrow += amount
	acct.UpdatedAt = time.Now()
	m.append(userID, TxEscrow, amount, relatedID, description)
	return nil
}

func (m *MemoryStore) Settle(ctx context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	booker, ok := m.accounts[s.BookerID]
	if !ok {
		return ErrAccountNotFound
	}
	if booker.Escrow < s.EscrowRelease {
		return ErrInsufficientFunds
	}

	now := time.Now()
	booker.Escrow -= s.EscrowRelease
	booker.Available += s.BookerRefund
	booker.TotalSpending += s.BookerSpend
	booker.UpdatedAt = now

	if s.PartnerPayout > 0 {
		partner := m.account(s.PartnerID)
		partner.Available += s.PartnerPayout
		partner.UpdatedAt = now
	}
	if s.PlatformFee > 0 {
		platform := m.account(PlatformAccountID)
		platform.Available += s.PlatformFee
		platform.UpdatedAt = now
	}

	for _, tx := range s.Transactions() {
		m.append(tx.UserID, tx.Type, tx.Amount, tx.RelatedID, tx.Description)
	}
	return nil
}

func (m *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first
	var out []*Transaction
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			cp := *m.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
