package wallet

import (
	"context"
	"errors"
	"testing"
)

func seedAccount(t *testing.T, store *MemoryStore, userID string, available int64) {
	t.Helper()
	if err := store.Credit(context.Background(), userID, FieldAvailable, available, TxTopup, "", "seed"); err != nil {
		t.Fatalf("seed %s: %v", userID, err)
	}
}

func TestTopup_CreditsAvailable(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()

	if err := ledger.Topup(ctx, "usr_a1b2c3d4", 500_000, "bank-ref-1"); err != nil {
		t.Fatalf("topup: %v", err)
	}

	acct, _ := ledger.Balance(ctx, "usr_a1b2c3d4")
	if acct.Available != 500_000 {
		t.Errorf("available = %d, want 500000", acct.Available)
	}

	history, _ := ledger.History(ctx, "usr_a1b2c3d4", 10)
	if len(history) != 1 || history[0].Type != TxTopup {
		t.Errorf("expected one topup entry, got %v", history)
	}
}

func TestTopup_RejectsNonPositive(t *testing.T) {
	ledger := New(NewMemoryStore())
	for _, amount := range []int64{0, -100} {
		if err := ledger.Topup(context.Background(), "usr_a1b2c3d4", amount, ""); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("topup(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()
	seedAccount(t, store, "usr_a1b2c3d4", 1000)

	if err := ledger.Withdraw(ctx, "usr_a1b2c3d4", 2000, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	acct, _ := ledger.Balance(ctx, "usr_a1b2c3d4")
	if acct.Available != 1000 {
		t.Errorf("failed withdraw must not change balance, got %d", acct.Available)
	}
}

func TestHoldEscrow_MovesAvailableToEscrow(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()
	seedAccount(t, store, "usr_booker01", 1_000_000)

	if err := ledger.HoldEscrow(ctx, "usr_booker01", 1_000_000, "bkg_0001"); err != nil {
		t.Fatalf("hold: %v", err)
	}

	acct, _ := ledger.Balance(ctx, "usr_booker01")
	if acct.Available != 0 || acct.Escrow != 1_000_000 {
		t.Errorf("got available=%d escrow=%d, want 0/1000000", acct.Available, acct.Escrow)
	}

	history, _ := ledger.History(ctx, "usr_booker01", 10)
	if history[0].Type != TxEscrow || history[0].RelatedID != "bkg_0001" {
		t.Errorf("expected escrow entry tied to booking, got %+v", history[0])
	}
}

func TestSettlement_Validate(t *testing.T) {
	base := Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		PartnerID:     "usr_partner1",
		EscrowRelease: 1_000_000,
		BookerRefund:  400_000,
		BookerSpend:   600_000,
		PartnerPayout: 420_000,
		PlatformFee:   180_000,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("balanced settlement rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Settlement)
	}{
		{"zero release", func(s *Settlement) { s.EscrowRelease = 0 }},
		{"negative refund", func(s *Settlement) { s.BookerRefund = -1 }},
		{"does not conserve", func(s *Settlement) { s.PlatformFee += 1 }},
		{"spend mismatch", func(s *Settlement) { s.BookerSpend = 0 }},
		{"missing booking", func(s *Settlement) { s.BookingID = "" }},
		{"payout without partner", func(s *Settlement) { s.PartnerID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestSettlement_Transactions_Deterministic(t *testing.T) {
	s := Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		PartnerID:     "usr_partner1",
		EscrowRelease: 1_000_000,
		BookerRefund:  400_000,
		BookerSpend:   600_000,
		PartnerPayout: 420_000,
		PlatformFee:   180_000,
		Description:   "dispute resolved: partial refund",
	}

	txs := s.Transactions()
	if len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(txs))
	}
	if txs[0].Type != TxRefund || txs[0].Amount != 400_000 || txs[0].UserID != "usr_booker01" {
		t.Errorf("bad refund entry: %+v", txs[0])
	}
	if txs[1].Type != TxBookingPayment || txs[1].Amount != 600_000 {
		t.Errorf("bad payment entry: %+v", txs[1])
	}
	if txs[2].Type != TxBookingEarning || txs[2].UserID != "usr_partner1" || txs[2].Amount != 420_000 {
		t.Errorf("bad earning entry: %+v", txs[2])
	}
	if txs[3].UserID != PlatformAccountID || txs[3].Amount != 180_000 {
		t.Errorf("bad platform entry: %+v", txs[3])
	}
}

func TestSettlement_Transactions_FullRefundOmitsEmptyLegs(t *testing.T) {
	s := Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		EscrowRelease: 1_000_000,
		BookerRefund:  1_000_000,
	}
	txs := s.Transactions()
	if len(txs) != 1 || txs[0].Type != TxRefund {
		t.Fatalf("full refund must produce exactly one refund entry, got %v", txs)
	}
}

func TestSettle_AppliesAllLegs(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()

	seedAccount(t, store, "usr_booker01", 1_000_000)
	if err := ledger.HoldEscrow(ctx, "usr_booker01", 1_000_000, "bkg_0001"); err != nil {
		t.Fatal(err)
	}

	err := ledger.Settle(ctx, Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		PartnerID:     "usr_partner1",
		EscrowRelease: 1_000_000,
		BookerSpend:   1_000_000,
		PartnerPayout: 700_000,
		PlatformFee:   300_000,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	booker, _ := ledger.Balance(ctx, "usr_booker01")
	if booker.Escrow != 0 || booker.Available != 0 || booker.TotalSpending != 1_000_000 {
		t.Errorf("booker after release: %+v", booker)
	}
	partner, _ := ledger.Balance(ctx, "usr_partner1")
	if partner.Available != 700_000 {
		t.Errorf("partner available = %d, want 700000", partner.Available)
	}
	platform, _ := ledger.Balance(ctx, PlatformAccountID)
	if platform.Available != 300_000 {
		t.Errorf("platform available = %d, want 300000", platform.Available)
	}
}

func TestSettle_RejectsWhenEscrowShort(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()

	seedAccount(t, store, "usr_booker01", 500)
	if err := ledger.HoldEscrow(ctx, "usr_booker01", 500, "bkg_0001"); err != nil {
		t.Fatal(err)
	}

	err := ledger.Settle(ctx, Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		EscrowRelease: 1_000,
		BookerRefund:  1_000,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// No partial application
	acct, _ := ledger.Balance(ctx, "usr_booker01")
	if acct.Escrow != 500 || acct.Available != 0 {
		t.Errorf("failed settle must not mutate balances: %+v", acct)
	}
}

func TestSettle_UnbalancedPlanRejectedBeforeStore(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()

	seedAccount(t, store, "usr_booker01", 1_000)
	_ = ledger.HoldEscrow(ctx, "usr_booker01", 1_000, "bkg_0001")

	err := ledger.Settle(ctx, Settlement{
		BookingID:     "bkg_0001",
		BookerID:      "usr_booker01",
		EscrowRelease: 1_000,
		BookerRefund:  900, // missing 100
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	history, _ := ledger.History(ctx, "usr_booker01", 10)
	for _, e := range history {
		if e.Type == TxRefund {
			t.Error("rejected settlement must not write ledger entries")
		}
	}
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	store := NewMemoryStore()
	ledger := New(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedAccount(t, store, "usr_a1b2c3d4", 100)
	}
	history, _ := ledger.History(ctx, "usr_a1b2c3d4", 3)
	if len(history) != 3 {
		t.Errorf("expected 3 entries, got %d", len(history))
	}
}
