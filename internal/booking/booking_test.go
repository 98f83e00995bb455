package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amoree/amoree/internal/wallet"
)

// fakeLedger records settlement calls without owning real balances.
type fakeLedger struct {
	mu          sync.Mutex
	holds       []int64
	settlements []wallet.Settlement
	holdErr     error
	settleErr   error
}

func (f *fakeLedger) HoldEscrow(ctx context.Context, bookerID string, amount int64, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holdErr != nil {
		return f.holdErr
	}
	f.holds = append(f.holds, amount)
	return nil
}

func (f *fakeLedger) Settle(ctx context.Context, s wallet.Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return f.settleErr
	}
	f.settlements = append(f.settlements, s)
	return nil
}

func newTestService() (*Service, *fakeLedger) {
	ledger := &fakeLedger{}
	return NewService(NewMemoryStore(), ledger), ledger
}

func createTestBooking(t *testing.T, svc *Service) *Booking {
	t.Helper()
	b, err := svc.Create(context.Background(), "usr_booker01", CreateRequest{
		PartnerID:      "usr_partner1",
		TotalAmount:    1_000_000,
		PartnerEarning: 700_000,
		PlatformFee:    300_000,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return b
}

func TestCreate_EscrowsFunds(t *testing.T) {
	svc, ledger := newTestService()
	b := createTestBooking(t, svc)

	if b.Status != StatusPending || b.PayoutStatus != PayoutHeld {
		t.Errorf("expected pending/held, got %s/%s", b.Status, b.PayoutStatus)
	}
	if len(ledger.holds) != 1 || ledger.holds[0] != 1_000_000 {
		t.Errorf("expected one escrow hold of 1000000, got %v", ledger.holds)
	}
}

func TestCreate_RejectsBadAmounts(t *testing.T) {
	svc, _ := newTestService()

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"zero total", CreateRequest{PartnerID: "usr_p1", TotalAmount: 0, PartnerEarning: 1}, ErrInvalidAmount},
		{"negative earning", CreateRequest{PartnerID: "usr_p1", TotalAmount: 100, PartnerEarning: -1}, ErrInvalidAmount},
		{"sum mismatch", CreateRequest{PartnerID: "usr_p1", TotalAmount: 100, PartnerEarning: 50, PlatformFee: 40}, ErrAmountsDontAddUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), "usr_booker01", tc.req); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_RejectsSelfBooking(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), "usr_same0001", CreateRequest{
		PartnerID: "usr_same0001", TotalAmount: 100, PartnerEarning: 100,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreate_EscrowFailurePropagates(t *testing.T) {
	svc, ledger := newTestService()
	ledger.holdErr = wallet.ErrInsufficientFunds

	_, err := svc.Create(context.Background(), "usr_booker01", CreateRequest{
		PartnerID: "usr_partner1", TotalAmount: 100, PartnerEarning: 100,
	})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestAccept_OnlyPartner(t *testing.T) {
	svc, _ := newTestService()
	b := createTestBooking(t, svc)

	if _, err := svc.Accept(context.Background(), b.ID, "usr_booker01"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("booker accepting: expected ErrUnauthorized, got %v", err)
	}

	got, err := svc.Accept(context.Background(), b.ID, "usr_partner1")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("expected accepted, got %s", got.Status)
	}
}

func TestComplete_PaysPartnerAndFee(t *testing.T) {
	svc, ledger := newTestService()
	b := createTestBooking(t, svc)
	if _, err := svc.Accept(context.Background(), b.ID, "usr_partner1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	got, err := svc.Complete(context.Background(), b.ID, "usr_booker01")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Status != StatusCompleted || got.PayoutStatus != PayoutPaid {
		t.Errorf("expected completed/paid, got %s/%s", got.Status, got.PayoutStatus)
	}

	if len(ledger.settlements) != 1 {
		t.Fatalf("expected one settlement, got %d", len(ledger.settlements))
	}
	s := ledger.settlements[0]
	if s.EscrowRelease != 1_000_000 || s.PartnerPayout != 700_000 || s.PlatformFee != 300_000 || s.BookerSpend != 1_000_000 {
		t.Errorf("unexpected settlement legs: %+v", s)
	}
	if s.BookerRefund != 0 {
		t.Errorf("completion must not refund the booker, got %d", s.BookerRefund)
	}
}

func TestComplete_OnlyBooker(t *testing.T) {
	svc, _ := newTestService()
	b := createTestBooking(t, svc)
	if _, err := svc.Accept(context.Background(), b.ID, "usr_partner1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), b.ID, "usr_partner1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("partner completing: expected ErrUnauthorized, got %v", err)
	}
}

func TestComplete_SettlesExactlyOnce(t *testing.T) {
	svc, ledger := newTestService()
	b := createTestBooking(t, svc)
	if _, err := svc.Accept(context.Background(), b.ID, "usr_partner1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Complete(context.Background(), b.ID, "usr_booker01")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("loser should see ErrInvalidStatus, got %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if len(ledger.settlements) != 1 {
		t.Errorf("expected exactly one settlement, got %d", len(ledger.settlements))
	}
}

func TestCancel_RefundsBooker(t *testing.T) {
	svc, ledger := newTestService()
	b := createTestBooking(t, svc)

	got, err := svc.Cancel(context.Background(), b.ID, "usr_partner1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != StatusCancelled || got.PayoutStatus != PayoutRefunded {
		t.Errorf("expected cancelled/refunded, got %s/%s", got.Status, got.PayoutStatus)
	}

	if len(ledger.settlements) != 1 {
		t.Fatalf("expected one settlement, got %d", len(ledger.settlements))
	}
	s := ledger.settlements[0]
	if s.BookerRefund != 1_000_000 || s.PartnerPayout != 0 || s.PlatformFee != 0 {
		t.Errorf("cancel must refund in full: %+v", s)
	}
}

func TestCancel_RejectedAfterCompletion(t *testing.T) {
	svc, _ := newTestService()
	b := createTestBooking(t, svc)
	if _, err := svc.Accept(context.Background(), b.ID, "usr_partner1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), b.ID, "usr_booker01"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), b.ID, "usr_booker01"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestMarkDisputed_BlocksCompletion(t *testing.T) {
	svc, ledger := newTestService()
	b := createTestBooking(t, svc)
	if _, err := svc.Accept(context.Background(), b.ID, "usr_partner1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if err := svc.MarkDisputed(context.Background(), b.ID); err != nil {
		t.Fatalf("MarkDisputed failed: %v", err)
	}

	if _, err := svc.Complete(context.Background(), b.ID, "usr_booker01"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus while disputed, got %v", err)
	}
	if len(ledger.settlements) != 0 {
		t.Errorf("no settlement may happen while disputed, got %d", len(ledger.settlements))
	}
}

func TestListByUser_SeesBothSides(t *testing.T) {
	svc, _ := newTestService()
	b := createTestBooking(t, svc)

	for _, uid := range []string{b.BookerID, b.PartnerID} {
		got, err := svc.ListByUser(context.Background(), uid, 10)
		if err != nil {
			t.Fatalf("ListByUser(%s) failed: %v", uid, err)
		}
		if len(got) != 1 || got[0].ID != b.ID {
			t.Errorf("ListByUser(%s): expected the booking, got %v", uid, got)
		}
	}
}
