package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/dispute"
)

func resolvedFixture(res dispute.Resolution, amount int64) (*dispute.Dispute, *booking.Booking) {
	d := &dispute.Dispute{
		ID:               "dsp_aaaa0001",
		BookingID:        "bkg_aaaa0001",
		Status:           dispute.StatusResolved,
		Resolution:       res,
		ResolutionAmount: amount,
	}
	b := &booking.Booking{
		ID:             "bkg_aaaa0001",
		BookerID:       "usr_booker01",
		PartnerID:      "usr_partner1",
		TotalAmount:    1_000_000,
		PartnerEarning: 700_000,
		PlatformFee:    300_000,
	}
	return d, b
}

func TestDisputeResolved_NotifiesBothParties(t *testing.T) {
	store := NewMemoryStore()
	emitter := NewEmitter(store)
	d, b := resolvedFixture(dispute.ResolutionRefundPartial, 400_000)

	emitter.DisputeResolved(context.Background(), d, b)

	for _, uid := range []string{b.BookerID, b.PartnerID} {
		got, err := store.ListByUser(context.Background(), uid, 10)
		if err != nil {
			t.Fatalf("ListByUser(%s) failed: %v", uid, err)
		}
		if len(got) != 1 {
			t.Fatalf("expected one notification for %s, got %d", uid, len(got))
		}
		n := got[0]
		if n.Type != TypeDisputeResolved {
			t.Errorf("type = %s, want %s", n.Type, TypeDisputeResolved)
		}
		if n.Data["disputeId"] != d.ID || n.Data["bookingId"] != b.ID || n.Data["resolution"] != "refund_partial" {
			t.Errorf("payload data incomplete: %v", n.Data)
		}
		if n.Read {
			t.Error("new notification must be unread")
		}
	}
}

func TestDisputeResolved_MessagesKeyedByResolution(t *testing.T) {
	store := NewMemoryStore()
	emitter := NewEmitter(store)

	seen := make(map[string]bool)
	for _, res := range []dispute.Resolution{
		dispute.ResolutionRefundFull,
		dispute.ResolutionRefundPartial,
		dispute.ResolutionReleaseToPartner,
		dispute.ResolutionNoAction,
	} {
		d, b := resolvedFixture(res, 400_000)
		emitter.DisputeResolved(context.Background(), d, b)

		got, err := store.ListByUser(context.Background(), b.BookerID, 10)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		msg := got[0].Message
		if msg == "" {
			t.Errorf("%s: empty booker message", res)
		}
		if seen[msg] {
			t.Errorf("%s: message not distinct: %q", res, msg)
		}
		seen[msg] = true
	}
}

func TestMarkRead_ScopedToOwner(t *testing.T) {
	store := NewMemoryStore()
	n := &Notification{ID: "ntf_aaaa0001", UserID: "usr_booker01", Type: TypeDisputeResolved}
	if err := store.Create(context.Background(), n); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.MarkRead(context.Background(), n.ID, "usr_partner1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user marking read: expected ErrNotFound, got %v", err)
	}
	if err := store.MarkRead(context.Background(), n.ID, "usr_booker01"); err != nil {
		t.Fatalf("owner MarkRead failed: %v", err)
	}

	got, _ := store.ListByUser(context.Background(), "usr_booker01", 10)
	if !got[0].Read {
		t.Error("notification should be read")
	}
}

// failingStore always errors, to verify emit never panics or propagates.
type failingStore struct{ Store }

func (f *failingStore) Create(ctx context.Context, n *Notification) error {
	return errors.New("disk full")
}

func TestEmit_FailureIsSwallowed(t *testing.T) {
	emitter := NewEmitter(&failingStore{})
	d, b := resolvedFixture(dispute.ResolutionRefundFull, 0)
	// Must not panic and must not surface the error.
	emitter.DisputeResolved(context.Background(), d, b)
}
