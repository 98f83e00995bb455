// Package booking manages date bookings and their escrow lifecycle.
//
// Flow:
//  1. Booker creates a booking → funds moved: available → escrow
//  2. Partner accepts → date happens
//  3. Booker confirms completion → escrow settled: partner paid, fee retained
//  4. Either party cancels before completion → escrow refunded to booker
//  5. A filed dispute pauses the booking until an admin resolves it
//
// A booking's held funds are settled exactly once; every settlement path goes
// through the same wallet settlement primitive.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amoree/amoree/internal/idgen"
	"github.com/amoree/amoree/internal/metrics"
	"github.com/amoree/amoree/internal/traces"
	"github.com/amoree/amoree/internal/wallet"
)

var (
	ErrBookingNotFound   = errors.New("booking: not found")
	ErrInvalidStatus     = errors.New("booking: invalid status for this operation")
	ErrUnauthorized      = errors.New("booking: not authorized for this operation")
	ErrInvalidAmount     = errors.New("booking: invalid amount")
	ErrAmountsDontAddUp  = errors.New("booking: total must equal partner earning plus platform fee")
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
)

// Status represents the state of a booking.
type Status string

const (
	StatusPending          Status = "pending"           // Created, funds escrowed, awaiting partner
	StatusAccepted         Status = "accepted"          // Partner accepted the date
	StatusCompletedPending Status = "completed_pending" // Date over, awaiting confirmation
	StatusCompleted        Status = "completed"         // Settled, partner paid
	StatusCancelled        Status = "cancelled"         // Settled, booker refunded
	StatusDisputed         Status = "disputed"          // Paused pending arbitration
)

// PayoutStatus tracks where the booking's held funds went.
type PayoutStatus string

const (
	PayoutHeld          PayoutStatus = "held"
	PayoutPaid          PayoutStatus = "paid"
	PayoutRefunded      PayoutStatus = "refunded"
	PayoutPartialRefund PayoutStatus = "partial_refund"
)

// Booking is the unit of commerce.
type Booking struct {
	ID             string       `json:"id"`
	BookerID       string       `json:"userId"`
	PartnerID      string       `json:"partnerId"`
	TotalAmount    int64        `json:"totalAmount"`
	PartnerEarning int64        `json:"partnerEarning"`
	PlatformFee    int64        `json:"platformFee"`
	Status         Status       `json:"status"`
	PayoutStatus   PayoutStatus `json:"payoutStatus"`
	Note           string       `json:"note,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IsSettled reports whether the booking's funds have already been disposed of.
func (b *Booking) IsSettled() bool {
	return b.PayoutStatus != PayoutHeld
}

// Store persists booking records.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	// Transition conditionally moves a booking from one of the given statuses
	// to the target status. Zero rows matched means the booking was not in an
	// allowed state (or does not exist) and ErrInvalidStatus is returned.
	// An empty payout leaves payout_status unchanged.
	Transition(ctx context.Context, id string, from []Status, to Status, payout PayoutStatus) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error)
}

// LedgerService abstracts wallet operations so booking doesn't own balances.
type LedgerService interface {
	HoldEscrow(ctx context.Context, bookerID string, amount int64, bookingID string) error
	Settle(ctx context.Context, s wallet.Settlement) error
}

// CreateRequest contains the parameters for creating a booking.
type CreateRequest struct {
	PartnerID      string `json:"partnerId" binding:"required"`
	TotalAmount    int64  `json:"totalAmount" binding:"required"`
	PartnerEarning int64  `json:"partnerEarning" binding:"required"`
	PlatformFee    int64  `json:"platformFee"`
	Note           string `json:"note"`
}

// Service implements booking business logic.
type Service struct {
	store  Store
	ledger LedgerService
	locks  sync.Map // per-booking ID locks to serialize state transitions
}

// NewService creates a new booking service.
func NewService(store Store, ledger LedgerService) *Service {
	return &Service{store: store, ledger: ledger}
}

func (s *Service) bookingLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create creates a booking and escrows the booker's funds.
func (s *Service) Create(ctx context.Context, bookerID string, req CreateRequest) (*Booking, error) {
	ctx, span := traces.StartSpan(ctx, "booking.Create",
		traces.UserID(bookerID),
		traces.Amount(req.TotalAmount),
	)
	defer span.End()

	if bookerID == req.PartnerID {
		return nil, fmt.Errorf("%w: booker and partner cannot be the same user", ErrUnauthorized)
	}
	if req.TotalAmount <= 0 || req.PartnerEarning <= 0 || req.PlatformFee < 0 {
		return nil, ErrInvalidAmount
	}
	if req.TotalAmount != req.PartnerEarning+req.PlatformFee {
		return nil, ErrAmountsDontAddUp
	}

	now := time.Now()
	b := &Booking{
		ID:             idgen.WithPrefix("bkg_"),
		BookerID:       bookerID,
		PartnerID:      req.PartnerID,
		TotalAmount:    req.TotalAmount,
		PartnerEarning: req.PartnerEarning,
		PlatformFee:    req.PlatformFee,
		Status:         StatusPending,
		PayoutStatus:   PayoutHeld,
		Note:           req.Note,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Escrow booker funds
	if err := s.ledger.HoldEscrow(ctx, bookerID, b.TotalAmount, b.ID); err != nil {
		return nil, fmt.Errorf("failed to escrow booking funds: %w", err)
	}

	if err := s.store.Create(ctx, b); err != nil {
		// Best-effort refund if store fails
		_ = s.ledger.Settle(ctx, wallet.Settlement{
			BookingID:     b.ID,
			BookerID:      bookerID,
			EscrowRelease: b.TotalAmount,
			BookerRefund:  b.TotalAmount,
			Description:   "booking creation failed",
		})
		return nil, fmt.Errorf("failed to create booking record: %w", err)
	}

	metrics.BookingsTotal.WithLabelValues(string(StatusPending)).Inc()
	return b, nil
}

// Accept marks the booking accepted by the partner.
func (s *Service) Accept(ctx context.Context, id, callerID string) (*Booking, error) {
	mu := s.bookingLock(id)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != b.PartnerID {
		return nil, ErrUnauthorized
	}

	if err := s.store.Transition(ctx, id, []Status{StatusPending}, StatusAccepted, ""); err != nil {
		return nil, err
	}
	b.Status = StatusAccepted
	b.UpdatedAt = time.Now()
	return b, nil
}

// Complete settles the booking in the partner's favor: the partner is paid
// their earning, the platform retains its fee, and the booker's spend is
// recorded. Only the booker may confirm.
func (s *Service) Complete(ctx context.Context, id, callerID string) (*Booking, error) {
	ctx, span := traces.StartSpan(ctx, "booking.Complete", traces.BookingID(id))
	defer span.End()

	mu := s.bookingLock(id)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != b.BookerID {
		return nil, ErrUnauthorized
	}
	if b.IsSettled() {
		return nil, ErrInvalidStatus
	}

	// Claim the status first so the funds cannot be settled twice.
	if err := s.store.Transition(ctx, id, []Status{StatusAccepted, StatusCompletedPending}, StatusCompleted, PayoutPaid); err != nil {
		return nil, err
	}

	if err := s.ledger.Settle(ctx, ReleaseSettlement(b, "booking completed")); err != nil {
		return nil, fmt.Errorf("failed to settle completed booking %s: %w", id, err)
	}

	b.Status = StatusCompleted
	b.PayoutStatus = PayoutPaid
	b.UpdatedAt = time.Now()
	metrics.BookingsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	return b, nil
}

// Cancel refunds the booking in full before the date happens. Either party
// may cancel while the booking is pending or accepted.
func (s *Service) Cancel(ctx context.Context, id, callerID string) (*Booking, error) {
	ctx, span := traces.StartSpan(ctx, "booking.Cancel", traces.BookingID(id))
	defer span.End()

	mu := s.bookingLock(id)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != b.BookerID && callerID != b.PartnerID {
		return nil, ErrUnauthorized
	}
	if b.IsSettled() {
		return nil, ErrInvalidStatus
	}

	if err := s.store.Transition(ctx, id, []Status{StatusPending, StatusAccepted}, StatusCancelled, PayoutRefunded); err != nil {
		return nil, err
	}

	if err := s.ledger.Settle(ctx, RefundSettlement(b, "booking cancelled")); err != nil {
		return nil, fmt.Errorf("failed to refund cancelled booking %s: %w", id, err)
	}

	b.Status = StatusCancelled
	b.PayoutStatus = PayoutRefunded
	b.UpdatedAt = time.Now()
	metrics.BookingsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	return b, nil
}

// Get returns a booking by ID.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns bookings involving a user (as booker or partner).
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// MarkDisputed pauses a booking while a dispute is open. Legal from any
// unsettled working state.
func (s *Service) MarkDisputed(ctx context.Context, id string) error {
	return s.store.Transition(ctx, id,
		[]Status{StatusPending, StatusAccepted, StatusCompletedPending}, StatusDisputed, "")
}

// ApplyResolution moves a paused booking to its post-arbitration state. The
// funds themselves are settled by the caller; this only records the outcome.
func (s *Service) ApplyResolution(ctx context.Context, id string, to Status, payout PayoutStatus) error {
	return s.store.Transition(ctx, id,
		[]Status{StatusPending, StatusAccepted, StatusCompletedPending, StatusDisputed}, to, payout)
}

// ReleaseSettlement builds the settlement that pays the partner in full.
func ReleaseSettlement(b *Booking, description string) wallet.Settlement {
	return wallet.Settlement{
		BookingID:     b.ID,
		BookerID:      b.BookerID,
		PartnerID:     b.PartnerID,
		EscrowRelease: b.TotalAmount,
		BookerSpend:   b.TotalAmount,
		PartnerPayout: b.PartnerEarning,
		PlatformFee:   b.PlatformFee,
		Description:   description,
	}
}

// RefundSettlement builds the settlement that returns everything to the booker.
func RefundSettlement(b *Booking, description string) wallet.Settlement {
	return wallet.Settlement{
		BookingID:     b.ID,
		BookerID:      b.BookerID,
		EscrowRelease: b.TotalAmount,
		BookerRefund:  b.TotalAmount,
		Description:   description,
	}
}
