package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/idgen"
	"github.com/amoree/amoree/internal/logging"
	"github.com/amoree/amoree/internal/metrics"
	"github.com/amoree/amoree/internal/traces"
	"github.com/amoree/amoree/internal/wallet"
)

// Store persists dispute records.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	// GetOpenByBooking returns the open dispute for a booking, or ErrNotFound.
	GetOpenByBooking(ctx context.Context, bookingID string) (*Dispute, error)
	// Claim atomically moves an open dispute to resolved, recording the
	// outcome. Returns ErrAlreadyResolved if the dispute was not open; this is
	// the only path by which a dispute becomes resolved.
	Claim(ctx context.Context, id string, res Resolution, amount int64, notes, resolvedBy string, at time.Time) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Dispute, error)
}

// BookingService is the slice of booking behavior arbitration needs.
type BookingService interface {
	Get(ctx context.Context, id string) (*booking.Booking, error)
	MarkDisputed(ctx context.Context, id string) error
	ApplyResolution(ctx context.Context, id string, to booking.Status, payout booking.PayoutStatus) error
}

// LedgerService moves the escrowed funds.
type LedgerService interface {
	Settle(ctx context.Context, s wallet.Settlement) error
}

// AdminChecker answers whether a user may arbitrate. Injected so tests and
// alternative auth backends can swap the policy.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Notifier delivers resolution notices. Implementations must not fail the
// resolution; errors are the notifier's own problem.
type Notifier interface {
	DisputeResolved(ctx context.Context, d *Dispute, b *booking.Booking)
}

// Service implements dispute filing and resolution.
type Service struct {
	store    Store
	bookings BookingService
	ledger   LedgerService
	admins   AdminChecker
	notifier Notifier
}

// NewService creates a new dispute service. notifier may be nil.
func NewService(store Store, bookings BookingService, ledger LedgerService, admins AdminChecker, notifier Notifier) *Service {
	return &Service{store: store, bookings: bookings, ledger: ledger, admins: admins, notifier: notifier}
}

// FileRequest contains the parameters for filing a dispute.
type FileRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// File opens a dispute against a booking and pauses its completion flow.
// Only the booker or partner may file, the booking's funds must still be
// held, and a booking can carry at most one open dispute.
func (s *Service) File(ctx context.Context, callerID string, req FileRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.File",
		traces.UserID(callerID),
		traces.BookingID(req.BookingID),
	)
	defer span.End()

	b, err := s.bookings.Get(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if callerID != b.BookerID && callerID != b.PartnerID {
		return nil, ErrNotParty
	}
	if b.IsSettled() {
		return nil, ErrBookingSettled
	}
	if _, err := s.store.GetOpenByBooking(ctx, req.BookingID); err == nil {
		return nil, ErrDuplicateDispute
	}

	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		BookingID: req.BookingID,
		FiledBy:   callerID,
		Reason:    req.Reason,
		Status:    StatusOpen,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	// Pause the booking. A booking already paused keeps its state.
	if err := s.bookings.MarkDisputed(ctx, req.BookingID); err != nil {
		logging.L(ctx).Warn("failed to mark booking disputed",
			"bookingId", req.BookingID,
			"disputeId", d.ID,
			"error", err,
		)
	}

	return d, nil
}

// ResolveRequest contains the parameters for resolving a dispute.
type ResolveRequest struct {
	DisputeID        string     `json:"disputeId" binding:"required"`
	Resolution       Resolution `json:"resolution" binding:"required"`
	ResolutionAmount int64      `json:"resolutionAmount"`
	ResolutionNotes  string     `json:"resolutionNotes"`
}

// Resolve applies an arbitration outcome to an open dispute. Preconditions
// are checked in a fixed order so clients see stable error precedence:
// authentication, admin role, resolution validity, dispute existence, dispute
// still open, booking existence, amount validity. Only after all checks pass
// is the dispute row claimed; funds move strictly after the claim.
func (s *Service) Resolve(ctx context.Context, callerID string, req ResolveRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve",
		traces.DisputeID(req.DisputeID),
		traces.Resolution(string(req.Resolution)),
	)
	defer span.End()
	start := time.Now()

	if callerID == "" {
		return nil, ErrUnauthorized
	}
	isAdmin, err := s.admins.IsAdmin(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check admin role: %w", err)
	}
	if !isAdmin {
		return nil, ErrForbidden
	}
	if !req.Resolution.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, req.Resolution)
	}

	d, err := s.store.Get(ctx, req.DisputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusOpen {
		return nil, ErrAlreadyResolved
	}

	b, err := s.bookings.Get(ctx, d.BookingID)
	if err != nil {
		return nil, err
	}

	outcome, err := BuildOutcome(b, req.Resolution, req.ResolutionAmount)
	if err != nil {
		return nil, err
	}

	// Claim the dispute row first. This conditional update is the single
	// point where a resolution wins; everything below runs at most once per
	// dispute, and a concurrent resolver gets ErrAlreadyResolved here.
	now := time.Now()
	if err := s.store.Claim(ctx, d.ID, req.Resolution, req.ResolutionAmount, req.ResolutionNotes, callerID, now); err != nil {
		return nil, err
	}

	d.Status = StatusResolved
	d.Resolution = req.Resolution
	d.ResolutionAmount = req.ResolutionAmount
	d.ResolutionNotes = req.ResolutionNotes
	d.ResolvedBy = callerID
	d.ResolvedAt = &now

	if outcome.MovesFunds() {
		if err := s.ledger.Settle(ctx, outcome.Settlement); err != nil {
			// The dispute is claimed but the money did not move. This needs a
			// human; retrying the endpoint will report AlreadyResolved rather
			// than risk applying funds twice.
			logging.L(ctx).Error("CRITICAL: dispute claimed but settlement failed",
				"disputeId", d.ID,
				"bookingId", b.ID,
				"resolution", string(req.Resolution),
				"step", "settle",
				"error", err,
			)
			metrics.LedgerInconsistenciesTotal.Inc()
			return nil, fmt.Errorf("settlement failed for dispute %s: %w", d.ID, err)
		}
	}

	if err := s.bookings.ApplyResolution(ctx, b.ID, outcome.BookingStatus, outcome.PayoutStatus); err != nil {
		logging.L(ctx).Error("CRITICAL: dispute settled but booking update failed",
			"disputeId", d.ID,
			"bookingId", b.ID,
			"resolution", string(req.Resolution),
			"step", "booking_update",
			"error", err,
		)
		metrics.LedgerInconsistenciesTotal.Inc()
		return nil, fmt.Errorf("booking update failed for dispute %s: %w", d.ID, err)
	}

	if s.notifier != nil {
		s.notifier.DisputeResolved(ctx, d, b)
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(req.Resolution)).Inc()
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	return d, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListOpen returns open disputes for the arbitration queue.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, StatusOpen, limit)
}
