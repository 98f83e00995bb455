// Package dispute implements arbitration over escrowed bookings.
//
// Either party to a booking may file a dispute, which pauses the normal
// completion flow. An admin then resolves it with one of four outcomes:
//
//   - refund_full: everything back to the booker
//   - refund_partial: a chosen amount back to the booker, the remainder split
//     between partner and platform in the booking's original proportion
//   - release_to_partner: the normal completion payout
//   - no_action: funds stay escrowed, booking returns to awaiting confirmation
//
// A dispute is resolved at most once. The open→resolved transition is a
// conditional update and serves as the commit point: funds move only after the
// dispute row has been claimed, so concurrent resolutions cannot both settle.
package dispute

import (
	"errors"
	"fmt"
	"time"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/wallet"
)

var (
	ErrNotFound                = errors.New("dispute: not found")
	ErrAlreadyResolved         = errors.New("dispute: already resolved")
	ErrInvalidResolution       = errors.New("dispute: invalid resolution type")
	ErrInvalidResolutionAmount = errors.New("dispute: resolution amount must be positive and at most the booking total")
	ErrUnauthorized            = errors.New("dispute: authentication required")
	ErrForbidden               = errors.New("dispute: admin access required")
	ErrDuplicateDispute        = errors.New("dispute: booking already has an open dispute")
	ErrNotParty                = errors.New("dispute: only the booker or partner may file")
	ErrBookingSettled          = errors.New("dispute: booking funds already settled")
)

// Status represents the lifecycle state of a dispute.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Resolution is the arbitration outcome chosen by an admin.
type Resolution string

const (
	ResolutionRefundFull       Resolution = "refund_full"
	ResolutionRefundPartial    Resolution = "refund_partial"
	ResolutionReleaseToPartner Resolution = "release_to_partner"
	ResolutionNoAction         Resolution = "no_action"
)

// Valid reports whether r is one of the four recognized outcomes.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionRefundFull, ResolutionRefundPartial, ResolutionReleaseToPartner, ResolutionNoAction:
		return true
	}
	return false
}

// Dispute is a filed complaint against a booking.
type Dispute struct {
	ID               string     `json:"id"`
	BookingID        string     `json:"bookingId"`
	FiledBy          string     `json:"filedBy"`
	Reason           string     `json:"reason"`
	Status           Status     `json:"status"`
	Resolution       Resolution `json:"resolution,omitempty"`
	ResolutionAmount int64      `json:"resolutionAmount,omitempty"`
	ResolutionNotes  string     `json:"resolutionNotes,omitempty"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
}

// Outcome is the full effect of a resolution: how the escrowed funds move and
// where the booking lands.
type Outcome struct {
	Settlement    wallet.Settlement
	BookingStatus booking.Status
	PayoutStatus  booking.PayoutStatus // empty means leave unchanged
}

// MovesFunds reports whether the outcome touches any balance.
func (o Outcome) MovesFunds() bool {
	return o.Settlement.EscrowRelease > 0
}

// BuildOutcome computes the deterministic effect of resolving booking b with
// the given resolution. refundAmount is only meaningful for refund_partial.
//
// For a partial refund the remainder (total − refund) is treated as spent by
// the booker and split between partner and platform in the booking's original
// earning proportion, rounding half-up in the partner's favor.
func BuildOutcome(b *booking.Booking, res Resolution, refundAmount int64) (Outcome, error) {
	switch res {
	case ResolutionRefundFull:
		return Outcome{
			Settlement:    booking.RefundSettlement(b, "dispute resolved: full refund"),
			BookingStatus: booking.StatusCancelled,
			PayoutStatus:  booking.PayoutRefunded,
		}, nil

	case ResolutionRefundPartial:
		if refundAmount <= 0 || refundAmount > b.TotalAmount {
			return Outcome{}, ErrInvalidResolutionAmount
		}
		spent := b.TotalAmount - refundAmount
		payout := proportionalPayout(spent, b.PartnerEarning, b.TotalAmount)
		return Outcome{
			Settlement: wallet.Settlement{
				BookingID:     b.ID,
				BookerID:      b.BookerID,
				PartnerID:     b.PartnerID,
				EscrowRelease: b.TotalAmount,
				BookerRefund:  refundAmount,
				BookerSpend:   spent,
				PartnerPayout: payout,
				PlatformFee:   spent - payout,
				Description:   "dispute resolved: partial refund",
			},
			BookingStatus: booking.StatusCompleted,
			PayoutStatus:  booking.PayoutPartialRefund,
		}, nil

	case ResolutionReleaseToPartner:
		return Outcome{
			Settlement:    booking.ReleaseSettlement(b, "dispute resolved: released to partner"),
			BookingStatus: booking.StatusCompleted,
			PayoutStatus:  booking.PayoutPaid,
		}, nil

	case ResolutionNoAction:
		// Funds stay in escrow; the booking goes back to awaiting confirmation.
		return Outcome{
			BookingStatus: booking.StatusCompletedPending,
		}, nil
	}

	return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidResolution, res)
}

// proportionalPayout computes round-half-up(spent × earning ⁄ total).
// Amounts are minor currency units, so the product fits comfortably in int64.
func proportionalPayout(spent, partnerEarning, totalAmount int64) int64 {
	if totalAmount == 0 {
		return 0
	}
	return (spent*partnerEarning*2 + totalAmount) / (totalAmount * 2)
}
