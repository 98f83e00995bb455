// Package notify persists user notifications. Delivery (push, email) is a
// separate concern; this package writes the rows a delivery worker or client
// poll would consume. Emitting is fire-and-forget: a failed write is logged
// and counted, never surfaced to the operation that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/dispute"
	"github.com/amoree/amoree/internal/idgen"
	"github.com/amoree/amoree/internal/logging"
	"github.com/amoree/amoree/internal/metrics"
)

var ErrNotFound = errors.New("notify: notification not found")

// TypeDisputeResolved marks arbitration outcome notices.
const TypeDisputeResolved = "dispute_resolved"

// Notification is a single message for a user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// Emitter writes notifications for domain events.
type Emitter struct {
	store Store
}

// NewEmitter creates a new notification emitter.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store}
}

// DisputeResolved notifies both parties of an arbitration outcome.
func (e *Emitter) DisputeResolved(ctx context.Context, d *dispute.Dispute, b *booking.Booking) {
	data := map[string]string{
		"disputeId":  d.ID,
		"bookingId":  b.ID,
		"resolution": string(d.Resolution),
	}
	e.emit(ctx, &Notification{
		UserID:  b.BookerID,
		Type:    TypeDisputeResolved,
		Title:   "Dispute resolved",
		Message: bookerMessage(d, b),
		Data:    data,
	})
	e.emit(ctx, &Notification{
		UserID:  b.PartnerID,
		Type:    TypeDisputeResolved,
		Title:   "Dispute resolved",
		Message: partnerMessage(d, b),
		Data:    data,
	})
}

func (e *Emitter) emit(ctx context.Context, n *Notification) {
	n.ID = idgen.WithPrefix("ntf_")
	n.CreatedAt = time.Now()
	if err := e.store.Create(ctx, n); err != nil {
		metrics.NotificationEmitErrors.Inc()
		logging.L(ctx).Warn("failed to emit notification",
			"userId", n.UserID,
			"type", n.Type,
			"error", err,
		)
	}
}

func bookerMessage(d *dispute.Dispute, b *booking.Booking) string {
	switch d.Resolution {
	case dispute.ResolutionRefundFull:
		return fmt.Sprintf("Your dispute was resolved: %d has been refunded to your wallet.", b.TotalAmount)
	case dispute.ResolutionRefundPartial:
		return fmt.Sprintf("Your dispute was resolved: %d has been refunded to your wallet.", d.ResolutionAmount)
	case dispute.ResolutionReleaseToPartner:
		return "Your dispute was resolved: the booking was upheld and payment released to your partner."
	case dispute.ResolutionNoAction:
		return "Your dispute was reviewed: the booking remains awaiting confirmation."
	}
	return "Your dispute has been resolved."
}

func partnerMessage(d *dispute.Dispute, b *booking.Booking) string {
	switch d.Resolution {
	case dispute.ResolutionRefundFull:
		return "A dispute on your booking was resolved: the booking was cancelled and refunded."
	case dispute.ResolutionRefundPartial:
		return "A dispute on your booking was resolved: a partial refund was issued and your share paid out."
	case dispute.ResolutionReleaseToPartner:
		return fmt.Sprintf("A dispute on your booking was resolved in your favor: %d has been paid out.", b.PartnerEarning)
	case dispute.ResolutionNoAction:
		return "A dispute on your booking was reviewed: the booking remains awaiting confirmation."
	}
	return "A dispute on your booking has been resolved."
}
