package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/elpekaan/eventgram-api/internal/store"
)

// NotificationType names a lifecycle signal emitted after commit.
type NotificationType string

const (
	NotifyOrderCompleted    NotificationType = "order.completed"
	NotifyOrderReleased     NotificationType = "order.released"
	NotifyTransferCreated   NotificationType = "transfer.created"
	NotifyTransferApproved  NotificationType = "transfer.approved"
	NotifyTransferRejected  NotificationType = "transfer.rejected"
	NotifyTransferAccepted  NotificationType = "transfer.accepted"
	NotifyTransferCompleted NotificationType = "transfer.completed"
	NotifyTransferCancelled NotificationType = "transfer.cancelled"
	NotifyTransferExpired   NotificationType = "transfer.expired"
	NotifyCheckedIn         NotificationType = "ticket.checked_in"
	NotifyRefundCompleted   NotificationType = "refund.completed"
	NotifyRefundRejected    NotificationType = "refund.rejected"
	NotifyChargeback        NotificationType = "payment.chargeback"
	NotifyChargebackClosed  NotificationType = "payment.chargeback_closed"
)

type Notification struct {
	Type       NotificationType `json:"type"`
	UserID     string           `json:"user_id"`
	EntityID   string           `json:"entity_id"`
	Payload    map[string]any   `json:"payload,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Notifier delivers notifications. Delivery and retries are the implementation's concern.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// outbox collects side effects during a transaction; they run only after commit.
type outbox struct {
	notes      []Notification
	staleTypes []string
}

func (o *outbox) notify(n Notification) {
	o.notes = append(o.notes, n)
}

func (o *outbox) invalidate(ticketTypeID string) {
	o.staleTypes = append(o.staleTypes, ticketTypeID)
}

// dispatcher runs transactions and flushes their outbox once committed.
type dispatcher struct {
	store    *store.Store
	notifier Notifier
	cache    *AvailabilityCache
}

func (d *dispatcher) run(ctx context.Context, fn func(tx *store.Tx, out *outbox) error) error {
	var out outbox
	err := d.store.RunInTx(ctx, func(tx *store.Tx) error {
		out = outbox{}
		return fn(tx, &out)
	})
	if err != nil {
		return err
	}
	d.flush(ctx, &out)
	return nil
}

func (d *dispatcher) flush(ctx context.Context, out *outbox) {
	if d.cache != nil {
		for _, id := range out.staleTypes {
			d.cache.Invalidate(ctx, id)
		}
	}
	if d.notifier == nil {
		return
	}
	for _, n := range out.notes {
		if err := d.notifier.Notify(ctx, n); err != nil {
			slog.Warn("Failed to dispatch notification", "error", err, "type", n.Type, "entity_id", n.EntityID)
		}
	}
}
