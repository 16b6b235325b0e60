package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/elpekaan/eventgram-api/utils"
	pubnub "github.com/pubnub/go/v7"
)

// PublishFunc sends one message to a realtime channel.
type PublishFunc func(channel string, message any) error

// PubNubNotifier pushes notifications to the user's realtime channel.
type PubNubNotifier struct {
	publish PublishFunc
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		publish: func(channel string, message any) error {
			_, _, err := pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			return err
		},
	}
}

// NewPubNubNotifierWithPublisher is used where the client is wrapped or faked.
func NewPubNubNotifierWithPublisher(publish PublishFunc) *PubNubNotifier {
	return &PubNubNotifier{publish: publish}
}

func (n *PubNubNotifier) Notify(_ context.Context, note Notification) error {
	if note.UserID == "" {
		return nil
	}

	msg := map[string]any{
		"type":        string(note.Type),
		"entity_id":   note.EntityID,
		"occurred_at": note.OccurredAt.Unix(),
	}
	for k, v := range note.Payload {
		msg[k] = v
	}

	if err := n.publish(fmt.Sprintf("user-%s", note.UserID), msg); err != nil {
		return fmt.Errorf("pubnub publish %s: %w", note.Type, err)
	}
	return nil
}

// MultiNotifier fans a notification out to every sink and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BreakerNotifier stops calling a failing sink until its breaker closes again.
type BreakerNotifier struct {
	next    Notifier
	breaker *utils.CircuitBreaker
}

func NewBreakerNotifier(next Notifier, breaker *utils.CircuitBreaker) *BreakerNotifier {
	return &BreakerNotifier{next: next, breaker: breaker}
}

func (b *BreakerNotifier) Notify(ctx context.Context, note Notification) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.next.Notify(ctx, note)
	})
}
