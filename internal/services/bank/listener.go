package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elpekaan/eventgram-api/models"
	pubnub "github.com/pubnub/go/v7"
)

// Handler applies a decoded payment callback.
type Handler interface {
	HandleNotification(ctx context.Context, n *models.PaymentNotification) error
}

type Config struct {
	SubscribeKey string
	SecretKey    string
	CipherKey    string
	UUID         string
	Channel      string
}

// Listener consumes bank payment callbacks from a PubNub channel.
type Listener struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	channel  string
	handler  Handler
}

func NewListener(cfg Config, handler Handler) *Listener {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UUID))
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	pnCfg.CipherKey = cfg.CipherKey

	return &Listener{
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		channel:  cfg.Channel,
		handler:  handler,
	}
}

// Run subscribes and processes messages until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.pn.AddListener(l.listener)
	l.pn.Subscribe().Channels([]string{l.channel}).Execute()
	defer l.pn.Unsubscribe().Channels([]string{l.channel}).Execute()

	for {
		select {
		case st := <-l.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("Connected to bank notification channel", "channel", l.channel)
			case pubnub.PNReconnectedCategory:
				slog.Info("Reconnected to bank notification channel", "channel", l.channel)
			case pubnub.PNDisconnectedCategory, pubnub.PNTimeoutCategory, pubnub.PNReconnectionAttemptsExhausted:
				slog.Warn("Bank notification channel interrupted", "channel", l.channel, "category", st.Category)
			case pubnub.PNAccessDeniedCategory, pubnub.PNBadRequestCategory:
				slog.Error("Bank notification channel rejected subscription", "channel", l.channel, "category", st.Category)
			}

		case msg := <-l.listener.Message:
			if err := l.handleMessage(ctx, msg.Message); err != nil {
				slog.Error("Failed to handle bank notification", "error", err, "channel", msg.Channel)
			}

		case <-ctx.Done():
			slog.Info("Closing bank notification subscription", "channel", l.channel)
			return nil
		}
	}
}

// handleMessage accepts the payload as a JSON string or as an already decoded object.
func (l *Listener) handleMessage(ctx context.Context, message any) error {
	var raw []byte
	switch m := message.(type) {
	case string:
		raw = []byte(m)
	case []byte:
		raw = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("bank: re-encode message: %w", err)
		}
		raw = b
	}

	n, err := Decode(raw)
	if err != nil {
		return err
	}
	return l.handler.HandleNotification(ctx, n)
}
