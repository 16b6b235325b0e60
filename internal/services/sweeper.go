package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
)

type SweepResult struct {
	OrdersExpired    int `json:"orders_expired"`
	TransfersExpired int `json:"transfers_expired"`
}

// Sweeper expires stale orders and transfers through the same locked transitions
// users go through; losing a race to a payment callback is not an error.
type Sweeper struct {
	store     *store.Store
	orders    *OrderService
	transfers *TransferService
	clock     Clock
	interval  time.Duration
	batchSize int
	monitor   *monitoring.Monitor
}

func NewSweeper(deps Deps, orders *OrderService, transfers *TransferService, interval time.Duration, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		store:     deps.Store,
		orders:    orders,
		transfers: transfers,
		clock:     deps.clock(),
		interval:  interval,
		batchSize: batchSize,
		monitor:   deps.Monitor,
	}
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	var result SweepResult

	now := models.At(s.clock.Now())
	read := s.store.Read(ctx)

	orderIDs, err := read.ExpiredOrderIDs(now, s.batchSize)
	if err != nil {
		return result, err
	}
	for _, id := range orderIDs {
		err := s.orders.ExpireOrRelease(ctx, id, models.ReleaseExpired)
		switch {
		case err == nil:
			result.OrdersExpired++
		case errors.Is(err, status.ErrOrderNotCancelable):
		default:
			slog.Error("Failed to expire order", "error", err, "order_id", id)
		}
	}

	transferIDs, err := read.ExpiredTransferIDs(now, s.batchSize)
	if err != nil {
		return result, err
	}
	for _, id := range transferIDs {
		expired, err := s.transfers.ExpireTransfer(ctx, id)
		switch {
		case err == nil:
			if expired {
				result.TransfersExpired++
			}
		case errors.Is(err, status.ErrInvalidTransferState):
		default:
			slog.Error("Failed to expire transfer", "error", err, "transfer_id", id)
		}
	}

	s.monitor.TrackSweep(result.OrdersExpired, result.TransfersExpired, time.Since(started))
	if result.OrdersExpired+result.TransfersExpired > 0 {
		slog.Info("Sweep finished", "orders_expired", result.OrdersExpired, "transfers_expired", result.TransfersExpired)
	}
	return result, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				slog.Error("Sweep pass failed", "error", err)
			}
		}
	}
}
