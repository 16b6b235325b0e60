package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Availability is the display read model for a ticket type. It may lag the ledger by the cache TTL.
type Availability struct {
	TicketTypeID string          `json:"ticket_type_id"`
	EventID      string          `json:"event_id"`
	Price        decimal.Decimal `json:"price"`
	ServiceFee   decimal.Decimal `json:"service_fee"`
	Quantity     int             `json:"quantity"`
	Sold         int             `json:"sold"`
	Reserved     int             `json:"reserved"`
	Available    int             `json:"available"`
	OnSale       bool            `json:"on_sale"`
}

func availabilityOf(tt *models.TicketType, now time.Time) *Availability {
	return &Availability{
		TicketTypeID: tt.ID,
		EventID:      tt.EventID,
		Price:        tt.Price,
		ServiceFee:   tt.ServiceFee,
		Quantity:     tt.Quantity,
		Sold:         tt.Sold,
		Reserved:     tt.Reserved,
		Available:    tt.Available(),
		OnSale:       tt.OnSale(now),
	}
}

// AvailabilityCache keeps availability snapshots in Redis. Failures degrade to a cache miss.
type AvailabilityCache struct {
	redis   *redis.Client
	ttl     time.Duration
	monitor *monitoring.Monitor
}

func NewAvailabilityCache(redisClient *redis.Client, ttl time.Duration, monitor *monitoring.Monitor) *AvailabilityCache {
	return &AvailabilityCache{redis: redisClient, ttl: ttl, monitor: monitor}
}

func availabilityKey(ticketTypeID string) string {
	return fmt.Sprintf("availability:ticket_type:%s", ticketTypeID)
}

func (c *AvailabilityCache) Get(ctx context.Context, ticketTypeID string) (*Availability, bool) {
	data, err := c.redis.Get(ctx, availabilityKey(ticketTypeID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Failed to read availability cache", "error", err, "ticket_type_id", ticketTypeID)
		}
		c.monitor.TrackCacheLookup(false)
		return nil, false
	}

	var a Availability
	if err := json.Unmarshal(data, &a); err != nil {
		slog.Warn("Discarding malformed availability entry", "error", err, "ticket_type_id", ticketTypeID)
		c.monitor.TrackCacheLookup(false)
		return nil, false
	}
	c.monitor.TrackCacheLookup(true)
	return &a, true
}

func (c *AvailabilityCache) Set(ctx context.Context, a *Availability) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, availabilityKey(a.TicketTypeID), data, c.ttl).Err(); err != nil {
		slog.Warn("Failed to write availability cache", "error", err, "ticket_type_id", a.TicketTypeID)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, ticketTypeID string) {
	if err := c.redis.Del(ctx, availabilityKey(ticketTypeID)).Err(); err != nil {
		slog.Warn("Failed to invalidate availability cache", "error", err, "ticket_type_id", ticketTypeID)
	}
}
