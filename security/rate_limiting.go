package security

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// ScanThrottle caps how many check-in scans one staff account may submit per window.
type ScanThrottle struct {
	redis    *redis.Client
	limit    int64
	window   time.Duration
	header   string
	disabled bool
}

func NewScanThrottle(redisClient *redis.Client, limit int, window time.Duration, deviceHeader string) *ScanThrottle {
	return &ScanThrottle{
		redis:    redisClient,
		limit:    int64(limit),
		window:   window,
		header:   deviceHeader,
		disabled: redisClient == nil || limit <= 0,
	}
}

// Middleware counts scans per authenticated staff member with INCR and a
// window-long EXPIRE. The device header is client supplied, so it is logged
// but never part of the key. Redis failures fail open.
func (s *ScanThrottle) Middleware(e *core.RequestEvent) error {
	if s.disabled {
		return e.Next()
	}

	ctx := e.Request.Context()
	key := fmt.Sprintf("scan_throttle:%s", s.identify(e))

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("Scan throttle unavailable", "error", err, "key", key)
		return e.Next()
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.window).Err(); err != nil {
			slog.Warn("Failed to set scan throttle window", "error", err, "key", key)
		}
	}
	if count > s.limit {
		slog.Info("Scan throttled", "key", key, "count", count, "device", e.Request.Header.Get(s.header))
		return apis.NewTooManyRequestsError("Too many scans. Please slow down.", nil)
	}
	return e.Next()
}

func (s *ScanThrottle) identify(e *core.RequestEvent) string {
	if e.Auth != nil && e.Auth.Id != "" {
		return "staff:" + e.Auth.Id
	}
	host, _, err := net.SplitHostPort(e.Request.RemoteAddr)
	if err != nil {
		host = e.Request.RemoteAddr
	}
	return "ip:" + host
}
