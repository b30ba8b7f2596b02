// Package ratelimit enforces the chatbot and booking quotas with Redis
// fixed windows: 20 chat turns per user-hour, 500 per tenant-day, 50
// bookings per user-hour. When Redis is down the limiter fails open —
// intake availability beats quota precision.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Limit is one fixed-window rule.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
}

// Limiter counts hits per (rule, subject) in Redis.
type Limiter struct {
	redis  *redis.Client
	logger *logging.Logger
	now    func() time.Time
}

// NewLimiter wires a limiter over a Redis client.
func NewLimiter(client *redis.Client, logger *logging.Logger) *Limiter {
	if client == nil {
		panic("ratelimit: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Limiter{redis: client, logger: logger, now: time.Now}
}

// Allow counts one hit and reports whether the subject is still inside the
// limit. The first hit of a window sets the key's expiry; the count key is
// bucketed by window start so clock skew cannot stretch a window.
func (l *Limiter) Allow(ctx context.Context, limit Limit, subject string) bool {
	if subject == "" || limit.Max <= 0 {
		return true
	}
	key := l.windowKey(limit, subject)

	pipe := l.redis.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, limit.Window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit check failed, allowing request", "rule", limit.Name, "error", err)
		return true
	}
	return count.Val() <= int64(limit.Max)
}

// Remaining reports how many hits the subject has left in the current
// window, for response headers.
func (l *Limiter) Remaining(ctx context.Context, limit Limit, subject string) int {
	if subject == "" || limit.Max <= 0 {
		return limit.Max
	}
	val, err := l.redis.Get(ctx, l.windowKey(limit, subject)).Int()
	if err != nil {
		return limit.Max
	}
	remaining := limit.Max - val
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) windowKey(limit Limit, subject string) string {
	bucket := l.now().UTC().Unix() / int64(limit.Window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%s:%d", limit.Name, subject, bucket)
}

// Standard rules. Constants mirror the product quotas, overridable via
// config at wiring time.
func ChatPerUser(max int) Limit {
	return Limit{Name: "chat_user", Max: max, Window: time.Hour}
}

func ChatPerTenant(max int) Limit {
	return Limit{Name: "chat_tenant", Max: max, Window: 24 * time.Hour}
}

func BookingPerUser(max int) Limit {
	return Limit{Name: "booking_user", Max: max, Window: time.Hour}
}
