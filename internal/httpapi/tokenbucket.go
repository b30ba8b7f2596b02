package httpapi

import (
	"sync"
	"time"
)

// TokenBucket is the in-process fallback rate limiter used when no Redis
// limiter is configured, one bucket per subject.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewTokenBucket allows rate requests/sec with the given burst per subject.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
	go tb.cleanup()
	return tb
}

// Allow reports whether the subject is within its rate.
func (tb *TokenBucket) Allow(subject string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[subject]
	if !ok {
		b = &bucket{tokens: float64(tb.burst), lastTime: now}
		tb.buckets[subject] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * tb.rate
	if b.tokens > float64(tb.burst) {
		b.tokens = float64(tb.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// cleanup evicts stale buckets so the map cannot grow without bound.
func (tb *TokenBucket) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		tb.mu.Lock()
		cutoff := tb.now().Add(-10 * time.Minute)
		for subject, b := range tb.buckets {
			if b.lastTime.Before(cutoff) {
				delete(tb.buckets, subject)
			}
		}
		tb.mu.Unlock()
	}
}
