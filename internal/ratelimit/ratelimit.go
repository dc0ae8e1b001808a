// Package ratelimit implements a per-client token bucket rate limiter for
// the HTTP gateway. Thread-safe. No background goroutines — buckets are
// refilled lazily on each Allow call and stale buckets are pruned inline.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client has exhausted its token bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// staleAfter is how long an idle bucket survives before it is pruned.
// An idle bucket is full by definition, so dropping it loses nothing.
const staleAfter = 10 * time.Minute

// Config configures the token bucket rate limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in a bucket. 0 = defaults to RequestsPerMinute.
}

// Limiter is a per-client token bucket rate limiter. Each API client gets an
// independent bucket; one client cannot exhaust another's quota.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // max bucket capacity
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a rate limiter with the given configuration.
// If RequestsPerMinute is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1 // safety floor
	}
	return &Limiter{
		clients: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(burst),
	}
}

// Allow checks whether the client has tokens remaining.
// Consumes one token on success. Returns ErrRateLimited if the bucket is empty.
func (l *Limiter) Allow(clientID string) error {
	// Unlimited mode.
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.clients[clientID]
	if !ok {
		// First request: start with a full bucket.
		b = &bucket{tokens: l.burst, lastFill: now}
		l.clients[clientID] = b
		l.prune(now)
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// prune drops buckets idle long enough to be full again. Called with the
// lock held, only when a new client appears, so steady-state traffic pays
// nothing.
func (l *Limiter) prune(now time.Time) {
	for id, b := range l.clients {
		if now.Sub(b.lastFill) > staleAfter {
			delete(l.clients, id)
		}
	}
}
