package main

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCommandRatePerMinute = 20
	defaultCommandBurst         = 5
	commandLimiterIdleTTL       = 10 * time.Minute
)

type authorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// commandRateLimiter is a token bucket per Discord author. A nil limiter
// allows everything.
type commandRateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	authors map[string]*authorLimiter
}

func newCommandRateLimiter(perMinute, burst int) *commandRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &commandRateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
		authors: make(map[string]*authorLimiter),
	}
}

func (l *commandRateLimiter) allow(authorID string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	entry, ok := l.authors[authorID]
	if !ok {
		entry = &authorLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.authors[authorID] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

// sweep forgets authors idle for longer than ttl.
func (l *commandRateLimiter) sweep(ttl time.Duration) int {
	if l == nil {
		return 0
	}
	cutoff := l.now().Add(-ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, entry := range l.authors {
		if entry.lastSeen.Before(cutoff) {
			delete(l.authors, id)
			removed++
		}
	}
	return removed
}

func (l *commandRateLimiter) janitor(ctx context.Context) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(commandLimiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.sweep(commandLimiterIdleTTL); n > 0 {
				logger.Debug("command limiter swept idle authors", "removed", n)
			}
		}
	}
}
