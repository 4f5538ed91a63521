package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds outbound requests per minute with a token bucket.
// Blocking is cooperative: callers either Wait or honor the duration
// returned by Check.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter creates a limiter allowing perMinute requests with the given burst.
func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		l: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

// Check reports whether a request may proceed now. When it may not, wait is
// how long the caller must sleep before capacity frees up. Check never
// consumes a token on deny.
func (r *Limiter) Check() (ok bool, wait time.Duration) {
	res := r.l.ReserveN(time.Now(), 1)
	if !res.OK() {
		return false, rate.InfDuration
	}
	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// Wait blocks until capacity is available or the context is done.
func (r *Limiter) Wait(ctx context.Context) error {
	return r.l.Wait(ctx)
}

// KeyedLimiter tracks one limiter per key (e.g. per client IP), pruning
// entries not seen for the cleanup interval.
type KeyedLimiter struct {
	mu        sync.Mutex
	entries   map[string]*keyedEntry
	perMinute int
	burst     int
	maxIdle   time.Duration
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a per-key limiter and starts its cleanup goroutine.
func NewKeyedLimiter(perMinute, burst int, maxIdle time.Duration) *KeyedLimiter {
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		entries:   make(map[string]*keyedEntry),
		perMinute: perMinute,
		burst:     burst,
		maxIdle:   maxIdle,
	}
	go kl.cleanup()
	return kl
}

// Allow reports whether a request for the given key may proceed now.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	entry, exists := kl.entries[key]
	if !exists {
		entry = &keyedEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(kl.perMinute)/60.0), kl.burst),
		}
		kl.entries[key] = entry
	}
	entry.lastSeen = time.Now()
	kl.mu.Unlock()

	return entry.limiter.Allow()
}

func (kl *KeyedLimiter) cleanup() {
	ticker := time.NewTicker(kl.maxIdle)
	defer ticker.Stop()
	for range ticker.C {
		kl.mu.Lock()
		for key, entry := range kl.entries {
			if time.Since(entry.lastSeen) > kl.maxIdle {
				delete(kl.entries, key)
			}
		}
		kl.mu.Unlock()
	}
}
