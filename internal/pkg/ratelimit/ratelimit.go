package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by caller
type RateLimiter struct {
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	mu     sync.Mutex
	now    func() time.Time
}

// Decision is the outcome of counting one request against a bucket
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Stats summarises the limiter for the health endpoint
type Stats struct {
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
	ActiveKeys int    `json:"activeKeys"`
	Requests   int    `json:"requests"`
}

// New creates a limiter allowing limit requests per window for each key
func New(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// live drops hits older than the window. Caller holds mu.
func (rl *RateLimiter) live(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	hits := rl.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// Take counts a request for key and reports whether it fits in the window
func (rl *RateLimiter) Take(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	hits := rl.live(key, now)

	d := Decision{ResetAt: now.Add(rl.window)}
	if len(hits) > 0 {
		d.ResetAt = hits[0].Add(rl.window)
	}

	if len(hits) >= rl.limit {
		if len(hits) == 0 {
			delete(rl.hits, key)
		} else {
			rl.hits[key] = hits
		}
		return d
	}

	hits = append(hits, now)
	rl.hits[key] = hits
	d.Allowed = true
	d.Remaining = rl.limit - len(hits)
	d.ResetAt = hits[0].Add(rl.window)
	return d
}

// Allow is Take without the bookkeeping
func (rl *RateLimiter) Allow(key string) bool {
	return rl.Take(key).Allowed
}

// Limit returns the configured number of requests per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Window returns the configured window
func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}

// Stats counts the keys and requests still inside the window
func (rl *RateLimiter) Stats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	s := Stats{Limit: rl.limit, Window: rl.window.String()}
	for key := range rl.hits {
		if n := len(rl.live(key, now)); n > 0 {
			s.ActiveKeys++
			s.Requests += n
		}
	}
	return s
}

// Cleanup forgets keys with no hits inside the window
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.hits {
		hits := rl.live(key, now)
		if len(hits) == 0 {
			delete(rl.hits, key)
			continue
		}
		rl.hits[key] = hits
	}
}

// StartCleanup prunes expired entries every interval until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}
