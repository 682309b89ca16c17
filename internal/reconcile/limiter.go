package reconcile

import (
	"sync"
	"time"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

const (
	// DefaultBackoff is used when a tracker signals exhaustion without a
	// reset time.
	DefaultBackoff = 60 * time.Second
	// DefaultBuffer is the remaining-call count above which stale limiter
	// state is cleared.
	DefaultBuffer = 5
)

// RateLimiter holds the rate-limit state shared by every project in a sync
// cycle. It is owned by one Engine and starts clear.
type RateLimiter struct {
	mu        sync.Mutex
	until     time.Time
	remaining int

	buffer  int
	backoff time.Duration
	now     func() time.Time
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithBuffer sets the healthy remaining-count threshold.
func WithBuffer(n int) LimiterOption {
	return func(r *RateLimiter) { r.buffer = n }
}

// WithBackoff sets the fallback suspension when no reset time is known.
func WithBackoff(d time.Duration) LimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// WithLimiterClock overrides the time source.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(r *RateLimiter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRateLimiter creates a clear limiter.
func NewRateLimiter(opts ...LimiterOption) *RateLimiter {
	r := &RateLimiter{
		remaining: -1,
		buffer:    DefaultBuffer,
		backoff:   DefaultBackoff,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Blocked reports whether requests are suspended, and until when.
func (r *RateLimiter) Blocked() (bool, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.until.IsZero() || !r.now().Before(r.until) {
		return false, time.Time{}
	}
	return true, r.until
}

// Observe records the rate hints of a successful response. An exhausted
// count suspends requests until the reset time, or for the default backoff
// when the tracker gave none. A count above the buffer clears stale state.
func (r *RateLimiter) Observe(info hosting.RateInfo) {
	if !info.Known() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = info.Remaining
	switch {
	case info.Remaining == 0:
		r.extend(info.ResetAt)
	case info.Remaining > r.buffer:
		r.until = time.Time{}
	}
}

// Trip suspends requests after a 403 or 429, regardless of what the
// remaining count said. It never shortens an existing suspension.
func (r *RateLimiter) Trip(resetAt time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = 0
	r.extend(resetAt)
	return r.until
}

func (r *RateLimiter) extend(resetAt time.Time) {
	now := r.now()
	if resetAt.IsZero() || !resetAt.After(now) {
		resetAt = now.Add(r.backoff)
	}
	if resetAt.After(r.until) {
		r.until = resetAt.UTC()
	}
}

// Reset clears all state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.until = time.Time{}
	r.remaining = -1
}

// LimiterState is a snapshot of the limiter.
type LimiterState struct {
	Until time.Time `json:"until,omitempty"`
	// Remaining is -1 until a response with a hint has been seen.
	Remaining int `json:"remaining"`
}

// State returns a snapshot.
func (r *RateLimiter) State() LimiterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return LimiterState{Until: r.until, Remaining: r.remaining}
}
