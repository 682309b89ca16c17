package hosting

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Tracker errors.
var (
	// ErrAuthFailed is returned when no credentials are configured.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound is returned when an issue or repository does not exist.
	ErrNotFound = errors.New("not found")
)

// RateLimitError reports that the tracker refused a request for rate
// reasons. ResetAt is zero when the tracker gave no reset hint.
type RateLimitError struct {
	Provider   ProviderType
	StatusCode int
	ResetAt    time.Time
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s rate limited (HTTP %d)", e.Provider, e.StatusCode)
	if !e.ResetAt.IsZero() {
		msg += " until " + e.ResetAt.UTC().Format(time.RFC3339)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// AsRateLimit extracts a *RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsRateLimitStatus reports whether an HTTP status always counts as a rate
// limit hit.
func IsRateLimitStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests
}

// ResetFromHeaders reads a reset time from common rate-limit headers:
// an epoch-seconds reset header, or Retry-After in seconds or HTTP-date form.
func ResetFromHeaders(h http.Header, resetHeader string, now time.Time) time.Time {
	if h == nil {
		return time.Time{}
	}
	if v := h.Get(resetHeader); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
			return time.Unix(sec, 0).UTC()
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
			return now.Add(time.Duration(sec) * time.Second).UTC()
		}
		if t, err := http.ParseTime(v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// RemainingFromHeader parses a remaining-count header, returning -1 when
// absent or malformed.
func RemainingFromHeader(h http.Header, name string) int {
	if h == nil {
		return -1
	}
	n, err := strconv.Atoi(h.Get(name))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
