package llm

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ProviderError carries a failed HTTP attempt: the status, the (bounded)
// response body, and any server-supplied Retry-After value.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsProviderError checks if an error is a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// tryAgainRe matches the "try again in 2s" hint some providers embed in a
// 429 body when no Retry-After header is sent.
var tryAgainRe = regexp.MustCompile(`try again in (\d+(?:\.\d+)?)s`)

// RetryPolicy governs how a generation client retries transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the exponential schedule:
	// base * 2^(attempt-1), capped, plus jitter.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// JitterFrac adds up to this fraction of the computed wait as random
	// jitter.
	JitterFrac float64

	// QuotaMarkers mark a 429 body as a spent per-day/lifetime quota,
	// which no amount of waiting will fix. Provider-specific wording;
	// tune per deployment.
	QuotaMarkers []string
}

// DefaultRetryPolicy returns the stock policy: three attempts, 1s base
// backoff capped at 30s, 25% jitter, and the quota wording our providers
// actually emit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
		BackoffCap:  30 * time.Second,
		JitterFrac:  0.25,
		QuotaMarkers: []string{
			"per day",
			"daily limit",
			"quota",
		},
	}
}

// Retryable reports whether another attempt could succeed: only a 429
// whose body does not mention a spent quota qualifies. Everything else
// (other 4xx, 5xx, quota 429s) fails immediately.
func (p RetryPolicy) Retryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		return false
	}
	body := strings.ToLower(pe.Body)
	for _, marker := range p.QuotaMarkers {
		if strings.Contains(body, marker) {
			return false
		}
	}
	return true
}

// Wait returns how long to sleep before retry number attempt (1-based):
// the server's Retry-After when present, else a "try again in Ns" hint
// from the body, else capped exponential backoff with jitter.
func (p RetryPolicy) Wait(attempt int, err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.RetryAfter > 0 {
			return pe.RetryAfter
		}
		if m := tryAgainRe.FindStringSubmatch(pe.Body); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}

	wait := p.BackoffBase << (attempt - 1)
	if wait > p.BackoffCap || wait <= 0 {
		wait = p.BackoffCap
	}
	if p.JitterFrac > 0 {
		wait += time.Duration(rand.Float64() * p.JitterFrac * float64(wait))
	}
	return wait
}

// parseRetryAfter reads a Retry-After header value, which is either a
// delay in seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
