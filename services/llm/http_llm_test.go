package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okCompletion = `{"choices":[{"message":{"role":"assistant","content":"generated text"}}]}`

func newTestClient(t *testing.T, handler http.Handler, opts HTTPClientOptions) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	if opts.Model == "" {
		opts.Model = "test-model"
	}
	c, err := NewHTTPClientWithOptions(opts)
	require.NoError(t, err)
	return c
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		BackoffBase:  10 * time.Millisecond,
		BackoffCap:   50 * time.Millisecond,
		QuotaMarkers: []string{"per day", "daily limit", "quota"},
	}
}

func TestHTTPClient_Generate(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(okCompletion))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	text, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
	assert.Equal(t, int64(1), calls.Load())
}

// TestHTTPClient_RetriesAfterBodyHint verifies a transient 429 whose body
// carries a "try again in 2s" hint is retried once after roughly that wait.
func TestHTTPClient_RetriesAfterBodyHint(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited, try again in 2s"}`))
			return
		}
		w.Write([]byte(okCompletion))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	start := time.Now()
	text, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
	assert.Equal(t, int64(2), calls.Load())
	assert.GreaterOrEqual(t, elapsed, 1900*time.Millisecond)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestHTTPClient_HonorsRetryAfterHeader(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`slow down`))
			return
		}
		w.Write([]byte(okCompletion))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	start := time.Now()
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())
}

// TestHTTPClient_QuotaExhausted429IsFinal verifies a 429 naming a per-day
// quota is not retried: waiting cannot un-spend a daily limit.
func TestHTTPClient_QuotaExhausted429IsFinal(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`you have exceeded your requests per day limit`))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Equal(t, int64(1), calls.Load())
	assert.Contains(t, err.Error(), "per day", "response body must be attached")
}

func TestHTTPClient_ServerErrorIsFinal(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`upstream exploded`))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestHTTPClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy()})

	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Equal(t, int64(3), calls.Load())
}

// TestHTTPClient_BudgetGuardSkipsNetwork verifies a spent call budget fails
// before any request is dispatched.
func TestHTTPClient_BudgetGuardSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(okCompletion))
	})
	c := newTestClient(t, handler, HTTPClientOptions{Policy: fastPolicy(), MaxCalls: 2})

	msgs := []Message{{Role: "user", Content: "hi"}}
	_, err := c.Generate(context.Background(), msgs, GenerationParams{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), msgs, GenerationParams{})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), msgs, GenerationParams{})
	require.Error(t, err)
	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 2, be.Max)
	assert.Equal(t, int64(2), calls.Load(), "third call must never reach the network")
}

func TestHTTPClient_ThrottleSpacesCalls(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okCompletion))
	})
	c := newTestClient(t, handler, HTTPClientOptions{
		Policy:      fastPolicy(),
		MinInterval: 300 * time.Millisecond,
	})

	msgs := []Message{{Role: "user", Content: "hi"}}
	start := time.Now()
	_, err := c.Generate(context.Background(), msgs, GenerationParams{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), msgs, GenerationParams{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestNewHTTPClientWithOptions_FailsFast(t *testing.T) {
	_, err := NewHTTPClientWithOptions(HTTPClientOptions{APIKey: "k"})
	assert.Error(t, err, "missing base URL")

	_, err = NewHTTPClientWithOptions(HTTPClientOptions{BaseURL: "http://localhost:1"})
	assert.Error(t, err, "missing credential")
}

func TestRetryPolicy_Wait(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BackoffBase: time.Second, BackoffCap: 4 * time.Second}

	// Retry-After wins over everything.
	err := &ProviderError{StatusCode: 429, Body: "try again in 9s", RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, p.Wait(1, err))

	// Body hint wins over backoff.
	err = &ProviderError{StatusCode: 429, Body: "rate limited, try again in 2s"}
	assert.Equal(t, 2*time.Second, p.Wait(1, err))

	// Fractional hints parse.
	err = &ProviderError{StatusCode: 429, Body: "try again in 0.5s"}
	assert.Equal(t, 500*time.Millisecond, p.Wait(1, err))

	// Plain exponential schedule, capped.
	plain := &ProviderError{StatusCode: 429, Body: "rate limited"}
	assert.Equal(t, 1*time.Second, p.Wait(1, plain))
	assert.Equal(t, 2*time.Second, p.Wait(2, plain))
	assert.Equal(t, 4*time.Second, p.Wait(3, plain))
	assert.Equal(t, 4*time.Second, p.Wait(4, plain))
}

func TestRetryPolicy_Retryable(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.Retryable(&ProviderError{StatusCode: 429, Body: "rate limited"}))
	assert.False(t, p.Retryable(&ProviderError{StatusCode: 429, Body: "Quota exceeded"}))
	assert.False(t, p.Retryable(&ProviderError{StatusCode: 500, Body: "boom"}))
	assert.False(t, p.Retryable(assert.AnError))
}
