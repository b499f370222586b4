package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewOpenAIClient_ReadsSharedGenerationKnobs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("GENERATION_MIN_INTERVAL_SECONDS", "7")
	t.Setenv("GENERATION_MAX_CALLS", "3")

	client, err := NewOpenAIClient()
	require.NoError(t, err)

	// The same env vars drive the raw HTTP backend, so one deployment
	// env configures whichever backend is selected.
	require.NotNil(t, client.throttle)
	assert.Equal(t, rate.Every(7*time.Second), client.throttle.limiter.Limit())
	assert.Equal(t, 3, client.budget.Remaining())
}

func TestNewOpenAIClient_IgnoresMalformedKnobs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("GENERATION_MIN_INTERVAL_SECONDS", "2s")
	t.Setenv("GENERATION_MAX_CALLS", "many")

	client, err := NewOpenAIClient()
	require.NoError(t, err)
	assert.Nil(t, client.throttle)
	assert.Equal(t, -1, client.budget.Remaining())
}

func TestNewOpenAIClient_MissingKeyFailsFast(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClient()
	assert.Error(t, err)
}
