package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient generates via the official OpenAI API using the SDK. It
// shares the throttle, budget, and retry semantics of HTTPClient; SDK
// errors are converted to ProviderError so one retry policy covers both.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	throttle *Throttle
	budget   *CallBudget
	policy   RetryPolicy
}

// NewOpenAIClient builds a client from OPENAI_API_KEY and OPENAI_MODEL.
func NewOpenAIClient() (*OpenAIClient, error) {
	if os.Getenv("GENERATION_DISABLED") == "true" {
		return nil, fmt.Errorf("generation provider is disabled by configuration")
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is missing")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}

	// Same knobs as the raw HTTP backend, so one deployment env
	// configures whichever backend is selected.
	var minInterval time.Duration
	if secs, err := strconv.Atoi(os.Getenv("GENERATION_MIN_INTERVAL_SECONDS")); err == nil && secs > 0 {
		minInterval = time.Duration(secs) * time.Second
	}
	maxCalls := 0
	if max, err := strconv.Atoi(os.Getenv("GENERATION_MAX_CALLS")); err == nil && max > 0 {
		maxCalls = max
	}

	return &OpenAIClient{
		client:   openai.NewClient(apiKey),
		model:    model,
		throttle: NewThrottle(minInterval),
		budget:   NewCallBudget("openai", maxCalls),
		policy:   DefaultRetryPolicy(),
	}, nil
}

// Provider implements the LLMClient interface.
func (c *OpenAIClient) Provider() string { return "openai" }

// Model implements the LLMClient interface.
func (c *OpenAIClient) Model() string { return c.model }

// Generate implements the LLMClient interface.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	if len(messages) == 0 {
		return "", fmt.Errorf("generate: no messages")
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := c.budget.Spend(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		if err := c.throttle.Wait(ctx); err != nil {
			return "", err
		}

		text, err := c.doOnce(ctx, messages, params)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt == c.policy.MaxAttempts || !c.policy.Retryable(err) {
			break
		}
		wait := c.policy.Wait(attempt, err)
		slog.Warn("OpenAI rate limited, retrying", "attempt", attempt, "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", lastErr
}

func (c *OpenAIClient) doOnce(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	apiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		apiMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: apiMessages,
		Stop:     params.Stop,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &ProviderError{
				Provider:   "openai",
				StatusCode: apiErr.HTTPStatusCode,
				Body:       apiErr.Message,
			}
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
