package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("comply.llm")

// maxErrorBody bounds how much of a failed response is kept on the error.
const maxErrorBody = 8 * 1024

// HTTPClientOptions configures an HTTPClient explicitly. NewHTTPClient
// fills these from the environment.
type HTTPClientOptions struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MinInterval time.Duration
	MaxCalls    int
	Policy      *RetryPolicy
}

// HTTPClient talks to any OpenAI-compatible chat completions endpoint.
//
// Every attempt passes the call budget guard and the minimum-interval
// throttle before touching the network. Only transient 429s are retried
// (see RetryPolicy); the wait honors Retry-After, then a "try again in Ns"
// body hint, then exponential backoff.
type HTTPClient struct {
	httpClient *http.Client
	provider   string
	baseURL    string
	apiKey     string
	model      string
	throttle   *Throttle
	budget     *CallBudget
	policy     RetryPolicy
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	TopP        *float32  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// NewHTTPClient builds a client from the environment: GENERATION_BASE_URL,
// GENERATION_API_KEY, GENERATION_MODEL, and optionally
// GENERATION_PROVIDER, GENERATION_MIN_INTERVAL_SECONDS,
// GENERATION_MAX_CALLS. Setting GENERATION_DISABLED=true fails fast.
func NewHTTPClient() (*HTTPClient, error) {
	opts, err := EnvHTTPOptions()
	if err != nil {
		return nil, err
	}
	return NewHTTPClientWithOptions(opts)
}

// EnvHTTPOptions reads the GENERATION_* environment into options, so
// callers can adjust them (retry policy, throttle) before construction.
func EnvHTTPOptions() (HTTPClientOptions, error) {
	if os.Getenv("GENERATION_DISABLED") == "true" {
		return HTTPClientOptions{}, fmt.Errorf("generation provider is disabled by configuration")
	}

	opts := HTTPClientOptions{
		Provider: os.Getenv("GENERATION_PROVIDER"),
		BaseURL:  os.Getenv("GENERATION_BASE_URL"),
		APIKey:   os.Getenv("GENERATION_API_KEY"),
		Model:    os.Getenv("GENERATION_MODEL"),
	}
	if secs, err := strconv.Atoi(os.Getenv("GENERATION_MIN_INTERVAL_SECONDS")); err == nil && secs > 0 {
		opts.MinInterval = time.Duration(secs) * time.Second
	}
	if max, err := strconv.Atoi(os.Getenv("GENERATION_MAX_CALLS")); err == nil && max > 0 {
		opts.MaxCalls = max
	}
	return opts, nil
}

// NewHTTPClientWithOptions builds a client from explicit options.
func NewHTTPClientWithOptions(opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("generation base URL is not set")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("generation API key is not set")
	}
	if opts.Provider == "" {
		opts.Provider = "http"
	}
	if opts.Model == "" {
		opts.Model = "default"
		slog.Warn("Generation model not set, defaulting", "model", opts.Model)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	policy := DefaultRetryPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		provider:   opts.Provider,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		throttle:   NewThrottle(opts.MinInterval),
		budget:     NewCallBudget(opts.Provider, opts.MaxCalls),
		policy:     policy,
	}, nil
}

// Provider implements the LLMClient interface.
func (c *HTTPClient) Provider() string { return c.provider }

// Model implements the LLMClient interface.
func (c *HTTPClient) Model() string { return c.model }

// Generate implements the LLMClient interface.
func (c *HTTPClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

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
		slog.Warn("Generation rate limited, retrying",
			"provider", c.provider,
			"attempt", attempt,
			"wait", wait,
		)
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

// doOnce dispatches exactly one chat completion request.
func (c *HTTPClient) doOnce(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	payload := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := string(respBody)
		if len(errBody) > maxErrorBody {
			errBody = errBody[:maxErrorBody]
		}
		return "", &ProviderError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Body:       errBody,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
