// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingTimeout bounds a single embedding request.
const DefaultEmbeddingTimeout = 60 * time.Second

// ============================================================================
// Interfaces
// ============================================================================

// EmbeddingModel converts text into dense vectors.
//
// # Description
//
// The index builder and the retriever must use the same EmbeddingModel; the
// model name is recorded in the index metadata so a mismatch is detectable
// at load time. Implementations must be safe for concurrent use.
type EmbeddingModel interface {
	// Name returns the stable model identifier recorded in index metadata.
	Name() string

	// Encode embeds a batch of texts, returning one vector per input in
	// input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// ============================================================================
// Constructor Functions
// ============================================================================

// NewEmbeddingModel selects an embedding backend by name.
//
// # Inputs
//
//   - backend: "openai" or "ollama".
//   - model: Backend model name, e.g. "text-embedding-3-small" or
//     "nomic-embed-text".
//
// # Outputs
//
//   - EmbeddingModel: The configured backend.
//   - error: Unknown backend, or missing credentials for openai.
func NewEmbeddingModel(backend, model string) (EmbeddingModel, error) {
	switch backend {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("embedding backend openai: OPENAI_API_KEY is not set")
		}
		return &openaiEmbedder{
			client: openai.NewClient(key),
			model:  model,
		}, nil
	case "ollama":
		baseURL := os.Getenv("OLLAMA_HOST")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &ollamaEmbedder{
			baseURL: baseURL,
			model:   model,
			httpClient: &http.Client{
				Timeout: DefaultEmbeddingTimeout,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q (want openai or ollama)", backend)
	}
}

// ============================================================================
// OpenAI Backend
// ============================================================================

// openaiEmbedder embeds via the OpenAI embeddings endpoint.
type openaiEmbedder struct {
	client *openai.Client
	model  string
}

// Name implements EmbeddingModel.
func (e *openaiEmbedder) Name() string {
	return "openai/" + e.model
}

// Encode implements EmbeddingModel.
func (e *openaiEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("encode: empty batch")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// The API documents response order matching input order, but Index is
	// authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai embeddings: vector index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings: no vector for input %d", i)
		}
	}
	return vectors, nil
}

// ============================================================================
// Ollama Backend
// ============================================================================

// ollamaEmbedder embeds via a local Ollama server's /api/embed endpoint.
type ollamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Name implements EmbeddingModel.
func (e *ollamaEmbedder) Name() string {
	return "ollama/" + e.model
}

// Encode implements EmbeddingModel.
func (e *ollamaEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("encode: empty batch")
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embeddings: status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: got %d vectors for %d texts", len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}
