// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type ComplyConfig struct {
	// Server: HTTP surface of the compliance service
	Server ServerConfig `yaml:"server"`

	// Data: on-disk locations of the corpus and index pair
	Data DataConfig `yaml:"data"`

	// Embedding: backend used by the index builder and the retriever
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline: ask pipeline tunables
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Provider: generation provider tunables for the HTTP backend
	Provider ProviderConfig `yaml:"provider"`
}

type ServerConfig struct {
	Port string `yaml:"port"` // e.g. "12310"
}

type DataConfig struct {
	Dir        string `yaml:"dir"`         // e.g. ~/.aleutian/comply
	CorpusFile string `yaml:"corpus_file"` // e.g. corpus.jsonl
	IndexFile  string `yaml:"index_file"`  // e.g. sections.index
	MaxChars   int    `yaml:"max_chars"`   // chunk budget for corpus builds
}

type EmbeddingConfig struct {
	// Backend can be "openai" or "ollama".
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

type PipelineConfig struct {
	AllowedLabels    []string `yaml:"allowed_labels"`
	TopK             int      `yaml:"top_k"`
	ThinCheckEnabled bool     `yaml:"thin_check_enabled"`

	// ThinScoreFloor is heuristic and embedding-model specific; 0.5 suits
	// the default backends but should be re-tuned when the model changes.
	ThinScoreFloor float64 `yaml:"thin_score_floor"`

	GenerateTimeoutSeconds int `yaml:"generate_timeout_seconds"`
}

type ProviderConfig struct {
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
	MaxCallsPerRun     int `yaml:"max_calls_per_run"`

	// QuotaMarkers are lowercase substrings of a 429 body that mean the
	// day's quota is spent, so retrying is pointless. Provider wording
	// varies; extend per deployment.
	QuotaMarkers []string `yaml:"quota_markers"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ComplyConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return ComplyConfig{
		Server: ServerConfig{Port: "12310"},
		Data: DataConfig{
			Dir:        filepath.Join(home, ".aleutian", "comply"),
			CorpusFile: "corpus.jsonl",
			IndexFile:  "sections.index",
			MaxChars:   10000,
		},
		Embedding: EmbeddingConfig{
			Backend: "ollama",
			Model:   "nomic-embed-text",
		},
		Provider: ProviderConfig{
			QuotaMarkers: []string{"per day", "daily limit", "quota"},
		},
		Pipeline: PipelineConfig{
			AllowedLabels:          []string{"permitted", "prohibited", "license_required", "unanswerable"},
			TopK:                   5,
			ThinCheckEnabled:       true,
			ThinScoreFloor:         0.5,
			GenerateTimeoutSeconds: 120,
		},
	}
}

// CorpusPath returns the absolute corpus file path.
func (c *ComplyConfig) CorpusPath() string {
	return filepath.Join(c.Data.Dir, c.Data.CorpusFile)
}

// IndexPath returns the absolute index file path.
func (c *ComplyConfig) IndexPath() string {
	return filepath.Join(c.Data.Dir, c.Data.IndexFile)
}
