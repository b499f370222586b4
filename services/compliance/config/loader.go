// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the compliance service configuration from
// ~/.aleutian/comply.yaml, creating a default file on first run.
// Environment variables (credentials, backend selection) are read by the
// components that need them, not duplicated here.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global ComplyConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	configPath := os.Getenv("COMPLY_CONFIG")
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not find the user's home directory: %w", err)
		}
		configPath = filepath.Join(home, ".aleutian", "comply.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Info("First run detected, creating the config", "path", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}

	// Start from defaults so a sparse file still yields a usable config.
	Global = DefaultConfig()
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config file: %w", err)
	}
	applyEnvOverrides(&Global)
	return nil
}

// applyEnvOverrides lets deployment environments win over the file for the
// knobs that differ per host.
func applyEnvOverrides(cfg *ComplyConfig) {
	if dir := os.Getenv("COMPLY_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if backend := os.Getenv("EMBEDDINGS_BACKEND"); backend != "" {
		cfg.Embedding.Backend = backend
	}
	if model := os.Getenv("EMBEDDINGS_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
