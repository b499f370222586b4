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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comply.yaml")
	t.Setenv("COMPLY_CONFIG", path)

	require.NoError(t, loadInternal())

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "12310", Global.Server.Port)
	assert.Equal(t, "ollama", Global.Embedding.Backend)
	assert.InDelta(t, 0.5, Global.Pipeline.ThinScoreFloor, 1e-9)
	assert.Contains(t, Global.Provider.QuotaMarkers, "per day")
}

func TestLoad_SparseFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comply.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9999\"\n"), 0644))
	t.Setenv("COMPLY_CONFIG", path)

	require.NoError(t, loadInternal())

	assert.Equal(t, "9999", Global.Server.Port)
	assert.Equal(t, 10000, Global.Data.MaxChars)
	assert.Equal(t, 5, Global.Pipeline.TopK)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comply.yaml")
	t.Setenv("COMPLY_CONFIG", path)
	t.Setenv("COMPLY_DATA_DIR", "/srv/comply")
	t.Setenv("EMBEDDINGS_BACKEND", "openai")
	t.Setenv("EMBEDDINGS_MODEL", "text-embedding-3-small")

	require.NoError(t, loadInternal())

	assert.Equal(t, "/srv/comply", Global.Data.Dir)
	assert.Equal(t, "openai", Global.Embedding.Backend)
	assert.Equal(t, "text-embedding-3-small", Global.Embedding.Model)
	assert.Equal(t, filepath.Join("/srv/comply", "corpus.jsonl"), Global.CorpusPath())
}

func TestLoad_BadYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comply.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))
	t.Setenv("COMPLY_CONFIG", path)

	assert.Error(t, loadInternal())
}
