// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNew_StderrOnly(t *testing.T) {
	logger, err := New(Config{Level: LevelDebug})
	require.NoError(t, err)
	defer logger.Close()

	assert.NotNil(t, logger.Logger)
	assert.Nil(t, logger.file)
	assert.NoError(t, logger.Close())
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{LogDir: dir, Service: "compliance"})
	require.NoError(t, err)

	logger.Info("index loaded", "doc_count", 3)
	require.NoError(t, logger.Close())

	name := "compliance_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"index loaded"`)
	assert.Contains(t, string(data), `"service":"compliance"`)
	assert.Contains(t, string(data), `"doc_count":3`)
}

func TestNew_BadLogDirStillLogs(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	logger, err := New(Config{LogDir: filepath.Join(blocker, "logs")})
	assert.Error(t, err)
	require.NotNil(t, logger)
	defer logger.Close()
	assert.NotNil(t, logger.Logger)
}
