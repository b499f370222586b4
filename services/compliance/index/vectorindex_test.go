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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndex_AddAndSearch(t *testing.T) {
	ix, err := NewFlatIndex(2)
	require.NoError(t, err)

	require.NoError(t, ix.Add([][]float32{
		{0, 0},
		{1, 0},
		{0, 3},
	}))
	assert.Equal(t, 3, ix.Count())

	hits, err := ix.Search([]float32{0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].ID)
	assert.Equal(t, 0, hits[1].ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestFlatIndex_KLargerThanCount(t *testing.T) {
	ix, err := NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1, 1}}))

	hits, err := ix.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFlatIndex_TiesBreakOnID(t *testing.T) {
	ix, err := NewFlatIndex(1)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1}, {-1}, {1}}))

	hits, err := ix.Search([]float32{0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	ix, err := NewFlatIndex(3)
	require.NoError(t, err)

	assert.Error(t, ix.Add([][]float32{{1, 2}}))
	assert.Equal(t, 0, ix.Count(), "failed add must not partially insert")

	_, err = ix.Search([]float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestFlatIndex_FileRoundTrip(t *testing.T) {
	ix, err := NewFlatIndex(3)
	require.NoError(t, err)
	vectors := [][]float32{
		{1, 2, 3},
		{-0.5, 0, 0.25},
	}
	require.NoError(t, ix.Add(vectors))

	path := filepath.Join(t.TempDir(), "sections.index")
	require.NoError(t, ix.WriteFile(path))

	got, err := ReadFlatIndexFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Dim())
	assert.Equal(t, 2, got.Count())
	assert.Equal(t, vectors, got.vecs)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadFlatIndex_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.index")
	require.NoError(t, os.WriteFile(path, []byte("not an index file"), 0640))

	_, err := ReadFlatIndexFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}
