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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// Flat index file layout, little-endian:
//
//	magic   [4]byte  "ACIX"
//	version uint32   1
//	dim     uint32
//	count   uint32
//	vectors count*dim float32
//
// Vector i's internal id is i; the metadata sidecar's rows[i] describes it.
const (
	indexMagic   = "ACIX"
	indexVersion = 1
)

// SearchHit is one nearest-neighbor result: the vector's internal id and its
// squared L2 distance from the query.
type SearchHit struct {
	ID       int
	Distance float32
}

// FlatIndex is an exact (brute-force) L2 nearest-neighbor index.
//
// # Description
//
// Vectors are stored densely in insertion order; Search scans all of them.
// Exact search keeps retrieval deterministic, which the answer contract
// depends on, and the corpus is small enough (thousands of chunks) that a
// full scan stays well under a millisecond.
//
// # Thread Safety
//
// FlatIndex is NOT safe for concurrent mutation. The retriever guards it
// with its own lock.
type FlatIndex struct {
	dim  int
	vecs [][]float32
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flat index: dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim returns the vector dimension.
func (ix *FlatIndex) Dim() int { return ix.dim }

// Count returns the number of stored vectors.
func (ix *FlatIndex) Count() int { return len(ix.vecs) }

// Add appends vectors to the index. Every vector must match the index
// dimension; on mismatch nothing is added.
func (ix *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("flat index: vector %d has dim %d, index has dim %d", i, len(v), ix.dim)
		}
	}
	ix.vecs = append(ix.vecs, vectors...)
	return nil
}

// Search returns the k nearest stored vectors by squared L2 distance,
// nearest first. Ties break on lower id so results are deterministic.
func (ix *FlatIndex) Search(query []float32, k int) ([]SearchHit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("flat index: query has dim %d, index has dim %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("flat index: k must be positive, got %d", k)
	}

	hits := make([]SearchHit, 0, len(ix.vecs))
	for id, v := range ix.vecs {
		var d float32
		for j := range v {
			diff := v[j] - query[j]
			d += diff * diff
		}
		hits = append(hits, SearchHit{ID: id, Distance: d})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// WriteTo serializes the index in the flat file layout.
func (ix *FlatIndex) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(indexMagic); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}
	header := []uint32{indexVersion, uint32(ix.dim), uint32(len(ix.vecs))}
	for _, h := range header {
		if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
	}
	for _, v := range ix.vecs {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write index vectors: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile writes the index to path atomically (temp file plus rename).
func (ix *FlatIndex) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := ix.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize index file: %w", err)
	}
	return nil
}

// ReadFlatIndex deserializes an index written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("read index: bad magic %q", string(magic))
	}

	var version, dim, count uint32
	for _, p := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(br, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("read index header: %w", err)
		}
	}
	if version != indexVersion {
		return nil, fmt.Errorf("read index: unsupported version %d", version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("read index: zero dimension")
	}

	ix := &FlatIndex{dim: int(dim), vecs: make([][]float32, 0, count)}
	for i := uint32(0); i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read index vector %d: %w", i, err)
		}
		ix.vecs = append(ix.vecs, v)
	}
	return ix, nil
}

// ReadFlatIndexFile loads an index file from disk.
func ReadFlatIndexFile(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return ReadFlatIndex(f)
}
