// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/normalize"
)

// utf8BOM is tolerated (and stripped) by this loader; the stricter snapshot
// manifest tooling downstream rejects it outright.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadSnapshot reads a snapshot JSONL file: one SnapshotRecord per line.
//
// The loader tolerates CRLF line endings and a leading UTF-8 BOM; blank
// lines are skipped. Parse failures are fatal with the 1-based line number
// attached, since a half-read snapshot must never produce a corpus.
func LoadSnapshot(path string) ([]datatypes.SnapshotRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var records []datatypes.SnapshotRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if lineNo == 1 {
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec datatypes.SnapshotRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", lineNo, err)
		}
		if rec.Text == "" {
			return nil, fmt.Errorf("snapshot line %d: empty text for section %q", lineNo, rec.SectionID)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return records, nil
}

// Build turns a snapshot into a validated, sorted corpus.
//
// # Description
//
// For every snapshot record: normalize the raw section reference (a
// reference that does not normalize fails the whole build), chunk the text
// under maxChars, and stamp schema version, source, provenance, part, url,
// and a per-document content hash. The full set is then sorted by doc_id
// and gated through the corpus contract before being returned.
//
// # Inputs
//
//   - snapshotPath: JSONL snapshot file (see LoadSnapshot).
//   - sourceRef: Provenance stamp for every document; when empty, each
//     record's own source_ref is used, falling back to the snapshot path.
//   - maxChars: Chunk budget passed to the chunker.
//
// # Outputs
//
//   - []datatypes.CorpusDocument: The complete corpus, sorted by doc_id.
//   - error: Normalization, chunking, or contract failure.
func Build(snapshotPath, sourceRef string, maxChars int) ([]datatypes.CorpusDocument, error) {
	records, err := LoadSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}

	var docs []datatypes.CorpusDocument
	for i, rec := range records {
		sectionID, err := normalize.SectionID(rec.SectionID)
		if err != nil {
			return nil, fmt.Errorf("snapshot record %d: %w", i, err)
		}

		chunks, err := Chunk(sectionID, rec.Heading, rec.Text, maxChars)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", sectionID, err)
		}

		ref := sourceRef
		if ref == "" {
			ref = rec.SourceRef
		}
		if ref == "" {
			ref = snapshotPath
		}

		part, _ := normalize.PartOf(sectionID)
		for j := range chunks {
			chunks[j].SchemaVersion = datatypes.CorpusSchemaVersion
			chunks[j].Source = datatypes.SourceSnapshot
			chunks[j].SourceRef = ref
			chunks[j].Part = part
			chunks[j].URL = rec.URL
			chunks[j].Hash = contentHash(chunks[j].Text)
		}
		docs = append(docs, chunks...)
	}

	sort.Slice(docs, func(a, b int) bool { return docs[a].DocID < docs[b].DocID })

	if err := RequireValid(docs); err != nil {
		return nil, err
	}

	slog.Info("Corpus built",
		"snapshot", snapshotPath,
		"sections", len(records),
		"documents", len(docs),
		"digest", Digest(docs),
	)
	return docs, nil
}

// Digest computes the deterministic corpus content digest.
//
// SHA-256 over (doc_id, text) pairs taken in sorted doc_id order, each
// field newline-terminated before hashing. Index metadata binds on this
// exact convention, so it must never change: a different separator or
// ordering silently un-pairs every existing index.
func Digest(docs []datatypes.CorpusDocument) string {
	sorted := make([]datatypes.CorpusDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].DocID < sorted[b].DocID })

	h := sha256.New()
	for _, doc := range sorted {
		h.Write([]byte(doc.DocID))
		h.Write([]byte("\n"))
		h.Write([]byte(doc.Text))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// contentHash is the per-document hash stamped at build time.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// WriteCorpus writes the corpus as JSONL: one document per line, sorted by
// doc_id, UTF-8, LF-only, keys sorted for diff-stability.
func WriteCorpus(docs []datatypes.CorpusDocument, path string) error {
	sorted := make([]datatypes.CorpusDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].DocID < sorted[b].DocID })

	var b strings.Builder
	for _, doc := range sorted {
		line, err := marshalSortedKeys(doc)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", doc.DocID, err)
		}
		b.Write(line)
		b.WriteString("\n")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0640); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize corpus: %w", err)
	}
	return nil
}

// ReadCorpus reads a JSONL corpus file back into documents. The result is
// re-gated through the contract so a hand-edited file cannot sneak past.
func ReadCorpus(path string) ([]datatypes.CorpusDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var docs []datatypes.CorpusDocument
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var doc datatypes.CorpusDocument
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", lineNo, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if err := RequireValid(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// marshalSortedKeys produces a JSON object with lexically sorted keys.
// encoding/json preserves struct field order, so the document is routed
// through a map, which Go marshals in sorted-key order.
func marshalSortedKeys(doc datatypes.CorpusDocument) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
