// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/AleutianAI/AleutianComply/services/compliance/corpus"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	corpusSnapshotPath string // Input snapshot JSONL
	corpusSourceRef    string // Provenance label, e.g. "ecfr-2026-08-15"
	corpusOutputPath   string // Corpus file to write; default from config
	corpusMaxChars     int    // Chunk character budget
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// buildCorpusCmd turns a regulatory snapshot into a validated corpus file.
//
// # Description
//
// Loads a snapshot JSONL of section records, chunks each section into
// budget-sized documents, stamps provenance, validates the whole corpus
// against the schema contract, and writes the canonical sorted JSONL.
// Any contract violation fails the whole build; nothing is written.
//
// # Examples
//
//	comply build-corpus --snapshot ear_part736.jsonl --source-ref ecfr-2026-08-15
var buildCorpusCmd = &cobra.Command{
	Use:   "build-corpus",
	Short: "Build a validated corpus from a regulatory snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Global
		maxChars := corpusMaxChars
		if maxChars <= 0 {
			maxChars = cfg.Data.MaxChars
		}
		out := corpusOutputPath
		if out == "" {
			out = cfg.CorpusPath()
		}

		docs, err := corpus.Build(corpusSnapshotPath, corpusSourceRef, maxChars)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := corpus.WriteCorpus(docs, out); err != nil {
			return err
		}
		fmt.Printf("Wrote %d documents to %s (digest %s)\n", len(docs), out, corpus.Digest(docs))
		return nil
	},
}

func init() {
	buildCorpusCmd.Flags().StringVar(&corpusSnapshotPath, "snapshot", "", "Path to the snapshot JSONL (required)")
	buildCorpusCmd.Flags().StringVar(&corpusSourceRef, "source-ref", "", "Provenance label for this snapshot")
	buildCorpusCmd.Flags().StringVar(&corpusOutputPath, "out", "", "Corpus file to write (default from config)")
	buildCorpusCmd.Flags().IntVar(&corpusMaxChars, "max-chars", 0, "Chunk character budget (default from config)")
	_ = buildCorpusCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(buildCorpusCmd)
}
