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
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/compliance/index"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	indexCorpusPath   string // Corpus JSONL to embed; default from config
	indexOutputPath   string // Index file to write; default from config
	indexSnapshotID  string // Snapshot id recorded in the sidecar
	indexSnapshotSHA string // Snapshot content hash recorded in the sidecar
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// buildIndexCmd embeds a corpus and writes the paired index and sidecar.
//
// # Description
//
// Reads a validated corpus, embeds every document with the configured
// embedding backend, and writes the vector index plus its metadata
// sidecar atomically. The sidecar binds the index to the corpus digest
// and the embedding model, so the retriever can refuse mismatched pairs.
//
// # Examples
//
//	comply build-index
//	comply build-index --corpus ./corpus.jsonl --out ./sections.index
var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Embed the corpus and write the vector index pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Global
		corpusPath := indexCorpusPath
		if corpusPath == "" {
			corpusPath = cfg.CorpusPath()
		}
		out := indexOutputPath
		if out == "" {
			out = cfg.IndexPath()
		}

		docs, err := corpus.ReadCorpus(corpusPath)
		if err != nil {
			return err
		}
		model, err := index.NewEmbeddingModel(cfg.Embedding.Backend, cfg.Embedding.Model)
		if err != nil {
			return err
		}

		var snapshot *datatypes.SnapshotBinding
		if indexSnapshotID != "" || indexSnapshotSHA != "" {
			snapshot = &datatypes.SnapshotBinding{
				SnapshotID:     indexSnapshotID,
				SnapshotSHA256: indexSnapshotSHA,
			}
		}

		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := index.BuildIndex(cmd.Context(), docs, model, out, snapshot); err != nil {
			return err
		}
		fmt.Printf("Indexed %d documents to %s (model %s)\n", len(docs), out, model.Name())
		return nil
	},
}

func init() {
	buildIndexCmd.Flags().StringVar(&indexCorpusPath, "corpus", "", "Corpus JSONL to embed (default from config)")
	buildIndexCmd.Flags().StringVar(&indexOutputPath, "out", "", "Index file to write (default from config)")
	buildIndexCmd.Flags().StringVar(&indexSnapshotID, "snapshot-id", "", "Snapshot id for the sidecar")
	buildIndexCmd.Flags().StringVar(&indexSnapshotSHA, "snapshot-sha256", "", "Snapshot content hash for the sidecar")
	rootCmd.AddCommand(buildIndexCmd)
}
