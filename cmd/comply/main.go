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
	"log"

	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "comply",
	Short: "A CLI to build and query the EAR compliance corpus",
	Long: `Comply manages the grounded compliance pipeline: it turns regulatory
snapshots into a validated corpus, builds the paired vector index, and
asks questions against a running compliance service.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading the config: %v", err)
		}
	}
}
