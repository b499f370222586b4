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
	"io"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/spf13/cobra"
)

var statusServiceURL string

// statusCmd reports the running service's index provenance.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the loaded index's provenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := statusServiceURL
		if baseURL == "" {
			baseURL = "http://localhost:" + config.Global.Server.Port
		}
		resp, err := askHTTPClient.Get(baseURL + "/v1/index/status")
		if err != nil {
			return fmt.Errorf("could not reach the compliance service at %s: %w", baseURL, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusServiceURL, "url", "", "Compliance service base URL (default from config)")
	rootCmd.AddCommand(statusCmd)
}
