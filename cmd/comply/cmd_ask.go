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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianComply/services/compliance/config"
	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/spf13/cobra"
)

var askHTTPClient = &http.Client{
	Timeout: time.Minute * 4,
}

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	askServiceURL string // Base URL of the running compliance service
	askTopK       int    // Candidate count override
	askStrict     bool   // Fail on retrieval errors instead of degrading
	askJSONOutput bool   // Print the raw result JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// askCmd poses one question to a running compliance service.
//
// # Examples
//
//	comply ask "Do anti-terrorism controls apply to exports to Iran?"
//	comply ask --json --top-k 8 "What does EAR 736.2(b) prohibit?"
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a grounded compliance question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		baseURL := askServiceURL
		if baseURL == "" {
			baseURL = "http://localhost:" + config.Global.Server.Port
		}

		payload, err := json.Marshal(datatypes.AskRequest{
			Question: question,
			TopK:     askTopK,
			Strict:   askStrict,
		})
		if err != nil {
			return err
		}
		resp, err := askHTTPClient.Post(baseURL+"/v1/ask", "application/json", bytes.NewReader(payload))
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

		var result datatypes.AskResult
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("could not parse the service response: %w", err)
		}

		if askJSONOutput {
			pretty, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(pretty))
			return nil
		}
		printResult(&result)
		return nil
	},
}

func printResult(result *datatypes.AskResult) {
	fmt.Printf("State: %s\n", result.State)
	if !result.OutputOk {
		fmt.Println("The model's answer failed the output contract:")
		if result.ContractErr != nil {
			fmt.Printf("  [%s] %s\n", result.ContractErr.Code, result.ContractErr.Message)
		}
		os.Exit(1)
	}
	if result.Answer == nil {
		return
	}
	fmt.Printf("Label: %s\n\n%s\n", result.Answer.Label, result.Answer.AnswerText)
	if len(result.Answer.Citations) > 0 {
		fmt.Println("\nCitations:")
		for _, cit := range result.Answer.Citations {
			fmt.Printf("  %s: %q\n", cit.SectionID, cit.Quote)
		}
	}
	for _, warning := range result.Retrieval.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
}

func init() {
	askCmd.Flags().StringVar(&askServiceURL, "url", "", "Compliance service base URL (default from config)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Number of candidates to retrieve")
	askCmd.Flags().BoolVar(&askStrict, "strict", false, "Fail on retrieval errors instead of degrading")
	askCmd.Flags().BoolVar(&askJSONOutput, "json", false, "Print the raw result JSON")
	rootCmd.AddCommand(askCmd)
}
