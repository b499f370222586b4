// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// RegSectionClassName is the Weaviate class holding cross-reference
// snippets for regulatory sections.
const RegSectionClassName = "RegSection"

// WeaviateExpander pulls related-section snippets from a Weaviate
// knowledge graph.
//
// Expansion is strictly best-effort: every failure path logs a warning and
// returns an empty slice so the pipeline proceeds on retrieval alone.
type WeaviateExpander struct {
	client *weaviate.Client
}

// NewWeaviateExpander connects to the Weaviate instance named by
// WEAVIATE_HOST (and optionally WEAVIATE_SCHEME). Returns an error only
// for missing configuration; an unreachable server degrades at query time.
func NewWeaviateExpander() (*WeaviateExpander, error) {
	host := os.Getenv("WEAVIATE_HOST")
	if host == "" {
		return nil, fmt.Errorf("WEAVIATE_HOST is not set")
	}
	scheme := os.Getenv("WEAVIATE_SCHEME")
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &WeaviateExpander{client: client}, nil
}

// regSectionRecord mirrors the RegSection class properties.
type regSectionRecord struct {
	SectionID       string   `json:"sectionId"`
	Text            string   `json:"text"`
	Source          string   `json:"source"`
	RelatedSections []string `json:"relatedSections"`
	LabelHints      []string `json:"labelHints"`
}

// Expand implements the Expander interface.
func (e *WeaviateExpander) Expand(ctx context.Context, sectionIDs []string) ([]datatypes.ExpansionSnippet, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}

	where := filters.Where().
		WithPath([]string{"sectionId"}).
		WithOperator(filters.ContainsAny).
		WithValueText(sectionIDs...)

	fields := []graphql.Field{
		{Name: "sectionId"},
		{Name: "text"},
		{Name: "source"},
		{Name: "relatedSections"},
		{Name: "labelHints"},
	}

	result, err := e.client.GraphQL().Get().
		WithClassName(RegSectionClassName).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(len(sectionIDs) * 2).
		Do(ctx)
	if err != nil {
		slog.Warn("Knowledge-graph expansion unavailable", "error", err)
		return nil, nil
	}
	if len(result.Errors) > 0 {
		slog.Warn("Knowledge-graph expansion query failed", "error", result.Errors[0].Message)
		return nil, nil
	}

	// Route the untyped GraphQL payload through JSON into typed records.
	get, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := get[RegSectionClassName]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		slog.Warn("Knowledge-graph expansion returned unparseable data", "error", err)
		return nil, nil
	}
	var records []regSectionRecord
	if err := json.Unmarshal(encoded, &records); err != nil {
		slog.Warn("Knowledge-graph expansion returned unparseable records", "error", err)
		return nil, nil
	}

	snippets := make([]datatypes.ExpansionSnippet, 0, len(records))
	for _, rec := range records {
		if rec.SectionID == "" || rec.Text == "" {
			continue
		}
		snippets = append(snippets, datatypes.ExpansionSnippet{
			SectionID:       rec.SectionID,
			Text:            rec.Text,
			Source:          rec.Source,
			RelatedSections: rec.RelatedSections,
			LabelHints:      rec.LabelHints,
		})
	}
	return snippets, nil
}
