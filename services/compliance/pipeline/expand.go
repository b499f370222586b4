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

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
)

// Expander enriches a request's context with extra snippets keyed by the
// section ids retrieval already found.
//
// Expansion is best-effort by contract: implementations must degrade to an
// empty slice on any internal failure, and the pipeline additionally treats
// a returned error as a warning, never an abort.
type Expander interface {
	Expand(ctx context.Context, sectionIDs []string) ([]datatypes.ExpansionSnippet, error)
}

// NoopExpander is the default when no knowledge-graph collaborator is
// configured.
type NoopExpander struct{}

// Expand implements the Expander interface.
func (NoopExpander) Expand(_ context.Context, _ []string) ([]datatypes.ExpansionSnippet, error) {
	return nil, nil
}
