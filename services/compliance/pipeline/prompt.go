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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianComply/services/compliance/datatypes"
	"github.com/AleutianAI/AleutianComply/services/llm"
)

// promptTemplate is the fixed instruction template. %s slots: allowed
// labels, context blocks.
const promptTemplate = `You are a compliance assistant answering questions about the Export
Administration Regulations (EAR). Answer ONLY from the regulatory text
provided below. Do not use outside knowledge.

Respond with a single JSON object and nothing else, with exactly these keys:
  label         - one of: %s
  answer_text   - your answer in plain prose
  citations     - array of {"section_id", "quote"}; every quote must be a
                  verbatim excerpt of the provided text
  evidence_okay - {"ok": bool, "reasons": [string]}; set ok=false if the
                  text does not actually support your answer
  assumptions   - array of verbatim excerpts you relied on as premises
  justification - (optional) one sentence on how you decided

Rules:
- If the provided text is insufficient to answer, set label to
  "unanswerable", cite nothing, and say what is insufficient and what the
  asker should provide.
- Never answer beyond the provided sections.

Regulatory text:
%s`

// BuildContext concatenates retrieval candidates and expansion snippets
// into the context string, one block per document, each prefixed with its
// canonical section id.
//
// This exact string is embedded in the prompt AND handed to the output
// contract validator, so grounding is checked against precisely what the
// model saw. It is built once per request; never recompute it.
func BuildContext(candidates []datatypes.RetrievedCandidate, snippets []datatypes.ExpansionSnippet) string {
	blocks := make([]string, 0, len(candidates)+len(snippets))
	for _, c := range candidates {
		blocks = append(blocks, fmt.Sprintf("[%s] %s", c.SectionID, c.Text))
	}
	for _, s := range snippets {
		blocks = append(blocks, fmt.Sprintf("[%s] %s", s.SectionID, s.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildMessages renders the chat messages for one generation call.
func BuildMessages(question, context string, allowedLabels []string) []llm.Message {
	system := fmt.Sprintf(promptTemplate, strings.Join(allowedLabels, ", "), context)
	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	}
}
