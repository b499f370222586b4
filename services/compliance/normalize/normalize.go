// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize canonicalizes regulatory section references.
//
// # Description
//
// Every component of the compliance service identifies regulatory text by a
// single canonical string form:
//
//	EAR-<part>.<section><(subsection)...>
//
// e.g. "15 CFR 736.2", "§ 736.2(b)", and "EAR-736.2(B)" all map to
// "EAR-736.2" / "EAR-736.2(b)". The corpus builder, the index, the
// retriever, the prompt template, and the downstream eval/audit tooling all
// key on this form, so the mapping must be pure, deterministic, and stable
// across releases. Do not add configuration or locale awareness here.
//
// # Thread Safety
//
// All functions are pure; the package holds no mutable state.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidReference is wrapped by every normalization failure. Callers
// treat it as a validation failure, never a crash.
var ErrInvalidReference = errors.New("invalid section reference")

var (
	// cfrPrefixRe strips a "15 CFR "-style title prefix.
	cfrPrefixRe = regexp.MustCompile(`(?i)^15\s*c\.?f\.?r\.?\s*`)

	// earPrefixRe strips an existing "EAR-" or "EAR " prefix so canonical
	// ids normalize to themselves.
	earPrefixRe = regexp.MustCompile(`(?i)^ear[-\s]+`)

	// bodyRe is the shape of a normalized section body: a part number,
	// dotted section components with optional letter tails, and optional
	// parenthesized subsection labels.
	bodyRe = regexp.MustCompile(`^\d+(\.\d+[a-z]*)*(\([a-z0-9]+\))*$`)

	// suffixRe is the shape of a stable doc-id suffix after "#".
	suffixRe = regexp.MustCompile(`^[a-z0-9][a-z0-9:._-]{0,200}$`)
)

// SectionID canonicalizes an arbitrary section reference.
//
// # Description
//
// The algorithm, in order: replace non-breaking spaces with plain spaces,
// trim, strip a leading section-mark glyph, strip a "15 CFR " prefix
// (case-insensitive), strip an "EAR-"/"EAR " prefix, remove internal
// spaces, strip one trailing dot, lowercase, and match against the
// normalized-body pattern. On match the result is "EAR-" plus the body.
//
// # Inputs
//
//   - raw: Any string reference, e.g. "15 CFR 736.2", "§ 736.2(b)", "EAR-736.2".
//
// # Outputs
//
//   - string: The canonical id, e.g. "EAR-736.2(b)". Empty on error.
//   - error: Wraps ErrInvalidReference when raw cannot be normalized.
//
// # Examples
//
//	normalize.SectionID("§ 736.2(B)") // "EAR-736.2(b)", nil
//	normalize.SectionID("EAR-736.2")  // "EAR-736.2", nil (idempotent)
//	normalize.SectionID("not a ref")  // "", ErrInvalidReference
func SectionID(raw string) (string, error) {
	s := strings.ReplaceAll(raw, "\u00a0", " ")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "§")
	s = strings.TrimSpace(s)
	s = cfrPrefixRe.ReplaceAllString(s, "")
	s = earPrefixRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ".")
	s = strings.ToLower(s)

	if !bodyRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	return "EAR-" + s, nil
}

// DocID canonicalizes a document id: a section reference optionally
// followed by one "#"-delimited stable suffix.
//
// The left side is validated exactly like SectionID; the suffix must match
// [a-z0-9][a-z0-9:._-]{0,200}. More than one "#" is invalid.
func DocID(raw string) (string, error) {
	left, suffix, found := strings.Cut(raw, "#")
	section, err := SectionID(left)
	if err != nil {
		return "", err
	}
	if !found {
		return section, nil
	}
	if strings.Contains(suffix, "#") || !suffixRe.MatchString(suffix) {
		return "", fmt.Errorf("%w: bad doc suffix %q", ErrInvalidReference, suffix)
	}
	return section + "#" + suffix, nil
}

// IsCanonicalSectionID reports whether s already is its own canonical form.
func IsCanonicalSectionID(s string) bool {
	n, err := SectionID(s)
	return err == nil && n == s
}

// IsCanonicalDocID reports whether s already is its own canonical doc id.
func IsCanonicalDocID(s string) bool {
	n, err := DocID(s)
	return err == nil && n == s
}

// PartOf extracts the 3-digit part number from a canonical section id.
//
// Returns an error when id is not canonical or its part is not exactly
// three digits (the corpus contract requires 3-digit parts).
func PartOf(id string) (string, error) {
	if !strings.HasPrefix(id, "EAR-") {
		return "", fmt.Errorf("%w: %q has no EAR- prefix", ErrInvalidReference, id)
	}
	body := strings.TrimPrefix(id, "EAR-")
	end := strings.IndexAny(body, ".(")
	if end < 0 {
		end = len(body)
	}
	part := body[:end]
	if len(part) != 3 {
		return "", fmt.Errorf("%w: part %q is not 3 digits", ErrInvalidReference, part)
	}
	return part, nil
}
