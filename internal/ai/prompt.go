// Package ai implements the AI Analyzer Client (spec §4.3, C3): a
// request/response client to an external LLM for field mapping and
// CAPTCHA vision, with strict response validation so a misbehaving model
// can only ever cause a fallback, never bad data downstream.
package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

const maxFormHTMLBytes = 5000

// systemInstruction fixes the model's output format; kept low-temperature
// and deterministic per spec §4.3.
const systemInstruction = `You map HTML form fields to a fixed set of canonical profile keys.
Respond with a JSON array only, no prose, no markdown fences. Each element:
{"selector": "<css selector>", "profile_field": "<one of the provided keys>", "field_kind": "<text|email|password|select|checkbox|radio|dob_day|dob_month|dob_year|submit|other>", "confidence": <0.0-1.0>}
Only include fields you can confidently map. Never invent a profile_field not in the provided list.`

func buildPrompt(req interfaces.FieldAnalyzerRequest) string {
	html := req.FormHTML
	if len(html) > maxFormHTMLBytes {
		html = html[:maxFormHTMLBytes]
	}
	var b strings.Builder
	b.WriteString("Canonical profile keys: ")
	b.WriteString(strings.Join(req.CanonicalKeys, ", "))
	b.WriteString("\n\nForm HTML:\n")
	b.WriteString(html)
	return b.String()
}

// rawEntry mirrors the JSON shape the system instruction asks for.
type rawEntry struct {
	Selector     string  `json:"selector"`
	ProfileField string  `json:"profile_field"`
	FieldKind    string  `json:"field_kind"`
	Confidence   float64 `json:"confidence"`
}

// parseAndValidate extracts the JSON array from a model's raw text reply
// and discards any entry that does not survive spec §4.3's response
// validation: valid CSS selector (non-empty), profile key from the
// canonical set, confidence in [0,1]. Confidence-threshold filtering is
// the caller's (internal/resolver) job, not this client's — this function
// only enforces structural validity.
func parseAndValidate(text string, canonicalKeys []string) ([]models.FieldPlanEntry, error) {
	jsonText := extractJSONArray(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON array found in model response")
	}

	var raw []rawEntry
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON array: %w", err)
	}

	allowed := map[string]bool{}
	for _, k := range canonicalKeys {
		allowed[k] = true
	}

	entries := make([]models.FieldPlanEntry, 0, len(raw))
	for _, r := range raw {
		if r.Selector == "" {
			continue
		}
		if !allowed[r.ProfileField] {
			continue
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			continue
		}
		entries = append(entries, models.FieldPlanEntry{
			Selector:   r.Selector,
			ProfileKey: r.ProfileField,
			Kind:       models.FieldKind(r.FieldKind),
			Confidence: r.Confidence,
			Handler:    models.HandlerNone,
		})
	}

	return entries, nil
}

// extractJSONArray finds the first top-level '[' ... ']' span, tolerating a
// model that wraps its answer in markdown fences or a short preamble.
func extractJSONArray(text string) string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
