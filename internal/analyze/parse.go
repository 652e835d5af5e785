// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"encoding/json"
	"strings"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// fallbackSummaryLimit bounds the raw-text excerpt used when the model's
// response cannot be parsed as JSON.
const fallbackSummaryLimit = 500

// rawAnalysis mirrors the JSON contract of the analysis prompts.
type rawAnalysis struct {
	Title            string            `json:"title"`
	Summary          string            `json:"summary"`
	KeyPoints        []string          `json:"key_points"`
	ActionItems      []string          `json:"action_items"`
	Tags             []string          `json:"tags"`
	SuggestedLinks   []string          `json:"suggested_links"`
	CategoryOverride string            `json:"category_override"`
	Diagram          string            `json:"diagram"`
	ExtraFields      map[string]string `json:"extra_fields"`
}

// parseAnalysis turns a model response into an Analysis. It tolerates
// Markdown code fences and surrounding prose around the JSON object.
// When no JSON object can be recovered at all, it degrades to a
// synthetic analysis carrying an excerpt of the raw text, so a malformed
// response never fails the memo.
func parseAnalysis(content, fallbackTitle string) types.Analysis {
	var raw rawAnalysis
	if payload := extractJSONObject(content); payload != "" {
		if err := json.Unmarshal([]byte(payload), &raw); err == nil {
			return types.Analysis{
				Title:            strings.TrimSpace(raw.Title),
				Summary:          strings.TrimSpace(raw.Summary),
				KeyPoints:        cleaned(raw.KeyPoints),
				ActionItems:      cleaned(raw.ActionItems),
				Tags:             cleaned(raw.Tags),
				SuggestedLinks:   cleaned(raw.SuggestedLinks),
				CategoryOverride: strings.TrimSpace(raw.CategoryOverride),
				Diagram:          strings.TrimSpace(raw.Diagram),
				ExtraFields:      raw.ExtraFields,
			}
		}
	}
	return syntheticAnalysis(content, fallbackTitle)
}

// syntheticAnalysis is the degraded result for unparseable responses.
func syntheticAnalysis(content, fallbackTitle string) types.Analysis {
	summary := strings.TrimSpace(content)
	runes := []rune(summary)
	if len(runes) > fallbackSummaryLimit {
		summary = string(runes[:fallbackSummaryLimit])
	}
	return types.Analysis{
		Title:   fallbackTitle,
		Summary: summary,
	}
}

// extractJSONObject recovers the JSON object from a model response that
// may wrap it in a ```json fence or surrounding prose. Returns "" when
// no object delimiters are present.
func extractJSONObject(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
		return trimmed
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return ""
}

// stripCodeFence removes a surrounding ``` or ```json fence, if present.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t")
	if rest, ok := strings.CutPrefix(body, "json"); ok {
		body = rest
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// cleaned trims entries and drops empties, preserving order.
func cleaned(values []string) []string {
	var out []string
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
