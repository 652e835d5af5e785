// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// Caps on the vault context included in prompts, to keep the payload
// bounded as the vault grows.
const (
	maxPromptTags  = 100
	maxPromptNotes = 50
)

// analysisSystemPrompt instructs the model to produce one structured
// analysis of a full transcript.
const analysisSystemPrompt = `You are a note-taking assistant. Analyze the voice memo transcript and respond with a single JSON object with these fields:
- title: a short descriptive title (no date, no filler words)
- summary: one or two paragraphs summarizing the memo
- key_points: array of the main points as short strings
- action_items: array of concrete follow-up tasks mentioned (empty if none)
- tags: array of lowercase hyphenated topic tags; prefer tags from the existing vault tags listed in the input
- suggested_links: array of note titles from the existing notes listed in the input that this memo relates to (empty if none relate)
- category_override: one of "meeting", "idea", "todo", "books", "course", "podcast", "research", "shopping", or "" if the recording's own category fits
- diagram: a Mermaid diagram definition if the content describes a process or structure worth diagramming, otherwise ""
- extra_fields: object of additional string fields relevant to the category (e.g. "author" for books, "attendees" for meetings), or {}

Respond with JSON only. Do not include any text outside the JSON object.`

// chunkSystemPrompt produces an intermediate summary of one transcript
// chunk; the synthesis call combines these afterwards.
const chunkSystemPrompt = `You are a note-taking assistant. The input is one part of a longer voice memo transcript. Summarize this part thoroughly in plain prose, preserving every concrete fact, name, number, decision, and task mentioned. Do not add commentary or formatting. Respond with the summary text only.`

// synthesisSystemPrompt combines chunk summaries into the final
// structured analysis. Same output contract as the full analysis.
const synthesisSystemPrompt = `You are a note-taking assistant. The input contains ordered partial summaries of one voice memo, separated by "---". Combine them into a single coherent analysis and respond with a single JSON object with these fields:
- title: a short descriptive title (no date, no filler words)
- summary: one or two paragraphs summarizing the whole memo
- key_points: array of the main points as short strings
- action_items: array of concrete follow-up tasks mentioned (empty if none)
- tags: array of lowercase hyphenated topic tags; prefer tags from the existing vault tags listed in the input
- suggested_links: array of note titles from the existing notes listed in the input that this memo relates to (empty if none relate)
- category_override: one of "meeting", "idea", "todo", "books", "course", "podcast", "research", "shopping", or "" if the recording's own category fits
- diagram: a Mermaid diagram definition if the content describes a process or structure worth diagramming, otherwise ""
- extra_fields: object of additional string fields relevant to the category, or {}

Respond with JSON only. Do not include any text outside the JSON object.`

// userPayloadTmpl renders the user message: recording metadata, vault
// context, then the transcript (or chunk summaries).
var userPayloadTmpl = template.Must(template.New("payload").Parse(`Recording metadata:
{{.Metadata}}

Existing vault tags:
{{.Tags}}

Existing note titles:
{{.Notes}}

{{.BodyLabel}}:
{{.Body}}
`))

// VaultContext is the existing-vault knowledge offered to the model:
// known tags for reuse and note titles as link candidates. Either may be
// empty when the catalog is unavailable.
type VaultContext struct {
	Tags   []string
	Titles []string
}

// buildUserPayload renders the user message for an analysis or synthesis
// call. Tags and titles are sorted and capped so the payload stays
// deterministic and bounded.
func buildUserPayload(body, bodyLabel string, meta types.Metadata, vault VaultContext) (string, error) {
	metaJSON, err := json.Marshal(map[string]string{
		"title":    meta.Title,
		"category": meta.Category,
		"date":     meta.DateDisplay,
		"duration": meta.DurationDisplay,
		"location": meta.Location,
		"notes":    meta.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}

	tags := capSorted(vault.Tags, maxPromptTags)
	titles := capSorted(vault.Titles, maxPromptNotes)

	var buf bytes.Buffer
	err = userPayloadTmpl.Execute(&buf, struct {
		Metadata  string
		Tags      string
		Notes     string
		BodyLabel string
		Body      string
	}{
		Metadata:  string(metaJSON),
		Tags:      orNone(strings.Join(tags, ", ")),
		Notes:     orNone(strings.Join(titles, "; ")),
		BodyLabel: bodyLabel,
		Body:      body,
	})
	if err != nil {
		return "", fmt.Errorf("rendering payload: %w", err)
	}
	return buf.String(), nil
}

// capSorted returns a sorted copy of values truncated to n entries.
func capSorted(values []string, n int) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// orNone substitutes a placeholder for empty context sections.
func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
