// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns an analysis plus recording metadata into an
// Obsidian-flavored Markdown note using a category-specific template.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// DefaultProfile is the template used when a category has no dedicated
// profile or the requested one does not exist.
const DefaultProfile = "default"

// NoteContext is everything a note template can reference.
type NoteContext struct {
	Title          string
	Summary        string
	KeyPoints      []string
	ActionItems    []string
	Tags           []string
	SuggestedLinks []string
	Diagram        string
	ExtraFields    map[string]string
	Metadata       types.Metadata
	Transcript     string
	Language       string
	TokensUsed     int
}

// funcs are the helpers available inside note templates.
var funcs = template.FuncMap{
	"wikilink": func(stem string) string { return "[[" + stem + "]]" },
	"slug":     Slugify,
}

// Shared template fragments. Every profile opens with YAML front matter
// and closes with the raw transcript.
const (
	frontMatterTmpl = `---
title: "{{.Title}}"
date: {{with .Metadata.DateDisplay}}{{.}}{{else}}unknown{{end}}
category: {{with .Metadata.Category}}{{.}}{{else}}voice-memo{{end}}
{{- if .Metadata.DurationDisplay}}
duration: {{.Metadata.DurationDisplay}}{{end}}
{{- if .Metadata.Location}}
location: "{{.Metadata.Location}}"{{end}}
{{- if .Language}}
language: {{.Language}}{{end}}
tags:
{{- range .Tags}}
  - {{.}}
{{- else}}
  - voice-memo
{{- end}}
---
`

	extraFieldsTmpl = `{{range $key, $value := .ExtraFields}}{{$key}}:: {{$value}}
{{end}}`

	diagramTmpl = `{{if .Diagram}}
## Diagram

` + "```mermaid\n{{.Diagram}}\n```" + `
{{end}}`

	relatedTmpl = `{{if .SuggestedLinks}}
## Related

{{range .SuggestedLinks}}- {{wikilink .}}
{{end}}{{end}}`

	transcriptTmpl = `
## Transcript

{{.Transcript}}
`
)

// profileBodies holds the middle section of each profile; front matter,
// extra fields, diagram, related links, and transcript are shared.
var profileBodies = map[string]string{
	"default": `
# {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Key Points

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## Action Items

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"meeting": `
# 🗓 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Decisions & Discussion

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## Action Items

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"idea": `
# 💡 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Threads to Pull

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}`,

	"todo": `
# ✅ {{.Title}}

{{.Summary}}

## Tasks

{{range .ActionItems}}- [ ] {{.}}
{{else}}{{range .KeyPoints}}- [ ] {{.}}
{{end}}{{end}}`,

	"books": `
# 📚 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Highlights

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## To Follow Up

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"course": `
# 🎓 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Lessons

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## Exercises

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"podcast": `
# 🎙 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Takeaways

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## To Check Out

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"research": `
# 🔬 {{.Title}}

{{.Summary}}
{{if .KeyPoints}}
## Findings

{{range .KeyPoints}}- {{.}}
{{end}}{{end}}{{if .ActionItems}}
## Open Questions

{{range .ActionItems}}- [ ] {{.}}
{{end}}{{end}}`,

	"shopping": `
# 🛒 {{.Title}}

{{.Summary}}

## List

{{range .KeyPoints}}- [ ] {{.}}
{{end}}{{range .ActionItems}}- [ ] {{.}}
{{end}}`,
}

// profiles maps profile name to its parsed template.
var profiles = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(profileBodies))
	for name, body := range profileBodies {
		full := frontMatterTmpl + extraFieldsTmpl + body + diagramTmpl + relatedTmpl + transcriptTmpl
		out[name] = template.Must(template.New(name).Funcs(funcs).Parse(full))
	}
	return out
}()

// Profiles lists the available profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectProfile resolves which profile to render with: the model's
// category override wins, then the recording's own template key, then
// the default. Unknown names fall back to the default.
func SelectProfile(analysis types.Analysis, meta types.Metadata) string {
	for _, candidate := range []string{analysis.CategoryOverride, meta.TemplateKey} {
		if _, ok := profiles[candidate]; ok && candidate != "" {
			return candidate
		}
	}
	return DefaultProfile
}

// Note renders the Markdown note for the given profile.
func Note(profile string, ctx NoteContext) (string, error) {
	tmpl, ok := profiles[profile]
	if !ok {
		tmpl = profiles[DefaultProfile]
	}
	if ctx.Title == "" {
		ctx.Title = "Untitled"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("rendering %s note: %w", profile, err)
	}
	return buf.String(), nil
}

var (
	slugStripPattern    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapsePattern = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts a title to a filesystem-friendly slug.
func Slugify(value string) string {
	value = slugStripPattern.ReplaceAllString(value, "")
	value = slugCollapsePattern.ReplaceAllString(value, "-")
	return strings.ToLower(strings.Trim(value, "-"))
}

// Filename builds the note file name (without extension) from the
// recording's display date and the note title.
func Filename(datePrefix, title string) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "untitled"
	}
	if datePrefix == "" {
		return slug
	}
	return datePrefix + "-" + slug
}
