// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sidecar parses recording-app companion files into normalized
// memo metadata.
//
// Voice Record Pro saves audio as .m4a and optionally writes a companion
// file next to it. Supported formats, tried in order: a JSON sidecar, an
// XML sidecar, and a plain-text .meta.txt sidecar (either
// <name>.m4a.meta.txt or <stem>.meta.txt). When no sidecar exists the
// metadata is synthesized from the filename and modification time.
package sidecar

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// metaSentinel marks the start of the binary blob in a .meta.txt sidecar.
// Everything after it is ignored.
const metaSentinel = "------VOICE-RECORD-PRO-META"

// categoryMap maps sidecar category strings (lowercased) to render
// profile keys.
var categoryMap = map[string]string{
	"books": "books", "book": "books", "reading": "books",
	"course": "course", "courses": "course", "lecture": "course",
	"lectures": "course", "class": "course",
	"generic": "default", "general": "default", "note": "default",
	"notes": "default", "memo": "default", "memos": "default", "": "default",
	"journal": "default", "personal": "default",
	"ideas": "idea", "idea": "idea", "brainstorm": "idea", "inspiration": "idea",
	"meeting": "meeting", "meetings": "meeting",
	"podcast": "podcast", "podcasts": "podcast",
	"research": "research",
	"shopping": "shopping", "shop": "shopping", "grocery": "shopping",
	"groceries": "shopping",
	"todo":      "todo", "todos": "todo", "task": "todo", "tasks": "todo",
	"reminder": "todo", "reminders": "todo",
}

// ProfileForCategory resolves a category string to a render profile key,
// falling back to "default" for unknown categories.
func ProfileForCategory(category string) string {
	if key, ok := categoryMap[strings.ToLower(strings.TrimSpace(category))]; ok {
		return key
	}
	return "default"
}

// raw holds sidecar fields before normalization.
type raw struct {
	Title    string
	Category string
	Date     string
	Duration float64
	Location string
	Notes    string
}

// Parse locates and parses the sidecar for the audio file at audioPath,
// returning normalized metadata. Sidecar read or parse failures are not
// fatal; the filename fallback applies.
func Parse(audioPath string) types.Metadata {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	noExt := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	if r, ok := parseJSON(noExt + ".json"); ok {
		return normalize(r, stem)
	}
	if r, ok := parseXML(noExt + ".xml"); ok {
		return normalize(r, stem)
	}
	if r, ok := parseMetaTxt(audioPath + ".meta.txt"); ok {
		return normalize(r, stem)
	}
	if r, ok := parseMetaTxt(noExt + ".meta.txt"); ok {
		return normalize(r, stem)
	}

	return normalize(fallback(audioPath, stem), stem)
}

// fallback synthesizes metadata from the filename and file mtime.
func fallback(audioPath, stem string) raw {
	date := time.Now()
	if info, err := os.Stat(audioPath); err == nil {
		date = info.ModTime()
	}
	title := strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return raw{Title: strings.TrimSpace(title), Date: date.Format(time.RFC3339)}
}

// jsonSidecar mirrors the Voice Record Pro JSON sidecar layout.
type jsonSidecar struct {
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Date     string  `json:"date"`
	Duration float64 `json:"duration"`
	Location string  `json:"location"`
	Notes    string  `json:"notes"`
}

func parseJSON(path string) (raw, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return raw{}, false
	}
	var s jsonSidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return raw{}, false
	}
	return raw{
		Title:    s.Title,
		Category: s.Category,
		Date:     s.Date,
		Duration: s.Duration,
		Location: s.Location,
		Notes:    s.Notes,
	}, true
}

// xmlSidecar handles the flat key-value XML layout
// (<recording><title>…</title>…</recording>).
type xmlSidecar struct {
	Title    string `xml:"title"`
	Category string `xml:"category"`
	Date     string `xml:"date"`
	Duration string `xml:"duration"`
	Location string `xml:"location"`
	Notes    string `xml:"notes"`
}

func parseXML(path string) (raw, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return raw{}, false
	}
	var s xmlSidecar
	if err := xml.Unmarshal(data, &s); err != nil {
		return raw{}, false
	}
	return raw{
		Title:    strings.TrimSpace(s.Title),
		Category: strings.TrimSpace(s.Category),
		Date:     strings.TrimSpace(s.Date),
		Duration: parseDurationString(s.Duration),
		Location: strings.TrimSpace(s.Location),
		Notes:    strings.TrimSpace(s.Notes),
	}, true
}

// parseMetaTxt reads a Voice Record Pro .meta.txt sidecar. Lines before
// the binary sentinel are "Key : Value" pairs.
func parseMetaTxt(path string) (raw, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return raw{}, false
	}

	fields := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), metaSentinel) {
			break
		}
		key, value, found := strings.Cut(line, " : ")
		if !found {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			fields[key] = value
		}
	}

	return raw{
		Title:    fields["title"],
		Category: fields["category"],
		Date:     parseVerboseDate(fields["creation_date"]),
		Duration: parseDurationString(fields["duration"]),
	}, true
}

var dayOfWeekPrefix = regexp.MustCompile(`^\w+,\s*`)

// parseVerboseDate handles the long-form creation date Voice Record Pro
// writes, e.g. "Wednesday, 25 February 2026 at 09:46:01 Central European
// Standard Time". Returns RFC 3339, or "" when unparseable.
func parseVerboseDate(value string) string {
	if value == "" {
		return ""
	}
	cleaned := dayOfWeekPrefix.ReplaceAllString(strings.TrimSpace(value), "")
	cleaned = strings.Replace(cleaned, " at ", " ", 1)
	// Keep "DD Month YYYY HH:MM:SS"; the trailing timezone name is discarded.
	if tokens := strings.Fields(cleaned); len(tokens) >= 4 {
		cleaned = strings.Join(tokens[:4], " ")
	}
	for _, layout := range []string{"2 January 2006 15:04:05", "2 Jan 2006 15:04:05"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return ""
}

// parseDurationString converts "HH:MM:SS", "MM:SS", or a bare number of
// seconds into seconds.
func parseDurationString(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if !strings.Contains(value, ":") {
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return secs
	}
	parts := strings.Split(value, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return float64(total)
}

// normalize produces the canonical metadata record from raw sidecar fields.
func normalize(r raw, stem string) types.Metadata {
	category := strings.ToLower(strings.TrimSpace(r.Category))

	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		// Sidecars without timezone information use a bare ISO layout.
		if d2, err2 := time.Parse("2006-01-02T15:04:05", r.Date); err2 == nil {
			date = d2
		} else {
			date = time.Now()
		}
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = stem
	}

	return types.Metadata{
		Title:           title,
		Category:        category,
		TemplateKey:     ProfileForCategory(category),
		Date:            date.Format(time.RFC3339),
		DateDisplay:     date.Format("2006-01-02"),
		Duration:        r.Duration,
		DurationDisplay: formatDuration(r.Duration),
		Location:        strings.TrimSpace(r.Location),
		Notes:           strings.TrimSpace(r.Notes),
	}
}

// formatDuration renders seconds as MM:SS, or HH:MM:SS for recordings an
// hour or longer.
func formatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
