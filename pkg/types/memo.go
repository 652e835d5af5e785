// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Memo is one audio recording awaiting processing. It is created by the
// discovery scan and immutable afterwards.
type Memo struct {
	// Stem is the stable identifier: the audio filename without extension.
	Stem string `json:"stem" yaml:"stem"`

	// Path is the absolute location of the audio file.
	Path string `json:"path" yaml:"path"`

	// ModTime is the recording file's modification time, used for
	// oldest-first ordering.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`

	// DiscoveredAt is when the scan selected this memo.
	DiscoveredAt time.Time `json:"discovered_at" yaml:"discovered_at"`

	// TranscriptCached reports whether a transcript sidecar already exists,
	// letting the transcription stage skip the speech backend.
	TranscriptCached bool `json:"transcript_cached" yaml:"transcript_cached"`
}

// Metadata is the normalized attribute set parsed from a memo's sidecar
// file (or synthesized from the filename when no sidecar exists).
type Metadata struct {
	// Title is the recording title from the sidecar, or a cleaned-up stem.
	Title string `json:"title" yaml:"title"`

	// Category is the lowercased category string from the sidecar.
	Category string `json:"category" yaml:"category"`

	// TemplateKey is the render profile derived from Category.
	TemplateKey string `json:"template_key" yaml:"template_key"`

	// Date is the recording date in RFC 3339 form.
	Date string `json:"date" yaml:"date"`

	// DateDisplay is the recording date as YYYY-MM-DD, used as the note
	// filename prefix.
	DateDisplay string `json:"date_display" yaml:"date_display"`

	// Duration is the recording length in seconds.
	Duration float64 `json:"duration" yaml:"duration"`

	// DurationDisplay is the recording length as MM:SS or HH:MM:SS.
	DurationDisplay string `json:"duration_display" yaml:"duration_display"`

	// Location is the free-form location string from the sidecar.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// Notes is any free-form note text from the sidecar.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Analysis is the structured result produced by the remote analysis
// backend. The field set is the schema the backend is instructed to
// return; a malformed response degrades to a synthetic Analysis rather
// than failing the run.
type Analysis struct {
	Title            string            `json:"title" yaml:"title"`
	Summary          string            `json:"summary" yaml:"summary"`
	KeyPoints        []string          `json:"key_points" yaml:"key_points"`
	ActionItems      []string          `json:"action_items" yaml:"action_items"`
	Tags             []string          `json:"tags" yaml:"tags"`
	SuggestedLinks   []string          `json:"suggested_links" yaml:"suggested_links"`
	CategoryOverride string            `json:"category_override" yaml:"category_override"`
	Diagram          string            `json:"diagram" yaml:"diagram"`
	ExtraFields      map[string]string `json:"extra_fields" yaml:"extra_fields"`
}

// TranscriptRecord is the metadata sidecar written next to a cached
// transcript so later runs can restore language and cost without
// re-invoking the speech backend.
type TranscriptRecord struct {
	Language      string    `json:"language" yaml:"language"`
	TokenCount    int       `json:"token_count" yaml:"token_count"`
	DetectedAt    time.Time `json:"detected_at" yaml:"detected_at"`
	RecordingDate string    `json:"source_recording_date" yaml:"source_recording_date"`
	AudioFileName string    `json:"audio_file_name" yaml:"audio_file_name"`
}
