// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// Sidecar suffixes written next to the audio file. Deleting the .txt
// forces a re-transcription on the next run.
const (
	transcriptSuffix = ".transcript.txt"
	recordSuffix     = ".transcript.yaml"
)

// TranscriptPath returns the cached-transcript path for an audio file.
func TranscriptPath(audioPath string) string {
	return stripExt(audioPath) + transcriptSuffix
}

// RecordPath returns the transcript-metadata path for an audio file.
func RecordPath(audioPath string) string {
	return stripExt(audioPath) + recordSuffix
}

// HasCache reports whether a non-empty cached transcript exists.
func HasCache(audioPath string) bool {
	info, err := os.Stat(TranscriptPath(audioPath))
	return err == nil && info.Size() > 0
}

// ReadCache loads a cached transcript and, when present, its companion
// metadata record. The record pointer is nil when only the plain
// transcript exists. Returns ok=false when there is no usable cache.
func ReadCache(audioPath string) (string, *types.TranscriptRecord, bool) {
	data, err := os.ReadFile(TranscriptPath(audioPath))
	if err != nil {
		return "", nil, false
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", nil, false
	}

	recData, err := os.ReadFile(RecordPath(audioPath))
	if err != nil {
		return text, nil, true
	}
	var rec types.TranscriptRecord
	if err := yaml.Unmarshal(recData, &rec); err != nil {
		return text, nil, true
	}
	return text, &rec, true
}

// WriteCache persists the transcript and its metadata record next to the
// audio file so the next run can skip the speech backend.
func WriteCache(audioPath, text string, rec types.TranscriptRecord) error {
	if err := os.WriteFile(TranscriptPath(audioPath), []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing transcript cache: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling transcript record: %w", err)
	}
	if err := os.WriteFile(RecordPath(audioPath), data, 0o644); err != nil {
		return fmt.Errorf("writing transcript record: %w", err)
	}
	return nil
}

func stripExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
