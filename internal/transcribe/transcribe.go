// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transcribe converts a voice recording into text via an
// external speech-recognition tool, with an on-disk sidecar cache so a
// memo is never transcribed twice.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// Result is the output of one transcription: the full text and the
// language code the backend detected.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Backend abstracts the speech-recognition tool so tests can supply a mock.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// WhisperCLI shells out to a whisper-style command-line tool that prints
// a JSON object {"text": ..., "language": ...} on stdout.
type WhisperCLI struct {
	Binary  string
	Model   string
	Timeout time.Duration
}

// NewWhisperCLI builds a backend from transcriber configuration.
func NewWhisperCLI(cfg types.TranscriberConfig) *WhisperCLI {
	return &WhisperCLI{Binary: cfg.Binary, Model: cfg.Model, Timeout: cfg.Timeout}
}

// Available reports whether the transcriber binary exists on PATH. The
// pipeline still serves cache hits when it does not.
func (w *WhisperCLI) Available() bool {
	_, err := exec.LookPath(w.Binary)
	return err == nil
}

// Transcribe runs the whisper binary against audioPath and parses its
// JSON output. Any failure surfaces as a single descriptive error.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	args := []string{
		"--model", w.Model,
		"--output-format", "json",
		"--file", audioPath,
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.Binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("transcribing %s: %w: %s", audioPath, err, strings.TrimSpace(stderr.String()))
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return Result{}, fmt.Errorf("parsing transcriber output for %s: %w", audioPath, err)
	}

	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return Result{}, fmt.Errorf("transcriber produced empty text for %s", audioPath)
	}
	if res.Language == "" {
		res.Language = "unknown"
	}
	return res, nil
}
