// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline coordinates the stages that turn one audio memo into
// a committed note: discover, transcribe, fetch vault context, analyze,
// render, commit.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/memo-engine/internal/analyze"
	"github.com/pdiddy/memo-engine/internal/render"
	"github.com/pdiddy/memo-engine/internal/sidecar"
	"github.com/pdiddy/memo-engine/internal/transcribe"
	"github.com/pdiddy/memo-engine/internal/watch"
	"github.com/pdiddy/memo-engine/pkg/types"
)

// cachedLanguagePlaceholder marks a transcript restored from a cache
// that carries no sidecar record, so the detected language is unknown.
const cachedLanguagePlaceholder = "cached"

// Discoverer finds the next unhandled memo.
type Discoverer interface {
	Scan(ctx context.Context) (watch.Outcome, error)
}

// CatalogStore is the subset of the catalog the pipeline needs.
type CatalogStore interface {
	Context(ctx context.Context) (tags []string, notes map[string]string, err error)
	Commit(ctx context.Context, stem, title, path string, tags, links []string) error
	MarkHandled(ctx context.Context, stem string) error
}

// TranscriptAnalyzer produces the structured analysis for a transcript.
type TranscriptAnalyzer interface {
	Analyze(ctx context.Context, transcript string, meta types.Metadata, vault analyze.VaultContext) (types.Analysis, int, error)
}

// State accumulates everything learned about one memo as it moves
// through the stages.
type State struct {
	Memo       types.Memo
	Metadata   types.Metadata
	Transcript string
	Language   string
	FromCache  bool
	Analysis   types.Analysis
	TokensUsed int
	NotePath   string
	Warnings   []string
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	NoWork     bool
	Stem       string
	NotePath   string
	TokensUsed int
	FromCache  bool
	Warnings   []string
}

// Describe renders a one-line human summary of the outcome.
func (o Outcome) Describe() string {
	if o.NoWork {
		return "no new memos"
	}
	return fmt.Sprintf("note written at %s (%d tokens)", o.NotePath, o.TokensUsed)
}

// Coordinator wires the stages together.
type Coordinator struct {
	scanner     Discoverer
	transcriber transcribe.Backend
	catalog     CatalogStore
	analyzer    TranscriptAnalyzer
	inboxDir    string
	log         *slog.Logger

	now func() time.Time
}

// New builds a Coordinator.
func New(scanner Discoverer, transcriber transcribe.Backend, cat CatalogStore, analyzer TranscriptAnalyzer, inboxDir string, log *slog.Logger) *Coordinator {
	return &Coordinator{
		scanner:     scanner,
		transcriber: transcriber,
		catalog:     cat,
		analyzer:    analyzer,
		inboxDir:    inboxDir,
		log:         log,
		now:         time.Now,
	}
}

// RunOnce processes at most one memo end to end. A failure in
// transcription, analysis, rendering, or committing fails that memo and
// is returned; cache and vault-context problems degrade to warnings.
func (c *Coordinator) RunOnce(ctx context.Context) (Outcome, error) {
	scan, err := c.scanner.Scan(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("discovering memos: %w", err)
	}
	memo, ok := scan.Memo()
	if !ok {
		return Outcome{NoWork: true}, nil
	}

	state := &State{Memo: memo}
	state.Metadata = sidecar.Parse(memo.Path)
	c.log.Info("processing memo", "stem", memo.Stem, "category", state.Metadata.Category)

	if err := c.transcribeStage(ctx, state); err != nil {
		return Outcome{}, fmt.Errorf("memo %s: %w", memo.Stem, err)
	}

	vault, links := c.fetchContext(ctx, state)

	analysis, tokens, err := c.analyzer.Analyze(ctx, state.Transcript, state.Metadata, vault)
	if err != nil {
		return Outcome{}, fmt.Errorf("memo %s: analyzing: %w", memo.Stem, err)
	}
	state.Analysis = analysis
	state.TokensUsed = tokens

	if err := c.renderAndCommit(ctx, state, links); err != nil {
		return Outcome{}, fmt.Errorf("memo %s: %w", memo.Stem, err)
	}

	c.log.Info("memo committed", "stem", memo.Stem, "note", state.NotePath, "tokens", state.TokensUsed)
	return Outcome{
		Stem:       memo.Stem,
		NotePath:   state.NotePath,
		TokensUsed: state.TokensUsed,
		FromCache:  state.FromCache,
		Warnings:   state.Warnings,
	}, nil
}

// transcribeStage fills in the transcript, preferring the on-disk cache
// next to the audio file. Fresh transcriptions are cached best-effort;
// a cache write failure degrades to a warning.
func (c *Coordinator) transcribeStage(ctx context.Context, state *State) error {
	if text, rec, ok := transcribe.ReadCache(state.Memo.Path); ok {
		state.Transcript = text
		state.FromCache = true
		if rec != nil && rec.Language != "" {
			state.Language = rec.Language
		} else {
			state.Language = cachedLanguagePlaceholder
		}
		c.log.Info("transcript cache hit", "stem", state.Memo.Stem, "language", state.Language)
		return nil
	}

	result, err := c.transcriber.Transcribe(ctx, state.Memo.Path)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("transcribing: empty transcript")
	}
	state.Transcript = result.Text
	state.Language = result.Language

	rec := types.TranscriptRecord{
		Language:      result.Language,
		TokenCount:    analyze.EstimateTokens(result.Text),
		DetectedAt:    c.now().UTC(),
		RecordingDate: state.Metadata.DateDisplay,
		AudioFileName: filepath.Base(state.Memo.Path),
	}
	if err := transcribe.WriteCache(state.Memo.Path, result.Text, rec); err != nil {
		c.warn(state, fmt.Sprintf("caching transcript: %v", err))
	}
	return nil
}

// fetchContext loads vault tags and note titles for the analysis
// prompt. The catalog being unavailable is not fatal; the memo is
// analyzed without vault context. The returned map resolves suggested
// link titles back to note stems at commit time.
func (c *Coordinator) fetchContext(ctx context.Context, state *State) (analyze.VaultContext, map[string]string) {
	tags, notes, err := c.catalog.Context(ctx)
	if err != nil {
		c.warn(state, fmt.Sprintf("fetching vault context: %v", err))
		return analyze.VaultContext{}, nil
	}

	titles := make([]string, 0, len(notes))
	byTitle := make(map[string]string, len(notes))
	for stem, title := range notes {
		titles = append(titles, title)
		byTitle[strings.ToLower(title)] = stem
	}
	return analyze.VaultContext{Tags: tags, Titles: titles}, byTitle
}

// renderAndCommit writes the note into the inbox and registers it in
// the catalog. Filename collisions get an incrementing numeric suffix.
func (c *Coordinator) renderAndCommit(ctx context.Context, state *State, linkTargets map[string]string) error {
	title := state.Analysis.Title
	if title == "" {
		title = state.Metadata.Title
	}

	links := resolveLinks(state.Analysis.SuggestedLinks, linkTargets)

	profile := render.SelectProfile(state.Analysis, state.Metadata)
	content, err := render.Note(profile, render.NoteContext{
		Title:          title,
		Summary:        state.Analysis.Summary,
		KeyPoints:      state.Analysis.KeyPoints,
		ActionItems:    state.Analysis.ActionItems,
		Tags:           state.Analysis.Tags,
		SuggestedLinks: links,
		Diagram:        state.Analysis.Diagram,
		ExtraFields:    state.Analysis.ExtraFields,
		Metadata:       state.Metadata,
		Transcript:     state.Transcript,
		Language:       state.Language,
		TokensUsed:     state.TokensUsed,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.inboxDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	datePrefix := state.Metadata.DateDisplay
	if datePrefix == "" {
		datePrefix = c.now().UTC().Format("2006-01-02")
	}
	base := render.Filename(datePrefix, title)

	notePath := filepath.Join(c.inboxDir, base+".md")
	for counter := 1; ; counter++ {
		if _, err := os.Stat(notePath); os.IsNotExist(err) {
			break
		}
		notePath = filepath.Join(c.inboxDir, fmt.Sprintf("%s-%d.md", base, counter))
	}

	if err := os.WriteFile(notePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing note: %w", err)
	}
	state.NotePath = notePath

	noteStem := strings.TrimSuffix(filepath.Base(notePath), ".md")
	if err := c.catalog.Commit(ctx, noteStem, title, notePath, state.Analysis.Tags, links); err != nil {
		return fmt.Errorf("registering note: %w", err)
	}
	if err := c.catalog.MarkHandled(ctx, state.Memo.Stem); err != nil {
		return fmt.Errorf("marking audio handled: %w", err)
	}
	return nil
}

// resolveLinks maps suggested link titles to note stems where the vault
// knows them; unknown suggestions pass through slugified so the note
// still carries a plausible wikilink.
func resolveLinks(suggestions []string, byTitle map[string]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range suggestions {
		target, ok := byTitle[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			target = render.Slugify(s)
		}
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}

func (c *Coordinator) warn(state *State, msg string) {
	c.log.Warn(msg, "stem", state.Memo.Stem)
	state.Warnings = append(state.Warnings, msg)
}
