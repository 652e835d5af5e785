// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze turns a transcript into a structured analysis via a
// chat completion backend, gating every call through the rate-limit
// admission controller and chunking transcripts that exceed the
// per-call token ceiling.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// ErrEmptyTranscript is returned when there is no text to analyze.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Reply budgets added to the prompt estimate when reserving capacity.
// The structured analysis is larger than a chunk's prose summary.
const (
	analysisReplyBudget = 1200
	chunkReplyBudget    = 600
)

// chunkSeparator joins partial summaries for the synthesis call.
const chunkSeparator = "\n\n---\n\n"

// Admission gates outbound calls against the provider's rate ceilings.
// Reserve blocks until capacity is available; Correct replaces the most
// recent reservation's token estimate with the provider's actual count.
type Admission interface {
	Reserve(ctx context.Context, estimatedTokens int) error
	Correct(actualTokens int)
}

// Analyzer orchestrates the analysis of one transcript.
type Analyzer struct {
	backend    AIBackend
	admission  Admission
	chunkLimit int
	maxRetries int
	log        *slog.Logger
}

// New builds an Analyzer from configuration.
func New(cfg types.AnalysisConfig, backend AIBackend, admission Admission, log *slog.Logger) *Analyzer {
	return &Analyzer{
		backend:    backend,
		admission:  admission,
		chunkLimit: cfg.ChunkTokenLimit,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
}

// Analyze produces a structured analysis of the transcript. Transcripts
// whose estimated size fits under the per-call ceiling are analyzed in
// one call; larger ones are split into word-bounded chunks, summarized
// (concurrently, each call individually admitted), and synthesized in
// order. The returned count is the total of provider-reported tokens
// across all calls.
func (a *Analyzer) Analyze(ctx context.Context, transcript string, meta types.Metadata, vault VaultContext) (types.Analysis, int, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return types.Analysis{}, 0, ErrEmptyTranscript
	}

	if EstimateTokens(transcript) <= a.chunkLimit {
		return a.analyzeDirect(ctx, transcript, meta, vault)
	}
	return a.analyzeChunked(ctx, transcript, meta, vault)
}

// analyzeDirect handles a transcript that fits in a single call.
func (a *Analyzer) analyzeDirect(ctx context.Context, transcript string, meta types.Metadata, vault VaultContext) (types.Analysis, int, error) {
	payload, err := buildUserPayload(transcript, "Transcript", meta, vault)
	if err != nil {
		return types.Analysis{}, 0, err
	}

	comp, err := a.call(ctx, analysisSystemPrompt, payload, analysisReplyBudget)
	if err != nil {
		return types.Analysis{}, 0, fmt.Errorf("analysis call: %w", err)
	}

	return parseAnalysis(comp.Content, meta.Title), comp.TotalTokens, nil
}

// analyzeChunked summarizes each chunk and synthesizes the summaries.
func (a *Analyzer) analyzeChunked(ctx context.Context, transcript string, meta types.Metadata, vault VaultContext) (types.Analysis, int, error) {
	chunks := SplitByCost(transcript, a.chunkLimit)
	a.log.Info("transcript exceeds per-call ceiling, chunking",
		"chunks", len(chunks), "estimated_tokens", EstimateTokens(transcript))

	summaries := make([]string, len(chunks))
	var mu sync.Mutex
	totalTokens := 0

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			comp, err := a.call(gctx, chunkSystemPrompt, chunk, chunkReplyBudget)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			mu.Lock()
			summaries[i] = comp.Content
			totalTokens += comp.TotalTokens
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Analysis{}, totalTokens, err
	}

	combined := strings.Join(summaries, chunkSeparator)
	payload, err := buildUserPayload(combined, "Partial summaries", meta, vault)
	if err != nil {
		return types.Analysis{}, totalTokens, err
	}

	comp, err := a.call(ctx, synthesisSystemPrompt, payload, analysisReplyBudget)
	if err != nil {
		return types.Analysis{}, totalTokens, fmt.Errorf("synthesis call: %w", err)
	}
	totalTokens += comp.TotalTokens

	return parseAnalysis(comp.Content, meta.Title), totalTokens, nil
}

// call reserves capacity, invokes the backend with retries, and corrects
// the reservation with the provider's actual token count. When the
// provider reports no usage the optimistic estimate stands.
func (a *Analyzer) call(ctx context.Context, system, user string, replyBudget int) (Completion, error) {
	estimate := EstimateTokens(system) + EstimateTokens(user) + replyBudget
	if err := a.admission.Reserve(ctx, estimate); err != nil {
		return Completion{}, fmt.Errorf("admission: %w", err)
	}

	comp, err := a.callWithRetry(ctx, system, user)
	if err != nil {
		return Completion{}, err
	}

	if comp.TotalTokens > 0 {
		a.admission.Correct(comp.TotalTokens)
	}
	return comp, nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the backend with exponential backoff.
func (a *Analyzer) callWithRetry(ctx context.Context, system, user string) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		comp, err := a.backend.Complete(ctx, system, user)
		if err == nil {
			return comp, nil
		}
		lastErr = err
		a.log.Warn("backend call failed", "attempt", attempt+1, "error", err)
	}
	return Completion{}, fmt.Errorf("after %d retries: %w", a.maxRetries, lastErr)
}
