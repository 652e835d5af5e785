// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/memo-engine/internal/logging"
	"github.com/pdiddy/memo-engine/pkg/types"
)

// mockBackend returns canned completions keyed by system prompt and
// records the calls it receives.
type mockBackend struct {
	mu    sync.Mutex
	calls []mockCall
	reply func(system, user string) (Completion, error)
}

type mockCall struct {
	system string
	user   string
}

func (m *mockBackend) Complete(_ context.Context, system, user string) (Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{system: system, user: user})
	m.mu.Unlock()
	return m.reply(system, user)
}

// mockAdmission records reservations and corrections without blocking.
type mockAdmission struct {
	mu       sync.Mutex
	reserves []int
	corrects []int
}

func (m *mockAdmission) Reserve(_ context.Context, estimatedTokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserves = append(m.reserves, estimatedTokens)
	return nil
}

func (m *mockAdmission) Correct(actualTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrects = append(m.corrects, actualTokens)
}

const validAnalysisJSON = `{
	"title": "Quarterly Planning",
	"summary": "Discussion of Q3 goals.",
	"key_points": ["hire two engineers", "ship the beta"],
	"action_items": ["draft job posts"],
	"tags": ["planning", "q3"],
	"suggested_links": ["Roadmap 2026"],
	"category_override": "meeting",
	"diagram": "",
	"extra_fields": {"attendees": "Sam, Lee"}
}`

func newTestAnalyzer(backend AIBackend, admission Admission, chunkLimit int) *Analyzer {
	cfg := types.AnalysisConfig{ChunkTokenLimit: chunkLimit, MaxRetries: 2}
	return New(cfg, backend, admission, logging.Discard())
}

func TestAnalyzeEmptyTranscript(t *testing.T) {
	a := newTestAnalyzer(&mockBackend{}, &mockAdmission{}, 6000)
	_, _, err := a.Analyze(context.Background(), "   \n\t ", types.Metadata{}, VaultContext{})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("Analyze() error = %v, want ErrEmptyTranscript", err)
	}
}

func TestAnalyzeDirect(t *testing.T) {
	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		if system != analysisSystemPrompt {
			return Completion{}, fmt.Errorf("unexpected system prompt")
		}
		return Completion{Content: validAnalysisJSON, TotalTokens: 321}, nil
	}}
	admission := &mockAdmission{}
	a := newTestAnalyzer(backend, admission, 6000)

	meta := types.Metadata{Title: "Planning memo", Category: "meeting"}
	analysis, tokens, err := a.Analyze(context.Background(), "short transcript about planning", meta, VaultContext{Tags: []string{"planning"}})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if analysis.Title != "Quarterly Planning" {
		t.Errorf("Title = %q, want %q", analysis.Title, "Quarterly Planning")
	}
	if len(analysis.KeyPoints) != 2 {
		t.Errorf("KeyPoints = %v, want 2 entries", analysis.KeyPoints)
	}
	if analysis.CategoryOverride != "meeting" {
		t.Errorf("CategoryOverride = %q, want %q", analysis.CategoryOverride, "meeting")
	}
	if tokens != 321 {
		t.Errorf("tokens = %d, want 321", tokens)
	}
	if len(admission.reserves) != 1 {
		t.Fatalf("reserves = %d, want 1", len(admission.reserves))
	}
	if len(admission.corrects) != 1 || admission.corrects[0] != 321 {
		t.Errorf("corrects = %v, want [321]", admission.corrects)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(backend.calls))
	}
	if !strings.Contains(backend.calls[0].user, "short transcript about planning") {
		t.Errorf("user payload missing transcript: %q", backend.calls[0].user)
	}
	if !strings.Contains(backend.calls[0].user, "planning") {
		t.Errorf("user payload missing vault tag: %q", backend.calls[0].user)
	}
}

func TestAnalyzeMalformedResponseDegrades(t *testing.T) {
	prose := "I could not produce structured output, but the memo covers groceries and errands."
	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		return Completion{Content: prose, TotalTokens: 50}, nil
	}}
	a := newTestAnalyzer(backend, &mockAdmission{}, 6000)

	analysis, _, err := a.Analyze(context.Background(), "buy milk and eggs", types.Metadata{Title: "Errand list"}, VaultContext{})
	if err != nil {
		t.Fatalf("Analyze() error = %v, want degraded result", err)
	}
	if analysis.Title != "Errand list" {
		t.Errorf("Title = %q, want fallback %q", analysis.Title, "Errand list")
	}
	if !strings.HasPrefix(prose, analysis.Summary) {
		t.Errorf("Summary = %q, want prefix of raw response", analysis.Summary)
	}
	if len(analysis.Tags) != 0 || len(analysis.KeyPoints) != 0 {
		t.Errorf("degraded analysis should have empty lists, got tags=%v points=%v", analysis.Tags, analysis.KeyPoints)
	}
}

func TestAnalyzeFencedJSON(t *testing.T) {
	fenced := "```json\n" + validAnalysisJSON + "\n```"
	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		return Completion{Content: fenced, TotalTokens: 10}, nil
	}}
	a := newTestAnalyzer(backend, &mockAdmission{}, 6000)

	analysis, _, err := a.Analyze(context.Background(), "anything", types.Metadata{}, VaultContext{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Title != "Quarterly Planning" {
		t.Errorf("Title = %q, fence was not stripped", analysis.Title)
	}
}

func TestAnalyzeChunked(t *testing.T) {
	// 40 distinct words with a tiny ceiling forces multiple chunks.
	var words []string
	for i := 0; i < 40; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}
	transcript := strings.Join(words, " ")

	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		switch system {
		case chunkSystemPrompt:
			// Echo the first word so ordering is observable downstream.
			return Completion{Content: "SUM:" + strings.Fields(user)[0], TotalTokens: 7}, nil
		case synthesisSystemPrompt:
			return Completion{Content: validAnalysisJSON, TotalTokens: 100}, nil
		default:
			return Completion{}, fmt.Errorf("unexpected system prompt")
		}
	}}
	admission := &mockAdmission{}
	a := newTestAnalyzer(backend, admission, 10)

	analysis, tokens, err := a.Analyze(context.Background(), transcript, types.Metadata{Title: "Long memo"}, VaultContext{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Title != "Quarterly Planning" {
		t.Errorf("Title = %q, want synthesis result", analysis.Title)
	}

	chunks := SplitByCost(transcript, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	wantCalls := len(chunks) + 1
	if len(backend.calls) != wantCalls {
		t.Fatalf("backend calls = %d, want %d", len(backend.calls), wantCalls)
	}
	if len(admission.reserves) != wantCalls {
		t.Errorf("reserves = %d, want %d (every call admitted)", len(admission.reserves), wantCalls)
	}
	if tokens != 7*len(chunks)+100 {
		t.Errorf("tokens = %d, want %d", tokens, 7*len(chunks)+100)
	}

	// The synthesis payload must contain the chunk summaries in order.
	var synthesisUser string
	for _, c := range backend.calls {
		if c.system == synthesisSystemPrompt {
			synthesisUser = c.user
		}
	}
	if synthesisUser == "" {
		t.Fatal("no synthesis call recorded")
	}
	lastIdx := -1
	for _, chunk := range chunks {
		marker := "SUM:" + strings.Fields(chunk)[0]
		idx := strings.Index(synthesisUser, marker)
		if idx < 0 {
			t.Fatalf("synthesis payload missing %q", marker)
		}
		if idx < lastIdx {
			t.Fatalf("summary %q out of order in synthesis payload", marker)
		}
		lastIdx = idx
	}
	if len(chunks) > 1 && !strings.Contains(synthesisUser, chunkSeparator) {
		t.Error("synthesis payload missing chunk separator")
	}
}

func TestAnalyzeChunkFailureFailsMemo(t *testing.T) {
	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		if system == chunkSystemPrompt && strings.Contains(user, "word05") {
			return Completion{}, errors.New("backend unavailable")
		}
		return Completion{Content: "SUM", TotalTokens: 3}, nil
	}}
	a := newTestAnalyzer(backend, &mockAdmission{}, 10)
	a.maxRetries = 0

	var words []string
	for i := 0; i < 40; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}
	_, _, err := a.Analyze(context.Background(), strings.Join(words, " "), types.Metadata{}, VaultContext{})
	if err == nil {
		t.Fatal("Analyze() error = nil, want chunk failure")
	}
}

func TestCallWithRetryRecovers(t *testing.T) {
	oldBase := backoffBase
	backoffBase = time.Millisecond
	defer func() { backoffBase = oldBase }()

	attempts := 0
	backend := &mockBackend{reply: func(system, user string) (Completion, error) {
		attempts++
		if attempts < 3 {
			return Completion{}, errors.New("transient")
		}
		return Completion{Content: validAnalysisJSON, TotalTokens: 5}, nil
	}}
	a := newTestAnalyzer(backend, &mockAdmission{}, 6000)

	_, _, err := a.Analyze(context.Background(), "hello world", types.Metadata{}, VaultContext{})
	if err != nil {
		t.Fatalf("Analyze() error = %v, want recovery on third attempt", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestSplitByCostProperties(t *testing.T) {
	var words []string
	for i := 0; i < 200; i++ {
		words = append(words, fmt.Sprintf("token%d", i))
	}
	text := strings.Join(words, " ")

	const limit = 25
	chunks := SplitByCost(text, limit)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if est := EstimateTokens(chunk); est > limit {
			t.Errorf("chunk %d estimate %d exceeds limit %d", i, est, limit)
		}
	}

	// Joining the chunks reproduces the original word sequence exactly.
	rejoined := strings.Fields(strings.Join(chunks, " "))
	if len(rejoined) != len(words) {
		t.Fatalf("rejoined word count = %d, want %d", len(rejoined), len(words))
	}
	for i := range words {
		if rejoined[i] != words[i] {
			t.Fatalf("word %d = %q, want %q", i, rejoined[i], words[i])
		}
	}
}

func TestSplitByCostOversizedWord(t *testing.T) {
	huge := strings.Repeat("x", 400)
	chunks := SplitByCost("small "+huge+" tail", 20)
	found := false
	for _, c := range chunks {
		if c == huge {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized word should form its own chunk, got %d chunks", len(chunks))
	}
}

func TestSplitByCostEmpty(t *testing.T) {
	if chunks := SplitByCost("   ", 10); chunks != nil {
		t.Errorf("SplitByCost(blank) = %v, want nil", chunks)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence no language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Here you go: {"a":1} hope it helps`, `{"a":1}`},
		{"no object", "sorry, no can do", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.in); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
