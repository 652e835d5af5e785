// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watch discovers unprocessed voice memos in the audio folder.
//
// A memo counts as handled when either signal says so: the catalog
// registry knows its stem, or a note artifact containing the stem
// already exists in the inbox. The second check covers registry resets
// and notes moved by hand.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/memo-engine/internal/transcribe"
	"github.com/pdiddy/memo-engine/pkg/types"
)

// audioExt is the one recognized recording extension.
const audioExt = ".m4a"

// Registry is the catalog surface discovery needs.
type Registry interface {
	HandledStems(ctx context.Context) ([]string, error)
}

// Outcome is the two-variant result of a discovery scan: either a memo
// was found, or there is no work. The zero value means no work.
type Outcome struct {
	memo  types.Memo
	found bool
}

// Found wraps a discovered memo.
func Found(memo types.Memo) Outcome {
	return Outcome{memo: memo, found: true}
}

// NoWork is the clean "nothing to do" outcome, distinct from an error.
func NoWork() Outcome {
	return Outcome{}
}

// Memo returns the discovered memo and whether one was found.
func (o Outcome) Memo() (types.Memo, bool) {
	return o.memo, o.found
}

// Scanner selects the next memo to process.
type Scanner struct {
	// AudioDir is the directory enumerated for recordings.
	AudioDir string

	// InboxDir is the note inbox checked for pre-existing artifacts.
	InboxDir string

	// Registry supplies the handled-stem set. May be nil, in which case
	// only the artifact check applies.
	Registry Registry

	// Now stamps DiscoveredAt on the selected memo. Nil means time.Now.
	Now func() time.Time
}

// Scan enumerates AudioDir for recordings, skips handled ones, and
// returns the oldest remaining memo by modification time.
func (s *Scanner) Scan(ctx context.Context) (Outcome, error) {
	entries, err := os.ReadDir(s.AudioDir)
	if err != nil {
		return NoWork(), fmt.Errorf("reading audio directory %s: %w", s.AudioDir, err)
	}

	handled := map[string]bool{}
	if s.Registry != nil {
		stems, err := s.Registry.HandledStems(ctx)
		if err != nil {
			return NoWork(), fmt.Errorf("reading handled stems: %w", err)
		}
		for _, stem := range stems {
			handled[stem] = true
		}
	}

	var candidates []types.Memo
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), audioExt) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if handled[stem] || noteExistsInInbox(s.InboxDir, stem) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.AudioDir, entry.Name())
		candidates = append(candidates, types.Memo{
			Stem:             stem,
			Path:             path,
			ModTime:          info.ModTime(),
			TranscriptCached: transcribe.HasCache(path),
		})
	}

	if len(candidates) == 0 {
		return NoWork(), nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ModTime.Before(candidates[j].ModTime)
	})

	now := s.Now
	if now == nil {
		now = time.Now
	}
	memo := candidates[0]
	memo.DiscoveredAt = now()
	return Found(memo), nil
}

// noteExistsInInbox reports whether any Markdown file in the inbox
// carries the memo stem in its name. Notes are written as
// YYYY-MM-DD-<slug>.md, so a substring match is the right test.
func noteExistsInInbox(inbox, stem string) bool {
	if inbox == "" || stem == "" {
		return false
	}
	entries, err := os.ReadDir(inbox)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".md") && strings.Contains(strings.TrimSuffix(name, ".md"), stem) {
			return true
		}
	}
	return false
}
