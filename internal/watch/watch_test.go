// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubRegistry struct {
	stems []string
}

func (s *stubRegistry) HandledStems(context.Context) ([]string, error) {
	return s.stems, nil
}

func makeAudio(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanPicksOldestUnhandled(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "old.m4a", 200*time.Second)
	makeAudio(t, dir, "new.m4a", 0)

	s := &Scanner{AudioDir: dir, Registry: &stubRegistry{}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	memo, found := out.Memo()
	if !found {
		t.Fatal("expected a memo")
	}
	if memo.Stem != "old" {
		t.Fatalf("stem = %q, want oldest first", memo.Stem)
	}
	if memo.DiscoveredAt.IsZero() {
		t.Fatal("DiscoveredAt not set")
	}
}

func TestScanStampsInjectedClock(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "stamped.m4a", 50*time.Second)

	fixed := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	s := &Scanner{
		AudioDir: dir,
		Registry: &stubRegistry{},
		Now:      func() time.Time { return fixed },
	}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	memo, found := out.Memo()
	if !found {
		t.Fatal("expected a memo")
	}
	if !memo.DiscoveredAt.Equal(fixed) {
		t.Fatalf("DiscoveredAt = %v, want %v", memo.DiscoveredAt, fixed)
	}
}

func TestScanSkipsRegisteredStems(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "handled.m4a", 100*time.Second)
	makeAudio(t, dir, "fresh.m4a", 0)

	s := &Scanner{AudioDir: dir, Registry: &stubRegistry{stems: []string{"handled"}}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	memo, found := out.Memo()
	if !found || memo.Stem != "fresh" {
		t.Fatalf("memo = %+v found=%v, want fresh", memo, found)
	}
}

func TestScanSkipsWhenNoteArtifactExists(t *testing.T) {
	dir := t.TempDir()
	inbox := t.TempDir()
	makeAudio(t, dir, "recorded.m4a", 100*time.Second)
	if err := os.WriteFile(filepath.Join(inbox, "2026-03-01-recorded.md"), []byte("# x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Scanner{AudioDir: dir, InboxDir: inbox, Registry: &stubRegistry{}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, found := out.Memo(); found {
		t.Fatal("memo with existing note artifact should be skipped")
	}
}

func TestScanNoWorkWhenAllHandled(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "done.m4a", 0)

	s := &Scanner{AudioDir: dir, Registry: &stubRegistry{stems: []string{"done"}}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, found := out.Memo(); found {
		t.Fatal("expected NoWork")
	}
}

func TestScanIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "notes.txt", 0)
	makeAudio(t, dir, "song.mp3", 0)

	s := &Scanner{AudioDir: dir, Registry: &stubRegistry{}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, found := out.Memo(); found {
		t.Fatal("non-.m4a files should be ignored")
	}
}

func TestScanOrderingAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "first.m4a", 300*time.Second)
	makeAudio(t, dir, "second.m4a", 200*time.Second)
	makeAudio(t, dir, "third.m4a", 100*time.Second)

	reg := &stubRegistry{}
	s := &Scanner{AudioDir: dir, Registry: reg}

	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	memo, _ := out.Memo()
	if memo.Stem != "first" {
		t.Fatalf("first run selected %q", memo.Stem)
	}

	// After the first memo commits, the next run selects the second oldest.
	reg.stems = []string{"first"}
	out, err = s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	memo, _ = out.Memo()
	if memo.Stem != "second" {
		t.Fatalf("second run selected %q", memo.Stem)
	}
}

func TestScanDetectsTranscriptCache(t *testing.T) {
	dir := t.TempDir()
	makeAudio(t, dir, "cached.m4a", 0)
	if err := os.WriteFile(filepath.Join(dir, "cached.transcript.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Scanner{AudioDir: dir, Registry: &stubRegistry{}}
	out, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	memo, found := out.Memo()
	if !found || !memo.TranscriptCached {
		t.Fatalf("memo = %+v, want TranscriptCached", memo)
	}
}
