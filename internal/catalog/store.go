// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog persists the note registry: handled memo stems, the
// tag vocabulary, and the note-to-note link graph.
//
// The SQLite database is opened per operation and closed again, so no
// long-lived handle is held across the process lifetime. Concurrent
// external readers of the same file rely on SQLite's own isolation.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the catalog SQLite database at a fixed path.
type Store struct {
	path string
}

// NewStore ensures the database directory and schema exist and returns a
// handle that opens the database per operation.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	s := &Store{path: path}
	if err := s.withDB(func(db *sql.DB) error { return createSchema(db) }); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// withDB opens the database, runs fn, and closes it again.
func (s *Store) withDB(fn func(*sql.DB) error) error {
	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("opening catalog %s: %w", s.path, err)
	}
	defer db.Close()
	return fn(db)
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			stem       TEXT PRIMARY KEY,
			title      TEXT,
			path       TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			tag  TEXT NOT NULL,
			stem TEXT NOT NULL,
			UNIQUE(tag, stem)
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			from_stem TEXT NOT NULL,
			to_stem   TEXT NOT NULL,
			UNIQUE(from_stem, to_stem)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag)`,
		`CREATE INDEX IF NOT EXISTS idx_links_from ON links(from_stem)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// NormalizeTag canonicalizes a tag: trimmed, lowercased, leading '#'
// stripped. Returns "" for tags that normalize away entirely.
func NormalizeTag(tag string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tag)), "#")
}

// IsHandled reports whether a memo stem is registered in the catalog.
func (s *Store) IsHandled(ctx context.Context, stem string) (bool, error) {
	var handled bool
	err := s.withDB(func(db *sql.DB) error {
		var one int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE stem = ?`, stem).Scan(&one)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		handled = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking handled state for %s: %w", stem, err)
	}
	return handled, nil
}

// HandledStems returns every registered stem.
func (s *Store) HandledStems(ctx context.Context) ([]string, error) {
	var stems []string
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT stem FROM notes ORDER BY stem`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var stem string
			if err := rows.Scan(&stem); err != nil {
				return err
			}
			stems = append(stems, stem)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing handled stems: %w", err)
	}
	return stems, nil
}

// Context returns the current tag vocabulary and the stem→title map of
// all registered notes, the read context injected into the analysis
// prompt for cross-linking.
func (s *Store) Context(ctx context.Context) ([]string, map[string]string, error) {
	var tags []string
	notes := make(map[string]string)
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT DISTINCT tag FROM tags ORDER BY tag`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				rows.Close()
				return err
			}
			tags = append(tags, tag)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		rows, err = db.QueryContext(ctx, `SELECT stem, title FROM notes WHERE title != '' ORDER BY stem`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var stem, title string
			if err := rows.Scan(&stem, &title); err != nil {
				return err
			}
			notes[stem] = title
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog context: %w", err)
	}
	return tags, notes, nil
}

// Commit registers a note and its tag and link associations in one
// transaction. Re-committing the same stem overwrites the note record in
// place; tag and link tuples are deduplicated by the schema.
func (s *Store) Commit(ctx context.Context, stem, title, path string, tags, links []string) error {
	err := s.withDB(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO notes (stem, title, path, updated_at) VALUES (?, ?, ?, ?)`,
			stem, title, path, now,
		); err != nil {
			return fmt.Errorf("upserting note: %w", err)
		}

		for _, tag := range tags {
			tag = NormalizeTag(tag)
			if tag == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO tags (tag, stem) VALUES (?, ?)`, tag, stem,
			); err != nil {
				return fmt.Errorf("inserting tag %q: %w", tag, err)
			}
		}

		for _, to := range links {
			to = strings.TrimSpace(to)
			if to == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO links (from_stem, to_stem) VALUES (?, ?)`, stem, to,
			); err != nil {
				return fmt.Errorf("inserting link to %q: %w", to, err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("committing note %s: %w", stem, err)
	}
	return nil
}

// MarkHandled records an audio stem as processed without attaching note
// content. A stem already present is left untouched.
func (s *Store) MarkHandled(ctx context.Context, stem string) error {
	err := s.withDB(func(db *sql.DB) error {
		now := time.Now().UTC().Format(time.RFC3339)
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO notes (stem, title, path, updated_at) VALUES (?, '', '', ?)`,
			stem, now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("marking %s handled: %w", stem, err)
	}
	return nil
}

// DeleteNote removes a note and its tag and link associations.
func (s *Store) DeleteNote(ctx context.Context, stem string) error {
	err := s.withDB(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, stmt := range []string{
			`DELETE FROM notes WHERE stem = ?`,
			`DELETE FROM tags WHERE stem = ?`,
			`DELETE FROM links WHERE from_stem = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, stem); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", stem, err)
	}
	return nil
}

// NoteRecord is one catalog row as listed by the CLI.
type NoteRecord struct {
	Stem      string `json:"stem"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	UpdatedAt string `json:"updated_at"`
}

// Notes lists all registered notes with content, newest first.
func (s *Store) Notes(ctx context.Context) ([]NoteRecord, error) {
	var notes []NoteRecord
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT stem, title, path, updated_at FROM notes WHERE title != '' ORDER BY updated_at DESC, stem`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n NoteRecord
			if err := rows.Scan(&n.Stem, &n.Title, &n.Path, &n.UpdatedAt); err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return notes, nil
}

// TagCount pairs a tag with the number of notes carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCounts returns the tag vocabulary with usage counts, most used first.
func (s *Store) TagCounts(ctx context.Context) ([]TagCount, error) {
	var counts []TagCount
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT tag, COUNT(*) FROM tags GROUP BY tag ORDER BY COUNT(*) DESC, tag`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tc TagCount
			if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
				return err
			}
			counts = append(counts, tc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("counting tags: %w", err)
	}
	return counts, nil
}

// TagsForNote returns the tags associated with one stem.
func (s *Store) TagsForNote(ctx context.Context, stem string) ([]string, error) {
	var tags []string
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT tag FROM tags WHERE stem = ? ORDER BY tag`, stem)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				return err
			}
			tags = append(tags, tag)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("reading tags for %s: %w", stem, err)
	}
	return tags, nil
}
