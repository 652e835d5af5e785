// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Patterns for extracting cross-reference data from existing notes.
var (
	// [[wiki-link]] with optional |alias or #heading suffix.
	wikilinkRE = regexp.MustCompile(`\[\[([^\]|#]+)(?:[|#][^\]]+)?\]\]`)

	// tags: [a, b] line in YAML front-matter.
	frontMatterTagsRE = regexp.MustCompile(`(?mi)^tags:\s*\[?([^\]\n]+)\]?`)

	// Inline #tag tokens (not preceded by a word character, so headings
	// and URLs are not matched).
	inlineTagRE = regexp.MustCompile(`(?m)(?:^|[^\w#])#([\w/-]+)`)

	tagSeparatorRE = regexp.MustCompile(`[,\s]+`)
)

// HarvestSummary holds counts from a bulk re-index run.
type HarvestSummary struct {
	Indexed int
	Failed  int
}

// HarvestDir walks root for Markdown notes and indexes each one,
// rebuilding the registry from pre-existing artifacts. Hidden directories
// are skipped. Progress lines are written to w.
func (s *Store) HarvestDir(ctx context.Context, root string, w io.Writer) (HarvestSummary, error) {
	var summary HarvestSummary

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.IndexMarkdownFile(ctx, path); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", d.Name(), err)
			summary.Failed++
			return nil
		}
		fmt.Fprintf(w, "indexed %s\n", d.Name())
		summary.Indexed++
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking %s: %w", root, err)
	}

	fmt.Fprintf(w, "\nindexed: %d, failed: %d\n", summary.Indexed, summary.Failed)
	return summary, nil
}

// IndexMarkdownFile parses one note artifact and registers its title,
// tags, and outbound links. Front-matter tags, inline #tags, and
// [[wikilink]] targets are merged into one set.
func (s *Store) IndexMarkdownFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)

	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	title := extractTitle(content, stem)
	tags := ExtractTags(content)
	links := ExtractLinks(content)

	return s.Commit(ctx, stem, title, path, tags, links)
}

// extractTitle returns the first H1 heading, or the fallback.
func extractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return fallback
}

// ExtractTags collects YAML front-matter tags and inline #tags from note
// content, normalized and deduplicated.
func ExtractTags(content string) []string {
	seen := make(map[string]bool)
	var tags []string

	add := func(tag string) {
		tag = NormalizeTag(strings.Trim(tag, `"'`))
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, m := range frontMatterTagsRE.FindAllStringSubmatch(content, -1) {
		for _, tag := range tagSeparatorRE.Split(m[1], -1) {
			add(tag)
		}
	}
	for _, m := range inlineTagRE.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}

	return tags
}

// ExtractLinks collects [[wikilink]] targets from note content,
// slug-normalized and deduplicated.
func ExtractLinks(content string) []string {
	seen := make(map[string]bool)
	var links []string
	for _, m := range wikilinkRE.FindAllStringSubmatch(content, -1) {
		target := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "-")
		if target != "" && !seen[target] {
			seen[target] = true
			links = append(links, target)
		}
	}
	return links
}
