// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/memo-engine/internal/catalog"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest [dir]",
	Short: "Index an existing vault into the catalog",
	Long: `Harvest walks a vault directory, extracts titles, tags, and wikilinks
from every Markdown note, and registers them in the catalog so future
memos can link against the existing collection.

Without an argument the configured notes directory is harvested.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Paths.NotesDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no vault directory: pass one or configure paths.notes_dir")
	}

	store, err := catalog.NewStore(cfg.Paths.CatalogDB)
	if err != nil {
		return err
	}

	summary, err := store.HarvestDir(cmd.Context(), dir, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Printf("harvested %d notes (%d failed)\n", summary.Indexed, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d note(s) failed indexing", summary.Failed)
	}
	return nil
}
