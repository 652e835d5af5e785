// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/memo-engine/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the note registry",
	Long: `Catalog reads the SQLite registry the pipeline commits into. Use
subcommands to list the tag vocabulary, list registered notes, or
forget a stem so its memo is picked up again.`,
}

var catalogTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List the tag vocabulary with usage counts",
	RunE:  runCatalogTags,
}

var catalogNotesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List registered notes",
	RunE:  runCatalogNotes,
}

var catalogForgetCmd = &cobra.Command{
	Use:   "forget <stem>",
	Short: "Remove a stem from the registry",
	Long: `Forget deletes a note record along with its tags and outgoing links.
Forgetting a processed audio stem makes the next run pick the recording
up again.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogForget,
}

func init() {
	catalogTagsCmd.Flags().Bool("json", false, "output as JSON")
	catalogNotesCmd.Flags().Bool("json", false, "output as JSON")

	catalogCmd.AddCommand(catalogTagsCmd, catalogNotesCmd, catalogForgetCmd)
	rootCmd.AddCommand(catalogCmd)
}

func openCatalog() (*catalog.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return catalog.NewStore(cfg.Paths.CatalogDB)
}

func runCatalogTags(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	counts, err := store.TagCounts(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(counts)
	}

	if len(counts) == 0 {
		fmt.Println("No tags in the catalog.")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Tag", "Notes"})
	for _, tc := range counts {
		t.AppendRow(table.Row{tc.Tag, tc.Count})
	}
	t.Render()
	return nil
}

func runCatalogNotes(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	notes, err := store.Notes(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(notes)
	}

	if len(notes) == 0 {
		fmt.Println("No notes in the catalog.")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stem", "Title", "Updated"})
	for _, n := range notes {
		t.AppendRow(table.Row{n.Stem, n.Title, n.UpdatedAt})
	}
	t.Render()
	return nil
}

func runCatalogForget(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	if err := store.DeleteNote(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("forgot %s\n", args[0])
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
