// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/memo-engine/internal/analyze"
	"github.com/pdiddy/memo-engine/internal/catalog"
	"github.com/pdiddy/memo-engine/internal/logging"
	"github.com/pdiddy/memo-engine/internal/pipeline"
	"github.com/pdiddy/memo-engine/internal/ratelimit"
	"github.com/pdiddy/memo-engine/internal/secrets"
	"github.com/pdiddy/memo-engine/internal/transcribe"
	"github.com/pdiddy/memo-engine/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending voice memos into vault notes",
	Long: `Run drains the audio directory: each unhandled recording is
transcribed, analyzed, rendered, and committed to the vault inbox.

With --once the command exits after one drain; otherwise it keeps
polling at --interval until interrupted. A file lock guards against a
second concurrent instance sharing the same catalog.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("once", false, "drain pending memos once and exit")
	runCmd.Flags().Duration("interval", 30*time.Second, "poll interval between drains")
	runCmd.Flags().Bool("show-rate-usage", false, "print rate ceiling usage after each drain")
	runCmd.Flags().String("audio-dir", "", "override the watched audio directory")
	runCmd.Flags().String("notes-dir", "", "override the vault root")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("audio-dir"); dir != "" {
		cfg.Paths.AudioDir = dir
	}
	if dir, _ := cmd.Flags().GetString("notes-dir"); dir != "" {
		cfg.Paths.NotesDir = dir
	}
	if cfg.Paths.AudioDir == "" || cfg.Paths.NotesDir == "" {
		return fmt.Errorf("paths.audio_dir and paths.notes_dir must be configured")
	}
	if cfg.Analysis.APIKey == "" {
		return fmt.Errorf("no analysis API key: set analysis.api_key or .secrets/%s", secrets.GroqAPIKey)
	}

	lock := flock.New(filepath.Join(os.TempDir(), "memo-engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another memo-engine instance is already running")
	}
	defer lock.Unlock()

	once, _ := cmd.Flags().GetBool("once")
	interval, _ := cmd.Flags().GetDuration("interval")
	showUsage, _ := cmd.Flags().GetBool("show-rate-usage")

	log := logging.New(os.Stderr, cfg.Logging)

	store, err := catalog.NewStore(cfg.Paths.CatalogDB)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Limits{
		RequestsPerMinute: cfg.Analysis.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.Analysis.RateLimit.TokensPerMinute,
		RequestsPerDay:    cfg.Analysis.RateLimit.RequestsPerDay,
	})

	backend := &analyze.GroqBackend{
		APIKey:  cfg.Analysis.APIKey,
		Model:   cfg.Analysis.Model,
		BaseURL: cfg.Analysis.BaseURL,
	}
	analyzer := analyze.New(cfg.Analysis, backend, limiter, log)

	inbox := filepath.Join(cfg.Paths.NotesDir, cfg.Paths.InboxSubdir)
	scanner := &watch.Scanner{
		AudioDir: cfg.Paths.AudioDir,
		InboxDir: inbox,
		Registry: store,
	}

	transcriber := transcribe.NewWhisperCLI(cfg.Transcriber)
	if !transcriber.Available() {
		log.Warn("transcriber binary not found on PATH, only cached transcripts will process",
			"binary", cfg.Transcriber.Binary)
	}

	coord := pipeline.New(scanner, transcriber, store, analyzer, inbox, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var afterDrain func()
	if showUsage {
		afterDrain = func() { printRateUsage(limiter.Snapshot()) }
	}
	return runLoop(ctx, coord, interval, once, os.Stdout, afterDrain)
}

// memoRunner is the slice of the pipeline the poll loop drives.
type memoRunner interface {
	RunOnce(ctx context.Context) (pipeline.Outcome, error)
}

// runLoop drains pending memos and, unless once is set, keeps polling
// at interval until the context ends. A memo that fails is reported and
// left for the next poll; only single-shot mode turns it into the
// command's error.
func runLoop(ctx context.Context, runner memoRunner, interval time.Duration, once bool, w io.Writer, afterDrain func()) error {
	for {
		err := drain(ctx, runner, w)
		if afterDrain != nil {
			afterDrain()
		}
		if once {
			return err
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "interrupted, shutting down")
			return nil
		case <-time.After(interval):
		}
	}
}

// drain processes memos until none remain, one fails, or the context
// ends. A failed memo stays unhandled, so the drain stops rather than
// retry it immediately.
func drain(ctx context.Context, runner memoRunner, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		out, err := runner.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.New(color.FgRed).Fprintf(w, "✗ %v\n", err)
			return err
		}
		if out.NoWork {
			fmt.Fprintln(w, out.Describe())
			return nil
		}
		color.New(color.FgGreen).Fprintf(w, "✓ %s\n", out.Describe())
		for _, warn := range out.Warnings {
			color.New(color.FgYellow).Fprintf(w, "  warning: %s\n", warn)
		}
	}
}

// printRateUsage renders the admission controller's view of the three
// ceilings.
func printRateUsage(usage ratelimit.Usage) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Ceiling", "Used", "Limit"})
	t.AppendRows([]table.Row{
		{"requests/min", usage.RequestsUsed, usage.RequestsLimit},
		{"tokens/min", usage.TokensUsed, usage.TokensLimit},
		{"requests/day", usage.DailyUsed, usage.DailyLimit},
	})
	t.Render()
}
