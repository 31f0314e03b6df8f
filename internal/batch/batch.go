// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs the retrieval planner over a list of titles with
// bounded concurrency. Workers hand finished outcomes to a single
// aggregator that owns the ledger and the counters, so rows are written in
// completion order without shared mutable state.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paperfetch/internal/metrics"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultConcurrency is the worker pool size when none is configured.
const DefaultConcurrency = 5

// SkipReason is recorded for titles whose artifact is already on disk.
const SkipReason = "file already exists"

// Retriever runs the fallback chain for one title.
type Retriever interface {
	Retrieve(ctx context.Context, title, target string) types.RetrievalOutcome
}

// Recorder persists finished outcomes.
type Recorder interface {
	Record(types.RetrievalOutcome) error
}

// Orchestrator drives one batch run.
type Orchestrator struct {
	Retriever   Retriever
	Ledger      Recorder
	SaveDir     string
	Concurrency int

	// Progress receives one line per finished title and the final summary.
	Progress io.Writer

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Run processes titles and returns the final counts. Titles whose target
// already exists are skipped without network work. On cancellation no new
// titles are started; in-flight titles finish and are recorded. The error
// joins every ledger write failure; per-title failures are not errors.
func (o *Orchestrator) Run(ctx context.Context, titles []string) (types.Stats, error) {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	progress := o.Progress
	if progress == nil {
		progress = io.Discard
	}
	workers := o.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	if err := os.MkdirAll(o.SaveDir, 0o755); err != nil {
		return types.Stats{}, fmt.Errorf("creating save directory: %w", err)
	}

	results := make(chan types.RetrievalOutcome, workers)
	var (
		stats     types.Stats
		ledgerErr []error
		done      = make(chan struct{})
	)
	go func() {
		defer close(done)
		n := 0
		for out := range results {
			n++
			stats.Add(out)
			o.Metrics.IncOutcome(string(out.Status))
			if o.Ledger != nil {
				if err := o.Ledger.Record(out); err != nil {
					log.Error("ledger write failed", "title", out.Title, "error", err)
					ledgerErr = append(ledgerErr, err)
				}
			}
			fmt.Fprintf(progress, "[%d/%d] %s\n", n, len(titles), describe(out))
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, title := range titles {
		if ctx.Err() != nil {
			break
		}
		target := TargetPath(o.SaveDir, title)
		if _, err := os.Stat(target); err == nil {
			log.Info("skipped", "title", title, "path", target)
			results <- types.RetrievalOutcome{
				Title:    title,
				Status:   types.StatusSkipped,
				Error:    SkipReason,
				SavePath: target,
			}
			continue
		}

		// g.Go blocks until a worker is free; the run may be cancelled
		// while it waits.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.Metrics.AddInFlight(1)
			defer o.Metrics.AddInFlight(-1)
			results <- o.Retriever.Retrieve(ctx, title, target)
			return nil
		})
	}
	g.Wait()
	close(results)
	<-done

	if recorded := stats.Total(); recorded < len(titles) {
		log.Warn("batch interrupted", "recorded", recorded, "remaining", len(titles)-recorded)
	}
	fmt.Fprintf(progress, "Batch summary: %d succeeded, %d failed, %d skipped (%d of %d titles)\n",
		stats.Success, stats.Fail, stats.Skipped, stats.Total(), len(titles))
	return stats, errors.Join(ledgerErr...)
}

func describe(o types.RetrievalOutcome) string {
	switch o.Status {
	case types.StatusSuccess:
		return fmt.Sprintf("success: %s (via %s)", o.Title, o.Method)
	case types.StatusSkipped:
		return fmt.Sprintf("skipped: %s (already exists)", o.Title)
	default:
		return fmt.Sprintf("failed: %s: %s", o.Title, o.Error)
	}
}
