package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/batch"
	"github.com/pdiddy/paperfetch/internal/cache"
	"github.com/pdiddy/paperfetch/internal/fetch"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/internal/logging"
	"github.com/pdiddy/paperfetch/internal/metrics"
	"github.com/pdiddy/paperfetch/internal/mirror"
	"github.com/pdiddy/paperfetch/internal/retrieve"
	"github.com/pdiddy/paperfetch/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [input-file]",
	Short: "Download PDFs for every title in a delimited text file",
	Long: `Fetch reads titles from the Title column of a CSV or tab-separated file
and retrieves each one through the configured sources. Titles whose PDF is
already in the output directory are skipped. Every title gets one row in the
results ledger; the run log and an optional YAML summary record the details.

Interrupting the run (Ctrl-C) stops new titles from starting, lets in-flight
titles finish, and still writes the ledger, cache, and summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("input", "", "input file with a Title column (.csv, .tsv, .txt)")
	f.String("out", "", "directory PDFs are saved to (default papers)")
	f.Int("workers", 0, "titles processed concurrently (default 5)")
	f.Int("retries", 0, "attempts per source (default 3)")
	f.Duration("timeout", 0, "bound on one request to a source, each mirror included (default 20s)")
	f.Duration("download-timeout", 0, "bound on one PDF download (default 60s)")
	f.Duration("backoff-cap", 0, "longest delay between attempts of a source (default 10s)")
	f.String("ledger", "", "results CSV (default download_results.csv)")
	f.String("summary", "", "write a YAML run summary to this path")
	f.String("log-file", "", "run log, truncated each run (default paper_download.log)")
	f.String("cache", "", "request cache database (default .paperfetch/cache.db)")
	f.StringSlice("mirror", nil, "document mirror base URL (repeatable)")
	f.StringSlice("sources", nil, "source methods in priority order")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.Bool("no-cache", false, "do not read or write the request cache")
	f.BoolP("verbose", "v", false, "log debug detail to the run log")

	rootCmd.AddCommand(fetchCmd)
}

// fetchFlags maps configuration keys to fetch flags.
var fetchFlags = map[string]string{
	"batch.input":                "input",
	"batch.save_dir":             "out",
	"batch.workers":              "workers",
	"batch.ledger":               "ledger",
	"batch.summary":              "summary",
	"retrieval.retries":          "retries",
	"retrieval.timeout":          "timeout",
	"retrieval.download_timeout": "download-timeout",
	"retrieval.backoff_cap":      "backoff-cap",
	"retrieval.mirrors":          "mirror",
	"retrieval.sources":          "sources",
	"cache.path":                 "cache",
	"cache.disabled":             "no-cache",
	"log_file":                   "log-file",
	"metrics_addr":               "metrics-addr",
}

func runFetch(cmd *cobra.Command, args []string) (err error) {
	if err := bindFlags(viper.GetViper(), cmd, fetchFlags); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Batch.InputPath = args[0]
	}
	if cfg.Batch.InputPath == "" {
		return fmt.Errorf("provide an input file (argument or --input)")
	}
	loadedSecrets.Apply(&cfg.Retrieval.HTTPConfig)

	verbose, _ := cmd.Flags().GetBool("verbose")
	log, closeLog, err := logging.Setup(cfg.LogFile, cmd.ErrOrStderr(), verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	titles, err := ledger.ReadTitles(cfg.Batch.InputPath)
	if err != nil {
		log.Error("cannot read input", "path", cfg.Batch.InputPath, "error", err)
		return err
	}
	out := cmd.OutOrStdout()
	if len(titles) == 0 {
		fmt.Fprintln(out, "No titles found in", cfg.Batch.InputPath)
		return nil
	}
	log.Info("titles loaded", "count", len(titles), "input", cfg.Batch.InputPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, log); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var c *cache.Cache
	if !cfg.Cache.Disabled {
		c, err = cache.Open(cfg.Cache, log)
		if err != nil {
			return err
		}
		log.Info("request cache loaded", "path", cfg.Cache.Path, "entries", c.Len())
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				log.Error("cache flush failed", "error", closeErr)
				err = errors.Join(err, closeErr)
			}
		}()
	}

	mirrors := cfg.Retrieval.Mirrors
	if cfg.Retrieval.ShuffleMirrors {
		mirrors = mirror.Shuffle(mirrors, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	tracker := mirror.NewTracker(mirrors)

	client := httputil.NewClient(&http.Client{}, cfg.Retrieval.HTTPConfig)
	sources, err := buildSources(cfg.Retrieval, deps{client: client, cache: c, tracker: tracker, metrics: m, log: log})
	if err != nil {
		return err
	}

	// Downloads are bounded by download_timeout, not the per-request timeout.
	fetcher := fetch.New(client.WithTimeout(0), cfg.Retrieval, log, m)
	planner := retrieve.New(sources, fetcher, retrieve.Policy{
		Attempts:   cfg.Retrieval.Retries,
		BackoffCap: cfg.Retrieval.BackoffCap,
	}, retrieve.WithLogger(log), retrieve.WithMetrics(m))

	l, err := ledger.Create(cfg.Batch.LedgerPath)
	if err != nil {
		return err
	}

	orch := &batch.Orchestrator{
		Retriever:   planner,
		Ledger:      l,
		SaveDir:     cfg.Batch.SaveDir,
		Concurrency: cfg.Batch.Concurrency,
		Progress:    out,
		Log:         log,
		Metrics:     m,
	}

	fmt.Fprintf(out, "Processing %d titles with %d workers (sources: %v)\n", len(titles), cfg.Batch.Concurrency, methods(sources))
	started := time.Now()
	stats, runErr := orch.Run(ctx, titles)
	finished := time.Now()
	interrupted := ctx.Err() != nil

	if closeErr := l.Close(); closeErr != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing ledger: %w", closeErr))
	}

	if cfg.Batch.SummaryPath != "" {
		summary := types.RunSummary{
			RunID:            runID,
			Stats:            stats,
			StartedAt:        started,
			FinishedAt:       finished,
			Duration:         finished.Sub(started).Round(time.Millisecond),
			Interrupted:      interrupted,
			Input:            cfg.Batch.InputPath,
			SaveDir:          cfg.Batch.SaveDir,
			Ledger:           cfg.Batch.LedgerPath,
			KnownGoodMirrors: tracker.KnownGood(),
		}
		if sumErr := batch.WriteSummary(cfg.Batch.SummaryPath, summary); sumErr != nil {
			runErr = errors.Join(runErr, sumErr)
		}
	}

	log.Info("run finished", "success", stats.Success, "fail", stats.Fail, "skipped", stats.Skipped,
		"interrupted", interrupted, "duration", finished.Sub(started))
	if interrupted {
		fmt.Fprintf(out, "Interrupted: %d of %d titles recorded in %s\n", stats.Total(), len(titles), cfg.Batch.LedgerPath)
	}
	return runErr
}

func methods(sources []retrieve.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Method
	}
	return out
}
