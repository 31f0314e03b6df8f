package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/internal/batch"
	"github.com/pdiddy/paperfetch/internal/cache"
	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/pkg/types"
)

func TestFetchCommand_InterruptedRunKeepsLedgerCacheAndSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{'x'}, 12000)...)
	var (
		mu       sync.Mutex
		searched []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/works":
			title := r.URL.Query().Get("search")
			mu.Lock()
			searched = append(searched, title)
			mu.Unlock()
			if title == "Beta Paper" {
				// Ctrl-C arrives while this lookup is in flight.
				cancel()
				<-r.Context().Done()
				return
			}
			fmt.Fprintf(w, `{"results":[{"doi":"https://doi.org/10.1/alpha","best_oa_location":{"pdf_url":"%s/pdf/alpha"}}]}`, "http://"+r.Host)
		case "/pdf/alpha":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdf)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "titles.csv")
	require.NoError(t, os.WriteFile(input, []byte("Title\nAlpha Paper\nBeta Paper\nGamma Paper\n"), 0o644))
	cfgFile := filepath.Join(dir, "paperfetch.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("retrieval:\n  rate_per_host: 0\n  endpoints:\n    openalex: "+ts.URL+"\n"), 0o644))

	var (
		saveDir     = filepath.Join(dir, "papers")
		ledgerPath  = filepath.Join(dir, "results.csv")
		summaryPath = filepath.Join(dir, "summary.yaml")
		cachePath   = filepath.Join(dir, "cache", "cache.db")
	)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)
	rootCmd.SetArgs([]string{
		"fetch", input,
		"--config", cfgFile,
		"--secrets-dir", filepath.Join(dir, "no-secrets"),
		"--sources", methodOpenAccess,
		"--workers", "1",
		"--retries", "1",
		"--out", saveDir,
		"--ledger", ledgerPath,
		"--summary", summaryPath,
		"--cache", cachePath,
		"--log-file", filepath.Join(dir, "run.log"),
	})

	require.NoError(t, rootCmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Interrupted: 2 of 3 titles recorded")
	mu.Lock()
	assert.Equal(t, []string{"Alpha Paper", "Beta Paper"}, searched, "no title starts after the interrupt")
	mu.Unlock()

	rows, err := ledger.ReadOutcomes(ledgerPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alpha Paper", rows[0].Title)
	assert.Equal(t, types.StatusSuccess, rows[0].Status)
	assert.Equal(t, methodOpenAccess, rows[0].Method)
	assert.Equal(t, "Beta Paper", rows[1].Title)
	assert.Equal(t, types.StatusFailure, rows[1].Status)
	assert.Equal(t, "interrupted", rows[1].Error)
	assert.FileExists(t, batch.TargetPath(saveDir, "Alpha Paper"))

	c, err := cache.Open(types.CacheConfig{Path: cachePath}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 1, c.Len(), "interrupted lookups are not cached")
	e, ok := c.Get("openalex", "Alpha Paper")
	require.True(t, ok, "cache was flushed on shutdown")
	assert.Equal(t, ts.URL+"/pdf/alpha", e.URL)

	summary, err := batch.ReadSummary(summaryPath)
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, types.Stats{Success: 1, Fail: 1}, summary.Stats)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, input, summary.Input)
}
