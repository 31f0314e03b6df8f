// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads artifacts to local storage. A target file only
// ever appears through a rename of a complete, validated temp file in the
// same directory, so an interrupted or rejected download leaves nothing
// behind.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/metrics"
	"github.com/pdiddy/paperfetch/pkg/types"
)

const (
	DefaultMinSize = 10000
	DefaultMaxSize = 200 << 20
	DefaultTimeout = 60 * time.Second

	sourceName = "download"
)

// sniffLen is how much of the body is inspected before the download is
// committed to disk.
const sniffLen = 512

// Fetcher downloads and validates PDF artifacts.
type Fetcher struct {
	Client  *httputil.Client
	MinSize int64
	MaxSize int64
	Timeout time.Duration
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// New builds a Fetcher from the retrieval settings, filling in defaults.
func New(client *httputil.Client, cfg types.RetrievalConfig, log *slog.Logger, m *metrics.Metrics) *Fetcher {
	f := &Fetcher{
		Client:  client,
		MinSize: cfg.MinPDFSize,
		MaxSize: cfg.MaxPDFSize,
		Timeout: cfg.DownloadTimeout,
		Log:     log,
		Metrics: m,
	}
	if f.MinSize <= 0 {
		f.MinSize = DefaultMinSize
	}
	if f.MaxSize <= 0 {
		f.MaxSize = DefaultMaxSize
	}
	if f.Timeout <= 0 {
		f.Timeout = DefaultTimeout
	}
	if f.Log == nil {
		f.Log = slog.Default()
	}
	return f
}

// Fetch downloads rawURL to target. Failures are classified: HTTP status per
// failure.FromStatus, content that is not a PDF or is too small or too large
// is Invalid, and a body cut short is Transient.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, target string) (err error) {
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	start := time.Now()
	var written int64
	defer func() {
		committed := int64(0)
		if err == nil {
			committed = written
		}
		f.Metrics.ObserveFetch(time.Since(start), committed)
	}()

	resp, err := f.Client.Get(ctx, rawURL, "application/pdf")
	if err != nil {
		return failure.Transient(sourceName, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failure.FromStatus(sourceName, resp.StatusCode)
	}
	if resp.ContentLength > f.MaxSize {
		return failure.Invalid(sourceName, fmt.Sprintf("declared size %d exceeds limit %d", resp.ContentLength, f.MaxSize))
	}

	head := make([]byte, sniffLen)
	n, readErr := io.ReadFull(resp.Body, head)
	head = head[:n]
	if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		return failure.Transient(sourceName, "reading body", readErr)
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "pdf") && !isPDF(head) {
		return failure.Invalid(sourceName, fmt.Sprintf("not a PDF (content type %q, detected %s)",
			contentType, mimetype.Detect(head).String()))
	}

	written, err = f.writeAtomic(io.MultiReader(bytes.NewReader(head), resp.Body), resp.ContentLength, target)
	if err != nil {
		return err
	}
	f.Log.Debug("artifact saved", "url", rawURL, "path", target, "bytes", written)
	return nil
}

// isPDF sniffs the leading bytes of a body.
func isPDF(head []byte) bool {
	return len(head) > 0 && mimetype.Detect(head).Is("application/pdf")
}

// writeAtomic streams r into a temp file next to target and renames it into
// place once the size checks pass.
func (f *Fetcher) writeAtomic(r io.Reader, declared int64, target string) (int64, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".paperfetch-*.part")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	// One byte past the limit is enough to detect an oversized body.
	n, copyErr := io.Copy(tmp, io.LimitReader(r, f.MaxSize+1))
	if copyErr != nil {
		return n, failure.Transient(sourceName, "writing download", copyErr)
	}
	if n > f.MaxSize {
		return n, failure.Invalid(sourceName, fmt.Sprintf("body exceeds limit %d", f.MaxSize))
	}
	if declared > 0 && n < declared {
		return n, failure.Transient(sourceName, fmt.Sprintf("truncated body: %d of %d bytes", n, declared), nil)
	}
	if n < f.MinSize {
		return n, failure.Invalid(sourceName, fmt.Sprintf("file too small (%d bytes)", n))
	}

	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true
	return n, nil
}
