// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/mirror"
)

// maxPageBytes bounds how much of a mirror landing page is parsed.
const maxPageBytes = 4 << 20

// MirrorHost resolves identifiers against a set of interchangeable mirrors
// of a document host. Mirrors that served a document before are tried first.
type MirrorHost struct {
	Client     *httputil.Client
	Tracker    *mirror.Tracker
	Extractors []Extractor

	// Pause is the upper bound of a random delay between two mirrors.
	Pause time.Duration

	Log *slog.Logger
}

func (m *MirrorHost) Name() string { return "mirror" }

// Resolve walks every candidate mirror once. The first mirror whose landing
// page yields a link wins. When none does, the result is NotFound if any
// mirror gave a definitive answer and Transient otherwise.
func (m *MirrorHost) Resolve(ctx context.Context, identifier string) (Resource, error) {
	candidates := m.Tracker.Candidates()
	if len(candidates) == 0 {
		return Resource{}, failure.NotFound(m.Name(), "no mirrors configured")
	}
	extractors := m.Extractors
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}

	var definitive, transient error
	for i, base := range candidates {
		if i > 0 {
			if err := m.pause(ctx); err != nil {
				return Resource{}, failure.Transient(m.Name(), "interrupted", err)
			}
		}

		link, err := m.tryMirror(ctx, base, identifier, extractors)
		if err == nil {
			m.Tracker.ReportSuccess(base)
			return Resource{URL: link, Mirror: base}, nil
		}
		if ctx.Err() != nil {
			return Resource{}, failure.Transient(m.Name(), "interrupted", ctx.Err())
		}
		m.logger().Debug("mirror passed over", "mirror", base, "error", err)
		if failure.Retryable(err) {
			transient = err
		} else {
			definitive = err
		}
	}

	switch {
	case definitive != nil:
		return Resource{}, failure.NotFound(m.Name(), fmt.Sprintf("no mirror had a document (last: %v)", definitive))
	case transient != nil:
		return Resource{}, failure.Transient(m.Name(), "all mirrors unavailable", transient)
	}
	return Resource{}, failure.NotFound(m.Name(), "no mirrors configured")
}

// tryMirror fetches one landing page and extracts the artifact link.
func (m *MirrorHost) tryMirror(ctx context.Context, base, identifier string, extractors []Extractor) (string, error) {
	pageURL := strings.TrimRight(base, "/") + "/" + escapeIdentifier(identifier)
	resp, err := m.Client.Get(ctx, pageURL, "text/html,application/pdf;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", failure.Transient(m.Name(), "request "+base, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		m.logger().Warn("mirror blocked request", "mirror", base)
		return "", failure.Transient(m.Name(), "blocked by "+base, nil)
	case resp.StatusCode != http.StatusOK:
		return "", failure.FromStatus(m.Name(), resp.StatusCode)
	}

	// Some mirrors answer with the document itself.
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return resp.Request.URL.String(), nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", failure.Transient(m.Name(), "reading page from "+base, err)
	}
	link, strategy := Extract(doc, extractors)
	if link == "" {
		return "", failure.NotFound(m.Name(), "no document link on "+base)
	}
	abs := resolveLink(base, link)
	if abs == "" {
		return "", failure.NotFound(m.Name(), "unusable document link on "+base)
	}
	m.logger().Debug("mirror link extracted", "mirror", base, "strategy", strategy, "url", abs)
	return abs, nil
}

func (m *MirrorHost) pause(ctx context.Context) error {
	if m.Pause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(rand.N(m.Pause))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MirrorHost) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

// escapeIdentifier path-escapes each segment so DOIs keep their slash.
func escapeIdentifier(id string) string {
	segs := strings.Split(strings.TrimSpace(id), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
