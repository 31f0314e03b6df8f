// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"

	"github.com/pdiddy/paperfetch/internal/cache"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/metrics"
	"github.com/pdiddy/paperfetch/internal/mirror"
	"github.com/pdiddy/paperfetch/internal/retrieve"
	"github.com/pdiddy/paperfetch/internal/source"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Source methods recorded in the ledger.
const (
	methodMetadataResolver = "metadata-resolver"
	methodOpenRepository   = "open-repository"
	methodOpenAccess       = "open-access"
	methodCitationIndex    = "citation-index"
	methodMirroredHost     = "mirrored-host"
)

// deps are the shared collaborators every source is built from.
type deps struct {
	client  *httputil.Client
	cache   *cache.Cache
	tracker *mirror.Tracker
	metrics *metrics.Metrics
	log     *slog.Logger
}

// buildSources turns the configured method names into the planner's
// fallback chain, in order.
func buildSources(cfg types.RetrievalConfig, d deps) ([]retrieve.Source, error) {
	cached := func(a source.Adapter) source.Adapter {
		return &source.Cached{Adapter: a, Cache: d.cache, Metrics: d.metrics}
	}
	mirrors := &source.MirrorHost{
		Client:     d.client,
		Tracker:    d.tracker,
		Extractors: source.DefaultExtractors(),
		Pause:      cfg.MirrorPause,
		Log:        d.log,
	}
	openAlex := cached(&source.OpenAlex{Client: d.client, Mailto: cfg.Mailto, Endpoint: cfg.Endpoints.OpenAlex})

	var out []retrieve.Source
	seen := make(map[string]bool)
	for _, method := range cfg.Sources {
		if seen[method] {
			continue
		}
		seen[method] = true

		var a source.Adapter
		switch method {
		case methodMetadataResolver:
			crossref := cached(&source.CrossRef{Client: d.client, Mailto: cfg.Mailto, Endpoint: cfg.Endpoints.CrossRef})
			if len(d.tracker.Mirrors()) > 0 {
				a = &source.Chain{First: crossref, Then: mirrors}
			} else {
				// Without mirrors the DOI can still lead to an open-access copy.
				a = &source.Chain{First: crossref, Then: openAlex}
			}
		case methodOpenRepository:
			a = cached(&source.Arxiv{Client: d.client, Endpoint: cfg.Endpoints.Arxiv})
		case methodOpenAccess:
			a = openAlex
		case methodCitationIndex:
			a = cached(&source.SemanticScholar{
				Client:   d.client,
				APIKey:   cfg.ScholarAPIKey,
				Endpoint: cfg.Endpoints.SemanticScholar,
			})
		case methodMirroredHost:
			if len(d.tracker.Mirrors()) == 0 {
				d.log.Info("no mirrors configured, skipping source", "method", method)
				continue
			}
			a = mirrors
		default:
			return nil, fmt.Errorf("unknown source %q (known: %s, %s, %s, %s, %s)", method,
				methodMetadataResolver, methodOpenRepository, methodOpenAccess, methodCitationIndex, methodMirroredHost)
		}
		out = append(out, retrieve.Source{Method: method, Adapter: a})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable sources configured")
	}
	return out, nil
}
