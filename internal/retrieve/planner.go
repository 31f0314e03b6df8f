// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve drives one identifier through the fallback chain of
// sources. Each source gets a bounded number of attempts with capped
// exponential backoff; sources are tried strictly in order and the first
// artifact that downloads and validates wins.
package retrieve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/metrics"
	"github.com/pdiddy/paperfetch/internal/source"
	"github.com/pdiddy/paperfetch/pkg/types"
)

const (
	DefaultAttempts    = 3
	DefaultBackoffUnit = time.Second
	DefaultBackoffCap  = 10 * time.Second
)

// ErrInterrupted is recorded when the run is cancelled mid-retrieval.
var ErrInterrupted = errors.New("interrupted")

// Source is one entry of the fallback chain. Method is the name recorded in
// the ledger when this source wins.
type Source struct {
	Method  string
	Adapter source.Adapter
}

// Fetcher downloads a located artifact to target.
type Fetcher interface {
	Fetch(ctx context.Context, url, target string) error
}

// Policy bounds the work spent on each source. Individual requests are
// bounded by the adapters' HTTP client, not by the planner, so an adapter
// that walks several hosts gives each of them a full request budget.
type Policy struct {
	Attempts    int
	BackoffUnit time.Duration
	BackoffCap  time.Duration
}

// DefaultPolicy returns three attempts per source with 1s, 2s, 4s... backoff
// capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:    DefaultAttempts,
		BackoffUnit: DefaultBackoffUnit,
		BackoffCap:  DefaultBackoffCap,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.BackoffUnit <= 0 {
		p.BackoffUnit = d.BackoffUnit
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = d.BackoffCap
	}
	return p
}

// Backoff returns the delay before retry number n (0-based):
// min(2^n * unit, cap).
func (p Policy) Backoff(n int) time.Duration {
	d := p.BackoffUnit
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	return min(d, p.BackoffCap)
}

// Planner runs the fallback chain for one identifier at a time. It holds no
// per-identifier state and is safe for concurrent use.
type Planner struct {
	sources []Source
	fetcher Fetcher
	policy  Policy
	log     *slog.Logger
	metrics *metrics.Metrics
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.log = l }
}

// WithMetrics records attempts and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *Planner) { p.sleep = fn }
}

// New creates a planner over sources in priority order.
func New(sources []Source, fetcher Fetcher, policy Policy, opts ...Option) *Planner {
	p := &Planner{
		sources: sources,
		fetcher: fetcher,
		policy:  policy.withDefaults(),
		log:     slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve resolves title and downloads it to target. It always returns a
// finished outcome: success with the winning method, or failure with the
// last error seen.
func (p *Planner) Retrieve(ctx context.Context, title, target string) types.RetrievalOutcome {
	out := types.RetrievalOutcome{Title: title, SavePath: target}
	log := p.log.With("title", title)

	var lastErr error
	for _, src := range p.sources {
		err := p.trySource(ctx, log, src, title, target)
		if err == nil {
			out.Status = types.StatusSuccess
			out.Method = src.Method
			log.Info("retrieved", "method", src.Method, "path", target)
			return out
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	out.Status = types.StatusFailure
	switch {
	case ctx.Err() != nil:
		out.Error = ErrInterrupted.Error()
	case lastErr != nil:
		out.Error = lastErr.Error()
	default:
		out.Error = "no sources configured"
	}
	log.Warn("exhausted", "error", out.Error)
	return out
}

// trySource spends up to policy.Attempts attempts on one source. Only
// transient failures earn another attempt.
func (p *Planner) trySource(ctx context.Context, log *slog.Logger, src Source, title, target string) error {
	var err error
	for attempt := 0; attempt < p.policy.Attempts; attempt++ {
		if attempt > 0 {
			delay := p.policy.Backoff(attempt - 1)
			log.Debug("backing off", "method", src.Method, "attempt", attempt+1, "delay", delay)
			if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}

		log.Debug("trying", "method", src.Method, "attempt", attempt+1)
		err = p.attempt(ctx, src, title, target)
		kind := failure.KindOf(err)
		p.metrics.IncAttempt(src.Method, resultLabel(kind))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Info("attempt failed", "method", src.Method, "attempt", attempt+1, "kind", string(kind), "error", err)
		if kind != failure.KindTransient {
			return err
		}
	}
	return err
}

// attempt is one resolve plus, when a resource is located, one download.
func (p *Planner) attempt(ctx context.Context, src Source, title, target string) error {
	res, err := src.Adapter.Resolve(ctx, title)
	if err != nil {
		return err
	}
	if res.URL == "" {
		return failure.NotFound(src.Adapter.Name(), "resolved without a download address")
	}

	p.log.Debug("downloading", "title", title, "method", src.Method, "url", res.URL)
	return p.fetcher.Fetch(ctx, res.URL, target)
}

func resultLabel(k failure.Kind) string {
	if k == failure.KindNone {
		return "success"
	}
	return string(k)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
