// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultRequestTimeout bounds one request to a source, transport retries
// included.
const DefaultRequestTimeout = 20 * time.Second

// Client wraps an *http.Client with the headers, per-host rate limits, and
// transport retries every outbound request in paperfetch uses.
type Client struct {
	HTTP       *http.Client
	UserAgent  string
	MaxRetries int

	// Timeout bounds each request from send until its body is closed. Zero
	// leaves requests bounded only by the caller's context.
	Timeout time.Duration

	limits *hostLimits
}

// hostLimits holds one limiter per host. Clients derived with WithTimeout
// share it, so a host sees one request rate however it is reached.
type hostLimits struct {
	rps      float64
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a Client from the shared HTTP settings. Every request is
// bounded by cfg.Timeout; callers may bound a sequence of requests further
// with a context.
func NewClient(hc *http.Client, cfg types.HTTPConfig) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		HTTP:       hc,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.TransportRetries,
		Timeout:    cfg.Timeout,
		limits: &hostLimits{
			rps:      cfg.RatePerHost,
			limiters: make(map[string]*rate.Limiter),
		},
	}
}

// WithTimeout returns a client with a different per-request bound that
// shares c's rate limits.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.Timeout = d
	return &cp
}

// Get issues a GET request for rawURL. accept sets the Accept header when
// non-empty. The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.Do(ctx, req)
}

// Do sends a prepared request under the client's rate limit, timeout, and
// retry policy. The User-Agent header is set unless the request carries one.
// Waiting for the rate limiter does not count against the timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if err := c.wait(ctx, req.URL); err != nil {
		return nil, err
	}
	if c.Timeout <= 0 {
		return DoWithRetry(ctx, c.HTTP, req, c.MaxRetries)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	resp, err := DoWithRetry(ctx, c.HTTP, req, c.MaxRetries)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases a request's timeout once its body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// wait blocks until the host's limiter admits one more request.
func (c *Client) wait(ctx context.Context, u *url.URL) error {
	if c.limits == nil || c.limits.rps <= 0 {
		return nil
	}
	return c.limits.limiter(u.Host).Wait(ctx)
}

func (l *hostLimits) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		// Burst of one: consecutive requests are spaced 1/rps apart.
		lim = rate.NewLimiter(rate.Limit(l.rps), 1)
		l.limiters[host] = lim
	}
	return lim
}
