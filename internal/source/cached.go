// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"

	"github.com/pdiddy/paperfetch/internal/cache"
	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/metrics"
)

// Cached memoizes an adapter's answers in the request cache under the
// adapter's name. Located resources and definitive failures are stored;
// transient and unclassified failures are not, so they are retried on the
// next run.
type Cached struct {
	Adapter Adapter
	Cache   *cache.Cache
	Metrics *metrics.Metrics
}

func (c *Cached) Name() string { return c.Adapter.Name() }

// Resolve answers from the cache when it can and otherwise delegates. A
// cached failure replays as NotFound.
func (c *Cached) Resolve(ctx context.Context, identifier string) (Resource, error) {
	name := c.Adapter.Name()
	if e, ok := c.Cache.Get(name, identifier); ok {
		c.Metrics.IncCacheLookup(name, true)
		if e.Negative() {
			return Resource{}, failure.NotFound(name, "cached: "+e.Failure)
		}
		return Resource{URL: e.URL, PersistentID: e.PersistentID}, nil
	}
	c.Metrics.IncCacheLookup(name, false)

	res, err := c.Adapter.Resolve(ctx, identifier)
	switch {
	case err == nil:
		c.Cache.Put(name, identifier, cache.Entry{URL: res.URL, PersistentID: res.PersistentID})
	case failure.Definitive(err):
		c.Cache.Put(name, identifier, cache.Entry{Failure: failureMessage(err)})
	}
	return res, err
}

func failureMessage(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
