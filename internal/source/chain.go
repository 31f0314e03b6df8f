// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import "context"

// Chain feeds the result of First into Then: First maps a title to a
// persistent identifier and Then turns that identifier into an artifact URL.
type Chain struct {
	First Adapter
	Then  Adapter
}

func (c *Chain) Name() string { return c.First.Name() + "+" + c.Then.Name() }

// Resolve runs First, then Then with First's persistent identifier (or its
// URL when it produced no identifier). Either step's failure is returned
// unchanged.
func (c *Chain) Resolve(ctx context.Context, identifier string) (Resource, error) {
	first, err := c.First.Resolve(ctx, identifier)
	if err != nil {
		return Resource{}, err
	}
	next := first.PersistentID
	if next == "" {
		next = first.URL
	}

	out, err := c.Then.Resolve(ctx, next)
	if err != nil {
		return Resource{}, err
	}
	if out.PersistentID == "" {
		out.PersistentID = first.PersistentID
	}
	return out, nil
}
