// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source implements the backends that turn a publication title into
// a downloadable artifact address: a metadata resolver (CrossRef), an open
// repository (arXiv), an open-access index (OpenAlex), a citation index
// (Semantic Scholar), and a mirrored document host. Every adapter reports failures as *failure.Error values so
// the retrieval planner can decide whether to retry or fall through.
package source

import (
	"context"
	"strings"
)

// Resource is what an adapter located for an identifier. URL is the artifact
// address when the adapter found one directly; PersistentID is set by
// resolvers that map titles to stable identifiers such as DOIs.
type Resource struct {
	URL          string
	PersistentID string
	Mirror       string
}

// Adapter resolves an identifier against one backend.
type Adapter interface {
	Name() string
	Resolve(ctx context.Context, identifier string) (Resource, error)
}

// endpoint returns override when set, else def, without a trailing slash.
func endpoint(override, def string) string {
	if override == "" {
		return def
	}
	return strings.TrimRight(override, "/")
}

// upgradeScheme rewrites protocol-relative and plain-http links to https.
func upgradeScheme(link string) string {
	switch {
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "http://"):
		return "https://" + strings.TrimPrefix(link, "http://")
	}
	return link
}
