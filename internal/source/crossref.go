// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
)

// crossrefAPIBase is the CrossRef REST root. Declared as a var so tests can
// substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org"

type crossrefSearchResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI   string   `json:"DOI"`
	Title []string `json:"title"`
}

// CrossRef maps a title to a DOI through the CrossRef works search. It
// never yields a direct artifact URL; chain it to a resolver that accepts
// persistent identifiers.
type CrossRef struct {
	Client *httputil.Client
	Mailto string

	// Endpoint replaces the public API root when set.
	Endpoint string
}

func (c *CrossRef) Name() string { return "crossref" }

// Resolve returns the DOI of the best-ranked work matching title.
func (c *CrossRef) Resolve(ctx context.Context, title string) (Resource, error) {
	q := url.Values{}
	q.Set("query.title", title)
	q.Set("rows", "1")
	if c.Mailto != "" {
		q.Set("mailto", c.Mailto)
	}

	resp, err := c.Client.Get(ctx, endpoint(c.Endpoint, crossrefAPIBase)+"/works?"+q.Encode(), "application/json")
	if err != nil {
		return Resource{}, failure.Transient(c.Name(), "works search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resource{}, failure.FromStatus(c.Name(), resp.StatusCode)
	}

	var cr crossrefSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Resource{}, failure.New(failure.KindFatal, c.Name(), "parsing response", err)
	}
	if len(cr.Message.Items) == 0 || strings.TrimSpace(cr.Message.Items[0].DOI) == "" {
		return Resource{}, failure.NotFound(c.Name(), "no matching works")
	}
	return Resource{PersistentID: strings.TrimSpace(cr.Message.Items[0].DOI)}, nil
}
