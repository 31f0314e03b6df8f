// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
)

// arxivAPIBase is the arXiv query endpoint. Declared as a var so tests can
// substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID    string      `xml:"id"`
	Title string      `xml:"title"`
	Links []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// Arxiv searches arXiv by title and returns the PDF link of the top entry.
type Arxiv struct {
	Client *httputil.Client

	// Endpoint replaces the public query endpoint when set.
	Endpoint string
}

func (a *Arxiv) Name() string { return "arxiv" }

// Resolve queries the title field and picks the application/pdf link of the
// first entry, upgraded to https.
func (a *Arxiv) Resolve(ctx context.Context, title string) (Resource, error) {
	q := url.Values{}
	q.Set("search_query", `ti:"`+strings.ReplaceAll(title, `"`, "")+`"`)
	q.Set("max_results", "1")

	resp, err := a.Client.Get(ctx, endpoint(a.Endpoint, arxivAPIBase)+"?"+q.Encode(), "application/atom+xml")
	if err != nil {
		return Resource{}, failure.Transient(a.Name(), "query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resource{}, failure.FromStatus(a.Name(), resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Resource{}, failure.New(failure.KindFatal, a.Name(), "parsing feed", err)
	}
	if len(feed.Entries) == 0 {
		return Resource{}, failure.NotFound(a.Name(), "no matching entries")
	}

	entry := feed.Entries[0]
	for _, l := range entry.Links {
		if l.Type == "application/pdf" && l.Href != "" {
			return Resource{
				URL:          upgradeScheme(l.Href),
				PersistentID: strings.TrimSpace(entry.ID),
			}, nil
		}
	}
	return Resource{}, failure.NotFound(a.Name(), "entry has no PDF link")
}
