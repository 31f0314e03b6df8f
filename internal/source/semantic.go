// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,externalIds,openAccessPdf"

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF *semanticPDF        `json:"openAccessPdf"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// SemanticScholar finds an open-access PDF through the Semantic Scholar
// citation index.
type SemanticScholar struct {
	Client *httputil.Client
	APIKey string

	// Endpoint replaces the public paper search endpoint when set.
	Endpoint string
}

func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Resolve returns the open-access PDF of the best-matching paper. The
// persistent identifier prefers the DOI, then the arXiv ID, then the
// Semantic Scholar paper ID.
func (s *SemanticScholar) Resolve(ctx context.Context, title string) (Resource, error) {
	params := url.Values{
		"query":  {title},
		"limit":  {"1"},
		"fields": {semanticFields},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(s.Endpoint, semanticAPIBase)+"?"+params.Encode(), nil)
	if err != nil {
		return Resource{}, failure.New(failure.KindFatal, s.Name(), "creating request", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return Resource{}, failure.Transient(s.Name(), "paper search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resource{}, failure.FromStatus(s.Name(), resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Resource{}, failure.New(failure.KindFatal, s.Name(), "parsing response", err)
	}
	if len(sr.Data) == 0 {
		return Resource{}, failure.NotFound(s.Name(), "no matching papers")
	}

	paper := sr.Data[0]
	if paper.OpenAccessPDF == nil || paper.OpenAccessPDF.URL == "" {
		return Resource{}, failure.NotFound(s.Name(), fmt.Sprintf("no open-access PDF for %q", paper.Title))
	}

	id := paper.PaperID
	switch {
	case paper.ExternalIDs.DOI != "":
		id = paper.ExternalIDs.DOI
	case paper.ExternalIDs.ArXiv != "":
		id = paper.ExternalIDs.ArXiv
	}
	return Resource{URL: upgradeScheme(paper.OpenAccessPDF.URL), PersistentID: id}, nil
}
