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

// openAlexAPIBase is the OpenAlex API root. Declared as a var so tests can
// substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org"

// openAlexSearchResponse captures the fields we need from a works search.
type openAlexSearchResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID             string            `json:"id"`
	DOI            string            `json:"doi"`
	BestOALocation *openAlexLocation `json:"best_oa_location"`
}

// openAlexLocation represents an open-access location in the OpenAlex response.
type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// OpenAlex finds an open-access PDF for a title. When used as the second
// half of a Chain it also accepts a DOI.
type OpenAlex struct {
	Client *httputil.Client
	Mailto string

	// Endpoint replaces the public API root when set.
	Endpoint string
}

func (o *OpenAlex) Name() string { return "openalex" }

// Resolve returns the best open-access PDF location of the top-ranked work.
func (o *OpenAlex) Resolve(ctx context.Context, identifier string) (Resource, error) {
	q := url.Values{}
	base := endpoint(o.Endpoint, openAlexAPIBase)
	var apiURL string
	doi := strings.TrimPrefix(identifier, "https://doi.org/")
	byDOI := isDOI(doi)
	if byDOI {
		apiURL = base + "/works/https://doi.org/" + doi
	} else {
		q.Set("search", identifier)
		q.Set("per-page", "1")
		apiURL = base + "/works"
	}
	if o.Mailto != "" {
		q.Set("mailto", o.Mailto)
	}
	if len(q) > 0 {
		apiURL += "?" + q.Encode()
	}

	resp, err := o.Client.Get(ctx, apiURL, "application/json")
	if err != nil {
		return Resource{}, failure.Transient(o.Name(), "works lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resource{}, failure.FromStatus(o.Name(), resp.StatusCode)
	}

	var work openAlexWork
	if byDOI {
		if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
			return Resource{}, failure.New(failure.KindFatal, o.Name(), "parsing response", err)
		}
	} else {
		var sr openAlexSearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return Resource{}, failure.New(failure.KindFatal, o.Name(), "parsing response", err)
		}
		if len(sr.Results) == 0 {
			return Resource{}, failure.NotFound(o.Name(), "no matching works")
		}
		work = sr.Results[0]
	}

	if work.BestOALocation == nil || work.BestOALocation.PDFURL == "" {
		return Resource{}, failure.NotFound(o.Name(), "no open-access PDF")
	}
	return Resource{
		URL:          work.BestOALocation.PDFURL,
		PersistentID: strings.TrimPrefix(work.DOI, "https://doi.org/"),
	}, nil
}

// isDOI reports whether s looks like a bare DOI ("10.1145/1234567").
func isDOI(s string) bool {
	prefix, suffix, ok := strings.Cut(s, "/")
	return ok && suffix != "" && strings.HasPrefix(prefix, "10.") && !strings.ContainsAny(s, " \t")
}
