// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// testClient returns a client with transport retries disabled so status
// codes reach the adapter unchanged.
func testClient(ts *httptest.Server) *httputil.Client {
	return httputil.NewClient(ts.Client(), types.HTTPConfig{
		UserAgent:        "paperfetch-test/0.1",
		TransportRetries: -1,
	})
}

// overrideBaseURLs points every API base at url and returns a restore func.
func overrideBaseURLs(url string) func() {
	oldCrossref, oldArxiv, oldOpenAlex, oldSemantic := crossrefAPIBase, arxivAPIBase, openAlexAPIBase, semanticAPIBase
	crossrefAPIBase = url
	arxivAPIBase = url + "/api/query"
	openAlexAPIBase = url
	semanticAPIBase = url + "/graph/v1/paper/search"
	return func() {
		crossrefAPIBase, arxivAPIBase, openAlexAPIBase, semanticAPIBase = oldCrossref, oldArxiv, oldOpenAlex, oldSemantic
	}
}

const sampleCrossRefSearch = `{
  "status": "ok",
  "message": {
    "items": [
      {"DOI": "10.1038/nature14539", "title": ["Deep learning"]}
    ]
  }
}`

const sampleArxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All You Need</title>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

const sampleArxivNoPDF = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
  </entry>
</feed>`

const sampleArxivEmpty = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func TestCrossRef_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantDOI  string
		wantKind failure.Kind
	}{
		{name: "match", status: http.StatusOK, body: sampleCrossRefSearch, wantDOI: "10.1038/nature14539"},
		{name: "no items", status: http.StatusOK, body: `{"message":{"items":[]}}`, wantKind: failure.KindNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantKind: failure.KindTransient},
		{name: "server error", status: http.StatusServiceUnavailable, body: `{}`, wantKind: failure.KindTransient},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, wantKind: failure.KindNotFound},
		{name: "malformed", status: http.StatusOK, body: `{"message":`, wantKind: failure.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTitle, gotMailto, gotRows string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/works", r.URL.Path)
				gotTitle = r.URL.Query().Get("query.title")
				gotMailto = r.URL.Query().Get("mailto")
				gotRows = r.URL.Query().Get("rows")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			defer overrideBaseURLs(ts.URL)()

			cr := &CrossRef{Client: testClient(ts), Mailto: "team@example.org"}
			res, err := cr.Resolve(context.Background(), "Deep Learning")

			assert.Equal(t, "Deep Learning", gotTitle)
			assert.Equal(t, "team@example.org", gotMailto)
			assert.Equal(t, "1", gotRows)
			if tt.wantKind != failure.KindNone {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, failure.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDOI, res.PersistentID)
			assert.Empty(t, res.URL)
		})
	}
}

func TestCrossRef_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	client := testClient(ts)
	ts.Close()
	defer overrideBaseURLs(ts.URL)()

	_, err := (&CrossRef{Client: client}).Resolve(context.Background(), "Anything")
	require.Error(t, err)
	assert.Equal(t, failure.KindTransient, failure.KindOf(err))
}

func TestArxiv_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantURL  string
		wantKind failure.Kind
	}{
		{name: "pdf link upgraded to https", body: sampleArxivFeed, wantURL: "https://arxiv.org/pdf/1706.03762v7"},
		{name: "entry without pdf", body: sampleArxivNoPDF, wantKind: failure.KindNotFound},
		{name: "no entries", body: sampleArxivEmpty, wantKind: failure.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/query", r.URL.Path)
				gotQuery = r.URL.Query().Get("search_query")
				w.Header().Set("Content-Type", "application/atom+xml")
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			defer overrideBaseURLs(ts.URL)()

			res, err := (&Arxiv{Client: testClient(ts)}).Resolve(context.Background(), `Attention Is "All" You Need`)

			assert.Equal(t, `ti:"Attention Is All You Need"`, gotQuery)
			if tt.wantKind != failure.KindNone {
				assert.Equal(t, tt.wantKind, failure.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, res.URL)
			assert.Equal(t, "http://arxiv.org/abs/1706.03762v7", res.PersistentID)
		})
	}
}

func TestOpenAlex_ResolveByTitle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "Deep Learning", r.URL.Query().Get("search"))
		assert.Equal(t, "1", r.URL.Query().Get("per-page"))
		w.Write([]byte(`{"results":[{"id":"https://openalex.org/W1","doi":"https://doi.org/10.1038/nature14539",
			"best_oa_location":{"pdf_url":"https://example.com/oa.pdf","landing_page_url":"https://example.com/"}}]}`))
	}))
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	res, err := (&OpenAlex{Client: testClient(ts)}).Resolve(context.Background(), "Deep Learning")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/oa.pdf", res.URL)
	assert.Equal(t, "10.1038/nature14539", res.PersistentID)
}

func TestOpenAlex_ResolveByDOI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/https://doi.org/10.1145/1234567", r.URL.Path)
		assert.Equal(t, "team@example.org", r.URL.Query().Get("mailto"))
		w.Write([]byte(`{"doi":"https://doi.org/10.1145/1234567","best_oa_location":{"pdf_url":"https://example.com/p.pdf"}}`))
	}))
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	oa := &OpenAlex{Client: testClient(ts), Mailto: "team@example.org"}
	res, err := oa.Resolve(context.Background(), "10.1145/1234567")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p.pdf", res.URL)
}

func TestOpenAlex_NotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no results", body: `{"results":[]}`},
		{name: "no OA location", body: `{"results":[{"best_oa_location":null}]}`},
		{name: "OA location without PDF", body: `{"results":[{"best_oa_location":{"pdf_url":"","landing_page_url":"https://x"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			defer overrideBaseURLs(ts.URL)()

			_, err := (&OpenAlex{Client: testClient(ts)}).Resolve(context.Background(), "Some Title")
			assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
		})
	}
}

func TestIsDOI(t *testing.T) {
	assert.True(t, isDOI("10.1145/1234567.1234568"))
	assert.False(t, isDOI("Deep Learning"))
	assert.False(t, isDOI("10.1145/"))
	assert.False(t, isDOI("10.1/with space"))
}

func TestSemanticScholar_Resolve(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graph/v1/paper/search", r.URL.Path)
		assert.Equal(t, "Attention Is All You Need", r.URL.Query().Get("query"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Contains(t, r.URL.Query().Get("fields"), "openAccessPdf")
		assert.Equal(t, "sk_test", r.Header.Get("x-api-key"))
		assert.Equal(t, "paperfetch-test/0.1", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"total":1,"data":[{"paperId":"204e3073","title":"Attention Is All You Need",
			"externalIds":{"ArXiv":"1706.03762"},
			"openAccessPdf":{"url":"http://arxiv.org/pdf/1706.03762","status":"GREEN"}}]}`))
	}))
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	s := &SemanticScholar{Client: testClient(ts), APIKey: "sk_test"}
	res, err := s.Resolve(context.Background(), "Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762", res.URL)
	assert.Equal(t, "1706.03762", res.PersistentID)
}

func TestSemanticScholar_PrefersDOI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-api-key"))
		w.Write([]byte(`{"data":[{"paperId":"p1","externalIds":{"DOI":"10.1/x","ArXiv":"1234.5678"},
			"openAccessPdf":{"url":"https://example.com/x.pdf"}}]}`))
	}))
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	res, err := (&SemanticScholar{Client: testClient(ts)}).Resolve(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "10.1/x", res.PersistentID)
}

func TestSemanticScholar_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{name: "no papers", status: http.StatusOK, body: `{"total":0,"data":[]}`, want: failure.KindNotFound},
		{name: "no open-access PDF", status: http.StatusOK, body: `{"data":[{"paperId":"p1","openAccessPdf":null}]}`, want: failure.KindNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, want: failure.KindTransient},
		{name: "bad request", status: http.StatusBadRequest, want: failure.KindNotFound},
		{name: "malformed body", status: http.StatusOK, body: `{"data":`, want: failure.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			defer overrideBaseURLs(ts.URL)()

			_, err := (&SemanticScholar{Client: testClient(ts)}).Resolve(context.Background(), "Some Title")
			assert.Equal(t, tt.want, failure.KindOf(err))
		})
	}
}

func TestEndpointOverride(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/proxy/works":
			w.Write([]byte(`{"results":[{"best_oa_location":{"pdf_url":"https://example.com/oa.pdf"}}]}`))
		case "/arxiv":
			w.Write([]byte(sampleArxivFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := testClient(ts)
	_, err := (&OpenAlex{Client: c, Endpoint: ts.URL + "/proxy/"}).Resolve(context.Background(), "X")
	require.NoError(t, err)
	_, err = (&Arxiv{Client: c, Endpoint: ts.URL + "/arxiv"}).Resolve(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, []string{"/proxy/works", "/arxiv"}, paths)
	assert.Equal(t, "https://api.openalex.org", endpoint("", openAlexAPIBase))
}
