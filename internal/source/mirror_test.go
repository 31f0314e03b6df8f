// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/pdiddy/paperfetch/internal/failure"
	"github.com/pdiddy/paperfetch/internal/mirror"
)

func parseHTML(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name         string
		page         string
		wantLink     string
		wantStrategy string
	}{
		{
			name:         "save button",
			page:         `<div><button id="save" onclick="location.href='//cdn.example/a.pdf?download=true'">save</button><iframe src="/other.pdf"></iframe></div>`,
			wantLink:     "//cdn.example/a.pdf?download=true",
			wantStrategy: "save-button",
		},
		{
			name:         "iframe",
			page:         `<div id="article"><iframe src="/downloads/b.pdf#view=FitH"></iframe></div>`,
			wantLink:     "/downloads/b.pdf#view=FitH",
			wantStrategy: "embedded-frame",
		},
		{
			name:         "embed when no iframe",
			page:         `<embed type="application/pdf" src="https://cdn.example/c.pdf">`,
			wantLink:     "https://cdn.example/c.pdf",
			wantStrategy: "embedded-frame",
		},
		{
			name:         "pdf anchor with query",
			page:         `<a href="/about">about</a><a href="files/d.PDF?token=1">get</a>`,
			wantLink:     "files/d.PDF?token=1",
			wantStrategy: "pdf-link",
		},
		{
			name:         "save button without quotes falls through",
			page:         `<button id="save" onclick="go()">x</button><a href="e.pdf">e</a>`,
			wantLink:     "e.pdf",
			wantStrategy: "pdf-link",
		},
		{
			name: "nothing",
			page: `<p>article not found</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, strategy := Extract(parseHTML(t, tt.page), DefaultExtractors())
			assert.Equal(t, tt.wantLink, link)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		mirror, link, want string
	}{
		{"https://m.example", "//cdn.example/a.pdf", "https://cdn.example/a.pdf"},
		{"https://m.example/", "/downloads/b.pdf", "https://m.example/downloads/b.pdf"},
		{"https://m.example", "files/c.pdf", "https://m.example/files/c.pdf"},
		{"https://m.example", "https://other.example/d.pdf", "https://other.example/d.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveLink(tt.mirror, tt.link), tt.link)
	}
}

// mirrorServer serves a landing page for every path and counts requests.
func mirrorServer(t *testing.T, status int, page string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		w.Write([]byte(page))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestMirrorHost_FallsThroughToWorkingMirror(t *testing.T) {
	dead, deadCalls := mirrorServer(t, http.StatusNotFound, "")
	good, goodCalls := mirrorServer(t, http.StatusOK, `<iframe src="/files/x.pdf"></iframe>`)

	tracker := mirror.NewTracker([]string{dead.URL, good.URL})
	m := &MirrorHost{Client: testClient(good), Tracker: tracker}

	res, err := m.Resolve(context.Background(), "10.1038/nature14539")
	require.NoError(t, err)
	assert.Equal(t, good.URL+"/files/x.pdf", res.URL)
	assert.Equal(t, good.URL, res.Mirror)
	assert.Equal(t, []string{good.URL}, tracker.KnownGood())

	// The known-good mirror is tried first from now on.
	_, err = m.Resolve(context.Background(), "10.1038/other")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(deadCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(goodCalls))
}

func TestMirrorHost_RequestPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`<a href="x.pdf">x</a>`))
	}))
	defer ts.Close()

	m := &MirrorHost{Client: testClient(ts), Tracker: mirror.NewTracker([]string{ts.URL + "/"})}
	_, err := m.Resolve(context.Background(), "Deep Learning")
	require.NoError(t, err)
	assert.Equal(t, "/Deep%20Learning", gotPath)
}

func TestMirrorHost_DirectPDF(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer ts.Close()

	m := &MirrorHost{Client: testClient(ts), Tracker: mirror.NewTracker([]string{ts.URL})}
	res, err := m.Resolve(context.Background(), "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/10.1/x", res.URL)
}

func TestMirrorHost_Failures(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		pages    []string
		want     failure.Kind
	}{
		{name: "all not found", statuses: []int{404, 404}, pages: []string{"", ""}, want: failure.KindNotFound},
		{name: "page without link", statuses: []int{200}, pages: []string{"<p>nothing</p>"}, want: failure.KindNotFound},
		{name: "all unavailable", statuses: []int{503, 429}, pages: []string{"", ""}, want: failure.KindTransient},
		{name: "blocked", statuses: []int{403}, pages: []string{""}, want: failure.KindTransient},
		{name: "definitive wins over transient", statuses: []int{503, 404}, pages: []string{"", ""}, want: failure.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var urls []string
			var last *httptest.Server
			for i, status := range tt.statuses {
				ts, _ := mirrorServer(t, status, tt.pages[i])
				urls = append(urls, ts.URL)
				last = ts
			}
			tracker := mirror.NewTracker(urls)
			m := &MirrorHost{Client: testClient(last), Tracker: tracker}

			_, err := m.Resolve(context.Background(), "10.1/x")
			assert.Equal(t, tt.want, failure.KindOf(err))
			assert.Empty(t, tracker.KnownGood())
		})
	}
}

func TestMirrorHost_NoMirrors(t *testing.T) {
	m := &MirrorHost{Tracker: mirror.NewTracker(nil)}
	_, err := m.Resolve(context.Background(), "x")
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestEscapeIdentifier(t *testing.T) {
	assert.Equal(t, "10.1038/nature14539", escapeIdentifier("10.1038/nature14539"))
	assert.Equal(t, "A%20Title%3F", escapeIdentifier(" A Title? "))
}
