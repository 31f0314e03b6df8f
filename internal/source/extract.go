// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor is one named strategy for finding the artifact link on a mirror
// landing page. Find returns "" when the strategy does not apply.
type Extractor struct {
	Name string
	Find func(doc *html.Node) string
}

// DefaultExtractors returns the strategies mirrors are parsed with, in the
// order they are tried.
func DefaultExtractors() []Extractor {
	return []Extractor{
		{Name: "save-button", Find: findSaveButton},
		{Name: "embedded-frame", Find: findEmbeddedFrame},
		{Name: "pdf-link", Find: findPDFAnchor},
	}
}

// Extract runs extractors in order over doc and returns the first non-empty
// link together with the name of the strategy that found it.
func Extract(doc *html.Node, extractors []Extractor) (link, strategy string) {
	for _, ex := range extractors {
		if l := strings.TrimSpace(ex.Find(doc)); l != "" {
			return l, ex.Name
		}
	}
	return "", ""
}

// findSaveButton reads the first single-quoted value of the onclick handler
// of <button id="save">.
func findSaveButton(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Button && attr(n, "id") == "save"
	})
	if n == nil {
		return ""
	}
	parts := strings.Split(attr(n, "onclick"), "'")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// findEmbeddedFrame returns the src of the first iframe, else of the first embed.
func findEmbeddedFrame(doc *html.Node) string {
	for _, a := range []atom.Atom{atom.Iframe, atom.Embed} {
		n := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == a })
		if n != nil {
			if src := attr(n, "src"); src != "" {
				return src
			}
		}
	}
	return ""
}

// findPDFAnchor returns the href of the first anchor whose path ends in .pdf.
func findPDFAnchor(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.A {
			return false
		}
		href := attr(n, "href")
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		return strings.HasSuffix(strings.ToLower(href), ".pdf")
	})
	if n == nil {
		return ""
	}
	return attr(n, "href")
}

// findFirst walks the tree depth-first in document order.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// resolveLink makes link absolute against the mirror base. Protocol-relative
// links get https. It returns "" for links that cannot be parsed.
func resolveLink(mirror, link string) string {
	link = strings.TrimSpace(link)
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	base, err := url.Parse(strings.TrimRight(mirror, "/") + "/")
	if err != nil {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
