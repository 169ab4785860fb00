// Package document wraps a parsed HTML page with typed accessors for the
// markup the extractors read. Missing attributes are reported as absent
// values, never as errors.
package document

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

// Document is a read-only parsed page. It is safe for concurrent readers.
type Document struct {
	doc  *goquery.Document
	page *url.URL
	base *url.URL
}

// Link is a <link> element with an href.
type Link struct {
	Rel   []string
	Href  string
	Type  string
	Sizes string
}

// HasRel reports whether any of tokens appears in the rel attribute.
func (l Link) HasRel(tokens ...string) bool {
	for _, r := range l.Rel {
		for _, t := range tokens {
			if r == t {
				return true
			}
		}
	}
	return false
}

// Element is the identifying markup of an ancestor element.
type Element struct {
	Tag   string
	Class string
	ID    string
}

// Image is an <img> element.
type Image struct {
	Src    string
	Alt    string
	Class  string
	ID     string
	Width  int
	Height int
	// Ancestors are ordered from the parent outwards.
	Ancestors []Element
}

// Depth is the number of enclosing elements.
func (i Image) Depth() int {
	return len(i.Ancestors)
}

// Parse reads HTML from r. Relative references resolve against baseURL, or
// against a <base href> when the page declares one.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	page := *base
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, perr := url.Parse(strings.TrimSpace(href)); perr == nil {
			base = base.ResolveReference(ref)
		}
	}
	return &Document{doc: doc, page: &page, base: base}, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(body []byte, baseURL string) (*Document, error) {
	return Parse(bytes.NewReader(body), baseURL)
}

// Empty returns a document with no markup, used when the homepage cannot be
// fetched so URL-only extractors still run.
func Empty(baseURL string) (*Document, error) {
	return Parse(strings.NewReader(""), baseURL)
}

// Base returns a copy of the resolution base.
func (d *Document) Base() *url.URL {
	u := *d.base
	return &u
}

// Page returns a copy of the URL the page was fetched from. Unlike Base it
// ignores <base href>, so site-relative probes stay on the site's origin.
func (d *Document) Page() *url.URL {
	u := *d.page
	return &u
}

// Resolve makes ref absolute and canonical. It reports false for empty,
// data: and other unusable references.
func (d *Document) Resolve(ref string) (string, bool) {
	resolved, err := candidate.Resolve(d.base, ref)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// Links returns every <link> with a non-empty href in document order.
func (d *Document) Links() []Link {
	var links []Link
	d.doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		links = append(links, Link{
			Rel:   strings.Fields(strings.ToLower(s.AttrOr("rel", ""))),
			Href:  href,
			Type:  strings.TrimSpace(s.AttrOr("type", "")),
			Sizes: strings.TrimSpace(s.AttrOr("sizes", "")),
		})
	})
	return links
}

// Meta returns the content of <meta> elements whose property or name matches
// one of keys, case-insensitively, in document order.
func (d *Document) Meta(keys ...string) []string {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[strings.ToLower(k)] = struct{}{}
	}
	var values []string
	d.doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("property", "")
		if key == "" {
			key = s.AttrOr("name", "")
		}
		if _, ok := want[strings.ToLower(strings.TrimSpace(key))]; !ok {
			return
		}
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			values = append(values, content)
		}
	})
	return values
}

// FirstMeta returns the first Meta value for keys.
func (d *Document) FirstMeta(keys ...string) (string, bool) {
	values := d.Meta(keys...)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Images returns every <img> with a src or data-src in document order.
func (d *Document) Images() []Image {
	var images []Image
	d.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" {
			return
		}
		img := Image{
			Src:    src,
			Alt:    strings.TrimSpace(s.AttrOr("alt", "")),
			Class:  strings.TrimSpace(s.AttrOr("class", "")),
			ID:     strings.TrimSpace(s.AttrOr("id", "")),
			Width:  intAttr(s, "width"),
			Height: intAttr(s, "height"),
		}
		s.Parents().Each(func(_ int, p *goquery.Selection) {
			img.Ancestors = append(img.Ancestors, Element{
				Tag:   goquery.NodeName(p),
				Class: strings.TrimSpace(p.AttrOr("class", "")),
				ID:    strings.TrimSpace(p.AttrOr("id", "")),
			})
		})
		images = append(images, img)
	})
	return images
}

// intAttr parses a pixel attribute such as width="64" or width="64px".
func intAttr(s *goquery.Selection, name string) int {
	raw, ok := s.Attr(name)
	if !ok {
		return 0
	}
	raw = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), "px")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
