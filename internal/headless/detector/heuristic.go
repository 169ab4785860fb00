// Package detector decides when a homepage must be rendered headlessly before
// its icon markup can be read.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/logohunter/internal/fetcher"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// iconSelector matches markup that already names an icon or logo; pages with
// any of it are usable without rendering.
const iconSelector = `link[rel~="icon"], link[rel~="apple-touch-icon"], ` +
	`link[rel~="apple-touch-icon-precomposed"], link[rel="manifest"], ` +
	`meta[property="og:image"], img[src*="logo" i], img[class*="logo" i]`

// ShouldPromote decides whether a headless fetch is required. Rendered
// responses are never promoted again.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	if resp.Rendered || resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if hasIconMarkup(body) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func hasIconMarkup(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(iconSelector).Length() > 0
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		end := strings.IndexByte(lower[start:], '>')
		if end == -1 {
			// Malformed open tag; the rest of the page is script.
			covered += total - start
			break
		}
		contentStart := start + end + 1
		next := total
		if closeAt := strings.Index(lower[contentStart:], closeTag); closeAt != -1 {
			next = contentStart + closeAt + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
