package extract

import (
	"context"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
)

// appleTouchDefault is the platform size assumed when sizes is absent.
var appleTouchDefault = candidate.Size{W: 180, H: 180}

// AppleTouchIcon reads <link rel="apple-touch-icon"> and its precomposed
// variant.
type AppleTouchIcon struct{}

// Name implements Extractor.
func (AppleTouchIcon) Name() string { return "apple_touch_icon" }

// Extract implements Extractor.
func (AppleTouchIcon) Extract(_ context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	var out []candidate.Candidate
	for _, l := range doc.Links() {
		if !l.HasRel("apple-touch-icon", "apple-touch-icon-precomposed") {
			continue
		}
		src, ok := doc.Resolve(l.Href)
		if !ok {
			continue
		}
		c := candidate.New(src, candidate.InferFormat(src, l.Type), candidate.TagAppleTouch)
		c.Declared = candidate.Largest(candidate.ParseSizes(l.Sizes))
		if c.Declared.IsZero() {
			c.Declared = appleTouchDefault
		}
		out = append(out, c)
	}
	return out, nil
}

// Favicon reads <link rel="icon"> variants (including "shortcut icon" and
// "mask-icon") and the msapplication-TileImage meta tag.
type Favicon struct{}

// Name implements Extractor.
func (Favicon) Name() string { return "favicon" }

// Extract emits one candidate per declared size so the merger can keep the
// largest.
func (Favicon) Extract(_ context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	var out []candidate.Candidate
	for _, l := range doc.Links() {
		if !l.HasRel("icon", "mask-icon") {
			continue
		}
		src, ok := doc.Resolve(l.Href)
		if !ok {
			continue
		}
		format := candidate.InferFormat(src, l.Type)
		tag := candidate.TagFavicon
		if format.IsVector() || strings.Contains(strings.ToLower(l.Type), "svg") {
			format = candidate.FormatSVG
			tag = candidate.TagFaviconSVG
		}

		sizes := candidate.ParseSizes(l.Sizes)
		if len(sizes) == 0 {
			c := candidate.New(src, format, tag)
			c.Declared = sizeOrFilename(candidate.Size{}, src)
			out = append(out, c)
			continue
		}
		for _, size := range sizes {
			c := candidate.New(src, format, tag)
			c.Declared = size
			out = append(out, c)
		}
	}

	for _, content := range doc.Meta("msapplication-TileImage") {
		src, ok := doc.Resolve(content)
		if !ok {
			continue
		}
		c := candidate.New(src, candidate.InferFormat(src, ""), candidate.TagFavicon)
		c.Declared = sizeOrFilename(candidate.Size{}, src)
		out = append(out, c)
	}
	return out, nil
}
