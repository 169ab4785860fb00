package extract

import (
	"context"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
)

// DefaultFallbackPaths are probed, in order, on every site.
var DefaultFallbackPaths = []string{
	"/favicon.svg",
	"/logo.svg",
	"/icon.svg",
	"/favicon-512x512.png",
	"/favicon.ico",
}

// FallbackPaths synthesizes candidates for conventional icon locations on the
// page origin. Existence is left to validation.
type FallbackPaths struct {
	Paths []string
}

// Name implements Extractor.
func (FallbackPaths) Name() string { return "fallback_paths" }

// Extract implements Extractor.
func (f FallbackPaths) Extract(_ context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	paths := f.Paths
	if len(paths) == 0 {
		paths = DefaultFallbackPaths
	}
	origin := doc.Page()
	var out []candidate.Candidate
	for _, p := range paths {
		src, err := candidate.Resolve(origin, p)
		if err != nil {
			continue
		}
		c := candidate.New(src, candidate.FormatFromExtension(src), candidate.TagFallback)
		c.Declared = sizeOrFilename(candidate.Size{}, src)
		out = append(out, c)
	}
	return out, nil
}
