package extract

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
)

// containerKeywords mark an ancestor as a logo container.
var containerKeywords = []string{
	"logo", "brand", "icon", "header-logo", "site-logo", "company-logo", "navbar-brand",
}

const logoKeyword = "logo"

// DomHeuristic inspects every <img> for logo containers and logo naming.
type DomHeuristic struct{}

// Name implements Extractor.
func (DomHeuristic) Name() string { return "dom_heuristic" }

// Extract implements Extractor. An image matching both passes yields one
// candidate with both tags.
func (DomHeuristic) Extract(_ context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	var out []candidate.Candidate
	for _, img := range doc.Images() {
		src, ok := doc.Resolve(img.Src)
		if !ok {
			continue
		}
		inContainer := hasLogoContainer(img.Ancestors)
		named := namesLogo(src, img)
		if !inContainer && !named {
			continue
		}

		c := candidate.New(src, candidate.InferFormat(src, ""))
		if inContainer {
			c.AddTag(candidate.TagLogoClassID)
		}
		if named {
			c.AddTag(candidate.TagLogoKeyword)
		}
		if img.Width > 0 && img.Height > 0 {
			c.Declared = candidate.Size{W: img.Width, H: img.Height}
		}
		c.Evidence = evidenceFor(img)
		out = append(out, c)
	}
	return out, nil
}

func hasLogoContainer(ancestors []document.Element) bool {
	for _, a := range ancestors {
		if containsAny(a.Class, containerKeywords) || containsAny(a.ID, containerKeywords) {
			return true
		}
	}
	return false
}

func namesLogo(src string, img document.Image) bool {
	if strings.Contains(strings.ToLower(filename(src)), logoKeyword) {
		return true
	}
	return containsAny(img.Class, []string{logoKeyword}) ||
		containsAny(img.ID, []string{logoKeyword}) ||
		containsAny(img.Alt, []string{logoKeyword})
}

func evidenceFor(img document.Image) candidate.Evidence {
	var tokens []string
	for _, a := range img.Ancestors {
		tokens = append(tokens, strings.Fields(strings.ToLower(a.Class))...)
		if a.ID != "" {
			tokens = append(tokens, strings.ToLower(a.ID))
		}
	}
	return candidate.Evidence{
		Alt:       img.Alt,
		Class:     img.Class,
		ID:        img.ID,
		Ancestors: tokens,
		Depth:     img.Depth(),
	}
}

func containsAny(value string, keywords []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}
