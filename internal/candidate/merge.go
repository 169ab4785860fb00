package candidate

import (
	"slices"
	"strings"
)

// Merge collapses raw candidates into one candidate per URL.
//
// Within a group the format is SVG when any member says so, otherwise the
// first known format in PNG, WEBP, ICO, JPEG, GIF order. The declared size is
// the largest by area and the context is the union of every member's tags.
// The result is sorted by URL and is the same for any input order.
// Scores on the inputs are ignored.
func Merge(raw []Candidate) []Candidate {
	groups := make(map[string]*Candidate, len(raw))
	for _, c := range raw {
		if c.URL == "" {
			continue
		}
		g, ok := groups[c.URL]
		if !ok {
			merged := Candidate{
				URL:        c.URL,
				Format:     c.Format,
				Declared:   c.Declared,
				Evidence:   c.Evidence.merge(Evidence{}),
				SocialWide: c.SocialWide,
			}
			for _, t := range c.tags {
				merged.AddTag(t)
			}
			groups[c.URL] = &merged
			continue
		}
		g.Format = mergeFormat(g.Format, c.Format)
		g.Declared = larger(g.Declared, c.Declared)
		g.Evidence = g.Evidence.merge(c.Evidence)
		g.SocialWide = g.SocialWide || c.SocialWide
		for _, t := range c.tags {
			g.AddTag(t)
		}
	}

	out := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		if !g.Format.Known() {
			g.Format = FormatUnknown
		}
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

func mergeFormat(a, b Format) Format {
	for _, f := range mergePrecedence {
		if a == f || b == f {
			return f
		}
	}
	return FormatUnknown
}
