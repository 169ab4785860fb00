// Package candidate defines the logo candidate record shared by every stage of
// the discovery pipeline, along with URL canonicalization and merging.
package candidate

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrAlreadyScored is returned when a score is assigned twice.
	ErrAlreadyScored = errors.New("candidate already scored")
	// ErrEmptyURL marks a candidate without a URL.
	ErrEmptyURL = errors.New("candidate url is empty")
	// ErrNoContext marks a candidate that carries no provenance tag.
	ErrNoContext = errors.New("candidate has no context tags")
)

// Tag records which extractor found a candidate.
type Tag string

// Context tags in precedence order.
const (
	TagManifestIcon Tag = "manifest-icon"
	TagManifestAny  Tag = "manifest-any"
	TagAppleTouch   Tag = "apple-touch"
	TagFaviconSVG   Tag = "favicon-svg"
	TagFavicon      Tag = "favicon"
	TagLogoKeyword  Tag = "logo-keyword"
	TagLogoClassID  Tag = "logo-class-id"
	TagSocial       Tag = "social-og"
	TagFallback     Tag = "fallback-path"
)

var tagOrder = map[Tag]int{
	TagManifestIcon: 0,
	TagManifestAny:  1,
	TagAppleTouch:   2,
	TagFaviconSVG:   3,
	TagFavicon:      4,
	TagLogoKeyword:  5,
	TagLogoClassID:  6,
	TagSocial:       7,
	TagFallback:     8,
}

func tagRank(t Tag) int {
	if r, ok := tagOrder[t]; ok {
		return r
	}
	return len(tagOrder)
}

func compareTags(a, b Tag) int {
	if ra, rb := tagRank(a), tagRank(b); ra != rb {
		return ra - rb
	}
	return strings.Compare(string(a), string(b))
}

// Hit is one rule that fired while scoring a candidate.
type Hit struct {
	Rule   string `json:"rule"`
	Weight int    `json:"weight"`
}

// Evidence is the markup surrounding an <img> candidate.
type Evidence struct {
	Alt   string
	Class string
	ID    string
	// Ancestors holds lower-cased class and id tokens of enclosing elements.
	Ancestors []string
	// Depth is the element depth below <html>; zero when unknown.
	Depth int
}

// IsZero reports whether no evidence was recorded.
func (e Evidence) IsZero() bool {
	return e.Alt == "" && e.Class == "" && e.ID == "" && len(e.Ancestors) == 0 && e.Depth == 0
}

// merge combines two evidence records. The result does not depend on argument order.
func (e Evidence) merge(o Evidence) Evidence {
	out := Evidence{
		Alt:   pickString(e.Alt, o.Alt),
		Class: pickString(e.Class, o.Class),
		ID:    pickString(e.ID, o.ID),
		Depth: pickDepth(e.Depth, o.Depth),
	}
	if len(e.Ancestors)+len(o.Ancestors) > 0 {
		tokens := append(slices.Clone(e.Ancestors), o.Ancestors...)
		slices.Sort(tokens)
		out.Ancestors = slices.Compact(tokens)
	}
	return out
}

func pickString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	default:
		return a
	}
}

func pickDepth(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

// Candidate is one discovered image reference and the evidence behind it.
type Candidate struct {
	// URL is canonical and doubles as the deduplication key.
	URL        string
	Format     Format
	Declared   Size
	Evidence   Evidence
	SocialWide bool

	tags      []Tag
	score     int
	scored    bool
	breakdown []Hit
}

// New returns an unscored candidate carrying the given tags.
func New(url string, format Format, tags ...Tag) Candidate {
	c := Candidate{URL: url, Format: format}
	for _, t := range tags {
		c.AddTag(t)
	}
	return c
}

// AddTag records a provenance tag. Tags are never removed.
func (c *Candidate) AddTag(t Tag) {
	if t == "" || c.HasTag(t) {
		return
	}
	c.tags = append(c.tags, t)
	slices.SortFunc(c.tags, compareTags)
}

// HasTag reports whether the candidate carries t.
func (c Candidate) HasTag(t Tag) bool {
	return slices.Contains(c.tags, t)
}

// HasAnyTag reports whether the candidate carries at least one of tags.
func (c Candidate) HasAnyTag(tags ...Tag) bool {
	for _, t := range tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

// Tags returns the context tags in precedence order.
func (c Candidate) Tags() []Tag {
	return slices.Clone(c.tags)
}

// Score returns the assigned score and whether scoring has happened.
func (c Candidate) Score() (int, bool) {
	return c.score, c.scored
}

// Scored reports whether SetScore has been called.
func (c Candidate) Scored() bool {
	return c.scored
}

// Breakdown returns the rules that fired, in evaluation order.
func (c Candidate) Breakdown() []Hit {
	return slices.Clone(c.breakdown)
}

// SetScore assigns the score once.
func (c *Candidate) SetScore(score int, hits []Hit) error {
	if c.scored {
		return fmt.Errorf("%s: %w", c.URL, ErrAlreadyScored)
	}
	c.score = score
	c.breakdown = slices.Clone(hits)
	c.scored = true
	return nil
}

// Validate checks the invariants of a raw candidate.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrEmptyURL
	}
	if len(c.tags) == 0 {
		return fmt.Errorf("%s: %w", c.URL, ErrNoContext)
	}
	return nil
}

type candidateJSON struct {
	URL          string `json:"url"`
	Format       Format `json:"format"`
	DeclaredSize string `json:"declared_size,omitempty"`
	Context      []Tag  `json:"context"`
	SocialWide   bool   `json:"social_wide,omitempty"`
	Score        *int   `json:"score,omitempty"`
	Breakdown    []Hit  `json:"breakdown,omitempty"`
}

// MarshalJSON renders the candidate for the API and CLI.
func (c Candidate) MarshalJSON() ([]byte, error) {
	out := candidateJSON{
		URL:        c.URL,
		Format:     c.Format,
		Context:    c.Tags(),
		SocialWide: c.SocialWide,
		Breakdown:  c.Breakdown(),
	}
	if !c.Declared.IsZero() {
		out.DeclaredSize = c.Declared.String()
	}
	if c.scored {
		score := c.score
		out.Score = &score
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}
	return data, nil
}
