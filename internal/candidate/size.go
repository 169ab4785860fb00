package candidate

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Size is a width and height in pixels. The zero value means "not declared".
type Size struct {
	W int `json:"width"`
	H int `json:"height"`
}

// IsZero reports whether no size is known.
func (s Size) IsZero() bool {
	return s.W <= 0 || s.H <= 0
}

// Area returns W*H.
func (s Size) Area() int {
	if s.IsZero() {
		return 0
	}
	return s.W * s.H
}

// MaxSide returns the longer side.
func (s Size) MaxSide() int {
	return max(s.W, s.H)
}

// MinSide returns the shorter side.
func (s Size) MinSide() int {
	return min(s.W, s.H)
}

// Aspect returns the long side over the short side, so 1 is square.
func (s Size) Aspect() float64 {
	if s.IsZero() {
		return 0
	}
	return float64(s.MaxSide()) / float64(s.MinSide())
}

// Wide reports whether the size is wider than tall by more than ratio.
func (s Size) Wide(ratio float64) bool {
	if s.IsZero() {
		return false
	}
	return float64(s.W)/float64(s.H) > ratio
}

// String renders WxH.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.W, s.H)
}

// larger picks the larger of two sizes by area, then width.
func larger(a, b Size) Size {
	switch {
	case a.Area() > b.Area():
		return a
	case b.Area() > a.Area():
		return b
	case b.W > a.W:
		return b
	default:
		return a
	}
}

// ParseSize reads a single "WxH" token.
func ParseSize(token string) (Size, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	token = strings.ReplaceAll(token, "×", "x")
	w, h, ok := strings.Cut(token, "x")
	if !ok {
		return Size{}, false
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return Size{}, false
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return Size{}, false
	}
	return Size{W: width, H: height}, true
}

// ParseSizes reads a sizes attribute such as "16x16 32x32 any". Unparseable
// tokens, including "any", are skipped.
func ParseSizes(attr string) []Size {
	var sizes []Size
	for _, token := range strings.Fields(attr) {
		if s, ok := ParseSize(token); ok {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

// Largest returns the size with the greatest area, or the zero Size.
func Largest(sizes []Size) Size {
	var best Size
	for _, s := range sizes {
		best = larger(best, s)
	}
	return best
}

var filenameSize = regexp.MustCompile(`(\d{2,4})[xX](\d{2,4})`)

// SizeFromFilename extracts a size such as 512x512 from the last path segment.
func SizeFromFilename(rawURL string) (Size, bool) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	m := filenameSize.FindStringSubmatch(path.Base(p))
	if m == nil {
		return Size{}, false
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	if errW != nil || errH != nil || w == 0 || h == 0 {
		return Size{}, false
	}
	return Size{W: w, H: h}, true
}
