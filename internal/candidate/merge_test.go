package candidate

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFixture() []Candidate {
	fav16 := New("https://example.com/favicon.png", FormatPNG, TagFavicon)
	fav16.Declared = Size{W: 16, H: 16}
	fav32 := New("https://example.com/favicon.png", FormatUnknown, TagFavicon)
	fav32.Declared = Size{W: 32, H: 32}
	fallback := New("https://example.com/favicon.png", FormatUnknown, TagFallback)

	classImg := New("https://example.com/img/brand.png", FormatPNG, TagLogoClassID)
	classImg.Evidence = Evidence{Ancestors: []string{"site-logo"}, Depth: 4}
	keywordImg := New("https://example.com/img/brand.png", FormatPNG, TagLogoKeyword)
	keywordImg.Evidence = Evidence{Alt: "Acme logo", Ancestors: []string{"header"}, Depth: 4}

	svgFallback := New("https://example.com/logo.svg", FormatUnknown, TagFallback)
	svgManifest := New("https://example.com/logo.svg", FormatSVG, TagManifestIcon)

	social := New("https://example.com/og.png", FormatPNG, TagSocial)
	social.SocialWide = true
	social.Declared = Size{W: 1200, H: 630}

	return []Candidate{fav16, fav32, fallback, classImg, keywordImg, svgFallback, svgManifest, social}
}

// TestMergeCombinesEvidence ensures duplicates collapse with union context and max size.
func TestMergeCombinesEvidence(t *testing.T) {
	t.Parallel()

	merged := Merge(rawFixture())
	require.Len(t, merged, 4)

	byURL := make(map[string]Candidate, len(merged))
	for _, c := range merged {
		byURL[c.URL] = c
	}

	fav := byURL["https://example.com/favicon.png"]
	assert.Equal(t, FormatPNG, fav.Format)
	assert.Equal(t, Size{W: 32, H: 32}, fav.Declared)
	assert.Equal(t, []Tag{TagFavicon, TagFallback}, fav.Tags())

	brand := byURL["https://example.com/img/brand.png"]
	assert.Equal(t, []Tag{TagLogoKeyword, TagLogoClassID}, brand.Tags())
	assert.Equal(t, "Acme logo", brand.Evidence.Alt)
	assert.Equal(t, []string{"header", "site-logo"}, brand.Evidence.Ancestors)
	assert.Equal(t, 4, brand.Evidence.Depth)

	logo := byURL["https://example.com/logo.svg"]
	assert.Equal(t, FormatSVG, logo.Format)
	assert.Equal(t, []Tag{TagManifestIcon, TagFallback}, logo.Tags())

	assert.True(t, byURL["https://example.com/og.png"].SocialWide)
	for _, c := range merged {
		assert.False(t, c.Scored())
	}
}

// TestMergeOrderIndependent shuffles the raw list and expects an identical result.
func TestMergeOrderIndependent(t *testing.T) {
	t.Parallel()

	raw := rawFixture()
	want := Merge(raw)
	rng := rand.New(rand.NewPCG(7, 11))

	for range 50 {
		shuffled := append([]Candidate(nil), raw...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		require.Equal(t, want, Merge(shuffled))
	}
}

// TestMergeFormatPrecedence covers disagreeing non-SVG hints.
func TestMergeFormatPrecedence(t *testing.T) {
	t.Parallel()

	ico := New("https://example.com/icon", FormatICO, TagFavicon)
	png := New("https://example.com/icon", FormatPNG, TagManifestIcon)
	unknown := New("https://example.com/icon", FormatUnknown, TagFallback)

	got := Merge([]Candidate{ico, unknown, png})
	require.Len(t, got, 1)
	assert.Equal(t, FormatPNG, got[0].Format)

	got = Merge([]Candidate{unknown})
	assert.Equal(t, FormatUnknown, got[0].Format)
}

func TestParseSizes(t *testing.T) {
	t.Parallel()

	sizes := ParseSizes("16x16 32X32 any 48×48 bogus 0x10")
	assert.Equal(t, []Size{{W: 16, H: 16}, {W: 32, H: 32}, {W: 48, H: 48}}, sizes)
	assert.Equal(t, Size{W: 48, H: 48}, Largest(sizes))
	assert.True(t, Largest(nil).IsZero())

	s, ok := SizeFromFilename("https://example.com/icons/favicon-512x512.png?v=1")
	require.True(t, ok)
	assert.Equal(t, Size{W: 512, H: 512}, s)

	_, ok = SizeFromFilename("https://example.com/1x1.gif")
	assert.False(t, ok)
}

func TestSizeGeometry(t *testing.T) {
	t.Parallel()

	s := Size{W: 300, H: 100}
	assert.InDelta(t, 3.0, s.Aspect(), 0.001)
	assert.True(t, s.Wide(1.5))
	assert.False(t, Size{W: 100, H: 300}.Wide(1.5))
	assert.Equal(t, 30000, s.Area())
	assert.Equal(t, "300x100", s.String())
}
