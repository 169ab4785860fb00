package candidate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddTagKeepsPrecedenceOrder ensures tag order does not depend on insertion order.
func TestAddTagKeepsPrecedenceOrder(t *testing.T) {
	t.Parallel()

	a := New("https://example.com/a.png", FormatPNG, TagFallback, TagLogoKeyword, TagManifestIcon)
	b := New("https://example.com/a.png", FormatPNG, TagManifestIcon, TagFallback, TagLogoKeyword)
	b.AddTag(TagFallback)

	require.Equal(t, []Tag{TagManifestIcon, TagLogoKeyword, TagFallback}, a.Tags())
	require.Equal(t, a.Tags(), b.Tags())
	assert.True(t, a.HasAnyTag(TagSocial, TagLogoKeyword))
	assert.False(t, a.HasTag(TagSocial))
}

// TestSetScoreOnce verifies that the score cannot be reassigned.
func TestSetScoreOnce(t *testing.T) {
	t.Parallel()

	c := New("https://example.com/a.svg", FormatSVG, TagFaviconSVG)
	_, ok := c.Score()
	require.False(t, ok)

	require.NoError(t, c.SetScore(1100, []Hit{{Rule: "format/svg", Weight: 1000}, {Rule: "context/standard_favicon", Weight: 100}}))
	err := c.SetScore(5, nil)
	require.ErrorIs(t, err, ErrAlreadyScored)

	score, ok := c.Score()
	require.True(t, ok)
	assert.Equal(t, 1100, score)
	assert.Len(t, c.Breakdown(), 2)
}

// TestValidate covers the raw candidate invariants.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, New("", FormatPNG, TagFavicon).Validate(), ErrEmptyURL)
	require.ErrorIs(t, New("https://example.com/a.png", FormatPNG).Validate(), ErrNoContext)
	require.NoError(t, New("https://example.com/a.png", FormatPNG, TagFavicon).Validate())
}

// TestMarshalJSON checks the rendered shape used by the API.
func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	c := New("https://example.com/a.png", FormatPNG, TagAppleTouch)
	c.Declared = Size{W: 180, H: 180}
	require.NoError(t, c.SetScore(650, []Hit{{Rule: "format/png", Weight: 500}, {Rule: "context/apple_touch", Weight: 150}}))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "https://example.com/a.png", got["url"])
	assert.Equal(t, "PNG", got["format"])
	assert.Equal(t, "180x180", got["declared_size"])
	assert.EqualValues(t, 650, got["score"])
	assert.Equal(t, []any{"apple-touch"}, got["context"])
}

// TestFormatInference covers extension, MIME and embedded hints.
func TestFormatInference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		contentType string
		want        Format
	}{
		{name: "svg extension", url: "https://example.com/logo.SVG", want: FormatSVG},
		{name: "jpeg extension", url: "https://example.com/logo.jpeg?v=2", want: FormatJPEG},
		{name: "mime wins", url: "https://example.com/logo", contentType: "image/svg+xml; charset=utf-8", want: FormatSVG},
		{name: "ico mime", url: "https://example.com/favicon", contentType: "image/vnd.microsoft.icon", want: FormatICO},
		{name: "path hint", url: "https://cdn.example.com/render/png/brand", want: FormatPNG},
		{name: "unknown", url: "https://example.com/brand", want: FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InferFormat(tt.url, tt.contentType))
		})
	}
}

// TestParseFormat maps CLI tokens, including the JPG alias.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("jpg")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, "jpg", f.Extension())

	_, err = ParseFormat("tiff")
	require.Error(t, err)
}
