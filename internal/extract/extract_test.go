package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
	"github.com/JakeFAU/logohunter/internal/fetcher"
)

const homepage = `<!doctype html>
<html>
<head>
  <link rel="manifest" href="/site.webmanifest">
  <link rel="apple-touch-icon" href="/apple.png">
  <link rel="apple-touch-icon-precomposed" sizes="152x152" href="/apple-152.png">
  <link rel="icon" type="image/svg+xml" href="/favicon.svg">
  <link rel="shortcut icon" sizes="16x16 32x32" href="/favicon.ico">
  <link rel="stylesheet" href="/site.css">
  <meta property="og:image" content="https://cdn.example.com/share.jpg">
  <meta property="og:image:width" content="1200">
  <meta property="og:image:height" content="630">
  <meta name="twitter:image" content="/card-512x512.png">
  <meta name="msapplication-TileImage" content="/mstile-144x144.png">
</head>
<body>
  <header class="site-header">
    <a class="navbar-brand" href="/"><img src="/img/mark.png" width="64" height="64"></a>
    <img src="/img/Company-Logo.svg" alt="Company">
  </header>
  <main>
    <div class="navbar-brand"><img src="/img/acme-logo.png" alt="ACME logo"></div>
    <img src="/img/photo.jpg" alt="team">
    <img data-src="/img/lazy-logo.webp">
    <img src="data:image/png;base64,AAAA" class="logo">
  </main>
</body>
</html>`

const manifestJSON = `{
  "name": "Example",
  "icons": [
    {"src": "icons/icon-192.png", "sizes": "192x192", "type": "image/png"},
    {"src": "/icons/icon.svg", "sizes": "any", "type": "image/svg+xml", "purpose": "any maskable"},
    {"src": "", "sizes": "48x48"}
  ]
}`

func parseHomepage(t *testing.T) *document.Document {
	t.Helper()
	doc, err := document.ParseBytes([]byte(homepage), "https://example.com/")
	require.NoError(t, err)
	return doc
}

func byURL(cands []candidate.Candidate) map[string]candidate.Candidate {
	out := make(map[string]candidate.Candidate, len(cands))
	for _, c := range cands {
		out[c.URL] = c
	}
	return out
}

func manifestFetcher(body string) fetcher.Fetcher {
	return fetcher.Func(func(_ context.Context, url string) (fetcher.Response, error) {
		if url != "https://example.com/site.webmanifest" {
			return fetcher.Response{}, fetcher.StatusError(url, http.StatusNotFound)
		}
		return fetcher.Response{URL: url, FinalURL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
	})
}

func TestManifest(t *testing.T) {
	t.Parallel()

	m := &Manifest{Fetcher: manifestFetcher(manifestJSON)}
	got, err := m.Extract(context.Background(), parseHomepage(t))
	require.NoError(t, err)
	require.Len(t, got, 2)

	cands := byURL(got)
	png := cands["https://example.com/icons/icon-192.png"]
	assert.Equal(t, candidate.FormatPNG, png.Format)
	assert.Equal(t, candidate.Size{W: 192, H: 192}, png.Declared)
	assert.Equal(t, []candidate.Tag{candidate.TagManifestIcon}, png.Tags())

	svg := cands["https://example.com/icons/icon.svg"]
	assert.Equal(t, candidate.FormatSVG, svg.Format)
	assert.True(t, svg.Declared.IsZero())
	assert.Equal(t, []candidate.Tag{candidate.TagManifestIcon, candidate.TagManifestAny}, svg.Tags())
}

func TestManifestDefaultLocation(t *testing.T) {
	t.Parallel()

	var requested []string
	f := fetcher.Func(func(_ context.Context, url string) (fetcher.Response, error) {
		requested = append(requested, url)
		return fetcher.Response{URL: url, StatusCode: http.StatusOK, Body: []byte("\xef\xbb\xbf" + manifestJSON)}, nil
	})
	doc, err := document.ParseBytes([]byte(`<html><head></head></html>`), "https://www.example.com/home")
	require.NoError(t, err)

	got, err := (&Manifest{Fetcher: f}).Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.example.com/manifest.json"}, requested)
	assert.Len(t, got, 2)
}

func TestManifestFailures(t *testing.T) {
	t.Parallel()

	doc := parseHomepage(t)

	_, err := (&Manifest{}).Extract(context.Background(), doc)
	require.ErrorIs(t, err, ErrNoFetcher)

	_, err = (&Manifest{Fetcher: manifestFetcher(`{"icons": [`)}).Extract(context.Background(), doc)
	require.Error(t, err)

	missing := fetcher.Func(func(_ context.Context, url string) (fetcher.Response, error) {
		return fetcher.Response{}, fetcher.StatusError(url, http.StatusNotFound)
	})
	_, err = (&Manifest{Fetcher: missing}).Extract(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, fetcher.KindStatus, fetcher.KindOf(err))
}

func TestAppleTouchIcon(t *testing.T) {
	t.Parallel()

	got, err := AppleTouchIcon{}.Extract(context.Background(), parseHomepage(t))
	require.NoError(t, err)
	cands := byURL(got)
	require.Len(t, cands, 2)

	assert.Equal(t, candidate.Size{W: 180, H: 180}, cands["https://example.com/apple.png"].Declared)
	assert.Equal(t, candidate.Size{W: 152, H: 152}, cands["https://example.com/apple-152.png"].Declared)
	assert.True(t, cands["https://example.com/apple.png"].HasTag(candidate.TagAppleTouch))
}

func TestFavicon(t *testing.T) {
	t.Parallel()

	got, err := Favicon{}.Extract(context.Background(), parseHomepage(t))
	require.NoError(t, err)
	// svg + two sizes of the ico + the tile image.
	require.Len(t, got, 4)

	svg := got[0]
	assert.Equal(t, "https://example.com/favicon.svg", svg.URL)
	assert.Equal(t, candidate.FormatSVG, svg.Format)
	assert.Equal(t, []candidate.Tag{candidate.TagFaviconSVG}, svg.Tags())

	assert.Equal(t, got[1].URL, got[2].URL)
	assert.Equal(t, candidate.Size{W: 16, H: 16}, got[1].Declared)
	assert.Equal(t, candidate.Size{W: 32, H: 32}, got[2].Declared)
	assert.Equal(t, candidate.FormatICO, got[1].Format)

	tile := got[3]
	assert.Equal(t, "https://example.com/mstile-144x144.png", tile.URL)
	assert.Equal(t, candidate.Size{W: 144, H: 144}, tile.Declared)
	assert.True(t, tile.HasTag(candidate.TagFavicon))
}

func TestSocialMeta(t *testing.T) {
	t.Parallel()

	got, err := SocialMeta{}.Extract(context.Background(), parseHomepage(t))
	require.NoError(t, err)
	cands := byURL(got)
	require.Len(t, cands, 2)

	og := cands["https://cdn.example.com/share.jpg"]
	assert.Equal(t, candidate.Size{W: 1200, H: 630}, og.Declared)
	assert.True(t, og.SocialWide)
	assert.Equal(t, candidate.FormatJPEG, og.Format)

	card := cands["https://example.com/card-512x512.png"]
	assert.Equal(t, candidate.Size{W: 512, H: 512}, card.Declared)
	assert.False(t, card.SocialWide)
}

func TestDomHeuristic(t *testing.T) {
	t.Parallel()

	got, err := DomHeuristic{}.Extract(context.Background(), parseHomepage(t))
	require.NoError(t, err)
	cands := byURL(got)
	require.Len(t, cands, 4)

	mark := cands["https://example.com/img/mark.png"]
	assert.Equal(t, []candidate.Tag{candidate.TagLogoClassID}, mark.Tags())
	assert.Equal(t, candidate.Size{W: 64, H: 64}, mark.Declared)
	assert.Contains(t, mark.Evidence.Ancestors, "navbar-brand")

	named := cands["https://example.com/img/Company-Logo.svg"]
	assert.Equal(t, []candidate.Tag{candidate.TagLogoKeyword}, named.Tags())
	assert.Equal(t, candidate.FormatSVG, named.Format)

	both := cands["https://example.com/img/acme-logo.png"]
	assert.Equal(t, []candidate.Tag{candidate.TagLogoKeyword, candidate.TagLogoClassID}, both.Tags())
	assert.Equal(t, "ACME logo", both.Evidence.Alt)

	lazy := cands["https://example.com/img/lazy-logo.webp"]
	assert.Equal(t, candidate.FormatWEBP, lazy.Format)

	_, ok := cands["https://example.com/img/photo.jpg"]
	assert.False(t, ok)
}

func TestFallbackPaths(t *testing.T) {
	t.Parallel()

	doc, err := document.ParseBytes([]byte(`<head><base href="https://cdn.example.net/assets/"></head>`), "https://example.com/about")
	require.NoError(t, err)

	got, err := FallbackPaths{}.Extract(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, got, len(DefaultFallbackPaths))
	assert.Equal(t, "https://example.com/favicon.svg", got[0].URL)
	assert.Equal(t, candidate.FormatSVG, got[0].Format)
	assert.Equal(t, candidate.Size{W: 512, H: 512}, got[3].Declared)
	assert.Equal(t, "https://example.com/favicon.ico", got[4].URL)

	custom, err := FallbackPaths{Paths: []string{"/brand/mark.png"}}.Extract(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.True(t, custom[0].HasTag(candidate.TagFallback))
}

type stubExtractor struct {
	name  string
	cands []candidate.Candidate
	err   error
	panic bool
}

func (s stubExtractor) Name() string { return s.name }

func (s stubExtractor) Extract(context.Context, *document.Document) ([]candidate.Candidate, error) {
	if s.panic {
		panic("boom")
	}
	return s.cands, s.err
}

func TestRunContainsFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	good := candidate.New("https://example.com/a.png", candidate.FormatPNG, candidate.TagFavicon)
	untagged := candidate.New("https://example.com/b.png", candidate.FormatPNG)

	got := Run(context.Background(), parseHomepage(t), []Extractor{
		stubExtractor{name: "good", cands: []candidate.Candidate{good, untagged}},
		stubExtractor{name: "broken", cands: []candidate.Candidate{good}, err: errors.New("bad json")},
		stubExtractor{name: "panics", panic: true},
	}, zap.New(core))

	require.Len(t, got, 1)
	assert.Equal(t, good.URL, got[0].URL)
	assert.Equal(t, 2, logs.FilterMessage("Extractor failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Dropping invalid candidate").Len())
}

func TestRunIsOrderIndependent(t *testing.T) {
	t.Parallel()

	doc := parseHomepage(t)
	extractors := Default(manifestFetcher(manifestJSON), Config{})

	reversed := make([]Extractor, len(extractors))
	for i, ex := range extractors {
		reversed[len(extractors)-1-i] = ex
	}

	first := candidate.Merge(Run(context.Background(), doc, extractors, nil))
	second := candidate.Merge(Run(context.Background(), doc, reversed, nil))
	require.Equal(t, first, second)

	merged := byURL(first)
	svg := merged["https://example.com/favicon.svg"]
	assert.Equal(t, []candidate.Tag{candidate.TagFaviconSVG, candidate.TagFallback}, svg.Tags())
	ico := merged["https://example.com/favicon.ico"]
	assert.Equal(t, candidate.Size{W: 32, H: 32}, ico.Declared)
}

func TestDefaultSources(t *testing.T) {
	t.Parallel()

	all := Default(nil, Config{})
	require.Len(t, all, len(Names()))
	for i, ex := range all {
		assert.Equal(t, Names()[i], ex.Name())
	}

	some := Default(nil, Config{Sources: []string{"favicon", "apple_touch_icon", "bogus"}})
	require.Len(t, some, 2)
	assert.Equal(t, "apple_touch_icon", some[0].Name())
	assert.Equal(t, "favicon", some[1].Name())
}
