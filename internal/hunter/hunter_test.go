package hunter

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/fetcher"
	collyfetcher "github.com/JakeFAU/logohunter/internal/fetcher/colly"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/scoring"
	"github.com/JakeFAU/logohunter/internal/validation"
)

const scenarioPage = `<!doctype html>
<html><head>
<title>Example</title>
<link rel="apple-touch-icon" sizes="180x180" href="/a.png">
<link rel="icon" type="image/svg+xml" href="/b.svg">
</head><body><p>hello</p></body></html>`

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func engine(t *testing.T) *scoring.Engine {
	t.Helper()
	reg, err := scoring.LoadDefault()
	require.NoError(t, err)
	return scoring.NewEngine(reg)
}

// fakeSite answers fetches from a URL keyed table; anything else is a 404.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]fetcher.Response
	seen  []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: map[string]fetcher.Response{}}
}

func (s *fakeSite) add(url, contentType string, body []byte) {
	s.pages[url] = fetcher.Response{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{contentType}},
		Body:       body,
	}
}

func (s *fakeSite) Fetch(_ context.Context, url string) (fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, url)
	resp, ok := s.pages[url]
	if !ok {
		return fetcher.Response{}, fetcher.StatusError(url, http.StatusNotFound)
	}
	return resp, nil
}

func (s *fakeSite) Seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) ShouldPromote(resp fetcher.Response) bool {
	args := m.Called(resp)
	return args.Bool(0)
}

func newHunter(t *testing.T, deps Deps, mutate func(*Config)) *Hunter {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = engine(t)
	}
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := New(deps, cfg)
	require.NoError(t, err)
	return h
}

// TestHuntScenario runs the apple-touch plus SVG favicon page over real HTTP:
// the SVG outranks the PNG, 404s, and the PNG wins.
func TestHuntScenario(t *testing.T) {
	t.Parallel()

	icon := pngOf(t, 180, 180)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(scenarioPage))
	})
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(icon)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h := newHunter(t, Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}, zap.NewNop()),
	}, func(cfg *Config) {
		cfg.Extract.Sources = []string{"apple_touch_icon", "favicon"}
	})

	ranked, err := h.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, srv.URL+"/b.svg", ranked[0].URL)
	assert.Equal(t, srv.URL+"/a.png", ranked[1].URL)
	top, _ := ranked[0].Score()
	second, _ := ranked[1].Score()
	assert.Equal(t, 1100, top)
	assert.Equal(t, 650, second)

	rec := &progress.Recorder{}
	logo, err := h.Hunt(context.Background(), srv.URL, Options{Format: candidate.FormatPNG, Width: 64}, rec)
	require.NoError(t, err)
	require.NotNil(t, logo)

	assert.Equal(t, srv.URL+"/a.png", logo.Selection.Candidate.URL)
	assert.True(t, logo.Processed)
	assert.Equal(t, candidate.FormatPNG, logo.Format)
	assert.Equal(t, "image/png", logo.ContentType)
	assert.Equal(t, 64, logo.Width)
	assert.Equal(t, 64, logo.Height)
	require.Len(t, logo.Attempts, 2)
	assert.Equal(t, validation.OutcomeFetchFailed, logo.Attempts[0].Outcome)
	assert.Equal(t, http.StatusNotFound, logo.Attempts[0].Status)

	assert.Equal(t, []progress.Stage{
		progress.StageDiscoveryStart,
		progress.StageHomepageFetched,
		progress.StageCandidatesFound,
		progress.StageCandidateScored,
		progress.StageCandidateScored,
		progress.StageFetchStart,
		progress.StageFetchDone,
		progress.StageCandidateRejected,
		progress.StageFetchStart,
		progress.StageFetchDone,
		progress.StageLogoSelected,
	}, rec.Stages())
	for _, evt := range rec.Events() {
		assert.NoError(t, evt.Validate(), evt.Stage)
	}
}

// TestHuntScenarioWithFallbacks keeps every extractor enabled: the fallback
// paths rank between the SVG and the PNG and all 404 on the way down.
func TestHuntScenarioWithFallbacks(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://example.com/", "text/html", []byte(scenarioPage))
	site.add("https://example.com/a.png", "image/png", pngOf(t, 180, 180))

	h := newHunter(t, Deps{Fetcher: site}, func(cfg *Config) {
		cfg.Validation.Prefetch = 0
	})
	logo, err := h.Hunt(context.Background(), "example.com", Options{}, nil)
	require.NoError(t, err)
	require.NotNil(t, logo)
	assert.Equal(t, "https://example.com/a.png", logo.Selection.Candidate.URL)

	var tried []string
	for _, a := range logo.Attempts {
		tried = append(tried, a.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/b.svg",
		"https://example.com/icon.svg",
		"https://example.com/logo.svg",
		"https://example.com/favicon.svg",
		"https://example.com/a.png",
	}, tried)
	// Nothing ranked below the winner was fetched.
	assert.NotContains(t, site.Seen(), "https://example.com/favicon.ico")
}

func TestHuntNoLogo(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://example.com/", "text/html", []byte(scenarioPage))

	rec := &progress.Recorder{}
	h := newHunter(t, Deps{Fetcher: site}, nil)
	logo, err := h.Hunt(context.Background(), "https://Example.com/some/page", Options{}, rec)
	require.NoError(t, err)
	assert.Nil(t, logo)

	stages := rec.Stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, progress.StageNoLogo, stages[len(stages)-1])
	assert.Equal(t, "example.com", rec.Events()[0].Domain)
}

func TestHomepageFailureStillProbesFallbacks(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	rec := &progress.Recorder{}
	h := newHunter(t, Deps{Fetcher: site}, nil)

	ranked, err := h.Discover(context.Background(), "example.com", rec)
	require.NoError(t, err)
	require.Len(t, ranked, 5)
	for _, c := range ranked {
		assert.True(t, c.HasTag(candidate.TagFallback), c.URL)
	}

	var homepage progress.Event
	for _, evt := range rec.Events() {
		if evt.Stage == progress.StageHomepageFetched {
			homepage = evt
		}
	}
	assert.Equal(t, "status", homepage.Reason)
	assert.Equal(t, progress.Status4xx, homepage.StatusClass)
}

func TestDiscoverPromotesToHeadless(t *testing.T) {
	t.Parallel()

	shell := []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	site := newFakeSite()
	site.add("https://example.com/", "text/html", shell)

	rendered := fetcher.Func(func(_ context.Context, url string) (fetcher.Response, error) {
		return fetcher.Response{
			URL:        url,
			FinalURL:   url,
			StatusCode: http.StatusOK,
			Body:       []byte(`<html><head><link rel="icon" href="/static/brand-192x192.png"></head><body></body></html>`),
			Rendered:   true,
		}, nil
	})

	det := &mockDetector{}
	det.On("ShouldPromote", mock.MatchedBy(func(resp fetcher.Response) bool {
		return !resp.Rendered && bytes.Equal(resp.Body, shell)
	})).Return(true).Once()

	rec := &progress.Recorder{}
	h := newHunter(t, Deps{Fetcher: site, Renderer: rendered, Detector: det}, func(cfg *Config) {
		cfg.Extract.Sources = []string{"favicon"}
	})
	ranked, err := h.Discover(context.Background(), "example.com", rec)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "https://example.com/static/brand-192x192.png", ranked[0].URL)
	assert.Equal(t, candidate.Size{W: 192, H: 192}, ranked[0].Declared)
	det.AssertExpectations(t)

	for _, evt := range rec.Events() {
		if evt.Stage == progress.StageHomepageFetched {
			assert.True(t, evt.Rendered)
		}
	}
}

func TestValidateScoresCallerCandidates(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.add("https://cdn.example.com/mark.png", "image/png", pngOf(t, 64, 64))
	h := newHunter(t, Deps{Fetcher: site}, nil)

	rec := &progress.Recorder{}
	res, err := h.Validate(context.Background(), []candidate.Candidate{
		candidate.New("https://cdn.example.com/mark.png", candidate.FormatPNG, candidate.TagFavicon),
		candidate.New("https://cdn.example.com/missing.svg", candidate.FormatSVG, candidate.TagFaviconSVG),
	}, rec)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "https://cdn.example.com/mark.png", res.Winner.Candidate.URL)
	assert.Equal(t, 2, res.Winner.Rank)
	assert.Equal(t, "cdn.example.com", rec.Events()[0].Domain)
	stages := rec.Stages()
	assert.Equal(t, progress.StageLogoSelected, stages[len(stages)-1])
}

func TestHuntKeepsOriginalWhenProcessingFails(t *testing.T) {
	t.Parallel()

	icon := pngOf(t, 48, 48)
	site := newFakeSite()
	site.add("https://example.com/", "text/html", []byte(`<link rel="icon" href="/icon.png">`))
	site.add("https://example.com/icon.png", "image/png", icon)

	h := newHunter(t, Deps{Fetcher: site}, func(cfg *Config) {
		cfg.Extract.Sources = []string{"favicon"}
	})
	logo, err := h.Hunt(context.Background(), "example.com", Options{Format: candidate.FormatWEBP}, nil)
	require.NoError(t, err)
	require.NotNil(t, logo)
	assert.False(t, logo.Processed)
	assert.Equal(t, icon, logo.Data)
	assert.Equal(t, candidate.FormatPNG, logo.Format)
	assert.Equal(t, "image/png", logo.ContentType)
}

func TestHuntVectorPassesThrough(t *testing.T) {
	t.Parallel()

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64"><rect fill="#ff0000" width="64" height="64"/><circle fill="#00ff00" r="4"/></svg>`)
	site := newFakeSite()
	site.add("https://example.com/", "text/html", []byte(`<link rel="icon" type="image/svg+xml" href="/mark.svg">`))
	site.add("https://example.com/mark.svg", "image/svg+xml", svg)

	h := newHunter(t, Deps{Fetcher: site}, func(cfg *Config) {
		cfg.Extract.Sources = []string{"favicon"}
	})
	logo, err := h.Hunt(context.Background(), "example.com", Options{Format: candidate.FormatPNG, Width: 16}, nil)
	require.NoError(t, err)
	require.NotNil(t, logo)
	assert.True(t, logo.Processed)
	assert.Equal(t, candidate.FormatSVG, logo.Format)
	assert.Equal(t, svg, logo.Data)
}

func TestInvalidInput(t *testing.T) {
	t.Parallel()

	h := newHunter(t, Deps{Fetcher: newFakeSite()}, nil)
	for _, domain := range []string{"", "   ", "ftp://example.com", "https://"} {
		_, err := h.Discover(context.Background(), domain, nil)
		require.ErrorIs(t, err, ErrInvalidDomain, domain)
		_, err = h.Hunt(context.Background(), domain, Options{}, nil)
		require.ErrorIs(t, err, ErrInvalidDomain, domain)
	}

	_, err := New(Deps{}, DefaultConfig())
	require.ErrorIs(t, err, ErrMissingDependency)
	_, err = New(Deps{Fetcher: newFakeSite()}, DefaultConfig())
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestConcurrentHunts(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	for _, host := range []string{"a.example", "b.example", "c.example"} {
		site.add("https://"+host+"/", "text/html", []byte(`<link rel="apple-touch-icon" href="/touch.png">`))
		site.add("https://"+host+"/touch.png", "image/png", pngOf(t, 180, 180))
	}
	h := newHunter(t, Deps{Fetcher: site}, nil)

	var wg sync.WaitGroup
	results := make([]*Logo, 3)
	for i, host := range []string{"a.example", "b.example", "c.example"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logo, err := h.Hunt(context.Background(), host, Options{}, nil)
			assert.NoError(t, err)
			results[i] = logo
		}()
	}
	wg.Wait()
	for i, logo := range results {
		require.NotNil(t, logo, i)
		assert.Equal(t, "https://"+logo.Domain+"/touch.png", logo.Selection.Candidate.URL)
	}
}

// stalled never answers; every fetch ends with its context.
var stalled = fetcher.Func(func(ctx context.Context, url string) (fetcher.Response, error) {
	<-ctx.Done()
	return fetcher.Response{}, fetcher.Classify(url, 0, ctx.Err())
})

func TestHuntReturnsCallerDeadline(t *testing.T) {
	t.Parallel()

	h := newHunter(t, Deps{Fetcher: stalled}, func(cfg *Config) {
		cfg.HomepageAttempts = 1
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	rec := &progress.Recorder{}
	logo, err := h.Hunt(ctx, "example.com", Options{}, rec)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, logo)
	assert.NotContains(t, rec.Stages(), progress.StageNoLogo)
}

func TestHuntReturnsCallerCancellation(t *testing.T) {
	t.Parallel()

	h := newHunter(t, Deps{Fetcher: stalled}, func(cfg *Config) {
		cfg.HomepageAttempts = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	logo, err := h.Hunt(ctx, "example.com", Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, logo)
}

func TestHuntDomainTimeoutIsQuietMiss(t *testing.T) {
	t.Parallel()

	h := newHunter(t, Deps{Fetcher: stalled}, func(cfg *Config) {
		cfg.HomepageAttempts = 1
		cfg.HomepageTimeout = 10 * time.Millisecond
		cfg.Validation.DomainTimeout = 20 * time.Millisecond
	})

	rec := &progress.Recorder{}
	logo, err := h.Hunt(context.Background(), "example.com", Options{}, rec)
	require.NoError(t, err)
	assert.Nil(t, logo)
	stages := rec.Stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, progress.StageNoLogo, stages[len(stages)-1])
}
