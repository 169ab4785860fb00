// Package hunter wires discovery, scoring, validation and processing into the
// three library entry points: Discover, Validate and Hunt.
package hunter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
	"github.com/JakeFAU/logohunter/internal/extract"
	"github.com/JakeFAU/logohunter/internal/fetcher"
	"github.com/JakeFAU/logohunter/internal/imaging"
	"github.com/JakeFAU/logohunter/internal/metrics"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/scoring"
	"github.com/JakeFAU/logohunter/internal/validation"
)

var (
	// ErrInvalidDomain is returned when the domain cannot be turned into an origin.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing hunter dependency")
)

// Detector decides whether a homepage must be rendered before extraction.
type Detector interface {
	ShouldPromote(resp fetcher.Response) bool
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Clock abstracts time for run durations.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps are the collaborators of a Hunter. Fetcher and Engine are required.
type Deps struct {
	Fetcher fetcher.Fetcher
	// Renderer renders script-built homepages; nil disables promotion.
	Renderer fetcher.Fetcher
	Detector Detector
	// Waiter paces requests per host, shared across runs.
	Waiter fetcher.Waiter
	Engine *scoring.Engine
	IDs    IDGenerator
	Clock  Clock
	Logger *zap.Logger
}

// Config tunes a Hunter.
type Config struct {
	// MaxParallelFetches bounds in-flight requests per run.
	MaxParallelFetches int
	HomepageTimeout    time.Duration
	// HomepageAttempts is the number of tries for the homepage fetch.
	HomepageAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	Extract          extract.Config
	Validation       validation.Config
}

// DefaultConfig returns the settings used by the CLI when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxParallelFetches: 3,
		HomepageTimeout:    15 * time.Second,
		HomepageAttempts:   2,
		RetryBaseDelay:     250 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		Extract: extract.Config{
			ManifestTimeout: 5 * time.Second,
			FallbackPaths:   extract.DefaultFallbackPaths,
		},
		Validation: validation.DefaultConfig(),
	}
}

// Options controls the final processing of a found logo.
type Options struct {
	// Format is the output format; zero means PNG. Vector logos stay SVG.
	Format candidate.Format
	Width  int
	Height int
}

// Logo is the result of a successful hunt.
type Logo struct {
	Domain string `json:"domain"`
	RunID  string `json:"run_id"`
	// Data holds the processed bytes, or the original bytes when processing failed.
	Data        []byte           `json:"-"`
	Format      candidate.Format `json:"format"`
	ContentType string           `json:"content_type"`
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
	// Processed is false when the payload could not be converted as requested.
	Processed bool                  `json:"processed"`
	Selection *validation.Selection `json:"selection"`
	Attempts  []validation.Attempt  `json:"attempts"`
	Duration  time.Duration         `json:"duration"`
}

// Hunter runs the logo pipeline. It is safe for concurrent use; each call
// owns its candidates and fetch budget.
type Hunter struct {
	deps   Deps
	cfg    Config
	policy *fetcher.ExponentialRetryPolicy
	logger *zap.Logger
}

// New validates deps and returns a Hunter.
func New(deps Deps, cfg Config) (*Hunter, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher: %w", ErrMissingDependency)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("scoring engine: %w", ErrMissingDependency)
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxParallelFetches <= 0 {
		cfg.MaxParallelFetches = 3
	}
	if cfg.HomepageTimeout <= 0 {
		cfg.HomepageTimeout = 15 * time.Second
	}
	return &Hunter{
		deps:   deps,
		cfg:    cfg,
		policy: fetcher.NewExponentialRetryPolicy(cfg.HomepageAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		logger: deps.Logger,
	}, nil
}

// run is the state of one Discover/Validate/Hunt call.
type run struct {
	id      string
	domain  string
	scope   progress.Scope
	fetcher fetcher.Fetcher
	started time.Time
	logger  *zap.Logger
}

func (h *Hunter) newRun(domain string, emitter progress.Emitter) *run {
	var raw uuid.UUID
	if h.deps.IDs != nil {
		id, err := h.deps.IDs.NewRawID()
		if err != nil {
			h.logger.Warn("Run id generation failed", zap.Error(err))
		} else {
			raw = id
		}
	}
	if raw == uuid.Nil {
		raw = uuid.New()
	}
	return &run{
		id:      raw.String(),
		domain:  domain,
		scope:   progress.NewScope(emitter, progress.UUIDToBytes(raw), domain),
		fetcher: fetcher.NewLimited(h.deps.Fetcher, h.cfg.MaxParallelFetches, h.deps.Waiter),
		started: h.deps.Clock.Now(),
		logger:  h.logger.With(zap.String("domain", domain), zap.String("run_id", raw.String())),
	}
}

// Discover fetches the homepage of domain and returns every candidate it
// references, merged, scored and ranked. A homepage that cannot be fetched
// still yields the conventional fallback paths.
func (h *Hunter) Discover(ctx context.Context, domain string, emitter progress.Emitter) ([]candidate.Candidate, error) {
	origin, err := candidate.Origin(domain)
	if err != nil {
		return nil, fmt.Errorf("%q: %w: %w", domain, ErrInvalidDomain, err)
	}
	r := h.newRun(origin.Hostname(), emitter)
	return h.discover(ctx, r, origin)
}

func (h *Hunter) discover(ctx context.Context, r *run, origin *url.URL) ([]candidate.Candidate, error) {
	r.scope.Emit(progress.Event{Stage: progress.StageDiscoveryStart, URL: origin.String()})

	doc, err := h.homepage(ctx, r, origin)
	if err != nil {
		return nil, err
	}
	raw := extract.Run(ctx, doc, extract.Default(r.fetcher, h.cfg.Extract), r.logger)
	merged := candidate.Merge(raw)
	r.scope.Emit(progress.Event{Stage: progress.StageCandidatesFound, Count: len(merged)})

	ranked, err := h.deps.Engine.RankDeclared(merged)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	for i, c := range ranked {
		score, _ := c.Score()
		r.scope.Emit(progress.Event{Stage: progress.StageCandidateScored, URL: c.URL, Rank: i + 1, Score: score})
	}
	r.logger.Debug("Discovery finished", zap.Int("raw", len(raw)), zap.Int("candidates", len(ranked)))
	return ranked, nil
}

// homepage fetches and parses the landing page, rendering it headlessly when
// the detector asks for it. Fetch and parse failures degrade to an empty
// document; only an unusable origin is an error.
func (h *Hunter) homepage(ctx context.Context, r *run, origin *url.URL) (*document.Document, error) {
	pageURL := origin.String()
	hctx, cancel := context.WithTimeout(ctx, h.cfg.HomepageTimeout)
	defer cancel()

	resp, err := fetcher.NewRetrying(r.fetcher, h.policy, r.logger).Fetch(hctx, pageURL)
	if err != nil {
		fe := fetcher.Classify(pageURL, 0, err)
		r.logger.Warn("Homepage fetch failed", zap.String("url", pageURL), zap.String("kind", string(fe.Kind)), zap.Error(err))
		r.scope.Emit(progress.Event{
			Stage:       progress.StageHomepageFetched,
			URL:         pageURL,
			StatusClass: progress.ClassifyStatus(fe.StatusCode),
			Reason:      string(fe.Kind),
		})
		return emptyDocument(pageURL)
	}

	if h.shouldRender(resp) {
		metrics.ObserveHeadlessPromotion()
		rendered, rerr := h.deps.Renderer.Fetch(hctx, pageURL)
		switch {
		case rerr != nil:
			r.logger.Warn("Headless render failed, using static homepage", zap.Error(rerr))
		case len(rendered.Body) > 0:
			resp = rendered
		}
	}

	r.scope.Emit(progress.Event{
		Stage:       progress.StageHomepageFetched,
		URL:         pageURL,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Duration,
		Rendered:    resp.Rendered,
	})

	base := resp.FinalURL
	if base == "" {
		base = pageURL
	}
	doc, err := document.ParseBytes(resp.Body, base)
	if err != nil {
		r.logger.Warn("Homepage parse failed", zap.String("url", base), zap.Error(err))
		return emptyDocument(pageURL)
	}
	return doc, nil
}

func (h *Hunter) shouldRender(resp fetcher.Response) bool {
	return h.deps.Renderer != nil && h.deps.Detector != nil && h.deps.Detector.ShouldPromote(resp)
}

func emptyDocument(pageURL string) (*document.Document, error) {
	doc, err := document.Empty(pageURL)
	if err != nil {
		return nil, fmt.Errorf("homepage document: %w", err)
	}
	return doc, nil
}

// Validate fetches and checks cands in rank order and returns the first
// passing candidate. Unscored entries are scored first; the list is re-ranked.
func (h *Hunter) Validate(ctx context.Context, cands []candidate.Candidate, emitter progress.Emitter) (validation.Result, error) {
	domain := ""
	if len(cands) > 0 {
		if u, err := url.Parse(cands[0].URL); err == nil {
			domain = strings.ToLower(u.Hostname())
		}
	}
	if domain == "" {
		domain = "unknown"
	}
	r := h.newRun(domain, emitter)
	ranked, err := h.deps.Engine.RankDeclared(cands)
	if err != nil {
		return validation.Result{}, fmt.Errorf("rank candidates: %w", err)
	}
	res, err := h.validate(ctx, r, ranked)
	if err != nil {
		return validation.Result{}, err
	}
	h.finish(r, res.Winner, nil)
	return res, nil
}

func (h *Hunter) validate(ctx context.Context, r *run, ranked []candidate.Candidate) (validation.Result, error) {
	cascade := validation.New(r.fetcher, h.deps.Engine, h.cfg.Validation, r.logger)
	res, err := cascade.Run(ctx, ranked, r.scope)
	if err != nil {
		return validation.Result{}, fmt.Errorf("validate candidates: %w", err)
	}
	return res, nil
}

// callerGone reports a run that lost its caller before finding a logo. The
// cascade's own domain deadline leaves ctx alive and stays a quiet miss.
func callerGone(ctx context.Context, r *run, res validation.Result) error {
	if res.Winner != nil || ctx.Err() == nil {
		return nil
	}
	metrics.ObserveHunt("interrupted")
	r.logger.Info("Hunt interrupted", zap.Int("attempts", len(res.Attempts)), zap.Error(ctx.Err()))
	return fmt.Errorf("hunt %s: %w", r.domain, ctx.Err())
}

// finish emits the terminal event of a run.
func (h *Hunter) finish(r *run, sel *validation.Selection, out *imaging.Output) {
	dur := h.deps.Clock.Now().Sub(r.started)
	if dur < 0 {
		dur = 0
	}
	if sel == nil {
		metrics.ObserveHunt("no_logo")
		r.scope.Emit(progress.Event{Stage: progress.StageNoLogo, Dur: dur})
		r.logger.Info("No logo found", zap.Duration("dur", dur))
		return
	}
	metrics.ObserveHunt("logo")
	r.scope.Emit(progress.Event{
		Stage: progress.StageLogoSelected,
		URL:   sel.FinalURL,
		Rank:  sel.Rank,
		Score: sel.ValidatedScore,
		Bytes: int64(len(sel.Data)),
		Dur:   dur,
	})
	fields := []zap.Field{
		zap.String("url", sel.FinalURL),
		zap.Int("rank", sel.Rank),
		zap.Int("score", sel.ValidatedScore),
		zap.Duration("dur", dur),
	}
	if out != nil {
		fields = append(fields, zap.String("format", out.Format.String()))
	}
	r.logger.Info("Logo selected", fields...)
}

// Hunt discovers, validates and processes the best logo of domain. A nil
// Logo with a nil error means no usable logo exists; network and content
// problems are never returned as errors. When ctx ends before a winner is
// found the wrapped ctx error is returned instead, since the miss proves
// nothing about the domain.
func (h *Hunter) Hunt(ctx context.Context, domain string, opts Options, emitter progress.Emitter) (*Logo, error) {
	origin, err := candidate.Origin(domain)
	if err != nil {
		return nil, fmt.Errorf("%q: %w: %w", domain, ErrInvalidDomain, err)
	}
	r := h.newRun(origin.Hostname(), emitter)

	ranked, err := h.discover(ctx, r, origin)
	if err != nil {
		return nil, err
	}
	res, err := h.validate(ctx, r, ranked)
	if err != nil {
		return nil, err
	}
	if err := callerGone(ctx, r, res); err != nil {
		return nil, err
	}
	if res.Winner == nil {
		h.finish(r, nil, nil)
		return nil, nil
	}

	sel := res.Winner
	logo := &Logo{
		Domain:    r.domain,
		RunID:     r.id,
		Selection: sel,
		Attempts:  res.Attempts,
	}
	out, err := imaging.Process(sel.Data, sel.Meta, imaging.Options(opts))
	if err != nil {
		r.logger.Warn("Processing failed, keeping original bytes", zap.String("url", sel.FinalURL), zap.Error(err))
		logo.Data = sel.Data
		logo.Format = sel.Meta.Format
		logo.ContentType = sel.ContentType
		if logo.ContentType == "" {
			logo.ContentType = sel.Meta.Format.ContentType()
		}
		logo.Width, logo.Height = sel.Meta.Width, sel.Meta.Height
		h.finish(r, sel, nil)
	} else {
		logo.Data = out.Data
		logo.Format = out.Format
		logo.ContentType = out.ContentType()
		logo.Width, logo.Height = out.Width, out.Height
		logo.Processed = true
		h.finish(r, sel, &out)
	}
	logo.Duration = h.deps.Clock.Now().Sub(r.started)
	return logo, nil
}
