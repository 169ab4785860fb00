// Package validation walks a ranked candidate list, fetching and inspecting
// each image until one passes. A small window of lower-ranked candidates is
// fetched ahead of time, but results are always consumed in rank order.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/fetcher"
	"github.com/JakeFAU/logohunter/internal/imaging"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/scoring"
)

// Rejection causes. They are permanent for the candidate within a run.
var (
	ErrTooSmall  = errors.New("image is too small")
	ErrBadAspect = errors.New("image aspect ratio out of range")
	ErrTooLarge  = errors.New("image pixel area too large")
	ErrLowScore  = errors.New("validated score below threshold")
)

// Config bounds the cascade.
type Config struct {
	// MinDimension is the smallest acceptable longer side.
	MinDimension int `mapstructure:"min_dimension"`
	// MaxAspect is the largest long/short side ratio.
	MaxAspect float64 `mapstructure:"max_aspect"`
	// WideLogoMaxAspect replaces MaxAspect for candidates with strong logo
	// context (logo keyword or logo class/id), which are often wordmarks.
	WideLogoMaxAspect float64 `mapstructure:"wide_logo_max_aspect"`
	// MaxPixelArea caps raster width*height.
	MaxPixelArea      int `mapstructure:"max_pixel_area"`
	MinValidatedScore int `mapstructure:"min_validated_score"`
	// Prefetch is how many candidates after the current one are fetched ahead.
	Prefetch int `mapstructure:"prefetch"`
	// MaxAttempts caps candidates considered; zero means all of them.
	MaxAttempts   int           `mapstructure:"max_attempts"`
	DomainTimeout time.Duration `mapstructure:"domain_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinDimension:      16,
		MaxAspect:         2.0,
		WideLogoMaxAspect: 6.0,
		MaxPixelArea:      2048 * 2048,
		MinValidatedScore: 0,
		Prefetch:          2,
		MaxAttempts:       10,
		DomainTimeout:     30 * time.Second,
		FetchTimeout:      10 * time.Second,
	}
}

// Outcome summarizes what happened to one considered candidate.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSelected    Outcome = "selected"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeRejected    Outcome = "rejected"
)

// Attempt records one candidate the cascade considered.
type Attempt struct {
	URL     string            `json:"url"`
	Rank    int               `json:"rank"`
	Outcome Outcome           `json:"outcome"`
	Reason  string            `json:"reason,omitempty"`
	Status  int               `json:"status,omitempty"`
	Meta    *imaging.Metadata `json:"meta,omitempty"`
	// Score is the validated score when the payload was inspected.
	Score    int           `json:"score,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Selection is the winning candidate together with its payload.
type Selection struct {
	Candidate      candidate.Candidate `json:"candidate"`
	Rank           int                 `json:"rank"`
	FinalURL       string              `json:"final_url"`
	Meta           imaging.Metadata    `json:"meta"`
	Data           []byte              `json:"-"`
	ContentType    string              `json:"content_type,omitempty"`
	ValidatedScore int                 `json:"validated_score"`
	Breakdown      []candidate.Hit     `json:"breakdown"`
}

// Result is the cascade outcome. A nil Winner means every candidate failed,
// which is a normal outcome.
type Result struct {
	Winner   *Selection `json:"winner,omitempty"`
	Attempts []Attempt  `json:"attempts"`
	// Interrupted is set when the domain deadline or the caller's context
	// ended the run before a candidate was accepted.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Cascade validates ranked candidates against fetched content.
type Cascade struct {
	fetcher fetcher.Fetcher
	engine  *scoring.Engine
	cfg     Config
	logger  *zap.Logger
}

// New builds a Cascade. Zero limits in cfg fall back to DefaultConfig.
func New(f fetcher.Fetcher, engine *scoring.Engine, cfg Config, logger *zap.Logger) *Cascade {
	def := DefaultConfig()
	if cfg.MinDimension <= 0 {
		cfg.MinDimension = def.MinDimension
	}
	if cfg.MaxAspect <= 0 {
		cfg.MaxAspect = def.MaxAspect
	}
	if cfg.WideLogoMaxAspect < cfg.MaxAspect {
		cfg.WideLogoMaxAspect = max(def.WideLogoMaxAspect, cfg.MaxAspect)
	}
	if cfg.MaxPixelArea <= 0 {
		cfg.MaxPixelArea = def.MaxPixelArea
	}
	if cfg.Prefetch < 0 {
		cfg.Prefetch = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{fetcher: f, engine: engine, cfg: cfg, logger: logger}
}

// Config returns the effective limits.
func (c *Cascade) Config() Config {
	return c.cfg
}

type fetchResult struct {
	resp fetcher.Response
	err  error
	dur  time.Duration
}

// pending is one in-flight fetch. Its channel is buffered so an abandoned
// fetch never blocks.
type pending struct {
	done   chan fetchResult
	cancel context.CancelFunc
}

// Run validates ranked in order and returns the first candidate that passes.
// Every entry must already carry a declared score. emitter may be nil.
func (c *Cascade) Run(ctx context.Context, ranked []candidate.Candidate, emitter progress.Emitter) (Result, error) {
	for _, cand := range ranked {
		if !cand.Scored() {
			return Result{}, fmt.Errorf("validate %s: %w", cand.URL, scoring.ErrUnscored)
		}
	}
	if emitter == nil {
		emitter = progress.Scope{}
	}
	list := ranked
	if c.cfg.MaxAttempts > 0 && len(list) > c.cfg.MaxAttempts {
		list = list[:c.cfg.MaxAttempts]
	}

	runCtx, cancelRun := ctx, context.CancelFunc(func() {})
	if c.cfg.DomainTimeout > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, c.cfg.DomainTimeout)
	}

	var wg sync.WaitGroup
	inflight := make([]*pending, len(list))
	defer func() {
		cancelRun()
		for _, p := range inflight {
			if p != nil {
				p.cancel()
			}
		}
		wg.Wait()
	}()

	start := func(i int) {
		if inflight[i] != nil {
			return
		}
		fctx, cancel := context.WithTimeout(runCtx, c.cfg.FetchTimeout)
		p := &pending{done: make(chan fetchResult, 1), cancel: cancel}
		inflight[i] = p
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			began := time.Now()
			resp, err := c.fetcher.Fetch(fctx, url)
			p.done <- fetchResult{resp: resp, err: err, dur: time.Since(began)}
		}(list[i].URL)
	}

	var res Result
	for i, cand := range list {
		rank := i + 1
		if runCtx.Err() != nil {
			res.Interrupted = true
			break
		}
		for j := i; j <= i+c.cfg.Prefetch && j < len(list); j++ {
			start(j)
		}
		emitter.Emit(progress.Event{Stage: progress.StageFetchStart, URL: cand.URL, Rank: rank})

		var fr fetchResult
		select {
		case fr = <-inflight[i].done:
		case <-runCtx.Done():
			res.Interrupted = true
		}
		inflight[i].cancel()
		if res.Interrupted {
			c.logger.Debug("Validation interrupted", zap.String("url", cand.URL), zap.Int("rank", rank), zap.Error(runCtx.Err()))
			break
		}

		attempt, sel := c.consider(cand, rank, fr, emitter)
		res.Attempts = append(res.Attempts, attempt)
		if sel != nil {
			res.Winner = sel
			return res, nil
		}
	}
	if runCtx.Err() != nil {
		// The last fetch can fail with the deadline before the loop sees it.
		res.Interrupted = true
	}
	return res, nil
}

// consider turns one fetch result into an attempt, and a selection when the
// payload passes every check.
func (c *Cascade) consider(cand candidate.Candidate, rank int, fr fetchResult, emitter progress.Emitter) (Attempt, *Selection) {
	attempt := Attempt{URL: cand.URL, Rank: rank, Duration: fr.dur}
	if fr.err != nil {
		fe := fetcher.Classify(cand.URL, 0, fr.err)
		attempt.Outcome = OutcomeFetchFailed
		attempt.Reason = string(fe.Kind)
		attempt.Status = fe.StatusCode
		emitter.Emit(progress.Event{
			Stage:       progress.StageFetchDone,
			URL:         cand.URL,
			Rank:        rank,
			StatusClass: progress.ClassifyStatus(fe.StatusCode),
			Dur:         fr.dur,
			Reason:      attempt.Reason,
		})
		c.reject(cand, rank, attempt.Reason, fr.err, emitter)
		return attempt, nil
	}

	attempt.Status = fr.resp.StatusCode
	emitter.Emit(progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         cand.URL,
		Rank:        rank,
		Bytes:       int64(len(fr.resp.Body)),
		StatusClass: progress.ClassifyStatus(fr.resp.StatusCode),
		Dur:         fr.dur,
	})

	meta, err := imaging.Inspect(fr.resp.Body, fr.resp.ContentType())
	if err != nil {
		attempt.Outcome = OutcomeRejected
		attempt.Reason = "decode"
		c.reject(cand, rank, attempt.Reason, err, emitter)
		return attempt, nil
	}
	attempt.Meta = &meta

	if err := c.checkDimensions(cand, meta); err != nil {
		attempt.Outcome = OutcomeRejected
		attempt.Reason = reasonOf(err)
		c.reject(cand, rank, attempt.Reason, err, emitter)
		return attempt, nil
	}

	score, hits := c.engine.ScoreValidated(cand, meta)
	attempt.Score = score
	if score < c.cfg.MinValidatedScore {
		attempt.Outcome = OutcomeRejected
		attempt.Reason = reasonOf(ErrLowScore)
		c.reject(cand, rank, attempt.Reason, fmt.Errorf("%d < %d: %w", score, c.cfg.MinValidatedScore, ErrLowScore), emitter)
		return attempt, nil
	}

	attempt.Outcome = OutcomeSelected
	finalURL := fr.resp.FinalURL
	if finalURL == "" {
		finalURL = cand.URL
	}
	return attempt, &Selection{
		Candidate:      cand,
		Rank:           rank,
		FinalURL:       finalURL,
		Meta:           meta,
		Data:           fr.resp.Body,
		ContentType:    fr.resp.ContentType(),
		ValidatedScore: score,
		Breakdown:      hits,
	}
}

func (c *Cascade) reject(cand candidate.Candidate, rank int, reason string, err error, emitter progress.Emitter) {
	c.logger.Debug("Candidate rejected",
		zap.String("url", cand.URL),
		zap.Int("rank", rank),
		zap.String("reason", reason),
		zap.Error(err),
	)
	emitter.Emit(progress.Event{Stage: progress.StageCandidateRejected, URL: cand.URL, Rank: rank, Reason: reason})
}

// checkDimensions applies the size limits. Vector images without intrinsic
// dimensions pass.
func (c *Cascade) checkDimensions(cand candidate.Candidate, meta imaging.Metadata) error {
	if !meta.HasDimensions() {
		if meta.Vector {
			return nil
		}
		return fmt.Errorf("no dimensions: %w", ErrTooSmall)
	}
	size := meta.Size()
	if size.MaxSide() < c.cfg.MinDimension {
		return fmt.Errorf("%s below %dpx: %w", size, c.cfg.MinDimension, ErrTooSmall)
	}
	limit := c.cfg.MaxAspect
	if cand.HasAnyTag(candidate.TagLogoKeyword, candidate.TagLogoClassID) {
		limit = c.cfg.WideLogoMaxAspect
	}
	if size.Aspect() > limit {
		return fmt.Errorf("%s aspect %.2f over %.2f: %w", size, size.Aspect(), limit, ErrBadAspect)
	}
	if !meta.Vector && size.Area() > c.cfg.MaxPixelArea {
		return fmt.Errorf("%s over %d pixels: %w", size, c.cfg.MaxPixelArea, ErrTooLarge)
	}
	return nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrTooSmall):
		return "too_small"
	case errors.Is(err, ErrBadAspect):
		return "bad_aspect"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrLowScore):
		return "low_score"
	default:
		return "invalid"
	}
}
