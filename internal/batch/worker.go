package batch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/metrics"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/publisher"
	"github.com/JakeFAU/logohunter/internal/storage"
)

// Hunter finds the logo of one domain.
type Hunter interface {
	Hunt(ctx context.Context, domain string, opts hunter.Options, emitter progress.Emitter) (*hunter.Logo, error)
}

// Saver persists a found logo.
type Saver interface {
	Save(ctx context.Context, domain string, data []byte, format candidate.Format) (storage.Object, error)
}

// Recorder keeps a durable ledger of results.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Result outcomes.
const (
	OutcomeLogo   = "logo"
	OutcomeNoLogo = "no_logo"
	OutcomeError  = "error"
)

// Result is the per-domain line written by batch runs.
type Result struct {
	RunID      string           `json:"run_id,omitempty"`
	Domain     string           `json:"domain"`
	Line       int              `json:"line,omitempty"`
	Outcome    string           `json:"outcome"`
	URL        string           `json:"url,omitempty"`
	Format     candidate.Format `json:"format,omitempty"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Score      int              `json:"score,omitempty"`
	Attempts   int              `json:"attempts,omitempty"`
	Stored     string           `json:"stored,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// Worker consumes jobs from a queue and hunts each domain.
type Worker struct {
	id      int
	queue   *Queue
	hunter  Hunter
	saver   Saver
	emitter progress.Emitter
	opts    hunter.Options
	timeout time.Duration
	runID   string
	pub     publisher.Publisher
	topic   string
	rec     Recorder
	results func(Result)
	logger  *zap.Logger
}

// Run blocks, consuming jobs until the queue is drained or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				w.logger.Error("Dequeue failed", zap.Error(err))
			}
			return
		}
		res := w.process(ctx, job)
		if res.Outcome == OutcomeError && ctx.Err() != nil {
			// Canceled mid-hunt; the job is unfinished, not failed.
			return
		}
		res.RunID = w.runID
		w.record(ctx, res)
		w.publish(ctx, res)
		w.results(res)
	}
}

func (w *Worker) record(ctx context.Context, res Result) {
	if w.rec == nil {
		return
	}
	if err := w.rec.Record(ctx, res); err != nil {
		w.logger.Warn("Recording result failed", zap.String("domain", res.Domain), zap.Error(err))
	}
}

// publish failures are logged only; the Result is still reported.
func (w *Worker) publish(ctx context.Context, res Result) {
	if w.pub == nil {
		return
	}
	id, err := w.pub.Publish(ctx, w.topic, res)
	if err != nil {
		w.logger.Warn("Publishing result failed", zap.String("domain", res.Domain), zap.String("topic", w.topic), zap.Error(err))
		return
	}
	w.logger.Debug("Published result", zap.String("domain", res.Domain), zap.String("message_id", id))
}

func (w *Worker) process(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{Domain: job.Domain, Line: job.Line}
	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
	}()

	hctx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	logo, err := w.hunter.Hunt(hctx, job.Domain, w.opts, w.emitter)
	switch {
	case err != nil:
		w.logger.Warn("Hunt failed", zap.Int("worker", w.id), zap.String("domain", job.Domain), zap.Error(err))
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	case logo == nil:
		res.Outcome = OutcomeNoLogo
		return res
	}

	res.Outcome = OutcomeLogo
	res.Format = logo.Format
	res.Width, res.Height = logo.Width, logo.Height
	res.Attempts = len(logo.Attempts)
	if sel := logo.Selection; sel != nil {
		res.URL = sel.FinalURL
		res.Score = sel.ValidatedScore
	}
	if w.saver != nil {
		obj, err := w.saver.Save(ctx, logo.Domain, logo.Data, logo.Format)
		if err != nil {
			w.logger.Warn("Saving logo failed", zap.String("domain", job.Domain), zap.Error(err))
			res.Error = err.Error()
		} else {
			res.Stored = obj.URI
		}
	}
	return res
}
