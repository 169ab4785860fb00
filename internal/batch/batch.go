// Package batch hunts many domains over a fixed pool of workers and reports
// one Result per domain.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/id/uuid"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/publisher"
)

// Config controls the worker pool.
type Config struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// DomainTimeout bounds one Hunt call, zero means no extra bound.
	DomainTimeout time.Duration `mapstructure:"domain_timeout"`
}

// Runner fans jobs out to workers.
type Runner struct {
	hunter  Hunter
	saver   Saver
	emitter progress.Emitter
	cfg     Config
	logger  *zap.Logger

	pub   publisher.Publisher
	topic string
	rec   Recorder
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPublisher announces every Result on topic.
func WithPublisher(p publisher.Publisher, topic string) Option {
	return func(r *Runner) {
		r.pub = p
		r.topic = topic
	}
}

// WithRecorder writes every Result to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

// New builds a Runner. saver and emitter may be nil.
func New(h Hunter, saver Saver, emitter progress.Emitter, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{hunter: h, saver: saver, emitter: emitter, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run hunts every job with opts and calls report once per finished domain.
// report is never called concurrently. Run returns when all jobs are done or
// ctx ends; in the latter case unfinished jobs produce no Result.
func (r *Runner) Run(ctx context.Context, jobs []Job, opts hunter.Options, report func(Result)) error {
	queue := NewQueue(r.cfg.QueueSize)
	runID, err := uuid.New().NewID()
	if err != nil {
		r.logger.Warn("Run id unavailable", zap.Error(err))
	}
	var mu sync.Mutex
	results := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		if report != nil {
			report(res)
		}
	}

	var wg sync.WaitGroup
	for i := range r.cfg.Workers {
		w := &Worker{
			id:      i,
			queue:   queue,
			hunter:  r.hunter,
			saver:   r.saver,
			emitter: r.emitter,
			opts:    opts,
			timeout: r.cfg.DomainTimeout,
			runID:   runID,
			pub:     r.pub,
			topic:   r.topic,
			rec:     r.rec,
			results: results,
			logger:  r.logger,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	r.logger.Info("Batch started",
		zap.String("run_id", runID),
		zap.Int("domains", len(jobs)),
		zap.Int("workers", r.cfg.Workers),
	)
	var enqueueErr error
	for _, job := range jobs {
		if err := queue.Enqueue(ctx, job); err != nil {
			enqueueErr = err
			break
		}
	}
	queue.Close()
	wg.Wait()

	if enqueueErr != nil {
		return fmt.Errorf("batch interrupted: %w", enqueueErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	r.logger.Info("Batch finished", zap.String("run_id", runID), zap.Int("domains", len(jobs)))
	return nil
}
