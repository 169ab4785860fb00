// Package app initializes and holds long-lived services, acting as the
// dependency injection container shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/batch"
	"github.com/JakeFAU/logohunter/internal/clock/system"
	"github.com/JakeFAU/logohunter/internal/config"
	collyfetcher "github.com/JakeFAU/logohunter/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/logohunter/internal/fetcher/headless"
	"github.com/JakeFAU/logohunter/internal/hash/sha256"
	"github.com/JakeFAU/logohunter/internal/headless/detector"
	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/id/uuid"
	"github.com/JakeFAU/logohunter/internal/metrics"
	"github.com/JakeFAU/logohunter/internal/policy/blocklist"
	"github.com/JakeFAU/logohunter/internal/policy/ratelimit"
	"github.com/JakeFAU/logohunter/internal/progress"
	"github.com/JakeFAU/logohunter/internal/progress/sinks"
	"github.com/JakeFAU/logohunter/internal/publisher"
	pubmemory "github.com/JakeFAU/logohunter/internal/publisher/memory"
	"github.com/JakeFAU/logohunter/internal/publisher/pubsub"
	"github.com/JakeFAU/logohunter/internal/scoring"
	"github.com/JakeFAU/logohunter/internal/storage"
	"github.com/JakeFAU/logohunter/internal/storage/gcs"
	"github.com/JakeFAU/logohunter/internal/storage/local"
	"github.com/JakeFAU/logohunter/internal/storage/memory"
	"github.com/JakeFAU/logohunter/internal/storage/postgres"
)

// App holds the shared services. It is built once at startup.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	hunter  *hunter.Hunter
	hub     *progress.Hub
	archive *storage.Archive
	pub     publisher.Publisher
	results *postgres.ResultStore
	clock   *system.Clock
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	blobs      storage.BlobStore
	pub        publisher.Publisher
}

// WithRegisterer registers the progress metrics on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBlobStore overrides the configured storage backend.
func WithBlobStore(store storage.BlobStore) Option {
	return func(o *options) { o.blobs = store }
}

// WithPublisher overrides the configured result publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.pub = p }
}

// New wires every service from cfg. It fails fast when a collaborator cannot
// be built, releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	metrics.Init()

	registry, err := loadRegistry(cfg.Rules)
	if err != nil {
		return nil, err
	}
	logger.Debug("Rules loaded", zap.Int("rules", registry.Len()), zap.String("file", cfg.Rules.WeightsFile))

	if err := a.initProgress(o.registerer); err != nil {
		return nil, err
	}

	blobs := o.blobs
	if blobs == nil {
		blobs, err = a.openBlobStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	var hasher storage.Hasher
	if cfg.Storage.ContentAddressed {
		hasher = sha256.New(cfg.Storage.DigestLength)
	}
	a.archive = storage.NewArchive(blobs, hasher, cfg.Storage.Prefix)

	a.pub = o.pub
	if a.pub == nil {
		a.pub, err = a.openPublisher(ctx)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Database.DSN != "" {
		a.results, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open result store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			a.results.Close()
			return nil
		})
	}

	deps := hunter.Deps{
		Fetcher: blocklist.NewGuard(collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.HTTP.Timeout,
			MaxBytes:      cfg.HTTP.MaxBodyBytes,
		}, logger.Named("fetcher")), blocklist.New(cfg.HTTP.BlockedHosts)),
		Waiter: ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RateLimitRPS, Burst: cfg.HTTP.RateLimitBurst}),
		Engine: scoring.NewEngine(registry),
		IDs:    uuid.New(),
		Clock:  a.clock,
		Logger: logger.Named("hunter"),
	}
	if cfg.Headless.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			Settle:            cfg.Headless.Settle,
		})
		if err != nil {
			// Static extraction still works; only promotion is lost.
			logger.Warn("Headless renderer unavailable", zap.Error(err))
		} else {
			deps.Renderer = renderer
			deps.Detector = detector.NewHeuristic(cfg.Headless.PromotionThreshold)
			a.closers = append(a.closers, func() error {
				renderer.Close()
				return nil
			})
		}
	}

	a.hunter, err = hunter.New(deps, cfg.HunterConfig())
	if err != nil {
		return nil, fmt.Errorf("build hunter: %w", err)
	}

	logger.Info("Application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("headless", deps.Renderer != nil),
	)
	return a, nil
}

func loadRegistry(cfg config.RulesConfig) (*scoring.Registry, error) {
	if cfg.WeightsFile == "" {
		reg, err := scoring.LoadDefault()
		if err != nil {
			return nil, fmt.Errorf("load default rules: %w", err)
		}
		return reg, nil
	}
	reg, err := scoring.LoadFile(cfg.WeightsFile)
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", cfg.WeightsFile, err)
	}
	return reg, nil
}

func (a *App) initProgress(reg prometheus.Registerer) error {
	var hubSinks []progress.Sink
	if a.cfg.Progress.Log {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger))
	}
	if reg != nil {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("register progress metrics: %w", err)
		}
		hubSinks = append(hubSinks, promSink)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress"),
	}, hubSinks...)
	return nil
}

func (a *App) openBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, closeFn, err := gcs.Open(ctx, gcs.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			CacheControl: a.cfg.Storage.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("open gcs storage: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		a.logger.Info("Using GCS storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	case config.StorageLocal, "":
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

// openPublisher returns nil when publishing is disabled.
func (a *App) openPublisher(ctx context.Context) (publisher.Publisher, error) {
	switch a.cfg.Publish.Backend {
	case config.PublishPubSub:
		p, err := pubsub.Open(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		a.logger.Info("Publishing results to Pub/Sub",
			zap.String("project", a.cfg.Publish.ProjectID),
			zap.String("topic", a.cfg.Publish.Topic),
		)
		return p, nil
	case config.PublishMemory:
		return pubmemory.New(), nil
	case config.PublishNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown publish backend: %s", a.cfg.Publish.Backend)
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Hunter returns the logo pipeline.
func (a *App) Hunter() *hunter.Hunter { return a.hunter }

// Emitter returns the progress hub as an emitter for hunts.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Archive returns where saved logos go.
func (a *App) Archive() *storage.Archive { return a.archive }

// Publisher returns the result publisher, or nil when publishing is off.
func (a *App) Publisher() publisher.Publisher { return a.pub }

// Results returns the Postgres result ledger, or nil when no DSN is set.
func (a *App) Results() *postgres.ResultStore { return a.results }

// Clock returns the wall clock.
func (a *App) Clock() hunter.Clock { return a.clock }

// Batch builds a batch runner over the shared hunter. Winners are saved when
// save is true, and results are published when a publisher is configured.
func (a *App) Batch(cfg batch.Config, save bool) *batch.Runner {
	var saver batch.Saver
	if save {
		saver = a.archive
	}
	var opts []batch.Option
	if a.pub != nil {
		opts = append(opts, batch.WithPublisher(a.pub, a.cfg.Publish.Topic))
	}
	if a.results != nil {
		opts = append(opts, batch.WithRecorder(a.results))
	}
	return batch.New(a.hunter, saver, a.hub, cfg, a.logger.Named("batch"), opts...)
}

// Close flushes pending progress events and releases every service.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
