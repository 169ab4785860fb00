package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/logohunter/internal/progress"
)

// PrometheusSink turns pipeline events into run, candidate and fetch metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	candidates    prometheus.Histogram
	rejections    *prometheus.CounterVec

	fetches       *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	fetchDuration *prometheus.HistogramVec

	active *runTracker
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logohunter_runs_started_total",
			Help: "Domain runs that started discovery.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logohunter_runs_completed_total",
			Help: "Domain runs that finished, by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logohunter_runs_active",
			Help: "Domain runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logohunter_run_duration_seconds",
			Help:    "Wall time per finished run, by outcome.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logohunter_candidates_per_run",
			Help:    "Merged candidates found per domain.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logohunter_candidate_rejections_total",
			Help: "Candidates skipped by the validation cascade, by reason.",
		}, []string{"reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logohunter_candidate_fetches_total",
			Help: "Candidate image fetches, by status class.",
		}, []string{"status_class"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logohunter_candidate_fetch_bytes_total",
			Help: "Bytes downloaded for candidate images.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logohunter_candidate_fetch_duration_seconds",
			Help:    "Candidate fetch latency, by status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"status_class"}),
		active: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.candidates,
		s.rejections,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consume(evt)
	}
	return nil
}

func (s *PrometheusSink) consume(evt progress.Event) {
	switch evt.Stage {
	case progress.StageDiscoveryStart:
		s.runsStarted.Inc()
		if s.active.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageCandidatesFound:
		s.candidates.Observe(float64(evt.Count))
	case progress.StageFetchDone:
		class := string(evt.StatusClass)
		s.fetches.WithLabelValues(class).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
		}
	case progress.StageCandidateRejected:
		s.rejections.WithLabelValues(evt.Reason).Inc()
	case progress.StageLogoSelected:
		s.finish(evt, "logo")
	case progress.StageNoLogo:
		s.finish(evt, "no_logo")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, outcome string) {
	s.runsCompleted.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.active.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
