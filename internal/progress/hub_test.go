package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestHubBatchBySize verifies the hub flushes as soon as the batch limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageDiscoveryStart))
	hub.Emit(sampleEvent(StageFetchStart))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies a partial batch is flushed after MaxBatchWait.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageDiscoveryStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := &Hub{
		cfg:    Config{}.withDefaults(),
		events: make(chan Event),
		logger: zap.New(core),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageDiscoveryStart))
	hub.Emit(sampleEvent(StageDiscoveryStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Progress events dropped").Len())
	// The first drop is logged and reset; the second is still pending.
	assert.EqualValues(t, 1, hub.Dropped())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageNoLogo))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	assert.True(t, sink.Closed())

	// Emit after Close is ignored.
	hub.Emit(sampleEvent(StageNoLogo))
	assert.Len(t, sink.Batches(), 1)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	bad := sampleEvent(StageFetchDone)
	bad.StatusClass = ""
	hub.Emit(bad)
	hub.Emit(Event{Stage: StageNoLogo})

	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubSinkErrorsAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	failing := sinkFunc(func(context.Context, []Event) error {
		return errors.New("disk full")
	})
	hub := NewHub(Config{MaxBatchEvents: 1, Logger: zap.New(core)}, failing, nil)
	hub.Emit(sampleEvent(StageDiscoveryStart))
	require.NoError(t, hub.Close(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Progress sink consume failed").Len())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Event) {}},
		{name: "no run id", mutate: func(e *Event) { e.RunID = [16]byte{} }, wantErr: true},
		{name: "no timestamp", mutate: func(e *Event) { e.TS = time.Time{} }, wantErr: true},
		{name: "no domain", mutate: func(e *Event) { e.Domain = "" }, wantErr: true},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "JOB_START" }, wantErr: true},
		{name: "rejection without reason", mutate: func(e *Event) {
			e.Stage = StageCandidateRejected
			e.Reason = ""
		}, wantErr: true},
		{name: "negative duration", mutate: func(e *Event) { e.Dur = -time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageFetchDone)
			tt.mutate(&evt)
			if tt.wantErr {
				assert.Error(t, evt.Validate())
				return
			}
			assert.NoError(t, evt.Validate())
		})
	}
}

func TestScopeStampsEvents(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	id := UUIDToBytes(uuid.New())
	scope := NewScope(rec, id, "example.com")
	require.True(t, scope.Enabled())

	scope.Emit(Event{Stage: StageDiscoveryStart})
	scope.Emit(Event{Stage: StageFetchStart, URL: "https://example.com/logo.svg", Rank: 1})

	events := rec.Events()
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, id, evt.RunID)
		assert.Equal(t, "example.com", evt.Domain)
		assert.False(t, evt.TS.IsZero())
		assert.NoError(t, evt.Validate())
	}
	assert.Equal(t, []Stage{StageDiscoveryStart, StageFetchStart}, rec.Stages())

	// A scope without an emitter is inert.
	var none Scope
	assert.False(t, none.Enabled())
	none.Emit(Event{Stage: StageNoLogo})
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Status2xx, ClassifyStatus(200))
	assert.Equal(t, Status3xx, ClassifyStatus(304))
	assert.Equal(t, Status4xx, ClassifyStatus(404))
	assert.Equal(t, Status5xx, ClassifyStatus(503))
	assert.Equal(t, StatusOther, ClassifyStatus(0))
}

// sinkFunc adapts a consume function to Sink for tests.
type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (f sinkFunc) Close(context.Context) error {
	return nil
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID:  UUIDToBytes(uuid.New()),
		TS:     time.Now(),
		Stage:  stage,
		Domain: "example.com",
		URL:    "https://example.com/favicon.svg",
		Reason: "too_small",
	}
	if stage == StageFetchDone {
		evt.StatusClass = Status2xx
	}
	return evt
}
