package progress

import (
	"context"
	"sync"
	"time"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, and so does any
// caller-supplied observer.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}

// Scope stamps events with the run ID, domain and timestamp of one run before
// handing them to an Emitter. The zero Scope and a Scope over a nil Emitter
// drop everything.
type Scope struct {
	emitter Emitter
	runID   [16]byte
	domain  string
	now     func() time.Time
}

// NewScope binds emitter to one run.
func NewScope(emitter Emitter, runID [16]byte, domain string) Scope {
	return Scope{emitter: emitter, runID: runID, domain: domain, now: time.Now}
}

// Emit fills RunID, Domain and TS (when unset) and forwards evt.
func (s Scope) Emit(evt Event) {
	if s.emitter == nil {
		return
	}
	evt.RunID = s.runID
	if evt.Domain == "" {
		evt.Domain = s.domain
	}
	if evt.TS.IsZero() {
		now := time.Now
		if s.now != nil {
			now = s.now
		}
		evt.TS = now().UTC()
	}
	s.emitter.Emit(evt)
}

// Enabled reports whether events go anywhere.
func (s Scope) Enabled() bool {
	return s.emitter != nil
}

// Recorder is an Emitter that keeps every event in memory. It backs the
// candidates trace in the CLI and is handy in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Stages returns the stage of each recorded event in order.
func (r *Recorder) Stages() []Stage {
	events := r.Events()
	out := make([]Stage, len(events))
	for i, evt := range events {
		out[i] = evt.Stage
	}
	return out
}
