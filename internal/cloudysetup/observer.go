package cloudysetup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies the stage a progress Event describes.
type EventKind string

// Progress event kinds.
const (
	// EventDispatched fires once a request has been submitted.
	EventDispatched EventKind = "dispatched"
	// EventAttempt fires after every status query, successful or not.
	EventAttempt EventKind = "attempt"
	// EventWaiting fires before each sleep between queries.
	EventWaiting EventKind = "waiting"
	// EventFinished fires once when a poll session ends.
	EventFinished EventKind = "finished"
)

// Event is one progress notification from a dispatch or poll session.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Token     RequestToken    `json:"token,omitempty"`
	Attempt   int             `json:"attempt"`
	Status    OperationStatus `json:"status,omitempty"`
	Wait      time.Duration   `json:"wait,omitempty"`
	Message   string          `json:"message,omitempty"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Observer receives progress events. Implementations must not block for
// long; the poll loop calls them synchronously.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiObserver fans events out to every non-nil observer in order.
type MultiObserver []Observer

// Observe forwards ev to each observer.
func (m MultiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// RecordingObserver keeps every event it sees. It is safe for concurrent use.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

// Observe records ev.
func (r *RecordingObserver) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *RecordingObserver) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were recorded.
func (r *RecordingObserver) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// SlogObserver writes events as structured log records.
type SlogObserver struct {
	Logger *slog.Logger
}

// Observe logs ev. Failed attempts log at warn level.
func (o SlogObserver) Observe(ctx context.Context, ev Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"token", string(ev.Token), "attempt", ev.Attempt}
	if ev.Status != "" {
		attrs = append(attrs, "status", string(ev.Status))
	}
	if ev.Wait > 0 {
		attrs = append(attrs, "wait", ev.Wait)
	}
	if ev.Message != "" {
		attrs = append(attrs, "message", ev.Message)
	}
	if ev.Err != nil {
		logger.WarnContext(ctx, "poll "+string(ev.Kind), append(attrs, "error", ev.Err)...)
		return
	}
	level := slog.LevelDebug
	if ev.Kind == EventFinished || ev.Kind == EventDispatched {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "poll "+string(ev.Kind), attrs...)
}

func notify(ctx context.Context, o Observer, ev Event) {
	if o == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Err != nil && ev.Error == "" {
		ev.Error = ev.Err.Error()
	}
	o.Observe(ctx, ev)
}
