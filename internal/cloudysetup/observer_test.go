package cloudysetup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNotify_FillsDerivedFields(t *testing.T) {
	rec := &RecordingObserver{}
	notify(context.Background(), rec, Event{Kind: EventAttempt, Err: errors.New("boom")})
	notify(context.Background(), nil, Event{Kind: EventAttempt})

	evs := rec.Events()
	if len(evs) != 1 {
		t.Fatalf("events = %d", len(evs))
	}
	if evs[0].Timestamp.IsZero() || evs[0].Error != "boom" {
		t.Errorf("event = %+v", evs[0])
	}
}

func TestMultiObserver(t *testing.T) {
	a, b := &RecordingObserver{}, &RecordingObserver{}
	var calls int
	m := MultiObserver{a, nil, b, ObserverFunc(func(context.Context, Event) { calls++ })}
	m.Observe(context.Background(), Event{Kind: EventFinished})
	if a.Count(EventFinished) != 1 || b.Count(EventFinished) != 1 || calls != 1 {
		t.Errorf("a=%d b=%d func=%d", a.Count(EventFinished), b.Count(EventFinished), calls)
	}
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := SlogObserver{Logger: logger}

	o.Observe(context.Background(), Event{Kind: EventAttempt, Token: "t1", Attempt: 2, Status: StatusPending})
	o.Observe(context.Background(), Event{Kind: EventAttempt, Token: "t1", Attempt: 3, Err: errors.New("refused")})
	o.Observe(context.Background(), Event{Kind: EventFinished, Token: "t1", Status: StatusSuccess})

	out := buf.String()
	for _, want := range []string{
		`level=DEBUG msg="poll attempt" token=t1 attempt=2 status=PENDING`,
		`level=WARN msg="poll attempt" token=t1 attempt=3 error=refused`,
		`level=INFO msg="poll finished" token=t1 attempt=0 status=SUCCESS`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
