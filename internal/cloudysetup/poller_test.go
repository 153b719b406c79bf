package cloudysetup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// scriptedQuerier returns the scripted responses in order, repeating the
// last one once the script runs out.
type scriptedQuerier struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	status  OperationStatus
	message string
	err     error
}

func (q *scriptedQuerier) QueryStatus(_ context.Context, token RequestToken, _ Credentials) (*ProgressEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.calls
	if i >= len(q.responses) {
		i = len(q.responses) - 1
	}
	q.calls++
	r := q.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &ProgressEvent{RequestToken: token, OperationStatus: r.status, StatusMessage: r.message}, nil
}

func (q *scriptedQuerier) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// recordingSleep records requested waits without sleeping.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestPoller(q StatusQuerier, maxAttempts int) (*Poller, *recordingSleep, *RecordingObserver) {
	rs := &recordingSleep{}
	obs := &RecordingObserver{}
	p := NewPoller(q)
	p.MaxAttempts = maxAttempts
	p.Observer = obs
	p.Backoff = Backoff{Jitter: func() float64 { return 0 }}
	p.sleep = rs.sleep
	return p, rs, obs
}

func TestPoll_PendingPendingSuccess(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{
		{status: StatusPending, message: "first"},
		{status: StatusPending, message: "second"},
		{status: StatusSuccess, message: "third"},
	}}
	p, rs, obs := newTestPoller(q, 10)

	out, err := p.Poll(context.Background(), "tok-1", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if q.Calls() != 3 {
		t.Errorf("queries = %d, want 3", q.Calls())
	}
	if out.Status != StatusSuccess {
		t.Errorf("Status = %s, want SUCCESS", out.Status)
	}
	if out.Details == nil || out.Details.StatusMessage != "third" {
		t.Errorf("Details = %+v, want third response", out.Details)
	}
	if out.Exhausted || out.Inconclusive() || out.Err() != nil {
		t.Errorf("unexpected exhaustion: %+v", out)
	}
	if len(out.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(out.Attempts))
	}
	if out.Attempts[0].Wait != 0 || out.Attempts[1].Wait != 2*time.Second || out.Attempts[2].Wait != 4*time.Second {
		t.Errorf("attempt waits = %v, %v, %v", out.Attempts[0].Wait, out.Attempts[1].Wait, out.Attempts[2].Wait)
	}
	if len(rs.waits) != 2 {
		t.Errorf("sleeps = %d, want 2", len(rs.waits))
	}
	if obs.Count(EventAttempt) != 3 || obs.Count(EventWaiting) != 2 || obs.Count(EventFinished) != 1 {
		t.Errorf("events attempt=%d waiting=%d finished=%d",
			obs.Count(EventAttempt), obs.Count(EventWaiting), obs.Count(EventFinished))
	}
}

func TestPoll_AlwaysPendingExhausts(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusPending}}}
	p, rs, _ := newTestPoller(q, 10)

	out, err := p.Poll(context.Background(), "tok-2", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if q.Calls() != 10 {
		t.Errorf("queries = %d, want 10", q.Calls())
	}
	if out.Status != StatusUnknown || !out.Exhausted || out.Reason != ReasonExhausted {
		t.Errorf("outcome = %+v, want UNKNOWN exhausted", out)
	}
	if !errors.Is(out.Err(), ErrPollExhausted) {
		t.Errorf("Err() = %v, want ErrPollExhausted", out.Err())
	}
	if out.LastObserved != StatusPending {
		t.Errorf("LastObserved = %s, want PENDING", out.LastObserved)
	}
	// No sleep after the final attempt.
	if len(rs.waits) != 9 {
		t.Errorf("sleeps = %d, want 9", len(rs.waits))
	}
	for i := 1; i < len(rs.waits); i++ {
		if rs.waits[i] < rs.waits[i-1] {
			t.Errorf("waits not monotonic: %v", rs.waits)
		}
	}
}

func TestPoll_QueryFailureDoesNotEndSession(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{
		{status: StatusPending},
		{status: StatusInProgress},
		{err: fmt.Errorf("dial tcp: connection refused")},
		{status: StatusInProgress},
		{status: StatusSuccess},
	}}
	p, _, obs := newTestPoller(q, 10)

	out, err := p.Poll(context.Background(), "tok-3", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if q.Calls() != 5 {
		t.Errorf("queries = %d, want 5", q.Calls())
	}
	if out.Status != StatusSuccess {
		t.Errorf("Status = %s, want SUCCESS", out.Status)
	}
	failed := out.Attempts[2]
	if failed.Err == nil || failed.Status != StatusUnknown {
		t.Fatalf("attempt 2 = %+v, want recorded failure", failed)
	}
	cpe := AsControlPlaneError(failed.Err)
	if cpe == nil {
		t.Fatalf("attempt error %T is not a ControlPlaneError", failed.Err)
	}
	if cpe.Category != ErrCategoryNetwork {
		t.Errorf("Category = %s, want network", cpe.Category)
	}
	var sawError bool
	for _, ev := range obs.Events() {
		if ev.Kind == EventAttempt && ev.Attempt == 2 && ev.Err != nil && ev.Error != "" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an attempt event carrying the query error")
	}
}

func TestPoll_AllQueriesFail(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{err: errors.New("boom")}}}
	p, _, _ := newTestPoller(q, 4)

	out, err := p.Poll(context.Background(), "tok-4", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if q.Calls() != 4 {
		t.Errorf("queries = %d, want 4", q.Calls())
	}
	if !out.Exhausted || out.LastObserved != "" || out.Details != nil {
		t.Errorf("outcome = %+v, want exhausted with nothing observed", out)
	}
}

func TestPoll_TerminalStatuses(t *testing.T) {
	for _, status := range []OperationStatus{StatusFailed, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusInProgress}, {status: status}}}
			p, _, _ := newTestPoller(q, 10)
			out, err := p.Poll(context.Background(), "tok", Credentials{})
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if out.Status != status || out.Exhausted || out.Inconclusive() {
				t.Errorf("outcome = %+v, want terminal %s", out, status)
			}
			if q.Calls() != 2 {
				t.Errorf("queries = %d, want 2", q.Calls())
			}
		})
	}
}

func TestPoll_UnknownStatusKeepsPolling(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusUnknown}, {status: StatusSuccess}}}
	p, _, _ := newTestPoller(q, 10)
	out, err := p.Poll(context.Background(), "tok", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if out.Status != StatusSuccess || q.Calls() != 2 {
		t.Errorf("status=%s calls=%d, want SUCCESS after 2", out.Status, q.Calls())
	}
}

func TestPoll_SingleAttemptNeverSleeps(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusPending}}}
	p, rs, _ := newTestPoller(q, 1)
	out, err := p.Poll(context.Background(), "tok", Credentials{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !out.Exhausted || len(rs.waits) != 0 {
		t.Errorf("exhausted=%v sleeps=%d, want exhausted without sleeping", out.Exhausted, len(rs.waits))
	}
}

func TestPoll_CancelledDuringSleep(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusPending}}}
	p := NewPoller(q)
	p.Backoff = Backoff{Seed: time.Hour, Max: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out, err := p.Poll(ctx, "tok-5", Credentials{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Poll took %s after cancellation", time.Since(start))
	}
	if out == nil || out.Status != StatusUnknown || out.Reason != ReasonCancelled || out.Exhausted {
		t.Errorf("outcome = %+v, want UNKNOWN cancelled", out)
	}
	if q.Calls() != 1 {
		t.Errorf("queries = %d, want 1", q.Calls())
	}
}

func TestPoll_PerCallTimeout(t *testing.T) {
	var deadlines []bool
	q := queryFunc(func(ctx context.Context, token RequestToken) (*ProgressEvent, error) {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
		return &ProgressEvent{RequestToken: token, OperationStatus: StatusSuccess}, nil
	})
	p, _, _ := newTestPoller(q, 3)
	p.CallTimeout = time.Second
	if _, err := p.Poll(context.Background(), "tok", Credentials{}); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(deadlines) != 1 || !deadlines[0] {
		t.Errorf("deadlines = %v, want one query with a deadline", deadlines)
	}
}

func TestPoll_EmptyToken(t *testing.T) {
	q := &scriptedQuerier{responses: []scriptedResponse{{status: StatusSuccess}}}
	p, _, _ := newTestPoller(q, 3)
	_, err := p.Poll(context.Background(), "", Credentials{})
	if AsValidationError(err) == nil {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if q.Calls() != 0 {
		t.Errorf("queries = %d, want 0", q.Calls())
	}
}

type queryFunc func(ctx context.Context, token RequestToken) (*ProgressEvent, error)

func (f queryFunc) QueryStatus(ctx context.Context, token RequestToken, _ Credentials) (*ProgressEvent, error) {
	return f(ctx, token)
}
