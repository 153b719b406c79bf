package cloudysetup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxAttempts bounds a poll session when no override is configured.
const DefaultMaxAttempts = 10

// DefaultCallTimeout bounds each individual control-plane call.
const DefaultCallTimeout = 30 * time.Second

// Poll outcome reasons.
const (
	ReasonTerminal  = "terminal status"
	ReasonExhausted = "max attempts reached"
	ReasonCancelled = "cancelled"
)

// PollAttempt records one status query of a session.
type PollAttempt struct {
	// Number is 0-based.
	Number int `json:"number"`
	// Wait is the sleep that preceded this attempt; zero for attempt 0.
	Wait time.Duration `json:"wait"`
	// Status is the observed status, or UNKNOWN when the query failed.
	Status OperationStatus `json:"status"`
	// Err is the query failure, if any.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// PollOutcome is the result of one poll session.
type PollOutcome struct {
	Token RequestToken `json:"token"`
	// Status is the terminal status, or UNKNOWN when the session ended
	// without observing one.
	Status OperationStatus `json:"status"`
	// Details is the last successfully observed progress event.
	Details *ProgressEvent `json:"details,omitempty"`
	// Attempts lists every query made, in order.
	Attempts []PollAttempt `json:"attempts"`
	// Reason says why the session ended.
	Reason string `json:"reason"`
	// Exhausted is set when the attempt budget ran out.
	Exhausted bool `json:"exhausted"`
	// LastObserved is the last status reported by the control plane, or
	// empty when every query failed.
	LastObserved OperationStatus `json:"lastObserved,omitempty"`
}

// Err returns ErrPollExhausted for exhausted sessions and nil otherwise.
// A FAILED or CANCELLED terminal status is reported through Status, not Err.
func (o *PollOutcome) Err() error {
	if o.Exhausted {
		return ErrPollExhausted
	}
	return nil
}

// Inconclusive reports whether the session ended without a terminal status.
func (o *PollOutcome) Inconclusive() bool {
	return !o.Status.IsTerminal()
}

// Poller drives the status-polling protocol for one request token at a time.
// A Poller holds no per-session state and may be reused.
type Poller struct {
	Client StatusQuerier
	// MaxAttempts bounds the number of status queries; defaults to 10.
	MaxAttempts int
	// Backoff computes waits between queries; the zero value is the default policy.
	Backoff Backoff
	// CallTimeout bounds each status query; defaults to 30s.
	CallTimeout time.Duration
	Observer    Observer
	Logger      *slog.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a Poller with default settings.
func NewPoller(client StatusQuerier) *Poller {
	return &Poller{Client: client, MaxAttempts: DefaultMaxAttempts, CallTimeout: DefaultCallTimeout}
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Poller) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *Poller) callTimeout() time.Duration {
	if p.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return p.CallTimeout
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll queries the status of token until a terminal status is observed or
// the attempt budget is spent. Query failures are recorded and the session
// continues. Exhaustion is not an error: the outcome has Status UNKNOWN and
// Exhausted set. The only error returned is ctx.Err() when the context ends
// during a wait, alongside the outcome so far.
func (p *Poller) Poll(ctx context.Context, token RequestToken, creds Credentials) (*PollOutcome, error) {
	if token == "" {
		return nil, newValidationError("RequestToken", "must not be empty")
	}
	if p.Client == nil {
		return nil, fmt.Errorf("poller has no control-plane client")
	}

	ctx, span := startSpan(ctx, "cloudysetup.Poll", attribute.String("request_token", string(token)))
	start := time.Now()
	outcome := &PollOutcome{Token: token, Status: StatusUnknown}
	var pollErr error
	defer func() {
		span.SetAttributes(
			attribute.String("status", string(outcome.Status)),
			attribute.Int("attempts", len(outcome.Attempts)),
		)
		endSpan(span, pollErr)
		pollOutcomesTotal.WithLabelValues(string(outcome.Status), outcome.Reason).Inc()
		pollDuration.Observe(time.Since(start).Seconds())
		notify(ctx, p.Observer, Event{
			Kind: EventFinished, Token: token, Attempt: len(outcome.Attempts),
			Status: outcome.Status, Message: outcome.Reason, Err: pollErr,
		})
	}()

	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxAttempts := p.maxAttempts()
	wait := p.Backoff.SeedWait()
	var previousWait time.Duration

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ev, err := p.query(ctx, token, creds)
		rec := PollAttempt{Number: attempt, Wait: previousWait, Status: StatusUnknown}
		if err != nil {
			rec.Err = err
			rec.Error = err.Error()
			pollAttemptsTotal.WithLabelValues("error").Inc()
			p.logger().Warn("status query failed", "token", token, "attempt", attempt, "error", err)
		} else {
			rec.Status = ev.OperationStatus
			outcome.Details = ev
			outcome.LastObserved = ev.OperationStatus
			pollAttemptsTotal.WithLabelValues(string(ev.OperationStatus)).Inc()
		}
		outcome.Attempts = append(outcome.Attempts, rec)
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("number", attempt),
			attribute.String("status", string(rec.Status)),
		))
		notify(ctx, p.Observer, Event{
			Kind: EventAttempt, Token: token, Attempt: attempt,
			Status: rec.Status, Wait: rec.Wait, Err: err,
			Message: statusMessage(ev),
		})

		if err == nil && ev.OperationStatus.IsTerminal() {
			outcome.Status = ev.OperationStatus
			outcome.Reason = ReasonTerminal
			return outcome, nil
		}
		if attempt == maxAttempts-1 {
			break
		}

		notify(ctx, p.Observer, Event{
			Kind: EventWaiting, Token: token, Attempt: attempt, Status: rec.Status, Wait: wait,
		})
		if err := sleep(ctx, wait); err != nil {
			outcome.Reason = ReasonCancelled
			pollErr = err
			return outcome, err
		}
		previousWait = wait
		wait = p.Backoff.NextWait(attempt, wait)
	}

	outcome.Reason = ReasonExhausted
	outcome.Exhausted = true
	p.logger().Info("poll attempts exhausted",
		"token", token, "attempts", maxAttempts, "last_status", outcome.LastObserved)
	return outcome, nil
}

// query runs one status call under the per-call timeout.
func (p *Poller) query(ctx context.Context, token RequestToken, creds Credentials) (*ProgressEvent, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout())
	defer cancel()
	ev, err := p.Client.QueryStatus(callCtx, token, creds)
	if err != nil {
		return nil, newControlPlaneError("GetResourceRequestStatus", err)
	}
	if ev == nil {
		return nil, newControlPlaneError("GetResourceRequestStatus", fmt.Errorf("empty progress event"))
	}
	return ev, nil
}

func statusMessage(ev *ProgressEvent) string {
	if ev == nil {
		return ""
	}
	return ev.StatusMessage
}
