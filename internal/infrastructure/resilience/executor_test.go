package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastPolicy(attempts int, breaker bool) Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:          breaker,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      50 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		},
	}
}

type observerFake struct {
	mu      sync.Mutex
	retries []int
	states  []string
}

func (o *observerFake) RetryScheduled(_ string, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, attempt)
}

func (o *observerFake) BreakerStateChanged(_, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

var errTemp = errors.New("temporary")

func retryTemp(err error) ErrorClassification {
	return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	obs := &observerFake{}
	exec := NewExecutor(fastPolicy(3, false), nil, WithObserver(obs))

	attempts := 0
	err := exec.Execute(context.Background(), OpSearchBulk, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, retryTemp)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(obs.retries) != 2 || obs.retries[1] != 2 {
		t.Fatalf("unexpected retry events: %v", obs.retries)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastPolicy(3, false), nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), OpSMTPSend, func(context.Context) error {
		attempts++
		return errPermanent
	}, retryTemp)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteUsesOperationPolicy(t *testing.T) {
	exec := NewExecutor(fastPolicy(1, false), nil, WithPolicy(OpSMTPSend, fastPolicy(4, false)))

	count := func(op string) int {
		attempts := 0
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			attempts++
			return errTemp
		}, retryTemp)
		return attempts
	}
	if got := count(OpSearchBulk); got != 1 {
		t.Fatalf("base policy: expected 1 attempt, got %d", got)
	}
	if got := count(OpSMTPSend); got != 4 {
		t.Fatalf("override: expected 4 attempts, got %d", got)
	}
}

func TestExecuteStopsOnCanceledContext(t *testing.T) {
	exec := NewExecutor(fastPolicy(5, false), nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := exec.Execute(ctx, OpNATSPublish, func(context.Context) error {
		attempts++
		cancel()
		return errTemp
	}, retryTemp)
	if !errors.Is(err, errTemp) || attempts != 1 {
		t.Fatalf("expected one attempt returning the last error, got %d attempts and %v", attempts, err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	obs := &observerFake{}
	exec := NewExecutor(fastPolicy(1, true), nil, WithObserver(obs))

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), OpSearchBulk, func(context.Context) error {
			return errTemp
		}, nil)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), OpSearchBulk, func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(obs.states) != 1 || obs.states[0] != "open" {
		t.Fatalf("unexpected breaker events: %v", obs.states)
	}

	if err := exec.Execute(context.Background(), OpSMTPSend, func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("other operations keep their own breaker, got %v", err)
	}
}

func TestPolicyDefaultsAndBackoff(t *testing.T) {
	p := Policy{Retry: RetryPolicy{InitialBackoff: time.Second}}.withDefaults()
	if p.Retry.MaxAttempts != 3 || p.Retry.MaxBackoff != time.Second || p.Breaker.MinRequests != 10 {
		t.Fatalf("unexpected defaults: %+v", p)
	}

	r := MailPolicy().Retry
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := r.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "server error", err: &HTTPStatusError{Operation: "bulk", StatusCode: 503}, retryable: true, record: true},
		{name: "throttled", err: &HTTPStatusError{Operation: "bulk", StatusCode: 429}, retryable: true, record: true},
		{name: "bad request", err: &HTTPStatusError{Operation: "bulk", StatusCode: 400}},
		{name: "other", err: errors.New("boom"), record: true},
	}
	for _, tc := range cases {
		got := ClassifyTransport(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}
