package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker events, typically to export metrics.
type Observer interface {
	RetryScheduled(operation string, attempt int)
	BreakerStateChanged(operation, state string)
}

type Option func(*Executor)

// WithPolicy overrides the base policy for one operation.
func WithPolicy(operation string, p Policy) Option {
	return func(e *Executor) {
		e.policies[operation] = p.withDefaults()
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// Executor guards calls to the search index, the mail relay and the queue.
// Each operation gets its own breaker so a failing relay does not block publishing.
type Executor struct {
	base     Policy
	policies map[string]Policy
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(base Policy, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		base:     base.withDefaults(),
		policies: map[string]Policy{},
		logger:   logger,
		breakers: map[string]*gobreaker.CircuitBreaker[struct{}]{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) policy(operation string) Policy {
	if p, ok := e.policies[operation]; ok {
		return p
	}
	return e.base
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil callback for %q", operation)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = recordOnly
	}
	p := e.policy(op)

	if !p.Breaker.Enabled {
		return e.retry(ctx, op, p.Retry, fn, classify)
	}
	_, err := e.breaker(op, p.Breaker, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, p.Retry, fn, classify)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, p RetryPolicy, fn func(context.Context) error, classify ErrorClassifier) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !classify(err).Retryable {
			return err
		}

		wait := p.Backoff(attempt)
		e.logger.Warn("external_call_retry",
			"operation", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.observer != nil {
			e.observer.RetryScheduled(op, attempt)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) breaker(op string, p BreakerPolicy, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: p.HalfOpenMaxCalls,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= p.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.observer != nil {
				e.observer.BreakerStateChanged(name, to.String())
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

// IsCircuitOpen reports whether err was returned by a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordOnly(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
