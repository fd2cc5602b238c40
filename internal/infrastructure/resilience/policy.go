package resilience

import "time"

// Operation names used as breaker keys and metric labels.
const (
	OpSearchBulk  = "search.bulk"
	OpSMTPSend    = "smtp.send"
	OpNATSPublish = "nats.publish"
)

// Policy bounds retries and breaker behaviour for one external operation.
type Policy struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type BreakerPolicy struct {
	Enabled bool
	// MinRequests is the request count in one window before the ratio applies.
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

func DefaultPolicy() Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// MailPolicy retries slowly: relays answer 4xx for greylisting and rate limits.
func MailPolicy() Policy {
	p := DefaultPolicy()
	p.Retry.MaxAttempts = 4
	p.Retry.InitialBackoff = time.Second
	p.Retry.MaxBackoff = 10 * time.Second
	p.Breaker.MinRequests = 5
	p.Breaker.OpenTimeout = 2 * time.Minute
	return p
}

// withDefaults fills zero or out of range values from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	r, b := p.Retry, p.Breaker

	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff < r.InitialBackoff {
		r.MaxBackoff = max(def.Retry.MaxBackoff, r.InitialBackoff)
	}
	if r.Multiplier < 1 {
		r.Multiplier = def.Retry.Multiplier
	}

	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return Policy{Retry: r, Breaker: b}
}

// Backoff returns the wait before the given retry, attempt counting from 1.
func (r RetryPolicy) Backoff(attempt int) time.Duration {
	wait := r.InitialBackoff
	for i := 1; i < attempt && wait < r.MaxBackoff; i++ {
		wait = time.Duration(float64(wait) * r.Multiplier)
	}
	return min(wait, r.MaxBackoff)
}
