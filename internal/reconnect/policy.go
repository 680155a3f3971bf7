// Package reconnect computes backoff and heartbeat timing for a persistent
// transport connection. The policy carries no mutable state; the transport
// monitor owns attempt counting and timer scheduling.
package reconnect

import (
	"math"
	"math/rand"
	"time"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/observability"
)

// Policy is an immutable reconnect policy
type Policy struct {
	initial     time.Duration
	max         time.Duration
	factor      float64
	jitter      float64
	maxAttempts int
	heartbeat   time.Duration
}

// NewPolicy builds a policy from configuration, clamping out-of-range values
func NewPolicy(cfg config.ReconnectConfig) Policy {
	p := Policy{
		initial:     time.Duration(cfg.InitialMs) * time.Millisecond,
		max:         time.Duration(cfg.MaxMs) * time.Millisecond,
		factor:      cfg.Factor,
		jitter:      cfg.Jitter,
		maxAttempts: cfg.MaxAttempts,
		heartbeat:   time.Duration(cfg.HeartbeatSeconds) * time.Second,
	}

	if p.initial <= 0 {
		p.initial = 500 * time.Millisecond
	}
	if p.max < p.initial {
		p.max = p.initial
	}
	if p.factor < 1 {
		p.factor = 1
	}
	if p.jitter < 0 {
		p.jitter = 0
	}
	if p.jitter > 1 {
		p.jitter = 1
	}

	return p
}

// Delay suggests the wait before reconnect attempt n (zero-based), randomized
// by up to the jitter fraction in either direction.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := float64(p.initial) * math.Pow(p.factor, float64(attempt))
	if base > float64(p.max) {
		base = float64(p.max)
	}

	if p.jitter > 0 {
		// Uniform in [-jitter, +jitter]
		base *= 1 + p.jitter*(2*rand.Float64()-1)
	}
	if base < 0 {
		base = 0
	}

	delay := time.Duration(base)
	observability.RecordReconnectDelay(delay)
	return delay
}

// Exhausted reports whether attempt n exceeds the attempt budget.
// A zero budget means unlimited attempts.
func (p Policy) Exhausted(attempt int) bool {
	return p.maxAttempts > 0 && attempt >= p.maxAttempts
}

// HeartbeatInterval returns the interval between liveness pings
func (p Policy) HeartbeatInterval() time.Duration {
	return p.heartbeat
}
