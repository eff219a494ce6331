// Package circuitbreaker sheds load from failing upstream providers.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State of one keyed circuit.
type State int

const (
	StateClosed   State = iota // requests flow through
	StateOpen                  // requests are rejected
	StateHalfOpen              // one probe in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vendord",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker tracks consecutive failures per key. A key whose failures
// reach the threshold trips open; after the cooldown one probe request
// is let through, and its outcome decides whether the circuit closes
// again.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
}

// New builds a Breaker. Non-positive arguments fall back to 5 failures
// and a 30 second cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a request for key may proceed. An open circuit
// whose cooldown has elapsed moves to half-open and admits one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok || c.state == StateClosed {
		return true
	}
	if c.state == StateHalfOpen {
		return false // probe already in flight
	}
	if time.Since(c.openedAt) < b.cooldown {
		return false
	}
	b.shift(c, key, StateHalfOpen)
	return true
}

// RecordSuccess clears the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.shift(c, key, StateClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failure against key. A failed probe reopens
// the circuit immediately; a closed circuit opens once failures reach
// the threshold.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.failures++
	c.openedAt = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.shift(c, key, StateOpen)
	case c.state == StateClosed && c.failures >= b.threshold:
		b.shift(c, key, StateOpen)
	}
}

// State returns the circuit state for key; unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// shift moves c to a new state and counts the transition. Caller holds b.mu.
func (b *Breaker) shift(c *circuit, key string, to State) {
	if c.state == to {
		return
	}
	stateTransitions.WithLabelValues(key, c.state.String(), to.String()).Inc()
	c.state = to
}
