// Package health runs named subsystem checks for liveness reporting.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds a single checker so one stuck subsystem cannot
// hang the health endpoint.
const checkTimeout = 5 * time.Second

// Status is the reported outcome of one subsystem check.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem. A nil error means healthy; detail is
// optional extra context either way (an error's message overrides it).
type Checker func(ctx context.Context) (detail string, err error)

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Checker
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker. Checks run in registration order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checks = append(r.checks, namedCheck{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker and reports the aggregate
// result alongside per-subsystem statuses.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checks := make([]namedCheck, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, 0, len(checks))
	for _, nc := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		detail, err := nc.check(cctx)
		cancel()

		st := Status{Name: nc.name, Healthy: err == nil, Detail: detail}
		if err != nil {
			st.Detail = err.Error()
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
