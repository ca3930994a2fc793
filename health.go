package imagegate

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the health of a generator.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker is a per-generator circuit breaker. Three failures within
// five minutes open the circuit for thirty seconds. After that the circuit
// is half-open: requests reach the generator again, the first success
// closes the circuit and the first failure reopens it. Concurrent requests
// are not limited to a single trial request while half-open.
type HealthTracker struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	generators map[string]*generatorHealth
}

type generatorHealth struct {
	state       HealthState
	failures    []time.Time
	unhealthyAt time.Time
}

// NewHealthTracker creates a HealthTracker. A nil clock means the real clock.
func NewHealthTracker(clock clockwork.Clock) *HealthTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthTracker{
		clock:      clock,
		generators: make(map[string]*generatorHealth),
	}
}

// State returns the current health of a generator.
func (h *HealthTracker) State(name string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh, ok := h.generators[name]
	if !ok {
		return HealthHealthy
	}
	if gh.state == HealthUnhealthy && h.clock.Since(gh.unhealthyAt) >= healthUnhealthyPeriod {
		gh.state = HealthHalfOpen
	}
	return gh.state
}

// RecordSuccess closes the circuit for a generator.
func (h *HealthTracker) RecordSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh := h.getOrCreate(name)
	gh.state = HealthHealthy
	gh.failures = gh.failures[:0]
}

// RecordFailure counts a failure. A failed half-open request reopens the
// circuit at once.
func (h *HealthTracker) RecordFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh := h.getOrCreate(name)
	now := h.clock.Now()

	switch gh.state {
	case HealthUnhealthy:
		return
	case HealthHalfOpen:
		gh.state = HealthUnhealthy
		gh.unhealthyAt = now
		return
	}

	cutoff := now.Add(-healthFailureWindow)
	valid := gh.failures[:0]
	for _, t := range gh.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	gh.failures = append(valid, now)

	if len(gh.failures) >= healthFailureThreshold {
		gh.state = HealthUnhealthy
		gh.unhealthyAt = now
	}
}

func (h *HealthTracker) getOrCreate(name string) *generatorHealth {
	gh, ok := h.generators[name]
	if !ok {
		gh = &generatorHealth{state: HealthHealthy}
		h.generators[name] = gh
	}
	return gh
}
