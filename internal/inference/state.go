package inference

import (
	"sync"
	"time"
)

// State holds the process-wide health of the inference service: the
// consecutive-failure counter behind the circuit breaker and the cached
// health-probe result. Constructed once at startup and shared by reference
// so there is exactly one instance per process without hidden globals.
type State struct {
	mu sync.Mutex

	failureThreshold int
	circuitCooldown  time.Duration
	healthTTL        time.Duration

	consecutiveFailures int
	unavailableUntil    time.Time

	healthy         bool
	healthCheckedAt time.Time
}

// NewState creates a State with the given circuit-breaker threshold,
// circuit cooldown window, and health-cache TTL.
func NewState(failureThreshold int, circuitCooldown, healthTTL time.Duration) *State {
	return &State{
		failureThreshold: failureThreshold,
		circuitCooldown:  circuitCooldown,
		healthTTL:        healthTTL,
	}
}

// CircuitOpen reports whether calls must fail fast right now. When the
// cooldown window has expired the failure counter resets and the circuit
// closes again.
func (s *State) CircuitOpen(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailableUntil.IsZero() {
		return false
	}
	if now.Before(s.unavailableUntil) {
		return true
	}
	// Window expired: close the circuit and start counting fresh.
	s.unavailableUntil = time.Time{}
	s.consecutiveFailures = 0
	return false
}

// RecordFailure increments the consecutive-failure counter and opens the
// circuit once the threshold is reached. Returns true when this failure
// opened the circuit.
func (s *State) RecordFailure(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFailures++
	if s.consecutiveFailures >= s.failureThreshold && s.unavailableUntil.IsZero() {
		s.unavailableUntil = now.Add(s.circuitCooldown)
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and closes the circuit.
func (s *State) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFailures = 0
	s.unavailableUntil = time.Time{}
}

// CachedHealth returns the last probe result and whether it is still fresh.
func (s *State) CachedHealth(now time.Time) (healthy, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthCheckedAt.IsZero() || now.Sub(s.healthCheckedAt) > s.healthTTL {
		return false, false
	}
	return s.healthy, true
}

// SetHealth stores a probe result.
func (s *State) SetHealth(healthy bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.healthy = healthy
	s.healthCheckedAt = now
}

// ConsecutiveFailures returns the current failure streak.
func (s *State) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}
