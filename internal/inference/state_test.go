package inference

import (
	"testing"
	"time"
)

func TestState_OpensAfterThreshold(t *testing.T) {
	s := NewState(3, time.Minute, time.Minute)
	now := time.Now()

	if s.RecordFailure(now) {
		t.Error("circuit should not open on first failure")
	}
	if s.RecordFailure(now) {
		t.Error("circuit should not open on second failure")
	}
	if !s.RecordFailure(now) {
		t.Error("circuit should open on third failure")
	}
	if !s.CircuitOpen(now) {
		t.Error("expected circuit open")
	}
}

func TestState_ClosesAfterCooldown(t *testing.T) {
	s := NewState(1, time.Minute, time.Minute)
	now := time.Now()

	s.RecordFailure(now)
	if !s.CircuitOpen(now) {
		t.Fatal("expected circuit open")
	}

	later := now.Add(61 * time.Second)
	if s.CircuitOpen(later) {
		t.Error("expected circuit closed after cooldown")
	}
	if s.ConsecutiveFailures() != 0 {
		t.Error("expected failure counter reset on expiry")
	}
}

func TestState_SuccessResetsCounter(t *testing.T) {
	s := NewState(3, time.Minute, time.Minute)
	now := time.Now()

	s.RecordFailure(now)
	s.RecordFailure(now)
	s.RecordSuccess()

	if s.ConsecutiveFailures() != 0 {
		t.Errorf("expected 0 failures, got %d", s.ConsecutiveFailures())
	}
	// The streak starts over: two more failures must not open a threshold-3 circuit.
	s.RecordFailure(now)
	s.RecordFailure(now)
	if s.CircuitOpen(now) {
		t.Error("circuit opened although streak was reset")
	}
}

func TestState_HealthCache(t *testing.T) {
	s := NewState(5, time.Minute, 30*time.Second)
	now := time.Now()

	if _, fresh := s.CachedHealth(now); fresh {
		t.Error("expected no fresh result before first probe")
	}

	s.SetHealth(true, now)
	healthy, fresh := s.CachedHealth(now.Add(10 * time.Second))
	if !fresh || !healthy {
		t.Errorf("expected fresh healthy result, got healthy=%v fresh=%v", healthy, fresh)
	}

	if _, fresh := s.CachedHealth(now.Add(31 * time.Second)); fresh {
		t.Error("expected stale result after TTL")
	}
}
