package fetch

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Allow("a.gov.in"); err != nil {
			t.Fatalf("Allow before threshold: %v", err)
		}
		b.Failure("a.gov.in")
	}

	if err := b.Allow("a.gov.in"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Failure("a.gov.in")
	b.Failure("a.gov.in")
	b.Success("a.gov.in")
	b.Failure("a.gov.in")
	b.Failure("a.gov.in")

	if err := b.Allow("a.gov.in"); err != nil {
		t.Errorf("Allow after reset: %v", err)
	}
}

func TestBreakerHostsIndependent(t *testing.T) {
	b := NewBreaker(1, time.Minute)

	b.Failure("down.gov.in")
	if err := b.Allow("down.gov.in"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("down host: err = %v, want ErrCircuitOpen", err)
	}
	if err := b.Allow("up.gov.in"); err != nil {
		t.Errorf("unaffected host rejected: %v", err)
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Failure("a.gov.in")
	if err := b.Allow("a.gov.in"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// After the cooldown exactly one trial request is admitted.
	now = now.Add(2 * time.Minute)
	if err := b.Allow("a.gov.in"); err != nil {
		t.Fatalf("trial request rejected: %v", err)
	}
	if err := b.Allow("a.gov.in"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent trial admitted: %v", err)
	}

	// Trial success closes the circuit.
	b.Success("a.gov.in")
	if err := b.Allow("a.gov.in"); err != nil {
		t.Errorf("Allow after trial success: %v", err)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Failure("a.gov.in")
	now = now.Add(2 * time.Minute)
	if err := b.Allow("a.gov.in"); err != nil {
		t.Fatalf("trial request rejected: %v", err)
	}
	b.Failure("a.gov.in")

	// Reopened with a fresh cooldown.
	if err := b.Allow("a.gov.in"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	now = now.Add(2 * time.Minute)
	if err := b.Allow("a.gov.in"); err != nil {
		t.Errorf("trial after second cooldown rejected: %v", err)
	}
}
