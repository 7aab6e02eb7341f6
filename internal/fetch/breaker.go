package fetch

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a host's circuit breaker is open and the
// request is short-circuited without touching the network.
var ErrCircuitOpen = errors.New("circuit open for host")

const (
	// DefaultFailureThreshold is how many consecutive failures open a
	// host's circuit.
	DefaultFailureThreshold = 5
	// DefaultCooldown is how long an open circuit rejects requests before
	// allowing a trial.
	DefaultCooldown = 30 * time.Second
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type hostCircuit struct {
	state    circuitState
	failures int
	openedAt time.Time
	// trialInFlight guards the single probe allowed in half-open.
	trialInFlight bool
}

// Breaker tracks failure state per host. One breaker instance covers all
// hosts; state is keyed by hostname, not by URL.
type Breaker struct {
	mu        sync.Mutex
	hosts     map[string]*hostCircuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreaker creates a Breaker. Non-positive threshold or cooldown select
// the defaults.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		hosts:     make(map[string]*hostCircuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a request to the host may proceed. An open circuit
// past its cooldown admits exactly one trial request; its outcome, reported
// via Success or Failure, decides the next state.
func (b *Breaker) Allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	switch c.state {
	case circuitClosed:
		return nil
	case circuitOpen:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		c.state = circuitHalfOpen
		c.trialInFlight = true
		return nil
	case circuitHalfOpen:
		if c.trialInFlight {
			return ErrCircuitOpen
		}
		c.trialInFlight = true
		return nil
	}
	return nil
}

// Success records a successful request and closes the host's circuit.
func (b *Breaker) Success(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	c.state = circuitClosed
	c.failures = 0
	c.trialInFlight = false
}

// Failure records a failed request. Reaching the consecutive-failure
// threshold, or failing the half-open trial, opens the circuit.
func (b *Breaker) Failure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	switch c.state {
	case circuitHalfOpen:
		c.state = circuitOpen
		c.openedAt = b.now()
		c.trialInFlight = false
	default:
		c.failures++
		if c.failures >= b.threshold {
			c.state = circuitOpen
			c.openedAt = b.now()
		}
	}
}

func (b *Breaker) circuit(host string) *hostCircuit {
	c, ok := b.hosts[host]
	if !ok {
		c = &hostCircuit{}
		b.hosts[host] = c
	}
	return c
}
