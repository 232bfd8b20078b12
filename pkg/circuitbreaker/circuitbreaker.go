// Package circuitbreaker implements the Circuit Breaker pattern for fault tolerance.
// It protects the backend from hammering a failing notification endpoint.
// No external dependencies - uses only standard library.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state - requests are allowed through.
	StateClosed State = iota
	// StateOpen is the failure state - requests are blocked.
	StateOpen
	// StateHalfOpen is the recovery state - limited requests probe the endpoint.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit is open and requests are blocked.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is exhausted.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies this circuit breaker (for logging).
	Name string

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state before closing.
	SuccessThreshold int

	// Timeout is how long to stay open before transitioning to half-open.
	Timeout time.Duration

	// MaxHalfOpenRequests limits concurrent probes in half-open state.
	MaxHalfOpenRequests int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// Breaker implements the circuit breaker state machine.
type Breaker struct {
	mu sync.Mutex

	config Config

	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	openedAt         time.Time
}

// New creates a new Breaker.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxHalfOpenRequests <= 0 {
		config.MaxHalfOpenRequests = 1
	}
	return &Breaker{config: config, state: StateClosed}
}

// State returns the current state, accounting for open->half-open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs the operation through the breaker.
func (b *Breaker) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}

	err := operation(ctx)
	b.afterRequest(err == nil)
	return err
}

// beforeRequest decides whether the request may proceed.
func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.config.MaxHalfOpenRequests {
			return ErrTooManyRequests
		}
		b.halfOpenInFlight++
	}
	return nil
}

// afterRequest records the outcome and transitions state if needed.
func (b *Breaker) afterRequest(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.halfOpenInFlight--
	}

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens the circuit immediately.
		b.transition(StateOpen)
	}
}

// maybeHalfOpen moves an expired open circuit to half-open. Caller holds the lock.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.Timeout {
		b.transition(StateHalfOpen)
	}
}

// transition changes state and fires the callback. Caller holds the lock.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.failures = 0
	b.successes = 0
	b.halfOpenInFlight = 0
	if to == StateOpen {
		b.openedAt = time.Now()
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}
