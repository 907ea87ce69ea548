// Package breaker provides a per-named-operation circuit breaker used to
// isolate failures in external dependencies. Each breaker is an independent
// three-state machine (closed, open, half-open) with its own lock, so
// unrelated operations never serialize on shared state.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the circuit's position in the FSM.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes a single circuit.
type Config struct {
	// FailureThreshold is the number of consecutive counted failures that
	// trips a closed circuit open.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before the
	// next call is allowed through as a half-open probe.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes while
	// half-open required to close the circuit again.
	SuccessThreshold int

	// Timeout bounds each protected call. A call exceeding it is treated
	// as a failure and surfaces a *TimeoutError.
	Timeout time.Duration

	// CountFailure decides whether an error counts toward
	// FailureThreshold. When nil every error counts. The default wiring
	// installs a filter that skips domain errors so bad client input
	// cannot open a circuit that healthy traffic depends on.
	CountFailure func(error) bool
}

// DefaultConfig returns the baseline circuit configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		Timeout:          5 * time.Second,
	}
}

// CircuitOpenError is returned when a call is rejected because the circuit
// is open. RetryAfter tells the caller how long until the next probe is
// permitted.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %s is open, retry after %s", e.Name, e.RetryAfter)
}

// TimeoutError is returned when a protected call exceeds the circuit's
// configured timeout.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.Name, e.Timeout)
}

// Metrics is a point-in-time snapshot of a circuit's bookkeeping.
type Metrics struct {
	Name            string     `json:"name"`
	State           State      `json:"state"`
	FailureCount    int        `json:"failure_count"`
	SuccessCount    int        `json:"success_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime *time.Time `json:"last_success_time,omitempty"`
	TotalSuccesses  int64      `json:"total_successes"`
	TotalFailures   int64      `json:"total_failures"`
	UptimePercent   float64    `json:"uptime_percent"`
}

// Breaker is a single named circuit. All state transitions happen under one
// mutex so FSM bookkeeping stays atomic under concurrent callers.
type Breaker struct {
	name string
	cfg  Config

	mu             sync.Mutex
	state          State
	failureCount   int
	successCount   int
	lastFailure    time.Time
	lastSuccess    time.Time
	totalSuccesses int64
	totalFailures  int64

	now func() time.Time
}

// New creates a closed breaker with the given name and config.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Name returns the circuit's operation name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op under the circuit's protection. If the circuit is open
// and the recovery timeout has not elapsed, op is not invoked and a
// *CircuitOpenError is returned immediately. Otherwise op runs under the
// configured timeout; exceeding it yields a *TimeoutError counted as a
// failure. The original error from op is returned unchanged.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(cctx)
	}()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, context.DeadlineExceeded) && cctx.Err() == context.DeadlineExceeded {
			err = &TimeoutError{Name: b.name, Timeout: b.cfg.Timeout}
		}
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.Canceled) {
			// Caller-driven cancellation is not a dependency failure.
			return cctx.Err()
		}
		err = &TimeoutError{Name: b.name, Timeout: b.cfg.Timeout}
	}

	if err != nil {
		b.recordFailure(err)
		return err
	}
	b.recordSuccess()
	return nil
}

// allow checks admission, performing the lazy open -> half_open transition
// when the recovery timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed < b.cfg.RecoveryTimeout {
		return &CircuitOpenError{Name: b.name, RetryAfter: b.cfg.RecoveryTimeout - elapsed}
	}

	b.state = StateHalfOpen
	b.successCount = 0
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.lastSuccess = b.now()
	b.successCount++

	switch b.state {
	case StateHalfOpen:
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
		}
	case StateClosed:
		// A success breaks a run of consecutive failures.
		b.failureCount = 0
	}
}

func (b *Breaker) recordFailure(err error) {
	if b.cfg.CountFailure != nil && !b.cfg.CountFailure(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.lastFailure = b.now()
	b.failureCount++
	b.successCount = 0

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		// Any failure during the probe reopens the circuit and restarts
		// the recovery clock (lastFailure was just stamped above).
		b.state = StateOpen
	}
}

// Reset returns the circuit to closed with all counters cleared. This is an
// explicit admin action, never part of normal traffic.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}

// State returns the circuit's current state without admitting a call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot of the circuit's bookkeeping.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		Name:           b.name,
		State:          b.state,
		FailureCount:   b.failureCount,
		SuccessCount:   b.successCount,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		m.LastFailureTime = &t
	}
	if !b.lastSuccess.IsZero() {
		t := b.lastSuccess
		m.LastSuccessTime = &t
	}
	if total := b.totalSuccesses + b.totalFailures; total > 0 {
		m.UptimePercent = float64(b.totalSuccesses) / float64(total) * 100
	}
	return m
}
