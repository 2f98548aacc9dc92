// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package health tracks per-source circuit breakers and reachability.
package health

import (
	"sync"
	"time"

	"github.com/stacklok/regbridge/pkg/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen rejects requests until the timeout elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen lets a single probe request through.
	CircuitHalfOpen CircuitState = "half_open"
	// CircuitDisabled is reported when breaking is turned off.
	CircuitDisabled CircuitState = "disabled"
)

// CircuitBreaker guards the requests to one source.
// States move Closed -> Open -> HalfOpen -> Closed.
type CircuitBreaker struct {
	mu sync.Mutex

	name string
	now  func() time.Time

	state            CircuitState
	failureCount     int
	failureThreshold int
	timeout          time.Duration

	lastStateChange time.Time
	lastFailureTime time.Time

	probeInFlight bool
}

// NewCircuitBreaker creates a closed circuit breaker. name is only used in logs.
func NewCircuitBreaker(failureThreshold int, timeout time.Duration, name string) *CircuitBreaker {
	return newCircuitBreakerWithClock(failureThreshold, timeout, name, time.Now)
}

func newCircuitBreakerWithClock(failureThreshold int, timeout time.Duration, name string, now func() time.Time) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		name:             name,
		now:              now,
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		lastStateChange:  now(),
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	previous := cb.state
	cb.failureCount = 0
	cb.probeInFlight = false

	if cb.state != CircuitClosed {
		cb.state = CircuitClosed
		cb.lastStateChange = cb.now()
		if previous == CircuitHalfOpen {
			logger.Infof("circuit breaker for backend %s closed after successful probe", cb.name)
		}
	}
}

// RecordFailure counts a failure and opens the circuit once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.probeInFlight = false

	switch {
	case cb.state == CircuitClosed && cb.failureCount >= cb.failureThreshold:
		cb.state = CircuitOpen
		cb.lastStateChange = cb.now()
		logger.Warnf("circuit breaker for backend %s opened after %d failures", cb.name, cb.failureCount)
	case cb.state == CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.lastStateChange = cb.now()
		logger.Warnf("circuit breaker for backend %s reopened, probe failed", cb.name)
	}
}

// Allow reports whether a request may proceed. An open circuit turns half-open
// once its timeout has elapsed and then admits exactly one probe.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.timeout {
			cb.state = CircuitHalfOpen
			cb.lastStateChange = cb.now()
			cb.probeInFlight = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the breaker state.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	if cb == nil {
		return CircuitSnapshot{State: CircuitDisabled}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitSnapshot{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastStateChange: cb.lastStateChange,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CircuitSnapshot is an immutable view of a circuit breaker.
type CircuitSnapshot struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failureCount"`
	LastStateChange time.Time    `json:"lastStateChange"`
	LastFailureTime time.Time    `json:"lastFailureTime,omitzero"`
}
