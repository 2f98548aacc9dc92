// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"sync"
	"time"
)

// BreakerConfig configures the breakers handed out by a Tracker.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	Timeout          time.Duration
}

// Status is the health view of one source.
type Status struct {
	GroupType string          `json:"groupType"`
	Reachable bool            `json:"reachable"`
	LastCheck time.Time       `json:"lastCheck,omitzero"`
	LastError string          `json:"lastError,omitempty"`
	Circuit   CircuitSnapshot `json:"circuit"`
}

// Tracker keeps one circuit breaker per source and the reachability outcome
// of the latest refresh. It is safe for concurrent use.
type Tracker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	statuses map[string]Status
}

// NewTracker creates an empty tracker.
func NewTracker(cfg BreakerConfig) *Tracker {
	return &Tracker{
		cfg:      cfg,
		now:      time.Now,
		breakers: map[string]*CircuitBreaker{},
		statuses: map[string]Status{},
	}
}

// Breaker returns the breaker for a source, creating it on first use. It
// returns nil when breaking is disabled; a nil breaker always allows.
func (t *Tracker) Breaker(groupType string) *CircuitBreaker {
	if t == nil || !t.cfg.Enabled {
		return nil
	}
	t.mu.RLock()
	cb, ok := t.breakers[groupType]
	t.mu.RUnlock()
	if ok {
		return cb
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cb, ok := t.breakers[groupType]; ok {
		return cb
	}
	cb = newCircuitBreakerWithClock(t.cfg.FailureThreshold, t.cfg.Timeout, groupType, t.now)
	t.breakers[groupType] = cb
	return cb
}

// MarkReachable records a successful refresh of a source.
func (t *Tracker) MarkReachable(groupType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[groupType] = Status{GroupType: groupType, Reachable: true, LastCheck: t.now()}
}

// MarkUnreachable records a failed refresh of a source.
func (t *Tracker) MarkUnreachable(groupType string, err error) {
	st := Status{GroupType: groupType, LastCheck: t.now()}
	if err != nil {
		st.LastError = err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[groupType] = st
}

// Forget drops the reachability record of a source, e.g. once it is disabled.
func (t *Tracker) Forget(groupType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, groupType)
}

// Status returns the health view of a source.
func (t *Tracker) Status(groupType string) Status {
	cb := t.Breaker(groupType)

	t.mu.RLock()
	st, ok := t.statuses[groupType]
	t.mu.RUnlock()
	if !ok {
		st = Status{GroupType: groupType}
	}
	st.Circuit = cb.Snapshot()
	return st
}

// AnyReachable reports whether at least one of the given sources was
// reachable at its last refresh.
func (t *Tracker) AnyReachable(groupTypes []string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, gt := range groupTypes {
		if t.statuses[gt].Reachable {
			return true
		}
	}
	return false
}
