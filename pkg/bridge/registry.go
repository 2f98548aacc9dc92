// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"sync"
)

// BackendRegistry is the process-wide set of backend descriptors.
//
// Reads are safe for concurrent use. Writes happen only through Register,
// SetEnabled and Replace; callers that need writes to be exclusive with an
// aggregator refresh go through the aggregator, which serializes them.
type BackendRegistry interface {
	// Get returns the descriptor for a group type.
	Get(groupType string) (BackendDescriptor, bool)

	// List returns every descriptor in registration order.
	List() []BackendDescriptor

	// Enabled returns the enabled descriptors in registration order.
	Enabled() []BackendDescriptor

	// Register adds a descriptor. Registering a group type that an enabled
	// source already holds fails with a *ModelConflictError; a disabled
	// holder is replaced.
	Register(desc BackendDescriptor) error

	// SetEnabled flips the enabled flag. Unknown group types fail with
	// ErrUnknownGroupType.
	SetEnabled(groupType string, enabled bool) error

	// Replace swaps the whole descriptor set, as on configuration reload.
	Replace(descs []BackendDescriptor) error

	// Version increases on every change.
	Version() uint64
}

type dynamicRegistry struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]BackendDescriptor
	version  uint64
}

// NewBackendRegistry builds a registry from an initial descriptor list.
func NewBackendRegistry(descs []BackendDescriptor) (BackendRegistry, error) {
	r := &dynamicRegistry{backends: map[string]BackendDescriptor{}}
	if err := r.Replace(descs); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *dynamicRegistry) Get(groupType string) (BackendDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.backends[groupType]
	return d, ok
}

func (r *dynamicRegistry) List() []BackendDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BackendDescriptor, 0, len(r.order))
	for _, gt := range r.order {
		out = append(out, r.backends[gt])
	}
	return out
}

func (r *dynamicRegistry) Enabled() []BackendDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BackendDescriptor, 0, len(r.order))
	for _, gt := range r.order {
		if d := r.backends[gt]; d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (r *dynamicRegistry) Register(desc BackendDescriptor) error {
	if desc.GroupType == "" {
		return fmt.Errorf("%w: backend group type is required", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.backends[desc.GroupType]
	if ok && existing.Enabled {
		return &ModelConflictError{GroupType: desc.GroupType, Existing: existing.BaseURL, Incoming: desc.BaseURL}
	}
	if !ok {
		r.order = append(r.order, desc.GroupType)
	}
	r.backends[desc.GroupType] = desc
	r.version++
	return nil
}

func (r *dynamicRegistry) SetEnabled(groupType string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.backends[groupType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroupType, groupType)
	}
	if d.Enabled == enabled {
		return nil
	}
	d.Enabled = enabled
	r.backends[groupType] = d
	r.version++
	return nil
}

func (r *dynamicRegistry) Replace(descs []BackendDescriptor) error {
	next := make(map[string]BackendDescriptor, len(descs))
	order := make([]string, 0, len(descs))
	for _, d := range descs {
		if d.GroupType == "" {
			return fmt.Errorf("%w: backend group type is required", ErrInvalidConfig)
		}
		if existing, ok := next[d.GroupType]; ok {
			return &ModelConflictError{GroupType: d.GroupType, Existing: existing.BaseURL, Incoming: d.BaseURL}
		}
		next[d.GroupType] = d
		order = append(order, d.GroupType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = next
	r.order = order
	r.version++
	return nil
}

func (r *dynamicRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
