// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/stacklok/regbridge/pkg/logger"
)

// Memory is a process-local Cache.
type Memory struct {
	items *gocache.Cache
}

// NewMemory creates an in-memory cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	ttl = ttlOrDefault(ttl)
	return &Memory{items: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached value for key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		logger.Warnf("metadata cache entry %s has unexpected type %T", key, v)
		return nil, false
	}
	return b, true
}

// Set stores value under key with the default expiration.
func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.items.SetDefault(key, value)
}

// Len returns the number of stored entries, expired ones included until
// the next cleanup.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}
