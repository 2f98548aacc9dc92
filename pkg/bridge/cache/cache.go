// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache holds resource metadata fetched during filter enrichment so
// repeated filter requests do not refetch every candidate.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/regbridge/pkg/bridge/config"
)

// Cache stores raw metadata documents by key. Entries expire after the TTL
// given at construction. A cache is an optimization: implementations log
// their own failures and report them as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Close() error
}

// Key builds the cache key of one resource of one source.
func Key(groupType, groupID, resourceType, resourceID string) string {
	return strings.Join([]string{groupType, groupID, resourceType, resourceID}, "/")
}

// New builds the cache selected by cfg. A nil cfg or the "none" provider
// yields a cache that never stores anything.
func New(ctx context.Context, cfg *config.CacheConfig) (Cache, error) {
	if cfg == nil {
		return Noop{}, nil
	}
	ttl := cfg.TTL.Std()
	switch cfg.Provider {
	case config.CacheProviderNone:
		return Noop{}, nil
	case "", config.CacheProviderMemory:
		return NewMemory(ttl), nil
	case config.CacheProviderRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis cache requires a redis address")
		}
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
}

// Noop is a Cache that stores nothing.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set discards the value.
func (Noop) Set(context.Context, string, []byte) {}

// Close does nothing.
func (Noop) Close() error { return nil }

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

const defaultTTL = 5 * time.Minute
