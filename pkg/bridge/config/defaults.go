// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"dario.cat/mergo"
)

const (
	defaultName    = "regbridge"
	defaultAddress = ":8080"
	defaultBaseURL = "http://localhost:8080"

	defaultAuthHeader = "Authorization"

	defaultRefreshInterval   = 5 * time.Minute
	defaultAggregateTimeout  = 15 * time.Second
	defaultMaxRetries        = 3
	defaultAggregateParallel = 4

	// DefaultFetchLimit is the number of candidates enriched per filter
	// request when the caller does not ask for more.
	DefaultFetchLimit = 25
	// DefaultMaxFetchLimit is the hard ceiling of the fetchlimit parameter.
	DefaultMaxFetchLimit = 200

	defaultFilterConcurrency  = 8
	defaultFilterFetchTimeout = 5 * time.Second
	defaultFilterDeadline     = 10 * time.Second
	defaultIndexTTL           = 2 * time.Minute

	defaultCacheTTL  = 5 * time.Minute
	defaultRedisAddr = "localhost:6379"

	defaultCircuitBreakerFailureThreshold = 5
	defaultCircuitBreakerTimeout          = 60 * time.Second
)

// DefaultConfig returns a fully populated configuration without backends.
// This is the single source of truth for defaults.
func DefaultConfig() *Config {
	prom := true
	return &Config{
		Name:    defaultName,
		BaseURL: defaultBaseURL,
		Address: defaultAddress,
		IncomingAuth: &IncomingAuthConfig{
			Type:   AuthTypeAnonymous,
			Header: defaultAuthHeader,
		},
		Aggregation: &AggregationConfig{
			RefreshInterval: Duration(defaultRefreshInterval),
			FetchTimeout:    Duration(defaultAggregateTimeout),
			MaxRetries:      defaultMaxRetries,
			Concurrency:     defaultAggregateParallel,
		},
		Filter: &FilterConfig{
			FetchLimit:    DefaultFetchLimit,
			MaxFetchLimit: DefaultMaxFetchLimit,
			Concurrency:   defaultFilterConcurrency,
			FetchTimeout:  Duration(defaultFilterFetchTimeout),
			Deadline:      Duration(defaultFilterDeadline),
			IndexTTL:      Duration(defaultIndexTTL),
		},
		Cache: &CacheConfig{
			Provider: CacheProviderMemory,
			TTL:      Duration(defaultCacheTTL),
		},
		CircuitBreaker: &CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: defaultCircuitBreakerFailureThreshold,
			Timeout:          Duration(defaultCircuitBreakerTimeout),
		},
		Telemetry: &TelemetryConfig{
			ServiceName: defaultName,
			Insecure:    true,
			Prometheus:  &prom,
		},
	}
}

// EnsureDefaults fills every zero or nil field with its default, preserving
// user-provided values.
func (c *Config) EnsureDefaults() error {
	if c == nil {
		return nil
	}
	defaults := DefaultConfig()

	// A present circuitBreaker block keeps its explicit enabled flag.
	if c.CircuitBreaker != nil {
		defaults.CircuitBreaker.Enabled = c.CircuitBreaker.Enabled
	}
	if err := mergo.Merge(c, defaults); err != nil {
		return err
	}
	if c.Cache.Provider == CacheProviderRedis && c.Cache.Redis == nil {
		c.Cache.Redis = &RedisConfig{}
	}
	if c.Cache.Redis != nil && c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = defaultRedisAddr
	}
	return nil
}
