// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/stacklok/regbridge/pkg/bridge"
)

var groupTypePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// DefaultValidator implements configuration validation.
type DefaultValidator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate checks a configuration that has been through EnsureDefaults.
func (v *DefaultValidator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", bridge.ErrInvalidConfig)
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	collect(v.validateBasicFields(cfg))
	collect(v.validateIncomingAuth(cfg.IncomingAuth))
	for i, b := range cfg.Backends {
		collect(v.validateBackend(i, b))
	}
	collect(v.validateUniqueGroupTypes(cfg.Backends))
	collect(v.validateAggregation(cfg.Aggregation))
	collect(v.validateFilter(cfg.Filter))
	collect(v.validateCache(cfg.Cache))
	collect(v.validateCircuitBreaker(cfg.CircuitBreaker))

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", bridge.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateBackend checks a single backend entry, e.g. one registered at
// runtime.
func (v *DefaultValidator) ValidateBackend(b BackendConfig) error {
	if err := v.validateBackend(0, b); err != nil {
		return fmt.Errorf("%w: %w", bridge.ErrInvalidConfig, err)
	}
	return nil
}

func (*DefaultValidator) validateBasicFields(cfg *Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateAbsoluteURL(cfg.BaseURL); err != nil {
		return fmt.Errorf("baseURL: %w", err)
	}
	if cfg.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}

func (*DefaultValidator) validateIncomingAuth(auth *IncomingAuthConfig) error {
	if auth == nil {
		return fmt.Errorf("incomingAuth is required")
	}
	switch auth.Type {
	case AuthTypeAnonymous:
		return nil
	case AuthTypeAPIKey:
		if len(auth.APIKeys) == 0 {
			return fmt.Errorf("incomingAuth.apiKeys is required for apikey auth")
		}
		for _, k := range auth.APIKeys {
			if k == "" {
				return fmt.Errorf("incomingAuth.apiKeys must not contain empty keys")
			}
		}
		return nil
	case AuthTypeJWT:
		if auth.JWT == nil || auth.JWT.Secret == "" {
			return fmt.Errorf("incomingAuth.jwt.secret is required for jwt auth")
		}
		return nil
	default:
		return fmt.Errorf("incomingAuth.type must be one of: %s, %s, %s",
			AuthTypeAPIKey, AuthTypeJWT, AuthTypeAnonymous)
	}
}

func (*DefaultValidator) validateBackend(i int, b BackendConfig) error {
	if b.GroupType == "" {
		return fmt.Errorf("backends[%d].groupType is required", i)
	}
	if !groupTypePattern.MatchString(b.GroupType) {
		return fmt.Errorf("backends[%d].groupType %q contains invalid characters", i, b.GroupType)
	}
	if bridge.IsReservedGroupType(b.GroupType) {
		return fmt.Errorf("backends[%d].groupType %q is reserved", i, b.GroupType)
	}
	if err := validateAbsoluteURL(b.URL); err != nil {
		return fmt.Errorf("backends[%d].url: %w", i, err)
	}
	if b.Timeout < 0 {
		return fmt.Errorf("backends[%d].timeout must not be negative", i)
	}
	if b.RateLimit != nil && (b.RateLimit.RPS < 0 || b.RateLimit.Burst < 0) {
		return fmt.Errorf("backends[%d].rateLimit must not be negative", i)
	}
	return nil
}

func (*DefaultValidator) validateUniqueGroupTypes(backends []BackendConfig) error {
	seen := make(map[string]string, len(backends))
	for _, b := range backends {
		if b.GroupType == "" {
			continue
		}
		if prev, ok := seen[b.GroupType]; ok {
			return fmt.Errorf("groupType %q is declared by both %s and %s", b.GroupType, prev, b.URL)
		}
		seen[b.GroupType] = b.URL
	}
	return nil
}

func (*DefaultValidator) validateAggregation(agg *AggregationConfig) error {
	if agg == nil {
		return fmt.Errorf("aggregation is required")
	}
	if agg.RefreshInterval <= 0 {
		return fmt.Errorf("aggregation.refreshInterval must be positive")
	}
	if agg.FetchTimeout <= 0 {
		return fmt.Errorf("aggregation.fetchTimeout must be positive")
	}
	if agg.MaxRetries < 0 {
		return fmt.Errorf("aggregation.maxRetries must not be negative")
	}
	if agg.Concurrency <= 0 {
		return fmt.Errorf("aggregation.concurrency must be positive")
	}
	return nil
}

func (*DefaultValidator) validateFilter(f *FilterConfig) error {
	if f == nil {
		return fmt.Errorf("filter is required")
	}
	if f.FetchLimit <= 0 {
		return fmt.Errorf("filter.fetchLimit must be positive")
	}
	if f.MaxFetchLimit < f.FetchLimit {
		return fmt.Errorf("filter.maxFetchLimit (%d) must not be below filter.fetchLimit (%d)", f.MaxFetchLimit, f.FetchLimit)
	}
	if f.Concurrency <= 0 {
		return fmt.Errorf("filter.concurrency must be positive")
	}
	if f.FetchTimeout <= 0 || f.Deadline <= 0 {
		return fmt.Errorf("filter.fetchTimeout and filter.deadline must be positive")
	}
	if f.IndexTTL < 0 {
		return fmt.Errorf("filter.indexTTL must not be negative")
	}
	return nil
}

func (*DefaultValidator) validateCache(c *CacheConfig) error {
	if c == nil {
		return fmt.Errorf("cache is required")
	}
	switch c.Provider {
	case CacheProviderMemory, CacheProviderNone:
	case CacheProviderRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis provider")
		}
	default:
		return fmt.Errorf("cache.provider must be one of: %s, %s, %s",
			CacheProviderMemory, CacheProviderRedis, CacheProviderNone)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}

func (*DefaultValidator) validateCircuitBreaker(cb *CircuitBreakerConfig) error {
	if cb == nil || !cb.Enabled {
		return nil
	}
	if cb.FailureThreshold < 1 {
		return fmt.Errorf("circuitBreaker.failureThreshold must be at least 1")
	}
	if cb.Timeout <= 0 {
		return fmt.Errorf("circuitBreaker.timeout must be positive")
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
