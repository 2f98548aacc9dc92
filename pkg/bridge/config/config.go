// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the registry bridge.
//
// Configuration is read from a YAML file, overlaid with REGBRIDGE_ environment
// variables, filled with defaults and validated before the server starts.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// Duration is a wrapper around time.Duration that marshals/unmarshals as a duration string.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Incoming authentication modes.
const (
	AuthTypeAPIKey    = "apikey"
	AuthTypeJWT       = "jwt"
	AuthTypeAnonymous = "anonymous"
)

// Cache providers.
const (
	CacheProviderMemory = "memory"
	CacheProviderRedis  = "redis"
	CacheProviderNone   = "none"
)

// Config is the configuration model of the bridge.
type Config struct {
	// Name is the name reported in the root document.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// BaseURL is the public URL of the façade. Backend URLs in responses are
	// rewritten onto it.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`

	// Address is the listen address.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	IncomingAuth   *IncomingAuthConfig   `json:"incomingAuth,omitempty" yaml:"incomingAuth,omitempty"`
	Backends       []BackendConfig       `json:"backends,omitempty" yaml:"backends,omitempty"`
	Aggregation    *AggregationConfig    `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Filter         *FilterConfig         `json:"filter,omitempty" yaml:"filter,omitempty"`
	Cache          *CacheConfig          `json:"cache,omitempty" yaml:"cache,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty"`
	Telemetry      *TelemetryConfig      `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// IncomingAuthConfig configures how clients authenticate to the façade.
type IncomingAuthConfig struct {
	// Type is one of apikey, jwt, anonymous.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Header carries the façade credential. Defaults to Authorization.
	Header string `json:"header,omitempty" yaml:"header,omitempty"`

	// APIKeys lists the accepted keys in apikey mode.
	APIKeys []string `json:"apiKeys,omitempty" yaml:"apiKeys,omitempty"`

	JWT *JWTConfig `json:"jwt,omitempty" yaml:"jwt,omitempty"`
}

// JWTConfig configures HMAC-signed bearer tokens.
type JWTConfig struct {
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`
	Issuer   string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"`
}

// BackendConfig is one source entry.
type BackendConfig struct {
	GroupType string `json:"groupType" yaml:"groupType"`
	URL       string `json:"url" yaml:"url"`

	// APIKey is the source credential. APIKeyEnv names an environment
	// variable to read it from instead.
	APIKey    string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIKeyEnv string `json:"apiKeyEnv,omitempty" yaml:"apiKeyEnv,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	StripGroupPrefix     bool     `json:"stripGroupPrefix,omitempty" yaml:"stripGroupPrefix,omitempty"`
	CaseInsensitiveNames bool     `json:"caseInsensitiveNames,omitempty" yaml:"caseInsensitiveNames,omitempty"`
	Timeout              Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	RateLimit *RateLimitConfig `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
}

// RateLimitConfig is a per-source token bucket.
type RateLimitConfig struct {
	RPS   float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	Burst int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// AggregationConfig controls the document refresh cycle.
type AggregationConfig struct {
	RefreshInterval Duration `json:"refreshInterval,omitempty" yaml:"refreshInterval,omitempty"`
	FetchTimeout    Duration `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty"`
	MaxRetries      int      `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Concurrency     int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// FilterConfig controls the two-step filter engine.
type FilterConfig struct {
	// FetchLimit is the default number of candidates enriched per request.
	FetchLimit int `json:"fetchLimit,omitempty" yaml:"fetchLimit,omitempty"`
	// MaxFetchLimit caps the per-request fetchlimit parameter.
	MaxFetchLimit int      `json:"maxFetchLimit,omitempty" yaml:"maxFetchLimit,omitempty"`
	Concurrency   int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	FetchTimeout  Duration `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty"`
	Deadline      Duration `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	// IndexTTL is how long a collection name index is reused.
	IndexTTL Duration `json:"indexTTL,omitempty" yaml:"indexTTL,omitempty"`
}

// CacheConfig controls the enrichment metadata cache.
type CacheConfig struct {
	Provider string       `json:"provider,omitempty" yaml:"provider,omitempty"`
	TTL      Duration     `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Redis    *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// CircuitBreakerConfig configures the per-source circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	FailureThreshold int      `json:"failureThreshold,omitempty" yaml:"failureThreshold,omitempty"`
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	// TracingEndpoint is an OTLP/HTTP endpoint. Tracing is off when empty.
	TracingEndpoint string `json:"tracingEndpoint,omitempty" yaml:"tracingEndpoint,omitempty"`
	Insecure        bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	Prometheus      *bool  `json:"prometheus,omitempty" yaml:"prometheus,omitempty"`
}

// PrometheusEnabled reports whether /metrics is served.
func (t *TelemetryConfig) PrometheusEnabled() bool {
	return t == nil || t.Prometheus == nil || *t.Prometheus
}

// IsEnabled reports whether the backend takes part in aggregation.
func (b BackendConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Descriptor converts the entry into a backend descriptor.
func (b BackendConfig) Descriptor() bridge.BackendDescriptor {
	d := bridge.BackendDescriptor{
		GroupType:            b.GroupType,
		BaseURL:              b.URL,
		APIKey:               b.APIKey,
		Enabled:              b.IsEnabled(),
		StripGroupPrefix:     b.StripGroupPrefix,
		CaseInsensitiveNames: b.CaseInsensitiveNames,
		Timeout:              b.Timeout.Std(),
	}
	if b.RateLimit != nil {
		d.RateLimit = bridge.RateLimit{RPS: b.RateLimit.RPS, Burst: b.RateLimit.Burst}
	}
	return d
}

// Descriptors converts every backend entry, in configuration order.
func (c *Config) Descriptors() []bridge.BackendDescriptor {
	out := make([]bridge.BackendDescriptor, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, b.Descriptor())
	}
	return out
}
