// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net/http"
	"time"

	"github.com/stacklok/regbridge/pkg/bridge/health"
)

const (
	// DefaultTimeout bounds a single request when the descriptor sets none.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of retries of a document fetch.
	DefaultMaxRetries = 3

	// DefaultMaxPages bounds Link-header pagination of a collection listing.
	DefaultMaxPages = 50

	// DefaultMaxResponseSize bounds every response body read from a source.
	DefaultMaxResponseSize = 16 << 20

	// DefaultErrorPreviewSize bounds the body excerpt kept in status errors.
	DefaultErrorPreviewSize = 512

	defaultRetryInterval = 250 * time.Millisecond
)

// Option configures a Factory.
type Option func(*options)

type options struct {
	transport       http.RoundTripper
	breakers        *health.Tracker
	maxRetries      int
	retryInterval   time.Duration
	maxPages        int
	maxResponseSize int64
	userAgent       string
}

func newOptions() *options {
	return &options{
		transport:       http.DefaultTransport,
		maxRetries:      DefaultMaxRetries,
		retryInterval:   defaultRetryInterval,
		maxPages:        DefaultMaxPages,
		maxResponseSize: DefaultMaxResponseSize,
		userAgent:       "regbridge",
	}
}

// WithTransport sets the base round tripper. It is wrapped with tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithBreakers makes every adapter consult the tracker's circuit breaker
// for its source.
func WithBreakers(t *health.Tracker) Option {
	return func(o *options) {
		o.breakers = t
	}
}

// WithMaxRetries sets how often document fetches are retried.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

// WithMaxPages bounds collection pagination.
func WithMaxPages(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// WithMaxResponseSize bounds response bodies.
func WithMaxResponseSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxResponseSize = n
		}
	}
}

// WithUserAgent sets the User-Agent of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}
