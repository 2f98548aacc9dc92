// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client implements the source adapter for registries that already
// serve the common registry document shapes over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/health"
	"github.com/stacklok/regbridge/pkg/logger"
)

// ErrCircuitOpen is returned without contacting the source while its
// circuit breaker is open.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker open", bridge.ErrBackendUnavailable)

// ErrResponseTooLarge is returned when a source answers with a body above the
// configured maximum.
var ErrResponseTooLarge = fmt.Errorf("%w: response too large", bridge.ErrBackendUnavailable)

// Factory builds HTTP adapters. It implements bridge.AdapterFactory.
type Factory struct {
	opts *options
}

// NewFactory creates an adapter factory.
func NewFactory(opts ...Option) *Factory {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Factory{opts: o}
}

// New builds the adapter for a descriptor.
func (f *Factory) New(desc bridge.BackendDescriptor) (bridge.Adapter, error) {
	base, err := url.Parse(desc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend %s: invalid base URL: %w", desc.GroupType, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend %s: base URL %q is not absolute", desc.GroupType, desc.BaseURL)
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if desc.RateLimit.RPS > 0 {
		burst := desc.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(desc.RateLimit.RPS), burst)
	}

	return &httpAdapter{
		desc: desc,
		base: base,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(f.opts.transport),
		},
		limiter: limiter,
		breaker: f.opts.breakers.Breaker(desc.GroupType),
		opts:    f.opts,
	}, nil
}

type httpAdapter struct {
	desc    bridge.BackendDescriptor
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	breaker *health.CircuitBreaker
	opts    *options
}

type response struct {
	status int
	header http.Header
	body   []byte
	url    *url.URL
}

func (a *httpAdapter) GetModel(ctx context.Context) (*bridge.ModelDocument, error) {
	doc := &bridge.ModelDocument{}
	if err := a.fetchDocument(ctx, "/model", doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *httpAdapter) GetCapabilities(ctx context.Context) (*bridge.CapabilitiesDocument, error) {
	doc := &bridge.CapabilitiesDocument{}
	if err := a.fetchDocument(ctx, "/capabilities", doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// fetchDocument GETs a root-level document, retrying transient failures
// with exponential backoff. 4xx answers are not retried.
func (a *httpAdapter) fetchDocument(ctx context.Context, path string, into any) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = a.opts.retryInterval
	expBackoff.MaxInterval = 20 * a.opts.retryInterval
	expBackoff.Reset()

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		resp, err := a.get(ctx, a.resolve(path, nil), nil)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrResponseTooLarge) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if err := a.statusError(resp); err != nil {
			if resp.status < http.StatusInternalServerError && resp.status != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp.body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(a.opts.maxRetries+1)), // #nosec G115 -- maxRetries is never negative
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugf("retrying %s%s after %v (attempt %d): %v", a.desc.GroupType, path, d, attempt, err)
		}),
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: backend %s: decoding %s: %v", bridge.ErrBackendUnavailable, a.desc.GroupType, path, err)
	}
	return nil
}

func (a *httpAdapter) ListCollection(ctx context.Context, groupID, resourceType string) ([]bridge.ResourceSummary, error) {
	next := a.resolve(a.collectionPath(groupID, resourceType), nil)

	var out []bridge.ResourceSummary
	seen := map[string]struct{}{}
	for page := 0; next != nil; page++ {
		if page >= a.opts.maxPages {
			logger.Warnf("backend %s: collection %s/%s truncated after %d pages",
				a.desc.GroupType, groupID, resourceType, a.opts.maxPages)
			break
		}
		resp, err := a.get(ctx, next, nil)
		if err != nil {
			return nil, err
		}
		if err := a.statusError(resp); err != nil {
			return nil, err
		}
		entries, err := parseCollection(resp.body)
		if err != nil {
			return nil, fmt.Errorf("%w: backend %s: %v", bridge.ErrBackendUnavailable, a.desc.GroupType, err)
		}
		for _, e := range entries {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
		next = a.sameOrigin(nextLink(resp.header, resp.url))
	}
	return out, nil
}

func (a *httpAdapter) GetResource(ctx context.Context, groupID, resourceType, resourceID string) (*bridge.Resource, error) {
	return a.getResource(ctx, groupID, resourceType, resourceID, nil)
}

// GetResourceMetadata asks the source to inline the resource's meta object
// so that a single request carries every filterable attribute.
func (a *httpAdapter) GetResourceMetadata(ctx context.Context, groupID, resourceType, resourceID string) (*bridge.Resource, error) {
	return a.getResource(ctx, groupID, resourceType, resourceID, url.Values{"inline": {"meta"}})
}

func (a *httpAdapter) getResource(
	ctx context.Context, groupID, resourceType, resourceID string, query url.Values,
) (*bridge.Resource, error) {
	path := a.collectionPath(groupID, resourceType) + "/" + resourceID
	resp, err := a.get(ctx, a.resolve(path, query), nil)
	if err != nil {
		return nil, err
	}
	if err := a.statusError(resp); err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		return nil, fmt.Errorf("%w: backend %s: resource %s is not valid JSON",
			bridge.ErrBackendUnavailable, a.desc.GroupType, resourceID)
	}
	return &bridge.Resource{ID: resourceID, Raw: resp.body}, nil
}

func (a *httpAdapter) Forward(ctx context.Context, req *bridge.ForwardRequest) (*bridge.ForwardResponse, error) {
	resp, err := a.get(ctx, a.resolve(req.Path, req.Query), req.Header)
	if err != nil {
		return nil, err
	}
	return &bridge.ForwardResponse{StatusCode: resp.status, Header: resp.header, Body: resp.body}, nil
}

func (a *httpAdapter) collectionPath(groupID, resourceType string) string {
	return a.desc.BackendPath("/" + groupID + "/" + resourceType)
}

// resolve joins an unescaped source path onto the base URL, keeping any base
// path prefix.
func (a *httpAdapter) resolve(path string, query url.Values) *url.URL {
	u := *a.base
	u.Path = strings.TrimRight(a.base.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

// sameOrigin drops pagination links that leave the source.
func (a *httpAdapter) sameOrigin(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	if !strings.EqualFold(u.Scheme, a.base.Scheme) || !strings.EqualFold(u.Host, a.base.Host) {
		logger.Warnf("backend %s: ignoring pagination link to foreign origin %s", a.desc.GroupType, u.Redacted())
		return nil
	}
	return u
}

// get performs one GET through the limiter and the circuit breaker. Transport
// errors and 5xx answers count as breaker failures.
func (a *httpAdapter) get(ctx context.Context, u *url.URL, header http.Header) (*response, error) {
	if !a.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: backend %s: rate limiter: %v", bridge.ErrBackendUnavailable, a.desc.GroupType, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("User-Agent", a.opts.userAgent)
	if a.desc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.desc.APIKey)
	}

	httpResp, err := a.client.Do(req)
	if err != nil {
		a.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: backend %s: %v", bridge.ErrBackendUnavailable, a.desc.GroupType, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, a.opts.maxResponseSize+1))
	if err != nil {
		a.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: backend %s: reading body: %v", bridge.ErrBackendUnavailable, a.desc.GroupType, err)
	}
	if int64(len(body)) > a.opts.maxResponseSize {
		a.breaker.RecordSuccess()
		return nil, fmt.Errorf("%w: backend %s: response exceeds %d bytes",
			ErrResponseTooLarge, a.desc.GroupType, a.opts.maxResponseSize)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		a.breaker.RecordFailure()
	} else {
		a.breaker.RecordSuccess()
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: body, url: httpResp.Request.URL}, nil
}

func (a *httpAdapter) statusError(resp *response) error {
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}
	preview := string(resp.body)
	if len(preview) > DefaultErrorPreviewSize {
		preview = preview[:DefaultErrorPreviewSize]
	}
	return &bridge.BackendStatusError{
		GroupType:  a.desc.GroupType,
		StatusCode: resp.status,
		URL:        resp.url.Redacted(),
		Message:    preview,
	}
}
