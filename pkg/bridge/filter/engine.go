// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/cache"
	"github.com/stacklok/regbridge/pkg/logger"
)

const (
	// DefaultFetchLimit is the number of candidates enriched when the
	// request does not ask for another limit.
	DefaultFetchLimit = 25
	// DefaultMaxFetchLimit caps per-request fetch limits.
	DefaultMaxFetchLimit = 200

	defaultConcurrency  = 8
	defaultFetchTimeout = 5 * time.Second
	defaultDeadline     = 10 * time.Second

	instrumentationName = "github.com/stacklok/regbridge/pkg/bridge/filter"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	FetchLimit    int
	MaxFetchLimit int
	Concurrency   int
	FetchTimeout  time.Duration
	Deadline      time.Duration
	IndexTTL      time.Duration

	// Cache holds enriched metadata. Nil disables caching.
	Cache cache.Cache

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Request is one filtered collection query against one source.
type Request struct {
	Descriptor   bridge.BackendDescriptor
	Adapter      bridge.Adapter
	GroupID      string
	ResourceType string
	Clauses      []Clause

	// FetchLimit overrides the engine's default fetch limit. It is capped
	// at the engine's maximum. Zero uses the default.
	FetchLimit int

	// Limit caps the number of returned items. Zero means no cap.
	Limit int
}

// Item is one resource that passed both phases, with its full metadata.
type Item struct {
	ID       string
	Metadata json.RawMessage
}

// Result is the outcome of a filter request.
type Result struct {
	// Items are the survivors in source order.
	Items []Item

	// Candidates is the number of phase 1 matches before the fetch limit.
	Candidates int

	// Truncated reports that candidates were dropped by the fetch limit.
	Truncated bool

	// FetchLimit is the limit that was applied.
	FetchLimit int

	// EnrichmentFailures counts candidates excluded because their metadata
	// could not be fetched in time.
	EnrichmentFailures int

	// ClausesWithoutName counts clauses skipped for lacking a name expression.
	ClausesWithoutName int
}

// MarshalItems renders the items as a collection object keyed by resource
// id, in result order.
func (r *Result) MarshalItems() ([]byte, error) {
	buf := []byte{'{'}
	for i, item := range r.Items {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(item.ID)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, item.Metadata...)
	}
	return append(buf, '}'), nil
}

// Engine executes two-step filter requests: name matching against a cached
// name index, then bounded metadata enrichment of the first candidates.
type Engine struct {
	fetchLimit    int
	maxFetchLimit int
	concurrency   int
	fetchTimeout  time.Duration
	deadline      time.Duration

	index *NameIndex
	cache cache.Cache

	tracer     trace.Tracer
	requests   metric.Int64Counter
	candidates metric.Int64Histogram
	failures   metric.Int64Counter
}

// NewEngine creates a filter engine.
func NewEngine(opts Options) (*Engine, error) {
	e := &Engine{
		fetchLimit:    orDefault(opts.FetchLimit, DefaultFetchLimit),
		maxFetchLimit: orDefault(opts.MaxFetchLimit, DefaultMaxFetchLimit),
		concurrency:   orDefault(opts.Concurrency, defaultConcurrency),
		fetchTimeout:  orDefault(opts.FetchTimeout, defaultFetchTimeout),
		deadline:      orDefault(opts.Deadline, defaultDeadline),
		index:         NewNameIndex(opts.IndexTTL, orDefault(opts.Deadline, defaultDeadline)),
		cache:         opts.Cache,
	}
	if e.fetchLimit > e.maxFetchLimit {
		return nil, fmt.Errorf("%w: fetch limit %d exceeds maximum %d", bridge.ErrInvalidConfig, e.fetchLimit, e.maxFetchLimit)
	}
	if e.cache == nil {
		e.cache = cache.Noop{}
	}

	mp := opts.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	e.tracer = tp.Tracer(instrumentationName)

	meter := mp.Meter(instrumentationName)
	var err error
	if e.requests, err = meter.Int64Counter("regbridge_filter_requests",
		metric.WithDescription("Number of filtered collection requests")); err != nil {
		return nil, fmt.Errorf("failed to create filter request counter: %w", err)
	}
	if e.candidates, err = meter.Int64Histogram("regbridge_filter_candidates",
		metric.WithDescription("Number of name index matches per filtered request")); err != nil {
		return nil, fmt.Errorf("failed to create candidate histogram: %w", err)
	}
	if e.failures, err = meter.Int64Counter("regbridge_filter_enrichment_failures",
		metric.WithDescription("Number of candidates excluded because enrichment failed")); err != nil {
		return nil, fmt.Errorf("failed to create enrichment failure counter: %w", err)
	}
	return e, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Index returns the name index, e.g. to invalidate a disabled source.
func (e *Engine) Index() *NameIndex {
	return e.index
}

// EffectiveFetchLimit resolves a requested fetch limit against the default
// and the ceiling.
func (e *Engine) EffectiveFetchLimit(requested int) int {
	if requested <= 0 {
		return e.fetchLimit
	}
	return min(requested, e.maxFetchLimit)
}

type candidate struct {
	summary bridge.ResourceSummary
	// clauses holds the indexes of the clauses whose name expressions matched.
	clauses []int
}

type enrichment struct {
	metadata json.RawMessage
	err      error
}

// Run executes a filter request. It only fails when the collection listing
// cannot be obtained; enrichment failures are counted in the result.
func (e *Engine) Run(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "filter.run", trace.WithAttributes(
		attribute.String("backend.group_type", req.Descriptor.GroupType),
		attribute.String("collection", req.GroupID+"/"+req.ResourceType),
		attribute.Int("filter.clauses", len(req.Clauses)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	result := &Result{FetchLimit: e.EffectiveFetchLimit(req.FetchLimit)}
	for _, c := range req.Clauses {
		if !c.HasName() {
			result.ClausesWithoutName++
		}
	}
	attrs := metric.WithAttributes(attribute.String("backend", req.Descriptor.GroupType))
	e.requests.Add(ctx, 1, attrs)

	if result.ClausesWithoutName == len(req.Clauses) {
		logger.Debugf("filter on %s/%s has no clause with a name expression", req.GroupID, req.ResourceType)
		return result, nil
	}

	entries, err := e.index.Lookup(ctx, req.Adapter, req.Descriptor.GroupType, req.GroupID, req.ResourceType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list %s/%s: %w", req.GroupID, req.ResourceType, err)
	}

	cands := matchNames(req.Clauses, entries, req.Descriptor.CaseInsensitiveNames)
	result.Candidates = len(cands)
	e.candidates.Record(ctx, int64(len(cands)), attrs)
	if len(cands) > result.FetchLimit {
		cands = cands[:result.FetchLimit]
		result.Truncated = true
	}

	enriched := e.enrich(ctx, req, cands)

	for i, c := range cands {
		if enriched[i].err != nil {
			result.EnrichmentFailures++
			logger.Debugf("excluding %s from filter result: %v", c.summary.ID, enriched[i].err)
			continue
		}
		if !satisfiesAny(req.Clauses, c.clauses, enriched[i].metadata) {
			continue
		}
		result.Items = append(result.Items, Item{ID: c.summary.ID, Metadata: enriched[i].metadata})
		if req.Limit > 0 && len(result.Items) == req.Limit {
			break
		}
	}

	if result.EnrichmentFailures > 0 {
		e.failures.Add(ctx, int64(result.EnrichmentFailures), attrs)
		logger.Warnf("filter on %s/%s/%s: %d of %d candidates could not be enriched",
			req.Descriptor.GroupType, req.GroupID, req.ResourceType, result.EnrichmentFailures, len(cands))
	}
	span.SetAttributes(
		attribute.Int("filter.candidates", result.Candidates),
		attribute.Bool("filter.truncated", result.Truncated),
		attribute.Int("filter.enrichment_failures", result.EnrichmentFailures),
		attribute.Int("filter.items", len(result.Items)),
	)
	return result, nil
}

// matchNames is the first phase. It keeps the index order.
func matchNames(clauses []Clause, entries []bridge.ResourceSummary, caseInsensitive bool) []candidate {
	names := make([][]Expression, len(clauses))
	for i, c := range clauses {
		names[i] = c.NameExpressions()
	}

	var out []candidate
	for _, entry := range entries {
		var matched []int
		for i, exprs := range names {
			for _, expr := range exprs {
				if matchName(expr, entry.Name, caseInsensitive) {
					matched = append(matched, i)
					break
				}
			}
		}
		if len(matched) > 0 {
			out = append(out, candidate{summary: entry, clauses: matched})
		}
	}
	return out
}

// enrich is the second phase. Results are indexed like cands. Candidates
// not fetched before the request deadline carry the context error.
func (e *Engine) enrich(ctx context.Context, req *Request, cands []candidate) []enrichment {
	out := make([]enrichment, len(cands))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range cands {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(cands); j++ {
				out[j].err = fmt.Errorf("%w: %w", bridge.ErrEnrichmentFailure, err)
			}
			break
		}
		g.Go(func() error {
			out[i].metadata, out[i].err = e.fetchMetadata(ctx, req, c.summary.ID)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) fetchMetadata(ctx context.Context, req *Request, id string) (json.RawMessage, error) {
	key := cache.Key(req.Descriptor.GroupType, req.GroupID, req.ResourceType, id)
	if b, ok := e.cache.Get(ctx, key); ok {
		return b, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	res, err := req.Adapter.GetResourceMetadata(ctx, req.GroupID, req.ResourceType, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bridge.ErrEnrichmentFailure, err)
	}
	if res == nil || !json.Valid(res.Raw) {
		return nil, fmt.Errorf("%w: metadata of %s is not JSON", bridge.ErrEnrichmentFailure, id)
	}
	e.cache.Set(ctx, key, res.Raw)
	return res.Raw, nil
}

// satisfiesAny reports whether the metadata satisfies every attribute group
// of at least one of the given clauses.
func satisfiesAny(clauses []Clause, matched []int, metadata []byte) bool {
	for _, i := range matched {
		if satisfies(clauses[i], metadata) {
			return true
		}
	}
	return false
}

func satisfies(c Clause, metadata []byte) bool {
	for _, group := range c.AttributeGroups() {
		ok := false
		for _, expr := range group {
			if matchAttribute(expr, metadata) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
