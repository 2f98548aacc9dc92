// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package aggregator merges the model and capabilities documents of every
// enabled source into one consolidated view.
//
// The view is held in an immutable Snapshot that is swapped atomically. A
// refresh rebuilds it from scratch; concurrent refresh requests are coalesced
// and administrative changes are serialized with refreshes.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/health"
	"github.com/stacklok/regbridge/pkg/logger"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultConcurrency  = 4

	instrumentationName = "github.com/stacklok/regbridge/pkg/bridge/aggregator"
)

// ErrNoBackendRefreshed is returned when no enabled source could be refreshed.
var ErrNoBackendRefreshed = fmt.Errorf("%w: no backend could be refreshed", bridge.ErrBackendUnavailable)

// Snapshot is an immutable consolidated view. Never modify it.
type Snapshot struct {
	ID           string
	Epoch        uint64
	BuiltAt      time.Time
	Model        *bridge.ModelDocument
	Capabilities *bridge.CapabilitiesDocument

	// Reachable lists the enabled sources that answered the last fetch.
	Reachable map[string]bool
}

// Owner returns the source that owns a group type in this snapshot.
func (s *Snapshot) Owner(groupType string) (string, bool) {
	if s == nil || s.Model == nil {
		return "", false
	}
	g, ok := s.Model.Groups[groupType]
	if !ok {
		return "", false
	}
	return g.Owner, true
}

type sourceDocs struct {
	model        *bridge.ModelDocument
	capabilities *bridge.CapabilitiesDocument
}

type cachedAdapter struct {
	desc    bridge.BackendDescriptor
	adapter bridge.Adapter
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithFetchTimeout bounds the document fetches of one source.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.fetchTimeout = d
		}
	}
}

// WithConcurrency bounds the number of sources fetched in parallel.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithTracker records reachability in a health tracker.
func WithTracker(t *health.Tracker) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.tracker = t
		}
	}
}

// WithTelemetry sets the meter and tracer providers.
func WithTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) Option {
	return func(a *Aggregator) {
		if mp != nil {
			a.meterProvider = mp
		}
		if tp != nil {
			a.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// Aggregator owns the consolidated view.
type Aggregator struct {
	registry bridge.BackendRegistry
	factory  bridge.AdapterFactory
	tracker  *health.Tracker

	fetchTimeout  time.Duration
	concurrency   int
	meterProvider metric.MeterProvider
	tracer        trace.Tracer

	refreshes       metric.Int64Counter
	refreshDuration metric.Float64Histogram

	// mu serializes refreshes with administrative changes.
	mu      sync.Mutex
	sources map[string]*sourceDocs
	epoch   uint64

	group    singleflight.Group
	snapshot atomic.Pointer[Snapshot]

	adaptersMu sync.Mutex
	adapters   map[string]cachedAdapter
}

// New creates an aggregator with an empty snapshot. Call Refresh to populate it.
func New(registry bridge.BackendRegistry, factory bridge.AdapterFactory, opts ...Option) (*Aggregator, error) {
	if registry == nil || factory == nil {
		return nil, errors.New("aggregator requires a registry and an adapter factory")
	}
	a := &Aggregator{
		registry:      registry,
		factory:       factory,
		tracker:       health.NewTracker(health.BreakerConfig{}),
		fetchTimeout:  defaultFetchTimeout,
		concurrency:   defaultConcurrency,
		meterProvider: metricnoop.NewMeterProvider(),
		tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
		sources:       map[string]*sourceDocs{},
		adapters:      map[string]cachedAdapter{},
	}
	for _, opt := range opts {
		opt(a)
	}

	meter := a.meterProvider.Meter(instrumentationName)
	var err error
	if a.refreshes, err = meter.Int64Counter("regbridge_refreshes",
		metric.WithDescription("Number of consolidated view rebuilds by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create refresh counter: %w", err)
	}
	if a.refreshDuration, err = meter.Float64Histogram("regbridge_refresh_duration",
		metric.WithDescription("Duration of consolidated view refreshes"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create refresh duration histogram: %w", err)
	}
	if _, err = meter.Int64ObservableGauge("regbridge_backends_reachable",
		metric.WithDescription("Number of enabled backends reachable at the last refresh"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(a.Snapshot().reachableCount()))
			return nil
		})); err != nil {
		return nil, fmt.Errorf("failed to create reachable gauge: %w", err)
	}

	a.snapshot.Store(a.newSnapshot(bridge.NewModelDocument(), &bridge.CapabilitiesDocument{}, map[string]bool{}))
	return a, nil
}

// Snapshot returns the current consolidated view.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snapshot.Load()
}

// Registry returns the descriptor registry the aggregator reads.
func (a *Aggregator) Registry() bridge.BackendRegistry {
	return a.registry
}

// Tracker returns the health tracker fed by refreshes.
func (a *Aggregator) Tracker() *health.Tracker {
	return a.tracker
}

// Adapter returns the adapter for a descriptor, building it on first use or
// when the descriptor changed.
func (a *Aggregator) Adapter(desc bridge.BackendDescriptor) (bridge.Adapter, error) {
	a.adaptersMu.Lock()
	defer a.adaptersMu.Unlock()

	if c, ok := a.adapters[desc.GroupType]; ok && c.desc == desc {
		return c.adapter, nil
	}
	adapter, err := a.factory.New(desc)
	if err != nil {
		return nil, err
	}
	a.adapters[desc.GroupType] = cachedAdapter{desc: desc, adapter: adapter}
	return adapter, nil
}

// Refresh refetches every enabled source and swaps in a rebuilt view. A call
// made while a refresh is running joins it. Failing sources are logged and
// left out; the error is non-nil only when no enabled source answered.
func (a *Aggregator) Refresh(ctx context.Context) (*Snapshot, error) {
	// The shared refresh must not die with whichever caller started it.
	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan("refresh", func() (any, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.refreshLocked(detached)
	})

	select {
	case res := <-ch:
		snap, _ := res.Val.(*Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

func (a *Aggregator) refreshLocked(ctx context.Context) (*Snapshot, error) {
	ctx, span := a.tracer.Start(ctx, "aggregator.refresh")
	defer span.End()
	start := time.Now()

	descs := a.registry.Enabled()
	logger.Debugf("refreshing %d enabled backends", len(descs))

	results := make([]*sourceDocs, len(descs))
	errs := make([]error, len(descs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, desc := range descs {
		g.Go(func() error {
			results[i], errs[i] = a.fetchSource(ctx, desc)
			return nil
		})
	}
	_ = g.Wait()

	next := make(map[string]*sourceDocs, len(descs))
	for i, desc := range descs {
		if errs[i] != nil {
			logger.Warnw("failed to refresh backend", "backend", desc.GroupType, "error", errs[i])
			a.tracker.MarkUnreachable(desc.GroupType, errs[i])
			continue
		}
		a.tracker.MarkReachable(desc.GroupType)
		next[desc.GroupType] = results[i]
	}
	a.sources = next

	snap := a.rebuildLocked()
	a.snapshot.Store(snap)

	outcome := "success"
	var err error
	switch {
	case len(descs) > 0 && len(next) == 0:
		outcome, err = "failure", ErrNoBackendRefreshed
		span.SetStatus(codes.Error, err.Error())
	case len(next) < len(descs):
		outcome = "partial"
		logger.Warnw("partial refresh", "reachable", len(next), "enabled", len(descs))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	a.refreshes.Add(ctx, 1, attrs)
	a.refreshDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	span.SetAttributes(
		attribute.Int("backends.enabled", len(descs)),
		attribute.Int("backends.reachable", len(next)),
		attribute.String("snapshot.id", snap.ID),
	)

	logger.Infof("refreshed consolidated view %s: %d/%d backends, %d groups",
		snap.ID, len(next), len(descs), len(snap.Model.Groups))
	return snap, err
}

// fetchSource loads and validates the two documents of one source.
func (a *Aggregator) fetchSource(ctx context.Context, desc bridge.BackendDescriptor) (*sourceDocs, error) {
	adapter, err := a.Adapter(desc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	model, err := adapter.GetModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if err := ValidateModel(model); err != nil {
		return nil, err
	}
	caps, err := adapter.GetCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	if err := ValidateCapabilities(caps); err != nil {
		return nil, err
	}
	return &sourceDocs{model: model, capabilities: caps}, nil
}

// rebuildLocked merges the cached documents of the enabled sources in
// registration order, so on conflict the earlier source keeps the key.
func (a *Aggregator) rebuildLocked() *Snapshot {
	model := bridge.NewModelDocument()
	reachable := map[string]bool{}
	for _, desc := range a.registry.Enabled() {
		docs, ok := a.sources[desc.GroupType]
		reachable[desc.GroupType] = ok
		if !ok {
			continue
		}
		merged, err := MergeModel(model, docs.model, desc.GroupType)
		if err != nil {
			logger.Warnf("excluding conflicting groups of backend %s: %v", desc.GroupType, err)
		}
		model = merged
	}
	return a.newSnapshot(model, a.capabilitiesLocked(), reachable)
}

func (a *Aggregator) capabilitiesLocked() *bridge.CapabilitiesDocument {
	caps := &bridge.CapabilitiesDocument{}
	for _, desc := range a.registry.Enabled() {
		if docs, ok := a.sources[desc.GroupType]; ok {
			caps = MergeCapabilities(caps, docs.capabilities)
		}
	}
	return caps
}

func (a *Aggregator) newSnapshot(model *bridge.ModelDocument, caps *bridge.CapabilitiesDocument, reachable map[string]bool) *Snapshot {
	a.epoch++
	return &Snapshot{
		ID:           uuid.NewString(),
		Epoch:        a.epoch,
		BuiltAt:      time.Now(),
		Model:        model,
		Capabilities: caps,
		Reachable:    reachable,
	}
}

func (s *Snapshot) reachableCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, ok := range s.Reachable {
		if ok {
			n++
		}
	}
	return n
}

// SetEnabled enables or disables a source. Disabling removes exactly the
// groups the source owns from the current view, without network calls.
// Enabling fetches that one source and merges it in.
func (a *Aggregator) SetEnabled(ctx context.Context, groupType string, enabled bool) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.registry.SetEnabled(groupType, enabled); err != nil {
		return nil, err
	}
	current := a.Snapshot()

	if !enabled {
		delete(a.sources, groupType)
		a.tracker.Forget(groupType)
		reachable := copyReachable(current.Reachable)
		delete(reachable, groupType)
		snap := a.newSnapshot(RemoveSource(current.Model, groupType), a.capabilitiesLocked(), reachable)
		a.snapshot.Store(snap)
		logger.Infof("backend %s disabled", groupType)
		return snap, nil
	}

	desc, _ := a.registry.Get(groupType)
	return a.addSourceLocked(ctx, desc), nil
}

// Register adds a source at runtime. A group type already held by an enabled
// source, or already owned by another source's model, fails with a
// *bridge.ModelConflictError.
func (a *Aggregator) Register(ctx context.Context, desc bridge.BackendDescriptor) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.Snapshot()
	if owner, ok := current.Owner(desc.GroupType); ok && owner != desc.GroupType {
		return nil, &bridge.ModelConflictError{GroupType: desc.GroupType, Existing: owner, Incoming: desc.GroupType}
	}
	if err := a.registry.Register(desc); err != nil {
		return nil, err
	}
	if !desc.Enabled {
		return current, nil
	}
	return a.addSourceLocked(ctx, desc), nil
}

func (a *Aggregator) addSourceLocked(ctx context.Context, desc bridge.BackendDescriptor) *Snapshot {
	docs, err := a.fetchSource(ctx, desc)
	if err != nil {
		logger.Warnf("backend %s enabled but not reachable: %v", desc.GroupType, err)
		a.tracker.MarkUnreachable(desc.GroupType, err)
		delete(a.sources, desc.GroupType)
	} else {
		a.tracker.MarkReachable(desc.GroupType)
		a.sources[desc.GroupType] = docs
	}

	// Same ownership order as a full refresh.
	snap := a.rebuildLocked()
	a.snapshot.Store(snap)
	logger.Infow("backend enabled", "backend", desc.GroupType, "reachable", err == nil)
	return snap
}

// Reload replaces the descriptor set, e.g. after a configuration change, and
// rebuilds the view.
func (a *Aggregator) Reload(ctx context.Context, descs []bridge.BackendDescriptor) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.registry.Replace(descs); err != nil {
		return nil, err
	}
	return a.refreshLocked(ctx)
}

// Start refreshes the view every interval until ctx is cancelled. The
// returned channel is closed once the loop has stopped.
func (a *Aggregator) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	log := logger.With("component", "refresh", "interval", interval.String())
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Refresh(ctx); err != nil && ctx.Err() == nil {
					log.Warn("periodic refresh failed", "error", err)
				}
			}
		}
	}()
	return done
}

func copyReachable(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
