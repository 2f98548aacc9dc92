// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// InstrumentationName scopes every meter and tracer of the bridge.
const InstrumentationName = "github.com/stacklok/regbridge/pkg/bridge"

var (
	attrBackend   = attribute.Key("regbridge.backend")
	attrOperation = attribute.Key("regbridge.operation")
	attrErrorType = attribute.Key("error.type")
)

// MonitorFactory decorates an adapter factory so every adapter it builds
// records a CLIENT span and request metrics per call.
func MonitorFactory(p *Providers, factory bridge.AdapterFactory) (bridge.AdapterFactory, error) {
	meter := p.MeterProvider.Meter(InstrumentationName)

	requestsTotal, err := meter.Int64Counter(
		"regbridge_backend_requests",
		metric.WithDescription("Total number of requests per backend and operation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	errorsTotal, err := meter.Int64Counter(
		"regbridge_backend_errors",
		metric.WithDescription("Total number of failed requests per backend and operation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create errors counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"regbridge_backend_request_duration",
		metric.WithDescription("Duration of backend requests in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return monitoredFactory{
		factory: factory,
		instruments: instruments{
			tracer:        p.TracerProvider.Tracer(InstrumentationName),
			requestsTotal: requestsTotal,
			errorsTotal:   errorsTotal,
			duration:      duration,
		},
	}, nil
}

type instruments struct {
	tracer        trace.Tracer
	requestsTotal metric.Int64Counter
	errorsTotal   metric.Int64Counter
	duration      metric.Float64Histogram
}

type monitoredFactory struct {
	factory     bridge.AdapterFactory
	instruments instruments
}

func (f monitoredFactory) New(desc bridge.BackendDescriptor) (bridge.Adapter, error) {
	a, err := f.factory.New(desc)
	if err != nil {
		return nil, err
	}
	return monitoredAdapter{adapter: a, backend: desc.GroupType, instruments: f.instruments}, nil
}

type monitoredAdapter struct {
	adapter bridge.Adapter
	backend string
	instruments
}

var _ bridge.Adapter = monitoredAdapter{}

// record starts a span for one adapter call and returns the function that
// ends it and records the metrics.
func (m monitoredAdapter) record(ctx context.Context, op string, err *error) (context.Context, func()) {
	attrs := metric.WithAttributes(attrBackend.String(m.backend), attrOperation.String(op))
	ctx, span := m.tracer.Start(ctx, "backend "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrBackend.String(m.backend), attrOperation.String(op)),
	)
	start := time.Now()

	return ctx, func() {
		m.requestsTotal.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil && *err != nil {
			m.errorsTotal.Add(ctx, 1, attrs)
			span.RecordError(*err)
			span.SetStatus(codes.Error, (*err).Error())
			span.SetAttributes(attrErrorType.String(fmt.Sprintf("%T", *err)))
		}
		span.End()
	}
}

func (m monitoredAdapter) GetModel(ctx context.Context) (doc *bridge.ModelDocument, err error) {
	ctx, done := m.record(ctx, "get_model", &err)
	defer done()
	return m.adapter.GetModel(ctx)
}

func (m monitoredAdapter) GetCapabilities(ctx context.Context) (doc *bridge.CapabilitiesDocument, err error) {
	ctx, done := m.record(ctx, "get_capabilities", &err)
	defer done()
	return m.adapter.GetCapabilities(ctx)
}

func (m monitoredAdapter) ListCollection(
	ctx context.Context, groupID, resourceType string,
) (items []bridge.ResourceSummary, err error) {
	ctx, done := m.record(ctx, "list_collection", &err)
	defer done()
	return m.adapter.ListCollection(ctx, groupID, resourceType)
}

func (m monitoredAdapter) GetResource(
	ctx context.Context, groupID, resourceType, resourceID string,
) (res *bridge.Resource, err error) {
	ctx, done := m.record(ctx, "get_resource", &err)
	defer done()
	return m.adapter.GetResource(ctx, groupID, resourceType, resourceID)
}

func (m monitoredAdapter) GetResourceMetadata(
	ctx context.Context, groupID, resourceType, resourceID string,
) (res *bridge.Resource, err error) {
	ctx, done := m.record(ctx, "get_resource_metadata", &err)
	defer done()
	return m.adapter.GetResourceMetadata(ctx, groupID, resourceType, resourceID)
}

func (m monitoredAdapter) Forward(ctx context.Context, req *bridge.ForwardRequest) (resp *bridge.ForwardResponse, err error) {
	ctx, done := m.record(ctx, "forward", &err)
	defer done()
	return m.adapter.Forward(ctx, req)
}
