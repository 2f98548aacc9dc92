// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/cache"
	"github.com/stacklok/regbridge/pkg/bridge/mocks"
)

var npm = bridge.BackendDescriptor{GroupType: "noderegistries", BaseURL: "http://npm:3000", Enabled: true}

func summaries(names ...string) []bridge.ResourceSummary {
	out := make([]bridge.ResourceSummary, len(names))
	for i, n := range names {
		out[i] = bridge.ResourceSummary{ID: n, Name: n}
	}
	return out
}

// expectMetadata answers metadata requests with a document built from the id.
func expectMetadata(adapter *mocks.MockAdapter, fields func(id string) string) *gomock.Call {
	return adapter.EXPECT().
		GetResourceMetadata(gomock.Any(), "npmjs.org", "packages", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, id string) (*bridge.Resource, error) {
			return &bridge.Resource{ID: id, Raw: []byte(fmt.Sprintf(`{"name":%q%s}`, id, fields(id)))}, nil
		})
}

func noFields(string) string { return "" }

func newRequest(t *testing.T, adapter bridge.Adapter, filters ...string) *Request {
	t.Helper()
	clauses, err := Parse(filters)
	require.NoError(t, err)
	return &Request{Descriptor: npm, Adapter: adapter, GroupID: "npmjs.org", ResourceType: "packages", Clauses: clauses}
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

func itemIDs(r *Result) []string {
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestEngine_ClauseWithoutNameReturnsEmpty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)

	e := newEngine(t, Options{})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "description=foo"))
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 1, result.ClausesWithoutName)
	assert.Zero(t, result.Candidates)
}

func TestEngine_ClauseWithoutNameDoesNotSuppressOthers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("express", "koa"), nil)
	expectMetadata(adapter, noFields).Times(1)

	e := newEngine(t, Options{})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "description=foo", "name=express"))
	require.NoError(t, err)
	assert.Equal(t, []string{"express"}, itemIDs(result))
	assert.Equal(t, 1, result.ClausesWithoutName)
}

func TestEngine_Wildcard(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("test-package", "express", "my-test", "latest"), nil)
	expectMetadata(adapter, noFields).Times(3)

	e := newEngine(t, Options{})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=*test*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"test-package", "my-test", "latest"}, itemIDs(result))
	assert.Equal(t, 3, result.Candidates)
	assert.False(t, result.Truncated)
}

func TestEngine_OrAcrossFilters(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("koa", "test-utils", "express", "expressive", "latest"), nil)
	expectMetadata(adapter, noFields).Times(3)

	e := newEngine(t, Options{})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=express", "name=*test*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"test-utils", "express", "latest"}, itemIDs(result))
}

func TestEngine_FetchLimitTruncates(t *testing.T) {
	t.Parallel()

	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("pkg-%02d", i)
	}

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").Return(summaries(names...), nil)
	expectMetadata(adapter, noFields).Times(5)

	e := newEngine(t, Options{})
	req := newRequest(t, adapter, "name=pkg-*")
	req.FetchLimit = 5
	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, names[:5], itemIDs(result))
	assert.Equal(t, 20, result.Candidates)
	assert.True(t, result.Truncated)
	assert.Equal(t, 5, result.FetchLimit)
}

func TestEngine_EffectiveFetchLimit(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{FetchLimit: 10, MaxFetchLimit: 50})
	assert.Equal(t, 10, e.EffectiveFetchLimit(0))
	assert.Equal(t, 10, e.EffectiveFetchLimit(-3))
	assert.Equal(t, 30, e.EffectiveFetchLimit(30))
	assert.Equal(t, 50, e.EffectiveFetchLimit(500))

	_, err := NewEngine(Options{FetchLimit: 100, MaxFetchLimit: 50})
	assert.ErrorIs(t, err, bridge.ErrInvalidConfig)
}

func TestEngine_AttributePhase(t *testing.T) {
	t.Parallel()

	meta := map[string]string{
		"express": `,"license":"MIT","downloads":30000000`,
		"koa":     `,"license":"MIT","downloads":1000`,
		"hapi":    `,"license":"BSD-3-Clause","downloads":500000`,
		"fastify": `,"license":"ISC","downloads":2000000`,
	}

	tests := []struct {
		name    string
		filters []string
		want    []string
	}{
		{name: "and across attributes", filters: []string{"name=*,license=MIT,downloads>5000"}, want: []string{"express"}},
		{name: "or within attribute", filters: []string{"name=*,license=MIT,license=ISC"}, want: []string{"express", "koa", "fastify"}},
		{
			name:    "clause applies only to its own name matches",
			filters: []string{"name=koa,license=BSD-3-Clause", "name=hapi,license=BSD-3-Clause"},
			want:    []string{"hapi"},
		},
		{name: "negation", filters: []string{"name=*,license!=MIT"}, want: []string{"hapi", "fastify"}},
		{name: "name only", filters: []string{"name=*a*"}, want: []string{"koa", "hapi", "fastify"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			adapter := mocks.NewMockAdapter(ctrl)
			adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
				Return(summaries("express", "koa", "hapi", "fastify"), nil)
			expectMetadata(adapter, func(id string) string { return meta[id] }).AnyTimes()

			e := newEngine(t, Options{})
			result, err := e.Run(context.Background(), newRequest(t, adapter, tt.filters...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(result))
		})
	}
}

func TestEngine_LimitAppliesAfterFiltering(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("a1", "a2", "a3", "a4", "a5"), nil)
	expectMetadata(adapter, func(id string) string {
		if id == "a1" || id == "a3" {
			return `,"license":"GPL"`
		}
		return `,"license":"MIT"`
	}).Times(5)

	e := newEngine(t, Options{})
	req := newRequest(t, adapter, "name=a*,license=MIT")
	req.Limit = 2
	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a4"}, itemIDs(result))
}

func TestEngine_EnrichmentFailureExcludesCandidate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("a", "b", "c"), nil)
	adapter.EXPECT().GetResourceMetadata(gomock.Any(), "npmjs.org", "packages", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, id string) (*bridge.Resource, error) {
			if id == "b" {
				return nil, &bridge.BackendStatusError{GroupType: "noderegistries", StatusCode: 500}
			}
			return &bridge.Resource{ID: id, Raw: []byte(`{}`)}, nil
		}).Times(3)

	e := newEngine(t, Options{})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, itemIDs(result))
	assert.Equal(t, 1, result.EnrichmentFailures)
}

func TestEngine_PerFetchTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("fast", "slow"), nil)
	adapter.EXPECT().GetResourceMetadata(gomock.Any(), "npmjs.org", "packages", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, id string) (*bridge.Resource, error) {
			if id == "slow" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &bridge.Resource{ID: id, Raw: []byte(`{}`)}, nil
		}).Times(2)

	e := newEngine(t, Options{FetchTimeout: 20 * time.Millisecond})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"fast"}, itemIDs(result))
	assert.Equal(t, 1, result.EnrichmentFailures)
}

func TestEngine_DeadlineReturnsPartialResult(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("a", "b", "c", "d"), nil)
	adapter.EXPECT().GetResourceMetadata(gomock.Any(), "npmjs.org", "packages", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, id string) (*bridge.Resource, error) {
			if id == "a" {
				return &bridge.Resource{ID: id, Raw: []byte(`{}`)}, nil
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}).MinTimes(1).MaxTimes(4)

	e := newEngine(t, Options{Concurrency: 1, FetchTimeout: time.Minute, Deadline: 50 * time.Millisecond})
	start := time.Now()
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=*"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"a"}, itemIDs(result))
	assert.Equal(t, 3, result.EnrichmentFailures)
}

func TestEngine_ConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").Return(summaries(names...), nil)
	adapter.EXPECT().GetResourceMetadata(gomock.Any(), "npmjs.org", "packages", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, id string) (*bridge.Resource, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return &bridge.Resource{ID: id, Raw: []byte(`{}`)}, nil
		}).Times(12)

	e := newEngine(t, Options{Concurrency: 3})
	result, err := e.Run(context.Background(), newRequest(t, adapter, "name=p*"))
	require.NoError(t, err)
	assert.Len(t, result.Items, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestEngine_IdempotentOrdering(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("zeta-test", "alpha", "beta-test", "test"), nil).Times(1)
	expectMetadata(adapter, func(id string) string {
		return fmt.Sprintf(`,"size":%d`, len(id))
	}).AnyTimes()

	e := newEngine(t, Options{Concurrency: 4})
	req := newRequest(t, adapter, "name=*test*,size>3", "name=alpha")

	first, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	for range 5 {
		again, err := e.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"zeta-test", "alpha", "beta-test", "test"}, itemIDs(first))
}

func TestEngine_CaseInsensitiveSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("Requests", "flask"), nil).Times(2)
	expectMetadata(adapter, noFields).AnyTimes()

	sensitive := newEngine(t, Options{})
	result, err := sensitive.Run(context.Background(), newRequest(t, adapter, "name=requests"))
	require.NoError(t, err)
	assert.Empty(t, result.Items)

	insensitive := newEngine(t, Options{})
	req := newRequest(t, adapter, "name=requests")
	req.Descriptor.CaseInsensitiveNames = true
	result, err = insensitive.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Requests"}, itemIDs(result))
}

func TestEngine_MetadataCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("express"), nil).Times(1)
	expectMetadata(adapter, noFields).Times(1)

	metaCache := cache.NewMemory(time.Minute)
	e := newEngine(t, Options{Cache: metaCache})
	for range 3 {
		result, err := e.Run(context.Background(), newRequest(t, adapter, "name=express"))
		require.NoError(t, err)
		assert.Equal(t, []string{"express"}, itemIDs(result))
	}
	assert.Equal(t, 1, metaCache.Len())
}

func TestEngine_ListingFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(nil, fmt.Errorf("list: %w", bridge.ErrBackendUnavailable))

	e := newEngine(t, Options{})
	_, err := e.Run(context.Background(), newRequest(t, adapter, "name=express"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bridge.ErrBackendUnavailable))
}

func TestNameIndex_Invalidate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		Return(summaries("express"), nil).Times(2)

	idx := NewNameIndex(time.Minute, time.Second)
	ctx := context.Background()
	for range 2 {
		_, err := idx.Lookup(ctx, adapter, "noderegistries", "npmjs.org", "packages")
		require.NoError(t, err)
	}
	idx.Invalidate("noderegistries")
	got, err := idx.Lookup(ctx, adapter, "noderegistries", "npmjs.org", "packages")
	require.NoError(t, err)
	assert.Equal(t, summaries("express"), got)
}

func TestResult_MarshalItems(t *testing.T) {
	t.Parallel()

	r := &Result{Items: []Item{
		{ID: "zeta", Metadata: []byte(`{"v":1}`)},
		{ID: "alpha", Metadata: []byte(`{"v":2}`)},
	}}
	b, err := r.MarshalItems()
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"v":1},"alpha":{"v":2}}`, string(b))

	b, err = (&Result{}).MarshalItems()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestNameIndex_SharedListingSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		DoAndReturn(func(ctx context.Context, _, _ string) ([]bridge.ResourceSummary, error) {
			close(started)
			select {
			case <-release:
				return summaries("express", "koa"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}).Times(1)

	idx := NewNameIndex(time.Minute, 5*time.Second)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := idx.Lookup(firstCtx, adapter, "noderegistries", "npmjs.org", "packages")
		firstErr <- err
	}()
	<-started

	type lookupResult struct {
		entries []bridge.ResourceSummary
		err     error
	}
	second := make(chan lookupResult, 1)
	go func() {
		entries, err := idx.Lookup(context.Background(), adapter, "noderegistries", "npmjs.org", "packages")
		second <- lookupResult{entries: entries, err: err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, summaries("express", "koa"), got.entries)
}

func TestNameIndex_ListTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().ListCollection(gomock.Any(), "npmjs.org", "packages").
		DoAndReturn(func(ctx context.Context, _, _ string) ([]bridge.ResourceSummary, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	idx := NewNameIndex(time.Minute, 20*time.Millisecond)
	_, err := idx.Lookup(context.Background(), adapter, "noderegistries", "npmjs.org", "packages")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
