// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/health"
)

func newTestAdapter(t *testing.T, srv *httptest.Server, desc bridge.BackendDescriptor, opts ...Option) bridge.Adapter {
	t.Helper()
	desc.BaseURL = srv.URL
	if desc.GroupType == "" {
		desc.GroupType = "noderegistries"
	}
	opts = append([]Option{WithRetryInterval(time.Millisecond)}, opts...)
	a, err := NewFactory(opts...).New(desc)
	require.NoError(t, err)
	return a
}

func TestFactory_New_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewFactory().New(bridge.BackendDescriptor{GroupType: "x", BaseURL: "not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not absolute")
}

func TestHTTPAdapter_GetModel(t *testing.T) {
	t.Parallel()

	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		assert.Equal(t, "/model", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"groups":{"noderegistries":{"plural":"noderegistries","resources":{"packages":{}}}}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{APIKey: "npm-key"})
	doc, err := a.GetModel(context.Background())
	require.NoError(t, err)
	require.Contains(t, doc.Groups, "noderegistries")
	assert.Contains(t, doc.Groups["noderegistries"].Resources, "packages")
	assert.Equal(t, "Bearer npm-key", auth.Load())
}

func TestHTTPAdapter_GetCapabilities_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"apis":["/capabilities","/model"],"flags":["filter"]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithMaxRetries(3))
	doc, err := a.GetCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/capabilities", "/model"}, doc.APIs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPAdapter_GetModel_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithMaxRetries(3))
	_, err := a.GetModel(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
	assert.True(t, bridge.IsBackendStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPAdapter_GetModel_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"groups":`))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv, bridge.BackendDescriptor{}).GetModel(context.Background())
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
}

func TestHTTPAdapter_ListCollection_FollowsPagination(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/noderegistries/npmjs.org/packages", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", `</noderegistries/npmjs.org/packages?page=2>; rel="next"`)
			_, _ = w.Write([]byte(`{"zeta":{"name":"zeta"},"alpha":{"name":"alpha"}}`))
		case "2":
			w.Header().Add("Link", `<http://other.example/x>; rel="prev"`)
			_, _ = w.Write([]byte(`{"mid":{},"alpha":{"name":"alpha"}}`))
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{})
	got, err := a.ListCollection(context.Background(), "npmjs.org", "packages")
	require.NoError(t, err)
	assert.Equal(t, []bridge.ResourceSummary{
		{ID: "zeta", Name: "zeta"},
		{ID: "alpha", Name: "alpha"},
		{ID: "mid", Name: "mid"},
	}, got)
}

func TestHTTPAdapter_ListCollection_PageLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Link", fmt.Sprintf(`<?page=%d>; rel=next`, n+1))
		_, _ = fmt.Fprintf(w, `{"p%d":{}}`, n)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{StripGroupPrefix: true}, WithMaxPages(3))
	got, err := a.ListCollection(context.Background(), "g", "packages")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPAdapter_ListCollection_NotAnObject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv, bridge.BackendDescriptor{}).ListCollection(context.Background(), "g", "r")
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
}

func TestHTTPAdapter_GetResourceMetadata(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/npmjs.org/packages/express", r.URL.Path)
		assert.Equal(t, "meta", r.URL.Query().Get("inline"))
		_, _ = w.Write([]byte(`{"name":"express","meta":{"defaultversionid":"4.19.2"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{StripGroupPrefix: true})
	res, err := a.GetResourceMetadata(context.Background(), "npmjs.org", "packages", "express")
	require.NoError(t, err)
	assert.Equal(t, "express", res.ID)
	assert.JSONEq(t, `{"name":"express","meta":{"defaultversionid":"4.19.2"}}`, string(res.Raw))
}

func TestHTTPAdapter_Forward_PassesStatusThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/base/noderegistries/npmjs.org", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer client", r.Header.Get("Authorization"))
		w.Header().Set("X-Source", "npm")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	desc := bridge.BackendDescriptor{GroupType: "noderegistries", BaseURL: srv.URL + "/base/"}
	a, err := NewFactory().New(desc)
	require.NoError(t, err)

	resp, err := a.Forward(context.Background(), &bridge.ForwardRequest{
		Path:   desc.BackendPath("/npmjs.org"),
		Query:  url.Values{"limit": {"2"}},
		Header: http.Header{"Authorization": {"Bearer client"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "npm", resp.Header.Get("X-Source"))
}

func TestHTTPAdapter_Forward_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages":{"a":"` + strings.Repeat("x", 100) + `"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithMaxResponseSize(32))
	resp, err := a.Forward(context.Background(), &bridge.ForwardRequest{Path: "/noderegistries"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")
}

func TestHTTPAdapter_GetModel_OversizedBodyIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"groups":{"noderegistries":{"resources":{"packages":{}}}}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithMaxResponseSize(16), WithMaxRetries(3))
	_, err := a.GetModel(context.Background())
	require.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPAdapter_Forward_BodyAtLimit(t *testing.T) {
	t.Parallel()

	body := `{"a":"` + strings.Repeat("x", 24) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithMaxResponseSize(int64(len(body))))
	resp, err := a.Forward(context.Background(), &bridge.ForwardRequest{Path: "/noderegistries"})
	require.NoError(t, err)
	assert.Equal(t, body, string(resp.Body))
}

func TestHTTPAdapter_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tracker := health.NewTracker(health.BreakerConfig{Enabled: true, FailureThreshold: 2, Timeout: time.Hour})
	a := newTestAdapter(t, srv, bridge.BackendDescriptor{}, WithBreakers(tracker), WithMaxRetries(0))

	for i := 0; i < 2; i++ {
		_, err := a.GetModel(context.Background())
		require.Error(t, err)
	}
	_, err := a.GetModel(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, health.CircuitOpen, tracker.Status("noderegistries").Circuit.State)
}

func TestHTTPAdapter_RateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, bridge.BackendDescriptor{RateLimit: bridge.RateLimit{RPS: 0.001, Burst: 1}})
	_, err := a.Forward(context.Background(), &bridge.ForwardRequest{Path: "/"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Forward(ctx, &bridge.ForwardRequest{Path: "/"})
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
}
