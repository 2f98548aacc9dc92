// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/auth"
	"github.com/stacklok/regbridge/pkg/bridge/filter"
	"github.com/stacklok/regbridge/pkg/bridge/router"
	"github.com/stacklok/regbridge/pkg/logger"
)

// Response headers of filtered collection requests.
const (
	HeaderFilterTruncated          = "X-Filter-Truncated"
	HeaderFilterCandidates         = "X-Filter-Candidates"
	HeaderFilterFetchLimit         = "X-Filter-Fetch-Limit"
	HeaderFilterEnrichmentFailures = "X-Filter-Enrichment-Failures"
	HeaderFilterClausesWithoutName = "X-Filter-Clauses-Without-Name"
)

// Query parameters of collection requests.
const (
	paramFilter     = "filter"
	paramLimit      = "limit"
	paramFetchLimit = "fetchlimit"
)

// routed serves every path below a group type: filtered collection queries
// go through the filter engine, everything else is passed through.
func (s *Server) routed(w http.ResponseWriter, r *http.Request) error {
	route, err := s.router.Route(r.URL.Path)
	if err != nil {
		return withStatus(err)
	}
	adapter, err := s.agg.Adapter(route.Descriptor)
	if err != nil {
		return withStatus(err)
	}

	query := r.URL.Query()
	if route.IsCollection() && query.Has(paramFilter) {
		return s.filtered(w, r, route, adapter, query)
	}
	return s.passThrough(w, r, route, adapter, query)
}

func (s *Server) passThrough(
	w http.ResponseWriter, r *http.Request, route *router.Route, adapter bridge.Adapter, query url.Values,
) error {
	resp, err := adapter.Forward(r.Context(), &bridge.ForwardRequest{
		Path:   route.BackendPath,
		Query:  query,
		Header: s.policy.RequestHeaders(r.Header, route.Descriptor),
	})
	if err != nil {
		return withStatus(fmt.Errorf("%s: %w", route.Descriptor.GroupType, err))
	}

	header := auth.ResponseHeaders(resp.Header)
	header.Del("Content-Length")
	for _, name := range []string{"Location", "Content-Location"} {
		if v := header.Get(name); v != "" {
			header.Set(name, s.router.RewriteURL(v, route))
		}
	}
	if links := header.Values("Link"); len(links) > 0 {
		header.Del("Link")
		for _, link := range links {
			header.Add("Link", s.rewriteLink(link, route))
		}
	}

	body := resp.Body
	if isJSON(header.Get("Content-Type")) {
		body = s.router.Rewrite(body, route)
	}

	for k, vs := range header {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		logger.Debugf("failed to write pass-through response: %v", err)
	}
	return nil
}

func (s *Server) filtered(
	w http.ResponseWriter, r *http.Request, route *router.Route, adapter bridge.Adapter, query url.Values,
) error {
	clauses, err := filter.Parse(query[paramFilter])
	if err != nil {
		return withStatus(err)
	}
	limit, err := positiveParam(query, paramLimit)
	if err != nil {
		return badRequest(err)
	}
	fetchLimit, err := positiveParam(query, paramFetchLimit)
	if err != nil {
		return badRequest(err)
	}

	result, err := s.filter.Run(r.Context(), &filter.Request{
		Descriptor:   route.Descriptor,
		Adapter:      adapter,
		GroupID:      route.GroupID,
		ResourceType: route.ResourceType,
		Clauses:      clauses,
		FetchLimit:   fetchLimit,
		Limit:        limit,
	})
	if bridge.IsBackendStatus(err, http.StatusNotFound) {
		// The source's error names its own URL.
		return httperr.WithCode(fmt.Errorf("collection %s not found", r.URL.Path), http.StatusNotFound)
	}
	if err != nil {
		return withStatus(err)
	}

	body, err := result.MarshalItems()
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set(HeaderFilterCandidates, strconv.Itoa(result.Candidates))
	h.Set(HeaderFilterFetchLimit, strconv.Itoa(result.FetchLimit))
	if result.Truncated {
		h.Set(HeaderFilterTruncated, "true")
	}
	if result.EnrichmentFailures > 0 {
		h.Set(HeaderFilterEnrichmentFailures, strconv.Itoa(result.EnrichmentFailures))
	}
	if result.ClausesWithoutName > 0 {
		h.Set(HeaderFilterClausesWithoutName, strconv.Itoa(result.ClausesWithoutName))
	}
	writeBody(w, http.StatusOK, s.router.Rewrite(body, route))
	return nil
}

// positiveParam parses an optional positive integer query parameter. An
// absent parameter yields zero.
func positiveParam(query url.Values, name string) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// rewriteLink rewrites the target of every link-value of a Link header.
func (s *Server) rewriteLink(header string, route *router.Route) string {
	parts := strings.Split(header, ",")
	for i, part := range parts {
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < start {
			continue
		}
		target := part[start+1 : end]
		parts[i] = part[:start+1] + s.router.RewriteURL(target, route) + part[end:]
	}
	return strings.Join(parts, ",")
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
