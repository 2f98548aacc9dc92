// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// parseCollection decodes a collection object keyed by resource id into the
// name index, keeping the source's key order. An entry without a name
// attribute is indexed under its id.
func parseCollection(body []byte) ([]bridge.ResourceSummary, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("collection is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, errors.New("collection is not a JSON object")
	}

	var out []bridge.ResourceSummary
	res.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		name := value.Get("name").String()
		if name == "" {
			name = id
		}
		out = append(out, bridge.ResourceSummary{ID: id, Name: name})
		return true
	})
	return out, nil
}

// nextLink returns the rel="next" target of the Link headers, resolved
// against the request URL.
func nextLink(h http.Header, requestURL *url.URL) *url.URL {
	for _, value := range h.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			parts := strings.Split(link, ";")
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			if !hasRelNext(parts[1:]) {
				continue
			}
			u, err := url.Parse(target[1 : len(target)-1])
			if err != nil {
				continue
			}
			if requestURL != nil {
				u = requestURL.ResolveReference(u)
			}
			return u
		}
	}
	return nil
}

func hasRelNext(params []string) bool {
	for _, p := range params {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(v), `"`)) {
			if strings.EqualFold(rel, "next") {
				return true
			}
		}
	}
	return false
}
