// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// RewriteResponse rewrites every absolute URL string in a JSON body that
// starts with the source's base URL onto facadeBaseURL, keeping path and
// query. Sources that strip their group prefix get /{groupType} added back.
// Every string literal at any depth is considered, and the body keeps its key
// order and formatting. Non-JSON bodies are returned unchanged.
func RewriteResponse(body []byte, desc bridge.BackendDescriptor, facadeBaseURL string) []byte {
	if len(body) == 0 || !json.Valid(body) {
		return body
	}
	rw := newRewriter(desc, facadeBaseURL)
	if rw.from == "" {
		return body
	}

	var out bytes.Buffer
	out.Grow(len(body))
	changed := false

	for i := 0; i < len(body); {
		if body[i] != '"' {
			out.WriteByte(body[i])
			i++
			continue
		}
		end := stringEnd(body, i)
		literal := body[i:end]
		i = end

		var s string
		if err := json.Unmarshal(literal, &s); err != nil {
			out.Write(literal)
			continue
		}
		rewritten, ok := rw.rewrite(s)
		if !ok {
			out.Write(literal)
			continue
		}
		changed = true
		out.Write(encodeString(rewritten))
	}

	if !changed {
		return body
	}
	return out.Bytes()
}

// stringEnd returns the index just past the string literal starting at start.
// The body is known to be valid JSON.
func stringEnd(body []byte, start int) int {
	for i := start + 1; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(body)
}

func encodeString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

type rewriter struct {
	from string
	to   string
}

func newRewriter(desc bridge.BackendDescriptor, facadeBaseURL string) rewriter {
	to := strings.TrimRight(facadeBaseURL, "/")
	if desc.StripGroupPrefix {
		to += "/" + desc.GroupType
	}
	return rewriter{from: strings.TrimRight(desc.BaseURL, "/"), to: to}
}

// rewrite maps s when it is the source base URL or lies below it.
func (rw rewriter) rewrite(s string) (string, bool) {
	if !strings.HasPrefix(s, rw.from) {
		return "", false
	}
	rest := s[len(rw.from):]
	if rest != "" && !strings.ContainsRune("/?#", rune(rest[0])) {
		return "", false
	}
	return rw.to + rest, true
}
