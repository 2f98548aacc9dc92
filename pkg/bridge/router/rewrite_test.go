// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/stacklok/regbridge/pkg/bridge"
)

const facade = "https://registry.example.com"

func TestRewriteResponse(t *testing.T) {
	t.Parallel()

	npm := bridge.BackendDescriptor{GroupType: "noderegistries", BaseURL: "http://npm:3000"}
	pypi := bridge.BackendDescriptor{GroupType: "pythonregistries", BaseURL: "http://pypi:3100/api/", StripGroupPrefix: true}

	tests := []struct {
		name string
		desc bridge.BackendDescriptor
		body string
		want string
	}{
		{
			name: "nested urls keep path and query",
			desc: npm,
			body: `{"self":"http://npm:3000/noderegistries/npmjs.org/packages/express?inline=meta","versions":{"url":"http://npm:3000/noderegistries/npmjs.org/packages/express/versions"}}`,
			want: `{"self":"https://registry.example.com/noderegistries/npmjs.org/packages/express?inline=meta","versions":{"url":"https://registry.example.com/noderegistries/npmjs.org/packages/express/versions"}}`,
		},
		{
			name: "strings inside arrays",
			desc: npm,
			body: `{"links":["http://npm:3000/a","http://elsewhere/b"]}`,
			want: `{"links":["https://registry.example.com/a","http://elsewhere/b"]}`,
		},
		{
			name: "stripped prefix is restored",
			desc: pypi,
			body: `{"self":"http://pypi:3100/api/pypi.org/projects/requests"}`,
			want: `{"self":"https://registry.example.com/pythonregistries/pypi.org/projects/requests"}`,
		},
		{
			name: "base url itself",
			desc: npm,
			body: `["http://npm:3000"]`,
			want: `["https://registry.example.com"]`,
		},
		{
			name: "lookalike host is untouched",
			desc: npm,
			body: `{"a":"http://npm:30001/x","b":"http://npm:3000x"}`,
			want: `{"a":"http://npm:30001/x","b":"http://npm:3000x"}`,
		},
		{
			name: "key order and formatting are preserved",
			desc: npm,
			body: "{\n  \"z\": 1,\n  \"self\": \"http://npm:3000/n\",\n  \"a\": true\n}",
			want: "{\n  \"z\": 1,\n  \"self\": \"https://registry.example.com/n\",\n  \"a\": true\n}",
		},
		{
			name: "escaped quotes in other strings",
			desc: npm,
			body: `{"d":"say \"hi\"","u":"http://npm:3000/x?a=1&b=2"}`,
			want: `{"d":"say \"hi\"","u":"https://registry.example.com/x?a=1&b=2"}`,
		},
		{
			name: "not json",
			desc: npm,
			body: `http://npm:3000/x`,
			want: `http://npm:3000/x`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := RewriteResponse([]byte(tt.body), tt.desc, facade)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestRouter_RewriteURL(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	route, err := r.Route("/pythonregistries/pypi.org/projects")
	require.NoError(t, err)

	assert.Equal(t,
		"https://registry.example.com/pythonregistries/pypi.org/projects?page=2",
		r.RewriteURL("http://pypi:3100/api/pypi.org/projects?page=2", route))
	assert.Equal(t, "http://other/x", r.RewriteURL("http://other/x", route))
}

// A rewritten body stays valid JSON and never keeps a source URL.
func TestRewriteResponse_Properties(t *testing.T) {
	t.Parallel()

	desc := bridge.BackendDescriptor{GroupType: "noderegistries", BaseURL: "http://npm:3000"}

	rapid.Check(t, func(t *rapid.T) {
		segs := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9.\-]{1,8}`), 0, 4).Draw(t, "segs")
		noise := rapid.String().Draw(t, "noise")
		source := desc.BaseURL
		if len(segs) > 0 {
			source += "/" + strings.Join(segs, "/")
		}

		doc := map[string]any{
			"self":  source,
			"noise": noise,
			"list":  []any{source, noise, 1.5, nil},
		}
		body, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		out := RewriteResponse(body, desc, facade)
		if !json.Valid(out) {
			t.Fatalf("invalid json: %s", out)
		}
		var got map[string]any
		if err := json.Unmarshal(out, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		want := facade + strings.TrimPrefix(source, desc.BaseURL)
		if got["self"] != want {
			t.Fatalf("self = %v, want %v", got["self"], want)
		}
		if list := got["list"].([]any); list[0] != want || list[1] != rewriteString(noise, desc) {
			t.Fatalf("list = %v", list)
		}
	})
}

func rewriteString(s string, desc bridge.BackendDescriptor) string {
	if out, ok := newRewriter(desc, facade).rewrite(s); ok {
		return out
	}
	return s
}

func ExampleRewriteResponse() {
	desc := bridge.BackendDescriptor{GroupType: "noderegistries", BaseURL: "http://npm:3000"}
	out := RewriteResponse([]byte(`{"self":"http://npm:3000/noderegistries/npmjs.org"}`), desc, "https://registry.example.com")
	fmt.Println(string(out))
	// Output: {"self":"https://registry.example.com/noderegistries/npmjs.org"}
}
