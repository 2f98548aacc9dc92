// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMatchWildcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		s       string
		fold    bool
		want    bool
	}{
		{pattern: "*test*", s: "test-package", want: true},
		{pattern: "*test*", s: "my-test", want: true},
		{pattern: "*test*", s: "latest", want: true},
		{pattern: "*test*", s: "express", want: false},
		{pattern: "*test*", s: "test", want: true},
		{pattern: "*", s: "", want: true},
		{pattern: "", s: "", want: true},
		{pattern: "", s: "a", want: false},
		{pattern: "ex*ss", s: "express", want: true},
		{pattern: "ex*ss", s: "expresso", want: false},
		{pattern: "a*b*c", s: "aXbYbZc", want: true},
		{pattern: "a**c", s: "ac", want: true},
		{pattern: "*TEST*", s: "latest", want: false},
		{pattern: "*TEST*", s: "latest", fold: true, want: true},
		{pattern: "Requests", s: "requests", fold: true, want: true},
		{pattern: "ünï*", s: "ünïcode", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.s, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MatchWildcard(tt.pattern, tt.s, tt.fold))
		})
	}
}

// Wildcard properties: a literal pattern matches only itself, and wrapping
// any substring in stars matches the string.
func TestMatchWildcard_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-z\-]{0,12}`).Draw(t, "s")
		other := rapid.StringMatching(`[a-z\-]{0,12}`).Draw(t, "other")

		if MatchWildcard(s, other, false) != (s == other) {
			t.Fatalf("literal %q vs %q", s, other)
		}

		i := rapid.IntRange(0, len(s)).Draw(t, "i")
		j := rapid.IntRange(i, len(s)).Draw(t, "j")
		if !MatchWildcard("*"+s[i:j]+"*", s, false) {
			t.Fatalf("*%s* does not match %q", s[i:j], s)
		}
		if MatchWildcard("*"+s[i:j]+"*", other, false) != strings.Contains(other, s[i:j]) {
			t.Fatalf("*%s* vs %q disagrees with strings.Contains", s[i:j], other)
		}
	})
}

func TestMatchName_NotEqualNegatesEquality(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		value := rapid.StringMatching(`[a-z*]{0,6}`).Draw(t, "value")
		name := rapid.StringMatching(`[a-z]{0,8}`).Draw(t, "name")
		fold := rapid.Bool().Draw(t, "fold")

		eq := Expression{Attribute: NameAttribute, Operator: OpEqual, Value: value, IsWildcard: strings.Contains(value, "*")}
		ne := eq
		ne.Operator = OpNotEqual
		if matchName(eq, name, fold) == matchName(ne, name, fold) {
			t.Fatalf("%s and %s agree on %q", eq, ne, name)
		}
	})
}

func TestMatchAttribute(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"license": "MIT",
		"downloads": 1500,
		"stars": "42",
		"deprecated": false,
		"homepage": null,
		"keywords": ["http", "web"],
		"versions": {"latest": "4.18.2", "count": 270}
	}`)

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "license=MIT", want: true},
		{expr: "license=mit", want: false},
		{expr: "license!=MIT", want: false},
		{expr: "license=M*", want: true},
		{expr: "downloads>1000", want: true},
		{expr: "downloads>=1500", want: true},
		{expr: "downloads<1000", want: false},
		{expr: "downloads=1500.0", want: true},
		{expr: "stars>5", want: true},
		{expr: "stars<100", want: true},
		{expr: "deprecated=false", want: true},
		{expr: "homepage=x", want: false},
		{expr: "homepage!=x", want: true},
		{expr: "missing=x", want: false},
		{expr: "missing!=x", want: true},
		{expr: "missing>1", want: false},
		{expr: "keywords=web", want: true},
		{expr: "keywords=cli", want: false},
		{expr: "keywords!=web", want: false},
		{expr: "keywords!=cli", want: true},
		{expr: "versions.latest=4.18.2", want: true},
		{expr: "versions.latest>4.10.0", want: true},
		{expr: "versions.count<=270", want: true},
		{expr: "versions=x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			c, err := ParseClause(tt.expr)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, matchAttribute(c.Expressions[0], doc))
		})
	}
}
