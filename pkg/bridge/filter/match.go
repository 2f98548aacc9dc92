// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// MatchWildcard reports whether s matches pattern, where '*' matches zero or
// more characters and every other character matches itself.
func MatchWildcard(pattern, s string, caseInsensitive bool) bool {
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		s = strings.ToLower(s)
	}
	p, t := []rune(pattern), []rune(s)

	pi, ti := 0, 0
	star, mark := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ti
			pi++
		case pi < len(p) && p[pi] == t[ti]:
			pi++
			ti++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// matchName evaluates a name expression. != is the negation of the =
// predicate, wildcards included.
func matchName(e Expression, name string, caseInsensitive bool) bool {
	switch e.Operator {
	case OpEqual:
		return equalValue(e, name, caseInsensitive)
	case OpNotEqual:
		return !equalValue(e, name, caseInsensitive)
	default:
		return compareStrings(e.Operator, name, e.Value)
	}
}

func equalValue(e Expression, actual string, caseInsensitive bool) bool {
	if e.IsWildcard {
		return MatchWildcard(e.Value, actual, caseInsensitive)
	}
	if caseInsensitive {
		return strings.EqualFold(actual, e.Value)
	}
	return actual == e.Value
}

// matchAttribute evaluates a non-name expression against a metadata
// document. Array values match when any element matches; for != no element
// may be equal. A missing or null attribute satisfies only !=.
func matchAttribute(e Expression, doc []byte) bool {
	res := gjson.GetBytes(doc, e.Attribute)
	if !res.IsArray() {
		return matchScalar(e, res)
	}
	if e.Operator == OpNotEqual {
		eq := e
		eq.Operator = OpEqual
		return !anyElement(eq, res)
	}
	return anyElement(e, res)
}

func anyElement(e Expression, arr gjson.Result) bool {
	found := false
	arr.ForEach(func(_, v gjson.Result) bool {
		found = matchScalar(e, v)
		return !found
	})
	return found
}

func matchScalar(e Expression, v gjson.Result) bool {
	if !v.Exists() || v.Type == gjson.Null {
		return e.Operator == OpNotEqual
	}
	if v.IsObject() || v.IsArray() {
		return false
	}

	if a, b, ok := numbers(v, e.Value); ok {
		return compareNumbers(e.Operator, a, b)
	}
	actual := v.String()
	switch e.Operator {
	case OpEqual:
		return equalValue(e, actual, false)
	case OpNotEqual:
		return !equalValue(e, actual, false)
	default:
		return compareStrings(e.Operator, actual, e.Value)
	}
}

// numbers returns both sides as numbers when both are numeric.
func numbers(v gjson.Result, value string) (float64, float64, bool) {
	b, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, 0, false
	}
	switch v.Type {
	case gjson.Number:
		return v.Num, b, true
	case gjson.String:
		a, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, 0, false
		}
		return a, b, true
	default:
		return 0, 0, false
	}
}

func compareNumbers(op Operator, a, b float64) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpGreater:
		return a > b
	case OpGreaterEqual:
		return a >= b
	}
	return false
}

func compareStrings(op Operator, a, b string) bool {
	c := strings.Compare(a, b)
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}
