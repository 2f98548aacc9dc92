// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"regexp"
	"strings"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// NameAttribute is the attribute every clause must constrain. Only name
// expressions are evaluated against the name index.
const NameAttribute = "name"

// Operator is a comparison operator of a filter expression.
type Operator string

// Supported operators.
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

var attributePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Expression is one attr<op>value comparison.
type Expression struct {
	Attribute  string
	Operator   Operator
	Value      string
	IsWildcard bool
}

// IsName reports whether the expression constrains the name attribute.
func (e Expression) IsName() bool {
	return e.Attribute == NameAttribute
}

func (e Expression) String() string {
	return e.Attribute + string(e.Operator) + e.Value
}

// Clause is the content of one filter query parameter. Clauses combine with
// OR. Inside a clause, expressions on the same attribute combine with OR and
// different attributes combine with AND.
type Clause struct {
	Raw         string
	Expressions []Expression
}

// HasName reports whether the clause carries a name expression. Clauses
// without one never match anything.
func (c Clause) HasName() bool {
	for _, e := range c.Expressions {
		if e.IsName() {
			return true
		}
	}
	return false
}

// NameExpressions returns the name expressions of the clause.
func (c Clause) NameExpressions() []Expression {
	var out []Expression
	for _, e := range c.Expressions {
		if e.IsName() {
			out = append(out, e)
		}
	}
	return out
}

// AttributeGroups returns the non-name expressions grouped by attribute, in
// the order the attributes first appear.
func (c Clause) AttributeGroups() [][]Expression {
	var groups [][]Expression
	index := map[string]int{}
	for _, e := range c.Expressions {
		if e.IsName() {
			continue
		}
		i, ok := index[e.Attribute]
		if !ok {
			i = len(groups)
			index[e.Attribute] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

// Parse decodes the values of the repeated filter query parameter.
// A malformed expression fails the whole request with a
// *bridge.FilterSyntaxError.
func Parse(values []string) ([]Clause, error) {
	clauses := make([]Clause, 0, len(values))
	for _, raw := range values {
		c, err := ParseClause(raw)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

// ParseClause decodes one comma-separated filter clause.
func ParseClause(raw string) (Clause, error) {
	if strings.TrimSpace(raw) == "" {
		return Clause{}, &bridge.FilterSyntaxError{Clause: raw, Expression: raw, Reason: "empty filter"}
	}
	c := Clause{Raw: raw}
	for _, part := range strings.Split(raw, ",") {
		e, err := parseExpression(part)
		if err != nil {
			err.Clause = raw
			return Clause{}, err
		}
		c.Expressions = append(c.Expressions, e)
	}
	return c, nil
}

func parseExpression(s string) (Expression, *bridge.FilterSyntaxError) {
	fail := func(reason string) (Expression, *bridge.FilterSyntaxError) {
		return Expression{}, &bridge.FilterSyntaxError{Expression: s, Reason: reason}
	}
	if s == "" {
		return fail("empty expression")
	}

	i := strings.IndexAny(s, "=!<>")
	if i < 0 {
		return fail("missing operator")
	}
	attr := s[:i]
	op, ok := operatorAt(s[i:])
	if !ok {
		return fail("unknown operator")
	}
	if attr == "" {
		return fail("missing attribute")
	}
	if !attributePattern.MatchString(attr) {
		return fail("invalid attribute " + attr)
	}

	value := s[i+len(op):]
	return Expression{
		Attribute:  attr,
		Operator:   op,
		Value:      value,
		IsWildcard: strings.Contains(value, "*"),
	}, nil
}

// operatorAt returns the longest operator at the start of s.
func operatorAt(s string) (Operator, bool) {
	for _, op := range []Operator{OpNotEqual, OpLessEqual, OpGreaterEqual, OpEqual, OpLess, OpGreater} {
		if strings.HasPrefix(s, string(op)) {
			return op, true
		}
	}
	return "", false
}
