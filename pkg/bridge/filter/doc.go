// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package filter implements attribute filtering of resource collections.
//
// A request carries one or more clauses, each the value of one filter query
// parameter, e.g.
//
//	filter=name=*test*,license=MIT&filter=name=express
//
// Clauses combine with OR. Every clause must constrain the name attribute:
// names are matched against a cached listing of the collection first, and
// only the first candidates up to the fetch limit have their full metadata
// fetched to evaluate the remaining expressions. A clause without a name
// expression matches nothing.
package filter
