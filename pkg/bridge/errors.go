// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

// Domain errors shared by the bridge subpackages. Check them with errors.Is.
var (
	// ErrUnknownGroupType indicates that a path does not start with the group
	// type of any enabled source.
	ErrUnknownGroupType = errors.New("unknown group type")

	// ErrModelConflict indicates that two enabled sources claim the same group type.
	ErrModelConflict = errors.New("model conflict")

	// ErrFilterSyntax indicates a malformed filter expression.
	ErrFilterSyntax = errors.New("filter syntax error")

	// ErrBackendUnavailable indicates a source could not be reached or answered
	// with an unusable response.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrEnrichmentFailure indicates a per-candidate metadata fetch failed or
	// timed out during the second filter phase.
	ErrEnrichmentFailure = errors.New("enrichment failure")

	// ErrAuthentication indicates a missing or invalid façade credential.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ModelConflictError reports a group type claimed by two sources.
type ModelConflictError struct {
	// GroupType is the contested key.
	GroupType string
	// Existing is the source that already owns the key.
	Existing string
	// Incoming is the source whose claim was rejected.
	Incoming string
}

func (e *ModelConflictError) Error() string {
	return fmt.Sprintf("%s: group type %q is owned by %q, rejected claim from %q",
		ErrModelConflict, e.GroupType, e.Existing, e.Incoming)
}

// Unwrap lets errors.Is match ErrModelConflict.
func (*ModelConflictError) Unwrap() error {
	return ErrModelConflict
}

// FilterSyntaxError reports a filter expression that could not be parsed.
type FilterSyntaxError struct {
	// Clause is the raw value of the offending filter parameter.
	Clause string
	// Expression is the offending comma-separated part of the clause.
	Expression string
	// Reason says what is wrong with it.
	Reason string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrFilterSyntax, e.Expression, e.Reason)
}

// Unwrap lets errors.Is match ErrFilterSyntax.
func (*FilterSyntaxError) Unwrap() error {
	return ErrFilterSyntax
}

// BackendStatusError is returned by adapters when a source answers with an
// unexpected HTTP status.
type BackendStatusError struct {
	GroupType  string
	StatusCode int
	URL        string
	Message    string
}

func (e *BackendStatusError) Error() string {
	return fmt.Sprintf("backend %s returned HTTP %d for %s: %s", e.GroupType, e.StatusCode, e.URL, e.Message)
}

// Unwrap lets errors.Is match ErrBackendUnavailable.
func (*BackendStatusError) Unwrap() error {
	return ErrBackendUnavailable
}

// IsBackendStatus reports whether err is a BackendStatusError with the given
// status code. A zero statusCode matches any status.
func IsBackendStatus(err error, statusCode int) bool {
	var statusErr *BackendStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusCode == 0 || statusErr.StatusCode == statusCode
}
