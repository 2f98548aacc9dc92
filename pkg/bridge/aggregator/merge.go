// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/logger"
)

// MergeModel merges the groups of incoming into a copy of consolidated on
// behalf of sourceID and returns the copy. Keys are set one at a time, so the
// groups of other sources survive. A key owned by a different source is left
// untouched and reported as a *bridge.ModelConflictError; the returned
// document is usable either way. Groups named after the façade's own
// endpoints are dropped.
func MergeModel(consolidated, incoming *bridge.ModelDocument, sourceID string) (*bridge.ModelDocument, error) {
	out := consolidated.Clone()
	if incoming == nil {
		return out, nil
	}

	var conflicts []error
	for _, key := range sortedKeys(incoming.Groups) {
		group := incoming.Groups[key]
		if group == nil {
			continue
		}
		if bridge.IsReservedGroupType(key) {
			logger.Warnw("dropping group with reserved name", "groupType", key, "backend", sourceID)
			continue
		}
		if existing, ok := out.Groups[key]; ok && existing.Owner != sourceID {
			conflicts = append(conflicts, &bridge.ModelConflictError{
				GroupType: key,
				Existing:  existing.Owner,
				Incoming:  sourceID,
			})
			continue
		}
		merged := group.Clone()
		merged.Owner = sourceID
		out.Groups[key] = merged
	}

	for k, v := range incoming.Extra {
		if _, ok := out.Extra[k]; ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]json.RawMessage{}
		}
		out.Extra[k] = v
	}

	return out, errors.Join(conflicts...)
}

// RemoveSource returns a copy of consolidated without the groups owned by sourceID.
func RemoveSource(consolidated *bridge.ModelDocument, sourceID string) *bridge.ModelDocument {
	out := consolidated.Clone()
	for key, group := range out.Groups {
		if group.Owner == sourceID {
			delete(out.Groups, key)
		}
	}
	return out
}

// MergeCapabilities returns the union of two capabilities documents. apis
// keeps first-seen order without duplicates; flags, schemas and specversions
// are sorted set unions. Unknown keys of consolidated win.
func MergeCapabilities(consolidated, incoming *bridge.CapabilitiesDocument) *bridge.CapabilitiesDocument {
	out := consolidated.Clone()
	if incoming == nil {
		return out
	}

	seen := make(map[string]struct{}, len(out.APIs)+len(incoming.APIs))
	apis := make([]string, 0, len(out.APIs)+len(incoming.APIs))
	for _, api := range slices.Concat(out.APIs, incoming.APIs) {
		if _, dup := seen[api]; dup {
			continue
		}
		seen[api] = struct{}{}
		apis = append(apis, api)
	}
	out.APIs = apis

	out.Flags = union(out.Flags, incoming.Flags)
	out.Schemas = union(out.Schemas, incoming.Schemas)
	out.SpecVersions = union(out.SpecVersions, incoming.SpecVersions)

	for k, v := range incoming.Extra {
		if _, ok := out.Extra[k]; ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]json.RawMessage{}
		}
		out.Extra[k] = v
	}
	return out
}

func union(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
