// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// BackendDescriptor describes one package-metadata source behind the façade.
// Descriptors are created from configuration at startup and only change
// through explicit enable/disable.
type BackendDescriptor struct {
	// GroupType is the unique key of the source and the leading path segment
	// that routes to it, e.g. "noderegistries".
	GroupType string `json:"groupType"`

	// BaseURL is the root URL of the source. The source serves /model and
	// /capabilities directly below it.
	BaseURL string `json:"baseURL"`

	// APIKey is the source's own credential. Never serialized.
	APIKey string `json:"-"`

	// Enabled controls whether the source takes part in aggregation and routing.
	Enabled bool `json:"enabled"`

	// StripGroupPrefix is set for sources that serve their groups at their
	// root rather than below /{groupType}.
	StripGroupPrefix bool `json:"stripGroupPrefix,omitempty"`

	// CaseInsensitiveNames is set for sources whose package names compare
	// case-insensitively (PyPI, NuGet).
	CaseInsensitiveNames bool `json:"caseInsensitiveNames,omitempty"`

	// Timeout bounds every request to the source. Zero uses the client default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RateLimit bounds the request rate to the source. A zero RPS disables it.
	RateLimit RateLimit `json:"rateLimit,omitempty"`
}

// RateLimit is a token bucket configuration.
type RateLimit struct {
	RPS   float64 `json:"rps,omitempty"`
	Burst int     `json:"burst,omitempty"`
}

// reservedGroupTypes are first path segments served by the façade itself.
var reservedGroupTypes = map[string]struct{}{
	"model":        {},
	"capabilities": {},
	"health":       {},
	"metrics":      {},
	"admin":        {},
}

// IsReservedGroupType reports whether groupType names a path the façade
// serves itself and therefore can never be routed to a source.
func IsReservedGroupType(groupType string) bool {
	_, ok := reservedGroupTypes[groupType]
	return ok
}

// ID returns the identifier used for ownership and logging.
func (d BackendDescriptor) ID() string {
	return d.GroupType
}

// BackendPath maps a residual path (the part after /{groupType}) to the path
// on the source.
func (d BackendDescriptor) BackendPath(residual string) string {
	if residual != "" && !strings.HasPrefix(residual, "/") {
		residual = "/" + residual
	}
	if d.StripGroupPrefix {
		if residual == "" {
			return "/"
		}
		return residual
	}
	return "/" + d.GroupType + residual
}

// ModelDocument declares the groups and resources a registry serves.
// Attributes other than "groups" are kept verbatim.
type ModelDocument struct {
	Groups map[string]*GroupDefinition
	Extra  map[string]json.RawMessage
}

// GroupDefinition is one group type of a model document.
type GroupDefinition struct {
	Description string
	Resources   map[string]*ResourceDefinition
	Extra       map[string]json.RawMessage

	// Owner is the ID of the source that contributed this group. It is set
	// during aggregation and never serialized.
	Owner string
}

// ResourceDefinition is one resource type inside a group definition.
type ResourceDefinition struct {
	Description string
	Extra       map[string]json.RawMessage
}

// CapabilitiesDocument declares the endpoints, flags and versions a registry supports.
type CapabilitiesDocument struct {
	APIs         []string
	Flags        []string
	Schemas      []string
	SpecVersions []string
	Extra        map[string]json.RawMessage
}

// ResourceSummary is one entry of the lightweight name index of a collection.
type ResourceSummary struct {
	ID   string
	Name string
}

// Resource is a resource representation as returned by a source.
type Resource struct {
	ID  string
	Raw json.RawMessage
}

// NewModelDocument returns an empty model document.
func NewModelDocument() *ModelDocument {
	return &ModelDocument{Groups: map[string]*GroupDefinition{}}
}

// Clone returns a copy whose maps can be modified without affecting m.
// Raw attribute values are shared; they are never mutated in place.
func (m *ModelDocument) Clone() *ModelDocument {
	if m == nil {
		return NewModelDocument()
	}
	out := &ModelDocument{
		Groups: make(map[string]*GroupDefinition, len(m.Groups)),
		Extra:  maps.Clone(m.Extra),
	}
	for k, g := range m.Groups {
		out.Groups[k] = g.Clone()
	}
	return out
}

// Clone returns a copy of the group definition.
func (g *GroupDefinition) Clone() *GroupDefinition {
	if g == nil {
		return nil
	}
	out := &GroupDefinition{
		Description: g.Description,
		Extra:       maps.Clone(g.Extra),
		Owner:       g.Owner,
	}
	if g.Resources != nil {
		out.Resources = make(map[string]*ResourceDefinition, len(g.Resources))
		for k, r := range g.Resources {
			if r == nil {
				out.Resources[k] = nil
				continue
			}
			out.Resources[k] = &ResourceDefinition{Description: r.Description, Extra: maps.Clone(r.Extra)}
		}
	}
	return out
}

// Clone returns a copy of the capabilities document.
func (c *CapabilitiesDocument) Clone() *CapabilitiesDocument {
	if c == nil {
		return &CapabilitiesDocument{}
	}
	return &CapabilitiesDocument{
		APIs:         append([]string(nil), c.APIs...),
		Flags:        append([]string(nil), c.Flags...),
		Schemas:      append([]string(nil), c.Schemas...),
		SpecVersions: append([]string(nil), c.SpecVersions...),
		Extra:        maps.Clone(c.Extra),
	}
}

// MarshalJSON implements json.Marshaler.
func (m ModelDocument) MarshalJSON() ([]byte, error) {
	groups := m.Groups
	if groups == nil {
		groups = map[string]*GroupDefinition{}
	}
	return marshalWithExtra(m.Extra, map[string]any{"groups": groups})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ModelDocument) UnmarshalJSON(data []byte) error {
	fields, err := splitFields(data)
	if err != nil {
		return fmt.Errorf("model document: %w", err)
	}
	m.Groups = map[string]*GroupDefinition{}
	if err := takeField(fields, "groups", &m.Groups); err != nil {
		return fmt.Errorf("model document: %w", err)
	}
	m.Extra = nilIfEmpty(fields)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (g GroupDefinition) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if g.Description != "" {
		known["description"] = g.Description
	}
	if g.Resources != nil {
		known["resources"] = g.Resources
	}
	return marshalWithExtra(g.Extra, known)
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GroupDefinition) UnmarshalJSON(data []byte) error {
	fields, err := splitFields(data)
	if err != nil {
		return fmt.Errorf("group definition: %w", err)
	}
	if err := takeField(fields, "description", &g.Description); err != nil {
		return fmt.Errorf("group definition: %w", err)
	}
	if err := takeField(fields, "resources", &g.Resources); err != nil {
		return fmt.Errorf("group definition: %w", err)
	}
	g.Extra = nilIfEmpty(fields)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r ResourceDefinition) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if r.Description != "" {
		known["description"] = r.Description
	}
	return marshalWithExtra(r.Extra, known)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ResourceDefinition) UnmarshalJSON(data []byte) error {
	fields, err := splitFields(data)
	if err != nil {
		return fmt.Errorf("resource definition: %w", err)
	}
	if err := takeField(fields, "description", &r.Description); err != nil {
		return fmt.Errorf("resource definition: %w", err)
	}
	r.Extra = nilIfEmpty(fields)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c CapabilitiesDocument) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(c.Extra, map[string]any{
		"apis":         nonNil(c.APIs),
		"flags":        nonNil(c.Flags),
		"schemas":      nonNil(c.Schemas),
		"specversions": nonNil(c.SpecVersions),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CapabilitiesDocument) UnmarshalJSON(data []byte) error {
	fields, err := splitFields(data)
	if err != nil {
		return fmt.Errorf("capabilities document: %w", err)
	}
	for key, dst := range map[string]*[]string{
		"apis":         &c.APIs,
		"flags":        &c.Flags,
		"schemas":      &c.Schemas,
		"specversions": &c.SpecVersions,
	} {
		if err := takeField(fields, key, dst); err != nil {
			return fmt.Errorf("capabilities document: %w", err)
		}
	}
	c.Extra = nilIfEmpty(fields)
	return nil
}

func splitFields(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("attribute %q: %w", key, err)
	}
	return nil
}

func marshalWithExtra(extra map[string]json.RawMessage, known map[string]any) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

func nilIfEmpty(m map[string]json.RawMessage) map[string]json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	return m
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
