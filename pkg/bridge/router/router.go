// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package router maps façade paths to the source that owns them and rewrites
// source URLs in responses onto the façade.
package router

import (
	"fmt"
	"path"
	"strings"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/aggregator"
	"github.com/stacklok/regbridge/pkg/logger"
)

// Kind classifies a routed path by its depth below the group type.
type Kind int

const (
	// KindGroups is /{groupType}.
	KindGroups Kind = iota
	// KindGroup is /{groupType}/{groupId}.
	KindGroup
	// KindResources is /{groupType}/{groupId}/{resourceType}.
	KindResources
	// KindResource is /{groupType}/{groupId}/{resourceType}/{resourceId}.
	KindResource
	// KindVersions is .../{resourceId}/versions.
	KindVersions
	// KindVersion is .../{resourceId}/versions/{versionId}.
	KindVersion
	// KindOther is any deeper or irregular path. It is passed through.
	KindOther
)

// Route is the outcome of routing one façade path.
type Route struct {
	// Descriptor is the source that serves the path.
	Descriptor bridge.BackendDescriptor

	// GroupType is the leading path segment. It differs from
	// Descriptor.GroupType when the source's model declares further groups.
	GroupType string

	// Residual is the path after the group type segment, "" or "/...".
	Residual string

	// BackendPath is the path to request from the source.
	BackendPath string

	Kind         Kind
	GroupID      string
	ResourceType string
	ResourceID   string
	VersionID    string
}

// IsCollection reports whether the route addresses a resource collection,
// the only place filters are evaluated by the façade.
func (r *Route) IsCollection() bool {
	return r.Kind == KindResources
}

// SnapshotSource provides the current consolidated view.
type SnapshotSource interface {
	Snapshot() *aggregator.Snapshot
}

// Router resolves façade paths. It reads the registry and the current
// snapshot on every call and holds no state of its own.
type Router struct {
	registry      bridge.BackendRegistry
	snapshots     SnapshotSource
	facadeBaseURL string
}

// New creates a router. facadeBaseURL is the public URL of the façade.
func New(registry bridge.BackendRegistry, snapshots SnapshotSource, facadeBaseURL string) *Router {
	return &Router{
		registry:      registry,
		snapshots:     snapshots,
		facadeBaseURL: strings.TrimRight(facadeBaseURL, "/"),
	}
}

// FacadeBaseURL returns the public URL responses are rewritten onto.
func (r *Router) FacadeBaseURL() string {
	return r.facadeBaseURL
}

// Route resolves a façade path. The leading segment must be the group type of
// an enabled source, or a group type owned by an enabled source in the
// current snapshot; anything else fails with bridge.ErrUnknownGroupType.
func (r *Router) Route(p string) (*Route, error) {
	cleaned := path.Clean("/" + p)
	trimmed := strings.TrimPrefix(cleaned, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", bridge.ErrUnknownGroupType)
	}

	groupType, rest, _ := strings.Cut(trimmed, "/")
	desc, ok := r.lookup(groupType)
	if !ok {
		logger.Debugf("no enabled backend for group type %s", groupType)
		return nil, fmt.Errorf("%w: %s", bridge.ErrUnknownGroupType, groupType)
	}

	route := &Route{Descriptor: desc, GroupType: groupType}
	if rest != "" {
		route.Residual = "/" + rest
	}
	if groupType == desc.GroupType {
		route.BackendPath = desc.BackendPath(route.Residual)
	} else {
		// Further groups declared by a source's model live at their own key.
		route.BackendPath = "/" + groupType + route.Residual
	}
	classify(route, rest)
	return route, nil
}

func (r *Router) lookup(groupType string) (bridge.BackendDescriptor, bool) {
	if desc, ok := r.registry.Get(groupType); ok && desc.Enabled {
		return desc, true
	}
	if r.snapshots == nil {
		return bridge.BackendDescriptor{}, false
	}
	owner, ok := r.snapshots.Snapshot().Owner(groupType)
	if !ok {
		return bridge.BackendDescriptor{}, false
	}
	desc, ok := r.registry.Get(owner)
	if !ok || !desc.Enabled {
		return bridge.BackendDescriptor{}, false
	}
	return desc, true
}

func classify(route *Route, rest string) {
	var segs []string
	if rest != "" {
		segs = strings.Split(rest, "/")
	}
	switch len(segs) {
	case 0:
		route.Kind = KindGroups
		return
	case 1:
		route.Kind = KindGroup
	case 2:
		route.Kind = KindResources
	case 3:
		route.Kind = KindResource
	case 4:
		route.Kind = KindOther
		if segs[3] == "versions" {
			route.Kind = KindVersions
		}
	case 5:
		route.Kind = KindOther
		if segs[3] == "versions" {
			route.Kind = KindVersion
			route.VersionID = segs[4]
		}
	default:
		route.Kind = KindOther
	}

	route.GroupID = segs[0]
	if len(segs) > 1 {
		route.ResourceType = segs[1]
	}
	if len(segs) > 2 {
		route.ResourceID = segs[2]
	}
}

// Rewrite rewrites the source URLs of a routed response body onto the façade.
func (r *Router) Rewrite(body []byte, route *Route) []byte {
	return RewriteResponse(body, route.Descriptor, r.facadeBaseURL)
}

// RewriteURL rewrites a single URL, e.g. a Location or Link header value.
func (r *Router) RewriteURL(raw string, route *Route) string {
	rw := newRewriter(route.Descriptor, r.facadeBaseURL)
	if out, ok := rw.rewrite(raw); ok {
		return out
	}
	return raw
}
