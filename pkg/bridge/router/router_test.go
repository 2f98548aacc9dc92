// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/aggregator"
)

type staticSnapshots struct {
	snap *aggregator.Snapshot
}

func (s staticSnapshots) Snapshot() *aggregator.Snapshot {
	return s.snap
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	reg, err := bridge.NewBackendRegistry([]bridge.BackendDescriptor{
		{GroupType: "noderegistries", BaseURL: "http://npm:3000", Enabled: true},
		{GroupType: "pythonregistries", BaseURL: "http://pypi:3100/api", Enabled: true, StripGroupPrefix: true},
		{GroupType: "mavenregistries", BaseURL: "http://maven:3200", Enabled: false},
	})
	require.NoError(t, err)

	model := bridge.NewModelDocument()
	model.Groups["noderegistries"] = &bridge.GroupDefinition{Owner: "noderegistries"}
	model.Groups["nodescopes"] = &bridge.GroupDefinition{Owner: "noderegistries"}
	model.Groups["pythonregistries"] = &bridge.GroupDefinition{Owner: "pythonregistries"}

	return New(reg, staticSnapshots{snap: &aggregator.Snapshot{Model: model}}, "https://registry.example.com/")
}

func TestRouter_Route(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	tests := []struct {
		name         string
		path         string
		wantBackend  string
		wantGroup    string
		wantPath     string
		wantKind     Kind
		wantGroupID  string
		wantResType  string
		wantResID    string
		wantVersion  string
		wantResidual string
	}{
		{
			name:        "group type only",
			path:        "/noderegistries",
			wantBackend: "noderegistries",
			wantGroup:   "noderegistries",
			wantPath:    "/noderegistries",
			wantKind:    KindGroups,
		},
		{
			name:         "collection",
			path:         "/noderegistries/npmjs.org/packages",
			wantBackend:  "noderegistries",
			wantGroup:    "noderegistries",
			wantPath:     "/noderegistries/npmjs.org/packages",
			wantKind:     KindResources,
			wantGroupID:  "npmjs.org",
			wantResType:  "packages",
			wantResidual: "/npmjs.org/packages",
		},
		{
			name:         "single resource",
			path:         "/noderegistries/npmjs.org/packages/express",
			wantBackend:  "noderegistries",
			wantGroup:    "noderegistries",
			wantPath:     "/noderegistries/npmjs.org/packages/express",
			wantKind:     KindResource,
			wantGroupID:  "npmjs.org",
			wantResType:  "packages",
			wantResID:    "express",
			wantResidual: "/npmjs.org/packages/express",
		},
		{
			name:         "version",
			path:         "/noderegistries/npmjs.org/packages/express/versions/4.18.2",
			wantBackend:  "noderegistries",
			wantGroup:    "noderegistries",
			wantPath:     "/noderegistries/npmjs.org/packages/express/versions/4.18.2",
			wantKind:     KindVersion,
			wantGroupID:  "npmjs.org",
			wantResType:  "packages",
			wantResID:    "express",
			wantVersion:  "4.18.2",
			wantResidual: "/npmjs.org/packages/express/versions/4.18.2",
		},
		{
			name:         "stripped prefix",
			path:         "/pythonregistries/pypi.org/projects",
			wantBackend:  "pythonregistries",
			wantGroup:    "pythonregistries",
			wantPath:     "/pypi.org/projects",
			wantKind:     KindResources,
			wantGroupID:  "pypi.org",
			wantResType:  "projects",
			wantResidual: "/pypi.org/projects",
		},
		{
			name:        "stripped prefix root",
			path:        "/pythonregistries",
			wantBackend: "pythonregistries",
			wantGroup:   "pythonregistries",
			wantPath:    "/",
			wantKind:    KindGroups,
		},
		{
			name:         "group declared by another source's model",
			path:         "/nodescopes/angular",
			wantBackend:  "noderegistries",
			wantGroup:    "nodescopes",
			wantPath:     "/nodescopes/angular",
			wantKind:     KindGroup,
			wantGroupID:  "angular",
			wantResidual: "/angular",
		},
		{
			name:         "unclean path",
			path:         "noderegistries//npmjs.org/./packages/",
			wantBackend:  "noderegistries",
			wantGroup:    "noderegistries",
			wantPath:     "/noderegistries/npmjs.org/packages",
			wantKind:     KindResources,
			wantGroupID:  "npmjs.org",
			wantResType:  "packages",
			wantResidual: "/npmjs.org/packages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			route, err := r.Route(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, route.Descriptor.GroupType)
			assert.Equal(t, tt.wantGroup, route.GroupType)
			assert.Equal(t, tt.wantPath, route.BackendPath)
			assert.Equal(t, tt.wantKind, route.Kind)
			assert.Equal(t, tt.wantGroupID, route.GroupID)
			assert.Equal(t, tt.wantResType, route.ResourceType)
			assert.Equal(t, tt.wantResID, route.ResourceID)
			assert.Equal(t, tt.wantVersion, route.VersionID)
			assert.Equal(t, tt.wantResidual, route.Residual)
			assert.Equal(t, tt.wantKind == KindResources, route.IsCollection())
		})
	}
}

func TestRouter_RouteUnknown(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	for _, p := range []string{"/", "", "/unknownregistries/x", "/mavenregistries/central/artifacts"} {
		_, err := r.Route(p)
		require.Error(t, err, p)
		assert.ErrorIs(t, err, bridge.ErrUnknownGroupType, p)
	}
}

func TestRouter_RouteFollowsEnablement(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	_, err := r.Route("/noderegistries/npmjs.org")
	require.NoError(t, err)

	err = r.registry.SetEnabled("noderegistries", false)
	require.NoError(t, err)

	_, err = r.Route("/noderegistries/npmjs.org")
	assert.ErrorIs(t, err, bridge.ErrUnknownGroupType)
	_, err = r.Route("/nodescopes/angular")
	assert.ErrorIs(t, err, bridge.ErrUnknownGroupType)
}

func TestRouter_RouteWithoutSnapshot(t *testing.T) {
	t.Parallel()

	reg, err := bridge.NewBackendRegistry([]bridge.BackendDescriptor{
		{GroupType: "noderegistries", BaseURL: "http://npm:3000", Enabled: true},
	})
	require.NoError(t, err)

	r := New(reg, staticSnapshots{}, "https://registry.example.com")
	route, err := r.Route("/noderegistries")
	require.NoError(t, err)
	assert.Equal(t, "noderegistries", route.GroupType)

	_, err = r.Route("/nodescopes")
	assert.ErrorIs(t, err, bridge.ErrUnknownGroupType)
}
