// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"net/http"
	"net/url"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter,AdapterFactory

// Adapter is the fixed capability set every source exposes to the core.
// Sources are never special-cased by name; each one is an implementation of
// this interface. Implementations must be safe for concurrent use.
type Adapter interface {
	// GetModel returns the source's model document.
	GetModel(ctx context.Context) (*ModelDocument, error)

	// GetCapabilities returns the source's capabilities document.
	GetCapabilities(ctx context.Context) (*CapabilitiesDocument, error)

	// ListCollection returns the lightweight name index of a resource
	// collection, in the source's order.
	ListCollection(ctx context.Context, groupID, resourceType string) ([]ResourceSummary, error)

	// GetResource returns the default representation of one resource.
	GetResource(ctx context.Context, groupID, resourceType, resourceID string) (*Resource, error)

	// GetResourceMetadata returns the full metadata of one resource, the
	// input of the second filter phase.
	GetResourceMetadata(ctx context.Context, groupID, resourceType, resourceID string) (*Resource, error)

	// Forward performs a raw GET against the source for pass-through routing.
	// Non-2xx responses are returned, not converted into errors.
	Forward(ctx context.Context, req *ForwardRequest) (*ForwardResponse, error)
}

// AdapterFactory builds the adapter for a descriptor.
type AdapterFactory interface {
	New(desc BackendDescriptor) (Adapter, error)
}

// ForwardRequest is a pass-through request to a source.
type ForwardRequest struct {
	// Path is the path on the source, see BackendDescriptor.BackendPath.
	Path string
	// Query is forwarded verbatim.
	Query url.Values
	// Header holds the headers to send after the outgoing credential policy
	// has been applied.
	Header http.Header
}

// ForwardResponse is a source's answer to a ForwardRequest.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
