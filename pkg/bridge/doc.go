// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge contains the domain model of regbridge, a façade that exposes
// several independently operated package-metadata registries (one per
// ecosystem) as a single registry.
//
// Every source publishes a model document, a capabilities document and a
// hierarchy of groups, resources and versions. The façade merges the documents
// into one consolidated view and routes everything below /{groupType} to the
// source that owns that group type.
//
// # Layout
//
//	pkg/bridge/
//	├── types.go        // descriptors, documents, resources
//	├── adapter.go      // the source adapter capability set
//	├── registry.go     // descriptor set with enable/disable
//	├── errors.go       // domain errors
//	├── aggregator/     // model/capabilities merge and snapshot refresh
//	├── router/         // path routing and URL rewriting
//	├── filter/         // two-step filter engine
//	├── client/         // generic HTTP adapter
//	├── health/         // circuit breaker per source
//	├── cache/          // enrichment metadata cache
//	├── auth/           // incoming and outgoing credentials
//	├── telemetry/      // metrics and tracing
//	├── config/         // configuration model
//	└── server/         // HTTP gateway
//
// # Request flow
//
// Root-level requests (/, /model, /capabilities) are answered from the
// aggregator's current snapshot. Requests below /{groupType} are routed to one
// source; collection requests carrying a filter parameter go through the
// two-step filter engine, everything else is passed through with the source's
// URLs rewritten into the façade's namespace.
package bridge
