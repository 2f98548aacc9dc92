// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth authenticates façade clients and decides which credentials
// travel to sources and back.
package auth

import (
	"context"
	"fmt"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	// Subject identifies the caller: the JWT subject, the index of the
	// matched API key, or "anonymous".
	Subject string

	// Method is the authentication type that produced the identity.
	Method string

	// Claims holds the JWT claims in jwt mode.
	Claims map[string]any
}

// String returns a log-safe representation.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q, Method:%q}", i.Subject, i.Method)
}

// IdentityContextKey is the key used to store Identity in the request context.
type IdentityContextKey struct{}

// WithIdentity stores an Identity in the context. A nil identity leaves the
// context unchanged.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, IdentityContextKey{}, identity)
}

// IdentityFromContext retrieves the Identity set by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey{}).(*Identity)
	return identity, ok
}
