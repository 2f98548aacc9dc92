// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/config"
)

// hopHeaders are connection-scoped and never forwarded either way.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// responseCredentialHeaders are source response headers never returned to
// façade clients.
var responseCredentialHeaders = []string{
	"Set-Cookie",
	"Www-Authenticate",
	"Authorization",
}

// OutgoingPolicy decides which client headers reach a source.
type OutgoingPolicy struct {
	// Mode is the incoming auth type.
	Mode string
	// Header carries the façade credential.
	Header string
}

// NewOutgoingPolicy derives the policy from the incoming auth config.
func NewOutgoingPolicy(cfg *config.IncomingAuthConfig) OutgoingPolicy {
	p := OutgoingPolicy{Header: HeaderName(cfg)}
	if cfg != nil {
		p.Mode = cfg.Type
	}
	return p
}

// RequestHeaders returns the headers to forward to desc for a client request.
// A source with its own API key gets no client Authorization; the adapter
// sends the key instead. Otherwise the client's Authorization is forwarded
// only when the façade did not consume it. The façade credential header and
// cookies are never forwarded.
func (p OutgoingPolicy) RequestHeaders(in http.Header, desc bridge.BackendDescriptor) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	out.Del("Cookie")
	out.Del("Host")
	out.Del("Accept-Encoding")

	forwardAuthorization := desc.APIKey == "" && p.Mode == config.AuthTypeAnonymous
	if !forwardAuthorization {
		out.Del("Authorization")
	}
	if p.Mode != config.AuthTypeAnonymous && p.Header != "" {
		out.Del(p.Header)
	}
	return out
}

// ResponseHeaders copies source response headers that may reach the client.
func ResponseHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	for _, h := range responseCredentialHeaders {
		out.Del(h)
	}
	return out
}
