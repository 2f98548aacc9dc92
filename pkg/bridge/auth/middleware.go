// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/stacklok/regbridge/pkg/api/errors"
	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/config"
	"github.com/stacklok/regbridge/pkg/logger"
)

// DefaultHeader carries the façade credential unless configured otherwise.
const DefaultHeader = "Authorization"

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (*Identity, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (*Identity, error) {
	return f(r)
}

// NewAuthenticator builds the authenticator for the configured mode.
func NewAuthenticator(cfg *config.IncomingAuthConfig) (Authenticator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: incoming auth is not configured", bridge.ErrInvalidConfig)
	}
	header := HeaderName(cfg)

	switch cfg.Type {
	case config.AuthTypeAnonymous:
		return AuthenticatorFunc(anonymous), nil
	case config.AuthTypeAPIKey:
		if len(cfg.APIKeys) == 0 {
			return nil, fmt.Errorf("%w: apikey auth requires at least one key", bridge.ErrInvalidConfig)
		}
		return &apiKeyAuthenticator{header: header, keys: cfg.APIKeys}, nil
	case config.AuthTypeJWT:
		if cfg.JWT == nil || cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("%w: jwt auth requires a secret", bridge.ErrInvalidConfig)
		}
		return newJWTAuthenticator(header, cfg.JWT), nil
	default:
		return nil, fmt.Errorf("%w: unknown incoming auth type %q", bridge.ErrInvalidConfig, cfg.Type)
	}
}

// HeaderName returns the header that carries the façade credential.
func HeaderName(cfg *config.IncomingAuthConfig) string {
	if cfg == nil || cfg.Header == "" {
		return DefaultHeader
	}
	return http.CanonicalHeaderKey(cfg.Header)
}

// Middleware rejects unauthenticated requests with 401 before they reach
// the wrapped handler and stores the identity of the others.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				logger.Debugf("rejecting %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="regbridge"`)
				apierrors.WriteProblem(w, r, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func anonymous(*http.Request) (*Identity, error) {
	return &Identity{Subject: "anonymous", Method: config.AuthTypeAnonymous}, nil
}

// credential returns the credential in header, without a Bearer scheme.
func credential(r *http.Request, header string) (string, error) {
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return "", fmt.Errorf("%w: missing %s header", bridge.ErrAuthentication, header)
	}
	if scheme, rest, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "Bearer") {
		v = strings.TrimSpace(rest)
	}
	if v == "" {
		return "", fmt.Errorf("%w: empty credential", bridge.ErrAuthentication)
	}
	return v, nil
}

type apiKeyAuthenticator struct {
	header string
	keys   []string
}

func (a *apiKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	presented, err := credential(r, a.header)
	if err != nil {
		return nil, err
	}
	match := -1
	for i, key := range a.keys {
		// Compare against every key so timing does not reveal the position.
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, fmt.Errorf("%w: invalid API key", bridge.ErrAuthentication)
	}
	return &Identity{Subject: "apikey:" + strconv.Itoa(match), Method: config.AuthTypeAPIKey}, nil
}

type jwtAuthenticator struct {
	header string
	secret []byte
	parser *jwt.Parser
}

func newJWTAuthenticator(header string, cfg *config.JWTConfig) *jwtAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &jwtAuthenticator{header: header, secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

func (a *jwtAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw, err := credential(r, a.header)
	if err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	_, err = a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bridge.ErrAuthentication, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", bridge.ErrAuthentication)
	}
	return &Identity{Subject: sub, Method: config.AuthTypeJWT, Claims: claims}, nil
}
