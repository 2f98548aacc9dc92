// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling for the gateway.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/regbridge/pkg/logger"
)

// ProblemContentType is the media type of error bodies.
const ProblemContentType = "application/problem+json"

// Problem is the JSON body written for failed requests.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// HandlerWithError is an HTTP handler that can return an error.
// Handlers return errors instead of writing error responses themselves.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors into
// problem responses. The status comes from httperr.Code. For 5xx the error
// is logged and the client only sees the status text.
//
// Usage:
//
//	r.Get("/model", apierrors.ErrorHandler(routes.getModel))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := httperr.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			WriteProblem(w, r, code, "")
			return
		}
		WriteProblem(w, r, code, err.Error())
	}
}

// WriteProblem writes a problem body with the given status.
func WriteProblem(w http.ResponseWriter, r *http.Request, code int, detail string) {
	p := Problem{
		Type:   "about:blank",
		Title:  http.StatusText(code),
		Status: code,
		Detail: detail,
	}
	if r != nil {
		p.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", ProblemContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		logger.Debugf("failed to write problem body: %v", err)
	}
}
