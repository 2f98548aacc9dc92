// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// withStatus attaches the HTTP status of a domain error.
func withStatus(err error) error {
	if err == nil {
		return nil
	}
	return httperr.WithCode(err, statusOf(err))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, bridge.ErrUnknownGroupType):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrFilterSyntax), errors.Is(err, bridge.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrModelConflict):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, bridge.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return httperr.WithCode(err, http.StatusBadRequest)
}
