// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stacklok/toolhive-core/httperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
		wantBody   bool
	}{
		{name: "no error", err: nil, wantStatus: http.StatusOK},
		{
			name:       "client error keeps detail",
			err:        httperr.WithCode(errors.New("filter syntax error: \"name\": missing operator"), http.StatusBadRequest),
			wantStatus: http.StatusBadRequest,
			wantDetail: "filter syntax error: \"name\": missing operator",
			wantBody:   true,
		},
		{
			name:       "wrapped client error",
			err:        fmt.Errorf("route: %w", httperr.WithCode(errors.New("unknown group type: x"), http.StatusNotFound)),
			wantStatus: http.StatusNotFound,
			wantDetail: "unknown group type: x",
			wantBody:   true,
		},
		{
			name:       "server error hides detail",
			err:        httperr.WithCode(errors.New("dial tcp 10.0.0.1: refused"), http.StatusBadGateway),
			wantStatus: http.StatusBadGateway,
			wantBody:   true,
		},
		{
			name:       "plain error is internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := ErrorHandler(func(w http.ResponseWriter, _ *http.Request) error {
				if tt.err == nil {
					w.WriteHeader(http.StatusOK)
				}
				return tt.err
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/noderegistries/x", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if !tt.wantBody {
				assert.Empty(t, rec.Body.String())
				return
			}

			assert.Equal(t, ProblemContentType, rec.Header().Get("Content-Type"))
			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, http.StatusText(tt.wantStatus), p.Title)
			if tt.wantDetail == "" {
				assert.Empty(t, p.Detail)
			} else {
				assert.Contains(t, p.Detail, tt.wantDetail)
			}
			assert.Equal(t, "/noderegistries/x", p.Instance)
		})
	}
}
