// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/regbridge/pkg/api/errors"
	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/aggregator"
	"github.com/stacklok/regbridge/pkg/bridge/config"
	"github.com/stacklok/regbridge/pkg/bridge/health"
	"github.com/stacklok/regbridge/pkg/logger"
)

const maxAdminBody = 64 << 10

func (s *Server) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/backends", apierrors.ErrorHandler(s.listBackends))
	r.Post("/backends", apierrors.ErrorHandler(s.registerBackend))
	r.Post("/backends/{groupType}/enable", apierrors.ErrorHandler(s.setEnabled(true)))
	r.Post("/backends/{groupType}/disable", apierrors.ErrorHandler(s.setEnabled(false)))
	r.Post("/refresh", apierrors.ErrorHandler(s.refresh))
	return r
}

type backendView struct {
	bridge.BackendDescriptor
	Reachable bool           `json:"reachable"`
	Groups    []string       `json:"groups,omitempty"`
	Health    *health.Status `json:"health,omitempty"`
}

type snapshotView struct {
	ID     string `json:"id"`
	Epoch  uint64 `json:"epoch"`
	Groups int    `json:"groups"`
}

func viewOf(snap *aggregator.Snapshot) snapshotView {
	return snapshotView{ID: snap.ID, Epoch: snap.Epoch, Groups: len(snap.Model.Groups)}
}

// listBackends lists every registered source without secrets.
func (s *Server) listBackends(w http.ResponseWriter, _ *http.Request) error {
	snap := s.agg.Snapshot()
	owned := map[string][]string{}
	for gt, g := range snap.Model.Groups {
		owned[g.Owner] = append(owned[g.Owner], gt)
	}

	tracker := s.agg.Tracker()
	views := []backendView{}
	for _, desc := range s.agg.Registry().List() {
		v := backendView{BackendDescriptor: desc, Reachable: snap.Reachable[desc.GroupType], Groups: owned[desc.GroupType]}
		if tracker != nil {
			st := tracker.Status(desc.GroupType)
			v.Health = &st
		}
		views = append(views, v)
	}
	return writeJSON(w, http.StatusOK, views)
}

func (s *Server) setEnabled(enabled bool) apierrors.HandlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		groupType := chi.URLParam(r, "groupType")
		snap, err := s.agg.SetEnabled(r.Context(), groupType, enabled)
		if err != nil {
			return withStatus(err)
		}
		s.filter.Index().Invalidate(groupType)
		logger.Infof("admin: backend %s enabled=%t", groupType, enabled)
		return writeJSON(w, http.StatusOK, viewOf(snap))
	}
}

// registerBackend adds a source described by a backend config entry.
func (s *Server) registerBackend(w http.ResponseWriter, r *http.Request) error {
	var bc config.BackendConfig
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bc); err != nil {
		return badRequest(fmt.Errorf("invalid backend: %w", err))
	}
	if err := config.NewValidator().ValidateBackend(bc); err != nil {
		return withStatus(err)
	}

	snap, err := s.agg.Register(r.Context(), bc.Descriptor())
	if err != nil {
		return withStatus(err)
	}
	logger.Infof("admin: registered backend %s", bc.GroupType)
	return writeJSON(w, http.StatusCreated, viewOf(snap))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) error {
	snap, err := s.agg.Refresh(r.Context())
	if err != nil && !errors.Is(err, aggregator.ErrNoBackendRefreshed) {
		return withStatus(err)
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	return writeJSON(w, status, viewOf(snap))
}
