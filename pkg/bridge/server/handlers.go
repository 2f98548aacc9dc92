// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/stacklok/regbridge/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeBody(w, status, body)
	return nil
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}

// getRoot serves the registry root document: the consolidated model and
// capabilities plus one {groupType}url link per group type.
func (s *Server) getRoot(w http.ResponseWriter, _ *http.Request) error {
	snap := s.agg.Snapshot()
	base := s.router.FacadeBaseURL()

	doc := map[string]any{
		"self":         base + "/",
		"modelurl":     base + "/model",
		"capabilities": snap.Capabilities,
		"model":        snap.Model,
		"epoch":        snap.Epoch,
	}
	if !snap.BuiltAt.IsZero() {
		doc["builtat"] = snap.BuiltAt
	}
	groupTypes := make([]string, 0, len(snap.Model.Groups))
	for gt := range snap.Model.Groups {
		groupTypes = append(groupTypes, gt)
	}
	sort.Strings(groupTypes)
	for _, gt := range groupTypes {
		doc[strings.ToLower(gt)+"url"] = base + "/" + gt
	}
	return writeJSON(w, http.StatusOK, doc)
}

func (s *Server) getModel(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, s.agg.Snapshot().Model)
}

func (s *Server) getCapabilities(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, s.agg.Snapshot().Capabilities)
}

type healthResponse struct {
	Status   string          `json:"status"`
	Snapshot string          `json:"snapshot"`
	Backends map[string]bool `json:"backends"`
}

// getHealth reports healthy while at least one enabled source answered the
// last refresh.
func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.agg.Snapshot()
	resp := healthResponse{Status: "healthy", Snapshot: snap.ID, Backends: map[string]bool{}}

	healthy := false
	for _, desc := range s.agg.Registry().Enabled() {
		reachable := snap.Reachable[desc.GroupType]
		resp.Backends[desc.GroupType] = reachable
		healthy = healthy || reachable
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if err := writeJSON(w, status, resp); err != nil {
		logger.Errorf("failed to encode health response: %v", err)
	}
}
