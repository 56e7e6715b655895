/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/scheduler"
	"github.com/kubesentry/investigator/internal/store"
)

func (s *Server) handleMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.lastStatus
	s.statusMu.RUnlock()
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClusterSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.clusterAdapter.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "adapter_unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createInvestigationRequest struct {
	Namespace string `json:"namespace"`
}

type createInvestigationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleCreateInvestigation(mode model.InvestigationMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createInvestigationRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		id, err := s.scheduler.RequestManual(r.Context(), mode, req.Namespace)
		if err != nil {
			if errors.Is(err, scheduler.ErrAgenticDisabled) {
				writeError(w, http.StatusConflict, "safe_mode")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, createInvestigationResponse{ID: id, Status: string(model.StatusInProgress)})
	}
}

func (s *Server) handleGetInvestigation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "investigation not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListInvestigations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleCancelInvestigation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scheduler.Cancel(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "investigation not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetReportFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	data, err := s.store.ReadArchived(r.Context(), filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "report file not found")
		return
	}
	if len(filename) > 5 && filename[len(filename)-5:] == ".json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
