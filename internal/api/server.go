/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package api implements the REST and streaming surface from §6: a
// go-chi router over the Scheduler and ReportStore, with gorilla/websocket
// fan-out of the EventBus's three topics. Error responses are JSON — the
// error shape follows the teacher's WebhookHandler generalized from
// http.Error's plain-text body to {"error": msg}. GET /api/reports/{filename}
// returns the stored file with a content type chosen by its extension, and
// a successful cancel returns 204 with no body.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"

	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/scheduler"
	"github.com/kubesentry/investigator/internal/store"
)

// Server holds everything the HTTP surface needs to serve requests.
type Server struct {
	scheduler      *scheduler.Scheduler
	store          *store.ReportStore
	bus            *eventbus.Bus
	clusterAdapter cluster.Adapter
	log            logr.Logger

	statusMu   sync.RWMutex
	lastStatus model.MonitorStatus
}

// NewServer wires a Server and starts it tracking the latest MonitorStatus
// off the bus so GET /api/monitoring/status has something to return
// between Snapshotter ticks.
func NewServer(ctx context.Context, sched *scheduler.Scheduler, st *store.ReportStore, bus *eventbus.Bus, clusterAdapter cluster.Adapter, log logr.Logger) *Server {
	s := &Server{
		scheduler:      sched,
		store:          st,
		bus:            bus,
		clusterAdapter: clusterAdapter,
		log:            log.WithName("api"),
	}
	s.trackStatus(ctx)
	return s
}

func (s *Server) trackStatus(ctx context.Context) {
	sub := s.bus.Subscribe(eventbus.TopicStatus)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				if st, ok := payload.(model.MonitorStatus); ok {
					s.statusMu.Lock()
					s.lastStatus = st
					s.statusMu.Unlock()
				}
			}
		}
	}()
}

// Router builds the chi.Router serving every route from §6.2 and §6.3.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/monitoring/status", s.handleMonitoringStatus)
		r.Get("/cluster/snapshot", s.handleClusterSnapshot)
		r.Post("/investigations/deterministic", s.handleCreateInvestigation(model.ModeDeterministic))
		r.Post("/investigations/agentic", s.handleCreateInvestigation(model.ModeAgentic))
		r.Get("/investigations/{id}", s.handleGetInvestigation)
		r.Get("/investigations", s.handleListInvestigations)
		r.Post("/investigations/{id}:cancel", s.handleCancelInvestigation)
		r.Get("/reports/{filename}", s.handleGetReportFile)
	})

	r.Route("/stream", func(r chi.Router) {
		r.Get("/logs", s.handleStream(eventbus.TopicLogs))
		r.Get("/status", s.handleStream(eventbus.TopicStatus))
		r.Get("/reports", s.handleStream(eventbus.TopicReports))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON body {"error": msg} — every error response on
// this surface has this shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
