/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// tracker is the interface ShutdownManager needs from RunTracker.
type tracker interface {
	InFlightCount() int
}

// ShutdownManager coordinates graceful shutdown of running investigations,
// generalizing the teacher's lifecycle.ShutdownManager (which drained
// agent runs) to drain investigations within T_grace before the process
// exits.
type ShutdownManager struct {
	tracker      tracker
	log          logr.Logger
	graceTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewShutdownManager creates a shutdown coordinator. graceTimeout is
// T_grace: how long WaitForDrain waits for in-flight investigations to
// finish before it cancels the rest. WaitForDrain does not wait again
// after that cancel and does not seal any report itself.
func NewShutdownManager(t tracker, graceTimeout time.Duration, log logr.Logger) *ShutdownManager {
	return &ShutdownManager{
		tracker:      t,
		log:          log.WithName("shutdown"),
		graceTimeout: graceTimeout,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// RegisterRun tracks an investigation's cancel function.
func (s *ShutdownManager) RegisterRun(investigationID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[investigationID] = cancel
	s.mu.Unlock()
}

// DeregisterRun removes a completed investigation from tracking.
func (s *ShutdownManager) DeregisterRun(investigationID string) {
	s.mu.Lock()
	delete(s.cancels, investigationID)
	s.mu.Unlock()
}

// ActiveRuns returns the number of registered active investigations.
func (s *ShutdownManager) ActiveRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// WaitForDrain blocks until all running investigations finish or
// graceTimeout elapses, at which point it cancels whatever remains.
// Returns the number forcibly cancelled.
func (s *ShutdownManager) WaitForDrain() int {
	inflight := s.tracker.InFlightCount()
	if inflight == 0 {
		s.log.Info("no in-flight investigations — clean shutdown")
		return 0
	}

	s.log.Info("waiting for in-flight investigations to seal",
		"inflight", inflight, "graceTimeout", s.graceTimeout)

	deadline := time.After(s.graceTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			remaining := s.tracker.InFlightCount()
			if remaining > 0 {
				s.log.Info("grace period elapsed — cancelling remaining investigations", "remaining", remaining)
				s.cancelAll()
				return remaining
			}
			return 0
		case <-ticker.C:
			if s.tracker.InFlightCount() == 0 {
				s.log.Info("all in-flight investigations sealed — clean shutdown")
				return 0
			}
		}
	}
}

// snapshotCancels returns a copy of the registered cancel funcs, letting
// the Scheduler's Cancel(id) share this map without reaching into
// ShutdownManager's internals directly.
func (s *ShutdownManager) snapshotCancels() map[string]context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]context.CancelFunc, len(s.cancels))
	for id, c := range s.cancels {
		out[id] = c
	}
	return out
}

func (s *ShutdownManager) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		s.log.Info("force-cancelling investigation", "investigationId", id)
		cancel()
	}
	s.cancels = make(map[string]context.CancelFunc)
}
