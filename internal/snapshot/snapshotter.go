/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package snapshot runs the periodic cluster observation loop: on each
// tick it calls the ClusterAdapter, hands the result to the IssueDetector,
// and derives a MonitorStatus for the EventBus.
package snapshot

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/clock"
	"github.com/kubesentry/investigator/internal/model"
)

// Detector is the narrow interface the Snapshotter pushes snapshots
// through; satisfied by *detector.IssueDetector.
type Detector interface {
	Observe(snapshot model.ClusterSnapshot) []model.Issue
}

// Sink receives LogEvents and MonitorStatus updates; satisfied by *eventbus.Bus.
type Sink interface {
	PublishLog(model.LogEvent)
	PublishStatus(model.MonitorStatus)
}

// Snapshotter runs the adapter-tick loop described in §4.1.
type Snapshotter struct {
	adapter       cluster.Adapter
	detector      Detector
	sink          Sink
	clock         clock.Clock
	interval      time.Duration
	adapterTimeout time.Duration
	log           logr.Logger
	onIssues      func([]model.Issue)

	consecutiveFailures int
	lastInvestigationID string
}

// New builds a Snapshotter. interval must be >= 5s per the configuration
// table's stated minimum; callers validate this via internal/config.
// onIssues, if non-nil, is called with every Issue the detector emits on a
// tick — the scheduler wires itself in here to pick up dispatch candidates.
func New(adapter cluster.Adapter, det Detector, sink Sink, clk clock.Clock, interval, adapterTimeout time.Duration, log logr.Logger, onIssues func([]model.Issue)) *Snapshotter {
	return &Snapshotter{
		adapter:        adapter,
		detector:       det,
		sink:           sink,
		clock:          clk,
		interval:       interval,
		adapterTimeout: adapterTimeout,
		log:            log.WithName("snapshotter"),
		onIssues:       onIssues,
	}
}

// Run blocks, ticking until ctx is cancelled. On adapter failure it emits
// a warn LogEvent and retries on the next tick — no backoff catch-up.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.tick(ctx)
		}
	}
}

func (s *Snapshotter) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	snap, err := s.adapter.Snapshot(tickCtx)
	if err != nil {
		s.consecutiveFailures++
		s.log.Info("snapshot tick failed", "error", err.Error(), "consecutiveFailures", s.consecutiveFailures)
		s.sink.PublishLog(model.LogEvent{
			Timestamp: s.clock.Now(),
			SourceID:  "snapshotter",
			Level:     model.LogWarn,
			Message:   "cluster adapter unavailable, skipping tick",
			Detail:    map[string]string{"error": err.Error()},
		})
		if s.consecutiveFailures >= 2 {
			s.sink.PublishStatus(s.degradedStatus())
		}
		return
	}

	s.consecutiveFailures = 0
	issues := s.detector.Observe(snap)
	s.sink.PublishStatus(s.statusFor(snap, issues))
	if len(issues) > 0 && s.onIssues != nil {
		s.onIssues(issues)
	}
}

func (s *Snapshotter) statusFor(snap model.ClusterSnapshot, issues []model.Issue) model.MonitorStatus {
	var nodesReady, podsRunning, podsPending, eventsWarning int
	for _, n := range snap.Nodes {
		if n.Ready {
			nodesReady++
		}
	}
	for _, p := range snap.Pods {
		switch p.Phase {
		case model.PodRunning:
			podsRunning++
		case model.PodPending:
			podsPending++
		}
	}
	for _, e := range snap.Events {
		if e.Type == model.EventWarning {
			eventsWarning++
		}
	}

	health := model.HealthOK
	maxSeverity := 0
	for _, iss := range issues {
		if r := iss.Severity.Rank(); r > maxSeverity {
			maxSeverity = r
		}
	}
	switch {
	case maxSeverity >= model.SeverityCritical.Rank():
		health = model.HealthCriticalIssues
	case maxSeverity >= model.SeverityHigh.Rank():
		health = model.HealthHighIssues
	case len(issues) > 0:
		health = model.HealthIssuesFound
	}

	return model.MonitorStatus{
		Timestamp:           s.clock.Now(),
		NodesReady:          nodesReady,
		NodesTotal:          len(snap.Nodes),
		PodsRunning:         podsRunning,
		PodsTotal:           len(snap.Pods),
		PodsPending:         podsPending,
		IssuesCount:         len(issues),
		Status:              health,
		LastInvestigationID: s.lastInvestigationID,
	}
}

func (s *Snapshotter) degradedStatus() model.MonitorStatus {
	return model.MonitorStatus{
		Timestamp: s.clock.Now(),
		Status:    model.HealthIssuesFound,
	}
}

// NoteInvestigation lets the scheduler tell the Snapshotter which
// investigation id to surface on the next MonitorStatus.
func (s *Snapshotter) NoteInvestigation(id string) {
	s.lastInvestigationID = id
}
