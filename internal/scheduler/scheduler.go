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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/investigate"
	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/store"
)

// IssueTracker is the narrow slice of *detector.IssueDetector the
// scheduler needs to annotate windows with their active investigation.
type IssueTracker interface {
	MarkRunning(fingerprint, investigationID string)
	ClearRunning(fingerprint string)
}

// ErrAgenticDisabled is returned when a caller requests agentic mode
// while safeMode is on; the HTTP layer maps this to 409.
var ErrAgenticDisabled = fmt.Errorf("agentic investigations are disabled under safeMode")

// ErrNotFound is returned by Cancel for an unknown investigation id.
var ErrNotFound = store.ErrNotFound

// Scheduler is the InvestigationScheduler from §4.3: it owns the pending
// queue, the concurrency cap, single-flight dispatch, and mode selection,
// wiring RunTracker, ShutdownManager, the two Investigator implementations,
// the ReportStore, and the EventBus together.
type Scheduler struct {
	mu sync.Mutex

	log      logr.Logger
	tracker  *RunTracker
	shutdown *ShutdownManager
	store    *store.ReportStore
	bus      *eventbus.Bus
	issues   IssueTracker

	deterministic investigate.Investigator
	agentic       investigate.Investigator

	safeMode             bool
	investigationTimeout time.Duration
	knowledgeAvailable   func() bool

	pending  []model.Issue
	queued   map[string]bool // fingerprint -> already queued or running
	backoff  map[string]time.Duration
}

// New builds a Scheduler. knowledgeAvailable lets auto-mode dispatch
// prefer agentic investigations only when the knowledge corpus is
// non-empty, per §4.3's "auto" dispatch rule.
func New(
	maxConcurrent int,
	graceTimeout time.Duration,
	investigationTimeout time.Duration,
	safeMode bool,
	deterministic, agentic investigate.Investigator,
	st *store.ReportStore,
	bus *eventbus.Bus,
	issues IssueTracker,
	knowledgeAvailable func() bool,
	log logr.Logger,
) *Scheduler {
	tracker := NewRunTracker(maxConcurrent)
	return &Scheduler{
		log:                  log.WithName("scheduler"),
		tracker:              tracker,
		shutdown:             NewShutdownManager(tracker, graceTimeout, log),
		store:                st,
		bus:                  bus,
		issues:               issues,
		deterministic:        deterministic,
		agentic:              agentic,
		safeMode:             safeMode,
		investigationTimeout: investigationTimeout,
		knowledgeAvailable:   knowledgeAvailable,
		queued:               make(map[string]bool),
		backoff:              make(map[string]time.Duration),
	}
}

// OnIssues is the Snapshotter's onIssues callback: it enqueues newly
// detected issues (deduplicated by fingerprint) and attempts dispatch.
func (s *Scheduler) OnIssues(ctx context.Context, issues []model.Issue) {
	s.mu.Lock()
	for _, iss := range issues {
		if s.queued[iss.Fingerprint] || s.tracker.IsRunning(iss.Fingerprint) {
			continue
		}
		s.queued[iss.Fingerprint] = true
		s.pending = append(s.pending, iss)
	}
	s.sortPending()
	s.mu.Unlock()

	s.dispatch(ctx)
}

// sortPending orders the queue by severity descending, then by earliest
// DetectedAt — the dispatch priority §4.3 specifies. Caller holds s.mu.
func (s *Scheduler) sortPending() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.DetectedAt.Before(b.DetectedAt)
	})
}

// dispatch starts as many queued issues as the concurrency cap allows.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || !s.tracker.HasCapacity() {
			s.mu.Unlock()
			return
		}
		iss := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		investigationID := uuid.NewString()
		if !s.tracker.TryStart(iss.Fingerprint, investigationID) {
			// Capacity was taken by a concurrent dispatch between the
			// check above and TryStart; requeue and stop this round.
			s.mu.Lock()
			s.pending = append([]model.Issue{iss}, s.pending...)
			s.mu.Unlock()
			return
		}

		mode := s.selectMode(iss.Fingerprint)
		issCopy := iss
		go s.run(ctx, investigationID, mode, investigate.Input{Issue: &issCopy}, iss.Fingerprint)
	}
}

func (s *Scheduler) selectMode(fingerprint string) model.InvestigationMode {
	if s.safeMode || s.agentic == nil {
		return model.ModeDeterministic
	}
	s.mu.Lock()
	backingOff := s.backoff[fingerprint] > 0
	s.mu.Unlock()
	if backingOff {
		return model.ModeDeterministic
	}
	if s.knowledgeAvailable != nil && !s.knowledgeAvailable() {
		return model.ModeDeterministic
	}
	return model.ModeAgentic
}

// RequestManual handles a manual API-triggered investigation (POST
// /api/investigations/{deterministic,agentic}). It bypasses debounce and
// cooldown but still respects the concurrency cap: it polls
// RunTracker.TryStart every 50ms until a slot frees or ctx ends. It keeps
// no queue, so waiting manual requests and pending auto-dispatched issues
// are not ordered relative to each other.
func (s *Scheduler) RequestManual(ctx context.Context, mode model.InvestigationMode, namespace string) (string, error) {
	if mode == model.ModeAgentic && s.safeMode {
		return "", ErrAgenticDisabled
	}

	investigationID := uuid.NewString()
	fingerprint := "manual:" + investigationID

	for !s.tracker.TryStart(fingerprint, investigationID) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	go s.run(ctx, investigationID, mode, investigate.Input{Namespace: namespace}, fingerprint)
	return investigationID, nil
}

// Cancel force-cancels a running investigation's context; the investigator
// has graceTimeout to seal its own report before ShutdownManager would
// otherwise force it closed on process shutdown. Returns ErrNotFound if no
// running investigation has this id registered.
func (s *Scheduler) Cancel(id string) error {
	cancel, ok := s.shutdown.snapshotCancels()[id]
	if !ok {
		return ErrNotFound
	}
	cancel()
	return nil
}

func (s *Scheduler) run(parent context.Context, investigationID string, mode model.InvestigationMode, in investigate.Input, fingerprint string) {
	startedAt := time.Now()
	var triggering []string
	namespace := in.Namespace
	if in.Issue != nil {
		triggering = []string{in.Issue.Fingerprint}
		namespace = in.Issue.Target.Namespace
	}

	report := s.store.Create(investigationID, mode, namespace, triggering, startedAt)
	s.bus.PublishReport(eventbus.ReportEvent{Event: "created", Report: report})
	s.issues.MarkRunning(fingerprint, investigationID)

	ctx, cancel := context.WithTimeout(parent, s.investigationTimeout)
	s.shutdown.RegisterRun(investigationID, cancel)
	defer func() {
		cancel()
		s.shutdown.DeregisterRun(investigationID)
		s.tracker.Complete(fingerprint)
		s.issues.ClearRunning(fingerprint)

		s.mu.Lock()
		delete(s.queued, fingerprint)
		s.mu.Unlock()

		// Dispatch whatever's next now that a slot freed up.
		s.dispatch(parent)
	}()

	investigator := s.deterministic
	if mode == model.ModeAgentic {
		investigator = s.agentic
	}

	s.bus.PublishLog(model.LogEvent{Timestamp: time.Now(), SourceID: investigationID, Level: model.LogInfo, Message: "investigation_started"})

	result := s.runInvestigator(ctx, investigator, investigationID, in)
	status := result.Status
	if status == "" {
		if ctx.Err() == context.DeadlineExceeded {
			status = model.StatusTimedOut
		} else if ctx.Err() == context.Canceled {
			status = model.StatusCancelled
		} else {
			status = model.StatusCompleted
		}
	}

	s.bus.PublishLog(model.LogEvent{Timestamp: time.Now(), SourceID: investigationID, Level: model.LogInfo, Message: "investigation_finished", Detail: map[string]string{"status": string(status)}})

	s.adjustBackoff(fingerprint, status)

	sealed, err := s.store.Seal(parent, investigationID, time.Now(), result.ClusterSummary, result.Findings, result.ExecutiveSummary, result.Recommendations, result.Steps, status)
	if err != nil {
		s.log.Error(err, "failed to seal investigation report", "investigationId", investigationID)
		return
	}
	s.bus.PublishReport(eventbus.ReportEvent{Event: "sealed", Report: sealed})
}

// runInvestigator calls investigator.Run with a recover guard: a panicking
// investigator must still produce a sealed failed report rather than take
// down the daemon. The recovered value is logged as an error LogEvent and
// folded into a StatusFailed result.
func (s *Scheduler) runInvestigator(ctx context.Context, investigator investigate.Investigator, investigationID string, in investigate.Input) (result investigate.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(fmt.Errorf("%v", r), "investigator panicked", "investigationId", investigationID)
			s.bus.PublishLog(model.LogEvent{Timestamp: time.Now(), SourceID: investigationID, Level: model.LogError, Message: "investigator_panic", Detail: map[string]string{"panic": fmt.Sprintf("%v", r)}})
			result = investigate.Result{Status: model.StatusFailed}
		}
	}()
	return investigator.Run(ctx, investigationID, in, s.bus)
}

// adjustBackoff doubles a per-fingerprint backoff after any failed
// investigation, llm_rate_limited included (30s first, capped at 10
// minutes), so the next dispatch for this fingerprint falls back to
// deterministic mode instead of hammering the same limit; any other
// terminal status clears the backoff.
func (s *Scheduler) adjustBackoff(fingerprint string, status model.ReportStatus) {
	const maxBackoff = 10 * time.Minute
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == model.StatusFailed {
		cur := s.backoff[fingerprint]
		if cur == 0 {
			cur = 30 * time.Second
		} else if cur < maxBackoff {
			cur *= 2
			if cur > maxBackoff {
				cur = maxBackoff
			}
		}
		s.backoff[fingerprint] = cur
		go func() {
			time.Sleep(cur)
			s.mu.Lock()
			delete(s.backoff, fingerprint)
			s.mu.Unlock()
		}()
		return
	}
	delete(s.backoff, fingerprint)
}

// Shutdown drains in-flight investigations within T_grace, used by
// cmd/investigator-core's graceful-shutdown sequence.
func (s *Scheduler) Shutdown() int {
	return s.shutdown.WaitForDrain()
}

// StartStaleReaper periodically sweeps the RunTracker for investigations
// that have been in-flight longer than maxAge — recovery for a run
// goroutine that panicked before reaching its Complete/ClearRunning
// cleanup. It never touches reports; the next dispatch round simply sees
// the freed capacity.
func (s *Scheduler) StartStaleReaper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.tracker.CleanStale(maxAge); n > 0 {
					s.log.Info("reaped stale in-flight investigations", "count", n)
					s.dispatch(ctx)
				}
			}
		}
	}()
}
