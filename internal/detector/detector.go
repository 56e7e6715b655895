/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package detector

import (
	"sync"
	"time"

	"github.com/kubesentry/investigator/internal/clock"
	"github.com/kubesentry/investigator/internal/model"
)

// IssueDetector holds per-fingerprint DetectionWindow state and turns
// classified occurrences into the debounced Issue stream the scheduler
// consumes. The debounce/cooldown bookkeeping generalizes the teacher's
// scheduler.Debouncer (a mutex-guarded map[string]time.Time keyed by an
// arbitrary string) into windows keyed by fingerprint, carrying the
// extra consecutive-snapshot count §4.2 requires.
type IssueDetector struct {
	mu      sync.Mutex
	windows map[string]*model.DetectionWindow
	clock   clock.Clock

	debounceK int
	cooldown  time.Duration

	prev        *model.ClusterSnapshot
	lastRestart map[string]int32
}

// New builds an IssueDetector. debounceK is the number of consecutive
// snapshots required before a non-critical issue is emitted; cooldown is
// the per-fingerprint suppression window following an emission.
func New(clk clock.Clock, debounceK int, cooldown time.Duration) *IssueDetector {
	if debounceK < 1 {
		debounceK = 1
	}
	return &IssueDetector{
		windows:     make(map[string]*model.DetectionWindow),
		clock:       clk,
		debounceK:   debounceK,
		cooldown:    cooldown,
		lastRestart: make(map[string]int32),
	}
}

// Observe classifies the snapshot against the prior one, updates window
// state, and returns the Issues that should be emitted to the scheduler
// on this call (i.e. that have cleared debouncing and cooldown).
func (d *IssueDetector) Observe(cur model.ClusterSnapshot) []model.Issue {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	raws := classify(d.prev, cur, now)

	seenThisTick := make(map[string]bool)
	var emitted []model.Issue

	for _, r := range raws {
		fp := model.Fingerprint(r.kind, r.target, r.reason)
		seenThisTick[fp] = true

		w, exists := d.windows[fp]
		if !exists {
			w = &model.DetectionWindow{Fingerprint: fp, FirstSeen: now}
			d.windows[fp] = w
			w.ConsecutiveSnapshots = 1
		} else if prevRestart, ok := d.lastRestart[fp]; ok && r.restartCount < prevRestart {
			// Restart count going down means the pod was replaced; treat
			// this as a fresh occurrence rather than a continuation.
			w.ConsecutiveSnapshots = 1
		} else {
			w.ConsecutiveSnapshots++
		}
		w.LastSeen = now
		d.lastRestart[fp] = r.restartCount

		sev := model.SeverityFor(r.kind, r.restartCount, r.pendingAgeS, r.restartCountAsHighRestart())

		shouldEmit := false
		if sev == model.SeverityCritical {
			shouldEmit = true
		} else if w.ConsecutiveSnapshots >= d.debounceK {
			shouldEmit = true
		}

		if shouldEmit && now.Before(w.CooldownUntil) {
			shouldEmit = false
		}

		if shouldEmit {
			w.CooldownUntil = now.Add(d.cooldown)
			emitted = append(emitted, model.Issue{
				Kind:          r.kind,
				Severity:      sev,
				Target:        r.target,
				Evidence:      r.evidence,
				PrimaryReason: r.reason,
				Fingerprint:   fp,
				DetectedAt:    now,
			})
		}
	}

	// Clear windows for fingerprints that disappeared this tick — a pod
	// disappearing (not in the current snapshot) clears its entry.
	for fp := range d.windows {
		if !seenThisTick[fp] {
			delete(d.windows, fp)
			delete(d.lastRestart, fp)
		}
	}

	d.prev = &cur
	return emitted
}

// restartCountAsHighRestart lets SeverityFor's HighRestart branch read the
// same restart count used for the CrashLoopBackOff tie-break.
func (r rawIssue) restartCountAsHighRestart() int {
	if r.kind != model.IssueHighRestart {
		return 0
	}
	return int(r.restartCount)
}

// Windows returns a copy of the current per-fingerprint state, for
// introspection endpoints and tests. The detector remains the single
// writer; this is a snapshot, not a live handle.
func (d *IssueDetector) Windows() map[string]model.DetectionWindow {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]model.DetectionWindow, len(d.windows))
	for fp, w := range d.windows {
		out[fp] = *w
	}
	return out
}

// MarkRunning records that fingerprint fp now has an active investigation,
// called by the scheduler on dispatch.
func (d *IssueDetector) MarkRunning(fp, investigationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[fp]; ok {
		w.ActiveInvestigationID = investigationID
	}
}

// ClearRunning records that fingerprint fp no longer has an active
// investigation, called by the scheduler when a run reaches a terminal state.
func (d *IssueDetector) ClearRunning(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.windows[fp]; ok {
		w.ActiveInvestigationID = ""
	}
}
