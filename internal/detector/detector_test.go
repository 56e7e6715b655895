/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package detector_test

import (
	"testing"
	"time"

	"github.com/kubesentry/investigator/internal/clock"
	"github.com/kubesentry/investigator/internal/detector"
	"github.com/kubesentry/investigator/internal/model"
)

func crashLoopSnapshot(restartCount int32) model.ClusterSnapshot {
	return model.ClusterSnapshot{
		Pods: []model.Pod{
			{
				Namespace:    "default",
				Name:         "web-1",
				RestartCount: restartCount,
				Containers: []model.ContainerStatus{
					{
						Name:         "app",
						RestartCount: restartCount,
						State: model.ContainerState{
							Waiting: &model.WaitingState{Reason: "CrashLoopBackOff", Message: "back-off restarting"},
						},
					},
				},
			},
		},
	}
}

func TestObserveDebouncesNonCriticalIssues(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 2, 5*time.Minute)

	snap := crashLoopSnapshot(1) // restartCount 1 -> medium severity, debounced

	first := d.Observe(snap)
	if len(first) != 0 {
		t.Fatalf("expected no emission on first snapshot (debounceK=2), got %d", len(first))
	}

	second := d.Observe(snap)
	if len(second) != 1 {
		t.Fatalf("expected emission on second consecutive snapshot, got %d", len(second))
	}
	if second[0].Kind != model.IssueCrashLoopBackOff {
		t.Fatalf("expected CrashLoopBackOff, got %s", second[0].Kind)
	}
}

func TestObserveBypassesDebounceForCritical(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 3, 5*time.Minute)

	snap := model.ClusterSnapshot{Nodes: []model.Node{{Name: "node-1", Ready: false}}}

	emitted := d.Observe(snap)
	if len(emitted) != 1 {
		t.Fatalf("expected critical NodeNotReady to bypass debounce, got %d emissions", len(emitted))
	}
	if emitted[0].Severity != model.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", emitted[0].Severity)
	}
}

func TestObserveAppliesCooldownAfterEmission(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 1, 5*time.Minute)

	snap := model.ClusterSnapshot{Nodes: []model.Node{{Name: "node-1", Ready: false}}}

	first := d.Observe(snap)
	if len(first) != 1 {
		t.Fatalf("expected initial emission, got %d", len(first))
	}

	clk.Advance(time.Minute)
	second := d.Observe(snap)
	if len(second) != 0 {
		t.Fatalf("expected cooldown to suppress re-emission, got %d", len(second))
	}

	clk.Advance(10 * time.Minute)
	third := d.Observe(snap)
	if len(third) != 1 {
		t.Fatalf("expected emission again once cooldown elapsed, got %d", len(third))
	}
}

func TestObserveResetsWindowOnRestartCountDecrease(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 3, 5*time.Minute)

	// Two consecutive snapshots build up consecutive count toward 3.
	d.Observe(crashLoopSnapshot(4))
	d.Observe(crashLoopSnapshot(5))

	// Restart count drops, signalling the pod was replaced; window resets to 1.
	d.Observe(crashLoopSnapshot(0))
	windows := d.Windows()
	if len(windows) != 1 {
		t.Fatalf("expected exactly one window, got %d", len(windows))
	}
	for _, w := range windows {
		if w.ConsecutiveSnapshots != 1 {
			t.Fatalf("expected window to reset to 1 consecutive snapshot, got %d", w.ConsecutiveSnapshots)
		}
	}
}

func TestObserveClearsWindowWhenFingerprintDisappears(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 1, 5*time.Minute)

	d.Observe(crashLoopSnapshot(1))
	if len(d.Windows()) != 1 {
		t.Fatalf("expected one window after first observation")
	}

	d.Observe(model.ClusterSnapshot{})
	if len(d.Windows()) != 0 {
		t.Fatalf("expected window to be cleared once the pod disappears from the snapshot")
	}
}

func TestMarkRunningAndClearRunning(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 1, 5*time.Minute)

	emitted := d.Observe(crashLoopSnapshot(1))
	if len(emitted) != 1 {
		t.Fatalf("expected one emission, got %d", len(emitted))
	}
	fp := emitted[0].Fingerprint

	d.MarkRunning(fp, "inv-1")
	windows := d.Windows()
	if windows[fp].ActiveInvestigationID != "inv-1" {
		t.Fatalf("expected ActiveInvestigationID to be set, got %q", windows[fp].ActiveInvestigationID)
	}

	d.ClearRunning(fp)
	windows = d.Windows()
	if windows[fp].ActiveInvestigationID != "" {
		t.Fatalf("expected ActiveInvestigationID to be cleared, got %q", windows[fp].ActiveInvestigationID)
	}
}

func TestPendingUnschedulableEscalatesWithAge(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 1, 5*time.Minute)

	snap := model.ClusterSnapshot{
		Pods: []model.Pod{
			{
				Namespace: "default",
				Name:      "batch-1",
				Phase:     model.PodPending,
				CreatedAt: clk.Now().Add(-3 * time.Minute),
			},
		},
		Events: []model.Event{
			{
				Object: model.ObjectRef{Namespace: "default", Kind: "Pod", Name: "batch-1"},
				Reason: "FailedScheduling",
			},
		},
	}

	emitted := d.Observe(snap)
	if len(emitted) != 1 {
		t.Fatalf("expected PendingUnschedulable emission, got %d", len(emitted))
	}
	if emitted[0].Kind != model.IssuePendingUnschedulable {
		t.Fatalf("expected PendingUnschedulable, got %s", emitted[0].Kind)
	}
}

func TestPendingUnschedulableRequiresCorroboratingEvent(t *testing.T) {
	clk := clock.NewFake(time.Now())
	d := detector.New(clk, 1, 5*time.Minute)

	// Pending for a long time but with no FailedScheduling/Unschedulable
	// event — e.g. a slow image pull — must not be misclassified as
	// PendingUnschedulable.
	snap := model.ClusterSnapshot{
		Pods: []model.Pod{
			{
				Namespace: "default",
				Name:      "batch-2",
				Phase:     model.PodPending,
				CreatedAt: clk.Now().Add(-3 * time.Minute),
			},
		},
	}

	emitted := d.Observe(snap)
	for _, iss := range emitted {
		if iss.Kind == model.IssuePendingUnschedulable {
			t.Fatal("expected no PendingUnschedulable issue without a corroborating event")
		}
	}
}
