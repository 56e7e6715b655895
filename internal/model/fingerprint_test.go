/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package model_test

import (
	"testing"

	"github.com/kubesentry/investigator/internal/model"
)

func TestFingerprintStableAcrossRecurrences(t *testing.T) {
	target := model.ObjectRef{Namespace: "default", Kind: "Pod", Name: "web-1"}

	a := model.Fingerprint(model.IssueCrashLoopBackOff, target, "OOMKilled")
	b := model.Fingerprint(model.IssueCrashLoopBackOff, target, "OOMKilled")

	if a != b {
		t.Fatalf("expected stable fingerprint, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected a 16-character fingerprint, got %d: %q", len(a), a)
	}
}

func TestFingerprintDiffersByTarget(t *testing.T) {
	a := model.Fingerprint(model.IssueCrashLoopBackOff, model.ObjectRef{Namespace: "default", Kind: "Pod", Name: "web-1"}, "OOMKilled")
	b := model.Fingerprint(model.IssueCrashLoopBackOff, model.ObjectRef{Namespace: "default", Kind: "Pod", Name: "web-2"}, "OOMKilled")

	if a == b {
		t.Fatalf("expected different fingerprints for different targets, got the same: %q", a)
	}
}

func TestFingerprintIgnoresCountsAndTimestamps(t *testing.T) {
	// Fingerprint only takes kind/target/reason; two Issue values that
	// differ solely in DetectedAt or Evidence must still collapse to the
	// same identity.
	target := model.ObjectRef{Namespace: "default", Kind: "Pod", Name: "web-1"}
	a := model.Fingerprint(model.IssueOOMKilled, target, "OOMKilled")
	b := model.Fingerprint(model.IssueOOMKilled, target, "OOMKilled")
	if a != b {
		t.Fatalf("expected identical fingerprints, got %q and %q", a, b)
	}
}

func TestSeverityForCrashLoopEscalatesWithRestarts(t *testing.T) {
	cases := []struct {
		restarts int32
		want     model.Severity
	}{
		{restarts: 0, want: model.SeverityMedium},
		{restarts: 1, want: model.SeverityMedium},
		{restarts: 2, want: model.SeverityHigh},
		{restarts: 4, want: model.SeverityHigh},
		{restarts: 5, want: model.SeverityCritical},
		{restarts: 20, want: model.SeverityCritical},
	}
	for _, tc := range cases {
		got := model.SeverityFor(model.IssueCrashLoopBackOff, tc.restarts, 0, 0)
		if got != tc.want {
			t.Errorf("restarts=%d: want %s, got %s", tc.restarts, tc.want, got)
		}
	}
}

func TestSeverityForPendingUnschedulableEscalatesWithAge(t *testing.T) {
	if got := model.SeverityFor(model.IssuePendingUnschedulable, 0, 60, 0); got != model.SeverityMedium {
		t.Errorf("pendingAge=60: want medium, got %s", got)
	}
	if got := model.SeverityFor(model.IssuePendingUnschedulable, 0, 121, 0); got != model.SeverityCritical {
		t.Errorf("pendingAge=121: want critical, got %s", got)
	}
}

func TestSeverityForAlwaysCriticalKinds(t *testing.T) {
	if got := model.SeverityFor(model.IssueNodeNotReady, 0, 0, 0); got != model.SeverityCritical {
		t.Errorf("NodeNotReady: want critical, got %s", got)
	}
	if got := model.SeverityFor(model.IssueOOMKilled, 0, 0, 0); got != model.SeverityCritical {
		t.Errorf("OOMKilled: want critical, got %s", got)
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	if model.SeverityCritical.Rank() <= model.SeverityHigh.Rank() {
		t.Fatal("critical should outrank high")
	}
	if model.SeverityHigh.Rank() <= model.SeverityMedium.Rank() {
		t.Fatal("high should outrank medium")
	}
	if model.SeverityMedium.Rank() <= model.SeverityLow.Rank() {
		t.Fatal("medium should outrank low")
	}
}

func TestReportStatusIsTerminal(t *testing.T) {
	terminal := []model.ReportStatus{model.StatusCompleted, model.StatusFailed, model.StatusCancelled, model.StatusTimedOut}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if model.StatusInProgress.IsTerminal() {
		t.Fatal("in_progress must not be terminal")
	}
}
