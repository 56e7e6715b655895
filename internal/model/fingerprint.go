/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the stable identity of an issue occurrence. It
// excludes timestamps, counts, and pod UIDs so that recurrences of the
// same underlying problem collapse onto one DetectionWindow.
func Fingerprint(kind IssueKind, target ObjectRef, primaryReason string) string {
	parts := []string{
		string(kind),
		target.Namespace,
		target.Kind,
		target.Name,
		target.Container,
		primaryReason,
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])[:16]
}

// SeverityFor applies the fixed tie-break ordering from the classification
// table: earlier rules win ties, later rules only apply when none of the
// earlier conditions matched.
func SeverityFor(kind IssueKind, restartCount int32, pendingAge int64, highRestartCount int) Severity {
	switch kind {
	case IssueNodeNotReady:
		return SeverityCritical
	case IssueOOMKilled:
		return SeverityCritical
	case IssuePendingUnschedulable:
		if pendingAge > 120 {
			return SeverityCritical
		}
		return SeverityMedium
	case IssueCrashLoopBackOff:
		if restartCount >= 5 {
			return SeverityCritical
		}
		if restartCount >= 2 {
			return SeverityHigh
		}
		return SeverityMedium
	case IssueEvictedPod:
		return SeverityHigh
	case IssueImagePullBackOff, IssueErrImagePull:
		return SeverityHigh
	case IssueHighRestart:
		if highRestartCount >= 3 {
			return SeverityMedium
		}
		return SeverityLow
	case IssueFailedMount:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
