/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package detector classifies snapshot deltas into Issues and debounces
// their emission to the scheduler, keyed by a stable fingerprint.
package detector

import (
	"time"

	"github.com/kubesentry/investigator/internal/model"
)

// classify is the pure function (prevSnapshot?, curSnapshot) -> []Issue
// from §4.2, applying the nine ordered rules per pod/node/event.
func classify(prev *model.ClusterSnapshot, cur model.ClusterSnapshot, now time.Time) []rawIssue {
	var out []rawIssue

	restartsByPod := make(map[string]int32)
	if prev != nil {
		for _, p := range prev.Pods {
			restartsByPod[podKey(p)] = p.RestartCount
		}
	}

	unschedulable := make(map[string]bool)
	for _, ev := range cur.Events {
		if ev.Reason == "FailedScheduling" || ev.Reason == "Unschedulable" {
			unschedulable[ev.Object.Namespace+"/"+ev.Object.Name] = true
		}
	}

	for _, pod := range cur.Pods {
		out = append(out, classifyPod(pod, restartsByPod, unschedulable, now)...)
	}
	for _, node := range cur.Nodes {
		if !node.Ready {
			out = append(out, rawIssue{
				kind:   model.IssueNodeNotReady,
				target: model.ObjectRef{Kind: "Node", Name: node.Name},
				reason: "NotReady",
			})
		}
	}
	for _, ev := range cur.Events {
		out = append(out, classifyEvent(ev)...)
	}

	return out
}

type rawIssue struct {
	kind         model.IssueKind
	target       model.ObjectRef
	reason       string
	evidence     []string
	restartCount int32
	pendingAgeS  int64
}

func podKey(p model.Pod) string { return p.Namespace + "/" + p.Name }

func classifyPod(pod model.Pod, prevRestarts map[string]int32, unschedulable map[string]bool, now time.Time) []rawIssue {
	var out []rawIssue
	key := pod.Namespace + "/" + pod.Name
	prevRestart, hadPrev := prevRestarts[key]
	restartIncreased := hadPrev && pod.RestartCount > prevRestart

	for _, c := range pod.Containers {
		target := model.ObjectRef{Namespace: pod.Namespace, Kind: "Pod", Name: pod.Name, Container: c.Name}

		switch {
		case c.State.Waiting != nil && c.State.Waiting.Reason == "ImagePullBackOff":
			out = append(out, rawIssue{
				kind: model.IssueImagePullBackOff, target: target, reason: "ImagePullBackOff",
				evidence: []string{c.State.Waiting.Message, c.Image},
			})
		case c.State.Waiting != nil && c.State.Waiting.Reason == "ErrImagePull":
			out = append(out, rawIssue{
				kind: model.IssueErrImagePull, target: target, reason: "ErrImagePull",
				evidence: []string{c.State.Waiting.Message, c.Image},
			})
		case c.State.Waiting != nil && c.State.Waiting.Reason == "CrashLoopBackOff":
			out = append(out, rawIssue{
				kind: model.IssueCrashLoopBackOff, target: target, reason: "CrashLoopBackOff",
				evidence: []string{c.State.Waiting.Message}, restartCount: c.RestartCount,
			})
		case restartIncreased && c.State.Terminated != nil && isErrorTermination(c.State.Terminated):
			out = append(out, rawIssue{
				kind: model.IssueCrashLoopBackOff, target: target, reason: "CrashLoopBackOff",
				evidence: []string{c.State.Terminated.Reason}, restartCount: c.RestartCount,
			})
		case c.State.Terminated != nil && c.State.Terminated.Reason == "OOMKilled":
			out = append(out, rawIssue{
				kind: model.IssueOOMKilled, target: target, reason: "OOMKilled",
				evidence: []string{c.State.Terminated.Message},
			})
		}
	}

	if pod.Phase == model.PodPending && pod.Age(now) > 2*time.Minute && unschedulable[key] {
		out = append(out, rawIssue{
			kind: model.IssuePendingUnschedulable,
			target: model.ObjectRef{Namespace: pod.Namespace, Kind: "Pod", Name: pod.Name},
			reason: "Unschedulable", pendingAgeS: int64(pod.Age(now).Seconds()),
		})
	}

	if pod.RestartCount >= 3 && len(out) == 0 {
		out = append(out, rawIssue{
			kind: model.IssueHighRestart,
			target: model.ObjectRef{Namespace: pod.Namespace, Kind: "Pod", Name: pod.Name},
			reason: "HighRestart", restartCount: pod.RestartCount,
		})
	}

	return out
}

func isErrorTermination(t *model.TerminatedState) bool {
	if t.Reason == "Error" {
		return true
	}
	return t.Reason == "Completed" && t.ExitCode != 0
}

func classifyEvent(ev model.Event) []rawIssue {
	target := model.ObjectRef{Namespace: ev.Object.Namespace, Kind: ev.Object.Kind, Name: ev.Object.Name}

	switch ev.Reason {
	case "Evicted":
		return []rawIssue{{kind: model.IssueEvictedPod, target: target, reason: "Evicted", evidence: []string{ev.Message}}}
	case "FailedMount", "FailedAttachVolume":
		return []rawIssue{{kind: model.IssueFailedMount, target: target, reason: ev.Reason, evidence: []string{ev.Message}}}
	case "FailedScheduling", "Unschedulable":
		// No issue of its own; classify's unschedulable set (built from
		// these same events) is what lets classifyPod emit
		// PendingUnschedulable once phase+age also corroborate it.
		return nil
	default:
		return nil
	}
}
