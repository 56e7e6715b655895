/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package agentic

import (
	"fmt"
	"strings"

	"github.com/kubesentry/investigator/internal/adapters/analyzer"
	"github.com/kubesentry/investigator/internal/model"
)

func formatPod(p model.Pod) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pod %s/%s phase=%s restarts=%d\n", p.Namespace, p.Name, p.Phase, p.RestartCount)
	for _, c := range p.Containers {
		switch {
		case c.State.Waiting != nil:
			fmt.Fprintf(&b, "  container %s waiting: %s (%s)\n", c.Name, c.State.Waiting.Reason, c.State.Waiting.Message)
		case c.State.Terminated != nil:
			fmt.Fprintf(&b, "  container %s terminated: %s exit=%d\n", c.Name, c.State.Terminated.Reason, c.State.Terminated.ExitCode)
		default:
			fmt.Fprintf(&b, "  container %s running image=%s\n", c.Name, c.Image)
		}
	}
	return b.String()
}

func formatEvents(events []model.Event) string {
	if len(events) == 0 {
		return "no events found"
	}
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "[%s] %s %s/%s: %s (x%d)\n", e.Type, e.Reason, e.Object.Namespace, e.Object.Name, e.Message, e.Count)
	}
	return b.String()
}

func formatDiagnostics(diags []analyzer.Diagnostic) string {
	if len(diags) == 0 {
		return "no diagnostics found"
	}
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "%s: %s (severity=%s)\n", d.Title, d.Description, d.Severity)
	}
	return b.String()
}

func formatKnowledge(results []model.KnowledgeResult) string {
	if len(results) == 0 {
		return "no knowledge sections found"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s#%s] %s: %s\n", r.DocID, r.SectionID, r.Title, r.Body)
	}
	return b.String()
}
