/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package investigate declares the shared contract both the deterministic
// and agentic investigators satisfy, so the scheduler can dispatch either
// without depending on their concrete packages.
package investigate

import (
	"context"

	"github.com/kubesentry/investigator/internal/model"
)

// Input describes what triggered this investigation.
type Input struct {
	Issue     *model.Issue // nil for a manual request with no specific target issue
	Namespace string
}

// Publisher is the narrow slice of eventbus.Bus an investigator needs to
// emit step-level LogEvents while it runs.
type Publisher interface {
	PublishLog(model.LogEvent)
}

// Result is everything an Investigator contributes to a sealed report;
// the scheduler fills in ID, timestamps, and TriggeringIssueFingerprints.
type Result struct {
	ClusterSummary   model.ClusterSummary
	Findings         []model.Finding
	ExecutiveSummary string
	Recommendations  []string
	Steps            []model.StepResult
	Status           model.ReportStatus
}

// Investigator runs one investigation to completion (or until ctx is done).
// It must always return a Result with a terminal Status — callers never
// see a panic or raw error, per the Scheduler's failure semantics.
type Investigator interface {
	Mode() model.InvestigationMode
	Run(ctx context.Context, investigationID string, in Input, pub Publisher) Result
}
