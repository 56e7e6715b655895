/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package deterministic executes the fixed, ordered nine-step diagnostic
// plan, each step independent and best-effort: a step failure is recorded
// and does not abort the plan.
package deterministic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kubesentry/investigator/internal/adapters/analyzer"
	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/investigate"
	"github.com/kubesentry/investigator/internal/model"
)

// stepNames fixes both the order and the names that are part of the contract.
var stepNames = []string{
	"cluster_overview",
	"node_analysis",
	"pod_analysis",
	"resource_utilization",
	"event_analysis",
	"analyzer_scan",
	"workload_analysis",
	"network_analysis",
	"report_assembly",
}

// KnowledgeQuerier is the narrow slice of *knowledge.Index the pod_analysis
// step uses to enrich image-policy findings with an approved-registry
// suggestion, when a corpus is configured. Optional: nil disables it.
type KnowledgeQuerier interface {
	Query(topic string, k int) []model.KnowledgeResult
}

// Investigator is the DeterministicInvestigator.
type Investigator struct {
	cluster        cluster.Adapter
	analyzer       analyzer.Adapter
	knowledge      KnowledgeQuerier
	adapterTimeout time.Duration
}

func New(clusterAdapter cluster.Adapter, analyzerAdapter analyzer.Adapter, knowledgeIndex KnowledgeQuerier, adapterTimeout time.Duration) *Investigator {
	return &Investigator{cluster: clusterAdapter, analyzer: analyzerAdapter, knowledge: knowledgeIndex, adapterTimeout: adapterTimeout}
}

func (i *Investigator) Mode() model.InvestigationMode { return model.ModeDeterministic }

type stepState struct {
	snapshot  model.ClusterSnapshot
	findings  []model.Finding
	results   []model.StepResult
}

func (i *Investigator) Run(ctx context.Context, investigationID string, in investigate.Input, pub investigate.Publisher) investigate.Result {
	st := &stepState{}

	steps := []func(context.Context, *stepState, investigate.Input) error{
		i.clusterOverview,
		i.nodeAnalysis,
		i.podAnalysis,
		i.resourceUtilization,
		i.eventAnalysis,
		i.analyzerScan,
		i.workloadAnalysis,
		i.networkAnalysis,
	}

	for idx, step := range steps {
		select {
		case <-ctx.Done():
			return i.sealOnInterrupt(ctx, st, idx)
		default:
		}

		start := time.Now()
		err := step(ctx, st, in)
		dur := time.Since(start).Milliseconds()

		result := model.StepResult{Index: idx, Name: stepNames[idx], DurationMs: dur}
		switch {
		case errors.Is(err, errSkipped):
			result.Status = model.StepSkipped
		case err != nil:
			result.Status = model.StepFailed
			result.Error = err.Error()
			pub.PublishLog(model.LogEvent{
				Timestamp: time.Now(), SourceID: investigationID, Level: model.LogWarn,
				Message: fmt.Sprintf("step %s failed: %v", stepNames[idx], err),
				Detail:  map[string]string{"step_index": fmt.Sprint(idx)},
			})
		default:
			result.Status = model.StepCompleted
		}
		st.results = append(st.results, result)

		if ctx.Err() != nil {
			return i.sealOnInterrupt(ctx, st, idx+1)
		}
	}

	assembleStart := time.Now()
	summary, execSummary, recs := i.reportAssembly(st)
	st.results = append(st.results, model.StepResult{
		Index: len(stepNames) - 1, Name: "report_assembly",
		Status: model.StepCompleted, DurationMs: time.Since(assembleStart).Milliseconds(),
	})

	return investigate.Result{
		ClusterSummary:   summary,
		Findings:         st.findings,
		ExecutiveSummary: execSummary,
		Recommendations:  recs,
		Steps:            st.results,
		Status:           model.StatusCompleted,
	}
}

func (i *Investigator) sealOnInterrupt(ctx context.Context, st *stepState, nextIdx int) investigate.Result {
	status := model.StatusTimedOut
	if errors.Is(ctx.Err(), context.Canceled) {
		status = model.StatusCancelled
	}
	summary, execSummary, recs := i.reportAssembly(st)
	return investigate.Result{
		ClusterSummary:   summary,
		Findings:         st.findings,
		ExecutiveSummary: execSummary,
		Recommendations:  recs,
		Steps:            st.results,
		Status:           status,
	}
}

var errSkipped = errors.New("skipped")

func (i *Investigator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, i.adapterTimeout)
}

func (i *Investigator) clusterOverview(ctx context.Context, st *stepState, in investigate.Input) error {
	callCtx, cancel := i.callCtx(ctx)
	defer cancel()
	snap, err := i.cluster.Snapshot(callCtx)
	if err != nil {
		return err
	}
	st.snapshot = snap
	return nil
}

func (i *Investigator) nodeAnalysis(ctx context.Context, st *stepState, in investigate.Input) error {
	for _, n := range st.snapshot.Nodes {
		if !n.Ready {
			st.findings = append(st.findings, model.Finding{
				Category:    model.CategoryNodeHealth,
				Severity:    model.SeverityCritical,
				Title:       fmt.Sprintf("Node %s is not ready", n.Name),
				Description: "Node reports Ready=false.",
				AffectedRefs: []model.ObjectRef{{Kind: "Node", Name: n.Name}},
				SourceTool:  model.SourceCluster,
			})
		}
	}
	return nil
}

func (i *Investigator) podAnalysis(ctx context.Context, st *stepState, in investigate.Input) error {
	byReason := make(map[string][]model.ObjectRef)
	imagesByReason := make(map[string][]string)
	for _, p := range st.snapshot.Pods {
		if in.Namespace != "" && p.Namespace != in.Namespace {
			continue
		}
		for _, c := range p.Containers {
			if c.State.Waiting == nil {
				continue
			}
			reason := c.State.Waiting.Reason
			byReason[reason] = append(byReason[reason], model.ObjectRef{
				Namespace: p.Namespace, Kind: "Pod", Name: p.Name, Container: c.Name,
			})
			if reason == "ImagePullBackOff" || reason == "ErrImagePull" {
				imagesByReason[reason] = append(imagesByReason[reason], c.Image)
			}
		}
	}
	for reason, refs := range byReason {
		if reason == "ImagePullBackOff" || reason == "ErrImagePull" {
			st.findings = append(st.findings, i.imagePolicyFinding(reason, refs, imagesByReason[reason]))
			continue
		}
		st.findings = append(st.findings, model.Finding{
			Category:     model.CategoryPodFailures,
			Severity:     model.SeverityHigh,
			Title:        fmt.Sprintf("%d container(s) waiting: %s", len(refs), reason),
			Description:  fmt.Sprintf("Containers stuck waiting with reason %q.", reason),
			AffectedRefs: refs,
			SourceTool:   model.SourceCluster,
		})
	}
	return nil
}

func (i *Investigator) imagePolicyFinding(reason string, refs []model.ObjectRef, images []string) model.Finding {
	f := model.Finding{
		Category:     model.CategoryImagePolicy,
		Severity:     model.SeverityHigh,
		Title:        fmt.Sprintf("%d container(s) cannot pull their image (%s)", len(refs), reason),
		Description:  fmt.Sprintf("Affected images: %s", strings.Join(dedupeStrings(images), ", ")),
		AffectedRefs: refs,
		Evidence:     images,
		SourceTool:   model.SourceCluster,
	}
	for _, img := range dedupeStrings(images) {
		f.Recommendations = append(f.Recommendations, fmt.Sprintf("Verify image reference %q exists in an approved registry and is spelled correctly.", img))
	}
	if i.knowledge != nil {
		for _, r := range i.knowledge.Query("ImagePullBackOff", 1) {
			f.KnowledgeRefs = append(f.KnowledgeRefs, r.DocID+"#"+r.SectionID)
			f.Recommendations = append(f.Recommendations, r.Body)
			f.SourceTool = model.SourceKnowledge
		}
	}
	return f
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (i *Investigator) resourceUtilization(ctx context.Context, st *stepState, in investigate.Input) error {
	// AnalyzerAdapter carries no metrics surface (Scan returns Diagnostics,
	// not CPU/memory usage), so this step has nothing to detect >=80%
	// pressure with. Report it skipped rather than silently claiming
	// completion, same as analyzerScan does for tool_missing.
	return errSkipped
}

func (i *Investigator) eventAnalysis(ctx context.Context, st *stepState, in investigate.Input) error {
	cutoff := time.Now().Add(-30 * time.Minute)
	byReason := make(map[string][]string)
	for _, e := range st.snapshot.Events {
		if e.Type != model.EventWarning || e.LastSeen.Before(cutoff) {
			continue
		}
		byReason[e.Reason] = append(byReason[e.Reason], e.Message)
	}
	for reason, msgs := range byReason {
		sample := msgs
		if len(sample) > 3 {
			sample = sample[:3]
		}
		st.findings = append(st.findings, model.Finding{
			Category:    model.CategoryEvents,
			Severity:    model.SeverityMedium,
			Title:       fmt.Sprintf("%d warning event(s): %s", len(msgs), reason),
			Description: "Recent warning events grouped by reason.",
			Evidence:    sample,
			SourceTool:  model.SourceCluster,
		})
	}
	return nil
}

func (i *Investigator) analyzerScan(ctx context.Context, st *stepState, in investigate.Input) error {
	if i.analyzer == nil {
		return errSkipped
	}
	callCtx, cancel := i.callCtx(ctx)
	defer cancel()

	diags, err := i.analyzer.Scan(callCtx, in.Namespace)
	if errors.Is(err, analyzer.ErrToolMissing) {
		return errSkipped
	}
	if err != nil {
		return err
	}
	for _, d := range diags {
		var refs []model.ObjectRef
		if d.Ref != nil {
			refs = []model.ObjectRef{*d.Ref}
		}
		st.findings = append(st.findings, model.Finding{
			Category:     model.CategoryPodFailures,
			Severity:     d.Severity,
			Title:        d.Title,
			Description:  d.Description,
			AffectedRefs: refs,
			SourceTool:   model.SourceAnalyzer,
		})
	}
	return nil
}

func (i *Investigator) workloadAnalysis(ctx context.Context, st *stepState, in investigate.Input) error {
	for _, d := range st.snapshot.Deployments {
		if d.Available < d.Desired {
			st.findings = append(st.findings, model.Finding{
				Category:    model.CategoryPodFailures,
				Severity:    model.SeverityHigh,
				Title:       fmt.Sprintf("Deployment %s/%s under-replicated", d.Namespace, d.Name),
				Description: fmt.Sprintf("%d/%d replicas available.", d.Available, d.Desired),
				AffectedRefs: []model.ObjectRef{{Namespace: d.Namespace, Kind: "Deployment", Name: d.Name}},
				SourceTool:  model.SourceCluster,
			})
		}
	}
	return nil
}

func (i *Investigator) networkAnalysis(ctx context.Context, st *stepState, in investigate.Input) error {
	for _, s := range st.snapshot.Services {
		if !s.HasEndpoints {
			st.findings = append(st.findings, model.Finding{
				Category:    model.CategoryNetwork,
				Severity:    model.SeverityMedium,
				Title:       fmt.Sprintf("Service %s/%s has no endpoints", s.Namespace, s.Name),
				Description: "No ready pods match this service's selector.",
				AffectedRefs: []model.ObjectRef{{Namespace: s.Namespace, Kind: "Service", Name: s.Name}},
				SourceTool:  model.SourceCluster,
			})
		}
	}
	return nil
}

func (i *Investigator) reportAssembly(st *stepState) (model.ClusterSummary, string, []string) {
	summary := model.ClusterSummary{Deployments: len(st.snapshot.Deployments)}
	for _, n := range st.snapshot.Nodes {
		summary.NodesTotal++
		if n.Ready {
			summary.NodesReady++
		}
	}
	for _, p := range st.snapshot.Pods {
		summary.PodsTotal++
		switch p.Phase {
		case model.PodRunning:
			summary.PodsRunning++
		case model.PodFailed:
			summary.PodsFailed++
		case model.PodPending:
			summary.PodsPending++
		}
	}
	for _, e := range st.snapshot.Events {
		if e.Type == model.EventWarning {
			summary.EventsWarning++
		}
	}

	findings := dedupeFindings(st.findings)
	sort.SliceStable(findings, func(a, b int) bool {
		if findings[a].Severity.Rank() != findings[b].Severity.Rank() {
			return findings[a].Severity.Rank() > findings[b].Severity.Rank()
		}
		return len(findings[a].Recommendations) > len(findings[b].Recommendations)
	})

	var critical, high int
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical:
			critical++
		case model.SeverityHigh:
			high++
		}
	}

	status := "OK"
	if critical > 0 {
		status = "CRITICAL"
	} else if len(findings) > 0 {
		status = "ISSUES DETECTED"
	}

	execSummary := fmt.Sprintf(
		"CLUSTER STATUS: %s — %d/%d nodes ready, %d/%d pods running, %d findings (%d critical, %d high).",
		status, summary.NodesReady, summary.NodesTotal, summary.PodsRunning, summary.PodsTotal,
		len(findings), critical, high,
	)

	var recs []string
	seen := make(map[string]bool)
	for _, f := range findings {
		for _, r := range f.Recommendations {
			if !seen[r] {
				seen[r] = true
				recs = append(recs, r)
			}
		}
	}

	return summary, execSummary, recs
}

func dedupeFindings(in []model.Finding) []model.Finding {
	seen := make(map[string]bool)
	var out []model.Finding
	for _, f := range in {
		key := string(f.Category) + "|" + f.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
