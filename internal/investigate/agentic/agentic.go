/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package agentic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kubesentry/investigator/internal/adapters/analyzer"
	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/adapters/llmadapter"
	"github.com/kubesentry/investigator/internal/investigate"
	"github.com/kubesentry/investigator/internal/knowledge"
	"github.com/kubesentry/investigator/internal/model"
)

// Investigator is the AgenticInvestigator: a bounded plan-act-observe
// loop over the five fixed tools, grounded by a KnowledgeIndex query and
// narrowed through the LLMAdapter boundary so any vendor can sit behind it.
type Investigator struct {
	llm           llmadapter.Adapter
	deps          toolDeps
	maxIterations int
	llmTimeout    time.Duration
}

func New(llm llmadapter.Adapter, clusterAdapter cluster.Adapter, analyzerAdapter analyzer.Adapter, knowledgeIndex *knowledge.Index, maxIterations int, llmTimeout time.Duration) *Investigator {
	if maxIterations < 1 {
		maxIterations = 6
	}
	return &Investigator{
		llm:           llm,
		deps:          toolDeps{cluster: clusterAdapter, analyzer: analyzerAdapter, knowledge: knowledgeIndex},
		maxIterations: maxIterations,
		llmTimeout:    llmTimeout,
	}
}

func (i *Investigator) Mode() model.InvestigationMode { return model.ModeAgentic }

// agentAction is the structured response schema the LLM must return each
// iteration: either a tool invocation or the final findings.
type agentAction struct {
	Tool          string         `json:"tool,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
	FinalFindings []findingDTO   `json:"finalFindings,omitempty"`
}

type findingDTO struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
	KnowledgeRef    string   `json:"knowledgeRef,omitempty"`
}

var actionSchema = mustSchema()

func mustSchema() []byte {
	schema, err := jsonschema.For[agentAction](nil)
	if err != nil {
		// A malformed schema here is a build-time programming error, not
		// a runtime condition the caller can act on.
		panic(fmt.Sprintf("agentic: building action schema: %v", err))
	}
	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("agentic: marshalling action schema: %v", err))
	}
	return b
}

func (i *Investigator) Run(ctx context.Context, investigationID string, in investigate.Input, pub investigate.Publisher) investigate.Result {
	server := newServer(i.deps)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return i.failResult(fmt.Sprintf("mcp server connect failed: %v", err))
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "kubesentry-agentic-loop", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return i.failResult(fmt.Sprintf("mcp client connect failed: %v", err))
	}
	defer clientSession.Close()

	var transcript []string
	var findings []model.Finding
	var steps []model.StepResult

	issueKind := "Unknown"
	if in.Issue != nil {
		issueKind = string(in.Issue.Kind)
	}

	seedStart := time.Now()
	seedResult, seedErr := clientSession.CallTool(ctx, &mcp.CallToolParams{
		Name:      "queryKnowledge",
		Arguments: map[string]any{"topic": issueKind},
	})
	if seedErr == nil && seedResult != nil {
		transcript = append(transcript, fmt.Sprintf("queryKnowledge(%s) => %s", issueKind, textOf(seedResult)))
	}
	steps = append(steps, model.StepResult{Index: 0, Name: "seed_knowledge", Status: model.StepCompleted, DurationMs: time.Since(seedStart).Milliseconds()})

	for iter := 1; iter <= i.maxIterations; iter++ {
		if ctx.Err() != nil {
			return i.timeoutResult(findings, steps)
		}

		stepStart := time.Now()
		prompt := i.buildPrompt(in, issueKind, transcript)

		llmCtx, cancel := context.WithTimeout(ctx, i.llmTimeout)
		raw, err := i.llm.Complete(llmCtx, prompt, actionSchema)
		cancel()

		if err != nil {
			if err == llmadapter.ErrRateLimited {
				pub.PublishLog(model.LogEvent{Timestamp: time.Now(), SourceID: investigationID, Level: model.LogError, Message: "llm rate limited, sealing failed"})
				steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d", iter), Status: model.StepFailed, Error: err.Error(), DurationMs: time.Since(stepStart).Milliseconds()})
				return investigate.Result{Findings: findings, Steps: steps, Status: model.StatusFailed, ExecutiveSummary: "Agentic investigation failed: LLM rate limited."}
			}
			// adapter_timeout or a disabled/noop adapter: loop exits.
			steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d", iter), Status: model.StepFailed, Error: err.Error(), DurationMs: time.Since(stepStart).Milliseconds()})
			return i.timeoutResult(findings, steps)
		}

		var action agentAction
		if err := json.Unmarshal([]byte(raw), &action); err != nil {
			findings = append(findings, model.Finding{
				Category:    model.CategoryKnowledgeGap,
				Severity:    model.SeverityLow,
				Title:       "Malformed agent response",
				Description: err.Error(),
				SourceTool:  model.SourceLLM,
			})
			steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d", iter), Status: model.StepFailed, Error: "llm_malformed", DurationMs: time.Since(stepStart).Milliseconds()})
			continue
		}

		if len(action.FinalFindings) > 0 {
			for _, dto := range action.FinalFindings {
				findings = append(findings, toFinding(dto))
			}
			steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d", iter), Status: model.StepCompleted, DurationMs: time.Since(stepStart).Milliseconds()})
			return investigate.Result{
				Findings:         findings,
				ExecutiveSummary: summarize(findings),
				Recommendations:  dedupeRecs(findings),
				Steps:            steps,
				Status:           model.StatusCompleted,
			}
		}

		if action.Tool == "" {
			steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d", iter), Status: model.StepFailed, Error: "llm_malformed: no tool or finalFindings", DurationMs: time.Since(stepStart).Milliseconds()})
			continue
		}

		result, err := clientSession.CallTool(ctx, &mcp.CallToolParams{Name: action.Tool, Arguments: action.Args})
		outcome := "error"
		if err == nil && result != nil {
			outcome = textOf(result)
		}
		transcript = append(transcript, fmt.Sprintf("%s(%v) => %s", action.Tool, action.Args, outcome))
		steps = append(steps, model.StepResult{Index: iter, Name: fmt.Sprintf("iteration_%d:%s", iter, action.Tool), Status: model.StepCompleted, DurationMs: time.Since(stepStart).Milliseconds()})
	}

	return i.timeoutResult(findings, steps)
}

func (i *Investigator) buildPrompt(in investigate.Input, issueKind string, transcript []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Investigate issue kind %q in namespace %q.\n", issueKind, in.Namespace)
	if in.Issue != nil {
		fmt.Fprintf(&b, "Target: %+v\nEvidence: %s\n", in.Issue.Target, strings.Join(in.Issue.Evidence, "; "))
	}
	if len(transcript) > 0 {
		b.WriteString("Prior tool outputs (most recent last, truncated):\n")
		start := 0
		if len(transcript) > 8 {
			start = len(transcript) - 8
		}
		for _, t := range transcript[start:] {
			if len(t) > 500 {
				t = t[:500] + "…"
			}
			b.WriteString("- " + t + "\n")
		}
	}
	b.WriteString("Respond with either a tool call or finalFindings, citing a knowledgeRef when one grounded your recommendation.")
	return b.String()
}

func (i *Investigator) timeoutResult(findings []model.Finding, steps []model.StepResult) investigate.Result {
	return investigate.Result{
		Findings:         findings,
		ExecutiveSummary: summarize(findings),
		Recommendations:  dedupeRecs(findings),
		Steps:            steps,
		Status:           model.StatusTimedOut,
	}
}

func (i *Investigator) failResult(reason string) investigate.Result {
	return investigate.Result{
		Status: model.StatusFailed,
		Steps:  []model.StepResult{{Index: 0, Name: "mcp_setup", Status: model.StepFailed, Error: reason}},
	}
}

func textOf(r *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func toFinding(dto findingDTO) model.Finding {
	f := model.Finding{
		Category:        model.FindingCategory(dto.Category),
		Severity:        model.Severity(dto.Severity),
		Title:           dto.Title,
		Description:     dto.Description,
		Recommendations: dto.Recommendations,
		SourceTool:      model.SourceLLM,
	}
	if dto.KnowledgeRef != "" {
		f.KnowledgeRefs = []string{dto.KnowledgeRef}
		f.SourceTool = model.SourceKnowledge
	} else if f.Category == "" {
		f.Category = model.CategoryKnowledgeGap
	}
	return f
}

func summarize(findings []model.Finding) string {
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
	return fmt.Sprintf("CLUSTER STATUS: %s — agentic investigation produced %d findings (%d critical, %d high).", status, len(findings), critical, high)
}

func dedupeRecs(findings []model.Finding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		for _, r := range f.Recommendations {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}
