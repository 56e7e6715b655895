/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package agentic implements the bounded plan-act-observe loop over a
// fixed, five-tool surface. The tools are exposed through an in-process
// Model Context Protocol server (modelcontextprotocol/go-sdk), connected
// to an in-process client over an in-memory transport pair — the same
// call-a-typed-tool-by-name shape the teacher's own agent runner used for
// its action sheet, generalized from YAML-declared actions to a fixed Go
// tool registry.
package agentic

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kubesentry/investigator/internal/adapters/analyzer"
	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/knowledge"
	"github.com/kubesentry/investigator/internal/model"
)

// toolDeps bundles the adapters the five tools are allowed to reach.
type toolDeps struct {
	cluster   cluster.Adapter
	analyzer  analyzer.Adapter
	knowledge *knowledge.Index
}

type podStatusArgs struct {
	Namespace string `json:"namespace" jsonschema:"the pod's namespace"`
	Name      string `json:"name" jsonschema:"the pod's name"`
}

type podLogsArgs struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	TailLines int    `json:"tailLines" jsonschema:"maximum 200 lines"`
}

type eventsArgs struct {
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
}

type analyzeArgs struct {
	Namespace string `json:"namespace" jsonschema:"optional, empty scans all namespaces"`
}

type knowledgeArgs struct {
	Topic string `json:"topic" jsonschema:"the issue kind or subject to look up"`
}

// newServer registers the five fixed tools on an in-process MCP server.
func newServer(deps toolDeps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "kubesentry-investigator", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "getPodStatus",
		Description: "Return the structured status of one pod.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args podStatusArgs) (*mcp.CallToolResult, any, error) {
		pod, err := deps.cluster.GetPod(ctx, args.Namespace, args.Name)
		if err != nil {
			return textResult(err.Error()), nil, nil
		}
		return textResult(formatPod(pod)), pod, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "getPodLogs",
		Description: "Tail up to 200 lines of a pod's logs.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args podLogsArgs) (*mcp.CallToolResult, any, error) {
		tail := args.TailLines
		if tail <= 0 || tail > 200 {
			tail = 200
		}
		logs, err := deps.cluster.GetPodLogs(ctx, args.Namespace, args.Name, int64(tail))
		if err != nil {
			return textResult(err.Error()), nil, nil
		}
		return textResult(logs), logs, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "listEventsForObject",
		Description: "List recent events for an object.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args eventsArgs) (*mcp.CallToolResult, any, error) {
		ref := model.ObjectRef{Namespace: args.Namespace, Kind: args.Kind, Name: args.Name}
		events, err := deps.cluster.ListEvents(ctx, &ref)
		if err != nil {
			return textResult(err.Error()), nil, nil
		}
		return textResult(formatEvents(events)), events, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyzeNamespace",
		Description: "Run the external analyzer against a namespace (or the whole cluster).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args analyzeArgs) (*mcp.CallToolResult, any, error) {
		if deps.analyzer == nil {
			return textResult("analyzer not configured"), nil, nil
		}
		diags, err := deps.analyzer.Scan(ctx, args.Namespace)
		if err != nil {
			return textResult(err.Error()), nil, nil
		}
		return textResult(formatDiagnostics(diags)), diags, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "queryKnowledge",
		Description: "Retrieve the top-3 relevant knowledge sections for a topic.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args knowledgeArgs) (*mcp.CallToolResult, any, error) {
		if deps.knowledge == nil {
			return textResult("no knowledge corpus configured"), nil, nil
		}
		results := deps.knowledge.Query(args.Topic, 3)
		return textResult(formatKnowledge(results)), results, nil
	})

	return server
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

