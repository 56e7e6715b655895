/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package analyzer implements the AnalyzerAdapter boundary: an external
// diagnostic tool (k8sgpt-shaped) invoked out-of-process, one diagnostic
// per finding.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/kubesentry/investigator/internal/model"
)

// ErrTimeout mirrors the adapter_timeout taxonomy entry.
var ErrTimeout = errors.New("adapter_timeout")

// ErrToolMissing means the external analyzer binary is not on PATH.
var ErrToolMissing = errors.New("tool_missing")

// Diagnostic is one analyzer result, with its severity already expressed
// as a model.Severity; BinaryAdapter reports every diagnostic at
// SeverityMedium.
type Diagnostic struct {
	Title       string
	Description string
	Severity    model.Severity
	Ref         *model.ObjectRef
}

// Adapter is the narrow boundary to an external analyzer tool.
type Adapter interface {
	Scan(ctx context.Context, namespace string) ([]Diagnostic, error)
}

// BinaryAdapter shells out to an external analyzer binary (default: k8sgpt)
// and parses its JSON output. Mirrors the teacher's pattern of invoking
// external tools via os/exec and translating exit/parse errors into the
// taxonomy's named error kinds.
type BinaryAdapter struct {
	BinaryName string
}

// NewBinaryAdapter defaults to the "k8sgpt" binary name.
func NewBinaryAdapter(binaryName string) *BinaryAdapter {
	if binaryName == "" {
		binaryName = "k8sgpt"
	}
	return &BinaryAdapter{BinaryName: binaryName}
}

type k8sgptResult struct {
	Results []struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Error   []struct{ Text string `json:"Text"` } `json:"error"`
	} `json:"results"`
}

func (a *BinaryAdapter) Scan(ctx context.Context, namespace string) ([]Diagnostic, error) {
	path, err := exec.LookPath(a.BinaryName)
	if err != nil {
		return nil, ErrToolMissing
	}

	args := []string{"analyze", "-o", "json"}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("analyzer scan failed: %w: %s", err, stderr.String())
	}

	var parsed k8sgptResult
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("analyzer output parse error: %w", err)
	}

	diagnostics := make([]Diagnostic, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		for _, e := range r.Error {
			diagnostics = append(diagnostics, Diagnostic{
				Title:       fmt.Sprintf("%s/%s", r.Kind, r.Name),
				Description: e.Text,
				Severity:    model.SeverityMedium,
				Ref:         &model.ObjectRef{Namespace: namespace, Kind: r.Kind, Name: r.Name},
			})
		}
	}
	return diagnostics, nil
}
