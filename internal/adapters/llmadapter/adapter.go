/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package llmadapter implements the narrow LLMAdapter boundary: a
// prompt-in, structured-response-out function with timeout and error,
// deliberately decoupled from any one vendor. The concrete binding is
// Anthropic's SDK; safeMode substitutes NoopAdapter so agentic dispatch
// always falls back to deterministic mode.
package llmadapter

import (
	"context"
	"errors"
)

// ErrTimeout, ErrRateLimited, and ErrMalformed mirror the error taxonomy.
var (
	ErrTimeout     = errors.New("adapter_timeout")
	ErrRateLimited = errors.New("llm_rate_limited")
	ErrMalformed   = errors.New("llm_malformed")
	ErrDisabled    = errors.New("disabled")
)

// Adapter is the boundary the AgenticInvestigator calls.
type Adapter interface {
	// Complete sends prompt and a JSON schema describing the expected
	// structured response, and returns the raw JSON text the model
	// produced. The caller is responsible for unmarshalling and
	// validating against schema.
	Complete(ctx context.Context, prompt string, schema []byte) (string, error)
}
