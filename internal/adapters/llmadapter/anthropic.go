/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package llmadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter binds the LLMAdapter boundary to Anthropic's API.
// Temperature is fixed low per the determinism constraint in §4.5 of the
// specification (same issue + corpus + cluster state ⇒ semantically
// equivalent findings).
type AnthropicAdapter struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicAdapter builds an adapter from an API key. The model
// defaults to Claude's small/cheap tier, appropriate for a bounded
// tool-calling loop that fires frequently.
func NewAnthropicAdapter(apiKey string, model anthropic.Model) *AnthropicAdapter {
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *AnthropicAdapter) Complete(ctx context.Context, prompt string, schema []byte) (string, error) {
	systemPrompt := "Respond with a single JSON object only, matching the provided schema. " +
		"Do not include prose, markdown fences, or explanation.\n\nSchema:\n" + string(schema)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   1024,
		Temperature: anthropic.Float(0.2),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("anthropic call failed: %w", err)
	}

	if len(msg.Content) == 0 {
		return "", ErrMalformed
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", ErrMalformed
	}
	return out, nil
}
