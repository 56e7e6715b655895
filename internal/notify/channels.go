/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kubesentry/investigator/internal/model"
)

// SlackChannel sends reports to a Slack incoming webhook URL.
type SlackChannel struct {
	name    string
	webhook string
	client  *http.Client
}

func NewSlackChannel(name, webhookURL string) *SlackChannel {
	return &SlackChannel{name: name, webhook: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *SlackChannel) Name() string { return c.name }
func (c *SlackChannel) Type() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, report model.InvestigationReport) error {
	payload := formatSlackMessage(report)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func formatSlackMessage(report model.InvestigationReport) slackPayload {
	icon := severityIcon(report)
	header := fmt.Sprintf("%s investigation %s (%s) — %s", icon, report.ID, report.Mode, report.Status)

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
	}

	if report.ExecutiveSummary != "" {
		summary := report.ExecutiveSummary
		if len(summary) > 2900 {
			summary = summary[:2900] + "\n… (truncated)"
		}
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: summary}})
	}

	if len(report.Findings) > 0 {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: formatFindings(report.Findings)}})
	}

	return slackPayload{Text: header, Blocks: blocks}
}

// WebhookChannel sends reports as a JSON POST to a configurable URL.
type WebhookChannel struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookChannel(name, webhookURL string) *WebhookChannel {
	return &WebhookChannel{name: name, url: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookChannel) Name() string { return c.name }
func (c *WebhookChannel) Type() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, report model.InvestigationReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to webhook %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook %s returned %d: %s", c.url, resp.StatusCode, string(respBody))
	}
	return nil
}

func severityIcon(report model.InvestigationReport) string {
	switch report.Status {
	case model.StatusCompleted:
		worst := model.SeverityLow
		for _, f := range report.Findings {
			if f.Severity.Rank() > worst.Rank() {
				worst = f.Severity
			}
		}
		switch worst {
		case model.SeverityCritical:
			return "🔴"
		case model.SeverityHigh:
			return "🟠"
		default:
			return "✅"
		}
	case model.StatusFailed, model.StatusTimedOut:
		return "❌"
	case model.StatusCancelled:
		return "🚫"
	default:
		return "📋"
	}
}

func formatFindings(findings []model.Finding) string {
	var b bytes.Buffer
	b.WriteString("*Findings:*\n")
	for _, f := range findings {
		icon := "ℹ️"
		switch f.Severity {
		case model.SeverityCritical:
			icon = "🔴"
		case model.SeverityHigh:
			icon = "🟠"
		}
		fmt.Fprintf(&b, "%s [%s] %s\n", icon, f.Category, f.Title)
	}
	return b.String()
}

// MockChannel records all reports sent to it, for tests.
type MockChannel struct {
	ChannelName string
	ChannelType string
	Reports     []model.InvestigationReport
	SendError   error
}

func NewMockChannel(name, chType string) *MockChannel {
	return &MockChannel{ChannelName: name, ChannelType: chType}
}

func (m *MockChannel) Name() string { return m.ChannelName }
func (m *MockChannel) Type() string { return m.ChannelType }

func (m *MockChannel) Send(_ context.Context, report model.InvestigationReport) error {
	if m.SendError != nil {
		return m.SendError
	}
	m.Reports = append(m.Reports, report)
	return nil
}
