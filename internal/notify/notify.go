/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package notify delivers sealed InvestigationReports to external
// channels (Slack, generic webhook). It subscribes to the EventBus's
// reports topic and formats each sealed report for delivery — the same
// resolve-channels-then-format-and-deliver shape as the teacher's
// reporter package, generalized from per-agent-run reports with
// usage/guardrail summaries to per-investigation reports with findings.
package notify

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kubesentry/investigator/internal/config"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/model"
)

// Channel is the interface for notification transports.
type Channel interface {
	Send(ctx context.Context, report model.InvestigationReport) error
	Name() string
	Type() string
}

// Notifier subscribes to the reports topic and fans sealed reports out to
// every registered channel.
type Notifier struct {
	log      logr.Logger
	channels map[string]Channel
}

// New builds a Notifier from the configuration's NotifyChannels table.
func New(log logr.Logger, cfg map[string]config.ChannelConfig) *Notifier {
	n := &Notifier{
		log:      log.WithName("notify"),
		channels: make(map[string]Channel),
	}
	for name, spec := range cfg {
		ch, err := newChannelFromSpec(name, spec)
		if err != nil {
			log.Error(err, "failed to create notification channel", "channel", name)
			continue
		}
		n.channels[name] = ch
	}
	return n
}

// RegisterChannel adds or replaces a channel, primarily for tests.
func (n *Notifier) RegisterChannel(name string, ch Channel) {
	n.channels[name] = ch
}

// ChannelNames lists all registered channel names.
func (n *Notifier) ChannelNames() []string {
	names := make([]string, 0, len(n.channels))
	for name := range n.channels {
		names = append(names, name)
	}
	return names
}

// Subscribe attaches the Notifier to the bus's reports topic. Every sealed
// report with a non-in_progress status is fanned out to all channels;
// delivery failures are logged but never block the bus.
func (n *Notifier) Subscribe(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe(eventbus.TopicReports)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				ev, ok := payload.(eventbus.ReportEvent)
				if !ok || !ev.Report.Status.IsTerminal() {
					continue
				}
				n.sendToAll(ctx, ev.Report)
			}
		}
	}()
}

func (n *Notifier) sendToAll(ctx context.Context, report model.InvestigationReport) {
	for name, ch := range n.channels {
		if err := ch.Send(ctx, report); err != nil {
			n.log.Error(err, "failed to deliver report", "channel", name, "report", report.ID)
		}
	}
}

func newChannelFromSpec(name string, spec config.ChannelConfig) (Channel, error) {
	switch spec.Type {
	case "slack":
		return NewSlackChannel(name, spec.Target), nil
	case "webhook":
		return NewWebhookChannel(name, spec.Target), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %q", spec.Type)
	}
}
