/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package eventbus_test

import (
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/model"
)

func TestPublishStatusDeliversToSubscriber(t *testing.T) {
	bus := eventbus.New(logr.Discard(), nil)
	sub := bus.Subscribe(eventbus.TopicStatus)
	defer sub.Unsubscribe()

	bus.PublishStatus(model.MonitorStatus{Status: model.HealthOK})

	select {
	case payload := <-sub.C:
		status, ok := payload.(model.MonitorStatus)
		if !ok {
			t.Fatalf("expected a MonitorStatus payload, got %T", payload)
		}
		if status.Status != model.HealthOK {
			t.Fatalf("expected HealthOK, got %s", status.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published status")
	}
}

func TestPublishIsIsolatedPerTopic(t *testing.T) {
	bus := eventbus.New(logr.Discard(), nil)
	logsSub := bus.Subscribe(eventbus.TopicLogs)
	defer logsSub.Unsubscribe()

	bus.PublishStatus(model.MonitorStatus{Status: model.HealthOK})

	select {
	case payload := <-logsSub.C:
		t.Fatalf("expected no delivery on the logs topic, got %v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

type countingDropCounter struct {
	drops map[string]int
}

func (c *countingDropCounter) IncEventBusDrop(topic string) {
	c.drops[topic]++
}

func TestPublishDropsOldestWhenSubscriberQueueIsFull(t *testing.T) {
	drops := &countingDropCounter{drops: make(map[string]int)}
	bus := eventbus.New(logr.Discard(), drops)
	sub := bus.Subscribe(eventbus.TopicLogs)
	defer sub.Unsubscribe()

	// Publish well past the bus's bounded per-subscriber queue capacity
	// without ever draining it, forcing the drop-oldest path.
	for i := 0; i < 300; i++ {
		bus.PublishLog(model.LogEvent{Message: "tick"})
	}

	if drops["logs"] == 0 {
		t.Fatal("expected at least one drop once the queue filled up")
	}

	// The channel should still be readable and bounded, not blocked forever.
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected the subscriber channel to still be readable after drops")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := eventbus.New(logr.Discard(), nil)
	sub := bus.Subscribe(eventbus.TopicReports)
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	bus.PublishReport(eventbus.ReportEvent{Event: "created"})

	select {
	case payload, ok := <-sub.C:
		if ok {
			t.Fatalf("expected no further delivery after unsubscribe, got %v", payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
