/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package eventbus implements the single-process pub/sub fan-out for
// logs, status, and reports. Its non-blocking, drop-oldest-on-full
// producer policy generalizes the teacher's WebhookHandler trigger
// channel (a buffered channel with a select/default drop) to three
// named topics, each with its own bounded queue per subscriber.
package eventbus

import (
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubesentry/investigator/internal/model"
)

// Topic names the three fixed topics the bus carries.
type Topic string

const (
	TopicLogs    Topic = "logs"
	TopicStatus  Topic = "status"
	TopicReports Topic = "reports"
)

// ReportEvent is the payload published on TopicReports.
type ReportEvent struct {
	Event  string // "created" | "sealed"
	Report model.InvestigationReport
}

const defaultQueueCapacity = 256
const lagWarnInterval = 30 * time.Second

// DropCounter is satisfied by *telemetry.Metrics, kept optional so the
// bus has no hard dependency on the metrics package.
type DropCounter interface {
	IncEventBusDrop(topic string)
}

// Bus is the single-process pub/sub described in §4.8.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Topic]map[int]*subscriber
	nextID      int
	log         logr.Logger
	metrics     DropCounter
	capacity    int
}

type subscriber struct {
	ch           chan any
	lastLagWarn  time.Time
}

// New builds a Bus. metrics may be nil.
func New(log logr.Logger, metrics DropCounter) *Bus {
	return &Bus{
		subscribers: map[Topic]map[int]*subscriber{
			TopicLogs:    {},
			TopicStatus:  {},
			TopicReports: {},
		},
		log:      log.WithName("eventbus"),
		metrics:  metrics,
		capacity: defaultQueueCapacity,
	}
}

// Subscription is a handle a caller reads from and releases with Unsubscribe.
type Subscription struct {
	C      <-chan any
	bus    *Bus
	topic  Topic
	id     int
	closed bool
	mu     sync.Mutex
}

// Subscribe returns a bounded per-subscriber queue for topic.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{ch: make(chan any, b.capacity)}
	b.subscribers[topic][id] = sub

	return &Subscription{C: sub.ch, bus: b, topic: topic, id: id}
}

// Unsubscribe releases the queue. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.unsubscribe(s.topic, s.id)
}

func (b *Bus) unsubscribe(topic Topic, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers[topic], id)
}

// publish fans payload out to every subscriber of topic without blocking.
// On a full queue, the oldest buffered event is dropped to make room.
func (b *Bus) publish(topic Topic, payload any) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers[topic]))
	for _, s := range b.subscribers[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- payload:
		default:
			// Drop oldest, then retry once.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- payload:
			default:
			}
			if b.metrics != nil {
				b.metrics.IncEventBusDrop(string(topic))
			}
			b.warnLagging(topic, s)
		}
	}
}

func (b *Bus) warnLagging(topic Topic, s *subscriber) {
	now := time.Now()
	if now.Sub(s.lastLagWarn) < lagWarnInterval {
		return
	}
	s.lastLagWarn = now
	b.log.Info("subscriber_lagging", "topic", string(topic), "dropped", true)
	if topic != TopicLogs {
		b.publish(TopicLogs, model.LogEvent{Timestamp: now, SourceID: "eventbus", Level: model.LogWarn, Message: "subscriber_lagging", Detail: map[string]string{"topic": string(topic)}})
	}
}

// PublishLog publishes a LogEvent on TopicLogs.
func (b *Bus) PublishLog(e model.LogEvent) { b.publish(TopicLogs, e) }

// PublishStatus publishes a MonitorStatus on TopicStatus.
func (b *Bus) PublishStatus(s model.MonitorStatus) { b.publish(TopicStatus, s) }

// PublishReport publishes a ReportEvent on TopicReports.
func (b *Bus) PublishReport(e ReportEvent) { b.publish(TopicReports, e) }
