/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package cluster

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/kubesentry/investigator/internal/model"
)

// BreakerAdapter wraps another Adapter with a circuit breaker per call
// kind, so a cluster that is failing outright stops taking 10s
// adapter_timeout hits on every tick and fails fast instead. This sits
// below the Snapshotter's own consecutive-failure degrade counter: that
// counter decides when to report HealthIssuesFound, this decides when to
// stop dialing out at all.
type BreakerAdapter struct {
	inner    Adapter
	snapshot *gobreaker.CircuitBreaker
	pod      *gobreaker.CircuitBreaker
	logs     *gobreaker.CircuitBreaker
	events   *gobreaker.CircuitBreaker
}

// NewBreakerAdapter wraps inner. Each breaker trips after 5 consecutive
// failures and allows a single trial request once its open timeout elapses.
func NewBreakerAdapter(inner Adapter) *BreakerAdapter {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &BreakerAdapter{
		inner:    inner,
		snapshot: gobreaker.NewCircuitBreaker(settings("cluster.Snapshot")),
		pod:      gobreaker.NewCircuitBreaker(settings("cluster.GetPod")),
		logs:     gobreaker.NewCircuitBreaker(settings("cluster.GetPodLogs")),
		events:   gobreaker.NewCircuitBreaker(settings("cluster.ListEvents")),
	}
}

func (b *BreakerAdapter) Snapshot(ctx context.Context) (model.ClusterSnapshot, error) {
	out, err := b.snapshot.Execute(func() (any, error) { return b.inner.Snapshot(ctx) })
	if out == nil {
		return model.ClusterSnapshot{}, err
	}
	return out.(model.ClusterSnapshot), err
}

func (b *BreakerAdapter) GetPod(ctx context.Context, namespace, name string) (model.Pod, error) {
	out, err := b.pod.Execute(func() (any, error) { return b.inner.GetPod(ctx, namespace, name) })
	if out == nil {
		return model.Pod{}, err
	}
	return out.(model.Pod), err
}

func (b *BreakerAdapter) GetPodLogs(ctx context.Context, namespace, name string, tailLines int64) (string, error) {
	out, err := b.logs.Execute(func() (any, error) { return b.inner.GetPodLogs(ctx, namespace, name, tailLines) })
	if out == nil {
		return "", err
	}
	return out.(string), err
}

func (b *BreakerAdapter) ListEvents(ctx context.Context, ref *model.ObjectRef) ([]model.Event, error) {
	out, err := b.events.Execute(func() (any, error) { return b.inner.ListEvents(ctx, ref) })
	if out == nil {
		return nil, err
	}
	return out.([]model.Event), err
}
