/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package cluster implements the ClusterAdapter boundary: reads through a
// controller-runtime client.Reader against the live cluster, turned
// into the core's value-copy ClusterSnapshot and related queries.
package cluster

import (
	"context"

	"github.com/kubesentry/investigator/internal/model"
)

// Adapter is the narrow boundary the Snapshotter and investigators use to
// reach a Kubernetes cluster. Implementations must translate every error
// into either ErrUnavailable or ErrTimeout so callers can react uniformly.
type Adapter interface {
	// Snapshot produces a fresh, value-copy ClusterSnapshot.
	Snapshot(ctx context.Context) (model.ClusterSnapshot, error)

	// GetPodLogs tails up to tailLines of a container's log stream.
	GetPodLogs(ctx context.Context, namespace, name string, tailLines int64) (string, error)

	// ListEvents lists events, optionally scoped to one object.
	ListEvents(ctx context.Context, ref *model.ObjectRef) ([]model.Event, error)

	// GetPod returns the structured view of one pod, used by the agentic
	// investigator's getPodStatus tool.
	GetPod(ctx context.Context, namespace, name string) (model.Pod, error)
}
