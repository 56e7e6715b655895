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
	"fmt"
	"sync"

	"github.com/kubesentry/investigator/internal/model"
)

// Fake is an in-memory ClusterAdapter for tests. Snapshots are returned
// from a queue so a test can script a sequence of observations.
type Fake struct {
	mu        sync.Mutex
	snapshots []model.ClusterSnapshot
	idx       int
	Logs      map[string]string
	Events    []model.Event
	Err       error
}

// NewFake creates a Fake with no scripted snapshots.
func NewFake() *Fake {
	return &Fake{Logs: make(map[string]string)}
}

// PushSnapshot appends a snapshot to be returned on successive Snapshot calls.
func (f *Fake) PushSnapshot(s model.ClusterSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
}

func (f *Fake) Snapshot(ctx context.Context) (model.ClusterSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return model.ClusterSnapshot{}, f.Err
	}
	if f.idx >= len(f.snapshots) {
		if len(f.snapshots) == 0 {
			return model.ClusterSnapshot{}, nil
		}
		return f.snapshots[len(f.snapshots)-1], nil
	}
	s := f.snapshots[f.idx]
	f.idx++
	return s, nil
}

func (f *Fake) GetPodLogs(ctx context.Context, namespace, name string, tailLines int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Logs[namespace+"/"+name], nil
}

func (f *Fake) ListEvents(ctx context.Context, ref *model.ObjectRef) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref == nil {
		return append([]model.Event(nil), f.Events...), nil
	}
	var out []model.Event
	for _, e := range f.Events {
		if e.Object.Namespace == ref.Namespace && e.Object.Name == ref.Name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) GetPod(ctx context.Context, namespace, name string) (model.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return model.Pod{}, fmt.Errorf("%w: no pods loaded", ErrUnavailable)
	}
	latest := f.snapshots[len(f.snapshots)-1]
	for _, p := range latest.Pods {
		if p.Namespace == namespace && p.Name == name {
			return p, nil
		}
	}
	return model.Pod{}, fmt.Errorf("%w: pod %s/%s not found", ErrUnavailable, namespace, name)
}
