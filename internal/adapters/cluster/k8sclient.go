/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	corev1 "k8s.io/api/core/v1"
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/kubesentry/investigator/internal/model"
)

// K8sAdapter is the production ClusterAdapter, backed by a
// controller-runtime client.Reader (main passes an uncached client.New)
// for list/get calls and a plain
// client-go Clientset for the log-tailing subresource, which
// controller-runtime's client does not expose.
type K8sAdapter struct {
	reader    client.Reader
	clientset kubernetes.Interface
}

// NewK8sAdapter builds an adapter from a kubeconfig path, or in-cluster
// config when path is empty.
func NewK8sAdapter(cachedReader client.Reader, kubeconfigPath string) (*K8sAdapter, error) {
	cfg, err := loadRestConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &K8sAdapter{reader: cachedReader, clientset: cs}, nil
}

func loadRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	return rest.InClusterConfig()
}

func (a *K8sAdapter) Snapshot(ctx context.Context) (model.ClusterSnapshot, error) {
	snap := model.ClusterSnapshot{Timestamp: time.Now()}

	var nodeList corev1.NodeList
	if err := a.reader.List(ctx, toUnstructuredList(&nodeList)); err != nil {
		return snap, translateErr(err)
	}
	for _, n := range nodeList.Items {
		snap.Nodes = append(snap.Nodes, model.Node{Name: n.Name, Ready: nodeReady(n)})
	}

	var podList corev1.PodList
	if err := a.reader.List(ctx, toUnstructuredList(&podList)); err != nil {
		return snap, translateErr(err)
	}
	for _, p := range podList.Items {
		snap.Pods = append(snap.Pods, convertPod(p))
	}

	var eventList corev1.EventList
	if err := a.reader.List(ctx, toUnstructuredList(&eventList)); err != nil {
		return snap, translateErr(err)
	}
	for _, e := range eventList.Items {
		snap.Events = append(snap.Events, convertEvent(e))
	}

	var deployList appsv1.DeploymentList
	if err := a.reader.List(ctx, toUnstructuredList(&deployList)); err == nil {
		for _, d := range deployList.Items {
			snap.Deployments = append(snap.Deployments, model.Deployment{
				Namespace: d.Namespace,
				Name:      d.Name,
				Desired:   derefInt32(d.Spec.Replicas, 1),
				Available: d.Status.AvailableReplicas,
			})
		}
	}

	ready := make(map[string]bool)
	var epList corev1.EndpointsList
	if err := a.reader.List(ctx, toUnstructuredList(&epList)); err == nil {
		for _, ep := range epList.Items {
			for _, ss := range ep.Subsets {
				if len(ss.Addresses) > 0 {
					ready[ep.Namespace+"/"+ep.Name] = true
				}
			}
		}
	}

	var svcList corev1.ServiceList
	if err := a.reader.List(ctx, toUnstructuredList(&svcList)); err == nil {
		for _, s := range svcList.Items {
			snap.Services = append(snap.Services, model.Service{
				Namespace:     s.Namespace,
				Name:          s.Name,
				HasEndpoints:  ready[s.Namespace+"/"+s.Name],
				SelectorLabel: labelsToString(s.Spec.Selector),
			})
		}
	}

	return snap, nil
}

func (a *K8sAdapter) GetPod(ctx context.Context, namespace, name string) (model.Pod, error) {
	var pod corev1.Pod
	if err := a.reader.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, &pod); err != nil {
		return model.Pod{}, translateErr(err)
	}
	return convertPod(pod), nil
}

func (a *K8sAdapter) GetPodLogs(ctx context.Context, namespace, name string, tailLines int64) (string, error) {
	opts := &corev1.PodLogOptions{TailLines: &tailLines}
	req := a.clientset.CoreV1().Pods(namespace).GetLogs(name, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", translateErr(err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", translateErr(err)
	}
	return buf.String(), nil
}

func (a *K8sAdapter) ListEvents(ctx context.Context, ref *model.ObjectRef) ([]model.Event, error) {
	var eventList corev1.EventList
	if err := a.reader.List(ctx, toUnstructuredList(&eventList)); err != nil {
		return nil, translateErr(err)
	}

	out := make([]model.Event, 0, len(eventList.Items))
	for _, e := range eventList.Items {
		ev := convertEvent(e)
		if ref != nil && (ev.Object.Namespace != ref.Namespace || ev.Object.Name != ref.Name) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func nodeReady(n corev1.Node) bool {
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func convertPod(p corev1.Pod) model.Pod {
	out := model.Pod{
		Namespace: p.Namespace,
		Name:      p.Name,
		Phase:     model.PodPhase(p.Status.Phase),
		CreatedAt: p.CreationTimestamp.Time,
	}
	if len(p.OwnerReferences) > 0 {
		out.ControllerKind = p.OwnerReferences[0].Kind
		out.ControllerName = p.OwnerReferences[0].Name
	}
	for _, cs := range p.Status.ContainerStatuses {
		out.Containers = append(out.Containers, convertContainerStatus(cs))
		out.RestartCount += cs.RestartCount
		out.Images = append(out.Images, cs.Image)
	}
	return out
}

func convertContainerStatus(cs corev1.ContainerStatus) model.ContainerStatus {
	out := model.ContainerStatus{
		Name:         cs.Name,
		RestartCount: cs.RestartCount,
		Image:        cs.Image,
	}
	switch {
	case cs.State.Waiting != nil:
		out.State.Waiting = &model.WaitingState{
			Reason:  cs.State.Waiting.Reason,
			Message: cs.State.Waiting.Message,
		}
	case cs.State.Terminated != nil:
		out.State.Terminated = &model.TerminatedState{
			Reason:   cs.State.Terminated.Reason,
			ExitCode: cs.State.Terminated.ExitCode,
			Message:  cs.State.Terminated.Message,
		}
	case cs.State.Running != nil:
		out.State.Running = true
	}
	return out
}

func convertEvent(e corev1.Event) model.Event {
	return model.Event{
		Type:   model.EventType(e.Type),
		Reason: e.Reason,
		Object: model.ObjectRef{
			Namespace: e.InvolvedObject.Namespace,
			Kind:      e.InvolvedObject.Kind,
			Name:      e.InvolvedObject.Name,
		},
		Message:   e.Message,
		FirstSeen: e.FirstTimestamp.Time,
		LastSeen:  e.LastTimestamp.Time,
		Count:     e.Count,
	}
}

func derefInt32(v *int32, fallback int32) int32 {
	if v == nil {
		return fallback
	}
	return *v
}

func labelsToString(m map[string]string) string {
	for k, v := range m {
		return k + "=" + v
	}
	return ""
}

// toUnstructuredList is a small adapter so controller-runtime's typed
// client.Reader.List (which takes a client.ObjectList) works against the
// plain corev1/appsv1 list types, which already implement that interface.
func toUnstructuredList(l client.ObjectList) client.ObjectList { return l }
