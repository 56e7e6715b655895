/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
	"github.com/kubesentry/investigator/internal/api"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/investigate"
	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/scheduler"
	"github.com/kubesentry/investigator/internal/store"
)

// fakeInvestigator always returns a fixed, immediately-terminal result.
type fakeInvestigator struct {
	mode   model.InvestigationMode
	result investigate.Result
}

func (f fakeInvestigator) Mode() model.InvestigationMode { return f.mode }
func (f fakeInvestigator) Run(ctx context.Context, id string, in investigate.Input, pub investigate.Publisher) investigate.Result {
	return f.result
}

type noopIssueTracker struct{}

func (noopIssueTracker) MarkRunning(fingerprint, investigationID string) {}
func (noopIssueTracker) ClearRunning(fingerprint string)                {}

func newTestServer(t *testing.T, safeMode bool) (*api.Server, *store.ReportStore, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(logr.Discard(), nil)
	st := store.New(fsadapter.NewFake(), "/reports", 50, logr.Discard())

	det := fakeInvestigator{mode: model.ModeDeterministic, result: investigate.Result{Status: model.StatusCompleted}}
	age := fakeInvestigator{mode: model.ModeAgentic, result: investigate.Result{Status: model.StatusCompleted}}

	sched := scheduler.New(2, 5*time.Second, 10*time.Second, safeMode, det, age, st, bus, noopIssueTracker{}, func() bool { return true }, logr.Discard())

	clusterAdapter := cluster.NewFake()
	clusterAdapter.PushSnapshot(model.ClusterSnapshot{Nodes: []model.Node{{Name: "n1", Ready: true}}})

	srv := api.NewServer(context.Background(), sched, st, bus, clusterAdapter, logr.Discard())
	return srv, st, bus
}

func TestHandleClusterSnapshotReturnsOK(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cluster/snapshot")
	if err != nil {
		t.Fatalf("GET /api/cluster/snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleClusterSnapshotReturnsBadGatewayOnAdapterFailure(t *testing.T) {
	bus := eventbus.New(logr.Discard(), nil)
	st := store.New(fsadapter.NewFake(), "/reports", 50, logr.Discard())
	det := fakeInvestigator{mode: model.ModeDeterministic, result: investigate.Result{Status: model.StatusCompleted}}
	sched := scheduler.New(2, 5*time.Second, 10*time.Second, true, det, nil, st, bus, noopIssueTracker{}, func() bool { return true }, logr.Discard())

	failing := cluster.NewFake()
	failing.Err = cluster.ErrUnavailable
	srv := api.NewServer(context.Background(), sched, st, bus, failing, logr.Discard())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/cluster/snapshot")
	if err != nil {
		t.Fatalf("GET /api/cluster/snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestHandleCreateInvestigationDeterministicReturnsAccepted(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/investigations/deterministic", "application/json", strings.NewReader(`{"namespace":"default"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.ID == "" {
		t.Fatal("expected a non-empty investigation id")
	}
	if body.Status != string(model.StatusInProgress) {
		t.Fatalf("expected status %q, got %q", model.StatusInProgress, body.Status)
	}
}

func TestHandleCreateInvestigationAgenticUnderSafeModeReturnsConflict(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/investigations/agentic", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 under safeMode, got %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Error != "safe_mode" {
		t.Fatalf(`expected body {"error":"safe_mode"}, got error=%q`, body.Error)
	}
}

func TestHandleGetInvestigationUnknownIDReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/investigations/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleGetInvestigationReturnsCreatedReport(t *testing.T) {
	srv, st, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	report := st.Create("inv-api-1", model.ModeDeterministic, "default", nil, time.Now())

	resp, err := http.Get(ts.URL + "/api/investigations/" + report.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleListInvestigationsReturnsArray(t *testing.T) {
	srv, st, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	st.Create("inv-api-2", model.ModeDeterministic, "default", nil, time.Now())

	resp, err := http.Get(ts.URL + "/api/investigations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var reports []model.InvestigationReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("expected at least one report in the list")
	}
}

func TestHandleCancelUnknownInvestigationReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/investigations/does-not-exist:cancel", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a non-running investigation, got %d", resp.StatusCode)
	}
}

func TestHandleGetReportFileUnknownReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/reports/does-not-exist.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamStatusRelaysPublishedEvents(t *testing.T) {
	srv, _, bus := newTestServer(t, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	bus.PublishStatus(model.MonitorStatus{Status: model.HealthOK})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var status model.MonitorStatus
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("reading relayed status frame: %v", err)
	}
	if status.Status != model.HealthOK {
		t.Fatalf("expected relayed healthy status, got %s", status.Status)
	}
}
