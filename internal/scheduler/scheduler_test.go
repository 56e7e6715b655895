/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package scheduler_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/investigate"
	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/scheduler"
	"github.com/kubesentry/investigator/internal/store"
)

// blockingInvestigator runs until its release channel is closed, so tests
// can assert on concurrency-cap and single-flight behavior mid-run.
type blockingInvestigator struct {
	mode    model.InvestigationMode
	release chan struct{}

	mu       sync.Mutex
	started  int
	statuses []model.ReportStatus
}

func newBlockingInvestigator(mode model.InvestigationMode) *blockingInvestigator {
	return &blockingInvestigator{mode: mode, release: make(chan struct{})}
}

func (b *blockingInvestigator) Mode() model.InvestigationMode { return b.mode }

func (b *blockingInvestigator) Run(ctx context.Context, investigationID string, in investigate.Input, pub investigate.Publisher) investigate.Result {
	b.mu.Lock()
	b.started++
	b.mu.Unlock()

	select {
	case <-b.release:
		return investigate.Result{Status: model.StatusCompleted}
	case <-ctx.Done():
		return investigate.Result{Status: model.StatusCancelled}
	}
}

func (b *blockingInvestigator) Started() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// immediateInvestigator resolves synchronously to a fixed status.
type immediateInvestigator struct {
	mode   model.InvestigationMode
	status model.ReportStatus
}

func (i immediateInvestigator) Mode() model.InvestigationMode { return i.mode }
func (i immediateInvestigator) Run(ctx context.Context, investigationID string, in investigate.Input, pub investigate.Publisher) investigate.Result {
	return investigate.Result{Status: i.status}
}

func newTestScheduler(maxConcurrent int, safeMode bool, det, agt investigate.Investigator, knowledgeAvailable func() bool) (*scheduler.Scheduler, *store.ReportStore, *eventbus.Bus) {
	log := logf.Log
	bus := eventbus.New(log, nil)
	st := store.New(fsadapter.NewFake(), "/reports", 500, log)
	issues := newFakeIssueTracker()
	sched := scheduler.New(maxConcurrent, 2*time.Second, 5*time.Second, safeMode, det, agt, st, bus, issues, knowledgeAvailable, log)
	return sched, st, bus
}

type fakeIssueTracker struct {
	mu      sync.Mutex
	running map[string]string
}

func newFakeIssueTracker() *fakeIssueTracker {
	return &fakeIssueTracker{running: make(map[string]string)}
}

func (f *fakeIssueTracker) MarkRunning(fingerprint, investigationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[fingerprint] = investigationID
}

func (f *fakeIssueTracker) ClearRunning(fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, fingerprint)
}

func sampleIssue(fingerprint string, sev model.Severity, detectedAt time.Time) model.Issue {
	return model.Issue{
		Kind:        model.IssueKind("crashloop"),
		Severity:    sev,
		Fingerprint: fingerprint,
		DetectedAt:  detectedAt,
		Target:      model.ObjectRef{Namespace: "default", Kind: "Pod", Name: fingerprint},
	}
}

var _ = Describe("Scheduler", func() {
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("respects the global concurrency cap and queues the rest", func() {
		det := newBlockingInvestigator(model.ModeDeterministic)
		sched, st, _ := newTestScheduler(2, true, det, nil, func() bool { return false })

		now := time.Now()
		sched.OnIssues(ctx, []model.Issue{
			sampleIssue("a", model.SeverityHigh, now),
			sampleIssue("b", model.SeverityHigh, now),
			sampleIssue("c", model.SeverityHigh, now),
		})

		Eventually(det.Started).Should(Equal(2))
		Consistently(det.Started, 200*time.Millisecond).Should(Equal(2))

		close(det.release)
		Eventually(det.Started).Should(Equal(3))
		Eventually(func() int { return len(st.List()) }).Should(Equal(3))
	})

	It("dispatches the highest severity issue first", func() {
		det := newBlockingInvestigator(model.ModeDeterministic)
		sched, st, _ := newTestScheduler(1, true, det, nil, func() bool { return false })

		now := time.Now()
		sched.OnIssues(ctx, []model.Issue{
			sampleIssue("low-first", model.SeverityLow, now),
			sampleIssue("critical-later", model.SeverityCritical, now.Add(time.Second)),
		})

		Eventually(det.Started).Should(Equal(1))

		reports := st.List()
		Expect(reports).To(HaveLen(1))
		Expect(reports[0].TriggeringIssueFingerprints).To(ContainElement("critical-later"))
		close(det.release)
	})

	It("never dispatches a second investigation for an already-running fingerprint", func() {
		det := newBlockingInvestigator(model.ModeDeterministic)
		sched, _, _ := newTestScheduler(5, true, det, nil, func() bool { return false })

		now := time.Now()
		sched.OnIssues(ctx, []model.Issue{sampleIssue("dup", model.SeverityHigh, now)})
		Eventually(det.Started).Should(Equal(1))

		sched.OnIssues(ctx, []model.Issue{sampleIssue("dup", model.SeverityHigh, now.Add(time.Second))})
		Consistently(det.Started, 200*time.Millisecond).Should(Equal(1))

		close(det.release)
	})

	It("forces deterministic mode under safeMode even when agentic is wired", func() {
		det := immediateInvestigator{mode: model.ModeDeterministic, status: model.StatusCompleted}
		agt := immediateInvestigator{mode: model.ModeAgentic, status: model.StatusCompleted}
		sched, st, _ := newTestScheduler(2, true, det, agt, func() bool { return true })

		sched.OnIssues(ctx, []model.Issue{sampleIssue("x", model.SeverityHigh, time.Now())})

		Eventually(func() int { return len(st.List()) }).Should(Equal(1))
		Expect(st.List()[0].Mode).To(Equal(model.ModeDeterministic))
	})

	It("selects agentic mode when safeMode is off and knowledge is available", func() {
		det := immediateInvestigator{mode: model.ModeDeterministic, status: model.StatusCompleted}
		agt := immediateInvestigator{mode: model.ModeAgentic, status: model.StatusCompleted}
		sched, st, _ := newTestScheduler(2, false, det, agt, func() bool { return true })

		sched.OnIssues(ctx, []model.Issue{sampleIssue("y", model.SeverityHigh, time.Now())})

		Eventually(func() int { return len(st.List()) }).Should(Equal(1))
		Expect(st.List()[0].Mode).To(Equal(model.ModeAgentic))
	})

	It("rejects a manual agentic request under safeMode with ErrAgenticDisabled", func() {
		det := immediateInvestigator{mode: model.ModeDeterministic, status: model.StatusCompleted}
		sched, _, _ := newTestScheduler(2, true, det, nil, func() bool { return false })

		_, err := sched.RequestManual(ctx, model.ModeAgentic, "default")
		Expect(err).To(MatchError(scheduler.ErrAgenticDisabled))
	})

	It("cancels a running investigation and reports ErrNotFound for an unknown id", func() {
		det := newBlockingInvestigator(model.ModeDeterministic)
		sched, st, _ := newTestScheduler(2, true, det, nil, func() bool { return false })

		id, err := sched.RequestManual(ctx, model.ModeDeterministic, "default")
		Expect(err).NotTo(HaveOccurred())
		Eventually(det.Started).Should(Equal(1))

		Expect(sched.Cancel(id)).To(Succeed())
		Eventually(func() model.ReportStatus {
			r, ok := st.Get(id)
			if !ok {
				return ""
			}
			return r.Status
		}).Should(Equal(model.StatusCancelled))

		Expect(sched.Cancel("does-not-exist")).To(MatchError(scheduler.ErrNotFound))
	})

	It("publishes a created event and a sealed event on the report bus", func() {
		det := immediateInvestigator{mode: model.ModeDeterministic, status: model.StatusCompleted}
		sched, _, bus := newTestScheduler(2, true, det, nil, func() bool { return false })

		sub := bus.Subscribe(eventbus.TopicReports)
		defer sub.Unsubscribe()

		sched.OnIssues(ctx, []model.Issue{sampleIssue("z", model.SeverityHigh, time.Now())})

		var events []string
		Eventually(func() []string {
			for {
				select {
				case payload := <-sub.C:
					ev := payload.(eventbus.ReportEvent)
					events = append(events, ev.Event)
				default:
					return events
				}
			}
		}).Should(ContainElements("created", "sealed"))
	})
})
