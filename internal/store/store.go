/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package store implements the ReportStore: an in-memory, mutex-guarded
// cache of InvestigationReports backed by durable filesystem persistence,
// with a scheduled trim pass that caps the in-memory working set without
// ever touching completed reports already on disk. The trim cadence is
// grounded on the teacher's retention.Controller — the same
// scan-on-a-ticker shape, generalized from deleting expired AgentRun CRs
// to evicting sealed reports from memory, and driven by robfig/cron
// instead of a bare time.Ticker so the schedule can be expressed and
// reconfigured as a cron spec.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/model"
)

// ReportStore owns the lifecycle of InvestigationReports from creation
// through sealing, archival, and eventual in-memory eviction.
type ReportStore struct {
	mu          sync.RWMutex
	reports     map[string]*model.InvestigationReport
	order       []string // creation order, oldest first
	archiveSize int

	fs         fsadapter.Adapter
	reportsDir string
	log        logr.Logger
	bus        *eventbus.Bus

	cron *cron.Cron
}

// SetBus attaches the EventBus so trim() can emit an info LogEvent on
// eviction. Optional — nil-safe, matching the bus's own optional metrics
// collector pattern.
func (s *ReportStore) SetBus(bus *eventbus.Bus) { s.bus = bus }

// New constructs a ReportStore. archiveSize is N_archive from the
// configuration table; reportsDir is where sealed reports are persisted.
func New(fs fsadapter.Adapter, reportsDir string, archiveSize int, log logr.Logger) *ReportStore {
	if archiveSize <= 0 {
		archiveSize = 500
	}
	return &ReportStore{
		reports:     make(map[string]*model.InvestigationReport),
		fs:          fs,
		reportsDir:  reportsDir,
		archiveSize: archiveSize,
		log:         log.WithName("store"),
	}
}

// Create registers a new in-progress report and returns a copy of it.
func (s *ReportStore) Create(id string, mode model.InvestigationMode, namespace string, triggeringFingerprints []string, startedAt time.Time) model.InvestigationReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &model.InvestigationReport{
		ID:                          id,
		Mode:                        mode,
		Namespace:                   namespace,
		TriggeringIssueFingerprints: triggeringFingerprints,
		StartedAt:                   startedAt,
		Status:                      model.StatusInProgress,
	}
	s.reports[id] = r
	s.order = append(s.order, id)
	return *r
}

// ErrNotFound is returned by Seal when the id is unknown; Get reports an
// unknown id through its bool result instead.
var ErrNotFound = fmt.Errorf("report not found")

// Seal finalizes a report with a terminal status and persists it to disk.
// Sealing an already-terminal report is a no-op that returns the existing
// report unchanged — the scheduler's failure-recovery paths may race with
// a normal completion and must not double-write.
func (s *ReportStore) Seal(ctx context.Context, id string, finishedAt time.Time, summary model.ClusterSummary, findings []model.Finding, execSummary string, recommendations []string, steps []model.StepResult, status model.ReportStatus) (model.InvestigationReport, error) {
	s.mu.Lock()
	r, ok := s.reports[id]
	if !ok {
		s.mu.Unlock()
		return model.InvestigationReport{}, ErrNotFound
	}
	if r.Status.IsTerminal() {
		sealed := *r
		s.mu.Unlock()
		return sealed, nil
	}

	r.FinishedAt = finishedAt
	r.DurationMs = finishedAt.Sub(r.StartedAt).Milliseconds()
	r.ClusterSummary = summary
	r.Findings = findings
	r.ExecutiveSummary = execSummary
	r.Recommendations = recommendations
	r.Steps = steps
	r.Status = status
	sealed := *r
	s.mu.Unlock()

	if err := s.persist(ctx, sealed); err != nil {
		s.log.Error(err, "failed to persist sealed report", "id", id)
	}
	return sealed, nil
}

// Get returns a copy of one report by id.
func (s *ReportStore) Get(id string) (model.InvestigationReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return model.InvestigationReport{}, false
	}
	return *r, true
}

// List returns copies of all in-memory reports, newest first.
func (s *ReportStore) List() []model.InvestigationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InvestigationReport, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if r, ok := s.reports[s.order[i]]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (s *ReportStore) persist(ctx context.Context, r model.InvestigationReport) error {
	base := filename(r)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", r.ID, err)
	}
	if err := s.fs.WriteAtomic(ctx, filepath.Join(s.reportsDir, base+".json"), data); err != nil {
		return fmt.Errorf("write json for %s: %w", r.ID, err)
	}
	if err := s.fs.WriteAtomic(ctx, filepath.Join(s.reportsDir, base+".txt"), []byte(renderText(r))); err != nil {
		return fmt.Errorf("write txt for %s: %w", r.ID, err)
	}
	return nil
}

func filename(r model.InvestigationReport) string {
	ts := r.StartedAt.UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s", r.Mode, ts, r.ID)
}

// renderText is the human-readable projection of a sealed report. JSON is
// the canonical persisted form; this is derived from it, never the other
// way around.
func renderText(r model.InvestigationReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Investigation %s (%s)\n", r.ID, r.Mode)
	fmt.Fprintf(&b, "Status: %s\nStarted: %s\nFinished: %s\nDuration: %dms\n\n",
		r.Status, r.StartedAt.Format(time.RFC3339), r.FinishedAt.Format(time.RFC3339), r.DurationMs)
	b.WriteString(r.ExecutiveSummary)
	b.WriteString("\n\nFindings:\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", f.Severity, f.Category, f.Title, f.Description)
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	b.WriteString("\nSteps:\n")
	for _, st := range r.Steps {
		fmt.Fprintf(&b, "- %s: %s (%dms)", st.Name, st.Status, st.DurationMs)
		if st.Error != "" {
			fmt.Fprintf(&b, " — %s", st.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// StartTrimScheduler schedules a periodic trim pass (default: every 10
// minutes) that evicts the oldest terminal reports once the in-memory
// cache exceeds archiveSize. Terminal reports already on disk are
// untouched by eviction; in_progress reports are never evicted regardless
// of age, matching the retention controller's PreserveMin safeguard
// generalized into an absolute rule rather than a per-key minimum.
func (s *ReportStore) StartTrimScheduler(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@every 10m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.trim() }); err != nil {
		return fmt.Errorf("schedule trim: %w", err)
	}
	s.cron = c
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

func (s *ReportStore) trim() {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminalCount := 0
	for _, id := range s.order {
		if r, ok := s.reports[id]; ok && r.Status.IsTerminal() {
			terminalCount++
		}
	}
	overflow := terminalCount - s.archiveSize
	if overflow <= 0 {
		return
	}

	evicted := 0
	var kept []string
	for _, id := range s.order {
		r, ok := s.reports[id]
		if ok && r.Status.IsTerminal() && evicted < overflow {
			delete(s.reports, id)
			evicted++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	if evicted > 0 {
		s.log.V(1).Info("trimmed sealed reports from memory", "evicted", evicted, "remaining", len(s.order))
		if s.bus != nil {
			s.bus.PublishLog(model.LogEvent{Timestamp: time.Now(), SourceID: "store", Level: model.LogInfo, Message: "reports_trimmed", Detail: map[string]string{"evicted": fmt.Sprintf("%d", evicted)}})
		}
	}
}

// LoadArchiveIndex lists persisted report filenames (newest first) under
// reportsDir, used to serve GET /api/reports/{filename} for reports that
// have already been evicted from memory.
func (s *ReportStore) LoadArchiveIndex(ctx context.Context) ([]string, error) {
	names, err := s.fs.List(ctx, s.reportsDir)
	if err != nil {
		return nil, err
	}
	// Names are "<mode>_<timestamp>_<id>.<ext>"; compare what follows the
	// mode prefix so the newest timestamp comes first across both modes.
	key := func(n string) string {
		if i := strings.Index(n, "_"); i >= 0 {
			return n[i+1:]
		}
		return n
	}
	sort.SliceStable(names, func(a, b int) bool { return key(names[a]) > key(names[b]) })
	return names, nil
}

// ReadArchived returns the raw bytes of a persisted report file by name.
func (s *ReportStore) ReadArchived(ctx context.Context, name string) ([]byte, error) {
	return s.fs.Read(ctx, filepath.Join(s.reportsDir, name))
}
