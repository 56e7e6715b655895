/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Command investigator-core runs the Autonomous Kubernetes Investigation
// Core: the Snapshotter/IssueDetector observation loop, the
// InvestigationScheduler dispatching deterministic and agentic
// investigations, the ReportStore, the EventBus, the optional notifier,
// and the REST/streaming HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/kubesentry/investigator/internal/adapters/analyzer"
	"github.com/kubesentry/investigator/internal/adapters/cluster"
	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
	"github.com/kubesentry/investigator/internal/adapters/llmadapter"
	"github.com/kubesentry/investigator/internal/api"
	"github.com/kubesentry/investigator/internal/clock"
	"github.com/kubesentry/investigator/internal/config"
	"github.com/kubesentry/investigator/internal/detector"
	"github.com/kubesentry/investigator/internal/eventbus"
	"github.com/kubesentry/investigator/internal/investigate/agentic"
	"github.com/kubesentry/investigator/internal/investigate/deterministic"
	"github.com/kubesentry/investigator/internal/knowledge"
	"github.com/kubesentry/investigator/internal/model"
	"github.com/kubesentry/investigator/internal/notify"
	"github.com/kubesentry/investigator/internal/scheduler"
	"github.com/kubesentry/investigator/internal/snapshot"
	"github.com/kubesentry/investigator/internal/store"
	"github.com/kubesentry/investigator/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var configPath string
	var production bool
	var otlpEndpoint string
	flag.StringVar(&configPath, "config", "", "path to YAML configuration file")
	flag.BoolVar(&production, "production", true, "emit JSON logs")
	flag.StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint (optional)")
	flag.Parse()

	if err := run(configPath, production, otlpEndpoint); err != nil {
		fmt.Fprintln(os.Stderr, "fatal_config:", err)
		os.Exit(1)
	}
}

func run(configPath string, production bool, otlpEndpoint string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, flushLog, err := telemetry.NewLogger(production)
	if err != nil {
		return err
	}
	defer flushLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, shutdownTracer, err := telemetry.NewTracer(ctx, otlpEndpoint)
	if err != nil {
		return fmt.Errorf("configuring tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	fs := fsadapter.NewLocal()
	release, err := fs.AcquireLock(cfg.ReportsDir)
	if err != nil {
		return err
	}
	defer release()

	rawClusterAdapter, err := buildClusterAdapter(cfg)
	if err != nil {
		return fmt.Errorf("adapter_unavailable: building cluster adapter: %w", err)
	}
	clusterAdapter := cluster.NewBreakerAdapter(rawClusterAdapter)
	analyzerAdapter := analyzer.NewBinaryAdapter("")

	var llm llmadapter.Adapter
	if cfg.SafeMode || cfg.AnthropicAPIKey == "" {
		llm = llmadapter.NoopAdapter{}
	} else {
		llm = llmadapter.NewAnthropicAdapter(cfg.AnthropicAPIKey, "")
	}

	knowledgeIndex, err := knowledge.Load(ctx, fs, cfg.KnowledgeDir)
	if err != nil {
		return fmt.Errorf("loading knowledge corpus: %w", err)
	}

	bus := eventbus.New(log, metrics)
	reportStore := store.New(fs, cfg.ReportsDir, cfg.ReportArchiveSize, log)
	reportStore.SetBus(bus)
	if err := reportStore.StartTrimScheduler(ctx, ""); err != nil {
		return err
	}

	clk := clock.Real()
	issueDetector := detector.New(clk, cfg.DebounceK, cfg.Cooldown)

	deterministicInvestigator := deterministic.New(clusterAdapter, analyzerAdapter, knowledgeIndex, cfg.AdapterTimeout)
	agenticInvestigator := agentic.New(llm, clusterAdapter, analyzerAdapter, knowledgeIndex, cfg.AgenticMaxIterations, cfg.LLMTimeout)

	sched := scheduler.New(
		cfg.MaxConcurrentInvestigations,
		cfg.GraceTimeout,
		cfg.InvestigationTimeout,
		cfg.SafeMode,
		deterministicInvestigator,
		agenticInvestigator,
		reportStore,
		bus,
		issueDetector,
		func() bool { return knowledgeHasDocs(knowledgeIndex) },
		log,
	)

	snapshotter := snapshot.New(clusterAdapter, issueDetector, bus, clk, cfg.CheckInterval, cfg.AdapterTimeout, log, func(issues []model.Issue) {
		sched.OnIssues(ctx, issues)
	})
	go snapshotter.Run(ctx)
	sched.StartStaleReaper(ctx, time.Minute, cfg.InvestigationTimeout+cfg.GraceTimeout+30*time.Second)

	notifier := notify.New(log, cfg.NotifyChannels)
	notifier.Subscribe(ctx, bus)

	server := api.NewServer(ctx, sched, reportStore, bus, clusterAdapter, log)
	mux := http.NewServeMux()
	mux.Handle("/", server.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GraceTimeout+5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	forced := sched.Shutdown()
	if forced > 0 {
		log.Info("force-cancelled investigations at shutdown", "count", forced)
	}
	return nil
}

// knowledgeHasDocs reports whether the knowledge corpus has anything to
// offer, so the scheduler's auto-mode dispatch can fall back to
// deterministic investigations when no knowledge is loaded.
func knowledgeHasDocs(idx *knowledge.Index) bool {
	return idx.Len() > 0
}

// buildClusterAdapter constructs the direct (uncached) controller-runtime reader
// cluster.NewK8sAdapter needs, then lets the adapter build its own
// client-go Clientset from the same kubeconfig path for log tailing.
func buildClusterAdapter(cfg config.Config) (cluster.Adapter, error) {
	restCfg, err := loadRestConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, err
	}

	reader, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, err
	}

	return cluster.NewK8sAdapter(reader, cfg.Kubeconfig)
}

func loadRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	return rest.InClusterConfig()
}
