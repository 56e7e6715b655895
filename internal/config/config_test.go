/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kubesentry/investigator/internal/config"
)

func TestLoadWithNoPathReturnsValidatedDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.CheckInterval != 30*time.Second {
		t.Fatalf("expected default 30s check interval, got %s", cfg.CheckInterval)
	}
	if !cfg.SafeMode {
		t.Fatal("expected safeMode to default to true")
	}
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "checkInterval: 10s\nsafeMode: false\nmaxConcurrentInvestigations: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckInterval != 10*time.Second {
		t.Fatalf("expected 10s check interval, got %s", cfg.CheckInterval)
	}
	if cfg.SafeMode {
		t.Fatal("expected safeMode to be overridden to false")
	}
	if cfg.MaxConcurrentInvestigations != 4 {
		t.Fatalf("expected maxConcurrentInvestigations=4, got %d", cfg.MaxConcurrentInvestigations)
	}
	// Fields absent from the YAML keep their defaults.
	if cfg.AdapterTimeout != 10*time.Second {
		t.Fatalf("expected default adapterTimeout to survive a partial override, got %s", cfg.AdapterTimeout)
	}
}

func TestLoadEnvOverridesTakePriorityOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("checkInterval: 10s\n"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("KUBESENTRY_CHECK_INTERVAL", "15s")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckInterval != 15*time.Second {
		t.Fatalf("expected env override to win, got %s", cfg.CheckInterval)
	}
}

func TestLoadRejectsTooShortCheckInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("checkInterval: 1s\n"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for a checkInterval below the 5s minimum")
	}
}

func TestValidateRejectsUnsupportedNotifyChannelType(t *testing.T) {
	cfg := config.Default()
	cfg.NotifyChannels = map[string]config.ChannelConfig{
		"ops": {Type: "pagerduty", Target: "https://example.invalid"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unsupported notify channel type")
	}
}

func TestValidateRejectsEmptyReportsDir(t *testing.T) {
	cfg := config.Default()
	cfg.ReportsDir = "   "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a blank reportsDir")
	}
}
