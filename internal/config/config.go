/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package config loads and validates the investigation core's
// configuration, matching the teacher's default-then-override idiom
// (see the retention package's DefaultConfig) generalized to a full
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the enumerated configuration table from the core's specification.
type Config struct {
	CheckInterval               time.Duration `yaml:"checkInterval"`
	Cooldown                    time.Duration `yaml:"cooldown"`
	DebounceK                   int           `yaml:"debounceK"`
	MaxConcurrentInvestigations int           `yaml:"maxConcurrentInvestigations"`
	InvestigationTimeout        time.Duration `yaml:"investigationTimeout"`
	AdapterTimeout              time.Duration `yaml:"adapterTimeout"`
	LLMTimeout                  time.Duration `yaml:"llmTimeout"`
	AgenticMaxIterations        int           `yaml:"agenticMaxIterations"`
	SafeMode                    bool          `yaml:"safeMode"`
	ReportArchiveSize           int           `yaml:"reportArchiveSize"`
	ReportsDir                  string        `yaml:"reportsDir"`
	KnowledgeDir                string        `yaml:"knowledgeDir"`

	// GraceTimeout bounds how long a cancelled investigation is given to
	// seal its own report before the scheduler forces it closed.
	GraceTimeout time.Duration `yaml:"graceTimeout"`

	// HTTPAddr is the bind address for the REST + streaming surface.
	HTTPAddr string `yaml:"httpAddr"`

	// Kubeconfig, when set, is used in place of in-cluster config.
	Kubeconfig string `yaml:"kubeconfig"`

	// AnthropicAPIKey configures the concrete LLMAdapter. Ignored under safeMode.
	AnthropicAPIKey string `yaml:"anthropicAPIKey"`

	// NotifyChannels, if present, wires the optional Slack/webhook notifier.
	NotifyChannels map[string]ChannelConfig `yaml:"notifyChannels"`
}

// ChannelConfig describes one external notification channel.
type ChannelConfig struct {
	Type   string `yaml:"type"` // slack | webhook
	Target string `yaml:"target"`
}

// Default returns the specification's defaults.
func Default() Config {
	return Config{
		CheckInterval:               30 * time.Second,
		Cooldown:                    5 * time.Minute,
		DebounceK:                   2,
		MaxConcurrentInvestigations: 2,
		InvestigationTimeout:        120 * time.Second,
		AdapterTimeout:              10 * time.Second,
		LLMTimeout:                  20 * time.Second,
		AgenticMaxIterations:        6,
		SafeMode:                    true,
		ReportArchiveSize:           500,
		ReportsDir:                  "./reports",
		KnowledgeDir:                "./knowledge",
		GraceTimeout:                2 * time.Second,
		HTTPAddr:                    ":8080",
	}
}

// Load reads a YAML config file over the defaults, then applies
// KUBESENTRY_* environment variable overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("fatal_config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("fatal_config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("fatal_config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KUBESENTRY_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckInterval = d
		}
	}
	if v := os.Getenv("KUBESENTRY_SAFE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SafeMode = b
		}
	}
	if v := os.Getenv("KUBESENTRY_REPORTS_DIR"); v != "" {
		cfg.ReportsDir = v
	}
	if v := os.Getenv("KUBESENTRY_KNOWLEDGE_DIR"); v != "" {
		cfg.KnowledgeDir = v
	}
	if v := os.Getenv("KUBESENTRY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("KUBESENTRY_ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("KUBESENTRY_KUBECONFIG"); v != "" {
		cfg.Kubeconfig = v
	}
}

// Validate enforces the minimums and non-empty paths the specification requires.
func (c Config) Validate() error {
	if c.CheckInterval < 5*time.Second {
		return fmt.Errorf("checkInterval must be >= 5s, got %s", c.CheckInterval)
	}
	if c.DebounceK < 1 {
		return fmt.Errorf("debounceK must be >= 1, got %d", c.DebounceK)
	}
	if c.MaxConcurrentInvestigations < 1 {
		return fmt.Errorf("maxConcurrentInvestigations must be >= 1, got %d", c.MaxConcurrentInvestigations)
	}
	if strings.TrimSpace(c.ReportsDir) == "" {
		return fmt.Errorf("reportsDir must not be empty")
	}
	if strings.TrimSpace(c.KnowledgeDir) == "" {
		return fmt.Errorf("knowledgeDir must not be empty")
	}
	for name, ch := range c.NotifyChannels {
		if ch.Type != "slack" && ch.Type != "webhook" {
			return fmt.Errorf("notify channel %q: unsupported type %q", name, ch.Type)
		}
	}
	return nil
}
