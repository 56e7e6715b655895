/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry wires the ambient logging, metrics, and tracing stack
// around the investigation core: go-logr/zapr/zap for structured logs,
// prometheus/client_golang for metrics, and OpenTelemetry for the
// process-wide tracer provider. No component of the core opens spans.
package telemetry

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// NewLogger builds the root logr.Logger for the process. Production mode
// emits JSON; non-production emits a human-readable console encoder.
func NewLogger(production bool) (logr.Logger, func(), error) {
	var zl *zap.Logger
	var err error
	if production {
		zl, err = zap.NewProduction()
	} else {
		zl, err = zap.NewDevelopment()
	}
	if err != nil {
		return logr.Discard(), func() {}, err
	}

	log := zapr.NewLogger(zl)
	return log, func() { _ = zl.Sync() }, nil
}
