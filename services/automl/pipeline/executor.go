// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

var (
	tracer = otel.Tracer("aleutian.automl.pipeline")
	meter  = otel.Meter("aleutian.automl.pipeline")
)

// Result describes one fit run.
type Result struct {
	// SessionID identifies the run in logs and traces.
	SessionID string

	// Success is true when every step completed.
	Success bool

	// StepsExecuted counts completed steps.
	StepsExecuted int

	// FailedStep names the step that failed, if any.
	FailedStep string

	// Error is the failure message, if any.
	Error string

	// Duration is the wall time of the run.
	Duration time.Duration

	// StepDurations holds the Fit plus Transform time of each completed step.
	StepDurations map[string]time.Duration
}

// Executor runs a pipeline's steps in order with observability.
//
// Description:
//
//	For every step, checks the fields it declares as requirements, then
//	calls Fit and Transform on the shared fit dictionary. No step is
//	skipped or retried. On failure the dictionary keeps the fields written
//	by the completed steps.
//
// Thread Safety:
//
//	Run must not be called concurrently for the same pipeline: steps hold
//	fitted state.
type Executor struct {
	pipeline *Pipeline
	logger   *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	stepLatency   metric.Float64Histogram
	stepSuccesses metric.Int64Counter
	stepFailures  metric.Int64Counter
	fitLatency    metric.Float64Histogram
}

// NewExecutor creates an executor for p.
//
// Inputs:
//
//	p - The pipeline to run. Must not be nil.
//	logger - Logger for execution logs. If nil, uses slog.Default().
func NewExecutor(p *Pipeline, logger *slog.Logger) (*Executor, error) {
	if p == nil {
		return nil, ErrNoSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pipeline: p, logger: logger}, nil
}

// initMetrics lazily initializes metrics. Failures are logged and the
// affected instruments stay nil.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.stepLatency, err = meter.Float64Histogram("automl_step_duration_seconds",
			metric.WithDescription("Time spent fitting and transforming each pipeline step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_latency: "+err.Error())
		}

		e.stepSuccesses, err = meter.Int64Counter("automl_step_success_total",
			metric.WithDescription("Number of successful step fits"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_successes: "+err.Error())
		}

		e.stepFailures, err = meter.Int64Counter("automl_step_failure_total",
			metric.WithDescription("Number of failed step fits"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_failures: "+err.Error())
		}

		e.fitLatency, err = meter.Float64Histogram("automl_fit_duration_seconds",
			metric.WithDescription("Total pipeline fit time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "fit_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run fits every step in order.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between steps. Must not be nil.
//	fd - The fit dictionary shared by every step. Must not be nil.
//
// Outputs:
//
//	*Result - Run summary, also returned on failure.
//	error - ErrNilContext, ErrNilFitDictionary, the context's error, or a
//	        *StepError wrapping the failing step's error.
func (e *Executor) Run(ctx context.Context, fd *component.FitDictionary) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if fd == nil {
		return nil, ErrNilFitDictionary
	}

	e.initMetrics()
	p := e.pipeline

	ctx, span := tracer.Start(ctx, "automl.Pipeline.Fit",
		trace.WithAttributes(
			attribute.String("automl.estimator", p.estimator),
			attribute.Int("automl.step_count", len(p.steps)),
		),
	)
	defer span.End()

	start := time.Now()
	sessionID := uuid.NewString()[:12]
	result := &Result{
		SessionID:     sessionID,
		StepDurations: make(map[string]time.Duration, len(p.steps)),
	}

	e.logger.Info("fit started",
		slog.String("session_id", sessionID),
		slog.Int("steps", len(p.steps)),
	)

	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			return e.finish(result, start, s.Name, err), err
		}

		stepStart := time.Now()
		if err := e.runStep(ctx, s, fd, sessionID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("fit failed",
				slog.String("session_id", sessionID),
				slog.String("failed_step", s.Name),
				slog.String("error", err.Error()),
			)
			return e.finish(result, start, s.Name, err), err
		}
		result.StepDurations[s.Name] = time.Since(stepStart)
		result.StepsExecuted++
	}

	duration := time.Since(start)
	if e.fitLatency != nil {
		e.fitLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("estimator", p.estimator)),
		)
	}
	span.SetStatus(codes.Ok, "")
	e.logger.Info("fit completed",
		slog.String("session_id", sessionID),
		slog.Duration("duration", duration),
		slog.Int("steps_executed", result.StepsExecuted),
	)
	return e.finish(result, start, "", nil), nil
}

// runStep checks requirements, fits and transforms one step.
func (e *Executor) runStep(ctx context.Context, s Step, fd *component.FitDictionary, sessionID string) error {
	ctx, span := tracer.Start(ctx, s.Name,
		trace.WithAttributes(
			attribute.String("automl.step", s.Name),
			attribute.String("automl.component", nodeName(s.Node)),
			attribute.String("automl.session_id", sessionID),
		),
	)
	defer span.End()

	e.logger.Debug("step starting",
		slog.String("step", s.Name),
		slog.String("component", nodeName(s.Node)),
		slog.String("session_id", sessionID),
	)

	start := time.Now()
	err := e.fitStep(ctx, s, fd)
	duration := time.Since(start)

	if e.stepLatency != nil {
		e.stepLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("step", s.Name)),
		)
	}

	if err != nil {
		if e.stepFailures != nil {
			e.stepFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", s.Name)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Step: s.Name, Err: err}
	}

	if e.stepSuccesses != nil {
		e.stepSuccesses.Add(ctx, 1, metric.WithAttributes(attribute.String("step", s.Name)))
	}
	span.SetStatus(codes.Ok, "")
	e.logger.Info("step completed",
		slog.String("step", s.Name),
		slog.String("component", nodeName(s.Node)),
		slog.Duration("duration", duration),
	)
	return nil
}

func (e *Executor) fitStep(ctx context.Context, s Step, fd *component.FitDictionary) error {
	if c, ok := s.Node.(contract); ok {
		if err := fd.Require(s.Name, c.Requires()...); err != nil {
			return err
		}
	}
	if err := s.Node.Fit(ctx, fd); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	if err := s.Node.Transform(ctx, fd); err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	return nil
}

func (e *Executor) finish(r *Result, start time.Time, failed string, err error) *Result {
	r.Duration = time.Since(start)
	if err != nil {
		r.Success = false
		r.FailedStep = failed
		r.Error = err.Error()
		return r
	}
	r.Success = true
	return r
}
