// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes pipeline search spaces over HTTP with gin.
//
// Routes:
//
//	GET  /health                  liveness
//	GET  /metrics                 Prometheus exposition
//	GET  /v1/automl/space         joint search space for a dataset description
//	POST /v1/automl/sample        random configurations from that space
//	POST /v1/automl/validate      check a configuration against that space
//	GET  /v1/automl/runs          stored run IDs
//	GET  /v1/automl/runs/:runId   one run summary
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianAutoML/services/automl/backend"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
	"github.com/AleutianAI/AleutianAutoML/services/automl/datasets"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
	"github.com/AleutianAI/AleutianAutoML/services/automl/tabular"
	"github.com/AleutianAI/AleutianAutoML/services/automl/telemetry"
)

// RunStore is the read side of the run backend.
type RunStore interface {
	ListRuns(ctx context.Context) ([]string, error)
	LoadRunSummary(ctx context.Context, runID string) (*component.RunSummary, error)
}

// Options configures NewRouter.
type Options struct {
	// ServiceName names the otelgin server spans.
	ServiceName string

	// Runs backs the /runs routes. Nil leaves them unregistered.
	Runs RunStore

	// Metrics serves /metrics. Nil leaves it unregistered.
	Metrics http.Handler

	Logger *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
//
// Description:
//
//	Installs recovery, OpenTelemetry server spans and a request logger,
//	then registers the health, metrics and /v1/automl routes.
//
// Inputs:
//
//	opts - Router options. Zero values are valid.
//
// Outputs:
//
//	*gin.Engine - The configured router.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.ServiceName
	if name == "" {
		name = "autotab"
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(name), requestLogger(logger))

	router.GET("/health", HealthCheck)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/v1/automl")
	{
		v1.GET("/space", HandleSpace(logger))
		v1.POST("/sample", HandleSample(logger))
		v1.POST("/validate", HandleValidate(logger))
		if opts.Runs != nil {
			v1.GET("/runs", ListRuns(opts.Runs))
			v1.GET("/runs/:runId", GetRun(opts.Runs))
		}
	}
	return router
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if id := telemetry.TraceID(c.Request.Context()); id != "" {
			attrs = append(attrs, slog.String("trace_id", id))
		}
		logger.Debug("request", attrs...)
	}
}

// =============================================================================
// Space routes
// =============================================================================

// HandleSpace returns the joint search space for a dataset described by
// query parameters (task_type, num_features, categorical, num_classes,
// is_sparse).
func HandleSpace(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PipelineRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			abort(c, logger, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
			return
		}
		if err := req.Validate(); err != nil {
			abort(c, logger, err)
			return
		}
		p, err := buildPipeline(&req, nil, logger)
		if err != nil {
			abort(c, logger, err)
			return
		}
		space, err := p.SearchSpace()
		if err != nil {
			abort(c, logger, err)
			return
		}
		choices, err := p.ActiveChoices()
		if err != nil {
			abort(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, SpaceResponse{
			Estimator:       p.EstimatorName(),
			Fingerprint:     fingerprint(space),
			Hyperparameters: space.Len(),
			Choices:         choices,
			Space:           space.String(),
			Default:         p.Config(),
		})
	}
}

// HandleSample draws configurations with a seeded random source, so equal
// requests return equal configurations.
func HandleSample(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SampleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, logger, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
			return
		}
		if err := req.Validate(); err != nil {
			abort(c, logger, err)
			return
		}
		p, err := buildPipeline(&req.PipelineRequest, nil, logger)
		if err != nil {
			abort(c, logger, err)
			return
		}
		space, err := p.SearchSpace()
		if err != nil {
			abort(c, logger, err)
			return
		}

		count := max(req.Count, 1)
		rng := rand.New(rand.NewPCG(req.Seed, req.Seed^0x9e3779b97f4a7c15))
		resp := SampleResponse{Fingerprint: fingerprint(space)}
		for range count {
			cfg, err := space.Sample(rng)
			if err != nil {
				abort(c, logger, err)
				return
			}
			resp.Configurations = append(resp.Configurations, cfg)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleValidate builds the pipeline with the given configuration.
// A configuration outside the space answers 422 with the reason.
func HandleValidate(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, logger, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
			return
		}
		if err := req.Validate(); err != nil {
			abort(c, logger, err)
			return
		}
		p, err := buildPipeline(&req.PipelineRequest, req.Configuration, logger)
		if err != nil {
			if isConfigurationError(err) {
				c.JSON(http.StatusUnprocessableEntity, ValidateResponse{Error: err.Error()})
				return
			}
			abort(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, ValidateResponse{Valid: true, Pipeline: p.String()})
	}
}

func buildPipeline(req *PipelineRequest, values map[string]configspace.Value, logger *slog.Logger) (*pipeline.Pipeline, error) {
	opts, err := req.options()
	if err != nil {
		return nil, err
	}
	opts.ConfigValues = values
	opts.Logger = logger
	return tabular.NewPipeline(opts)
}

// =============================================================================
// Run routes
// =============================================================================

// ListRuns returns every stored run ID.
func ListRuns(store RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := store.ListRuns(c.Request.Context())
		if err != nil {
			abort(c, slog.Default(), err)
			return
		}
		if runs == nil {
			runs = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

// GetRun returns one run summary.
func GetRun(store RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := store.LoadRunSummary(c.Request.Context(), c.Param("runId"))
		if err != nil {
			abort(c, slog.Default(), err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// =============================================================================
// Errors
// =============================================================================

func isConfigurationError(err error) bool {
	for _, target := range []error{
		configspace.ErrUnknownHyperparameter,
		configspace.ErrIllegalValue,
		configspace.ErrMissingValue,
		configspace.ErrInactiveValue,
		configspace.ErrForbiddenConfiguration,
		pipeline.ErrConfigurationSpaceMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, datasets.ErrInvalidData),
		errors.Is(err, backend.ErrInvalidKey), errors.Is(err, component.ErrInvalidIncludeExclude):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInfeasiblePipeline), isConfigurationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func fingerprint(s *configspace.Space) string {
	return fmt.Sprintf("%016x", s.Fingerprint())
}
