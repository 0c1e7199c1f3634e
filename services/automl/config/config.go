// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates autotab run configurations.
//
// A run configuration is YAML. The embedded default.yaml supplies every
// value, and a user file is decoded over a copy of it, so partial files are
// fine. The merged result is validated with go-playground/validator before
// it is returned.
//
// Thread Safety:
//
//	Default and Load are safe for concurrent use. A returned *RunConfig is a
//	private copy owned by the caller.
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// MaxFileSize caps a run configuration file (1MB).
const MaxFileSize = 1024 * 1024

//go:embed default.yaml
var defaultYAML []byte

var (
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrFileTooLarge is returned when a file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("run configuration file too large")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	configLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automl_config_loads_total",
		Help: "Run configuration loads by source",
	}, []string{"source"})

	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automl_config_load_errors_total",
		Help: "Run configuration loads that failed to parse or validate",
	})
)

var tracer = otel.Tracer("aleutian.automl.config")

// =============================================================================
// Types
// =============================================================================

// RunConfig is the root of a run configuration.
type RunConfig struct {
	TaskType   string           `yaml:"task_type" json:"task_type" validate:"required,oneof=tabular_classification tabular_regression"`
	Seed       uint64           `yaml:"seed" json:"seed"`
	Dataset    DatasetConfig    `yaml:"dataset" json:"dataset"`
	Resampling ResamplingConfig `yaml:"resampling" json:"resampling"`
	Training   TrainingConfig   `yaml:"training" json:"training"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// DatasetConfig locates the training data.
type DatasetConfig struct {
	// Path is a CSV file. Only commands that fit need it.
	Path string `yaml:"path" json:"path"`

	// TargetColumn indexes the target. Negative values count from the end.
	TargetColumn int `yaml:"target_column" json:"target_column"`

	Header             bool  `yaml:"header" json:"header"`
	CategoricalColumns []int `yaml:"categorical_columns" json:"categorical_columns" validate:"dive,min=0"`
}

// ResamplingConfig selects how validation splits are drawn.
type ResamplingConfig struct {
	HoldoutValType string  `yaml:"holdout_val_type" json:"holdout_val_type" validate:"omitempty,oneof=holdout stratified_holdout"`
	ValShare       float64 `yaml:"val_share" json:"val_share" validate:"omitempty,gt=0,lt=1"`
	CrossValType   string  `yaml:"cross_val_type" json:"cross_val_type" validate:"omitempty,oneof=k_fold stratified_k_fold"`
	NumSplits      int     `yaml:"num_splits" json:"num_splits" validate:"min=0"`
	Shuffle        bool    `yaml:"shuffle" json:"shuffle"`
}

// TrainingConfig bounds the trainer.
type TrainingConfig struct {
	Epochs           int `yaml:"epochs" json:"epochs" validate:"min=1,max=10000"`
	PredictBatchSize int `yaml:"predict_batch_size" json:"predict_batch_size" validate:"min=0"`
}

// SearchConfig restricts the candidates of Choice steps, keyed by step name.
type SearchConfig struct {
	Include map[string][]string `yaml:"include" json:"include"`
	Exclude map[string][]string `yaml:"exclude" json:"exclude"`
}

// BackendConfig selects the run store.
type BackendConfig struct {
	InMemory   bool          `yaml:"in_memory" json:"in_memory"`
	Dir        string        `yaml:"dir" json:"dir" validate:"required_without=InMemory"`
	SyncWrites bool          `yaml:"sync_writes" json:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" json:"gc_interval" validate:"min=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"min=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=auto text json"`
	File   string `yaml:"file" json:"file"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" json:"service_name" validate:"required"`
	Traces       string `yaml:"traces" json:"traces" validate:"oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" json:"metrics" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// =============================================================================
// Loading
// =============================================================================

var (
	defaultOnce sync.Once
	defaultCfg  *RunConfig
	defaultErr  error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Default returns a copy of the embedded default configuration.
//
// Description:
//
//	The embedded YAML is parsed and validated once. Every call returns a
//	fresh deep copy so callers may modify it freely.
//
// Outputs:
//
//	*RunConfig - The default configuration.
//	error - Non-nil only if the embedded file is broken.
func Default() (*RunConfig, error) {
	defaultOnce.Do(func() {
		defaultCfg, defaultErr = decode(bytes.NewReader(defaultYAML), &RunConfig{})
		if defaultErr == nil {
			configLoads.WithLabelValues("embedded").Inc()
		}
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultCfg.Clone(), nil
}

// Load reads a YAML file and layers it over the defaults.
//
// Description:
//
//	An empty path returns Default. Otherwise the file is size-checked,
//	decoded over a copy of the defaults with unknown keys rejected, and
//	validated.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	path - File path, or "".
//
// Outputs:
//
//	*RunConfig - The merged configuration.
//	error - ErrFileTooLarge, a read or YAML error, or ErrInvalidConfig.
//
// Example:
//
//	cfg, err := config.Load(ctx, "run.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading run config: %w", err)
//	}
func Load(ctx context.Context, path string) (*RunConfig, error) {
	_, span := tracer.Start(ctx, "config.Load")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	base, err := Default()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "default config")
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	cfg, err := loadFile(path, base)
	if err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}
	configLoads.WithLabelValues("file").Inc()
	return cfg, nil
}

func loadFile(path string, base *RunConfig) (*RunConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat run config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, max %d", ErrFileTooLarge, path, info.Size(), MaxFileSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(io.LimitReader(f, MaxFileSize), base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*RunConfig, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFileTooLarge, len(data), MaxFileSize)
	}
	return decode(bytes.NewReader(data), base)
}

// decode reads YAML into base and validates it. An empty document leaves
// base unchanged.
func decode(r io.Reader, base *RunConfig) (*RunConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

// Validate checks field constraints and cross-field rules.
//
// Outputs:
//
//	error - Wraps ErrInvalidConfig and lists every failing field.
func (c *RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(msgs...))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Resampling.CrossValType != "" && c.Resampling.NumSplits < 2 {
		return fmt.Errorf("%w: cross_val_type %q needs num_splits >= 2, got %d",
			ErrInvalidConfig, c.Resampling.CrossValType, c.Resampling.NumSplits)
	}
	for step := range c.Search.Include {
		if _, ok := c.Search.Exclude[step]; ok {
			return fmt.Errorf("%w: step %q appears in both search.include and search.exclude", ErrInvalidConfig, step)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *RunConfig) Clone() *RunConfig {
	out := *c
	out.Dataset.CategoricalColumns = slices.Clone(c.Dataset.CategoricalColumns)
	out.Search.Include = cloneLists(c.Search.Include)
	out.Search.Exclude = cloneLists(c.Search.Exclude)
	return &out
}

func cloneLists(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// YAML renders the configuration.
func (c *RunConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ResetDefault clears the cached default. Intended for tests.
func ResetDefault() {
	defaultOnce = sync.Once{}
	defaultCfg = nil
	defaultErr = nil
}
