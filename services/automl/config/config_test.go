// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "tabular_regression", cfg.TaskType)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, -1, cfg.Dataset.TargetColumn)
	assert.Equal(t, "holdout", cfg.Resampling.HoldoutValType)
	assert.InDelta(t, 0.33, cfg.Resampling.ValShare, 1e-12)
	assert.Equal(t, 20, cfg.Training.Epochs)
	assert.True(t, cfg.Backend.InMemory)
	assert.Equal(t, 5*time.Minute, cfg.Backend.GCInterval)
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Equal(t, "prometheus", cfg.Telemetry.Metrics)
}

func TestDefault_ReturnsCopies(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	a.Seed = 7
	a.Search.Include["encoder"] = []string{"NoEncoder"}

	b, err := Default()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), b.Seed)
	assert.Empty(t, b.Search.Include)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	def, err := Default()
	require.NoError(t, err)
	assert.Equal(t, def, cfg)
}

func TestLoad_LayersOverDefault(t *testing.T) {
	path := writeConfig(t, `
task_type: tabular_classification
seed: 3
resampling:
  holdout_val_type: stratified_holdout
search:
  include:
    network: [LinearNetwork]
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, component.TaskTabularClassification, cfg.Task())
	assert.Equal(t, uint64(3), cfg.Seed)
	assert.Equal(t, "stratified_holdout", cfg.Resampling.HoldoutValType)
	assert.InDelta(t, 0.33, cfg.Resampling.ValShare, 1e-12, "unset keys keep defaults")
	assert.Equal(t, 20, cfg.Training.Epochs)
	assert.Equal(t, []string{"LinearNetwork"}, cfg.Search.Include["network"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "colour: blue\n", "colour"},
		{"bad task", "task_type: clustering\n", "TaskType"},
		{"val share out of range", "resampling:\n  val_share: 1.5\n", "ValShare"},
		{"bad holdout type", "resampling:\n  holdout_val_type: random\n", "HoldoutValType"},
		{"zero epochs", "training:\n  epochs: 0\n", "Epochs"},
		{"disk backend without dir", "backend:\n  in_memory: false\n", "Dir"},
		{"otlp without endpoint", "telemetry:\n  traces: otlp\n", "OTLPEndpoint"},
		{"bad log level", "logging:\n  level: loud\n", "Level"},
		{"cross val needs splits", "resampling:\n  cross_val_type: k_fold\n  num_splits: 1\n", "num_splits"},
		{"include and exclude", "search:\n  include:\n    scaler: [NoScaler]\n  exclude:\n    scaler: [MinMaxScaler]\n", "scaler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ValidationWrapsSentinel(t *testing.T) {
	_, err := Load(context.Background(), writeConfig(t, "task_type: clustering\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_TooLarge(t *testing.T) {
	body := "# " + strings.Repeat("x", MaxFileSize) + "\n"
	_, err := Load(context.Background(), writeConfig(t, body))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("training:\n  epochs: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Training.Epochs)

	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Training.Epochs)
}

func TestYAML_RoundTrip(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Seed = 11
	data, err := cfg.YAML()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestDatasetOptions(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	opts := cfg.DatasetOptions()
	assert.False(t, opts.NoShuffle)
	assert.Equal(t, uint64(42), opts.Seed)
	require.NotNil(t, opts.ValShare)
	assert.InDelta(t, 0.33, *opts.ValShare, 1e-12)

	cfg.Resampling.ValShare = 0
	assert.Nil(t, cfg.DatasetOptions().ValShare)
}

func TestPipelineOptions(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Search.Exclude = map[string][]string{"scaler": {"MinMaxScaler"}}

	opts := cfg.PipelineOptions(component.DatasetProperties{TaskType: cfg.Task()}, nil)
	assert.Nil(t, opts.Include)
	assert.Equal(t, []component.ID{"MinMaxScaler"}, opts.Exclude["scaler"])
	assert.Equal(t, 20, opts.InitParams["trainer:epochs"])
	assert.Equal(t, uint64(42), opts.Seed)
}

func TestStoreConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.True(t, cfg.StoreConfig(nil).InMemory)

	cfg.Backend.InMemory = false
	cfg.Backend.Dir = "/var/lib/autotab"
	cfg.Backend.GCInterval = time.Minute
	sc := cfg.StoreConfig(nil)
	assert.False(t, sc.InMemory)
	assert.Equal(t, "/var/lib/autotab", sc.Dir)
	assert.Equal(t, time.Minute, sc.GCInterval)
}
