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
	"log/slog"

	"github.com/AleutianAI/AleutianAutoML/services/automl/backend"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/datasets"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
)

// Task returns the configured task type.
func (c *RunConfig) Task() component.TaskType {
	return component.TaskType(c.TaskType)
}

// DatasetOptions maps the resampling section onto datasets.Options.
func (c *RunConfig) DatasetOptions() datasets.Options {
	opts := datasets.Options{
		NoShuffle:      !c.Resampling.Shuffle,
		Seed:           c.Seed,
		HoldoutValType: c.Resampling.HoldoutValType,
		CrossValType:   c.Resampling.CrossValType,
		NumSplits:      c.Resampling.NumSplits,
	}
	if c.Resampling.ValShare > 0 {
		share := c.Resampling.ValShare
		opts.ValShare = &share
	}
	return opts
}

// PipelineOptions maps the search section and seed onto pipeline.Options.
//
// Inputs:
//
//	props - Dataset properties for the pipeline.
//	logger - Logger handed to the pipeline. May be nil.
func (c *RunConfig) PipelineOptions(props component.DatasetProperties, logger *slog.Logger) pipeline.Options {
	return pipeline.Options{
		DatasetProperties: props,
		Include:           componentIDs(c.Search.Include),
		Exclude:           componentIDs(c.Search.Exclude),
		Seed:              c.Seed,
		InitParams:        map[string]any{"trainer:epochs": c.Training.Epochs},
		Logger:            logger,
	}
}

// StoreConfig maps the backend section onto backend.Config.
func (c *RunConfig) StoreConfig(logger *slog.Logger) backend.Config {
	if c.Backend.InMemory {
		cfg := backend.InMemoryConfig()
		cfg.Logger = logger
		return cfg
	}
	cfg := backend.DefaultConfig(c.Backend.Dir)
	cfg.SyncWrites = c.Backend.SyncWrites
	cfg.GCInterval = c.Backend.GCInterval
	cfg.Logger = logger
	return cfg
}

func componentIDs(m map[string][]string) map[string][]component.ID {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]component.ID, len(m))
	for step, ids := range m {
		list := make([]component.ID, len(ids))
		for i, id := range ids {
			list[i] = component.ID(id)
		}
		out[step] = list
	}
	return out
}
