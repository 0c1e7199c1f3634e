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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spaceBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automl_space_builds_total",
		Help: "Joint search spaces built, by estimator",
	}, []string{"estimator"})

	forbiddenClauses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automl_forbidden_clauses_total",
		Help: "Forbidden clauses compiled from compatibility matrices, by estimator",
	}, []string{"estimator"})

	infeasiblePipelines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automl_infeasible_pipelines_total",
		Help: "Space builds rejected because no component combination is legal",
	})

	configMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automl_configuration_mismatches_total",
		Help: "Configurations rejected because they belong to a different space",
	})

	matrixCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automl_compatibility_matrix_cells",
		Help:    "Size of compatibility matrices",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})
)
