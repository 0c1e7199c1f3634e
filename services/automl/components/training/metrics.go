// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package training provides the trainer component and the metrics it
// reports.
package training

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

// Metric scores predictions against targets.
type Metric struct {
	ShortName       string
	Name            string
	TaskType        component.TaskType
	GreaterIsBetter bool

	// Score compares predictions with target rows. For classification the
	// predictions are class probabilities and the label is target column 0.
	Score func(pred, target *mat.Dense) float64
}

// RMSE is the root mean squared error over every target cell.
var RMSE = Metric{
	ShortName: "RMSE",
	Name:      "Root Mean Squared Error",
	TaskType:  component.TaskTabularRegression,
	Score: func(pred, target *mat.Dense) float64 {
		r, c := pred.Dims()
		var sum float64
		for i := range r {
			for j := range c {
				d := pred.At(i, j) - target.At(i, j)
				sum += d * d
			}
		}
		return math.Sqrt(sum / float64(r*c))
	},
}

// Accuracy is the share of rows whose most probable class is the label.
var Accuracy = Metric{
	ShortName:       "accuracy",
	Name:            "Accuracy",
	TaskType:        component.TaskTabularClassification,
	GreaterIsBetter: true,
	Score: func(pred, target *mat.Dense) float64 {
		r, _ := pred.Dims()
		correct := 0
		for i := range r {
			if float64(floats.MaxIdx(pred.RawRowView(i))) == target.At(i, 0) {
				correct++
			}
		}
		return float64(correct) / float64(r)
	},
}

// MetricsFor returns the metrics reported for a task.
func MetricsFor(task component.TaskType) []Metric {
	var out []Metric
	for _, m := range []Metric{Accuracy, RMSE} {
		if m.TaskType == task {
			out = append(out, m)
		}
	}
	return out
}
