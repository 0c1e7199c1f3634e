// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

import "slices"

// ID identifies a concrete component within a stage. It doubles as the
// selector value and the namespace of the component's hyperparameters.
type ID string

// Stage names a pipeline stage.
type Stage string

const (
	StageImputer           Stage = "imputer"
	StageEncoder           Stage = "encoder"
	StageScaler            Stage = "scaler"
	StageColumnTransformer Stage = "tabular_transformer"
	StageNetwork           Stage = "network"
	StageInitializer       Stage = "network_init"
	StageOptimizer         Stage = "optimizer"
	StageTrainer           Stage = "trainer"
)

// TaskType is the learning problem a dataset poses.
type TaskType string

const (
	TaskTabularClassification TaskType = "tabular_classification"
	TaskTabularRegression     TaskType = "tabular_regression"
)

// IsClassification reports whether t is a classification task.
func (t TaskType) IsClassification() bool {
	return t == TaskTabularClassification
}

// OutputType describes the target.
type OutputType string

const (
	OutputBinary     OutputType = "binary"
	OutputMulticlass OutputType = "multiclass"
	OutputContinuous OutputType = "continuous"
)

// DataFormat is the storage layout of the feature matrix flowing between
// steps.
type DataFormat uint8

const (
	// FormatUnchanged means the component passes its input format through.
	FormatUnchanged DataFormat = iota
	FormatDense
	FormatSparse
)

func (f DataFormat) String() string {
	switch f {
	case FormatDense:
		return "dense"
	case FormatSparse:
		return "sparse"
	default:
		return "unchanged"
	}
}

// DatasetProperties is static metadata about the dataset. It is passed by
// value and never mutated; slices are shared read-only.
type DatasetProperties struct {
	TaskType           TaskType   `json:"task_type" yaml:"task_type"`
	IsSparse           bool       `json:"is_sparse" yaml:"is_sparse"`
	OutputType         OutputType `json:"output_type" yaml:"output_type"`
	InputShape         []int      `json:"input_shape" yaml:"input_shape"`
	OutputShape        []int      `json:"output_shape" yaml:"output_shape"`
	NumericalColumns   []int      `json:"numerical_columns" yaml:"numerical_columns"`
	CategoricalColumns []int      `json:"categorical_columns" yaml:"categorical_columns"`
	NumClasses         int        `json:"num_classes" yaml:"num_classes"`
	IsSmallPreprocess  bool       `json:"is_small_preprocess" yaml:"is_small_preprocess"`
}

// InputFormat is the format the first step receives.
func (p DatasetProperties) InputFormat() DataFormat {
	if p.IsSparse {
		return FormatSparse
	}
	return FormatDense
}

// NumTargets is the width of a prediction: the class count for
// classification, the output width for regression.
func (p DatasetProperties) NumTargets() int {
	if p.TaskType.IsClassification() {
		return max(p.NumClasses, 1)
	}
	if len(p.OutputShape) > 0 && p.OutputShape[0] > 0 {
		return p.OutputShape[0]
	}
	return 1
}

// Properties is the static metadata of a component.
type Properties struct {
	// ShortName is the abbreviated display name.
	ShortName string

	// Name is the full display name.
	Name string

	// TaskTypes lists supported tasks. Empty means every task.
	TaskTypes []TaskType

	// Input lists accepted formats. Empty means every format.
	Input []DataFormat

	// Output is the produced format. FormatUnchanged passes the input through.
	Output DataFormat

	// Predicate is an optional extra applicability check.
	Predicate func(DatasetProperties) bool
}

// Supports reports whether the task type is supported.
func (p Properties) Supports(t TaskType) bool {
	return len(p.TaskTypes) == 0 || slices.Contains(p.TaskTypes, t)
}

// Accepts reports whether the component takes input in format f.
func (p Properties) Accepts(f DataFormat) bool {
	return len(p.Input) == 0 || slices.Contains(p.Input, f)
}

// OutputFormat returns the format produced from input format in.
func (p Properties) OutputFormat(in DataFormat) DataFormat {
	if p.Output == FormatUnchanged {
		return in
	}
	return p.Output
}
