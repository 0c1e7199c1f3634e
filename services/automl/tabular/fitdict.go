// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tabular

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/datasets"
)

// InferProperties derives dataset properties from the data. Columns not
// listed as categorical are numerical.
//
// Inputs:
//
//	ds - The dataset.
//	task - The task type.
//	categorical - Categorical column indices.
//
// Outputs:
//
//	component.DatasetProperties - The properties.
//	error - When a categorical index is out of range.
func InferProperties(ds *datasets.Dataset, task component.TaskType, categorical []int) (component.DatasetProperties, error) {
	_, targets := ds.Y().Dims()
	if task.IsClassification() {
		targets = len(uniqueSorted(ds.Labels()))
	}
	return DescribeProperties(task, ds.NumFeatures(), categorical, targets)
}

// DescribeProperties builds dataset properties from a shape description
// when no data is at hand.
//
// Inputs:
//
//	task - The task type.
//	width - Number of feature columns.
//	categorical - Categorical column indices.
//	targets - Number of classes for classification, else target columns.
//
// Outputs:
//
//	component.DatasetProperties - The properties.
//	error - datasets.ErrInvalidData for an out-of-range column or a
//	        non-positive width or target count.
func DescribeProperties(task component.TaskType, width int, categorical []int, targets int) (component.DatasetProperties, error) {
	if width <= 0 || targets <= 0 {
		return component.DatasetProperties{}, fmt.Errorf("%w: need positive width and targets, got %d and %d",
			datasets.ErrInvalidData, width, targets)
	}
	for _, col := range categorical {
		if col < 0 || col >= width {
			return component.DatasetProperties{}, fmt.Errorf("%w: categorical column %d outside %d columns",
				datasets.ErrInvalidData, col, width)
		}
	}
	numerical := make([]int, 0, width)
	for col := range width {
		if !slices.Contains(categorical, col) {
			numerical = append(numerical, col)
		}
	}

	props := component.DatasetProperties{
		TaskType:           task,
		InputShape:         []int{width},
		OutputShape:        []int{targets},
		NumericalColumns:   numerical,
		CategoricalColumns: append([]int{}, categorical...),
	}
	if !task.IsClassification() {
		props.OutputType = component.OutputContinuous
		return props, nil
	}
	props.NumClasses = targets
	props.OutputType = component.OutputMulticlass
	if targets <= 2 {
		props.OutputType = component.OutputBinary
	}
	return props, nil
}

// NewFitDictionary builds the initial fit dictionary for one split.
//
// Description:
//
//	Carries the raw training tensors, the split's row indices, the column
//	groups from props, the categories of each categorical column over the
//	whole feature matrix, and the run bookkeeping. A split without held-out
//	rows is validated on the dataset's predefined validation set, which is
//	copied into XVal and YVal with the dataset's ValTransform applied.
//
// Outputs:
//
//	*component.FitDictionary - A dictionary ready for Pipeline.Fit.
//	error - datasets.ErrSplitOutOfRange.
func NewFitDictionary(ds *datasets.Dataset, props component.DatasetProperties, splitID int) (*component.FitDictionary, error) {
	train, val, err := ds.GetDatasetForTraining(splitID)
	if err != nil {
		return nil, err
	}

	fd := component.NewFitDictionary()
	fd.XTrain = ds.X()
	fd.YTrain = ds.Y()
	fd.TrainIndices = train.Indices()
	switch {
	case val.Base() == ds:
		fd.ValIndices = val.Indices()
	case val.Len() > 0:
		fd.XVal = val.X()
		fd.YVal = val.Y()
	}
	fd.NumericalColumns = append([]int{}, props.NumericalColumns...)
	fd.CategoricalColumns = append([]int{}, props.CategoricalColumns...)
	fd.NumFeatures = ds.NumFeatures()
	fd.NumClasses = props.NumClasses
	fd.SplitID = splitID
	fd.DatasetProperties = &props

	fd.Categories = make([][]float64, len(fd.CategoricalColumns))
	for j, col := range fd.CategoricalColumns {
		fd.Categories[j] = uniqueSorted(mat.Col(nil, col, ds.X()))
	}
	return fd, nil
}

// uniqueSorted drops NaN and duplicates.
func uniqueSorted(values []float64) []float64 {
	out := slices.DeleteFunc(slices.Clone(values), math.IsNaN)
	slices.Sort(out)
	return slices.Compact(out)
}
