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

import (
	"gonum.org/v1/gonum/mat"
)

// FitDictionaryVersion is the current field-set version.
const FitDictionaryVersion = 1

// Field names one field of a FitDictionary.
type Field int

const (
	FieldXTrain Field = iota + 1
	FieldYTrain
	FieldTrainIndices
	FieldValIndices
	FieldNumericalColumns
	FieldCategoricalColumns
	FieldCategories
	FieldNumFeatures
	FieldNumClasses
	FieldDatasetProperties
	FieldImputer
	FieldEncoder
	FieldScaler
	FieldTabularTransformer
	FieldNetwork
	FieldOptimizer
	FieldRunSummary
	FieldEpochs
	FieldJobID
	FieldSplitID
	FieldBackend
	FieldXVal
	FieldYVal
)

var fieldNames = map[Field]string{
	FieldXTrain:             "X_train",
	FieldYTrain:             "y_train",
	FieldTrainIndices:       "train_indices",
	FieldValIndices:         "val_indices",
	FieldNumericalColumns:   "numerical_columns",
	FieldCategoricalColumns: "categorical_columns",
	FieldCategories:         "categories",
	FieldNumFeatures:        "num_features",
	FieldNumClasses:         "num_classes",
	FieldDatasetProperties:  "dataset_properties",
	FieldImputer:            "imputer",
	FieldEncoder:            "encoder",
	FieldScaler:             "scaler",
	FieldTabularTransformer: "tabular_transformer",
	FieldNetwork:            "network",
	FieldOptimizer:          "optimizer",
	FieldRunSummary:         "run_summary",
	FieldEpochs:             "epochs",
	FieldJobID:              "job_id",
	FieldSplitID:            "split_id",
	FieldBackend:            "backend",
	FieldXVal:               "X_val",
	FieldYVal:               "y_val",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

// FitDictionary carries data and fitted artifacts through the step chain.
//
// Description:
//
//	One FitDictionary is created per fit and shared by every step. Steps
//	read the fields they declare in Requires and write the fields they
//	declare in Provides. A later step may overwrite an earlier one's field.
//
// Thread Safety:
//
//	Not safe for concurrent use. The executor runs steps sequentially.
type FitDictionary struct {
	Version int

	// Data.
	XTrain       *mat.Dense
	YTrain       *mat.Dense
	TrainIndices []int
	ValIndices   []int

	// XVal and YVal hold a validation set kept apart from XTrain. When set
	// they are scored instead of ValIndices.
	XVal *mat.Dense
	YVal *mat.Dense

	// Column metadata. A non-nil empty slice means "known to be empty".
	NumericalColumns   []int
	CategoricalColumns []int
	Categories         [][]float64
	NumFeatures        int
	NumClasses         int
	DatasetProperties  *DatasetProperties

	// Fitted preprocessing artifacts.
	Imputer            Transformer
	Encoder            Transformer
	Scaler             Transformer
	TabularTransformer Transformer

	// Setup and training artifacts.
	Network    Network
	Optimizer  Optimizer
	RunSummary *RunSummary
	Epochs     int

	// Run bookkeeping. SplitID 0 is the first split and is always present.
	JobID   string
	SplitID int
	Backend Backend
}

// NewFitDictionary returns an empty dictionary at the current version.
func NewFitDictionary() *FitDictionary {
	return &FitDictionary{Version: FitDictionaryVersion}
}

// Has reports whether field f is populated.
func (fd *FitDictionary) Has(f Field) bool {
	switch f {
	case FieldXTrain:
		return fd.XTrain != nil
	case FieldYTrain:
		return fd.YTrain != nil
	case FieldTrainIndices:
		return fd.TrainIndices != nil
	case FieldValIndices:
		return fd.ValIndices != nil
	case FieldNumericalColumns:
		return fd.NumericalColumns != nil
	case FieldCategoricalColumns:
		return fd.CategoricalColumns != nil
	case FieldCategories:
		return fd.Categories != nil
	case FieldNumFeatures:
		return fd.NumFeatures > 0
	case FieldNumClasses:
		return fd.NumClasses > 0
	case FieldDatasetProperties:
		return fd.DatasetProperties != nil
	case FieldImputer:
		return fd.Imputer != nil
	case FieldEncoder:
		return fd.Encoder != nil
	case FieldScaler:
		return fd.Scaler != nil
	case FieldTabularTransformer:
		return fd.TabularTransformer != nil
	case FieldNetwork:
		return fd.Network != nil
	case FieldOptimizer:
		return fd.Optimizer != nil
	case FieldRunSummary:
		return fd.RunSummary != nil
	case FieldEpochs:
		return fd.Epochs > 0
	case FieldJobID:
		return fd.JobID != ""
	case FieldSplitID:
		return fd.SplitID >= 0
	case FieldBackend:
		return fd.Backend != nil
	case FieldXVal:
		return fd.XVal != nil
	case FieldYVal:
		return fd.YVal != nil
	}
	return false
}

// Require checks that every field is populated.
//
// Outputs:
//
//	error - *MissingDependencyError naming step and every missing field,
//	        or nil.
func (fd *FitDictionary) Require(step string, fields ...Field) error {
	var missing []Field
	for _, f := range fields {
		if !fd.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingDependencyError{Step: step, Missing: missing}
	}
	return nil
}
