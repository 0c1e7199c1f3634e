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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type nopComponent struct{}

func (nopComponent) Fit(context.Context, *FitDictionary) error       { return nil }
func (nopComponent) Transform(context.Context, *FitDictionary) error { return nil }

func nopDescriptor(stage Stage, id ID) Descriptor {
	return Descriptor{
		ID:    id,
		Stage: stage,
		New:   func(Params) (Component, error) { return nopComponent{}, nil },
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(StageScaler)
	require.NoError(t, r.Register(nopDescriptor(StageScaler, "A")))
	require.NoError(t, r.Register(nopDescriptor(StageScaler, "B")))

	err := r.Register(nopDescriptor(StageScaler, "A"))
	assert.ErrorIs(t, err, ErrDuplicateComponent)

	err = r.Register(nopDescriptor(StageEncoder, "C"))
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	err = r.Register(Descriptor{ID: "D", Stage: StageScaler})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	assert.Equal(t, []ID{"A", "B"}, r.IDs())
	_, ok := r.Lookup("B")
	assert.True(t, ok)
}

func TestApplicable(t *testing.T) {
	d := nopDescriptor(StageEncoder, "OneHot")
	d.Properties = Properties{
		TaskTypes: []TaskType{TaskTabularClassification},
		Predicate: func(p DatasetProperties) bool { return len(p.CategoricalColumns) > 0 },
	}

	assert.True(t, d.Applicable(DatasetProperties{TaskType: TaskTabularClassification, CategoricalColumns: []int{1}}))
	assert.False(t, d.Applicable(DatasetProperties{TaskType: TaskTabularClassification, CategoricalColumns: []int{}}))
	assert.False(t, d.Applicable(DatasetProperties{TaskType: TaskTabularRegression, CategoricalColumns: []int{1}}))
}

func TestFormats(t *testing.T) {
	p := Properties{Input: []DataFormat{FormatDense}, Output: FormatSparse}
	assert.True(t, p.Accepts(FormatDense))
	assert.False(t, p.Accepts(FormatSparse))
	assert.Equal(t, FormatSparse, p.OutputFormat(FormatDense))

	var open Properties
	assert.True(t, open.Accepts(FormatSparse))
	assert.Equal(t, FormatDense, open.OutputFormat(FormatDense))
}

func TestRequireNamesStepAndFields(t *testing.T) {
	fd := NewFitDictionary()
	fd.XTrain = mat.NewDense(1, 1, nil)

	err := fd.Require("network_init", FieldXTrain, FieldNetwork, FieldOptimizer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFitDependency)

	var mde *MissingDependencyError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, "network_init", mde.Step)
	assert.Equal(t, []Field{FieldNetwork, FieldOptimizer}, mde.Missing)
	assert.Contains(t, err.Error(), "network, optimizer")

	assert.NoError(t, fd.Require("imputer", FieldXTrain))
}

func TestHasDistinguishesEmptyFromUnset(t *testing.T) {
	fd := NewFitDictionary()
	assert.False(t, fd.Has(FieldCategoricalColumns))
	fd.CategoricalColumns = []int{}
	assert.True(t, fd.Has(FieldCategoricalColumns))
	assert.True(t, fd.Has(FieldSplitID))
	assert.Equal(t, FitDictionaryVersion, fd.Version)
}

func TestParams(t *testing.T) {
	p := Params{
		Values: map[string]any{"lr": 0.1, "epochs": 3},
		Init:   map[string]any{"units": 8.0, "name": "x"},
	}
	assert.Equal(t, 0.1, p.Float("lr", 0))
	assert.Equal(t, 3.0, p.Float("epochs", 0))
	assert.Equal(t, 8, p.Int("units", 0))
	assert.Equal(t, "x", p.String("name", ""))
	assert.Equal(t, "d", p.String("missing", "d"))
	assert.NotNil(t, p.Log())
}

func TestFixedBeforeSet(t *testing.T) {
	f := NewFixed(nopDescriptor(StageImputer, "SimpleImputer"))
	err := f.Fit(context.Background(), NewFitDictionary())
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, f.SetHyperparameters(nil, nil, nil, nil))
	assert.NoError(t, f.Fit(context.Background(), NewFitDictionary()))
	assert.Equal(t, 0, f.SearchSpace(DatasetProperties{}).Len())
}
