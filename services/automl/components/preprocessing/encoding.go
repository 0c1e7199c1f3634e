// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package preprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

// OneHotEncoder expands each categorical column into one indicator column
// per category. Values not seen at fit time encode as all zeros.
var OneHotEncoder = component.Descriptor{
	ID:    "OneHotEncoder",
	Stage: component.StageEncoder,
	Properties: component.Properties{
		ShortName: "OneHotEncoder",
		Name:      "One Hot Encoder",
		Output:    component.FormatSparse,
		Predicate: hasCategorical,
	},
	Requires: []component.Field{
		component.FieldXTrain,
		component.FieldTrainIndices,
		component.FieldCategoricalColumns,
		component.FieldImputer,
	},
	Provides: []component.Field{component.FieldEncoder},
	New: func(p component.Params) (component.Component, error) {
		return &oneHotEncoder{logger: p.Log()}, nil
	},
}

// NoEncoder leaves categorical columns as they are.
var NoEncoder = component.Descriptor{
	ID:    "NoEncoder",
	Stage: component.StageEncoder,
	Properties: component.Properties{
		ShortName: "NoEncoder",
		Name:      "No Encoder",
	},
	Provides: []component.Field{component.FieldEncoder},
	New: func(component.Params) (component.Component, error) {
		return passthrough{set: func(fd *component.FitDictionary) { fd.Encoder = identity }}, nil
	},
}

// Encoders holds every encoder, in default-preference order.
var Encoders = newRegistry(component.StageEncoder, OneHotEncoder, NoEncoder)

func hasCategorical(p component.DatasetProperties) bool {
	return len(p.CategoricalColumns) > 0
}

// passthrough publishes the identity transformer through set.
type passthrough struct {
	set func(fd *component.FitDictionary)
}

func (passthrough) Fit(context.Context, *component.FitDictionary) error { return nil }

func (p passthrough) Transform(_ context.Context, fd *component.FitDictionary) error {
	p.set(fd)
	return nil
}

type oneHotEncoder struct {
	logger *slog.Logger
	fitted *oneHot
}

func (e *oneHotEncoder) Fit(_ context.Context, fd *component.FitDictionary) error {
	X, err := imputedTrain(fd)
	if err != nil {
		return err
	}
	cat, err := selectColumns(X, fd.CategoricalColumns)
	if err != nil {
		return err
	}
	if cat == nil {
		return fmt.Errorf("%w: OneHotEncoder needs categorical columns", component.ErrInvalidParam)
	}

	categories := make([][]float64, len(fd.CategoricalColumns))
	for j := range categories {
		if len(fd.Categories) == len(fd.CategoricalColumns) && len(fd.Categories[j]) > 0 {
			categories[j] = slices.Clone(fd.Categories[j])
		} else {
			categories[j] = mat.Col(nil, j, cat)
		}
		slices.Sort(categories[j])
		categories[j] = slices.Compact(categories[j])
	}
	e.fitted = &oneHot{categories: categories}
	e.logger.Debug("one-hot encoder fitted",
		slog.Int("columns", len(categories)),
		slog.Int("width", e.fitted.width()),
	)
	return nil
}

func (e *oneHotEncoder) Transform(_ context.Context, fd *component.FitDictionary) error {
	if e.fitted == nil {
		return fmt.Errorf("OneHotEncoder: %w", component.ErrNotFitted)
	}
	fd.Encoder = e.fitted
	return nil
}

// oneHot is the fitted encoder. categories[j] is sorted and unique.
type oneHot struct {
	categories [][]float64
}

func (o *oneHot) width() int {
	w := 0
	for _, c := range o.categories {
		w += len(c)
	}
	return w
}

func (o *oneHot) Transform(X *mat.Dense) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(o.categories) {
		return nil, fmt.Errorf("%w: encoder got %d columns, want %d", ErrShapeMismatch, c, len(o.categories))
	}
	out := mat.NewDense(r, o.width(), nil)
	for i := range r {
		off := 0
		for j, cats := range o.categories {
			if k, found := slices.BinarySearch(cats, X.At(i, j)); found {
				out.Set(i, off+k, 1)
			}
			off += len(cats)
		}
	}
	return out, nil
}
