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

// TabularColumnTransformer composes the fitted imputer, scaler and encoder
// into one transformer over raw feature rows.
//
// Description:
//
//	Output columns are the scaled numerical columns, then the encoded
//	categorical columns, then any remaining columns unchanged. Transform
//	publishes the composite and sets NumFeatures to its output width.
var TabularColumnTransformer = component.Descriptor{
	ID:    "TabularColumnTransformer",
	Stage: component.StageColumnTransformer,
	Properties: component.Properties{
		ShortName: "TabularColumnTransformer",
		Name:      "Tabular Column Transformer",
	},
	Requires: []component.Field{
		component.FieldXTrain,
		component.FieldTrainIndices,
		component.FieldNumericalColumns,
		component.FieldCategoricalColumns,
		component.FieldImputer,
		component.FieldEncoder,
		component.FieldScaler,
	},
	Provides: []component.Field{component.FieldTabularTransformer, component.FieldNumFeatures},
	New: func(p component.Params) (component.Component, error) {
		return &tabularColumnTransformer{logger: p.Log()}, nil
	},
}

type tabularColumnTransformer struct {
	logger *slog.Logger
	fitted *columnTransformer
	width  int
}

func (t *tabularColumnTransformer) Fit(_ context.Context, fd *component.FitDictionary) error {
	_, c := fd.XTrain.Dims()
	ct := &columnTransformer{
		imputer:     fd.Imputer,
		scaler:      fd.Scaler,
		encoder:     fd.Encoder,
		numerical:   slices.Clone(fd.NumericalColumns),
		categorical: slices.Clone(fd.CategoricalColumns),
		inputWidth:  c,
	}
	for col := range c {
		if !slices.Contains(ct.numerical, col) && !slices.Contains(ct.categorical, col) {
			ct.remainder = append(ct.remainder, col)
		}
	}

	train, err := trainMatrix(fd)
	if err != nil {
		return err
	}
	out, err := ct.Transform(train)
	if err != nil {
		return fmt.Errorf("transform training rows: %w", err)
	}
	_, t.width = out.Dims()
	t.fitted = ct
	t.logger.Debug("column transformer fitted",
		slog.Int("numerical", len(ct.numerical)),
		slog.Int("categorical", len(ct.categorical)),
		slog.Int("remainder", len(ct.remainder)),
		slog.Int("output_width", t.width),
	)
	return nil
}

func (t *tabularColumnTransformer) Transform(_ context.Context, fd *component.FitDictionary) error {
	if t.fitted == nil {
		return fmt.Errorf("TabularColumnTransformer: %w", component.ErrNotFitted)
	}
	fd.TabularTransformer = t.fitted
	fd.NumFeatures = t.width
	return nil
}

// columnTransformer is the fitted composite.
type columnTransformer struct {
	imputer     component.Transformer
	scaler      component.Transformer
	encoder     component.Transformer
	numerical   []int
	categorical []int
	remainder   []int
	inputWidth  int
}

func (ct *columnTransformer) Transform(X *mat.Dense) (*mat.Dense, error) {
	if _, c := X.Dims(); c != ct.inputWidth {
		return nil, fmt.Errorf("%w: column transformer got %d columns, want %d", ErrShapeMismatch, c, ct.inputWidth)
	}
	imputed, err := ct.imputer.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}

	var parts []*mat.Dense
	for _, g := range []struct {
		name string
		cols []int
		tr   component.Transformer
	}{
		{"scale", ct.numerical, ct.scaler},
		{"encode", ct.categorical, ct.encoder},
		{"passthrough", ct.remainder, identity},
	} {
		sub, err := selectColumns(imputed, g.cols)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		if sub == nil {
			continue
		}
		out, err := g.tr.Transform(sub)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		parts = append(parts, out)
	}
	return hstack(parts...)
}
