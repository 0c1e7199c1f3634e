// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package preprocessing provides the tabular preprocessing components:
// the imputer, the encoder and scaler choices, and the column transformer
// that composes them.
//
// Each component fits on the training rows of the fit dictionary and
// publishes a fitted component.Transformer. Encoders see only the
// categorical columns and scalers only the numerical ones, both after
// imputation.
package preprocessing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

// ErrShapeMismatch indicates input whose width differs from the fitted width.
var ErrShapeMismatch = errors.New("input shape does not match fitted shape")

func newRegistry(stage component.Stage, ds ...component.Descriptor) *component.Registry {
	r := component.NewRegistry(stage)
	r.MustRegister(ds...)
	return r
}

// trainMatrix gathers the training rows of X_train.
func trainMatrix(fd *component.FitDictionary) (*mat.Dense, error) {
	if len(fd.TrainIndices) == 0 {
		return nil, fmt.Errorf("%w: no training rows", ErrShapeMismatch)
	}
	return gatherRows(fd.XTrain, fd.TrainIndices)
}

// imputedTrain gathers the training rows and runs them through the fitted
// imputer.
func imputedTrain(fd *component.FitDictionary) (*mat.Dense, error) {
	X, err := trainMatrix(fd)
	if err != nil {
		return nil, err
	}
	if fd.Imputer == nil {
		return X, nil
	}
	return fd.Imputer.Transform(X)
}

func gatherRows(X *mat.Dense, rows []int) (*mat.Dense, error) {
	r, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, idx := range rows {
		if idx < 0 || idx >= r {
			return nil, fmt.Errorf("%w: row %d outside %d rows", ErrShapeMismatch, idx, r)
		}
		out.SetRow(i, X.RawRowView(idx))
	}
	return out, nil
}

// selectColumns copies cols of X. It returns nil when cols is empty.
func selectColumns(X *mat.Dense, cols []int) (*mat.Dense, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	r, c := X.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for j, col := range cols {
		if col < 0 || col >= c {
			return nil, fmt.Errorf("%w: column %d outside %d columns", ErrShapeMismatch, col, c)
		}
		for i := range r {
			out.Set(i, j, X.At(i, col))
		}
	}
	return out, nil
}

// hstack concatenates matrices column-wise, skipping nil parts.
func hstack(parts ...*mat.Dense) (*mat.Dense, error) {
	rows, width := -1, 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		r, c := p.Dims()
		if rows >= 0 && r != rows {
			return nil, fmt.Errorf("%w: part has %d rows, want %d", ErrShapeMismatch, r, rows)
		}
		rows = r
		width += c
	}
	if rows < 0 || width == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShapeMismatch)
	}
	out := mat.NewDense(rows, width, nil)
	off := 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		_, c := p.Dims()
		out.Slice(0, rows, off, off+c).(*mat.Dense).Copy(p)
		off += c
	}
	return out, nil
}

var identity = component.TransformerFunc(func(X *mat.Dense) (*mat.Dense, error) { return X, nil })
