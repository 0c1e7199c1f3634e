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
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Row norms used by Normalizer.
const (
	NormMeanAbs     = "mean_abs"
	NormMeanSquared = "mean_squared"
	NormMax         = "max"
)

var scalerRequires = []component.Field{
	component.FieldXTrain,
	component.FieldTrainIndices,
	component.FieldNumericalColumns,
	component.FieldImputer,
}

var scalerProvides = []component.Field{component.FieldScaler}

// StandardScaler centers numerical columns and scales them to unit
// variance. Constant columns are only centered.
var StandardScaler = component.Descriptor{
	ID:         "StandardScaler",
	Stage:      component.StageScaler,
	Properties: component.Properties{ShortName: "StandardScaler", Name: "Standard Scaler"},
	Requires:   scalerRequires,
	Provides:   scalerProvides,
	New:        fittedScaler("StandardScaler", fitStandard),
}

// MinMaxScaler maps numerical columns onto [0, 1]. It only accepts dense
// input.
var MinMaxScaler = component.Descriptor{
	ID:    "MinMaxScaler",
	Stage: component.StageScaler,
	Properties: component.Properties{
		ShortName: "MinMaxScaler",
		Name:      "MinMax Scaler",
		Input:     []component.DataFormat{component.FormatDense},
	},
	Requires: scalerRequires,
	Provides: scalerProvides,
	New:      fittedScaler("MinMaxScaler", fitMinMax),
}

// Normalizer rescales each row of the numerical columns to unit norm.
var Normalizer = component.Descriptor{
	ID:         "Normalizer",
	Stage:      component.StageScaler,
	Properties: component.Properties{ShortName: "Normalizer", Name: "Normalizer"},
	Requires:   scalerRequires,
	Provides:   scalerProvides,
	SearchSpace: func(component.DatasetProperties) *configspace.Space {
		return configspace.MustNew(configspace.MustCategorical("norm",
			[]string{NormMeanAbs, NormMeanSquared, NormMax}, NormMeanSquared))
	},
	New: func(p component.Params) (component.Component, error) {
		norm := p.String("norm", NormMeanSquared)
		switch norm {
		case NormMeanAbs, NormMeanSquared, NormMax:
		default:
			return nil, fmt.Errorf("%w: unknown norm %q", component.ErrInvalidParam, norm)
		}
		return fittedScaler("Normalizer", func(*mat.Dense) component.Transformer {
			return rowNormalizer{norm: norm}
		})(p)
	},
}

// NoScaler leaves numerical columns as they are.
var NoScaler = component.Descriptor{
	ID:         "NoScaler",
	Stage:      component.StageScaler,
	Properties: component.Properties{ShortName: "NoScaler", Name: "No Scaler"},
	Provides:   scalerProvides,
	New: func(component.Params) (component.Component, error) {
		return passthrough{set: func(fd *component.FitDictionary) { fd.Scaler = identity }}, nil
	},
}

// Scalers holds every scaler, in default-preference order.
var Scalers = newRegistry(component.StageScaler, StandardScaler, MinMaxScaler, Normalizer, NoScaler)

// scaler fits a statistic on the imputed numerical training columns.
type scaler struct {
	name   string
	fit    func(num *mat.Dense) component.Transformer
	logger *slog.Logger
	fitted component.Transformer
}

func fittedScaler(name string, fit func(*mat.Dense) component.Transformer) func(component.Params) (component.Component, error) {
	return func(p component.Params) (component.Component, error) {
		return &scaler{name: name, fit: fit, logger: p.Log()}, nil
	}
}

func (s *scaler) Fit(_ context.Context, fd *component.FitDictionary) error {
	if len(fd.NumericalColumns) == 0 {
		s.fitted = identity
		return nil
	}
	X, err := imputedTrain(fd)
	if err != nil {
		return err
	}
	num, err := selectColumns(X, fd.NumericalColumns)
	if err != nil {
		return err
	}
	s.fitted = s.fit(num)
	s.logger.Debug("scaler fitted",
		slog.String("scaler", s.name),
		slog.Int("columns", len(fd.NumericalColumns)),
	)
	return nil
}

func (s *scaler) Transform(_ context.Context, fd *component.FitDictionary) error {
	if s.fitted == nil {
		return fmt.Errorf("%s: %w", s.name, component.ErrNotFitted)
	}
	fd.Scaler = s.fitted
	return nil
}

// affine maps column j to (x - shift[j]) / scale[j].
type affine struct {
	shift, scale []float64
}

func (a affine) Transform(X *mat.Dense) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(a.shift) {
		return nil, fmt.Errorf("%w: scaler got %d columns, want %d", ErrShapeMismatch, c, len(a.shift))
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - a.shift[j]) / a.scale[j]
	}, X)
	return out, nil
}

func fitStandard(num *mat.Dense) component.Transformer {
	_, c := num.Dims()
	a := affine{shift: make([]float64, c), scale: make([]float64, c)}
	for j := range c {
		col := mat.Col(nil, j, num)
		mean, std := stat.PopMeanStdDev(col, nil)
		a.shift[j] = mean
		a.scale[j] = std
		if std == 0 || math.IsNaN(std) {
			a.scale[j] = 1
		}
	}
	return a
}

func fitMinMax(num *mat.Dense) component.Transformer {
	_, c := num.Dims()
	a := affine{shift: make([]float64, c), scale: make([]float64, c)}
	for j := range c {
		col := mat.Col(nil, j, num)
		lo, hi := col[0], col[0]
		for _, v := range col {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		a.shift[j] = lo
		a.scale[j] = hi - lo
		if a.scale[j] == 0 {
			a.scale[j] = 1
		}
	}
	return a
}

// rowNormalizer divides each row by its norm. Zero rows are kept.
type rowNormalizer struct {
	norm string
}

func (n rowNormalizer) Transform(X *mat.Dense) (*mat.Dense, error) {
	r, c := X.Dims()
	out := mat.DenseCopyOf(X)
	for i := range r {
		row := out.RawRowView(i)
		var d float64
		switch n.norm {
		case NormMeanAbs:
			for _, v := range row {
				d += math.Abs(v)
			}
		case NormMeanSquared:
			for _, v := range row {
				d += v * v
			}
			d = math.Sqrt(d)
		case NormMax:
			for _, v := range row {
				d = math.Max(d, math.Abs(v))
			}
		}
		if d == 0 {
			continue
		}
		for j := range c {
			row[j] /= d
		}
	}
	return out, nil
}
