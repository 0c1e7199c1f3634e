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
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Imputation strategies.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
	StrategyConstantZero = "constant_zero"
)

// SimpleImputer replaces NaN cells with a per-column statistic of the
// training rows.
var SimpleImputer = component.Descriptor{
	ID:    "SimpleImputer",
	Stage: component.StageImputer,
	Properties: component.Properties{
		ShortName: "SimpleImputer",
		Name:      "Simple Imputer",
	},
	Requires: []component.Field{
		component.FieldXTrain,
		component.FieldTrainIndices,
		component.FieldNumericalColumns,
		component.FieldCategoricalColumns,
	},
	Provides:    []component.Field{component.FieldImputer},
	SearchSpace: imputerSpace,
	New:         newSimpleImputer,
}

// imputerSpace only offers a strategy for column groups that exist.
func imputerSpace(props component.DatasetProperties) *configspace.Space {
	cs := configspace.New()
	if len(props.NumericalColumns) > 0 {
		_ = cs.Add(configspace.MustCategorical("numerical_strategy",
			[]string{StrategyMean, StrategyMedian, StrategyMostFrequent, StrategyConstantZero}, StrategyMean))
	}
	if len(props.CategoricalColumns) > 0 {
		_ = cs.Add(configspace.MustCategorical("categorical_strategy",
			[]string{StrategyMostFrequent, StrategyConstantZero}, StrategyMostFrequent))
	}
	return cs
}

type simpleImputer struct {
	numerical   string
	categorical string
	logger      *slog.Logger
	fitted      *columnImputer
}

func newSimpleImputer(p component.Params) (component.Component, error) {
	return &simpleImputer{
		numerical:   p.String("numerical_strategy", StrategyMean),
		categorical: p.String("categorical_strategy", StrategyMostFrequent),
		logger:      p.Log(),
	}, nil
}

func (s *simpleImputer) Fit(_ context.Context, fd *component.FitDictionary) error {
	X, err := trainMatrix(fd)
	if err != nil {
		return err
	}
	_, c := X.Dims()
	fill := make(map[int]float64, len(fd.NumericalColumns)+len(fd.CategoricalColumns))
	for _, group := range []struct {
		cols     []int
		strategy string
	}{
		{fd.NumericalColumns, s.numerical},
		{fd.CategoricalColumns, s.categorical},
	} {
		for _, col := range group.cols {
			if col < 0 || col >= c {
				return fmt.Errorf("%w: column %d outside %d columns", ErrShapeMismatch, col, c)
			}
			v, err := statistic(mat.Col(nil, col, X), group.strategy)
			if err != nil {
				return err
			}
			fill[col] = v
		}
	}
	s.fitted = &columnImputer{width: c, fill: fill}
	s.logger.Debug("imputer fitted",
		slog.String("numerical_strategy", s.numerical),
		slog.String("categorical_strategy", s.categorical),
		slog.Int("columns", len(fill)),
	)
	return nil
}

func (s *simpleImputer) Transform(_ context.Context, fd *component.FitDictionary) error {
	if s.fitted == nil {
		return fmt.Errorf("SimpleImputer: %w", component.ErrNotFitted)
	}
	fd.Imputer = s.fitted
	return nil
}

// columnImputer is the fitted imputer.
type columnImputer struct {
	width int
	fill  map[int]float64
}

func (ci *columnImputer) Transform(X *mat.Dense) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != ci.width {
		return nil, fmt.Errorf("%w: imputer got %d columns, want %d", ErrShapeMismatch, c, ci.width)
	}
	out := mat.DenseCopyOf(X)
	for col, v := range ci.fill {
		for i := range r {
			if math.IsNaN(out.At(i, col)) {
				out.Set(i, col, v)
			}
		}
	}
	return out, nil
}

// statistic computes strategy over the non-NaN values. A column with no
// observed value fills with zero.
func statistic(values []float64, strategy string) (float64, error) {
	observed := slices.DeleteFunc(values, math.IsNaN)
	switch strategy {
	case StrategyConstantZero:
		return 0, nil
	case StrategyMean, StrategyMedian, StrategyMostFrequent:
		if len(observed) == 0 {
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("%w: unknown imputation strategy %q", component.ErrInvalidParam, strategy)
	}
	switch strategy {
	case StrategyMean:
		var sum float64
		for _, v := range observed {
			sum += v
		}
		return sum / float64(len(observed)), nil
	case StrategyMedian:
		slices.Sort(observed)
		n := len(observed)
		if n%2 == 1 {
			return observed[n/2], nil
		}
		return (observed[n/2-1] + observed[n/2]) / 2, nil
	case StrategyMostFrequent:
		counts := make(map[float64]int, len(observed))
		for _, v := range observed {
			counts[v]++
		}
		best, bestCount := math.Inf(1), 0
		for v, n := range counts {
			if n > bestCount || (n == bestCount && v < best) {
				best, bestCount = v, n
			}
		}
		return best, nil
	}
	return 0, nil
}
