// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datasets holds tabular training data and its resampling splits.
//
// Splits are computed once, when the dataset is created, and every
// consumer reads the cached result. Two datasets built from the same data
// and options therefore always agree on their splits.
package datasets

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// DefaultSeed is used when Options.Seed is zero.
const DefaultSeed uint64 = 42

// Transform maps one feature row to another. It must not modify its input.
type Transform func(x []float64) []float64

// Options configures a Dataset.
type Options struct {
	// ValX and ValY are an optional predefined validation set.
	ValX *mat.Dense
	ValY *mat.Dense

	// NoShuffle keeps row order before splitting.
	NoShuffle bool

	// Seed seeds the shuffle permutation.
	Seed uint64

	// HoldoutValType and ValShare select a single holdout split.
	HoldoutValType string
	ValShare       *float64

	// CrossValType and NumSplits select cross-validation. CrossValType
	// takes precedence over the holdout fields.
	CrossValType string
	NumSplits    int

	// TrainTransform and ValTransform are applied per row by the views
	// returned from GetDatasetForTraining.
	TrainTransform Transform
	ValTransform   Transform
}

// Dataset is a feature matrix with targets and cached splits.
//
// Thread Safety:
//
//	Dataset is immutable after New and safe for concurrent reads.
type Dataset struct {
	x, y   *mat.Dense
	val    *Dataset
	seed   uint64
	opts   Options
	splits []Split
}

// New validates the tensors and computes the splits.
//
// Description:
//
//	With CrossValType set, NumSplits folds are created. Otherwise a single
//	holdout split is created from HoldoutValType and ValShare, or, with
//	neither given, the predefined validation set is used.
//
// Inputs:
//
//	X - Feature rows. Must not be empty.
//	Y - Targets, one row per row of X. Label in column 0.
//	opts - Resampling and transform options.
//
// Outputs:
//
//	*Dataset - The dataset with its splits cached.
//	error - ErrInvalidData, ErrInvalidResampling or ErrNotImplemented.
func New(X, Y *mat.Dense, opts Options) (*Dataset, error) {
	d, err := newBase(X, Y, opts)
	if err != nil {
		return nil, err
	}
	if opts.ValX != nil || opts.ValY != nil {
		val, err := newBase(opts.ValX, opts.ValY, Options{NoShuffle: true})
		if err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
		if _, c := val.x.Dims(); c != d.NumFeatures() {
			return nil, fmt.Errorf("%w: validation set has %d features, want %d", ErrInvalidData, c, d.NumFeatures())
		}
		d.val = val
	}

	if opts.CrossValType != "" {
		d.splits, err = d.CreateCrossValSplits(opts.CrossValType, opts.NumSplits)
	} else {
		var s Split
		s, err = d.CreateValSplit(opts.HoldoutValType, opts.ValShare)
		d.splits = []Split{s}
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newBase(X, Y *mat.Dense, opts Options) (*Dataset, error) {
	if X == nil || X.IsEmpty() {
		return nil, fmt.Errorf("%w: empty feature matrix", ErrInvalidData)
	}
	if Y == nil || Y.IsEmpty() {
		return nil, fmt.Errorf("%w: empty target matrix", ErrInvalidData)
	}
	xr, _ := X.Dims()
	yr, _ := Y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("%w: %d feature rows but %d target rows", ErrInvalidData, xr, yr)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Dataset{x: X, y: Y, seed: seed, opts: opts}, nil
}

// Len returns the number of training rows.
func (d *Dataset) Len() int {
	r, _ := d.x.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int {
	_, c := d.x.Dims()
	return c
}

// Row returns copies of the features and targets at index i.
func (d *Dataset) Row(i int) (x, y []float64) {
	return mat.Row(nil, i, d.x), mat.Row(nil, i, d.y)
}

// X returns the feature matrix. Callers must not modify it.
func (d *Dataset) X() *mat.Dense { return d.x }

// Y returns the target matrix. Callers must not modify it.
func (d *Dataset) Y() *mat.Dense { return d.y }

// Labels returns target column 0.
func (d *Dataset) Labels() []float64 {
	return mat.Col(nil, 0, d.y)
}

// HasValidationSet reports whether a predefined validation set was given.
func (d *Dataset) HasValidationSet() bool { return d.val != nil }

// Splits returns the cached splits.
func (d *Dataset) Splits() []Split {
	out := make([]Split, len(d.splits))
	for i, s := range d.splits {
		out[i] = Split{Train: slices.Clone(s.Train), Val: slices.Clone(s.Val)}
	}
	return out
}

// NumSplits returns the number of cached splits.
func (d *Dataset) NumSplits() int { return len(d.splits) }

// indices returns 0..n-1, permuted unless shuffling is off. The
// permutation depends only on the seed.
func (d *Dataset) indices() []int {
	n := d.Len()
	if d.opts.NoShuffle {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	rng := rand.New(rand.NewPCG(d.seed, d.seed^0x9e3779b97f4a7c15))
	return rng.Perm(n)
}

func (d *Dataset) stratify(strategy string) []float64 {
	if IsStratified(strategy) {
		return d.Labels()
	}
	return nil
}

// CreateCrossValSplits computes cross-validation splits.
//
// Outputs:
//
//	[]Split - numSplits splits over the training rows.
//	error - ErrNotImplemented for an unknown strategy, or
//	        ErrInvalidResampling for a bad fold count.
func (d *Dataset) CreateCrossValSplits(crossValType string, numSplits int) ([]Split, error) {
	fn, ok := CrossValidators[crossValType]
	if !ok {
		return nil, fmt.Errorf("%w: the selected cross_val_type %q is not implemented", ErrNotImplemented, crossValType)
	}
	return fn(numSplits, d.indices(), d.stratify(crossValType))
}

// CreateValSplit computes a single train/validation split.
//
// Description:
//
//	With valShare set, the training rows are split by holdoutValType.
//	Without it, every training row trains and the predefined validation
//	set validates; the returned Val is then nil.
//
// Outputs:
//
//	Split - The split.
//	error - ErrInvalidResampling when valShare is set without a holdout
//	        type, conflicts with a predefined validation set or lies outside
//	        [0, 1], or when neither valShare nor a validation set is given.
//	        ErrNotImplemented for an unknown holdout type.
func (d *Dataset) CreateValSplit(holdoutValType string, valShare *float64) (Split, error) {
	if valShare == nil {
		if d.val == nil {
			return Split{}, fmt.Errorf("%w: specify val_share or initialize with a validation dataset", ErrInvalidResampling)
		}
		return Split{Train: d.indices()}, nil
	}
	share := *valShare
	switch {
	case holdoutValType == "":
		return Split{}, fmt.Errorf("%w: val_share specified, but holdout_val_type not specified", ErrInvalidResampling)
	case d.val != nil:
		return Split{}, fmt.Errorf("%w: val_share specified, but the dataset was given a predefined validation set", ErrInvalidResampling)
	case share < 0 || share > 1:
		return Split{}, fmt.Errorf("%w: val_share must be between 0 and 1, got %g", ErrInvalidResampling, share)
	}
	fn, ok := HoldoutValidators[holdoutValType]
	if !ok {
		return Split{}, fmt.Errorf("%w: the specified holdout_val_type %q is not supported", ErrNotImplemented, holdoutValType)
	}
	return fn(share, d.indices(), d.stratify(holdoutValType))
}

// GetDatasetForTraining returns train and validation views of a cached
// split.
//
// Outputs:
//
//	train - Rows of the split's train side, with TrainTransform.
//	val - Rows of the split's validation side, or the whole predefined
//	      validation set, with ValTransform.
//	error - ErrSplitOutOfRange.
func (d *Dataset) GetDatasetForTraining(splitID int) (train, val *Subset, err error) {
	if splitID < 0 || splitID >= len(d.splits) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrSplitOutOfRange, splitID, len(d.splits))
	}
	s := d.splits[splitID]
	train = &Subset{base: d, indices: s.Train, transform: d.opts.TrainTransform}
	if s.Val == nil && d.val != nil {
		all := d.val.indices()
		return train, &Subset{base: d.val, indices: all, transform: d.opts.ValTransform}, nil
	}
	return train, &Subset{base: d, indices: s.Val, transform: d.opts.ValTransform}, nil
}

// Subset is a view of selected dataset rows.
type Subset struct {
	base      *Dataset
	indices   []int
	transform Transform
}

// Len returns the number of rows in the view.
func (s *Subset) Len() int { return len(s.indices) }

// Base returns the dataset the view selects rows from. For the validation
// view of a predefined validation set this is that set, not the training
// dataset.
func (s *Subset) Base() *Dataset { return s.base }

// Indices returns the base dataset rows in view order.
func (s *Subset) Indices() []int { return slices.Clone(s.indices) }

// Row returns the i-th row of the view with the view's transform applied.
func (s *Subset) Row(i int) (x, y []float64) {
	x, y = s.base.Row(s.indices[i])
	if s.transform != nil {
		x = s.transform(x)
	}
	return x, y
}

// X gathers the view's feature rows into a new matrix.
func (s *Subset) X() *mat.Dense {
	if len(s.indices) == 0 {
		return &mat.Dense{}
	}
	rows := make([][]float64, len(s.indices))
	for i := range s.indices {
		rows[i], _ = s.Row(i)
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out
}

// Y gathers the view's target rows into a new matrix.
func (s *Subset) Y() *mat.Dense {
	if len(s.indices) == 0 {
		return &mat.Dense{}
	}
	_, c := s.base.y.Dims()
	out := mat.NewDense(len(s.indices), c, nil)
	for i, idx := range s.indices {
		out.SetRow(i, mat.Row(nil, idx, s.base.y))
	}
	return out
}
