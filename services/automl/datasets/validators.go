// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datasets

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Resampling strategy names.
const (
	Holdout           = "holdout"
	StratifiedHoldout = "stratified_holdout"
	KFold             = "k_fold"
	StratifiedKFold   = "stratified_k_fold"
)

// Split holds train and validation row indices into the training tensors.
type Split struct {
	Train []int `json:"train"`
	Val   []int `json:"val"`
}

// HoldoutFunc splits indices once. stratify is nil for unstratified
// strategies.
type HoldoutFunc func(valShare float64, indices []int, stratify []float64) (Split, error)

// CrossValFunc splits indices into numSplits folds.
type CrossValFunc func(numSplits int, indices []int, stratify []float64) ([]Split, error)

// HoldoutValidators maps holdout strategy names to their split functions.
var HoldoutValidators = map[string]HoldoutFunc{
	Holdout:           holdoutSplit,
	StratifiedHoldout: stratifiedHoldoutSplit,
}

// CrossValidators maps cross-validation strategy names to their split
// functions.
var CrossValidators = map[string]CrossValFunc{
	KFold:           kFoldSplit,
	StratifiedKFold: stratifiedKFoldSplit,
}

// IsStratified reports whether a strategy needs the targets.
func IsStratified(strategy string) bool {
	return strings.HasPrefix(strategy, "stratified")
}

// valCount is ceil(valShare*n), tolerating rounding noise in the product.
func valCount(valShare float64, n int) int {
	return int(math.Ceil(valShare*float64(n) - 1e-9))
}

// holdoutSplit keeps the leading rows for training and the trailing
// ceil(valShare*n) rows for validation.
func holdoutSplit(valShare float64, indices []int, _ []float64) (Split, error) {
	n := len(indices)
	nVal := valCount(valShare, n)
	if nVal == 0 || nVal >= n {
		return Split{}, fmt.Errorf("%w: val_share %g leaves an empty side for %d rows",
			ErrInvalidResampling, valShare, n)
	}
	return Split{
		Train: slices.Clone(indices[:n-nVal]),
		Val:   slices.Clone(indices[n-nVal:]),
	}, nil
}

// stratifiedHoldoutSplit applies the holdout share within each class so
// the validation rows keep the class proportions.
func stratifiedHoldoutSplit(valShare float64, indices []int, stratify []float64) (Split, error) {
	groups, err := groupByLabel(indices, stratify)
	if err != nil {
		return Split{}, err
	}
	inVal := make(map[int]bool)
	for _, g := range groups {
		nVal := int(math.Round(valShare * float64(len(g))))
		for _, idx := range g[len(g)-nVal:] {
			inVal[idx] = true
		}
	}
	var s Split
	for _, idx := range indices {
		if inVal[idx] {
			s.Val = append(s.Val, idx)
		} else {
			s.Train = append(s.Train, idx)
		}
	}
	if len(s.Train) == 0 || len(s.Val) == 0 {
		return Split{}, fmt.Errorf("%w: val_share %g leaves an empty side for %d rows",
			ErrInvalidResampling, valShare, len(indices))
	}
	return s, nil
}

// kFoldSplit cuts indices into numSplits contiguous folds. The first
// n%numSplits folds hold one extra row.
func kFoldSplit(numSplits int, indices []int, _ []float64) ([]Split, error) {
	if err := checkFolds(numSplits, len(indices)); err != nil {
		return nil, err
	}
	n := len(indices)
	fold := make([]int, n)
	pos := 0
	for k := range numSplits {
		size := n / numSplits
		if k < n%numSplits {
			size++
		}
		for range size {
			fold[pos] = k
			pos++
		}
	}
	return foldsToSplits(numSplits, indices, fold), nil
}

// stratifiedKFoldSplit deals each class round-robin across folds.
func stratifiedKFoldSplit(numSplits int, indices []int, stratify []float64) ([]Split, error) {
	if err := checkFolds(numSplits, len(indices)); err != nil {
		return nil, err
	}
	groups, err := groupByLabel(indices, stratify)
	if err != nil {
		return nil, err
	}
	foldOf := make(map[int]int, len(indices))
	for _, g := range groups {
		for i, idx := range g {
			foldOf[idx] = i % numSplits
		}
	}
	fold := make([]int, len(indices))
	for i, idx := range indices {
		fold[i] = foldOf[idx]
	}
	return foldsToSplits(numSplits, indices, fold), nil
}

func checkFolds(numSplits, n int) error {
	if numSplits < 2 {
		return fmt.Errorf("%w: num_splits must be at least 2, got %d", ErrInvalidResampling, numSplits)
	}
	if numSplits > n {
		return fmt.Errorf("%w: num_splits %d exceeds %d rows", ErrInvalidResampling, numSplits, n)
	}
	return nil
}

func foldsToSplits(numSplits int, indices, fold []int) []Split {
	splits := make([]Split, numSplits)
	for k := range splits {
		for i, idx := range indices {
			if fold[i] == k {
				splits[k].Val = append(splits[k].Val, idx)
			} else {
				splits[k].Train = append(splits[k].Train, idx)
			}
		}
	}
	return splits
}

// groupByLabel groups indices by stratify[idx], ordered by label.
func groupByLabel(indices []int, stratify []float64) ([][]int, error) {
	if stratify == nil {
		return nil, fmt.Errorf("%w: stratified resampling needs targets", ErrInvalidResampling)
	}
	byLabel := make(map[float64][]int)
	for _, idx := range indices {
		if idx < 0 || idx >= len(stratify) {
			return nil, fmt.Errorf("%w: index %d outside %d targets", ErrInvalidData, idx, len(stratify))
		}
		l := stratify[idx]
		byLabel[l] = append(byLabel[l], idx)
	}
	labels := make([]float64, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	groups := make([][]int, len(labels))
	for i, l := range labels {
		groups[i] = byLabel[l]
	}
	return groups, nil
}
