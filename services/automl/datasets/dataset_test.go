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
	"encoding/json"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func makeData(n int, label func(i int) float64) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	Y := mat.NewDense(n, 1, nil)
	for i := range n {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(10*i))
		Y.Set(i, 0, label(i))
	}
	return X, Y
}

func alternating(i int) float64 { return float64(i % 2) }

func share(v float64) *float64 { return &v }

func TestNew_ResamplingValidation(t *testing.T) {
	X, Y := makeData(10, alternating)
	vx, vy := makeData(4, alternating)

	tests := []struct {
		name    string
		opts    Options
		wantErr error
		wantMsg string
	}{
		{
			name:    "val share without holdout type",
			opts:    Options{ValShare: share(0.2)},
			wantErr: ErrInvalidResampling,
			wantMsg: "holdout_val_type not specified",
		},
		{
			name:    "val share out of range",
			opts:    Options{HoldoutValType: Holdout, ValShare: share(1.5)},
			wantErr: ErrInvalidResampling,
			wantMsg: "got 1.5",
		},
		{
			name:    "val share with predefined validation set",
			opts:    Options{HoldoutValType: Holdout, ValShare: share(0.2), ValX: vx, ValY: vy},
			wantErr: ErrInvalidResampling,
			wantMsg: "predefined validation set",
		},
		{
			name:    "nothing to validate on",
			opts:    Options{},
			wantErr: ErrInvalidResampling,
			wantMsg: "val_share",
		},
		{
			name:    "unknown holdout type",
			opts:    Options{HoldoutValType: "bootstrap", ValShare: share(0.2)},
			wantErr: ErrNotImplemented,
			wantMsg: "bootstrap",
		},
		{
			name:    "unknown cross validation type",
			opts:    Options{CrossValType: "leave_one_out", NumSplits: 3},
			wantErr: ErrNotImplemented,
			wantMsg: "leave_one_out",
		},
		{
			name:    "too few folds",
			opts:    Options{CrossValType: KFold, NumSplits: 1},
			wantErr: ErrInvalidResampling,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(X, Y, tt.opts)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNew_InvalidData(t *testing.T) {
	X, _ := makeData(10, alternating)
	_, Y := makeData(9, alternating)

	_, err := New(X, Y, Options{HoldoutValType: Holdout, ValShare: share(0.2)})
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = New(nil, Y, Options{})
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestHoldout_PartitionsRows(t *testing.T) {
	X, Y := makeData(10, alternating)
	d, err := New(X, Y, Options{HoldoutValType: Holdout, ValShare: share(0.2)})
	require.NoError(t, err)
	require.Equal(t, 1, d.NumSplits())

	s := d.Splits()[0]
	assert.Len(t, s.Train, 8)
	assert.Len(t, s.Val, 2)

	all := append(slices.Clone(s.Train), s.Val...)
	slices.Sort(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
}

func TestHoldout_NoShuffleKeepsOrder(t *testing.T) {
	X, Y := makeData(5, alternating)
	d, err := New(X, Y, Options{HoldoutValType: Holdout, ValShare: share(0.4), NoShuffle: true})
	require.NoError(t, err)

	s := d.Splits()[0]
	assert.Equal(t, []int{0, 1, 2}, s.Train)
	assert.Equal(t, []int{3, 4}, s.Val)
}

func TestStratifiedHoldout_KeepsProportions(t *testing.T) {
	X, Y := makeData(10, func(i int) float64 {
		if i < 6 {
			return 0
		}
		return 1
	})
	d, err := New(X, Y, Options{HoldoutValType: StratifiedHoldout, ValShare: share(0.5)})
	require.NoError(t, err)

	labels := d.Labels()
	var zeros, ones int
	for _, idx := range d.Splits()[0].Val {
		if labels[idx] == 0 {
			zeros++
		} else {
			ones++
		}
	}
	assert.Equal(t, 3, zeros)
	assert.Equal(t, 2, ones)
}

func TestSplits_ComputedOnceAndDeterministic(t *testing.T) {
	X, Y := makeData(20, alternating)
	opts := Options{CrossValType: KFold, NumSplits: 4, Seed: 7}

	a, err := New(X, Y, opts)
	require.NoError(t, err)
	b, err := New(X, Y, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Splits(), a.Splits())
	assert.Equal(t, a.Splits(), b.Splits())

	c, err := New(X, Y, Options{CrossValType: KFold, NumSplits: 4, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, a.Splits(), c.Splits())
}

func TestKFold_EachRowValidatedOnce(t *testing.T) {
	X, Y := makeData(10, alternating)
	d, err := New(X, Y, Options{CrossValType: KFold, NumSplits: 3})
	require.NoError(t, err)

	splits := d.Splits()
	require.Len(t, splits, 3)
	assert.Len(t, splits[0].Val, 4)
	assert.Len(t, splits[1].Val, 3)
	assert.Len(t, splits[2].Val, 3)

	seen := make(map[int]int)
	for _, s := range splits {
		assert.Len(t, s.Train, 10-len(s.Val))
		for _, idx := range s.Val {
			seen[idx]++
		}
	}
	assert.Len(t, seen, 10)
	for idx, n := range seen {
		assert.Equal(t, 1, n, "row %d", idx)
	}
}

func TestStratifiedKFold_BalancesClasses(t *testing.T) {
	X, Y := makeData(10, alternating)
	d, err := New(X, Y, Options{CrossValType: StratifiedKFold, NumSplits: 5})
	require.NoError(t, err)

	labels := d.Labels()
	for k, s := range d.Splits() {
		require.Len(t, s.Val, 2, "fold %d", k)
		assert.NotEqual(t, labels[s.Val[0]], labels[s.Val[1]], "fold %d", k)
	}
}

func TestGetDatasetForTraining_AppliesTransforms(t *testing.T) {
	X, Y := makeData(10, alternating)
	double := func(x []float64) []float64 {
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = 2 * v
		}
		return out
	}
	d, err := New(X, Y, Options{
		HoldoutValType: Holdout,
		ValShare:       share(0.3),
		TrainTransform: double,
	})
	require.NoError(t, err)

	train, val, err := d.GetDatasetForTraining(0)
	require.NoError(t, err)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, val.Len())

	idx := train.Indices()[0]
	x, y := train.Row(0)
	assert.Equal(t, []float64{2 * float64(idx), 20 * float64(idx)}, x)
	assert.Equal(t, []float64{float64(idx % 2)}, y)

	vidx := val.Indices()[0]
	vx, _ := val.Row(0)
	assert.Equal(t, []float64{float64(vidx), 10 * float64(vidx)}, vx)

	r, c := train.X().Dims()
	assert.Equal(t, 7, r)
	assert.Equal(t, 2, c)

	_, _, err = d.GetDatasetForTraining(1)
	require.ErrorIs(t, err, ErrSplitOutOfRange)
}

func TestPredefinedValidationSet(t *testing.T) {
	X, Y := makeData(10, alternating)
	vx, vy := makeData(4, alternating)
	d, err := New(X, Y, Options{ValX: vx, ValY: vy})
	require.NoError(t, err)
	require.True(t, d.HasValidationSet())

	train, val, err := d.GetDatasetForTraining(0)
	require.NoError(t, err)
	assert.Equal(t, 10, train.Len())
	assert.Equal(t, 4, val.Len())
	assert.Equal(t, []int{0, 1, 2, 3}, val.Indices())
	assert.Same(t, d, train.Base())
	assert.NotSame(t, d, val.Base())
}

func TestRows_JSONKeepsNonFiniteCells(t *testing.T) {
	rows := Rows{{1.5, math.NaN()}, {math.Inf(1), math.Inf(-1)}}
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1.5,"NaN"],["+Inf","-Inf"]]`, string(data))

	var back Rows
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1.5, back[0][0])
	assert.True(t, math.IsNaN(back[0][1]))
	assert.True(t, math.IsInf(back[1][0], 1))
	assert.True(t, math.IsInf(back[1][1], -1))

	require.NoError(t, json.Unmarshal([]byte(`[[null,2]]`), &back))
	assert.True(t, math.IsNaN(back[0][0]))

	require.ErrorIs(t, json.Unmarshal([]byte(`[["x"]]`), &back), ErrInvalidData)
	require.ErrorIs(t, json.Unmarshal([]byte(`[[true]]`), &back), ErrInvalidData)
}

func TestSnapshot_MissingValuesSurviveJSON(t *testing.T) {
	X, Y := makeData(8, alternating)
	X.Set(2, 1, math.NaN())
	d, err := New(X, Y, Options{HoldoutValType: Holdout, ValShare: share(0.25)})
	require.NoError(t, err)

	data, err := json.Marshal(d.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored, err := FromSnapshot(snap, nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(restored.X().At(2, 1)))
	assert.Equal(t, 30.0, restored.X().At(3, 1))
	assert.Equal(t, d.Splits(), restored.Splits())
}

func TestSnapshot_RestoresSplits(t *testing.T) {
	X, Y := makeData(12, alternating)
	d, err := New(X, Y, Options{CrossValType: StratifiedKFold, NumSplits: 3, Seed: 3})
	require.NoError(t, err)

	restored, err := FromSnapshot(d.Snapshot(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, d.Splits(), restored.Splits())
	assert.True(t, mat.Equal(d.X(), restored.X()))

	bad := d.Snapshot()
	bad.Splits[0].Val = append(bad.Splits[0].Val, 99)
	_, err = FromSnapshot(bad, nil, nil)
	require.ErrorIs(t, err, ErrInvalidData)
}
