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
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is the persisted form of a Dataset. Transforms are not
// persisted.
type Snapshot struct {
	X         Rows    `json:"x"`
	Y         Rows    `json:"y"`
	ValX      Rows    `json:"val_x,omitempty"`
	ValY      Rows    `json:"val_y,omitempty"`
	Seed      uint64  `json:"seed"`
	NoShuffle bool    `json:"no_shuffle"`
	Splits    []Split `json:"splits"`
}

// Rows is a row-major matrix whose JSON form carries missing values.
// NaN and the infinities are written as the strings "NaN", "+Inf" and
// "-Inf"; a null cell decodes as NaN.
type Rows [][]float64

// MarshalJSON implements json.Marshaler.
func (r Rows) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	out := make([][]any, len(r))
	for i, row := range r {
		cells := make([]any, len(row))
		for j, v := range row {
			switch {
			case math.IsNaN(v):
				cells[j] = "NaN"
			case math.IsInf(v, 1):
				cells[j] = "+Inf"
			case math.IsInf(v, -1):
				cells[j] = "-Inf"
			default:
				cells[j] = v
			}
		}
		out[i] = cells
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rows) UnmarshalJSON(data []byte) error {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(Rows, len(raw))
	for i, row := range raw {
		out[i] = make([]float64, len(row))
		for j, cell := range row {
			switch v := cell.(type) {
			case nil:
				out[i][j] = math.NaN()
			case float64:
				out[i][j] = v
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("%w: cell (%d, %d) is %q", ErrInvalidData, i, j, v)
				}
				out[i][j] = f
			default:
				return fmt.Errorf("%w: cell (%d, %d) is not a number", ErrInvalidData, i, j)
			}
		}
	}
	*r = out
	return nil
}

// Snapshot captures the data and cached splits.
func (d *Dataset) Snapshot() Snapshot {
	s := Snapshot{
		X:         rowsOf(d.x),
		Y:         rowsOf(d.y),
		Seed:      d.seed,
		NoShuffle: d.opts.NoShuffle,
		Splits:    d.Splits(),
	}
	if d.val != nil {
		s.ValX = rowsOf(d.val.x)
		s.ValY = rowsOf(d.val.y)
	}
	return s
}

// FromSnapshot rebuilds a dataset with the snapshot's splits. Splits are
// restored, not recomputed.
func FromSnapshot(s Snapshot, train, val Transform) (*Dataset, error) {
	X, err := denseOf(s.X)
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	Y, err := denseOf(s.Y)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	d, err := newBase(X, Y, Options{Seed: s.Seed, NoShuffle: s.NoShuffle, TrainTransform: train, ValTransform: val})
	if err != nil {
		return nil, err
	}
	if len(s.ValX) > 0 {
		vx, err := denseOf(s.ValX)
		if err != nil {
			return nil, fmt.Errorf("val_x: %w", err)
		}
		vy, err := denseOf(s.ValY)
		if err != nil {
			return nil, fmt.Errorf("val_y: %w", err)
		}
		if d.val, err = newBase(vx, vy, Options{NoShuffle: true}); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}
	if len(s.Splits) == 0 {
		return nil, fmt.Errorf("%w: snapshot has no splits", ErrInvalidData)
	}
	n := d.Len()
	for i, sp := range s.Splits {
		for _, idx := range append(append([]int(nil), sp.Train...), sp.Val...) {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("%w: split %d references row %d of %d", ErrInvalidData, i, idx, n)
			}
		}
	}
	d.splits = s.Splits
	return d, nil
}

func rowsOf(m *mat.Dense) Rows {
	r, _ := m.Dims()
	out := make(Rows, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func denseOf(rows Rows) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidData)
	}
	c := len(rows[0])
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		if len(r) != c {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidData, i, len(r), c)
		}
		out.SetRow(i, r)
	}
	return out, nil
}
