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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Table is a parsed CSV file.
type Table struct {
	X *mat.Dense
	Y *mat.Dense

	// Columns names the feature columns, then the target.
	Columns []string

	// Categorical lists feature columns that held non-numeric cells.
	Categorical []int

	// Levels maps a column to its string levels, indexed by code. Key -1
	// is the target.
	Levels map[int][]string
}

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Header bool

	// TargetColumn indexes the target. Negative values count from the end.
	TargetColumn int
}

// missing cell spellings, compared case-insensitively.
var missing = []string{"", "na", "nan", "null", "?"}

// ReadCSV parses a CSV file into features and a single target column.
//
// Description:
//
//	Cells that parse as floats are kept as is and missing cells become NaN.
//	A column with any other text is treated as categorical: its distinct
//	strings are sorted and replaced by their index. The target column is
//	coded the same way, so string class labels work.
//
// Outputs:
//
//	*Table - Parsed data.
//	error - ErrInvalidData for ragged, empty or single-column input.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		if errors.Is(err, csv.ErrFieldCount) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	var header []string
	if opts.Header && len(records) > 0 {
		header, records = records[0], records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", ErrInvalidData)
	}
	width := len(records[0])
	if width < 2 {
		return nil, fmt.Errorf("%w: csv needs a feature and a target column, got %d columns", ErrInvalidData, width)
	}
	target := opts.TargetColumn
	if target < 0 {
		target += width
	}
	if target < 0 || target >= width {
		return nil, fmt.Errorf("%w: target column %d outside %d columns", ErrInvalidData, opts.TargetColumn, width)
	}
	if header == nil {
		header = make([]string, width)
		for j := range header {
			header[j] = "col" + strconv.Itoa(j)
		}
	}

	rows := len(records)
	t := &Table{
		X:      mat.NewDense(rows, width-1, nil),
		Y:      mat.NewDense(rows, 1, nil),
		Levels: map[int][]string{},
	}
	feature := 0
	for j := range width {
		values, levels := parseColumn(records, j)
		if j == target {
			t.Y.SetCol(0, values)
			if levels != nil {
				t.Levels[-1] = levels
			}
			continue
		}
		t.X.SetCol(feature, values)
		t.Columns = append(t.Columns, header[j])
		if levels != nil {
			t.Levels[feature] = levels
			t.Categorical = append(t.Categorical, feature)
		}
		feature++
	}
	t.Columns = append(t.Columns, header[target])
	return t, nil
}

// parseColumn returns the column as floats, plus its levels when any
// present cell is not numeric.
func parseColumn(records [][]string, j int) ([]float64, []string) {
	values := make([]float64, len(records))
	numeric := true
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if isMissing(cell) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		values[i] = v
	}
	if numeric {
		return values, nil
	}

	var levels []string
	for _, rec := range records {
		if cell := strings.TrimSpace(rec[j]); !isMissing(cell) {
			levels = append(levels, cell)
		}
	}
	slices.Sort(levels)
	levels = slices.Compact(levels)
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if isMissing(cell) {
			values[i] = math.NaN()
			continue
		}
		code, _ := slices.BinarySearch(levels, cell)
		values[i] = float64(code)
	}
	return values, levels
}

func isMissing(cell string) bool {
	return slices.Contains(missing, strings.ToLower(cell))
}
