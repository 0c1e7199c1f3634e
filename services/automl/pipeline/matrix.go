// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

// Matrix is an N-dimensional binary matrix stored row-major.
//
// Description:
//
//	One dimension per Choice step, sized by that step's candidate count.
//	A cell is 1 when the combination of candidates it indexes is legal for
//	the dataset. With no dimensions the matrix has a single cell.
type Matrix struct {
	dims    []int
	strides []int
	cells   []uint8
}

func newMatrix(dims []int) *Matrix {
	strides := make([]int, len(dims))
	size := 1
	for k := len(dims) - 1; k >= 0; k-- {
		strides[k] = size
		size *= dims[k]
	}
	return &Matrix{dims: slices.Clone(dims), strides: strides, cells: make([]uint8, size)}
}

// Dims returns the size of each dimension.
func (m *Matrix) Dims() []int { return slices.Clone(m.dims) }

// Size returns the number of cells.
func (m *Matrix) Size() int { return len(m.cells) }

// Sum returns the number of legal cells.
func (m *Matrix) Sum() int {
	n := 0
	for _, c := range m.cells {
		n += int(c)
	}
	return n
}

// At returns the cell at idx. It panics if idx is out of range.
func (m *Matrix) At(idx ...int) uint8 {
	return m.cells[m.offset(idx)]
}

func (m *Matrix) offset(idx []int) int {
	if len(idx) != len(m.dims) {
		panic(fmt.Sprintf("pipeline: matrix index has %d coordinates, want %d", len(idx), len(m.dims)))
	}
	off := 0
	for k, i := range idx {
		if i < 0 || i >= m.dims[k] {
			panic(fmt.Sprintf("pipeline: matrix index %d out of range [0, %d)", i, m.dims[k]))
		}
		off += i * m.strides[k]
	}
	return off
}

// coords writes the coordinates of flat offset off into idx.
func (m *Matrix) coords(off int, idx []int) {
	for k := range m.dims {
		idx[k] = off / m.strides[k]
		off %= m.strides[k]
	}
}

// choiceDim is one Choice step seen as a matrix dimension.
type choiceDim struct {
	step       string
	node       *choice.Choice
	candidates []component.Descriptor
}

// compatibility is the matrix builder's output.
type compatibility struct {
	matrix *Matrix
	dims   []choiceDim

	// live[k][j] is true when candidate j of dimension k appears in at
	// least one legal cell.
	live [][]bool
}

// activeIDs returns the live candidates of dimension k in candidate order.
func (c *compatibility) activeIDs(k int) []component.ID {
	var ids []component.ID
	for j, d := range c.dims[k].candidates {
		if c.live[k][j] {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// validateIncludeExclude checks that every include/exclude key names a
// Choice step.
func validateIncludeExclude(steps []Step, include, exclude map[string][]component.ID) error {
	kinds := make(map[string]Node, len(steps))
	for _, s := range steps {
		kinds[s.Name] = s.Node
	}
	for _, m := range []map[string][]component.ID{include, exclude} {
		for _, key := range sortedStepKeys(m) {
			node, ok := kinds[key]
			if !ok {
				return fmt.Errorf("%w: %q is not a step of this pipeline", component.ErrInvalidIncludeExclude, key)
			}
			if _, ok := node.(*choice.Choice); !ok {
				return fmt.Errorf("%w: step %q has no component choice", component.ErrInvalidIncludeExclude, key)
			}
		}
	}
	return nil
}

// buildCompatibility computes the compatibility matrix over every Choice
// step.
//
// Description:
//
//	For each cell of the cross product of Choice candidates, walks all
//	steps in order, threading the data format from the dataset. Each
//	component on the path must be applicable to the dataset and accept the
//	incoming format; its output format feeds the next step. Fixed steps
//	take part in the walk but are not dimensions. Nested pipelines pass
//	the format through.
//
// Outputs:
//
//	*compatibility - The matrix, its dimensions and live candidates.
//	error - ErrInvalidIncludeExclude, ErrUnsupportedStep or
//	        ErrInfeasiblePipeline.
func buildCompatibility(steps []Step, props component.DatasetProperties, include, exclude map[string][]component.ID) (*compatibility, error) {
	if err := validateIncludeExclude(steps, include, exclude); err != nil {
		return nil, err
	}

	// plan[i] is the fixed descriptor of step i, the dimension index of a
	// Choice step, or a pass-through.
	type planned struct {
		fixed *component.Descriptor
		dim   int
	}
	plan := make([]planned, len(steps))
	var dims []choiceDim
	for i, s := range steps {
		switch node := s.Node.(type) {
		case *component.Fixed:
			d := node.Descriptor()
			plan[i] = planned{fixed: &d, dim: -1}
		case *choice.Choice:
			cands, err := node.AvailableComponents(props, include[s.Name], exclude[s.Name])
			if err != nil {
				return nil, &StepError{Step: s.Name, Err: err}
			}
			plan[i] = planned{dim: len(dims)}
			dims = append(dims, choiceDim{step: s.Name, node: node, candidates: cands})
		case *Pipeline:
			plan[i] = planned{dim: -1}
		default:
			return nil, fmt.Errorf("%w: step %q is %T", ErrUnsupportedStep, s.Name, s.Node)
		}
	}

	sizes := make([]int, len(dims))
	for k, d := range dims {
		sizes[k] = len(d.candidates)
	}
	m := newMatrix(sizes)
	idx := make([]int, len(dims))
	for off := range m.cells {
		m.coords(off, idx)
		format := props.InputFormat()
		legal := true
		for _, p := range plan {
			var d *component.Descriptor
			switch {
			case p.fixed != nil:
				d = p.fixed
			case p.dim >= 0:
				d = &dims[p.dim].candidates[idx[p.dim]]
			default:
				continue
			}
			if !d.Applicable(props) || !d.Properties.Accepts(format) {
				legal = false
				break
			}
			format = d.Properties.OutputFormat(format)
		}
		if legal {
			m.cells[off] = 1
		}
	}

	if m.Sum() == 0 {
		return nil, fmt.Errorf("%w for dataset properties and include/exclude", ErrInfeasiblePipeline)
	}

	live := make([][]bool, len(dims))
	for k := range dims {
		live[k] = make([]bool, sizes[k])
	}
	for off, c := range m.cells {
		if c == 0 {
			continue
		}
		m.coords(off, idx)
		for k, j := range idx {
			live[k][j] = true
		}
	}
	return &compatibility{matrix: m, dims: dims, live: live}, nil
}

func sortedStepKeys(m map[string][]component.ID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
