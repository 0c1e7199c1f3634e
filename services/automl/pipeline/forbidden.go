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
	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// assignment fixes candidate cand on dimension dim.
type assignment struct {
	dim, cand int
}

// compileForbiddens turns the zero cells of the matrix into forbidden
// clauses over selector values.
//
// Description:
//
//	Visits subsets of Choice dimensions by increasing size, starting at
//	two: a single dead candidate is already pruned from its selector. For
//	every assignment of live candidates to a subset, the projected slice
//	is the set of cells that agree with the assignment and hold live
//	candidates elsewhere. When that slice is all zero the assignment is
//	emitted as a ForbiddenAnd, unless an emitted clause over a subset of
//	its pairs already rules it out. Every zero cell over live candidates
//	is therefore covered, and only by minimal clauses.
//
// Outputs:
//
//	[]configspace.Forbidden - Clauses in deterministic order.
func compileForbiddens(c *compatibility) []configspace.Forbidden {
	n := len(c.dims)
	if n < 2 || c.matrix.Sum() == c.matrix.Size() {
		return nil
	}

	var emitted [][]assignment
	var out []configspace.Forbidden
	for size := 2; size <= n; size++ {
		forEachSubset(n, size, func(subset []int) {
			forEachAssignment(c, subset, func(as []assignment) {
				if coveredBy(emitted, as) || !sliceAllZero(c, as) {
					return
				}
				emitted = append(emitted, append([]assignment(nil), as...))
				out = append(out, c.clause(as))
			})
		})
	}
	return out
}

// clause builds the ForbiddenAnd for an assignment.
func (c *compatibility) clause(as []assignment) configspace.Forbidden {
	eqs := make([]*configspace.ForbiddenEqualsClause, len(as))
	for i, a := range as {
		d := c.dims[a.dim]
		eqs[i] = configspace.ForbiddenEquals(
			configspace.Join(d.step, choice.Selector),
			string(d.candidates[a.cand].ID),
		)
	}
	return configspace.ForbiddenAnd(eqs...)
}

// forEachSubset calls fn with every ascending k-subset of [0, n).
func forEachSubset(n, k int, fn func([]int)) {
	subset := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			fn(subset)
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			subset[depth] = i
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

// forEachAssignment calls fn with every assignment of live candidates to
// the dimensions in subset, in lexicographic order.
func forEachAssignment(c *compatibility, subset []int, fn func([]assignment)) {
	as := make([]assignment, len(subset))
	var rec func(depth int)
	rec = func(depth int) {
		if depth == len(subset) {
			fn(as)
			return
		}
		dim := subset[depth]
		for j, ok := range c.live[dim] {
			if !ok {
				continue
			}
			as[depth] = assignment{dim: dim, cand: j}
			rec(depth + 1)
		}
	}
	rec(0)
}

// sliceAllZero reports whether every cell agreeing with as, over live
// candidates on the remaining dimensions, is zero.
func sliceAllZero(c *compatibility, as []assignment) bool {
	fixed := make(map[int]int, len(as))
	for _, a := range as {
		fixed[a.dim] = a.cand
	}
	idx := make([]int, len(c.dims))
	for off, v := range c.matrix.cells {
		if v == 0 {
			continue
		}
		c.matrix.coords(off, idx)
		match := true
		for k, j := range idx {
			if want, ok := fixed[k]; ok {
				if j != want {
					match = false
					break
				}
			} else if !c.live[k][j] {
				match = false
				break
			}
		}
		if match {
			return false
		}
	}
	return true
}

// coveredBy reports whether some emitted clause is a subset of as.
func coveredBy(emitted [][]assignment, as []assignment) bool {
	for _, e := range emitted {
		if isSubset(e, as) {
			return true
		}
	}
	return false
}

func isSubset(small, big []assignment) bool {
	for _, s := range small {
		found := false
		for _, b := range big {
			if s == b {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// legalDefaults picks selector defaults for a legal cell.
//
// Description:
//
//	preferred holds the default candidate index per dimension. If that
//	cell is legal it is returned unchanged. Otherwise the legal cell that
//	agrees with the most preferred defaults is returned, the first one in
//	row-major order on ties.
func legalDefaults(c *compatibility, preferred []int) []int {
	if len(preferred) == 0 || c.matrix.At(preferred...) == 1 {
		return preferred
	}
	best, bestScore := -1, -1
	idx := make([]int, len(preferred))
	for off, v := range c.matrix.cells {
		if v == 0 {
			continue
		}
		c.matrix.coords(off, idx)
		score := 0
		for k, j := range idx {
			if j == preferred[k] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = off, score
		}
	}
	out := make([]int, len(preferred))
	c.matrix.coords(best, out)
	return out
}
