// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package configspace

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pmezard/go-difflib/difflib"
)

// maxSampleAttempts bounds rejection sampling against forbidden clauses.
const maxSampleAttempts = 1000

// Parent names a selector value that activates a nested sub-space.
type Parent struct {
	Name  string
	Value Value
}

// Space is a hierarchical hyperparameter search space.
//
// Description:
//
//	Holds hyperparameters keyed by fully-qualified name, conditions keyed
//	by child, and forbidden clauses. Insertion order is kept for iteration
//	but every rendering is sorted.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Safe for concurrent reads.
type Space struct {
	hps        map[string]Hyperparameter
	order      []string
	conditions map[string][]Condition
	forbiddens []Forbidden
}

// New creates an empty space.
func New() *Space {
	return &Space{
		hps:        make(map[string]Hyperparameter),
		conditions: make(map[string][]Condition),
	}
}

// MustNew creates a space holding hps. It panics on duplicate names and is
// meant for component search spaces declared in code.
func MustNew(hps ...Hyperparameter) *Space {
	s := New()
	if err := s.Add(hps...); err != nil {
		panic(err)
	}
	return s
}

// Add inserts hyperparameters. Names must be unique within the space.
func (s *Space) Add(hps ...Hyperparameter) error {
	for _, hp := range hps {
		if hp == nil {
			return fmt.Errorf("%w: nil hyperparameter", ErrInvalidHyperparameter)
		}
		if _, exists := s.hps[hp.Name()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateHyperparameter, hp.Name())
		}
		s.hps[hp.Name()] = hp
		s.order = append(s.order, hp.Name())
	}
	return nil
}

// AddCondition attaches a condition. Both ends must exist, the parent
// values must be legal for the parent, and the condition must not close a
// cycle.
func (s *Space) AddCondition(c Condition) error {
	parent, ok := s.hps[c.parent]
	if !ok {
		return fmt.Errorf("%w: unknown parent %q", ErrInvalidCondition, c.parent)
	}
	if _, ok := s.hps[c.child]; !ok {
		return fmt.Errorf("%w: unknown child %q", ErrInvalidCondition, c.child)
	}
	if c.child == c.parent {
		return fmt.Errorf("%w: %q conditioned on itself", ErrInvalidCondition, c.child)
	}
	if len(c.values) == 0 {
		return fmt.Errorf("%w: %q has no activating values", ErrInvalidCondition, c.child)
	}
	normalized := make([]Value, len(c.values))
	for i, v := range c.values {
		nv, err := parent.Normalize(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCondition, c, err)
		}
		normalized[i] = nv
	}
	c.values = normalized
	if s.isAncestor(c.child, c.parent) {
		return fmt.Errorf("%w: %s would create a cycle", ErrInvalidCondition, c)
	}
	s.conditions[c.child] = append(s.conditions[c.child], c)
	return nil
}

// isAncestor reports whether candidate is reachable from name by walking
// parent links.
func (s *Space) isAncestor(candidate, name string) bool {
	seen := map[string]bool{}
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == candidate {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for _, c := range s.conditions[n] {
			stack = append(stack, c.parent)
		}
	}
	return false
}

// AddForbidden attaches forbidden clauses. Every referenced name must exist
// and every value must be legal.
func (s *Space) AddForbidden(fs ...Forbidden) error {
	for _, f := range fs {
		if f == nil {
			return fmt.Errorf("%w: nil clause", ErrInvalidForbidden)
		}
		if and, ok := f.(*ForbiddenAndClause); ok && len(and.Clauses) == 0 {
			return fmt.Errorf("%w: empty conjunction", ErrInvalidForbidden)
		}
		if err := s.checkForbidden(f); err != nil {
			return err
		}
		s.forbiddens = append(s.forbiddens, f)
	}
	return nil
}

func (s *Space) checkForbidden(f Forbidden) error {
	var eqs []*ForbiddenEqualsClause
	switch c := f.(type) {
	case *ForbiddenEqualsClause:
		eqs = []*ForbiddenEqualsClause{c}
	case *ForbiddenAndClause:
		eqs = c.Clauses
	default:
		return fmt.Errorf("%w: unsupported clause %T", ErrInvalidForbidden, f)
	}
	for _, eq := range eqs {
		hp, ok := s.hps[eq.Name]
		if !ok {
			return fmt.Errorf("%w: unknown hyperparameter %q", ErrInvalidForbidden, eq.Name)
		}
		if !Legal(hp, eq.Value) {
			return fmt.Errorf("%w: %s is not a legal value", ErrInvalidForbidden, eq)
		}
	}
	return nil
}

// AddSpace merges sub into s under "<prefix>:". When parent is non-nil the
// root hyperparameters of sub, those without conditions of their own, are
// activated only when parent.Name == parent.Value. An empty prefix merges
// names unchanged.
func (s *Space) AddSpace(prefix string, sub *Space, parent *Parent) error {
	if sub == nil {
		return nil
	}
	for _, name := range sub.order {
		if err := s.Add(sub.hps[name].renamed(Join(prefix, name))); err != nil {
			return err
		}
	}
	for _, name := range sub.order {
		for _, c := range sub.conditions[name] {
			if err := s.AddCondition(c.prefixed(prefix)); err != nil {
				return err
			}
		}
	}
	if parent != nil {
		for _, name := range sub.order {
			if len(sub.conditions[name]) > 0 {
				continue
			}
			if err := s.AddCondition(EqualsCondition(Join(prefix, name), parent.Name, parent.Value)); err != nil {
				return err
			}
		}
	}
	for _, f := range sub.forbiddens {
		if err := s.AddForbidden(f.prefixed(prefix)); err != nil {
			return err
		}
	}
	return nil
}

// SetDefault replaces the default of a categorical or numeric hyperparameter.
func (s *Space) SetDefault(name string, v Value) error {
	hp, ok := s.hps[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHyperparameter, name)
	}
	nv, err := hp.Normalize(v)
	if err != nil {
		return err
	}
	var replaced Hyperparameter
	switch h := hp.(type) {
	case *Categorical:
		cp := *h
		cp.def = nv.(string)
		replaced = &cp
	case *UniformFloat:
		cp := *h
		cp.def = nv.(float64)
		replaced = &cp
	case *UniformInteger:
		cp := *h
		cp.def = nv.(int)
		replaced = &cp
	case *Constant:
		return nil
	default:
		return fmt.Errorf("%w: cannot set default on %T", ErrInvalidHyperparameter, hp)
	}
	s.hps[name] = replaced
	return nil
}

// Get returns the named hyperparameter.
func (s *Space) Get(name string) (Hyperparameter, bool) {
	hp, ok := s.hps[name]
	return hp, ok
}

// Len returns the number of hyperparameters.
func (s *Space) Len() int { return len(s.hps) }

// Names returns hyperparameter names sorted.
func (s *Space) Names() []string {
	names := slices.Clone(s.order)
	slices.Sort(names)
	return names
}

// Hyperparameters returns hyperparameters sorted by name.
func (s *Space) Hyperparameters() []Hyperparameter {
	names := s.Names()
	out := make([]Hyperparameter, len(names))
	for i, n := range names {
		out[i] = s.hps[n]
	}
	return out
}

// Conditions returns all conditions sorted by their rendering.
func (s *Space) Conditions() []Condition {
	var out []Condition
	for _, name := range s.order {
		out = append(out, s.conditions[name]...)
	}
	slices.SortFunc(out, func(a, b Condition) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// Forbiddens returns all forbidden clauses sorted by their rendering.
func (s *Space) Forbiddens() []Forbidden {
	out := slices.Clone(s.forbiddens)
	slices.SortFunc(out, func(a, b Forbidden) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// topoOrder returns names with every parent ahead of its children. Ties are
// broken by name.
func (s *Space) topoOrder() []string {
	indeg := make(map[string]int, len(s.hps))
	children := make(map[string][]string)
	for _, name := range s.order {
		parents := map[string]bool{}
		for _, c := range s.conditions[name] {
			parents[c.parent] = true
		}
		indeg[name] = len(parents)
		for p := range parents {
			children[p] = append(children[p], name)
		}
	}
	var ready []string
	for _, name := range s.order {
		if indeg[name] == 0 {
			ready = append(ready, name)
		}
	}
	slices.Sort(ready)

	out := make([]string, 0, len(s.hps))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		var next []string
		for _, c := range children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				next = append(next, c)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			slices.Sort(ready)
		}
	}
	return out
}

// active reports whether name is active under the partial assignment.
// Parents must already have been decided, which topoOrder guarantees.
func (s *Space) active(name string, values map[string]Value) bool {
	for _, c := range s.conditions[name] {
		pv, ok := values[c.parent]
		if !ok || !c.Satisfied(pv) {
			return false
		}
	}
	return true
}

// IsActive reports whether name is active under a complete assignment.
func (s *Space) IsActive(name string, values map[string]Value) bool {
	if _, ok := s.hps[name]; !ok {
		return false
	}
	return s.active(name, values)
}

func (s *Space) forbidden(values map[string]Value) Forbidden {
	for _, f := range s.forbiddens {
		if f.Matches(values) {
			return f
		}
	}
	return nil
}

// DefaultConfiguration returns the configuration made of every active
// hyperparameter's default.
//
// Outputs:
//
//	*Configuration - The default configuration.
//	error - ErrForbiddenConfiguration when the defaults hit a forbidden clause.
func (s *Space) DefaultConfiguration() (*Configuration, error) {
	values := make(map[string]Value, len(s.hps))
	for _, name := range s.topoOrder() {
		if s.active(name, values) {
			values[name] = s.hps[name].Default()
		}
	}
	if f := s.forbidden(values); f != nil {
		return nil, fmt.Errorf("%w: default configuration matches %s", ErrForbiddenConfiguration, f)
	}
	return &Configuration{space: s, values: values}, nil
}

// Sample draws a random legal configuration.
//
// Description:
//
//	Walks hyperparameters parents-first, sampling each active one. Draws
//	that hit a forbidden clause are rejected and redrawn, up to a fixed
//	number of attempts.
//
// Inputs:
//
//	rng - Random source. Must not be nil.
//
// Outputs:
//
//	*Configuration - The sampled configuration.
//	error - ErrNilRand, or ErrSamplingExhausted if no legal draw was found.
func (s *Space) Sample(rng *rand.Rand) (*Configuration, error) {
	if rng == nil {
		return nil, ErrNilRand
	}
	order := s.topoOrder()
	for range maxSampleAttempts {
		values := make(map[string]Value, len(s.hps))
		for _, name := range order {
			if s.active(name, values) {
				values[name] = s.hps[name].Sample(rng)
			}
		}
		if s.forbidden(values) == nil {
			return &Configuration{space: s, values: values}, nil
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrSamplingExhausted, maxSampleAttempts)
}

// NewConfiguration validates values against the space.
//
// Description:
//
//	Rejects unknown keys, values for inactive hyperparameters, missing
//	values for active ones, values outside a domain, and assignments that
//	match a forbidden clause. Numeric values are normalized, so an int
//	passed for a float hyperparameter is stored as float64.
//
// Inputs:
//
//	values - Flat map of qualified name to value.
//
// Outputs:
//
//	*Configuration - The validated configuration.
//	error - One of ErrUnknownHyperparameter, ErrInactiveValue,
//	        ErrMissingValue, ErrIllegalValue or ErrForbiddenConfiguration.
func (s *Space) NewConfiguration(values map[string]Value) (*Configuration, error) {
	for _, k := range sortedKeys(values) {
		if _, ok := s.hps[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHyperparameter, k)
		}
	}
	normalized := make(map[string]Value, len(values))
	for _, name := range s.topoOrder() {
		v, given := values[name]
		isActive := s.active(name, normalized)
		switch {
		case isActive && !given:
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, name)
		case !isActive && given:
			return nil, fmt.Errorf("%w: %s", ErrInactiveValue, name)
		case !isActive:
			continue
		}
		nv, err := s.hps[name].Normalize(v)
		if err != nil {
			return nil, err
		}
		normalized[name] = nv
	}
	if f := s.forbidden(normalized); f != nil {
		return nil, fmt.Errorf("%w: matches %s", ErrForbiddenConfiguration, f)
	}
	return &Configuration{space: s, values: normalized}, nil
}

// String renders the space canonically.
func (s *Space) String() string {
	var b strings.Builder
	b.WriteString("Configuration space object:\n  Hyperparameters:\n")
	for _, hp := range s.Hyperparameters() {
		b.WriteString("    " + hp.String() + "\n")
	}
	if conds := s.Conditions(); len(conds) > 0 {
		b.WriteString("  Conditions:\n")
		for _, c := range conds {
			b.WriteString("    " + c.String() + "\n")
		}
	}
	if fs := s.Forbiddens(); len(fs) > 0 {
		b.WriteString("  Forbidden Clauses:\n")
		for _, f := range fs {
			b.WriteString("    " + f.String() + "\n")
		}
	}
	return b.String()
}

// Equal reports structural equality: same hyperparameters, conditions and
// forbidden clauses.
func (s *Space) Equal(other *Space) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.String() == other.String()
}

// Fingerprint returns a hash of the canonical rendering.
func (s *Space) Fingerprint() uint64 {
	return xxhash.Sum64String(s.String())
}

// Diff returns a unified diff from s to other. It is empty when the spaces
// are equal.
func (s *Space) Diff(other *Space) string {
	var a, b string
	if s != nil {
		a = s.String()
	}
	if other != nil {
		b = other.String()
	}
	if a == b {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "expected",
		ToFile:   "given",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("--- expected\n+++ given\n(diff failed: %v)\n", err)
	}
	return diff
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
