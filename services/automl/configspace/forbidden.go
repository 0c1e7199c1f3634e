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
	"slices"
	"strings"
)

// Forbidden is a clause that rejects configurations matching it.
//
// A clause only matches when every hyperparameter it names is active and
// holds the clause's value.
type Forbidden interface {
	// Matches reports whether the assignment is rejected by this clause.
	Matches(values map[string]Value) bool

	// Names returns the hyperparameters the clause refers to.
	Names() []string

	String() string

	prefixed(prefix string) Forbidden
}

// ForbiddenEqualsClause rejects Name == Value.
type ForbiddenEqualsClause struct {
	Name  string
	Value Value
}

// ForbiddenEquals creates a clause rejecting name == value.
func ForbiddenEquals(name string, value Value) *ForbiddenEqualsClause {
	return &ForbiddenEqualsClause{Name: name, Value: value}
}

func (f *ForbiddenEqualsClause) Matches(values map[string]Value) bool {
	v, ok := values[f.Name]
	return ok && valuesEqual(v, f.Value)
}

func (f *ForbiddenEqualsClause) Names() []string { return []string{f.Name} }

func (f *ForbiddenEqualsClause) String() string {
	return fmt.Sprintf("Forbidden: %s == %s", f.Name, FormatValue(f.Value))
}

func (f *ForbiddenEqualsClause) prefixed(prefix string) Forbidden {
	return &ForbiddenEqualsClause{Name: Join(prefix, f.Name), Value: f.Value}
}

// ForbiddenAndClause rejects the conjunction of its equality clauses.
type ForbiddenAndClause struct {
	Clauses []*ForbiddenEqualsClause
}

// ForbiddenAnd creates a conjunction. Clauses are kept sorted by name so the
// rendering does not depend on argument order.
func ForbiddenAnd(clauses ...*ForbiddenEqualsClause) *ForbiddenAndClause {
	cs := slices.Clone(clauses)
	slices.SortFunc(cs, func(a, b *ForbiddenEqualsClause) int { return strings.Compare(a.Name, b.Name) })
	return &ForbiddenAndClause{Clauses: cs}
}

func (f *ForbiddenAndClause) Matches(values map[string]Value) bool {
	if len(f.Clauses) == 0 {
		return false
	}
	for _, c := range f.Clauses {
		if !c.Matches(values) {
			return false
		}
	}
	return true
}

func (f *ForbiddenAndClause) Names() []string {
	names := make([]string, len(f.Clauses))
	for i, c := range f.Clauses {
		names[i] = c.Name
	}
	return names
}

func (f *ForbiddenAndClause) String() string {
	parts := make([]string, len(f.Clauses))
	for i, c := range f.Clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

func (f *ForbiddenAndClause) prefixed(prefix string) Forbidden {
	cs := make([]*ForbiddenEqualsClause, len(f.Clauses))
	for i, c := range f.Clauses {
		cs[i] = &ForbiddenEqualsClause{Name: Join(prefix, c.Name), Value: c.Value}
	}
	return &ForbiddenAndClause{Clauses: cs}
}
