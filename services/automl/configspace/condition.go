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
	"strings"
)

// Condition activates Child only when Parent takes one of Values.
//
// A condition with one value renders as an equality, more than one as
// set membership.
type Condition struct {
	child  string
	parent string
	values []Value
}

// EqualsCondition activates child when parent == value.
func EqualsCondition(child, parent string, value Value) Condition {
	return Condition{child: child, parent: parent, values: []Value{value}}
}

// InCondition activates child when parent is one of values.
func InCondition(child, parent string, values ...Value) Condition {
	return Condition{child: child, parent: parent, values: append([]Value(nil), values...)}
}

// Child returns the conditioned hyperparameter name.
func (c Condition) Child() string { return c.child }

// Parent returns the controlling hyperparameter name.
func (c Condition) Parent() string { return c.parent }

// Values returns the parent values that activate the child.
func (c Condition) Values() []Value { return append([]Value(nil), c.values...) }

// Satisfied reports whether parent value v activates the child.
func (c Condition) Satisfied(v Value) bool {
	for _, want := range c.values {
		if valuesEqual(want, v) {
			return true
		}
	}
	return false
}

func (c Condition) String() string {
	if len(c.values) == 1 {
		return fmt.Sprintf("%s | %s == %s", c.child, c.parent, FormatValue(c.values[0]))
	}
	parts := make([]string, len(c.values))
	for i, v := range c.values {
		parts[i] = FormatValue(v)
	}
	return fmt.Sprintf("%s | %s in {%s}", c.child, c.parent, strings.Join(parts, ", "))
}

func (c Condition) prefixed(prefix string) Condition {
	return Condition{child: Join(prefix, c.child), parent: Join(prefix, c.parent), values: c.values}
}
