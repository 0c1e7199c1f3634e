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
	"encoding/json"
	"maps"
	"strings"
)

// Configuration is a validated point of a Space.
//
// It holds a value for exactly the active hyperparameters and is immutable
// after construction.
type Configuration struct {
	space  *Space
	values map[string]Value
}

// Space returns the space the configuration was validated against.
func (c *Configuration) Space() *Space { return c.space }

// Get returns the value for a qualified name.
func (c *Configuration) Get(name string) (Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Keys returns the active names sorted.
func (c *Configuration) Keys() []string { return sortedKeys(c.values) }

// Values returns a copy of the flat value map.
func (c *Configuration) Values() map[string]Value { return maps.Clone(c.values) }

// Sub returns the values whose key starts with "<prefix>:", with that
// prefix stripped.
func (c *Configuration) Sub(prefix string) map[string]Value {
	return SubMap(c.values, prefix)
}

// SubMap extracts and strips the "<prefix>:" namespace from a flat map.
func SubMap(values map[string]Value, prefix string) map[string]Value {
	out := make(map[string]Value)
	p := prefix + Delimiter
	for k, v := range values {
		if rest, ok := strings.CutPrefix(k, p); ok {
			out[rest] = v
		}
	}
	return out
}

// Equal reports whether both configurations hold the same values for
// structurally equal spaces.
func (c *Configuration) Equal(other *Configuration) bool {
	if c == nil || other == nil {
		return c == other
	}
	if !c.space.Equal(other.space) || len(c.values) != len(other.values) {
		return false
	}
	for k, v := range c.values {
		ov, ok := other.values[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// String renders the configuration with sorted keys.
func (c *Configuration) String() string {
	var b strings.Builder
	b.WriteString("Configuration(values={\n")
	for _, k := range c.Keys() {
		b.WriteString("  '" + k + "': " + FormatValue(c.values[k]) + ",\n")
	}
	b.WriteString("})\n")
	return b.String()
}

// MarshalJSON encodes the flat value map.
func (c *Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}
