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
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

// Delimiter separates namespace levels in hyperparameter names.
const Delimiter = ":"

// Value is a hyperparameter value: string, int or float64.
type Value = any

// Kind identifies the hyperparameter type.
type Kind string

const (
	KindCategorical    Kind = "categorical"
	KindUniformFloat   Kind = "uniform_float"
	KindUniformInteger Kind = "uniform_int"
	KindConstant       Kind = "constant"
)

// Hyperparameter is one dimension of a search space.
//
// The set of implementations is closed: Categorical, UniformFloat,
// UniformInteger and Constant.
type Hyperparameter interface {
	// Name returns the fully-qualified name.
	Name() string

	// Kind returns the hyperparameter type.
	Kind() Kind

	// Default returns the default value, already normalized.
	Default() Value

	// Normalize coerces v into the canonical Go type for this hyperparameter
	// and checks that it lies in the domain.
	Normalize(v Value) (Value, error)

	// Sample draws a legal value.
	Sample(rng *rand.Rand) Value

	// String renders the hyperparameter in canonical form.
	String() string

	renamed(name string) Hyperparameter
}

// Legal reports whether v lies in the domain of hp.
func Legal(hp Hyperparameter, v Value) bool {
	_, err := hp.Normalize(v)
	return err == nil
}

// -----------------------------------------------------------------------------
// Categorical
// -----------------------------------------------------------------------------

// Categorical is a choice among string values.
type Categorical struct {
	name    string
	choices []string
	def     string
}

// NewCategorical creates a categorical hyperparameter.
//
// Inputs:
//
//	name - Hyperparameter name. Must not be empty.
//	choices - Distinct values. Must not be empty.
//	def - Default value. Empty selects choices[0].
//
// Outputs:
//
//	*Categorical - The hyperparameter.
//	error - Wraps ErrInvalidHyperparameter on a malformed domain.
func NewCategorical(name string, choices []string, def string) (*Categorical, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHyperparameter)
	}
	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: %q has no choices", ErrInvalidHyperparameter, name)
	}
	seen := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: %q has duplicate choice %q", ErrInvalidHyperparameter, name, c)
		}
		seen[c] = struct{}{}
	}
	if def == "" {
		def = choices[0]
	}
	if _, ok := seen[def]; !ok {
		return nil, fmt.Errorf("%w: %q default %q is not a choice", ErrInvalidHyperparameter, name, def)
	}
	return &Categorical{name: name, choices: slices.Clone(choices), def: def}, nil
}

// MustCategorical is NewCategorical that panics on error. Use it only for
// literal domains in component search-space factories.
func MustCategorical(name string, choices []string, def string) *Categorical {
	hp, err := NewCategorical(name, choices, def)
	if err != nil {
		panic(err)
	}
	return hp
}

func (c *Categorical) Name() string   { return c.name }
func (c *Categorical) Kind() Kind     { return KindCategorical }
func (c *Categorical) Default() Value { return c.def }

// Choices returns a copy of the domain in declaration order.
func (c *Categorical) Choices() []string { return slices.Clone(c.choices) }

func (c *Categorical) Normalize(v Value) (Value, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q expects a string, got %T", ErrIllegalValue, c.name, v)
	}
	if !slices.Contains(c.choices, s) {
		return nil, fmt.Errorf("%w: %q has no choice %q", ErrIllegalValue, c.name, s)
	}
	return s, nil
}

func (c *Categorical) Sample(rng *rand.Rand) Value {
	return c.choices[rng.IntN(len(c.choices))]
}

func (c *Categorical) String() string {
	return fmt.Sprintf("%s, Type: Categorical, Choices: {%s}, Default: %s",
		c.name, strings.Join(c.choices, ", "), c.def)
}

func (c *Categorical) renamed(name string) Hyperparameter {
	cp := *c
	cp.name = name
	cp.choices = slices.Clone(c.choices)
	return &cp
}

// -----------------------------------------------------------------------------
// UniformFloat
// -----------------------------------------------------------------------------

// UniformFloat is a float range sampled uniformly, optionally on log scale.
type UniformFloat struct {
	name         string
	lower, upper float64
	def          float64
	log          bool
}

// NewUniformFloat creates a float hyperparameter over [lower, upper].
//
// Log-scale ranges require lower > 0. The default must lie in the range.
func NewUniformFloat(name string, lower, upper, def float64, log bool) (*UniformFloat, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHyperparameter)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower >= upper {
		return nil, fmt.Errorf("%w: %q range [%v, %v] is empty", ErrInvalidHyperparameter, name, lower, upper)
	}
	if log && lower <= 0 {
		return nil, fmt.Errorf("%w: %q log scale requires lower > 0", ErrInvalidHyperparameter, name)
	}
	if def < lower || def > upper {
		return nil, fmt.Errorf("%w: %q default %v outside [%v, %v]", ErrInvalidHyperparameter, name, def, lower, upper)
	}
	return &UniformFloat{name: name, lower: lower, upper: upper, def: def, log: log}, nil
}

// MustUniformFloat is NewUniformFloat that panics on error.
func MustUniformFloat(name string, lower, upper, def float64, log bool) *UniformFloat {
	hp, err := NewUniformFloat(name, lower, upper, def, log)
	if err != nil {
		panic(err)
	}
	return hp
}

func (f *UniformFloat) Name() string   { return f.name }
func (f *UniformFloat) Kind() Kind     { return KindUniformFloat }
func (f *UniformFloat) Default() Value { return f.def }

// Bounds returns the inclusive range.
func (f *UniformFloat) Bounds() (float64, float64) { return f.lower, f.upper }

// Log reports whether sampling is on log scale.
func (f *UniformFloat) Log() bool { return f.log }

func (f *UniformFloat) Normalize(v Value) (Value, error) {
	x, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %q expects a number, got %T", ErrIllegalValue, f.name, v)
	}
	if math.IsNaN(x) || x < f.lower || x > f.upper {
		return nil, fmt.Errorf("%w: %q value %v outside [%v, %v]", ErrIllegalValue, f.name, x, f.lower, f.upper)
	}
	return x, nil
}

func (f *UniformFloat) Sample(rng *rand.Rand) Value {
	if f.log {
		lo, hi := math.Log(f.lower), math.Log(f.upper)
		return clampFloat(math.Exp(lo+rng.Float64()*(hi-lo)), f.lower, f.upper)
	}
	return f.lower + rng.Float64()*(f.upper-f.lower)
}

func (f *UniformFloat) String() string {
	s := fmt.Sprintf("%s, Type: UniformFloat, Range: [%s, %s], Default: %s",
		f.name, formatFloat(f.lower), formatFloat(f.upper), formatFloat(f.def))
	if f.log {
		s += ", on log-scale"
	}
	return s
}

func (f *UniformFloat) renamed(name string) Hyperparameter {
	cp := *f
	cp.name = name
	return &cp
}

// -----------------------------------------------------------------------------
// UniformInteger
// -----------------------------------------------------------------------------

// UniformInteger is an integer range sampled uniformly, optionally on log scale.
type UniformInteger struct {
	name         string
	lower, upper int
	def          int
	log          bool
}

// NewUniformInteger creates an integer hyperparameter over [lower, upper].
func NewUniformInteger(name string, lower, upper, def int, log bool) (*UniformInteger, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHyperparameter)
	}
	if lower >= upper {
		return nil, fmt.Errorf("%w: %q range [%d, %d] is empty", ErrInvalidHyperparameter, name, lower, upper)
	}
	if log && lower <= 0 {
		return nil, fmt.Errorf("%w: %q log scale requires lower > 0", ErrInvalidHyperparameter, name)
	}
	if def < lower || def > upper {
		return nil, fmt.Errorf("%w: %q default %d outside [%d, %d]", ErrInvalidHyperparameter, name, def, lower, upper)
	}
	return &UniformInteger{name: name, lower: lower, upper: upper, def: def, log: log}, nil
}

// MustUniformInteger is NewUniformInteger that panics on error.
func MustUniformInteger(name string, lower, upper, def int, log bool) *UniformInteger {
	hp, err := NewUniformInteger(name, lower, upper, def, log)
	if err != nil {
		panic(err)
	}
	return hp
}

func (i *UniformInteger) Name() string   { return i.name }
func (i *UniformInteger) Kind() Kind     { return KindUniformInteger }
func (i *UniformInteger) Default() Value { return i.def }

// Bounds returns the inclusive range.
func (i *UniformInteger) Bounds() (int, int) { return i.lower, i.upper }

// Log reports whether sampling is on log scale.
func (i *UniformInteger) Log() bool { return i.log }

func (i *UniformInteger) Normalize(v Value) (Value, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case int32:
		n = int(x)
	case float64:
		// JSON and YAML decoders hand integers over as float64.
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("%w: %q expects an integer, got %v", ErrIllegalValue, i.name, x)
		}
		n = int(x)
	default:
		return nil, fmt.Errorf("%w: %q expects an integer, got %T", ErrIllegalValue, i.name, v)
	}
	if n < i.lower || n > i.upper {
		return nil, fmt.Errorf("%w: %q value %d outside [%d, %d]", ErrIllegalValue, i.name, n, i.lower, i.upper)
	}
	return n, nil
}

func (i *UniformInteger) Sample(rng *rand.Rand) Value {
	if i.log {
		lo, hi := math.Log(float64(i.lower)), math.Log(float64(i.upper))
		n := int(math.Round(math.Exp(lo + rng.Float64()*(hi-lo))))
		return min(max(n, i.lower), i.upper)
	}
	return i.lower + rng.IntN(i.upper-i.lower+1)
}

func (i *UniformInteger) String() string {
	s := fmt.Sprintf("%s, Type: UniformInteger, Range: [%d, %d], Default: %d", i.name, i.lower, i.upper, i.def)
	if i.log {
		s += ", on log-scale"
	}
	return s
}

func (i *UniformInteger) renamed(name string) Hyperparameter {
	cp := *i
	cp.name = name
	return &cp
}

// -----------------------------------------------------------------------------
// Constant
// -----------------------------------------------------------------------------

// Constant is a hyperparameter with a single string value.
type Constant struct {
	name  string
	value string
}

// NewConstant creates a constant hyperparameter.
func NewConstant(name, value string) (*Constant, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHyperparameter)
	}
	return &Constant{name: name, value: value}, nil
}

func (c *Constant) Name() string   { return c.name }
func (c *Constant) Kind() Kind     { return KindConstant }
func (c *Constant) Default() Value { return c.value }

func (c *Constant) Normalize(v Value) (Value, error) {
	s, ok := v.(string)
	if !ok || s != c.value {
		return nil, fmt.Errorf("%w: %q is constant %q, got %v", ErrIllegalValue, c.name, c.value, v)
	}
	return s, nil
}

func (c *Constant) Sample(*rand.Rand) Value { return c.value }

func (c *Constant) String() string {
	return fmt.Sprintf("%s, Type: Constant, Value: %s", c.name, c.value)
}

func (c *Constant) renamed(name string) Hyperparameter {
	cp := *c
	cp.name = name
	return &cp
}

// -----------------------------------------------------------------------------
// Value helpers
// -----------------------------------------------------------------------------

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func clampFloat(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// FormatValue renders a value the way Space.String does: strings quoted,
// numbers in shortest form.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case string:
		return "'" + x + "'"
	case float64:
		return formatFloat(x)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(v)
	}
}

// valuesEqual compares two values, treating numeric types as interchangeable.
func valuesEqual(a, b Value) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return okA && okB && fa == fb
}

// Join builds a qualified name from namespace parts, skipping empty parts.
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, Delimiter)
}
