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
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// choiceSpace builds a selector over two candidates, each with one
// hyperparameter of its own.
func choiceSpace(t *testing.T, def string) *Space {
	t.Helper()
	cs := New()
	require.NoError(t, cs.Add(MustCategorical("__choice__", []string{"A", "B"}, def)))

	a := New()
	require.NoError(t, a.Add(MustUniformFloat("alpha", 0, 1, 0.5, false)))
	require.NoError(t, cs.AddSpace("A", a, &Parent{Name: "__choice__", Value: "A"}))

	b := New()
	require.NoError(t, b.Add(MustUniformInteger("beta", 1, 10, 3, false)))
	require.NoError(t, cs.AddSpace("B", b, &Parent{Name: "__choice__", Value: "B"}))
	return cs
}

func TestHyperparameterValidation(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"empty float range", func() error { _, err := NewUniformFloat("x", 1, 1, 1, false); return err }},
		{"log with zero lower", func() error { _, err := NewUniformFloat("x", 0, 1, 0.5, true); return err }},
		{"float default outside", func() error { _, err := NewUniformFloat("x", 0, 1, 2, false); return err }},
		{"int default outside", func() error { _, err := NewUniformInteger("x", 1, 5, 9, false); return err }},
		{"duplicate choice", func() error { _, err := NewCategorical("x", []string{"a", "a"}, ""); return err }},
		{"no choices", func() error { _, err := NewCategorical("x", nil, ""); return err }},
		{"unknown default", func() error { _, err := NewCategorical("x", []string{"a"}, "b"); return err }},
		{"empty name", func() error { _, err := NewConstant("", "v"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidHyperparameter)
		})
	}
}

func TestNormalize(t *testing.T) {
	f := MustUniformFloat("lr", 1e-6, 1e-1, 1e-2, true)
	v, err := f.Normalize(0)
	require.Error(t, err, "0 is below the log-scale lower bound")
	v, err = f.Normalize(0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.05, v)

	i := MustUniformInteger("epochs", 1, 100, 10, false)
	v, err = i.Normalize(float64(20))
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	_, err = i.Normalize(2.5)
	assert.ErrorIs(t, err, ErrIllegalValue)

	c := MustCategorical("kind", []string{"a", "b"}, "")
	_, err = c.Normalize("z")
	assert.ErrorIs(t, err, ErrIllegalValue)
	_, err = c.Normalize(1)
	assert.ErrorIs(t, err, ErrIllegalValue)
}

func TestSampleWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	f := MustUniformFloat("lr", 1e-6, 1e-1, 1e-2, true)
	i := MustUniformInteger("units", 8, 512, 64, true)
	for range 500 {
		assert.True(t, Legal(f, f.Sample(rng)))
		assert.True(t, Legal(i, i.Sample(rng)))
	}
}

func TestDefaultConfigurationActivatesOnlySelectedBranch(t *testing.T) {
	cs := choiceSpace(t, "B")

	cfg, err := cs.DefaultConfiguration()
	require.NoError(t, err)
	assert.Equal(t, []string{"B:beta", "__choice__"}, cfg.Keys())

	v, ok := cfg.Get("B:beta")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = cfg.Get("A:alpha")
	assert.False(t, ok)
}

func TestNewConfigurationRejects(t *testing.T) {
	cs := choiceSpace(t, "A")
	require.NoError(t, cs.Add(MustCategorical("other", []string{"x", "y"}, "x")))
	require.NoError(t, cs.AddForbidden(ForbiddenAnd(
		ForbiddenEquals("__choice__", "B"),
		ForbiddenEquals("other", "y"),
	)))

	tests := []struct {
		name   string
		values map[string]Value
		want   error
	}{
		{"unknown key", map[string]Value{"__choice__": "A", "A:alpha": 0.1, "other": "x", "nope": 1}, ErrUnknownHyperparameter},
		{"missing active", map[string]Value{"__choice__": "A", "other": "x"}, ErrMissingValue},
		{"inactive given", map[string]Value{"__choice__": "A", "A:alpha": 0.1, "B:beta": 2, "other": "x"}, ErrInactiveValue},
		{"illegal value", map[string]Value{"__choice__": "A", "A:alpha": 7.0, "other": "x"}, ErrIllegalValue},
		{"forbidden", map[string]Value{"__choice__": "B", "B:beta": 2, "other": "y"}, ErrForbiddenConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cs.NewConfiguration(tt.values)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	cfg, err := cs.NewConfiguration(map[string]Value{"__choice__": "B", "B:beta": 2, "other": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"beta": 2}, cfg.Sub("B"))
}

func TestConditionCycleRejected(t *testing.T) {
	cs := New()
	require.NoError(t, cs.Add(
		MustCategorical("a", []string{"on", "off"}, ""),
		MustCategorical("b", []string{"on", "off"}, ""),
	))
	require.NoError(t, cs.AddCondition(EqualsCondition("b", "a", "on")))
	err := cs.AddCondition(EqualsCondition("a", "b", "on"))
	assert.ErrorIs(t, err, ErrInvalidCondition)

	err = cs.AddCondition(EqualsCondition("b", "a", "maybe"))
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestSampleNeverReturnsForbidden(t *testing.T) {
	cs := New()
	require.NoError(t, cs.Add(
		MustCategorical("s1", []string{"p", "q"}, ""),
		MustCategorical("s2", []string{"r", "s"}, ""),
	))
	clause := ForbiddenAnd(ForbiddenEquals("s1", "p"), ForbiddenEquals("s2", "r"))
	require.NoError(t, cs.AddForbidden(clause))

	rng := rand.New(rand.NewPCG(7, 7))
	for range 200 {
		cfg, err := cs.Sample(rng)
		require.NoError(t, err)
		assert.False(t, clause.Matches(cfg.Values()))
	}

	_, err := cs.DefaultConfiguration()
	assert.ErrorIs(t, err, ErrForbiddenConfiguration)

	_, err = cs.Sample(nil)
	assert.ErrorIs(t, err, ErrNilRand)
}

func TestSampleExhausted(t *testing.T) {
	cs := New()
	c, err := NewConstant("c", "v")
	require.NoError(t, err)
	require.NoError(t, cs.Add(c))
	require.NoError(t, cs.AddForbidden(ForbiddenEquals("c", "v")))

	_, err = cs.Sample(rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, ErrSamplingExhausted)
}

func TestStringIsOrderIndependent(t *testing.T) {
	build := func(names ...string) *Space {
		cs := New()
		for _, n := range names {
			require.NoError(t, cs.Add(MustCategorical(n, []string{"x", "y"}, "")))
		}
		return cs
	}
	a := build("one", "two", "three")
	b := build("three", "one", "two")

	assert.Equal(t, a.String(), b.String())
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Empty(t, a.Diff(b))
}

func TestDiffShowsChangedLines(t *testing.T) {
	a := choiceSpace(t, "A")
	b := choiceSpace(t, "B")

	assert.False(t, a.Equal(b))
	diff := a.Diff(b)
	require.NotEmpty(t, diff)
	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "+++ given")
	assert.Contains(t, diff, "-    __choice__, Type: Categorical, Choices: {A, B}, Default: A")
	assert.Contains(t, diff, "+    __choice__, Type: Categorical, Choices: {A, B}, Default: B")
}

func TestSetDefault(t *testing.T) {
	cs := choiceSpace(t, "A")
	require.NoError(t, cs.SetDefault("__choice__", "B"))

	cfg, err := cs.DefaultConfiguration()
	require.NoError(t, err)
	v, _ := cfg.Get("__choice__")
	assert.Equal(t, "B", v)

	assert.ErrorIs(t, cs.SetDefault("missing", "B"), ErrUnknownHyperparameter)
	assert.ErrorIs(t, cs.SetDefault("__choice__", "C"), ErrIllegalValue)
}

func TestStringRendering(t *testing.T) {
	cs := choiceSpace(t, "A")
	s := cs.String()

	assert.True(t, strings.HasPrefix(s, "Configuration space object:\n  Hyperparameters:\n"))
	assert.Contains(t, s, "A:alpha, Type: UniformFloat, Range: [0, 1], Default: 0.5")
	assert.Contains(t, s, "B:beta | __choice__ == 'B'")
}

func TestYAMLExport(t *testing.T) {
	cs := choiceSpace(t, "A")
	out, err := cs.YAML()
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "hyperparameters:")
	assert.Contains(t, text, "A:alpha")
	assert.Contains(t, text, "type: uniform_float")
	assert.Contains(t, text, "conditions:")
}

func TestConfigurationString(t *testing.T) {
	cs := choiceSpace(t, "A")
	cfg, err := cs.DefaultConfiguration()
	require.NoError(t, err)

	assert.Equal(t, "Configuration(values={\n  'A:alpha': 0.5,\n  '__choice__': 'A',\n})\n", cfg.String())

	other, err := cs.NewConfiguration(map[string]Value{"__choice__": "A", "A:alpha": 0.5})
	require.NoError(t, err)
	assert.True(t, cfg.Equal(other))
}
