// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package choice

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

type recorder struct {
	params component.Params
}

func (r *recorder) Fit(context.Context, *component.FitDictionary) error       { return nil }
func (r *recorder) Transform(context.Context, *component.FitDictionary) error { return nil }

func testRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg := component.NewRegistry(component.StageEncoder)
	newRecorder := func(p component.Params) (component.Component, error) { return &recorder{params: p}, nil }
	reg.MustRegister(
		component.Descriptor{
			ID:    "OneHotEncoder",
			Stage: component.StageEncoder,
			Properties: component.Properties{
				Predicate: func(p component.DatasetProperties) bool { return len(p.CategoricalColumns) > 0 },
			},
			SearchSpace: func(component.DatasetProperties) *configspace.Space {
				cs := configspace.New()
				_ = cs.Add(configspace.MustUniformInteger("min_frequency", 1, 10, 1, false))
				return cs
			},
			New: newRecorder,
		},
		component.Descriptor{ID: "NoEncoder", Stage: component.StageEncoder, New: newRecorder},
	)
	return reg
}

var withCategories = component.DatasetProperties{
	TaskType:           component.TaskTabularClassification,
	CategoricalColumns: []int{0},
}

func TestAvailableComponents(t *testing.T) {
	c := New(testRegistry(t), "NoEncoder")

	tests := []struct {
		name    string
		props   component.DatasetProperties
		include []component.ID
		exclude []component.ID
		want    []component.ID
		wantErr error
	}{
		{name: "all", props: withCategories, want: []component.ID{"OneHotEncoder", "NoEncoder"}},
		{name: "no categorical columns", props: component.DatasetProperties{CategoricalColumns: []int{}}, want: []component.ID{"NoEncoder"}},
		{name: "include", props: withCategories, include: []component.ID{"NoEncoder"}, want: []component.ID{"NoEncoder"}},
		{name: "exclude", props: withCategories, exclude: []component.ID{"NoEncoder"}, want: []component.ID{"OneHotEncoder"}},
		{name: "both", props: withCategories, include: []component.ID{"NoEncoder"}, exclude: []component.ID{"OneHotEncoder"}, wantErr: component.ErrInvalidIncludeExclude},
		{name: "unknown include", props: withCategories, include: []component.ID{"Ordinal"}, wantErr: component.ErrInvalidIncludeExclude},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.AvailableComponents(tt.props, tt.include, tt.exclude)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]component.ID, len(got))
			for i, d := range got {
				ids[i] = d.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchSpaceDefaults(t *testing.T) {
	c := New(testRegistry(t), "NoEncoder")

	cs, err := c.SearchSpace(withCategories, Constraint{})
	require.NoError(t, err)
	cfg, err := cs.DefaultConfiguration()
	require.NoError(t, err)
	sel, _ := cfg.Get(Selector)
	assert.Equal(t, "NoEncoder", sel)

	cs, err = c.SearchSpace(withCategories, Constraint{Default: []component.ID{"OneHotEncoder"}})
	require.NoError(t, err)
	cfg, err = cs.DefaultConfiguration()
	require.NoError(t, err)
	sel, _ = cfg.Get(Selector)
	assert.Equal(t, "OneHotEncoder", sel)
	v, ok := cfg.Get("OneHotEncoder:min_frequency")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, err = c.SearchSpace(withCategories, Constraint{Include: []component.ID{}})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestSetHyperparametersStripsPrefix(t *testing.T) {
	c := New(testRegistry(t))
	cs, err := c.SearchSpace(withCategories, Constraint{})
	require.NoError(t, err)
	cfg, err := cs.NewConfiguration(map[string]configspace.Value{
		Selector:                      "OneHotEncoder",
		"OneHotEncoder:min_frequency": 4,
	})
	require.NoError(t, err)

	init := map[string]any{
		"OneHotEncoder:handle_unknown": "ignore",
		"sparse":                       true,
		"NoEncoder:unused":             1,
	}
	rng := rand.New(rand.NewPCG(1, 2))
	require.NoError(t, c.SetHyperparameters(cfg, init, rng, nil))

	assert.Equal(t, "OneHotEncoder", c.ComponentName())
	rec := c.Component().(*recorder)
	assert.Equal(t, map[string]configspace.Value{"min_frequency": 4}, rec.params.Values)
	assert.Equal(t, map[string]any{"handle_unknown": "ignore", "sparse": true}, rec.params.Init)
	assert.Same(t, rng, rec.params.Rand)
}

func TestDelegationBeforeSet(t *testing.T) {
	c := New(testRegistry(t))
	ctx := context.Background()
	fd := component.NewFitDictionary()

	assert.ErrorIs(t, c.Fit(ctx, fd), component.ErrNotFitted)
	assert.ErrorIs(t, c.Transform(ctx, fd), component.ErrNotFitted)
	_, err := c.Predict(ctx, nil)
	assert.ErrorIs(t, err, component.ErrNotFitted)
	assert.Empty(t, c.ComponentName())
	assert.Nil(t, c.Requires())
}

func TestPredictRequiresPredictor(t *testing.T) {
	c := New(testRegistry(t))
	cs, err := c.SearchSpace(withCategories, Constraint{Include: []component.ID{"NoEncoder"}})
	require.NoError(t, err)
	cfg, err := cs.DefaultConfiguration()
	require.NoError(t, err)
	require.NoError(t, c.SetHyperparameters(cfg, nil, nil, nil))

	_, err = c.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotPredictor)
}
