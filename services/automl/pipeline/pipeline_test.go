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
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// =============================================================================
// Fixtures
// =============================================================================

type nop struct{}

func (nop) Fit(context.Context, *component.FitDictionary) error       { return nil }
func (nop) Transform(context.Context, *component.FitDictionary) error { return nil }

func newNop(component.Params) (component.Component, error) { return nop{}, nil }

// rowSum predicts the sum of each row.
type rowSum struct{ iters int }

func (r *rowSum) Fit(context.Context, *component.FitDictionary) error {
	r.iters = 3
	return nil
}
func (r *rowSum) Transform(context.Context, *component.FitDictionary) error { return nil }
func (r *rowSum) NumTargets() int                                          { return 1 }
func (r *rowSum) MaxIter() int                                             { return 3 }
func (r *rowSum) CurrentIter() int                                         { return r.iters }
func (r *rowSum) FullyFitted() bool                                        { return r.iters >= 3 }

func (r *rowSum) Predict(_ context.Context, X *mat.Dense) (*mat.Dense, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := range rows {
		out.Set(i, 0, mat.Sum(X.RowView(i)))
	}
	return out, nil
}

var (
	imputer = component.Descriptor{
		ID: "SimpleImputer", Stage: component.StageImputer,
		Provides: []component.Field{component.FieldImputer},
		SearchSpace: func(component.DatasetProperties) *configspace.Space {
			cs := configspace.New()
			_ = cs.Add(configspace.MustCategorical("numerical_strategy", []string{"mean", "median"}, "mean"))
			return cs
		},
		New: func(component.Params) (component.Component, error) { return imputerStub{}, nil },
	}

	estimator = component.Descriptor{
		ID: "RowSum", Stage: component.StageTrainer,
		Requires: []component.Field{component.FieldXTrain},
		New:      func(component.Params) (component.Component, error) { return &rowSum{}, nil },
	}

	initializer = component.Descriptor{
		ID: "XavierInit", Stage: component.StageInitializer,
		Requires: []component.Field{component.FieldNetwork},
		New:      newNop,
	}
)

type imputerStub struct{}

func (imputerStub) Fit(context.Context, *component.FitDictionary) error { return nil }
func (imputerStub) Transform(_ context.Context, fd *component.FitDictionary) error {
	fd.Imputer = component.TransformerFunc(func(X *mat.Dense) (*mat.Dense, error) { return X, nil })
	return nil
}

func encoders() *component.Registry {
	r := component.NewRegistry(component.StageEncoder)
	r.MustRegister(
		component.Descriptor{
			ID: "OneHotEncoder", Stage: component.StageEncoder,
			Properties: component.Properties{
				Output:    component.FormatSparse,
				Predicate: func(p component.DatasetProperties) bool { return len(p.CategoricalColumns) > 0 },
			},
			SearchSpace: func(component.DatasetProperties) *configspace.Space {
				cs := configspace.New()
				_ = cs.Add(configspace.MustUniformInteger("min_frequency", 1, 5, 1, false))
				return cs
			},
			New: newNop,
		},
		component.Descriptor{ID: "NoEncoder", Stage: component.StageEncoder, New: newNop},
	)
	return r
}

func scalers() *component.Registry {
	r := component.NewRegistry(component.StageScaler)
	r.MustRegister(
		component.Descriptor{ID: "StandardScaler", Stage: component.StageScaler, New: newNop},
		component.Descriptor{
			ID: "MinMaxScaler", Stage: component.StageScaler,
			Properties: component.Properties{Input: []component.DataFormat{component.FormatDense}},
			New:        newNop,
		},
		component.Descriptor{ID: "NoScaler", Stage: component.StageScaler, New: newNop},
	)
	return r
}

func steps(t *testing.T) []Step {
	t.Helper()
	s, err := NewStepsBuilder().
		Fixed("imputer", imputer).
		Choice("encoder", choice.New(encoders())).
		Choice("scaler", choice.New(scalers(), "MinMaxScaler")).
		Fixed("trainer", estimator).
		Build()
	require.NoError(t, err)
	return s
}

var (
	withCats    = component.DatasetProperties{TaskType: component.TaskTabularRegression, CategoricalColumns: []int{2}, NumericalColumns: []int{0, 1}}
	withoutCats = component.DatasetProperties{TaskType: component.TaskTabularRegression, CategoricalColumns: []int{}, NumericalColumns: []int{0, 1, 2}}
)

type provider struct{ name string }

func (p provider) PipelineSteps(component.DatasetProperties) ([]Step, error) {
	return NewStepsBuilder().Fixed("imputer", imputer).Fixed("trainer", estimator).Build()
}
func (p provider) EstimatorName() string { return p.name }

// =============================================================================
// Matrix and space
// =============================================================================

func TestOnlyFixedStepsGiveSingleLegalCell(t *testing.T) {
	p, err := New(provider{name: "Fixed"}, Options{DatasetProperties: withCats})
	require.NoError(t, err)

	m, err := p.Matrix()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, uint8(1), m.At())
	assert.Empty(t, m.Dims())
}

func TestMatrixMarksSparseIntoDenseOnlyIllegal(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)

	m, err := p.Matrix()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, m.Dims())
	assert.Equal(t, uint8(0), m.At(0, 1), "OneHotEncoder x MinMaxScaler")
	assert.Equal(t, 5, m.Sum())

	space, err := p.SearchSpace()
	require.NoError(t, err)
	fs := space.Forbiddens()
	require.Len(t, fs, 1)
	assert.Equal(t,
		"(Forbidden: encoder:__choice__ == 'OneHotEncoder' && Forbidden: scaler:__choice__ == 'MinMaxScaler')",
		fs[0].String())
}

func TestDefaultsMovedOffForbiddenCell(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)

	enc, _ := p.Config().Get("encoder:__choice__")
	sc, _ := p.Config().Get("scaler:__choice__")
	assert.Equal(t, "OneHotEncoder", enc)
	assert.Equal(t, "StandardScaler", sc)
}

func TestSampledConfigurationsAvoidForbiddenCombination(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	space, err := p.SearchSpace()
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		cfg, err := space.Sample(rng)
		require.NoError(t, err)
		enc, _ := cfg.Get("encoder:__choice__")
		sc, _ := cfg.Get("scaler:__choice__")
		assert.False(t, enc == "OneHotEncoder" && sc == "MinMaxScaler")
	}
}

func TestEncoderPrunedWithoutCategoricalColumns(t *testing.T) {
	p, err := New(nil, Options{
		Steps:             steps(t),
		DatasetProperties: withoutCats,
		ConfigValues: map[string]configspace.Value{
			"imputer:numerical_strategy": "mean",
			"encoder:__choice__":         "NoEncoder",
			"scaler:__choice__":          "MinMaxScaler",
		},
	})
	require.NoError(t, err)

	active, err := p.ActiveChoices()
	require.NoError(t, err)
	assert.Equal(t, []component.ID{"NoEncoder"}, active["encoder"])

	space, _ := p.SearchSpace()
	hp, ok := space.Get("encoder:__choice__")
	require.True(t, ok)
	assert.Equal(t, []string{"NoEncoder"}, hp.(*configspace.Categorical).Choices())
	assert.Empty(t, space.Forbiddens())
}

func TestSpaceConstructionIsIdempotent(t *testing.T) {
	a, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	b, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)

	sa, _ := a.SearchSpace()
	sb, _ := b.SearchSpace()
	assert.Equal(t, sa.String(), sb.String())
	assert.Equal(t, sa.Fingerprint(), sb.Fingerprint())

	again, _ := a.SearchSpace()
	assert.Same(t, sa, again)
}

// =============================================================================
// Include / exclude
// =============================================================================

func TestIncludeExcludeValidation(t *testing.T) {
	tests := []struct {
		name    string
		include map[string][]component.ID
		exclude map[string][]component.ID
	}{
		{"both on one step", map[string][]component.ID{"encoder": {"NoEncoder"}}, map[string][]component.ID{"encoder": {"OneHotEncoder"}}},
		{"unknown step", map[string][]component.ID{"network": {"MLP"}}, nil},
		{"fixed step", nil, map[string][]component.ID{"imputer": {"SimpleImputer"}}},
		{"unknown component", map[string][]component.ID{"scaler": {"RobustScaler"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats, Include: tt.include, Exclude: tt.exclude})
			assert.ErrorIs(t, err, component.ErrInvalidIncludeExclude)
		})
	}
}

func TestInfeasiblePipeline(t *testing.T) {
	_, err := New(nil, Options{
		Steps:             steps(t),
		DatasetProperties: withCats,
		Include: map[string][]component.ID{
			"encoder": {"OneHotEncoder"},
			"scaler":  {"MinMaxScaler"},
		},
	})
	assert.ErrorIs(t, err, ErrInfeasiblePipeline)
}

func TestConfigurationFromDifferentIncludeIsMismatch(t *testing.T) {
	other, err := New(nil, Options{
		Steps:             steps(t),
		DatasetProperties: withCats,
		Include:           map[string][]component.ID{"scaler": {"StandardScaler", "NoScaler"}},
	})
	require.NoError(t, err)

	_, err = New(nil, Options{Steps: steps(t), DatasetProperties: withCats, Config: other.Config()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationSpaceMismatch)

	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	assert.NotEmpty(t, mm.Diff)
	assert.Contains(t, mm.Diff, "scaler:__choice__")
}

// =============================================================================
// Hyperparameter routing
// =============================================================================

func TestPrefixSplitRoundTrip(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	space, _ := p.SearchSpace()

	rng := rand.New(rand.NewPCG(11, 12))
	for range 50 {
		cfg, err := space.Sample(rng)
		require.NoError(t, err)

		rebuilt := map[string]configspace.Value{}
		for _, s := range p.Steps() {
			for k, v := range cfg.Sub(s.Name) {
				rebuilt[configspace.Join(s.Name, k)] = v
			}
		}
		for _, k := range cfg.Keys() {
			want, _ := cfg.Get(k)
			assert.Equal(t, want, rebuilt[k], k)
		}
		assert.Len(t, rebuilt, len(cfg.Keys()))
		require.NoError(t, p.SetHyperparameters(cfg))
	}
}

func TestSetHyperparametersSelectsComponents(t *testing.T) {
	p, err := New(nil, Options{
		Steps:             steps(t),
		DatasetProperties: withCats,
		ConfigValues: map[string]configspace.Value{
			"imputer:numerical_strategy":         "median",
			"encoder:__choice__":                 "OneHotEncoder",
			"encoder:OneHotEncoder:min_frequency": 3,
			"scaler:__choice__":                  "NoScaler",
		},
	})
	require.NoError(t, err)

	node, ok := p.NamedStep("encoder")
	require.True(t, ok)
	assert.Equal(t, "OneHotEncoder", node.(*choice.Choice).ComponentName())

	summary := p.String()
	assert.Contains(t, summary, "0-) imputer: SimpleImputer")
	assert.Contains(t, summary, "1-) encoder: OneHotEncoder")
	assert.Contains(t, summary, "2-) scaler: NoScaler")
	assert.Contains(t, summary, "3-) trainer: RowSum")
	assert.True(t, strings.HasPrefix(summary, strings.Repeat("_", 40)+"\n\tPipeline\n"))
}

type bogusNode struct{ nop }

func TestUnsupportedStepType(t *testing.T) {
	_, err := New(nil, Options{Steps: []Step{{Name: "odd", Node: bogusNode{}}}})
	assert.ErrorIs(t, err, ErrUnsupportedStep)
}

func TestInvalidStepNames(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"empty", []Step{{Name: "", Node: component.NewFixed(imputer)}}},
		{"delimiter", []Step{{Name: "a:b", Node: component.NewFixed(imputer)}}},
		{"duplicate", []Step{{Name: "a", Node: component.NewFixed(imputer)}, {Name: "a", Node: component.NewFixed(estimator)}}},
		{"nil node", []Step{{Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, Options{Steps: tt.steps})
			assert.ErrorIs(t, err, ErrInvalidStep)
		})
	}
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestNestedPipelineNamespaces(t *testing.T) {
	inner, err := New(nil, Options{
		Steps:             []Step{{Name: "imputer", Node: component.NewFixed(imputer)}},
		DatasetProperties: withCats,
	})
	require.NoError(t, err)

	outer, err := New(nil, Options{
		Steps: []Step{
			{Name: "prep", Node: inner},
			{Name: "trainer", Node: component.NewFixed(estimator)},
		},
		DatasetProperties: withCats,
		ConfigValues:      map[string]configspace.Value{"prep:imputer:numerical_strategy": "median"},
	})
	require.NoError(t, err)

	v, ok := inner.Config().Get("imputer:numerical_strategy")
	require.True(t, ok)
	assert.Equal(t, "median", v)
	assert.Contains(t, outer.String(), "0-) prep: Pipeline")
}

// =============================================================================
// Fit and predict
// =============================================================================

func fitted(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	fd := component.NewFitDictionary()
	fd.XTrain = mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, p.Fit(context.Background(), fd))
	assert.NotNil(t, fd.Imputer)
	return p
}

func TestMissingFitDependencyNamesStep(t *testing.T) {
	s, err := NewStepsBuilder().Fixed("network_init", initializer).Fixed("trainer", estimator).Build()
	require.NoError(t, err)
	p, err := New(nil, Options{Steps: s, DatasetProperties: withCats})
	require.NoError(t, err)

	err = p.Fit(context.Background(), component.NewFitDictionary())
	require.ErrorIs(t, err, component.ErrMissingFitDependency)
	var mde *component.MissingDependencyError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, "network_init", mde.Step)
	assert.Equal(t, []component.Field{component.FieldNetwork}, mde.Missing)

	assert.Error(t, p.CheckContract(component.FieldXTrain))
	assert.NoError(t, p.CheckContract(component.FieldXTrain, component.FieldNetwork))
	assert.Equal(t, []component.Field{component.FieldNetwork, component.FieldXTrain}, p.Requires())
}

func TestPredictBatchedMatchesUnbatched(t *testing.T) {
	p := fitted(t)
	X := mat.NewDense(10, 3, nil)
	for i := range 10 {
		for j := range 3 {
			X.Set(i, j, float64(i*3+j)/7)
		}
	}

	whole, err := p.Predict(context.Background(), X)
	require.NoError(t, err)
	batched, err := p.Predict(context.Background(), X, WithBatchSize(4))
	require.NoError(t, err)
	assert.True(t, mat.Equal(whole, batched))
}

func TestPredictRejectsBadBatchSize(t *testing.T) {
	p := fitted(t)
	X := mat.NewDense(2, 3, nil)
	for _, n := range []int{0, -3} {
		_, err := p.Predict(context.Background(), X, WithBatchSize(n))
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
		assert.Contains(t, err.Error(), "got ")
	}
}

func TestPredictBeforeFit(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, component.ErrNotFitted)
}

func TestIterativeDelegation(t *testing.T) {
	p := fitted(t)
	n, err := p.MaxIter()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	done, err := p.ConfigurationFullyFitted()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Contains(t, p.AdditionalRunInfo(), "session_id")

	q, err := New(nil, Options{Steps: []Step{{Name: "imputer", Node: component.NewFixed(imputer)}}})
	require.NoError(t, err)
	_, err = q.CurrentIter()
	assert.ErrorIs(t, err, ErrNotIterative)
}

func TestFitHonorsCancellation(t *testing.T) {
	p, err := New(nil, Options{Steps: steps(t), DatasetProperties: withCats})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Fit(ctx, component.NewFitDictionary())
	assert.ErrorIs(t, err, context.Canceled)
}
