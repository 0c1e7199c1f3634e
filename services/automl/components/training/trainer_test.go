// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package training

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/components/setup"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

type memoryBackend struct {
	saved map[string]*component.RunSummary
}

func (b *memoryBackend) SaveRunSummary(_ context.Context, s *component.RunSummary) error {
	if b.saved == nil {
		b.saved = make(map[string]*component.RunSummary)
	}
	b.saved[s.RunID] = s
	return nil
}

func (b *memoryBackend) LoadRunSummary(_ context.Context, id string) (*component.RunSummary, error) {
	s, ok := b.saved[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

var identity = component.TransformerFunc(func(X *mat.Dense) (*mat.Dense, error) { return X, nil })

// lineFitDictionary holds 20 points in (-1, 1) with targets from label.
func lineFitDictionary(task component.TaskType, outputs int, label func(x float64) float64) *component.FitDictionary {
	const n = 20
	fd := component.NewFitDictionary()
	fd.XTrain = mat.NewDense(n, 1, nil)
	fd.YTrain = mat.NewDense(n, 1, nil)
	for i := range n {
		x := -1 + 2*(float64(i)+0.5)/n
		fd.XTrain.Set(i, 0, x)
		fd.YTrain.Set(i, 0, label(x))
		if i%5 == 4 {
			fd.ValIndices = append(fd.ValIndices, i)
		} else {
			fd.TrainIndices = append(fd.TrainIndices, i)
		}
	}
	fd.TabularTransformer = identity
	fd.Network = setup.NewDense(rand.New(rand.NewPCG(1, 1)), 1, outputs)
	fd.Optimizer = &setup.SGD{LR: 0.1}
	fd.DatasetProperties = &component.DatasetProperties{TaskType: task}
	return fd
}

func newTestTrainer(t *testing.T, batch int) component.Component {
	t.Helper()
	c, err := StandardTrainer.New(component.Params{
		Values: map[string]configspace.Value{"batch_size": batch},
		Rand:   rand.New(rand.NewPCG(5, 5)),
	})
	require.NoError(t, err)
	return c
}

func TestTrainer_Regression(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularRegression, 1, func(x float64) float64 { return 2*x + 1 })
	fd.Epochs = 200

	c := newTestTrainer(t, 8)
	require.NoError(t, c.Fit(context.Background(), fd))
	require.NoError(t, c.Transform(context.Background(), fd))

	s := fd.RunSummary
	require.NotNil(t, s)
	assert.Equal(t, 200, s.Epochs)
	assert.Len(t, s.TrainLoss, 200)
	assert.Less(t, s.TrainLoss[199], s.TrainLoss[0]/10)
	assert.Less(t, s.Metrics["train_RMSE"], 0.1)
	assert.Contains(t, s.Metrics, "val_RMSE")
	assert.NotEmpty(t, s.RunID)

	it, ok := c.(component.Iterative)
	require.True(t, ok)
	assert.Equal(t, 200, it.MaxIter())
	assert.True(t, it.FullyFitted())

	pred, err := c.(component.Predictor).Predict(context.Background(), mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pred.At(0, 0), 0.1)
}

func TestTrainer_ScoresSeparateValidationSet(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularRegression, 1, func(x float64) float64 { return x })
	fd.TrainIndices = append(fd.TrainIndices, fd.ValIndices...)
	fd.ValIndices = nil
	fd.XVal = mat.NewDense(3, 1, []float64{-0.5, 0, 0.5})
	fd.YVal = mat.NewDense(3, 1, []float64{-0.5, 0, 0.5})
	fd.Epochs = 3

	c := newTestTrainer(t, 8)
	require.NoError(t, c.Fit(context.Background(), fd))
	require.NoError(t, c.Transform(context.Background(), fd))
	assert.Contains(t, fd.RunSummary.Metrics, "val_RMSE")

	fd.YVal = mat.NewDense(2, 1, nil)
	require.ErrorIs(t, c.Fit(context.Background(), fd), ErrInvalidTarget)
}

func TestTrainer_Classification(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularClassification, 2, func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return 1
	})
	fd.Epochs = 100
	fd.Optimizer = &setup.SGD{LR: 0.5}

	c := newTestTrainer(t, 4)
	require.NoError(t, c.Fit(context.Background(), fd))
	require.NoError(t, c.Transform(context.Background(), fd))

	assert.GreaterOrEqual(t, fd.RunSummary.Metrics["train_accuracy"], 0.9)
	assert.NotContains(t, fd.RunSummary.Metrics, "train_RMSE")

	p := c.(component.Predictor)
	assert.Equal(t, 2, p.NumTargets())
	pred, err := p.Predict(context.Background(), mat.NewDense(2, 1, []float64{-0.9, 0.9}))
	require.NoError(t, err)
	assert.InDelta(t, 1, mat.Sum(pred.RowView(0)), 1e-9)
	assert.Greater(t, pred.At(0, 0), pred.At(0, 1))
	assert.Greater(t, pred.At(1, 1), pred.At(1, 0))
}

func TestTrainer_EpochsFromInitParams(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularRegression, 1, func(x float64) float64 { return x })
	c, err := StandardTrainer.New(component.Params{Init: map[string]any{"epochs": 3}})
	require.NoError(t, err)
	require.NoError(t, c.Fit(context.Background(), fd))
	assert.Equal(t, 3, c.(component.Iterative).CurrentIter())
}

func TestTrainer_SavesToBackend(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularRegression, 1, func(x float64) float64 { return x })
	fd.Epochs = 2
	backend := &memoryBackend{}
	fd.Backend = backend
	fd.JobID = "job-1"

	c := newTestTrainer(t, 16)
	require.NoError(t, c.Fit(context.Background(), fd))

	saved, err := backend.LoadRunSummary(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "StandardTrainer", saved.Estimator)
	assert.Equal(t, 2, saved.Epochs)
}

func TestTrainer_RejectsBadLabels(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularClassification, 2, func(float64) float64 { return 2 })
	err := newTestTrainer(t, 4).Fit(context.Background(), fd)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestTrainer_Cancelled(t *testing.T) {
	fd := lineFitDictionary(component.TaskTabularRegression, 1, func(x float64) float64 { return x })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestTrainer(t, 4).Fit(ctx, fd)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrainer_MissingDependency(t *testing.T) {
	err := newTestTrainer(t, 4).Fit(context.Background(), component.NewFitDictionary())
	var mde *component.MissingDependencyError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, "StandardTrainer", mde.Step)
	assert.Len(t, mde.Missing, len(StandardTrainer.Requires))
}

func TestMetrics(t *testing.T) {
	pred := mat.NewDense(2, 1, []float64{1, 3})
	target := mat.NewDense(2, 1, []float64{1, 1})
	assert.InDelta(t, 1.4142135623730951, RMSE.Score(pred, target), 1e-12)

	probs := mat.NewDense(3, 2, []float64{0.9, 0.1, 0.2, 0.8, 0.6, 0.4})
	labels := mat.NewDense(3, 1, []float64{0, 1, 1})
	assert.InDelta(t, 2.0/3.0, Accuracy.Score(probs, labels), 1e-12)

	reg := MetricsFor(component.TaskTabularRegression)
	require.Len(t, reg, 1)
	assert.Equal(t, "RMSE", reg[0].ShortName)
	cls := MetricsFor(component.TaskTabularClassification)
	require.Len(t, cls, 1)
	assert.Equal(t, "accuracy", cls[0].ShortName)
	assert.True(t, Accuracy.GreaterIsBetter)
	assert.False(t, RMSE.GreaterIsBetter)
}
