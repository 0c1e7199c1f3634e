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
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// DefaultEpochs is used when neither the fit dictionary nor the init
// params set "epochs".
const DefaultEpochs = 20

// ErrInvalidTarget indicates targets that do not fit the network output.
var ErrInvalidTarget = errors.New("invalid training target")

// StandardTrainer trains the network with mini-batches.
//
// Description:
//
//	Regression minimizes mean squared error. Classification minimizes
//	softmax cross-entropy with the class index in target column 0.
//	Batches are reshuffled each epoch from the pipeline's random source.
//	After training, train and validation metrics are recorded in the run
//	summary, which is saved to the backend when one and a job ID are set.
var StandardTrainer = component.Descriptor{
	ID:    "StandardTrainer",
	Stage: component.StageTrainer,
	Properties: component.Properties{
		ShortName: "StandardTrainer",
		Name:      "Standard Trainer",
	},
	Requires: []component.Field{
		component.FieldXTrain,
		component.FieldYTrain,
		component.FieldTrainIndices,
		component.FieldTabularTransformer,
		component.FieldNetwork,
		component.FieldOptimizer,
		component.FieldDatasetProperties,
	},
	Provides: []component.Field{component.FieldRunSummary},
	SearchSpace: func(component.DatasetProperties) *configspace.Space {
		return configspace.MustNew(configspace.MustUniformInteger("batch_size", 16, 512, 64, true))
	},
	New: newTrainer,
}

type trainer struct {
	batchSize int
	epochs    int
	rng       *rand.Rand
	logger    *slog.Logger

	classification bool
	transformer    component.Transformer
	network        component.Network
	iter           int
	maxIter        int
	summary        *component.RunSummary
}

func newTrainer(p component.Params) (component.Component, error) {
	t := &trainer{
		batchSize: p.Int("batch_size", 64),
		epochs:    p.Int("epochs", 0),
		rng:       p.Rand,
		logger:    p.Log(),
	}
	if t.batchSize < 1 {
		return nil, fmt.Errorf("%w: batch_size must be positive, got %d", component.ErrInvalidParam, t.batchSize)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(1, 2))
	}
	return t, nil
}

// Fit trains the network in place.
func (t *trainer) Fit(ctx context.Context, fd *component.FitDictionary) error {
	if err := fd.Require(string(StandardTrainer.ID), StandardTrainer.Requires...); err != nil {
		return err
	}
	started := time.Now()
	t.classification = fd.DatasetProperties.TaskType.IsClassification()
	t.transformer = fd.TabularTransformer
	t.network = fd.Network
	t.maxIter = t.epochsFor(fd)
	t.iter = 0

	X, y, err := t.rows(fd, fd.TrainIndices)
	if err != nil {
		return fmt.Errorf("training rows: %w", err)
	}
	target, err := t.targets(y)
	if err != nil {
		return err
	}

	n, _ := X.Dims()
	losses := make([]float64, 0, t.maxIter)
	for epoch := range t.maxIter {
		if err := ctx.Err(); err != nil {
			return err
		}
		var epochLoss float64
		perm := t.rng.Perm(n)
		for lo := 0; lo < n; lo += t.batchSize {
			batch := perm[lo:min(lo+t.batchSize, n)]
			Xb, Tb := gather(X, batch), gather(target, batch)
			out := t.network.Forward(Xb)
			loss, dOut := t.lossGrad(out, Tb)
			fd.Optimizer.Step(t.network.Params(), t.network.Backward(Xb, dOut))
			epochLoss += loss * float64(len(batch))
		}
		epochLoss /= float64(n)
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			t.logger.Warn("training diverged, stopping early", slog.Int("epoch", epoch+1))
			break
		}
		losses = append(losses, epochLoss)
		t.iter++
		t.logger.Debug("epoch finished",
			slog.Int("epoch", epoch+1),
			slog.Float64("train_loss", losses[epoch]),
		)
	}

	metrics := make(map[string]float64)
	t.score(metrics, "train", X, y)
	switch {
	case fd.XVal != nil:
		Xv, err := t.heldOut(fd.XVal, fd.YVal)
		if err != nil {
			return fmt.Errorf("validation set: %w", err)
		}
		t.score(metrics, "val", Xv, fd.YVal)
	case len(fd.ValIndices) > 0:
		Xv, yv, err := t.rows(fd, fd.ValIndices)
		if err != nil {
			return fmt.Errorf("validation rows: %w", err)
		}
		t.score(metrics, "val", Xv, yv)
	}

	runID := fd.JobID
	if runID == "" {
		runID = uuid.NewString()
	}
	t.summary = &component.RunSummary{
		RunID:      runID,
		Estimator:  string(StandardTrainer.ID),
		Epochs:     t.iter,
		TrainLoss:  losses,
		Metrics:    metrics,
		StartedAt:  started.Unix(),
		FinishedAt: time.Now().Unix(),
	}
	if fd.Backend != nil && fd.JobID != "" {
		if err := fd.Backend.SaveRunSummary(ctx, t.summary); err != nil {
			return fmt.Errorf("save run summary: %w", err)
		}
	}
	t.logger.Info("training finished",
		slog.String("run_id", runID),
		slog.Int("epochs", t.iter),
		slog.Any("metrics", metrics),
	)
	return nil
}

// Transform publishes the run summary.
func (t *trainer) Transform(_ context.Context, fd *component.FitDictionary) error {
	if t.summary == nil {
		return fmt.Errorf("%s: %w", StandardTrainer.ID, component.ErrNotFitted)
	}
	fd.RunSummary = t.summary
	return nil
}

// Predict transforms raw feature rows and runs the network. Classification
// returns class probabilities.
func (t *trainer) Predict(_ context.Context, X *mat.Dense) (*mat.Dense, error) {
	if t.network == nil {
		return nil, fmt.Errorf("%s: %w", StandardTrainer.ID, component.ErrNotFitted)
	}
	Xt, err := t.transformer.Transform(X)
	if err != nil {
		return nil, err
	}
	return t.predictTransformed(Xt), nil
}

// NumTargets is the network output width.
func (t *trainer) NumTargets() int {
	if t.network == nil {
		return 0
	}
	return t.network.OutputDim()
}

func (t *trainer) MaxIter() int      { return t.maxIter }
func (t *trainer) CurrentIter() int  { return t.iter }
func (t *trainer) FullyFitted() bool { return t.maxIter > 0 && t.iter >= t.maxIter }

// RunInfo reports the last run for AdditionalRunInfo.
func (t *trainer) RunInfo() map[string]any {
	if t.summary == nil {
		return nil
	}
	info := map[string]any{
		"run_id": t.summary.RunID,
		"epochs": t.summary.Epochs,
	}
	if n := len(t.summary.TrainLoss); n > 0 {
		info["train_loss"] = t.summary.TrainLoss[n-1]
	}
	for k, v := range t.summary.Metrics {
		info[k] = v
	}
	return info
}

func (t *trainer) epochsFor(fd *component.FitDictionary) int {
	switch {
	case fd.Epochs > 0:
		return fd.Epochs
	case t.epochs > 0:
		return t.epochs
	}
	return DefaultEpochs
}

// rows gathers and transforms the feature rows and gathers the target rows.
func (t *trainer) rows(fd *component.FitDictionary, idx []int) (X, y *mat.Dense, err error) {
	xr, _ := fd.XTrain.Dims()
	yr, _ := fd.YTrain.Dims()
	if xr != yr {
		return nil, nil, fmt.Errorf("%w: %d feature rows but %d target rows", ErrInvalidTarget, xr, yr)
	}
	if len(idx) == 0 {
		return nil, nil, fmt.Errorf("%w: no rows", ErrInvalidTarget)
	}
	for _, i := range idx {
		if i < 0 || i >= xr {
			return nil, nil, fmt.Errorf("%w: row %d outside %d rows", ErrInvalidTarget, i, xr)
		}
	}
	X, err = t.transformer.Transform(gather(fd.XTrain, idx))
	if err != nil {
		return nil, nil, err
	}
	return X, gather(fd.YTrain, idx), nil
}

// heldOut transforms a separate validation set.
func (t *trainer) heldOut(X, y *mat.Dense) (*mat.Dense, error) {
	if y == nil {
		return nil, fmt.Errorf("%w: validation features without targets", ErrInvalidTarget)
	}
	xr, _ := X.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("%w: %d feature rows but %d target rows", ErrInvalidTarget, xr, yr)
	}
	return t.transformer.Transform(X)
}

// targets one-hot encodes class labels, or checks the regression width.
func (t *trainer) targets(y *mat.Dense) (*mat.Dense, error) {
	r, c := y.Dims()
	out := t.network.OutputDim()
	if !t.classification {
		if c != out {
			return nil, fmt.Errorf("%w: %d target columns, network outputs %d", ErrInvalidTarget, c, out)
		}
		return y, nil
	}
	onehot := mat.NewDense(r, out, nil)
	for i := range r {
		label := y.At(i, 0)
		k := int(label)
		if float64(k) != label || k < 0 || k >= out {
			return nil, fmt.Errorf("%w: label %g is not a class index below %d", ErrInvalidTarget, label, out)
		}
		onehot.Set(i, k, 1)
	}
	return onehot, nil
}

// lossGrad returns the mean batch loss and its gradient with respect to
// the network output.
func (t *trainer) lossGrad(out, target *mat.Dense) (float64, *mat.Dense) {
	r, c := out.Dims()
	grad := mat.NewDense(r, c, nil)
	var loss float64
	if t.classification {
		p := softmax(out)
		for i := range r {
			for j := range c {
				if target.At(i, j) == 1 {
					loss -= math.Log(max(p.At(i, j), 1e-12))
				}
				grad.Set(i, j, (p.At(i, j)-target.At(i, j))/float64(r))
			}
		}
		return loss / float64(r), grad
	}
	scale := float64(r * c)
	for i := range r {
		for j := range c {
			d := out.At(i, j) - target.At(i, j)
			loss += d * d
			grad.Set(i, j, 2*d/scale)
		}
	}
	return loss / scale, grad
}

func (t *trainer) predictTransformed(Xt *mat.Dense) *mat.Dense {
	out := t.network.Forward(Xt)
	if t.classification {
		return softmax(out)
	}
	return out
}

func (t *trainer) score(into map[string]float64, prefix string, X, y *mat.Dense) {
	task := component.TaskTabularRegression
	if t.classification {
		task = component.TaskTabularClassification
	}
	pred := t.predictTransformed(X)
	for _, m := range MetricsFor(task) {
		// JSON cannot carry NaN, so a diverged score is left out.
		if v := m.Score(pred, y); !math.IsNaN(v) && !math.IsInf(v, 0) {
			into[prefix+"_"+m.ShortName] = v
		}
	}
}

// softmax applies a numerically stable row-wise softmax.
func softmax(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		row := out.RawRowView(i)
		copy(row, m.RawRowView(i))
		hi := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - hi)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return out
}

func gather(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, idx := range rows {
		out.SetRow(i, m.RawRowView(idx))
	}
	return out
}
