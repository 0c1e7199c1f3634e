// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package component defines pipeline components, their static descriptors,
// the per-stage registry and the fit dictionary threaded between steps.
//
// A component is registered once per stage as a Descriptor: metadata, an
// applicability check, a search-space factory and an instance factory.
// Pipelines never refer to component types directly; they select a
// Descriptor by ID and call its factory with the resolved hyperparameters.
package component

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Component contracts
// =============================================================================

// Component is one fitted step of a pipeline.
type Component interface {
	// Fit learns from the fit dictionary. Requirements declared on the
	// descriptor are checked before Fit is called.
	Fit(ctx context.Context, fd *FitDictionary) error

	// Transform writes the component's artifacts into the fit dictionary.
	Transform(ctx context.Context, fd *FitDictionary) error
}

// Predictor is a component that can serve as the final estimator.
type Predictor interface {
	Component

	// Predict maps raw feature rows to predictions, one row per input row
	// and NumTargets columns.
	Predict(ctx context.Context, X *mat.Dense) (*mat.Dense, error)

	// NumTargets is the prediction width.
	NumTargets() int
}

// Iterative is an estimator trained over a number of iterations.
type Iterative interface {
	MaxIter() int
	CurrentIter() int
	FullyFitted() bool
}

// RunInfoer contributes extra information to a run record.
type RunInfoer interface {
	RunInfo() map[string]any
}

// =============================================================================
// Fitted artifacts
// =============================================================================

// Transformer is a fitted feature transformation.
type Transformer interface {
	Transform(X *mat.Dense) (*mat.Dense, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(X *mat.Dense) (*mat.Dense, error)

// Transform calls f(X).
func (f TransformerFunc) Transform(X *mat.Dense) (*mat.Dense, error) { return f(X) }

// Network is a trainable model.
type Network interface {
	// InputDim is the expected number of feature columns.
	InputDim() int

	// OutputDim is the prediction width.
	OutputDim() int

	// Forward computes outputs for the rows of X.
	Forward(X *mat.Dense) *mat.Dense

	// Params returns the trainable parameters as weight, bias pairs, one
	// pair per layer. Weights are fanIn x fanOut, biases 1 x fanOut.
	// Updates are made in place.
	Params() []*mat.Dense

	// Backward returns gradients for Params given dLoss/dOutput.
	Backward(X *mat.Dense, dOut *mat.Dense) []*mat.Dense
}

// Optimizer updates network parameters from gradients.
type Optimizer interface {
	Step(params, grads []*mat.Dense)
}

// RunSummary records the outcome of a training run.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Estimator  string             `json:"estimator"`
	Epochs     int                `json:"epochs"`
	TrainLoss  []float64          `json:"train_loss"`
	Metrics    map[string]float64 `json:"metrics"`
	StartedAt  int64              `json:"started_at"`
	FinishedAt int64              `json:"finished_at"`
}

// Backend is opaque run storage.
type Backend interface {
	SaveRunSummary(ctx context.Context, summary *RunSummary) error
	LoadRunSummary(ctx context.Context, runID string) (*RunSummary, error)
}
