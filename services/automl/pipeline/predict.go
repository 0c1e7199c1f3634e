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
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

type predictOptions struct {
	batchSize *int
}

// PredictOption configures Predict.
type PredictOption func(*predictOptions)

// WithBatchSize splits prediction into consecutive chunks of n rows.
// n must be positive.
func WithBatchSize(n int) PredictOption {
	return func(o *predictOptions) { o.batchSize = &n }
}

// Predict runs the fitted final estimator on X.
//
// Description:
//
//	Without a batch size the whole matrix is predicted at once. With one,
//	rows are predicted in consecutive chunks, each chunk through the
//	unbatched path, and copied into a pre-allocated rows x NumTargets
//	result.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between chunks.
//	X - Raw feature rows.
//	opts - WithBatchSize.
//
// Outputs:
//
//	*mat.Dense - Predictions.
//	error - ErrInvalidBatchSize naming the value, component.ErrNotFitted,
//	        ErrNotPredictor or ErrEmptyInput.
func (p *Pipeline) Predict(ctx context.Context, X *mat.Dense, opts ...PredictOption) (*mat.Dense, error) {
	var o predictOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize != nil && *o.batchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, *o.batchSize)
	}
	if !p.fitted {
		return nil, fmt.Errorf("%s: %w", p.estimator, component.ErrNotFitted)
	}
	est, ok := p.finalComponent().(component.Predictor)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPredictor, nodeName(p.steps[len(p.steps)-1].Node))
	}
	if X == nil || X.IsEmpty() {
		return nil, ErrEmptyInput
	}

	if o.batchSize == nil {
		return est.Predict(ctx, X)
	}

	rows, cols := X.Dims()
	batch := *o.batchSize
	targets := est.NumTargets()
	out := mat.NewDense(rows, targets, nil)
	for lo := 0; lo < rows; lo += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+batch, rows)
		chunk := X.Slice(lo, hi, 0, cols).(*mat.Dense)
		pred, err := p.Predict(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("rows [%d, %d): %w", lo, hi, err)
		}
		if r, c := pred.Dims(); r != hi-lo || c != targets {
			return nil, fmt.Errorf("rows [%d, %d): estimator returned %dx%d, want %dx%d",
				lo, hi, r, c, hi-lo, targets)
		}
		out.Slice(lo, hi, 0, targets).(*mat.Dense).Copy(pred)
	}
	return out, nil
}
