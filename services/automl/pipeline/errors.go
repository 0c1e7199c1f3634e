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
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilFitDictionary is returned when Fit is called without a fit dictionary.
	ErrNilFitDictionary = errors.New("fit dictionary must not be nil")

	// ErrNilConfiguration is returned when SetHyperparameters gets no configuration.
	ErrNilConfiguration = errors.New("configuration must not be nil")

	// ErrNoSteps is returned when neither steps nor a steps provider are given.
	ErrNoSteps = errors.New("pipeline has no steps")

	// ErrInvalidStep is returned for an empty, duplicate or delimited step name,
	// or a nil node.
	ErrInvalidStep = errors.New("invalid pipeline step")

	// ErrUnsupportedStep is returned for a node that is not a fixed
	// component, a choice or a nested pipeline.
	ErrUnsupportedStep = errors.New("unsupported step type")

	// ErrInfeasiblePipeline is returned when no combination of components
	// is legal for the dataset.
	ErrInfeasiblePipeline = errors.New("no valid pipeline found")

	// ErrConfigurationSpaceMismatch is returned when a configuration was
	// built against a different space than the pipeline's.
	ErrConfigurationSpaceMismatch = errors.New("configuration space mismatch")

	// ErrInvalidBatchSize is returned for a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be a positive integer")

	// ErrNotIterative is returned when the final estimator is not iterative.
	ErrNotIterative = errors.New("final estimator is not iterative")

	// ErrNotPredictor is returned when the final estimator cannot predict.
	ErrNotPredictor = errors.New("final estimator does not predict")

	// ErrEmptyInput is returned when predicting on an empty matrix.
	ErrEmptyInput = errors.New("input has no rows")
)

// MismatchError reports a configuration built against a different space.
// Diff is a unified diff from the pipeline's space to the configuration's.
type MismatchError struct {
	Diff string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: the configuration was built for a different search space:\n%s",
		ErrConfigurationSpaceMismatch, e.Diff)
}

// Unwrap returns ErrConfigurationSpaceMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrConfigurationSpaceMismatch
}

// StepError wraps an error with the step that caused it.
type StepError struct {
	Step string
	Err  error
}

// Error returns the error message.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
