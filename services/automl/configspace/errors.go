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

import "errors"

// Sentinel errors for the configspace package.
var (
	// ErrInvalidHyperparameter is returned when a hyperparameter domain is malformed.
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")

	// ErrDuplicateHyperparameter is returned when a name is added twice.
	ErrDuplicateHyperparameter = errors.New("hyperparameter already exists")

	// ErrUnknownHyperparameter is returned when a name is not part of the space.
	ErrUnknownHyperparameter = errors.New("unknown hyperparameter")

	// ErrInvalidCondition is returned when a condition references missing
	// hyperparameters, an illegal value, or would introduce a cycle.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrInvalidForbidden is returned when a forbidden clause is malformed.
	ErrInvalidForbidden = errors.New("invalid forbidden clause")

	// ErrIllegalValue is returned when a value is outside a hyperparameter's domain.
	ErrIllegalValue = errors.New("illegal value")

	// ErrMissingValue is returned when an active hyperparameter has no value.
	ErrMissingValue = errors.New("active hyperparameter has no value")

	// ErrInactiveValue is returned when an inactive hyperparameter has a value.
	ErrInactiveValue = errors.New("inactive hyperparameter has a value")

	// ErrForbiddenConfiguration is returned when values match a forbidden clause.
	ErrForbiddenConfiguration = errors.New("configuration is forbidden")

	// ErrSamplingExhausted is returned when rejection sampling cannot find a
	// configuration that avoids every forbidden clause.
	ErrSamplingExhausted = errors.New("could not sample a legal configuration")

	// ErrNilRand is returned when sampling without a random source.
	ErrNilRand = errors.New("random source must not be nil")
)
