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

import "errors"

var (
	// ErrNoCandidates is returned when filtering leaves no component.
	ErrNoCandidates = errors.New("no applicable component")

	// ErrMissingSelector is returned when a configuration has no selector value.
	ErrMissingSelector = errors.New("configuration has no selector value")

	// ErrNotPredictor is returned by Predict when the selected component
	// cannot predict.
	ErrNotPredictor = errors.New("selected component does not predict")
)
