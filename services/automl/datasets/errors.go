// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datasets

import "errors"

var (
	// ErrInvalidData indicates missing or misshapen feature or target matrices.
	ErrInvalidData = errors.New("invalid dataset tensors")

	// ErrInvalidResampling indicates an inconsistent resampling configuration.
	ErrInvalidResampling = errors.New("invalid resampling configuration")

	// ErrNotImplemented indicates an unknown resampling strategy.
	ErrNotImplemented = errors.New("resampling strategy not implemented")

	// ErrSplitOutOfRange indicates a split ID with no cached split.
	ErrSplitOutOfRange = errors.New("split id out of range")
)
