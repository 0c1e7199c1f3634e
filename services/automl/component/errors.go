// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the component package.
var (
	// ErrDuplicateComponent is returned when an ID is registered twice for a stage.
	ErrDuplicateComponent = errors.New("component already registered")

	// ErrUnknownComponent is returned when an ID is not registered for a stage.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrInvalidDescriptor is returned when a descriptor is missing its ID,
	// stage or instance factory.
	ErrInvalidDescriptor = errors.New("invalid component descriptor")

	// ErrInvalidIncludeExclude is returned when include and exclude are both
	// given, or when either names an unknown step or component.
	ErrInvalidIncludeExclude = errors.New("invalid include/exclude")

	// ErrNotFitted is returned when a node is used before a component was
	// selected and instantiated.
	ErrNotFitted = errors.New("component not set; call SetHyperparameters first")

	// ErrMissingFitDependency is returned when a step runs without the fit
	// dictionary fields it requires.
	ErrMissingFitDependency = errors.New("missing fit dependency")

	// ErrInvalidParam is returned by component factories for a bad parameter.
	ErrInvalidParam = errors.New("invalid component parameter")
)

// MissingDependencyError names the step and the fit dictionary fields it
// needed but did not find.
type MissingDependencyError struct {
	Step    string
	Missing []Field
}

func (e *MissingDependencyError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.String()
	}
	return fmt.Sprintf("step %q: %v: %s", e.Step, ErrMissingFitDependency, strings.Join(names, ", "))
}

func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingFitDependency
}
