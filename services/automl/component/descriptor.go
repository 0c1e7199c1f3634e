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
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Descriptor is the static registration of a component.
type Descriptor struct {
	ID         ID
	Stage      Stage
	Properties Properties

	// Requires lists the fit dictionary fields read by Fit.
	Requires []Field

	// Provides lists the fields written by Transform.
	Provides []Field

	// SearchSpace builds the component's local space. Nil means no
	// hyperparameters.
	SearchSpace func(DatasetProperties) *configspace.Space

	// New instantiates the component.
	New func(Params) (Component, error)
}

// Applicable reports whether the component can run on the dataset.
func (d Descriptor) Applicable(props DatasetProperties) bool {
	if !d.Properties.Supports(props.TaskType) {
		return false
	}
	return d.Properties.Predicate == nil || d.Properties.Predicate(props)
}

// Space returns the local search space, never nil.
func (d Descriptor) Space(props DatasetProperties) *configspace.Space {
	if d.SearchSpace == nil {
		return configspace.New()
	}
	if cs := d.SearchSpace(props); cs != nil {
		return cs
	}
	return configspace.New()
}

func (d Descriptor) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: empty ID", ErrInvalidDescriptor)
	case d.Stage == "":
		return fmt.Errorf("%w: %s has no stage", ErrInvalidDescriptor, d.ID)
	case d.New == nil:
		return fmt.Errorf("%w: %s has no factory", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// Params are the resolved inputs of a component factory.
type Params struct {
	// Values are the component's own hyperparameters, unprefixed.
	Values map[string]configspace.Value

	// Init holds fixed constructor arguments that are not searched.
	Init map[string]any

	// Rand is the pipeline's random source.
	Rand *rand.Rand

	Logger *slog.Logger
}

func (p Params) lookup(name string) (any, bool) {
	if v, ok := p.Values[name]; ok {
		return v, true
	}
	v, ok := p.Init[name]
	return v, ok
}

// Float returns a float parameter or def.
func (p Params) Float(name string, def float64) float64 {
	v, ok := p.lookup(name)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return def
}

// Int returns an integer parameter or def.
func (p Params) Int(name string, def int) int {
	v, ok := p.lookup(name)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case float64:
		return int(x)
	}
	return def
}

// String returns a string parameter or def.
func (p Params) String(name, def string) string {
	if v, ok := p.lookup(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Log returns the logger, falling back to slog.Default.
func (p Params) Log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
