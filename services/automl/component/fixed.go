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
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Fixed is a pipeline step bound to a single component.
type Fixed struct {
	desc Descriptor
	comp Component
}

// NewFixed wraps a descriptor as a fixed step.
func NewFixed(d Descriptor) *Fixed {
	return &Fixed{desc: d}
}

// Descriptor returns the bound descriptor.
func (f *Fixed) Descriptor() Descriptor { return f.desc }

// ComponentName is the bound component's ID.
func (f *Fixed) ComponentName() string { return string(f.desc.ID) }

// Component returns the instance, or nil before SetHyperparameters.
func (f *Fixed) Component() Component { return f.comp }

// SearchSpace returns the component's local space.
func (f *Fixed) SearchSpace(props DatasetProperties) *configspace.Space {
	return f.desc.Space(props)
}

// SetHyperparameters instantiates the component from a configuration of its
// local space.
func (f *Fixed) SetHyperparameters(cfg *configspace.Configuration, init map[string]any, rng *rand.Rand, logger *slog.Logger) error {
	var values map[string]configspace.Value
	if cfg != nil {
		values = cfg.Values()
	}
	comp, err := f.desc.New(Params{Values: values, Init: init, Rand: rng, Logger: logger})
	if err != nil {
		return fmt.Errorf("instantiate %s: %w", f.desc.ID, err)
	}
	f.comp = comp
	return nil
}

// Requires returns the component's declared inputs.
func (f *Fixed) Requires() []Field { return f.desc.Requires }

// Provides returns the component's declared outputs.
func (f *Fixed) Provides() []Field { return f.desc.Provides }

func (f *Fixed) Fit(ctx context.Context, fd *FitDictionary) error {
	if f.comp == nil {
		return fmt.Errorf("%s: %w", f.desc.ID, ErrNotFitted)
	}
	return f.comp.Fit(ctx, fd)
}

func (f *Fixed) Transform(ctx context.Context, fd *FitDictionary) error {
	if f.comp == nil {
		return fmt.Errorf("%s: %w", f.desc.ID, ErrNotFitted)
	}
	return f.comp.Transform(ctx, fd)
}
