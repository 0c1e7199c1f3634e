// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package choice implements a pipeline step that resolves to exactly one
// component out of a stage registry.
//
// The step's local space is a categorical selector named Selector over the
// candidate IDs, plus each candidate's own space namespaced under
// "<candidate>:" and active only while the selector picks that candidate.
package choice

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Selector is the reserved hyperparameter holding the chosen component.
const Selector = "__choice__"

// Constraint restricts the candidates of a Choice.
type Constraint struct {
	// Include keeps only these IDs. Nil means no restriction.
	Include []component.ID

	// Exclude drops these IDs. Must be nil when Include is set.
	Exclude []component.ID

	// Default is a preference list for the selector default, tried before
	// the Choice's own preferences.
	Default []component.ID
}

// Choice is a stage with swappable components.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Choice struct {
	registry *component.Registry
	defaults []component.ID

	desc    *component.Descriptor
	current component.Component
}

// New creates a Choice over registry. defaults is the preference order for
// the selector default.
func New(registry *component.Registry, defaults ...component.ID) *Choice {
	return &Choice{registry: registry, defaults: defaults}
}

// Stage returns the stage of the underlying registry.
func (c *Choice) Stage() component.Stage { return c.registry.Stage() }

// AvailableComponents filters the registry.
//
// Description:
//
//	Returns the registered descriptors applicable to props, restricted by
//	include or exclude, in registration order.
//
// Outputs:
//
//	[]component.Descriptor - Candidates, possibly empty.
//	error - component.ErrInvalidIncludeExclude when include and exclude
//	        are both non-nil or include names an unregistered component.
func (c *Choice) AvailableComponents(props component.DatasetProperties, include, exclude []component.ID) ([]component.Descriptor, error) {
	if include != nil && exclude != nil {
		return nil, fmt.Errorf("%w: stage %s: include and exclude cannot be used together",
			component.ErrInvalidIncludeExclude, c.Stage())
	}
	for _, id := range include {
		if _, ok := c.registry.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: stage %s: unknown component %q in include",
				component.ErrInvalidIncludeExclude, c.Stage(), id)
		}
	}

	var out []component.Descriptor
	for _, d := range c.registry.All() {
		if include != nil && !slices.Contains(include, d.ID) {
			continue
		}
		if slices.Contains(exclude, d.ID) {
			continue
		}
		if !d.Applicable(props) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// SearchSpace builds the local space over the filtered candidates.
//
// Outputs:
//
//	*configspace.Space - Selector plus every candidate's namespaced space.
//	error - From AvailableComponents, or ErrNoCandidates.
func (c *Choice) SearchSpace(props component.DatasetProperties, cons Constraint) (*configspace.Space, error) {
	cands, err := c.AvailableComponents(props, cons.Include, cons.Exclude)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: stage %s", ErrNoCandidates, c.Stage())
	}

	names := make([]string, len(cands))
	for i, d := range cands {
		names[i] = string(d.ID)
	}
	def := names[0]
	for _, pref := range slices.Concat(cons.Default, c.defaults) {
		if slices.Contains(names, string(pref)) {
			def = string(pref)
			break
		}
	}

	cs := configspace.New()
	sel, err := configspace.NewCategorical(Selector, names, def)
	if err != nil {
		return nil, err
	}
	if err := cs.Add(sel); err != nil {
		return nil, err
	}
	for _, d := range cands {
		parent := &configspace.Parent{Name: Selector, Value: string(d.ID)}
		if err := cs.AddSpace(string(d.ID), d.Space(props), parent); err != nil {
			return nil, fmt.Errorf("stage %s: candidate %s: %w", c.Stage(), d.ID, err)
		}
	}
	return cs, nil
}

// SetHyperparameters selects and instantiates a component.
//
// Description:
//
//	Reads the selector, strips "<candidate>:" from the remaining keys and
//	merges init, where keys may be "<candidate>:key" or bare "key". Init
//	keys namespaced under another candidate are ignored. The random source
//	is handed to the factory.
//
// Inputs:
//
//	cfg - Configuration of this Choice's local space.
//	init - Fixed constructor arguments. May be nil.
//	rng - Random source for the component.
//	logger - Logger for the component. May be nil.
//
// Outputs:
//
//	error - ErrMissingSelector, component.ErrUnknownComponent, a stray key
//	        error, or the factory's error.
func (c *Choice) SetHyperparameters(cfg *configspace.Configuration, init map[string]any, rng *rand.Rand, logger *slog.Logger) error {
	values := cfg.Values()
	raw, ok := values[Selector]
	if !ok {
		return fmt.Errorf("stage %s: %w", c.Stage(), ErrMissingSelector)
	}
	selected, _ := raw.(string)
	desc, ok := c.registry.Lookup(component.ID(selected))
	if !ok {
		return fmt.Errorf("stage %s: %w: %q", c.Stage(), component.ErrUnknownComponent, selected)
	}

	prefix := selected + configspace.Delimiter
	local := make(map[string]configspace.Value, len(values))
	for k, v := range values {
		if k == Selector {
			continue
		}
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			return fmt.Errorf("stage %s: %w: %s does not belong to %s",
				c.Stage(), configspace.ErrInactiveValue, k, selected)
		}
		local[rest] = v
	}

	initLocal := make(map[string]any, len(init))
	for k, v := range init {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			initLocal[rest] = v
		} else if !strings.Contains(k, configspace.Delimiter) {
			initLocal[k] = v
		}
	}

	comp, err := desc.New(component.Params{Values: local, Init: initLocal, Rand: rng, Logger: logger})
	if err != nil {
		return fmt.Errorf("stage %s: instantiate %s: %w", c.Stage(), selected, err)
	}
	c.desc = &desc
	c.current = comp
	return nil
}

// Component returns the selected instance, or nil.
func (c *Choice) Component() component.Component { return c.current }

// ComponentName returns the selected ID, or "" before SetHyperparameters.
func (c *Choice) ComponentName() string {
	if c.desc == nil {
		return ""
	}
	return string(c.desc.ID)
}

// Requires returns the selected component's declared inputs.
func (c *Choice) Requires() []component.Field {
	if c.desc == nil {
		return nil
	}
	return c.desc.Requires
}

// Provides returns the selected component's declared outputs.
func (c *Choice) Provides() []component.Field {
	if c.desc == nil {
		return nil
	}
	return c.desc.Provides
}

func (c *Choice) Fit(ctx context.Context, fd *component.FitDictionary) error {
	if c.current == nil {
		return fmt.Errorf("stage %s: %w", c.Stage(), component.ErrNotFitted)
	}
	return c.current.Fit(ctx, fd)
}

func (c *Choice) Transform(ctx context.Context, fd *component.FitDictionary) error {
	if c.current == nil {
		return fmt.Errorf("stage %s: %w", c.Stage(), component.ErrNotFitted)
	}
	return c.current.Transform(ctx, fd)
}

// Predict delegates to the selected component.
func (c *Choice) Predict(ctx context.Context, X *mat.Dense) (*mat.Dense, error) {
	if c.current == nil {
		return nil, fmt.Errorf("stage %s: %w", c.Stage(), component.ErrNotFitted)
	}
	p, ok := c.current.(component.Predictor)
	if !ok {
		return nil, fmt.Errorf("stage %s: %w: %s", c.Stage(), ErrNotPredictor, c.ComponentName())
	}
	return p.Predict(ctx, X)
}
