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

	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
)

// StepsBuilder assembles an ordered step list.
//
// Description:
//
//	Records errors as steps are added and reports them all from Build.
//
// Thread Safety:
//
//	StepsBuilder is NOT safe for concurrent use.
//
// Example:
//
//	steps, err := pipeline.NewStepsBuilder().
//	    Fixed("imputer", preprocessing.SimpleImputer).
//	    Choice("encoder", choice.New(preprocessing.Encoders, "OneHotEncoder")).
//	    Build()
type StepsBuilder struct {
	steps  []Step
	errors []error
}

// NewStepsBuilder creates an empty builder.
func NewStepsBuilder() *StepsBuilder {
	return &StepsBuilder{}
}

// Fixed appends a step bound to a single component.
func (b *StepsBuilder) Fixed(name string, d component.Descriptor) *StepsBuilder {
	b.steps = append(b.steps, Step{Name: name, Node: component.NewFixed(d)})
	return b
}

// Choice appends a step that picks one component.
func (b *StepsBuilder) Choice(name string, c *choice.Choice) *StepsBuilder {
	if c == nil {
		b.errors = append(b.errors, fmt.Errorf("%w: step %q has a nil choice", ErrInvalidStep, name))
		return b
	}
	b.steps = append(b.steps, Step{Name: name, Node: c})
	return b
}

// Nested appends a nested pipeline.
func (b *StepsBuilder) Nested(name string, p *Pipeline) *StepsBuilder {
	if p == nil {
		b.errors = append(b.errors, fmt.Errorf("%w: step %q has a nil pipeline", ErrInvalidStep, name))
		return b
	}
	b.steps = append(b.steps, Step{Name: name, Node: p})
	return b
}

// Build validates and returns the steps.
func (b *StepsBuilder) Build() ([]Step, error) {
	if len(b.errors) > 0 {
		return nil, errors.Join(b.errors...)
	}
	if err := validateSteps(b.steps); err != nil {
		return nil, err
	}
	return append([]Step(nil), b.steps...), nil
}
