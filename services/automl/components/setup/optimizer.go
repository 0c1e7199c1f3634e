// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package setup

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// AdamOptimizer is Adam with optional L2 weight decay.
var AdamOptimizer = component.Descriptor{
	ID:    "AdamOptimizer",
	Stage: component.StageOptimizer,
	Properties: component.Properties{
		ShortName: "Adam",
		Name:      "Adaptive Momentum Optimizer",
	},
	Requires: []component.Field{component.FieldNetwork},
	Provides: []component.Field{component.FieldOptimizer},
	SearchSpace: func(component.DatasetProperties) *configspace.Space {
		return configspace.MustNew(
			configspace.MustUniformFloat("lr", 1e-5, 1e-1, 1e-2, true),
			configspace.MustUniformFloat("beta1", 0.85, 0.999, 0.9, false),
			configspace.MustUniformFloat("beta2", 0.9, 0.9999, 0.9, false),
			configspace.MustUniformFloat("weight_decay", 0, 0.1, 0, false),
		)
	},
	New: func(p component.Params) (component.Component, error) {
		a := &Adam{
			LR:          p.Float("lr", 1e-2),
			Beta1:       p.Float("beta1", 0.9),
			Beta2:       p.Float("beta2", 0.9),
			WeightDecay: p.Float("weight_decay", 0),
		}
		if a.LR <= 0 {
			return nil, fmt.Errorf("%w: lr must be positive, got %g", component.ErrInvalidParam, a.LR)
		}
		return &optimizerComponent{id: "AdamOptimizer", opt: a}, nil
	},
}

// SGDOptimizer is stochastic gradient descent, optionally with momentum.
var SGDOptimizer = component.Descriptor{
	ID:    "SGDOptimizer",
	Stage: component.StageOptimizer,
	Properties: component.Properties{
		ShortName: "SGD",
		Name:      "Stochastic gradient descent (optionally with momentum)",
	},
	Requires: []component.Field{component.FieldNetwork},
	Provides: []component.Field{component.FieldOptimizer},
	SearchSpace: func(component.DatasetProperties) *configspace.Space {
		return configspace.MustNew(
			configspace.MustUniformFloat("lr", 1e-6, 1e-1, 1e-2, true),
			configspace.MustUniformFloat("weight_decay", 0, 0.1, 0, false),
			configspace.MustUniformFloat("momentum", 0, 0.99, 0, false),
		)
	},
	New: func(p component.Params) (component.Component, error) {
		s := &SGD{
			LR:          p.Float("lr", 1e-2),
			Momentum:    p.Float("momentum", 0),
			WeightDecay: p.Float("weight_decay", 0),
		}
		if s.LR <= 0 {
			return nil, fmt.Errorf("%w: lr must be positive, got %g", component.ErrInvalidParam, s.LR)
		}
		return &optimizerComponent{id: "SGDOptimizer", opt: s}, nil
	},
}

// Optimizers holds every optimizer, in default-preference order.
var Optimizers = newRegistry(component.StageOptimizer, AdamOptimizer, SGDOptimizer)

// optimizerComponent binds an optimizer to the network at Fit. Binding
// resets the optimizer state.
type optimizerComponent struct {
	id  component.ID
	opt interface {
		component.Optimizer
		reset()
	}
	bound bool
}

func (o *optimizerComponent) Fit(_ context.Context, fd *component.FitDictionary) error {
	if err := fd.Require(string(o.id), component.FieldNetwork); err != nil {
		return err
	}
	o.opt.reset()
	o.bound = true
	return nil
}

func (o *optimizerComponent) Transform(_ context.Context, fd *component.FitDictionary) error {
	if !o.bound {
		return fmt.Errorf("%s: %w", o.id, component.ErrNotFitted)
	}
	fd.Optimizer = o.opt
	return nil
}

// SGD implements component.Optimizer.
type SGD struct {
	LR          float64
	Momentum    float64
	WeightDecay float64

	velocity []*mat.Dense
}

func (s *SGD) reset() { s.velocity = nil }

// Step applies one update in place.
func (s *SGD) Step(params, grads []*mat.Dense) {
	if s.velocity == nil {
		s.velocity = zerosLike(params)
	}
	for i, p := range params {
		g := withDecay(grads[i], p, s.WeightDecay)
		v := s.velocity[i]
		v.Apply(func(r, c int, x float64) float64 { return s.Momentum*x + g.At(r, c) }, v)
		p.Apply(func(r, c int, x float64) float64 { return x - s.LR*v.At(r, c) }, p)
	}
}

// Adam implements component.Optimizer.
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	WeightDecay float64

	t    int
	m, v []*mat.Dense
}

func (a *Adam) reset() {
	a.t = 0
	a.m, a.v = nil, nil
}

// Step applies one bias-corrected update in place.
func (a *Adam) Step(params, grads []*mat.Dense) {
	if a.m == nil {
		a.m, a.v = zerosLike(params), zerosLike(params)
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	const eps = 1e-8
	for i, p := range params {
		g := withDecay(grads[i], p, a.WeightDecay)
		m, v := a.m[i], a.v[i]
		m.Apply(func(r, c int, x float64) float64 { return a.Beta1*x + (1-a.Beta1)*g.At(r, c) }, m)
		v.Apply(func(r, c int, x float64) float64 {
			gv := g.At(r, c)
			return a.Beta2*x + (1-a.Beta2)*gv*gv
		}, v)
		p.Apply(func(r, c int, x float64) float64 {
			mh := m.At(r, c) / c1
			vh := v.At(r, c) / c2
			return x - a.LR*mh/(math.Sqrt(vh)+eps)
		}, p)
	}
}

func zerosLike(ms []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(ms))
	for i, m := range ms {
		r, c := m.Dims()
		out[i] = mat.NewDense(r, c, nil)
	}
	return out
}

// withDecay returns g + decay*p.
func withDecay(g, p *mat.Dense, decay float64) *mat.Dense {
	if decay == 0 {
		return g
	}
	out := mat.DenseCopyOf(g)
	out.Apply(func(r, c int, x float64) float64 { return x + decay*p.At(r, c) }, out)
	return out
}
