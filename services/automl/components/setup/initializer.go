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
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// Bias strategies.
const (
	BiasZero   = "Zero"
	BiasNormal = "Normal"
)

// weightInit fills one weight matrix.
type weightInit func(rng *rand.Rand, w *mat.Dense)

// XavierInit draws weights uniformly in +-sqrt(6/(fanIn+fanOut)).
var XavierInit = initializer("XavierInit", "Xavier Initialization", func(rng *rand.Rand, w *mat.Dense) {
	in, out := w.Dims()
	bound := math.Sqrt(6 / float64(in+out))
	w.Apply(func(_, _ int, _ float64) float64 { return (2*rng.Float64() - 1) * bound }, w)
})

// KaimingInit draws weights from N(0, 2/fanIn).
var KaimingInit = initializer("KaimingInit", "Kaiming Initialization", func(rng *rand.Rand, w *mat.Dense) {
	in, _ := w.Dims()
	std := math.Sqrt(2 / float64(in))
	w.Apply(func(_, _ int, _ float64) float64 { return rng.NormFloat64() * std }, w)
})

// NoInit keeps the network's own weights and only applies the bias
// strategy.
var NoInit = initializer("NoInit", "No Initialization", nil)

// Initializers holds every initializer, in default-preference order.
var Initializers = newRegistry(component.StageInitializer, XavierInit, KaimingInit, NoInit)

func initializer(id component.ID, name string, init weightInit) component.Descriptor {
	return component.Descriptor{
		ID:         id,
		Stage:      component.StageInitializer,
		Properties: component.Properties{ShortName: string(id), Name: name},
		Requires:   []component.Field{component.FieldNetwork},
		SearchSpace: func(component.DatasetProperties) *configspace.Space {
			return configspace.MustNew(configspace.MustCategorical("bias_strategy",
				[]string{BiasZero, BiasNormal}, BiasZero))
		},
		New: func(p component.Params) (component.Component, error) {
			bias := p.String("bias_strategy", BiasZero)
			if bias != BiasZero && bias != BiasNormal {
				return nil, fmt.Errorf("%w: unknown bias_strategy %q", component.ErrInvalidParam, bias)
			}
			return &networkInitializer{id: id, init: init, bias: bias, rng: rngOf(p)}, nil
		},
	}
}

// networkInitializer rewrites the network parameters in place at Fit.
type networkInitializer struct {
	id   component.ID
	init weightInit
	bias string
	rng  *rand.Rand
}

func (n *networkInitializer) Fit(_ context.Context, fd *component.FitDictionary) error {
	if err := fd.Require(string(n.id), component.FieldNetwork); err != nil {
		return err
	}
	params := fd.Network.Params()
	for i := 0; i+1 < len(params); i += 2 {
		if n.init != nil {
			n.init(n.rng, params[i])
		}
		b := params[i+1]
		b.Apply(func(_, _ int, _ float64) float64 {
			if n.bias == BiasNormal {
				return n.rng.NormFloat64()
			}
			return 0
		}, b)
	}
	return nil
}

func (n *networkInitializer) Transform(context.Context, *component.FitDictionary) error { return nil }
