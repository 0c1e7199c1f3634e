// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package setup provides the components that build the model before
// training: the network choice, the weight initializer choice and the
// optimizer choice.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

var networkRequires = []component.Field{component.FieldNumFeatures, component.FieldDatasetProperties}

// LinearNetwork is a single affine layer.
var LinearNetwork = component.Descriptor{
	ID:    "LinearNetwork",
	Stage: component.StageNetwork,
	Properties: component.Properties{
		ShortName: "Linear",
		Name:      "Linear Network",
		Output:    component.FormatDense,
	},
	Requires: networkRequires,
	Provides: []component.Field{component.FieldNetwork},
	New: func(p component.Params) (component.Component, error) {
		return &networkBuilder{name: "LinearNetwork", rng: rngOf(p), logger: p.Log()}, nil
	},
}

// MLPNetwork is one ReLU hidden layer followed by an affine output layer.
var MLPNetwork = component.Descriptor{
	ID:    "MLPNetwork",
	Stage: component.StageNetwork,
	Properties: component.Properties{
		ShortName: "MLP",
		Name:      "Multi-Layer Perceptron",
		Output:    component.FormatDense,
	},
	Requires: networkRequires,
	Provides: []component.Field{component.FieldNetwork},
	SearchSpace: func(component.DatasetProperties) *configspace.Space {
		return configspace.MustNew(configspace.MustUniformInteger("num_units", 8, 256, 64, true))
	},
	New: func(p component.Params) (component.Component, error) {
		units := p.Int("num_units", 64)
		if units < 1 {
			return nil, fmt.Errorf("%w: num_units must be positive, got %d", component.ErrInvalidParam, units)
		}
		return &networkBuilder{name: "MLPNetwork", hidden: units, rng: rngOf(p), logger: p.Log()}, nil
	},
}

// Networks holds every network, in default-preference order.
var Networks = newRegistry(component.StageNetwork, MLPNetwork, LinearNetwork)

// networkBuilder creates the network at Fit from the transformed width and
// the number of targets.
type networkBuilder struct {
	name   string
	hidden int
	rng    *rand.Rand
	logger *slog.Logger
	net    *Dense
}

func (b *networkBuilder) Fit(_ context.Context, fd *component.FitDictionary) error {
	if err := fd.Require(b.name, networkRequires...); err != nil {
		return err
	}
	out := fd.DatasetProperties.NumTargets()
	if fd.DatasetProperties.TaskType.IsClassification() && fd.NumClasses > 0 {
		out = fd.NumClasses
	}
	widths := []int{fd.NumFeatures, out}
	if b.hidden > 0 {
		widths = []int{fd.NumFeatures, b.hidden, out}
	}
	b.net = NewDense(b.rng, widths...)
	b.logger.Debug("network built",
		slog.String("network", b.name),
		slog.Any("widths", widths),
	)
	return nil
}

func (b *networkBuilder) Transform(_ context.Context, fd *component.FitDictionary) error {
	if b.net == nil {
		return fmt.Errorf("%s: %w", b.name, component.ErrNotFitted)
	}
	fd.Network = b.net
	return nil
}

// Dense is a fully connected network with ReLU between layers and a
// linear output.
//
// Thread Safety:
//
//	Forward is safe for concurrent use when no training is in progress.
type Dense struct {
	weights []*mat.Dense
	biases  []*mat.Dense
}

// NewDense creates a network with the given layer widths. Weights start
// uniform in +-1/sqrt(fanIn) and biases at zero.
func NewDense(rng *rand.Rand, widths ...int) *Dense {
	n := &Dense{}
	for l := 0; l+1 < len(widths); l++ {
		in, out := widths[l], widths[l+1]
		bound := 1 / math.Sqrt(float64(in))
		w := mat.NewDense(in, out, nil)
		w.Apply(func(_, _ int, _ float64) float64 {
			return (2*rng.Float64() - 1) * bound
		}, w)
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, mat.NewDense(1, out, nil))
	}
	return n
}

// InputDim implements component.Network.
func (n *Dense) InputDim() int {
	r, _ := n.weights[0].Dims()
	return r
}

// OutputDim implements component.Network.
func (n *Dense) OutputDim() int {
	_, c := n.weights[len(n.weights)-1].Dims()
	return c
}

// Params implements component.Network.
func (n *Dense) Params() []*mat.Dense {
	out := make([]*mat.Dense, 0, 2*len(n.weights))
	for l := range n.weights {
		out = append(out, n.weights[l], n.biases[l])
	}
	return out
}

// Forward implements component.Network.
func (n *Dense) Forward(X *mat.Dense) *mat.Dense {
	_, acts := n.forward(X)
	return acts[len(acts)-1]
}

// forward returns the pre-activations and activations of every layer.
// acts[0] is X.
func (n *Dense) forward(X *mat.Dense) (pre, acts []*mat.Dense) {
	acts = []*mat.Dense{X}
	h := X
	for l, w := range n.weights {
		r, _ := h.Dims()
		_, c := w.Dims()
		z := mat.NewDense(r, c, nil)
		z.Mul(h, w)
		b := n.biases[l].RawRowView(0)
		z.Apply(func(_, j int, v float64) float64 { return v + b[j] }, z)
		pre = append(pre, z)
		if l == len(n.weights)-1 {
			h = z
		} else {
			a := mat.NewDense(r, c, nil)
			a.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
			h = a
		}
		acts = append(acts, h)
	}
	return pre, acts
}

// Backward implements component.Network.
func (n *Dense) Backward(X *mat.Dense, dOut *mat.Dense) []*mat.Dense {
	pre, acts := n.forward(X)
	grads := make([]*mat.Dense, 2*len(n.weights))
	delta := mat.DenseCopyOf(dOut)
	for l := len(n.weights) - 1; l >= 0; l-- {
		in, out := n.weights[l].Dims()
		gw := mat.NewDense(in, out, nil)
		gw.Mul(acts[l].T(), delta)
		gb := mat.NewDense(1, out, nil)
		for j := range out {
			gb.Set(0, j, mat.Sum(delta.ColView(j)))
		}
		grads[2*l], grads[2*l+1] = gw, gb

		if l == 0 {
			break
		}
		r, _ := delta.Dims()
		next := mat.NewDense(r, in, nil)
		next.Mul(delta, n.weights[l].T())
		z := pre[l-1]
		next.Apply(func(i, j int, v float64) float64 {
			if z.At(i, j) <= 0 {
				return 0
			}
			return v
		}, next)
		delta = next
	}
	return grads
}

func rngOf(p component.Params) *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}
	return rand.New(rand.NewPCG(1, 2))
}

func newRegistry(stage component.Stage, ds ...component.Descriptor) *component.Registry {
	r := component.NewRegistry(stage)
	r.MustRegister(ds...)
	return r
}
