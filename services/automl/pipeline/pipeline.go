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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
)

// =============================================================================
// Steps
// =============================================================================

// Node is the behavior of one step. Exactly three implementations are
// accepted: *component.Fixed, *choice.Choice and *Pipeline.
type Node interface {
	Fit(ctx context.Context, fd *component.FitDictionary) error
	Transform(ctx context.Context, fd *component.FitDictionary) error
}

// contract is implemented by nodes that declare fit dictionary fields.
type contract interface {
	Requires() []component.Field
	Provides() []component.Field
}

// Step is a named pipeline stage.
type Step struct {
	Name string
	Node Node
}

// StepsProvider is implemented by every concrete pipeline type.
type StepsProvider interface {
	// PipelineSteps returns the ordered steps for a dataset.
	PipelineSteps(props component.DatasetProperties) ([]Step, error)

	// EstimatorName is the display name of the pipeline type.
	EstimatorName() string
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		switch {
		case s.Name == "":
			return fmt.Errorf("%w: step %d has no name", ErrInvalidStep, i)
		case strings.Contains(s.Name, configspace.Delimiter):
			return fmt.Errorf("%w: step name %q contains %q", ErrInvalidStep, s.Name, configspace.Delimiter)
		case seen[s.Name]:
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidStep, s.Name)
		case s.Node == nil:
			return fmt.Errorf("%w: step %q has no node", ErrInvalidStep, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// =============================================================================
// Pipeline
// =============================================================================

// Options configure a Pipeline.
type Options struct {
	// Steps overrides the provider's PipelineSteps.
	Steps []Step

	// DatasetProperties guide applicability and space construction.
	DatasetProperties component.DatasetProperties

	// Include and Exclude restrict the candidates of Choice steps, keyed by
	// step name. A step may appear in at most one of them.
	Include map[string][]component.ID
	Exclude map[string][]component.ID

	// Config is a configuration sampled from an equal space. Takes
	// precedence over ConfigValues.
	Config *configspace.Configuration

	// ConfigValues is a flat map validated against the pipeline's space.
	ConfigValues map[string]configspace.Value

	// Seed seeds the random source handed to every component.
	Seed uint64

	// InitParams are fixed constructor arguments keyed
	// "<step>:<key>" or "<step>:<component>:<key>".
	InitParams map[string]any

	Logger *slog.Logger
}

// Pipeline is an ordered sequence of steps with a joint search space.
//
// Description:
//
//	New resolves the steps, builds the joint space once, validates or
//	defaults a configuration and applies it to every step. Fit then runs
//	the steps in order over one FitDictionary.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Pipeline struct {
	estimator  string
	steps      []Step
	props      component.DatasetProperties
	include    map[string][]component.ID
	exclude    map[string][]component.ID
	initParams map[string]any
	logger     *slog.Logger
	rng        *rand.Rand

	space       *configspace.Space
	compat      *compatibility
	constraints map[string]choice.Constraint

	config  *configspace.Configuration
	exec    *Executor
	lastRun *Result
	fitted  bool
}

// New builds a pipeline and applies its configuration.
//
// Inputs:
//
//	provider - Supplies steps and the estimator name. May be nil when
//	           opts.Steps is set.
//	opts - Pipeline options.
//
// Outputs:
//
//	*Pipeline - Ready to Fit.
//	error - ErrNoSteps, ErrInvalidStep, component.ErrInvalidIncludeExclude,
//	        ErrInfeasiblePipeline, *MismatchError, or a configuration or
//	        component factory error.
func New(provider StepsProvider, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	steps := opts.Steps
	estimator := "Pipeline"
	if provider != nil {
		estimator = provider.EstimatorName()
		if steps == nil {
			var err error
			steps, err = provider.PipelineSteps(opts.DatasetProperties)
			if err != nil {
				return nil, fmt.Errorf("%s: pipeline steps: %w", estimator, err)
			}
		}
	}
	if err := validateSteps(steps); err != nil {
		return nil, err
	}

	p := &Pipeline{
		estimator:  estimator,
		steps:      slices.Clone(steps),
		props:      opts.DatasetProperties,
		include:    opts.Include,
		exclude:    opts.Exclude,
		initParams: opts.InitParams,
		logger:     logger.With(slog.String("estimator", estimator)),
		rng:        rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}

	space, err := p.SearchSpace()
	if err != nil {
		return nil, err
	}

	var cfg *configspace.Configuration
	switch {
	case opts.Config != nil:
		if !opts.Config.Space().Equal(space) {
			configMismatches.Inc()
			return nil, &MismatchError{Diff: space.Diff(opts.Config.Space())}
		}
		cfg, err = space.NewConfiguration(opts.Config.Values())
	case opts.ConfigValues != nil:
		cfg, err = space.NewConfiguration(opts.ConfigValues)
	default:
		cfg, err = space.DefaultConfiguration()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: configuration: %w", estimator, err)
	}

	if err := p.SetHyperparameters(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// SearchSpace returns the joint search space, building it on first call.
//
// Description:
//
//	Builds the compatibility matrix, adds every step's local space under
//	"<step>:" (Choice steps restricted to their live candidates), compiles
//	forbidden clauses from the zero cells and moves selector defaults onto
//	a legal cell. The result is cached and returned on every later call.
//
// Outputs:
//
//	*configspace.Space - The joint space. Callers must not mutate it.
//	error - ErrInfeasiblePipeline, component.ErrInvalidIncludeExclude or
//	        ErrUnsupportedStep.
func (p *Pipeline) SearchSpace() (*configspace.Space, error) {
	if p.space != nil {
		return p.space, nil
	}

	compat, err := buildCompatibility(p.steps, p.props, p.include, p.exclude)
	if err != nil {
		if errors.Is(err, ErrInfeasiblePipeline) {
			infeasiblePipelines.Inc()
		}
		return nil, err
	}
	matrixCells.Observe(float64(compat.matrix.Size()))

	cs := configspace.New()
	constraints := make(map[string]choice.Constraint)
	dim := 0
	for _, s := range p.steps {
		var sub *configspace.Space
		switch node := s.Node.(type) {
		case *component.Fixed:
			sub = node.SearchSpace(p.props)
		case *choice.Choice:
			cons := choice.Constraint{Include: compat.activeIDs(dim)}
			dim++
			sub, err = node.SearchSpace(p.props, cons)
			constraints[s.Name] = cons
		case *Pipeline:
			sub, err = node.SearchSpace()
		}
		if err != nil {
			return nil, &StepError{Step: s.Name, Err: err}
		}
		if err := cs.AddSpace(s.Name, sub, nil); err != nil {
			return nil, &StepError{Step: s.Name, Err: err}
		}
	}

	if clauses := compileForbiddens(compat); len(clauses) > 0 {
		if err := cs.AddForbidden(clauses...); err != nil {
			return nil, err
		}
		forbiddenClauses.WithLabelValues(p.estimator).Add(float64(len(clauses)))
		if err := moveDefaults(cs, compat); err != nil {
			return nil, err
		}
	}

	p.space, p.compat, p.constraints = cs, compat, constraints
	spaceBuilds.WithLabelValues(p.estimator).Inc()
	p.logger.Debug("search space built",
		slog.Int("hyperparameters", cs.Len()),
		slog.Int("matrix_cells", compat.matrix.Size()),
		slog.Int("legal_cells", compat.matrix.Sum()),
		slog.Int("forbidden_clauses", len(cs.Forbiddens())),
	)
	return cs, nil
}

// moveDefaults rewrites selector defaults when the preferred combination is
// forbidden.
func moveDefaults(cs *configspace.Space, compat *compatibility) error {
	preferred := make([]int, len(compat.dims))
	for k, d := range compat.dims {
		hp, ok := cs.Get(configspace.Join(d.step, choice.Selector))
		if !ok {
			return fmt.Errorf("%w: selector of step %q", configspace.ErrUnknownHyperparameter, d.step)
		}
		def, _ := hp.Default().(string)
		preferred[k] = slices.IndexFunc(d.candidates, func(c component.Descriptor) bool { return string(c.ID) == def })
	}
	legal := legalDefaults(compat, preferred)
	for k, j := range legal {
		if j == preferred[k] {
			continue
		}
		d := compat.dims[k]
		if err := cs.SetDefault(configspace.Join(d.step, choice.Selector), string(d.candidates[j].ID)); err != nil {
			return err
		}
	}
	return nil
}

// SetHyperparameters applies a configuration of the joint space to every
// step.
//
// Description:
//
//	For each step, extracts the keys under "<step>:", strips the prefix and
//	validates them against the step's own local space, rebuilt from the
//	step rather than taken from the joint space. The step then instantiates
//	its component. Init params are routed the same way.
//
// Outputs:
//
//	error - ErrNilConfiguration, *MismatchError, ErrUnsupportedStep, or a
//	        *StepError wrapping a validation or factory error.
func (p *Pipeline) SetHyperparameters(cfg *configspace.Configuration) error {
	if cfg == nil {
		return ErrNilConfiguration
	}
	space, err := p.SearchSpace()
	if err != nil {
		return err
	}
	if !cfg.Space().Equal(space) {
		configMismatches.Inc()
		return &MismatchError{Diff: space.Diff(cfg.Space())}
	}

	for _, s := range p.steps {
		sub := cfg.Sub(s.Name)
		init := configspace.SubMap(p.initParams, s.Name)
		if err := p.applyStep(s, sub, init); err != nil {
			return &StepError{Step: s.Name, Err: err}
		}
	}
	p.config = cfg
	p.fitted = false
	return nil
}

func (p *Pipeline) applyStep(s Step, sub map[string]configspace.Value, init map[string]any) error {
	logger := p.logger.With(slog.String("step", s.Name))
	switch node := s.Node.(type) {
	case *component.Fixed:
		local, err := node.SearchSpace(p.props).NewConfiguration(sub)
		if err != nil {
			return err
		}
		return node.SetHyperparameters(local, init, p.rng, logger)
	case *choice.Choice:
		space, err := node.SearchSpace(p.props, p.constraints[s.Name])
		if err != nil {
			return err
		}
		local, err := space.NewConfiguration(sub)
		if err != nil {
			return err
		}
		return node.SetHyperparameters(local, init, p.rng, logger)
	case *Pipeline:
		space, err := node.SearchSpace()
		if err != nil {
			return err
		}
		local, err := space.NewConfiguration(sub)
		if err != nil {
			return err
		}
		return node.SetHyperparameters(local)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedStep, s.Node)
	}
}

// Fit runs every step's Fit then Transform over fd.
func (p *Pipeline) Fit(ctx context.Context, fd *component.FitDictionary) error {
	if p.exec == nil {
		exec, err := NewExecutor(p, p.logger)
		if err != nil {
			return err
		}
		p.exec = exec
	}
	result, err := p.exec.Run(ctx, fd)
	p.lastRun = result
	if err != nil {
		return err
	}
	p.fitted = true
	return nil
}

// Transform is a no-op: Fit has already run every inner Transform.
func (p *Pipeline) Transform(context.Context, *component.FitDictionary) error {
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// EstimatorName returns the pipeline type's display name.
func (p *Pipeline) EstimatorName() string { return p.estimator }

// Steps returns the steps in order.
func (p *Pipeline) Steps() []Step { return slices.Clone(p.steps) }

// NamedStep returns the node of the named step.
func (p *Pipeline) NamedStep(name string) (Node, bool) {
	for _, s := range p.steps {
		if s.Name == name {
			return s.Node, true
		}
	}
	return nil, false
}

// Config returns the applied configuration.
func (p *Pipeline) Config() *configspace.Configuration { return p.config }

// DatasetProperties returns the properties the pipeline was built for.
func (p *Pipeline) DatasetProperties() component.DatasetProperties { return p.props }

// Matrix returns the compatibility matrix.
func (p *Pipeline) Matrix() (*Matrix, error) {
	if _, err := p.SearchSpace(); err != nil {
		return nil, err
	}
	return p.compat.matrix, nil
}

// ActiveChoices returns the live candidates of every Choice step.
func (p *Pipeline) ActiveChoices() (map[string][]component.ID, error) {
	if _, err := p.SearchSpace(); err != nil {
		return nil, err
	}
	out := make(map[string][]component.ID, len(p.compat.dims))
	for k, d := range p.compat.dims {
		out[d.step] = p.compat.activeIDs(k)
	}
	return out, nil
}

// Requires returns the fields the pipeline needs from its caller: those
// required by a step and not provided by an earlier one.
func (p *Pipeline) Requires() []component.Field {
	provided := map[component.Field]bool{}
	var out []component.Field
	for _, s := range p.steps {
		c, ok := s.Node.(contract)
		if !ok {
			continue
		}
		for _, f := range c.Requires() {
			if !provided[f] && !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
		for _, f := range c.Provides() {
			provided[f] = true
		}
	}
	return out
}

// Provides returns every field written by a step.
func (p *Pipeline) Provides() []component.Field {
	var out []component.Field
	for _, s := range p.steps {
		if c, ok := s.Node.(contract); ok {
			for _, f := range c.Provides() {
				if !slices.Contains(out, f) {
					out = append(out, f)
				}
			}
		}
	}
	return out
}

// CheckContract verifies the step order against declared requirements.
//
// Description:
//
//	Starting from the fields in inputs, walks the steps and checks that
//	each step's requirements are provided by inputs or an earlier step.
//	Uses the components selected by the applied configuration.
//
// Outputs:
//
//	error - *component.MissingDependencyError for the first failing step.
func (p *Pipeline) CheckContract(inputs ...component.Field) error {
	available := make(map[component.Field]bool, len(inputs))
	for _, f := range inputs {
		available[f] = true
	}
	for _, s := range p.steps {
		c, ok := s.Node.(contract)
		if !ok {
			continue
		}
		var missing []component.Field
		for _, f := range c.Requires() {
			if !available[f] {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return &component.MissingDependencyError{Step: s.Name, Missing: missing}
		}
		for _, f := range c.Provides() {
			available[f] = true
		}
	}
	return nil
}

// finalComponent returns the instance behind the last step.
func (p *Pipeline) finalComponent() component.Component {
	return componentOf(p.steps[len(p.steps)-1].Node)
}

func componentOf(n Node) component.Component {
	switch node := n.(type) {
	case *component.Fixed:
		return node.Component()
	case *choice.Choice:
		return node.Component()
	case *Pipeline:
		return node.finalComponent()
	}
	return nil
}

func nodeName(n Node) string {
	var name string
	switch node := n.(type) {
	case *component.Fixed:
		name = node.ComponentName()
	case *choice.Choice:
		name = node.ComponentName()
	case *Pipeline:
		name = node.EstimatorName()
	}
	if name == "" {
		return "<unset>"
	}
	return name
}

// String summarizes the pipeline, one "<i>-) <step>: <component>" line per
// step.
func (p *Pipeline) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("_", 40))
	b.WriteString("\n\t" + p.estimator + "\n")
	b.WriteString(strings.Repeat("-", 40))
	for i, s := range p.steps {
		fmt.Fprintf(&b, "\n%d-) %s: %s", i, s.Name, nodeName(s.Node))
	}
	b.WriteString("\n" + strings.Repeat("_", 40) + "\n")
	return b.String()
}

// AdditionalRunInfo collects run information from the step components and
// the last fit.
func (p *Pipeline) AdditionalRunInfo() map[string]any {
	info := make(map[string]any)
	for _, s := range p.steps {
		if ri, ok := componentOf(s.Node).(component.RunInfoer); ok {
			maps.Copy(info, ri.RunInfo())
		}
	}
	if p.lastRun != nil {
		info["session_id"] = p.lastRun.SessionID
		info["fit_seconds"] = p.lastRun.Duration.Seconds()
	}
	return info
}

func (p *Pipeline) iterative() (component.Iterative, error) {
	it, ok := p.finalComponent().(component.Iterative)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIterative, nodeName(p.steps[len(p.steps)-1].Node))
	}
	return it, nil
}

// MaxIter returns the final estimator's iteration budget.
func (p *Pipeline) MaxIter() (int, error) {
	it, err := p.iterative()
	if err != nil {
		return 0, err
	}
	return it.MaxIter(), nil
}

// CurrentIter returns the iterations the final estimator has completed.
func (p *Pipeline) CurrentIter() (int, error) {
	it, err := p.iterative()
	if err != nil {
		return 0, err
	}
	return it.CurrentIter(), nil
}

// ConfigurationFullyFitted reports whether the final estimator has used its
// whole budget.
func (p *Pipeline) ConfigurationFullyFitted() (bool, error) {
	it, err := p.iterative()
	if err != nil {
		return false, err
	}
	return it.FullyFitted(), nil
}
