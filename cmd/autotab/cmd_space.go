// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAutoML/pkg/ux"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
	"github.com/AleutianAI/AleutianAutoML/services/automl/tabular"
)

// shapeFlags describe a dataset without loading one.
type shapeFlags struct {
	task        string
	features    int
	categorical []int
	classes     int
	sparse      bool
}

func (s *shapeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.task, "task", "", "tabular_classification or tabular_regression (default from config)")
	f.IntVar(&s.features, "features", 4, "number of feature columns")
	f.IntSliceVar(&s.categorical, "categorical", nil, "categorical feature column indices")
	f.IntVar(&s.classes, "classes", 2, "number of classes for classification")
	f.BoolVar(&s.sparse, "sparse", false, "treat the feature matrix as sparse")
}

// pipeline builds the pipeline for the described dataset.
func (s *shapeFlags) pipeline(a *app) (*pipeline.Pipeline, error) {
	task := a.cfg.Task()
	if s.task != "" {
		task = component.TaskType(s.task)
	}
	if task != component.TaskTabularClassification && task != component.TaskTabularRegression {
		return nil, fmt.Errorf("unknown task %q", task)
	}
	categorical := s.categorical
	if len(categorical) == 0 {
		categorical = a.cfg.Dataset.CategoricalColumns
	}
	targets := 1
	if task.IsClassification() {
		targets = s.classes
	}
	props, err := tabular.DescribeProperties(task, s.features, categorical, targets)
	if err != nil {
		return nil, err
	}
	props.IsSparse = s.sparse
	return tabular.NewPipeline(a.cfg.PipelineOptions(props, a.log()))
}

func newSpaceCmd(a *app) *cobra.Command {
	var (
		shape  shapeFlags
		asYAML bool
	)
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Print the joint search space for a dataset shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := shape.pipeline(a)
			if err != nil {
				return err
			}
			space, err := p.SearchSpace()
			if err != nil {
				return err
			}
			if asYAML {
				data, err := space.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			choices, err := p.ActiveChoices()
			if err != nil {
				return err
			}
			out := ux.NewPrinter(cmd.OutOrStdout())
			out.Box(p.EstimatorName(), p.String())
			rows := make([][]string, 0, len(choices))
			for _, s := range p.Steps() {
				ids, ok := choices[s.Name]
				if !ok {
					continue
				}
				names := make([]string, len(ids))
				for i, id := range ids {
					names[i] = string(id)
				}
				rows = append(rows, []string{s.Name, strings.Join(names, ", ")})
			}
			out.Table([]string{"step", "candidates"}, rows)
			out.KeyValues([][2]string{
				{"hyperparameters", strconv.Itoa(space.Len())},
				{"forbidden", strconv.Itoa(len(space.Forbiddens()))},
				{"fingerprint", fmt.Sprintf("%016x", space.Fingerprint())},
			})
			fmt.Fprint(cmd.OutOrStdout(), space.String())
			return nil
		},
	}
	shape.register(cmd)
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the space as YAML")
	return cmd
}

func newSampleCmd(a *app) *cobra.Command {
	var (
		shape shapeFlags
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample configurations from the joint search space, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			p, err := shape.pipeline(a)
			if err != nil {
				return err
			}
			space, err := p.SearchSpace()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.Seed
			}
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			for range count {
				cfg, err := space.Sample(rng)
				if err != nil {
					return err
				}
				data, err := cfg.MarshalJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			}
			return nil
		},
	}
	shape.register(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of configurations")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "sampling seed (default from config)")
	return cmd
}
