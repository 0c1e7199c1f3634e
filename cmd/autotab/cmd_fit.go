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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAutoML/pkg/ux"
	"github.com/AleutianAI/AleutianAutoML/services/automl/backend"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
	"github.com/AleutianAI/AleutianAutoML/services/automl/datasets"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
	"github.com/AleutianAI/AleutianAutoML/services/automl/tabular"
	"github.com/AleutianAI/AleutianAutoML/services/automl/telemetry"
)

type fitFlags struct {
	configuration string
	sampleSeed    uint64
}

func newFitCmd(a *app) *cobra.Command {
	var flags fitFlags
	cmd := &cobra.Command{
		Use:   "fit [data.csv]",
		Short: "Fit one pipeline configuration on every split of a CSV dataset",
		Long: `fit reads a CSV file, computes the configured validation splits, and fits
the pipeline once per split. The configuration is the space default unless
--configuration or --sample-seed selects another. Run summaries and the
configuration are stored in the backend.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Dataset.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no dataset: pass a CSV path or set dataset.path")
			}
			sampled := cmd.Flags().Changed("sample-seed")
			return runFit(cmd, a, path, flags, sampled)
		},
	}
	cmd.Flags().StringVar(&flags.configuration, "configuration", "", "JSON file of configuration values")
	cmd.Flags().Uint64Var(&flags.sampleSeed, "sample-seed", 0, "fit a configuration sampled with this seed")
	cmd.MarkFlagsMutuallyExclusive("configuration", "sample-seed")
	return cmd
}

// fitResult is one split's outcome.
type fitResult struct {
	split   int
	summary *component.RunSummary
}

func runFit(cmd *cobra.Command, a *app, path string, flags fitFlags, sampled bool) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := a.log()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Traces:       cfg.Telemetry.Traces,
		Metrics:      telemetry.ExporterNone,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	ds, categorical, err := loadDataset(path, cfg.Dataset.Header, cfg.Dataset.TargetColumn,
		cfg.Dataset.CategoricalColumns, cfg.DatasetOptions())
	if err != nil {
		return err
	}
	props, err := tabular.InferProperties(ds, cfg.Task(), categorical)
	if err != nil {
		return err
	}

	opts := cfg.PipelineOptions(props, logger)
	if flags.configuration != "" {
		values, err := readConfiguration(flags.configuration)
		if err != nil {
			return err
		}
		opts.ConfigValues = values
	}
	p, err := tabular.NewPipeline(opts)
	if err != nil {
		return err
	}
	if sampled {
		if err := applySample(p, flags.sampleSeed); err != nil {
			return err
		}
	}

	store, err := backend.Open(cfg.StoreConfig(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	runID := uuid.NewString()[:12]
	logger = logger.With(slog.String("run_id", runID))
	if err := store.SaveDatamanager(ctx, runID, ds); err != nil {
		return err
	}
	if err := store.SaveConfiguration(ctx, runID, p.Config()); err != nil {
		return err
	}

	results := make([]fitResult, 0, ds.NumSplits())
	for split := range ds.NumSplits() {
		fd, err := tabular.NewFitDictionary(ds, props, split)
		if err != nil {
			return err
		}
		fd.JobID = runID + "-" + strconv.Itoa(split)
		fd.Backend = store
		logger.Info("fitting split", slog.Int("split", split), slog.Int("train_rows", len(fd.TrainIndices)))
		if err := p.Fit(ctx, fd); err != nil {
			return fmt.Errorf("split %d: %w", split, err)
		}
		if fd.RunSummary == nil {
			return fmt.Errorf("split %d: final step produced no run summary", split)
		}
		results = append(results, fitResult{split: split, summary: fd.RunSummary})
	}

	printFit(ux.NewPrinter(cmd.OutOrStdout()), runID, p, results)
	return nil
}

// loadDataset reads the CSV and merges declared categorical columns with
// the ones detected from text cells.
func loadDataset(path string, header bool, target int, declared []int, opts datasets.Options) (*datasets.Dataset, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	tbl, err := datasets.ReadCSV(f, datasets.CSVOptions{Header: header, TargetColumn: target})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	ds, err := datasets.New(tbl.X, tbl.Y, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	categorical := append(slices.Clone(declared), tbl.Categorical...)
	slices.Sort(categorical)
	return ds, slices.Compact(categorical), nil
}

func readConfiguration(path string) (map[string]configspace.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]configspace.Value
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

func applySample(p *pipeline.Pipeline, seed uint64) error {
	space, err := p.SearchSpace()
	if err != nil {
		return err
	}
	cfg, err := space.Sample(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	if err != nil {
		return err
	}
	return p.SetHyperparameters(cfg)
}

func printFit(out *ux.Printer, runID string, p *pipeline.Pipeline, results []fitResult) {
	out.Box(p.EstimatorName(), p.String())
	out.KeyValues([][2]string{
		{"run_id", runID},
		{"splits", strconv.Itoa(len(results))},
	})

	var keys []string
	for _, r := range results {
		for k := range r.summary.Metrics {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{strconv.Itoa(r.split), strconv.Itoa(r.summary.Epochs)}
		for _, k := range keys {
			v, ok := r.summary.Metrics[k]
			cell := "-"
			if ok {
				cell = strconv.FormatFloat(v, 'g', 5, 64)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	out.Table(append([]string{"split", "epochs"}, keys...), rows)
	out.Success("fitted " + strconv.Itoa(len(results)) + " split(s)")
}
