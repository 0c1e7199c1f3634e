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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAutoML/pkg/logging"
	"github.com/AleutianAI/AleutianAutoML/services/automl/config"
)

// app carries state shared by every subcommand for one invocation.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.RunConfig
	logger *logging.Logger
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

// newRootCmd builds the command tree. Each call returns an independent
// tree, so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "autotab",
		Short: "Tabular AutoML pipeline search spaces",
		Long: `autotab assembles tabular AutoML pipelines from swappable components,
derives their joint hyperparameter search space, and fits sampled
configurations on CSV data.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "run configuration YAML (defaults are embedded)")
	flags.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "override logging.format (auto, text, json)")

	root.AddCommand(
		newSpaceCmd(a),
		newSampleCmd(a),
		newFitCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads the run configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context(), a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Service: "autotab",
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	slog.SetDefault(logger.Slog())
	return nil
}
