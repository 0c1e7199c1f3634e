// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline assembles ordered steps into a searchable, fittable
// pipeline.
//
// # Lifecycle
//
//	Steps Defined -> Space Built -> Configured -> Hyperparameters Applied -> Fitted
//
// New takes steps from Options or from a StepsProvider, builds the joint
// search space, validates or defaults a configuration and applies it.
// SearchSpace is memoized: the space is built once per pipeline and every
// configuration is checked against it. Fit may be called again and simply
// repeats the chain.
//
// # Joint Space
//
// Each step's local space is namespaced under "<step>:". For Choice steps
// the compatibility matrix decides which candidates stay: a candidate that
// appears in no legal combination is dropped from its selector, and
// combinations that are illegal across steps become forbidden clauses over
// the selectors.
//
// # Observability
//
// Fit runs through an Executor that emits one OpenTelemetry span per step,
// step latency and outcome metrics, and structured slog records keyed by a
// per-run session ID. Space builds and compiled forbidden clauses are
// counted in Prometheus.
package pipeline
