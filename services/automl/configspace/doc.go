// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package configspace provides hierarchical hyperparameter search spaces.
//
// A Space holds hyperparameters, conditions that activate a hyperparameter
// only when a parent takes a given value, and forbidden clauses that reject
// combinations of values. Spaces compose: AddSpace namespaces a sub-space
// under "<prefix>:" and optionally conditions its root hyperparameters on a
// parent selector, which is how pipeline steps and Choice candidates nest.
//
// # Keys
//
// Hyperparameter names are flat strings. Nesting is expressed purely through
// the Delimiter, e.g. "encoder:OneHotEncoder:min_frequency".
//
// # Determinism
//
// Space.String is a canonical, sorted rendering. Two spaces built from the
// same inputs render identically, so String, Equal, Fingerprint and Diff are
// all defined on it. Sampling takes an explicit *rand.Rand.
//
// # Example
//
//	cs := configspace.New()
//	lr, _ := configspace.NewUniformFloat("lr", 1e-6, 1e-1, 1e-2, true)
//	_ = cs.Add(lr)
//	cfg, _ := cs.DefaultConfiguration()
//	v, _ := cfg.Get("lr") // 0.01
//
// # Thread Safety
//
// A Space is not safe for concurrent mutation. Once built it may be read and
// sampled concurrently as long as each goroutine uses its own *rand.Rand.
package configspace
