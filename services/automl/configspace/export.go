// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package configspace

import (
	"gopkg.in/yaml.v3"
)

// hyperparameterDoc is the YAML form of one hyperparameter.
type hyperparameterDoc struct {
	Name    string   `yaml:"name"`
	Type    Kind     `yaml:"type"`
	Choices []string `yaml:"choices,omitempty"`
	Lower   any      `yaml:"lower,omitempty"`
	Upper   any      `yaml:"upper,omitempty"`
	Log     bool     `yaml:"log,omitempty"`
	Default any      `yaml:"default"`
}

// spaceDoc is the YAML form of a Space.
type spaceDoc struct {
	Hyperparameters []hyperparameterDoc `yaml:"hyperparameters"`
	Conditions      []string            `yaml:"conditions,omitempty"`
	Forbiddens      []string            `yaml:"forbiddens,omitempty"`
}

// MarshalYAML implements yaml.Marshaler. The export is for inspection;
// spaces are always rebuilt from components, never loaded back.
func (s *Space) MarshalYAML() (any, error) {
	doc := spaceDoc{}
	for _, hp := range s.Hyperparameters() {
		d := hyperparameterDoc{Name: hp.Name(), Type: hp.Kind(), Default: hp.Default()}
		switch h := hp.(type) {
		case *Categorical:
			d.Choices = h.Choices()
		case *UniformFloat:
			d.Lower, d.Upper = h.Bounds()
			d.Log = h.Log()
		case *UniformInteger:
			d.Lower, d.Upper = h.Bounds()
			d.Log = h.Log()
		}
		doc.Hyperparameters = append(doc.Hyperparameters, d)
	}
	for _, c := range s.Conditions() {
		doc.Conditions = append(doc.Conditions, c.String())
	}
	for _, f := range s.Forbiddens() {
		doc.Forbiddens = append(doc.Forbiddens, f.String())
	}
	return doc, nil
}

// YAML renders the space as a YAML document.
func (s *Space) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
