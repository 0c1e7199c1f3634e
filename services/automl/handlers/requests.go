// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
	"github.com/AleutianAI/AleutianAutoML/services/automl/tabular"
)

// MaxSamples caps the configurations returned by one sample request.
const MaxSamples = 100

var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// PipelineRequest describes the dataset a pipeline is built for, plus
// optional candidate restrictions.
type PipelineRequest struct {
	TaskType           string              `json:"task_type" form:"task_type" validate:"required,oneof=tabular_classification tabular_regression"`
	NumFeatures        int                 `json:"num_features" form:"num_features" validate:"required,min=1,max=100000"`
	CategoricalColumns []int               `json:"categorical_columns" form:"categorical" validate:"dive,min=0"`
	NumClasses         int                 `json:"num_classes" form:"num_classes" validate:"min=0"`
	IsSparse           bool                `json:"is_sparse" form:"is_sparse"`
	Include            map[string][]string `json:"include,omitempty" form:"-"`
	Exclude            map[string][]string `json:"exclude,omitempty" form:"-"`
}

// Validate checks field tags and cross-field rules.
func (r *PipelineRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if component.TaskType(r.TaskType).IsClassification() && r.NumClasses < 2 {
		return fmt.Errorf("%w: classification needs num_classes >= 2, got %d", ErrInvalidRequest, r.NumClasses)
	}
	for _, col := range r.CategoricalColumns {
		if col >= r.NumFeatures {
			return fmt.Errorf("%w: categorical column %d outside %d features", ErrInvalidRequest, col, r.NumFeatures)
		}
	}
	return nil
}

// options turns the request into pipeline options.
func (r *PipelineRequest) options() (pipeline.Options, error) {
	task := component.TaskType(r.TaskType)
	targets := 1
	if task.IsClassification() {
		targets = r.NumClasses
	}
	props, err := tabular.DescribeProperties(task, r.NumFeatures, r.CategoricalColumns, targets)
	if err != nil {
		return pipeline.Options{}, err
	}
	props.IsSparse = r.IsSparse
	return pipeline.Options{
		DatasetProperties: props,
		Include:           ids(r.Include),
		Exclude:           ids(r.Exclude),
	}, nil
}

func ids(m map[string][]string) map[string][]component.ID {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]component.ID, len(m))
	for step, names := range m {
		for _, n := range names {
			out[step] = append(out[step], component.ID(n))
		}
	}
	return out
}

// SampleRequest asks for random configurations.
type SampleRequest struct {
	PipelineRequest

	Count int    `json:"count" validate:"min=0,max=100"`
	Seed  uint64 `json:"seed"`
}

// Validate checks the embedded request and the count.
func (r *SampleRequest) Validate() error {
	if err := r.PipelineRequest.Validate(); err != nil {
		return err
	}
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// ValidateRequest asks whether a configuration fits the pipeline's space.
type ValidateRequest struct {
	PipelineRequest

	Configuration map[string]configspace.Value `json:"configuration"`
}

// Validate checks the embedded request and that a configuration is given.
func (r *ValidateRequest) Validate() error {
	if err := r.PipelineRequest.Validate(); err != nil {
		return err
	}
	if r.Configuration == nil {
		return fmt.Errorf("%w: configuration is required", ErrInvalidRequest)
	}
	return nil
}

// SpaceResponse describes a pipeline's joint search space.
type SpaceResponse struct {
	Estimator       string                     `json:"estimator"`
	Fingerprint     string                     `json:"fingerprint"`
	Hyperparameters int                        `json:"hyperparameters"`
	Choices         map[string][]component.ID  `json:"choices"`
	Space           string                     `json:"space"`
	Default         *configspace.Configuration `json:"default"`
}

// SampleResponse holds sampled configurations.
type SampleResponse struct {
	Fingerprint    string                       `json:"fingerprint"`
	Configurations []*configspace.Configuration `json:"configurations"`
}

// ValidateResponse reports whether a configuration is legal.
type ValidateResponse struct {
	Valid    bool   `json:"valid"`
	Pipeline string `json:"pipeline,omitempty"`
	Error    string `json:"error,omitempty"`
}
