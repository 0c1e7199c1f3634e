// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tabular defines the tabular classification and regression
// pipelines.
//
// Both pipelines run the same steps:
//
//	imputer -> encoder -> scaler -> tabular_transformer ->
//	network -> network_init -> optimizer -> trainer
//
// and differ in their estimator name and in the loss and metrics the
// trainer picks from the task type.
package tabular

import (
	"github.com/AleutianAI/AleutianAutoML/services/automl/choice"
	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/components/preprocessing"
	"github.com/AleutianAI/AleutianAutoML/services/automl/components/setup"
	"github.com/AleutianAI/AleutianAutoML/services/automl/components/training"
	"github.com/AleutianAI/AleutianAutoML/services/automl/pipeline"
)

// Step names.
const (
	StepImputer            = "imputer"
	StepEncoder            = "encoder"
	StepScaler             = "scaler"
	StepTabularTransformer = "tabular_transformer"
	StepNetwork            = "network"
	StepNetworkInit        = "network_init"
	StepOptimizer          = "optimizer"
	StepTrainer            = "trainer"
)

// Classification provides the steps of the tabular classification
// pipeline.
type Classification struct{}

// EstimatorName implements pipeline.StepsProvider.
func (Classification) EstimatorName() string { return "TabularClassifier" }

// PipelineSteps implements pipeline.StepsProvider.
func (Classification) PipelineSteps(component.DatasetProperties) ([]pipeline.Step, error) {
	return defaultSteps()
}

// Regression provides the steps of the tabular regression pipeline.
type Regression struct{}

// EstimatorName implements pipeline.StepsProvider.
func (Regression) EstimatorName() string { return "TabularRegressor" }

// PipelineSteps implements pipeline.StepsProvider.
func (Regression) PipelineSteps(component.DatasetProperties) ([]pipeline.Step, error) {
	return defaultSteps()
}

func defaultSteps() ([]pipeline.Step, error) {
	return pipeline.NewStepsBuilder().
		Fixed(StepImputer, preprocessing.SimpleImputer).
		Choice(StepEncoder, choice.New(preprocessing.Encoders, "OneHotEncoder")).
		Choice(StepScaler, choice.New(preprocessing.Scalers, "StandardScaler")).
		Fixed(StepTabularTransformer, preprocessing.TabularColumnTransformer).
		Choice(StepNetwork, choice.New(setup.Networks, "MLPNetwork")).
		Choice(StepNetworkInit, choice.New(setup.Initializers, "XavierInit")).
		Choice(StepOptimizer, choice.New(setup.Optimizers, "AdamOptimizer")).
		Fixed(StepTrainer, training.StandardTrainer).
		Build()
}

// ProviderFor returns the pipeline for a task.
func ProviderFor(task component.TaskType) pipeline.StepsProvider {
	if task.IsClassification() {
		return Classification{}
	}
	return Regression{}
}

// NewClassificationPipeline builds a classification pipeline. An empty
// task type in the dataset properties defaults to classification.
func NewClassificationPipeline(opts pipeline.Options) (*pipeline.Pipeline, error) {
	if opts.DatasetProperties.TaskType == "" {
		opts.DatasetProperties.TaskType = component.TaskTabularClassification
	}
	return pipeline.New(Classification{}, opts)
}

// NewRegressionPipeline builds a regression pipeline. An empty task type
// in the dataset properties defaults to regression.
func NewRegressionPipeline(opts pipeline.Options) (*pipeline.Pipeline, error) {
	if opts.DatasetProperties.TaskType == "" {
		opts.DatasetProperties.TaskType = component.TaskTabularRegression
	}
	return pipeline.New(Regression{}, opts)
}

// NewPipeline builds the pipeline matching the dataset's task type.
func NewPipeline(opts pipeline.Options) (*pipeline.Pipeline, error) {
	if opts.DatasetProperties.TaskType.IsClassification() {
		return NewClassificationPipeline(opts)
	}
	return NewRegressionPipeline(opts)
}
