// BTRA: Blood Transfusion Analysis Tool
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/btra/blob/master/LICENSE.txt>.

package app

import (
	"btra/cohort"

	"go.uber.org/zap"
)

// ExclusionStep is an exclusion of the cohort flow that is not yet applied.
type ExclusionStep struct {
	Filter cohort.RecordFilter
	Reason string
	Label  string
}

// completeData returns an exclusion step that removes records with a missing value for a column.
func completeData(schema *cohort.Schema, col, reason, label string) (ExclusionStep, error) {
	filter, err := cohort.NotMissing(schema, col)
	if err != nil {
		return ExclusionStep{}, err
	}
	return ExclusionStep{Filter: filter, Reason: reason, Label: label}, nil
}

// FlowExclusions returns the exclusion steps of the flow diagram study, in the order they are applied: records need a
// systolic blood pressure, a white blood cell count, pre- and post-transfusion hemoglobin, and a diuretic type.
func FlowExclusions(schema *cohort.Schema) ([]ExclusionStep, error) {
	specs := []struct{ col, reason, label string }{
		{BaselineBPSystolicColumn, "missing BP Systolic data", "Complete BP Systolic data"},
		{BaselineWBCColumn, "missing WBC", "Complete WBC"},
		{PreTransfusionHemoglobinColumn, "missing pre transfusion hemoglobin", "Complete pre transfusion hemoglobin"},
		{PostTransfusionHemoglobinColumn, "missing post transfusion hemoglobin", "Complete post transfusion hemoglobin"},
		{DiureticTypeColumn, "missing diuretic type", "Complete diuretic type"},
	}
	steps := []ExclusionStep{}
	for _, s := range specs {
		step, err := completeData(schema, s.col, s.reason, s.label)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// FlowOptions returns the variables tracked across the cohorts of the flow diagram study.
func FlowOptions() cohort.Options {
	return cohort.Options{
		Categorical: []string{GenderColumn, RaceColumn},
		Normal:      []string{AgeColumn, SofaScoreColumn},
		FormatCat:   cohort.FormatPercent,
		Order:       map[string][]string{RaceColumn: EthnicityOrder},
	}
}

// InitialCohortLabel is the label of the cohort before any exclusion.
const InitialCohortLabel = "Initial Patient Cohort"

// FlowResult bundles the outcome of BuildTransfusionFlow.
type FlowResult struct {
	Flow          *cohort.Flow
	RawRaceCounts map[string]int //race descriptions before recoding
	RaceCounts    map[string]int //race categories after recoding
	Unmatched     map[string]int //race descriptions that matched no rule
}

// BuildTransfusionFlow recodes the race column into broad categories, orders the records by category, and applies the
// exclusion steps of the study.
func BuildTransfusionFlow(ds *cohort.Dataset, logger *zap.Logger) (*FlowResult, error) {
	raw, err := cohort.ValueCounts(ds.Schema, ds.Records, RaceColumn)
	if err != nil {
		return nil, err
	}
	unmatched, err := FlowRaceRecoder().RecodeColumn(ds, RaceColumn, RaceColumn)
	if err != nil {
		return nil, err
	}
	for value, n := range unmatched {
		logger.Debug("Race description recoded to default category",
			zap.String("value", value), zap.Int("records", n), zap.String("category", OtherUnknown))
	}
	if err := ds.SortByCategory(RaceColumn, EthnicityOrder); err != nil {
		return nil, err
	}
	recoded, err := cohort.ValueCounts(ds.Schema, ds.Records, RaceColumn)
	if err != nil {
		return nil, err
	}
	flow, err := cohort.NewFlow(ds, InitialCohortLabel, FlowOptions())
	if err != nil {
		return nil, err
	}
	steps, err := FlowExclusions(ds.Schema)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		c := flow.AddExclusion(step.Filter, step.Reason, step.Label)
		logger.Debug("Applied exclusion", zap.String("reason", step.Reason), zap.Int("remaining", c.Size()))
	}
	return &FlowResult{Flow: flow, RawRaceCounts: raw, RaceCounts: recoded, Unmatched: unmatched}, nil
}

// GroupFilter keeps records of one study group, based on the early_transfusion flag.
func GroupFilter(schema *cohort.Schema, label string) (cohort.RecordFilter, error) {
	i, err := schema.Index(EarlyTransfusionColumn)
	if err != nil {
		return nil, err
	}
	return func(r *cohort.Record) bool {
		l, ok := TimingLabel(r.At(i))
		return ok && l == label
	}, nil
}

// SplitByTiming splits the records into the late and early transfusion groups. Records without a valid
// early_transfusion flag are in neither group.
func SplitByTiming(ds *cohort.Dataset) (late, early []*cohort.Record, err error) {
	lateFilter, err := GroupFilter(ds.Schema, LateLabel)
	if err != nil {
		return nil, nil, err
	}
	earlyFilter, err := GroupFilter(ds.Schema, EarlyLabel)
	if err != nil {
		return nil, nil, err
	}
	return ds.Select(lateFilter).Records, ds.Select(earlyFilter).Records, nil
}
