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
	"fmt"

	"btra/cohort"
)

// Input columns used by the study.
const (
	AgeColumn                       = "age"
	GenderColumn                    = "gender"
	RaceColumn                      = "race"
	LanguageColumn                  = "language"
	SofaScoreColumn                 = "sofa_score"
	EarlyTransfusionColumn          = "early_transfusion"
	TimeToFirstTransfusionColumn    = "time_to_first_transfusion_hours"
	NumberOfTransfusionsColumn      = "number_of_transfusions"
	LosIcuDaysColumn                = "los_icu_days"
	InHospitalMortalityColumn       = "in_hospital_mortality"
	BaselineBPSystolicColumn        = "baseline_bp_systolic"
	BaselineWBCColumn               = "baseline_wbc"
	PreTransfusionHemoglobinColumn  = "pre_transfusion_hemoglobin"
	PostTransfusionHemoglobinColumn = "post_transfusion_hemoglobin"
	DiureticTypeColumn              = "diuretic_type"
	RaceGroupedColumn               = "race_grouped"
	LanguageGroupedColumn           = "language_grouped"
	TransfusionTimingColumn         = "transfusion_timing"
)

// Labels of the two study groups.
const (
	LateLabel  = "Late (>6h)"
	EarlyLabel = "Early (≤6h)"
)

// GroupOrder lists the study groups in display order.
var GroupOrder = []string{LateLabel, EarlyLabel}

// TimingLabel returns the study group of an early_transfusion flag: 1 is early, 0 is late. Other values have no group.
func TimingLabel(v cohort.Value) (string, bool) {
	if v.Missing || !v.Numeric {
		return "", false
	}
	switch v.Num {
	case 0:
		return LateLabel, true
	case 1:
		return EarlyLabel, true
	}
	return "", false
}

// AddTransfusionTiming derives the transfusion_timing column from the early_transfusion flag.
func AddTransfusionTiming(ds *cohort.Dataset) error {
	i, err := ds.Schema.Index(EarlyTransfusionColumn)
	if err != nil {
		return err
	}
	return ds.AddColumn(TransfusionTimingColumn, func(r *cohort.Record) cohort.Value {
		if label, ok := TimingLabel(r.At(i)); ok {
			return cohort.StringValue(label)
		}
		return cohort.MissingValue()
	})
}

// Definition describes the variables of a Table One and how they are displayed.
type Definition struct {
	Columns     []string          //variables in display order
	Categorical []string          //variables summarized per level
	Nonnormal   []string          //continuous variables summarized as median [Q1,Q3]
	Rename      map[string]string //display names
	GroupBy     string            //column that splits the records into the compared groups
}

// TableColumns returns the variables in display order.
func (d *Definition) TableColumns() []string {
	return d.Columns
}

// GroupColumn returns the column that splits the records into groups.
func (d *Definition) GroupColumn() string {
	return d.GroupBy
}

// IsCategorical checks if a variable is categorical.
func (d *Definition) IsCategorical(col string) bool {
	return member(col, d.Categorical)
}

// IsNonnormal checks if a variable is continuous but not normally distributed.
func (d *Definition) IsNonnormal(col string) bool {
	return member(col, d.Nonnormal)
}

// DisplayName returns the name of a variable as shown in the table.
func (d *Definition) DisplayName(col string) string {
	if name, ok := d.Rename[col]; ok {
		return name
	}
	return col
}

// Validate checks that the role lists only name table columns and that all columns exist in the schema.
func (d *Definition) Validate(schema *cohort.Schema) error {
	for _, c := range append(append([]string{}, d.Categorical...), d.Nonnormal...) {
		if !member(c, d.Columns) {
			return fmt.Errorf("variable %q has a role but is not a table column", c)
		}
	}
	if err := schema.Require(d.GroupBy); err != nil {
		return fmt.Errorf("group column: %w", err)
	}
	if err := schema.Require(d.Columns...); err != nil {
		return fmt.Errorf("table columns: %w", err)
	}
	return nil
}

func member(s string, list []string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// TableOneDefinition returns the baseline characteristics compared between early and late transfusion.
func TableOneDefinition() *Definition {
	return &Definition{
		Columns: []string{
			// demographics
			"age", "gender", "race_grouped", "weight", "insurance", "language_grouped",
			// diagnosis and severity
			"sofa_score", "admission_type", "ongoing_bleeding",
			// comorbidities
			"heart_disease", "kidney_disease", "history_of_bleeding", "sepsis",
			// baseline labs
			"baseline_hemoglobin", "pre_transfusion_hemoglobin", "baseline_wbc", "baseline_platelets",
			"baseline_hematocrit", "baseline_creatinine",
			// baseline vitals
			"baseline_spo2", "baseline_sao2", "baseline_bp_systolic", "baseline_bp_diastolic",
			// interventions
			"on_vasopressors", "vasopressor_type", "on_diuretics",
			// transfusion
			"time_to_first_transfusion_hours", "number_of_transfusions", "units_first_transfusion",
			"total_units_transfused",
			// hemolysis
			"possible_hemolysis", "ldh", "bilirubin_total",
			// outcomes
			"in_hospital_mortality", "los_icu_days", "los_hospital_days",
		},
		Categorical: []string{
			"gender", "race_grouped", "insurance", "language_grouped", "admission_type", "ongoing_bleeding",
			"heart_disease", "kidney_disease", "history_of_bleeding", "sepsis", "on_vasopressors",
			"vasopressor_type", "on_diuretics", "possible_hemolysis", "in_hospital_mortality",
		},
		Nonnormal: []string{
			"sofa_score", "baseline_creatinine", "time_to_first_transfusion_hours", "number_of_transfusions",
			"units_first_transfusion", "total_units_transfused", "los_icu_days", "los_hospital_days", "ldh",
			"bilirubin_total",
		},
		Rename: map[string]string{
			"age":                             "Age (years)",
			"gender":                          "Gender",
			"race_grouped":                    "Race/Ethnicity",
			"weight":                          "Weight (kg)",
			"insurance":                       "Insurance",
			"language_grouped":                "Primary Language",
			"sofa_score":                      "SOFA Score",
			"admission_type":                  "Admission Type",
			"ongoing_bleeding":                "Ongoing Bleeding",
			"heart_disease":                   "Heart Disease",
			"kidney_disease":                  "Chronic Kidney Disease",
			"history_of_bleeding":             "History of Bleeding",
			"sepsis":                          "Sepsis",
			"baseline_hemoglobin":             "Baseline Hemoglobin (g/dL)",
			"pre_transfusion_hemoglobin":      "Pre-transfusion Hemoglobin (g/dL)",
			"baseline_wbc":                    "White Blood Cell Count (K/uL)",
			"baseline_platelets":              "Platelet Count (K/uL)",
			"baseline_hematocrit":             "Hematocrit (%)",
			"baseline_creatinine":             "Creatinine (mg/dL)",
			"baseline_spo2":                   "SpO2 (%)",
			"baseline_sao2":                   "SaO2 from ABG (%)",
			"baseline_bp_systolic":            "Systolic BP (mmHg)",
			"baseline_bp_diastolic":           "Diastolic BP (mmHg)",
			"on_vasopressors":                 "Vasopressor Use",
			"vasopressor_type":                "Vasopressor Type",
			"on_diuretics":                    "Diuretic Use",
			"time_to_first_transfusion_hours": "Time to First Transfusion (hours)",
			"number_of_transfusions":          "Number of Transfusions",
			"units_first_transfusion":         "Units in First Transfusion (mL)",
			"total_units_transfused":          "Total Units Transfused (mL)",
			"possible_hemolysis":              "Possible Hemolysis",
			"ldh":                             "LDH (U/L)",
			"bilirubin_total":                 "Total Bilirubin (mg/dL)",
			"in_hospital_mortality":           "In-Hospital Mortality",
			"los_icu_days":                    "ICU Length of Stay (days)",
			"los_hospital_days":               "Hospital Length of Stay (days)",
		},
		GroupBy: TransfusionTimingColumn,
	}
}

// PrepareTableOneData derives the grouped race, grouped language and transfusion timing columns Table One needs. It
// returns the counts of race and language descriptions that matched no rule.
func PrepareTableOneData(ds *cohort.Dataset) (raceUnmatched, languageUnmatched map[string]int, err error) {
	if err = AddTransfusionTiming(ds); err != nil {
		return nil, nil, err
	}
	if raceUnmatched, err = TableOneRaceRecoder().RecodeColumn(ds, RaceColumn, RaceGroupedColumn); err != nil {
		return nil, nil, err
	}
	if languageUnmatched, err = LanguageRecoder().RecodeColumn(ds, LanguageColumn, LanguageGroupedColumn); err != nil {
		return nil, nil, err
	}
	return raceUnmatched, languageUnmatched, nil
}
