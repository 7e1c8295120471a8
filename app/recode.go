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
	"strings"

	"btra/cohort"
)

// RuleGroup maps a set of search terms onto a label.
type RuleGroup struct {
	Label string
	Terms []string //upper case
}

// Recoder maps free-text categories onto a small closed set of labels. A value is upper-cased and matched against the
// rule groups in order: the label of the first group that has a term occurring in the value wins. Values that match no
// group get the default label.
type Recoder struct {
	Rules   []RuleGroup
	Default string //label for values that match no rule
	Missing string //label for missing values, Default if empty
}

// match returns the label of the first matching rule group.
func (rc *Recoder) match(v cohort.Value) (string, bool) {
	if v.Missing {
		if rc.Missing != "" {
			return rc.Missing, true
		}
		return rc.Default, true
	}
	s := strings.ToUpper(v.Raw)
	for _, group := range rc.Rules {
		for _, term := range group.Terms {
			if strings.Contains(s, term) {
				return group.Label, true
			}
		}
	}
	return rc.Default, false
}

// Recode returns the label for a value.
func (rc *Recoder) Recode(v cohort.Value) string {
	label, _ := rc.match(v)
	return label
}

// RecodeString returns the label for a non-missing text.
func (rc *Recoder) RecodeString(s string) string {
	return rc.Recode(cohort.StringValue(s))
}

// Labels returns the closed set of labels the recoder can return: the rule labels in order, then the label for missing
// values and the default label, without duplicates.
func (rc *Recoder) Labels() []string {
	labels := []string{}
	seen := map[string]bool{}
	add := func(l string) {
		if l != "" && !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, group := range rc.Rules {
		add(group.Label)
	}
	add(rc.Missing)
	add(rc.Default)
	return labels
}

// RecodeColumn recodes the values of column from into column to. When both names are the same the column is
// overwritten, otherwise a new column is added. The result counts the non-missing raw values that matched no rule and
// were therefore put into the default category.
func (rc *Recoder) RecodeColumn(ds *cohort.Dataset, from, to string) (map[string]int, error) {
	i, err := ds.Schema.Index(from)
	if err != nil {
		return nil, err
	}
	unmatched := map[string]int{}
	recode := func(v cohort.Value) cohort.Value {
		label, ok := rc.match(v)
		if !ok {
			unmatched[v.Raw]++
		}
		return cohort.StringValue(label)
	}
	if from == to {
		err = ds.ReplaceColumn(to, recode)
	} else {
		err = ds.AddColumn(to, func(r *cohort.Record) cohort.Value {
			return recode(r.At(i))
		})
	}
	if err != nil {
		return nil, err
	}
	return unmatched, nil
}

// Categories of the flow diagram study.
const (
	Caucasian       = "Caucasian"
	AfricanAmerican = "African American"
	OtherUnknown    = "Other/Unknown"
	Hispanic        = "Hispanic"
	Asian           = "Asian"
	NativeAmerican  = "Native American"
)

// EthnicityOrder is the display order of the race categories in the flow diagram.
var EthnicityOrder = []string{Caucasian, AfricanAmerican, OtherUnknown, Hispanic, Asian, NativeAmerican}

// FlowRaceRecoder groups detailed race and ethnicity descriptions into six broad categories. Missing and unrecognized
// descriptions are Other/Unknown.
func FlowRaceRecoder() *Recoder {
	return &Recoder{
		Rules: []RuleGroup{
			{Label: Caucasian, Terms: []string{"WHITE", "PORTUGUESE"}},
			{Label: AfricanAmerican, Terms: []string{"BLACK", "AFRICAN", "CAPE VERDEAN", "CARIBBEAN"}},
			{Label: Hispanic, Terms: []string{"HISPANIC", "LATINO", "SOUTH AMERICAN"}},
			{Label: Asian, Terms: []string{"ASIAN", "CHINESE", "KOREAN"}},
			{Label: NativeAmerican, Terms: []string{"AMERICAN INDIAN", "ALASKA NATIVE", "NATIVE HAWAIIAN", "PACIFIC ISLANDER"}},
		},
		Default: OtherUnknown,
	}
}

// TableOneRaceRecoder groups race descriptions for Table One. Missing descriptions are Unknown, unrecognized ones Other.
func TableOneRaceRecoder() *Recoder {
	return &Recoder{
		Rules: []RuleGroup{
			{Label: "White", Terms: []string{"WHITE"}},
			{Label: "Black/African American", Terms: []string{"BLACK", "AFRICAN"}},
			{Label: "Hispanic/Latino", Terms: []string{"HISPANIC", "LATINO"}},
			{Label: "Asian", Terms: []string{"ASIAN"}},
			{Label: "Unknown", Terms: []string{"UNKNOWN", "UNABLE"}},
		},
		Default: "Other",
		Missing: "Unknown",
	}
}

// LanguageRecoder distinguishes English from other primary languages.
func LanguageRecoder() *Recoder {
	return &Recoder{
		Rules:   []RuleGroup{{Label: "English", Terms: []string{"ENGLISH"}}},
		Default: "Non-English",
		Missing: "Unknown",
	}
}
