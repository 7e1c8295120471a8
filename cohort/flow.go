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

package cohort

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"btra/stats"
)

// Formats for displaying categorical variables in the characteristics table.
const (
	FormatPercent      = "%"
	FormatCount        = "N"
	FormatCountPercent = "N (%)"
)

// MissingLevel is the level under which missing categorical values are reported.
const MissingLevel = "Missing"

// Options describes the roles of the variables tracked across the cohorts of a flow.
type Options struct {
	Categorical []string            //variables summarized per level
	Normal      []string            //continuous variables summarized as mean ± SD
	Nonnormal   []string            //continuous variables summarized as median [Q1, Q3]
	FormatCat   string              //FormatPercent, FormatCount or FormatCountPercent
	Order       map[string][]string //optional display order of the levels of a categorical variable
}

// Cohort is a labelled set of records. A cohort is not modified after it is created.
type Cohort struct {
	Label   string
	Records []*Record
}

// Size returns the number of records in the cohort.
func (c *Cohort) Size() int {
	return len(c.Records)
}

// Exclusion records one step of the cohort flow.
type Exclusion struct {
	Reason string //why records were removed, e.g. "missing WBC"
	Label  string //label of the resulting cohort
	Before int
	After  int
}

// Removed returns the number of records removed by the exclusion step.
func (e Exclusion) Removed() int {
	return e.Before - e.After
}

// Flow derives a sequence of cohorts from a dataset by applying exclusion steps one after the other. Each step keeps
// the records of the last cohort that pass a filter.
type Flow struct {
	Dataset    *Dataset
	Options    Options
	cohorts    []*Cohort
	exclusions []Exclusion
}

// NewFlow creates a flow whose initial cohort contains all records of the dataset, in dataset order. All variables
// named in the options must be columns of the dataset.
func NewFlow(ds *Dataset, label string, options Options) (*Flow, error) {
	for _, vars := range [][]string{options.Categorical, options.Normal, options.Nonnormal} {
		if err := ds.Schema.Require(vars...); err != nil {
			return nil, fmt.Errorf("flow variables: %w", err)
		}
	}
	switch options.FormatCat {
	case "":
		options.FormatCat = FormatPercent
	case FormatPercent, FormatCount, FormatCountPercent:
	default:
		return nil, fmt.Errorf("unknown categorical format %q", options.FormatCat)
	}
	initial := &Cohort{Label: label, Records: append([]*Record{}, ds.Records...)}
	return &Flow{Dataset: ds, Options: options, cohorts: []*Cohort{initial}}, nil
}

// AddExclusion applies a filter to the current cohort. The records that pass the filter form a new cohort with the
// given label, which becomes the current cohort. An empty cohort is valid.
func (f *Flow) AddExclusion(filter RecordFilter, reason, label string) *Cohort {
	current := f.Current()
	next := &Cohort{Label: label, Records: ApplyRecordFilter(filter, current.Records)}
	f.cohorts = append(f.cohorts, next)
	f.exclusions = append(f.exclusions, Exclusion{
		Reason: reason,
		Label:  label,
		Before: current.Size(),
		After:  next.Size(),
	})
	return next
}

// Current returns the last cohort of the flow.
func (f *Flow) Current() *Cohort {
	return f.cohorts[len(f.cohorts)-1]
}

// Cohorts returns all cohorts, starting with the initial cohort.
func (f *Flow) Cohorts() []*Cohort {
	return f.cohorts
}

// Exclusions returns the exclusion log in the order the steps were added.
func (f *Flow) Exclusions() []Exclusion {
	return f.exclusions
}

// FlowRow is one row of the flow table.
type FlowRow struct {
	Cohort  string
	N       int
	Removed int
	Reason  string
}

// FlowTable lists the cohorts with their sizes and, except for the initial cohort, the exclusion that produced them.
func (f *Flow) FlowTable() []FlowRow {
	rows := []FlowRow{{Cohort: f.cohorts[0].Label, N: f.cohorts[0].Size()}}
	for _, e := range f.exclusions {
		rows = append(rows, FlowRow{Cohort: e.Label, N: e.After, Removed: e.Removed(), Reason: e.Reason})
	}
	return rows
}

// Levels returns the levels of a categorical variable as they occur in the initial cohort. The configured order comes
// first, the remaining levels follow sorted. MissingLevel is last when any value is missing.
func (f *Flow) Levels(variable string) ([]string, error) {
	i, err := f.Dataset.Schema.Index(variable)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	missing := false
	for _, r := range f.cohorts[0].Records {
		v := r.At(i)
		if v.Missing {
			missing = true
			continue
		}
		seen[v.Level()] = true
	}
	levels := []string{}
	for _, l := range f.Options.Order[variable] {
		if seen[l] {
			levels = append(levels, l)
			delete(seen, l)
		}
	}
	rest := make([]string, 0, len(seen))
	for l := range seen {
		rest = append(rest, l)
	}
	sort.Strings(rest)
	levels = append(levels, rest...)
	if missing {
		levels = append(levels, MissingLevel)
	}
	return levels, nil
}

// Distribution returns the levels of a categorical variable and, per cohort, the fraction of records in each level.
// The fractions of an empty cohort are NaN.
func (f *Flow) Distribution(variable string) ([]string, [][]float64, error) {
	levels, err := f.Levels(variable)
	if err != nil {
		return nil, nil, err
	}
	counts, err := f.levelCounts(variable, levels)
	if err != nil {
		return nil, nil, err
	}
	fractions := make([][]float64, len(counts))
	for c, cs := range counts {
		n := float64(f.cohorts[c].Size())
		fractions[c] = make([]float64, len(levels))
		for l, x := range cs {
			if n == 0 {
				fractions[c][l] = math.NaN()
			} else {
				fractions[c][l] = float64(x) / n
			}
		}
	}
	return levels, fractions, nil
}

func (f *Flow) levelCounts(variable string, levels []string) ([][]int, error) {
	i, err := f.Dataset.Schema.Index(variable)
	if err != nil {
		return nil, err
	}
	position := map[string]int{}
	for j, l := range levels {
		position[l] = j
	}
	counts := make([][]int, len(f.cohorts))
	for c, cohort := range f.cohorts {
		counts[c] = make([]int, len(levels))
		for _, r := range cohort.Records {
			v := r.At(i)
			level := MissingLevel
			if !v.Missing {
				level = v.Level()
			}
			if j, ok := position[level]; ok {
				counts[c][j]++
			}
		}
	}
	return counts, nil
}

// Characteristic is one row of the characteristics table. Level is empty for continuous variables.
type Characteristic struct {
	Variable string
	Level    string
	Values   []string //one entry per cohort
}

func formatFloat(x float64) string {
	if math.IsNaN(x) {
		return "NaN"
	}
	return strconv.FormatFloat(x, 'f', 1, 64)
}

func (f *Flow) formatLevel(count, n int) string {
	pct := math.NaN()
	if n > 0 {
		pct = 100 * float64(count) / float64(n)
	}
	switch f.Options.FormatCat {
	case FormatCount:
		return strconv.Itoa(count)
	case FormatCountPercent:
		return fmt.Sprintf("%d (%s)", count, formatFloat(pct))
	default:
		return formatFloat(pct)
	}
}

// Characteristics summarizes the variables of every cohort: the cohort size, the categorical levels in the configured
// format, normal variables as mean ± SD, and non-normal variables as median [Q1, Q3].
func (f *Flow) Characteristics() ([]Characteristic, error) {
	rows := []Characteristic{}
	overall := Characteristic{Variable: "Overall", Level: "N"}
	for _, c := range f.cohorts {
		overall.Values = append(overall.Values, strconv.Itoa(c.Size()))
	}
	rows = append(rows, overall)
	for _, variable := range f.Options.Categorical {
		levels, err := f.Levels(variable)
		if err != nil {
			return nil, err
		}
		counts, err := f.levelCounts(variable, levels)
		if err != nil {
			return nil, err
		}
		for l, level := range levels {
			row := Characteristic{Variable: variable, Level: level}
			for c, cohort := range f.cohorts {
				row.Values = append(row.Values, f.formatLevel(counts[c][l], cohort.Size()))
			}
			rows = append(rows, row)
		}
	}
	for _, variable := range f.Options.Normal {
		row := Characteristic{Variable: variable}
		for _, cohort := range f.cohorts {
			xs, err := Float64s(f.Dataset.Schema, cohort.Records, variable)
			if err != nil {
				return nil, err
			}
			s := stats.Describe(xs)
			row.Values = append(row.Values, fmt.Sprintf("%s ± %s", formatFloat(s.Mean), formatFloat(s.SD)))
		}
		rows = append(rows, row)
	}
	for _, variable := range f.Options.Nonnormal {
		row := Characteristic{Variable: variable}
		for _, cohort := range f.cohorts {
			xs, err := Float64s(f.Dataset.Schema, cohort.Records, variable)
			if err != nil {
				return nil, err
			}
			s := stats.Describe(xs)
			row.Values = append(row.Values, fmt.Sprintf("%s [%s, %s]", formatFloat(s.Median), formatFloat(s.Q1), formatFloat(s.Q3)))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Drift is one row of the drifts table. Level is empty for the variable as a whole.
type Drift struct {
	Variable string
	Level    string
	SMDs     []float64 //one entry per exclusion step, comparing the cohort before and after the step
}

// Drifts computes the standardized mean differences between consecutive cohorts. Continuous variables use the pooled
// standard deviation. Categorical variables get one row for the variable as a whole, which uses the multi-level SMD,
// followed by one row per level with the SMD of the level proportion.
func (f *Flow) Drifts() ([]Drift, error) {
	steps := len(f.cohorts) - 1
	rows := []Drift{}
	for _, variable := range f.Options.Categorical {
		levels, fractions, err := f.Distribution(variable)
		if err != nil {
			return nil, err
		}
		whole := Drift{Variable: variable, SMDs: make([]float64, steps)}
		for s := 0; s < steps; s++ {
			whole.SMDs[s] = stats.MultiLevelSMD(fractions[s], fractions[s+1])
		}
		rows = append(rows, whole)
		for l, level := range levels {
			row := Drift{Variable: variable, Level: level, SMDs: make([]float64, steps)}
			for s := 0; s < steps; s++ {
				row.SMDs[s] = math.Abs(stats.BinarySMD(fractions[s][l], fractions[s+1][l]))
			}
			rows = append(rows, row)
		}
	}
	continuous := append(append([]string{}, f.Options.Normal...), f.Options.Nonnormal...)
	for _, variable := range continuous {
		values := make([][]float64, len(f.cohorts))
		for c, cohort := range f.cohorts {
			xs, err := Float64s(f.Dataset.Schema, cohort.Records, variable)
			if err != nil {
				return nil, err
			}
			values[c] = xs
		}
		row := Drift{Variable: variable, SMDs: make([]float64, steps)}
		for s := 0; s < steps; s++ {
			row.SMDs[s] = math.Abs(stats.ContinuousSMD(values[s], values[s+1]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
