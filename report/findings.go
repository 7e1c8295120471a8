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

// Package report prints the analysis results of the btra commands and records the artifacts of a run.
package report

import (
	"math"
	"sort"

	"btra/app"
	"btra/cohort"
	"btra/figures"
	"btra/stats"
)

// TransfusionThresholds are the hours for which the share of patients transfused in time is reported.
var TransfusionThresholds = []float64{1, 3, 6, 12, 24}

// GroupFindings summarizes one study group.
type GroupFindings struct {
	Label        string
	Records      int
	Ages         []float64
	Transfusions []float64
	LOS          []float64
	Deaths       int
	Followed     int     //records with a known in-hospital mortality
	Mortality    float64 //percent
}

// Threshold is the share of patients transfused within a number of hours.
type Threshold struct {
	Hours   float64
	Percent float64
}

// KeyFindings are the statistics behind the key figure of the study.
type KeyFindings struct {
	Patients          int
	EarlyFlags        int     //records with early_transfusion = 1
	LateFlags         int     //records with early_transfusion = 0
	EarlyPercent      float64 //of the records with a known flag
	Late, Early       GroupFindings
	AgeTest           stats.TestResult
	LOSTest           stats.TestResult
	MortalityTest     stats.TestResult
	TimeToTransfusion []float64
	Within            []Threshold
	Cutoff            float64
}

func groupFindings(schema *cohort.Schema, label string, records []*cohort.Record) (GroupFindings, error) {
	g := GroupFindings{Label: label, Records: len(records)}
	var err error
	if g.Ages, err = cohort.Float64s(schema, records, app.AgeColumn); err != nil {
		return g, err
	}
	if g.Transfusions, err = cohort.Float64s(schema, records, app.NumberOfTransfusionsColumn); err != nil {
		return g, err
	}
	if g.LOS, err = cohort.Float64s(schema, records, app.LosIcuDaysColumn); err != nil {
		return g, err
	}
	mortality, err := cohort.Float64s(schema, records, app.InHospitalMortalityColumn)
	if err != nil {
		return g, err
	}
	g.Followed = len(mortality)
	sum := 0.0
	for _, m := range mortality {
		sum += m
	}
	g.Deaths = int(sum)
	g.Mortality = math.NaN()
	if g.Followed > 0 {
		g.Mortality = 100 * sum / float64(g.Followed)
	}
	return g, nil
}

// mortalityTable cross-tabulates the study groups against the observed in-hospital mortality values.
func mortalityTable(schema *cohort.Schema, groups ...[]*cohort.Record) ([][]float64, error) {
	i, err := schema.Index(app.InHospitalMortalityColumn)
	if err != nil {
		return nil, err
	}
	levels := map[string]bool{}
	for _, records := range groups {
		for _, r := range records {
			if v := r.At(i); !v.Missing {
				levels[v.Level()] = true
			}
		}
	}
	columns := make([]string, 0, len(levels))
	for l := range levels {
		columns = append(columns, l)
	}
	sort.Strings(columns)
	position := map[string]int{}
	for j, l := range columns {
		position[l] = j
	}
	table := make([][]float64, len(groups))
	for g, records := range groups {
		table[g] = make([]float64, len(columns))
		for _, r := range records {
			if v := r.At(i); !v.Missing {
				table[g][position[v.Level()]]++
			}
		}
	}
	return table, nil
}

// AnalyzeKeyFindings computes the statistics of the key figure. Groups come from the early_transfusion flag; records
// without a valid flag only count towards the time to transfusion.
func AnalyzeKeyFindings(ds *cohort.Dataset, cutoff float64) (*KeyFindings, error) {
	if err := ds.Schema.Require(app.EarlyTransfusionColumn, app.AgeColumn, app.TimeToFirstTransfusionColumn,
		app.NumberOfTransfusionsColumn, app.LosIcuDaysColumn, app.InHospitalMortalityColumn); err != nil {
		return nil, err
	}
	late, early, err := app.SplitByTiming(ds)
	if err != nil {
		return nil, err
	}
	k := &KeyFindings{Patients: ds.Len(), EarlyFlags: len(early), LateFlags: len(late), Cutoff: cutoff}
	k.EarlyPercent = math.NaN()
	if flagged := len(early) + len(late); flagged > 0 {
		k.EarlyPercent = 100 * float64(len(early)) / float64(flagged)
	}
	if k.Late, err = groupFindings(ds.Schema, app.LateLabel, late); err != nil {
		return nil, err
	}
	if k.Early, err = groupFindings(ds.Schema, app.EarlyLabel, early); err != nil {
		return nil, err
	}
	k.AgeTest = stats.MannWhitneyU(k.Early.Ages, k.Late.Ages)
	k.LOSTest = stats.MannWhitneyU(k.Early.LOS, k.Late.LOS)
	table, err := mortalityTable(ds.Schema, late, early)
	if err != nil {
		return nil, err
	}
	k.MortalityTest = stats.ChiSquareContingency(table)
	if k.TimeToTransfusion, err = cohort.Float64s(ds.Schema, ds.Records, app.TimeToFirstTransfusionColumn); err != nil {
		return nil, err
	}
	for _, h := range TransfusionThresholds {
		k.Within = append(k.Within, Threshold{Hours: h, Percent: 100 * stats.FractionAtMost(k.TimeToTransfusion, h)})
	}
	return k, nil
}

// PlotData returns the values of the five panels of the key figure, late group first.
func (k *KeyFindings) PlotData() figures.KeyData {
	return figures.KeyData{
		Groups:            []string{k.Late.Label, k.Early.Label},
		Age:               [][]float64{k.Late.Ages, k.Early.Ages},
		TimeToTransfusion: k.TimeToTransfusion,
		MeanTransfusions:  []float64{stats.Mean(k.Late.Transfusions), stats.Mean(k.Early.Transfusions)},
		LOS:               [][]float64{k.Late.LOS, k.Early.LOS},
		MortalityRate:     []float64{k.Late.Mortality, k.Early.Mortality},
		MortalityP:        k.MortalityTest.PValue,
	}
}
