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

package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"btra/app"
	"btra/cohort"
	"btra/stats"
	"btra/tableone"
)

var rule = strings.Repeat("=", 80)

// Section prints a title between two rules.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
}

func describe(w io.Writer, label string, xs []float64, unit string) {
	s := stats.Describe(xs)
	fmt.Fprintf(w, "%s: %.1f ± %.1f %s (median: %.1f)\n", label, s.Mean, s.SD, unit, s.Median)
}

// PrintKeyFindings prints the statistics of the key figure section by section, followed by a summary of the findings.
func PrintKeyFindings(w io.Writer, k *KeyFindings, alpha float64) {
	cutoff := fmt.Sprintf("%gh", k.Cutoff)
	Section(w, "TRANSFUSION TIMING STUDY - KEY VISUALIZATIONS")
	fmt.Fprintf(w, "\nDataset: %d patients\n", k.Patients)
	fmt.Fprintf(w, "Early transfusion (≤%s): %d (%.1f%%)\n", cutoff, k.EarlyFlags, k.EarlyPercent)
	fmt.Fprintf(w, "Late transfusion (>%s): %d (%.1f%%)\n", cutoff, k.LateFlags, 100-k.EarlyPercent)

	fmt.Fprintln(w)
	Section(w, "1. AGE DISTRIBUTION")
	fmt.Fprintln(w)
	describe(w, "Early transfusion", k.Early.Ages, "years")
	describe(w, "Late transfusion", k.Late.Ages, "years")
	fmt.Fprintf(w, "Mann-Whitney U test: p = %.4f\n", k.AgeTest.PValue)

	fmt.Fprintln(w)
	Section(w, "2. TIME TO FIRST TRANSFUSION")
	times := stats.Describe(k.TimeToTransfusion)
	fmt.Fprintf(w, "\nMean: %.1f ± %.1f hours\n", times.Mean, times.SD)
	fmt.Fprintf(w, "Median: %.1f hours\n", times.Median)
	fmt.Fprintf(w, "Range: %.1f - %.1f hours\n", times.Min, times.Max)
	fmt.Fprintln(w, "\nPatients transfused within:")
	for _, t := range k.Within {
		fmt.Fprintf(w, "  ≤%gh: %.1f%%\n", t.Hours, t.Percent)
	}

	fmt.Fprintln(w)
	Section(w, "3. TRANSFUSION VOLUME")
	fmt.Fprintln(w, "\nNumber of transfusions:")
	for _, g := range []GroupFindings{k.Early, k.Late} {
		s := stats.Describe(g.Transfusions)
		fmt.Fprintf(w, "  %s: %.2f ± %.2f (median: %.1f)\n", strings.Fields(g.Label)[0], s.Mean, s.SD, s.Median)
	}

	fmt.Fprintln(w)
	Section(w, "4. ICU LENGTH OF STAY")
	fmt.Fprintln(w, "\nICU Length of Stay:")
	describe(w, "Early transfusion", k.Early.LOS, "days")
	describe(w, "Late transfusion", k.Late.LOS, "days")
	fmt.Fprintf(w, "Mann-Whitney U test: p = %.4f\n", k.LOSTest.PValue)

	fmt.Fprintln(w)
	Section(w, "5. IN-HOSPITAL MORTALITY")
	fmt.Fprintln(w, "\nMortality Rates:")
	fmt.Fprintf(w, "Early transfusion: %.1f%% (%d/%d)\n", k.Early.Mortality, k.Early.Deaths, k.Early.Followed)
	fmt.Fprintf(w, "Late transfusion: %.1f%% (%d/%d)\n", k.Late.Mortality, k.Late.Deaths, k.Late.Followed)
	fmt.Fprintf(w, "Chi-square test: χ² = %.3f, p = %.4f\n", k.MortalityTest.Statistic, k.MortalityTest.PValue)
	significant := k.MortalityTest.Significant(alpha)
	if significant {
		fmt.Fprintln(w, "✓ Statistically significant difference in mortality!")
	} else {
		fmt.Fprintln(w, "× No statistically significant difference in mortality")
	}

	fmt.Fprintln(w)
	Section(w, "KEY FINDINGS SUMMARY")
	diff := k.Early.Mortality - k.Late.Mortality
	direction := "decrease"
	if diff > 0 {
		direction = "increase"
	}
	fmt.Fprintf(w, "\n1. MORTALITY: Early transfusion shows %.1f percentage point %s\n", math.Abs(diff), direction)
	if significant {
		fmt.Fprintf(w, "   Statistical significance: YES (p<%g)\n", alpha)
	} else {
		fmt.Fprintf(w, "   Statistical significance: NO (p=%.4f)\n", k.MortalityTest.PValue)
	}

	earlyAge, lateAge := stats.Mean(k.Early.Ages), stats.Mean(k.Late.Ages)
	similarity := "different"
	if math.Abs(earlyAge-lateAge) < 5 {
		similarity = "similar"
	}
	fmt.Fprintf(w, "\n2. AGE: Groups are %s in age\n", similarity)
	fmt.Fprintf(w, "   Early: %.1f years, Late: %.1f years\n", earlyAge, lateAge)

	earlyVolume, lateVolume := stats.Mean(k.Early.Transfusions), stats.Mean(k.Late.Transfusions)
	amount := "fewer"
	if earlyVolume > lateVolume {
		amount = "more"
	}
	fmt.Fprintf(w, "\n3. TRANSFUSION VOLUME: Early group receives %s transfusions on average\n", amount)
	fmt.Fprintf(w, "   Early: %.2f, Late: %.2f\n", earlyVolume, lateVolume)

	earlyLOS, lateLOS := stats.Median(k.Early.LOS), stats.Median(k.Late.LOS)
	stay := "shorter"
	if earlyLOS > lateLOS {
		stay = "longer"
	}
	fmt.Fprintf(w, "\n4. ICU LOS: Early group has %s ICU stay\n", stay)
	fmt.Fprintf(w, "   Early: %.1f days, Late: %.1f days\n", earlyLOS, lateLOS)

	fmt.Fprintf(w, "\n5. TIME TO TRANSFUSION: Median time is %.1f hours\n", times.Median)
	fmt.Fprintf(w, "   %.1f%% receive transfusion within %g hours\n",
		100*stats.FractionAtMost(k.TimeToTransfusion, k.Cutoff), k.Cutoff)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

// PrintDistribution prints value counts sorted by value, followed by the total number of records.
func PrintDistribution(w io.Writer, title string, counts map[string]int, total int) {
	fmt.Fprintf(w, "\n%s:\n", title)
	values := make([]string, 0, len(counts))
	width := 0
	for v := range counts {
		values = append(values, v)
		if len(v) > width {
			width = len(v)
		}
	}
	sort.Strings(values)
	for _, v := range values {
		fmt.Fprintf(w, "%-*s %6d\n", width, v, counts[v])
	}
	fmt.Fprintf(w, "\nTotal: %d\n", total)
}

// PrintGrouping prints the distribution of the grouped race and language columns Table One uses.
func PrintGrouping(w io.Writer, ds *cohort.Dataset) error {
	race, err := cohort.ValueCounts(ds.Schema, ds.Records, app.RaceGroupedColumn)
	if err != nil {
		return err
	}
	language, err := cohort.ValueCounts(ds.Schema, ds.Records, app.LanguageGroupedColumn)
	if err != nil {
		return err
	}
	Section(w, "RACE/ETHNICITY AND LANGUAGE GROUPING")
	PrintDistribution(w, "Race/Ethnicity Distribution", race, ds.Len())
	fmt.Fprintln(w, "\n"+strings.Repeat("-", 80))
	PrintDistribution(w, "Language Distribution", language, ds.Len())
	return nil
}

// PrintTableOne prints the table as a grid, followed by its warnings.
func PrintTableOne(w io.Writer, t *tableone.Table, showTests bool) {
	fmt.Fprintln(w)
	Section(w, "TABLE 1: Baseline Characteristics by Transfusion Timing")
	fmt.Fprintln(w)
	tableone.Render(t, w, showTests)
	for _, warning := range t.Warnings {
		fmt.Fprintln(w, "Warning:", warning)
	}
}

// PrintExports confirms the files a table was written to.
func PrintExports(w io.Writer, files []string) {
	fmt.Fprintln(w)
	for _, file := range files {
		fmt.Fprintln(w, "✓ Table exported to:", file)
	}
}

// PrintInterpretationGuide explains how to read Table One.
func PrintInterpretationGuide(w io.Writer, alpha float64) {
	fmt.Fprintln(w)
	Section(w, "INTERPRETATION GUIDE")
	fmt.Fprintf(w, `
For continuous variables:
- Normal distribution: Mean (SD)
- Non-normal distribution: Median [Q1, Q3]

For categorical variables:
- n (%%)

P-values:
- Continuous normal: t-test
- Continuous non-normal: Mann-Whitney U test
- Categorical: Chi-square test (or Fisher's exact if small n)

Significance level: p < %g

The 'Overall' column shows statistics for the entire cohort.
The 'P-Value' column shows statistical comparison between Early and Late groups.
`, alpha)
}

// PrintSignificant lists the variables with a p-value below alpha.
func PrintSignificant(w io.Writer, significant []tableone.Significance, alpha float64) {
	fmt.Fprintln(w)
	Section(w, fmt.Sprintf("SIGNIFICANT DIFFERENCES (p < %g)", alpha))
	if len(significant) == 0 {
		fmt.Fprintf(w, "\nNo variables showed statistically significant differences (p < %g)\n", alpha)
		return
	}
	fmt.Fprintln(w, "\nVariables with statistically significant differences:")
	for _, s := range significant {
		fmt.Fprintf(w, "  • %s: p = %s\n", s.Variable, s.PValue)
	}
}

// PrintFlowSummary prints the size of the initial cohort, the race counts before and after recoding, and the
// exclusion steps.
func PrintFlowSummary(w io.Writer, result *app.FlowResult) {
	initial := result.Flow.Cohorts()[0]
	fmt.Fprintf(w, "Initial cohort size: %d\n", initial.Size())
	fmt.Fprintf(w, "Initial data shape: (%d, %d)\n", result.Flow.Dataset.Len(), len(result.Flow.Dataset.Schema.Columns))
	fmt.Fprintln(w, "\nRace before recoding:")
	for _, v := range cohort.SortedCounts(result.RawRaceCounts) {
		fmt.Fprintf(w, "  %s: %d\n", v, result.RawRaceCounts[v])
	}
	fmt.Fprintln(w, "\nRace after recoding:")
	for _, v := range cohort.SortedCounts(result.RaceCounts) {
		fmt.Fprintf(w, "  %s: %d\n", v, result.RaceCounts[v])
	}
	if n := len(result.Unmatched); n > 0 {
		fmt.Fprintf(w, "\n%d race descriptions matched no group and were recoded to %s\n", n, app.OtherUnknown)
	}
	fmt.Fprintln(w, "\nExclusion steps:")
	cohort.PrintFlow(w, result.Flow)
}
