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

package tableone

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"btra/cohort"
	"btra/stats"

	"github.com/exascience/pargo/parallel"
	"go.uber.org/zap"
)

// NullLevel is the level under which missing categorical values are shown when Options.IncludeNull is set.
const NullLevel = "None"

// Definition describes the variables of the table and the column that splits the records into groups.
type Definition interface {
	TableColumns() []string
	GroupColumn() string
	IsCategorical(col string) bool
	IsNonnormal(col string) bool
	DisplayName(col string) string
}

// Options configures Build.
type Options struct {
	IncludeNull bool        //show missing categorical values as a separate level
	Simulate    int         //Monte Carlo iterations for sparse r x c tables, 0 disables simulation
	Logger      *zap.Logger //nil means no logging
}

// Row is one line of the table. Continuous variables have a single row. Categorical variables have a row per level;
// the p-value and test are set on the first row only.
type Row struct {
	Column   string //input column
	Variable string //display name with the summary format, e.g. "Age (years), mean (SD)"
	Level    string
	Overall  string
	Groups   []string //one entry per group, in the order of Table.Groups
	Test     stats.TestResult
	HasTest  bool
}

// Table is a computed Table One.
type Table struct {
	Groups   []string
	Rows     []Row
	Warnings []string
}

// Build computes a Table One. Records are split into groups on the group column; records without a group are left out.
// The rows of the variables are computed in parallel and appear in the order of the definition.
func Build(ds *cohort.Dataset, def Definition, options Options) (*Table, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	columns := def.TableColumns()
	if err := ds.Schema.Require(def.GroupColumn()); err != nil {
		return nil, fmt.Errorf("group column: %w", err)
	}
	if err := ds.Schema.Require(columns...); err != nil {
		return nil, fmt.Errorf("table columns: %w", err)
	}
	g, _ := ds.Schema.Index(def.GroupColumn())
	byGroup := map[string][]*cohort.Record{}
	all := []*cohort.Record{}
	ungrouped := 0
	for _, r := range ds.Records {
		v := r.At(g)
		if v.Missing {
			ungrouped++
			continue
		}
		byGroup[v.Level()] = append(byGroup[v.Level()], r)
		all = append(all, r)
	}
	table := &Table{}
	if ungrouped > 0 {
		table.Warnings = append(table.Warnings,
			fmt.Sprintf("%d records have no value for %s and are left out", ungrouped, def.GroupColumn()))
	}
	for group := range byGroup {
		table.Groups = append(table.Groups, group)
	}
	sort.Strings(table.Groups)
	groups := make([][]*cohort.Record, len(table.Groups))
	for i, group := range table.Groups {
		groups[i] = byGroup[group]
	}
	n := Row{Variable: "n", Overall: strconv.Itoa(len(all))}
	for _, records := range groups {
		n.Groups = append(n.Groups, strconv.Itoa(len(records)))
	}
	rows := make([][]Row, len(columns))
	warnings := make([][]string, len(columns))
	parallel.Range(0, len(columns), 0, func(low, high int) {
		for i := low; i < high; i++ {
			col := columns[i]
			b := &variableBuilder{schema: ds.Schema, def: def, options: options, col: col, all: all, groups: groups}
			if def.IsCategorical(col) {
				rows[i] = b.categorical()
			} else {
				rows[i] = b.continuous()
			}
			warnings[i] = b.warnings
		}
	})
	table.Rows = append(table.Rows, n)
	for i := range columns {
		table.Rows = append(table.Rows, rows[i]...)
		table.Warnings = append(table.Warnings, warnings[i]...)
	}
	for _, w := range table.Warnings {
		logger.Warn("Table One", zap.String("warning", w))
	}
	logger.Info("Built Table One",
		zap.Int("variables", len(columns)),
		zap.Int("rows", len(table.Rows)),
		zap.Strings("groups", table.Groups))
	return table, nil
}

// variableBuilder computes the rows of a single variable.
type variableBuilder struct {
	schema   *cohort.Schema
	def      Definition
	options  Options
	col      string
	all      []*cohort.Record
	groups   [][]*cohort.Record
	warnings []string
}

func (b *variableBuilder) warn(format string, args ...interface{}) {
	b.warnings = append(b.warnings, fmt.Sprintf("%s: %s", b.col, fmt.Sprintf(format, args...)))
}

func formatFloat(x float64) string {
	if math.IsNaN(x) {
		return "NaN"
	}
	return strconv.FormatFloat(x, 'f', 1, 64)
}

// FormatPValue prints a p-value with three decimals, or <0.001 for smaller values. NaN p-values are empty.
func FormatPValue(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.001:
		return "<0.001"
	default:
		return strconv.FormatFloat(p, 'f', 3, 64)
	}
}

func (b *variableBuilder) values(records []*cohort.Record) []float64 {
	xs, _ := cohort.Float64s(b.schema, records, b.col)
	return xs
}

func (b *variableBuilder) continuous() []Row {
	nonnormal := b.def.IsNonnormal(b.col)
	summarize := func(xs []float64) string {
		s := stats.Describe(xs)
		if nonnormal {
			return fmt.Sprintf("%s [%s,%s]", formatFloat(s.Median), formatFloat(s.Q1), formatFloat(s.Q3))
		}
		return fmt.Sprintf("%s (%s)", formatFloat(s.Mean), formatFloat(s.SD))
	}
	row := Row{Column: b.col, Overall: summarize(b.values(b.all))}
	if nonnormal {
		row.Variable = b.def.DisplayName(b.col) + ", median [Q1,Q3]"
	} else {
		row.Variable = b.def.DisplayName(b.col) + ", mean (SD)"
	}
	samples := [][]float64{}
	for _, records := range b.groups {
		xs := b.values(records)
		row.Groups = append(row.Groups, summarize(xs))
		samples = append(samples, xs)
	}
	if len(samples) < 2 {
		return []Row{row}
	}
	switch {
	case nonnormal && len(samples) == 2:
		row.Test = stats.MannWhitneyU(samples[0], samples[1])
	case nonnormal:
		row.Test = stats.KruskalWallis(samples...)
	case len(samples) == 2:
		row.Test = stats.WelchTTest(samples[0], samples[1])
	default:
		row.Test = stats.OneWayANOVA(samples...)
	}
	row.HasTest = true
	if math.IsNaN(row.Test.PValue) {
		b.warn("%s could not be computed", row.Test.Name)
	}
	return []Row{row}
}

// levelLess orders levels numerically when both are numbers, alphabetically otherwise. The null level is last.
func levelLess(a, b string) bool {
	if a == NullLevel || b == NullLevel {
		return b == NullLevel && a != NullLevel
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

func (b *variableBuilder) level(r *cohort.Record, i int) (string, bool) {
	v := r.At(i)
	if v.Missing {
		return NullLevel, b.options.IncludeNull
	}
	return v.Level(), true
}

func (b *variableBuilder) categorical() []Row {
	i, _ := b.schema.Index(b.col)
	count := func(records []*cohort.Record) (map[string]int, int) {
		counts := map[string]int{}
		total := 0
		for _, r := range records {
			if l, ok := b.level(r, i); ok {
				counts[l]++
				total++
			}
		}
		return counts, total
	}
	overall, overallTotal := count(b.all)
	levels := make([]string, 0, len(overall))
	for l := range overall {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(x, y int) bool { return levelLess(levels[x], levels[y]) })
	groupCounts := make([]map[string]int, len(b.groups))
	groupTotals := make([]int, len(b.groups))
	for g, records := range b.groups {
		groupCounts[g], groupTotals[g] = count(records)
	}
	format := func(n, total int) string {
		pct := math.NaN()
		if total > 0 {
			pct = 100 * float64(n) / float64(total)
		}
		return fmt.Sprintf("%d (%s)", n, formatFloat(pct))
	}
	rows := []Row{}
	table := make([][]float64, len(levels))
	for li, l := range levels {
		row := Row{Column: b.col, Level: l, Overall: format(overall[l], overallTotal)}
		table[li] = make([]float64, len(b.groups))
		for g := range b.groups {
			row.Groups = append(row.Groups, format(groupCounts[g][l], groupTotals[g]))
			table[li][g] = float64(groupCounts[g][l])
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		b.warn("no values")
		return []Row{{Column: b.col, Variable: b.def.DisplayName(b.col) + ", n (%)", Groups: make([]string, len(b.groups))}}
	}
	rows[0].Variable = b.def.DisplayName(b.col) + ", n (%)"
	if len(b.groups) < 2 {
		return rows
	}
	rows[0].Test = b.categoricalTest(table)
	rows[0].HasTest = true
	return rows
}

// categoricalTest selects the test for a contingency table: Fisher's exact test for 2x2 tables with an expected count
// below 5, a simulated chi-squared test for larger sparse tables when simulation is enabled, and Pearson's chi-squared
// test otherwise.
func (b *variableBuilder) categoricalTest(table [][]float64) stats.TestResult {
	compact := stats.Compact(table)
	minExpected := stats.MinExpected(compact)
	sparse := minExpected < 5
	var result stats.TestResult
	switch {
	case len(compact) == 2 && len(compact[0]) == 2 && sparse:
		result = stats.FisherExact(compact)
	case sparse && b.options.Simulate > 0:
		result = stats.MonteCarloChiSquare(compact, b.options.Simulate)
	default:
		result = stats.ChiSquareContingency(compact)
		if sparse {
			b.warn("chi-squared test with an expected count of %s below 5", formatFloat(minExpected))
		}
	}
	if math.IsNaN(result.PValue) {
		b.warn("%s could not be computed", result.Name)
	}
	return result
}

// Significance is a variable with a p-value below the significance level.
type Significance struct {
	Variable string
	PValue   string
}

// Significant lists the variables with a p-value below alpha, in table order.
func (t *Table) Significant(alpha float64) []Significance {
	result := []Significance{}
	for _, row := range t.Rows {
		if row.HasTest && row.Test.Significant(alpha) {
			result = append(result, Significance{Variable: row.Variable, PValue: FormatPValue(row.Test.PValue)})
		}
	}
	return result
}

// Header returns the column names of the table.
func (t *Table) Header(showTests bool) []string {
	header := append([]string{"", "", "Overall"}, t.Groups...)
	header = append(header, "P-Value")
	if showTests {
		header = append(header, "Test")
	}
	return header
}

// Records returns the cells of the table, one slice per row. If repeatVariable is false, the variable name is only
// printed on the first row of a variable.
func (t *Table) Records(showTests, repeatVariable bool) [][]string {
	records := [][]string{}
	variable := ""
	for _, row := range t.Rows {
		if row.Variable != "" {
			variable = row.Variable
		}
		name := row.Variable
		if repeatVariable {
			name = variable
		}
		record := append([]string{name, row.Level, row.Overall}, row.Groups...)
		p, test := "", ""
		if row.HasTest {
			p, test = FormatPValue(row.Test.PValue), row.Test.Name
		}
		record = append(record, p)
		if showTests {
			record = append(record, test)
		}
		records = append(records, record)
	}
	return records
}
