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
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"btra/cohort"

	"github.com/kylelemons/godebug/pretty"
	"github.com/xuri/excelize/v2"
)

type testDefinition struct{}

func (testDefinition) TableColumns() []string { return []string{"age", "sex", "los"} }
func (testDefinition) GroupColumn() string { return "grp" }
func (testDefinition) IsCategorical(col string) bool { return col == "sex" }
func (testDefinition) IsNonnormal(col string) bool { return col == "los" }
func (testDefinition) DisplayName(col string) string { return strings.ToUpper(col[:1]) + col[1:] }

func testDataset() *cohort.Dataset {
	ds := cohort.NewDataset([]string{"grp", "age", "sex", "los"})
	add := func(grp string, age float64, sex string, los float64) {
		cells := []cohort.Value{cohort.StringValue(grp), cohort.NumberValue(age), cohort.StringValue(sex), cohort.NumberValue(los)}
		if grp == "" {
			cells[0] = cohort.MissingValue()
		}
		if sex == "" {
			cells[2] = cohort.MissingValue()
		}
		if math.IsNaN(age) {
			cells[1] = cohort.MissingValue()
		}
		if math.IsNaN(los) {
			cells[3] = cohort.MissingValue()
		}
		ds.Append(cells)
	}
	add("A", 60, "M", 1)
	add("A", 62, "M", 2)
	add("A", 64, "F", 3)
	add("A", 66, "F", 4)
	add("A", math.NaN(), "", math.NaN())
	add("B", 70, "M", 5)
	add("B", 72, "F", 6)
	add("B", 74, "F", 7)
	add("B", 76, "F", 8)
	add("", 90, "M", 9)
	return ds
}

func buildTestTable(t *testing.T, options Options) *Table {
	table, err := Build(testDataset(), testDefinition{}, options)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestBuild(t *testing.T) {
	table := buildTestTable(t, Options{})
	if diff := pretty.Compare(table.Groups, []string{"A", "B"}); diff != "" {
		t.Errorf("groups: %s", diff)
	}
	records := table.Records(true, false)
	want := [][]string{
		{"n", "", "9", "5", "4", "", ""},
		{"Age, mean (SD)", "", "68.0 (5.9)", "63.0 (2.6)", "73.0 (2.6)", records[1][5], "Two Sample T-test"},
		{"Sex, n (%)", "F", "5 (62.5)", "2 (50.0)", "3 (75.0)", records[2][5], "Fisher's exact"},
		{"", "M", "3 (37.5)", "2 (50.0)", "1 (25.0)", "", ""},
		{"Los, median [Q1,Q3]", "", records[4][2], records[4][3], records[4][4], "0.029", "Mann-Whitney U"},
	}
	if diff := pretty.Compare(records, want); diff != "" {
		t.Errorf("records: %s", diff)
	}
	if records[1][5] == "" || records[2][5] == "" {
		t.Errorf("missing p-values: %v", records)
	}
	if len(table.Warnings) == 0 || !strings.Contains(table.Warnings[0], "1 records have no value for grp") {
		t.Errorf("warnings: %v", table.Warnings)
	}
}

func TestBuildIncludeNull(t *testing.T) {
	table := buildTestTable(t, Options{IncludeNull: true})
	records := table.Records(false, true)
	levels := map[string][]string{}
	for _, r := range records {
		if r[0] == "Sex, n (%)" {
			levels[r[1]] = r[2:5]
		}
	}
	if diff := pretty.Compare(levels[NullLevel], []string{"1 (11.1)", "1 (20.0)", "0 (0.0)"}); diff != "" {
		t.Errorf("null level: %s", diff)
	}
	if diff := pretty.Compare(levels["F"], []string{"5 (55.6)", "2 (40.0)", "3 (75.0)"}); diff != "" {
		t.Errorf("F level: %s", diff)
	}
}

func TestBuildUnknownColumn(t *testing.T) {
	ds := cohort.NewDataset([]string{"grp", "age"})
	if _, err := Build(ds, testDefinition{}, Options{}); err == nil {
		t.Error("missing table columns should fail")
	}
}

func TestSignificant(t *testing.T) {
	significant := buildTestTable(t, Options{}).Significant(0.05)
	names := []string{}
	for _, s := range significant {
		names = append(names, s.Variable)
	}
	sort.Strings(names)
	if diff := pretty.Compare(names, []string{"Age, mean (SD)", "Los, median [Q1,Q3]"}); diff != "" {
		t.Errorf("significant: %s", diff)
	}
}

func TestFormatPValue(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{math.NaN(), ""}, {0.0004, "<0.001"}, {0.001, "0.001"}, {0.0456, "0.046"}, {1, "1.000"},
	}
	for _, test := range tests {
		if got := FormatPValue(test.p); got != test.want {
			t.Errorf("FormatPValue(%v): want %q, got %q", test.p, test.want, got)
		}
	}
}

func TestLevelOrder(t *testing.T) {
	levels := []string{NullLevel, "10", "2", "b", "a"}
	sort.Slice(levels, func(i, j int) bool { return levelLess(levels[i], levels[j]) })
	if levels[len(levels)-1] != NullLevel {
		t.Errorf("null level should be last: %v", levels)
	}
	numbers := []string{"10", "2", "1"}
	sort.Slice(numbers, func(i, j int) bool { return levelLess(numbers[i], numbers[j]) })
	if diff := pretty.Compare(numbers, []string{"1", "2", "10"}); diff != "" {
		t.Errorf("numeric levels: %s", diff)
	}
}

func TestExports(t *testing.T) {
	table := buildTestTable(t, Options{})
	dir := t.TempDir()
	csvName := filepath.Join(dir, "table_one.csv")
	if err := WriteCSV(table, csvName, false); err != nil {
		t.Fatal(err)
	}
	file, err := os.Open(csvName)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(file).ReadAll()
	file.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 || rows[4][0] != "Sex, n (%)" || rows[4][1] != "M" {
		t.Errorf("csv rows: %v", rows)
	}
	xlsxName := filepath.Join(dir, "table_one.xlsx")
	if err := WriteXLSX(table, xlsxName, true); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(xlsxName)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for cell, want := range map[string]string{"C1": "Overall", "F1": "P-Value", "G1": "Test", "A2": "n", "C2": "9"} {
		if got, err := f.GetCellValue(SheetName, cell); err != nil || got != want {
			t.Errorf("cell %v: want %q, got %q (%v)", cell, want, got, err)
		}
	}
	var latex bytes.Buffer
	if err := WriteLaTeX(table, &latex, false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(latex.String(), "\\begin{tabular}{llrrrr}") || !strings.Contains(latex.String(), `Sex, n (\%)`) {
		t.Errorf("latex: %v", latex.String())
	}
	var grid bytes.Buffer
	Render(table, &grid, true)
	if !strings.Contains(grid.String(), "Overall") || !strings.Contains(grid.String(), "Fisher's exact") {
		t.Errorf("grid: %v", grid.String())
	}
}

func TestEscapeLaTeX(t *testing.T) {
	if got := EscapeLaTeX("Early (≤6h) 50% & more_x"); got != `Early ($\leq$6h) 50\% \& more\_x` {
		t.Errorf("got %v", got)
	}
}
