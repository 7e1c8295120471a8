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
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func v(s string) Value {
	if s == "" {
		return MissingValue()
	}
	return StringValue(s)
}

func n(f float64) Value {
	return NumberValue(f)
}

// testDataset returns 6 records: gender, race, age, bp.
func testDataset() *Dataset {
	ds := NewDataset([]string{"gender", "race", "age", "bp"})
	ds.Append([]Value{v("M"), v("Caucasian"), n(60), n(120)})
	ds.Append([]Value{v("F"), v("Asian"), n(70), MissingValue()})
	ds.Append([]Value{v("F"), v("Caucasian"), n(50), n(110)})
	ds.Append([]Value{v("M"), MissingValue(), n(80), n(130)})
	ds.Append([]Value{v("M"), v("Asian"), n(40), MissingValue()})
	ds.Append([]Value{v("F"), v("Caucasian"), n(65), n(125)})
	return ds
}

func TestSchemaUnknownColumn(t *testing.T) {
	ds := testDataset()
	if _, err := ds.Schema.Index("wbc"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("want ErrUnknownColumn, got %v", err)
	}
	if _, err := NotMissing(ds.Schema, "wbc"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("filter on unknown column: want ErrUnknownColumn, got %v", err)
	}
	if err := ds.Schema.Require("age", "bp"); err != nil {
		t.Error(err)
	}
}

func TestValueLevel(t *testing.T) {
	if NumberValue(1).Level() != "1" {
		t.Errorf("want 1, got %v", NumberValue(1).Level())
	}
	if MissingValue().Level() != "" {
		t.Errorf("missing values have no level")
	}
}

func TestAddAndReplaceColumn(t *testing.T) {
	ds := testDataset()
	age, _ := ds.Schema.Index("age")
	err := ds.AddColumn("old", func(r *Record) Value {
		if r.At(age).Num >= 65 {
			return StringValue("yes")
		}
		return StringValue("no")
	})
	if err != nil {
		t.Fatal(err)
	}
	counts, err := ValueCounts(ds.Schema, ds.Records, "old")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(counts, map[string]int{"yes": 3, "no": 3}); diff != "" {
		t.Errorf("derived column: %s", diff)
	}
	if err := ds.AddColumn("old", func(*Record) Value { return MissingValue() }); err == nil {
		t.Error("adding an existing column should fail")
	}
	if err := ds.ReplaceColumn("gender", func(old Value) Value { return StringValue(strings.ToLower(old.Raw)) }); err != nil {
		t.Fatal(err)
	}
	if g, _ := ds.Get(ds.Records[0], "gender"); g.Raw != "m" {
		t.Errorf("want m, got %v", g.Raw)
	}
}

func TestSortByCategory(t *testing.T) {
	ds := testDataset()
	if err := ds.SortByCategory("race", []string{"Asian", "Caucasian"}); err != nil {
		t.Fatal(err)
	}
	ids := []int{}
	for _, r := range ds.Records {
		ids = append(ids, r.ID)
	}
	if diff := pretty.Compare(ids, []int{1, 4, 0, 2, 5, 3}); diff != "" {
		t.Errorf("sort order: %s", diff)
	}
}

func TestSelect(t *testing.T) {
	ds := testDataset()
	f, err := Equals(ds.Schema, "gender", "F")
	if err != nil {
		t.Fatal(err)
	}
	females := ds.Select(f)
	if females.Len() != 3 || females.Schema != ds.Schema {
		t.Errorf("want 3 records sharing the schema, got %v", females.Len())
	}
	if ApplyRecordFilter(Not(f), ds.Records)[0].ID != 0 {
		t.Error("Not should keep the first male record")
	}
	bp, err := NotMissing(ds.Schema, "bp")
	if err != nil {
		t.Fatal(err)
	}
	ids := []int{}
	for _, r := range ds.Select(f, bp).Records {
		ids = append(ids, r.ID)
	}
	if diff := pretty.Compare(ids, []int{2, 5}); diff != "" {
		t.Errorf("females with a known blood pressure: %s", diff)
	}
	if ds.Select().Len() != ds.Len() {
		t.Error("no filters should keep all records")
	}
}

func testFlow(t *testing.T) *Flow {
	ds := testDataset()
	flow, err := NewFlow(ds, "Initial", Options{
		Categorical: []string{"race"},
		Normal:      []string{"age"},
		Order:       map[string][]string{"race": {"Caucasian", "Asian"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	bp, err := NotMissing(ds.Schema, "bp")
	if err != nil {
		t.Fatal(err)
	}
	flow.AddExclusion(bp, "missing BP", "Complete BP")
	race, err := NotMissing(ds.Schema, "race")
	if err != nil {
		t.Fatal(err)
	}
	flow.AddExclusion(race, "missing race", "Complete race")
	return flow
}

func TestFlowExclusions(t *testing.T) {
	flow := testFlow(t)
	want := []Exclusion{
		{Reason: "missing BP", Label: "Complete BP", Before: 6, After: 4},
		{Reason: "missing race", Label: "Complete race", Before: 4, After: 3},
	}
	if diff := pretty.Compare(flow.Exclusions(), want); diff != "" {
		t.Errorf("exclusions: %s", diff)
	}
	initial := map[int]bool{}
	for _, r := range flow.Cohorts()[0].Records {
		initial[r.ID] = true
	}
	for i, c := range flow.Cohorts() {
		if i > 0 && c.Size() > flow.Cohorts()[i-1].Size() {
			t.Errorf("cohort %v grew", c.Label)
		}
		for _, r := range c.Records {
			if !initial[r.ID] {
				t.Errorf("record %v not in initial cohort", r.ID)
			}
		}
	}
	if flow.Current().Label != "Complete race" {
		t.Errorf("current cohort: got %v", flow.Current().Label)
	}
	again := testFlow(t)
	if diff := pretty.Compare(again.FlowTable(), flow.FlowTable()); diff != "" {
		t.Errorf("re-running the flow should give the same table: %s", diff)
	}
}

func TestFlowEmptyCohort(t *testing.T) {
	flow := testFlow(t)
	flow.AddExclusion(func(*Record) bool { return false }, "everything", "Nothing")
	if flow.Current().Size() != 0 {
		t.Errorf("want empty cohort")
	}
	if _, err := flow.Characteristics(); err != nil {
		t.Errorf("characteristics of an empty cohort: %v", err)
	}
}

func TestFlowTable(t *testing.T) {
	want := []FlowRow{
		{Cohort: "Initial", N: 6},
		{Cohort: "Complete BP", N: 4, Removed: 2, Reason: "missing BP"},
		{Cohort: "Complete race", N: 3, Removed: 1, Reason: "missing race"},
	}
	if diff := pretty.Compare(testFlow(t).FlowTable(), want); diff != "" {
		t.Errorf("flow table: %s", diff)
	}
}

func TestPrintFlow(t *testing.T) {
	var out strings.Builder
	PrintFlow(&out, testFlow(t))
	want := "Initial N = 6\n" +
		" -- excluded 2 (missing BP) --> Complete BP N = 4\n" +
		" -- excluded 1 (missing race) --> Complete race N = 3\n"
	if out.String() != want {
		t.Errorf("want %q, got %q", want, out.String())
	}
}

func TestCharacteristics(t *testing.T) {
	rows, err := testFlow(t).Characteristics()
	if err != nil {
		t.Fatal(err)
	}
	want := []Characteristic{
		{Variable: "Overall", Level: "N", Values: []string{"6", "4", "3"}},
		{Variable: "race", Level: "Caucasian", Values: []string{"50.0", "75.0", "100.0"}},
		{Variable: "race", Level: "Asian", Values: []string{"33.3", "0.0", "0.0"}},
		{Variable: "race", Level: MissingLevel, Values: []string{"16.7", "25.0", "0.0"}},
		{Variable: "age", Values: []string{"60.8 ± 14.3", "63.8 ± 12.5", "58.3 ± 7.6"}},
	}
	if diff := pretty.Compare(rows, want); diff != "" {
		t.Errorf("characteristics: %s", diff)
	}
}

func TestCharacteristicsCountFormat(t *testing.T) {
	flow := testFlow(t)
	flow.Options.FormatCat = FormatCountPercent
	rows, err := flow.Characteristics()
	if err != nil {
		t.Fatal(err)
	}
	if got := rows[1].Values[0]; got != "3 (50.0)" {
		t.Errorf("want 3 (50.0), got %v", got)
	}
	if _, err := NewFlow(testDataset(), "Initial", Options{FormatCat: "?"}); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestDrifts(t *testing.T) {
	drifts, err := testFlow(t).Drifts()
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 5 {
		t.Fatalf("want 5 drift rows, got %v", len(drifts))
	}
	for _, d := range drifts {
		if len(d.SMDs) != 2 {
			t.Errorf("%v %v: want 2 steps, got %v", d.Variable, d.Level, len(d.SMDs))
		}
	}
	caucasian := drifts[1]
	if caucasian.Level != "Caucasian" || math.IsNaN(caucasian.SMDs[0]) || caucasian.SMDs[0] <= 0 {
		t.Errorf("Caucasian drift: %+v", caucasian)
	}
	age := drifts[4]
	if age.Variable != "age" || age.SMDs[0] < 0 {
		t.Errorf("age drift: %+v", age)
	}
}

func TestWriteFlowFiles(t *testing.T) {
	flow := testFlow(t)
	dir := t.TempDir()
	files, err := WriteFlowTables(flow, dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("want 3 files, got %v", files)
	}
	content, err := os.ReadFile(filepath.Join(dir, "test-flows.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Cohort,N,Removed,Reason\nInitial,6,0,\nComplete BP,4,2,missing BP\nComplete race,3,1,missing race\n"
	if string(content) != want {
		t.Errorf("flows.csv: want %q, got %q", want, content)
	}
	gml, dot, err := WriteFlowGraph(flow, dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{gml, dot} {
		content, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "missing race") {
			t.Errorf("%v does not mention the exclusion reason", name)
		}
	}
}
