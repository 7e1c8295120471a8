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

package btra_test

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"btra/app"
	"btra/pipeline"
	"btra/report"
	"btra/tableone"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var header = []string{
	"age", "gender", "race", "weight", "insurance", "language", "sofa_score", "admission_type", "ongoing_bleeding",
	"heart_disease", "kidney_disease", "history_of_bleeding", "sepsis", "baseline_hemoglobin",
	"pre_transfusion_hemoglobin", "post_transfusion_hemoglobin", "baseline_wbc", "baseline_platelets",
	"baseline_hematocrit", "baseline_creatinine", "baseline_spo2", "baseline_sao2", "baseline_bp_systolic",
	"baseline_bp_diastolic", "on_vasopressors", "vasopressor_type", "on_diuretics", "diuretic_type",
	"early_transfusion", "time_to_first_transfusion_hours", "number_of_transfusions", "units_first_transfusion",
	"total_units_transfused", "possible_hemolysis", "ldh", "bilirubin_total", "in_hospital_mortality", "los_icu_days",
	"los_hospital_days",
}

var races = []string{
	"WHITE", "WHITE - EASTERN EUROPEAN", "BLACK/AFRICAN AMERICAN", "HISPANIC/LATINO - PUERTO RICAN",
	"ASIAN - CHINESE", "UNKNOWN", "DECLINED TO ANSWER", "PORTUGUESE", "",
}

// writeTransfusionData writes a synthetic study dataset and returns the number of records that pass all exclusion
// steps of the flow.
func writeTransfusionData(t *testing.T, file string, n int) int {
	rng := rand.New(rand.NewSource(42))
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	num := func(mean, sd float64) string {
		return strconv.FormatFloat(mean+sd*rng.NormFloat64(), 'f', 2, 64)
	}
	flag := func(p float64) string {
		if rng.Float64() < p {
			return "1"
		}
		return "0"
	}
	pick := func(values ...string) string {
		return values[rng.Intn(len(values))]
	}
	complete := 0
	for i := 0; i < n; i++ {
		hours := rng.Float64() * 24
		early := "0"
		if hours <= 6 {
			early = "1"
		}
		bp, wbc, diuretic := num(120, 15), num(9, 3), pick("furosemide", "torsemide")
		if i%15 == 0 {
			bp = ""
		}
		if i%10 == 3 {
			wbc = "NA"
		}
		if i%7 == 5 {
			diuretic = ""
		}
		if bp != "" && wbc != "NA" && diuretic != "" {
			complete++
		}
		row := map[string]string{
			"age":                             num(65, 12),
			"gender":                          pick("M", "F"),
			"race":                            races[i%len(races)],
			"weight":                          num(80, 15),
			"insurance":                       pick("Medicare", "Medicaid", "Other"),
			"language":                        pick("ENGLISH", "ENGLISH", "SPANISH", ""),
			"sofa_score":                      strconv.Itoa(rng.Intn(15)),
			"admission_type":                  pick("EMERGENCY", "URGENT", "ELECTIVE"),
			"ongoing_bleeding":                flag(0.3),
			"heart_disease":                   flag(0.4),
			"kidney_disease":                  flag(0.2),
			"history_of_bleeding":             flag(0.1),
			"sepsis":                          flag(0.3),
			"baseline_hemoglobin":             num(9, 1.5),
			"pre_transfusion_hemoglobin":      num(7, 0.5),
			"post_transfusion_hemoglobin":     num(8.5, 0.7),
			"baseline_wbc":                    wbc,
			"baseline_platelets":              num(200, 60),
			"baseline_hematocrit":             num(28, 4),
			"baseline_creatinine":             num(1.4, 0.5),
			"baseline_spo2":                   num(96, 2),
			"baseline_sao2":                   num(95, 3),
			"baseline_bp_systolic":            bp,
			"baseline_bp_diastolic":           num(65, 10),
			"on_vasopressors":                 flag(0.35),
			"vasopressor_type":                pick("norepinephrine", "vasopressin", ""),
			"on_diuretics":                    flag(0.5),
			"diuretic_type":                   diuretic,
			"early_transfusion":               early,
			"time_to_first_transfusion_hours": strconv.FormatFloat(hours, 'f', 2, 64),
			"number_of_transfusions":          strconv.Itoa(1 + rng.Intn(5)),
			"units_first_transfusion":         strconv.Itoa(300 * (1 + rng.Intn(2))),
			"total_units_transfused":          strconv.Itoa(300 * (1 + rng.Intn(6))),
			"possible_hemolysis":              flag(0.05),
			"ldh":                             num(250, 60),
			"bilirubin_total":                 num(1, 0.4),
			"in_hospital_mortality":           flag(0.2),
			"los_icu_days":                    num(6, 2),
			"los_hospital_days":               num(12, 4),
		}
		record := make([]string, len(header))
		for j, col := range header {
			record[j] = row[col]
		}
		if err := w.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
	return complete
}

func common(t *testing.T, name string, stdout *bytes.Buffer) (pipeline.Common, int) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "transfusion_data.csv")
	complete := writeTransfusionData(t, dataFile, 200)
	return pipeline.Common{
		DataFile:   dataFile,
		OutputPath: filepath.Join(dir, "out"),
		Name:       name,
		Command:    "btra test",
		Logger:     zap.NewNop(),
		Stdout:     stdout,
	}, complete
}

func checkArtifacts(t *testing.T, m *report.Manifest, c pipeline.Common, want int) {
	if len(m.Artifacts) != want {
		t.Errorf("want %v artifacts, got %v", want, m.Files())
	}
	for _, file := range m.Files() {
		if info, err := os.Stat(file); err != nil || info.Size() == 0 {
			t.Errorf("artifact %v: %v", file, err)
		}
	}
	read, err := report.ReadManifest(filepath.Join(c.OutputPath, c.Name+".manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	if read.RunID != m.RunID || len(read.Artifacts) != want {
		t.Errorf("manifest on disk: %+v", read)
	}
}

func TestFlow(t *testing.T) {
	var stdout bytes.Buffer
	c, complete := common(t, "flow", &stdout)
	m, err := pipeline.Flow(pipeline.FlowOptions{
		Common:    c,
		PlotDists: true,
		SMDs:      true,
		Legend:    true,
		Formats:   []string{"pdf", "png", "svg"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// three tables, two graphs, three diagrams
	checkArtifacts(t, m, c, 8)
	if !strings.Contains(stdout.String(), "Initial cohort size: 200") {
		t.Errorf("stdout: %v", stdout.String())
	}
	file, err := os.Open(filepath.Join(c.OutputPath, "flow-flows.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 7 {
		t.Fatalf("want header and 6 cohorts, got %v", rows)
	}
	if rows[1][0] != "Initial Patient Cohort" || rows[1][1] != "200" {
		t.Errorf("initial cohort: %v", rows[1])
	}
	if last := rows[6]; last[0] != "Complete diuretic type" || last[1] != strconv.Itoa(complete) {
		t.Errorf("final cohort: want %v records, got %v", complete, last)
	}
	previous := 200
	for _, row := range rows[2:] {
		size, _ := strconv.Atoi(row[1])
		removed, _ := strconv.Atoi(row[2])
		if size > previous || previous-size != removed {
			t.Errorf("inconsistent step %v after %v", row, previous)
		}
		previous = size
	}
}

func TestPlots(t *testing.T) {
	var stdout bytes.Buffer
	c, _ := common(t, "plots", &stdout)
	m, err := pipeline.Plots(pipeline.PlotsOptions{Common: c, Cutoff: 6, DPI: 20, Alpha: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	checkArtifacts(t, m, c, 1)
	for _, want := range []string{"Dataset: 200 patients", "5. IN-HOSPITAL MORTALITY", "KEY FINDINGS SUMMARY"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("missing %q in stdout", want)
		}
	}
}

func TestTableOne(t *testing.T) {
	var stdout bytes.Buffer
	c, _ := common(t, "table_one", &stdout)
	m, err := pipeline.TableOne(pipeline.TableOneOptions{Common: c, ShowTests: true, Alpha: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	checkArtifacts(t, m, c, 3)
	f, err := excelize.OpenFile(filepath.Join(c.OutputPath, "table_one.xlsx"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for cell, want := range map[string]string{"A2": "n", "C2": "200", "G1": "Test"} {
		if got, _ := f.GetCellValue(tableone.SheetName, cell); got != want {
			t.Errorf("cell %v: want %q, got %q", cell, want, got)
		}
	}
	for _, want := range []string{"Race/Ethnicity Distribution", "INTERPRETATION GUIDE", "Table One creation complete"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("missing %q in stdout", want)
		}
	}
}

func TestMissingDataFile(t *testing.T) {
	c := pipeline.Common{DataFile: filepath.Join(t.TempDir(), "missing.csv"), OutputPath: t.TempDir(), Name: "x",
		Stdout: &bytes.Buffer{}}
	if _, err := pipeline.Plots(pipeline.PlotsOptions{Common: c, Cutoff: 6, DPI: 20, Alpha: 0.05}); err == nil {
		t.Error("a missing data file should fail")
	}
}

func TestMissingColumn(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "data.csv")
	content := "age,gender,race\n" + strings.Repeat(fmt.Sprintf("%d,M,WHITE\n", 70), 3)
	if err := os.WriteFile(dataFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	c := pipeline.Common{DataFile: dataFile, OutputPath: dir, Name: "x", Stdout: &bytes.Buffer{}}
	if _, err := pipeline.TableOne(pipeline.TableOneOptions{Common: c, Alpha: 0.05}); err == nil {
		t.Error("a dataset without early_transfusion should fail")
	}
	if _, err := pipeline.Flow(pipeline.FlowOptions{Common: c, Formats: []string{"png"}}); err == nil {
		t.Error("a dataset without the exclusion columns should fail")
	}
}

func TestReadTransfusionData(t *testing.T) {
	ds, err := app.ReadTransfusionData(strings.NewReader(" age ,race\n71,WHITE\n#N/A,\n"), "inline", false)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 2 || ds.Schema.Columns[0] != "age" {
		t.Fatalf("got %v records, columns %v", ds.Len(), ds.Schema.Columns)
	}
	age, _ := ds.Get(ds.Records[0], "age")
	if !age.Numeric || age.Num != 71 {
		t.Errorf("age: %+v", age)
	}
	for _, col := range []string{"age", "race"} {
		if v, _ := ds.Get(ds.Records[1], col); !v.Missing {
			t.Errorf("%v should be missing: %+v", col, v)
		}
	}
	if !app.IsMissingToken("#N/A") || app.IsMissingToken("0") {
		t.Error("missing tokens")
	}
	if v := app.ParseCell(" 1.5 "); !v.Numeric || v.Num != 1.5 {
		t.Errorf("ParseCell: %+v", v)
	}
}
