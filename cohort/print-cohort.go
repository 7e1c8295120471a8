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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Printing of cohort flows

// PrintFlow prints the exclusion steps of a flow.
func PrintFlow(w io.Writer, f *Flow) {
	initial := f.Cohorts()[0]
	fmt.Fprintln(w, initial.Label, "N =", initial.Size())
	for _, e := range f.Exclusions() {
		fmt.Fprintln(w, " -- excluded", e.Removed(), "("+e.Reason+") -->", e.Label, "N =", e.After)
	}
}

func writeCSVFile(name string, header []string, rows [][]string) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	w := csv.NewWriter(file)
	if err = w.Write(header); err != nil {
		return err
	}
	if err = w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func cohortLabels(f *Flow) []string {
	labels := []string{}
	for _, c := range f.Cohorts() {
		labels = append(labels, c.Label)
	}
	return labels
}

// printFlowTableToCSVFile prints the flow table with header Cohort,N,Removed,Reason.
func printFlowTableToCSVFile(f *Flow, name string) error {
	rows := [][]string{}
	for _, r := range f.FlowTable() {
		rows = append(rows, []string{r.Cohort, strconv.Itoa(r.N), strconv.Itoa(r.Removed), r.Reason})
	}
	return writeCSVFile(name, []string{"Cohort", "N", "Removed", "Reason"}, rows)
}

// printCharacteristicsToCSVFile prints one row per variable level, with one column per cohort.
func printCharacteristicsToCSVFile(f *Flow, name string) error {
	characteristics, err := f.Characteristics()
	if err != nil {
		return err
	}
	rows := [][]string{}
	for _, c := range characteristics {
		rows = append(rows, append([]string{c.Variable, c.Level}, c.Values...))
	}
	return writeCSVFile(name, append([]string{"Variable", "Value"}, cohortLabels(f)...), rows)
}

// printDriftsToCSVFile prints one row per variable level, with one column per exclusion step. The column header is the
// label of the cohort after the step.
func printDriftsToCSVFile(f *Flow, name string) error {
	drifts, err := f.Drifts()
	if err != nil {
		return err
	}
	rows := [][]string{}
	for _, d := range drifts {
		row := []string{d.Variable, d.Level}
		for _, smd := range d.SMDs {
			row = append(row, FormatSMD(smd))
		}
		rows = append(rows, row)
	}
	return writeCSVFile(name, append([]string{"Variable", "Value"}, cohortLabels(f)[1:]...), rows)
}

// FormatSMD prints an SMD with three decimals. Undefined SMDs are printed as NaN.
func FormatSMD(smd float64) string {
	if math.IsNaN(smd) {
		return "NaN"
	}
	return strconv.FormatFloat(smd, 'f', 3, 64)
}

// WriteFlowTables outputs the tables of a flow to CSV files in the given directory:
// - <name>-flows.csv with the cohort sizes and exclusion reasons
// - <name>-characteristics.csv with the variable summaries per cohort
// - <name>-drifts.csv with the standardized mean differences per exclusion step
// It returns the names of the files written.
func WriteFlowTables(f *Flow, path, name string) ([]string, error) {
	files := []string{
		filepath.Join(path, fmt.Sprintf("%s-flows.csv", name)),
		filepath.Join(path, fmt.Sprintf("%s-characteristics.csv", name)),
		filepath.Join(path, fmt.Sprintf("%s-drifts.csv", name)),
	}
	printers := []func(*Flow, string) error{printFlowTableToCSVFile, printCharacteristicsToCSVFile, printDriftsToCSVFile}
	for i, printer := range printers {
		if err := printer(f, files[i]); err != nil {
			return nil, fmt.Errorf("writing %v: %w", files[i], err)
		}
	}
	return files, nil
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

// printFlowToGMLFile plots the flow as a graph to a GML file. The nodes are the cohorts, the edges the exclusion steps
// labelled with their reason and the number of removed records.
func printFlowToGMLFile(f *Flow, name string) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	// print header
	fmt.Fprintf(file, "graph [\n directed 1\n")
	// print nodes
	for i, c := range f.Cohorts() {
		fmt.Fprintf(file, "node [ id %d\nlabel \"%s\"\nsize %d\n]\n", i, escapeQuotes(c.Label), c.Size())
	}
	// print edges
	for i, e := range f.Exclusions() {
		fmt.Fprintf(file, "edge [\nsource %d\ntarget %d\nlabel \"%s\"\nremoved %d\n]\n", i, i+1, escapeQuotes(e.Reason), e.Removed())
	}
	_, err = fmt.Fprintf(file, "]\n")
	return err
}

// printFlowToDotFile plots the flow as a Graphviz digraph: a column of cohort boxes, with an exclusion box beside each
// step.
func printFlowToDotFile(f *Flow, name string) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	fmt.Fprintf(file, "digraph flow {\n  node [shape=box, fontname=\"Helvetica\"];\n")
	for i, c := range f.Cohorts() {
		fmt.Fprintf(file, "  c%d [label=\"%s\\nN = %d\"];\n", i, escapeQuotes(c.Label), c.Size())
	}
	for i, e := range f.Exclusions() {
		fmt.Fprintf(file, "  e%d [label=\"%s\\nn = %d\", style=dashed];\n", i, escapeQuotes(e.Reason), e.Removed())
		fmt.Fprintf(file, "  { rank=same; c%d; e%d; }\n", i, i)
		fmt.Fprintf(file, "  c%d -> c%d;\n  c%d -> e%d [style=dashed];\n", i, i+1, i, i)
	}
	_, err = fmt.Fprintf(file, "}\n")
	return err
}

// WriteFlowGraph outputs the flow as a GML graph (<name>-flow.gml) and as a Graphviz DOT graph (<name>-flow.dot). It
// returns the names of both files.
func WriteFlowGraph(f *Flow, path, name string) (gmlFile, dotFile string, err error) {
	gmlFile = filepath.Join(path, fmt.Sprintf("%s-flow.gml", name))
	if err = printFlowToGMLFile(f, gmlFile); err != nil {
		return "", "", fmt.Errorf("writing %v: %w", gmlFile, err)
	}
	dotFile = filepath.Join(path, fmt.Sprintf("%s-flow.dot", name))
	if err = printFlowToDotFile(f, dotFile); err != nil {
		return "", "", fmt.Errorf("writing %v: %w", dotFile, err)
	}
	return gmlFile, dotFile, nil
}
