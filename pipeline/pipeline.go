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

// Package pipeline runs the btra commands: each command loads a dataset, derives the study variables, and writes its
// reports and figures to an output directory.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"btra/app"
	"btra/cohort"
	"btra/figures"
	"btra/report"
	"btra/tableone"

	"go.uber.org/zap"
)

// Default output names of the commands.
const (
	DefaultFlowName     = "blood_transfusion_case_study"
	DefaultPlotsName    = "transfusion_key_plots"
	DefaultTableOneName = "table_one"
)

// Common holds the options shared by all commands.
type Common struct {
	DataFile   string
	OutputPath string
	Name       string //prefix of the output files
	Command    string //executed command line, recorded in the manifest
	Verbose    bool
	Logger     *zap.Logger
	Stdout     io.Writer //console report, os.Stdout when nil
}

func (c *Common) init() error {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Name == "" {
		return fmt.Errorf("no output name")
	}
	return os.MkdirAll(c.OutputPath, 0700)
}

func (c *Common) load() (*cohort.Dataset, error) {
	return app.LoadTransfusionData(c.DataFile, app.LoadOptions{Verbose: c.Verbose, Logger: c.Logger})
}

func (c *Common) finish(m *report.Manifest) (*report.Manifest, error) {
	file, err := m.Write(c.OutputPath, c.Name)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("Run complete",
		zap.String("run", m.RunID),
		zap.Int("artifacts", len(m.Artifacts)),
		zap.String("manifest", file))
	return m, nil
}

// FlowOptions configures Flow.
type FlowOptions struct {
	Common
	PlotDists bool
	SMDs      bool
	Legend    bool
	BoxWidth  float64
	BoxHeight float64
	Formats   []string
	DotPath   string //Graphviz dot binary; empty skips rendering the DOT graph
}

// Flow builds the cohort flow of the blood transfusion study and writes the flow diagram, the flow tables and the
// flow graph.
func Flow(options FlowOptions) (*report.Manifest, error) {
	if err := options.init(); err != nil {
		return nil, err
	}
	m := report.NewManifest(options.Command)
	ds, err := options.load()
	if err != nil {
		return nil, err
	}
	result, err := app.BuildTransfusionFlow(ds, options.Logger)
	if err != nil {
		return nil, err
	}
	report.PrintFlowSummary(options.Stdout, result)
	tables, err := cohort.WriteFlowTables(result.Flow, options.OutputPath, options.Name)
	if err != nil {
		return nil, err
	}
	m.Add("table", tables...)
	gmlFile, dotFile, err := cohort.WriteFlowGraph(result.Flow, options.OutputPath, options.Name)
	if err != nil {
		return nil, err
	}
	m.Add("graph", gmlFile, dotFile)
	diagrams, err := figures.FlowDiagram(result.Flow, figures.FlowDiagramOptions{
		PlotDists: options.PlotDists,
		SMDs:      options.SMDs,
		Legend:    options.Legend,
		BoxWidth:  options.BoxWidth,
		BoxHeight: options.BoxHeight,
		Formats:   options.Formats,
		Path:      options.OutputPath,
		Name:      options.Name,
	})
	if err != nil {
		return nil, err
	}
	m.Add("figure", diagrams...)
	if options.DotPath != "" {
		rendered := filepath.Join(options.OutputPath, fmt.Sprintf("%s-flow.pdf", options.Name))
		if err := figures.RenderDot(options.DotPath, dotFile, rendered, options.Logger); err != nil {
			return nil, err
		}
		m.Add("figure", rendered)
	}
	for _, file := range diagrams {
		fmt.Fprintln(options.Stdout, "Flow diagram saved to", file)
	}
	return options.finish(m)
}

// PlotsOptions configures Plots.
type PlotsOptions struct {
	Common
	Cutoff float64 //hours
	DPI    int
	Alpha  float64
}

// Plots prints the key statistics of the transfusion timing study and draws the key figure.
func Plots(options PlotsOptions) (*report.Manifest, error) {
	if err := options.init(); err != nil {
		return nil, err
	}
	m := report.NewManifest(options.Command)
	ds, err := options.load()
	if err != nil {
		return nil, err
	}
	findings, err := report.AnalyzeKeyFindings(ds, options.Cutoff)
	if err != nil {
		return nil, err
	}
	report.PrintKeyFindings(options.Stdout, findings, options.Alpha)
	file := filepath.Join(options.OutputPath, fmt.Sprintf("%s.png", options.Name))
	if err := figures.KeyPlots(findings.PlotData(), figures.KeyPlotOptions{
		Cutoff: options.Cutoff,
		Alpha:  options.Alpha,
		DPI:    options.DPI,
		File:   file,
	}); err != nil {
		return nil, fmt.Errorf("writing %v: %w", file, err)
	}
	m.Add("figure", file)
	fmt.Fprintf(options.Stdout, "\n✓ Analysis complete! Figure saved as '%s'\n", file)
	return options.finish(m)
}

// TableOneOptions configures TableOne.
type TableOneOptions struct {
	Common
	ShowTests   bool
	IncludeNull bool
	Simulate    int
	Alpha       float64
}

// TableOne compares the baseline characteristics of the early and late transfusion groups and exports the table as
// CSV, XLSX and LaTeX.
func TableOne(options TableOneOptions) (*report.Manifest, error) {
	if err := options.init(); err != nil {
		return nil, err
	}
	m := report.NewManifest(options.Command)
	ds, err := options.load()
	if err != nil {
		return nil, err
	}
	raceUnmatched, languageUnmatched, err := app.PrepareTableOneData(ds)
	if err != nil {
		return nil, err
	}
	for value, n := range raceUnmatched {
		options.Logger.Debug("Race description recoded to default category", zap.String("value", value), zap.Int("records", n))
	}
	for value, n := range languageUnmatched {
		options.Logger.Debug("Language recoded to default category", zap.String("value", value), zap.Int("records", n))
	}
	if err := report.PrintGrouping(options.Stdout, ds); err != nil {
		return nil, err
	}
	def := app.TableOneDefinition()
	if err := def.Validate(ds.Schema); err != nil {
		return nil, err
	}
	table, err := tableone.Build(ds, def, tableone.Options{
		IncludeNull: options.IncludeNull,
		Simulate:    options.Simulate,
		Logger:      options.Logger,
	})
	if err != nil {
		return nil, err
	}
	report.PrintTableOne(options.Stdout, table, options.ShowTests)
	base := filepath.Join(options.OutputPath, options.Name)
	exports := []struct {
		file  string
		write func(string) error
	}{
		{base + ".csv", func(f string) error { return tableone.WriteCSV(table, f, options.ShowTests) }},
		{base + ".xlsx", func(f string) error { return tableone.WriteXLSX(table, f, options.ShowTests) }},
		{base + ".tex", func(f string) error { return tableone.WriteLaTeXFile(table, f, options.ShowTests) }},
	}
	files := []string{}
	for _, export := range exports {
		if err := export.write(export.file); err != nil {
			return nil, fmt.Errorf("writing %v: %w", export.file, err)
		}
		files = append(files, export.file)
	}
	m.Add("table", files...)
	report.PrintExports(options.Stdout, files)
	report.PrintInterpretationGuide(options.Stdout, options.Alpha)
	report.PrintSignificant(options.Stdout, table.Significant(options.Alpha), options.Alpha)
	fmt.Fprintln(options.Stdout)
	report.Section(options.Stdout, "✓ Table One creation complete!")
	return options.finish(m)
}
