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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"btra/config"
	"btra/figures"
	"btra/pipeline"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

/*
Btra is a tool for analysing the timing of red blood cell transfusions in ICU patients.

Usage:

	btra flow     dataFile outputPath [flags]
	btra plots    dataFile outputPath [flags]
	btra tableone dataFile outputPath [flags]

Example:

	btra flow blood_transfusion.csv ./test_output/ --plotDists --smds --legend --boxWidth 3.5 --boxHeight 1.5
	btra plots transfusion_data.csv ./figures/ --dpi 300
	btra tableone transfusion_data.csv ./tables/ --showTests

The flow command applies the exclusion criteria of the study one after the other and reports how many patients each
criterion removes, and how the distribution of gender, race, age and SOFA score drifts as patients are excluded.

The plots command compares early (≤6h) and late (>6h) transfusion on age, transfusion volume, ICU length of stay and
in-hospital mortality, and draws the key figure of the study.

The tableone command compares the baseline characteristics of the early and late transfusion groups.

The flags are:

--name string
	Sets the name of the run. This name is used to generate the names of the output files.
--verbose
	Log debug output, such as race descriptions that matched no category, and dump malformed input records.
--plotDists (flow)
	Draw the distribution of the categorical variables next to each cohort of the flow diagram.
--smds (flow)
	Print the standardized mean differences between consecutive cohorts next to the arrows of the flow diagram.
--legend (flow)
	Add a legend for the distribution bars.
--boxWidth nr, --boxHeight nr (flow)
	Size of the cohort boxes in inches.
--formats list (flow)
	The file formats of the flow diagram, a comma separated list of pdf, png and svg.
--dotPath file (flow)
	The Graphviz dot binary. If set, the DOT graph of the flow is also rendered to PDF.
--cutoff nr (plots)
	The number of hours that separates early from late transfusion in the histogram.
--dpi nr (plots)
	The resolution of the key figure.
--alpha nr (plots, tableone)
	The significance level.
--showTests (tableone)
	Add a column with the name of the statistical test.
--includeNull (tableone)
	Show missing values of categorical variables as a separate level.
--simulate nr (tableone)
	Use a Monte Carlo chi-squared test with nr permutations for sparse tables that are not 2x2.
--nrOfThreads nr
	The number of threads btra uses.

Defaults of the flags can be set with the environment variables BTRA_ALPHA, BTRA_DPI, BTRA_CUTOFF_HOURS,
BTRA_NR_OF_THREADS, BTRA_FORMATS, BTRA_DOT_PATH and BTRA_SIMULATE, or in a .env file. BTRA_ENV_FILE names another
file to read them from.
*/

const (
	programVersion = 0.1
	programName    = "btra"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const btraHelp = "\nbtra commands:\n" +
	"btra flow dataFile outputPath\n" +
	"btra plots dataFile outputPath\n" +
	"btra tableone dataFile outputPath\n"

const flowHelp = "\nbtra flow parameters:\n" +
	"btra flow dataFile outputPath\n" +
	"[--name string]\n" +
	"[--plotDists]\n" +
	"[--smds]\n" +
	"[--legend]\n" +
	"[--boxWidth nr]\n" +
	"[--boxHeight nr]\n" +
	"[--formats pdf,png,svg]\n" +
	"[--dotPath file]\n" +
	"[--nrOfThreads nr]\n" +
	"[--verbose]\n"

const plotsHelp = "\nbtra plots parameters:\n" +
	"btra plots dataFile outputPath\n" +
	"[--name string]\n" +
	"[--cutoff nr]\n" +
	"[--dpi nr]\n" +
	"[--alpha nr]\n" +
	"[--nrOfThreads nr]\n" +
	"[--verbose]\n"

const tableOneHelp = "\nbtra tableone parameters:\n" +
	"btra tableone dataFile outputPath\n" +
	"[--name string]\n" +
	"[--showTests]\n" +
	"[--includeNull]\n" +
	"[--simulate nr]\n" +
	"[--alpha nr]\n" +
	"[--nrOfThreads nr]\n" +
	"[--verbose]\n"

// the command name, the data file and the output path precede the flags
const requiredArgs = 4

func parseFlags(flags *flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprint(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func loadConfig() *config.Config {
	cfg, err := config.Load(os.Getenv("BTRA_ENV_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.DisableStacktrace = !verbose
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return logger
}

// parsePaths reads the required arguments and creates the output directory.
func parsePaths(help string) (dataFile, outputPath string) {
	dataFile = getFileName(os.Args[2], help)
	outputPath, err := filepath.Abs(getFileName(os.Args[3], help))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.MkdirAll(outputPath, 0700); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return dataFile, outputPath
}

func setThreads(command *bytes.Buffer, nrOfThreads int) {
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(command, " --nrOfThreads ", nrOfThreads)
	}
}

func start(logger *zap.Logger, command *bytes.Buffer) {
	logger.Info(programMessage())
	logger.Info("Executing command", zap.String("command", command.String()))
}

func flowCommand() {
	cfg := loadConfig()
	var (
		name      string
		plotDists bool
		smds      bool
		legend    bool
		boxWidth  float64
		boxHeight float64
		formats   string
		dotPath   string
		verbose   bool
	)
	flags := flag.NewFlagSet("flow", flag.ContinueOnError)
	flags.StringVar(&name, "name", pipeline.DefaultFlowName, "The name of the run. This is used to generate the "+
		"names of the output files.")
	flags.BoolVar(&plotDists, "plotDists", false, "Draw the distributions of the categorical variables per cohort.")
	flags.BoolVar(&smds, "smds", false, "Show the standardized mean differences between consecutive cohorts.")
	flags.BoolVar(&legend, "legend", false, "Add a legend for the distributions.")
	flags.Float64Var(&boxWidth, "boxWidth", figures.DefaultBoxWidth, "The width of the cohort boxes in inches.")
	flags.Float64Var(&boxHeight, "boxHeight", figures.DefaultBoxHeight, "The height of the cohort boxes in inches.")
	flags.StringVar(&formats, "formats", strings.Join(cfg.Formats, ","), "The file formats of the flow diagram.")
	flags.StringVar(&dotPath, "dotPath", cfg.DotPath, "The path to the Graphviz dot binary.")
	flags.IntVar(&cfg.NrOfThreads, "nrOfThreads", cfg.NrOfThreads, "The number of threads btra uses.")
	flags.BoolVar(&verbose, "verbose", false, "Log debug output.")
	parseFlags(flags, requiredArgs, flowHelp)
	dataFile, outputPath := parsePaths(flowHelp)
	cfg.Formats = config.SplitList(formats)
	logger := newLogger(verbose)
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " flow ", dataFile, " ", outputPath)
	fmt.Fprint(&command, " --name ", name)
	if plotDists {
		fmt.Fprint(&command, " --plotDists")
	}
	if smds {
		fmt.Fprint(&command, " --smds")
	}
	if legend {
		fmt.Fprint(&command, " --legend")
	}
	fmt.Fprint(&command, " --boxWidth ", boxWidth)
	fmt.Fprint(&command, " --boxHeight ", boxHeight)
	fmt.Fprint(&command, " --formats ", strings.Join(cfg.Formats, ","))
	if dotPath != "" {
		fmt.Fprint(&command, " --dotPath ", dotPath)
	}
	setThreads(&command, cfg.NrOfThreads)
	start(logger, &command)
	_, err := pipeline.Flow(pipeline.FlowOptions{
		Common: pipeline.Common{
			DataFile:   dataFile,
			OutputPath: outputPath,
			Name:       name,
			Command:    command.String(),
			Verbose:    verbose,
			Logger:     logger,
		},
		PlotDists: plotDists,
		SMDs:      smds,
		Legend:    legend,
		BoxWidth:  boxWidth,
		BoxHeight: boxHeight,
		Formats:   cfg.Formats,
		DotPath:   dotPath,
	})
	if err != nil {
		logger.Fatal("Flow failed", zap.Error(err))
	}
}

func plotsCommand() {
	cfg := loadConfig()
	var (
		name    string
		verbose bool
	)
	flags := flag.NewFlagSet("plots", flag.ContinueOnError)
	flags.StringVar(&name, "name", pipeline.DefaultPlotsName, "The name of the run. This is used to generate the "+
		"names of the output files.")
	flags.Float64Var(&cfg.CutoffHours, "cutoff", cfg.CutoffHours, "The number of hours that separates early from "+
		"late transfusion.")
	flags.IntVar(&cfg.DPI, "dpi", cfg.DPI, "The resolution of the figure.")
	flags.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "The significance level.")
	flags.IntVar(&cfg.NrOfThreads, "nrOfThreads", cfg.NrOfThreads, "The number of threads btra uses.")
	flags.BoolVar(&verbose, "verbose", false, "Log debug output.")
	parseFlags(flags, requiredArgs, plotsHelp)
	dataFile, outputPath := parsePaths(plotsHelp)
	logger := newLogger(verbose)
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " plots ", dataFile, " ", outputPath)
	fmt.Fprint(&command, " --name ", name)
	fmt.Fprint(&command, " --cutoff ", cfg.CutoffHours)
	fmt.Fprint(&command, " --dpi ", cfg.DPI)
	fmt.Fprint(&command, " --alpha ", cfg.Alpha)
	setThreads(&command, cfg.NrOfThreads)
	start(logger, &command)
	_, err := pipeline.Plots(pipeline.PlotsOptions{
		Common: pipeline.Common{
			DataFile:   dataFile,
			OutputPath: outputPath,
			Name:       name,
			Command:    command.String(),
			Verbose:    verbose,
			Logger:     logger,
		},
		Cutoff: cfg.CutoffHours,
		DPI:    cfg.DPI,
		Alpha:  cfg.Alpha,
	})
	if err != nil {
		logger.Fatal("Plots failed", zap.Error(err))
	}
}

func tableOneCommand() {
	cfg := loadConfig()
	var (
		name        string
		showTests   bool
		includeNull bool
		verbose     bool
	)
	flags := flag.NewFlagSet("tableone", flag.ContinueOnError)
	flags.StringVar(&name, "name", pipeline.DefaultTableOneName, "The name of the run. This is used to generate the "+
		"names of the output files.")
	flags.BoolVar(&showTests, "showTests", false, "Add a column with the statistical test of each variable.")
	flags.BoolVar(&includeNull, "includeNull", false, "Show missing categorical values as a separate level.")
	flags.IntVar(&cfg.Simulate, "simulate", cfg.Simulate, "The number of Monte Carlo permutations for sparse "+
		"tables, 0 to disable.")
	flags.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "The significance level.")
	flags.IntVar(&cfg.NrOfThreads, "nrOfThreads", cfg.NrOfThreads, "The number of threads btra uses.")
	flags.BoolVar(&verbose, "verbose", false, "Log debug output.")
	parseFlags(flags, requiredArgs, tableOneHelp)
	dataFile, outputPath := parsePaths(tableOneHelp)
	logger := newLogger(verbose)
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " tableone ", dataFile, " ", outputPath)
	fmt.Fprint(&command, " --name ", name)
	if showTests {
		fmt.Fprint(&command, " --showTests")
	}
	if includeNull {
		fmt.Fprint(&command, " --includeNull")
	}
	fmt.Fprint(&command, " --simulate ", cfg.Simulate)
	fmt.Fprint(&command, " --alpha ", cfg.Alpha)
	setThreads(&command, cfg.NrOfThreads)
	start(logger, &command)
	_, err := pipeline.TableOne(pipeline.TableOneOptions{
		Common: pipeline.Common{
			DataFile:   dataFile,
			OutputPath: outputPath,
			Name:       name,
			Command:    command.String(),
			Verbose:    verbose,
			Logger:     logger,
		},
		ShowTests:   showTests,
		IncludeNull: includeNull,
		Simulate:    cfg.Simulate,
		Alpha:       cfg.Alpha,
	})
	if err != nil {
		logger.Fatal("Table One failed", zap.Error(err))
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, btraHelp)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "flow":
		flowCommand()
	case "plots":
		plotsCommand()
	case "tableone":
		tableOneCommand()
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, btraHelp)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", os.Args[1])
		fmt.Fprint(os.Stderr, btraHelp)
		os.Exit(1)
	}
}
