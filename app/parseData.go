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

package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"btra/cohort"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

//Package app implements the transfusion timing study on top of the cohort package.
//The btra program reads a flat CSV export with one row per patient encounter. The first row is the header. Columns
//contain demographics (age, gender, race, language, ...), severity scores, baseline labs and vitals, transfusion
//variables and outcomes. The study itself is defined in this package: the recoding of free-text columns, the exclusion
//steps of the cohort flow, and the variables of Table One.

// missingTokens are the cell contents that are read as missing values. These are the markers statistical packages
// commonly write for not-available data.
var missingTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// isMissingToken checks if a trimmed cell denotes a missing value.
func isMissingToken(s string) bool {
	return missingTokens[s]
}

// parseCell turns the text of a cell into a value. A cell is numeric when it parses as a floating point number.
func parseCell(s string) cohort.Value {
	s = strings.TrimSpace(s)
	if isMissingToken(s) {
		return cohort.MissingValue()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return cohort.Value{Raw: s, Num: f, Numeric: true}
	}
	return cohort.StringValue(s)
}

// LoadOptions configures LoadTransfusionData.
type LoadOptions struct {
	Verbose bool        //dump offending records to stderr
	Logger  *zap.Logger //nil means no logging
}

// LoadTransfusionData parses a CSV file with a header row into a dataset. Rows with fewer fields than the header are
// padded with missing values, rows with more fields are an error. No other validation is performed: a column the analysis needs but the file lacks is reported
// when the analysis first refers to it.
func LoadTransfusionData(file string, options LoadOptions) (*cohort.Dataset, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	//open file
	csvFile, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer csvFile.Close()
	ds, err := readTransfusionData(csvFile, file, options.Verbose)
	if err != nil {
		return nil, err
	}
	logger.Info("Parsed transfusion data",
		zap.String("file", file),
		zap.Int("records", ds.Len()),
		zap.Int("columns", len(ds.Schema.Columns)))
	return ds, nil
}

// readTransfusionData parses CSV data from a reader. The name is only used in error messages.
func readTransfusionData(r io.Reader, name string, verbose bool) (*cohort.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%v: no header row", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", name, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}
	ds := cohort.NewDataset(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %w", name, err)
		}
		if len(record) > len(header) {
			if verbose {
				spew.Fdump(os.Stderr, record)
			}
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%v: record on line %d has %d fields, header has %d: %w",
				name, line, len(record), len(header), csv.ErrFieldCount)
		}
		cells := make([]cohort.Value, len(header))
		for i := range cells {
			if i < len(record) {
				cells[i] = parseCell(record[i])
			} else {
				cells[i] = cohort.MissingValue()
			}
		}
		ds.Append(cells)
	}
	return ds, nil
}
