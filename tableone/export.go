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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"
)

// Exporters for computed tables. All exporters write the same header and cells.

// WriteCSV writes the table to a CSV file. The variable name is repeated on every row.
func WriteCSV(t *Table, name string, showTests bool) (err error) {
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
	if err = w.Write(t.Header(showTests)); err != nil {
		return err
	}
	if err = w.WriteAll(t.Records(showTests, true)); err != nil {
		return err
	}
	return w.Error()
}

// SheetName is the name of the worksheet written by WriteXLSX.
const SheetName = "Table One"

// WriteXLSX writes the table to a spreadsheet with a bold header row.
func WriteXLSX(t *Table, name string, showTests bool) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err = f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	header := t.Header(showTests)
	rows := append([][]string{header}, t.Records(showTests, false)...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err = f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}
	width := 10.0
	for _, row := range rows {
		if w := float64(len([]rune(row[0]))); w > width {
			width = w
		}
	}
	if err = f.SetColWidth(SheetName, "A", "A", width+2); err != nil {
		return err
	}
	return f.SaveAs(name)
}

var latexReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
	`<`, `\textless{}`,
	`>`, `\textgreater{}`,
	`≤`, `$\leq$`,
)

// EscapeLaTeX escapes the characters that have a special meaning in LaTeX.
func EscapeLaTeX(s string) string {
	return latexReplacer.Replace(s)
}

// WriteLaTeX writes the table as a LaTeX tabular environment.
func WriteLaTeX(t *Table, w io.Writer, showTests bool) error {
	header := t.Header(showTests)
	fmt.Fprintf(w, "\\begin{tabular}{ll%s}\n", strings.Repeat("r", len(header)-2))
	fmt.Fprintln(w, "\\hline")
	line := func(cells []string) {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = EscapeLaTeX(c)
		}
		fmt.Fprintf(w, "%s \\\\\n", strings.Join(escaped, " & "))
	}
	line(header)
	fmt.Fprintln(w, "\\hline")
	for _, record := range t.Records(showTests, false) {
		line(record)
	}
	fmt.Fprintln(w, "\\hline")
	_, err := fmt.Fprintln(w, "\\end{tabular}")
	return err
}

// WriteLaTeXFile writes the table as a LaTeX tabular environment to a file.
func WriteLaTeXFile(t *Table, name string, showTests bool) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteLaTeX(t, file, showTests)
}

// Render prints the table as a grid.
func Render(t *Table, w io.Writer, showTests bool) {
	grid := tablewriter.NewWriter(w)
	grid.SetHeader(t.Header(showTests))
	grid.SetAutoFormatHeaders(false)
	grid.SetAutoWrapText(false)
	grid.SetRowLine(true)
	grid.SetAlignment(tablewriter.ALIGN_LEFT)
	grid.AppendBulk(t.Records(showTests, false))
	grid.Render()
}
