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
	"fmt"
	"sort"
	"strconv"
)

// ErrUnknownColumn is returned when an analysis refers to a column that is not part of the input.
var ErrUnknownColumn = errors.New("unknown column")

// Value represents a single cell of the input table.
type Value struct {
	Raw     string  //text as it occurs in the input, trimmed
	Num     float64 //numeric value, only meaningful if Numeric is set
	Numeric bool    //the raw text parses as a number
	Missing bool    //the cell is empty or one of the missing value markers
}

// MissingValue returns a value that represents a missing cell.
func MissingValue() Value {
	return Value{Missing: true}
}

// StringValue returns a non-numeric value for a label, e.g. a recoded category.
func StringValue(s string) Value {
	return Value{Raw: s}
}

// NumberValue returns a numeric value.
func NumberValue(f float64) Value {
	return Value{Raw: strconv.FormatFloat(f, 'g', -1, 64), Num: f, Numeric: true}
}

// Level returns the category label of a value. Numeric values are printed in their shortest form so that 1 and 1.0
// end up in the same category.
func (v Value) Level() string {
	if v.Missing {
		return ""
	}
	if v.Numeric {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Raw
}

// Schema holds the ordered column names of a dataset.
type Schema struct {
	Columns []string
	index   map[string]int
}

// NewSchema creates a schema for the given header.
func NewSchema(columns []string) *Schema {
	s := &Schema{Columns: append([]string{}, columns...), index: map[string]int{}}
	for i, c := range s.Columns {
		if _, ok := s.index[c]; !ok {
			s.index[c] = i
		}
	}
	return s
}

// Index returns the position of a column.
func (s *Schema) Index(col string) (int, error) {
	i, ok := s.index[col]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	return i, nil
}

// Has checks if the schema contains a column.
func (s *Schema) Has(col string) bool {
	_, ok := s.index[col]
	return ok
}

// Require checks that all given columns are present.
func (s *Schema) Require(cols ...string) error {
	for _, c := range cols {
		if _, err := s.Index(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) add(col string) int {
	s.Columns = append(s.Columns, col)
	s.index[col] = len(s.Columns) - 1
	return len(s.Columns) - 1
}

// Record represents one patient encounter.
type Record struct {
	ID    int     //row number in the input, 0-based; identifies the record across cohorts
	Cells []Value //one cell per schema column
}

// At returns the cell at a column position. Positions past the end of the record are missing.
func (r *Record) At(i int) Value {
	if i < 0 || i >= len(r.Cells) {
		return MissingValue()
	}
	return r.Cells[i]
}

// Dataset contains all records parsed from the input.
type Dataset struct {
	Schema  *Schema
	Records []*Record
}

// NewDataset creates an empty dataset for the given header.
func NewDataset(columns []string) *Dataset {
	return &Dataset{Schema: NewSchema(columns)}
}

// Append adds a record to the dataset. The record ID is set to its position in the dataset.
func (ds *Dataset) Append(cells []Value) *Record {
	r := &Record{ID: len(ds.Records), Cells: cells}
	ds.Records = append(ds.Records, r)
	return r
}

// Len returns the number of records.
func (ds *Dataset) Len() int {
	return len(ds.Records)
}

// Select returns a dataset with the same schema that contains the records that pass all filters. The records are
// shared, not copied.
func (ds *Dataset) Select(filters ...RecordFilter) *Dataset {
	return &Dataset{Schema: ds.Schema, Records: ApplyRecordFilters(filters, ds.Records)}
}

// Get returns the value of a named column for a record.
func (ds *Dataset) Get(r *Record, col string) (Value, error) {
	i, err := ds.Schema.Index(col)
	if err != nil {
		return Value{}, err
	}
	return r.At(i), nil
}

// AddColumn derives a new column from the existing ones, e.g. a recoded category.
func (ds *Dataset) AddColumn(col string, f func(r *Record) Value) error {
	if ds.Schema.Has(col) {
		return fmt.Errorf("column %q already exists", col)
	}
	i := ds.Schema.add(col)
	for _, r := range ds.Records {
		for len(r.Cells) < i {
			r.Cells = append(r.Cells, MissingValue())
		}
		r.Cells = append(r.Cells, f(r))
	}
	return nil
}

// ReplaceColumn overwrites the values of an existing column.
func (ds *Dataset) ReplaceColumn(col string, f func(old Value) Value) error {
	i, err := ds.Schema.Index(col)
	if err != nil {
		return err
	}
	for _, r := range ds.Records {
		for len(r.Cells) <= i {
			r.Cells = append(r.Cells, MissingValue())
		}
		r.Cells[i] = f(r.Cells[i])
	}
	return nil
}

// SortByCategory orders the records by the position of their category in the given order. The sort is stable so
// records of the same category keep their input order. Unknown categories and missing values go last.
func (ds *Dataset) SortByCategory(col string, order []string) error {
	i, err := ds.Schema.Index(col)
	if err != nil {
		return err
	}
	rank := map[string]int{}
	for j, c := range order {
		rank[c] = j
	}
	key := func(r *Record) int {
		v := r.At(i)
		if v.Missing {
			return len(order)
		}
		if k, ok := rank[v.Level()]; ok {
			return k
		}
		return len(order)
	}
	sort.SliceStable(ds.Records, func(a, b int) bool {
		return key(ds.Records[a]) < key(ds.Records[b])
	})
	return nil
}

// ValueCounts counts the records per category of a column, missing values excluded.
func ValueCounts(schema *Schema, records []*Record, col string) (map[string]int, error) {
	i, err := schema.Index(col)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range records {
		v := r.At(i)
		if v.Missing {
			continue
		}
		counts[v.Level()]++
	}
	return counts, nil
}

// Float64s collects the non-missing numeric values of a column.
func Float64s(schema *Schema, records []*Record, col string) ([]float64, error) {
	i, err := schema.Index(col)
	if err != nil {
		return nil, err
	}
	xs := make([]float64, 0, len(records))
	for _, r := range records {
		v := r.At(i)
		if v.Missing || !v.Numeric {
			continue
		}
		xs = append(xs, v.Num)
	}
	return xs, nil
}

// SortedCounts orders value counts by descending count, ties broken by label.
func SortedCounts(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
