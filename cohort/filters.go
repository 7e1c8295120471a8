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

// RecordFilter prescribes a function type for implementing filters on records, to be able to derive a cohort from a
// parent cohort. E.g. records with a known blood pressure, records of patients transfused early, etc. A record is
// kept when the filter returns true.
type RecordFilter func(r *Record) bool

// ApplyRecordFilter returns the records that pass a filter, in their original order.
func ApplyRecordFilter(filter RecordFilter, records []*Record) []*Record {
	kept := []*Record{}
	for _, r := range records {
		if filter(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// ApplyRecordFilters returns the records that pass all given filters.
func ApplyRecordFilters(filters []RecordFilter, records []*Record) []*Record {
	return ApplyRecordFilter(All(filters...), records)
}

// NotMissing keeps records with a known value for a column.
func NotMissing(schema *Schema, col string) (RecordFilter, error) {
	i, err := schema.Index(col)
	if err != nil {
		return nil, err
	}
	return func(r *Record) bool {
		return !r.At(i).Missing
	}, nil
}

// Equals keeps records whose category for a column equals the given level.
func Equals(schema *Schema, col, level string) (RecordFilter, error) {
	i, err := schema.Index(col)
	if err != nil {
		return nil, err
	}
	return func(r *Record) bool {
		v := r.At(i)
		return !v.Missing && v.Level() == level
	}, nil
}

// All keeps records that pass every filter. With no filters every record is kept.
func All(filters ...RecordFilter) RecordFilter {
	return func(r *Record) bool {
		for _, f := range filters {
			if !f(r) {
				return false
			}
		}
		return true
	}
}

// Not inverts a filter.
func Not(filter RecordFilter) RecordFilter {
	return func(r *Record) bool {
		return !filter(r)
	}
}
