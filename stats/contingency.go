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

package stats

import (
	"math"

	"github.com/exascience/pargo/parallel"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tests on contingency tables. A table is indexed as table[row][column], e.g. rows are the levels of a categorical
// variable and columns are the comparison groups.

// Compact removes rows and columns that contain only zeros.
func Compact(table [][]float64) [][]float64 {
	if len(table) == 0 {
		return nil
	}
	nCols := 0
	for _, row := range table {
		if len(row) > nCols {
			nCols = len(row)
		}
	}
	colSums := make([]float64, nCols)
	for _, row := range table {
		for j, x := range row {
			colSums[j] += x
		}
	}
	result := [][]float64{}
	for _, row := range table {
		sum := 0.0
		newRow := []float64{}
		for j := 0; j < nCols; j++ {
			if colSums[j] == 0 {
				continue
			}
			x := 0.0
			if j < len(row) {
				x = row[j]
			}
			sum += x
			newRow = append(newRow, x)
		}
		if sum > 0 {
			result = append(result, newRow)
		}
	}
	return result
}

func margins(table [][]float64) ([]float64, []float64, float64) {
	rows := make([]float64, len(table))
	cols := make([]float64, len(table[0]))
	total := 0.0
	for i, row := range table {
		for j, x := range row {
			rows[i] += x
			cols[j] += x
			total += x
		}
	}
	return rows, cols, total
}

// Expected computes the expected counts of a table under independence.
func Expected(table [][]float64) [][]float64 {
	if len(table) == 0 || len(table[0]) == 0 {
		return nil
	}
	rows, cols, total := margins(table)
	expected := make([][]float64, len(table))
	for i := range table {
		expected[i] = make([]float64, len(cols))
		for j := range cols {
			expected[i][j] = rows[i] * cols[j] / total
		}
	}
	return expected
}

// MinExpected returns the smallest expected count of a table, NaN for an empty table.
func MinExpected(table [][]float64) float64 {
	expected := Expected(Compact(table))
	if expected == nil {
		return math.NaN()
	}
	m := math.Inf(1)
	for _, row := range expected {
		for _, e := range row {
			m = math.Min(m, e)
		}
	}
	return m
}

func pearson(observed, expected [][]float64, yates bool) float64 {
	chi2 := 0.0
	for i, row := range observed {
		for j, o := range row {
			e := expected[i][j]
			d := o - e
			if yates {
				// move each observed count towards its expectation by at most 0.5
				d = math.Copysign(math.Max(0, math.Abs(d)-0.5), d)
			}
			chi2 += d * d / e
		}
	}
	return chi2
}

// ChiSquareContingency performs Pearson's chi-squared test of independence. Yates' continuity correction is applied
// when the table has one degree of freedom.
func ChiSquareContingency(table [][]float64) TestResult {
	r := nanResult(chi2Name)
	observed := Compact(table)
	if len(observed) < 2 || len(observed[0]) < 2 {
		return r
	}
	expected := Expected(observed)
	df := float64((len(observed) - 1) * (len(observed[0]) - 1))
	chi2 := pearson(observed, expected, df == 1)
	r.Statistic = chi2
	r.DF = df
	r.PValue = distuv.ChiSquared{K: df}.Survival(chi2)
	return r
}

func logChoose(n, k float64) float64 {
	a, _ := math.Lgamma(n + 1)
	b, _ := math.Lgamma(k + 1)
	c, _ := math.Lgamma(n - k + 1)
	return a - b - c
}

// FisherExact performs a two-sided Fisher's exact test on a 2x2 table. The statistic is the sample odds ratio. The
// p-value sums the probabilities of all tables with the observed margins that are not more likely than the observed
// table.
func FisherExact(table [][]float64) TestResult {
	r := nanResult(fisherName)
	if len(table) != 2 || len(table[0]) != 2 || len(table[1]) != 2 {
		return r
	}
	a, b := table[0][0], table[0][1]
	c, d := table[1][0], table[1][1]
	n := a + b + c + d
	if n == 0 {
		return r
	}
	switch {
	case b*c != 0:
		r.Statistic = a * d / (b * c)
	case a*d != 0:
		r.Statistic = math.Inf(1)
	}
	row1, col1 := a+b, a+c
	logTotal := logChoose(n, row1)
	pmf := func(x float64) float64 {
		return math.Exp(logChoose(col1, x) + logChoose(n-col1, row1-x) - logTotal)
	}
	observed := pmf(a) * (1 + 1e-7)
	p := 0.0
	for x := math.Max(0, row1+col1-n); x <= math.Min(row1, col1); x++ {
		if px := pmf(x); px <= observed {
			p += px
		}
	}
	r.PValue = math.Min(1, p)
	return r
}

// MonteCarloChiSquare computes a simulated p-value for Pearson's chi-squared statistic, by sampling tables with the
// same margins as the observed table. This is useful for tables larger than 2x2 with small expected counts, where the
// chi-squared approximation is poor. The samples are drawn in parallel.
func MonteCarloChiSquare(table [][]float64, iter int) TestResult {
	r := nanResult(mcChi2Name)
	observed := Compact(table)
	if iter <= 0 || len(observed) < 2 || len(observed[0]) < 2 {
		return r
	}
	expected := Expected(observed)
	stat := pearson(observed, expected, false)
	// expand the table into one row label and one column label per observation
	rowLabels, colLabels := []int{}, []int{}
	for i, row := range observed {
		for j, x := range row {
			for k := 0; k < int(x); k++ {
				rowLabels = append(rowLabels, i)
				colLabels = append(colLabels, j)
			}
		}
	}
	nRows, nCols := len(observed), len(observed[0])
	result := parallel.RangeReduce(0, iter, 0, func(low, high int) interface{} {
		hits := 0
		cols := make([]int, len(colLabels))
		sim := make([][]float64, nRows)
		for i := range sim {
			sim[i] = make([]float64, nCols)
		}
		for it := low; it < high; it++ {
			copy(cols, colLabels)
			for i := len(cols) - 1; i > 0; i-- {
				j := int(fastrand.Uint32n(uint32(i + 1)))
				cols[i], cols[j] = cols[j], cols[i]
			}
			for i := range sim {
				for j := range sim[i] {
					sim[i][j] = 0
				}
			}
			for k, row := range rowLabels {
				sim[row][cols[k]]++
			}
			if pearson(sim, expected, false) >= stat*(1-1e-7) {
				hits++
			}
		}
		return hits
	}, func(x, y interface{}) interface{} {
		return x.(int) + y.(int)
	})
	r.Statistic = stat
	r.DF = float64((nRows - 1) * (nCols - 1))
	r.PValue = float64(1+result.(int)) / float64(iter+1)
	return r
}
