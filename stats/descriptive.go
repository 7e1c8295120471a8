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
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary contains descriptive statistics for a sample.
type Summary struct {
	N              int
	Mean, SD       float64 //SD uses n-1 in the denominator
	Median, Q1, Q3 float64
	Min, Max       float64
}

// Describe computes descriptive statistics for a sample. An empty sample yields NaN for all statistics.
func Describe(xs []float64) Summary {
	s := Summary{N: len(xs)}
	if len(xs) == 0 {
		nan := math.NaN()
		s.Mean, s.SD, s.Median, s.Q1, s.Q3, s.Min, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sorted := sortedCopy(xs)
	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.SD = stat.StdDev(sorted, nil)
	} else {
		s.SD = math.NaN()
	}
	s.Median = quantileSorted(0.5, sorted)
	s.Q1 = quantileSorted(0.25, sorted)
	s.Q3 = quantileSorted(0.75, sorted)
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	return s
}

// Quantile computes the p-quantile of a sample by linear interpolation between the closest order statistics, the
// method R calls type 7.
func Quantile(p float64, xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return quantileSorted(p, sortedCopy(xs))
}

// Median is the 0.5 quantile.
func Median(xs []float64) float64 {
	return Quantile(0.5, xs)
}

// Mean returns the arithmetic mean, NaN for an empty sample.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// FractionAtMost returns the fraction of values smaller than or equal to a threshold.
func FractionAtMost(xs []float64, threshold float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	n := 0
	for _, x := range xs {
		if x <= threshold {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

func quantileSorted(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

func sortedCopy(xs []float64) []float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return sorted
}
