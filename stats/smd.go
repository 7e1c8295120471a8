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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Standardized mean differences (SMD) measure how much the distribution of a variable drifts between two cohorts,
// independent of sample size.

// ContinuousSMD returns (mean(b) - mean(a)) / sqrt((var(a) + var(b)) / 2).
func ContinuousSMD(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return math.NaN()
	}
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	return standardize(m2-m1, (v1+v2)/2)
}

// BinarySMD returns the SMD for a proportion p1 in the first cohort and p2 in the second cohort.
func BinarySMD(p1, p2 float64) float64 {
	return standardize(p2-p1, (p1*(1-p1)+p2*(1-p2))/2)
}

func standardize(diff, pooledVariance float64) float64 {
	if math.IsNaN(diff) || math.IsNaN(pooledVariance) {
		return math.NaN()
	}
	if pooledVariance == 0 {
		if diff == 0 {
			return 0
		}
		return math.NaN()
	}
	return diff / math.Sqrt(pooledVariance)
}

// MultiLevelSMD returns the SMD of a categorical variable with k levels, given the proportion of each level in the
// first (p1) and second (p2) cohort (Yang and Dalton, 2012). The first level is the reference level. The result is
// NaN when the covariance matrix is singular, e.g. when a level is absent in both cohorts.
func MultiLevelSMD(p1, p2 []float64) float64 {
	if len(p1) != len(p2) || len(p1) < 2 {
		return math.NaN()
	}
	t, c := p1[1:], p2[1:]
	k := len(t)
	if k == 1 {
		return math.Abs(BinarySMD(c[0], t[0]))
	}
	s := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if i == j {
				s.Set(i, j, (t[i]*(1-t[i])+c[i]*(1-c[i]))/2)
			} else {
				s.Set(i, j, -(t[i]*t[j]+c[i]*c[j])/2)
			}
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(s); err != nil {
		return math.NaN()
	}
	d := make([]float64, k)
	for i := range d {
		d[i] = t[i] - c[i]
	}
	dv := mat.NewVecDense(k, d)
	q := mat.Inner(dv, &inv, dv)
	if q < 0 {
		return math.NaN()
	}
	return math.Sqrt(q)
}
