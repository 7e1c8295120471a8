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

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Hypothesis tests used to compare the early and late transfusion groups.

// TestResult is the outcome of a hypothesis test. Degenerate input (empty groups, no variance, a single category)
// results in a NaN p-value rather than an error, so that a report can still be produced.
type TestResult struct {
	Name      string
	Statistic float64
	DF        float64
	PValue    float64
}

// Significant checks if the p-value is below alpha. NaN p-values are never significant.
func (r TestResult) Significant(alpha float64) bool {
	return !math.IsNaN(r.PValue) && r.PValue < alpha
}

func nanResult(name string) TestResult {
	return TestResult{Name: name, Statistic: math.NaN(), DF: math.NaN(), PValue: math.NaN()}
}

const (
	welchName   = "Two Sample T-test"
	anovaName   = "One-way ANOVA"
	mwuName     = "Mann-Whitney U"
	kruskalName = "Kruskal-Wallis"
	chi2Name    = "Chi-squared"
	fisherName  = "Fisher's exact"
	mcChi2Name  = "Chi-squared (Monte Carlo)"
)

// WelchTTest compares the means of two samples without assuming equal variances. The p-value is two-sided.
func WelchTTest(a, b []float64) TestResult {
	r := nanResult(welchName)
	if len(a) < 2 || len(b) < 2 {
		return r
	}
	n1, n2 := float64(len(a)), float64(len(b))
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	s1, s2 := v1/n1, v2/n2
	se := math.Sqrt(s1 + s2)
	if se == 0 {
		return r
	}
	t := (m1 - m2) / se
	df := (s1 + s2) * (s1 + s2) / (s1*s1/(n1-1) + s2*s2/(n2-1))
	r.Statistic = t
	r.DF = df
	r.PValue = math.Min(1, 2*distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t)))
	return r
}

// OneWayANOVA compares the means of two or more samples.
func OneWayANOVA(groups ...[]float64) TestResult {
	r := nanResult(anovaName)
	k, n := 0, 0
	total := 0.0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		k++
		n += len(g)
		for _, x := range g {
			total += x
		}
	}
	if k < 2 || n-k < 1 {
		return r
	}
	grand := total / float64(n)
	ssb, ssw := 0.0, 0.0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		m := stat.Mean(g, nil)
		ssb += float64(len(g)) * (m - grand) * (m - grand)
		for _, x := range g {
			ssw += (x - m) * (x - m)
		}
	}
	if ssw == 0 {
		return r
	}
	dfb, dfw := float64(k-1), float64(n-k)
	f := (ssb / dfb) / (ssw / dfw)
	r.Statistic = f
	r.DF = dfb
	r.PValue = distuv.F{D1: dfb, D2: dfw}.Survival(f)
	return r
}

// rankAll ranks the pooled samples, averaging the ranks of ties. It returns the rank sum per sample and the tie term
// sum(t^3 - t) over all tie groups.
func rankAll(groups ...[]float64) ([]float64, float64) {
	type obs struct {
		x float64
		g int
	}
	pooled := []obs{}
	for gi, g := range groups {
		for _, x := range g {
			pooled = append(pooled, obs{x, gi})
		}
	}
	sort.Slice(pooled, func(i, j int) bool { return pooled[i].x < pooled[j].x })
	sums := make([]float64, len(groups))
	ties := 0.0
	for i := 0; i < len(pooled); {
		j := i + 1
		for j < len(pooled) && pooled[j].x == pooled[i].x {
			j++
		}
		rank := float64(i+j+1) / 2 // average of ranks i+1 .. j
		for k := i; k < j; k++ {
			sums[pooled[k].g] += rank
		}
		t := float64(j - i)
		ties += t*t*t - t
		i = j
	}
	return sums, ties
}

// MannWhitneyU performs a two-sided Mann-Whitney U (Wilcoxon rank-sum) test. The statistic is U for the first
// sample. Without ties, and when one of the samples has at most 8 observations, the exact null distribution is used.
// Otherwise the normal approximation with tie and continuity correction is used.
func MannWhitneyU(a, b []float64) TestResult {
	r := nanResult(mwuName)
	if len(a) == 0 || len(b) == 0 {
		return r
	}
	n1, n2 := float64(len(a)), float64(len(b))
	sums, ties := rankAll(a, b)
	u1 := sums[0] - n1*(n1+1)/2
	u2 := n1*n2 - u1
	r.Statistic = u1
	u := math.Max(u1, u2)
	small, large := len(a), len(b)
	if small > large {
		small, large = large, small
	}
	if ties == 0 && small <= 8 {
		r.PValue = math.Min(1, 2*mannWhitneyExactSurvival(u, small, large))
		return r
	}
	n := n1 + n2
	sd := math.Sqrt(n1 * n2 / 12 * ((n + 1) - ties/(n*(n-1))))
	if sd == 0 {
		return r
	}
	z := (u - n1*n2/2 - 0.5) / sd
	r.PValue = math.Min(1, 2*distuv.UnitNormal.Survival(z))
	return r
}

// mannWhitneyExactSurvival returns P(U >= u) under the null hypothesis for samples of size m and n. The counts of
// arrangements per value of U follow f(i,j,u) = f(i-1,j,u-j) + f(i,j-1,u), computed for increasing j.
func mannWhitneyExactSurvival(u float64, m, n int) float64 {
	size := m*n + 1
	f := make([][]float64, m+1)
	for i := range f {
		f[i] = make([]float64, size)
		f[i][0] = 1
	}
	for j := 1; j <= n; j++ {
		for i := 1; i <= m; i++ {
			for v := size - 1; v >= j; v-- {
				f[i][v] += f[i-1][v-j]
			}
		}
	}
	total, tail := 0.0, 0.0
	for v, c := range f[m] {
		total += c
		if float64(v) >= u-1e-9 {
			tail += c
		}
	}
	return tail / total
}

// KruskalWallis compares two or more samples on their ranks.
func KruskalWallis(groups ...[]float64) TestResult {
	r := nanResult(kruskalName)
	nonEmpty := [][]float64{}
	n := 0
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
			n += len(g)
		}
	}
	if len(nonEmpty) < 2 {
		return r
	}
	sums, ties := rankAll(nonEmpty...)
	fn := float64(n)
	h := 0.0
	for i, g := range nonEmpty {
		h += sums[i] * sums[i] / float64(len(g))
	}
	h = 12/(fn*(fn+1))*h - 3*(fn+1)
	c := 1 - ties/(fn*fn*fn-fn)
	if c == 0 {
		return r
	}
	h /= c
	df := float64(len(nonEmpty) - 1)
	r.Statistic = h
	r.DF = df
	r.PValue = distuv.ChiSquared{K: df}.Survival(h)
	return r
}
