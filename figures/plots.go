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

// Package figures draws the charts of the transfusion timing study and the cohort flow diagram.
package figures

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Group colors: late transfusion green, early transfusion red.
var (
	LateColor  = color.NRGBA{R: 0x2e, G: 0xcc, B: 0x71, A: 0xb3}
	EarlyColor = color.NRGBA{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xb3}
	histColor  = color.NRGBA{R: 0x34, G: 0x98, B: 0xdb, A: 0xb3}
	cutoffRed  = color.RGBA{R: 0xff, A: 0xff}
)

// GroupColors lists the colors of the study groups in display order.
var GroupColors = []color.Color{LateColor, EarlyColor}

// KeyData holds the values shown in the five panels of the key figure. Per-group slices follow the order of Groups.
type KeyData struct {
	Groups            []string
	Age               [][]float64
	TimeToTransfusion []float64
	MeanTransfusions  []float64
	LOS               [][]float64
	MortalityRate     []float64 //percent
	MortalityP        float64
}

// KeyPlotOptions configures KeyPlots.
type KeyPlotOptions struct {
	Cutoff float64 //hours, drawn as a dashed line on the histogram
	Alpha  float64 //significance level of the mortality annotation
	DPI    int
	File   string //PNG file
}

// Size of the key figure.
const (
	KeyPlotWidth  = 18 * vg.Inch
	KeyPlotHeight = 12 * vg.Inch
)

func groupColor(i int) color.Color {
	return GroupColors[i%len(GroupColors)]
}

func newPanel(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(15)
	p.Title.Padding = vg.Points(15)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	grid := plotter.NewGrid()
	grid.Vertical.Width = 0
	p.Add(grid)
	return p
}

// boxPanel draws one box plot per group, without outliers. The y axis covers the whiskers only.
func boxPanel(title, yLabel string, groups []string, samples [][]float64) (*plot.Plot, error) {
	p := newPanel(title, "", yLabel)
	low, high := math.Inf(1), math.Inf(-1)
	for i, xs := range samples {
		if len(xs) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(80), float64(i), plotter.Values(xs))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", title, err)
		}
		box.FillColor = groupColor(i)
		box.GlyphStyle.Radius = 0
		box.MedianStyle.Color = cutoffRed
		box.MedianStyle.Width = vg.Points(2)
		p.Add(box)
		low, high = math.Min(low, box.AdjLow), math.Max(high, box.AdjHigh)
	}
	if low <= high {
		margin := 0.05 * (high - low)
		if margin == 0 {
			margin = 1
		}
		p.Y.Min, p.Y.Max = low-margin, high+margin
	}
	p.NominalX(groups...)
	return p, nil
}

// barPanel draws one bar per group with its value printed above the bar. The y axis runs from 0 to headroom times the
// highest bar.
func barPanel(title, yLabel string, groups []string, values []float64, format string, headroom float64) (*plot.Plot, error) {
	p := newPanel(title, "", yLabel)
	labels := plotter.XYLabels{}
	top := 0.0
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bar, err := plotter.NewBarChart(plotter.Values{v}, vg.Points(120))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", title, err)
		}
		bar.Color = groupColor(i)
		bar.LineStyle.Width = vg.Points(1.5)
		bar.XMin = float64(i)
		p.Add(bar)
		labels.XYs = append(labels.XYs, plotter.XY{X: float64(i), Y: v})
		labels.Labels = append(labels.Labels, fmt.Sprintf(format, v))
		top = math.Max(top, v)
	}
	if len(labels.XYs) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", title, err)
		}
		for i := range l.TextStyle {
			l.TextStyle[i].Font.Size = vg.Points(12)
			l.TextStyle[i].XAlign = text.XCenter
			l.TextStyle[i].YAlign = text.YBottom
		}
		l.Offset = vg.Point{Y: vg.Points(4)}
		p.Add(l)
	}
	if top <= 0 {
		top = 1
	}
	p.Y.Min, p.Y.Max = 0, top*headroom
	p.NominalX(groups...)
	return p, nil
}

// histogramPanel draws the distribution of the time to first transfusion with a dashed line at the cutoff.
func histogramPanel(times []float64, cutoff float64) (*plot.Plot, error) {
	p := newPanel("Distribution of Time to First Transfusion", "Time to First Transfusion (hours)", "Number of Patients")
	top := 1.0
	if len(times) > 0 {
		hist, err := plotter.NewHist(plotter.Values(times), 30)
		if err != nil {
			return nil, fmt.Errorf("histogram: %w", err)
		}
		hist.FillColor = histColor
		for _, bin := range hist.Bins {
			top = math.Max(top, bin.Weight)
		}
		p.Add(hist)
	}
	line, err := plotter.NewLine(plotter.XYs{{X: cutoff, Y: 0}, {X: cutoff, Y: top}})
	if err != nil {
		return nil, fmt.Errorf("cutoff line: %w", err)
	}
	line.Color = cutoffRed
	line.Width = vg.Points(2.5)
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("%s-hour cutoff", formatHours(cutoff)), line)
	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = vg.Points(11)
	return p, nil
}

func formatHours(h float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", h), "0"), ".")
}

// MortalityAnnotation formats the p-value shown above the mortality bars: "p = x*" when significant, "p = x (ns)"
// otherwise.
func MortalityAnnotation(p, alpha float64) string {
	if p < alpha {
		return fmt.Sprintf("p = %.4f*", p)
	}
	return fmt.Sprintf("p = %.4f (ns)", p)
}

func mortalityPanel(data KeyData, alpha float64) (*plot.Plot, error) {
	groups := make([]string, len(data.Groups))
	for i, g := range data.Groups {
		groups[i] = strings.Replace(g, " ", "\n", 1)
	}
	p, err := barPanel("In-Hospital Mortality by Transfusion Timing", "Mortality Rate (%)", groups,
		data.MortalityRate, "%.1f%%", 1.3)
	if err != nil {
		return nil, err
	}
	top := p.Y.Max / 1.3
	note, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: float64(len(groups)-1) / 2, Y: top * 1.2}},
		Labels: []string{MortalityAnnotation(data.MortalityP, alpha)},
	})
	if err != nil {
		return nil, fmt.Errorf("mortality annotation: %w", err)
	}
	note.TextStyle[0].Font.Size = vg.Points(11)
	note.TextStyle[0].XAlign = text.XCenter
	p.Add(note)
	return p, nil
}

// KeyPanels builds the five panels of the key figure, laid out on a 2x3 grid. The last cell of the grid is empty.
func KeyPanels(data KeyData, options KeyPlotOptions) ([][]*plot.Plot, error) {
	if len(data.Groups) == 0 {
		return nil, errors.New("key plots need at least one group")
	}
	age, err := boxPanel("Age Distribution", "Age (years)", data.Groups, data.Age)
	if err != nil {
		return nil, err
	}
	hist, err := histogramPanel(data.TimeToTransfusion, options.Cutoff)
	if err != nil {
		return nil, err
	}
	volume, err := barPanel("Average Number of Transfusions per Patient", "Number of Transfusions", data.Groups,
		data.MeanTransfusions, "%.2f", 1.2)
	if err != nil {
		return nil, err
	}
	los, err := boxPanel("ICU Length of Stay", "Days", data.Groups, data.LOS)
	if err != nil {
		return nil, err
	}
	mortality, err := mortalityPanel(data, options.Alpha)
	if err != nil {
		return nil, err
	}
	return [][]*plot.Plot{
		{age, hist, volume},
		{los, mortality, nil},
	}, nil
}

// KeyPlots draws the key figure of the study to a PNG file at the requested resolution.
func KeyPlots(data KeyData, options KeyPlotOptions) (err error) {
	if options.DPI <= 0 {
		return fmt.Errorf("invalid resolution %v dpi", options.DPI)
	}
	panels, err := KeyPanels(data, options)
	if err != nil {
		return err
	}
	img := vgimg.NewWith(vgimg.UseWH(KeyPlotWidth, KeyPlotHeight), vgimg.UseDPI(options.DPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      3,
		PadTop:    vg.Inch / 4,
		PadBottom: vg.Inch / 4,
		PadLeft:   vg.Inch / 4,
		PadRight:  vg.Inch / 4,
		PadX:      vg.Inch / 2,
		PadY:      vg.Inch / 2,
	}
	canvases := plot.Align(panels, tiles, dc)
	for j, row := range panels {
		for i, p := range row {
			if p != nil {
				p.Draw(canvases[j][i])
			}
		}
	}
	file, err := os.Create(options.File)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(file)
	return err
}
