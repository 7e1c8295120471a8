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

package figures

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"btra/cohort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

// FlowDiagramOptions configures FlowDiagram. Sizes are in inches.
type FlowDiagramOptions struct {
	PlotDists bool //stacked distribution bars of the categorical variables next to each cohort
	SMDs      bool //standardized mean differences next to each exclusion arrow
	Legend    bool //legend of the distribution bars
	BoxWidth  float64
	BoxHeight float64
	Formats   []string //pdf, png, svg
	Path      string
	Name      string
}

// Default box size of the flow diagram.
const (
	DefaultBoxWidth  = 3.5
	DefaultBoxHeight = 1.5
)

const (
	flowGap       = 1.2 //vertical space between cohort boxes
	flowMargin    = 0.75
	distWidth     = 3.0
	legendWidth   = 3.0
	arrowHeadSize = 0.15
)

var (
	cohortFill    = color.White
	exclusionFill = color.Gray{Y: 0xee}
	arrowColor    = color.Black
)

type flowLayout struct {
	flow    *cohort.Flow
	options FlowDiagramOptions
	plot    *plot.Plot
	labels  plotter.XYLabels
	xMax    float64
}

func (l *flowLayout) cohortY(i int) float64 {
	return -float64(i) * (l.options.BoxHeight + flowGap)
}

func (l *flowLayout) exclusionX() float64 {
	return l.options.BoxWidth/2 + flowMargin + l.options.BoxWidth/2
}

func (l *flowLayout) rectangle(x0, y0, x1, y1 float64, fill color.Color) (*plotter.Polygon, error) {
	poly, err := plotter.NewPolygon(plotter.XYs{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	if err != nil {
		return nil, err
	}
	poly.Color = fill
	poly.LineStyle.Width = vg.Points(1)
	return poly, nil
}

func (l *flowLayout) box(cx, cy, w, h float64, fill color.Color, label string) error {
	poly, err := l.rectangle(cx-w/2, cy-h/2, cx+w/2, cy+h/2, fill)
	if err != nil {
		return err
	}
	l.plot.Add(poly)
	l.labels.XYs = append(l.labels.XYs, plotter.XY{X: cx, Y: cy})
	l.labels.Labels = append(l.labels.Labels, label)
	return nil
}

// arrow draws a straight arrow from (x0, y0) to (x1, y1). Only horizontal and vertical arrows are drawn.
func (l *flowLayout) arrow(x0, y0, x1, y1 float64) error {
	line, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y0}, {X: x1, Y: y1}})
	if err != nil {
		return err
	}
	line.Color = arrowColor
	line.Width = vg.Points(1.5)
	l.plot.Add(line)
	var head plotter.XYs
	s := arrowHeadSize
	if x0 == x1 {
		dir := math.Copysign(1, y1-y0)
		head = plotter.XYs{{X: x1, Y: y1}, {X: x1 - s/2, Y: y1 - dir*s}, {X: x1 + s/2, Y: y1 - dir*s}}
	} else {
		dir := math.Copysign(1, x1-x0)
		head = plotter.XYs{{X: x1, Y: y1}, {X: x1 - dir*s, Y: y1 - s/2}, {X: x1 - dir*s, Y: y1 + s/2}}
	}
	poly, err := plotter.NewPolygon(head)
	if err != nil {
		return err
	}
	poly.Color = arrowColor
	l.plot.Add(poly)
	return nil
}

func (l *flowLayout) addCohorts() error {
	for i, c := range l.flow.Cohorts() {
		label := fmt.Sprintf("%s\nN = %d", c.Label, c.Size())
		if err := l.box(0, l.cohortY(i), l.options.BoxWidth, l.options.BoxHeight, cohortFill, label); err != nil {
			return err
		}
	}
	h := l.options.BoxHeight
	for j, e := range l.flow.Exclusions() {
		top, bottom := l.cohortY(j)-h/2, l.cohortY(j+1)+h/2
		if err := l.arrow(0, top, 0, bottom); err != nil {
			return err
		}
		mid := (top + bottom) / 2
		ex := l.exclusionX()
		label := fmt.Sprintf("%s\nn = %d", e.Reason, e.Removed())
		if err := l.box(ex, mid, l.options.BoxWidth, 0.6*h, exclusionFill, label); err != nil {
			return err
		}
		if err := l.arrow(0, mid, ex-l.options.BoxWidth/2, mid); err != nil {
			return err
		}
	}
	l.xMax = l.exclusionX() + l.options.BoxWidth/2
	return nil
}

// addSMDs prints the standardized mean differences of each exclusion step to the left of its arrow.
func (l *flowLayout) addSMDs() error {
	drifts, err := l.flow.Drifts()
	if err != nil {
		return err
	}
	smds := plotter.XYLabels{}
	h := l.options.BoxHeight
	for j := range l.flow.Exclusions() {
		lines := []string{"SMD"}
		for _, d := range drifts {
			if d.Level == "" {
				lines = append(lines, fmt.Sprintf("%s: %s", d.Variable, cohort.FormatSMD(d.SMDs[j])))
			}
		}
		mid := (l.cohortY(j) - h/2 + l.cohortY(j+1) + h/2) / 2
		smds.XYs = append(smds.XYs, plotter.XY{X: -0.15, Y: mid})
		smds.Labels = append(smds.Labels, strings.Join(lines, "\n"))
	}
	if len(smds.XYs) == 0 {
		return nil
	}
	labels, err := plotter.NewLabels(smds)
	if err != nil {
		return err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Font.Size = vg.Points(8)
		labels.TextStyle[i].XAlign = text.XRight
		labels.TextStyle[i].YAlign = text.YCenter
	}
	l.plot.Add(labels)
	return nil
}

// addDistributions draws, for each categorical variable, a bar per cohort stacked by level.
func (l *flowLayout) addDistributions() error {
	x0 := l.xMax + flowMargin
	h := l.options.BoxHeight
	variables := l.flow.Options.Categorical
	band := h / float64(len(variables)+1)
	names := plotter.XYLabels{}
	colorIndex := 0
	for k, variable := range variables {
		levels, fractions, err := l.flow.Distribution(variable)
		if err != nil {
			return err
		}
		for i := range l.flow.Cohorts() {
			y := l.cohortY(i) + h/2 - float64(k+1)*band
			x := x0
			for li, fraction := range fractions[i] {
				if math.IsNaN(fraction) || fraction == 0 {
					continue
				}
				w := fraction * distWidth
				poly, err := l.rectangle(x, y-0.4*band, x+w, y+0.4*band, plotutil.Color(colorIndex+li))
				if err != nil {
					return err
				}
				poly.LineStyle.Width = vg.Points(0.5)
				l.plot.Add(poly)
				x += w
			}
			names.XYs = append(names.XYs, plotter.XY{X: x0 + distWidth + 0.1, Y: y})
			names.Labels = append(names.Labels, variable)
		}
		if l.options.Legend {
			for li, level := range levels {
				thumb, err := l.rectangle(0, 0, 1, 1, plotutil.Color(colorIndex+li))
				if err != nil {
					return err
				}
				l.plot.Legend.Add(fmt.Sprintf("%s: %s", variable, level), thumb)
			}
		}
		colorIndex += len(levels)
	}
	if len(names.XYs) > 0 {
		labels, err := plotter.NewLabels(names)
		if err != nil {
			return err
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].Font.Size = vg.Points(8)
			labels.TextStyle[i].YAlign = text.YCenter
		}
		l.plot.Add(labels)
	}
	l.xMax = x0 + distWidth + 1.0
	if l.options.Legend {
		l.xMax += legendWidth
		l.plot.Legend.Top = true
		l.plot.Legend.TextStyle.Font.Size = vg.Points(8)
	}
	return nil
}

// FlowPlot lays out the flow diagram: a column of cohort boxes connected by arrows, with an exclusion box beside every
// arrow. It returns the plot and its size.
func FlowPlot(flow *cohort.Flow, options FlowDiagramOptions) (*plot.Plot, vg.Length, vg.Length, error) {
	if options.BoxWidth <= 0 {
		options.BoxWidth = DefaultBoxWidth
	}
	if options.BoxHeight <= 0 {
		options.BoxHeight = DefaultBoxHeight
	}
	l := &flowLayout{flow: flow, options: options, plot: plot.New()}
	l.plot.HideAxes()
	if err := l.addCohorts(); err != nil {
		return nil, 0, 0, err
	}
	xMin := -options.BoxWidth / 2
	if options.SMDs && len(flow.Exclusions()) > 0 {
		if err := l.addSMDs(); err != nil {
			return nil, 0, 0, err
		}
		xMin -= 2.0
	}
	if options.PlotDists && len(flow.Options.Categorical) > 0 {
		if err := l.addDistributions(); err != nil {
			return nil, 0, 0, err
		}
	}
	boxes, err := plotter.NewLabels(l.labels)
	if err != nil {
		return nil, 0, 0, err
	}
	for i := range boxes.TextStyle {
		boxes.TextStyle[i].XAlign = text.XCenter
		boxes.TextStyle[i].YAlign = text.YCenter
	}
	l.plot.Add(boxes)
	yMax := options.BoxHeight / 2
	yMin := l.cohortY(len(flow.Cohorts())-1) - options.BoxHeight/2
	l.plot.X.Min, l.plot.X.Max = xMin-0.25, l.xMax+0.25
	l.plot.Y.Min, l.plot.Y.Max = yMin-0.25, yMax+0.25
	width := vg.Length(l.plot.X.Max-l.plot.X.Min) * vg.Inch
	height := vg.Length(l.plot.Y.Max-l.plot.Y.Min) * vg.Inch
	return l.plot, width, height, nil
}

// FlowDiagram draws the flow diagram and saves it in each requested format as <path>/<name>.<format>. It returns the
// names of the written files.
func FlowDiagram(flow *cohort.Flow, options FlowDiagramOptions) ([]string, error) {
	p, width, height, err := FlowPlot(flow, options)
	if err != nil {
		return nil, fmt.Errorf("flow diagram: %w", err)
	}
	files := []string{}
	for _, format := range options.Formats {
		file := filepath.Join(options.Path, fmt.Sprintf("%s.%s", options.Name, format))
		if err := p.Save(width, height, file); err != nil {
			return files, fmt.Errorf("writing %v: %w", file, err)
		}
		files = append(files, file)
	}
	return files, nil
}
