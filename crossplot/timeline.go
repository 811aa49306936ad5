/*
 * timeline.go, part of gounwrap.
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

// Package crossplot draws the records found by a trajectory scan, as a quick
// way to check whether a trajectory was unwrapped sensibly.
package crossplot

import (
	"fmt"
	"image/color"

	unwrap "github.com/rmera/gounwrap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// TimelinePlot returns a plot with the number of boundary crossings recorded at each time,
// their running total, and a mark at the time of each cell flip.
func TimelinePlot(s *unwrap.Store, title string) (*plot.Plot, error) {
	times, counts := s.CrossingsPerTime()
	p := plot.New()
	p.Title.Text = title
	p.Title.Padding = 3 * vg.Millimeter
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Crossings"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	if len(times) > 0 {
		per := make(plotter.XYs, len(times))
		total := make(plotter.XYs, len(times))
		sum := 0
		for i, t := range times {
			sum += counts[i]
			per[i].X, per[i].Y = t, float64(counts[i])
			total[i].X, total[i].Y = t, float64(sum)
		}
		sc, err := plotter.NewScatter(per)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		l, err := plotter.NewLine(total)
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = color.RGBA{G: 150, A: 255}
		l.LineStyle.Width = vg.Points(1)
		p.Add(sc, l)
		p.Legend.Add("per frame", sc)
		p.Legend.Add("total", l)
	}
	flips := s.Flips()
	if len(flips) > 0 {
		pts := make(plotter.XYs, len(flips))
		for i, f := range flips {
			pts[i].X = f.Time
		}
		fl, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		fl.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		fl.GlyphStyle.Shape = draw.TriangleGlyph{}
		fl.GlyphStyle.Radius = vg.Points(4)
		p.Add(fl)
		p.Legend.Add("cell flip", fl)
	}
	return p, nil
}

// Timeline saves the plot built by TimelinePlot to filename. The format is taken from
// the file extension (png, svg, pdf, etc).
func Timeline(s *unwrap.Store, title, filename string) error {
	if s.NumCrossings() == 0 && s.NumFlips() == 0 {
		return fmt.Errorf("crossplot: nothing to plot, the records are empty")
	}
	p, err := TimelinePlot(s, title)
	if err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}
