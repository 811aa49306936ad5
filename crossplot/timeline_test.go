/*
 * timeline_test.go, part of gounwrap.
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

package crossplot

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	unwrap "github.com/rmera/gounwrap"
	v3 "github.com/rmera/gounwrap/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

// frames is a FrameReader for a particle that goes through the x face of
// the cell every few frames.
type frames struct {
	cell *unwrap.Cell
	n    int
}

func (f frames) NumFrames() int          { return f.n }
func (f frames) FrameTime(i int) float64 { return float64(i) }
func (f frames) FrameAt(t float64) int   { return max(0, min(int(math.Floor(t)), f.n-1)) }
func (f frames) ReadFrame(ctx context.Context, i int) (*unwrap.Frame, error) {
	x := math.Mod(0.3*float64(i), 1)
	return &unwrap.Frame{Index: i, Cell: f.cell, Positions: v3.FromVecs([]r3.Vec{{X: x, Y: 0.5, Z: 0.5}, {X: 0.5, Y: x, Z: 0.5}})}, nil
}

func TestTimeline(Te *testing.T) {
	s := unwrap.NewStore()
	name := filepath.Join(Te.TempDir(), "timeline.png")
	if err := Timeline(s, "empty", name); err == nil {
		Te.Error("plotted an empty store")
	}
	h := unwrap.Scan(context.Background(), unwrap.Async(frames{unwrap.NewOrthoCell(1, 1, 1), 20}), s, unwrap.ScanOptions{UpTo: math.Inf(1)})
	if status, err := h.Wait(); err != nil || status != unwrap.Completed {
		Te.Fatalf("scan ended with %v, %v", status, err)
	}
	if s.NumCrossings() == 0 {
		Te.Fatal("no crossings to plot")
	}
	if err := Timeline(s, "Crossings", name); err != nil {
		Te.Fatal(err)
	}
	if fi, err := os.Stat(name); err != nil || fi.Size() == 0 {
		Te.Errorf("no plot written: %v", err)
	}
}
