/*
 * source.go, part of gounwrap.
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

package dcd

import (
	"context"
	"math"
	"sync"

	unwrap "github.com/rmera/gounwrap"
	v3 "github.com/rmera/gounwrap/v3"
)

// SourceOptions set what the DCD header can't say about the system.
type SourceOptions struct {
	PBC  [3]bool //periodic cell axes. The zero value means that all axes are periodic.
	Is2D bool
	Dt   float64 //0 to use the header, or 1 if the header doesn't have it.
}

// Source gives random access to the frames of a DCD trajectory. The cell of each frame is
// built from its unit cell record, so trajectories without unit cells give frames without a cell.
// A Source is safe for concurrent use.
type Source struct {
	pbc  [3]bool
	is2D bool
	dt   float64
	mu   sync.Mutex
	r    *DCDObj
}

// NewSource opens the trajectory name.
func NewSource(name string, opts SourceOptions) (*Source, error) {
	r, err := New(name)
	if err != nil {
		return nil, errDecorate(err, "NewSource")
	}
	S := &Source{pbc: opts.PBC, is2D: opts.Is2D, dt: opts.Dt, r: r}
	if S.pbc == [3]bool{} {
		S.pbc = [3]bool{true, true, true}
	}
	if S.dt <= 0 {
		S.dt = r.Dt()
	}
	if S.dt <= 0 {
		S.dt = 1
	}
	return S, nil
}

// Len returns the number of atoms per frame.
func (S *Source) Len() int { return S.r.Len() }

// NumFrames returns the number of frames in the trajectory.
func (S *Source) NumFrames() int { return S.r.NumFrames() }

// HasCell returns true if the frames carry a unit cell.
func (S *Source) HasCell() bool { return S.r.HasCell() }

// PBC returns the periodic cell axes.
func (S *Source) PBC() [3]bool { return S.pbc }

// Is2D returns true for two-dimensional systems.
func (S *Source) Is2D() bool { return S.is2D }

// Dt returns the time between frames.
func (S *Source) Dt() float64 { return S.dt }

// FrameTime returns the time of the frame i.
func (S *Source) FrameTime(i int) float64 {
	return float64(i) * S.dt
}

// FrameAt returns the last frame with a time not larger than t.
func (S *Source) FrameAt(t float64) int {
	i := int(math.Floor(t/S.dt + 1e-9))
	return max(0, min(i, S.NumFrames()-1))
}

// ReadFrame reads the frame i.
func (S *Source) ReadFrame(ctx context.Context, i int) (*unwrap.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	S.mu.Lock()
	defer S.mu.Unlock()
	if err := S.r.Seek(i); err != nil {
		return nil, errDecorate(err, "ReadFrame")
	}
	coords := v3.Zeros(S.r.Len())
	box := make([]float64, 9)
	if err := S.r.Next(coords, box); err != nil {
		return nil, errDecorate(err, "ReadFrame")
	}
	f := &unwrap.Frame{Index: i, Positions: coords}
	if S.r.HasCell() {
		var err error
		f.Cell, err = unwrap.CellFromBox(box, S.pbc, S.is2D)
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Close closes the trajectory file.
func (S *Source) Close() {
	S.mu.Lock()
	defer S.mu.Unlock()
	S.r.Close()
}

var (
	_ unwrap.FrameReader    = &Source{}
	_ unwrap.TrajError      = Error{}
	_ unwrap.LastFrameError = &lastFrameError{}
)
