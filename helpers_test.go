/*
 * helpers_test.go, part of gounwrap.
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

package unwrap

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"

	v3 "github.com/rmera/gounwrap/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

// memSource is an in-memory FrameReader. Frame i is at time i. If gate is
// not nil, every read waits for a value from it.
type memSource struct {
	frames []*Frame
	gate   chan struct{}
	failAt int //if >0, reading that frame fails

	mu    sync.Mutex
	reads []int
}

func (m *memSource) NumFrames() int          { return len(m.frames) }
func (m *memSource) FrameTime(i int) float64 { return float64(i) }
func (m *memSource) FrameAt(t float64) int {
	i := int(math.Floor(t))
	return max(0, min(i, len(m.frames)-1))
}

func (m *memSource) ReadFrame(ctx context.Context, i int) (*Frame, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	m.reads = append(m.reads, i)
	m.mu.Unlock()
	if m.failAt > 0 && i == m.failAt {
		return nil, errors.New("disk on fire")
	}
	f := m.frames[i].Copy()
	f.Index = i
	return f, nil
}

// trajectory is a random walk of particles in a periodic cell.
type trajectory struct {
	cell    *Cell
	truePos []*v3.Matrix //unwrapped positions
	frames  []*Frame     //wrapped positions, with their images
}

// randomWalk builds a trajectory of nframes frames with natoms particles, starting inside
// the cell, each moving at most step (in reduced units) per frame along each axis.
func randomWalk(cell *Cell, natoms, nframes int, step float64, seed uint64) *trajectory {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	tr := &trajectory{cell: cell}
	red := make([]r3.Vec, natoms)
	for i := range red {
		red[i] = r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
	}
	for f := 0; f < nframes; f++ {
		if f > 0 {
			for i := range red {
				d := r3.Vec{X: (2*rng.Float64() - 1) * step, Y: (2*rng.Float64() - 1) * step, Z: (2*rng.Float64() - 1) * step}
				red[i] = r3.Add(red[i], d)
			}
		}
		tp := v3.Zeros(natoms)
		wp := v3.Zeros(natoms)
		imgs := make([]Image, natoms)
		for i, r := range red {
			p := cell.ReducedToAbsolute(r)
			tp.SetVec(i, p)
			w, img := cell.Wrap(p)
			wp.SetVec(i, w)
			imgs[i] = img
		}
		tr.truePos = append(tr.truePos, tp)
		tr.frames = append(tr.frames, &Frame{Index: f, Cell: cell, Positions: wp, Images: imgs})
	}
	return tr
}

// withoutImages returns copies of the frames with no per-particle images.
func withoutImages(frames []*Frame) []*Frame {
	ret := make([]*Frame, len(frames))
	for i, f := range frames {
		c := f.Copy()
		c.Images = nil
		ret[i] = c
	}
	return ret
}

func triclinic() *Cell {
	return NewCell(r3.NewMat([]float64{
		10, 2, -1,
		0, 9, 1.5,
		0, 0, 11,
	}), r3.Vec{X: -1, Y: 0.5, Z: 2}, [3]bool{true, true, true}, false)
}

func sameCoords(A, B *v3.Matrix, tolerance float64) bool {
	if A.NVecs() != B.NVecs() {
		return false
	}
	return floats.EqualApprox(A.RawMatrix().Data, B.RawMatrix().Data, tolerance)
}

// scanAll scans all of src into a new store.
func scanAll(src Source) (*Store, ScanStatus, error) {
	s := NewStore()
	h := Scan(context.Background(), src, s, ScanOptions{UpTo: math.Inf(1)})
	status, err := h.Wait()
	return s, status, err
}
