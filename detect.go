/*
 * detect.go, part of gounwrap.
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
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Batch contains the records produced by the processing of one frame.
type Batch struct {
	Time      float64
	Crossings []Crossing
	Flip      *Flip //nil if the cell did not flip in this frame.
}

// Empty returns true if the batch contains no records.
func (B Batch) Empty() bool {
	return len(B.Crossings) == 0 && B.Flip == nil
}

// Detector compares each frame with the previous one and finds
// the particles that crossed a periodic boundary of the cell, and the shear
// flips of the cell itself. A Detector is meant to be used by one goroutine.
type Detector struct {
	prev     map[int64]r3.Vec //reduced positions in the previous frame
	next     map[int64]r3.Vec
	prevCell *Cell //raw (not unflipped) cell of the last upper-triangular frame
	counts   [3]int32
	natoms   int
}

// NewDetector returns a detector whose cumulative flip counters (xy, xz, yz) start
// at flipCounts.
func NewDetector(flipCounts [3]int32) *Detector {
	return &Detector{
		prev:   make(map[int64]r3.Vec),
		next:   make(map[int64]r3.Vec),
		counts: flipCounts,
		natoms: -1,
	}
}

// FlipCounts returns the current cumulative flip counters.
func (D *Detector) FlipCounts() [3]int32 {
	return D.counts
}

// Release discards the per-particle state kept by the detector.
func (D *Detector) Release() {
	D.prev = make(map[int64]r3.Vec)
	D.next = make(map[int64]r3.Vec)
	D.prevCell = nil
	D.natoms = -1
}

// validate checks that the frame can be processed.
func (D *Detector) validate(f *Frame) error {
	if f == nil || f.Cell == nil {
		return ErrNoCell
	}
	if !f.Cell.HasPBC() {
		return ErrNoPBC
	}
	if f.Len() == 0 {
		return ErrNoPositions
	}
	if D.natoms >= 0 && f.Len() != D.natoms {
		return ErrTopologyChanged
	}
	return nil
}

// ratio returns the tilt factor of the element i,j of the cell
// relative to the diagonal element of the row i.
func ratio(c *Cell, i, j int) float64 {
	return c.At(i, j) / c.At(i, i)
}

// detectFlips updates the flip counters with the changes in the tilt factors between
// the previous cell and raw. It returns true if any counter changed.
func (D *Detector) detectFlips(raw *Cell) bool {
	if !raw.UpperTriangular() {
		return false
	}
	p := D.prevCell
	D.prevCell = raw
	if p == nil {
		return false
	}
	pbc := raw.EffectivePBC()
	counts := D.counts
	var kyz float64
	if pbc[1] && !raw.Is2D() {
		kyz = math.Round(ratio(raw, 1, 2) - ratio(p, 1, 2))
		counts[2] -= int32(kyz)
	}
	if pbc[0] {
		counts[0] -= int32(math.Round(ratio(raw, 0, 1) - ratio(p, 0, 1)))
		if !raw.Is2D() {
			//a yz flip also moves xz by the xy tilt. That is not an xz flip.
			xz1 := (p.At(0, 2) + kyz*p.At(0, 1)) / p.At(0, 0)
			counts[1] -= int32(math.Round(ratio(raw, 0, 2) - xz1))
		}
	}
	changed := counts != D.counts
	D.counts = counts
	return changed
}

// cell returns the cell to be used for reduced coordinates, with all flips reversed.
func (D *Detector) cell(raw *Cell) (*Cell, error) {
	c := raw.Unflip(D.counts)
	if !c.Invertible() {
		return nil, ErrSingularCell
	}
	return c, nil
}

// Process detects the boundary crossings and cell flips between the previous frame
// given to the detector and f, which corresponds to the time t.
// The first frame processed only sets up the reference state.
func (D *Detector) Process(t float64, f *Frame) (Batch, error) {
	b := Batch{Time: t}
	if err := D.validate(f); err != nil {
		return b, errDecorate(err, "Detector.Process")
	}
	if D.detectFlips(f.Cell) {
		b.Flip = &Flip{Time: t, Counts: D.counts}
	}
	cell, err := D.cell(f.Cell)
	if err != nil {
		return b, errDecorate(err, "Detector.Process")
	}
	id := IdentityOf(f)
	pbc := cell.EffectivePBC()
	n := f.Len()
	clear(D.next)
	for i := 0; i < n; i++ {
		key := id.Key(i)
		r := cell.AbsoluteToReduced(f.Positions.Vec(i))
		D.next[key] = r
		prev, ok := D.prev[key]
		if !ok {
			continue
		}
		delta := r3.Sub(prev, r)
		for axis, d := range [3]float64{delta.X, delta.Y, delta.Z} {
			if !pbc[axis] {
				continue
			}
			shift := math.Round(d)
			if shift == 0 {
				continue
			}
			//also catches NaN coordinates.
			if !(math.Abs(shift) <= math.MaxInt16) {
				return b, Error{message: fmt.Sprintf("unwrap: particle %d moved %v cells along axis %d in one frame", key, shift, axis), deco: []string{"Detector.Process"}, critical: true, kind: DataError}
			}
			b.Crossings = append(b.Crossings, Crossing{ID: key, Time: t, Axis: int8(axis), Shift: int16(shift)})
		}
	}
	D.prev, D.next = D.next, D.prev
	D.natoms = n
	return b, nil
}

// Seed loads f as the previous frame, without producing any record. It is used to
// resume a scan from the last frame processed. The flip counters must
// already be those in effect for f.
func (D *Detector) Seed(f *Frame) error {
	if err := D.validate(f); err != nil {
		return errDecorate(err, "Detector.Seed")
	}
	if f.Cell.UpperTriangular() {
		D.prevCell = f.Cell
	}
	cell, err := D.cell(f.Cell)
	if err != nil {
		return errDecorate(err, "Detector.Seed")
	}
	id := IdentityOf(f)
	clear(D.prev)
	for i := 0; i < f.Len(); i++ {
		D.prev[id.Key(i)] = cell.AbsoluteToReduced(f.Positions.Vec(i))
	}
	D.natoms = f.Len()
	return nil
}
