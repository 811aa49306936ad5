/*
 * cell_test.go, part of gounwrap.
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
	"errors"
	"fmt"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecsClose(a, b r3.Vec, tolerance float64) bool {
	return scalar.EqualWithinAbs(a.X, b.X, tolerance) && scalar.EqualWithinAbs(a.Y, b.Y, tolerance) && scalar.EqualWithinAbs(a.Z, b.Z, tolerance)
}

func TestReducedRoundTrip(Te *testing.T) {
	c := triclinic()
	fmt.Println(c)
	for _, p := range []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 3.3, Y: -7, Z: 25}, {X: -100, Y: 42, Z: 0.001}} {
		r := c.AbsoluteToReduced(p)
		back := c.ReducedToAbsolute(r)
		if !vecsClose(p, back, tol) {
			Te.Errorf("round trip of %v gave %v", p, back)
		}
	}
	//the cell vectors themselves are unit vectors in reduced coordinates.
	r := c.AbsoluteToReduced(r3.Add(c.Origin(), c.Vector(1)))
	if !vecsClose(r, r3.Vec{Y: 1}, tol) {
		Te.Errorf("cell vector b in reduced coordinates: %v", r)
	}
}

func TestWrap(Te *testing.T) {
	c := triclinic()
	p := r3.Vec{X: 31.7, Y: -12.2, Z: 40}
	w, img := c.Wrap(p)
	r := c.AbsoluteToReduced(w)
	for i, v := range []float64{r.X, r.Y, r.Z} {
		if v < 0 || v >= 1 {
			Te.Errorf("reduced coordinate %d out of the cell after wrapping: %v", i, v)
		}
	}
	if back := c.Shift(w, img); !vecsClose(back, p, tol) {
		Te.Errorf("shifting the wrapped point by %v gave %v, not %v", img, back, p)
	}
	//non-periodic axes are left alone.
	c2 := NewCell(c.Matrix(), c.Origin(), [3]bool{true, false, true}, false)
	_, img2 := c2.Wrap(p)
	if img2[1] != 0 {
		Te.Errorf("wrapped along a non-periodic axis: %v", img2)
	}
}

func TestCellFromBox(Te *testing.T) {
	pbc := [3]bool{true, true, true}
	c, err := CellFromBox([]float64{10, 0, 0, 2, 9, 0, -1, 1.5, 11}, pbc, false)
	if err != nil {
		Te.Fatal(err)
	}
	if !c.UpperTriangular() {
		Te.Error("LAMMPS-like box not recognized as upper triangular")
	}
	if c.At(0, 1) != 2 || c.At(1, 2) != 1.5 {
		Te.Errorf("box vectors not stored as columns: %v", c)
	}
	if !floatsEqual(c.Box(), []float64{10, 0, 0, 2, 9, 0, -1, 1.5, 11}) {
		Te.Errorf("Box does not give back the box: %v", c.Box())
	}
	o, err := CellFromBox([]float64{5, 6, 7}, pbc, false)
	if err != nil {
		Te.Fatal(err)
	}
	if !o.Equal(NewOrthoCell(5, 6, 7)) {
		Te.Errorf("orthogonal box gave %v", o)
	}
	if _, err := CellFromBox([]float64{1, 2}, pbc, false); err == nil {
		Te.Error("CellFromBox accepted 2 numbers")
	}
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func Test2DCell(Te *testing.T) {
	m := r3.NewMat([]float64{
		4, 1, 0,
		0, 4, 0,
		0, 0, 0,
	})
	c := NewCell(m, r3.Vec{}, [3]bool{true, true, true}, true)
	if !c.Invertible() {
		Te.Fatal("2D cell with zero c vector is not invertible")
	}
	if c.Vector(2) != (r3.Vec{Z: 1}) {
		Te.Errorf("unexpected third vector for a 2D cell: %v", c.Vector(2))
	}
	if c.EffectivePBC() != [3]bool{true, true, false} {
		Te.Errorf("2D cell periodic along z: %v", c.EffectivePBC())
	}
	//the original matrix is not touched.
	if m.At(2, 2) != 0 {
		Te.Error("NewCell modified its argument")
	}
}

func TestSingularCell(Te *testing.T) {
	c := NewCell(r3.NewMat([]float64{
		1, 2, 0,
		1, 2, 0,
		0, 0, 1,
	}), r3.Vec{}, [3]bool{true, true, true}, false)
	if c.Invertible() {
		Te.Fatal("singular cell reported as invertible")
	}
	d := NewDetector([3]int32{})
	f := &Frame{Cell: c, Positions: randomWalk(NewOrthoCell(1, 1, 1), 2, 1, 0, 1).frames[0].Positions}
	_, err := d.Process(0, f)
	if !errors.Is(err, ErrSingularCell) || KindOf(err) != DataError {
		Te.Errorf("expected a singular cell data error, got %v", err)
	}
}

func TestUnflip(Te *testing.T) {
	lx, ly := 10.0, 8.0
	//true cell, and the same cell after LAMMPS flipped xy and yz once each.
	truth := NewCell(r3.NewMat([]float64{
		lx, 6, 3,
		0, ly, 5,
		0, 0, 7,
	}), r3.Vec{}, [3]bool{true, true, true}, false)
	a, b, c := truth.Vector(0), truth.Vector(1), truth.Vector(2)
	craw := r3.Sub(c, b) //yz flip, taken with the b of the moment.
	braw := r3.Sub(b, a) //xy flip
	m := r3.NewMat(nil)
	setCol(m, 0, a)
	setCol(m, 1, braw)
	setCol(m, 2, craw)
	raw := NewCell(m, r3.Vec{}, [3]bool{true, true, true}, false)
	//c got b-a added when unflipping yz with the raw b, so one xz flip compensates for it.
	un := raw.Unflip([3]int32{1, 1, 1})
	if !un.Equal(truth) {
		Te.Errorf("Unflip gave %v, expected %v", un, truth)
	}
	if raw.Unflip([3]int32{}) != raw {
		Te.Error("Unflip with zero counters should return the same cell")
	}
}
