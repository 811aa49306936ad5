/*
 * cell.go, part of gounwrap.
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
	"strings"

	v3 "github.com/rmera/gounwrap/v3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell is a periodic simulation cell. The three columns of its matrix are the cell
// vectors a, b and c. A Cell is never modified after it is built: the
// methods that change it return a new Cell.
type Cell struct {
	m      *r3.Mat
	inv    *r3.Mat //nil if m is singular
	origin r3.Vec
	pbc    [3]bool
	is2D   bool
}

// NewCell returns a cell with the given matrix (cell vectors as columns), origin
// and periodic boundary conditions. The matrix is copied. If is2D is true and
// the third cell vector is zero, the unit vector along z is used instead,
// so the cell can still be inverted.
func NewCell(m *r3.Mat, origin r3.Vec, pbc [3]bool, is2D bool) *Cell {
	c := &Cell{m: r3.NewMat(nil), origin: origin, pbc: pbc, is2D: is2D}
	if m != nil {
		c.m.CloneFrom(m)
	}
	if is2D && c.m.VecCol(2) == (r3.Vec{}) {
		c.m.Set(2, 2, 1)
	}
	c.inv = invert(c.m)
	return c
}

// NewOrthoCell returns a 3D, fully periodic, orthogonal cell with
// the given side lengths and its origin at (0,0,0).
func NewOrthoCell(lx, ly, lz float64) *Cell {
	return NewCell(r3.NewMat([]float64{
		lx, 0, 0,
		0, ly, 0,
		0, 0, lz,
	}), r3.Vec{}, [3]bool{true, true, true}, false)
}

// CellFromBox builds a cell from the box information stored in trajectory files.
// box contains either the three side lengths of an orthogonal box, or the nine
// components of the cell vectors a, b, c one after the other (so, the cell matrix
// in row-major order, but transposed). The origin is (0,0,0).
func CellFromBox(box []float64, pbc [3]bool, is2D bool) (*Cell, error) {
	switch len(box) {
	case 3:
		m := r3.NewMat(nil)
		for i, v := range box {
			m.Set(i, i, v)
		}
		return NewCell(m, r3.Vec{}, pbc, is2D), nil
	case 9:
		m := r3.NewMat(nil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m.Set(j, i, box[i*3+j])
			}
		}
		return NewCell(m, r3.Vec{}, pbc, is2D), nil
	default:
		return nil, Error{message: fmt.Sprintf("unwrap: box must have 3 or 9 elements, got %d", len(box)), deco: []string{"CellFromBox"}, critical: true, kind: DataError}
	}
}

// Box returns the nine components of the cell vectors, in the order CellFromBox takes them.
func (C *Cell) Box() []float64 {
	ret := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		v := C.m.VecCol(i)
		ret = append(ret, v.X, v.Y, v.Z)
	}
	return ret
}

func invert(m *r3.Mat) *r3.Mat {
	if m.Det() == 0 {
		return nil
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil
	}
	r := r3.NewMat(nil)
	r.CloneFrom(&inv)
	return r
}

// Matrix returns a copy of the cell matrix. Its columns are the cell vectors.
func (C *Cell) Matrix() *r3.Mat {
	r := r3.NewMat(nil)
	r.CloneFrom(C.m)
	return r
}

// At returns the element i,j of the cell matrix.
func (C *Cell) At(i, j int) float64 {
	return C.m.At(i, j)
}

// Vector returns the ith cell vector.
func (C *Cell) Vector(i int) r3.Vec {
	return C.m.VecCol(i)
}

// Origin returns the position of the corner of the cell.
func (C *Cell) Origin() r3.Vec {
	return C.origin
}

// PBC returns the periodic boundary conditions flags, as they were given.
func (C *Cell) PBC() [3]bool {
	return C.pbc
}

// Is2D returns true if the cell is two-dimensional.
func (C *Cell) Is2D() bool {
	return C.is2D
}

// EffectivePBC returns the periodic boundary flags that are actually used.
// The third axis is never periodic for a 2D cell.
func (C *Cell) EffectivePBC() [3]bool {
	p := C.pbc
	if C.is2D {
		p[2] = false
	}
	return p
}

// HasPBC returns true if the cell is periodic along at least one axis.
func (C *Cell) HasPBC() bool {
	p := C.EffectivePBC()
	return p[0] || p[1] || p[2]
}

// Det returns the determinant of the cell matrix, i.e. the signed volume of the cell.
func (C *Cell) Det() float64 {
	return C.m.Det()
}

// Invertible returns true if reduced coordinates can be computed for the cell.
func (C *Cell) Invertible() bool {
	return C.inv != nil
}

// UpperTriangular returns true if the cell has the shape produced by LAMMPS-like
// codes, the only one for which shear flips are tracked: a along x, b in the xy plane
// and a positive diagonal.
func (C *Cell) UpperTriangular() bool {
	m := C.m
	return m.At(1, 0) == 0 && m.At(2, 0) == 0 && m.At(2, 1) == 0 && m.At(0, 0) > 0 && m.At(1, 1) > 0
}

// AbsoluteToReduced returns the coordinates of the point p in units of the cell vectors,
// relative to the cell origin. It panics if the cell is not invertible.
func (C *Cell) AbsoluteToReduced(p r3.Vec) r3.Vec {
	if C.inv == nil {
		panic(ErrSingularCell.Error())
	}
	return C.inv.MulVec(r3.Sub(p, C.origin))
}

// ReducedToAbsolute is the inverse of AbsoluteToReduced.
func (C *Cell) ReducedToAbsolute(r r3.Vec) r3.Vec {
	return r3.Add(C.m.MulVec(r), C.origin)
}

// ReducedMatrix puts in dst the reduced coordinates of all the points in src.
// dst and src can be the same matrix. It returns an error if the cell
// is not invertible or the matrices don't match.
func (C *Cell) ReducedMatrix(dst, src *v3.Matrix) error {
	if C.inv == nil {
		return errDecorate(ErrSingularCell, "ReducedMatrix")
	}
	if dst.NVecs() != src.NVecs() {
		return Error{message: "unwrap: mismatched coordinate matrices", deco: []string{"ReducedMatrix"}, critical: true, kind: DataError}
	}
	for i := 0; i < src.NVecs(); i++ {
		dst.SetVec(i, C.AbsoluteToReduced(src.Vec(i)))
	}
	return nil
}

// ShiftVector returns the cartesian translation that corresponds
// to the periodic image img.
func (C *Cell) ShiftVector(img Image) r3.Vec {
	return C.m.MulVec(r3.Vec{X: float64(img[0]), Y: float64(img[1]), Z: float64(img[2])})
}

// Shift returns p moved to the periodic image img.
func (C *Cell) Shift(p r3.Vec, img Image) r3.Vec {
	return r3.Add(p, C.ShiftVector(img))
}

// Wrap returns the image of p that lies inside the cell along each periodic
// axis, together with the image that was removed, so that C.Shift(w, img) recovers p.
func (C *Cell) Wrap(p r3.Vec) (r3.Vec, Image) {
	r := C.AbsoluteToReduced(p)
	pbc := C.EffectivePBC()
	var img Image
	comps := []*float64{&r.X, &r.Y, &r.Z}
	for i, c := range comps {
		if !pbc[i] {
			continue
		}
		f := math.Floor(*c)
		*c -= f
		img[i] = int32(f)
	}
	return C.ReducedToAbsolute(r), img
}

// Unflip returns the cell with the shear flips in counts (xy, xz, yz) reversed:
// c gets a*counts[1] + b*counts[2] added (b being the vector before the correction) and
// b gets a*counts[0] added.
func (C *Cell) Unflip(counts [3]int32) *Cell {
	if counts == [3]int32{} {
		return C
	}
	a := C.m.VecCol(0)
	b := C.m.VecCol(1)
	c := C.m.VecCol(2)
	c = r3.Add(c, r3.Add(r3.Scale(float64(counts[1]), a), r3.Scale(float64(counts[2]), b)))
	b = r3.Add(b, r3.Scale(float64(counts[0]), a))
	m := r3.NewMat(nil)
	setCol(m, 0, a)
	setCol(m, 1, b)
	setCol(m, 2, c)
	return NewCell(m, C.origin, C.pbc, C.is2D)
}

func setCol(m *r3.Mat, j int, v r3.Vec) {
	m.Set(0, j, v.X)
	m.Set(1, j, v.Y)
	m.Set(2, j, v.Z)
}

// Equal returns true if both cells have the same matrix, origin, PBC and dimensionality.
func (C *Cell) Equal(o *Cell) bool {
	if C == nil || o == nil {
		return C == o
	}
	if C.origin != o.origin || C.pbc != o.pbc || C.is2D != o.is2D {
		return false
	}
	return mat.Equal(C.m, o.m)
}

// String returns a readable representation of the cell.
func (C *Cell) String() string {
	vecs := make([]string, 3)
	names := "abc"
	for i := range vecs {
		v := C.m.VecCol(i)
		vecs[i] = fmt.Sprintf("%c=(%.4f %.4f %.4f)", names[i], v.X, v.Y, v.Z)
	}
	return fmt.Sprintf("Cell{%s origin=(%.4f %.4f %.4f) pbc=%v 2D=%v}", strings.Join(vecs, " "), C.origin.X, C.origin.Y, C.origin.Z, C.pbc, C.is2D)
}
