/*
 * apply_test.go, part of gounwrap.
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

	v3 "github.com/rmera/gounwrap/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

func scannedWalk(Te *testing.T) (*trajectory, *Store) {
	tr := randomWalk(triclinic(), 20, 40, 0.08, 42)
	s, status, err := scanAll(Async(&memSource{frames: withoutImages(tr.frames)}))
	if err != nil || status != Completed {
		Te.Fatalf("scan ended with %v, %v", status, err)
	}
	if s.NumCrossings() == 0 {
		Te.Fatal("the random walk produced no crossings")
	}
	return tr, s
}

func TestUnwrapRandomWalk(Te *testing.T) {
	tr, s := scannedWalk(Te)
	fmt.Println("crossings:", s.NumCrossings())
	for i, f := range withoutImages(tr.frames) {
		out, err := Apply(float64(i), f, s)
		if err != nil {
			Te.Fatal(err)
		}
		if !sameCoords(out.Positions, tr.truePos[i], 1e-8) {
			Te.Errorf("frame %d: unwrapped positions differ from the real ones", i)
		}
	}
}

func TestIdempotence(Te *testing.T) {
	tr, s := scannedWalk(Te)
	f := withoutImages(tr.frames)[30]
	orig := f.Positions.Clone()
	a, err := Apply(30, f, s)
	if err != nil {
		Te.Fatal(err)
	}
	b, err := Apply(30, f, s)
	if err != nil {
		Te.Fatal(err)
	}
	if !sameCoords(a.Positions, b.Positions, 0) {
		Te.Error("two applications at the same time differ")
	}
	if !sameCoords(f.Positions, orig, 0) {
		Te.Error("Apply modified its input frame")
	}
}

func TestAdditivity(Te *testing.T) {
	tr, s := scannedWalk(Te)
	t1, t2 := 12.0, 33.0
	f := withoutImages(tr.frames)[33]
	u1, err := Apply(t1, f, s)
	if err != nil {
		Te.Fatal(err)
	}
	u2, err := Apply(t2, f, s)
	if err != nil {
		Te.Fatal(err)
	}
	for i := 0; i < f.Len(); i++ {
		var img Image
		for _, c := range s.Crossings(int64(i)) {
			if c.Time > t1 && c.Time <= t2 {
				img[c.Axis] += int32(c.Shift)
			}
		}
		want := f.Cell.Shift(u1.Positions.Vec(i), img)
		if !vecsClose(want, u2.Positions.Vec(i), 1e-8) {
			Te.Errorf("particle %d: unwrapping at %v is not unwrapping at %v plus the crossings in between", i, t2, t1)
		}
	}
}

func TestWrapRoundTrip(Te *testing.T) {
	tr, s := scannedWalk(Te)
	for _, i := range []int{5, 25, 39} {
		f := withoutImages(tr.frames)[i]
		out, err := Apply(float64(i), f, s)
		if err != nil {
			Te.Fatal(err)
		}
		for j := 0; j < f.Len(); j++ {
			w, _ := f.Cell.Wrap(out.Positions.Vec(j))
			if !vecsClose(w, f.Positions.Vec(j), 1e-8) {
				Te.Errorf("frame %d particle %d: wrapping the unwrapped position does not give the input", i, j)
			}
		}
	}
}

func TestFastPathEquivalence(Te *testing.T) {
	tr, s := scannedWalk(Te)
	for i, f := range tr.frames {
		fast, err := ApplyImages(f)
		if err != nil {
			Te.Fatal(err)
		}
		if fast.Images != nil {
			Te.Error("ApplyImages left the per-particle images in the output")
		}
		slow, err := Apply(float64(i), withoutImages(tr.frames)[i], s)
		if err != nil {
			Te.Fatal(err)
		}
		if !sameCoords(fast.Positions, slow.Positions, 1e-8) {
			Te.Errorf("frame %d: fast and record paths differ", i)
		}
	}
}

func bondedPair(cell *Cell, a, b r3.Vec) *Frame {
	return &Frame{Cell: cell, Positions: v3.FromVecs([]r3.Vec{a, b}), Bonds: []Bond{{0, 1}}}
}

// Two bonded particles that cross the same face in the same frame keep their bond image.
func TestBondCrossingsCancel(Te *testing.T) {
	cell := NewOrthoCell(1, 1, 1)
	frames := []*Frame{
		bondedPair(cell, r3.Vec{X: 0.97, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.99, Y: 0.6, Z: 0.5}),
		bondedPair(cell, r3.Vec{X: 0.01, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.03, Y: 0.6, Z: 0.5}),
	}
	s, _, err := scanAll(Async(&memSource{frames: frames}))
	if err != nil {
		Te.Fatal(err)
	}
	if s.NumCrossings() != 2 {
		Te.Fatalf("expected 2 crossings, got %d", s.NumCrossings())
	}
	out, err := Apply(1, frames[1], s)
	if err != nil {
		Te.Fatal(err)
	}
	if len(out.BondImages) != 1 || out.BondImages[0] != (Image{}) {
		Te.Errorf("expected a zero bond image, got %v", out.BondImages)
	}
}

func TestBondImages(Te *testing.T) {
	cell := NewOrthoCell(1, 1, 1)
	frames := []*Frame{
		bondedPair(cell, r3.Vec{X: 0.97, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.9, Y: 0.5, Z: 0.5}),
		bondedPair(cell, r3.Vec{X: 0.01, Y: 0.5, Z: 0.5}, r3.Vec{X: 0.95, Y: 0.5, Z: 0.5}),
	}
	//the bond was drawn across the boundary in the input.
	frames[1].BondImages = []Image{{-1, 0, 0}}
	frames[1].Bonds = append(frames[1].Bonds, Bond{0, 5})
	frames[1].BondImages = append(frames[1].BondImages, Image{0, 0, 4})
	s, _, err := scanAll(Async(&memSource{frames: frames}))
	if err != nil {
		Te.Fatal(err)
	}
	out, err := Apply(1, frames[1], s)
	if err != nil {
		Te.Fatal(err)
	}
	if out.BondImages[0] != (Image{}) {
		Te.Errorf("bond image should be corrected to zero, got %v", out.BondImages[0])
	}
	if out.BondImages[1] != (Image{0, 0, 4}) {
		Te.Errorf("bond to a missing particle was modified: %v", out.BondImages[1])
	}
	if frames[1].BondImages[0] != (Image{-1, 0, 0}) {
		Te.Error("Apply modified the bond images of its input")
	}
	//same thing with images
	withImages := frames[1].Copy()
	withImages.Images = []Image{{1, 0, 0}, {0, 0, 0}}
	fast, err := ApplyImages(withImages)
	if err != nil {
		Te.Fatal(err)
	}
	if fast.BondImages[0] != (Image{}) {
		Te.Errorf("fast path bond image should be zero, got %v", fast.BondImages[0])
	}
}

func TestApplyErrors(Te *testing.T) {
	cell := NewOrthoCell(1, 1, 1)
	s := NewStore()
	f := oneParticle(cell, r3.Vec{X: 0.5})
	_, err := Apply(0, f, s)
	if !errors.Is(err, ErrNotScanned) || KindOf(err) != StaleError {
		Te.Errorf("expected a stale error from an empty store, got %v", err)
	}
	if _, err = Apply(0, &Frame{Positions: f.Positions}, s); !errors.Is(err, ErrNoCell) {
		Te.Errorf("expected ErrNoCell, got %v", err)
	}
	strict := Applier{RequireBonds: true}
	if _, err = strict.Apply(0, f, s); !errors.Is(err, ErrNoBonds) {
		Te.Errorf("expected ErrNoBonds, got %v", err)
	}
	f.Images = []Image{{1, 1, 1}, {0, 0, 0}}
	if _, err = ApplyImages(f); KindOf(err) != DataError {
		Te.Errorf("expected a data error for too many images, got %v", err)
	}
	if Applicable(&Frame{Cell: cell}) {
		Te.Error("a frame without positions is applicable")
	}
}
