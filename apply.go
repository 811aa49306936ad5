/*
 * apply.go, part of gounwrap.
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

import "fmt"

// Applier puts particles back in the periodic image they would occupy if they had never
// been wrapped into the cell, and corrects the periodic images of the bonds between them.
// The zero value is ready to use.
type Applier struct {
	//If true, frames without bond topology are an error.
	RequireBonds bool
}

// ApplyImages unwraps f using its per-particle periodic images. See Applier.ApplyImages.
func ApplyImages(f *Frame) (*Frame, error) {
	return Applier{}.ApplyImages(f)
}

// Apply unwraps f, the frame at time t, with the records in s. See Applier.Apply.
func Apply(t float64, f *Frame, s *Store) (*Frame, error) {
	return Applier{}.Apply(t, f, s)
}

func (A Applier) check(f *Frame) error {
	if f == nil || f.Positions == nil {
		return ErrNoPositions
	}
	if f.Cell == nil {
		return ErrNoCell
	}
	if A.RequireBonds && f.Bonds == nil {
		return ErrNoBonds
	}
	if f.BondImages != nil && len(f.BondImages) != len(f.Bonds) {
		return Error{message: fmt.Sprintf("unwrap: %d bond images for %d bonds", len(f.BondImages), len(f.Bonds)), critical: true, kind: DataError}
	}
	return nil
}

// correctBonds adds to the image of each bond of F the image of its first particle minus
// that of the second one. Bonds with particles not in the frame are left alone.
func correctBonds(F *Frame, img func(i int) Image) {
	if len(F.Bonds) == 0 {
		return
	}
	if F.BondImages == nil {
		F.BondImages = make([]Image, len(F.Bonds))
	}
	n := F.Len()
	for k, b := range F.Bonds {
		if b.A < 0 || b.B < 0 || b.A >= n || b.B >= n {
			continue
		}
		i1, i2 := img(b.A), img(b.B)
		for j := range i1 {
			F.BondImages[k][j] += i1[j] - i2[j]
		}
	}
}

// ApplyImages returns a copy of f with each particle moved to the periodic image given
// in f.Images, and the bond images corrected accordingly. The returned frame has no
// per-particle images, as they would be wrong for the unwrapped positions.
func (A Applier) ApplyImages(f *Frame) (*Frame, error) {
	if err := A.check(f); err != nil {
		return nil, errDecorate(err, "ApplyImages")
	}
	n := f.Len()
	if len(f.Images) != n {
		return nil, Error{message: fmt.Sprintf("unwrap: %d periodic images for %d particles", len(f.Images), n), deco: []string{"ApplyImages"}, critical: true, kind: DataError}
	}
	out := f.Copy()
	for i, img := range f.Images {
		out.Positions.SetVec(i, f.Cell.Shift(f.Positions.Vec(i), img))
	}
	correctBonds(out, func(i int) Image { return f.Images[i] })
	out.Images = nil
	applyTotal.WithLabelValues("images").Inc()
	return out, nil
}

// Apply returns a copy of f, the frame at time t, with every particle shifted by the sum of
// the crossings recorded in s for it up to t. If the cell flipped before t, the returned frame
// has the unflipped cell, and the shifts use it. Bond images are corrected with the shifts of
// both particles. It fails with ErrNotScanned if the records don't reach t. Neither
// f nor s are modified.
func (A Applier) Apply(t float64, f *Frame, s *Store) (*Frame, error) {
	if err := A.check(f); err != nil {
		return nil, errDecorate(err, "Apply")
	}
	out := f.Copy()
	err := s.View(func(v Snapshot) error {
		if t > v.ProcessedUpTo() {
			return ErrNotScanned
		}
		if counts, ok := v.FlipsAt(t); ok {
			out.Cell = f.Cell.Unflip(counts)
		}
		n := f.Len()
		shifts := make([]Image, n)
		id := IdentityOf(f)
		if v.NumCrossings() > 0 {
			for i := 0; i < n; i++ {
				img := v.Shift(id.Key(i), t)
				shifts[i] = img
				if img != (Image{}) {
					out.Positions.SetVec(i, out.Cell.Shift(out.Positions.Vec(i), img))
				}
			}
		}
		correctBonds(out, func(i int) Image { return shifts[i] })
		return nil
	})
	if err != nil {
		return nil, errDecorate(err, "Apply")
	}
	applyTotal.WithLabelValues("records").Inc()
	return out, nil
}
