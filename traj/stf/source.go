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

package stf

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	unwrap "github.com/rmera/gounwrap"
	v3 "github.com/rmera/gounwrap/v3"
)

// Header keys used by Source. They are written by the unwraptraj program.
const (
	HeaderDt   = "dt"  //time between frames
	HeaderPBC  = "pbc" //periodic flags for the three cell axes, as in "1 1 0"
	HeaderDims = "dim" //2 for 2D systems
)

// SourceOptions override what the trajectory header says about the system.
type SourceOptions struct {
	PBC  *[3]bool //nil to use the header, or full PBC if the header doesn't say.
	Is2D *bool
	Dt   float64 //0 to use the header, or 1.
}

// Source gives random access to the frames of an STF trajectory, so it can be
// scanned and unwrapped. Frames are read sequentially: asking for a frame before the
// last one read reopens the file. The cell of each frame is built from its box, so frames
// without a box have no cell. A Source is safe for concurrent use.
type Source struct {
	name    string
	pbc     [3]bool
	is2D    bool
	dt      float64
	natoms  int
	nframes int
	header  map[string]string

	mu   sync.Mutex
	r    *StfR
	next int //index of the frame r will read next
}

// NewSource opens the trajectory name and counts its frames.
func NewSource(name string, opts SourceOptions) (*Source, error) {
	r, header, err := New(name)
	if err != nil {
		return nil, errDecorate(err, "NewSource")
	}
	S := &Source{name: name, pbc: [3]bool{true, true, true}, dt: 1, natoms: r.Len(), header: header}
	if err := S.configure(opts); err != nil {
		r.Close()
		return nil, err
	}
	for {
		err := r.Next(nil)
		if err != nil {
			if _, ok := err.(unwrap.LastFrameError); ok {
				break
			}
			r.Close()
			return nil, errDecorate(err, "NewSource")
		}
		S.nframes++
	}
	return S, nil
}

func (S *Source) configure(opts SourceOptions) error {
	if p, ok := S.header[HeaderPBC]; ok {
		f := strings.Fields(p)
		if len(f) != 3 {
			return Error{fmt.Sprintf("malformed %s header: %q", HeaderPBC, p), S.name, []string{"NewSource"}, true}
		}
		for i, v := range f {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Error{fmt.Sprintf("malformed %s header: %q", HeaderPBC, p), S.name, []string{"NewSource"}, true}
			}
			S.pbc[i] = b
		}
	}
	if d, ok := S.header[HeaderDims]; ok {
		S.is2D = strings.TrimSpace(d) == "2"
	}
	if d, ok := S.header[HeaderDt]; ok {
		dt, err := strconv.ParseFloat(d, 64)
		if err != nil || dt <= 0 {
			return Error{fmt.Sprintf("malformed %s header: %q", HeaderDt, d), S.name, []string{"NewSource"}, true}
		}
		S.dt = dt
	}
	if opts.PBC != nil {
		S.pbc = *opts.PBC
	}
	if opts.Is2D != nil {
		S.is2D = *opts.Is2D
	}
	if opts.Dt > 0 {
		S.dt = opts.Dt
	}
	return nil
}

// Len returns the number of atoms per frame.
func (S *Source) Len() int { return S.natoms }

// NumFrames returns the number of frames in the trajectory.
func (S *Source) NumFrames() int { return S.nframes }

// Header returns a copy of the trajectory metadata.
func (S *Source) Header() map[string]string { return copyHeader(S.header) }

// PBC returns the periodic boundary conditions used for the cells of the frames.
func (S *Source) PBC() [3]bool { return S.pbc }

// Is2D returns true if the frames are read as 2D systems.
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
	return max(0, min(i, S.nframes-1))
}

// ReadFrame reads the frame i.
func (S *Source) ReadFrame(ctx context.Context, i int) (*unwrap.Frame, error) {
	if i < 0 || i >= S.nframes {
		return nil, Error{fmt.Sprintf("frame %d requested, but the trajectory has %d", i, S.nframes), S.name, []string{"ReadFrame"}, true}
	}
	S.mu.Lock()
	defer S.mu.Unlock()
	if S.r == nil || i < S.next {
		if S.r != nil {
			S.r.Close()
		}
		r, _, err := New(S.name)
		if err != nil {
			S.r = nil
			return nil, errDecorate(err, "ReadFrame")
		}
		S.r = r
		S.next = 0
	}
	for ; S.next < i; S.next++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := S.r.Next(nil); err != nil {
			S.drop()
			return nil, errDecorate(err, "ReadFrame")
		}
	}
	coords := v3.Zeros(S.natoms)
	box, err := S.r.next(coords)
	if err != nil {
		S.drop()
		return nil, errDecorate(err, "ReadFrame")
	}
	S.next++
	f := &unwrap.Frame{Index: i, Positions: coords}
	if box != nil {
		f.Cell, err = unwrap.CellFromBox(box, S.pbc, S.is2D)
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Close releases the file handle kept open between reads.
func (S *Source) Close() {
	S.mu.Lock()
	defer S.mu.Unlock()
	S.drop()
}

func (S *Source) drop() {
	if S.r != nil {
		S.r.Close()
		S.r = nil
	}
}

var _ unwrap.FrameReader = &Source{}
