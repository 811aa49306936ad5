/*
 * interfaces.go, part of gounwrap.
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

	v3 "github.com/rmera/gounwrap/v3"
)

// Image is the periodic image of a particle or a bond, as an integer
// number of cell vectors along each of the three cell axes.
type Image [3]int32

// Bond joins the particles with indexes A and B in a frame.
type Bond struct {
	A int
	B int
}

// Frame is one snapshot of the system.
type Frame struct {
	Index      int        //index of the frame in its source. Only State.ApplyUnwrapFrame reads it.
	Cell       *Cell      //nil if the frame has no simulation cell.
	Positions  *v3.Matrix //one row per particle
	IDs        []int64    //optional, stable particle identifiers
	Images     []Image    //optional, per-particle periodic images
	Bonds      []Bond     //optional
	BondImages []Image    //optional, one per bond.
}

// Len returns the number of particles in the frame.
func (F *Frame) Len() int {
	if F == nil || F.Positions == nil {
		return 0
	}
	return F.Positions.NVecs()
}

// Copy returns a deep copy of the frame. The Cell is shared, as cells are not
// modified once built.
func (F *Frame) Copy() *Frame {
	r := &Frame{Index: F.Index, Cell: F.Cell}
	if F.Positions != nil {
		r.Positions = F.Positions.Clone()
	}
	r.IDs = append([]int64(nil), F.IDs...)
	r.Images = append([]Image(nil), F.Images...)
	r.Bonds = append([]Bond(nil), F.Bonds...)
	r.BondImages = append([]Image(nil), F.BondImages...)
	return r
}

// Applicable returns true if the frame contains something that
// can be unwrapped, i.e. particle positions.
func Applicable(F *Frame) bool {
	return F.Len() > 0
}

// FrameResult is what a Source delivers for a requested frame. Err
// is non-nil if the frame could not be obtained.
type FrameResult struct {
	Frame *Frame
	Err   error
}

// Source is the upstream provider of trajectory frames.
type Source interface {
	//Returns the number of frames in the source.
	NumFrames() int

	//FrameTime maps a source frame index to animation time.
	FrameTime(i int) float64

	//FrameAt is the inverse of FrameTime. It returns the index of the last frame
	//whose time is not larger than t.
	FrameAt(t float64) int

	/*RequestFrame starts the retrieval of the frame i and returns a channel
	through which the frame (or an error) will be delivered, exactly once.
	Only one request is outstanding at any time. A caller that abandons the
	request (for instance, because ctx was canceled) will not read from the channel,
	so implementations should not block when sending to it.*/
	RequestFrame(ctx context.Context, i int) <-chan FrameResult
}

// FrameReader is a Source that delivers frames synchronously. It can be turned
// into a Source with Async.
type FrameReader interface {
	NumFrames() int
	FrameTime(i int) float64
	FrameAt(t float64) int

	//ReadFrame blocks until the frame i is read, or ctx is done.
	ReadFrame(ctx context.Context, i int) (*Frame, error)
}

// Async returns a Source that reads each requested frame from r in its own goroutine.
func Async(r FrameReader) Source {
	return asyncSource{r}
}

type asyncSource struct {
	FrameReader
}

func (a asyncSource) RequestFrame(ctx context.Context, i int) <-chan FrameResult {
	pipe := make(chan FrameResult, 1) //buffered, so the reader never blocks if nobody listens.
	go func() {
		f, err := a.ReadFrame(ctx, i)
		pipe <- FrameResult{Frame: f, Err: err}
	}()
	return pipe
}

//Errors

// DecoratedError is the interface for errors that all packages in this library implement. The Decorate method allows to add and retrieve info from the
// error, without changing it's type or wrapping it around something else.
type DecoratedError interface {
	Error() string
	Decorate(string) []string //Each call also returns the "decoration" slice of strings resulting from the current call. If passed an empty string, it should just return the current value, not add the empty string to the slice.
}

// TrajError is the interface for errors in trajectories
type TrajError interface {
	DecoratedError
	Critical() bool
	FileName() string
	Format() string
}

// LastFrameError has a useless function to distinguish the harmless errors (i.e. last frame) so  they can be
// filtered in a typeswith that looks for this interface.
type LastFrameError interface {
	TrajError
	NormalLastFrameTermination() //does nothing, just to separate this interface from other TrajError's
}
