/*
 * dcd.go, part of gounwrap.
 *
 * Copyright 2012 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

// Package dcd reads and writes CHARMM/NAMD binary (DCD) trajectories, including
// the unit cell block, and gives random access to their frames as an unwrap.Source.
package dcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	v3 "github.com/rmera/gounwrap/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

const mAXTITLE int32 = 80

// header offsets, in the 80-byte control block that follows the "CORD" magic number.
const (
	offFrames   = 0
	offNsavc    = 8
	offFixed    = 32
	offDelta    = 36
	offUnitCell = 40
	offFourDim  = 44
	offVersion  = 76
)

// DCDObj is a CHARMM/NAMD trajectory file opened for reading.
// Frames have a fixed size in the file, so any frame can be read directly.
type DCDObj struct {
	natoms    int32
	nframes   int
	readable  bool
	filename  string
	unitcell  bool //frames carry a unit cell block
	fourdim   bool
	delta     float32
	nsavc     int32
	dcd       *os.File
	start     int64 //offset of the first frame
	framesize int64
	buf       []byte
	endian    binary.ByteOrder
}

// New opens the DCD file filename for reading.
func New(filename string) (*DCDObj, error) {
	traj := new(DCDObj)
	traj.filename = filename
	if err := traj.initRead(filename); err != nil {
		if traj.dcd != nil {
			traj.dcd.Close()
		}
		return nil, errDecorate(err, "New")
	}
	return traj, nil
}

// Readable returns true if the object is ready to be read from.
// It doesnt guarantee that there is something to read.
func (D *DCDObj) Readable() bool {
	return D.readable
}

func (D *DCDObj) wrongFormat(msg string) error {
	return Error{WrongFormat + ": " + msg, D.filename, []string{"initRead"}, true}
}

// initRead reads the header of the file. It supports big and little endianness,
// and charmm or namd>=2.1 files without fixed atoms.
func (D *DCDObj) initRead(name string) error {
	wrapbinerr := func(err error) error {
		return Error{err.Error(), D.filename, []string{"binary.Read", "initRead"}, true}
	}
	D.endian = binary.LittleEndian
	var err error
	D.dcd, err = os.Open(name)
	if err != nil {
		return Error{UnableToOpen + ": " + err.Error(), D.filename, []string{"os.Open", "initRead"}, true}
	}
	var check int32
	if err := binary.Read(D.dcd, D.endian, &check); err != nil {
		return wrapbinerr(err)
	}
	//The first record has 84 bytes. If we don't read 84 the file is big endian.
	if check != 84 {
		D.endian = binary.BigEndian
		if int32(binary.BigEndian.Uint32(binary.LittleEndian.AppendUint32(nil, uint32(check)))) != 84 {
			return D.wrongFormat("not a DCD file")
		}
	}
	magic := make([]byte, 4)
	if err := binary.Read(D.dcd, D.endian, magic); err != nil {
		return wrapbinerr(err)
	}
	if string(magic) != "CORD" {
		return D.wrongFormat("wrong magic number")
	}
	buf := make([]byte, 80)
	if _, err := io.ReadFull(D.dcd, buf); err != nil {
		return wrapbinerr(err)
	}
	icntrl := func(off int) int32 { return int32(D.endian.Uint32(buf[off:])) }
	//X-plor sets the last int to zero, charmm sets it to its version number.
	if icntrl(offVersion) == 0 {
		return D.wrongFormat("X-plor DCD not supported")
	}
	if icntrl(offFixed) != 0 {
		return D.wrongFormat("fixed atoms not supported")
	}
	D.unitcell = icntrl(offUnitCell) != 0
	D.fourdim = icntrl(offFourDim) == 1
	D.nsavc = icntrl(offNsavc)
	D.delta = math.Float32frombits(D.endian.Uint32(buf[offDelta:]))
	if err := binary.Read(D.dcd, D.endian, &check); err != nil {
		return wrapbinerr(err)
	}
	if check != 84 {
		return D.wrongFormat("bad header record")
	}
	var titlesize, ntitle int32
	if err := binary.Read(D.dcd, D.endian, &titlesize); err != nil {
		return wrapbinerr(err)
	}
	if err := binary.Read(D.dcd, D.endian, &ntitle); err != nil {
		return wrapbinerr(err)
	}
	if ntitle < 0 || titlesize != 4+mAXTITLE*ntitle {
		return D.wrongFormat("bad title record")
	}
	if _, err := D.dcd.Seek(int64(mAXTITLE*ntitle), io.SeekCurrent); err != nil {
		return wrapbinerr(err)
	}
	var natoms [4]int32 //end of the title record, then the record with the number of atoms
	if err := binary.Read(D.dcd, D.endian, &natoms); err != nil {
		return wrapbinerr(err)
	}
	if natoms[0] != titlesize || natoms[1] != 4 || natoms[2] <= 0 || natoms[3] != 4 {
		return D.wrongFormat("bad atom number record")
	}
	D.natoms = natoms[2]
	D.start, err = D.dcd.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapbinerr(err)
	}
	block := int64(8 + 4*D.natoms)
	D.framesize = 3 * block
	if D.unitcell {
		D.framesize += 56
	}
	if D.fourdim {
		D.framesize += block
	}
	info, err := D.dcd.Stat()
	if err != nil {
		return wrapbinerr(err)
	}
	rest := info.Size() - D.start
	D.nframes = int(rest / D.framesize)
	//the 4th dimension block is missing from the last frame in some files.
	if D.fourdim && rest%D.framesize == D.framesize-block {
		D.nframes++
	}
	D.buf = make([]byte, D.framesize)
	D.readable = true
	return nil
}

// Len returns the number of atoms per frame.
func (D *DCDObj) Len() int {
	return int(D.natoms)
}

// NumFrames returns the number of complete frames in the file.
func (D *DCDObj) NumFrames() int {
	return D.nframes
}

// HasCell returns true if the frames of the trajectory carry a unit cell.
func (D *DCDObj) HasCell() bool {
	return D.unitcell
}

// Dt returns the time between frames written in the header, which is
// in the units of the program that wrote the file, or 0 if the header doesn't say.
func (D *DCDObj) Dt() float64 {
	if D.delta <= 0 || D.nsavc <= 0 {
		return 0
	}
	return float64(D.delta) * float64(D.nsavc)
}

// Seek sets the frame that the next call to Next will read.
func (D *DCDObj) Seek(frame int) error {
	if !D.readable {
		return Error{TrajUnIniRead, D.filename, []string{"Seek"}, true}
	}
	if frame < 0 || frame >= D.nframes {
		return Error{fmt.Sprintf("frame %d requested, but the trajectory has %d", frame, D.nframes), D.filename, []string{"Seek"}, true}
	}
	if _, err := D.dcd.Seek(D.start+int64(frame)*D.framesize, io.SeekStart); err != nil {
		return Error{err.Error(), D.filename, []string{"dcd.Seek", "Seek"}, true}
	}
	return nil
}

// Next reads the next frame into keep, which can be nil to skip the frame. If a box
// slice with at least 9 elements is given, and the trajectory has a unit cell, the cell
// vectors are put in it, one after the other. When there are no more frames, the error
// returned implements unwrap.LastFrameError.
func (D *DCDObj) Next(keep *v3.Matrix, box ...[]float64) error {
	if !D.readable {
		return Error{TrajUnIniRead, D.filename, []string{"Next"}, true}
	}
	need := D.framesize
	if D.fourdim {
		need -= int64(8 + 4*D.natoms)
	}
	buf := D.buf[:need]
	if _, err := io.ReadFull(D.dcd, buf); err != nil {
		if err == io.EOF {
			return newlastFrameError(D.filename, "Next")
		}
		return Error{ReadError + ": " + err.Error(), D.filename, []string{"Next"}, true}
	}
	if D.fourdim {
		//the block might be missing in the last frame, so a failure here is not an error.
		D.dcd.Seek(int64(8+4*D.natoms), io.SeekCurrent)
	}
	r := bytes.NewReader(buf)
	var cell [6]float64
	if D.unitcell {
		if err := D.readBlock(r, 48, &cell); err != nil {
			return errDecorate(err, "Next")
		}
	}
	if keep != nil && keep.NVecs() != int(D.natoms) {
		return Error{fmt.Sprintf("%d coordinates requested, but the frames have %d", keep.NVecs(), D.natoms), D.filename, []string{"Next"}, true}
	}
	field := make([]float32, D.natoms)
	for j := 0; j < 3; j++ {
		if err := D.readBlock(r, 4*D.natoms, field); err != nil {
			return errDecorate(err, "Next")
		}
		if keep == nil {
			continue
		}
		for i, v := range field {
			keep.Set(i, j, float64(v))
		}
	}
	if D.unitcell && len(box) > 0 && len(box[0]) >= 9 {
		vecs := cellVectors(cell)
		for i, v := range vecs {
			box[0][3*i], box[0][3*i+1], box[0][3*i+2] = v.X, v.Y, v.Z
		}
	}
	return nil
}

// readBlock reads one Fortran record of size bytes into data, checking the
// record markers around it.
func (D *DCDObj) readBlock(r io.Reader, size int32, data any) error {
	var check int32
	if err := binary.Read(r, D.endian, &check); err != nil {
		return Error{ReadError + ": " + err.Error(), D.filename, []string{"readBlock"}, true}
	}
	if check != size {
		return Error{fmt.Sprintf("%s: record of %d bytes, expected %d", WrongFormat, check, size), D.filename, []string{"readBlock"}, true}
	}
	if err := binary.Read(r, D.endian, data); err != nil {
		return Error{ReadError + ": " + err.Error(), D.filename, []string{"readBlock"}, true}
	}
	if err := binary.Read(r, D.endian, &check); err != nil {
		return Error{ReadError + ": " + err.Error(), D.filename, []string{"readBlock"}, true}
	}
	if check != size {
		return Error{WrongFormat + ": failed record check", D.filename, []string{"readBlock"}, true}
	}
	return nil
}

// Close closes the file.
func (D *DCDObj) Close() {
	if !D.readable {
		return
	}
	D.dcd.Close()
	D.readable = false
}

// cellVectors builds the cell vectors from a CHARMM unit cell record, which has
// the lengths and angles in the order a, gamma, b, beta, alpha, c. Angles are given in
// degrees or, in newer NAMD files, as cosines. The a vector is put along x and b
// in the xy plane.
func cellVectors(u [6]float64) [3]r3.Vec {
	a, b, c := u[0], u[2], u[5]
	cg, cb, ca := u[1], u[3], u[4]
	if math.Abs(cg) > 1 || math.Abs(cb) > 1 || math.Abs(ca) > 1 {
		cg = math.Cos(cg * math.Pi / 180)
		cb = math.Cos(cb * math.Pi / 180)
		ca = math.Cos(ca * math.Pi / 180)
	}
	sg := math.Sqrt(1 - cg*cg)
	cx := cb
	cy := (ca - cb*cg) / sg
	cz := math.Sqrt(max(0, 1-cx*cx-cy*cy))
	return [3]r3.Vec{
		{X: a},
		{X: b * cg, Y: b * sg},
		{X: c * cx, Y: c * cy, Z: c * cz},
	}
}

// cellParameters is the inverse of cellVectors, with angles in degrees.
func cellParameters(box []float64) [6]float64 {
	A := r3.Vec{X: box[0], Y: box[1], Z: box[2]}
	B := r3.Vec{X: box[3], Y: box[4], Z: box[5]}
	C := r3.Vec{X: box[6], Y: box[7], Z: box[8]}
	a, b, c := r3.Norm(A), r3.Norm(B), r3.Norm(C)
	angle := func(u, v r3.Vec, lu, lv float64) float64 {
		return math.Acos(max(-1, min(1, r3.Dot(u, v)/(lu*lv)))) * 180 / math.Pi
	}
	return [6]float64{a, angle(A, B, a, b), b, angle(A, C, a, c), angle(B, C, b, c), c}
}

//Errors

// errDecorate decorates err with the caller's name before returning it, if err is
// one of the errors of this package. Other errors are returned as they are.
func errDecorate(err error, caller string) error {
	switch e := err.(type) {
	case Error:
		e.deco = e.Decorate(caller)
		return e
	case *lastFrameError:
		e.deco = e.Decorate(caller)
		return e
	}
	return err
}

// Error is the general structure for DCD trajectory errors. It fullfills unwrap.TrajError
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	return fmt.Sprintf("dcd file %s error: %s", err.filename, err.message)
}

// Decorate Adds new information to the error
func (err Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// FileName returns the file to which the failing trajectory was associated
func (err Error) FileName() string { return err.filename }

// Format returns the format of the file (always "dcd") associated to the error
func (err Error) Format() string { return "dcd" }

// Critical returns true if the error is critical, false otherwise
func (err Error) Critical() bool { return err.critical }

const (
	TrajUnIniRead  = "Traj object uninitialized to read"
	TrajUnIniWrite = "Traj object uninitialized to write"
	ReadError      = "Error reading frame"
	UnableToOpen   = "Unable to open file"
	WrongFormat    = "Wrong format in the DCD file or frame"
	NotEnoughSpace = "Not enough space in passed slices"
)

// lastFrameError implements unwrap.LastFrameError
type lastFrameError struct {
	deco     []string
	fileName string
}

// NormalLastFrameTermination does nothing
func (E *lastFrameError) NormalLastFrameTermination() {}

func (E *lastFrameError) FileName() string { return E.fileName }

func (E *lastFrameError) Error() string { return "EOF" }

func (E *lastFrameError) Critical() bool { return false }

func (E *lastFrameError) Format() string { return "dcd" }

func (E *lastFrameError) Decorate(deco string) []string {
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

func newlastFrameError(filename string, caller string) *lastFrameError {
	e := new(lastFrameError)
	e.fileName = filename
	e.deco = []string{caller}
	return e
}
