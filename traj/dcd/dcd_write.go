/*
 * dcd_write.go, part of gounwrap.
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

package dcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	v3 "github.com/rmera/gounwrap/v3"
)

// DCDWObj is a CHARMM/NAMD trajectory file opened for writing.
type DCDWObj struct {
	natoms   int32
	writable bool
	filename string
	unitcell bool
	frames   int32
	dcd      *os.File
	buf      bytes.Buffer
	fields   []float32
	endian   binary.ByteOrder
}

// NewWriter creates the DCD file filename for frames of natoms atoms, delta time units apart.
// If unitcell is true, every frame must be written with its box.
func NewWriter(filename string, natoms int, delta float32, unitcell bool) (*DCDWObj, error) {
	if natoms <= 0 {
		return nil, Error{"Trajectory not initialized correctly, the number of atoms must be positive", filename, []string{"NewWriter"}, true}
	}
	traj := &DCDWObj{natoms: int32(natoms), filename: filename, unitcell: unitcell, endian: binary.LittleEndian}
	if err := traj.initWrite(delta); err != nil {
		if traj.dcd != nil {
			traj.dcd.Close()
		}
		return nil, errDecorate(err, "NewWriter")
	}
	traj.fields = make([]float32, natoms)
	return traj, nil
}

// Close closes the file.
func (D *DCDWObj) Close() error {
	if !D.writable {
		return nil
	}
	D.writable = false
	if err := D.dcd.Close(); err != nil {
		return Error{err.Error(), D.filename, []string{"Close"}, true}
	}
	return nil
}

// Len returns the number of atoms per frame.
func (D *DCDWObj) Len() int {
	return int(D.natoms)
}

func (D *DCDWObj) initWrite(delta float32) error {
	var err error
	D.dcd, err = os.Create(D.filename)
	if err != nil {
		return Error{UnableToOpen + ": " + err.Error(), D.filename, []string{"os.Create", "initWrite"}, true}
	}
	var icntrl [20]int32
	icntrl[offNsavc/4] = 1
	icntrl[offDelta/4] = int32(math.Float32bits(delta))
	if D.unitcell {
		icntrl[offUnitCell/4] = 1
	}
	icntrl[offVersion/4] = 24 //charmm version, let's say, 24
	title := make([]byte, 2*mAXTITLE)
	copy(title, fmt.Sprintf("Written by gounwrap, %d atoms", D.natoms))
	w := &D.buf
	w.Reset()
	binary.Write(w, D.endian, int32(84))
	w.WriteString("CORD")
	binary.Write(w, D.endian, icntrl)
	binary.Write(w, D.endian, int32(84))
	binary.Write(w, D.endian, []int32{4 + 2*mAXTITLE, 2})
	w.Write(title)
	binary.Write(w, D.endian, []int32{4 + 2*mAXTITLE, 4, D.natoms, 4})
	if _, err := D.dcd.Write(w.Bytes()); err != nil {
		return Error{err.Error(), D.filename, []string{"dcd.Write", "initWrite"}, true}
	}
	D.writable = true
	return nil
}

// WNext writes the next frame to the trajectory. The box, 9 numbers with the cell vectors
// one after the other, is required if the file was created with a unit cell, and ignored
// otherwise. The cell is stored as lengths and angles, so it is read back with a along x
// and b in the xy plane.
func (D *DCDWObj) WNext(towrite *v3.Matrix, box ...[]float64) error {
	if !D.writable {
		return Error{TrajUnIniWrite, D.filename, []string{"WNext"}, true}
	}
	if towrite == nil {
		return Error{"got nil coordinates", D.filename, []string{"WNext"}, true}
	}
	if int32(towrite.NVecs()) != D.natoms {
		return Error{"Coordinates don't match the trajectory size", D.filename, []string{"WNext"}, true}
	}
	w := &D.buf
	w.Reset()
	if D.unitcell {
		if len(box) == 0 || len(box[0]) < 9 {
			return Error{"the trajectory needs a box for every frame", D.filename, []string{"WNext"}, true}
		}
		D.writeBlock(cellParameters(box[0]), 48)
	}
	for j := 0; j < 3; j++ {
		for i := range D.fields {
			D.fields[i] = float32(towrite.At(i, j))
		}
		D.writeBlock(D.fields, 4*D.natoms) //the size goes in bytes
	}
	if _, err := D.dcd.Write(w.Bytes()); err != nil {
		return Error{err.Error(), D.filename, []string{"dcd.Write", "WNext"}, true}
	}
	D.frames++
	return D.updateFrames()
}

// writeBlock adds data to the buffer as a Fortran record of size bytes.
func (D *DCDWObj) writeBlock(data any, size int32) {
	binary.Write(&D.buf, D.endian, size)
	binary.Write(&D.buf, D.endian, data)
	binary.Write(&D.buf, D.endian, size)
}

// DCD requires the number of frames at the begining, so it is updated after each write.
func (D *DCDWObj) updateFrames() error {
	if _, err := D.dcd.WriteAt(D.endian.(binary.AppendByteOrder).AppendUint32(nil, uint32(D.frames)), 8+offFrames); err != nil {
		return Error{err.Error(), D.filename, []string{"dcd.WriteAt", "updateFrames"}, true}
	}
	return nil
}
