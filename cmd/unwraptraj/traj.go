/*
 * traj.go, part of gounwrap.
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

package main

import (
	"path/filepath"
	"strconv"
	"strings"

	unwrap "github.com/rmera/gounwrap"
	"github.com/rmera/gounwrap/traj/dcd"
	"github.com/rmera/gounwrap/traj/stf"
	v3 "github.com/rmera/gounwrap/v3"
)

// trajectory is what the commands need from a trajectory file.
type trajectory interface {
	unwrap.FrameReader
	Len() int
	PBC() [3]bool
	Is2D() bool
	Dt() float64
	Close()
}

// frameWriter writes frames, with their box, to a trajectory file.
type frameWriter interface {
	WNext(coords *v3.Matrix, box ...[]float64) error
	Close() error
}

func isDCD(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".dcd")
}

// openTrajectory opens name as a DCD trajectory if it has the .dcd extension,
// and as an STF trajectory otherwise.
func openTrajectory(name string) (trajectory, error) {
	if isDCD(name) {
		opts := dcd.SourceOptions{Dt: cfg.Dt}
		if p := cfg.pbc(); p != nil {
			opts.PBC = *p
		}
		if cfg.Is2D != nil {
			opts.Is2D = *cfg.Is2D
		}
		s, err := dcd.NewSource(name, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := stf.NewSource(name, stf.SourceOptions{PBC: cfg.pbc(), Is2D: cfg.Is2D, Dt: cfg.Dt})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// createWriter creates the trajectory name, in the format given by its extension,
// for the frames of src.
func createWriter(name string, src trajectory, withCell bool) (frameWriter, error) {
	if isDCD(name) {
		w, err := dcd.NewWriter(name, src.Len(), float32(src.Dt()), withCell)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	h := map[string]string{}
	if s, ok := src.(*stf.Source); ok {
		h = s.Header()
	}
	flags := make([]string, 3)
	for i, p := range src.PBC() {
		flags[i] = strconv.FormatBool(p)
	}
	h[stf.HeaderPBC] = strings.Join(flags, " ")
	h[stf.HeaderDt] = strconv.FormatFloat(src.Dt(), 'g', -1, 64)
	if src.Is2D() {
		h[stf.HeaderDims] = "2"
	}
	w, err := stf.NewWriter(name, src.Len(), h)
	if err != nil {
		return nil, err
	}
	return w, nil
}
