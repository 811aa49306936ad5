/*
 * doc.go, part of gounwrap.
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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

/*
Package unwrap reconstructs continuous particle trajectories from simulation
snapshots whose coordinates are only known modulo a periodic cell.

Particles that leave the cell through one face re-enter through the opposite one,
so the stored coordinates jump by a cell vector. The package scans a trajectory
once, records every such boundary crossing (and the shear flips that
LAMMPS-like codes apply to tilted cells), and later uses the records to place
every particle back in the image it would occupy if it had never been wrapped.


	**Capabilities**

    Cells of any shape: orthogonal, triclinic, 2D, partially periodic.

    Background scans over any frame source, cancelable and resumable. The
	records obtained before a cancellation are kept and the next scan
	continues from them.

    Detection of triclinic cell flips, so sheared boxes give continuous
	trajectories.

    Correction of bond periodic image vectors, so bonds that cross a
	boundary are drawn whole.

    A fast path for trajectories that already carry per-particle image counters.

    Versioned, compressed persistence of the crossing records.


The coordinates of a frame are kept in a v3.Matrix (package
github.com/rmera/gounwrap/v3), a Nx3 gonum Dense matrix with one row per particle.
Trajectories in the compressed STF format can be read and written with the
traj/stf package, which also provides a frame Source for the scanner.

The State type ties everything together and is what most programs should use:

	st := unwrap.NewState(unwrap.WithInteractive(false))
	st.SetSource(src, "traj.stf")
	h, err := st.BeginScan(ctx, math.Inf(1))
	if err != nil {
		//...
	}
	if status, err := h.Wait(); err != nil || status != unwrap.Completed {
		//...
	}
	res, err := st.ApplyUnwrap(t, frame)

*/
package unwrap
