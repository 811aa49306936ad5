/*
 * doc.go, part of gounwrap.
 *
 * Copyright 2021 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
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

/*
Package stf implements the simple trajectory format (STF). STF aims to produce reasonably
small files and to be very easy to read and write, so readers/writers can be easily
implemented in other programing languages, while also being reasonably fast to write
and, especially, to read. The package also provides Source, which lets the unwrap
package scan and unwrap STF trajectories.


******************** Format Specification   ***************************************************


An STF file has the extension stf, and it is compressed with z-standard (zstd). This
implementation also reads and writes gzip (names ending in 'z') and raw deflate
(names ending in 'r') files.

A STF file may only contain ASCII symbols.

A STF file has a "header" starting in the first line, and ending with a line that starts with the
characters "**" followed by one or more spaces, and the number of atoms per frame.

Each line of the header must be a pair key=value. The precision (an integer greater than 0,
see below) should be included in the header, with the key "prec". For example:

	prec=2

This implementation uses a precision of 2 if the header doesn't give one. Other keys
understood by Source are "dt" (time between frames), "pbc" (periodic flags of the
three cell axes, for instance "1 1 0") and "dim" (2 for 2D systems).

After the header, the file has one line per atom, per frame. Each line contains 3 integers,
corresponding to the x y and z cartesian coordinates, respectively, and nothing more.
Each integer is the respective coordinate multiplied by 10 to the power of (precision),
and rounded.

Each frame ends with a line starting with the character "*" (no whitespaces before), optionally
followed by one or more whitespaces and 9 floating-point numbers separated by spaces. If present,
these numbers are the components of the vectors a, b and c defining the simulation box,
one vector after the other.

The "**" sequence may only be used as a header termination, as described above and can not appear
anywhere else in the file.

***************************************************************************************************/
package stf
