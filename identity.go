/*
 * identity.go, part of gounwrap.
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

// Identity tells how the particles of a frame are matched with those of other
// frames: by their identifiers, if the frame has a usable set, or by their index otherwise.
type Identity struct {
	ids []int64 //nil means index identity
}

// ByID returns an identity that uses the given identifiers.
func ByID(ids []int64) Identity {
	return Identity{ids: ids}
}

// ByIndex returns an identity that uses the particle index.
func ByIndex() Identity {
	return Identity{}
}

// IdentityOf resolves the identity for the frame F. Identifiers that
// don't match the number of positions are ignored.
func IdentityOf(F *Frame) Identity {
	if F.IDs != nil && len(F.IDs) == F.Len() {
		return ByID(F.IDs)
	}
	return ByIndex()
}

// UsesIDs returns true if the identity uses particle identifiers.
func (I Identity) UsesIDs() bool {
	return I.ids != nil
}

// Key returns the identity key of the ith particle.
func (I Identity) Key(i int) int64 {
	if I.ids != nil {
		return I.ids[i]
	}
	return int64(i)
}
