/*
 * errors.go, part of gounwrap.
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
)

// ErrorKind classifies the errors returned by this package.
type ErrorKind int

const (
	OtherError  ErrorKind = iota
	ConfigError           //the requested operation makes no sense with the current settings.
	DataError             //the input frames lack something, or are inconsistent.
	StaleError            //the records do not cover the requested time.
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigError:
		return "configuration error"
	case DataError:
		return "data error"
	case StaleError:
		return "stale records"
	default:
		return "error"
	}
}

// Error is the error type for the unwrap package. Two Errors are considered
// the same by errors.Is if their messages are equal, so the sentinels below
// can be compared against decorated copies.
type Error struct {
	message  string
	deco     []string
	critical bool
	kind     ErrorKind
	cause    error
}

// Error returns a string with an error message.
func (err Error) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("%s: %s", err.message, err.cause.Error())
	}
	return err.message
}

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

// Critical returns whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }

// Kind returns the class of the error.
func (err Error) Kind() ErrorKind { return err.kind }

// Is allows comparisons with errors.Is
func (err Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.message == err.message
}

// Unwrap returns the error that caused this one, if any.
func (err Error) Unwrap() error { return err.cause }

// withCause returns a copy of err that wraps cause.
func (err Error) withCause(cause error) Error {
	err.cause = cause
	return err
}

// errDecorate adds the caller's name to the decorations of err, if err is one of
// the errors of this package. Other errors are returned unchanged.
func errDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok {
		e.deco = e.Decorate(caller)
		return e
	}
	return err
}

// KindOf returns the ErrorKind of err, or OtherError if err does not come from
// this package.
func KindOf(err error) ErrorKind {
	var e Error
	if errors.As(err, &e) {
		return e.kind
	}
	return OtherError
}

var (
	ErrNoPBC           = Error{message: "unwrap: the simulation cell has no periodic boundary conditions", critical: true, kind: ConfigError}
	ErrNoCell          = Error{message: "unwrap: the frame has no simulation cell", critical: true, kind: DataError}
	ErrNoPositions     = Error{message: "unwrap: the frame has no particle positions", critical: true, kind: DataError}
	ErrNoBonds         = Error{message: "unwrap: the frame has no bond topology", critical: true, kind: DataError}
	ErrSingularCell    = Error{message: "unwrap: the simulation cell matrix is singular", critical: true, kind: DataError}
	ErrTopologyChanged = Error{message: "unwrap: the number of particles changed between frames", critical: true, kind: DataError}
	ErrNotScanned      = Error{message: "unwrap: the trajectory has not been scanned up to the requested time", critical: true, kind: StaleError}
	ErrInvalidated     = Error{message: "unwrap: the records were invalidated", critical: false, kind: StaleError}
	ErrScanInProgress  = Error{message: "unwrap: a scan is already running", critical: false, kind: ConfigError}
	ErrNoSource        = Error{message: "unwrap: no frame source set", critical: true, kind: ConfigError}
	ErrBadFormat       = Error{message: "unwrap: malformed unwrap records", critical: true, kind: DataError}
)
