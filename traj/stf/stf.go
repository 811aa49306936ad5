/*
 * stf.go, part of gounwrap.
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

package stf

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	unwrap "github.com/rmera/gounwrap"
	v3 "github.com/rmera/gounwrap/v3"
)

// DefaultPrec is the number of decimal places kept for coordinates when the header
// doesn't say otherwise.
const DefaultPrec = 2

//Write!

// StfW writes STF trajectories.
type StfW struct {
	f         *os.File
	h         io.WriteCloser
	w         *bufio.Writer
	natoms    int
	filename  string
	writeable bool
	prec      int
}

// Close flushes and closes the trajectory. It can not be used after this call.
func (S *StfW) Close() error {
	if S == nil || !S.writeable {
		return nil
	}
	S.writeable = false
	err := S.w.Flush()
	if err2 := S.h.Close(); err == nil {
		err = err2
	}
	if err2 := S.f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return Error{"Can't close the trajectory: " + err.Error(), S.filename, []string{"Close"}, true}
	}
	return nil
}

// Len returns the number of atoms per frame.
func (S *StfW) Len() int {
	return S.natoms
}

// WNext writes coord as the next frame of the trajectory. If box is given, its first
// element must contain the 9 components of the cell vectors a, b and c.
func (S *StfW) WNext(coord *v3.Matrix, box ...[]float64) error {
	if !S.writeable {
		return Error{TrajUnIniWrite, S.filename, []string{"WNext"}, true}
	}
	if coord == nil {
		return Error{NilCoordinates, S.filename, []string{"WNext"}, true}
	}
	v := coord.NVecs()
	if v != S.natoms {
		return Error{fmt.Sprintf("%d coordinates given, but %d expected", v, S.natoms), S.filename, []string{"WNext"}, true}
	}
	var temp [3]int64
	var floats [3]float64
	for i := 0; i < v; i++ {
		floats[0] = coord.At(i, 0)
		floats[1] = coord.At(i, 1)
		floats[2] = coord.At(i, 2)
		if _, err := S.w.WriteString(coordsEncode(floats, temp, S.prec)); err != nil {
			return Error{"Can't write frame: " + err.Error(), S.filename, []string{"WNext"}, true}
		}
	}
	line := "*\n"
	if len(box) > 0 && len(box[0]) >= 9 {
		fields := make([]string, 0, 10)
		fields = append(fields, "*")
		for _, b := range box[0][:9] {
			fields = append(fields, strconv.FormatFloat(b, 'g', -1, 64))
		}
		line = strings.Join(fields, " ") + "\n"
	}
	if _, err := S.w.WriteString(line); err != nil {
		return Error{"Can't write frame: " + err.Error(), S.filename, []string{"WNext"}, true}
	}
	return nil
}

// compressor picks the compression from the last letter of the file name:
// 'z' for gzip, 'r' for raw deflate, zstd for anything else.
func compressor(name string, level int) func(io.Writer) (io.WriteCloser, error) {
	switch strings.ToLower(name[len(name)-1:]) {
	case "z":
		return func(a io.Writer) (io.WriteCloser, error) { return gzip.NewWriterLevel(a, min(level, gzip.BestCompression)) }
	case "r":
		return func(a io.Writer) (io.WriteCloser, error) { return flate.NewWriter(a, min(level, flate.BestCompression)) }
	default:
		return func(a io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(a, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		}
	}
}

// NewWriter creates the STF file name for frames of natoms atoms. The header entries are written
// sorted by key. The "prec" key, if present, sets the number of decimal places kept.
// Only the first compressionLevel given is used, and only for gzip and deflate files.
func NewWriter(name string, natoms int, header map[string]string, compressionLevel ...int) (*StfW, error) {
	var level int = 9
	if len(compressionLevel) > 0 {
		level = compressionLevel[0]
	}
	if name == "" {
		return nil, Error{UnableToOpen, name, []string{"NewWriter"}, true}
	}
	S := new(StfW)
	S.filename = name
	S.prec = DefaultPrec
	if p, ok := header["prec"]; ok {
		prec, err := strconv.Atoi(p)
		if err == nil && prec > 0 {
			S.prec = prec
		} else {
			slog.Warn("Invalid precision for trajectory. Will use the default", "file", name, "prec", p)
			header = copyHeader(header)
			header["prec"] = strconv.Itoa(DefaultPrec)
		}
	}
	var err error
	S.f, err = os.Create(name)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"NewWriter"}, true}
	}
	S.h, err = compressor(name, level)(S.f)
	if err != nil {
		S.f.Close()
		return nil, Error{"Can't start compression: " + err.Error(), name, []string{"NewWriter"}, true}
	}
	S.w = bufio.NewWriter(S.h)
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(S.w, "%s=%s\n", k, header[k])
	}
	fmt.Fprintf(S.w, "** %d\n", natoms)
	S.natoms = natoms
	S.writeable = true
	return S, nil
}

func copyHeader(m map[string]string) map[string]string {
	r := make(map[string]string, len(m))
	for k, v := range m {
		r[k] = v
	}
	return r
}

//Read!

// StfR reads STF trajectories.
type StfR struct {
	f        *os.File
	dec      io.ReadCloser
	h        *bufio.Reader
	natoms   int
	filename string
	prec     int
	readable bool
	header   map[string]string
}

// The zstd decoder's Close doesn't return an error, so it is not an io.ReadCloser.
type stdql struct {
	*zstd.Decoder
}

// Close Closes the object. It can not be used after this call
func (s stdql) Close() error {
	s.Decoder.Close()
	return nil
}

func scale(prec int) float64 {
	if prec == DefaultPrec {
		return 100.0
	}
	return math.Pow(10.0, float64(prec))
}

func coordsEncode(f [3]float64, temp [3]int64, prec int) string {
	p := scale(prec)
	for i, v := range f {
		temp[i] = int64(math.RoundToEven(v * p))
	}
	return fmt.Sprintf("%d %d %d\n", temp[0], temp[1], temp[2])
}

func decompressor(name string) func(io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(name[len(name)-1:]) {
	case "z":
		return func(a io.Reader) (io.ReadCloser, error) { return gzip.NewReader(a) }
	case "r":
		return func(a io.Reader) (io.ReadCloser, error) { return flate.NewReader(a), nil }
	default:
		return func(a io.Reader) (io.ReadCloser, error) {
			r, err := zstd.NewReader(a)
			if err != nil {
				return nil, err
			}
			return stdql{r}, nil
		}
	}
}

// New opens a STF trajectory for reading, and returns a pointer
// to the handle, a map with the metadata (empty if the file has none)
// and error or nil.
func New(name string) (*StfR, map[string]string, error) {
	if name == "" {
		return nil, nil, Error{UnableToOpen, name, []string{"New"}, true}
	}
	S := new(StfR)
	S.natoms = -1
	S.filename = name
	S.prec = DefaultPrec
	S.header = make(map[string]string)
	var err error
	S.f, err = os.Open(S.filename)
	if err != nil {
		return nil, nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"New"}, true}
	}
	S.dec, err = decompressor(name)(bufio.NewReader(S.f))
	if err != nil {
		S.f.Close()
		return nil, nil, Error{"Can't read header " + err.Error(), S.filename, []string{"New"}, true}
	}
	S.h = bufio.NewReader(S.dec)
	for {
		str, err := S.h.ReadString('\n')
		if err != nil {
			S.closeFiles()
			return nil, nil, Error{"Can't read header " + err.Error(), S.filename, []string{"New"}, true}
		}
		str = strings.TrimSuffix(str, "\n")
		if strings.HasPrefix(str, "**") {
			nat := strings.Fields(str)
			if len(nat) < 2 {
				S.closeFiles()
				return nil, nil, Error{fmt.Sprintf("Can't read atom number from '%s'", str), S.filename, []string{"New"}, true}
			}
			S.natoms, err = strconv.Atoi(nat[1])
			if err != nil || S.natoms <= 0 {
				S.closeFiles()
				return nil, nil, Error{fmt.Sprintf("Can't read atom number from '%s'", nat[1]), S.filename, []string{"New"}, true}
			}
			break
		}
		k, v, ok := strings.Cut(str, "=")
		if !ok {
			S.closeFiles()
			return nil, nil, Error{"Malformed header line: " + str, S.filename, []string{"New"}, true}
		}
		S.header[k] = v
	}
	if p, ok := S.header["prec"]; ok {
		prec, err := strconv.Atoi(p)
		if err == nil && prec > 0 {
			S.prec = prec
		} else {
			slog.Warn("Invalid precision for trajectory. Will assume the default", "file", S.filename, "prec", p)
		}
	}
	S.readable = true
	return S, copyHeader(S.header), nil
}

// Readable returns true if the handle is readable (if it is possible to call Next on it)
func (S *StfR) Readable() bool {
	return S.readable
}

func coordsDecode(str string, temp *[3]float64, prec int) error {
	p := scale(prec)
	s := strings.Fields(str)
	if len(s) < 3 {
		return fmt.Errorf("Ill formated coordinates line in stf: Too few fields: %s", str)
	}
	if len(s) > 3 {
		return fmt.Errorf("Ill formated coordinates line in stf: Too many fields: %s", str)
	}
	for i, v := range s {
		f, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("Can't parse coordinate %d (%s). Error: %s", i, v, err.Error())
		}
		temp[i] = float64(f) / p
	}
	return nil
}

// Next puts in the given matrix (c) the coordinates for the next frame of the trajectory
// and, if given, and the information is present, puts the box vector information in box.
// If c is nil, the frame is read and checked, but discarded.
// At the end of the trajectory it returns an error that implements unwrap.LastFrameError.
func (S *StfR) Next(c *v3.Matrix, box ...[]float64) error {
	b, err := S.next(c)
	if err != nil {
		return err
	}
	if len(box) > 0 && len(box[0]) >= 9 {
		if b == nil {
			slog.Warn("Trajectory frame does not contain (correct) box information", "file", S.filename)
			clear(box[0])
		} else {
			copy(box[0], b)
		}
	}
	return nil
}

// next reads a frame and returns its box, or nil if the frame has no
// valid box.
func (S *StfR) next(c *v3.Matrix) ([]float64, error) {
	if !S.readable {
		return nil, Error{TrajUnIniRead, S.filename, []string{"Next"}, true}
	}
	if c != nil && c.NVecs() != S.natoms {
		return nil, Error{fmt.Sprintf("matrix for %d atoms given, but the trajectory has %d", c.NVecs(), S.natoms), S.filename, []string{"Next"}, true}
	}
	var temp [3]float64
	for i := 0; i < S.natoms; i++ {
		b, err := S.h.ReadString('\n')
		if err != nil {
			if err == io.EOF && i == 0 && b == "" {
				//nothing bad happened here, the trajectory just ended.
				S.Close()
				return nil, newlastFrameError(S.filename, "Next")
			}
			return nil, Error{ReadError + ": " + err.Error(), S.filename, []string{"Next"}, true}
		}
		if strings.HasPrefix(b, "*") {
			return nil, Error{WrongFormat + ": too few atoms in frame", S.filename, []string{"Next"}, true}
		}
		if err := coordsDecode(strings.TrimSuffix(b, "\n"), &temp, S.prec); err != nil {
			return nil, Error{err.Error(), S.filename, []string{"Next"}, true}
		}
		if c == nil {
			continue //We ignore this whole frame, reading the content but not saving it.
		}
		for j, v := range temp {
			c.Set(i, j, v)
		}
	}
	s, err := S.h.ReadString('\n')
	if err != nil && s == "" {
		return nil, Error{"Can't read the frame termination mark: " + err.Error(), S.filename, []string{"Next"}, true}
	}
	if !strings.HasPrefix(s, "*") {
		return nil, Error{WrongFormat + ": wrong number of atoms in frame", S.filename, []string{"Next"}, true}
	}
	fields := strings.Fields(s)
	if len(fields) < 10 { // The "*" and the 9 numbers
		return nil, nil
	}
	box := make([]float64, 9)
	for j, v := range fields[1:10] {
		box[j], err = strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("Failed to read box in a frame", "file", S.filename, "field", v)
			return nil, nil
		}
	}
	return box, nil
}

func (S *StfR) closeFiles() {
	if S.dec != nil {
		S.dec.Close()
	}
	S.f.Close()
}

// Close closes the object, and marks it as unreadable
func (S *StfR) Close() {
	if !S.readable {
		return
	}
	S.closeFiles()
	S.readable = false
}

// Len returns the number of atoms in each frame of the trajectory.
func (S *StfR) Len() int {
	return S.natoms
}

// Header returns a copy of the metadata of the trajectory.
func (S *StfR) Header() map[string]string {
	return copyHeader(S.header)
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

// Error is the general structure for STF trajectory errors. It fullfills unwrap.TrajError
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	return fmt.Sprintf("stf file %s error: %s", err.filename, err.message)
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

// Format returns the format of the file (always "stf") associated to the error
func (err Error) Format() string { return "stf" }

// Critical returns true if the error is critical, false otherwise
func (err Error) Critical() bool { return err.critical }

const (
	TrajUnIniRead  = "Traj object uninitialized to read"
	TrajUnIniWrite = "Traj object uninitialized to write"
	ReadError      = "Error reading frame"
	UnableToOpen   = "Unable to open file"
	NilCoordinates = "Given nil coordinates"
	WrongFormat    = "Wrong format in the STF file or frame"
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

func (E *lastFrameError) Format() string { return "stf" }

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

var (
	_ unwrap.TrajError      = Error{}
	_ unwrap.LastFrameError = &lastFrameError{}
)
