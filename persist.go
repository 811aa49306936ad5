/*
 * persist.go, part of gounwrap.
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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

/*The records are stored in a little-endian binary stream:

	magic "UNWR"
	uint16 version
	float64 processed-up-to time
	uint64 number of crossings, followed by that many (int64 id, float64 time, int8 axis, int16 shift)
	uint64 number of flips, followed by that many (float64 time, 3 x int32 counters)   (version >= 1 only)

Version 0 files have no flip section.*/

const (
	recordsMagic   = "UNWR"
	recordsVersion = 1
)

var le = binary.LittleEndian

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countReader struct {
	r io.Reader
	n int64
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// WriteTo writes the records to w in the current binary format. It implements io.WriterTo.
func (S *Store) WriteTo(w io.Writer) (int64, error) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	cw := &countWriter{w: w}
	bw := bufio.NewWriter(cw)
	err := S.write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		return cw.n, Error{message: "unwrap: can't write records", deco: []string{"Store.WriteTo"}, critical: true, kind: OtherError, cause: err}
	}
	return cw.n, nil
}

func (S *Store) write(w io.Writer) error {
	put := func(v any) error { return binary.Write(w, le, v) }
	if _, err := io.WriteString(w, recordsMagic); err != nil {
		return err
	}
	if err := put(uint16(recordsVersion)); err != nil {
		return err
	}
	if err := put(S.upTo); err != nil {
		return err
	}
	if err := put(uint64(S.ncross)); err != nil {
		return err
	}
	for _, id := range S.ids() {
		for _, c := range S.crossings[id] {
			//binary.Write packs struct fields without padding.
			rec := struct {
				ID    int64
				Time  float64
				Axis  int8
				Shift int16
			}{c.ID, c.Time, c.Axis, c.Shift}
			if err := put(&rec); err != nil {
				return err
			}
		}
	}
	if err := put(uint64(len(S.flips))); err != nil {
		return err
	}
	for _, f := range S.flips {
		if err := put(&f); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom replaces the content of the store with the records read from r, which
// can be in any supported version of the format. It implements io.ReaderFrom.
// The store is only modified if the whole stream could be read.
func (S *Store) ReadFrom(r io.Reader) (int64, error) {
	cr := &countReader{r: r}
	ns, err := readRecords(bufio.NewReader(cr))
	if err != nil {
		return cr.n, errDecorate(err, "Store.ReadFrom")
	}
	S.mu.Lock()
	defer S.mu.Unlock()
	S.resetLocked()
	S.crossings = ns.crossings
	S.ncross = ns.ncross
	S.flips = ns.flips
	S.upTo = ns.upTo
	return cr.n, nil
}

func badFormat(format string, args ...any) error {
	return ErrBadFormat.withCause(fmt.Errorf(format, args...))
}

// maxPrealloc bounds the memory reserved from a count read in the stream.
const maxPrealloc = 1 << 16

func readRecords(r io.Reader) (*Store, error) {
	get := func(v any) error {
		err := binary.Read(r, le, v)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	magic := make([]byte, len(recordsMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, badFormat("reading header: %w", err)
	}
	if string(magic) != recordsMagic {
		return nil, badFormat("wrong magic %q", magic)
	}
	var version uint16
	if err := get(&version); err != nil {
		return nil, badFormat("reading version: %w", err)
	}
	if version > recordsVersion {
		return nil, badFormat("unsupported version %d", version)
	}
	ns := NewStore()
	if err := get(&ns.upTo); err != nil {
		return nil, badFormat("reading processed time: %w", err)
	}
	if math.IsNaN(ns.upTo) {
		return nil, badFormat("processed time is NaN")
	}
	var n uint64
	if err := get(&n); err != nil {
		return nil, badFormat("reading crossing count: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		var rec struct {
			ID    int64
			Time  float64
			Axis  int8
			Shift int16
		}
		if err := get(&rec); err != nil {
			return nil, badFormat("reading crossing %d of %d: %w", i+1, n, err)
		}
		if rec.Axis < 0 || rec.Axis > 2 {
			return nil, badFormat("crossing %d has axis %d", i+1, rec.Axis)
		}
		ns.crossings[rec.ID] = append(ns.crossings[rec.ID], Crossing{ID: rec.ID, Time: rec.Time, Axis: rec.Axis, Shift: rec.Shift})
	}
	ns.ncross = int(n)
	if version == 0 {
		return ns, nil
	}
	if err := get(&n); err != nil {
		return nil, badFormat("reading flip count: %w", err)
	}
	ns.flips = make([]Flip, 0, min(n, maxPrealloc))
	for i := uint64(0); i < n; i++ {
		var f Flip
		if err := get(&f); err != nil {
			return nil, badFormat("reading flip %d of %d: %w", i+1, n, err)
		}
		ns.flips = append(ns.flips, f)
	}
	return ns, nil
}

// Save writes the records, compressed with zstd, to the file name.
func (S *Store) Save(name string) error {
	fout, err := os.Create(name)
	if err != nil {
		return Error{message: "unwrap: can't create records file " + name, deco: []string{"Store.Save"}, critical: true, cause: err}
	}
	defer fout.Close()
	enc, err := zstd.NewWriter(fout, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return Error{message: "unwrap: can't start compression for " + name, deco: []string{"Store.Save"}, critical: true, cause: err}
	}
	if _, err := S.WriteTo(enc); err != nil {
		enc.Close()
		return errDecorate(err, "Store.Save")
	}
	if err := enc.Close(); err != nil {
		return Error{message: "unwrap: can't finish compression for " + name, deco: []string{"Store.Save"}, critical: true, cause: err}
	}
	return fout.Close()
}

// Load replaces the content of the store with the records in the zstd-compressed file name.
func (S *Store) Load(name string) error {
	fin, err := os.Open(name)
	if err != nil {
		return Error{message: "unwrap: can't open records file " + name, deco: []string{"Store.Load"}, critical: true, cause: err}
	}
	defer fin.Close()
	dec, err := zstd.NewReader(fin)
	if err != nil {
		return Error{message: "unwrap: can't start decompression for " + name, deco: []string{"Store.Load"}, critical: true, cause: err}
	}
	defer dec.Close()
	if _, err := S.ReadFrom(dec); err != nil {
		return errDecorate(err, "Store.Load")
	}
	return nil
}
