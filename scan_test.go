/*
 * scan_test.go, part of gounwrap.
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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestScanCompletes(Te *testing.T) {
	tr := randomWalk(triclinic(), 10, 15, 0.1, 7)
	src := &memSource{frames: withoutImages(tr.frames)}
	s := NewStore()
	h := Scan(context.Background(), Async(src), s, ScanOptions{UpTo: math.Inf(1)})
	var last Progress
	for p := range h.Updates() {
		last = p
	}
	status, err := h.Wait()
	if err != nil || status != Completed {
		Te.Fatalf("scan ended with %v, %v", status, err)
	}
	if last.Status != Completed || last.Frame != 15 || last.Total != 15 {
		Te.Errorf("unexpected final progress %+v", last)
	}
	if last.String() != "Processed trajectory frame 15 of 15." {
		Te.Errorf("unexpected progress text %q", last.String())
	}
	if s.ProcessedUpTo() != 14 {
		Te.Errorf("processed up to %v", s.ProcessedUpTo())
	}
	if !slices.Equal(src.reads, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}) {
		Te.Errorf("frames read out of order: %v", src.reads)
	}
}

// The scan reports whether particles are followed by identifier or by position in the frame.
func TestScanLogsIdentity(Te *testing.T) {
	tr := randomWalk(triclinic(), 3, 4, 0.1, 3)
	frames := withoutImages(tr.frames)
	for _, f := range frames {
		f.IDs = []int64{10, 20, 30}
	}
	for _, byID := range []bool{true, false} {
		if !byID {
			for _, f := range frames {
				f.IDs = nil
			}
		}
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := Scan(context.Background(), Async(&memSource{frames: frames}), NewStore(), ScanOptions{UpTo: math.Inf(1), Logger: log})
		if _, err := h.Wait(); err != nil {
			Te.Fatal(err)
		}
		want := "by_id=false"
		if byID {
			want = "by_id=true"
		}
		if !strings.Contains(buf.String(), want) {
			Te.Errorf("expected %s in the scan log:\n%s", want, buf.String())
		}
	}
}

func TestScanUpTo(Te *testing.T) {
	tr := randomWalk(triclinic(), 10, 15, 0.1, 7)
	s := NewStore()
	h := Scan(context.Background(), Async(&memSource{frames: withoutImages(tr.frames)}), s, ScanOptions{UpTo: 6.5})
	if status, err := h.Wait(); err != nil || status != Completed {
		Te.Fatalf("scan ended with %v, %v", status, err)
	}
	if s.ProcessedUpTo() != 6 {
		Te.Errorf("scanned up to %v, not 6", s.ProcessedUpTo())
	}
	//nothing left to do.
	h = Scan(context.Background(), Async(&memSource{frames: withoutImages(tr.frames)}), s, ScanOptions{UpTo: 6})
	if status, err := h.Wait(); err != nil || status != Completed {
		Te.Fatalf("empty scan ended with %v, %v", status, err)
	}
}

// waitFrame reads the updates of h until the frame n has been processed.
func waitFrame(Te *testing.T, h *ScanHandle, n int) {
	Te.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case p, ok := <-h.Updates():
			if !ok {
				Te.Fatalf("scan ended before frame %d", n)
			}
			if p.Frame >= n {
				return
			}
		case <-timeout:
			Te.Fatalf("timeout waiting for frame %d", n)
		}
	}
}

func TestCancelAndResume(Te *testing.T) {
	tr := randomWalk(triclinic(), 15, 30, 0.1, 11)
	frames := withoutImages(tr.frames)
	full, _, err := scanAll(Async(&memSource{frames: frames}))
	if err != nil {
		Te.Fatal(err)
	}

	gate := make(chan struct{}, 100)
	src := &memSource{frames: frames, gate: gate}
	s := NewStore()
	h := Scan(context.Background(), Async(src), s, ScanOptions{UpTo: math.Inf(1)})
	for i := 0; i < 12; i++ {
		gate <- struct{}{}
	}
	waitFrame(Te, h, 12)
	h.Cancel()
	status, err := h.Wait()
	if err != nil || status != Canceled {
		Te.Fatalf("canceled scan ended with %v, %v", status, err)
	}
	if s.ProcessedUpTo() != 11 {
		Te.Fatalf("canceled scan kept records up to %v, not 11", s.ProcessedUpTo())
	}
	//records obtained before the cancellation are usable.
	if _, err := Apply(11, frames[11], s); err != nil {
		Te.Error(err)
	}

	src2 := &memSource{frames: frames}
	h = Scan(context.Background(), Async(src2), s, ScanOptions{UpTo: math.Inf(1)})
	if status, err := h.Wait(); err != nil || status != Completed {
		Te.Fatalf("resumed scan ended with %v, %v", status, err)
	}
	if src2.reads[0] != 11 || src2.reads[1] != 12 {
		Te.Errorf("resumed scan did not start from the last frame processed: %v", src2.reads)
	}
	sameStores(Te, full, s)
}

func TestCancelViaContext(Te *testing.T) {
	tr := randomWalk(triclinic(), 5, 10, 0.1, 3)
	//nothing ever gets through the gate.
	src := &memSource{frames: withoutImages(tr.frames), gate: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStore()
	h := Scan(ctx, Async(src), s, ScanOptions{UpTo: math.Inf(1)})
	cancel()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		Te.Fatal("the scan did not stop")
	}
	if status, err := h.Wait(); status != Canceled || err != nil {
		Te.Errorf("expected a canceled scan, got %v, %v", status, err)
	}
	if !math.IsInf(s.ProcessedUpTo(), -1) {
		Te.Error("a scan canceled before any frame left records")
	}
}

func TestScanFailure(Te *testing.T) {
	tr := randomWalk(triclinic(), 5, 10, 0.1, 3)
	s := NewStore()
	h := Scan(context.Background(), Async(&memSource{frames: withoutImages(tr.frames), failAt: 4}), s, ScanOptions{UpTo: math.Inf(1)})
	status, err := h.Wait()
	if status != Failed || err == nil {
		Te.Fatalf("expected a failed scan, got %v, %v", status, err)
	}
	if s.ProcessedUpTo() != 3 {
		Te.Errorf("records before the failure were lost: processed up to %v", s.ProcessedUpTo())
	}
	frames := withoutImages(tr.frames)
	frames[2].Cell = nil
	s = NewStore()
	h = Scan(context.Background(), Async(&memSource{frames: frames}), s, ScanOptions{UpTo: math.Inf(1)})
	if _, err := h.Wait(); !errors.Is(err, ErrNoCell) {
		Te.Errorf("expected ErrNoCell from the scan, got %v", err)
	}
}

func TestScanAbandonedOnReset(Te *testing.T) {
	tr := randomWalk(triclinic(), 5, 10, 0.1, 3)
	gate := make(chan struct{}, 100)
	s := NewStore()
	h := Scan(context.Background(), Async(&memSource{frames: withoutImages(tr.frames), gate: gate}), s, ScanOptions{UpTo: math.Inf(1)})
	gate <- struct{}{}
	waitFrame(Te, h, 1)
	s.Reset()
	close(gate)
	if status, err := h.Wait(); status != Canceled || err != nil {
		Te.Errorf("expected the scan to give up after the reset, got %v, %v", status, err)
	}
	if !math.IsInf(s.ProcessedUpTo(), -1) {
		Te.Error("the scan committed records after the reset")
	}
}
