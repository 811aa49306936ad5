/*
 * scan.go, part of gounwrap.
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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ScanStatus is the state of a trajectory scan.
type ScanStatus int

const (
	Idle ScanStatus = iota
	Scanning
	Completed
	Canceled
	Failed
)

func (s ScanStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ScanStatus(%d)", int(s))
	}
}

// Progress reports how far a scan has gone.
type Progress struct {
	Frame  int //number of the last frame processed, starting from 1. 0 if none.
	Total  int //number of frames in the source.
	Status ScanStatus
}

func (p Progress) String() string {
	return fmt.Sprintf("Processed trajectory frame %d of %d.", p.Frame, p.Total)
}

// ScanOptions control a scan.
type ScanOptions struct {
	//Frames with a time larger than UpTo are not scanned. Use math.Inf(1) to scan
	//the whole source.
	UpTo   float64
	Logger *slog.Logger //slog.Default() if nil
}

// ScanHandle controls a scan running in the background.
type ScanHandle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan Progress

	mu       sync.Mutex
	progress Progress
	err      error
}

// Scan starts a background scan of src that adds the crossing and flip records it finds to store.
// The scan starts right after the last frame already recorded in the store, so
// an interrupted scan can be continued by calling Scan again. It stops when
// the source has no more frames, when the next frame is later than opts.UpTo, when
// ctx is done or the scan is canceled, or at the first error.
func Scan(ctx context.Context, src Source, store *Store, opts ScanOptions) *ScanHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &ScanHandle{
		cancel:   cancel,
		done:     make(chan struct{}),
		updates:  make(chan Progress, 1),
		progress: Progress{Total: src.NumFrames(), Status: Scanning},
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	go h.run(ctx, src, store, opts.UpTo, log)
	return h
}

// Cancel asks the scan to stop. Records already committed are kept.
func (h *ScanHandle) Cancel() {
	h.cancel()
}

// Done returns a channel that is closed when the scan ends.
func (h *ScanHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the scan ends and returns its final status. The error is
// only non-nil if the status is Failed. A canceled scan is not an error.
func (h *ScanHandle) Wait() (ScanStatus, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress.Status, h.err
}

// Progress returns the current progress of the scan.
func (h *ScanHandle) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Updates returns a channel that delivers the progress of the scan after each frame.
// Only the latest value is kept if nobody reads the channel. The channel is closed
// when the scan ends.
func (h *ScanHandle) Updates() <-chan Progress {
	return h.updates
}

func (h *ScanHandle) publish(p Progress) {
	h.mu.Lock()
	h.progress = p
	h.mu.Unlock()
	select {
	case h.updates <- p:
	default:
		//drop the stale value nobody read.
		select {
		case <-h.updates:
		default:
		}
		select {
		case h.updates <- p:
		default:
		}
	}
}

func (h *ScanHandle) finish(status ScanStatus, err error) {
	h.mu.Lock()
	h.progress.Status = status
	h.err = err
	p := h.progress
	h.mu.Unlock()
	scansTotal.WithLabelValues(status.String()).Inc()
	h.publish(p)
	close(h.updates)
	close(h.done)
}

// fetch requests the frame i from src and waits for it, or for ctx to be done.
func fetch(ctx context.Context, src Source, i int) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-src.RequestFrame(ctx, i):
		if !ok {
			return nil, fmt.Errorf("source closed the request for frame %d", i)
		}
		if r.Err == nil && r.Frame == nil {
			return nil, ErrNoPositions
		}
		return r.Frame, r.Err
	}
}

func (h *ScanHandle) run(ctx context.Context, src Source, store *Store, upTo float64, log *slog.Logger) {
	defer h.cancel()
	gen := store.Generation()
	n := src.NumFrames()
	last := store.ProcessedUpTo()
	start := 0
	if !math.IsInf(last, -1) {
		start = src.FrameAt(last) + 1
	}
	if start >= n || src.FrameTime(start) > upTo {
		log.Debug("Nothing to scan", "processed_up_to", last, "frames", n)
		h.publish(Progress{Frame: min(start, n), Total: n, Status: Scanning})
		h.finish(Completed, nil)
		return
	}
	counts, _ := store.FlipsAt(last)
	det := NewDetector(counts)
	defer det.Release()
	if start > 0 {
		log.Info("Resuming trajectory scan", "frame", start, "frames", n, "processed_up_to", last)
		f, err := fetch(ctx, src, start-1)
		if ctx.Err() != nil {
			h.finish(Canceled, nil)
			return
		}
		if err == nil {
			err = det.Seed(f)
		}
		if err != nil {
			log.Error("Can't reload the last scanned frame", "frame", start-1, "error", err)
			h.finish(Failed, errDecorate(err, "Scan"))
			return
		}
	} else {
		log.Info("Starting trajectory scan", "frames", n)
	}
	for i := start; ; i++ {
		if ctx.Err() != nil {
			log.Info("Trajectory scan canceled", "processed_up_to", store.ProcessedUpTo())
			h.finish(Canceled, nil)
			return
		}
		if i >= n {
			break
		}
		t := src.FrameTime(i)
		if t > upTo {
			break
		}
		begin := time.Now()
		f, err := fetch(ctx, src, i)
		if ctx.Err() != nil {
			log.Info("Trajectory scan canceled", "processed_up_to", store.ProcessedUpTo())
			h.finish(Canceled, nil)
			return
		}
		var b Batch
		if err == nil && i == start {
			log.Debug("Particle identity", "by_id", IdentityOf(f).UsesIDs(), "particles", f.Len())
		}
		if err == nil {
			b, err = det.Process(t, f)
		}
		if err == nil {
			err = store.Commit(gen, t, b)
		}
		if errors.Is(err, ErrInvalidated) {
			log.Info("Trajectory scan abandoned, the records were invalidated")
			h.finish(Canceled, nil)
			return
		}
		if err != nil {
			log.Error("Trajectory scan failed", "frame", i, "time", t, "error", err)
			h.finish(Failed, errDecorate(err, "Scan"))
			return
		}
		scanFrameDuration.Observe(time.Since(begin).Seconds())
		framesScanned.Inc()
		crossingsRecorded.Add(float64(len(b.Crossings)))
		if b.Flip != nil {
			flipsRecorded.Inc()
			log.Info("Cell shear flip detected", "frame", i, "time", t, "counts", b.Flip.Counts)
		}
		p := Progress{Frame: i + 1, Total: n, Status: Scanning}
		log.Debug(p.String(), "crossings", len(b.Crossings))
		h.publish(p)
	}
	log.Info("Trajectory scan completed", "processed_up_to", store.ProcessedUpTo(), "crossings", store.NumCrossings(), "flips", store.NumFlips())
	h.finish(Completed, nil)
}
