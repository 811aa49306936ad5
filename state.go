/*
 * state.go, part of gounwrap.
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
	"sync"
)

// InvalidateReason tells why the records of a State were discarded.
type InvalidateReason int

const (
	SourceReplaced InvalidateReason = iota + 1
	TopologyChanged
	Manual
)

func (r InvalidateReason) String() string {
	switch r {
	case SourceReplaced:
		return "source replaced"
	case TopologyChanged:
		return "topology changed"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("InvalidateReason(%d)", int(r))
	}
}

// Severity of a Status.
type Severity int

const (
	Success Severity = iota
	Warning
)

// Status is a human-readable report of what the State did, or can do.
type Status struct {
	Severity Severity
	Text     string
}

func (s Status) String() string {
	if s.Severity == Warning {
		return "Warning: " + s.Text
	}
	return s.Text
}

const (
	imagesStatus   = "Unwrapping particle positions using stored periodic image information."
	notReadyStatus = "Trajectory has not been scanned up to this time. Press 'Update' to continue scanning."
)

func crossingsStatus(n int) Status {
	return Status{Success, fmt.Sprintf("Detected %d periodic cell boundary crossing(s) of particle trajectories.", n)}
}

// Result is the outcome of State.ApplyUnwrap.
type Result struct {
	Frame  *Frame
	Status Status
}

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger used by the state and its scans.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) { s.log = l }
}

// WithInteractive selects how ApplyUnwrap reacts to a time that has not been scanned yet.
// An interactive state returns the frame unchanged with a warning status, a
// non-interactive one returns an error.
func WithInteractive(i bool) Option {
	return func(s *State) { s.interactive = i }
}

// WithRequireBonds makes frames without bond topology an error.
func WithRequireBonds(b bool) Option {
	return func(s *State) { s.applier.RequireBonds = b }
}

// State owns the crossing records of one trajectory source and the scan that produces them.
// It is safe for concurrent use.
type State struct {
	mu          sync.Mutex
	log         *slog.Logger
	interactive bool
	applier     Applier
	store       *Store
	src         Source
	srcID       string
	scan        *ScanHandle
}

// NewState returns a State with no source and no records.
func NewState(opts ...Option) *State {
	s := &State{log: slog.Default(), store: NewStore()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store returns the record store of the state.
func (s *State) Store() *Store {
	return s.store
}

// SetSource sets the frame source. If a source with a different id was set
// before, the records are invalidated.
func (s *State) SetSource(src Source, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil && id != s.srcID {
		s.invalidateLocked(SourceReplaced)
	}
	s.src = src
	s.srcID = id
}

// Invalidate cancels any running scan and discards all the records.
func (s *State) Invalidate(reason InvalidateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(reason)
}

func (s *State) invalidateLocked(reason InvalidateReason) {
	if s.scan != nil {
		s.scan.Cancel()
		s.scan = nil
	}
	s.store.Reset()
	s.log.Info("Unwrap records invalidated", "reason", reason.String())
}

func (s *State) running() bool {
	if s.scan == nil {
		return false
	}
	select {
	case <-s.scan.Done():
		return false
	default:
		return true
	}
}

// ScanStatus returns the status of the last scan started, or Idle.
func (s *State) ScanStatus() ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scan == nil {
		return Idle
	}
	return s.scan.Progress().Status
}

// BeginScan starts scanning the source from the last frame recorded up to the time upTo
// (math.Inf(1) for the whole source). Only one scan can run at a time. The first frame of
// the source is read before starting, and if it has no cell, or a cell without periodic
// axes, the error is returned and no scan is started. If the scan finds that the number
// of particles changed, the records are invalidated.
func (s *State) BeginScan(ctx context.Context, upTo float64) (*ScanHandle, error) {
	s.mu.Lock()
	src, id := s.src, s.srcID
	running := s.running()
	s.mu.Unlock()
	if src == nil {
		return nil, errDecorate(ErrNoSource, "BeginScan")
	}
	if running {
		return nil, errDecorate(ErrScanInProgress, "BeginScan")
	}
	if err := checkSource(ctx, src); err != nil {
		return nil, errDecorate(err, "BeginScan")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil || s.srcID != id {
		return nil, errDecorate(ErrInvalidated, "BeginScan")
	}
	if s.running() {
		return nil, errDecorate(ErrScanInProgress, "BeginScan")
	}
	h := Scan(ctx, s.src, s.store, ScanOptions{UpTo: upTo, Logger: s.log})
	s.scan = h
	go s.watch(h)
	return h, nil
}

// checkSource reads the first frame of src and checks that it has a periodic cell.
func checkSource(ctx context.Context, src Source) error {
	if src.NumFrames() == 0 {
		return nil
	}
	f, err := fetch(ctx, src, 0)
	if err != nil {
		return err
	}
	if f.Cell == nil {
		return ErrNoCell
	}
	if !f.Cell.HasPBC() {
		return ErrNoPBC
	}
	return nil
}

func (s *State) watch(h *ScanHandle) {
	_, err := h.Wait()
	if !errors.Is(err, ErrTopologyChanged) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scan == h {
		s.invalidateLocked(TopologyChanged)
	}
}

// ApplyUnwrap unwraps f, the frame for time t. Frames with per-particle images are
// unwrapped with them. Otherwise the records up to t are used.
func (s *State) ApplyUnwrap(t float64, f *Frame) (*Result, error) {
	if !Applicable(f) {
		return nil, errDecorate(ErrNoPositions, "ApplyUnwrap")
	}
	if f.Images != nil {
		out, err := s.applier.ApplyImages(f)
		if err != nil {
			return nil, errDecorate(err, "ApplyUnwrap")
		}
		return &Result{Frame: out, Status: Status{Success, imagesStatus}}, nil
	}
	out, err := s.applier.Apply(t, f, s.store)
	if errors.Is(err, ErrNotScanned) {
		applyTotal.WithLabelValues("stale").Inc()
		if s.interactive {
			return &Result{Frame: f, Status: Status{Warning, notReadyStatus}}, nil
		}
		s.log.Warn("Unwrap requested for a time not scanned yet", "time", t, "processed_up_to", s.store.ProcessedUpTo())
	}
	if err != nil {
		return nil, errDecorate(err, "ApplyUnwrap")
	}
	return &Result{Frame: out, Status: crossingsStatus(s.store.NumCrossings())}, nil
}

// ApplyUnwrapFrame unwraps f for the time of its frame in the source, f.Index. It is
// meant for frames delivered by the source for another time than the one being
// displayed, which must be unwrapped for their own time.
func (s *State) ApplyUnwrapFrame(f *Frame) (*Result, error) {
	if f == nil {
		return nil, errDecorate(ErrNoPositions, "ApplyUnwrapFrame")
	}
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return nil, errDecorate(ErrNoSource, "ApplyUnwrapFrame")
	}
	if f.Index < 0 || f.Index >= src.NumFrames() {
		return nil, Error{message: fmt.Sprintf("unwrap: frame %d is not in the source, which has %d frames", f.Index, src.NumFrames()), deco: []string{"ApplyUnwrapFrame"}, critical: true, kind: DataError}
	}
	res, err := s.ApplyUnwrap(src.FrameTime(f.Index), f)
	return res, errDecorate(err, "ApplyUnwrapFrame")
}

// Status returns a report for the time t: the scan progress while a scan runs,
// a warning if t has not been scanned, or the number of crossings recorded.
func (s *State) Status(t float64) Status {
	s.mu.Lock()
	running := s.running()
	var p Progress
	if running {
		p = s.scan.Progress()
	}
	s.mu.Unlock()
	if running {
		return Status{Success, p.String()}
	}
	if t > s.store.ProcessedUpTo() {
		return Status{Warning, notReadyStatus}
	}
	return crossingsStatus(s.store.NumCrossings())
}

// Save writes the records to the file name.
func (s *State) Save(name string) error {
	return errDecorate(s.store.Save(name), "State.Save")
}

// Load cancels any running scan and replaces the records with those in the file name.
func (s *State) Load(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scan != nil {
		s.scan.Cancel()
		s.scan = nil
	}
	if err := s.store.Load(name); err != nil {
		return errDecorate(err, "State.Load")
	}
	s.log.Info("Unwrap records loaded", "file", name, "processed_up_to", s.store.ProcessedUpTo(), "crossings", s.store.NumCrossings())
	return nil
}
