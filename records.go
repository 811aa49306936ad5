/*
 * records.go, part of gounwrap.
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
	"encoding/json"
	"math"
	"slices"
	"sort"
	"sync"
)

// Crossing records that the particle ID crossed a periodic boundary of the cell at
// time Time. Shift is the number of cell vectors along Axis that must be added to the
// positions of the particle from Time on, to undo the wrapping.
type Crossing struct {
	ID    int64
	Time  float64
	Axis  int8
	Shift int16
}

// Flip records the cumulative xy, xz and yz shear flip counters of the cell from Time on.
type Flip struct {
	Time   float64
	Counts [3]int32
}

// Store keeps the crossing and flip records obtained by scanning a trajectory.
// Records are only appended, and only removed all at once, by Reset.
// A Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	crossings map[int64][]Crossing
	ncross    int
	flips     []Flip
	upTo      float64
	gen       uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{crossings: make(map[int64][]Crossing), upTo: math.Inf(-1)}
}

// ProcessedUpTo returns the time of the last frame scanned, or -Inf if no frame
// has been scanned.
func (S *Store) ProcessedUpTo() float64 {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return S.upTo
}

// NumCrossings returns the total number of crossing records.
func (S *Store) NumCrossings() int {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return S.ncross
}

// NumFlips returns the number of flip records.
func (S *Store) NumFlips() int {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return len(S.flips)
}

// Generation returns a number that changes every time the store is Reset.
func (S *Store) Generation() uint64 {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return S.gen
}

// Commit appends the records of the frame at time t and marks t as processed,
// in one step. It fails with ErrInvalidated if the store was Reset after gen was obtained.
func (S *Store) Commit(gen uint64, t float64, b Batch) error {
	S.mu.Lock()
	defer S.mu.Unlock()
	if gen != S.gen {
		return errDecorate(ErrInvalidated, "Store.Commit")
	}
	for _, c := range b.Crossings {
		S.crossings[c.ID] = append(S.crossings[c.ID], c)
	}
	S.ncross += len(b.Crossings)
	if b.Flip != nil {
		S.flips = append(S.flips, *b.Flip)
	}
	if t > S.upTo {
		S.upTo = t
	}
	return nil
}

// Reset deletes all the records.
func (S *Store) Reset() {
	S.mu.Lock()
	defer S.mu.Unlock()
	S.resetLocked()
}

func (S *Store) resetLocked() {
	S.crossings = make(map[int64][]Crossing)
	S.ncross = 0
	S.flips = nil
	S.upTo = math.Inf(-1)
	S.gen++
}

// Shift returns the periodic image accumulated by the particle id up to the time t.
func (S *Store) Shift(id int64, t float64) Image {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return S.shift(id, t)
}

func (S *Store) shift(id int64, t float64) Image {
	var img Image
	for _, c := range S.crossings[id] {
		if c.Time <= t {
			img[c.Axis] += int32(c.Shift)
		}
	}
	return img
}

// FlipsAt returns the flip counters in effect at time t. The boolean is false
// if no flip happened at or before t.
func (S *Store) FlipsAt(t float64) ([3]int32, bool) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return S.flipsAt(t)
}

func (S *Store) flipsAt(t float64) ([3]int32, bool) {
	//index of the first flip after t
	i := sort.Search(len(S.flips), func(i int) bool { return S.flips[i].Time > t })
	if i == 0 {
		return [3]int32{}, false
	}
	return S.flips[i-1].Counts, true
}

// Crossings returns a copy of the crossing records of the particle id, in the order
// they were recorded.
func (S *Store) Crossings(id int64) []Crossing {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return slices.Clone(S.crossings[id])
}

// Flips returns a copy of the flip records.
func (S *Store) Flips() []Flip {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return slices.Clone(S.flips)
}

// ids returns the particle identifiers with records, sorted.
func (S *Store) ids() []int64 {
	ids := make([]int64, 0, len(S.crossings))
	for id := range S.crossings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CrossingsPerTime returns the times at which at least one crossing was recorded,
// sorted, and the number of crossings at each of them.
func (S *Store) CrossingsPerTime() ([]float64, []int) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	counts := make(map[float64]int)
	for _, l := range S.crossings {
		for _, c := range l {
			counts[c.Time]++
		}
	}
	times := make([]float64, 0, len(counts))
	for t := range counts {
		times = append(times, t)
	}
	slices.Sort(times)
	n := make([]int, len(times))
	for i, t := range times {
		n[i] = counts[t]
	}
	return times, n
}

// Snapshot gives read access to a store while a View call holds its lock.
// It must not be used after the View function returns.
type Snapshot struct {
	s *Store
}

// ProcessedUpTo returns the time of the last frame scanned.
func (V Snapshot) ProcessedUpTo() float64 { return V.s.upTo }

// NumCrossings returns the total number of crossing records.
func (V Snapshot) NumCrossings() int { return V.s.ncross }

// Shift returns the periodic image accumulated by the particle id up to the time t.
func (V Snapshot) Shift(id int64, t float64) Image { return V.s.shift(id, t) }

// FlipsAt returns the flip counters in effect at time t.
func (V Snapshot) FlipsAt(t float64) ([3]int32, bool) { return V.s.flipsAt(t) }

// View calls fn with a consistent view of the store. The store can't be modified
// until fn returns.
func (S *Store) View(fn func(Snapshot) error) error {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return fn(Snapshot{S})
}

// MarshalJSON dumps the store, for inspection.
func (S *Store) MarshalJSON() ([]byte, error) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	var upTo *float64
	if !math.IsInf(S.upTo, -1) {
		u := S.upTo
		upTo = &u
	}
	type jcross struct {
		Time  float64 `json:"time"`
		Axis  int8    `json:"axis"`
		Shift int16   `json:"shift"`
	}
	type jparticle struct {
		ID        int64    `json:"id"`
		Crossings []jcross `json:"crossings"`
	}
	particles := make([]jparticle, 0, len(S.crossings))
	for _, id := range S.ids() {
		p := jparticle{ID: id}
		for _, c := range S.crossings[id] {
			p.Crossings = append(p.Crossings, jcross{c.Time, c.Axis, c.Shift})
		}
		particles = append(particles, p)
	}
	flips := S.flips
	if flips == nil {
		flips = []Flip{}
	}
	j, err := json.Marshal(struct {
		ProcessedUpTo *float64    `json:"processed_up_to"`
		NumCrossings  int         `json:"num_crossings"`
		Particles     []jparticle `json:"particles"`
		Flips         []Flip      `json:"flips"`
	}{
		ProcessedUpTo: upTo,
		NumCrossings:  S.ncross,
		Particles:     particles,
		Flips:         flips,
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}
