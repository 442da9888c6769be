// Copyright 2026 The Freyja Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signalstore holds the authoritative in-process set of tracked
// signals and their latest observed values — the synchronization point
// between data adapters, the Cartographer, and the Emitter (spec.md §4.1).
package signalstore

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/freyja-project/freyja/pkg/model"
)

// entry wraps a Signal with its own lock so value writes from independent
// data-adapter goroutines never contend with each other's keys, and hold
// the store-wide lock only briefly, in read mode, to look up their entry.
type entry struct {
	mu sync.Mutex
	s  model.Signal
}

// Store is the shared, concurrency-safe signal table. The zero value is not
// usable; construct with New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	liveSignals    prometheus.Gauge
	discardedWrite prometheus.Counter
}

// New constructs an empty Store and registers its metrics with reg, which
// may be nil (no metrics) the way pkg/export's constructors accept a nil
// prometheus.Registerer in tests.
func New(reg prometheus.Registerer) *Store {
	st := &Store{
		entries: make(map[string]*entry),
		liveSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freyja_signalstore_signals",
			Help: "Number of signals currently tracked by the signal store.",
		}),
		discardedWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_signalstore_discarded_writes_total",
			Help: "Number of Update-value calls for ids not currently tracked.",
		}),
	}
	if reg != nil {
		reg.MustRegister(st.liveSignals, st.discardedWrite)
	}
	return st
}

// Sync atomically replaces the tracked set with the given signals. For each
// incoming signal, if one with the same id already exists its mapping and
// entity are overwritten while value and timestamps are preserved; ids
// present in the store but absent from the input are removed. Returns the
// ids that were added and removed so the caller can drive
// registration/unregistration (spec.md §4.1).
func (st *Store) Sync(signals []model.Signal) (added, removed []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	incoming := make(map[string]model.Signal, len(signals))
	for _, s := range signals {
		incoming[s.ID] = s
	}

	for id := range st.entries {
		if _, ok := incoming[id]; !ok {
			delete(st.entries, id)
			removed = append(removed, id)
		}
	}

	for id, s := range incoming {
		if e, ok := st.entries[id]; ok {
			e.mu.Lock()
			e.s.Mapping = s.Mapping
			e.s.Entity = s.Entity
			e.mu.Unlock()
			continue
		}
		st.entries[id] = &entry{s: s}
		added = append(added, id)
	}

	st.liveSignals.Set(float64(len(st.entries)))
	return added, removed
}

// UpdateValue overwrites value and arrival timestamp for id if it is
// present; otherwise it is a silent no-op (late writes from a now-removed
// provider are discarded) and ok is false.
func (st *Store) UpdateValue(id, value string, at time.Time) (ok bool) {
	st.mu.RLock()
	e, found := st.entries[id]
	st.mu.RUnlock()

	if !found {
		st.discardedWrite.Inc()
		return false
	}

	e.mu.Lock()
	e.s.Value = value
	e.s.ValueArrivedAt = at
	e.mu.Unlock()
	return true
}

// SetLastEmitted updates emission bookkeeping after a successful emission.
// A no-op if id is no longer tracked.
func (st *Store) SetLastEmitted(id, value string, nextDeadline time.Time) {
	st.mu.RLock()
	e, found := st.entries[id]
	st.mu.RUnlock()

	if !found {
		return
	}
	e.mu.Lock()
	e.s.LastEmitted = value
	e.s.NextDeadline = nextDeadline
	e.mu.Unlock()
}

// Get returns a snapshot of a single signal, for call sites (like the
// emitter's pull path) that need one id rather than the whole table.
func (st *Store) Get(id string) (model.Signal, bool) {
	st.mu.RLock()
	e, found := st.entries[id]
	st.mu.RUnlock()
	if !found {
		return model.Signal{}, false
	}
	e.mu.Lock()
	s := e.s
	e.mu.Unlock()
	return s, true
}

// GetAllForEmit returns a snapshot of all signals sufficient for one
// emission pass. Reads are consistent per signal; the set as a whole is not
// a single serializable point-in-time (spec.md §4.1).
func (st *Store) GetAllForEmit() []model.Signal {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]model.Signal, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		out[i] = e.s
		e.mu.Unlock()
	}
	return out
}

// Len reports the number of currently tracked signals.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}
