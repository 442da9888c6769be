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

// Package cartographer implements the mapping reconciler loop: it polls the
// mapping adapter, diffs the result against the signal store, resolves
// entity metadata, routes entities through the Data Adapter Selector, and
// commits the resulting signal set (spec.md §4.3).
package cartographer

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/freyja-project/freyja/pkg/adapter"
	"github.com/freyja-project/freyja/pkg/ferrors"
	"github.com/freyja-project/freyja/pkg/model"
	"github.com/freyja-project/freyja/pkg/signalstore"
)

// AdapterSelector is the subset of *selector.Selector the Cartographer
// needs, kept as an interface so it can be faked in tests without pulling
// in package selector.
type AdapterSelector interface {
	CreateOrUpdateAdapter(ctx context.Context, entity model.Entity) error
	Deregister(id string)
}

// Cartographer runs the reconciliation loop described in spec.md §4.3.
type Cartographer struct {
	logger   log.Logger
	mapping  adapter.MappingAdapter
	twin     adapter.DigitalTwinAdapter
	sel      AdapterSelector
	store    *signalstore.Store
	interval time.Duration

	mu            sync.Mutex
	knownMappings map[string]model.Mapping
	knownEntities map[string]model.Entity
	invalidated   map[string]bool

	cycles           prometheus.Counter
	cyclesAborted    prometheus.Counter
	idsSkippedByKind *prometheus.CounterVec
}

// DefaultPollInterval is the reconciliation cadence used when
// Options.PollInterval is zero.
const DefaultPollInterval = 10 * time.Second

// Options configures a Cartographer.
type Options struct {
	PollInterval time.Duration
}

// New constructs a Cartographer. interval defaults to DefaultPollInterval if zero.
func New(logger log.Logger, reg prometheus.Registerer, mapping adapter.MappingAdapter, twin adapter.DigitalTwinAdapter, sel AdapterSelector, store *signalstore.Store, opts Options) *Cartographer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	interval := opts.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	c := &Cartographer{
		logger:        logger,
		mapping:       mapping,
		twin:          twin,
		sel:           sel,
		store:         store,
		interval:      interval,
		knownMappings: make(map[string]model.Mapping),
		knownEntities: make(map[string]model.Entity),
		invalidated:   make(map[string]bool),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_cartographer_cycles_total",
			Help: "Number of reconciliation cycles run.",
		}),
		cyclesAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_cartographer_cycles_aborted_total",
			Help: "Number of cycles aborted by a mapping-adapter failure.",
		}),
		idsSkippedByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freyja_cartographer_ids_skipped_total",
			Help: "Number of ids skipped in a cycle, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(c.cycles, c.cyclesAborted, c.idsSkippedByKind)
	}
	return c
}

// InvalidateEntity forces the next cycle to re-resolve id's entity metadata
// via the digital-twin adapter even if its mapping content is unchanged
// (spec.md §3 Entity lifecycle, "may be refreshed on explicit invalidation").
func (c *Cartographer) InvalidateEntity(id string) {
	c.mu.Lock()
	c.invalidated[id] = true
	c.mu.Unlock()
}

// Run drives the reconciliation loop until ctx is cancelled.
func (c *Cartographer) Run(ctx context.Context) error {
	return wait.PollUntilContextCancel(ctx, c.interval, true, func(ctx context.Context) (bool, error) {
		c.runCycle(ctx)
		return false, nil
	})
}

// runCycle executes one iteration of spec.md §4.3 steps 1-5.
func (c *Cartographer) runCycle(ctx context.Context) {
	cycleID := uuid.New().String()[:8]
	logger := log.With(c.logger, "cycle_id", cycleID)

	hasWork, err := c.mapping.CheckForWork(ctx)
	if err != nil {
		level.Warn(logger).Log("msg", "check_for_work failed, aborting cycle", "err", err)
		c.cyclesAborted.Inc()
		return
	}
	if !hasWork {
		return
	}

	newMapping, err := c.mapping.GetMapping(ctx)
	if err != nil {
		level.Warn(logger).Log("msg", "get_mapping failed, aborting cycle", "err", err)
		c.cyclesAborted.Inc()
		return
	}

	c.cycles.Inc()

	c.mu.Lock()
	add, remove, changed := diff(c.knownMappings, newMapping)
	// An explicit invalidation also forces processing through
	// resolveEntity even when the mapping content itself is unchanged.
	for id := range c.invalidated {
		if _, stillMapped := newMapping[id]; stillMapped {
			if _, already := toSet(changed)[id]; !already {
				if _, isAdd := toSet(add)[id]; !isAdd {
					changed = append(changed, id)
				}
			}
		}
	}
	c.mu.Unlock()

	removeSet := toSet(remove)
	changedOnly := toSet(changed)

	batch := make([]model.Signal, 0, len(add)+len(changed))

	for _, id := range append(append([]string{}, add...), changed...) {
		m := newMapping[id]
		entity, ok := c.resolveEntity(ctx, logger, id)
		if !ok {
			continue
		}
		if err := c.sel.CreateOrUpdateAdapter(ctx, entity); err != nil {
			kind := ferrors.KindOf(err)
			level.Warn(logger).Log("msg", "create_or_update_adapter failed, skipping for this cycle", "signal_id", id, "kind", kind, "err", err)
			c.idsSkippedByKind.WithLabelValues(kind.String()).Inc()
			continue
		}
		batch = append(batch, model.Signal{ID: id, Mapping: m, Entity: &entity})
	}

	// Ids that are kept unchanged still need to be carried into the batch
	// so Sync doesn't remove them; their existing store state (value,
	// bookkeeping) is preserved by Store.Sync itself.
	c.mu.Lock()
	for id, m := range c.knownMappings {
		if _, isRemoved := removeSet[id]; isRemoved {
			continue
		}
		if _, isChanged := changedOnly[id]; isChanged {
			continue
		}
		entity := c.knownEntities[id]
		batch = append(batch, model.Signal{ID: id, Mapping: m, Entity: &entity})
	}
	c.mu.Unlock()

	added, removed := c.store.Sync(batch)

	for _, id := range removed {
		c.sel.Deregister(id)
	}

	c.mu.Lock()
	c.knownMappings = make(map[string]model.Mapping, len(batch))
	c.knownEntities = make(map[string]model.Entity, len(batch))
	for _, s := range batch {
		c.knownMappings[s.ID] = s.Mapping
		if s.Entity != nil {
			c.knownEntities[s.ID] = *s.Entity
		}
	}
	c.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		level.Info(logger).Log("msg", "committed mapping generation", "added", len(added), "removed", len(removed))
	}
}

// resolveEntity resolves entity metadata for id, honouring an explicit
// invalidation and the "reuse if still valid" rule for re-registration
// (spec.md §4.3 step 3).
func (c *Cartographer) resolveEntity(ctx context.Context, logger log.Logger, id string) (model.Entity, bool) {
	c.mu.Lock()
	cached, hasCached := c.knownEntities[id]
	wasInvalidated := c.invalidated[id]
	delete(c.invalidated, id)
	c.mu.Unlock()

	// A mapping content change alone does not invalidate previously
	// resolved entity metadata (mapping and entity identity are
	// independent, per spec.md §3); only an explicit invalidation, or
	// never having resolved the entity at all, forces re-resolution.
	if hasCached && !wasInvalidated {
		return cached, true
	}

	entity, err := c.twin.FindByID(ctx, id)
	if err != nil {
		kind := ferrors.KindOf(err)
		level.Warn(logger).Log("msg", "find_by_id failed, skipping for this cycle", "signal_id", id, "kind", kind, "err", err)
		c.idsSkippedByKind.WithLabelValues(kind.String()).Inc()
		return model.Entity{}, false
	}
	return entity, true
}

// diff computes the add/remove/changed id sets per spec.md §4.3 step 3.
func diff(known map[string]model.Mapping, next map[string]model.Mapping) (add, remove []string, changed []string) {
	for id := range known {
		if _, ok := next[id]; !ok {
			remove = append(remove, id)
		}
	}
	for id, m := range next {
		prev, ok := known[id]
		if !ok {
			add = append(add, id)
			continue
		}
		if !prev.Equal(m) {
			changed = append(changed, id)
		}
	}
	return add, remove, changed
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
