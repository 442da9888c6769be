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

// Package selector implements the Data Adapter Selector: the gateway that
// owns live data adapters keyed by provider endpoint and routes entities to
// them, including loopback-driven re-routing (spec.md §4.2).
package selector

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/freyja-project/freyja/pkg/adapter"
	"github.com/freyja-project/freyja/pkg/ferrors"
	"github.com/freyja-project/freyja/pkg/model"
)

// DefaultLoopbackBudget bounds the number of loopback hops a single
// CreateOrUpdateAdapter call may follow (spec.md §4.2).
const DefaultLoopbackBudget = 4

// Options configures a Selector.
type Options struct {
	// LoopbackBudget overrides DefaultLoopbackBudget if non-zero.
	LoopbackBudget int
	// PullRate, if non-zero, caps the rate of RequestSignal calls made to
	// any single adapter. Zero means unlimited. This is an additive
	// robustness feature beyond spec.md; see DESIGN.md.
	PullRate  rate.Limit
	PullBurst int
}

// Selector is the Data Adapter Selector described in spec.md §4.2.
type Selector struct {
	logger    log.Logger
	factories []adapter.DataAdapterFactory
	discovery adapter.ServiceDiscoveryResolver
	budget    int
	opts      Options

	endpointLock *keyedLock

	mu            sync.RWMutex
	adaptersByURI map[string]adapter.DataAdapter
	entityToURI   map[string]string
	limiterByURI  map[string]*rate.Limiter

	adaptersCreated        *prometheus.CounterVec
	loopbackHops           prometheus.Counter
	registrationsByOutcome *prometheus.CounterVec
}

// New constructs a Selector over factories, tried in the given order, using
// discovery to resolve service ids on a factory's behalf.
func New(logger log.Logger, reg prometheus.Registerer, factories []adapter.DataAdapterFactory, discovery adapter.ServiceDiscoveryResolver, opts Options) *Selector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	budget := opts.LoopbackBudget
	if budget == 0 {
		budget = DefaultLoopbackBudget
	}
	s := &Selector{
		logger:        logger,
		factories:     factories,
		discovery:     discovery,
		budget:        budget,
		opts:          opts,
		endpointLock:  newKeyedLock(),
		adaptersByURI: make(map[string]adapter.DataAdapter),
		entityToURI:   make(map[string]string),
		limiterByURI:  make(map[string]*rate.Limiter),
		adaptersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freyja_selector_adapters_created_total",
			Help: "Number of data adapters created, by endpoint uri.",
		}, []string{"endpoint_uri"}),
		loopbackHops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_selector_loopback_hops_total",
			Help: "Number of loopback hops followed across all create_or_update_adapter calls.",
		}),
		registrationsByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freyja_selector_registrations_total",
			Help: "Number of entity registrations, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(s.adaptersCreated, s.loopbackHops, s.registrationsByOutcome)
	}
	return s
}

// CreateOrUpdateAdapter resolves, creates, and registers a data adapter for
// entity, following loopback redirection up to the configured budget.
func (s *Selector) CreateOrUpdateAdapter(ctx context.Context, entity model.Entity) error {
	current := entity
	for hop := 0; hop <= s.budget; hop++ {
		if hop > 0 {
			s.loopbackHops.Inc()
		}
		ok, loopbackTo, err := s.tryEndpoints(ctx, current)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if loopbackTo == nil {
			return ferrors.New(ferrors.Unsupported, "no factory or cached adapter supports entity %q", entity.ID)
		}
		current = *loopbackTo
	}
	level.Error(s.logger).Log("msg", "loopback budget exhausted", "entity_id", entity.ID, "budget", s.budget)
	return ferrors.New(ferrors.Unsupported, "loopback budget exhausted for entity %q", entity.ID)
}

// tryEndpoints runs one pass of spec.md §4.2 steps 1-2 over entity's
// endpoints. ok=true means registration succeeded. A non-nil loopbackTo
// means the caller should restart matching against the returned entity.
// loopbackTo==nil && ok==false means this pass found nothing and the
// caller should treat the entity as unsupported.
func (s *Selector) tryEndpoints(ctx context.Context, entity model.Entity) (ok bool, loopbackTo *model.Entity, err error) {
	// Step 1: try adapters already cached for one of entity's endpoints, in order.
	for _, ep := range entity.Endpoints {
		s.mu.RLock()
		a, cached := s.adaptersByURI[ep.URI]
		s.mu.RUnlock()
		if !cached {
			continue
		}

		lock := s.endpointLock.lockFor(ep.URI)
		lock.Lock()
		result, regErr := a.RegisterEntity(ctx, entity)
		lock.Unlock()
		if regErr != nil {
			return false, nil, regErr
		}

		done, loop, handled := s.handleRegistration(entity, ep.URI, result)
		if handled {
			return done, loop, nil
		}
	}

	// Step 2: no cached adapter matched; try factories in configured order.
	for _, f := range s.factories {
		ep, matches := f.IsSupported(entity)
		if !matches {
			continue
		}

		lock := s.endpointLock.lockFor(ep.URI)
		lock.Lock()
		result, regErr := s.registerViaFactory(ctx, f, ep, entity)
		lock.Unlock()
		if regErr != nil {
			return false, nil, regErr
		}

		done, loop, handled := s.handleRegistration(entity, ep.URI, result)
		if handled {
			return done, loop, nil
		}
		// RegistrationFail: keep trying the next factory.
	}

	return false, nil, nil
}

// registerViaFactory creates (or reuses, if a concurrent caller raced us)
// the adapter for ep and attempts registration, holding ep's lock.
func (s *Selector) registerViaFactory(ctx context.Context, f adapter.DataAdapterFactory, ep model.Endpoint, entity model.Entity) (adapter.RegistrationResult, error) {
	s.mu.RLock()
	a, cached := s.adaptersByURI[ep.URI]
	s.mu.RUnlock()

	if !cached {
		created, err := f.CreateAdapter(ctx, ep.URI, s.discovery)
		if err != nil {
			return adapter.RegistrationResult{}, errors.Wrapf(err, "create adapter for endpoint %q", ep.URI)
		}
		if err := created.Start(ctx); err != nil {
			return adapter.RegistrationResult{}, errors.Wrapf(err, "start adapter for endpoint %q", ep.URI)
		}
		s.mu.Lock()
		s.adaptersByURI[ep.URI] = created
		s.mu.Unlock()
		s.adaptersCreated.WithLabelValues(ep.URI).Inc()
		a = created
	}
	return a.RegisterEntity(ctx, entity)
}

// handleRegistration records metrics/index updates for a RegistrationResult
// and reports whether the caller's pass is over (handled), and if so what
// to return from tryEndpoints.
func (s *Selector) handleRegistration(entity model.Entity, uri string, result adapter.RegistrationResult) (ok bool, loopbackTo *model.Entity, handled bool) {
	switch result.Outcome {
	case adapter.RegistrationOK:
		s.mu.Lock()
		s.entityToURI[entity.ID] = uri
		s.mu.Unlock()
		s.registrationsByOutcome.WithLabelValues("ok").Inc()
		return true, nil, true
	case adapter.RegistrationLoopback:
		s.registrationsByOutcome.WithLabelValues("loopback").Inc()
		return false, result.LoopbackTo, true
	case adapter.RegistrationFail:
		s.registrationsByOutcome.WithLabelValues("fail").Inc()
		level.Debug(s.logger).Log("msg", "endpoint rejected entity", "entity_id", entity.ID, "endpoint", uri, "reason", result.FailureKind)
		return false, nil, false
	default:
		return false, nil, false
	}
}

// RequestSignal asks the adapter currently associated with id to fetch a
// fresh value from its provider, for pull-style endpoints (spec.md §4.2).
func (s *Selector) RequestSignal(ctx context.Context, id string) error {
	s.mu.RLock()
	uri, ok := s.entityToURI[id]
	var a adapter.DataAdapter
	if ok {
		a = s.adaptersByURI[uri]
	}
	s.mu.RUnlock()

	if !ok || a == nil {
		return ferrors.New(ferrors.NotFound, "unknown signal %q", id)
	}

	if limiter := s.limiterFor(uri); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}
	return a.SendRequestToProvider(ctx, id)
}

// Deregister removes id's association with whatever adapter currently
// serves it, without touching the adapter itself (adapters are long-lived
// by design, per spec.md §3). The Cartographer calls it for every id that a
// committed generation removes from the store. A move to a uri owned by a
// different adapter needs no call: a successful registration overwrites the
// id's association.
func (s *Selector) Deregister(id string) {
	s.mu.Lock()
	delete(s.entityToURI, id)
	s.mu.Unlock()
}

func (s *Selector) limiterFor(uri string) *rate.Limiter {
	if s.opts.PullRate <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiterByURI[uri]
	if !ok {
		l = rate.NewLimiter(s.opts.PullRate, s.opts.PullBurst)
		s.limiterByURI[uri] = l
	}
	return l
}
