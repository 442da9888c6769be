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

// Package engine wires the Signal Store, Data Adapter Selector, Cartographer
// and Emitter into one running pipeline. It is the component spec.md
// describes the effect of but never names: something that starts the
// Cartographer and Emitter loops together, threads a shared shutdown
// context, and reports the first failure of either.
package engine

import (
	"context"

	"github.com/go-kit/log"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/freyja-project/freyja/pkg/adapter"
	"github.com/freyja-project/freyja/pkg/cartographer"
	"github.com/freyja-project/freyja/pkg/config"
	"github.com/freyja-project/freyja/pkg/emitter"
	"github.com/freyja-project/freyja/pkg/model"
	"github.com/freyja-project/freyja/pkg/selector"
	"github.com/freyja-project/freyja/pkg/signalstore"
)

// Dependencies collects the external collaborators a user binary supplies.
// None of these are implemented by this module; see spec.md §6 and Non-goals.
type Dependencies struct {
	Mapping          adapter.MappingAdapter
	Twin             adapter.DigitalTwinAdapter
	Cloud            adapter.CloudAdapter
	Factories        []adapter.DataAdapterFactory
	ServiceDiscovery adapter.ServiceDiscoveryResolver
	// IsPull decides, by signal id, whether its endpoint is pull-style.
	// Nil means no signal is ever treated as pull-style.
	IsPull func(id string) bool
}

// Engine owns the Signal Store, Selector, Cartographer and Emitter for one
// running pipeline, constructed by New.
type Engine struct {
	Store        *signalstore.Store
	Selector     *selector.Selector
	Cartographer *cartographer.Cartographer
	Emitter      *emitter.Emitter
}

// New constructs the pipeline's components without starting them, so a
// caller can reach InvalidateEntity or other direct hooks before Start.
func New(logger log.Logger, reg prometheus.Registerer, deps Dependencies, opts config.Options) *Engine {
	store := signalstore.New(reg)

	sel := selector.New(logger, reg, deps.Factories, deps.ServiceDiscovery, opts.SelectorOptions())

	cart := cartographer.New(logger, reg, deps.Mapping, deps.Twin, sel, store, cartographer.Options{
		PollInterval: opts.MappingPollInterval,
	})

	em := emitter.New(logger, reg, store, deps.Cloud, sel, emitter.Options{
		Tick:   opts.EmissionTick,
		IsPull: adaptIsPull(deps.IsPull),
	})

	return &Engine{Store: store, Selector: sel, Cartographer: cart, Emitter: em}
}

// Run starts the Cartographer and Emitter loops under a run.Group bound to
// ctx, and returns when both have exited on cancellation or either has
// returned a non-nil error, whichever comes first — the teacher's own
// actor-composition idiom (cmd/operator/main.go's run.Group of termination
// handler, metrics server, admission server, and operator loop), applied
// here to the Cartographer and Emitter loops instead of HTTP servers.
func Run(ctx context.Context, logger log.Logger, reg prometheus.Registerer, deps Dependencies, opts config.Options) error {
	e := New(logger, reg, deps, opts)
	return e.Start(ctx)
}

// Start launches this Engine's loops and blocks until they stop.
func (e *Engine) Start(ctx context.Context) error {
	var g run.Group

	cartCtx, cartCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return e.Cartographer.Run(cartCtx)
	}, func(err error) {
		cartCancel()
	})

	emitCtx, emitCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return e.Emitter.Run(emitCtx)
	}, func(err error) {
		emitCancel()
	})

	return g.Run()
}

func adaptIsPull(f func(id string) bool) func(model.Signal) bool {
	if f == nil {
		return nil
	}
	return func(s model.Signal) bool { return f(s.ID) }
}
