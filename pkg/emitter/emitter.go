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

// Package emitter implements the per-signal scheduled emission loop: change
// detection, numeric conversion, and handoff to the cloud adapter
// (spec.md §4.4).
package emitter

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/freyja-project/freyja/pkg/adapter"
	"github.com/freyja-project/freyja/pkg/model"
	"github.com/freyja-project/freyja/pkg/signalstore"
)

// SignalRequester is the subset of *selector.Selector the Emitter needs for
// pull-style signals.
type SignalRequester interface {
	RequestSignal(ctx context.Context, id string) error
}

// Emitter runs the emission loop described in spec.md §4.4.
type Emitter struct {
	logger log.Logger
	store  *signalstore.Store
	cloud  adapter.CloudAdapter
	sel    SignalRequester
	tick   time.Duration
	pull   func(model.Signal) bool

	emitted         prometheus.Counter
	skippedNoValue  prometheus.Counter
	skippedNoChange prometheus.Counter
	cloudFailures   *prometheus.CounterVec
}

// DefaultTick is the emission loop's deadline-check cadence used when
// Options.Tick is zero.
const DefaultTick = 50 * time.Millisecond

// Options configures an Emitter.
type Options struct {
	// Tick is the loop cadence; defaults to DefaultTick if zero.
	Tick time.Duration
	// IsPull decides whether a signal's selected endpoint is pull-style,
	// in which case RequestSignal is called before reading the store. If
	// nil, no signal is ever treated as pull-style.
	IsPull func(model.Signal) bool
}

// New constructs an Emitter.
func New(logger log.Logger, reg prometheus.Registerer, store *signalstore.Store, cloud adapter.CloudAdapter, sel SignalRequester, opts Options) *Emitter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	tick := opts.Tick
	if tick == 0 {
		tick = DefaultTick
	}
	pull := opts.IsPull
	if pull == nil {
		pull = func(model.Signal) bool { return false }
	}
	e := &Emitter{
		logger: logger,
		store:  store,
		cloud:  cloud,
		sel:    sel,
		tick:   tick,
		pull:   pull,
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_emitter_emitted_total",
			Help: "Number of values sent to the cloud adapter.",
		}),
		skippedNoValue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_emitter_skipped_no_value_total",
			Help: "Number of emission attempts skipped because no baseline value exists yet.",
		}),
		skippedNoChange: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freyja_emitter_skipped_no_change_total",
			Help: "Number of emission attempts skipped by the change-detection filter.",
		}),
		cloudFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freyja_emitter_cloud_failures_total",
			Help: "Number of cloud adapter failures, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(e.emitted, e.skippedNoValue, e.skippedNoChange, e.cloudFailures)
	}
	return e
}

// Run drives the emission loop until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	return wait.PollUntilContextCancel(ctx, e.tick, true, func(ctx context.Context) (bool, error) {
		e.runPass(ctx, time.Now())
		return false, nil
	})
}

// runPass executes one iteration of spec.md §4.4 steps 1-2 for every
// signal whose deadline has arrived.
func (e *Emitter) runPass(ctx context.Context, now time.Time) {
	for _, s := range e.store.GetAllForEmit() {
		if s.NextDeadline.After(now) {
			continue
		}
		e.processSignal(ctx, s, now)
	}
}

func (e *Emitter) processSignal(ctx context.Context, s model.Signal, now time.Time) {
	nextDeadline := now.Add(s.Mapping.Interval())

	if e.pull(s) {
		if err := e.sel.RequestSignal(ctx, s.ID); err != nil {
			level.Debug(e.logger).Log("msg", "request_signal failed", "signal_id", s.ID, "err", err)
		}
		// Per spec.md §4.4 step 2a, the emitter reads whatever value is
		// currently in the store; it never blocks on the pull request.
		if fresh, ok := e.store.Get(s.ID); ok {
			s = fresh
		}
	}

	if s.Value == "" {
		e.skippedNoValue.Inc()
		e.store.SetLastEmitted(s.ID, s.LastEmitted, nextDeadline)
		return
	}

	converted := Convert(s.Value, s.Mapping.Conversion)

	if s.Mapping.EmitOnChange && converted == s.LastEmitted {
		e.skippedNoChange.Inc()
		e.store.SetLastEmitted(s.ID, converted, nextDeadline)
		return
	}

	outcome, err := e.cloud.SendToCloud(ctx, adapter.CloudMessage{
		SignalValue:  converted,
		SignalTarget: s.Mapping.Target,
		Timestamp:    s.ValueArrivedAt,
	})
	if err != nil || outcome != adapter.CloudOK {
		label := "transient"
		if outcome == adapter.CloudPermanent {
			label = "permanent"
		}
		e.cloudFailures.WithLabelValues(label).Inc()
		level.Warn(e.logger).Log("msg", "send_to_cloud failed", "signal_id", s.ID, "outcome", label, "err", err)
		// last-emitted is not updated on failure; retried at next deadline.
		e.store.SetLastEmitted(s.ID, s.LastEmitted, nextDeadline)
		return
	}

	e.emitted.Inc()
	e.store.SetLastEmitted(s.ID, converted, nextDeadline)
}

// Convert applies a Mapping's optional linear conversion to value, parsing
// and computing in float64 regardless of the wire's single-precision
// declaration (spec.md §9 Open Question 2). If value does not parse as a
// number, it is returned unchanged.
func Convert(value string, conv *model.Conversion) string {
	if conv == nil {
		return value
	}
	x, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	y := conv.Mul*x + conv.Offset
	return strconv.FormatFloat(y, 'f', -1, 64)
}
