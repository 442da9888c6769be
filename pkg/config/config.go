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

// Package config holds the flag-registerable options for the core pipeline.
// It never calls flag.Parse or reads the process's os.Args itself; a host
// binary registers these flags on its own kingpin.Application (spec.md
// Non-goals: the core does not own config loading or layering).
package config

import (
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"golang.org/x/time/rate"

	"github.com/freyja-project/freyja/pkg/cartographer"
	"github.com/freyja-project/freyja/pkg/emitter"
	"github.com/freyja-project/freyja/pkg/selector"
)

// Options holds the tunables for one engine.Run invocation.
type Options struct {
	// MappingPollInterval is the Cartographer's reconciliation cadence.
	MappingPollInterval time.Duration
	// EmissionTick is the Emitter loop's cadence.
	EmissionTick time.Duration
	// LoopbackBudget bounds loopback hops per create_or_update_adapter call.
	LoopbackBudget int
	// PullRequestRate caps RequestSignal calls per second, per adapter. Zero
	// means unlimited.
	PullRequestRate  float64
	PullRequestBurst int
}

// NewFlagOptions returns Options populated through flags registered on a,
// mirroring the way the teacher's exporter options are built from a shared
// kingpin.Application rather than owning their own flag.FlagSet.
func NewFlagOptions(a *kingpin.Application) *Options {
	var opts Options

	a.Flag("freyja.mapping-poll-interval", "Interval between Cartographer reconciliation cycles.").
		Default(cartographer.DefaultPollInterval.String()).DurationVar(&opts.MappingPollInterval)

	a.Flag("freyja.emission-tick", "Cadence of the Emitter's deadline-check loop.").
		Default(emitter.DefaultTick.String()).DurationVar(&opts.EmissionTick)

	a.Flag("freyja.loopback-budget", "Maximum loopback hops the selector follows per entity registration.").
		Default(strconv.Itoa(selector.DefaultLoopbackBudget)).IntVar(&opts.LoopbackBudget)

	a.Flag("freyja.pull-request-rate", "Maximum RequestSignal calls per second per adapter. 0 disables the limit.").
		Default("0").Float64Var(&opts.PullRequestRate)

	a.Flag("freyja.pull-request-burst", "Burst size for freyja.pull-request-rate.").
		Default("1").IntVar(&opts.PullRequestBurst)

	return &opts
}

// SelectorOptions adapts Options into the struct selector.New expects.
func (o Options) SelectorOptions() selector.Options {
	so := selector.Options{LoopbackBudget: o.LoopbackBudget}
	if o.PullRequestRate > 0 {
		so.PullRate = rate.Limit(o.PullRequestRate)
		so.PullBurst = o.PullRequestBurst
	}
	return so
}
