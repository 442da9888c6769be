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

// Package model holds the wire and in-process data types shared across the
// synchronization pipeline: Mapping, Entity, Endpoint, and Signal.
package model

import "time"

// Conversion is the optional linear transform {mul, offset} a Mapping may
// carry. Some upstream wire schemas declare these single-precision
// (spec.md §9 Open Question 2); this type holds them widened to float64,
// since the resolved choice is to parse and compute in double regardless
// of the wire's declared width. Adapters that decode a narrower wire type
// are expected to widen at decode time.
type Conversion struct {
	Mul    float64 `json:"mul" yaml:"mul"`
	Offset float64 `json:"offset" yaml:"offset"`
}

// Mapping is the upstream-declared rule linking a source signal id to a
// cloud-side target and timing/conversion policy. Immutable once attached
// to a Signal; replaced wholesale on mapping change.
type Mapping struct {
	SourceID     string            `json:"source-id" yaml:"source-id"`
	Target       map[string]string `json:"target" yaml:"target"`
	IntervalMS   uint64            `json:"interval-ms" yaml:"interval-ms"`
	EmitOnChange bool              `json:"emit-on-change" yaml:"emit-on-change"`
	Conversion   *Conversion       `json:"conversion,omitempty" yaml:"conversion,omitempty"`
}

// Interval returns the mapping's polling/emission interval as a Duration.
func (m Mapping) Interval() time.Duration {
	return time.Duration(m.IntervalMS) * time.Millisecond
}

// Equal reports whether two mappings are content-equal, which the
// Cartographer uses to decide whether a kept id counts as "changed" for
// re-registration purposes (spec.md §4.3 step 3).
func (m Mapping) Equal(other Mapping) bool {
	if m.SourceID != other.SourceID || m.IntervalMS != other.IntervalMS || m.EmitOnChange != other.EmitOnChange {
		return false
	}
	if (m.Conversion == nil) != (other.Conversion == nil) {
		return false
	}
	if m.Conversion != nil && *m.Conversion != *other.Conversion {
		return false
	}
	if len(m.Target) != len(other.Target) {
		return false
	}
	for k, v := range m.Target {
		if other.Target[k] != v {
			return false
		}
	}
	return true
}

// Operation is an open set of capabilities an endpoint advertises; factories
// decide which ones they understand.
type Operation string

const (
	OperationGet              Operation = "get"
	OperationSubscribe        Operation = "subscribe"
	OperationManagedSubscribe Operation = "managed-subscribe"
)

// Endpoint is a {protocol, operations, uri, context} tuple advertised by an
// Entity. Entities carry an ordered list of these; order is significant for
// both selector lookup (spec.md §4.2 step 1) and factory matching.
//
// Operations is held as a set for O(1) SupportsOperation lookups. The wire
// schema declares it as an array (spec.md §6); adapters decoding that array
// are expected to convert it into this set form, the same widen-at-decode
// idiom Conversion's fields rely on.
type Endpoint struct {
	Protocol   string                 `json:"protocol" yaml:"protocol"`
	Operations map[Operation]struct{} `json:"operations" yaml:"operations"`
	URI        string                 `json:"uri" yaml:"uri"`
	Context    map[string]string      `json:"context,omitempty" yaml:"context,omitempty"`
}

// SupportsOperation reports whether the endpoint advertises op.
func (e Endpoint) SupportsOperation(op Operation) bool {
	_, ok := e.Operations[op]
	return ok
}

// Entity is an in-vehicle addressable data source resolved once per signal
// by the Cartographer via the digital-twin adapter.
type Entity struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoints   []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Signal is the authoritative record the Signal Store tracks for one
// mapped id: its mapping, its latest observed value, and emission
// bookkeeping. See spec.md §3 for the full lifecycle and invariants.
type Signal struct {
	ID string

	Mapping Mapping
	Entity  *Entity // nil while unresolved

	Value          string // current value; empty means no baseline yet
	ValueArrivedAt time.Time

	LastEmitted  string
	NextDeadline time.Time
}

// State reports which of the three lifecycle states (spec.md §3) the
// signal is currently in. Transitions are monotonic within a generation.
type State int

const (
	StateUnresolved State = iota
	StateRegistered
	StateLive
)

func (s Signal) State() State {
	switch {
	case s.Value != "":
		return StateLive
	case s.Entity != nil:
		return StateRegistered
	default:
		return StateUnresolved
	}
}
