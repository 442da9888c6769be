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

// Package ferrors defines the error taxonomy shared by every adapter
// contract and every core component: not_found, unsupported,
// communication(kind), permanent, and internal.
package ferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error so that callers can decide whether to retry,
// skip, or self-repair without inspecting error strings.
type Kind int

const (
	// Unknown is the zero value; KindOf returns it for errors that carry
	// no Kind.
	Unknown Kind = iota
	// NotFound means the requested entity, mapping, or service does not
	// exist upstream. Non-fatal, retried next cycle.
	NotFound
	// Unsupported means no factory can build an adapter for an entity's
	// endpoints. The signal is dropped from this cycle's batch.
	Unsupported
	// Communication means a transient upstream failure (network, timeout,
	// 5xx). Non-fatal, retried next cycle.
	Communication
	// Permanent means the upstream declared a non-recoverable condition.
	// The offending signal is dropped and the loop continues.
	Permanent
	// Internal means a core invariant was violated. Logged loudly,
	// best-effort self-repair by forcing re-registration next cycle.
	Internal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unsupported:
		return "unsupported"
	case Communication:
		return "communication"
	case Permanent:
		return "permanent"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Framed wraps a causing error with a Kind so it can flow through the core
// without losing the classification spec.md §7 requires at every skip site.
type Framed struct {
	kind  Kind
	cause error
}

// New builds a Framed error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Framed {
	return &Framed{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) *Framed {
	if err == nil {
		return nil
	}
	return &Framed{kind: kind, cause: errors.Wrap(err, msg)}
}

func (f *Framed) Error() string {
	return fmt.Sprintf("%s: %s", f.kind, f.cause)
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (f *Framed) Unwrap() error { return f.cause }

// KindOf extracts the Kind carried by err, or Unknown if err does not carry
// one (e.g. it came from a collaborator that doesn't use this package).
func KindOf(err error) Kind {
	var f *Framed
	if errors.As(err, &f) {
		return f.kind
	}
	return Unknown
}

// Is reports whether err is a Framed error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
