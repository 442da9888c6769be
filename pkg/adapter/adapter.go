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

// Package adapter defines the pluggable interfaces the core consumes:
// DigitalTwinAdapter, MappingAdapter, CloudAdapter, ServiceDiscoveryAdapter,
// and the DataAdapterFactory/DataAdapter pair. Concrete implementations
// (gRPC, MQTT, HTTP, in-memory) are external collaborators statically
// linked by a user binary; this package only fixes the contract.
package adapter

import (
	"context"
	"time"

	"github.com/freyja-project/freyja/pkg/model"
)

// DigitalTwinAdapter resolves entity metadata by id.
type DigitalTwinAdapter interface {
	// FindByID returns the entity or a ferrors.NotFound/Communication error.
	FindByID(ctx context.Context, id string) (model.Entity, error)
}

// MappingAdapter is polled by the Cartographer to learn what to track.
type MappingAdapter interface {
	// CheckForWork reports whether a new mapping generation is available.
	CheckForWork(ctx context.Context) (bool, error)
	// GetMapping returns the full current mapping set, keyed by signal id.
	GetMapping(ctx context.Context) (map[string]model.Mapping, error)
}

// CloudMessage is the payload handed to CloudAdapter.SendToCloud.
type CloudMessage struct {
	SignalValue  string
	SignalTarget map[string]string
	Timestamp    time.Time
}

// CloudOutcome is the result of one SendToCloud call.
type CloudOutcome int

const (
	CloudOK CloudOutcome = iota
	CloudTransient
	CloudPermanent
)

// CloudAdapter forwards emitted values to the cloud connector.
type CloudAdapter interface {
	SendToCloud(ctx context.Context, msg CloudMessage) (CloudOutcome, error)
}

// ServiceDiscoveryAdapter resolves a logical service id to a URI. The core
// does not hold or iterate a list of these: the selector and factories see
// only the single ServiceDiscoveryResolver passed in through
// engine.Dependencies, and no type in this module tries several
// ServiceDiscoveryAdapters in order.
type ServiceDiscoveryAdapter interface {
	Name() string
	GetServiceURI(ctx context.Context, serviceID string) (string, error)
}

// RegistrationOutcome classifies the result of DataAdapter.RegisterEntity.
type RegistrationOutcome int

const (
	// RegistrationOK means the entity is now registered with this adapter.
	RegistrationOK RegistrationOutcome = iota
	// RegistrationLoopback means the adapter wants the selector to redo
	// matching against the rewritten entity it returns.
	RegistrationLoopback
	// RegistrationFail means this adapter cannot serve the entity; the
	// selector should continue with the entity's next endpoint.
	RegistrationFail
)

// RegistrationResult is the sum type DataAdapter.RegisterEntity returns.
type RegistrationResult struct {
	Outcome     RegistrationOutcome
	LoopbackTo  *model.Entity // set iff Outcome == RegistrationLoopback
	FailureKind string        // set iff Outcome == RegistrationFail, for logging
}

// DataAdapter speaks one provider protocol, identified by endpoint uri.
type DataAdapter interface {
	// Start initializes the adapter's own background work. Must not block.
	Start(ctx context.Context) error
	// RegisterEntity attempts to bind entity to this adapter.
	RegisterEntity(ctx context.Context, entity model.Entity) (RegistrationResult, error)
	// SendRequestToProvider asks the provider for a fresh value for a
	// pull-style entity. The value itself arrives asynchronously through
	// the store handle the adapter was constructed with.
	SendRequestToProvider(ctx context.Context, entityID string) error
}

// DataAdapterFactory builds DataAdapters for entities it recognizes.
type DataAdapterFactory interface {
	// IsSupported returns the endpoint this factory would use to serve
	// entity, or ok=false if none of the entity's endpoints match.
	IsSupported(entity model.Entity) (endpoint model.Endpoint, ok bool)
	// CreateAdapter builds a new adapter bound to endpoint's uri.
	CreateAdapter(ctx context.Context, endpointURI string, discovery ServiceDiscoveryResolver) (DataAdapter, error)
}

// ServiceDiscoveryResolver is the handle a factory uses to resolve a
// logical service id. Its implementation is supplied by the host binary;
// how it consults ServiceDiscoveryAdapters is up to that implementation.
type ServiceDiscoveryResolver interface {
	Resolve(ctx context.Context, serviceID string) (string, error)
}
