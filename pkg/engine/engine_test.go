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

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freyja-project/freyja/pkg/adapter"
	"github.com/freyja-project/freyja/pkg/config"
	"github.com/freyja-project/freyja/pkg/model"
)

type stubMapping struct {
	mu   sync.Mutex
	once bool
	m    map[string]model.Mapping
}

func (s *stubMapping) CheckForWork(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.once {
		return false, nil
	}
	s.once = true
	return true, nil
}

func (s *stubMapping) GetMapping(ctx context.Context) (map[string]model.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m, nil
}

type stubTwin struct{ entity model.Entity }

func (s *stubTwin) FindByID(ctx context.Context, id string) (model.Entity, error) {
	return s.entity, nil
}

type stubCloud struct {
	mu   sync.Mutex
	sent []adapter.CloudMessage
}

func (s *stubCloud) SendToCloud(ctx context.Context, msg adapter.CloudMessage) (adapter.CloudOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return adapter.CloudOK, nil
}

func (s *stubCloud) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubAdapter struct {
	store *stubStore
}

func (a *stubAdapter) Start(ctx context.Context) error { return nil }

func (a *stubAdapter) RegisterEntity(ctx context.Context, entity model.Entity) (adapter.RegistrationResult, error) {
	a.store.setInitial(entity.ID, "100")
	return adapter.RegistrationResult{Outcome: adapter.RegistrationOK}, nil
}

func (a *stubAdapter) SendRequestToProvider(ctx context.Context, entityID string) error { return nil }

// stubStore lets the fake adapter push an initial value into the engine's
// Signal Store once the Cartographer has committed the signal, mimicking a
// real data adapter's asynchronous first read.
type stubStore struct {
	engine *Engine
}

func (s *stubStore) setInitial(id, value string) {
	go func() {
		for i := 0; i < 50; i++ {
			if s.engine.Store.UpdateValue(id, value, time.Now()) {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
}

type stubFactory struct {
	store *stubStore
}

func (f *stubFactory) IsSupported(entity model.Entity) (model.Endpoint, bool) {
	for _, ep := range entity.Endpoints {
		if ep.Protocol == "stub" {
			return ep, true
		}
	}
	return model.Endpoint{}, false
}

func (f *stubFactory) CreateAdapter(ctx context.Context, endpointURI string, discovery adapter.ServiceDiscoveryResolver) (adapter.DataAdapter, error) {
	return &stubAdapter{store: f.store}, nil
}

func TestEngineEndToEndConversionScenario(t *testing.T) {
	mapping := &stubMapping{m: map[string]model.Mapping{
		"temp": {
			SourceID:     "temp",
			Target:       map[string]string{"signal": "Vehicle.Cabin.Temperature"},
			IntervalMS:   20,
			Conversion:   &model.Conversion{Mul: 1.8, Offset: 32},
			EmitOnChange: false,
		},
	}}
	twin := &stubTwin{entity: model.Entity{
		ID:        "temp",
		Endpoints: []model.Endpoint{{Protocol: "stub", URI: "stub://temp"}},
	}}
	cloud := &stubCloud{}
	st := &stubStore{}
	factory := &stubFactory{store: st}

	e := New(nil, nil, Dependencies{
		Mapping:   mapping,
		Twin:      twin,
		Cloud:     cloud,
		Factories: []adapter.DataAdapterFactory{factory},
	}, config.Options{
		MappingPollInterval: 5 * time.Millisecond,
		EmissionTick:        5 * time.Millisecond,
		LoopbackBudget:      4,
	})
	st.engine = e

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, func() bool {
		return cloud.count() > 0
	}, time.Second, 5*time.Millisecond, "expected at least one emission")

	cancel()
	<-done

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	assert.Equal(t, "212", cloud.sent[0].SignalValue)
	assert.Equal(t, map[string]string{"signal": "Vehicle.Cabin.Temperature"}, cloud.sent[0].SignalTarget)
}
