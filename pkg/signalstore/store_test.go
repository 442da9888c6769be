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

package signalstore

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freyja-project/freyja/pkg/model"
)

func sig(id string) model.Signal {
	return model.Signal{ID: id, Mapping: model.Mapping{SourceID: id}}
}

var sortStrings = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestSyncAddsAndRemoves(t *testing.T) {
	st := New(nil)

	added, removed := st.Sync([]model.Signal{sig("a"), sig("b")})
	if diff := cmp.Diff([]string{"a", "b"}, added, sortStrings); diff != "" {
		t.Fatalf("unexpected added ids (-want,+got): %s", diff)
	}
	assert.Empty(t, removed)
	assert.Equal(t, 2, st.Len())

	added, removed = st.Sync([]model.Signal{sig("b"), sig("c")})
	if diff := cmp.Diff([]string{"c"}, added, sortStrings); diff != "" {
		t.Fatalf("unexpected added ids (-want,+got): %s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, removed, sortStrings); diff != "" {
		t.Fatalf("unexpected removed ids (-want,+got): %s", diff)
	}
	assert.Equal(t, 2, st.Len())
}

func TestSyncPreservesValueOverwritesMapping(t *testing.T) {
	st := New(nil)
	st.Sync([]model.Signal{sig("a")})

	arrivedAt := time.Unix(100, 0)
	ok := st.UpdateValue("a", "42", arrivedAt)
	require.True(t, ok)

	updated := sig("a")
	updated.Mapping.IntervalMS = 500
	st.Sync([]model.Signal{updated})

	got, found := st.Get("a")
	require.True(t, found)

	want := model.Signal{
		ID:             "a",
		Mapping:        model.Mapping{SourceID: "a", IntervalMS: 500},
		Entity:         nil,
		Value:          "42",
		ValueArrivedAt: arrivedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected signal after mapping overwrite (-want,+got): %s", diff)
	}
}

func TestUpdateValueDiscardsUnknownID(t *testing.T) {
	st := New(nil)
	ok := st.UpdateValue("ghost", "1", time.Now())
	assert.False(t, ok)
}

func TestUpdateValueAfterRemovalIsDiscarded(t *testing.T) {
	st := New(nil)
	st.Sync([]model.Signal{sig("a")})
	st.Sync(nil) // removes "a"

	ok := st.UpdateValue("a", "late", time.Now())
	assert.False(t, ok)

	_, found := st.Get("a")
	assert.False(t, found)
}

func TestSetLastEmittedUpdatesBookkeeping(t *testing.T) {
	st := New(nil)
	st.Sync([]model.Signal{sig("a")})

	deadline := time.Now().Add(time.Second)
	st.SetLastEmitted("a", "7", deadline)

	got, _ := st.Get("a")
	assert.Equal(t, "7", got.LastEmitted)
	assert.True(t, got.NextDeadline.Equal(deadline))
}

func TestConcurrentUpdateValueIsSingleKeyAtomic(t *testing.T) {
	st := New(nil)
	st.Sync([]model.Signal{sig("a")})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st.UpdateValue("a", "v", time.Now())
		}(i)
	}
	wg.Wait()

	got, found := st.Get("a")
	require.True(t, found)
	assert.Equal(t, "v", got.Value)
}

func TestUniquenessAcrossSync(t *testing.T) {
	st := New(nil)
	st.Sync([]model.Signal{sig("a"), sig("a")})
	assert.Equal(t, 1, st.Len())
}
