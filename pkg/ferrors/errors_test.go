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

package ferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsFramedError(t *testing.T) {
	err := New(NotFound, "entity %q missing", "abc")
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Permanent))
}

func TestKindOfOnPlainErrorIsUnknown(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := Wrap(Communication, cause, "connecting to provider")

	assert.Equal(t, Communication, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(Internal, nil, "no-op"))
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := New(Unsupported, "no factory for %s", "mqtt")
	assert.Contains(t, err.Error(), "unsupported")
	assert.Contains(t, err.Error(), "mqtt")
}
