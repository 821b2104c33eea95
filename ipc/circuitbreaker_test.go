// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestCircuitBreakerClosesOnSuccessfulProbe(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require := assert.New(t)
	require.True(b.Allow())

	b.RecordSuccess()

	require.Equal(BreakerClosed, b.State())
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow()

	b.RecordFailure()

	assert.Equal(t, BreakerOpen, b.State())
}
