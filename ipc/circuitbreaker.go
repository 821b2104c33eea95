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
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub013/clock"
)

// BreakerState is one of the three canonical circuit breaker states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// CircuitBreaker protects a single embedding service from being hammered
// with requests while it is failing: it opens after failureThreshold
// consecutive failures, waits cooldown, then allows a single probe request
// through in the half-open state before fully closing or reopening.
type CircuitBreaker struct {
	mu               sync.Mutex
	clk              clock.Clock
	state            BreakerState
	failureThreshold int
	cooldown         time.Duration
	consecutiveFails int
	openedAt         time.Time
	probeInFlight    bool
}

// NewCircuitBreaker constructs a breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before probing again,
// timed against the real wall clock.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithClock(failureThreshold, cooldown, clock.RealClock{})
}

// NewCircuitBreakerWithClock is NewCircuitBreaker with an injectable clock,
// so cooldown-elapsed transitions can be driven by a clock.SimulatedClock or
// clock.FakeClock in tests instead of a real sleep.
func NewCircuitBreakerWithClock(failureThreshold int, cooldown time.Duration, clk clock.Clock) *CircuitBreaker {
	return &CircuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown, clk: clk}
}

// Allow reports whether a request may proceed, transitioning Open ->
// HalfOpen once cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clk.Now().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call, closing the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutiveFails = 0
	b.probeInFlight = false
}

// RecordFailure reports a failed call, opening the breaker once the
// consecutive-failure threshold is reached, or immediately reopening from a
// failed probe.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = b.clk.Now()
		b.probeInFlight = false
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.clk.Now()
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
