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

// Package clock provides an injectable source of time, so that storage,
// journal and IPC timeouts can be tested without real sleeps.
package clock

import "time"

// Clock is a source of time and of timers. Production code takes a Clock
// instead of calling time.Now/time.After directly so tests can substitute
// SimulatedClock or FakeClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After notifies on the returned channel after d has passed.
	After(d time.Duration) <-chan time.Time
}
