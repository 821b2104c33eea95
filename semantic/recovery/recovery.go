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

// Package recovery implements the cross-boundary coordinator described in
// spec.md §4.6: a state machine that reconciles the kernel-side and
// userspace-side views of an in-flight operation after a crash, resolving
// conflicting extent claims between participants and picking a deadlock
// victim when two participants wait on each other's locks.
package recovery

import (
	"context"
	"sort"
	"sync"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// State is a coordinator session's lifecycle stage, following spec.md §4.6's
// named sequence: Idle -> DetectingFailure -> ReplayingCore ->
// ReplayingUserspace -> VerifyingIntegrity -> Completed | Failed | Cancelled.
type State int

const (
	StateIdle State = iota
	StateDetectingFailure
	StateReplayingCore
	StateReplayingUserspace
	StateVerifyingIntegrity
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateDetectingFailure:
		return "DetectingFailure"
	case StateReplayingCore:
		return "ReplayingCore"
	case StateReplayingUserspace:
		return "ReplayingUserspace"
	case StateVerifyingIntegrity:
		return "VerifyingIntegrity"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Idle"
	}
}

// ParticipantID identifies one side of the cross-boundary operation: the
// core journal replay engine, the userspace journal flusher, an active
// snapshot operation, or the IPC layer (spec.md §4.6 names all four as
// possible participants).
type ParticipantID string

// ExtentClaim is a participant's claim over a logical block range.
type ExtentClaim struct {
	Participant ParticipantID
	StartBlock  uint64
	EndBlock    uint64 // exclusive
}

func (c ExtentClaim) overlaps(o ExtentClaim) bool {
	return c.StartBlock < o.EndBlock && o.StartBlock < c.EndBlock
}

// Session coordinates recovery across participants for one crash-recovery
// pass, walking the fixed state sequence one stage at a time via Advance.
type Session struct {
	mu           sync.Mutex
	state        State
	participants map[ParticipantID]bool
	claims       []ExtentClaim
	waitsFor     map[ParticipantID]ParticipantID // participant -> participant it is blocked on
}

// NewSession creates an idle coordination session.
func NewSession() *Session {
	return &Session{
		state:        StateIdle,
		participants: make(map[ParticipantID]bool),
		waitsFor:     make(map[ParticipantID]ParticipantID),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join registers a participant, transitioning Idle -> DetectingFailure. Join
// may be called repeatedly while still in DetectingFailure to register every
// participant before replay begins.
func (s *Session) Join(id ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateDetectingFailure {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "cannot join a session past the detecting-failure stage")
	}
	s.state = StateDetectingFailure
	s.participants[id] = true
	return nil
}

// Advance walks the session one step along the fixed sequence
// DetectingFailure -> ReplayingCore -> ReplayingUserspace ->
// VerifyingIntegrity. It returns an error if called from any other state
// (including before any participant has joined).
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateDetectingFailure:
		s.state = StateReplayingCore
	case StateReplayingCore:
		s.state = StateReplayingUserspace
	case StateReplayingUserspace:
		s.state = StateVerifyingIntegrity
	default:
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "cannot advance session from state "+s.state.String())
	}
	return nil
}

// Claim records a participant's extent claim. Claims are only meaningful
// once replay is underway.
func (s *Session) Claim(claim ExtentClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.participants[claim.Participant] {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "claim from unjoined participant")
	}
	s.claims = append(s.claims, claim)
	return nil
}

// Conflict is one pair of participants whose extent claims overlap.
type Conflict struct {
	A, B   ParticipantID
	Extent ExtentClaim
}

// DetectConflicts finds every pair of overlapping claims from distinct
// participants.
func (s *Session) DetectConflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectConflictsLocked()
}

func (s *Session) detectConflictsLocked() []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(s.claims); i++ {
		for j := i + 1; j < len(s.claims); j++ {
			a, b := s.claims[i], s.claims[j]
			if a.Participant == b.Participant {
				continue
			}
			if a.overlaps(b) {
				conflicts = append(conflicts, Conflict{A: a.Participant, B: b.Participant, Extent: a})
			}
		}
	}
	return conflicts
}

// Resolve walks every detected conflict and returns the set of participants
// whose claims were evicted in favor of the other conflicting participant.
// Priority is the lexicographically lesser participant id (the one that
// joined with a name sorting first wins ties; spec.md §4.6 leaves the exact
// priority scheme to the implementer and only fixes deadlock-victim
// selection to "lowest id").
func (s *Session) Resolve() []ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()

	conflicts := s.detectConflictsLocked()
	losers := make(map[ParticipantID]bool)
	for _, c := range conflicts {
		if c.A < c.B {
			losers[c.B] = true
		} else {
			losers[c.A] = true
		}
	}
	out := make([]ParticipantID, 0, len(losers))
	for p := range losers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecordWait marks that waiter is blocked awaiting a resource held by
// holder, for deadlock-victim selection.
func (s *Session) RecordWait(waiter, holder ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitsFor[waiter] = holder
}

// DeadlockVictim walks the wait-for graph looking for a cycle, returning the
// participant to abort and true if one was found. spec.md §5: "victim
// selection is the participant with the lowest id."
func (s *Session) DeadlockVictim() (ParticipantID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := range s.waitsFor {
		seen := map[ParticipantID]bool{start: true}
		cur := start
		for {
			next, ok := s.waitsFor[cur]
			if !ok {
				break
			}
			if next == start {
				cycle := []ParticipantID{start}
				c := s.waitsFor[start]
				for c != start {
					cycle = append(cycle, c)
					c = s.waitsFor[c]
				}
				sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
				return cycle[0], true
			}
			if seen[next] {
				break
			}
			seen[next] = true
			cur = next
		}
	}
	return "", false
}

// Complete marks the session finished successfully.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCompleted
}

// Fail marks the session as having failed recovery.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
}

// Cancel marks the session cancelled before completion.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCancelled
}

// ReplayFunc performs one side of recovery (core journal replay, or
// userspace journal reconciliation) and reports failure via error.
type ReplayFunc func(ctx context.Context) error

// Stats tracks coordinator-level recovery outcomes, reported by S6's
// "coordination statistics" (successful_recoveries, failed_recoveries).
type Stats struct {
	SuccessfulRecoveries uint64
	FailedRecoveries     uint64
}

// Coordinator runs repeated recovery passes (one per process start) and
// accumulates outcome Stats across them.
type Coordinator struct {
	mu    sync.Mutex
	stats Stats
}

// NewCoordinator constructs an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Recover drives one coordinated recovery pass: it registers participants,
// then walks DetectingFailure -> ReplayingCore -> ReplayingUserspace ->
// VerifyingIntegrity, invoking coreReplay and userspaceReplay at the
// matching stage. Either func may be nil when that participant has nothing
// to replay. A failing replay aborts the session (StateFailed) and the
// error propagates to the caller; VerifyingIntegrity resolves any
// conflicting extent claims recorded via Session.Claim before the session
// completes.
func (co *Coordinator) Recover(ctx context.Context, participants []ParticipantID, coreReplay, userspaceReplay ReplayFunc) (*Session, error) {
	s := NewSession()
	for _, p := range participants {
		if err := s.Join(p); err != nil {
			return s, err
		}
	}
	if len(participants) == 0 {
		// DetectingFailure requires at least a nominal participant so the
		// sequence can advance; register the coordinator itself.
		if err := s.Join("coordinator"); err != nil {
			return s, err
		}
	}

	if err := s.Advance(); err != nil { // -> ReplayingCore
		return s, err
	}
	if coreReplay != nil {
		if err := coreReplay(ctx); err != nil {
			s.Fail()
			co.recordFailure()
			return s, err
		}
	}

	if err := s.Advance(); err != nil { // -> ReplayingUserspace
		return s, err
	}
	if userspaceReplay != nil {
		if err := userspaceReplay(ctx); err != nil {
			s.Fail()
			co.recordFailure()
			return s, err
		}
	}

	if err := s.Advance(); err != nil { // -> VerifyingIntegrity
		return s, err
	}
	if conflicts := s.DetectConflicts(); len(conflicts) > 0 {
		s.Resolve()
	}

	s.Complete()
	co.recordSuccess()
	return s, nil
}

func (co *Coordinator) recordSuccess() {
	co.mu.Lock()
	co.stats.SuccessfulRecoveries++
	co.mu.Unlock()
}

func (co *Coordinator) recordFailure() {
	co.mu.Lock()
	co.stats.FailedRecoveries++
	co.mu.Unlock()
}

// Stats returns a snapshot of the coordinator's lifetime recovery counters.
func (co *Coordinator) Stats() Stats {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.stats
}
