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

package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTransitionsToDetectingFailure(t *testing.T) {
	s := NewSession()

	require.NoError(t, s.Join("kernel"))

	assert.Equal(t, StateDetectingFailure, s.State())
}

func TestAdvanceWalksFixedSequence(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Join("kernel"))

	require.NoError(t, s.Advance())
	assert.Equal(t, StateReplayingCore, s.State())

	require.NoError(t, s.Advance())
	assert.Equal(t, StateReplayingUserspace, s.State())

	require.NoError(t, s.Advance())
	assert.Equal(t, StateVerifyingIntegrity, s.State())

	assert.Error(t, s.Advance())
}

func TestDetectConflictsFindsOverlappingExtents(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Join("kernel"))
	require.NoError(t, s.Join("userspace"))
	require.NoError(t, s.Claim(ExtentClaim{Participant: "kernel", StartBlock: 0, EndBlock: 10}))
	require.NoError(t, s.Claim(ExtentClaim{Participant: "userspace", StartBlock: 5, EndBlock: 15}))

	conflicts := s.DetectConflicts()

	require.Len(t, conflicts, 1)
}

func TestResolvePicksDeterministicLoser(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Join("kernel"))
	require.NoError(t, s.Join("userspace"))
	require.NoError(t, s.Claim(ExtentClaim{Participant: "kernel", StartBlock: 0, EndBlock: 10}))
	require.NoError(t, s.Claim(ExtentClaim{Participant: "userspace", StartBlock: 5, EndBlock: 15}))

	losers := s.Resolve()

	require.Len(t, losers, 1)
	assert.Equal(t, ParticipantID("userspace"), losers[0])
}

func TestDeadlockVictimPicksLowestID(t *testing.T) {
	s := NewSession()
	s.RecordWait("b", "a")
	s.RecordWait("a", "b")

	victim, found := s.DeadlockVictim()

	require.True(t, found)
	assert.Equal(t, ParticipantID("a"), victim)
}

func TestDeadlockVictimNoCycleWhenChainTerminates(t *testing.T) {
	s := NewSession()
	s.RecordWait("a", "b")

	_, found := s.DeadlockVictim()

	assert.False(t, found)
}

func TestClaimFromUnjoinedParticipantErrors(t *testing.T) {
	s := NewSession()

	err := s.Claim(ExtentClaim{Participant: "ghost", StartBlock: 0, EndBlock: 1})

	assert.Error(t, err)
}

func TestCompleteFailCancelSetStates(t *testing.T) {
	s := NewSession()
	s.Complete()
	assert.Equal(t, StateCompleted, s.State())

	s2 := NewSession()
	s2.Fail()
	assert.Equal(t, StateFailed, s2.State())

	s3 := NewSession()
	s3.Cancel()
	assert.Equal(t, StateCancelled, s3.State())
}

func TestCoordinatorRecoverSucceedsAndCountsStats(t *testing.T) {
	co := NewCoordinator()
	var coreRan, userspaceRan bool

	sess, err := co.Recover(context.Background(), []ParticipantID{"core-journal", "userspace-journal"},
		func(ctx context.Context) error { coreRan = true; return nil },
		func(ctx context.Context) error { userspaceRan = true; return nil },
	)

	require.NoError(t, err)
	assert.True(t, coreRan)
	assert.True(t, userspaceRan)
	assert.Equal(t, StateCompleted, sess.State())
	assert.Equal(t, Stats{SuccessfulRecoveries: 1, FailedRecoveries: 0}, co.Stats())
}

func TestCoordinatorRecoverFailsOnCoreReplayError(t *testing.T) {
	co := NewCoordinator()
	boom := assert.AnError

	sess, err := co.Recover(context.Background(), []ParticipantID{"core-journal"},
		func(ctx context.Context) error { return boom },
		nil,
	)

	require.Error(t, err)
	assert.Equal(t, StateFailed, sess.State())
	assert.Equal(t, Stats{SuccessfulRecoveries: 0, FailedRecoveries: 1}, co.Stats())
}
