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

package cow

import (
	"testing"

	"github.com/lspecian/vexfs-sub013/storage/alloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	a := alloc.New(4096, 256, 64)
	return NewManager(a, 4)
}

func TestRemapForWriteAllocatesOnFirstWrite(t *testing.T) {
	m := newTestManager(t)

	phys, err := m.RemapForWrite(10)

	require.NoError(t, err)
	assert.NotZero(t, phys)
	assert.False(t, m.WriteRequiresCopy(10))
}

func TestSnapshotForcesCopyOnNextWrite(t *testing.T) {
	m := newTestManager(t)
	phys1, err := m.RemapForWrite(10)
	require.NoError(t, err)

	_, err = m.CreateSnapshot("s1", nil)
	require.NoError(t, err)

	assert.True(t, m.WriteRequiresCopy(10))
	phys2, err := m.RemapForWrite(10)
	require.NoError(t, err)
	assert.NotEqual(t, phys1, phys2)
}

func TestDeleteSnapshotFreesOrphanedBlocks(t *testing.T) {
	m := newTestManager(t)
	_, err := m.RemapForWrite(10)
	require.NoError(t, err)
	snap, err := m.CreateSnapshot("s1", nil)
	require.NoError(t, err)
	_, err = m.RemapForWrite(10) // forces a copy, orphaning the snapshot's block once deleted
	require.NoError(t, err)

	freeBefore := m.allocator.FreeBlocks()
	require.NoError(t, m.DeleteSnapshot(snap, false))
	assert.Equal(t, freeBefore+1, m.allocator.FreeBlocks(), "the snapshot's orphaned copy of block 10 returns to the allocator")

	err = m.DeleteSnapshot(snap, false)
	assert.Error(t, err, "deleting an already-deleted snapshot must fail")
}

func TestCreateSnapshotRejectsBeyondMax(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 4; i++ {
		_, err := m.CreateSnapshot("s", nil)
		require.NoError(t, err)
	}

	_, err := m.CreateSnapshot("s5", nil)

	assert.Error(t, err)
}

func TestDeleteSnapshotWithChildrenRequiresForce(t *testing.T) {
	m := newTestManager(t)
	parent, err := m.CreateSnapshot("parent", nil)
	require.NoError(t, err)
	child, err := m.CreateSnapshot("child", &parent)
	require.NoError(t, err)

	err = m.DeleteSnapshot(parent, false)
	assert.Error(t, err, "deleting a snapshot with live children without force must fail")

	require.NoError(t, m.DeleteSnapshot(parent, true))

	snap, err := m.Snapshot(child)
	require.NoError(t, err)
	assert.Nil(t, snap.Parent, "forced delete re-parents children to the deleted snapshot's parent")
}

func TestResolveUnmappedLogicalIsNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Resolve(123)

	assert.Error(t, err)
}

func TestResolveInSnapshotSeesFrozenMappingAfterLiveCopy(t *testing.T) {
	m := newTestManager(t)
	frozenPhys, err := m.RemapForWrite(10)
	require.NoError(t, err)

	snap, err := m.CreateSnapshot("s1", nil)
	require.NoError(t, err)

	livePhys, err := m.RemapForWrite(10) // forces a copy; live mapping now points elsewhere
	require.NoError(t, err)
	assert.NotEqual(t, frozenPhys, livePhys)

	got, err := m.ResolveInSnapshot(snap, 10)
	require.NoError(t, err)
	assert.Equal(t, frozenPhys, got, "snapshot must still resolve to the block as it stood at CreateSnapshot time")
}

func TestResolveInSnapshotUnknownLogicalIsNotFound(t *testing.T) {
	m := newTestManager(t)
	snap, err := m.CreateSnapshot("s1", nil)
	require.NoError(t, err)

	_, err = m.ResolveInSnapshot(snap, 999)

	assert.Error(t, err)
}

func TestSpaceSavingsReportsSharedBlocksAfterSnapshot(t *testing.T) {
	m := newTestManager(t)
	_, err := m.RemapForWrite(10)
	require.NoError(t, err)
	_, err = m.RemapForWrite(11)
	require.NoError(t, err)

	cowSaved, _ := m.SpaceSavings()
	assert.Zero(t, cowSaved, "no snapshot yet, so no block is shared across generations")

	_, err = m.CreateSnapshot("s1", nil)
	require.NoError(t, err)

	cowSaved, _ = m.SpaceSavings()
	assert.Equal(t, uint64(2), cowSaved, "both mapped blocks are now shared between the live generation and s1")

	_, err = m.RemapForWrite(10) // CoW's block 10 away from the shared copy
	require.NoError(t, err)

	cowSaved, _ = m.SpaceSavings()
	assert.Equal(t, uint64(1), cowSaved, "block 10 is private again; only block 11 remains shared")
}
