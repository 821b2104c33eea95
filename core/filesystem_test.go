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

package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/vexfs-sub013/cfg"
	"github.com/lspecian/vexfs-sub013/ipc"
	"github.com/lspecian/vexfs-sub013/storage/blockdev"
	"github.com/lspecian/vexfs-sub013/vector/store"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	settings := cfg.Default()
	settings.Journal.JournalSizeBlocks = 64
	settings.Snapshots.MaxSnapshots = 4
	fs, err := Mount(Config{
		Device:    blockdev.NewMemDevice(uint32(settings.Storage.BlockSize), 4096),
		NumBlocks: 4096,
		Settings:  settings,
	})
	require.NoError(t, err)
	return fs
}

func TestMkdirCreateReadWriteRoundTrip(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	dirID, err := fs.Mkdir(ctx, 1, "docs")
	require.NoError(t, err)
	assert.NotZero(t, dirID)

	fileID, err := fs.Create(ctx, dirID, "note.txt")
	require.NoError(t, err)

	payload := []byte("hello vexfs")
	n, err := fs.WriteFile(ctx, fileID, 0, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = fs.ReadFile(ctx, fileID, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	dirID, err := fs.Mkdir(ctx, 1, "docs")
	require.NoError(t, err)
	_, err = fs.Create(ctx, dirID, "note.txt")
	require.NoError(t, err)

	err = fs.Rmdir(ctx, 1, "docs")
	assert.Error(t, err)
}

func TestUnlinkRemovesFile(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	fileID, err := fs.Create(ctx, 1, "note.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Unlink(ctx, 1, "note.txt"))

	_, err = fs.GetInode(fileID)
	assert.Error(t, err)
}

func TestStatfsReportsAllocatorTotals(t *testing.T) {
	fs := newTestFilesystem(t)
	stats := fs.Statfs(context.Background())
	assert.Equal(t, uint64(4096), stats.TotalBlocks)
	assert.Positive(t, stats.FreeBlocks)
}

func TestSnapshotCreateDeleteWithForceReparents(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	parent, err := fs.CreateSnapshot(ctx, "parent", nil)
	require.NoError(t, err)
	child, err := fs.CreateSnapshot(ctx, "child", &parent)
	require.NoError(t, err)

	err = fs.DeleteSnapshot(ctx, parent, false)
	assert.Error(t, err, "deleting a snapshot with live children without force must fail")

	require.NoError(t, fs.DeleteSnapshot(ctx, parent, true))

	ids := fs.ListSnapshots(ctx)
	assert.Contains(t, ids, child)
	assert.NotContains(t, ids, parent)
}

func TestVectorStoreGetDeleteSearch(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	vectors := [][]float32{{1, 0}, {0, 1}, {10, 10}}
	var ids []store.VectorID
	for _, v := range vectors {
		id, err := fs.VectorStore(ctx, v, map[string]string{"kind": "test"})
		require.NoError(t, err)
		ids = append(ids, id)

		_, _, err = fs.index.Insert(v)
		require.NoError(t, err)
	}

	rec, err := fs.VectorGet(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, vectors[0], rec.Vector)

	results, err := fs.VectorSearch(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	require.NoError(t, fs.VectorDelete(ctx, ids[0]))
	_, err = fs.VectorGet(ctx, ids[0])
	assert.Error(t, err)
}

func TestHNSWInsertGrowsTheIndex(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	before := fs.index.Len()
	_, err := fs.HNSWInsert(ctx, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, before+1, fs.index.Len())
}

func TestIPCRegisterAndSubmitEmbedding(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	svc := ipc.Service{
		ID: "test-embedder",
		Embed: func(ctx context.Context, req ipc.EmbeddingRequest) (ipc.EmbeddingResponse, error) {
			return ipc.EmbeddingResponse{Vector: []float32{0.1, 0.2}}, nil
		},
		Load: func() int { return 0 },
	}
	require.NoError(t, fs.IPCRegisterService(svc, 3, 1000))

	resp, err := fs.IPCSubmitEmbedding(ctx, ipc.EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Vector)

	require.NoError(t, fs.IPCUnregisterService("test-embedder"))
}

func TestMountRunsRecoveryAndLeavesFilesystemWritable(t *testing.T) {
	fs := newTestFilesystem(t)

	assert.False(t, fs.IsReadOnly())
	assert.Equal(t, uint64(1), fs.RecoveryStats().SuccessfulRecoveries)
	assert.Equal(t, uint64(0), fs.RecoveryStats().FailedRecoveries)
}

// TestReplayRestoresCommittedWriteAfterSimulatedCrash proves the durable
// journal region, not just an in-memory ring, is what a remount replays
// from: a write is committed through fs1, the live block is then clobbered
// directly (bypassing the journal, as a crash would), and a second
// Filesystem mounted over the same device recovers it during Mount's
// recovery pass, before this test ever touches fs1 again.
func TestReplayRestoresCommittedWriteAfterSimulatedCrash(t *testing.T) {
	settings := cfg.Default()
	settings.Journal.JournalSizeBlocks = 64
	settings.Snapshots.MaxSnapshots = 4
	dev := blockdev.NewMemDevice(uint32(settings.Storage.BlockSize), 4096)
	ctx := context.Background()

	fs1, err := Mount(Config{Device: dev, NumBlocks: 4096, Settings: settings})
	require.NoError(t, err)

	fileID, err := fs1.Create(ctx, 1, "a.txt")
	require.NoError(t, err)
	pattern := bytes.Repeat([]byte{0xAA}, int(settings.Storage.BlockSize))
	_, err = fs1.WriteFile(ctx, fileID, 0, pattern)
	require.NoError(t, err)

	logical, err := fs1.blockAt(0, fs1.nodes[fileID])
	require.NoError(t, err)
	physical, err := fs1.cowMgr.Resolve(logical)
	require.NoError(t, err)

	garbage := bytes.Repeat([]byte{0x55}, int(settings.Storage.BlockSize))
	require.NoError(t, dev.Write(physical, garbage))

	_, err = Mount(Config{Device: dev, NumBlocks: 4096, Settings: settings})
	require.NoError(t, err)

	buf := make([]byte, int(settings.Storage.BlockSize))
	require.NoError(t, dev.Read(physical, buf))
	assert.Equal(t, pattern, buf, "the committed write must be recovered from the durable journal region on remount")
}

// TestReadFileAtSnapshotReturnsFrozenContent proves a snapshot-scoped read
// sees the content as it stood at CreateSnapshot time, even after the live
// generation overwrites the same file.
func TestReadFileAtSnapshotReturnsFrozenContent(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	fileID, err := fs.Create(ctx, 1, "b.txt")
	require.NoError(t, err)
	original := []byte("hello")
	_, err = fs.WriteFile(ctx, fileID, 0, original)
	require.NoError(t, err)

	snap, err := fs.CreateSnapshot(ctx, "s1", nil)
	require.NoError(t, err)

	_, err = fs.WriteFile(ctx, fileID, 0, []byte("world"))
	require.NoError(t, err)

	frozen := make([]byte, len(original))
	n, err := fs.ReadFileAt(ctx, snap, fileID, 0, frozen)
	require.NoError(t, err)
	assert.Equal(t, len(original), n)
	assert.Equal(t, original, frozen)

	live := make([]byte, len(original))
	_, err = fs.ReadFile(ctx, fileID, 0, live)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), live)
}

func TestReadOnlyFilesystemRejectsWrites(t *testing.T) {
	fs := newTestFilesystem(t)
	fs.readOnly = true
	ctx := context.Background()

	_, err := fs.Create(ctx, 1, "blocked.txt")
	assert.Error(t, err)

	_, err = fs.Mkdir(ctx, 1, "blocked-dir")
	assert.Error(t, err)

	_, err = fs.VectorStore(ctx, []float32{1, 2}, nil)
	assert.Error(t, err)
}
