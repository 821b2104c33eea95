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

// Package core composes every layer (L0-L10) into the single control
// surface a mount, a test, or a CLI subcommand drives: create/unlink/mkdir/
// rmdir/rename, open/read/write/truncate/close/sync, statfs, snapshot
// management, vector storage and search, HNSW insertion, and IPC service
// registration. It mirrors the teacher's fs.Server composition root but
// wires VexFS's layered storage stack instead of a GCS bucket.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub013/ann/hnsw"
	"github.com/lspecian/vexfs-sub013/cfg"
	"github.com/lspecian/vexfs-sub013/ipc"
	"github.com/lspecian/vexfs-sub013/logger"
	semjournal "github.com/lspecian/vexfs-sub013/semantic/journal"
	"github.com/lspecian/vexfs-sub013/semantic/recovery"
	"github.com/lspecian/vexfs-sub013/storage/alloc"
	"github.com/lspecian/vexfs-sub013/storage/blockdev"
	"github.com/lspecian/vexfs-sub013/storage/cache"
	"github.com/lspecian/vexfs-sub013/storage/cow"
	"github.com/lspecian/vexfs-sub013/storage/inode"
	wal "github.com/lspecian/vexfs-sub013/storage/journal"
	"github.com/lspecian/vexfs-sub013/storage/superblock"
	"github.com/lspecian/vexfs-sub013/telemetry"
	"github.com/lspecian/vexfs-sub013/vector/store"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// Config bundles everything Mount needs to bring a filesystem image up.
type Config struct {
	Device      *blockdev.Device
	NumBlocks   uint64
	Settings    cfg.Config
	Metrics     telemetry.MetricHandle
	SemanticLog *semjournal.Journal
}

// Filesystem is the composition root: every SPEC_FULL operation is a method
// on this type, delegating to the appropriate layer.
type Filesystem struct {
	mu sync.RWMutex

	dev       *blockdev.Device
	super     *superblock.Superblock
	allocator *alloc.Allocator
	cache     *cache.Cache
	jrnl      *wal.Journal
	cowMgr    *cow.Manager

	root        *inode.Directory
	nodes       map[uint64]*inode.Inode
	dirs        map[uint64]*inode.Directory
	indirects   map[uint64][]uint64
	nextID      uint64
	nextLogical uint64
	blockSize   uint32

	vectors *store.Store
	index   *hnsw.Index

	ipcRegistry *ipc.Registry
	ipcManager  *ipc.Manager

	semanticLog *semjournal.Journal
	metrics     telemetry.MetricHandle
	log         *logger.Logger

	recoveryCo *recovery.Coordinator
	readOnly   bool
}

// Mount formats (if necessary) and brings up a Filesystem over the given
// configuration.
func Mount(c Config) (*Filesystem, error) {
	if err := cfg.Validate(&c.Settings); err != nil {
		return nil, err
	}
	metrics := c.Metrics
	if metrics == nil {
		metrics = telemetry.NoopHandle{}
	}

	layout := superblock.LayoutCalculator{
		BlockSize:     uint32(c.Settings.Storage.BlockSize),
		JournalBlocks: uint64(c.Settings.Journal.JournalSizeBlocks),
		GroupSize:     8192,
	}.Calculate(c.NumBlocks)
	sb := superblock.New(layout, superblock.FeatureVectorStorage|superblock.FeatureHNSWIndex|superblock.FeatureSnapshots|superblock.FeatureSemanticJournal)

	allocator := alloc.New(uint32(c.Settings.Storage.BlockSize), c.NumBlocks, layout.GroupSize)
	reserved := make([]uint64, 1+layout.JournalBlocks)
	for i := range reserved {
		reserved[i] = uint64(i)
	}
	if err := allocator.Reserve(reserved); err != nil {
		return nil, err
	}
	blockCache := cache.New(uint64(c.Settings.Cache.CacheSizeBytes), metrics)
	jrnl, err := wal.New(c.Device, 1, layout.JournalBlocks, c.Settings.Journal.DataJournalingMode, c.Settings.Journal.LargeWriteThresholdKB, metrics)
	if err != nil {
		return nil, err
	}
	cowMgr := cow.NewManager(allocator, c.Settings.Snapshots.MaxSnapshots)

	vectors, err := store.New()
	if err != nil {
		return nil, err
	}
	index, err := hnsw.New(hnsw.Config{
		M:              c.Settings.HNSW.M,
		EfConstruction: c.Settings.HNSW.EfConstruction,
		EfSearch:       c.Settings.HNSW.EfSearch,
		MaxLayers:      c.Settings.HNSW.MaxLayers,
		ML:             c.Settings.HNSW.ML,
	})
	if err != nil {
		return nil, err
	}

	registry := ipc.NewRegistry()
	manager := ipc.NewManager(registry, ipc.Config{
		MaxConcurrentRequests: c.Settings.IPC.MaxConcurrentRequests,
		RequestTimeout:        time.Duration(c.Settings.IPC.RequestTimeoutMs) * time.Millisecond,
		MaxQueueSize:          c.Settings.IPC.MaxQueueSize,
		MaxBatchSize:          c.Settings.IPC.MaxBatchSize,
		MaxRetryAttempts:      c.Settings.IPC.MaxRetryAttempts,
		RetryBackoffBase:      time.Duration(c.Settings.IPC.RetryBackoffBaseMs) * time.Millisecond,
	}, metrics)

	root := inode.NewRoot(inode.Attributes{Mode: 0o755, Nlink: 2})

	fs := &Filesystem{
		dev:         c.Device,
		super:       sb,
		allocator:   allocator,
		cache:       blockCache,
		jrnl:        jrnl,
		cowMgr:      cowMgr,
		root:        root,
		nodes:       make(map[uint64]*inode.Inode),
		dirs:        map[uint64]*inode.Directory{inode.RootInodeID: root},
		indirects:   make(map[uint64][]uint64),
		nextID:      inode.RootInodeID,
		blockSize:   layout.BlockSize,
		vectors:     vectors,
		index:       index,
		ipcRegistry: registry,
		ipcManager:  manager,
		semanticLog: c.SemanticLog,
		metrics:     metrics,
		log:         logger.ForComponent("core"),
		recoveryCo:  recovery.NewCoordinator(),
	}

	if err := fs.runRecovery(context.Background()); err != nil {
		fs.log.Errorf("cross-boundary recovery failed, mounting read-only: %v", err)
	}

	sb.RecordMount(time.Now().Unix())
	fs.emit(context.Background(), semjournal.EventMount, nil)
	return fs, nil
}

// runRecovery drives the cross-boundary coordinator (spec.md §4.6) through
// one recovery pass at mount time: it replays the core block journal, then
// reconciles the userspace semantic journal (if one is configured), and
// verifies no two participants claim the same extent. A core-journal replay
// failure (corrupt CRC) marks the filesystem read-only and records the
// superblock state as error, matching the mount-time behavior required by
// spec.md §4.2 and §7.
func (fs *Filesystem) runRecovery(ctx context.Context) error {
	participants := []recovery.ParticipantID{"core-journal"}
	var userspaceReplay recovery.ReplayFunc
	if fs.semanticLog != nil {
		participants = append(participants, "userspace-journal")
		userspaceReplay = func(ctx context.Context) error {
			return fs.semanticLog.Flush()
		}
	}

	_, err := fs.recoveryCo.Recover(ctx, participants, fs.jrnl.Replay, userspaceReplay)
	if err != nil {
		fs.readOnly = true
		fs.super.SetError()
		fs.emit(ctx, semjournal.EventRecovery, map[string]string{"outcome": "failed"})
		return err
	}
	if err := fs.jrnl.Checkpoint(); err != nil {
		fs.log.Warnf("journal checkpoint after recovery failed: %v", err)
	}
	fs.super.SetClean()
	fs.emit(ctx, semjournal.EventRecovery, map[string]string{"outcome": "completed"})
	return nil
}

// RecoveryStats reports the lifetime recovery outcome counters tracked by
// the cross-boundary coordinator (S6's successful_recoveries/failed_recoveries).
func (fs *Filesystem) RecoveryStats() recovery.Stats {
	return fs.recoveryCo.Stats()
}

// IsReadOnly reports whether the filesystem was forced read-only by a failed
// mount-time recovery (a corrupt journal tail).
func (fs *Filesystem) IsReadOnly() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readOnly
}

func (fs *Filesystem) checkWritable() error {
	if fs.readOnly {
		return vexfserrors.New(vexfserrors.CodePermissionDenied, "filesystem is mounted read-only after a failed recovery")
	}
	return nil
}

// Unmount flushes outstanding state. Sync errors are returned; semantic
// journal flush errors are logged but do not fail unmount.
func (fs *Filesystem) Unmount(ctx context.Context) error {
	fs.emit(ctx, semjournal.EventUnmount, nil)
	if fs.semanticLog != nil {
		if err := fs.semanticLog.Stop(); err != nil {
			fs.log.Warnf("semantic journal stop failed during unmount: %v", err)
		}
	}
	return fs.dev.Sync()
}

func (fs *Filesystem) emit(ctx context.Context, kind semjournal.EventKind, attrs map[string]string) {
	if fs.semanticLog != nil {
		fs.semanticLog.Emit(ctx, kind, attrs)
	}
}

// Stats is the statfs-adjacent reporting surface, keeping CoW and snapshot
// space savings as two independent fields per the spec's Open Question.
type Stats struct {
	TotalBlocks        uint64
	FreeBlocks         uint64
	Fragmentation      float64
	CowSpaceSaved      uint64
	SnapshotSpaceSaved uint64
	JournalStats       wal.Stats
}

// Statfs reports aggregate filesystem statistics.
func (fs *Filesystem) Statfs(ctx context.Context) Stats {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	cowSaved, snapSaved := fs.cowMgr.SpaceSavings()
	return Stats{
		TotalBlocks:        fs.allocator.TotalBlocks(),
		FreeBlocks:         fs.allocator.FreeBlocks(),
		Fragmentation:      fs.allocator.OverallFragmentation(),
		CowSpaceSaved:      cowSaved,
		SnapshotSpaceSaved: snapSaved,
		JournalStats:       fs.jrnl.Stats(),
	}
}

func (fs *Filesystem) allocateInodeID() uint64 {
	fs.nextID++
	return fs.nextID
}

// Mkdir creates a new directory named name under parent.
func (fs *Filesystem) Mkdir(ctx context.Context, parent uint64, name string) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	parentDir, ok := fs.dirs[parent]
	if !ok {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "no such parent directory")
	}
	id := fs.allocateInodeID()
	dir := inode.NewDirectory(id, inode.Attributes{Mode: 0o755, Nlink: 2})
	if err := parentDir.AddEntry(inode.DirEntry{InodeID: id, Name: name, Kind: inode.TypeDirectory}); err != nil {
		return 0, err
	}
	fs.dirs[id] = dir
	return id, nil
}

// Rmdir removes an empty directory named name under parent.
func (fs *Filesystem) Rmdir(ctx context.Context, parent uint64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	parentDir, ok := fs.dirs[parent]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such parent directory")
	}
	entry, err := parentDir.LookUp(name)
	if err != nil {
		return err
	}
	child, ok := fs.dirs[entry.InodeID]
	if !ok || !child.IsEmpty() {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "directory not empty or not a directory")
	}
	if err := parentDir.RemoveEntry(name); err != nil {
		return err
	}
	delete(fs.dirs, entry.InodeID)
	return nil
}

// Create makes a new regular file named name under parent.
func (fs *Filesystem) Create(ctx context.Context, parent uint64, name string) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	parentDir, ok := fs.dirs[parent]
	if !ok {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "no such parent directory")
	}
	id := fs.allocateInodeID()
	ino := inode.New(id, inode.TypeRegular, inode.Attributes{Mode: 0o644, Nlink: 1})
	if err := parentDir.AddEntry(inode.DirEntry{InodeID: id, Name: name, Kind: inode.TypeRegular}); err != nil {
		return 0, err
	}
	fs.nodes[id] = ino
	return id, nil
}

// Unlink removes a file named name under parent.
func (fs *Filesystem) Unlink(ctx context.Context, parent uint64, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	parentDir, ok := fs.dirs[parent]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such parent directory")
	}
	entry, err := parentDir.LookUp(name)
	if err != nil {
		return err
	}
	if err := parentDir.RemoveEntry(name); err != nil {
		return err
	}
	delete(fs.nodes, entry.InodeID)
	return nil
}

// Rename moves an entry from (oldParent, oldName) to (newParent, newName).
func (fs *Filesystem) Rename(ctx context.Context, oldParent uint64, oldName string, newParent uint64, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	oldDir, ok := fs.dirs[oldParent]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such old parent directory")
	}
	if oldParent == newParent {
		return oldDir.RenameEntry(oldName, newName)
	}
	newDir, ok := fs.dirs[newParent]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such new parent directory")
	}
	entry, err := oldDir.LookUp(oldName)
	if err != nil {
		return err
	}
	if err := newDir.AddEntry(inode.DirEntry{InodeID: entry.InodeID, Name: newName, Kind: entry.Kind}); err != nil {
		return err
	}
	return oldDir.RemoveEntry(oldName)
}

// readPhysical reads a physical device block through the cache, the
// resolved target of either the live CoW mapping (readBlock) or a frozen
// snapshot mapping (ReadFileAt).
func (fs *Filesystem) readPhysical(ctx context.Context, physical uint64) ([]byte, error) {
	if entry := fs.cache.LookUp(ctx, physical); entry != nil {
		return entry.Data, nil
	}
	buf := make([]byte, fs.blockSize)
	if err := fs.dev.Read(physical, buf); err != nil {
		return nil, err
	}
	fs.cache.Insert(physical, &cache.Entry{Block: physical, Data: buf})
	return buf, nil
}

// readBlock reads logical's current live content, resolving it to a
// physical block through the CoW manager first.
func (fs *Filesystem) readBlock(ctx context.Context, logical uint64) ([]byte, error) {
	physical, err := fs.cowMgr.Resolve(logical)
	if err != nil {
		return nil, err
	}
	return fs.readPhysical(ctx, physical)
}

// writeBlock resolves logical to the physical block it must land on (CoW'ing
// away from a block shared with a live snapshot if necessary), commits data
// to that physical block through a single-record journal transaction, then
// refreshes the cache so subsequent reads see it.
func (fs *Filesystem) writeBlock(ctx context.Context, logical uint64, data []byte) error {
	physical, err := fs.cowMgr.RemapForWrite(logical)
	if err != nil {
		return err
	}
	txn := fs.jrnl.Begin()
	fs.jrnl.Log(txn, wal.OpWrite, physical, data)
	if err := fs.jrnl.Commit(ctx, txn); err != nil {
		return err
	}
	fs.cache.Insert(physical, &cache.Entry{Block: physical, Data: data})
	return nil
}

// blockAt resolves ino's logical block index to the logical CoW key stored
// in its block array, allocating a fresh key (and an indirect block, if
// needed) when the index is one past the inode's current allocation. The
// key is handed to the CoW manager on first use so it gets a backing
// physical block; it then stays fixed for the life of the extent even
// though the manager may remap it to different physical blocks over time.
func (fs *Filesystem) blockAt(index uint64, ino *inode.Inode) (uint64, error) {
	indirect := fs.indirects[ino.ID()]
	logical, err := ino.BlockAt(index, indirect)
	if err == nil {
		return logical, nil
	}
	if index != ino.BlockCount() {
		return 0, err
	}

	fs.nextLogical++
	logical = fs.nextLogical
	if _, remapErr := fs.cowMgr.RemapForWrite(logical); remapErr != nil {
		return 0, remapErr
	}
	needsIndirect := ino.AppendBlock(logical)
	if needsIndirect {
		indResult, indErr := fs.allocator.Allocate(1, 0, alloc.StrategyLocality)
		if indErr != nil {
			return 0, indErr
		}
		ino.SetIndirectBlock(indResult.Blocks[0])
	}
	if ino.BlockCount() > 12 {
		fs.indirects[ino.ID()] = append(fs.indirects[ino.ID()], logical)
	}
	return logical, nil
}

// ReadFile reads up to len(buf) bytes from id starting at offset, returning
// the number of bytes actually read (short of len(buf) at end of file).
func (fs *Filesystem) ReadFile(ctx context.Context, id uint64, offset int64, buf []byte) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	ino, ok := fs.nodes[id]
	if !ok {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "no such file")
	}
	ino.Mu.Lock()
	defer ino.Mu.Unlock()

	size := ino.Attributes().Size
	if uint64(offset) >= size {
		return 0, nil
	}
	remaining := size - uint64(offset)
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	read := 0
	for read < len(buf) {
		pos := offset + int64(read)
		logicalIndex := uint64(pos) / uint64(fs.blockSize)
		blockOff := uint64(pos) % uint64(fs.blockSize)
		block, err := fs.blockAt(logicalIndex, ino)
		if err != nil {
			return read, err
		}
		data, err := fs.readBlock(ctx, block)
		if err != nil {
			return read, err
		}
		n := copy(buf[read:], data[blockOff:])
		read += n
	}
	return read, nil
}

// ReadFileAt reads id's content as of snapshotID instead of the live
// generation: each logical block is resolved through the snapshot's frozen
// CoW table rather than the live one, so overwrites made after the snapshot
// was taken are invisible to this read.
func (fs *Filesystem) ReadFileAt(ctx context.Context, snapshotID cow.SnapshotID, id uint64, offset int64, buf []byte) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	ino, ok := fs.nodes[id]
	if !ok {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "no such file")
	}
	ino.Mu.Lock()
	defer ino.Mu.Unlock()

	size := ino.Attributes().Size
	if uint64(offset) >= size {
		return 0, nil
	}
	remaining := size - uint64(offset)
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	indirect := fs.indirects[ino.ID()]
	read := 0
	for read < len(buf) {
		pos := offset + int64(read)
		logicalIndex := uint64(pos) / uint64(fs.blockSize)
		blockOff := uint64(pos) % uint64(fs.blockSize)
		logical, err := ino.BlockAt(logicalIndex, indirect)
		if err != nil {
			return read, err
		}
		physical, err := fs.cowMgr.ResolveInSnapshot(snapshotID, logical)
		if err != nil {
			return read, err
		}
		data, err := fs.readPhysical(ctx, physical)
		if err != nil {
			return read, err
		}
		n := copy(buf[read:], data[blockOff:])
		read += n
	}
	return read, nil
}

// WriteFile writes data to id starting at offset, allocating new blocks (and
// extending the inode's logical size) as needed.
func (fs *Filesystem) WriteFile(ctx context.Context, id uint64, offset int64, data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	ino, ok := fs.nodes[id]
	if !ok {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "no such file")
	}
	ino.Mu.Lock()
	defer ino.Mu.Unlock()

	written := 0
	for written < len(data) {
		pos := offset + int64(written)
		logicalIndex := uint64(pos) / uint64(fs.blockSize)
		blockOff := uint64(pos) % uint64(fs.blockSize)
		block, err := fs.blockAt(logicalIndex, ino)
		if err != nil {
			return written, err
		}

		blockBuf, err := fs.readBlock(ctx, block)
		if err != nil {
			return written, err
		}
		chunk := make([]byte, fs.blockSize)
		copy(chunk, blockBuf)
		n := copy(chunk[blockOff:], data[written:])
		if err := fs.writeBlock(ctx, block, chunk); err != nil {
			return written, err
		}
		written += n
	}

	attrs := ino.Attributes()
	if newSize := uint64(offset) + uint64(written); newSize > attrs.Size {
		attrs.Size = newSize
	}
	attrs.ModifyUTC = time.Now()
	ino.SetAttributes(attrs)
	fs.emit(ctx, semjournal.EventVectorWrite, map[string]string{"inode": uintToStr(id), "bytes": uintToStr(uint64(written))})
	return written, nil
}

// Truncate changes id's logical size. Shrinking does not reclaim the
// trailing blocks; SyncFile/Unlink-time compaction is left to a future pass.
func (fs *Filesystem) Truncate(ctx context.Context, id uint64, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	ino, ok := fs.nodes[id]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such file")
	}
	ino.Mu.Lock()
	defer ino.Mu.Unlock()

	attrs := ino.Attributes()
	attrs.Size = size
	attrs.ModifyUTC = time.Now()
	ino.SetAttributes(attrs)
	return nil
}

// SyncFile flushes the underlying device, making prior WriteFile calls
// durable.
func (fs *Filesystem) SyncFile(ctx context.Context, id uint64) error {
	return fs.dev.Sync()
}

// GetInode returns the live inode for id, or an error if it does not exist
// as a regular file.
func (fs *Filesystem) GetInode(id uint64) (*inode.Inode, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	ino, ok := fs.nodes[id]
	if !ok {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "no such file")
	}
	return ino, nil
}

// GetDirectory returns the live directory for id.
func (fs *Filesystem) GetDirectory(id uint64) (*inode.Directory, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	dir, ok := fs.dirs[id]
	if !ok {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "no such directory")
	}
	return dir, nil
}

// CreateSnapshot takes a point-in-time snapshot of the live filesystem,
// named name and optionally parented under an existing snapshot.
func (fs *Filesystem) CreateSnapshot(ctx context.Context, name string, parent *cow.SnapshotID) (cow.SnapshotID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	id, err := fs.cowMgr.CreateSnapshot(name, parent)
	if err != nil {
		return 0, err
	}
	fs.emit(ctx, semjournal.EventSnapshot, map[string]string{"op": "create", "name": name})
	return id, nil
}

// DeleteSnapshot releases a previously taken snapshot. force re-parents any
// live children to the deleted snapshot's parent instead of failing.
func (fs *Filesystem) DeleteSnapshot(ctx context.Context, id cow.SnapshotID, force bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return err
	}
	if err := fs.cowMgr.DeleteSnapshot(id, force); err != nil {
		return err
	}
	fs.emit(ctx, semjournal.EventSnapshot, map[string]string{"op": "delete"})
	return nil
}

// ListSnapshots returns every live snapshot id.
func (fs *Filesystem) ListSnapshots(ctx context.Context) []cow.SnapshotID {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.cowMgr.ListSnapshots()
}

// VectorStore stores a vector with optional metadata, returning its id.
func (fs *Filesystem) VectorStore(ctx context.Context, vector []float32, metadata map[string]string) (store.VectorID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	return fs.vectors.Put(vector, metadata)
}

// VectorGet retrieves a stored vector by id.
func (fs *Filesystem) VectorGet(ctx context.Context, id store.VectorID) (*store.Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.vectors.Get(id)
}

// VectorDelete removes a stored vector by id.
func (fs *Filesystem) VectorDelete(ctx context.Context, id store.VectorID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return err
	}
	return fs.vectors.Delete(id)
}

// VectorBatch stores many vectors at once.
func (fs *Filesystem) VectorBatch(ctx context.Context, vectors [][]float32, metadata []map[string]string) ([]store.VectorID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return nil, err
	}
	return fs.vectors.BatchPut(vectors, metadata)
}

// VectorSearch runs a k-NN query over the HNSW index, optionally filtering
// candidates by VectorID.
func (fs *Filesystem) VectorSearch(ctx context.Context, query []float32, k int, filter func(store.VectorID) bool) ([]hnsw.SearchResult, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var hnswFilter func(hnsw.NodeID) bool
	if filter != nil {
		hnswFilter = func(id hnsw.NodeID) bool { return filter(store.VectorID(id)) }
	}
	start := time.Now()
	results, err := fs.index.Search(query, k, hnswFilter)
	fs.metrics.HNSWSearch(ctx, time.Since(start))
	return results, err
}

// HNSWInsert adds a vector to the ANN graph, emitting a graph-insert
// semantic event carrying the affected node id and layer.
func (fs *Filesystem) HNSWInsert(ctx context.Context, vector []float32) (hnsw.NodeID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkWritable(); err != nil {
		return 0, err
	}
	id, layer, err := fs.index.Insert(vector)
	if err != nil {
		return 0, err
	}
	fs.emit(ctx, semjournal.EventGraphInsert, map[string]string{
		"node_id": uintToStr(uint64(id)),
		"layer":   uintToStr(uint64(layer)),
	})
	return id, nil
}

// IPCRegisterService registers an embedding backend with the IPC manager.
func (fs *Filesystem) IPCRegisterService(svc ipc.Service, failureThreshold, cooldownMs int) error {
	return fs.ipcRegistry.Register(svc, failureThreshold, cooldownMs)
}

// IPCUnregisterService removes a previously registered embedding backend.
func (fs *Filesystem) IPCUnregisterService(id ipc.ServiceID) error {
	return fs.ipcRegistry.Unregister(id)
}

// IPCSubmitEmbedding dispatches a single embedding request.
func (fs *Filesystem) IPCSubmitEmbedding(ctx context.Context, req ipc.EmbeddingRequest) (ipc.EmbeddingResponse, error) {
	return fs.ipcManager.SendEmbeddingRequest(ctx, req)
}

// IPCSubmitBatch dispatches a batch of embedding requests.
func (fs *Filesystem) IPCSubmitBatch(ctx context.Context, reqs []ipc.BatchRequest) ([]ipc.BatchResult, error) {
	return fs.ipcManager.SendBatchEmbeddingRequest(ctx, reqs)
}

func uintToStr(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
