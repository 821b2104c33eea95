// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package inode implements L5: the on-disk inode and directory-entry model,
// addressed by block number rather than pointer (spec.md §9's arena-and-
// index discipline — an inode's block list is a slice of block numbers, never
// a pointer chain into another inode).
package inode

import (
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// Type discriminates what an inode represents.
type Type int

const (
	TypeRegular Type = iota
	TypeDirectory
	TypeSymlink
)

const (
	numDirectBlocks = 12
)

// Attributes mirrors the POSIX-visible metadata callers read through
// stat/getattr.
type Attributes struct {
	Size       uint64
	Mode       uint32
	Uid, Gid   uint32
	AccessUTC  time.Time
	ModifyUTC  time.Time
	ChangeUTC  time.Time
	Nlink      uint32
}

// Inode is the in-core representation of one on-disk inode. Block
// membership is recorded as block numbers (direct pointers plus a single
// level of indirection), never as pointers to other in-core objects, so the
// structure can be serialized and reloaded without pointer-fixup.
type Inode struct {
	// Mu must be held for any method documented GUARDED_BY(Mu).
	Mu syncutil.InvariantMutex

	id   uint64
	kind Type

	// GUARDED_BY(Mu)
	attrs Attributes
	// GUARDED_BY(Mu)
	direct [numDirectBlocks]uint64
	// GUARDED_BY(Mu)
	indirectBlock uint64 // 0 means none allocated
	// GUARDED_BY(Mu)
	blockCount uint64

	// GUARDED_BY(Mu)
	lookupCount uint64
}

// New creates an in-core inode of the given id and kind with zeroed block
// pointers; it is the caller's job to persist it through storage/superblock
// and storage/blockdev once allocated.
func New(id uint64, kind Type, attrs Attributes) *Inode {
	ino := &Inode{id: id, kind: kind, attrs: attrs}
	ino.Mu = syncutil.NewInvariantMutex(ino.checkInvariants)
	return ino
}

func (ino *Inode) checkInvariants() {
	if ino.blockCount > numDirectBlocks && ino.indirectBlock == 0 {
		panic("inode: blockCount exceeds direct capacity without an indirect block")
	}
}

// ID returns the inode number.
func (ino *Inode) ID() uint64 { return ino.id }

// Kind returns whether this is a regular file, directory, or symlink.
func (ino *Inode) Kind() Type { return ino.kind }

// Attributes returns a copy of the inode's POSIX metadata.
//
// SHARED_LOCKS_REQUIRED(ino.Mu)
func (ino *Inode) Attributes() Attributes { return ino.attrs }

// SetAttributes replaces the inode's POSIX metadata wholesale.
//
// LOCKS_EXCLUDED(ino.Mu) is not required of the caller; the caller must
// already hold ino.Mu.
func (ino *Inode) SetAttributes(attrs Attributes) { ino.attrs = attrs }

// IncrementLookupCount bumps the kernel-visible lookup reference count,
// mirroring the teacher's FUSE lookup-count bookkeeping.
func (ino *Inode) IncrementLookupCount() {
	ino.Mu.Lock()
	ino.lookupCount++
	ino.Mu.Unlock()
}

// DecrementLookupCount decrements the lookup count by n, returning true if
// it reached zero (the inode may now be reclaimed if also unlinked).
func (ino *Inode) DecrementLookupCount(n uint64) (destroyed bool) {
	ino.Mu.Lock()
	defer ino.Mu.Unlock()
	if n > ino.lookupCount {
		panic("inode: DecrementLookupCount underflow")
	}
	ino.lookupCount -= n
	return ino.lookupCount == 0
}

// BlockAt resolves the block holding the given logical block index (0-based)
// within the file, returning CodeNotFound if the index is beyond the
// inode's current allocation.
//
// SHARED_LOCKS_REQUIRED(ino.Mu)
func (ino *Inode) BlockAt(index uint64, indirect []uint64) (uint64, error) {
	if index < numDirectBlocks {
		if index >= ino.blockCount {
			return 0, vexfserrors.New(vexfserrors.CodeNotFound, "logical block beyond inode allocation")
		}
		return ino.direct[index], nil
	}
	idx := index - numDirectBlocks
	if ino.indirectBlock == 0 || idx >= uint64(len(indirect)) {
		return 0, vexfserrors.New(vexfserrors.CodeNotFound, "logical block beyond inode allocation")
	}
	return indirect[idx], nil
}

// AppendBlock records a newly allocated block as the inode's next logical
// block, returning whether an indirect block must now be allocated (the
// caller owns allocating it and populating `indirect`).
//
// GUARDED_BY(ino.Mu)
func (ino *Inode) AppendBlock(block uint64) (needsIndirect bool) {
	if ino.blockCount < numDirectBlocks {
		ino.direct[ino.blockCount] = block
		ino.blockCount++
		return false
	}
	ino.blockCount++
	return ino.indirectBlock == 0
}

// SetIndirectBlock records the block number backing the inode's indirect
// block list.
//
// GUARDED_BY(ino.Mu)
func (ino *Inode) SetIndirectBlock(block uint64) { ino.indirectBlock = block }

// BlockCount returns the number of logical blocks currently allocated.
//
// SHARED_LOCKS_REQUIRED(ino.Mu)
func (ino *Inode) BlockCount() uint64 { return ino.blockCount }

// DirEntry is one entry in a directory's block-backed entry list.
type DirEntry struct {
	InodeID uint64
	Name    string
	Kind    Type
}
