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

// Package superblock implements L4: filesystem-wide layout geometry, feature
// flags, and the block-group descriptor table derived from that geometry.
package superblock

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// Magic identifies a VexFS superblock on disk.
const Magic uint64 = 0x56455846532d3031 // "VEXFS-01"

// FeatureFlags are bits describing on-disk format capabilities a mounter
// must understand before proceeding.
type FeatureFlags uint32

const (
	FeatureVectorStorage FeatureFlags = 1 << iota
	FeatureHNSWIndex
	FeatureSnapshots
	FeatureSemanticJournal
)

// State is the filesystem's mount-time health, persisted in the superblock
// so a subsequent mount can tell whether the last session ended cleanly.
type State int

const (
	StateClean State = iota
	StateError
)

func (s State) String() string {
	if s == StateError {
		return "error"
	}
	return "clean"
}

// Layout is the derived geometry of the filesystem: how many blocks of
// what size are reserved for each subsystem.
type Layout struct {
	BlockSize       uint32
	TotalBlocks     uint64
	JournalBlocks   uint64
	InodeTableBlocks uint64
	GroupSize       uint64
}

// LayoutCalculator derives a Layout from a requested capacity and
// configuration, following a fixed proportion scheme: the journal gets
// journalBlocks, the inode table is sized for one inode per 4 data blocks
// at 256 bytes/inode, and the remainder is split into allocator groups.
type LayoutCalculator struct {
	BlockSize     uint32
	JournalBlocks uint64
	GroupSize     uint64
}

// Calculate returns the Layout for totalBlocks blocks of BlockSize each.
func (lc LayoutCalculator) Calculate(totalBlocks uint64) Layout {
	const inodeSize = 256
	dataBlocks := totalBlocks - lc.JournalBlocks - 1 // -1 for the superblock itself
	inodeBytes := (dataBlocks / 4) * inodeSize
	inodeBlocks := (inodeBytes + uint64(lc.BlockSize) - 1) / uint64(lc.BlockSize)
	return Layout{
		BlockSize:        lc.BlockSize,
		TotalBlocks:      totalBlocks,
		JournalBlocks:    lc.JournalBlocks,
		InodeTableBlocks: inodeBlocks,
		GroupSize:        lc.GroupSize,
	}
}

// Superblock is the filesystem's root descriptor, stored at block 0.
type Superblock struct {
	Magic        uint64
	Version      uint32
	Features     FeatureFlags
	Layout       Layout
	RootInode    uint64
	MountCount   uint32
	LastMountUTC int64
	State        State
	Checksum     uint64
}

func (sb *Superblock) computeChecksum() uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sb.Magic)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(sb.Version))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(sb.Features))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], sb.RootInode)
	h.Write(buf[:])
	return h.Sum64()
}

// New formats a fresh Superblock for the given layout and feature set.
func New(layout Layout, features FeatureFlags) *Superblock {
	sb := &Superblock{
		Magic:     Magic,
		Version:   1,
		Features:  features,
		Layout:    layout,
		RootInode: 1,
	}
	sb.Checksum = sb.computeChecksum()
	return sb
}

// Validate verifies the magic number and checksum, returning a
// CodeCorruption error describing the first mismatch found.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return vexfserrors.New(vexfserrors.CodeCorruption, "superblock magic mismatch")
	}
	if sb.Checksum != sb.computeChecksum() {
		return vexfserrors.New(vexfserrors.CodeCorruption, "superblock checksum mismatch")
	}
	return nil
}

// SetError marks the filesystem state as error, done when journal replay
// aborts on a CRC failure (spec.md §4.2, §7); the mount proceeds read-only
// until a clean unmount clears it.
func (sb *Superblock) SetError() {
	sb.State = StateError
}

// SetClean marks the filesystem state as clean, done on a successful replay
// or a graceful unmount.
func (sb *Superblock) SetClean() {
	sb.State = StateClean
}

// HasFeature reports whether feature is required to mount this filesystem.
func (sb *Superblock) HasFeature(feature FeatureFlags) bool {
	return sb.Features&feature != 0
}

// RecordMount bumps the mount counter and refreshes the checksum; callers
// supply the mount timestamp so this stays deterministic for tests.
func (sb *Superblock) RecordMount(nowUnix int64) {
	sb.MountCount++
	sb.LastMountUTC = nowUnix
	sb.Checksum = sb.computeChecksum()
}
