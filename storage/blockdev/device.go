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

// Package blockdev implements L0: a fixed-size block I/O abstraction over a
// single underlying file or device. Every operation is synchronous; callers
// above this layer own all concurrency control.
package blockdev

import (
	"os"
	"sync"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
	"golang.org/x/sys/unix"
)

// Device is the capability record spec.md §9 calls for in place of
// polymorphic runtime dispatch over a storage backend: a plain struct of
// function-shaped fields, so tests can substitute an in-memory
// implementation without an interface hierarchy.
type Device struct {
	ReadFunc          func(block uint64, buf []byte) error
	WriteFunc         func(block uint64, buf []byte) error
	AllocateRangeFunc func(count uint64) ([]uint64, error)
	FreeRangeFunc     func(blocks []uint64) error
	SyncFunc          func() error
	StatsFunc         func() Stats
	BlockSizeFunc     func() uint32
}

// Stats mirrors the allocator/cache-facing numbers a health check needs.
type Stats struct {
	TotalBlocks uint64
	FreeBlocks  uint64
}

func (d *Device) Read(block uint64, buf []byte) error  { return d.ReadFunc(block, buf) }
func (d *Device) Write(block uint64, buf []byte) error { return d.WriteFunc(block, buf) }
func (d *Device) AllocateRange(count uint64) ([]uint64, error) {
	return d.AllocateRangeFunc(count)
}
func (d *Device) FreeRange(blocks []uint64) error { return d.FreeRangeFunc(blocks) }
func (d *Device) Sync() error                     { return d.SyncFunc() }
func (d *Device) Stats() Stats                     { return d.StatsFunc() }
func (d *Device) BlockSize() uint32                { return d.BlockSizeFunc() }

// FileDevice is a Device backed by a single regular file or block special
// file, addressed with pread/pwrite at block-aligned offsets.
type FileDevice struct {
	mu        sync.Mutex
	file      *os.File
	blockSize uint32
	numBlocks uint64
}

// OpenFile opens (or creates, growing it to numBlocks*blockSize) a file to
// back a Device of the given geometry.
func OpenFile(path string, blockSize uint32, numBlocks uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "open block device file", err)
	}
	size := int64(blockSize) * int64(numBlocks)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "size block device file", err)
	}
	return &FileDevice{file: f, blockSize: blockSize, numBlocks: numBlocks}, nil
}

func (d *FileDevice) Close() error { return d.file.Close() }

func (d *FileDevice) offset(block uint64) int64 {
	return int64(block) * int64(d.blockSize)
}

// Device returns a blockdev.Device capability record backed by this file.
func (d *FileDevice) Device() *Device {
	return &Device{
		ReadFunc:  d.readBlock,
		WriteFunc: d.writeBlock,
		AllocateRangeFunc: func(count uint64) ([]uint64, error) {
			return nil, vexfserrors.New(vexfserrors.CodeFeatureUnsupported, "raw FileDevice has no allocator; use storage/alloc.Allocator")
		},
		FreeRangeFunc: func(blocks []uint64) error {
			return vexfserrors.New(vexfserrors.CodeFeatureUnsupported, "raw FileDevice has no allocator; use storage/alloc.Allocator")
		},
		SyncFunc: d.sync,
		StatsFunc: func() Stats {
			return Stats{TotalBlocks: d.numBlocks}
		},
		BlockSizeFunc: func() uint32 { return d.blockSize },
	}
}

func (d *FileDevice) readBlock(block uint64, buf []byte) error {
	if block >= d.numBlocks {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block number out of range")
	}
	if uint32(len(buf)) != d.blockSize {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "buffer length does not match block size")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := unix.Pread(int(d.file.Fd()), buf, d.offset(block))
	if err != nil {
		return vexfserrors.Wrap(vexfserrors.CodeIO, "pread block", err)
	}
	if n != len(buf) {
		return vexfserrors.New(vexfserrors.CodeIO, "short read")
	}
	return nil
}

func (d *FileDevice) writeBlock(block uint64, buf []byte) error {
	if block >= d.numBlocks {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block number out of range")
	}
	if uint32(len(buf)) != d.blockSize {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "buffer length does not match block size")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := unix.Pwrite(int(d.file.Fd()), buf, d.offset(block))
	if err != nil {
		return vexfserrors.Wrap(vexfserrors.CodeIO, "pwrite block", err)
	}
	if n != len(buf) {
		return vexfserrors.New(vexfserrors.CodeIO, "short write")
	}
	return nil
}

func (d *FileDevice) sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		return vexfserrors.Wrap(vexfserrors.CodeIO, "fsync block device", err)
	}
	return nil
}

// NewMemDevice returns a Device backed by an in-memory byte slab, for tests
// and for the FUSE-only userspace mode where a real block device is not
// available.
func NewMemDevice(blockSize uint32, numBlocks uint64) *Device {
	mu := &sync.Mutex{}
	data := make([][]byte, numBlocks)
	for i := range data {
		data[i] = make([]byte, blockSize)
	}
	return &Device{
		ReadFunc: func(block uint64, buf []byte) error {
			mu.Lock()
			defer mu.Unlock()
			if block >= numBlocks {
				return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block number out of range")
			}
			copy(buf, data[block])
			return nil
		},
		WriteFunc: func(block uint64, buf []byte) error {
			mu.Lock()
			defer mu.Unlock()
			if block >= numBlocks {
				return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block number out of range")
			}
			copy(data[block], buf)
			return nil
		},
		AllocateRangeFunc: func(count uint64) ([]uint64, error) {
			return nil, vexfserrors.New(vexfserrors.CodeFeatureUnsupported, "raw MemDevice has no allocator; use storage/alloc.Allocator")
		},
		FreeRangeFunc: func(blocks []uint64) error {
			return vexfserrors.New(vexfserrors.CodeFeatureUnsupported, "raw MemDevice has no allocator; use storage/alloc.Allocator")
		},
		SyncFunc: func() error { return nil },
		StatsFunc: func() Stats {
			return Stats{TotalBlocks: numBlocks}
		},
		BlockSizeFunc: func() uint32 { return blockSize },
	}
}
