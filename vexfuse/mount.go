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

package vexfuse

import (
	"context"
	"fmt"

	"github.com/jacobsa/fuse"

	"github.com/lspecian/vexfs-sub013/cfg"
	"github.com/lspecian/vexfs-sub013/core"
	"github.com/lspecian/vexfs-sub013/storage/blockdev"
)

// Mount brings up a VexFS image over devicePath and attaches it at
// mountPoint, mirroring the teacher's mountWithStorageHandle: build the
// control-surface Filesystem first, then hand it to jacobsa/fuse wrapped in
// the fuseutil.FileSystem adapter.
func Mount(ctx context.Context, devicePath, mountPoint string, numBlocks uint64, settings cfg.Config) (*fuse.MountedFileSystem, error) {
	dev, err := openDevice(devicePath, uint32(settings.Storage.BlockSize), numBlocks)
	if err != nil {
		return nil, err
	}

	fs, err := core.Mount(core.Config{
		Device:    dev,
		NumBlocks: numBlocks,
		Settings:  settings,
	})
	if err != nil {
		return nil, fmt.Errorf("core.Mount: %w", err)
	}

	fsys := New(fs)

	mountCfg := getFuseMountConfig(settings)
	mfs, err := fuse.Mount(mountPoint, fsys, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("fuse.Mount: %w", err)
	}
	return mfs, nil
}

func openDevice(devicePath string, blockSize uint32, numBlocks uint64) (*blockdev.Device, error) {
	file, err := blockdev.OpenFile(devicePath, blockSize, numBlocks)
	if err != nil {
		return nil, err
	}
	return file.Device(), nil
}

// getFuseMountConfig builds the jacobsa/fuse mount options. FUSE protocol
// tracing (as opposed to VexFS's own structured logging) is left to
// jacobsa/fuse's defaults; ErrorLogger/DebugLogger take a *log.Logger, which
// this repo's slog-based logger does not produce, so they are left unset.
func getFuseMountConfig(settings cfg.Config) *fuse.MountConfig {
	return &fuse.MountConfig{
		FSName:     "vexfs",
		Subtype:    "vexfs",
		VolumeName: "vexfs",
	}
}
