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

// Package vexfuse is the cross-boundary FUSE front-end described in
// spec.md §4.6 and §1(c): it adapts core.Filesystem to jacobsa/fuse's
// fuseutil.FileSystem interface so a VexFS image can be mounted from
// userspace while remaining behaviorally equivalent to an in-kernel
// implementation, mirroring the teacher's fs.fileSystem adapting a GCS
// bucket to the same interface. The adapter keeps no journal of its own:
// each operation is forwarded to core.Filesystem, which emits semantic
// events for file writes, snapshot operations, mount and unmount when a
// semantic journal is configured.
package vexfuse

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/lspecian/vexfs-sub013/core"
	"github.com/lspecian/vexfs-sub013/logger"
	"github.com/lspecian/vexfs-sub013/storage/inode"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// FileSystem adapts a *core.Filesystem to fuseutil.FileSystem. Operations
// this repository's Non-goals exclude (xattrs, symlinks, hard links,
// fallocate) fall through to fuseutil.NotImplementedFileSystem.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	fs  *core.Filesystem
	log *logger.Logger

	mu      sync.Mutex
	handles map[fuseops.HandleID]*fileHandle
	nextHdl fuseops.HandleID
}

type fileHandle struct {
	inode fuseops.InodeID
}

// New wraps fs for mounting through jacobsa/fuse.
func New(fs *core.Filesystem) *FileSystem {
	return &FileSystem{
		fs:      fs,
		log:     logger.ForComponent("vexfuse"),
		handles: make(map[fuseops.HandleID]*fileHandle),
	}
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	return vexfserrors.CodeOf(err).Errno()
}

func attrFromInode(ino *inode.Inode) fuseops.InodeAttributes {
	a := ino.Attributes()
	mode := os.FileMode(a.Mode & 0o7777)
	if ino.Kind() == inode.TypeDirectory {
		mode |= os.ModeDir
	}
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   mode,
		Atime:  a.AccessUTC,
		Mtime:  a.ModifyUTC,
		Ctime:  a.ChangeUTC,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

// StatFS reports aggregate filesystem statistics, per spec.md §6.
func (fsys *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	stats := fsys.fs.Statfs(ctx)
	op.Blocks = stats.TotalBlocks
	op.BlocksFree = stats.FreeBlocks
	op.BlocksAvailable = stats.FreeBlocks
	op.IoSize = 4096
	op.BlockSize = 4096
	return nil
}

// LookUpInode resolves a child inode by name under a parent directory.
func (fsys *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, err := fsys.fs.GetDirectory(uint64(op.Parent))
	if err != nil {
		return toErrno(err)
	}
	parent.Mu.Lock()
	entry, err := parent.LookUp(op.Name)
	parent.Mu.Unlock()
	if err != nil {
		return toErrno(err)
	}

	if entry.Kind == inode.TypeDirectory {
		dir, err := fsys.fs.GetDirectory(entry.InodeID)
		if err != nil {
			return toErrno(err)
		}
		dir.IncrementLookupCount()
		dir.Mu.Lock()
		op.Entry.Attributes = attrFromInode(dir.Inode)
		dir.Mu.Unlock()
	} else {
		ino, err := fsys.fs.GetInode(entry.InodeID)
		if err != nil {
			return toErrno(err)
		}
		ino.IncrementLookupCount()
		ino.Mu.Lock()
		op.Entry.Attributes = attrFromInode(ino)
		ino.Mu.Unlock()
	}
	op.Entry.Child = fuseops.InodeID(entry.InodeID)
	return nil
}

// GetInodeAttributes reports an inode's POSIX attributes.
func (fsys *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	if dir, err := fsys.fs.GetDirectory(uint64(op.Inode)); err == nil {
		dir.Mu.Lock()
		op.Attributes = attrFromInode(dir.Inode)
		dir.Mu.Unlock()
		return nil
	}
	ino, err := fsys.fs.GetInode(uint64(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	ino.Mu.Lock()
	op.Attributes = attrFromInode(ino)
	ino.Mu.Unlock()
	return nil
}

// SetInodeAttributes applies a partial attribute update, most commonly a
// truncate driven through op.Size.
func (fsys *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	if op.Size != nil {
		if err := fsys.fs.Truncate(ctx, uint64(op.Inode), *op.Size); err != nil {
			return toErrno(err)
		}
	}
	ino, err := fsys.fs.GetInode(uint64(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	ino.Mu.Lock()
	op.Attributes = attrFromInode(ino)
	ino.Mu.Unlock()
	return nil
}

// ForgetInode drops the kernel's reference on an inode; VexFS itself keeps
// inodes resident until Unlink/Rmdir removes their last directory entry.
func (fsys *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

// MkDir creates a directory.
func (fsys *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	id, err := fsys.fs.Mkdir(ctx, uint64(op.Parent), op.Name)
	if err != nil {
		return toErrno(err)
	}
	dir, err := fsys.fs.GetDirectory(id)
	if err != nil {
		return toErrno(err)
	}
	dir.IncrementLookupCount()
	dir.Mu.Lock()
	op.Entry.Attributes = attrFromInode(dir.Inode)
	dir.Mu.Unlock()
	op.Entry.Child = fuseops.InodeID(id)
	return nil
}

// RmDir removes an empty directory.
func (fsys *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	return toErrno(fsys.fs.Rmdir(ctx, uint64(op.Parent), op.Name))
}

// CreateFile creates and opens a new regular file.
func (fsys *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	id, err := fsys.fs.Create(ctx, uint64(op.Parent), op.Name)
	if err != nil {
		return toErrno(err)
	}
	ino, err := fsys.fs.GetInode(id)
	if err != nil {
		return toErrno(err)
	}
	ino.IncrementLookupCount()
	ino.Mu.Lock()
	op.Entry.Attributes = attrFromInode(ino)
	ino.Mu.Unlock()
	op.Entry.Child = fuseops.InodeID(id)
	op.Handle = fsys.newHandle(op.Entry.Child)
	return nil
}

// Unlink removes a directory entry referring to a regular file.
func (fsys *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	return toErrno(fsys.fs.Unlink(ctx, uint64(op.Parent), op.Name))
}

// Rename moves a directory entry, possibly across parents.
func (fsys *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	return toErrno(fsys.fs.Rename(ctx, uint64(op.OldParent), op.OldName, uint64(op.NewParent), op.NewName))
}

func (fsys *FileSystem) newHandle(ino fuseops.InodeID) fuseops.HandleID {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.nextHdl++
	h := fsys.nextHdl
	fsys.handles[h] = &fileHandle{inode: ino}
	return h
}

// OpenFile opens an existing regular file for reading and/or writing.
func (fsys *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	if _, err := fsys.fs.GetInode(uint64(op.Inode)); err != nil {
		return toErrno(err)
	}
	op.Handle = fsys.newHandle(op.Inode)
	return nil
}

// ReadFile reads from an open file handle at the given offset.
func (fsys *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	n, err := fsys.fs.ReadFile(ctx, uint64(op.Inode), op.Offset, op.Dst)
	op.BytesRead = n
	if err != nil && n == 0 {
		return toErrno(err)
	}
	return nil
}

// WriteFile writes to an open file handle at the given offset.
func (fsys *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	_, err := fsys.fs.WriteFile(ctx, uint64(op.Inode), op.Offset, op.Data)
	return toErrno(err)
}

// SyncFile flushes a file's data to stable storage.
func (fsys *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return toErrno(fsys.fs.SyncFile(ctx, uint64(op.Inode)))
}

// FlushFile is the close()-time durability point; VexFS treats it the same
// as an explicit fsync.
func (fsys *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return toErrno(fsys.fs.SyncFile(ctx, uint64(op.Inode)))
}

// ReleaseFileHandle discards a previously opened handle.
func (fsys *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fsys.mu.Lock()
	delete(fsys.handles, op.Handle)
	fsys.mu.Unlock()
	return nil
}

// OpenDir opens a directory for listing.
func (fsys *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if _, err := fsys.fs.GetDirectory(uint64(op.Inode)); err != nil {
		return toErrno(err)
	}
	op.Handle = fsys.newHandle(op.Inode)
	return nil
}

// ReadDir lists directory entries starting at op.Offset, matching jacobsa/
// fuse's convention of returning io.EOF-free zero-byte writes at end of
// stream (ReaddirOp simply leaves BytesRead at zero).
func (fsys *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	dir, err := fsys.fs.GetDirectory(uint64(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	dir.Mu.Lock()
	entries := dir.List()
	dir.Mu.Unlock()

	if int(op.Offset) >= len(entries) {
		return nil
	}

	var written int
	for i := int(op.Offset); i < len(entries); i++ {
		e := entries[i]
		fuseType := fuseutil.DT_File
		if e.Kind == inode.TypeDirectory {
			fuseType = fuseutil.DT_Directory
		}
		n := fuseutil.WriteDirent(op.Dst[written:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.InodeID),
			Name:   e.Name,
			Type:   fuseType,
		})
		if n == 0 {
			break
		}
		written += n
	}
	op.BytesRead = written
	return nil
}

// ReleaseDirHandle discards a previously opened directory handle.
func (fsys *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fsys.mu.Lock()
	delete(fsys.handles, op.Handle)
	fsys.mu.Unlock()
	return nil
}

// Destroy releases resources held by the adapted core.Filesystem on
// unmount.
func (fsys *FileSystem) Destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fsys.fs.Unmount(ctx); err != nil {
		fsys.log.Errorf("unmount during Destroy failed: %v", err)
	}
}
