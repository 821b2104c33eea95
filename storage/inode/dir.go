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

package inode

import (
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// RootInodeID is the fixed inode number of the filesystem root directory.
const RootInodeID uint64 = 1

// Directory wraps an Inode of kind TypeDirectory with its entry list. Entries
// are kept in an ordered slice rather than only a map so readdir can offer a
// stable traversal order across calls, matching the teacher's directory
// listing behavior.
type Directory struct {
	*Inode
	entries []DirEntry
	byName  map[string]int // name -> index into entries
}

// NewDirectory creates an empty directory inode.
func NewDirectory(id uint64, attrs Attributes) *Directory {
	return &Directory{
		Inode:  New(id, TypeDirectory, attrs),
		byName: make(map[string]int),
	}
}

// NewRoot creates the filesystem root directory inode.
func NewRoot(attrs Attributes) *Directory {
	return NewDirectory(RootInodeID, attrs)
}

// LookUp finds a child by name.
//
// SHARED_LOCKS_REQUIRED(d.Mu)
func (d *Directory) LookUp(name string) (DirEntry, error) {
	idx, ok := d.byName[name]
	if !ok {
		return DirEntry{}, vexfserrors.New(vexfserrors.CodeNotFound, "no such directory entry: "+name)
	}
	return d.entries[idx], nil
}

// AddEntry inserts a new child, failing if the name already exists.
//
// GUARDED_BY(d.Mu)
func (d *Directory) AddEntry(entry DirEntry) error {
	if _, ok := d.byName[entry.Name]; ok {
		return vexfserrors.New(vexfserrors.CodeAlreadyExists, "directory entry already exists: "+entry.Name)
	}
	d.byName[entry.Name] = len(d.entries)
	d.entries = append(d.entries, entry)
	return nil
}

// RemoveEntry deletes a child by name, failing if it does not exist.
//
// GUARDED_BY(d.Mu)
func (d *Directory) RemoveEntry(name string) error {
	idx, ok := d.byName[name]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such directory entry: "+name)
	}
	last := len(d.entries) - 1
	d.entries[idx] = d.entries[last]
	d.byName[d.entries[idx].Name] = idx
	d.entries = d.entries[:last]
	delete(d.byName, name)
	return nil
}

// RenameEntry atomically changes a child's name, failing if oldName is
// absent or newName is already taken.
//
// GUARDED_BY(d.Mu)
func (d *Directory) RenameEntry(oldName, newName string) error {
	if _, ok := d.byName[newName]; ok {
		return vexfserrors.New(vexfserrors.CodeAlreadyExists, "directory entry already exists: "+newName)
	}
	idx, ok := d.byName[oldName]
	if !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such directory entry: "+oldName)
	}
	d.entries[idx].Name = newName
	delete(d.byName, oldName)
	d.byName[newName] = idx
	return nil
}

// List returns a snapshot of the directory's current entries in traversal
// order.
//
// SHARED_LOCKS_REQUIRED(d.Mu)
func (d *Directory) List() []DirEntry {
	out := make([]DirEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// IsEmpty reports whether the directory has no entries (rmdir precondition).
//
// SHARED_LOCKS_REQUIRED(d.Mu)
func (d *Directory) IsEmpty() bool { return len(d.entries) == 0 }
