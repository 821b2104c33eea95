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

// Package alloc implements L1: a block-group allocator over a blockdev.Device.
// Free space is tracked per group with a bitmap. StrategyLocality tries the
// group containing a caller-supplied hint block first and then the other
// groups in index order; StrategyLeastFragmented tries groups in ascending
// fragmentation-score order.
package alloc

import (
	"math/bits"
	"sync"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// Group is one fixed-size block group's free-space bitmap and bookkeeping.
// A set bit means the block is in use.
type Group struct {
	FirstBlock uint64
	NumBlocks  uint64
	bitmap     []uint64
	freeCount  uint64
}

func newGroup(first, count uint64) *Group {
	words := (count + 63) / 64
	return &Group{FirstBlock: first, NumBlocks: count, bitmap: make([]uint64, words), freeCount: count}
}

func (g *Group) test(idx uint64) bool {
	return g.bitmap[idx/64]&(1<<(idx%64)) != 0
}

func (g *Group) set(idx uint64) {
	g.bitmap[idx/64] |= 1 << (idx % 64)
}

func (g *Group) clear(idx uint64) {
	g.bitmap[idx/64] &^= 1 << (idx % 64)
}

// FragmentationScore reports the group's free extents relative to its total
// free blocks, (extents-1)/free: 0 means fully contiguous free space, and
// the score peaks at (n-1)/n when each of n free blocks is isolated between
// used ones.
func (g *Group) FragmentationScore() float64 {
	if g.freeCount == 0 {
		return 0
	}
	extents := uint64(0)
	prevFree := false
	for i := uint64(0); i < g.NumBlocks; i++ {
		free := !g.test(i)
		if free && !prevFree {
			extents++
		}
		prevFree = free
	}
	if extents <= 1 {
		return 0
	}
	return float64(extents-1) / float64(g.freeCount)
}

// Allocator is the capability record spec.md §9 prescribes for the space
// allocator: group descriptors plus plain functions, no polymorphic
// interface hierarchy over allocation strategy.
type Allocator struct {
	mu         sync.Mutex
	blockSize  uint32
	groups     []*Group
	groupSize  uint64
	totalFree  uint64
	totalBlock uint64
}

// New creates an Allocator covering numBlocks blocks divided into groups of
// groupSize blocks each (the last group may be partial).
func New(blockSize uint32, numBlocks, groupSize uint64) *Allocator {
	a := &Allocator{blockSize: blockSize, groupSize: groupSize, totalBlock: numBlocks}
	for first := uint64(0); first < numBlocks; first += groupSize {
		count := groupSize
		if first+count > numBlocks {
			count = numBlocks - first
		}
		a.groups = append(a.groups, newGroup(first, count))
		a.totalFree += count
	}
	return a
}

// AllocationStrategy selects how a request chooses among candidate groups.
type AllocationStrategy int

const (
	// StrategyLocality prefers the group containing the hint block.
	StrategyLocality AllocationStrategy = iota
	// StrategyLeastFragmented prefers the group with the lowest fragmentation score.
	StrategyLeastFragmented
)

// AllocationResult reports what Allocate produced.
type AllocationResult struct {
	Blocks        []uint64
	GroupIndex    int
	Fragmentation float64
}

// Allocate reserves count contiguous-preferred blocks, honoring hint as a
// locality preference when strategy is StrategyLocality.
func (a *Allocator) Allocate(count uint64, hint uint64, strategy AllocationStrategy) (AllocationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count == 0 {
		return AllocationResult{}, vexfserrors.New(vexfserrors.CodeInvalidArgument, "allocate count must be positive")
	}
	if a.totalFree < count {
		return AllocationResult{}, vexfserrors.New(vexfserrors.CodeNoSpace, "insufficient free blocks")
	}

	order := a.candidateOrder(hint, strategy)
	for _, gi := range order {
		g := a.groups[gi]
		if g.freeCount < count {
			continue
		}
		if blocks, ok := g.allocateContiguousOrScattered(count); ok {
			a.totalFree -= count
			return AllocationResult{Blocks: blocks, GroupIndex: gi, Fragmentation: g.FragmentationScore()}, nil
		}
	}
	return AllocationResult{}, vexfserrors.New(vexfserrors.CodeNoSpace, "no group satisfies request contiguously")
}

func (a *Allocator) candidateOrder(hint uint64, strategy AllocationStrategy) []int {
	order := make([]int, len(a.groups))
	for i := range order {
		order[i] = i
	}
	switch strategy {
	case StrategyLocality:
		hintGroup := 0
		for i, g := range a.groups {
			if hint >= g.FirstBlock && hint < g.FirstBlock+g.NumBlocks {
				hintGroup = i
				break
			}
		}
		order[0], order[hintGroup] = order[hintGroup], order[0]
	case StrategyLeastFragmented:
		sortByFragmentation(order, a.groups)
	}
	return order
}

func sortByFragmentation(order []int, groups []*Group) {
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && groups[order[j]].FragmentationScore() < groups[order[j-1]].FragmentationScore() {
			order[j], order[j-1] = order[j-1], order[j]
			j--
		}
	}
}

func (g *Group) allocateContiguousOrScattered(count uint64) ([]uint64, bool) {
	if run := g.findContiguousRun(count); run >= 0 {
		blocks := make([]uint64, count)
		for i := uint64(0); i < count; i++ {
			idx := uint64(run) + i
			g.set(idx)
			blocks[i] = g.FirstBlock + idx
		}
		g.freeCount -= count
		return blocks, true
	}

	blocks := make([]uint64, 0, count)
	for i := uint64(0); i < g.NumBlocks && uint64(len(blocks)) < count; i++ {
		if !g.test(i) {
			g.set(i)
			blocks = append(blocks, g.FirstBlock+i)
		}
	}
	if uint64(len(blocks)) == count {
		g.freeCount -= count
		return blocks, true
	}
	for _, b := range blocks {
		g.clear(b - g.FirstBlock)
	}
	g.freeCount += uint64(len(blocks))
	return nil, false
}

func (g *Group) findContiguousRun(count uint64) int64 {
	run := uint64(0)
	start := int64(-1)
	for i := uint64(0); i < g.NumBlocks; i++ {
		if !g.test(i) {
			if run == 0 {
				start = int64(i)
			}
			run++
			if run == count {
				return start
			}
		} else {
			run = 0
			start = -1
		}
	}
	return -1
}

// Reserve marks blocks as permanently in use without ever handing them back
// out through Allocate, for fixed regions (the superblock, the journal)
// that must never be mistaken for free file-data space. Reserving an
// already-reserved block is a no-op.
func (a *Allocator) Reserve(blocks []uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range blocks {
		gi := a.groupIndexOf(b)
		if gi < 0 {
			return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block outside any group")
		}
		g := a.groups[gi]
		idx := b - g.FirstBlock
		if g.test(idx) {
			continue
		}
		g.set(idx)
		g.freeCount--
		a.totalFree--
	}
	return nil
}

// Free releases blocks back to their owning groups.
func (a *Allocator) Free(blocks []uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range blocks {
		gi := a.groupIndexOf(b)
		if gi < 0 {
			return vexfserrors.New(vexfserrors.CodeInvalidArgument, "block outside any group")
		}
		g := a.groups[gi]
		idx := b - g.FirstBlock
		if !g.test(idx) {
			return vexfserrors.New(vexfserrors.CodeInvalidArgument, "double free of block")
		}
		g.clear(idx)
		g.freeCount++
		a.totalFree++
	}
	return nil
}

func (a *Allocator) groupIndexOf(block uint64) int {
	if a.groupSize == 0 {
		return -1
	}
	gi := int(block / a.groupSize)
	if gi < 0 || gi >= len(a.groups) {
		return -1
	}
	return gi
}

// FreeBlocks returns the number of currently unallocated blocks.
func (a *Allocator) FreeBlocks() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalFree
}

// TotalBlocks returns the allocator's full managed capacity.
func (a *Allocator) TotalBlocks() uint64 {
	return a.totalBlock
}

// OverallFragmentation averages each group's fragmentation score, weighted
// by its free block count.
func (a *Allocator) OverallFragmentation() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.totalFree == 0 {
		return 0
	}
	var weighted float64
	for _, g := range a.groups {
		weighted += g.FragmentationScore() * float64(g.freeCount)
	}
	return weighted / float64(a.totalFree)
}

// popcount is used by tests validating bitmap accounting against freeCount.
func popcount(words []uint64) uint64 {
	var n uint64
	for _, w := range words {
		n += uint64(bits.OnesCount64(w))
	}
	return n
}
