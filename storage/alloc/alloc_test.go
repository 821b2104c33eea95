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

package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateContiguousWithinGroup(t *testing.T) {
	a := New(4096, 256, 64)

	res, err := a.Allocate(8, 0, StrategyLocality)

	require.NoError(t, err)
	assert.Len(t, res.Blocks, 8)
	assert.Equal(t, uint64(248), a.FreeBlocks())
}

func TestAllocateRejectsInsufficientSpace(t *testing.T) {
	a := New(4096, 16, 16)

	_, err := a.Allocate(32, 0, StrategyLocality)

	require.Error(t, err)
}

func TestFreeReturnsBlocksToPool(t *testing.T) {
	a := New(4096, 64, 64)
	res, err := a.Allocate(10, 0, StrategyLocality)
	require.NoError(t, err)

	require.NoError(t, a.Free(res.Blocks))

	assert.Equal(t, uint64(64), a.FreeBlocks())
}

func TestFreeRejectsDoubleFree(t *testing.T) {
	a := New(4096, 64, 64)
	res, err := a.Allocate(4, 0, StrategyLocality)
	require.NoError(t, err)
	require.NoError(t, a.Free(res.Blocks))

	err = a.Free(res.Blocks)

	assert.Error(t, err)
}

func TestLocalityStrategyPrefersHintGroup(t *testing.T) {
	a := New(4096, 128, 32)
	// Fill the first group entirely, so a request that ignored the hint
	// would land in group 1 rather than the hint group (index 2).
	_, err := a.Allocate(32, 0, StrategyLocality)
	require.NoError(t, err)

	res, err := a.Allocate(4, 72, StrategyLocality)

	require.NoError(t, err)
	assert.Equal(t, 2, res.GroupIndex)
}

func TestFragmentationScoreZeroWhenContiguous(t *testing.T) {
	g := newGroup(0, 32)
	assert.Equal(t, float64(0), g.FragmentationScore())
}

func TestPopcountMatchesFreeAccounting(t *testing.T) {
	a := New(4096, 64, 64)
	res, err := a.Allocate(10, 0, StrategyLocality)
	require.NoError(t, err)

	used := popcount(a.groups[0].bitmap)

	assert.Equal(t, uint64(len(res.Blocks)), used)
}

func TestReserveRemovesBlocksFromFreeSpace(t *testing.T) {
	a := New(4096, 64, 64)

	require.NoError(t, a.Reserve([]uint64{0, 1, 2}))

	assert.Equal(t, uint64(61), a.FreeBlocks())
}

func TestReserveIsIdempotent(t *testing.T) {
	a := New(4096, 64, 64)
	require.NoError(t, a.Reserve([]uint64{0}))

	require.NoError(t, a.Reserve([]uint64{0}))

	assert.Equal(t, uint64(63), a.FreeBlocks())
}

func TestAllocateNeverReturnsReservedBlocks(t *testing.T) {
	a := New(4096, 8, 8)
	require.NoError(t, a.Reserve([]uint64{0, 1, 2}))

	res, err := a.Allocate(5, 0, StrategyLocality)

	require.NoError(t, err)
	for _, b := range res.Blocks {
		assert.Greater(t, b, uint64(2))
	}
}
