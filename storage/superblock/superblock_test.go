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

package superblock

import (
	"testing"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutCalculatorDerivesInodeTableSize(t *testing.T) {
	lc := LayoutCalculator{BlockSize: 4096, JournalBlocks: 1024, GroupSize: 8192}

	layout := lc.Calculate(1 << 20)

	assert.Equal(t, uint32(4096), layout.BlockSize)
	assert.Greater(t, layout.InodeTableBlocks, uint64(0))
}

func TestNewSuperblockValidates(t *testing.T) {
	layout := LayoutCalculator{BlockSize: 4096, JournalBlocks: 1024, GroupSize: 8192}.Calculate(1 << 16)
	sb := New(layout, FeatureVectorStorage|FeatureHNSWIndex)

	require.NoError(t, sb.Validate())
	assert.True(t, sb.HasFeature(FeatureVectorStorage))
	assert.False(t, sb.HasFeature(FeatureSnapshots))
}

func TestValidateDetectsChecksumCorruption(t *testing.T) {
	layout := LayoutCalculator{BlockSize: 4096, JournalBlocks: 1024, GroupSize: 8192}.Calculate(1 << 16)
	sb := New(layout, 0)
	sb.RootInode = 99 // mutate without recomputing checksum

	err := sb.Validate()

	require.Error(t, err)
	assert.True(t, vexfserrors.IsCorruption(err))
}

func TestRecordMountRefreshesChecksum(t *testing.T) {
	layout := LayoutCalculator{BlockSize: 4096, JournalBlocks: 1024, GroupSize: 8192}.Calculate(1 << 16)
	sb := New(layout, 0)

	sb.RecordMount(1700000000)

	assert.Equal(t, uint32(1), sb.MountCount)
	require.NoError(t, sb.Validate())
}
