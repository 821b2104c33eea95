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

package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndSearchFindsNearestNeighbor(t *testing.T) {
	idx, err := New(DefaultConfig())
	require.NoError(t, err)

	var target NodeID
	for i := 0; i < 50; i++ {
		v := []float32{float32(i), float32(i) * 2}
		id, _, err := idx.Insert(v)
		require.NoError(t, err)
		if i == 25 {
			target = id
		}
	}

	results, err := idx.Search([]float32{25, 50}, 1, nil)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, target, results[0].ID)
}

func TestSearchAppliesFilter(t *testing.T) {
	idx, err := New(DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, _, err := idx.Insert([]float32{float32(i), 0})
		require.NoError(t, err)
	}

	results, err := idx.Search([]float32{10, 0}, 3, func(id NodeID) bool {
		return id%2 == 0
	})

	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, NodeID(0), r.ID%2)
	}
}

func TestSearchOnEmptyIndexIsNotFound(t *testing.T) {
	idx, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 2}, 1, nil)

	assert.Error(t, err)
}

