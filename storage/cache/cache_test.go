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

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(16, nil)
	c.Insert(1, &Entry{Block: 1, Data: make([]byte, 8)})
	c.Insert(2, &Entry{Block: 2, Data: make([]byte, 8)})

	evicted := c.Insert(3, &Entry{Block: 3, Data: make([]byte, 8)})

	require.Len(t, evicted, 1)
	assert.Equal(t, uint64(1), evicted[0].Block)
	c.CheckInvariants()
}

func TestLookUpPromotesToMostRecentlyUsed(t *testing.T) {
	c := New(16, nil)
	c.Insert(1, &Entry{Block: 1, Data: make([]byte, 8)})
	c.Insert(2, &Entry{Block: 2, Data: make([]byte, 8)})

	got := c.LookUp(context.Background(), 1)
	require.NotNil(t, got)

	evicted := c.Insert(3, &Entry{Block: 3, Data: make([]byte, 8)})

	require.Len(t, evicted, 1)
	assert.Equal(t, uint64(2), evicted[0].Block, "block 1 was refreshed, so block 2 should evict first")
}

func TestLookUpMissReturnsNil(t *testing.T) {
	c := New(16, nil)

	assert.Nil(t, c.LookUp(context.Background(), 42))
}

func TestEraseRemovesEntry(t *testing.T) {
	c := New(16, nil)
	c.Insert(1, &Entry{Block: 1, Data: make([]byte, 8)})

	e := c.Erase(1)

	require.NotNil(t, e)
	assert.Nil(t, c.LookUp(context.Background(), 1))
	c.CheckInvariants()
}

func TestInsertReplacesExistingKeyWithoutDoubleCounting(t *testing.T) {
	c := New(64, nil)
	c.Insert(1, &Entry{Block: 1, Data: make([]byte, 8)})
	c.Insert(1, &Entry{Block: 1, Data: make([]byte, 16)})

	assert.Equal(t, uint64(16), c.UsedWeight())
	c.CheckInvariants()
}
