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

package store

import (
	"testing"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Put([]float32{1, 2, 3}, map[string]string{"label": "x"})
	require.NoError(t, err)

	rec, err := s.Get(id)

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, rec.Vector)
}

func TestGetUnknownIDIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(999)

	assert.True(t, vexfserrors.IsNotFound(err))
}

func TestDeleteRemovesVector(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Put([]float32{1}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))

	_, err = s.Get(id)
	assert.Error(t, err)
}

func TestBatchPutAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.BatchPut([][]float32{{1}, {2}, {3}}, nil)

	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, []VectorID{1, 2, 3}, ids)
	assert.Equal(t, 3, s.Len())
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Put([]float32{1.5, -2.5, 3.25}, nil)
	require.NoError(t, err)
	rec, err := s.Get(id)
	require.NoError(t, err)

	encoded, err := s.EncodeBlock(rec)
	require.NoError(t, err)
	decoded, err := s.DecodeBlock(encoded)
	require.NoError(t, err)

	assert.Equal(t, rec.Vector, decoded.Vector)
	assert.Equal(t, rec.ID, decoded.ID)
}

func TestPutRejectsEmptyVector(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put(nil, nil)

	assert.Error(t, err)
}
