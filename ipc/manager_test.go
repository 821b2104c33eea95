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

package ipc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxConcurrentRequests: 4,
		RequestTimeout:        time.Second,
		MaxQueueSize:          4,
		MaxBatchSize:          4,
		MaxRetryAttempts:      2,
		RetryBackoffBase:      time.Millisecond,
	}
}

func alwaysSucceeds(id ServiceID) Service {
	return Service{
		ID:   id,
		Embed: func(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
			return EmbeddingResponse{Vector: []float32{1, 2, 3}}, nil
		},
		Load: func() int { return 0 },
	}
}

func alwaysFails(id ServiceID) Service {
	return Service{
		ID: id,
		Embed: func(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
			return EmbeddingResponse{}, assert.AnError
		},
		Load: func() int { return 0 },
	}
}

func TestSendEmbeddingRequestSucceeds(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(alwaysSucceeds("svc-a"), 3, 100))
	m := NewManager(reg, testConfig(), nil)

	resp, err := m.SendEmbeddingRequest(context.Background(), EmbeddingRequest{Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, resp.Vector)
}

func TestSendEmbeddingRequestRetriesThenFails(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(alwaysFails("svc-a"), 10, time.Hour.Milliseconds()))
	m := NewManager(reg, testConfig(), nil)

	_, err := m.SendEmbeddingRequest(context.Background(), EmbeddingRequest{Text: "hi"})

	require.Error(t, err)
	assert.Equal(t, int64(testConfig().MaxRetryAttempts), m.Stats().Retries)
}

func TestLeastLoadedAmongTopKPrefersLowerLoad(t *testing.T) {
	reg := NewRegistry()
	var loadA, loadB int32 = 10, 0
	svcA := Service{ID: "a", Embed: okEmbed, Load: func() int { return int(atomic.LoadInt32(&loadA)) }}
	svcB := Service{ID: "b", Embed: okEmbed, Load: func() int { return int(atomic.LoadInt32(&loadB)) }}
	require.NoError(t, reg.Register(svcA, 3, 100))
	require.NoError(t, reg.Register(svcB, 3, 100))

	entry, err := reg.leastLoadedAmongTopK(2)

	require.NoError(t, err)
	assert.Equal(t, ServiceID("b"), entry.Service.ID)
}

func okEmbed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	return EmbeddingResponse{}, nil
}

func TestSendBatchEmbeddingRequestRejectsOversizedBatch(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(alwaysSucceeds("svc-a"), 3, 100))
	cfg := testConfig()
	cfg.MaxBatchSize = 1
	m := NewManager(reg, cfg, nil)

	_, err := m.SendBatchEmbeddingRequest(context.Background(), []BatchRequest{
		{ID: uuid.New(), Req: EmbeddingRequest{Text: "a"}},
		{ID: uuid.New(), Req: EmbeddingRequest{Text: "b"}},
	})

	assert.Error(t, err)
}

func TestSendBatchEmbeddingRequestReturnsResultsInOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(alwaysSucceeds("svc-a"), 3, 100))
	m := NewManager(reg, testConfig(), nil)
	id1, id2 := uuid.New(), uuid.New()

	results, err := m.SendBatchEmbeddingRequest(context.Background(), []BatchRequest{
		{ID: id1, Req: EmbeddingRequest{Text: "a"}},
		{ID: id2, Req: EmbeddingRequest{Text: "b"}},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, id1, results[0].ID)
	assert.Equal(t, id2, results[1].ID)
}

func TestQueueRejectsBeyondMaxQueueSize(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(alwaysSucceeds("svc-a"), 3, 100))
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	cfg.MaxConcurrentRequests = 1
	m := NewManager(reg, cfg, nil)
	for i := 0; i < cfg.MaxQueueSize; i++ {
		m.queued++
	}

	_, err := m.SendEmbeddingRequest(context.Background(), EmbeddingRequest{Text: "x"})

	assert.Error(t, err)
}
