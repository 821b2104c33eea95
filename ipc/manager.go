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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lspecian/vexfs-sub013/telemetry"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config tunes the manager's concurrency, retry, and queueing behavior.
type Config struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	MaxQueueSize          int
	MaxBatchSize          int
	MaxRetryAttempts      int
	RetryBackoffBase      time.Duration
	LoadBalanceTopK       int
}

// Stats reports the manager's lifetime counters.
type Stats struct {
	Dispatched int64
	Queued     int64
	Rejected   int64
	Retries    int64
	Failures   int64
}

// Manager is the IPC layer's entry point: it load-balances requests across
// registered services, retries with exponential backoff on failure, and
// rejects work once its bounded queue is full (back-pressure).
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	registry *Registry
	sem      chan struct{}
	queued   int
	limiter  *rate.Limiter
	metrics  telemetry.MetricHandle
	stats    Stats
}

// NewManager constructs a Manager over registry using cfg.
func NewManager(registry *Registry, cfg Config, metrics telemetry.MetricHandle) *Manager {
	if metrics == nil {
		metrics = telemetry.NoopHandle{}
	}
	if cfg.LoadBalanceTopK <= 0 {
		cfg.LoadBalanceTopK = 3
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		sem:      make(chan struct{}, cfg.MaxConcurrentRequests),
		limiter:  rate.NewLimiter(rate.Limit(cfg.MaxConcurrentRequests), cfg.MaxConcurrentRequests),
		metrics:  metrics,
	}
}

func (m *Manager) reserveQueueSlot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queued >= m.cfg.MaxQueueSize {
		return false
	}
	m.queued++
	return true
}

func (m *Manager) releaseQueueSlot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued--
}

// SendEmbeddingRequest dispatches a single request to the least-loaded
// available service, retrying with exponential backoff up to
// MaxRetryAttempts.
func (m *Manager) SendEmbeddingRequest(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return EmbeddingResponse{}, vexfserrors.Wrap(vexfserrors.CodeCancelled, "ipc admission rate limiter", err)
	}
	if !m.reserveQueueSlot() {
		m.mu.Lock()
		m.stats.Rejected++
		m.mu.Unlock()
		m.metrics.IPCDispatch(ctx, "rejected")
		return EmbeddingResponse{}, vexfserrors.New(vexfserrors.CodeResourceExhausted, "ipc queue is full")
	}
	defer m.releaseQueueSlot()

	m.mu.Lock()
	m.stats.Queued++
	m.mu.Unlock()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return EmbeddingResponse{}, vexfserrors.Wrap(vexfserrors.CodeCancelled, "ipc request cancelled while queued", ctx.Err())
	}

	var lastErr error
	backoff := m.cfg.RetryBackoffBase
	for attempt := 0; attempt <= m.cfg.MaxRetryAttempts; attempt++ {
		entry, err := m.registry.leastLoadedAmongTopK(m.cfg.LoadBalanceTopK)
		if err != nil {
			lastErr = err
			break
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if m.cfg.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		}
		resp, err := entry.Service.Embed(reqCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			entry.Breaker.RecordSuccess()
			m.mu.Lock()
			m.stats.Dispatched++
			m.mu.Unlock()
			m.metrics.IPCDispatch(ctx, "assigned")
			return resp, nil
		}

		entry.Breaker.RecordFailure()
		lastErr = err

		if attempt < m.cfg.MaxRetryAttempts {
			m.mu.Lock()
			m.stats.Retries++
			m.mu.Unlock()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return EmbeddingResponse{}, vexfserrors.Wrap(vexfserrors.CodeCancelled, "ipc request cancelled during backoff", ctx.Err())
			}
			backoff *= 2
		}
	}

	m.mu.Lock()
	m.stats.Failures++
	m.mu.Unlock()
	return EmbeddingResponse{}, vexfserrors.Wrap(vexfserrors.CodeTimeout, "ipc request exhausted retries", lastErr)
}

// BatchRequest is one item of a SendBatchEmbeddingRequest call.
type BatchRequest struct {
	ID  uuid.UUID
	Req EmbeddingRequest
}

// BatchResult pairs a BatchRequest's id with its outcome.
type BatchResult struct {
	ID    uuid.UUID
	Resp  EmbeddingResponse
	Err   error
}

// SendBatchEmbeddingRequest dispatches up to MaxBatchSize requests
// concurrently, each independently retried, returning results in the same
// order as the input (§ supplemented feature: batch size is capped
// independently of queue size).
func (m *Manager) SendBatchEmbeddingRequest(ctx context.Context, reqs []BatchRequest) ([]BatchResult, error) {
	if len(reqs) > m.cfg.MaxBatchSize {
		return nil, vexfserrors.New(vexfserrors.CodeInvalidArgument, "batch exceeds max-batch-size")
	}

	results := make([]BatchResult, len(reqs))
	var g errgroup.Group
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			resp, err := m.SendEmbeddingRequest(ctx, r.Req)
			results[i] = BatchResult{ID: r.ID, Resp: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Stats returns a snapshot of the manager's lifetime counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
