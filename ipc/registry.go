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

// Package ipc implements L10: the embedding-service registry, least-loaded
// load balancer, retrying request handler, bounded work queue, response
// correlator, and per-service circuit breaker. A Service is a capability
// record (function-shaped fields), patterned on the teacher's gcs.Bucket/
// gcs.Conn interfaces but reduced to plain functions per spec.md §9.
package ipc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// ServiceID identifies one registered embedding service.
type ServiceID string

// EmbeddingRequest carries the payload to embed.
type EmbeddingRequest struct {
	Text string
}

// EmbeddingResponse carries the resulting vector.
type EmbeddingResponse struct {
	Vector []float32
}

// Service is the capability record a transport implementation fills in to
// register an embedding backend.
type Service struct {
	ID     ServiceID
	Embed  func(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error)
	Load   func() int // caller-reported current in-flight request count
}

// ServiceRegistryEntry pairs a registered Service with its own circuit
// breaker, so one failing service never affects another's availability.
type ServiceRegistryEntry struct {
	Service Service
	Breaker *CircuitBreaker
}

// Registry tracks every embedding service available to the IPC manager.
type Registry struct {
	mu      sync.RWMutex
	entries map[ServiceID]*ServiceRegistryEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ServiceID]*ServiceRegistryEntry)}
}

// Register adds svc to the registry with a fresh circuit breaker.
func (r *Registry) Register(svc Service, failureThreshold int, cooldownMs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[svc.ID]; exists {
		return vexfserrors.New(vexfserrors.CodeAlreadyExists, "service already registered: "+string(svc.ID))
	}
	r.entries[svc.ID] = &ServiceRegistryEntry{
		Service: svc,
		Breaker: NewCircuitBreaker(failureThreshold, msToDuration(cooldownMs)),
	}
	return nil
}

// Unregister removes a service.
func (r *Registry) Unregister(id ServiceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such service: "+string(id))
	}
	delete(r.entries, id)
	return nil
}

// Get returns the registry entry for id.
func (r *Registry) Get(id ServiceID) (*ServiceRegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "no such service: "+string(id))
	}
	return e, nil
}

// leastLoadedAmongTopK selects the lowest-loaded of the k entries whose
// circuit breaker currently allows traffic, returning an error if none do.
func (r *Registry) leastLoadedAmongTopK(k int) (*ServiceRegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		entry *ServiceRegistryEntry
		load  int
	}
	var candidates []scored
	for _, e := range r.entries {
		if !e.Breaker.Allow() {
			continue
		}
		candidates = append(candidates, scored{entry: e, load: e.Service.Load()})
	}
	if len(candidates) == 0 {
		return nil, vexfserrors.New(vexfserrors.CodeResourceExhausted, "no available embedding service")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].load < candidates[j].load })
	if k > len(candidates) {
		k = len(candidates)
	}
	best := candidates[0]
	for _, c := range candidates[1:k] {
		if c.load < best.load {
			best = c
		}
	}
	return best.entry, nil
}

func msToDuration(ms int) (d time.Duration) {
	return time.Duration(ms) * time.Millisecond
}
