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

// Package cache implements L2: a weighted LRU block cache, shaped after the
// teacher's internal/cache/lrucache API (Insert/Erase/LookUp, weight-bound
// eviction) with block numbers as keys and cached block contents as values.
package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/lspecian/vexfs-sub013/telemetry"
)

// Entry is the cacheable unit: a block's bytes plus a dirty flag so the
// journal/superblock layers know whether an eviction must first be flushed.
type Entry struct {
	Block uint64
	Data  []byte
	Dirty bool
}

// Size reports the entry's weight for the cache's capacity accounting.
func (e *Entry) Size() uint64 { return uint64(len(e.Data)) }

type elem struct {
	key   uint64
	value *Entry
}

// Cache is a weight-bounded LRU keyed by block number. Insert evicts the
// least-recently-used entries until the new entry fits within maxWeight,
// returning everything it evicted so the caller (typically the journal) can
// flush dirty blocks before they are gone.
type Cache struct {
	mu          sync.Mutex
	maxWeight   uint64
	usedWeight  uint64
	ll          *list.List
	index       map[uint64]*list.Element
	metrics     telemetry.MetricHandle
}

// New returns an empty Cache that evicts to stay within maxWeight bytes.
func New(maxWeight uint64, metrics telemetry.MetricHandle) *Cache {
	if metrics == nil {
		metrics = telemetry.NoopHandle{}
	}
	return &Cache{
		maxWeight: maxWeight,
		ll:        list.New(),
		index:     make(map[uint64]*list.Element),
		metrics:   metrics,
	}
}

// Insert adds or replaces the entry for block, evicting LRU entries as
// needed, and returns every entry evicted to make room.
func (c *Cache) Insert(block uint64, value *Entry) []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[block]; ok {
		old := el.Value.(*elem).value
		c.usedWeight -= old.Size()
		c.ll.Remove(el)
		delete(c.index, block)
	}

	el := c.ll.PushFront(&elem{key: block, value: value})
	c.index[block] = el
	c.usedWeight += value.Size()

	var evicted []*Entry
	for c.usedWeight > c.maxWeight {
		back := c.ll.Back()
		if back == nil {
			break
		}
		e := back.Value.(*elem)
		if e.key == block {
			break
		}
		c.ll.Remove(back)
		delete(c.index, e.key)
		c.usedWeight -= e.value.Size()
		evicted = append(evicted, e.value)
	}
	return evicted
}

// Erase removes block from the cache, returning its entry (nil if absent).
func (c *Cache) Erase(block uint64) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[block]
	if !ok {
		return nil
	}
	e := el.Value.(*elem)
	c.ll.Remove(el)
	delete(c.index, block)
	c.usedWeight -= e.value.Size()
	return e.value
}

// LookUp returns block's cached entry, promoting it to most-recently-used,
// or nil on a miss. ctx is used only to tag the telemetry measurement.
func (c *Cache) LookUp(ctx context.Context, block uint64) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[block]
	if !ok {
		c.metrics.CacheAccess(ctx, "miss")
		return nil
	}
	c.ll.MoveToFront(el)
	c.metrics.CacheAccess(ctx, "hit")
	return el.Value.(*elem).value
}

// CheckInvariants panics if the cache's internal bookkeeping has drifted
// from the list it's meant to mirror; intended for tests only.
func (c *Cache) CheckInvariants() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	count := 0
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*elem)
		total += e.value.Size()
		count++
	}
	if total != c.usedWeight {
		panic("cache: usedWeight diverged from list contents")
	}
	if count != len(c.index) {
		panic("cache: index size diverged from list length")
	}
}

// UsedWeight reports the sum of all cached entries' sizes.
func (c *Cache) UsedWeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedWeight
}

// Len reports the number of cached blocks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
