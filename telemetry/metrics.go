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

// Package telemetry carries the instrumentation points every core layer
// reports through, even though the CLI dashboard / Prometheus exposition
// that consumes them is out of scope (spec.md §1 Non-goals). Counters and
// histograms are real OpenTelemetry instruments; a NoopHandle is supplied
// when no MeterProvider has been configured so call sites never need a nil
// check.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// LayerKey annotates which layer (journal, cache, hnsw, ipc, ...) emitted
	// a measurement.
	LayerKey = "layer"
	// OpKey annotates the operation within a layer (commit, evict, search, ...).
	OpKey = "op"
	// ModeKey annotates the data-journaling mode active for a journal metric.
	ModeKey = "mode"
	// OutcomeKey annotates success/failure style attributes.
	OutcomeKey = "outcome"
)

var defaultLatencyBuckets = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

// MetricHandle is the interface every layer reports through. It is
// implemented by otelHandle (production) and NoopHandle (tests, or a mount
// started without telemetry configured).
type MetricHandle interface {
	// JournalCommit records a journal commit's latency and the data-
	// journaling mode under which it ran.
	JournalCommit(ctx context.Context, latency time.Duration, mode string)
	// CacheAccess records a block-cache lookup outcome ("hit" or "miss").
	CacheAccess(ctx context.Context, outcome string)
	// HNSWSearch records one HNSW search's latency.
	HNSWSearch(ctx context.Context, latency time.Duration)
	// IPCDispatch records a load-balancer dispatch decision's outcome
	// ("assigned", "queued", "rejected").
	IPCDispatch(ctx context.Context, outcome string)
}

type attrCache struct {
	mu sync.Mutex
	m  map[string]metric.MeasurementOption
}

func (c *attrCache) get(key string, build func() attribute.Set) metric.MeasurementOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]metric.MeasurementOption)
	}
	if opt, ok := c.m[key]; ok {
		return opt
	}
	opt := metric.WithAttributeSet(build())
	c.m[key] = opt
	return opt
}

type otelHandle struct {
	meter metric.Meter

	journalCommitLatency metric.Float64Histogram
	cacheAccessCount     metric.Int64Counter
	hnswSearchLatency    metric.Float64Histogram
	ipcDispatchCount     metric.Int64Counter

	modeAttrs    attrCache
	outcomeAttrs attrCache
}

// NewOTelMetrics constructs the real instrument set against the global
// MeterProvider, mirroring the teacher's per-subsystem meter pattern.
func NewOTelMetrics() (MetricHandle, error) {
	meter := otel.Meter("vexfs/core")

	journalCommitLatency, err1 := meter.Float64Histogram("journal/commit_latency",
		metric.WithDescription("Latency of journal transaction commits."),
		metric.WithUnit("ms"), defaultLatencyBuckets)
	cacheAccessCount, err2 := meter.Int64Counter("cache/access_count",
		metric.WithDescription("Block cache lookups, partitioned by hit/miss."))
	hnswSearchLatency, err3 := meter.Float64Histogram("hnsw/search_latency",
		metric.WithDescription("Latency of HNSW searches."),
		metric.WithUnit("us"), defaultLatencyBuckets)
	ipcDispatchCount, err4 := meter.Int64Counter("ipc/dispatch_count",
		metric.WithDescription("IPC load-balancer dispatch decisions."))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &otelHandle{
		meter:                meter,
		journalCommitLatency: journalCommitLatency,
		cacheAccessCount:     cacheAccessCount,
		hnswSearchLatency:    hnswSearchLatency,
		ipcDispatchCount:     ipcDispatchCount,
	}, nil
}

func (h *otelHandle) JournalCommit(ctx context.Context, latency time.Duration, mode string) {
	opt := h.modeAttrs.get(mode, func() attribute.Set {
		return attribute.NewSet(attribute.String(ModeKey, mode))
	})
	h.journalCommitLatency.Record(ctx, float64(latency.Microseconds())/1000, opt)
}

func (h *otelHandle) CacheAccess(ctx context.Context, outcome string) {
	opt := h.outcomeAttrs.get(outcome, func() attribute.Set {
		return attribute.NewSet(attribute.String(OutcomeKey, outcome))
	})
	h.cacheAccessCount.Add(ctx, 1, opt)
}

func (h *otelHandle) HNSWSearch(ctx context.Context, latency time.Duration) {
	h.hnswSearchLatency.Record(ctx, float64(latency.Microseconds()))
}

func (h *otelHandle) IPCDispatch(ctx context.Context, outcome string) {
	opt := h.outcomeAttrs.get(outcome, func() attribute.Set {
		return attribute.NewSet(attribute.String(OutcomeKey, outcome))
	})
	h.ipcDispatchCount.Add(ctx, 1, opt)
}

// NoopHandle discards every measurement. It is the zero-configuration
// default so core code never needs to nil-check a MetricHandle.
type NoopHandle struct{}

func (NoopHandle) JournalCommit(context.Context, time.Duration, string) {}
func (NoopHandle) CacheAccess(context.Context, string)                  {}
func (NoopHandle) HNSWSearch(context.Context, time.Duration)            {}
func (NoopHandle) IPCDispatch(context.Context, string)                  {}

var _ MetricHandle = NoopHandle{}
