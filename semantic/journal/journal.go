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

// Package journal implements L9's userspace semantic journal: a bounded
// buffer of SemanticEvent records with a background flusher, representing
// the kernel-journal/userspace-journal compatibility bridge described in
// spec.md §3. Unlike storage/journal (the block-level WAL), this journal
// never blocks a filesystem operation on durability; events are buffered and
// drained asynchronously.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lspecian/vexfs-sub013/common"
	"github.com/lspecian/vexfs-sub013/logger"
)

// EventKind names a semantic event's category.
type EventKind string

const (
	EventMount        EventKind = "mount"
	EventUnmount      EventKind = "unmount"
	EventError        EventKind = "error"
	EventRecovery     EventKind = "recovery"
	EventGraphInsert  EventKind = "graph-insert"
	EventVectorWrite  EventKind = "vector-write"
	EventSnapshot     EventKind = "snapshot"
)

// SemanticEvent is the single representation both the kernel-journal bridge
// and userspace consumers (the out-of-scope CLI/dashboard) observe.
type SemanticEvent struct {
	ID            uuid.UUID
	Kind          EventKind
	OccurredUTC   time.Time
	CorrelationID string
	Attrs         map[string]string
}

// Sink receives flushed events; implementations might append to a log file,
// forward over the IPC layer, or (in tests) simply collect them.
type Sink func(events []SemanticEvent) error

// Journal buffers SemanticEvents and periodically flushes them to Sink in
// batches, decoupling emission from I/O latency.
type Journal struct {
	mu        sync.Mutex
	buffer    []SemanticEvent
	capacity  int
	sink      Sink
	log       *logger.Logger
	flushStop chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Journal that batches up to capacity events between
// flushes to sink.
func New(capacity int, sink Sink) *Journal {
	return &Journal{
		capacity: capacity,
		sink:     sink,
		log:      logger.ForComponent("semantic-journal"),
	}
}

// Emit appends event to the buffer, flushing immediately if the buffer is
// full.
func (j *Journal) Emit(ctx context.Context, kind EventKind, attrs map[string]string) {
	evt := SemanticEvent{
		ID:          uuid.New(),
		Kind:        kind,
		OccurredUTC: time.Now().UTC(),
		Attrs:       attrs,
	}
	if cid, ok := ctx.Value(correlationIDKey{}).(string); ok {
		evt.CorrelationID = cid
	}

	j.mu.Lock()
	j.buffer = append(j.buffer, evt)
	full := len(j.buffer) >= j.capacity
	j.mu.Unlock()

	if full {
		if err := j.Flush(); err != nil {
			j.log.Warnf("semantic journal flush failed: %v", err)
		}
	}
}

type correlationIDKey struct{}

// WithCorrelationID attaches a correlation id to ctx for Emit to pick up.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// Flush drains the buffer through sink immediately.
func (j *Journal) Flush() error {
	j.mu.Lock()
	if len(j.buffer) == 0 {
		j.mu.Unlock()
		return nil
	}
	batch := j.buffer
	j.buffer = nil
	j.mu.Unlock()

	return j.sink(batch)
}

// StartBackgroundFlusher periodically flushes the buffer every interval
// until Stop is called.
func (j *Journal) StartBackgroundFlusher(interval time.Duration) {
	j.flushStop = make(chan struct{})
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := j.Flush(); err != nil {
					j.log.Warnf("semantic journal background flush failed: %v", err)
				}
			case <-j.flushStop:
				return
			}
		}
	}()
}

// Stop halts the background flusher and performs a final flush.
func (j *Journal) Stop() error {
	if j.flushStop != nil {
		close(j.flushStop)
		j.wg.Wait()
	}
	return j.Flush()
}

// Pending returns the number of buffered, unflushed events.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buffer)
}

// queueSink adapts a common.Queue as a Sink, used where downstream
// consumption happens through the shared FIFO rather than direct I/O.
func queueSink(q common.Queue[SemanticEvent]) Sink {
	return func(events []SemanticEvent) error {
		for _, e := range events {
			q.Push(e)
		}
		return nil
	}
}

// NewQueueBacked constructs a Journal that flushes into q instead of an
// external sink, for callers that want to consume semantic events through
// the common.Queue abstraction.
func NewQueueBacked(capacity int, q common.Queue[SemanticEvent]) *Journal {
	return New(capacity, queueSink(q))
}
