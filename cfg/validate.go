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

package cfg

import "fmt"

// Validate checks every configuration option against the constraints
// spec.md §6 documents, returning the first violation found.
func Validate(c *Config) error {
	if !c.Storage.BlockSize.Valid() {
		return fmt.Errorf("block-size %d is not one of 4096, 8192, 16384, 32768, 65536", c.Storage.BlockSize)
	}

	switch c.Journal.DataJournalingMode {
	case MetadataOnly, OrderedData, FullDataJournaling:
	default:
		return fmt.Errorf("data-journaling-mode %q is invalid", c.Journal.DataJournalingMode)
	}
	if c.Journal.LargeWriteThresholdKB <= 0 {
		return fmt.Errorf("large-write-threshold-kb must be positive")
	}
	if c.Journal.JournalSizeBlocks <= 0 {
		return fmt.Errorf("journal-size-blocks must be positive")
	}

	if c.Cache.CacheSizeBytes <= 0 {
		return fmt.Errorf("cache-size-bytes must be positive")
	}

	if c.Snapshots.MaxSnapshots <= 0 {
		return fmt.Errorf("max-snapshots must be positive")
	}

	if c.HNSW.M <= 0 {
		return fmt.Errorf("hnsw.m must be positive")
	}
	if c.HNSW.EfConstruction < c.HNSW.M {
		return fmt.Errorf("hnsw.ef-construction must be at least hnsw.m")
	}
	if c.HNSW.EfSearch <= 0 {
		return fmt.Errorf("hnsw.ef-search must be positive")
	}
	if c.HNSW.MaxLayers <= 0 {
		return fmt.Errorf("hnsw.max-layers must be positive")
	}
	if c.HNSW.ML <= 0 {
		return fmt.Errorf("hnsw.ml must be positive")
	}

	// Per spec.md §9's open question on batch-size maximums: both the queue
	// capacity and the hard batch-size cap are validated, independently.
	if c.IPC.MaxQueueSize <= 0 {
		return fmt.Errorf("ipc.max-queue-size must be positive")
	}
	if c.IPC.MaxBatchSize <= 0 {
		return fmt.Errorf("ipc.max-batch-size must be positive")
	}
	if c.IPC.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("ipc.max-concurrent-requests must be positive")
	}
	if c.IPC.RequestTimeoutMs <= 0 {
		return fmt.Errorf("ipc.request-timeout-ms must be positive")
	}
	if c.IPC.MaxRetryAttempts < 0 {
		return fmt.Errorf("ipc.max-retry-attempts cannot be negative")
	}
	if c.IPC.RetryBackoffBaseMs <= 0 {
		return fmt.Errorf("ipc.retry-backoff-base-ms must be positive")
	}

	return nil
}
