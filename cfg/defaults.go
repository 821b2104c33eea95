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

// Default returns the configuration used when no flags or config file
// override a value, matching the defaults named throughout spec.md.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			BlockSize: 4096,
		},
		Journal: JournalConfig{
			DataJournalingMode:    OrderedData,
			LargeWriteThresholdKB: 1024,
			DynamicSwitchEnabled:  true,
			JournalSizeBlocks:     8192,
		},
		Cache: CacheConfig{
			CacheSizeBytes: 64 << 20,
		},
		Snapshots: SnapshotConfig{
			MaxSnapshots: 256,
		},
		HNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			MaxLayers:      16,
			ML:             1 / 0.6931471805599453, // 1/ln(2)
		},
		IPC: IPCConfig{
			MaxConcurrentRequests: 64,
			RequestTimeoutMs:      5000,
			MaxQueueSize:          1024,
			MaxBatchSize:          128,
			MaxRetryAttempts:      3,
			RetryBackoffBaseMs:    50,
		},
		Logging: LoggingConfig{
			Format:   "text",
			Severity: "INFO",
		},
	}
}
