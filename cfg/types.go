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

// Package cfg is the configuration surface of spec.md §6: every recognized
// mount option, bound to pflag/viper and validated before the filesystem is
// constructed.
package cfg

import (
	"fmt"
	"strings"
)

// DataJournalingMode selects how data blocks participate in the journal, per
// spec.md §4.2.
type DataJournalingMode string

const (
	MetadataOnly       DataJournalingMode = "metadata-only"
	OrderedData        DataJournalingMode = "ordered-data"
	FullDataJournaling DataJournalingMode = "full-data-journaling"
)

func (m *DataJournalingMode) UnmarshalText(text []byte) error {
	v := DataJournalingMode(strings.ToLower(string(text)))
	switch v {
	case MetadataOnly, OrderedData, FullDataJournaling:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid data-journaling-mode %q: must be one of metadata-only, ordered-data, full-data-journaling", string(text))
	}
}

func (m DataJournalingMode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// BlockSize is the on-disk block size, constrained to the power-of-two range
// spec.md §6 allows.
type BlockSize uint32

var validBlockSizes = map[BlockSize]bool{
	4096: true, 8192: true, 16384: true, 32768: true, 65536: true,
}

func (b BlockSize) Valid() bool { return validBlockSizes[b] }

// Config is the root of the bound configuration tree, mirroring every
// option enumerated in spec.md §6.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Journal   JournalConfig   `yaml:"journal"`
	Cache     CacheConfig     `yaml:"cache"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
	HNSW      HNSWConfig      `yaml:"hnsw"`
	IPC       IPCConfig       `yaml:"ipc"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	BlockSize BlockSize `yaml:"block-size"`
}

type JournalConfig struct {
	DataJournalingMode    DataJournalingMode `yaml:"data-journaling-mode"`
	LargeWriteThresholdKB int                `yaml:"large-write-threshold-kb"`
	DynamicSwitchEnabled  bool               `yaml:"dynamic-switching-enabled"`
	JournalSizeBlocks     int                `yaml:"journal-size-blocks"`
}

type CacheConfig struct {
	CacheSizeBytes int64 `yaml:"cache-size-bytes"`
}

type SnapshotConfig struct {
	MaxSnapshots int `yaml:"max-snapshots"`
}

type HNSWConfig struct {
	M              int     `yaml:"m"`
	EfConstruction int     `yaml:"ef-construction"`
	EfSearch       int     `yaml:"ef-search"`
	MaxLayers      int     `yaml:"max-layers"`
	ML             float64 `yaml:"ml"`
}

type IPCConfig struct {
	MaxConcurrentRequests int `yaml:"max-concurrent-requests"`
	RequestTimeoutMs      int `yaml:"request-timeout-ms"`
	MaxQueueSize          int `yaml:"max-queue-size"`
	MaxBatchSize          int `yaml:"max-batch-size"`
	MaxRetryAttempts      int `yaml:"max-retry-attempts"`
	RetryBackoffBaseMs    int `yaml:"retry-backoff-base-ms"`
}

type LoggingConfig struct {
	Format   string `yaml:"format"`
	Severity string `yaml:"severity"`
}
