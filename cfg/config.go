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

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers every recognized mount option on flagSet and binds it
// into viper under the corresponding YAML key, so a config file and CLI
// flags can populate the same Config struct on Unmarshal.
func BindFlags(flagSet *pflag.FlagSet) error {
	d := Default()

	flagSet.Uint32P("block-size", "", uint32(d.Storage.BlockSize), "On-disk block size: 4096, 8192, 16384, 32768, or 65536.")
	if err := viper.BindPFlag("storage.block-size", flagSet.Lookup("block-size")); err != nil {
		return err
	}

	flagSet.StringP("data-journaling-mode", "", string(d.Journal.DataJournalingMode), "metadata-only, ordered-data, or full-data-journaling.")
	if err := viper.BindPFlag("journal.data-journaling-mode", flagSet.Lookup("data-journaling-mode")); err != nil {
		return err
	}

	flagSet.IntP("large-write-threshold-kb", "", d.Journal.LargeWriteThresholdKB, "Large-write threshold in KiB reported by the journal's ShouldBypassForSize; every write is still journaled.")
	if err := viper.BindPFlag("journal.large-write-threshold-kb", flagSet.Lookup("large-write-threshold-kb")); err != nil {
		return err
	}

	flagSet.BoolP("dynamic-switching-enabled", "", d.Journal.DynamicSwitchEnabled, "Allow the data-journaling mode to change at runtime.")
	if err := viper.BindPFlag("journal.dynamic-switching-enabled", flagSet.Lookup("dynamic-switching-enabled")); err != nil {
		return err
	}

	flagSet.IntP("journal-size-blocks", "", d.Journal.JournalSizeBlocks, "Number of blocks reserved for the journal ring.")
	if err := viper.BindPFlag("journal.journal-size-blocks", flagSet.Lookup("journal-size-blocks")); err != nil {
		return err
	}

	flagSet.Int64P("cache-size-bytes", "", d.Cache.CacheSizeBytes, "Bytes reserved for the block cache.")
	if err := viper.BindPFlag("cache.cache-size-bytes", flagSet.Lookup("cache-size-bytes")); err != nil {
		return err
	}

	flagSet.IntP("max-snapshots", "", d.Snapshots.MaxSnapshots, "Cap on the number of live snapshots.")
	if err := viper.BindPFlag("snapshots.max-snapshots", flagSet.Lookup("max-snapshots")); err != nil {
		return err
	}

	flagSet.IntP("hnsw-m", "", d.HNSW.M, "HNSW target neighbors per node per layer.")
	if err := viper.BindPFlag("hnsw.m", flagSet.Lookup("hnsw-m")); err != nil {
		return err
	}

	flagSet.IntP("hnsw-ef-construction", "", d.HNSW.EfConstruction, "HNSW candidate list size during insertion.")
	if err := viper.BindPFlag("hnsw.ef-construction", flagSet.Lookup("hnsw-ef-construction")); err != nil {
		return err
	}

	flagSet.IntP("hnsw-ef-search", "", d.HNSW.EfSearch, "HNSW candidate list size during query.")
	if err := viper.BindPFlag("hnsw.ef-search", flagSet.Lookup("hnsw-ef-search")); err != nil {
		return err
	}

	flagSet.IntP("hnsw-max-layers", "", d.HNSW.MaxLayers, "Cap on HNSW layer count.")
	if err := viper.BindPFlag("hnsw.max-layers", flagSet.Lookup("hnsw-max-layers")); err != nil {
		return err
	}

	flagSet.IntP("ipc-max-concurrent-requests", "", d.IPC.MaxConcurrentRequests, "Upper bound on in-flight IPC requests.")
	if err := viper.BindPFlag("ipc.max-concurrent-requests", flagSet.Lookup("ipc-max-concurrent-requests")); err != nil {
		return err
	}

	flagSet.IntP("ipc-request-timeout-ms", "", d.IPC.RequestTimeoutMs, "Per-request IPC timeout in milliseconds.")
	if err := viper.BindPFlag("ipc.request-timeout-ms", flagSet.Lookup("ipc-request-timeout-ms")); err != nil {
		return err
	}

	flagSet.IntP("ipc-max-queue-size", "", d.IPC.MaxQueueSize, "Bounded queue capacity for overloaded services.")
	if err := viper.BindPFlag("ipc.max-queue-size", flagSet.Lookup("ipc-max-queue-size")); err != nil {
		return err
	}

	flagSet.IntP("ipc-max-batch-size", "", d.IPC.MaxBatchSize, "Hard cap on embedding batch size, independent of queue size.")
	if err := viper.BindPFlag("ipc.max-batch-size", flagSet.Lookup("ipc-max-batch-size")); err != nil {
		return err
	}

	flagSet.IntP("ipc-max-retry-attempts", "", d.IPC.MaxRetryAttempts, "Maximum retries for a failed IPC request.")
	if err := viper.BindPFlag("ipc.max-retry-attempts", flagSet.Lookup("ipc-max-retry-attempts")); err != nil {
		return err
	}

	flagSet.IntP("ipc-retry-backoff-base-ms", "", d.IPC.RetryBackoffBaseMs, "Base backoff duration, doubled on each retry.")
	if err := viper.BindPFlag("ipc.retry-backoff-base-ms", flagSet.Lookup("ipc-retry-backoff-base-ms")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", d.Logging.Format, "text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", d.Logging.Severity, "TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	return nil
}
