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

// Package journal implements L3: a write-ahead log over a ring of blocks
// reserved at the front of the device, with begin/log/commit/abort and
// checkpoint/replay. The active DataJournalingMode decides how much of a
// write's payload is journaled versus left to the CoW path. The ring is
// durable: every Commit serializes the current record stream into the
// reserved journal region before the transaction's data hits the live
// blocks, so a fresh Journal opened over the same device after a crash
// reads the stream back and can replay it.
package journal

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/lspecian/vexfs-sub013/cfg"
	"github.com/lspecian/vexfs-sub013/storage/blockdev"
	"github.com/lspecian/vexfs-sub013/telemetry"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// OpType names what a journal record represents.
type OpType int

const (
	OpWrite OpType = iota
	OpAllocate
	OpFree
	OpCommit
	OpAbort
)

// headerMagic identifies a formatted journal region at its first reserved
// block: the bytes "VXJRNRX1" read as an 8-byte little-endian word.
const headerMagic uint64 = 0x3158524e524a5856

// Record is one journal entry: a logical operation against a block, with a
// checksum over Payload so replay can detect a torn write at the tail.
// Payload is what the active DataJournalingMode allows into the durable log
// (nil for OpWrite in MetadataOnly mode); apply is always the true block
// contents, used to update the live device image regardless of mode.
type Record struct {
	TxnID    uint64
	Op       OpType
	Block    uint64
	Payload  []byte
	Checksum uint64
	apply    []byte
}

func checksum(txnID uint64, op OpType, block uint64, payload []byte) uint64 {
	h := xxhash.New()
	var hdr [24]byte
	binary.LittleEndian.PutUint64(hdr[0:8], txnID)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(op))
	binary.LittleEndian.PutUint64(hdr[16:24], block)
	h.Write(hdr[:])
	h.Write(payload)
	return h.Sum64()
}

// Stats tracks per-mode operation counters (spec §4 supplemented feature).
type Stats struct {
	MetadataOnlyOps uint64
	OrderedDataOps  uint64
	FullJournalOps  uint64
	Commits         uint64
	Aborts          uint64
	Replays         uint64
}

// Txn is a handle to an in-flight journal transaction.
type Txn struct {
	id      uint64
	records []Record
}

// Journal serializes writes through a WAL before they reach the live block
// device image, per the active DataJournalingMode.
type Journal struct {
	mu      sync.Mutex
	dev     *blockdev.Device
	mode    cfg.DataJournalingMode
	largeKB int
	nextTxn uint64

	journalStart  uint64 // first block of the reserved journal region (holds the header)
	journalBlocks uint64 // total blocks reserved, including the header block

	ring    []Record // mirrors the durable on-disk record stream
	stats   Stats
	metrics telemetry.MetricHandle
}

// New constructs a Journal writing through dev, starting in mode with the
// given large-write threshold in KiB, which ShouldBypassForSize compares
// write sizes against; Commit itself journals every record it is given,
// whatever its size. journalStart/journalBlocks name the reserved on-disk
// region (the block immediately after the superblock, and
// superblock.Layout.JournalBlocks); New reads back whatever record stream
// is already durable there, so a Journal opened over a previously-used
// device resumes with every committed-but-unreplayed transaction intact.
func New(dev *blockdev.Device, journalStart, journalBlocks uint64, mode cfg.DataJournalingMode, largeWriteThresholdKB int, metrics telemetry.MetricHandle) (*Journal, error) {
	if metrics == nil {
		metrics = telemetry.NoopHandle{}
	}
	j := &Journal{
		dev:           dev,
		mode:          mode,
		largeKB:       largeWriteThresholdKB,
		metrics:       metrics,
		journalStart:  journalStart,
		journalBlocks: journalBlocks,
	}
	if err := j.loadLocked(); err != nil {
		return nil, err
	}
	return j, nil
}

// Mode returns the journal's current data-journaling mode.
func (j *Journal) Mode() cfg.DataJournalingMode {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mode
}

// SetMode switches the data-journaling mode at runtime, when dynamic
// switching is enabled by configuration (enforced by the caller).
func (j *Journal) SetMode(mode cfg.DataJournalingMode) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mode = mode
}

// ShouldBypassForSize reports whether a write of writeSizeKB should skip
// journaling and go straight through the CoW path.
func (j *Journal) ShouldBypassForSize(writeSizeKB int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.largeKB > 0 && writeSizeKB >= j.largeKB
}

// Begin starts a new transaction and returns its handle.
func (j *Journal) Begin() *Txn {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextTxn++
	return &Txn{id: j.nextTxn}
}

// Log appends a logical operation to txn. In MetadataOnly mode, payload is
// dropped for OpWrite records (only the intent to write block is logged);
// in OrderedData and FullDataJournaling modes the payload is retained.
func (j *Journal) Log(txn *Txn, op OpType, block uint64, payload []byte) {
	j.mu.Lock()
	mode := j.mode
	j.mu.Unlock()

	stored := payload
	if op == OpWrite && mode == cfg.MetadataOnly {
		stored = nil
	}
	rec := Record{TxnID: txn.id, Op: op, Block: block, Payload: stored, Checksum: checksum(txn.id, op, block, stored), apply: payload}
	txn.records = append(txn.records, rec)
}

// Commit durably appends txn's records plus a commit marker to the reserved
// journal region, then applies them to the underlying device in order. The
// journal write happens first: a crash after Commit persists the records
// but before (or during) the data-block writes below still leaves a
// replayable, durable commit marker, which is the property a subsequent
// Replay over the same device relies on.
func (j *Journal) Commit(ctx context.Context, txn *Txn) error {
	start := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, rec := range txn.records {
		if rec.Op == OpWrite {
			switch j.mode {
			case cfg.MetadataOnly:
				j.stats.MetadataOnlyOps++
			case cfg.OrderedData:
				j.stats.OrderedDataOps++
			case cfg.FullDataJournaling:
				j.stats.FullJournalOps++
			}
		}
		j.ring = append(j.ring, rec)
	}
	j.ring = append(j.ring, Record{TxnID: txn.id, Op: OpCommit})

	if err := j.persistLocked(); err != nil {
		return err
	}

	for _, rec := range txn.records {
		if rec.Op == OpWrite && rec.apply != nil {
			if err := j.dev.Write(rec.Block, rec.apply); err != nil {
				j.stats.Aborts++
				return vexfserrors.Wrap(vexfserrors.CodeIO, "journal commit write", err)
			}
		}
	}
	j.stats.Commits++
	j.metrics.JournalCommit(ctx, time.Since(start), string(j.mode))
	return nil
}

// Abort discards txn without applying any of its records.
func (j *Journal) Abort(txn *Txn) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ring = append(j.ring, Record{TxnID: txn.id, Op: OpAbort})
	j.stats.Aborts++
	_ = j.persistLocked()
}

// Checkpoint truncates the ring and durably trims the on-disk journal
// region, representing the point up to which all committed records are
// known to be reflected in the block device image and need not be replayed
// again.
func (j *Journal) Checkpoint() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ring = j.ring[:0]
	return j.persistLocked()
}

// Replay re-applies every committed transaction in the ring to dev,
// skipping any transaction that was aborted or whose commit marker is
// missing (a crash mid-commit). A record whose checksum fails to verify (a
// torn write) stops the replay with CodeCorruption: records before it have
// already been applied, and none after it are.
func (j *Journal) Replay(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	committed := make(map[uint64]bool)
	aborted := make(map[uint64]bool)
	for _, rec := range j.ring {
		switch rec.Op {
		case OpCommit:
			committed[rec.TxnID] = true
		case OpAbort:
			aborted[rec.TxnID] = true
		}
	}

	for _, rec := range j.ring {
		if rec.Op != OpWrite || rec.Payload == nil {
			continue
		}
		if aborted[rec.TxnID] || !committed[rec.TxnID] {
			continue
		}
		if checksum(rec.TxnID, rec.Op, rec.Block, rec.Payload) != rec.Checksum {
			return vexfserrors.New(vexfserrors.CodeCorruption, "journal record checksum mismatch during replay")
		}
		if err := j.dev.Write(rec.Block, rec.Payload); err != nil {
			return vexfserrors.Wrap(vexfserrors.CodeIO, "journal replay write", err)
		}
	}
	j.stats.Replays++
	return nil
}

// Stats returns a snapshot of the journal's operation counters.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// regionCapacity is how many bytes of record stream the reserved region can
// hold, after setting aside its first block for the header.
func (j *Journal) regionCapacity() int {
	if j.journalBlocks <= 1 || j.dev == nil {
		return 0
	}
	return int(j.journalBlocks-1) * int(j.dev.BlockSize())
}

// persistLocked serializes the entire in-memory ring and writes it into the
// reserved journal region, updating the header's valid-length last. Callers
// hold j.mu.
func (j *Journal) persistLocked() error {
	capacity := j.regionCapacity()
	if capacity == 0 {
		return nil
	}

	var stream []byte
	for _, rec := range j.ring {
		stream = append(stream, encodeFrame(rec)...)
	}
	if len(stream) > capacity {
		return vexfserrors.New(vexfserrors.CodeResourceExhausted, "journal region full; checkpoint required")
	}

	blockSize := int(j.dev.BlockSize())
	blocksNeeded := (len(stream) + blockSize - 1) / blockSize
	for i := 0; i < blocksNeeded; i++ {
		block := make([]byte, blockSize)
		start := i * blockSize
		end := start + blockSize
		if end > len(stream) {
			end = len(stream)
		}
		copy(block, stream[start:end])
		if err := j.dev.Write(j.journalStart+1+uint64(i), block); err != nil {
			return vexfserrors.Wrap(vexfserrors.CodeIO, "persist journal record block", err)
		}
	}

	header := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(header[0:8], headerMagic)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(stream)))
	if err := j.dev.Write(j.journalStart, header); err != nil {
		return vexfserrors.Wrap(vexfserrors.CodeIO, "persist journal header", err)
	}
	return nil
}

// loadLocked reads back whatever record stream is durable in the reserved
// journal region, if any, populating the ring. An unformatted region (no
// magic match, e.g. a freshly created device) is treated as an empty
// journal rather than an error.
func (j *Journal) loadLocked() error {
	capacity := j.regionCapacity()
	if capacity == 0 {
		return nil
	}
	blockSize := int(j.dev.BlockSize())
	header := make([]byte, blockSize)
	if err := j.dev.Read(j.journalStart, header); err != nil {
		return vexfserrors.Wrap(vexfserrors.CodeIO, "read journal header", err)
	}
	if binary.LittleEndian.Uint64(header[0:8]) != headerMagic {
		return nil
	}
	validLen := int(binary.LittleEndian.Uint64(header[8:16]))
	if validLen == 0 {
		return nil
	}
	if validLen < 0 || validLen > capacity {
		return vexfserrors.New(vexfserrors.CodeCorruption, "journal region valid length exceeds its capacity")
	}

	blocksNeeded := (validLen + blockSize - 1) / blockSize
	stream := make([]byte, 0, blocksNeeded*blockSize)
	for i := 0; i < blocksNeeded; i++ {
		block := make([]byte, blockSize)
		if err := j.dev.Read(j.journalStart+1+uint64(i), block); err != nil {
			return vexfserrors.Wrap(vexfserrors.CodeIO, "read journal record block", err)
		}
		stream = append(stream, block...)
	}
	stream = stream[:validLen]

	records, err := decodeStream(stream)
	if err != nil {
		return err
	}
	j.ring = records
	return nil
}

// encodeFrame serializes rec as a length-prefixed frame: a 4-byte frame
// length followed by TxnID, Op, Block, a 4-byte payload length, the payload
// bytes, and the checksum.
func encodeFrame(rec Record) []byte {
	body := make([]byte, 0, 8+1+8+4+len(rec.Payload)+8)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], rec.TxnID)
	body = append(body, u64[:]...)
	body = append(body, byte(rec.Op))
	binary.LittleEndian.PutUint64(u64[:], rec.Block)
	body = append(body, u64[:]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(rec.Payload)))
	body = append(body, u32[:]...)
	body = append(body, rec.Payload...)
	binary.LittleEndian.PutUint64(u64[:], rec.Checksum)
	body = append(body, u64[:]...)

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// decodeStream parses a sequence of encodeFrame-produced frames back into
// Records, returning CodeCorruption if the stream is truncated or any
// frame's declared length runs past the end of the buffer.
func decodeStream(data []byte) ([]Record, error) {
	var records []Record
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, vexfserrors.New(vexfserrors.CodeCorruption, "truncated journal frame length")
		}
		frameLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if frameLen < 0 || offset+frameLen > len(data) {
			return nil, vexfserrors.New(vexfserrors.CodeCorruption, "truncated journal frame body")
		}
		rec, err := decodeRecord(data[offset : offset+frameLen])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		offset += frameLen
	}
	return records, nil
}

func decodeRecord(body []byte) (Record, error) {
	const fixed = 8 + 1 + 8 + 4 + 8
	if len(body) < fixed {
		return Record{}, vexfserrors.New(vexfserrors.CodeCorruption, "short journal record frame")
	}
	txnID := binary.LittleEndian.Uint64(body[0:8])
	op := OpType(body[8])
	block := binary.LittleEndian.Uint64(body[9:17])
	payloadLen := binary.LittleEndian.Uint32(body[17:21])
	if len(body) != 21+int(payloadLen)+8 {
		return Record{}, vexfserrors.New(vexfserrors.CodeCorruption, "journal record length mismatch")
	}
	var payload []byte
	if payloadLen > 0 {
		payload = append([]byte(nil), body[21:21+payloadLen]...)
	}
	chk := binary.LittleEndian.Uint64(body[21+payloadLen:])
	return Record{TxnID: txnID, Op: op, Block: block, Payload: payload, Checksum: chk, apply: payload}, nil
}
