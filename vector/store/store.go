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

// Package store implements L7: the vector storage manager. Vectors are kept
// in an in-memory arena indexed by VectorID (never by pointer, per spec.md
// §9). EncodeBlock/DecodeBlock convert a record to and from a
// zstd-compressed block carrying its xxhash checksum; the store itself does
// not write to a device.
package store

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// VectorID identifies a stored vector. IDs are never reused within a store's
// lifetime.
type VectorID uint64

// Record is one stored vector plus the metadata needed to validate it on
// read-back.
type Record struct {
	ID       VectorID
	Vector   []float32
	Metadata map[string]string
	Checksum uint64
}

func computeChecksum(vector []float32, metadata map[string]string) uint64 {
	h := xxhash.New()
	buf := make([]byte, 4)
	for _, f := range vector {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		h.Write(buf)
	}
	for k, v := range metadata {
		h.Write([]byte(k))
		h.Write([]byte(v))
	}
	return h.Sum64()
}

// Store holds vectors in memory, offering compressed on-disk encode/decode
// for the blocks a caller (storage/journal, storage/cow) persists them
// through.
type Store struct {
	mu      sync.RWMutex
	records map[VectorID]*Record
	nextID  VectorID
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New constructs an empty vector store.
func New() (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "create zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "create zstd decoder", err)
	}
	return &Store{records: make(map[VectorID]*Record), encoder: enc, decoder: dec}, nil
}

// Close releases the store's compression resources.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// Put stores vector with optional metadata and returns its assigned ID.
func (s *Store) Put(vector []float32, metadata map[string]string) (VectorID, error) {
	if len(vector) == 0 {
		return 0, vexfserrors.New(vexfserrors.CodeInvalidArgument, "vector must be non-empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.records[id] = &Record{
		ID:       id,
		Vector:   append([]float32(nil), vector...),
		Metadata: metadata,
		Checksum: computeChecksum(vector, metadata),
	}
	return id, nil
}

// Get retrieves a vector by ID, verifying its checksum.
func (s *Store) Get(id VectorID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "no such vector id")
	}
	if computeChecksum(rec.Vector, rec.Metadata) != rec.Checksum {
		return nil, vexfserrors.New(vexfserrors.CodeCorruption, "vector checksum mismatch")
	}
	return rec, nil
}

// Delete removes a vector by ID.
func (s *Store) Delete(id VectorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return vexfserrors.New(vexfserrors.CodeNotFound, "no such vector id")
	}
	delete(s.records, id)
	return nil
}

// BatchPut stores many vectors at once, returning their assigned IDs in
// order; a single failure aborts the whole batch (nothing is partially
// committed).
func (s *Store) BatchPut(vectors [][]float32, metadata []map[string]string) ([]VectorID, error) {
	if metadata != nil && len(metadata) != len(vectors) {
		return nil, vexfserrors.New(vexfserrors.CodeInvalidArgument, "metadata slice length must match vectors")
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, vexfserrors.New(vexfserrors.CodeInvalidArgument, "vector must be non-empty")
		}
	}
	ids := make([]VectorID, len(vectors))
	for i, v := range vectors {
		var md map[string]string
		if metadata != nil {
			md = metadata[i]
		}
		id, err := s.Put(v, md)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Len reports the number of live vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// EncodeBlock serializes and zstd-compresses rec for on-disk storage.
func (s *Store) EncodeBlock(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint64(rec.ID)); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "encode vector id", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(rec.Vector))); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "encode vector dimension", err)
	}
	for _, f := range rec.Vector {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "encode vector component", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, rec.Checksum); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeIO, "encode vector checksum", err)
	}
	return s.encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeBlock reverses EncodeBlock.
func (s *Store) DecodeBlock(compressed []byte) (*Record, error) {
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeCorruption, "decompress vector block", err)
	}
	r := bytes.NewReader(raw)
	var id uint64
	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeCorruption, "decode vector id", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeCorruption, "decode vector dimension", err)
	}
	vec := make([]float32, dim)
	for i := range vec {
		if err := binary.Read(r, binary.LittleEndian, &vec[i]); err != nil {
			return nil, vexfserrors.Wrap(vexfserrors.CodeCorruption, "decode vector component", err)
		}
	}
	var checksum uint64
	if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
		return nil, vexfserrors.Wrap(vexfserrors.CodeCorruption, "decode vector checksum", err)
	}
	// Metadata is not persisted through EncodeBlock/DecodeBlock; callers that
	// need metadata durability route it through the semantic journal instead.
	return &Record{ID: VectorID(id), Vector: vec, Checksum: checksum}, nil
}
