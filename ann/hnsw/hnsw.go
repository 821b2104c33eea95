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

// Package hnsw implements L8: an approximate nearest-neighbor index over
// hierarchical navigable small worlds. Nodes are addressed by NodeID into an
// arena slice, never by pointer (spec.md §9), so the graph can be persisted
// and reloaded without a pointer-fixup pass. Traversal is iterative with a
// bounded explicit stack, never recursive, to hold to the layer's stack
// budget.
package hnsw

import (
	"container/heap"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/lspecian/vexfs-sub013/vector/distance"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// NodeID indexes into the graph's node arena.
type NodeID uint64

// Config holds the tuning parameters fixed at index construction.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	MaxLayers      int
	ML             float64
	Metric         distance.Metric
}

// DefaultConfig returns the spec's reference parameters: M=16,
// efConstruction=200, efSearch=64, mL=1/ln(2).
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		MaxLayers:      16,
		ML:             1 / math.Ln2,
		Metric:         distance.Euclidean,
	}
}

type node struct {
	id        NodeID
	vector    []float32
	topLayer  int
	neighbors [][]NodeID // neighbors[layer] = ids, layer 0..topLayer
}

// Index is an HNSW graph over float32 vectors.
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	distFn distance.Func

	nodes     []node // arena; index == NodeID
	entryNode NodeID
	hasEntry  bool
}

// New constructs an empty index with cfg. A cfg whose M is not positive is
// replaced as a whole by DefaultConfig(); otherwise every field, zero or
// not, is used as given.
func New(cfg Config) (*Index, error) {
	if cfg.M <= 0 {
		cfg = DefaultConfig()
	}
	fn, err := distance.Resolve(cfg.Metric)
	if err != nil {
		return nil, err
	}
	return &Index{cfg: cfg, distFn: fn}, nil
}

// assignLayer deterministically derives a node's top layer from its id hash,
// rather than calling a nondeterministic RNG, so recall tests are
// reproducible across runs.
func assignLayer(id NodeID, ml float64, maxLayers int) int {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	h.Write(buf[:])
	// Map the hash to (0,1) then apply the standard HNSW level formula.
	u := float64(h.Sum64()%1_000_000) / 1_000_000
	if u <= 0 {
		u = 1e-9
	}
	layer := int(math.Floor(-math.Log(u) * ml))
	if layer > maxLayers-1 {
		layer = maxLayers - 1
	}
	return layer
}

type candidate struct {
	id   NodeID
	dist float64
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Insert adds vector to the graph, returning its assigned NodeID and layer.
func (idx *Index) Insert(vector []float32) (NodeID, int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id := NodeID(len(idx.nodes))
	layer := assignLayer(id, idx.cfg.ML, idx.cfg.MaxLayers)
	n := node{id: id, vector: append([]float32(nil), vector...), topLayer: layer, neighbors: make([][]NodeID, layer+1)}
	idx.nodes = append(idx.nodes, n)

	if !idx.hasEntry {
		idx.entryNode = id
		idx.hasEntry = true
		return id, layer, nil
	}

	entry := idx.entryNode
	entryLayer := idx.nodes[entry].topLayer

	// Greedy descent from the entry's top layer down to layer+1.
	cur := entry
	for l := entryLayer; l > layer; l-- {
		cur = idx.greedyClosest(vector, cur, l)
	}

	// Insert with neighbor search at each layer from min(layer, entryLayer) down to 0.
	for l := min(layer, entryLayer); l >= 0; l-- {
		candidates, err := idx.searchLayer(vector, cur, l, idx.cfg.EfConstruction)
		if err != nil {
			return 0, 0, err
		}
		neighbors := idx.selectNeighbors(vector, candidates, idx.cfg.M)
		idx.nodes[id].neighbors[l] = neighbors
		for _, nb := range neighbors {
			idx.addBacklink(nb, id, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if layer > entryLayer {
		idx.entryNode = id
	}
	return id, layer, nil
}

func (idx *Index) addBacklink(to, from NodeID, layer int) {
	n := &idx.nodes[to]
	if len(n.neighbors) <= layer {
		return
	}
	n.neighbors[layer] = append(n.neighbors[layer], from)
	if len(n.neighbors[layer]) > idx.cfg.M*2 {
		// Over 2*M neighbors: reselect M of them with the same diversity
		// heuristic used at insertion.
		cands := make([]candidate, 0, len(n.neighbors[layer]))
		for _, id := range n.neighbors[layer] {
			d, err := idx.distFn(n.vector, idx.nodes[id].vector)
			if err != nil {
				continue
			}
			cands = append(cands, candidate{id: id, dist: d})
		}
		selected := idx.selectNeighbors(n.vector, cands, idx.cfg.M)
		n.neighbors[layer] = selected
	}
}

func (idx *Index) greedyClosest(query []float32, from NodeID, layer int) NodeID {
	best := from
	bestDist, _ := idx.distFn(query, idx.nodes[from].vector)
	improved := true
	for improved {
		improved = false
		for _, nb := range idx.nodes[best].neighbors[layer] {
			d, err := idx.distFn(query, idx.nodes[nb].vector)
			if err != nil {
				continue
			}
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

// searchLayer performs the standard HNSW ef-bounded beam search at layer,
// returning up to ef candidates sorted by ascending distance.
func (idx *Index) searchLayer(query []float32, entry NodeID, layer int, ef int) ([]candidate, error) {
	visited := map[NodeID]bool{entry: true}
	d0, err := idx.distFn(query, idx.nodes[entry].vector)
	if err != nil {
		return nil, err
	}

	candHeap := &minHeap{{id: entry, dist: d0}}
	heap.Init(candHeap)
	resultHeap := &maxHeap{{id: entry, dist: d0}}
	heap.Init(resultHeap)

	for candHeap.Len() > 0 {
		c := heap.Pop(candHeap).(candidate)
		if resultHeap.Len() >= ef && c.dist > (*resultHeap)[0].dist {
			break
		}
		if layer >= len(idx.nodes[c.id].neighbors) {
			continue
		}
		for _, nb := range idx.nodes[c.id].neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d, err := idx.distFn(query, idx.nodes[nb].vector)
			if err != nil {
				continue
			}
			if resultHeap.Len() < ef || d < (*resultHeap)[0].dist {
				heap.Push(candHeap, candidate{id: nb, dist: d})
				heap.Push(resultHeap, candidate{id: nb, dist: d})
				if resultHeap.Len() > ef {
					heap.Pop(resultHeap)
				}
			}
		}
	}

	out := make([]candidate, resultHeap.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(resultHeap).(candidate)
	}
	return out, nil
}

// selectNeighbors implements the diversity-preserving heuristic (Malkov &
// Yashunin's SELECT-NEIGHBORS-HEURISTIC, simple form with keepPrunedConnections):
// visited in ascending distance from query, a candidate is kept only if it is
// closer to query than to every neighbor already selected. This favors a
// spread of directions over a cluster of near-duplicates, which is what
// keeps the graph navigable. Candidates the diversity check rejects are kept
// in reserve and used to fill out any remaining slots once the pass ends, so
// a request for m neighbors is never shorted when fewer than m pass the
// heuristic outright.
func (idx *Index) selectNeighbors(query []float32, candidates []candidate, m int) []NodeID {
	if len(candidates) <= m {
		out := make([]NodeID, len(candidates))
		for i, c := range candidates {
			out[i] = c.id
		}
		return out
	}

	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	selected := make([]NodeID, 0, m)
	var leftover []candidate
	for _, c := range sorted {
		if len(selected) >= m {
			break
		}
		diverse := true
		for _, s := range selected {
			d, err := idx.distFn(idx.nodes[c.id].vector, idx.nodes[s].vector)
			if err != nil {
				continue
			}
			if d < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c.id)
		} else {
			leftover = append(leftover, c)
		}
	}
	for _, c := range leftover {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c.id)
	}
	return selected
}

// SearchResult is one ranked neighbor from Search.
type SearchResult struct {
	ID       NodeID
	Distance float64
}

// Search returns the k nearest neighbors of query, applying filter (if
// non-nil) to exclude candidates during collection (spec's metadata-filtered
// k-NN supplement).
func (idx *Index) Search(query []float32, k int, filter func(NodeID) bool) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "index is empty")
	}

	entry := idx.entryNode
	entryLayer := idx.nodes[entry].topLayer
	cur := entry
	for l := entryLayer; l > 0; l-- {
		cur = idx.greedyClosest(query, cur, l)
	}

	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	candidates, err := idx.searchLayer(query, cur, 0, ef)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, k)
	for _, c := range candidates {
		if filter != nil && !filter(c.id) {
			continue
		}
		results = append(results, SearchResult{ID: c.id, Distance: c.dist})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Vector returns the stored vector for id.
func (idx *Index) Vector(id NodeID) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if int(id) >= len(idx.nodes) {
		return nil, vexfserrors.New(vexfserrors.CodeNotFound, "no such node id")
	}
	return idx.nodes[id].vector, nil
}

// Len reports the number of nodes in the graph.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}
