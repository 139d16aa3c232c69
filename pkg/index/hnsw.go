// Package index implements the ANN Index: a hand-rolled Hierarchical
// Navigable Small World graph over fixed-dimension vectors, keyed by an
// arbitrary string payload (the indexed sentence).
package index

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
)

const snapshotVersion = 1

// Node is one entry in the graph: a payload, its vector, the level it was
// promoted to, and its neighbor list at each level.
type Node struct {
	Payload   string
	Vector    []float32
	Level     int
	Neighbors [][]string
	Deleted   bool
}

// HNSW is the ANN Index (C2). Zero value is not usable; construct with New.
type HNSW struct {
	M              int
	MaxM           int
	EfConstruction int
	Dim            int

	mu         sync.RWMutex
	nodes      map[string]*Node
	entryPoint string
	rng        *rand.Rand
}

// New creates an empty HNSW index over vectors of dimension dim. M bounds
// the number of bidirectional links kept per node above level 0 (level 0
// keeps 2*M); efConstruction bounds the candidate list examined while
// inserting.
func New(dim, m, efConstruction int) *HNSW {
	seed := time.Now().UnixNano()
	return &HNSW{
		M:              m,
		MaxM:           m * 2,
		EfConstruction: efConstruction,
		Dim:            dim,
		nodes:          make(map[string]*Node),
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Build discards any existing contents and constructs a fresh index from
// points and their payloads. len(points) must equal len(payloads).
func (h *HNSW) Build(points [][]float32, payloads []string) error {
	if len(points) != len(payloads) {
		return apperr.Wrap("HNSW.Build", apperr.ErrBadInput,
			fmt.Errorf("%d points but %d payloads", len(points), len(payloads)))
	}

	h.mu.Lock()
	h.nodes = make(map[string]*Node, len(points))
	h.entryPoint = ""
	h.mu.Unlock()

	for i := range points {
		if err := h.Insert(payloads[i], points[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *HNSW) selectLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 {
		level++
		if level > 16 {
			break
		}
	}
	return level
}

// Insert adds one (vector, payload) pair. It must not invalidate any prior
// insertion. Inserting into an empty index succeeds and makes this entry
// the graph's sole node and entry point.
func (h *HNSW) Insert(payload string, vec []float32) error {
	if len(vec) != h.Dim {
		return apperr.Wrap("HNSW.Insert", apperr.ErrBadDimension,
			fmt.Errorf("got %d dims, want %d", len(vec), h.Dim))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	level := h.selectLevel()
	node := &Node{
		Payload:   payload,
		Vector:    vec,
		Level:     level,
		Neighbors: make([][]string, level+1),
	}
	for i := range node.Neighbors {
		node.Neighbors[i] = make([]string, 0)
	}

	id := h.nodeKey(payload, len(h.nodes))
	h.nodes[id] = node

	if h.entryPoint == "" {
		h.entryPoint = id
		return nil
	}

	currNearest := []string{h.entryPoint}
	entryNode := h.nodes[h.entryPoint]
	for lc := entryNode.Level; lc > level; lc-- {
		currNearest = h.searchLayerClosest(vec, currNearest, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := h.M
		if lc == 0 {
			m = h.MaxM
		}

		candidates := h.searchLayer(vec, currNearest, h.EfConstruction, lc)
		neighbors := h.selectNeighbors(vec, candidates, m)

		node.Neighbors[lc] = neighbors
		for _, nb := range neighbors {
			h.addConnection(nb, id, lc)

			nbNode := h.nodes[nb]
			maxConn := h.M
			if lc == 0 {
				maxConn = h.MaxM
			}
			if lc < len(nbNode.Neighbors) && len(nbNode.Neighbors[lc]) > maxConn {
				nbNode.Neighbors[lc] = h.selectNeighbors(nbNode.Vector, nbNode.Neighbors[lc], maxConn)
			}
		}

		currNearest = neighbors
	}

	if level > h.nodes[h.entryPoint].Level {
		h.entryPoint = id
	}
	return nil
}

// nodeKey derives a stable internal graph key from the payload and
// insertion ordinal so that two entries sharing a payload (permitted by
// the data model) still occupy distinct graph nodes.
func (h *HNSW) nodeKey(payload string, ordinal int) string {
	key := fmt.Sprintf("%s\x00%d", payload, ordinal)
	if _, exists := h.nodes[key]; !exists {
		return key
	}
	for n := ordinal + 1; ; n++ {
		key = fmt.Sprintf("%s\x00%d", payload, n)
		if _, exists := h.nodes[key]; !exists {
			return key
		}
	}
}

func (h *HNSW) searchLayer(query []float32, entryPoints []string, ef int, layer int) []string {
	visited := make(map[string]bool)
	candidates := &distHeap{}
	dynamic := &distHeap{}

	for _, id := range entryPoints {
		d := vecDistance(query, h.nodes[id].Vector)
		heap.Push(candidates, &heapItem{id: id, dist: d})
		heap.Push(dynamic, &heapItem{id: id, dist: -d})
		visited[id] = true
	}

	for candidates.Len() > 0 {
		if dynamic.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*dynamic)[0].dist {
				break
			}
		}

		current := heap.Pop(candidates).(*heapItem)
		currentNode := h.nodes[current.id]
		if layer >= len(currentNode.Neighbors) {
			continue
		}

		for _, nb := range currentNode.Neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := vecDistance(query, h.nodes[nb].Vector)
			if dynamic.Len() < ef || d < -(*dynamic)[0].dist {
				heap.Push(candidates, &heapItem{id: nb, dist: d})
				heap.Push(dynamic, &heapItem{id: nb, dist: -d})
				if dynamic.Len() > ef {
					heap.Pop(dynamic)
				}
			}
		}
	}

	result := make([]string, 0, dynamic.Len())
	for dynamic.Len() > 0 {
		result = append(result, heap.Pop(dynamic).(*heapItem).id)
	}
	for i := 0; i < len(result)/2; i++ {
		result[i], result[len(result)-1-i] = result[len(result)-1-i], result[i]
	}
	return result
}

func (h *HNSW) searchLayerClosest(query []float32, entryPoints []string, num int, layer int) []string {
	candidates := h.searchLayer(query, entryPoints, num, layer)
	if len(candidates) > num {
		return candidates[:num]
	}
	return candidates
}

// selectNeighbors picks up to m candidates closest to query. Naive
// insertion-sort selection is fine at the graph's per-node fan-out sizes.
func (h *HNSW) selectNeighbors(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		out := make([]string, len(candidates))
		copy(out, candidates)
		return out
	}

	type pair struct {
		id   string
		dist float32
	}
	pairs := make([]pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = pair{id: c, dist: vecDistance(query, h.nodes[c].Vector)}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}

	result := make([]string, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		result = append(result, pairs[i].id)
	}
	return result
}

func (h *HNSW) addConnection(from, to string, layer int) {
	fromNode, ok := h.nodes[from]
	if !ok || layer >= len(fromNode.Neighbors) {
		return
	}
	for _, nb := range fromNode.Neighbors[layer] {
		if nb == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// Result is one entry of a Search response.
type Result struct {
	Payload  string
	Distance float32
}

// Search returns up to k entries nearest to query, ascending by distance.
// An empty index yields an empty (not error) result.
func (h *HNSW) Search(query []float32, k, ef int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint == "" {
		return []Result{}
	}

	entryNode := h.nodes[h.entryPoint]
	currNearest := []string{h.entryPoint}
	for layer := entryNode.Level; layer > 0; layer-- {
		currNearest = h.searchLayerClosest(query, currNearest, 1, layer)
	}

	candidates := h.searchLayer(query, currNearest, ef, 0)

	results := make([]Result, 0, len(candidates))
	for _, id := range candidates {
		node, ok := h.nodes[id]
		if !ok || node.Deleted {
			continue
		}
		results = append(results, Result{Payload: node.Payload, Distance: vecDistance(query, node.Vector)})
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// SearchDefault runs Search with a conservative default ef derived from k.
func (h *HNSW) SearchDefault(query []float32, k int) []Result {
	ef := 50
	if ef < k*2 {
		ef = k * 2
	}
	return h.Search(query, k, ef)
}

// Delete soft-deletes a payload's most recently inserted node, if present.
// It is not part of the spec's ANN contract but is kept for operator use
// (the admin CLI's future maintenance commands) and for symmetry with the
// rest of the graph's mutation surface.
func (h *HNSW) Delete(payload string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Keys are payload + "\x00" + insertion ordinal (see nodeKey), so the
	// highest ordinal marks the most recent insertion.
	var found *Node
	var foundID string
	foundOrd := -1
	for id, node := range h.nodes {
		if node.Payload != payload || node.Deleted || len(id) <= len(payload) {
			continue
		}
		ord := -1
		fmt.Sscanf(id[len(payload)+1:], "%d", &ord)
		if found == nil || ord > foundOrd {
			found, foundID, foundOrd = node, id, ord
		}
	}
	if found == nil {
		return apperr.Wrap("HNSW.Delete", apperr.ErrNotFound, fmt.Errorf("payload %q not indexed", payload))
	}
	found.Deleted = true

	if h.entryPoint == foundID {
		h.entryPoint = ""
		for id, node := range h.nodes {
			if !node.Deleted {
				h.entryPoint = id
				break
			}
		}
	}
	return nil
}

// Size returns the number of non-deleted entries.
func (h *HNSW) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, node := range h.nodes {
		if !node.Deleted {
			count++
		}
	}
	return count
}

// Stats reports graph shape for the operator CLI's stats command.
func (h *HNSW) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	active, edges, maxLevel := 0, 0, 0
	for _, node := range h.nodes {
		if node.Deleted {
			continue
		}
		active++
		if node.Level > maxLevel {
			maxLevel = node.Level
		}
		for _, nb := range node.Neighbors {
			edges += len(nb)
		}
	}

	avg := float64(0)
	if active > 0 {
		avg = float64(edges) / float64(active)
	}

	return map[string]any{
		"active_nodes":       active,
		"total_nodes":        len(h.nodes),
		"total_edges":        edges,
		"avg_edges_per_node": avg,
		"max_level":          maxLevel,
		"dim":                h.Dim,
		"M":                  h.M,
		"ef_construction":    h.EfConstruction,
	}
}

// snapshotFile is the self-describing JSON envelope persisted by Save and
// read by Load. An absent Version is tolerated on read and treated as 1.
type snapshotFile struct {
	Version        int     `json:"version"`
	M              int     `json:"m"`
	EfConstruction int     `json:"efConstruction"`
	Dim            int     `json:"dim"`
	EntryPoint     string  `json:"entryPoint"`
	Nodes          []snNode `json:"nodes"`
}

type snNode struct {
	Key       string     `json:"key"`
	Payload   string     `json:"payload"`
	Vector    []float32  `json:"vector"`
	Level     int        `json:"level"`
	Neighbors [][]string `json:"neighbors"`
	Deleted   bool       `json:"deleted"`
}

// Save writes the whole graph as self-describing JSON.
func (h *HNSW) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	file := snapshotFile{
		Version:        snapshotVersion,
		M:              h.M,
		EfConstruction: h.EfConstruction,
		Dim:            h.Dim,
		EntryPoint:     h.entryPoint,
		Nodes:          make([]snNode, 0, len(h.nodes)),
	}
	for key, node := range h.nodes {
		file.Nodes = append(file.Nodes, snNode{
			Key:       key,
			Payload:   node.Payload,
			Vector:    node.Vector,
			Level:     node.Level,
			Neighbors: node.Neighbors,
			Deleted:   node.Deleted,
		})
	}

	enc := json.NewEncoder(w)
	return enc.Encode(file)
}

// Load replaces the graph's contents with the JSON snapshot read from r.
// A missing version field is tolerated as version 1, the only version this
// implementation understands; any other explicit version is Corrupt.
func (h *HNSW) Load(r io.Reader) error {
	var file snapshotFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return apperr.Wrap("HNSW.Load", apperr.ErrCorrupt, err)
	}
	if file.Version != 0 && file.Version != snapshotVersion {
		return apperr.Wrap("HNSW.Load", apperr.ErrCorrupt,
			fmt.Errorf("unsupported snapshot version %d", file.Version))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.M = file.M
	h.MaxM = file.M * 2
	h.EfConstruction = file.EfConstruction
	if file.Dim != 0 {
		h.Dim = file.Dim
	}
	h.entryPoint = file.EntryPoint
	h.nodes = make(map[string]*Node, len(file.Nodes))
	for _, n := range file.Nodes {
		h.nodes[n.Key] = &Node{
			Payload:   n.Payload,
			Vector:    n.Vector,
			Level:     n.Level,
			Neighbors: n.Neighbors,
			Deleted:   n.Deleted,
		}
	}
	return nil
}

type heapItem struct {
	id   string
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// vecDistance is the Euclidean distance used internally by graph traversal.
// It intentionally does not import pkg/vector to avoid a dependency from
// the index's hot path on that package's validation machinery; dimension
// agreement within the graph is guaranteed by Insert's upfront check.
func vecDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}
