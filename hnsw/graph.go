package hnsw

import (
	"container/heap"
	"math/rand"
	"sort"
	"sync"

	"github.com/stratadb/stratadb/errs"
)

// Graph is one dimension's HNSW index.
type Graph struct {
	mu sync.Mutex // coarse: guards the maps below and entry-point state

	dim    int
	params Params

	nodes    map[int64]*node
	extToInt map[uint64]int64

	nextInternalID int64
	nextExternalID uint64

	entryPoint int64
	entryLevel int
	hasEntry   bool

	edges    *edgeStore
	byType   map[string]map[uint64]struct{}
	byPath   map[string]map[uint64]struct{}
}

func NewGraph(dim int, params Params) *Graph {
	return &Graph{
		dim:      dim,
		params:   params,
		nodes:    make(map[int64]*node),
		extToInt: make(map[uint64]int64),
		edges:    newEdgeStore(),
		byType:   make(map[string]map[uint64]struct{}),
		byPath:   make(map[string]map[uint64]struct{}),
	}
}

func (g *Graph) Dim() int { return g.dim }

// randomLevel draws a level geometrically with p=1/2, capped at 31.
func randomLevel() int {
	level := 0
	for rand.Float64() < 0.5 && level < 31 {
		level++
	}
	return level
}

// Insert adds point under externalID (auto-assigned if nil), returning the
// external id used. Duplicate external ids are rejected.
func (g *Graph) Insert(externalID *uint64, point []float32, meta *Metadata) (uint64, error) {
	if len(point) != g.dim {
		return 0, errs.NewDimensionMismatch(g.dim, len(point))
	}

	g.mu.Lock()

	var extID uint64
	if externalID != nil {
		extID = *externalID
		if _, exists := g.extToInt[extID]; exists {
			g.mu.Unlock()
			return 0, errs.New(errs.KindDuplicateExternalId, "external id %d already exists", extID)
		}
	} else {
		for {
			extID = g.nextExternalID
			g.nextExternalID++
			if _, exists := g.extToInt[extID]; !exists {
				break
			}
		}
	}
	if extID >= g.nextExternalID {
		g.nextExternalID = extID + 1
	}

	level := randomLevel()
	internalID := g.nextInternalID
	g.nextInternalID++

	pointCopy := make([]float32, len(point))
	copy(pointCopy, point)

	n := &node{
		internalID:  internalID,
		externalID:  extID,
		point:       pointCopy,
		metadata:    meta.clone(),
		connections: make([][]int64, level+1),
	}
	g.nodes[internalID] = n
	g.extToInt[extID] = internalID
	g.indexMetadataLocked(extID, n.metadata)

	if !g.hasEntry {
		g.entryPoint = internalID
		g.entryLevel = level
		g.hasEntry = true
		g.mu.Unlock()
		return extID, nil
	}

	entryPoint := g.entryPoint
	entryLevel := g.entryLevel
	g.mu.Unlock()

	ep := entryPoint
	for lc := entryLevel; lc > level; lc-- {
		ep = g.greedyClosest(pointCopy, ep, lc)
	}

	for lc := min(level, entryLevel); lc >= 0; lc-- {
		candidates := g.searchLayer(pointCopy, []int64{ep}, g.params.EfConstruction, lc)
		neighbors := selectNeighbors(candidates, g.params.M)
		for _, c := range neighbors {
			g.connect(internalID, c.id, lc)
		}
		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > entryLevel {
		g.mu.Lock()
		g.entryPoint = internalID
		g.entryLevel = level
		g.mu.Unlock()
	}

	return extID, nil
}

// connect links a and b symmetrically at layer, locking the lower internal
// id first to avoid deadlock, then shrinks either side down to
// M neighbors if it grew past the limit.
func (g *Graph) connect(a, b int64, layer int) {
	g.mu.Lock()
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	g.mu.Unlock()
	if !okA || !okB || a == b {
		return
	}

	first, second := na, nb
	if b < a {
		first, second = nb, na
	}
	first.mu.Lock()
	second.mu.Lock()
	defer second.mu.Unlock()
	defer first.mu.Unlock()

	addNeighbor(na, b, layer)
	addNeighbor(nb, a, layer)
	g.shrinkIfNeeded(na, layer)
	g.shrinkIfNeeded(nb, layer)
}

func addNeighbor(n *node, id int64, layer int) {
	for layer >= len(n.connections) {
		n.connections = append(n.connections, nil)
	}
	for _, existing := range n.connections[layer] {
		if existing == id {
			return
		}
	}
	n.connections[layer] = append(n.connections[layer], id)
}

// shrinkIfNeeded keeps only the M nearest neighbors of n at layer, evicting
// the rest, once n exceeds M connections there. Caller must hold n.mu.
func (g *Graph) shrinkIfNeeded(n *node, layer int) {
	if layer >= len(n.connections) || len(n.connections[layer]) <= g.params.M {
		return
	}
	g.mu.Lock()
	type scored struct {
		id   int64
		dist float32
	}
	scoredList := make([]scored, 0, len(n.connections[layer]))
	for _, id := range n.connections[layer] {
		if other, ok := g.nodes[id]; ok {
			scoredList = append(scoredList, scored{id: id, dist: Distance(n.point, other.point)})
		}
	}
	g.mu.Unlock()

	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist < scoredList[j].dist })
	if len(scoredList) > g.params.M {
		scoredList = scoredList[:g.params.M]
	}
	kept := make([]int64, len(scoredList))
	for i, s := range scoredList {
		kept[i] = s.id
	}
	n.connections[layer] = kept
}

// greedyClosest walks from ep toward the nearest neighbor of point at layer,
// stopping when no neighbor improves on the current node.
func (g *Graph) greedyClosest(point []float32, ep int64, layer int) int64 {
	g.mu.Lock()
	current := g.nodes[ep]
	g.mu.Unlock()
	if current == nil {
		return ep
	}
	best := ep
	bestDist := Distance(point, current.point)

	for {
		g.mu.Lock()
		n := g.nodes[best]
		var neighbors []int64
		if n != nil && layer < len(n.connections) {
			neighbors = append(neighbors, n.connections[layer]...)
		}
		g.mu.Unlock()

		improved := false
		for _, id := range neighbors {
			g.mu.Lock()
			cand := g.nodes[id]
			g.mu.Unlock()
			if cand == nil {
				continue
			}
			d := Distance(point, cand.point)
			if d < bestDist {
				bestDist = d
				best = id
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

type candidate struct {
	id   int64
	dist float32
}

// searchLayer runs beam search from entryPoints at layer, returning up to ef
// candidates sorted by ascending distance.
func (g *Graph) searchLayer(query []float32, entryPoints []int64, ef int, layer int) []candidate {
	visited := make(map[int64]bool)
	toExplore := &minHeap{}
	results := &maxHeap{}
	heap.Init(toExplore)
	heap.Init(results)

	for _, ep := range entryPoints {
		g.mu.Lock()
		n := g.nodes[ep]
		g.mu.Unlock()
		if n == nil || visited[ep] {
			continue
		}
		visited[ep] = true
		d := Distance(query, n.point)
		heap.Push(toExplore, candidate{id: ep, dist: d})
		heap.Push(results, candidate{id: ep, dist: d})
	}

	for toExplore.Len() > 0 {
		nearest := heap.Pop(toExplore).(candidate)
		if results.Len() >= ef && nearest.dist > (*results)[0].dist {
			break
		}

		g.mu.Lock()
		n := g.nodes[nearest.id]
		var neighbors []int64
		if n != nil && layer < len(n.connections) {
			neighbors = append(neighbors, n.connections[layer]...)
		}
		g.mu.Unlock()

		for _, id := range neighbors {
			if visited[id] {
				continue
			}
			visited[id] = true
			g.mu.Lock()
			cand := g.nodes[id]
			g.mu.Unlock()
			if cand == nil {
				continue
			}
			d := Distance(query, cand.point)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(toExplore, candidate{id: id, dist: d})
				heap.Push(results, candidate{id: id, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// selectNeighbors implements the HNSW heuristic selection (a simplified
// Algorithm 4): take the M nearest candidates by distance.
func selectNeighbors(candidates []candidate, m int) []candidate {
	if len(candidates) <= m {
		return candidates
	}
	return candidates[:m]
}

// SearchResult is one k-NN hit.
type SearchResult struct {
	ExternalID uint64
	Distance   float32
}

// Search returns the k nearest neighbors of query, ascending by distance.
func (g *Graph) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != g.dim {
		return nil, errs.NewDimensionMismatch(g.dim, len(query))
	}
	g.mu.Lock()
	if !g.hasEntry {
		g.mu.Unlock()
		return nil, nil
	}
	ep := g.entryPoint
	topLevel := g.entryLevel
	g.mu.Unlock()

	for lc := topLevel; lc > 0; lc-- {
		ep = g.greedyClosest(query, ep, lc)
	}

	ef := g.params.EfSearch
	if ef < k {
		ef = k
	}
	candidates := g.searchLayer(query, []int64{ep}, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		g.mu.Lock()
		n := g.nodes[c.id]
		g.mu.Unlock()
		if n == nil {
			continue
		}
		out[i] = SearchResult{ExternalID: n.externalID, Distance: c.dist}
	}
	return out, nil
}

// SearchByType is Search filtered to nodes whose metadata.NodeType equals
// nodeType; it widens the internal candidate pool so filtering doesn't
// starve the result set.
func (g *Graph) SearchByType(query []float32, k int, nodeType string) ([]SearchResult, error) {
	if len(query) != g.dim {
		return nil, errs.NewDimensionMismatch(g.dim, len(query))
	}
	g.mu.Lock()
	if !g.hasEntry {
		g.mu.Unlock()
		return nil, nil
	}
	ep := g.entryPoint
	topLevel := g.entryLevel
	g.mu.Unlock()

	for lc := topLevel; lc > 0; lc-- {
		ep = g.greedyClosest(query, ep, lc)
	}

	ef := g.params.EfSearch
	if ef < k*4 {
		ef = k * 4
	}
	candidates := g.searchLayer(query, []int64{ep}, ef, 0)

	out := make([]SearchResult, 0, k)
	for _, c := range candidates {
		g.mu.Lock()
		n := g.nodes[c.id]
		g.mu.Unlock()
		if n == nil || n.metadata == nil || n.metadata.NodeType != nodeType {
			continue
		}
		out = append(out, SearchResult{ExternalID: n.externalID, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Point returns a copy of the stored vector for extID.
func (g *Graph) Point(extID uint64) ([]float32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.extToInt[extID]
	if !ok {
		return nil, false
	}
	n := g.nodes[id]
	cp := make([]float32, len(n.point))
	copy(cp, n.point)
	return cp, true
}

// ForEachNode calls fn for every node's external id and metadata, in no
// particular order. Callers use it to rebuild external lookup structures
// after Load.
func (g *Graph) ForEachNode(fn func(extID uint64, meta *Metadata)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		fn(n.externalID, n.metadata)
	}
}

// GetInternalID exposes the external->internal mapping, used by tests and
// callers that need to confirm a point was indexed.
func (g *Graph) GetInternalID(extID uint64) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.extToInt[extID]
	return id, ok
}

func (g *Graph) indexMetadataLocked(extID uint64, meta *Metadata) {
	if meta == nil {
		return
	}
	if meta.NodeType != "" {
		if g.byType[meta.NodeType] == nil {
			g.byType[meta.NodeType] = make(map[uint64]struct{})
		}
		g.byType[meta.NodeType][extID] = struct{}{}
	}
	if meta.ContentRef != nil {
		if g.byPath[*meta.ContentRef] == nil {
			g.byPath[*meta.ContentRef] = make(map[uint64]struct{})
		}
		g.byPath[*meta.ContentRef][extID] = struct{}{}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- heap plumbing ---

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

// maxHeap keeps the farthest candidate at the root so the beam can evict it
// once the result set exceeds ef.
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
