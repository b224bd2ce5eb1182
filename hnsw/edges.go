package hnsw

import (
	"hash/fnv"
	"sync"

	"github.com/stratadb/stratadb/errs"
)

type edgeKey struct {
	src, dst uint64
	typeHash uint64
}

func hashType(t string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(t))
	return h.Sum64()
}

type edgeStore struct {
	mu    sync.RWMutex
	byKey map[edgeKey]Edge
}

func newEdgeStore() *edgeStore {
	return &edgeStore{byKey: make(map[edgeKey]Edge)}
}

// AddEdge requires both endpoints to already exist; it overwrites any
// existing edge with the same (src,dst,type) key.
func (g *Graph) AddEdge(src, dst uint64, edgeType string, weight float32) error {
	g.mu.Lock()
	_, srcOK := g.extToInt[src]
	_, dstOK := g.extToInt[dst]
	g.mu.Unlock()
	if !srcOK {
		return errs.New(errs.KindSourceNodeNotFound, "source node %d not found", src)
	}
	if !dstOK {
		return errs.New(errs.KindDestinationNodeNotFound, "destination node %d not found", dst)
	}

	key := edgeKey{src: src, dst: dst, typeHash: hashType(edgeType)}
	g.edges.mu.Lock()
	g.edges.byKey[key] = Edge{Src: src, Dst: dst, Type: edgeType, Weight: weight}
	g.edges.mu.Unlock()
	return nil
}

// RemoveEdge errors if the (src,dst,type) edge is absent.
func (g *Graph) RemoveEdge(src, dst uint64, edgeType string) error {
	key := edgeKey{src: src, dst: dst, typeHash: hashType(edgeType)}
	g.edges.mu.Lock()
	defer g.edges.mu.Unlock()
	if _, ok := g.edges.byKey[key]; !ok {
		return errs.New(errs.KindEdgeNotFound, "edge %d->%d (%s) not found", src, dst, edgeType)
	}
	delete(g.edges.byKey, key)
	return nil
}

func edgeMatches(e Edge, typeFilter *string) bool {
	return typeFilter == nil || e.Type == *typeFilter
}

// GetEdges returns every stored edge touching node as either endpoint,
// optionally filtered by type.
func (g *Graph) GetEdges(node uint64, edgeType *string) []Edge {
	g.edges.mu.RLock()
	defer g.edges.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges.byKey {
		if (e.Src == node || e.Dst == node) && edgeMatches(e, edgeType) {
			out = append(out, e)
		}
	}
	return out
}

// GetOutgoing returns nodes reachable via an edge originating at node.
func (g *Graph) GetOutgoing(node uint64, edgeType *string) []uint64 {
	g.edges.mu.RLock()
	defer g.edges.mu.RUnlock()
	var out []uint64
	for _, e := range g.edges.byKey {
		if e.Src == node && edgeMatches(e, edgeType) {
			out = append(out, e.Dst)
		}
	}
	return out
}

// GetIncoming returns nodes with an edge terminating at node.
func (g *Graph) GetIncoming(node uint64, edgeType *string) []uint64 {
	g.edges.mu.RLock()
	defer g.edges.mu.RUnlock()
	var out []uint64
	for _, e := range g.edges.byKey {
		if e.Dst == node && edgeMatches(e, edgeType) {
			out = append(out, e.Src)
		}
	}
	return out
}

// GetNeighbors is the undirected union of GetOutgoing and GetIncoming.
func (g *Graph) GetNeighbors(node uint64, edgeType *string) []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for _, id := range g.GetOutgoing(node, edgeType) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range g.GetIncoming(node, edgeType) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Traverse performs a BFS from start over undirected edges matching the
// optional type filter, returning every id reachable within maxDepth hops
// (inclusive of start itself).
func (g *Graph) Traverse(start uint64, maxDepth int, edgeType *string) []uint64 {
	visited := map[uint64]int{start: 0}
	order := []uint64{start}
	queue := []uint64{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur]
		if depth >= maxDepth {
			continue
		}
		for _, next := range g.GetNeighbors(cur, edgeType) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = depth + 1
			order = append(order, next)
			queue = append(queue, next)
		}
	}
	return order
}

// SearchThenTraverse unions the top-k vector hits for query with a BFS
// expansion from each hit, up to maxDepth hops over edges matching the
// optional type filter. The filter constrains only the graph expansion; the
// vector hits themselves are unfiltered.
func (g *Graph) SearchThenTraverse(query []float32, k int, edgeType *string, maxDepth int) ([]uint64, error) {
	hits, err := g.Search(query, k)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	var out []uint64
	for _, h := range hits {
		for _, id := range g.Traverse(h.ExternalID, maxDepth, edgeType) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// ByNodeType returns every external id with the given metadata node type,
// via the type-to-ids inverted index.
func (g *Graph) ByNodeType(nodeType string) []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := g.byType[nodeType]
	out := make([]uint64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// ByFilePath returns every external id whose metadata.ContentRef equals path,
// via the file-path-to-ids inverted index.
func (g *Graph) ByFilePath(path string) []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := g.byPath[path]
	out := make([]uint64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}
