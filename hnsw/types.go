// Package hnsw implements the vector+graph index: a layered proximity graph
// (Hierarchical Navigable Small World) per embedding dimension, carrying
// typed node metadata and typed weighted edges with inverted indexes over
// node type and file path. Nodes are addressed internally by dense ids into
// an arena; external ids are caller-assigned or auto-incremented.
package hnsw

import (
	"sync"

	"github.com/stratadb/stratadb/value"
)

// Params configures one Graph's construction and search behavior.
type Params struct {
	M              int // max connections per layer (default 16)
	EfConstruction int // candidate list width while inserting (default 200)
	EfSearch       int // candidate list width while searching (default 256)
}

func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 256}
}

// Metadata is optional, user-supplied annotation on a node.
type Metadata struct {
	NodeType   string
	ContentRef *string
	Timestamp  int64
	Attributes map[string]value.Value
}

func (m *Metadata) clone() *Metadata {
	if m == nil {
		return nil
	}
	cp := &Metadata{NodeType: m.NodeType, Timestamp: m.Timestamp}
	if m.ContentRef != nil {
		ref := *m.ContentRef
		cp.ContentRef = &ref
	}
	if m.Attributes != nil {
		cp.Attributes = make(map[string]value.Value, len(m.Attributes))
		for k, v := range m.Attributes {
			cp.Attributes[k] = v.Clone()
		}
	}
	return cp
}

// node is one HNSW graph node, addressed by a dense internal id. connections
// is indexed by layer; connections[l] holds neighbor internal ids at layer l.
type node struct {
	mu sync.Mutex

	internalID int64
	externalID uint64
	point      []float32
	metadata   *Metadata

	connections [][]int64
}

// Edge is a typed, weighted, directed relation between two external ids.
type Edge struct {
	Src    uint64
	Dst    uint64
	Type   string
	Weight float32
}
