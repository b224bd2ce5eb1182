package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/value"
)

const (
	persistMagic = "HNSW"
	persistV1    = uint16(1)
	persistV2    = uint16(2)
)

// Save writes the version-2 HNSW index file format.
func (g *Graph) Save(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hnsw: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := w.WriteString(persistMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, persistV2); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(g.params.M)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(g.params.EfConstruction)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(g.entryLevel)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, g.nextExternalID); err != nil {
		return err
	}

	hasEntry := uint8(0)
	if g.hasEntry {
		hasEntry = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasEntry); err != nil {
		return err
	}
	if g.hasEntry {
		if err := binary.Write(w, binary.LittleEndian, g.entryPoint); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(g.nodes))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(g.dim)); err != nil {
		return err
	}

	for _, n := range g.nodes {
		if err := writeNode(w, n); err != nil {
			return err
		}
	}

	g.edges.mu.RLock()
	if err := binary.Write(w, binary.LittleEndian, uint64(len(g.edges.byKey))); err != nil {
		g.edges.mu.RUnlock()
		return err
	}
	for _, e := range g.edges.byKey {
		if err := writeEdge(w, e); err != nil {
			g.edges.mu.RUnlock()
			return err
		}
	}
	g.edges.mu.RUnlock()

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func writeNode(w io.Writer, n *node) error {
	if err := binary.Write(w, binary.LittleEndian, n.internalID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n.externalID); err != nil {
		return err
	}
	level := len(n.connections) - 1
	if err := binary.Write(w, binary.LittleEndian, uint32(level)); err != nil {
		return err
	}
	for _, f32 := range n.point {
		if err := binary.Write(w, binary.LittleEndian, math.Float32bits(f32)); err != nil {
			return err
		}
	}
	for l := 0; l <= level; l++ {
		var ids []int64
		if l < len(n.connections) {
			ids = n.connections[l]
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
			return err
		}
		for _, id := range ids {
			if err := binary.Write(w, binary.LittleEndian, id); err != nil {
				return err
			}
		}
	}
	return writeMetadata(w, n.metadata)
}

func writeMetadata(w io.Writer, m *Metadata) error {
	if m == nil {
		return binary.Write(w, binary.LittleEndian, uint8(0))
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(1)); err != nil {
		return err
	}
	if err := writeString(w, m.NodeType); err != nil {
		return err
	}
	hasRef := uint8(0)
	if m.ContentRef != nil {
		hasRef = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasRef); err != nil {
		return err
	}
	if m.ContentRef != nil {
		if err := writeString(w, *m.ContentRef); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, m.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Attributes))); err != nil {
		return err
	}
	for k, v := range m.Attributes {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(v.Kind())); err != nil {
			return err
		}
		if err := writeAttrValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeAttrValue(w io.Writer, v value.Value) error {
	switch v.Kind() {
	case value.KindBool:
		b := uint8(0)
		if v.AsBool() {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case value.KindInt64:
		return binary.Write(w, binary.LittleEndian, v.AsInt64())
	case value.KindFloat64:
		return binary.Write(w, binary.LittleEndian, v.AsFloat64())
	case value.KindText:
		return writeString(w, v.AsText())
	case value.KindEmbedding:
		emb := v.AsEmbedding()
		if err := binary.Write(w, binary.LittleEndian, uint32(len(emb))); err != nil {
			return err
		}
		for _, f32 := range emb {
			if err := binary.Write(w, binary.LittleEndian, math.Float32bits(f32)); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil // null: nothing to write beyond the kind tag
	}
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeEdge(w io.Writer, e Edge) error {
	if err := binary.Write(w, binary.LittleEndian, e.Src); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.Dst); err != nil {
		return err
	}
	if err := writeString(w, e.Type); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, e.Weight)
}

// Load reads an HNSW file, accepting format versions 1 and 2; v1 files omit
// metadata and edges entirely.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, fmt.Errorf("hnsw: read magic: %w", err)
	}
	if string(magicBuf) != persistMagic {
		return nil, errs.New(errs.KindInvalidWalMagic, "bad HNSW magic in %s", path)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != persistV1 && version != persistV2 {
		return nil, errs.New(errs.KindUnsupportedWalVersion, "HNSW version %d unsupported", version)
	}

	var m, efc, maxLevel uint32
	var nextExt uint64
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &efc); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &maxLevel); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &nextExt); err != nil {
		return nil, err
	}

	var hasEntry uint8
	if err := binary.Read(r, binary.LittleEndian, &hasEntry); err != nil {
		return nil, err
	}
	var entryPoint int64
	if hasEntry == 1 {
		if err := binary.Read(r, binary.LittleEndian, &entryPoint); err != nil {
			return nil, err
		}
	}

	var nodeCount uint64
	if err := binary.Read(r, binary.LittleEndian, &nodeCount); err != nil {
		return nil, err
	}
	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, err
	}

	g := NewGraph(int(dim), Params{M: int(m), EfConstruction: int(efc), EfSearch: DefaultParams().EfSearch})
	g.nextExternalID = nextExt
	g.hasEntry = hasEntry == 1
	g.entryPoint = entryPoint
	g.entryLevel = int(maxLevel)

	var maxInternal int64 = -1
	for i := uint64(0); i < nodeCount; i++ {
		n, err := readNode(r, int(dim), version)
		if err != nil {
			return nil, err
		}
		g.nodes[n.internalID] = n
		g.extToInt[n.externalID] = n.internalID
		g.indexMetadataLocked(n.externalID, n.metadata)
		if n.internalID > maxInternal {
			maxInternal = n.internalID
		}
	}
	g.nextInternalID = maxInternal + 1

	if version == persistV2 {
		var edgeCount uint64
		if err := binary.Read(r, binary.LittleEndian, &edgeCount); err != nil {
			return nil, err
		}
		for i := uint64(0); i < edgeCount; i++ {
			e, err := readEdge(r)
			if err != nil {
				return nil, err
			}
			key := edgeKey{src: e.Src, dst: e.Dst, typeHash: hashType(e.Type)}
			g.edges.byKey[key] = e
		}
	}

	return g, nil
}

func readNode(r io.Reader, dim int, version uint16) (*node, error) {
	n := &node{}
	if err := binary.Read(r, binary.LittleEndian, &n.internalID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &n.externalID); err != nil {
		return nil, err
	}
	var level uint32
	if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
		return nil, err
	}

	n.point = make([]float32, dim)
	for i := 0; i < dim; i++ {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		n.point[i] = math.Float32frombits(bits)
	}

	n.connections = make([][]int64, level+1)
	for l := 0; l <= int(level); l++ {
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		ids := make([]int64, count)
		for i := range ids {
			if err := binary.Read(r, binary.LittleEndian, &ids[i]); err != nil {
				return nil, err
			}
		}
		n.connections[l] = ids
	}

	if version == persistV1 {
		return n, nil
	}

	var hasMeta uint8
	if err := binary.Read(r, binary.LittleEndian, &hasMeta); err != nil {
		return nil, err
	}
	if hasMeta == 0 {
		return n, nil
	}
	meta := &Metadata{}
	nodeType, err := readString(r)
	if err != nil {
		return nil, err
	}
	meta.NodeType = nodeType

	var hasRef uint8
	if err := binary.Read(r, binary.LittleEndian, &hasRef); err != nil {
		return nil, err
	}
	if hasRef == 1 {
		ref, err := readString(r)
		if err != nil {
			return nil, err
		}
		meta.ContentRef = &ref
	}
	if err := binary.Read(r, binary.LittleEndian, &meta.Timestamp); err != nil {
		return nil, err
	}
	var attrCount uint32
	if err := binary.Read(r, binary.LittleEndian, &attrCount); err != nil {
		return nil, err
	}
	meta.Attributes = make(map[string]value.Value, attrCount)
	for i := uint32(0); i < attrCount; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		var kind uint8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		v, err := readAttrValue(r, value.Kind(kind))
		if err != nil {
			return nil, err
		}
		meta.Attributes[key] = v
	}
	n.metadata = meta
	return n, nil
}

func readAttrValue(r io.Reader, kind value.Kind) (value.Value, error) {
	switch kind {
	case value.KindBool:
		var b uint8
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return value.Value{}, err
		}
		return value.Bool(b == 1), nil
	case value.KindInt64:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return value.Value{}, err
		}
		return value.Int64(i), nil
	case value.KindFloat64:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return value.Value{}, err
		}
		return value.Float64(f), nil
	case value.KindText:
		s, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil
	case value.KindEmbedding:
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return value.Value{}, err
		}
		vec := make([]float32, count)
		for i := range vec {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return value.Value{}, err
			}
			vec[i] = math.Float32frombits(bits)
		}
		return value.Embedding(vec), nil
	default:
		return value.Null(), nil
	}
}

func readString(r io.Reader) (string, error) {
	var l uint16
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return "", err
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readEdge(r io.Reader) (Edge, error) {
	var e Edge
	if err := binary.Read(r, binary.LittleEndian, &e.Src); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Dst); err != nil {
		return e, err
	}
	t, err := readString(r)
	if err != nil {
		return e, err
	}
	e.Type = t
	if err := binary.Read(r, binary.LittleEndian, &e.Weight); err != nil {
		return e, err
	}
	return e, nil
}
