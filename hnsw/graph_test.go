package hnsw

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPoint(r *rand.Rand, dim int) []float32 {
	p := make([]float32, dim)
	for i := range p {
		p[i] = r.Float32()
	}
	return p
}

func TestInsertAndSelfSearch(t *testing.T) {
	g := NewGraph(8, DefaultParams())
	r := rand.New(rand.NewSource(42))

	var ids []uint64
	var points [][]float32
	for i := 0; i < 200; i++ {
		p := randomPoint(r, 8)
		id, err := g.Insert(nil, p, nil)
		require.NoError(t, err)
		ids = append(ids, id)
		points = append(points, p)
	}

	for i, id := range ids {
		internal, ok := g.GetInternalID(id)
		require.True(t, ok)
		assert.GreaterOrEqual(t, internal, int64(0))

		results, err := g.Search(points[i], 1)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Less(t, results[0].Distance, float32(0.01), "self search should find itself near-exactly")
	}
}

func TestDuplicateExternalIDRejected(t *testing.T) {
	g := NewGraph(4, DefaultParams())
	id := uint64(5)
	_, err := g.Insert(&id, []float32{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	_, err = g.Insert(&id, []float32{1, 2, 3, 4}, nil)
	require.Error(t, err)
}

func TestDimensionMismatchRejected(t *testing.T) {
	g := NewGraph(4, DefaultParams())
	_, err := g.Insert(nil, []float32{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestEdgesAndTraverse(t *testing.T) {
	g := NewGraph(2, DefaultParams())
	one, two, three := uint64(1), uint64(2), uint64(3)
	_, err := g.Insert(&one, []float32{0, 0}, nil)
	require.NoError(t, err)
	_, err = g.Insert(&two, []float32{1, 0}, nil)
	require.NoError(t, err)
	_, err = g.Insert(&three, []float32{2, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(1, 2, "refs", 0.5))
	require.NoError(t, g.AddEdge(2, 3, "refs", 0.5))

	refs := "refs"
	reached := g.Traverse(1, 2, &refs)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, reached)

	neighbors := g.GetNeighbors(2, &refs)
	assert.ElementsMatch(t, []uint64{1, 3}, neighbors)
}

func TestAddEdgeMissingEndpointErrors(t *testing.T) {
	g := NewGraph(2, DefaultParams())
	one := uint64(1)
	_, err := g.Insert(&one, []float32{0, 0}, nil)
	require.NoError(t, err)

	err = g.AddEdge(1, 99, "refs", 1.0)
	require.Error(t, err)
}

func TestRemoveMissingEdgeErrors(t *testing.T) {
	g := NewGraph(2, DefaultParams())
	one, two := uint64(1), uint64(2)
	_, _ = g.Insert(&one, []float32{0, 0}, nil)
	_, _ = g.Insert(&two, []float32{1, 1}, nil)

	err := g.RemoveEdge(1, 2, "refs")
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := NewGraph(4, DefaultParams())
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		id := uint64(i)
		meta := &Metadata{NodeType: "chunk"}
		_, err := g.Insert(&id, randomPoint(r, 4), meta)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge(0, 1, "refs", 0.9))

	path := filepath.Join(dir, "hnsw.bin")
	require.NoError(t, g.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, len(loaded.nodes))
	assert.Equal(t, 4, loaded.dim)

	edges := loaded.GetEdges(0, nil)
	require.Len(t, edges, 1)
	assert.Equal(t, uint64(1), edges[0].Dst)

	assert.ElementsMatch(t, loaded.ByNodeType("chunk"), g.ByNodeType("chunk"))
}

func TestCosineDistanceZeroVector(t *testing.T) {
	d := Distance([]float32{0, 0, 0}, []float32{1, 2, 3})
	assert.Equal(t, float32(1.0), d)
}
