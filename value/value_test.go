package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareCrossType(t *testing.T) {
	ordered := []Value{
		Null(),
		Bool(false),
		Bool(true),
		Int64(-5),
		Int64(10),
		Float64(10.5),
		Text("abc"),
		Text("abd"),
		Embedding([]float32{1, 2, 3}),
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Negative(t, Compare(ordered[i], ordered[i+1]), "index %d should sort before %d", i, i+1)
		assert.Positive(t, Compare(ordered[i+1], ordered[i]))
	}
}

func TestNullEqualsNull(t *testing.T) {
	assert.True(t, Equal(Null(), Null()))
}

func TestEmbeddingEqualityOnly(t *testing.T) {
	a := Embedding([]float32{1, 2, 3})
	b := Embedding([]float32{1, 2, 3})
	c := Embedding([]float32{1, 2, 4})
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestCloneIndependence(t *testing.T) {
	orig := Text("hello")
	cloned := orig.Clone()
	require.Equal(t, orig.AsText(), cloned.AsText())

	e := Embedding([]float32{1, 2})
	ec := e.Clone()
	ec2 := ec.AsEmbedding()
	ec2[0] = 99
	assert.Equal(t, float32(1), ec.AsEmbedding()[0], "mutating a returned slice must not affect the Value")
}

func TestTextNFCNormalization(t *testing.T) {
	// "é" as a single code point vs "e" + combining acute accent.
	composed := Text("é")
	decomposed := Text("é")
	assert.True(t, Equal(composed, decomposed))
}
