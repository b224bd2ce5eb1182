// Package value implements the tagged-union Value type that flows through
// every storage layer in stratadb: rows, B+ tree keys, and HNSW points all
// ultimately compare and clone Values.
package value

import (
	"bytes"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// Kind tags the variant held by a Value. The numeric order of these
// constants IS the cross-type comparison rank:
// null < bool < int < float < text < embedding.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindText
	KindEmbedding
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	case KindEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// Value is a single typed datum. Zero value is Null. Text and Embedding own
// their backing storage: callers must Clone before handing a Value to a
// structure that outlives the caller's buffer.
type Value struct {
	kind      Kind
	boolVal   bool
	intVal    int64
	floatVal  float64
	textVal   []byte
	embedding []float32
}

func Null() Value                     { return Value{kind: KindNull} }
func Bool(b bool) Value               { return Value{kind: KindBool, boolVal: b} }
func Int64(i int64) Value             { return Value{kind: KindInt64, intVal: i} }
func Float64(f float64) Value         { return Value{kind: KindFloat64, floatVal: f} }

// Text constructs a text Value. The input is NFC-normalized so that two
// byte-distinct but canonically-equivalent Unicode strings compare and hash
// identically once stored — otherwise a B+ tree index on a text column would
// silently split what a user considers one key into two adjacent ones.
func Text(s string) Value {
	normalized := norm.NFC.String(s)
	b := make([]byte, len(normalized))
	copy(b, normalized)
	return Value{kind: KindText, textVal: b}
}

// Embedding constructs an embedding Value, copying the input slice so the
// Value owns independent storage.
func Embedding(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{kind: KindEmbedding, embedding: cp}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) AsBool() bool    { return v.boolVal }
func (v Value) AsInt64() int64  { return v.intVal }
func (v Value) AsFloat64() float64 { return v.floatVal }
func (v Value) AsText() string  { return string(v.textVal) }
func (v Value) AsEmbedding() []float32 {
	cp := make([]float32, len(v.embedding))
	copy(cp, v.embedding)
	return cp
}

// Clone returns a Value with independent backing storage for variable-length
// variants (text, embedding); scalar variants are already copy-by-value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindText:
		b := make([]byte, len(v.textVal))
		copy(b, v.textVal)
		return Value{kind: KindText, textVal: b}
	case KindEmbedding:
		e := make([]float32, len(v.embedding))
		copy(e, v.embedding)
		return Value{kind: KindEmbedding, embedding: e}
	default:
		return v
	}
}

// Compare implements the index total order: cross-type by Kind rank, then
// natural order within a type. Embedding is equality-only — ordering between
// two distinct, non-equal embeddings is undefined but must still be a strict
// total order for use as a B+ tree key, so embeddings order by length, then
// element by element.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		if a.boolVal == b.boolVal {
			return 0
		}
		if !a.boolVal {
			return -1
		}
		return 1
	case KindInt64:
		switch {
		case a.intVal < b.intVal:
			return -1
		case a.intVal > b.intVal:
			return 1
		default:
			return 0
		}
	case KindFloat64:
		switch {
		case a.floatVal < b.floatVal:
			return -1
		case a.floatVal > b.floatVal:
			return 1
		default:
			return 0
		}
	case KindText:
		return bytes.Compare(a.textVal, b.textVal)
	case KindEmbedding:
		return compareEmbedding(a.embedding, b.embedding)
	default:
		return 0
	}
}

func compareEmbedding(a, b []float32) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Equal reports value equality, including the rule that null equals
// null for index/search purposes (Compare already yields 0 for two nulls,
// so Equal is just Compare == 0, but it's spelled out since "null == null"
// is surprising relative to SQL three-valued logic and callers should not
// have to rediscover that by reading Compare).
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindInt64:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat64:
		return fmt.Sprintf("%g", v.floatVal)
	case KindText:
		return string(v.textVal)
	case KindEmbedding:
		return fmt.Sprintf("embedding[%d]", len(v.embedding))
	default:
		return "?"
	}
}

// ValidFloat reports whether f is usable as a stored float (rejects NaN,
// which has no consistent total order and would break B+ tree invariants).
func ValidFloat(f float64) bool { return !math.IsNaN(f) }
