package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/stratadb/stratadb/value"
)

// EncodeRow serializes a Row for WAL payloads and on-disk table snapshots.
// The format is big-endian: a u32 column count, then per column a
// u32-length-prefixed name, a u8 kind tag and the value.
func EncodeRow(r Row) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(r)))
	for name, v := range r {
		writeString(&buf, name)
		buf.WriteByte(byte(v.Kind()))
		writeValue(&buf, v)
	}
	return buf.Bytes()
}

// DecodeRow is EncodeRow's inverse.
func DecodeRow(data []byte) (Row, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("table: decode row header: %w", err)
	}
	row := make(Row, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("table: decode column name: %w", err)
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("table: decode column kind: %w", err)
		}
		v, err := readValue(r, value.Kind(kindByte))
		if err != nil {
			return nil, fmt.Errorf("table: decode column %q: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeValue(buf *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.KindNull:
	case value.KindBool:
		if v.AsBool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case value.KindInt64:
		binary.Write(buf, binary.BigEndian, v.AsInt64())
	case value.KindFloat64:
		binary.Write(buf, binary.BigEndian, math.Float64bits(v.AsFloat64()))
	case value.KindText:
		writeString(buf, v.AsText())
	case value.KindEmbedding:
		e := v.AsEmbedding()
		binary.Write(buf, binary.BigEndian, uint32(len(e)))
		for _, f := range e {
			binary.Write(buf, binary.BigEndian, math.Float32bits(f))
		}
	}
}

func readValue(r io.Reader, kind value.Kind) (value.Value, error) {
	switch kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return value.Value{}, err
		}
		return value.Bool(b[0] != 0), nil
	case value.KindInt64:
		var i int64
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return value.Value{}, err
		}
		return value.Int64(i), nil
	case value.KindFloat64:
		var bits uint64
		if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
			return value.Value{}, err
		}
		return value.Float64(math.Float64frombits(bits)), nil
	case value.KindText:
		s, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil
	case value.KindEmbedding:
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return value.Value{}, err
		}
		out := make([]float32, dim)
		for i := range out {
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return value.Value{}, err
			}
			out[i] = math.Float32frombits(bits)
		}
		return value.Embedding(out), nil
	default:
		return value.Value{}, fmt.Errorf("table: unknown value kind %d", kind)
	}
}
