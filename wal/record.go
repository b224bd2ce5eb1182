// Package wal implements the write-ahead log: typed, checksummed records,
// file rotation and quota enforcement, path hardening, and crash-tolerant
// iteration. Records use a fixed-width-prefix-then-payload layout with a
// trailing CRC32, so a torn tail after a crash is detectable and treated as
// a truncation point rather than corruption of the whole file.
package wal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/stratadb/stratadb/errs"
)

// RecordType tags a WAL record's purpose.
type RecordType uint8

const (
	RecordBegin RecordType = iota
	RecordCommit
	RecordRollback
	RecordInsert
	RecordDelete
	RecordUpdate
	RecordCheckpoint
)

func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "begin"
	case RecordCommit:
		return "commit"
	case RecordRollback:
		return "rollback"
	case RecordInsert:
		return "insert"
	case RecordDelete:
		return "delete"
	case RecordUpdate:
		return "update"
	case RecordCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// Record is a single WAL entry. TableName and RowID are meaningless for
// begin/commit/rollback/checkpoint records and left zero-valued.
type Record struct {
	Type      RecordType
	TxID      uint64
	LSN       uint64
	RowID     uint64
	TableName string
	Data      []byte
}

// Encode serializes r: u8 type, u64 tx_id, u64 lsn, u64 row_id, u16
// table_name_len, table_name bytes, u32 data_len, data bytes, u32 CRC32 over
// everything preceding it.
func (r Record) Encode() []byte {
	nameBytes := []byte(r.TableName)
	size := 1 + 8 + 8 + 8 + 2 + len(nameBytes) + 4 + len(r.Data) + 4
	buf := make([]byte, 0, size)
	b := bytes.NewBuffer(buf)

	b.WriteByte(byte(r.Type))
	writeU64(b, r.TxID)
	writeU64(b, r.LSN)
	writeU64(b, r.RowID)
	writeU16(b, uint16(len(nameBytes)))
	b.Write(nameBytes)
	writeU32(b, uint32(len(r.Data)))
	b.Write(r.Data)

	sum := crc32.ChecksumIEEE(b.Bytes())
	writeU32(b, sum)
	return b.Bytes()
}

func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}
func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}
func writeU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

// DecodeRecord reads exactly one record from r. It returns io.EOF when r is
// cleanly exhausted between records, and a KindChecksumMismatch error when
// the trailing CRC32 does not match the body; callers treat the latter as a
// truncation point, not a hard failure.
func DecodeRecord(r io.Reader) (Record, error) {
	var rec Record

	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		if err == io.ErrUnexpectedEOF {
			return rec, io.EOF
		}
		return rec, err
	}
	rec.Type = RecordType(typeByte[0])

	fixed := make([]byte, 8+8+8+2)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return rec, io.ErrUnexpectedEOF
	}
	rec.TxID = binary.LittleEndian.Uint64(fixed[0:8])
	rec.LSN = binary.LittleEndian.Uint64(fixed[8:16])
	rec.RowID = binary.LittleEndian.Uint64(fixed[16:24])
	nameLen := binary.LittleEndian.Uint16(fixed[24:26])

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return rec, io.ErrUnexpectedEOF
	}
	rec.TableName = string(nameBytes)

	dataLenBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, dataLenBytes); err != nil {
		return rec, io.ErrUnexpectedEOF
	}
	dataLen := binary.LittleEndian.Uint32(dataLenBytes)

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return rec, io.ErrUnexpectedEOF
	}
	rec.Data = data

	crcBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return rec, io.ErrUnexpectedEOF
	}
	wantCRC := binary.LittleEndian.Uint32(crcBytes)

	var body bytes.Buffer
	body.WriteByte(typeByte[0])
	body.Write(fixed)
	body.Write(nameBytes)
	body.Write(dataLenBytes)
	body.Write(data)
	gotCRC := crc32.ChecksumIEEE(body.Bytes())

	if gotCRC != wantCRC {
		return rec, errs.New(errs.KindChecksumMismatch, "record at tx %d lsn %d: crc mismatch", rec.TxID, rec.LSN)
	}
	return rec, nil
}
