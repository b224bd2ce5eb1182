package wal

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/stratadb/stratadb/errs"
)

// Magic identifies a WAL file: 0x5741_4C00 ("WAL\x00" read as a
// big-endian-looking constant, stored little-endian on disk like everything
// else in this format).
const Magic uint32 = 0x5741_4C00

const FormatVersion uint16 = 1

// HeaderSize is the fixed 36-byte file header: magic(4) + version(2) +
// page_size(2) + sequence(8) + created_at(8) + reserved(12).
const HeaderSize = 36

// Header is the fixed preamble of every WAL file.
type Header struct {
	Version   uint16
	PageSize  uint16
	Sequence  uint64
	CreatedAt int64
}

func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.PageSize)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	// buf[24:36] reserved, left zero.
	return buf
}

func DecodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("wal: read header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, errs.New(errs.KindInvalidWalMagic, "bad WAL magic 0x%08x", magic)
	}
	var h Header
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != FormatVersion {
		return Header{}, errs.New(errs.KindUnsupportedWalVersion, "WAL version %d unsupported", h.Version)
	}
	h.PageSize = binary.LittleEndian.Uint16(buf[6:8])
	h.Sequence = binary.LittleEndian.Uint64(buf[8:16])
	h.CreatedAt = int64(binary.LittleEndian.Uint64(buf[16:24]))
	return h, nil
}

// FileName returns the "wal.%06d" name for sequence.
func FileName(sequence uint64) string {
	return fmt.Sprintf("wal.%06d", sequence)
}
