package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stratadb/stratadb/errs"
)

// VisitFunc is called once per successfully decoded record, in file and
// then on-disk order (which is LSN order, since LSNs are assigned
// monotonically by a single writer).
type VisitFunc func(Record) error

// ReadFile iterates every record in a single WAL file, stopping silently at
// the first checksum mismatch or truncated record (treated as the crash
// truncation point, not a hard error) rather than propagating it to the
// caller.
func ReadFile(path string, visit VisitFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if _, err := DecodeHeader(r); err != nil {
		return fmt.Errorf("wal: %s: %w", path, err)
	}

	for {
		rec, err := DecodeRecord(r)
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errs.Of(err, errs.KindChecksumMismatch) {
			return nil // truncated tail: stop this file, not an error
		}
		if err != nil {
			return err
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
}

// ReadDir iterates every wal.%06d file in dir in ascending sequence order,
// calling visit for each decoded record.
func ReadDir(dir string, visit VisitFunc) error {
	sequences, _, err := scanExisting(dir)
	if err != nil {
		return err
	}
	for _, seq := range sequences {
		path := filepath.Join(dir, FileName(seq))
		if err := ReadFile(path, visit); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll is a convenience wrapper over ReadDir that materializes every
// record into a slice; prefer ReadDir for large logs.
func ReadAll(dir string) ([]Record, error) {
	var out []Record
	err := ReadDir(dir, func(r Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}
