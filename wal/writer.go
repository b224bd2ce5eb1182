package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratadb/stratadb/errs"
)

const (
	DefaultMaxFileSize     int64  = 16 << 20 // 16 MiB
	DefaultMaxTotalWalSize int64  = 1 << 30  // 1 GiB
	defaultPageSize        uint16 = 4096
)

var walFileRE = regexp.MustCompile(`^wal\.(\d{6})$`)

// Writer is the single-producer WAL append path. Callers serialize access
// via the enclosing DB lock; Writer itself only guards its
// internal bookkeeping so concurrent callers don't corrupt counters.
type Writer struct {
	mu sync.Mutex

	dir             string
	file            *os.File
	buf             *bufio.Writer
	sequence        uint64
	currentSize     int64
	totalSize       int64
	maxFileSize     int64
	maxTotalWalSize int64
	pageSize        uint16

	nextLSN uint64 // atomic
}

// NewWriter opens (or creates) the WAL in dir. dir is assumed to already be
// validated by the caller if any component of it was derived from untrusted
// input — see ValidateRelativePath.
func NewWriter(dir string, maxFileSize, maxTotalWalSize int64) (*Writer, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxTotalWalSize <= 0 {
		maxTotalWalSize = DefaultMaxTotalWalSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	sequences, totalSize, err := scanExisting(dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		dir:             dir,
		maxFileSize:     maxFileSize,
		maxTotalWalSize: maxTotalWalSize,
		pageSize:        defaultPageSize,
		totalSize:       totalSize,
	}

	if len(sequences) == 0 {
		if err := w.createFile(0); err != nil {
			return nil, err
		}
		return w, nil
	}

	last := sequences[len(sequences)-1]
	if err := w.openForAppend(last); err != nil {
		return nil, err
	}
	return w, nil
}

func scanExisting(dir string) (sequences []uint64, totalSize int64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("wal: read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := walFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, convErr := strconv.ParseUint(m[1], 10, 64)
		if convErr != nil {
			continue
		}
		sequences = append(sequences, seq)
		info, statErr := e.Info()
		if statErr == nil {
			totalSize += info.Size()
		}
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	return sequences, totalSize, nil
}

// createFile creates a brand-new WAL file at sequence, refusing to follow
// or overwrite a symlink: the file must not already exist, checked via
// Lstat before exclusive creation closes the remaining TOCTOU window.
func (w *Writer) createFile(sequence uint64) error {
	path := filepath.Join(w.dir, FileName(sequence))

	if _, err := os.Lstat(path); err == nil {
		return errs.New(errs.KindSymlinkNotAllowed, "refusing to create WAL file over existing path %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: create %s: %w", path, err)
	}

	hdr := Header{Version: FormatVersion, PageSize: w.pageSize, Sequence: sequence, CreatedAt: time.Now().Unix()}
	hdrBytes := hdr.Encode()
	if _, err := f.Write(hdrBytes); err != nil {
		f.Close()
		return fmt.Errorf("wal: write header %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	w.file = f
	w.buf = bufio.NewWriterSize(f, int(w.pageSize))
	w.sequence = sequence
	w.currentSize = int64(len(hdrBytes))
	w.totalSize += int64(len(hdrBytes))
	return nil
}

// openForAppend reopens the highest-sequence existing file so a fresh
// process picks up where a prior one left off (e.g. after a clean restart
// that never rotated past it).
func (w *Writer) openForAppend(sequence uint64) error {
	path := filepath.Join(w.dir, FileName(sequence))

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("wal: lstat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errs.New(errs.KindSymlinkNotAllowed, "refusing to open symlinked WAL file %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", path, err)
	}

	w.file = f
	w.buf = bufio.NewWriterSize(f, int(w.pageSize))
	w.sequence = sequence
	w.currentSize = info.Size()
	return nil
}

// NextLSN returns the next monotonic LSN to stamp on a record.
func (w *Writer) NextLSN() uint64 {
	return atomic.AddUint64(&w.nextLSN, 1)
}

// FastForwardLSN ensures the next LSN handed out is strictly greater than
// seen. Recovery calls this with the highest LSN found while replaying the
// existing log, so a writer reopened onto a non-empty WAL (the common case:
// the last file was never rotated) never reissues an LSN that already
// appears on disk.
func (w *Writer) FastForwardLSN(seen uint64) {
	for {
		cur := atomic.LoadUint64(&w.nextLSN)
		if seen < cur {
			return
		}
		if atomic.CompareAndSwapUint64(&w.nextLSN, cur, seen) {
			return
		}
	}
}

// Append encodes and writes rec, rotating to a new file first if it would
// exceed max_file_size, and refusing the write outright if it would exceed
// max_total_wal_size. Commit and rollback records flush and fsync
// immediately (the group-commit durability boundary); others are buffered.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	encoded := rec.Encode()
	size := int64(len(encoded))

	if w.totalSize+size > w.maxTotalWalSize {
		return errs.New(errs.KindWalDiskQuotaExceeded, "appending %d bytes would exceed max_total_wal_size %d", size, w.maxTotalWalSize)
	}

	if w.currentSize+size > w.maxFileSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	if _, err := w.buf.Write(encoded); err != nil {
		return fmt.Errorf("wal: write record: %w", err)
	}
	w.currentSize += size
	w.totalSize += size

	if rec.Type == RecordCommit || rec.Type == RecordRollback {
		return w.flushLocked()
	}
	if w.buf.Buffered() >= int(w.pageSize) {
		return w.flushLocked()
	}
	return nil
}

// rotate creates the next file before touching the old one, so a failure
// partway through never leaves the writer without a valid current file.
func (w *Writer) rotate() error {
	oldFile := w.file
	oldBuf := w.buf
	nextSeq := w.sequence + 1

	if err := oldBuf.Flush(); err != nil {
		return fmt.Errorf("wal: flush before rotate: %w", err)
	}
	if err := oldFile.Sync(); err != nil {
		return fmt.Errorf("wal: sync before rotate: %w", err)
	}

	if err := w.createFile(nextSeq); err != nil {
		return err
	}
	return oldFile.Close()
}

// Flush writes any buffered bytes and fsyncs the current file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Close()
}

// CurrentSequence returns the sequence number of the file currently being
// written to; it is never eligible for checkpoint-driven deletion.
func (w *Writer) CurrentSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// DeleteOlderThan removes WAL files with sequence < keepFrom, refusing to
// ever touch the current file.
func (w *Writer) DeleteOlderThan(keepFrom uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sequences, _, err := scanExisting(w.dir)
	if err != nil {
		return err
	}
	for _, seq := range sequences {
		if seq >= keepFrom {
			continue
		}
		if seq == w.sequence {
			return errs.New(errs.KindCannotDeleteCurrentWalFile, "sequence %d is the current WAL file", seq)
		}
		path := filepath.Join(w.dir, FileName(seq))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wal: delete %s: %w", path, err)
		}
	}
	return nil
}
