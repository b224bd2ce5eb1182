// Package clog implements the commit log: the durable mapping from
// transaction id to final status that MVCC visibility checks consult. The
// in-memory status map round-trips to disk in a small self-describing
// format so recovery can rebuild it.
package clog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/stratadb/stratadb/errs"
)

// Status is a transaction's final (or interim) outcome.
type Status uint8

const (
	StatusInProgress Status = iota
	StatusCommitted
	StatusAborted
)

const (
	magic                = "CLOG"
	formatVersion uint32 = 1
)

// BootstrapTxID is the virtual transaction id used for rows created outside
// any explicit transaction. It is always committed, never in-progress or
// aborted, regardless of what CLOG holds for it.
const BootstrapTxID uint64 = 0

// Log is the commit log: txid -> status, guarded by its own mutex
// independent of the transaction manager's.
type Log struct {
	mu     sync.Mutex
	status map[uint64]Status
}

func New() *Log {
	return &Log{status: make(map[uint64]Status)}
}

// MarkInProgress records txid as in-progress. Called once at begin().
func (l *Log) MarkInProgress(txid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[txid] = StatusInProgress
}

func (l *Log) MarkCommitted(txid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[txid] = StatusCommitted
}

func (l *Log) MarkAborted(txid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[txid] = StatusAborted
}

// IsCommitted reports whether txid is committed. The bootstrap txid is
// always committed regardless of what the map holds.
func (l *Log) IsCommitted(txid uint64) bool {
	if txid == BootstrapTxID {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[txid] == StatusCommitted
}

// Status returns txid's recorded status. An unknown txid (never begun)
// reports StatusInProgress, matching the conservative "not yet visible"
// reading visibility checks need.
func (l *Log) Status(txid uint64) Status {
	if txid == BootstrapTxID {
		return StatusCommitted
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[txid]
}

// Merge overlays other onto l; entries in other win on conflict. Used during
// recovery to let WAL-derived status override a stale on-disk CLOG.
func (l *Log) Merge(other map[uint64]Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for txid, st := range other {
		l.status[txid] = st
	}
}

// Snapshot returns a copy of the full txid->status map, for callers (e.g.
// recovery merge, persistence) that need a point-in-time view.
func (l *Log) Snapshot() map[uint64]Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[uint64]Status, len(l.status))
	for k, v := range l.status {
		out[k] = v
	}
	return out
}

// Save writes the durable CLOG format to path: magic "CLOG", u32 version,
// u64 entry count, then (u64 txid, u8 status) tuples.
func (l *Log) Save(path string) error {
	l.mu.Lock()
	entries := make(map[uint64]Status, len(l.status))
	for k, v := range l.status {
		entries[k] = v
	}
	l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("clog: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}
	for txid, st := range entries {
		if err := binary.Write(w, binary.LittleEndian, txid); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(st)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads the durable CLOG format from path and returns a new Log holding
// its contents. A missing file is not an error: it is treated as an empty log (a
// fresh database has none yet).
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clog: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("clog: read magic: %w", err)
	}
	if string(hdr) != magic {
		return nil, errs.New(errs.KindInvalidWalMagic, "clog file %s has bad magic", path)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, errs.New(errs.KindUnsupportedWalVersion, "clog version %d unsupported", version)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	l := New()
	for i := uint64(0); i < count; i++ {
		var txid uint64
		var st uint8
		if err := binary.Read(r, binary.LittleEndian, &txid); err != nil {
			return nil, fmt.Errorf("clog: truncated at entry %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &st); err != nil {
			return nil, fmt.Errorf("clog: truncated at entry %d: %w", i, err)
		}
		l.status[txid] = Status(st)
	}
	return l, nil
}
