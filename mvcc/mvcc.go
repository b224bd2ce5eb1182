// Package mvcc implements transaction ids, snapshots, and the visibility
// rule that lets readers see a stable, consistent view of row versions while
// writers append new ones. Transaction ids are unbounded monotonic uint64s
// rather than PostgreSQL-style 32-bit wraparound XIDs, so there is no freeze
// machinery.
package mvcc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratadb/stratadb/clog"
	"github.com/stratadb/stratadb/errs"
)

// Snapshot fixes a point-in-time view of the database: a boundary txid and
// the set of txids that were still in-progress when the snapshot was taken.
type Snapshot struct {
	TxID      uint64
	ActiveSet map[uint64]struct{}
	Timestamp time.Time
}

func (s Snapshot) isActive(txid uint64) bool {
	_, ok := s.ActiveSet[txid]
	return ok
}

// Visible reports whether a row version with the given xmin and optional
// xmax can be seen under snapshot s and commit log log.
func Visible(xmin uint64, xmax *uint64, s Snapshot, log *clog.Log) bool {
	if !log.IsCommitted(xmin) {
		return false
	}
	if xmin > s.TxID {
		return false
	}
	if s.isActive(xmin) {
		return false
	}
	if xmax == nil {
		return true
	}
	if !log.IsCommitted(*xmax) {
		return true
	}
	if *xmax > s.TxID {
		return true
	}
	if s.isActive(*xmax) {
		return true
	}
	return false
}

// Transaction is a single in-flight transaction: its snapshot and the undo
// log needed to reverse its effects on rollback. The table package and the
// database's B+ tree index maintenance append an undo closure via RecordUndo
// for every operation they perform under this transaction; commit simply
// discards the log.
type Transaction struct {
	TxID     uint64
	Snapshot Snapshot

	mu      sync.Mutex
	undoLog []func() error
}

// RecordUndo appends fn to the transaction's undo log. fn is invoked, in
// LIFO order with its siblings, only if the transaction rolls back.
func (t *Transaction) RecordUndo(fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, fn)
}

// Manager is the transaction manager (TM): assigns txids, tracks active
// transactions and the current-transaction stack, and drives the commit log.
type Manager struct {
	mu       sync.Mutex
	nextTxID uint64 // atomic; does not require mu
	active   map[uint64]*Transaction
	stack    []uint64
	log      *clog.Log
}

func NewManager(log *clog.Log) *Manager {
	return &Manager{
		nextTxID: 1, // txid 0 is the reserved bootstrap id
		active:   make(map[uint64]*Transaction),
		log:      log,
	}
}

// Begin allocates a txid, captures a snapshot of the current active set, and
// pushes the new transaction on the TM stack.
func (m *Manager) Begin() *Transaction {
	txid := atomic.AddUint64(&m.nextTxID, 1) - 1

	m.mu.Lock()
	activeCopy := make(map[uint64]struct{}, len(m.active))
	for id := range m.active {
		activeCopy[id] = struct{}{}
	}
	tx := &Transaction{
		TxID: txid,
		Snapshot: Snapshot{
			TxID:      txid,
			ActiveSet: activeCopy,
			Timestamp: time.Now(),
		},
	}
	m.active[txid] = tx
	m.stack = append(m.stack, txid)
	m.mu.Unlock()

	m.log.MarkInProgress(txid)
	return tx
}

// Commit finalizes txid, which must currently be active. Independent
// concurrent transactions close in whatever order their callers choose; the
// stack's top-equals-txid case is simply the common single-session nested
// pattern, not a hard requirement on unrelated concurrent transactions.
func (m *Manager) Commit(txid uint64) error {
	m.mu.Lock()
	if _, ok := m.active[txid]; !ok {
		m.mu.Unlock()
		return errs.New(errs.KindTransactionNotActive, "txid %d is not active", txid)
	}
	m.popFromStack(txid)
	delete(m.active, txid)
	m.mu.Unlock()

	m.log.MarkCommitted(txid)
	return nil
}

// Rollback aborts txid and reverses its undo log in LIFO order.
func (m *Manager) Rollback(txid uint64) error {
	m.mu.Lock()
	tx, ok := m.active[txid]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.KindTransactionNotActive, "txid %d is not active", txid)
	}
	m.popFromStack(txid)
	delete(m.active, txid)
	m.mu.Unlock()

	m.log.MarkAborted(txid)

	tx.mu.Lock()
	ops := tx.undoLog
	tx.mu.Unlock()
	for i := len(ops) - 1; i >= 0; i-- {
		if err := ops[i](); err != nil {
			return err
		}
	}
	return nil
}

// popFromStack removes txid from the stack wherever it appears. Callers must
// hold m.mu.
func (m *Manager) popFromStack(txid uint64) {
	for i, id := range m.stack {
		if id == txid {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			return
		}
	}
}

// CurrentTxID returns the innermost active transaction's id, if any.
func (m *Manager) CurrentTxID() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return 0, false
	}
	return m.stack[len(m.stack)-1], true
}

// ReadSnapshot returns a snapshot suitable for a read-only operation that is
// not itself part of an explicit transaction: its boundary is the highest
// txid ever assigned, and its active set is whatever is currently in flight.
// It does not allocate a new txid or touch the commit log.
func (m *Manager) ReadSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	boundary := atomic.LoadUint64(&m.nextTxID) - 1
	activeCopy := make(map[uint64]struct{}, len(m.active))
	for id := range m.active {
		activeCopy[id] = struct{}{}
	}
	return Snapshot{TxID: boundary, ActiveSet: activeCopy, Timestamp: time.Now()}
}

// AdvanceTxID ensures the next txid to be allocated is strictly greater than
// txid, without allocating one. Used by WAL recovery to fast-forward the
// allocator past every transaction id seen in the replayed log, so a freshly
// begun transaction after recovery can never collide with one from before
// the crash.
func (m *Manager) AdvanceTxID(txid uint64) {
	for {
		cur := atomic.LoadUint64(&m.nextTxID)
		if txid < cur {
			return
		}
		if atomic.CompareAndSwapUint64(&m.nextTxID, cur, txid+1) {
			return
		}
	}
}

// OldestActiveTxID returns the lowest txid of any currently in-progress
// transaction, or boundary+1 (i.e. "everything so far") if none are active.
// Used by VACUUM to decide which versions no future snapshot could see.
func (m *Manager) OldestActiveTxID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldest := atomic.LoadUint64(&m.nextTxID)
	for id := range m.active {
		if id < oldest {
			oldest = id
		}
	}
	return oldest
}
