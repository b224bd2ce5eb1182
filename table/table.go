// Package table implements schemas, rows, per-row version chains, and the
// named-table registry. Each table guards its row map and version-chain
// heads with one mutex; rows are value.Value-typed maps keyed by column
// name.
package table

import (
	"sync"
	"sync/atomic"

	"github.com/stratadb/stratadb/clog"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/mvcc"
	"github.com/stratadb/stratadb/value"
)

// ColumnDef names one column of a schema. EmbeddingDim is only meaningful
// when Type == value.KindEmbedding.
type ColumnDef struct {
	Name         string
	Type         value.Kind
	EmbeddingDim int
}

// Schema is the ordered list of a table's columns.
type Schema struct {
	Columns []ColumnDef
}

// Validate enforces that no two embedding columns in one schema share the
// same dimension (HNSW keys graphs by dimension, so a collision would make
// two distinct columns alias the same index).
func (s Schema) Validate() error {
	seen := make(map[int]string)
	for _, c := range s.Columns {
		if c.Type != value.KindEmbedding {
			continue
		}
		if existing, ok := seen[c.EmbeddingDim]; ok {
			return errs.New(errs.KindDuplicateEmbeddingDimension, "columns %q and %q both use embedding dimension %d", existing, c.Name, c.EmbeddingDim)
		}
		seen[c.EmbeddingDim] = c.Name
	}
	return nil
}

func (s Schema) column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// Row is a column-name-to-value mapping; every Table method that returns one
// hands back an independently owned copy.
type Row map[string]value.Value

func (r Row) clone() Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v.Clone()
	}
	return cp
}

// version is one entry in a row's version chain, newest-first.
type version struct {
	rowID  uint64
	values Row
	xmin   uint64
	xmax   *uint64
	next   *version
}

// RowResult pairs a row id with its row, as returned by Scan.
type RowResult struct {
	RowID uint64
	Row   Row
}

// Table owns one schema and its rows' version chains.
type Table struct {
	mu        sync.Mutex
	Name      string
	Schema    Schema
	heads     map[uint64]*version
	nextRowID uint64
}

func New(name string, schema Schema) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Table{
		Name:   name,
		Schema: schema,
		heads:  make(map[uint64]*version),
	}, nil
}

// Insert creates a fresh row version chain with xmin=txid, returning the
// freshly allocated row id. If tx is non-nil, an undo closure that physically
// removes the row is registered for rollback.
func (t *Table) Insert(values Row, txid uint64, tx *mvcc.Transaction) uint64 {
	rowID := atomic.AddUint64(&t.nextRowID, 1)

	t.mu.Lock()
	t.heads[rowID] = &version{rowID: rowID, values: values.clone(), xmin: txid}
	t.mu.Unlock()

	if tx != nil {
		tx.RecordUndo(func() error {
			t.mu.Lock()
			delete(t.heads, rowID)
			t.mu.Unlock()
			return nil
		})
	}
	return rowID
}

// Update pushes a new version head with xmin=txid and marks the previous
// head's xmax=txid, atomically from the reader's perspective (both changes
// happen under the table mutex before any reader can observe either).
func (t *Table) Update(rowID uint64, newValues Row, txid uint64, tx *mvcc.Transaction) error {
	t.mu.Lock()
	old, ok := t.heads[rowID]
	if !ok {
		t.mu.Unlock()
		return errs.New(errs.KindColumnNotFound, "row %d does not exist in table %q", rowID, t.Name)
	}
	xmaxVal := txid
	old.xmax = &xmaxVal
	newHead := &version{rowID: rowID, values: newValues.clone(), xmin: txid, next: old}
	t.heads[rowID] = newHead
	t.mu.Unlock()

	if tx != nil {
		tx.RecordUndo(func() error {
			t.mu.Lock()
			old.xmax = nil
			t.heads[rowID] = old
			t.mu.Unlock()
			return nil
		})
	}
	return nil
}

// Delete sets xmax=txid on the row's current head; no new version is
// appended.
func (t *Table) Delete(rowID uint64, txid uint64, tx *mvcc.Transaction) error {
	t.mu.Lock()
	head, ok := t.heads[rowID]
	if !ok {
		t.mu.Unlock()
		return errs.New(errs.KindColumnNotFound, "row %d does not exist in table %q", rowID, t.Name)
	}
	xmaxVal := txid
	head.xmax = &xmaxVal
	t.mu.Unlock()

	if tx != nil {
		tx.RecordUndo(func() error {
			t.mu.Lock()
			head.xmax = nil
			t.mu.Unlock()
			return nil
		})
	}
	return nil
}

// Restore installs values at rowID with the given xmin, bypassing the normal
// row id allocator and undo log. It exists for snapshot and WAL replay during
// startup recovery, where the row id and xmin are already fixed by what was
// persisted rather than freshly assigned.
func (t *Table) Restore(rowID uint64, values Row, xmin uint64) {
	t.mu.Lock()
	t.heads[rowID] = &version{rowID: rowID, values: values.clone(), xmin: xmin}
	t.mu.Unlock()

	for {
		cur := atomic.LoadUint64(&t.nextRowID)
		if rowID <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&t.nextRowID, cur, rowID) {
			return
		}
	}
}

// NextRowID reports the row id that would be allocated by the next Insert,
// for snapshot persistence to record alongside the rows themselves.
func (t *Table) NextRowID() uint64 {
	return atomic.LoadUint64(&t.nextRowID) + 1
}

// AdvanceRowID ensures the table's row id allocator will never hand out
// anything less than id, without installing a row. Snapshot and WAL replay
// call this to preserve the allocator's position across a restart even when
// the highest-numbered row was since vacuumed away.
func (t *Table) AdvanceRowID(id uint64) {
	for {
		cur := atomic.LoadUint64(&t.nextRowID)
		if id <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&t.nextRowID, cur, id) {
			return
		}
	}
}

// Get walks rowID's chain newest-first and returns the first version visible
// under snap, per the MVCC visibility rule.
func (t *Table) Get(rowID uint64, snap mvcc.Snapshot, log *clog.Log) (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for v := t.heads[rowID]; v != nil; v = v.next {
		if mvcc.Visible(v.xmin, v.xmax, snap, log) {
			return v.values.clone(), true
		}
	}
	return nil, false
}

// Scan returns every row visible under snap.
func (t *Table) Scan(snap mvcc.Snapshot, log *clog.Log) []RowResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]RowResult, 0, len(t.heads))
	for rowID, head := range t.heads {
		for v := head; v != nil; v = v.next {
			if mvcc.Visible(v.xmin, v.xmax, snap, log) {
				out = append(out, RowResult{RowID: rowID, Row: v.values.clone()})
				break
			}
		}
	}
	return out
}

// Vacuum physically reclaims versions that no currently (or future, given
// monotonic txid allocation) active snapshot could observe: those whose
// xmax is committed and strictly less than oldestActiveTxID. It returns the
// last-known values of rows whose entire chain was reclaimed, so the caller
// can purge any stale index entries still referencing them —
// the values have to be captured here, before the head is dropped, since
// nothing else retains them once the chain is gone.
func (t *Table) Vacuum(oldestActiveTxID uint64, log *clog.Log) []RowResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fullyReclaimed []RowResult
	for rowID, head := range t.heads {
		if dead(head, log, oldestActiveTxID) {
			fullyReclaimed = append(fullyReclaimed, RowResult{RowID: rowID, Row: head.values.clone()})
			delete(t.heads, rowID)
			continue
		}
		prev := head
		for cur := head.next; cur != nil; cur = cur.next {
			if dead(cur, log, oldestActiveTxID) {
				prev.next = nil
				break
			}
			prev = cur
		}
	}
	return fullyReclaimed
}

func dead(v *version, log *clog.Log, oldestActiveTxID uint64) bool {
	return v.xmax != nil && log.IsCommitted(*v.xmax) && *v.xmax < oldestActiveTxID
}

// ColumnValue looks up a visible row's value for column name, reporting
// false if the column or row is absent. Used by the index layer to compute
// the value to (de)index without duplicating visibility logic.
func (r Row) ColumnValue(name string) (value.Value, bool) {
	v, ok := r[name]
	return v, ok
}
