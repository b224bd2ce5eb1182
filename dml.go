package stratadb

import (
	"math/rand"
	"sort"

	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/mvcc"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/value"
	"github.com/stratadb/stratadb/wal"
)

// rowColumns resolves INSERT's column list: explicit if given, else the
// table's full schema order.
func rowColumns(cmd command.Command, schema table.Schema) []string {
	if len(cmd.InsertColumns) > 0 {
		return cmd.InsertColumns
	}
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = c.Name
	}
	return cols
}

func (db *DB) execInsert(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Table)
	}
	cols := rowColumns(cmd, tbl.Schema)

	return db.runInTxn(func(tx *mvcc.Transaction) (Result, error) {
		var lastRowID uint64
		for _, values := range cmd.InsertValues {
			if len(values) != len(cols) {
				return Result{}, errs.New(errs.KindInvalidSyntax, "insert into %q: %d values for %d columns", cmd.Table, len(values), len(cols))
			}
			row := make(table.Row, len(cols))
			for i, col := range cols {
				row[col] = values[i]
			}
			rowID := tbl.Insert(row, tx.TxID, tx)
			lastRowID = rowID

			if err := db.indexRowLocked(cmd.Table, tbl.Schema, row, rowID, tx); err != nil {
				return Result{}, err
			}

			if err := db.writeRecord(wal.Record{
				Type:      wal.RecordInsert,
				TxID:      tx.TxID,
				RowID:     rowID,
				TableName: cmd.Table,
				Data:      table.EncodeRow(row),
			}); err != nil {
				return Result{}, err
			}
		}
		return Result{RowsAffected: len(cmd.InsertValues), LastInsertRowID: lastRowID}, nil
	})
}

// indexRowLocked maintains every secondary B+ tree index and HNSW embedding
// graph touched by inserting row at rowID. B+ tree entries get undo closures
// on tx so a rollback removes them; HNSW nodes stay in the graph after a
// rollback, and SearchSimilar drops hits whose row is not visible.
func (db *DB) indexRowLocked(tableName string, schema table.Schema, row table.Row, rowID uint64, tx *mvcc.Transaction) error {
	for _, col := range schema.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		if col.Type == value.KindEmbedding && v.Kind() == value.KindEmbedding {
			if err := db.indexEmbedding(tableName, col, v, rowID); err != nil {
				return err
			}
		}
		if len(db.indexes.ForColumn(tableName, col.Name)) > 0 {
			colName, val := col.Name, v
			db.indexes.OnInsert(tableName, colName, val, rowID)
			tx.RecordUndo(func() error {
				db.indexes.OnDelete(tableName, colName, val, rowID)
				return nil
			})
		}
	}
	return nil
}

// indexEmbedding inserts v into the graph for col's dimension, tagging the
// node with its (table, column) as the node type and the owning row id as an
// attribute, so a vector hit can be scoped to a column and resolved back to
// its row — including after a Save/Open round trip, when the maps below are
// rebuilt from exactly this metadata.
func (db *DB) indexEmbedding(tableName string, col table.ColumnDef, v value.Value, rowID uint64) error {
	g := db.graphForDim(col.EmbeddingDim)
	nodeType := tableName + "." + col.Name
	meta := &hnsw.Metadata{
		NodeType:   nodeType,
		Attributes: map[string]value.Value{"row_id": value.Int64(int64(rowID))},
	}
	extID, err := g.Insert(nil, v.AsEmbedding(), meta)
	if err != nil {
		return err
	}
	db.embedMu.Lock()
	db.embedToExt[embedKey(tableName, col.Name, rowID)] = extID
	if db.embedOwners[col.EmbeddingDim] == nil {
		db.embedOwners[col.EmbeddingDim] = make(map[uint64]embedOwner)
	}
	db.embedOwners[col.EmbeddingDim][extID] = embedOwner{Table: tableName, Column: col.Name, RowID: rowID}
	db.embedMu.Unlock()
	return nil
}

func (db *DB) execSelect(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Select.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Select.Table)
	}

	// A plain SELECT outside an explicit transaction needs no txid of its
	// own; it just reads under a fresh snapshot of committed state.
	snap := db.tm.ReadSnapshot()
	if db.sessionTx != nil {
		snap = db.sessionTx.Snapshot
	}

	var rows []table.RowResult
	if p := cmd.Select.Predicate; p != nil && p.HasEquals {
		rows = db.selectByEquality(tbl, cmd.Select.Table, *p, snap)
	} else {
		rows = tbl.Scan(snap, db.clog)
	}

	rows = applyOrderBy(rows, cmd.Select.OrderBy)
	if cmd.Select.Limit != nil && *cmd.Select.Limit < len(rows) {
		rows = rows[:*cmd.Select.Limit]
	}
	return Result{Rows: rows}, nil
}

// selectByEquality uses the first index registered on p.Column, falling back
// to a full scan filtered in-process if no such index exists.
func (db *DB) selectByEquality(tbl *table.Table, tableName string, p command.Predicate, snap mvcc.Snapshot) []table.RowResult {
	for _, desc := range db.indexes.ForColumn(tableName, p.Column) {
		rowIDs, ok := db.indexes.Lookup(desc.Name, p.Equals)
		if !ok {
			continue
		}
		var out []table.RowResult
		for _, id := range rowIDs {
			if row, ok := tbl.Get(id, snap, db.clog); ok {
				out = append(out, table.RowResult{RowID: id, Row: row})
			}
		}
		return out
	}

	var out []table.RowResult
	for _, rr := range tbl.Scan(snap, db.clog) {
		if v, ok := rr.Row.ColumnValue(p.Column); ok && value.Equal(v, p.Equals) {
			out = append(out, rr)
		}
	}
	return out
}

func applyOrderBy(rows []table.RowResult, kind command.OrderByKind) []table.RowResult {
	switch kind {
	case command.OrderByColumns:
		sort.Slice(rows, func(i, j int) bool { return rows[i].RowID < rows[j].RowID })
	case command.OrderByVibes:
		// Intentionally nondeterministic; callers may only rely on the
		// result being the same multiset of rows.
		rand.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	case command.OrderBySimilarityTo:
		// Similarity ranking needs a query embedding, which only the front
		// end can produce from the raw text; it calls SearchSimilar instead.
	}
	return rows
}

func (db *DB) execUpdate(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Table)
	}

	return db.runInTxn(func(tx *mvcc.Transaction) (Result, error) {
		snap := tx.Snapshot
		candidates := tbl.Scan(snap, db.clog)
		affected := 0
		for _, rr := range candidates {
			if cmd.Predicate != nil && cmd.Predicate.HasEquals {
				v, ok := rr.Row.ColumnValue(cmd.Predicate.Column)
				if !ok || !value.Equal(v, cmd.Predicate.Equals) {
					continue
				}
			}

			newRow := make(table.Row, len(rr.Row))
			for k, v := range rr.Row {
				newRow[k] = v
			}
			for _, a := range cmd.Assignments {
				newRow[a.Column] = a.Value
			}

			if err := tbl.Update(rr.RowID, newRow, tx.TxID, tx); err != nil {
				return Result{}, err
			}
			db.maintainIndexesOnUpdate(cmd.Table, tbl.Schema, rr.Row, newRow, rr.RowID, tx)

			if err := db.writeRecord(wal.Record{
				Type:      wal.RecordUpdate,
				TxID:      tx.TxID,
				RowID:     rr.RowID,
				TableName: cmd.Table,
				Data:      table.EncodeRow(newRow),
			}); err != nil {
				return Result{}, err
			}
			affected++
		}
		return Result{RowsAffected: affected}, nil
	})
}

func (db *DB) maintainIndexesOnUpdate(tableName string, schema table.Schema, oldRow, newRow table.Row, rowID uint64, tx *mvcc.Transaction) {
	for _, col := range schema.Columns {
		oldVal, oldOK := oldRow[col.Name]
		newVal, newOK := newRow[col.Name]
		if !oldOK || !newOK {
			continue
		}
		if value.Equal(oldVal, newVal) {
			continue
		}
		if len(db.indexes.ForColumn(tableName, col.Name)) > 0 {
			colName, oldV, newV := col.Name, oldVal, newVal
			db.indexes.OnUpdate(tableName, colName, oldV, newV, rowID)
			tx.RecordUndo(func() error {
				db.indexes.OnUpdate(tableName, colName, newV, oldV, rowID)
				return nil
			})
		}
		if col.Type == value.KindEmbedding && newVal.Kind() == value.KindEmbedding && !value.Equal(oldVal, newVal) {
			// HNSW has no node-delete operation (the graph contract is
			// insert/search/edge only); the stale node from the old value
			// is left in place and the new value gets a fresh node.
			_ = db.indexEmbedding(tableName, col, newVal, rowID)
		}
	}
}

func (db *DB) execDelete(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Table)
	}

	return db.runInTxn(func(tx *mvcc.Transaction) (Result, error) {
		snap := tx.Snapshot
		candidates := tbl.Scan(snap, db.clog)
		affected := 0
		for _, rr := range candidates {
			if cmd.Predicate != nil && cmd.Predicate.HasEquals {
				v, ok := rr.Row.ColumnValue(cmd.Predicate.Column)
				if !ok || !value.Equal(v, cmd.Predicate.Equals) {
					continue
				}
			}

			if err := tbl.Delete(rr.RowID, tx.TxID, tx); err != nil {
				return Result{}, err
			}
			rowID := rr.RowID
			for _, col := range tbl.Schema.Columns {
				v, ok := rr.Row.ColumnValue(col.Name)
				if !ok {
					continue
				}
				if len(db.indexes.ForColumn(cmd.Table, col.Name)) > 0 {
					colName, val := col.Name, v
					db.indexes.OnDelete(cmd.Table, colName, val, rowID)
					tx.RecordUndo(func() error {
						db.indexes.OnInsert(cmd.Table, colName, val, rowID)
						return nil
					})
				}
			}

			if err := db.writeRecord(wal.Record{
				Type:      wal.RecordDelete,
				TxID:      tx.TxID,
				RowID:     rr.RowID,
				TableName: cmd.Table,
			}); err != nil {
				return Result{}, err
			}
			affected++
		}
		return Result{RowsAffected: affected}, nil
	})
}
