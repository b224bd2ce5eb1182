package stratadb

import (
	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/wal"
)

func (db *DB) execBegin() (Result, error) {
	if db.sessionTx != nil {
		return Result{}, errs.New(errs.KindTransactionAlreadyActive, "a transaction is already open on this session (txid %d)", db.sessionTx.TxID)
	}
	tx := db.tm.Begin()
	if err := db.writeRecord(wal.Record{Type: wal.RecordBegin, TxID: tx.TxID}); err != nil {
		if rbErr := db.tm.Rollback(tx.TxID); rbErr != nil {
			db.log.Errorf("rollback after failed BEGIN WAL record for txn %d: %v", tx.TxID, rbErr)
		}
		return Result{}, err
	}
	db.sessionTx = tx
	return Result{TxID: tx.TxID}, nil
}

func (db *DB) execCommit() (Result, error) {
	if db.sessionTx == nil {
		return Result{}, errs.New(errs.KindNoActiveTransaction, "no transaction is open on this session")
	}
	tx := db.sessionTx
	if err := db.tm.Commit(tx.TxID); err != nil {
		return Result{}, err
	}
	db.sessionTx = nil
	if err := db.writeRecord(wal.Record{Type: wal.RecordCommit, TxID: tx.TxID}); err != nil {
		return Result{}, err
	}
	return Result{TxID: tx.TxID}, nil
}

func (db *DB) execRollback() (Result, error) {
	if db.sessionTx == nil {
		return Result{}, errs.New(errs.KindNoActiveTransaction, "no transaction is open on this session")
	}
	tx := db.sessionTx
	if err := db.tm.Rollback(tx.TxID); err != nil {
		return Result{}, err
	}
	db.sessionTx = nil
	if err := db.writeRecord(wal.Record{Type: wal.RecordRollback, TxID: tx.TxID}); err != nil {
		return Result{}, err
	}
	return Result{TxID: tx.TxID}, nil
}

// execVacuum reclaims dead row versions from one table (cmd.VacuumTable) or
// every table, and removes the stale B+ tree index entries
// that referenced each fully-reclaimed row.
func (db *DB) execVacuum(cmd command.Command) (Result, error) {
	oldest := db.tm.OldestActiveTxID()

	targets := make(map[string]*table.Table)
	if cmd.VacuumTable != nil {
		tbl, ok := db.tables.Get(*cmd.VacuumTable)
		if !ok {
			return Result{}, errs.NewTableNotFound(*cmd.VacuumTable)
		}
		targets[*cmd.VacuumTable] = tbl
	} else {
		targets = db.tables.All()
	}

	reclaimed := 0
	for name, tbl := range targets {
		for _, rr := range tbl.Vacuum(oldest, db.clog) {
			reclaimed++
			for _, col := range tbl.Schema.Columns {
				v, ok := rr.Row.ColumnValue(col.Name)
				if !ok || len(db.indexes.ForColumn(name, col.Name)) == 0 {
					continue
				}
				db.indexes.OnDelete(name, col.Name, v, rr.RowID)
			}
		}
	}
	return Result{RowsAffected: reclaimed}, nil
}
