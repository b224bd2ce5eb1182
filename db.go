// Package stratadb composes the B+ tree, MVCC, WAL, table, index manager,
// and HNSW subsystems into a single embedded database exposing one
// Execute(command.Command) entrypoint plus a persistence lifecycle.
package stratadb

import (
	"fmt"
	"sync"

	"github.com/stratadb/stratadb/clog"
	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/config"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/index"
	"github.com/stratadb/stratadb/internal/logging"
	"github.com/stratadb/stratadb/mvcc"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/wal"
)

// DB composes every subsystem and is the unit of embedding into a host
// process. A DB may be purely in-memory (Dir == "") or durable (WAL plus the
// snapshots that Save writes under Dir; nothing saves on a timer).
type DB struct {
	mu sync.Mutex // serializes Execute: WAL emission and session transaction state

	dir string
	cfg config.Config
	log *logging.Logger

	clog    *clog.Log
	tm      *mvcc.Manager
	tables  *table.Registry
	indexes *index.Manager
	wal     *wal.Writer

	hnswMu    sync.Mutex
	hnswByDim map[int]*hnsw.Graph

	embedMu     sync.Mutex
	embedToExt  map[string]uint64             // "table.column.rowID" -> HNSW external id
	embedOwners map[int]map[uint64]embedOwner // dim -> external id -> owning row

	sessionTx *mvcc.Transaction // this handle's single explicit open transaction, if any
}

// embedOwner records which table row an HNSW node was indexed from, so a
// vector hit can be resolved back to the row it came from.
type embedOwner struct {
	Table  string
	Column string
	RowID  uint64
}

// New constructs a fresh, empty database from cfg. Use Open to reconstruct
// one from a persisted directory (which also runs crash recovery).
func New(cfg config.Config, logger *logging.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New()
	}
	db := &DB{
		dir:         cfg.Dir,
		cfg:         cfg,
		log:         logger,
		clog:        clog.New(),
		tables:      table.NewRegistry(),
		indexes:     index.NewManager(),
		hnswByDim:   make(map[int]*hnsw.Graph),
		embedToExt:  make(map[string]uint64),
		embedOwners: make(map[int]map[uint64]embedOwner),
	}
	db.tm = mvcc.NewManager(db.clog)

	if cfg.Dir != "" {
		w, err := wal.NewWriter(cfg.Dir+"/wal", cfg.MaxWalFileSize, cfg.MaxTotalWalSize)
		if err != nil {
			return nil, fmt.Errorf("stratadb: open WAL: %w", err)
		}
		db.wal = w
	}
	return db, nil
}

func (db *DB) graphForDim(dim int) *hnsw.Graph {
	db.hnswMu.Lock()
	defer db.hnswMu.Unlock()
	g, ok := db.hnswByDim[dim]
	if !ok {
		g = hnsw.NewGraph(dim, db.cfg.HNSW.Params())
		db.hnswByDim[dim] = g
	}
	return g
}

func embedKey(table, column string, rowID uint64) string {
	return fmt.Sprintf("%s.%s.%d", table, column, rowID)
}

// Execute dispatches cmd to the subsystem(s) that implement it. Commands on
// one DB handle are serialized by db.mu: readers still get snapshot-stable
// results (MVCC does the isolation work), the lock only orders WAL emission
// and the session's transaction bookkeeping.
func (db *DB) Execute(cmd command.Command) (Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch cmd.Kind {
	case command.KindCreateTable:
		return db.execCreateTable(cmd)
	case command.KindDropTable:
		return db.execDropTable(cmd)
	case command.KindAlterTable:
		return db.execAlterTable(cmd)
	case command.KindCreateIndex:
		return db.execCreateIndex(cmd)
	case command.KindDropIndex:
		return db.execDropIndex(cmd)
	case command.KindInsert:
		return db.execInsert(cmd)
	case command.KindSelect:
		return db.execSelect(cmd)
	case command.KindUpdate:
		return db.execUpdate(cmd)
	case command.KindDelete:
		return db.execDelete(cmd)
	case command.KindBegin:
		return db.execBegin()
	case command.KindCommit:
		return db.execCommit()
	case command.KindRollback:
		return db.execRollback()
	case command.KindVacuum:
		return db.execVacuum(cmd)
	default:
		return Result{}, errs.New(errs.KindInvalidSyntax, "unknown command kind %d", cmd.Kind)
	}
}

// currentTxn returns the session's explicit transaction if one is open, or
// begins and immediately treats an implicit one otherwise. implicit reports
// whether the caller must finish what it began (implicit transactions always
// close themselves; explicit ones close on COMMIT/ROLLBACK).
func (db *DB) currentTxn() (tx *mvcc.Transaction, implicit bool) {
	if db.sessionTx != nil {
		return db.sessionTx, false
	}
	return db.tm.Begin(), true
}

func (db *DB) finishImplicit(tx *mvcc.Transaction, implicit bool, err error) error {
	if !implicit {
		return err
	}
	if err != nil {
		if rbErr := db.tm.Rollback(tx.TxID); rbErr != nil {
			db.log.Errorf("rollback after failed implicit transaction %d: %v", tx.TxID, rbErr)
		}
		if werr := db.writeRecord(wal.Record{Type: wal.RecordRollback, TxID: tx.TxID}); werr != nil {
			db.log.Errorf("WAL rollback record for txn %d: %v", tx.TxID, werr)
		}
		return err
	}
	if cerr := db.tm.Commit(tx.TxID); cerr != nil {
		return cerr
	}
	return db.writeRecord(wal.Record{Type: wal.RecordCommit, TxID: tx.TxID})
}

// runInTxn runs mutate under the session's open transaction, or a fresh
// implicit one that commits (writing a WAL commit record) on success and
// rolls back on error, the way a single autocommit statement behaves.
func (db *DB) runInTxn(mutate func(tx *mvcc.Transaction) (Result, error)) (Result, error) {
	tx, implicit := db.currentTxn()
	if implicit {
		if err := db.writeRecord(wal.Record{Type: wal.RecordBegin, TxID: tx.TxID}); err != nil {
			return Result{}, err
		}
	}
	res, err := mutate(tx)
	if ferr := db.finishImplicit(tx, implicit, err); ferr != nil {
		return Result{}, ferr
	}
	if err == nil {
		res.TxID = tx.TxID
	}
	return res, err
}

func (db *DB) writeRecord(rec wal.Record) error {
	if db.wal == nil {
		return nil
	}
	rec.LSN = db.wal.NextLSN()
	return db.wal.Append(rec)
}

// Tables lists every table currently registered, for front ends that want
// to enumerate schema without going through Execute (e.g. an MCP/RPC
// surface's "list tables" tool).
func (db *DB) Tables() []string {
	return db.tables.Names()
}

// TableSchema reports the schema of a registered table.
func (db *DB) TableSchema(name string) (table.Schema, bool) {
	tbl, ok := db.tables.Get(name)
	if !ok {
		return table.Schema{}, false
	}
	return tbl.Schema, true
}

// Close flushes the WAL (if any). It does not delete in-memory state.
func (db *DB) Close() error {
	if db.wal == nil {
		return nil
	}
	return db.wal.Close()
}
