package stratadb

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb/clog"
	"github.com/stratadb/stratadb/config"
	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/index"
	"github.com/stratadb/stratadb/internal/logging"
	"github.com/stratadb/stratadb/mvcc"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/value"
	"github.com/stratadb/stratadb/wal"
)

const (
	clogFileName     = "clog"
	manifestFileName = "checkpoint.json"
	tablesDirName    = "tables"
	hnswDirName      = "hnsw"
	walDirName       = "wal"

	tableMagic         = "TBL1"
	tableFormatVersion = uint32(1)
)

// Save writes a checkpoint of the current committed state under db.dir:
// the commit log, one file per table (schema plus its currently visible
// rows), and one file per HNSW graph, keyed by dimension. It does not
// prune the WAL itself; segment
// retention past a checkpoint is left to the operator, who can call
// db.wal.DeleteOlderThan once satisfied the checkpoint is durable.
//
// Named secondary indexes (index.Manager) are deliberately NOT persisted:
// CREATE INDEX/DROP INDEX never appear in the WAL (the record set is only
// begin/commit/rollback/insert/delete/update/checkpoint), so there is no
// durable record of which indexes existed. A reopened database
// starts with none; callers that need one back issue CREATE INDEX again,
// which backfills from the reloaded table (see execCreateIndex).
func (db *DB) Save() error {
	if db.dir == "" {
		return fmt.Errorf("stratadb: Save requires a configured directory")
	}
	if err := os.MkdirAll(filepath.Join(db.dir, tablesDirName), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(db.dir, hnswDirName), 0o755); err != nil {
		return err
	}
	if err := db.clog.Save(filepath.Join(db.dir, clogFileName)); err != nil {
		return err
	}

	snap := db.tm.ReadSnapshot()
	for name, tbl := range db.tables.All() {
		path := filepath.Join(db.dir, tablesDirName, name+".tbl")
		if err := saveTable(path, name, tbl, snap, db.clog); err != nil {
			return fmt.Errorf("stratadb: save table %q: %w", name, err)
		}
	}

	db.hnswMu.Lock()
	graphs := make(map[int]*hnsw.Graph, len(db.hnswByDim))
	for dim, g := range db.hnswByDim {
		graphs[dim] = g
	}
	db.hnswMu.Unlock()
	for dim, g := range graphs {
		path := filepath.Join(db.dir, hnswDirName, strconv.Itoa(dim)+".bin")
		if err := g.Save(path); err != nil {
			return fmt.Errorf("stratadb: save hnsw graph (dim %d): %w", dim, err)
		}
	}

	if db.wal != nil {
		if err := db.wal.Flush(); err != nil {
			return err
		}
	}
	return db.writeManifest()
}

// checkpointManifest identifies one Save: a fresh id, when it ran, and the
// WAL sequence current at the time, so an operator knows which WAL files
// predate the checkpoint and are eligible for DeleteOlderThan.
type checkpointManifest struct {
	ID          string `json:"id"`
	CreatedAt   int64  `json:"created_at"`
	WalSequence uint64 `json:"wal_sequence"`
}

func (db *DB) writeManifest() error {
	m := checkpointManifest{ID: uuid.NewString(), CreatedAt: time.Now().Unix()}
	if db.wal != nil {
		m.WalSequence = db.wal.CurrentSequence()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(db.dir, manifestFileName), data, 0o644)
}

func (db *DB) readManifest() {
	data, err := os.ReadFile(filepath.Join(db.dir, manifestFileName))
	if err != nil {
		return // never checkpointed, or manifest lost: recovery proceeds regardless
	}
	var m checkpointManifest
	if err := json.Unmarshal(data, &m); err != nil {
		db.log.Warnf("ignoring unreadable checkpoint manifest: %v", err)
		return
	}
	db.log.Infof("loading checkpoint %s (created %s, wal sequence %d)", m.ID, time.Unix(m.CreatedAt, 0).Format(time.RFC3339), m.WalSequence)
}

// saveTable writes a self-describing snapshot of tbl: its schema, row id
// allocator position, and the rows currently visible under snap, preserving
// row ids on round-trip.
func saveTable(path, name string, tbl *table.Table, snap mvcc.Snapshot, log *clog.Log) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("table snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.WriteString(tableMagic)
	if err := binary.Write(w, binary.BigEndian, tableFormatVersion); err != nil {
		return err
	}
	writeStr(w, name)

	cols := tbl.Schema.Columns
	if err := binary.Write(w, binary.BigEndian, uint32(len(cols))); err != nil {
		return err
	}
	for _, c := range cols {
		writeStr(w, c.Name)
		w.WriteByte(byte(c.Type))
		if err := binary.Write(w, binary.BigEndian, uint32(c.EmbeddingDim)); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, tbl.NextRowID()); err != nil {
		return err
	}

	rows := tbl.Scan(snap, log)
	if err := binary.Write(w, binary.BigEndian, uint32(len(rows))); err != nil {
		return err
	}
	for _, rr := range rows {
		if err := binary.Write(w, binary.BigEndian, rr.RowID); err != nil {
			return err
		}
		data := table.EncodeRow(rr.Row)
		if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// loadedTable is the materialized result of reading one table snapshot file.
type loadedTable struct {
	name      string
	schema    table.Schema
	nextRowID uint64
	rows      []table.RowResult
}

// loadTable reads a snapshot file written by saveTable. The rows it returns
// carry no xmin/xmax of their own: a snapshot only ever captures
// already-committed, currently visible versions, so they are restored with
// the bootstrap txid (always committed) rather than re-encoding an xmin
// that would be meaningless once the original transaction's CLOG entry is
// gone.
func loadTable(path string) (loadedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return loadedTable{}, fmt.Errorf("table snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(tableMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return loadedTable{}, fmt.Errorf("table snapshot: read magic: %w", err)
	}
	if string(magic) != tableMagic {
		return loadedTable{}, fmt.Errorf("table snapshot %s: bad magic", path)
	}
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return loadedTable{}, err
	}
	if version != tableFormatVersion {
		return loadedTable{}, fmt.Errorf("table snapshot %s: unsupported version %d", path, version)
	}

	name, err := readStr(r)
	if err != nil {
		return loadedTable{}, err
	}

	var colCount uint32
	if err := binary.Read(r, binary.BigEndian, &colCount); err != nil {
		return loadedTable{}, err
	}
	cols := make([]table.ColumnDef, colCount)
	for i := range cols {
		colName, err := readStr(r)
		if err != nil {
			return loadedTable{}, err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return loadedTable{}, err
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return loadedTable{}, err
		}
		cols[i] = table.ColumnDef{Name: colName, Type: value.Kind(kindByte), EmbeddingDim: int(dim)}
	}

	var nextRowID uint64
	if err := binary.Read(r, binary.BigEndian, &nextRowID); err != nil {
		return loadedTable{}, err
	}

	var rowCount uint32
	if err := binary.Read(r, binary.BigEndian, &rowCount); err != nil {
		return loadedTable{}, err
	}
	rows := make([]table.RowResult, rowCount)
	for i := range rows {
		var rowID uint64
		if err := binary.Read(r, binary.BigEndian, &rowID); err != nil {
			return loadedTable{}, err
		}
		var dataLen uint32
		if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
			return loadedTable{}, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return loadedTable{}, err
		}
		row, err := table.DecodeRow(data)
		if err != nil {
			return loadedTable{}, fmt.Errorf("table snapshot %s: row %d: %w", path, rowID, err)
		}
		rows[i] = table.RowResult{RowID: rowID, Row: row}
	}

	return loadedTable{name: name, schema: table.Schema{Columns: cols}, nextRowID: nextRowID, rows: rows}, nil
}

func writeStr(w *bufio.Writer, s string) {
	binary.Write(w, binary.BigEndian, uint32(len(s)))
	w.WriteString(s)
}

func readStr(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Open reconstructs a DB from a previously Saved directory: it loads the
// CLOG and every table/HNSW snapshot, then replays the WAL on top of that
// baseline so that any transaction committed after the last checkpoint is
// not lost. Reopening a directory that was never
// Saved (WAL only, e.g. after a crash with no clean shutdown) works the same
// way with an empty baseline: the whole WAL is replayed from scratch.
func Open(cfg config.Config, logger *logging.Logger) (*DB, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("stratadb: Open requires a configured directory")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New()
	}

	loadedLog, err := clog.Load(filepath.Join(cfg.Dir, clogFileName))
	if err != nil {
		return nil, fmt.Errorf("stratadb: load clog: %w", err)
	}

	db := &DB{
		dir:         cfg.Dir,
		cfg:         cfg,
		log:         logger,
		clog:        loadedLog,
		tables:      table.NewRegistry(),
		indexes:     index.NewManager(),
		hnswByDim:   make(map[int]*hnsw.Graph),
		embedToExt:  make(map[string]uint64),
		embedOwners: make(map[int]map[uint64]embedOwner),
	}
	db.tm = mvcc.NewManager(db.clog)

	db.readManifest()
	if err := db.loadTables(); err != nil {
		return nil, err
	}
	if err := db.loadHNSW(); err != nil {
		return nil, err
	}

	w, err := wal.NewWriter(filepath.Join(cfg.Dir, walDirName), cfg.MaxWalFileSize, cfg.MaxTotalWalSize)
	if err != nil {
		return nil, fmt.Errorf("stratadb: open WAL: %w", err)
	}
	db.wal = w

	if err := db.recoverWAL(filepath.Join(cfg.Dir, walDirName)); err != nil {
		return nil, fmt.Errorf("stratadb: WAL recovery: %w", err)
	}
	return db, nil
}

func (db *DB) loadTables() error {
	dir := filepath.Join(db.dir, tablesDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stratadb: read tables dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tbl") {
			continue
		}
		lt, err := loadTable(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		tbl, err := db.tables.Create(lt.name, lt.schema)
		if err != nil {
			return fmt.Errorf("stratadb: recreate table %q: %w", lt.name, err)
		}
		for _, rr := range lt.rows {
			tbl.Restore(rr.RowID, rr.Row, clog.BootstrapTxID)
		}
		tbl.AdvanceRowID(lt.nextRowID)
	}
	return nil
}

func (db *DB) loadHNSW() error {
	dir := filepath.Join(db.dir, hnswDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stratadb: read hnsw dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		dimStr := strings.TrimSuffix(e.Name(), ".bin")
		dim, err := strconv.Atoi(dimStr)
		if err != nil {
			continue
		}
		g, err := hnsw.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("stratadb: load hnsw graph (dim %d): %w", dim, err)
		}
		db.hnswByDim[dim] = g
		db.rebuildEmbedMaps(dim, g)
	}
	return nil
}

// rebuildEmbedMaps reconstructs the external-id <-> row mappings for one
// loaded graph from the node metadata indexEmbedding wrote: the node type is
// "table.column" and the owning row id is the row_id attribute.
func (db *DB) rebuildEmbedMaps(dim int, g *hnsw.Graph) {
	db.embedMu.Lock()
	defer db.embedMu.Unlock()
	g.ForEachNode(func(extID uint64, meta *hnsw.Metadata) {
		if meta == nil || meta.Attributes == nil {
			return
		}
		rowVal, ok := meta.Attributes["row_id"]
		if !ok || rowVal.Kind() != value.KindInt64 {
			return
		}
		dot := strings.LastIndex(meta.NodeType, ".")
		if dot < 0 {
			return
		}
		tableName, column := meta.NodeType[:dot], meta.NodeType[dot+1:]
		rowID := uint64(rowVal.AsInt64())
		db.embedToExt[embedKey(tableName, column, rowID)] = extID
		if db.embedOwners[dim] == nil {
			db.embedOwners[dim] = make(map[uint64]embedOwner)
		}
		db.embedOwners[dim][extID] = embedOwner{Table: tableName, Column: column, RowID: rowID}
	})
}

// recoverWAL replays the records under walDir on top of whatever baseline
// Save/loadTables already established: a first pass builds per-transaction
// outcomes from commit/rollback records (merged into the CLOG, where
// WAL-derived status wins), a second pass applies only insert/update/delete
// records whose transaction is committed. Replaying an insert that a table
// snapshot already contains is idempotent: Table.Restore simply reinstalls
// the same row id with the same values.
func (db *DB) recoverWAL(walDir string) error {
	records, err := wal.ReadAll(walDir)
	if err != nil {
		return err
	}

	const (
		outcomeUnknown = iota
		outcomeCommitted
		outcomeAborted
	)
	outcome := make(map[uint64]int)
	var maxLSN, maxTxID uint64

	for _, r := range records {
		if r.LSN > maxLSN {
			maxLSN = r.LSN
		}
		if r.TxID > maxTxID {
			maxTxID = r.TxID
		}
		switch r.Type {
		case wal.RecordCommit:
			outcome[r.TxID] = outcomeCommitted
			db.clog.MarkCommitted(r.TxID)
		case wal.RecordRollback:
			outcome[r.TxID] = outcomeAborted
			db.clog.MarkAborted(r.TxID)
		}
	}

	for _, r := range records {
		if outcome[r.TxID] != outcomeCommitted {
			continue
		}
		switch r.Type {
		case wal.RecordInsert:
			tbl, ok := db.tables.Get(r.TableName)
			if !ok {
				continue
			}
			row, err := table.DecodeRow(r.Data)
			if err != nil {
				return fmt.Errorf("wal recovery: decode insert at lsn %d: %w", r.LSN, err)
			}
			tbl.Restore(r.RowID, row, r.TxID)
			db.reindexEmbeddings(r.TableName, tbl, row, r.RowID)
		case wal.RecordUpdate:
			tbl, ok := db.tables.Get(r.TableName)
			if !ok {
				continue
			}
			row, err := table.DecodeRow(r.Data)
			if err != nil {
				return fmt.Errorf("wal recovery: decode update at lsn %d: %w", r.LSN, err)
			}
			if err := tbl.Update(r.RowID, row, r.TxID, nil); err != nil {
				// The row's prior version is missing from both the snapshot
				// and everything replayed so far: treat the update as the
				// row's first appearance rather than failing recovery.
				tbl.Restore(r.RowID, row, r.TxID)
			}
			db.reindexEmbeddings(r.TableName, tbl, row, r.RowID)
		case wal.RecordDelete:
			tbl, ok := db.tables.Get(r.TableName)
			if !ok {
				continue
			}
			_ = tbl.Delete(r.RowID, r.TxID, nil)
		}
	}

	db.tm.AdvanceTxID(maxTxID)
	db.wal.FastForwardLSN(maxLSN)
	return nil
}

// reindexEmbeddings re-inserts a replayed row's embedding values into their
// HNSW graphs when they are not already there. Rows captured by the last
// checkpoint arrive with the persisted graph; rows that only exist in the
// WAL tail do not, and would otherwise be unreachable by vector search
// after recovery.
func (db *DB) reindexEmbeddings(tableName string, tbl *table.Table, row table.Row, rowID uint64) {
	for _, col := range tbl.Schema.Columns {
		if col.Type != value.KindEmbedding {
			continue
		}
		v, ok := row[col.Name]
		if !ok || v.Kind() != value.KindEmbedding {
			continue
		}
		db.embedMu.Lock()
		extID, exists := db.embedToExt[embedKey(tableName, col.Name, rowID)]
		db.embedMu.Unlock()
		if exists {
			// Already mapped from the checkpointed graph; only re-index when
			// a replayed update changed the embedding since the checkpoint.
			if p, ok := db.graphForDim(col.EmbeddingDim).Point(extID); ok && value.Equal(value.Embedding(p), v) {
				continue
			}
		}
		if err := db.indexEmbedding(tableName, col, v, rowID); err != nil {
			db.log.Warnf("wal recovery: reindex embedding %s.%s row %d: %v", tableName, col.Name, rowID, err)
		}
	}
}
