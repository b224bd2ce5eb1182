package stratadb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/config"
	"github.com/stratadb/stratadb/value"
)

func mustExec(t *testing.T, db *DB, cmd command.Command) Result {
	t.Helper()
	res, err := db.Execute(cmd)
	require.NoError(t, err)
	return res
}

func newMemDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.Default(), nil)
	require.NoError(t, err)
	return db
}

func createPeopleTable(t *testing.T, db *DB) {
	t.Helper()
	mustExec(t, db, command.Command{
		Kind:  command.KindCreateTable,
		Table: "people",
		Columns: []command.ColumnSpec{
			{Name: "id", Type: value.KindInt64},
			{Name: "name", Type: value.KindText},
		},
	})
}

func TestInsertSelectRoundTrip(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)

	res := mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})
	assert.Equal(t, 1, res.RowsAffected)

	sel := mustExec(t, db, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	require.Len(t, sel.Rows, 1)
	assert.Equal(t, "ada", sel.Rows[0].Row["name"].AsText())
}

// TestSnapshotIsolation checks that a transaction's
// insert is invisible to a concurrently open transaction even after the
// inserting transaction commits, but visible to any transaction begun later.
func TestSnapshotIsolation(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)

	_, err := db.Execute(command.Command{Kind: command.KindBegin})
	require.NoError(t, err)
	txA := db.sessionTx
	_, err = db.Execute(command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})
	require.NoError(t, err)
	db.sessionTx = nil // park A so B can open without colliding on db.sessionTx

	txB := db.tm.Begin()
	snapB := txB.Snapshot

	tbl, _ := db.tables.Get("people")
	assert.Empty(t, tbl.Scan(snapB, db.clog), "B must not see A's uncommitted insert")

	require.NoError(t, db.tm.Commit(txA.TxID))
	assert.Empty(t, tbl.Scan(snapB, db.clog), "B must not see A's insert even after A commits (snapshot isolation)")

	txC := db.tm.Begin()
	assert.Len(t, tbl.Scan(txC.Snapshot, db.clog), 1, "C, begun after A's commit, must see the row")
}

func TestEqualityIndexSelection(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)
	mustExec(t, db, command.Command{Kind: command.KindCreateIndex, Table: "people", IndexName: "idx_name", IndexColumn: "name"})

	mustExec(t, db, command.Command{
		Kind:  command.KindInsert,
		Table: "people",
		InsertValues: [][]value.Value{
			{value.Int64(1), value.Text("ada")},
			{value.Int64(2), value.Text("bea")},
		},
	})

	sel := mustExec(t, db, command.Command{
		Kind: command.KindSelect,
		Select: command.Select{
			Table:     "people",
			Predicate: &command.Predicate{Column: "name", Equals: value.Text("bea"), HasEquals: true},
		},
	})
	require.Len(t, sel.Rows, 1)
	assert.Equal(t, int64(2), sel.Rows[0].Row["id"].AsInt64())
}

func TestUpdateDeleteMaintainIndex(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)
	mustExec(t, db, command.Command{Kind: command.KindCreateIndex, Table: "people", IndexName: "idx_name", IndexColumn: "name"})
	mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})

	mustExec(t, db, command.Command{
		Kind:        command.KindUpdate,
		Table:       "people",
		Assignments: []command.Assignment{{Column: "name", Value: value.Text("grace")}},
		Predicate:   &command.Predicate{Column: "name", Equals: value.Text("ada"), HasEquals: true},
	})

	byOld := mustExec(t, db, command.Command{
		Kind:   command.KindSelect,
		Select: command.Select{Table: "people", Predicate: &command.Predicate{Column: "name", Equals: value.Text("ada"), HasEquals: true}},
	})
	assert.Empty(t, byOld.Rows)

	byNew := mustExec(t, db, command.Command{
		Kind:   command.KindSelect,
		Select: command.Select{Table: "people", Predicate: &command.Predicate{Column: "name", Equals: value.Text("grace"), HasEquals: true}},
	})
	require.Len(t, byNew.Rows, 1)

	mustExec(t, db, command.Command{
		Kind:      command.KindDelete,
		Table:     "people",
		Predicate: &command.Predicate{Column: "name", Equals: value.Text("grace"), HasEquals: true},
	})
	after := mustExec(t, db, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	assert.Empty(t, after.Rows)
}

func TestExplicitTransactionRollback(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)

	_, err := db.Execute(command.Command{Kind: command.KindBegin})
	require.NoError(t, err)
	_, err = db.Execute(command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})
	require.NoError(t, err)
	_, err = db.Execute(command.Command{Kind: command.KindRollback})
	require.NoError(t, err)

	sel := mustExec(t, db, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	assert.Empty(t, sel.Rows, "rolled-back insert must not be visible")
}

func TestDuplicateEmbeddingDimensionRejected(t *testing.T) {
	db := newMemDB(t)
	_, err := db.Execute(command.Command{
		Kind:  command.KindCreateTable,
		Table: "vectors",
		Columns: []command.ColumnSpec{
			{Name: "a", Type: value.KindEmbedding, EmbeddingDim: 128},
			{Name: "b", Type: value.KindEmbedding, EmbeddingDim: 128},
		},
	})
	require.Error(t, err)
}

func TestVacuumRemovesDeadVersionAndIndexEntry(t *testing.T) {
	db := newMemDB(t)
	createPeopleTable(t, db)
	mustExec(t, db, command.Command{Kind: command.KindCreateIndex, Table: "people", IndexName: "idx_name", IndexColumn: "name"})
	mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})
	mustExec(t, db, command.Command{
		Kind:      command.KindDelete,
		Table:     "people",
		Predicate: &command.Predicate{Column: "name", Equals: value.Text("ada"), HasEquals: true},
	})

	res := mustExec(t, db, command.Command{Kind: command.KindVacuum})
	assert.Equal(t, 1, res.RowsAffected)

	desc, tree, ok := db.indexes.Get("idx_name")
	require.True(t, ok)
	_ = desc
	assert.Empty(t, tree.Search(value.Text("ada")), "vacuum must purge the stale index entry")
}

func TestSaveOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir

	db, err := New(cfg, nil)
	require.NoError(t, err)
	createPeopleTable(t, db)
	mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}, {value.Int64(2), value.Text("bea")}},
	})
	require.NoError(t, db.Save())
	require.NoError(t, db.Close())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	sel := mustExec(t, reopened, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	assert.Len(t, sel.Rows, 2)
}

// TestWALRecoveryAfterCheckpoint inserts a row after the last Save
// checkpoint, so only the WAL (not the table snapshot) knows about it, and
// confirms reopening recovers it.
func TestWALRecoveryAfterCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir

	db, err := New(cfg, nil)
	require.NoError(t, err)
	createPeopleTable(t, db)
	mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(1), value.Text("ada")}},
	})
	require.NoError(t, db.Save())

	mustExec(t, db, command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(2), value.Text("bea")}},
	})
	require.NoError(t, db.Close())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	sel := mustExec(t, reopened, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	assert.Len(t, sel.Rows, 2, "WAL-only row written after the last checkpoint must survive reopen")
}

// TestWALRecoverySkipsUncommitted: a row inserted under a transaction that
// never committed must not reappear after reopen.
func TestWALRecoverySkipsUncommitted(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir

	db, err := New(cfg, nil)
	require.NoError(t, err)
	createPeopleTable(t, db)
	require.NoError(t, db.Save())

	_, err = db.Execute(command.Command{Kind: command.KindBegin})
	require.NoError(t, err)
	_, err = db.Execute(command.Command{
		Kind:         command.KindInsert,
		Table:        "people",
		InsertValues: [][]value.Value{{value.Int64(99), value.Text("ghost")}},
	})
	require.NoError(t, err)
	// No commit and no Close: flush the WAL and reopen, as after a crash that
	// left the transaction unfinished.
	require.NoError(t, db.wal.Flush())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	sel := mustExec(t, reopened, command.Command{Kind: command.KindSelect, Select: command.Select{Table: "people"}})
	assert.Empty(t, sel.Rows, "uncommitted insert must not survive recovery")
}
