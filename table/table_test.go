package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/clog"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/mvcc"
	"github.com/stratadb/stratadb/value"
)

func TestSchemaRejectsDuplicateEmbeddingDim(t *testing.T) {
	schema := Schema{Columns: []ColumnDef{
		{Name: "a", Type: value.KindEmbedding, EmbeddingDim: 128},
		{Name: "b", Type: value.KindEmbedding, EmbeddingDim: 128},
	}}
	err := schema.Validate()
	require.Error(t, err)
	assert.True(t, errs.Of(err, errs.KindDuplicateEmbeddingDimension))
}

func TestInsertGetVisibility(t *testing.T) {
	log := clog.New()
	tm := mvcc.NewManager(log)
	tbl, err := New("t", Schema{Columns: []ColumnDef{{Name: "name", Type: value.KindText}}})
	require.NoError(t, err)

	tx := tm.Begin()
	rowID := tbl.Insert(Row{"name": value.Text("alice")}, tx.TxID, tx)

	reader := tm.Begin()
	_, ok := tbl.Get(rowID, reader.Snapshot, log)
	assert.False(t, ok, "uncommitted insert must be invisible")

	require.NoError(t, tm.Commit(tx.TxID))

	reader2 := tm.Begin()
	got, ok := tbl.Get(rowID, reader2.Snapshot, log)
	require.True(t, ok)
	assert.Equal(t, "alice", got["name"].AsText())
}

func TestUpdateSupersedesOldVersion(t *testing.T) {
	log := clog.New()
	tm := mvcc.NewManager(log)
	tbl, err := New("t", Schema{Columns: []ColumnDef{{Name: "n", Type: value.KindInt64}}})
	require.NoError(t, err)

	tx1 := tm.Begin()
	rowID := tbl.Insert(Row{"n": value.Int64(1)}, tx1.TxID, tx1)
	require.NoError(t, tm.Commit(tx1.TxID))

	tx2 := tm.Begin()
	require.NoError(t, tbl.Update(rowID, Row{"n": value.Int64(2)}, tx2.TxID, tx2))
	require.NoError(t, tm.Commit(tx2.TxID))

	reader := tm.Begin()
	got, ok := tbl.Get(rowID, reader.Snapshot, log)
	require.True(t, ok)
	assert.Equal(t, int64(2), got["n"].AsInt64())
}

func TestDeleteHidesRow(t *testing.T) {
	log := clog.New()
	tm := mvcc.NewManager(log)
	tbl, err := New("t", Schema{Columns: []ColumnDef{{Name: "n", Type: value.KindInt64}}})
	require.NoError(t, err)

	tx1 := tm.Begin()
	rowID := tbl.Insert(Row{"n": value.Int64(1)}, tx1.TxID, tx1)
	require.NoError(t, tm.Commit(tx1.TxID))

	tx2 := tm.Begin()
	require.NoError(t, tbl.Delete(rowID, tx2.TxID, tx2))
	require.NoError(t, tm.Commit(tx2.TxID))

	reader := tm.Begin()
	_, ok := tbl.Get(rowID, reader.Snapshot, log)
	assert.False(t, ok)
}

func TestRollbackUndoesInsertUpdateDelete(t *testing.T) {
	log := clog.New()
	tm := mvcc.NewManager(log)
	tbl, err := New("t", Schema{Columns: []ColumnDef{{Name: "n", Type: value.KindInt64}}})
	require.NoError(t, err)

	tx1 := tm.Begin()
	rowID := tbl.Insert(Row{"n": value.Int64(1)}, tx1.TxID, tx1)
	require.NoError(t, tm.Rollback(tx1.TxID))

	reader := tm.Begin()
	_, ok := tbl.Get(rowID, reader.Snapshot, log)
	assert.False(t, ok, "rolled-back insert must not exist")
	require.NoError(t, tm.Commit(reader.TxID))

	tx2 := tm.Begin()
	rowID2 := tbl.Insert(Row{"n": value.Int64(1)}, tx2.TxID, tx2)
	require.NoError(t, tm.Commit(tx2.TxID))

	tx3 := tm.Begin()
	require.NoError(t, tbl.Update(rowID2, Row{"n": value.Int64(99)}, tx3.TxID, tx3))
	require.NoError(t, tm.Rollback(tx3.TxID))

	reader2 := tm.Begin()
	got, ok := tbl.Get(rowID2, reader2.Snapshot, log)
	require.True(t, ok)
	assert.Equal(t, int64(1), got["n"].AsInt64(), "rolled-back update must restore prior value")

	tx4 := tm.Begin()
	require.NoError(t, tbl.Delete(rowID2, tx4.TxID, tx4))
	require.NoError(t, tm.Rollback(tx4.TxID))

	reader3 := tm.Begin()
	_, ok = tbl.Get(rowID2, reader3.Snapshot, log)
	assert.True(t, ok, "rolled-back delete must leave the row visible")
}

func TestVacuumReclaimsDeadVersions(t *testing.T) {
	log := clog.New()
	tm := mvcc.NewManager(log)
	tbl, err := New("t", Schema{Columns: []ColumnDef{{Name: "n", Type: value.KindInt64}}})
	require.NoError(t, err)

	tx1 := tm.Begin()
	rowID := tbl.Insert(Row{"n": value.Int64(1)}, tx1.TxID, tx1)
	require.NoError(t, tm.Commit(tx1.TxID))

	tx2 := tm.Begin()
	require.NoError(t, tbl.Delete(rowID, tx2.TxID, tx2))
	require.NoError(t, tm.Commit(tx2.TxID))

	reclaimed := tbl.Vacuum(tm.OldestActiveTxID(), log)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, rowID, reclaimed[0].RowID)

	reader := tm.Begin()
	_, ok := tbl.Get(rowID, reader.Snapshot, log)
	assert.False(t, ok)
}

func TestRegistryCreateDropTruncate(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Create("users", Schema{Columns: []ColumnDef{{Name: "id", Type: value.KindInt64}}})
	require.NoError(t, err)

	_, ok := reg.Get("users")
	assert.True(t, ok)

	require.NoError(t, reg.Truncate("users"))
	require.NoError(t, reg.Drop("users", false))
	require.Error(t, reg.Drop("users", false))
	require.NoError(t, reg.Drop("users", true))
}
