package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/clog"
)

// TestSnapshotIsolation: a begins and will insert row 1; b begins before a
// commits and must not see it, even after a commits (snapshot isolation);
// c, beginning after a's commit, does see it.
func TestSnapshotIsolation(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)

	a := tm.Begin()
	b := tm.Begin()

	assert.False(t, Visible(a.TxID, nil, b.Snapshot, log), "uncommitted row must be invisible")

	require.NoError(t, tm.Commit(a.TxID))
	assert.False(t, Visible(a.TxID, nil, b.Snapshot, log), "b's snapshot predates a's commit")

	require.NoError(t, tm.Commit(b.TxID))

	c := tm.Begin()
	assert.True(t, Visible(a.TxID, nil, c.Snapshot, log), "c begins after a committed")
	require.NoError(t, tm.Commit(c.TxID))
}

func TestBootstrapAlwaysVisible(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)
	snap := tm.ReadSnapshot()
	assert.True(t, Visible(clog.BootstrapTxID, nil, snap, log))
}

func TestDeletedRowInvisibleOnceXmaxCommitted(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)

	writer := tm.Begin()
	require.NoError(t, tm.Commit(writer.TxID))

	deleter := tm.Begin()
	xmax := deleter.TxID
	require.NoError(t, tm.Commit(deleter.TxID))

	reader := tm.Begin()
	assert.False(t, Visible(writer.TxID, &xmax, reader.Snapshot, log))
	require.NoError(t, tm.Commit(reader.TxID))
}

func TestDeletedRowVisibleWhileDeleterUncommitted(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)

	writer := tm.Begin()
	require.NoError(t, tm.Commit(writer.TxID))

	deleter := tm.Begin()
	xmax := deleter.TxID

	reader := tm.Begin()
	assert.True(t, Visible(writer.TxID, &xmax, reader.Snapshot, log), "in-progress deleter must not hide the row yet")

	require.NoError(t, tm.Rollback(deleter.TxID))
	require.NoError(t, tm.Commit(reader.TxID))
}

func TestRollbackRunsUndoLogInLIFOOrder(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)

	tx := tm.Begin()
	var order []int
	tx.RecordUndo(func() error { order = append(order, 1); return nil })
	tx.RecordUndo(func() error { order = append(order, 2); return nil })
	tx.RecordUndo(func() error { order = append(order, 3); return nil })

	require.NoError(t, tm.Rollback(tx.TxID))
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestOldestActiveTxID(t *testing.T) {
	log := clog.New()
	tm := NewManager(log)
	a := tm.Begin()
	b := tm.Begin()
	require.NoError(t, tm.Rollback(b.TxID))

	assert.Equal(t, a.TxID, tm.OldestActiveTxID())
}
