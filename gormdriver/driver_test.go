package gormdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stratadb "github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/config"
)

func newTestDB(t *testing.T) *stratadb.DB {
	t.Helper()
	db, err := stratadb.New(config.Default(), nil)
	require.NoError(t, err)
	return db
}

// TestDriverExecAndQuery exercises the database/sql path directly: GORM
// itself builds on top of exactly this Exec/Query surface, so a correct
// round-trip here is what makes the Dialector usable.
func TestDriverExecAndQuery(t *testing.T) {
	sqlDB := OpenDB(newTestDB(t))
	defer sqlDB.Close()

	_, err := sqlDB.Exec("CREATE TABLE people (id BIGINT, name VARCHAR(64))")
	require.NoError(t, err)

	res, err := sqlDB.Exec("INSERT INTO people (id, name) VALUES (1, 'ada')")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := sqlDB.Query("SELECT name FROM people WHERE id = 1")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "ada", name)
}

func TestDialectorName(t *testing.T) {
	d := NewDialector(newTestDB(t))
	assert.Equal(t, "stratadb", d.Name())
}
