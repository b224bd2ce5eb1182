package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/value"
)

func TestCreateLookupMaintenance(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("idx_users_name", "users", "name"))

	m.OnInsert("users", "name", value.Text("alice"), 1)
	m.OnInsert("users", "name", value.Text("bob"), 2)

	got, ok := m.Lookup("idx_users_name", value.Text("alice"))
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, got)

	m.OnUpdate("users", "name", value.Text("alice"), value.Text("carol"), 1)
	got, _ = m.Lookup("idx_users_name", value.Text("alice"))
	assert.Empty(t, got)
	got, _ = m.Lookup("idx_users_name", value.Text("carol"))
	assert.Equal(t, []uint64{1}, got)

	m.OnDelete("users", "name", value.Text("carol"), 1)
	got, _ = m.Lookup("idx_users_name", value.Text("carol"))
	assert.Empty(t, got)
}

func TestDropTableRemovesIndexes(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("idx1", "users", "name"))
	require.NoError(t, m.Create("idx2", "users", "email"))
	m.DropTable("users")

	_, _, ok := m.Get("idx1")
	assert.False(t, ok)
	_, _, ok = m.Get("idx2")
	assert.False(t, ok)
}

func TestDuplicateNameRejected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("idx", "t", "c"))
	require.Error(t, m.Create("idx", "t", "c"))
}
