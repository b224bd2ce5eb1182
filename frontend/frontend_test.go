package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/value"
)

func TestTranslateCreateTable(t *testing.T) {
	tr := NewTranslator()
	cmd, err := tr.Translate("CREATE TABLE people (id BIGINT, name VARCHAR(64), embedding VECTOR(128))")
	require.NoError(t, err)
	assert.Equal(t, command.KindCreateTable, cmd.Kind)
	assert.Equal(t, "people", cmd.Table)
	require.Len(t, cmd.Columns, 3)
	assert.Equal(t, value.KindInt64, cmd.Columns[0].Type)
	assert.Equal(t, value.KindText, cmd.Columns[1].Type)
	assert.Equal(t, value.KindEmbedding, cmd.Columns[2].Type)
	assert.Equal(t, 128, cmd.Columns[2].EmbeddingDim)
}

func TestTranslateInsert(t *testing.T) {
	tr := NewTranslator()
	cmd, err := tr.Translate(`INSERT INTO people (id, name) VALUES (1, 'ada')`)
	require.NoError(t, err)
	assert.Equal(t, command.KindInsert, cmd.Kind)
	assert.Equal(t, "people", cmd.Table)
	require.Len(t, cmd.InsertValues, 1)
	assert.Equal(t, int64(1), cmd.InsertValues[0][0].AsInt64())
	assert.Equal(t, "ada", cmd.InsertValues[0][1].AsText())
}

func TestTranslateSelectWithEqualityPredicate(t *testing.T) {
	tr := NewTranslator()
	cmd, err := tr.Translate(`SELECT name FROM people WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, command.KindSelect, cmd.Kind)
	assert.Equal(t, "people", cmd.Select.Table)
	require.NotNil(t, cmd.Select.Predicate)
	assert.True(t, cmd.Select.Predicate.HasEquals)
	assert.Equal(t, "id", cmd.Select.Predicate.Column)
	assert.Equal(t, int64(1), cmd.Select.Predicate.Equals.AsInt64())
}

func TestTranslateUpdateAndDelete(t *testing.T) {
	tr := NewTranslator()
	upd, err := tr.Translate(`UPDATE people SET name = 'grace' WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, command.KindUpdate, upd.Kind)
	require.Len(t, upd.Assignments, 1)
	assert.Equal(t, "grace", upd.Assignments[0].Value.AsText())

	del, err := tr.Translate(`DELETE FROM people WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, command.KindDelete, del.Kind)
	assert.Equal(t, "people", del.Table)
}

func TestTranslateTransactionControl(t *testing.T) {
	tr := NewTranslator()
	for sql, kind := range map[string]command.Kind{
		"BEGIN":    command.KindBegin,
		"COMMIT":   command.KindCommit,
		"ROLLBACK": command.KindRollback,
	} {
		cmd, err := tr.Translate(sql)
		require.NoError(t, err)
		assert.Equal(t, kind, cmd.Kind)
	}
}

func TestTranslateRejectsUnsupportedStatement(t *testing.T) {
	tr := NewTranslator()
	_, err := tr.Translate("CREATE VIEW v AS SELECT * FROM people")
	require.Error(t, err)
}
