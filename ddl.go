package stratadb

import (
	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/table"
)

func columnSpecsToSchema(cols []command.ColumnSpec) table.Schema {
	out := make([]table.ColumnDef, len(cols))
	for i, c := range cols {
		out[i] = table.ColumnDef{Name: c.Name, Type: c.Type, EmbeddingDim: c.EmbeddingDim}
	}
	return table.Schema{Columns: out}
}

func (db *DB) execCreateTable(cmd command.Command) (Result, error) {
	schema := columnSpecsToSchema(cmd.Columns)
	if _, err := db.tables.Create(cmd.Table, schema); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

func (db *DB) execDropTable(cmd command.Command) (Result, error) {
	if err := db.tables.Drop(cmd.Table, cmd.IfExists); err != nil {
		return Result{}, err
	}
	db.indexes.DropTable(cmd.Table)
	return Result{}, nil
}

func (db *DB) execAlterTable(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Table)
	}

	switch cmd.Alter.Kind {
	case command.AlterAddColumn:
		cols := append(append([]table.ColumnDef{}, tbl.Schema.Columns...), table.ColumnDef{
			Name:         cmd.Alter.Column.Name,
			Type:         cmd.Alter.Column.Type,
			EmbeddingDim: cmd.Alter.Column.EmbeddingDim,
		})
		newSchema := table.Schema{Columns: cols}
		if err := newSchema.Validate(); err != nil {
			return Result{}, err
		}
		tbl.Schema = newSchema
		return Result{}, nil

	case command.AlterDropColumn:
		cols := make([]table.ColumnDef, 0, len(tbl.Schema.Columns))
		found := false
		for _, c := range tbl.Schema.Columns {
			if c.Name == cmd.Alter.ColumnName {
				found = true
				continue
			}
			cols = append(cols, c)
		}
		if !found {
			return Result{}, errs.NewColumnNotFound(cmd.Table, cmd.Alter.ColumnName)
		}
		tbl.Schema = table.Schema{Columns: cols}
		return Result{}, nil

	case command.AlterRenameColumn:
		cols := make([]table.ColumnDef, len(tbl.Schema.Columns))
		found := false
		for i, c := range tbl.Schema.Columns {
			if c.Name == cmd.Alter.OldName {
				c.Name = cmd.Alter.NewName
				found = true
			}
			cols[i] = c
		}
		if !found {
			return Result{}, errs.NewColumnNotFound(cmd.Table, cmd.Alter.OldName)
		}
		tbl.Schema = table.Schema{Columns: cols}
		return Result{}, nil

	default:
		return Result{}, errs.New(errs.KindInvalidSyntax, "unknown ALTER TABLE kind %d", cmd.Alter.Kind)
	}
}

func (db *DB) execCreateIndex(cmd command.Command) (Result, error) {
	tbl, ok := db.tables.Get(cmd.Table)
	if !ok {
		return Result{}, errs.NewTableNotFound(cmd.Table)
	}
	found := false
	for _, c := range tbl.Schema.Columns {
		if c.Name == cmd.IndexColumn {
			found = true
			break
		}
	}
	if !found {
		return Result{}, errs.NewColumnNotFound(cmd.Table, cmd.IndexColumn)
	}

	if err := db.indexes.Create(cmd.IndexName, cmd.Table, cmd.IndexColumn); err != nil {
		return Result{}, err
	}

	// Backfill: index every row currently visible to a fresh read snapshot.
	snap := db.tm.ReadSnapshot()
	for _, rr := range tbl.Scan(snap, db.clog) {
		if v, ok := rr.Row.ColumnValue(cmd.IndexColumn); ok {
			db.indexes.OnInsert(cmd.Table, cmd.IndexColumn, v, rr.RowID)
		}
	}
	return Result{}, nil
}

func (db *DB) execDropIndex(cmd command.Command) (Result, error) {
	if err := db.indexes.Drop(cmd.IndexName); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
