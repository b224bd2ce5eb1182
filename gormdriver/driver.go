// Package gormdriver exposes a *stratadb.DB as a database/sql driver.Connector
// and a gorm.Dialector, so GORM's ordinary Create/Find/Update/Delete API can
// drive the embedded database without a network round-trip. Raw SQL text is
// routed through a frontend.Translator into command.Command before reaching
// DB.Execute, since the core speaks Command, not SQL text.
package gormdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"

	stratadb "github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/frontend"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/value"
)

// sqlDriver is a minimal driver.Driver; callers must use sql.OpenDB(NewConnector(db))
// rather than sql.Open, since there is no DSN to parse.
type sqlDriver struct{}

func (sqlDriver) Open(_ string) (driver.Conn, error) {
	return nil, fmt.Errorf("stratadb: use sql.OpenDB(gormdriver.NewConnector(db)) instead of sql.Open")
}

// NewConnector creates a driver.Connector that routes all SQL through db via
// a dedicated frontend.Translator.
func NewConnector(db *stratadb.DB) driver.Connector {
	return &connector{db: db, tr: frontend.NewTranslator()}
}

type connector struct {
	db *stratadb.DB
	tr *frontend.Translator
}

func (c *connector) Connect(_ context.Context) (driver.Conn, error) {
	return &conn{db: c.db, tr: c.tr}, nil
}

func (c *connector) Driver() driver.Driver { return sqlDriver{} }

// conn implements driver.Conn plus the Context query/exec variants, so
// database/sql never needs the Prepare path.
type conn struct {
	db *stratadb.DB
	tr *frontend.Translator
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

func (c *conn) Close() error { return nil }

// Begin is a no-op: every statement stratadb executes is already atomic
// under MVCC.
func (c *conn) Begin() (driver.Tx, error) { return noopTx{}, nil }

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("stratadb: bound parameters are not supported by this driver")
	}
	cmd, err := c.tr.Translate(query)
	if err != nil {
		return nil, err
	}
	res, err := c.db.Execute(cmd)
	if err != nil {
		return nil, err
	}
	// The core always returns whole rows (command.Select.Projections is a
	// front-end concern it does not interpret); narrow to the requested
	// columns here so database/sql callers see the SELECT list they asked for.
	var projections []string
	if cmd.Kind == command.KindSelect {
		projections = cmd.Select.Projections
	}
	return newRows(res.Rows, projections), nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("stratadb: bound parameters are not supported by this driver")
	}
	cmd, err := c.tr.Translate(query)
	if err != nil {
		return nil, err
	}
	res, err := c.db.Execute(cmd)
	if err != nil {
		return nil, err
	}
	return execResult{affected: int64(res.RowsAffected), insertID: int64(res.LastInsertRowID)}, nil
}

type stmt struct {
	conn  *conn
	query string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, valuesToNamed(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, valuesToNamed(args))
}

func valuesToNamed(vals []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(vals))
	for i, v := range vals {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// rows adapts a []table.RowResult to driver.Rows. Columns are taken from the
// union of keys across the first row only, matching the common case where
// every row in a result shares the same shape (tables are schema-fixed, so
// this always holds for a direct table scan).
type rows struct {
	columns []string
	data    []table.RowResult
	index   int
}

func newRows(data []table.RowResult, projections []string) *rows {
	cols := projections
	if len(cols) == 0 && len(data) > 0 {
		for name := range data[0].Row {
			cols = append(cols, name)
		}
	}
	return &rows{columns: cols, data: data}
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.index >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.index].Row
	for i, col := range r.columns {
		if i < len(dest) {
			dest[i] = toDriverValue(row[col])
		}
	}
	r.index++
	return nil
}

type execResult struct {
	affected int64
	insertID int64
}

func (r execResult) LastInsertId() (int64, error) { return r.insertID, nil }
func (r execResult) RowsAffected() (int64, error) { return r.affected, nil }

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

// OpenDB wraps NewConnector in a ready-to-use *sql.DB.
func OpenDB(db *stratadb.DB) *sql.DB {
	return sql.OpenDB(NewConnector(db))
}

// toDriverValue converts stratadb's tagged value.Value into one of the
// concrete types database/sql requires a driver.Value to be (nil, int64,
// float64, bool, []byte, string, time.Time). Embeddings have no SQL scalar
// equivalent, so they are rendered as a comma-separated string.
func toDriverValue(v value.Value) driver.Value {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt64:
		return v.AsInt64()
	case value.KindFloat64:
		return v.AsFloat64()
	case value.KindText:
		return v.AsText()
	case value.KindEmbedding:
		parts := make([]string, len(v.AsEmbedding()))
		for i, f := range v.AsEmbedding() {
			parts[i] = fmt.Sprintf("%v", f)
		}
		return strings.Join(parts, ",")
	default:
		return nil
	}
}
