// Package frontend translates a parsed SQL ast.StmtNode into the core's
// command.Command union: the core never sees SQL text or an AST, only the
// closed Command type. The translator covers exactly the fields
// command.Command accepts; richer SQL (joins, GROUP BY, subqueries) is a
// front-end concern the core does not interpret.
package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/stratadb/stratadb/command"
	"github.com/stratadb/stratadb/value"
)

// Translator wraps a TiDB SQL parser and converts its output into
// command.Command values. It holds no database state; one Translator can
// serve any number of concurrent callers.
type Translator struct {
	parser *parser.Parser
}

func NewTranslator() *Translator {
	return &Translator{parser: parser.New()}
}

// Translate parses sql (a single statement) and converts it into the
// equivalent command.Command. Statement kinds the core has no concept of
// (JOINs, GROUP BY, views, users, ...) are rejected rather than silently
// dropped.
func (tr *Translator) Translate(sql string) (command.Command, error) {
	stmts, _, err := tr.parser.Parse(sql, "", "")
	if err != nil {
		return command.Command{}, fmt.Errorf("frontend: parse: %w", err)
	}
	if len(stmts) == 0 {
		return command.Command{}, fmt.Errorf("frontend: no statement found in %q", sql)
	}
	return tr.convert(stmts[0])
}

func (tr *Translator) convert(stmt ast.StmtNode) (command.Command, error) {
	switch n := stmt.(type) {
	case *ast.CreateTableStmt:
		return convertCreateTable(n)
	case *ast.DropTableStmt:
		return convertDropTable(n)
	case *ast.AlterTableStmt:
		return convertAlterTable(n)
	case *ast.CreateIndexStmt:
		return convertCreateIndex(n)
	case *ast.DropIndexStmt:
		return convertDropIndex(n)
	case *ast.InsertStmt:
		return convertInsert(n)
	case *ast.SelectStmt:
		return convertSelect(n)
	case *ast.UpdateStmt:
		return convertUpdate(n)
	case *ast.DeleteStmt:
		return convertDelete(n)
	case *ast.BeginStmt:
		return command.Command{Kind: command.KindBegin}, nil
	case *ast.CommitStmt:
		return command.Command{Kind: command.KindCommit}, nil
	case *ast.RollbackStmt:
		return command.Command{Kind: command.KindRollback}, nil
	default:
		return command.Command{}, fmt.Errorf("frontend: unsupported statement type %T", stmt)
	}
}

func tableName(refs *ast.TableRefsClause) (string, error) {
	if refs == nil || refs.TableRefs == nil {
		return "", fmt.Errorf("frontend: missing table reference")
	}
	if refs.TableRefs.Right != nil {
		return "", fmt.Errorf("frontend: JOINs are not supported")
	}
	src, ok := refs.TableRefs.Left.(*ast.TableSource)
	if !ok {
		return "", fmt.Errorf("frontend: unsupported table reference %T", refs.TableRefs.Left)
	}
	name, ok := src.Source.(*ast.TableName)
	if !ok {
		return "", fmt.Errorf("frontend: only plain table names are supported, got %T", src.Source)
	}
	return name.Name.String(), nil
}

// columnKind maps a SQL type name to value.Kind by stripping parens and
// matching on the upper-cased prefix rather than a full SQL type grammar.
func columnKind(sqlType string) (value.Kind, int, error) {
	upper := strings.ToUpper(sqlType)
	base := upper
	dim := 0
	if idx := strings.Index(upper, "("); idx != -1 {
		base = upper[:idx]
		if end := strings.Index(upper, ")"); end > idx {
			if d, err := strconv.Atoi(strings.TrimSpace(upper[idx+1 : end])); err == nil {
				dim = d
			}
		}
	}

	switch {
	case strings.HasPrefix(base, "VECTOR") || strings.HasPrefix(base, "EMBEDDING"):
		if dim <= 0 {
			return 0, 0, fmt.Errorf("frontend: VECTOR column requires a dimension, got %q", sqlType)
		}
		return value.KindEmbedding, dim, nil
	case strings.Contains(base, "INT"):
		return value.KindInt64, 0, nil
	case strings.HasPrefix(base, "FLOAT"), strings.HasPrefix(base, "DOUBLE"), strings.HasPrefix(base, "DECIMAL"), strings.HasPrefix(base, "NUMERIC"):
		return value.KindFloat64, 0, nil
	case strings.HasPrefix(base, "BOOL"):
		return value.KindBool, 0, nil
	case strings.HasPrefix(base, "VARCHAR"), strings.HasPrefix(base, "CHAR"), strings.HasPrefix(base, "TEXT"), strings.HasPrefix(base, "STRING"):
		return value.KindText, 0, nil
	default:
		return 0, 0, fmt.Errorf("frontend: unsupported column type %q", sqlType)
	}
}

func convertCreateTable(stmt *ast.CreateTableStmt) (command.Command, error) {
	cols := make([]command.ColumnSpec, 0, len(stmt.Cols))
	for _, c := range stmt.Cols {
		kind, dim, err := columnKind(c.Tp.String())
		if err != nil {
			return command.Command{}, err
		}
		cols = append(cols, command.ColumnSpec{Name: c.Name.Name.String(), Type: kind, EmbeddingDim: dim})
	}
	return command.Command{
		Kind:    command.KindCreateTable,
		Table:   stmt.Table.Name.String(),
		Columns: cols,
	}, nil
}

func convertDropTable(stmt *ast.DropTableStmt) (command.Command, error) {
	if len(stmt.Tables) != 1 {
		return command.Command{}, fmt.Errorf("frontend: DROP TABLE requires exactly one table name")
	}
	return command.Command{
		Kind:     command.KindDropTable,
		Table:    stmt.Tables[0].Name.String(),
		IfExists: stmt.IfExists,
	}, nil
}

func convertAlterTable(stmt *ast.AlterTableStmt) (command.Command, error) {
	if len(stmt.Specs) != 1 {
		return command.Command{}, fmt.Errorf("frontend: ALTER TABLE supports exactly one clause per statement")
	}
	spec := stmt.Specs[0]
	table := stmt.Table.Name.String()

	switch spec.Tp {
	case ast.AlterTableAddColumns:
		if len(spec.NewColumns) != 1 {
			return command.Command{}, fmt.Errorf("frontend: ADD COLUMN supports exactly one column per statement")
		}
		col := spec.NewColumns[0]
		kind, dim, err := columnKind(col.Tp.String())
		if err != nil {
			return command.Command{}, err
		}
		return command.Command{
			Kind:  command.KindAlterTable,
			Table: table,
			Alter: command.AlterTable{
				Kind:   command.AlterAddColumn,
				Column: command.ColumnSpec{Name: col.Name.Name.String(), Type: kind, EmbeddingDim: dim},
			},
		}, nil
	case ast.AlterTableDropColumn:
		return command.Command{
			Kind:  command.KindAlterTable,
			Table: table,
			Alter: command.AlterTable{Kind: command.AlterDropColumn, ColumnName: spec.OldColumnName.Name.String()},
		}, nil
	case ast.AlterTableRenameColumn:
		return command.Command{
			Kind:  command.KindAlterTable,
			Table: table,
			Alter: command.AlterTable{
				Kind:    command.AlterRenameColumn,
				OldName: spec.OldColumnName.Name.String(),
				NewName: spec.NewColumnName.Name.String(),
			},
		}, nil
	default:
		return command.Command{}, fmt.Errorf("frontend: unsupported ALTER TABLE clause %v", spec.Tp)
	}
}

func convertCreateIndex(stmt *ast.CreateIndexStmt) (command.Command, error) {
	if len(stmt.IndexPartSpecifications) != 1 || stmt.IndexPartSpecifications[0].Column == nil {
		return command.Command{}, fmt.Errorf("frontend: CREATE INDEX supports exactly one plain column")
	}
	return command.Command{
		Kind:        command.KindCreateIndex,
		Table:       stmt.Table.Name.String(),
		IndexName:   stmt.IndexName,
		IndexColumn: stmt.IndexPartSpecifications[0].Column.Name.String(),
	}, nil
}

func convertDropIndex(stmt *ast.DropIndexStmt) (command.Command, error) {
	return command.Command{
		Kind:      command.KindDropIndex,
		Table:     stmt.Table.Name.String(),
		IndexName: stmt.IndexName,
		IfExists:  stmt.IfExists,
	}, nil
}

// literalValue converts a parsed literal into the core's tagged union.
func literalValue(expr ast.ExprNode) (value.Value, error) {
	valExpr, ok := expr.(ast.ValueExpr)
	if !ok {
		return value.Value{}, fmt.Errorf("frontend: expected a literal value, got %T", expr)
	}
	raw := valExpr.GetValue()
	if raw == nil {
		return value.Null(), nil
	}
	switch v := raw.(type) {
	case bool:
		return value.Bool(v), nil
	case int64:
		return value.Int64(v), nil
	case uint64:
		return value.Int64(int64(v)), nil
	case int:
		return value.Int64(int64(v)), nil
	case float32:
		return value.Float64(float64(v)), nil
	case float64:
		return value.Float64(v), nil
	case string:
		return value.Text(v), nil
	case []byte:
		return value.Text(string(v)), nil
	default:
		// TiDB decimal and time types satisfy fmt.Stringer; fall back to a
		// textual representation rather than failing the whole statement.
		if s, ok := raw.(fmt.Stringer); ok {
			return value.Text(s.String()), nil
		}
		return value.Value{}, fmt.Errorf("frontend: unsupported literal type %T", raw)
	}
}

func convertInsert(stmt *ast.InsertStmt) (command.Command, error) {
	table, err := tableName(stmt.Table)
	if err != nil {
		return command.Command{}, err
	}

	cols := make([]string, 0, len(stmt.Columns))
	for _, c := range stmt.Columns {
		cols = append(cols, c.Name.String())
	}

	rows := make([][]value.Value, 0, len(stmt.Lists))
	for _, list := range stmt.Lists {
		row := make([]value.Value, 0, len(list))
		for _, expr := range list {
			v, err := literalValue(expr)
			if err != nil {
				return command.Command{}, err
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	return command.Command{
		Kind:          command.KindInsert,
		Table:         table,
		InsertColumns: cols,
		InsertValues:  rows,
	}, nil
}

// equalityPredicate extracts the core's single-column equality predicate
// from a WHERE clause. Predicate is equality-only; anything richer is a
// front-end responsibility this translator does not attempt.
func equalityPredicate(where ast.ExprNode) (*command.Predicate, error) {
	if where == nil {
		return nil, nil
	}
	bin, ok := where.(*ast.BinaryOperationExpr)
	if !ok || bin.Op != opcode.EQ {
		return nil, fmt.Errorf("frontend: only a single column = literal WHERE clause is supported")
	}

	col, colOK := bin.L.(*ast.ColumnNameExpr)
	lit := bin.R
	if !colOK {
		col, colOK = bin.R.(*ast.ColumnNameExpr)
		lit = bin.L
	}
	if !colOK {
		return nil, fmt.Errorf("frontend: WHERE clause must compare a column to a literal")
	}

	v, err := literalValue(lit)
	if err != nil {
		return nil, err
	}
	return &command.Predicate{Column: col.Name.Name.String(), Equals: v, HasEquals: true}, nil
}

func convertSelect(stmt *ast.SelectStmt) (command.Command, error) {
	table, err := tableName(stmt.From)
	if err != nil {
		return command.Command{}, fmt.Errorf("frontend: SELECT: %w", err)
	}
	if stmt.GroupBy != nil || stmt.Having != nil {
		return command.Command{}, fmt.Errorf("frontend: SELECT: GROUP BY and HAVING are not supported")
	}

	pred, err := equalityPredicate(stmt.Where)
	if err != nil {
		return command.Command{}, err
	}

	var projections []string
	if stmt.Fields != nil {
		for _, f := range stmt.Fields.Fields {
			if f.WildCard != nil {
				continue
			}
			if col, ok := f.Expr.(*ast.ColumnNameExpr); ok {
				projections = append(projections, col.Name.Name.String())
			}
		}
	}

	orderBy := command.OrderByNone
	if stmt.OrderBy != nil && len(stmt.OrderBy.Items) > 0 {
		orderBy = command.OrderByColumns
	}

	var limit *int
	if stmt.Limit != nil && stmt.Limit.Count != nil {
		if v, ok := stmt.Limit.Count.(ast.ValueExpr); ok {
			n := limitInt(v.GetValue())
			limit = &n
		}
	}

	return command.Command{
		Kind: command.KindSelect,
		Select: command.Select{
			Table:       table,
			Projections: projections,
			Predicate:   pred,
			OrderBy:     orderBy,
			Limit:       limit,
		},
	}, nil
}

func convertUpdate(stmt *ast.UpdateStmt) (command.Command, error) {
	table, err := tableName(stmt.TableRefs)
	if err != nil {
		return command.Command{}, fmt.Errorf("frontend: UPDATE: %w", err)
	}

	assigns := make([]command.Assignment, 0, len(stmt.List))
	for _, a := range stmt.List {
		v, err := literalValue(a.Expr)
		if err != nil {
			return command.Command{}, err
		}
		assigns = append(assigns, command.Assignment{Column: a.Column.Name.String(), Value: v})
	}

	pred, err := equalityPredicate(stmt.Where)
	if err != nil {
		return command.Command{}, err
	}

	return command.Command{
		Kind:        command.KindUpdate,
		Table:       table,
		Assignments: assigns,
		Predicate:   pred,
	}, nil
}

func convertDelete(stmt *ast.DeleteStmt) (command.Command, error) {
	table, err := tableName(stmt.TableRefs)
	if err != nil {
		return command.Command{}, fmt.Errorf("frontend: DELETE: %w", err)
	}
	pred, err := equalityPredicate(stmt.Where)
	if err != nil {
		return command.Command{}, err
	}
	return command.Command{Kind: command.KindDelete, Table: table, Predicate: pred}, nil
}

func limitInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
