package gormdriver

import (
	"fmt"

	stratadb "github.com/stratadb/stratadb"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Dialector implements gorm.Dialector by routing all SQL GORM generates
// through a *stratadb.DB via the frontend translator.
type Dialector struct {
	DB    *stratadb.DB
	sqlDB interface{ Close() error }
}

// NewDialector creates a GORM dialector backed by db.
func NewDialector(db *stratadb.DB) gorm.Dialector {
	return &Dialector{DB: db}
}

func (d *Dialector) Name() string { return "stratadb" }

func (d *Dialector) Initialize(db *gorm.DB) error {
	if d.DB == nil {
		return fmt.Errorf("stratadb: Dialector.DB must not be nil")
	}
	sqlDB := OpenDB(d.DB)
	d.sqlDB = sqlDB
	db.ConnPool = sqlDB
	callbacks.RegisterDefaultCallbacks(db, &callbacks.Config{})
	return nil
}

func (d *Dialector) Migrator(db *gorm.DB) gorm.Migrator {
	return newMigrator(d, db)
}

// DataTypeOf maps GORM schema field types to the column type names
// frontend.columnKind recognizes (BIGINT/DOUBLE/VARCHAR/BOOLEAN/VECTOR(n)).
func (d *Dialector) DataTypeOf(field *schema.Field) string {
	switch field.DataType {
	case schema.Bool:
		return "BOOLEAN"
	case schema.Int, schema.Uint:
		return "BIGINT"
	case schema.Float:
		return "DOUBLE"
	case schema.String:
		return "VARCHAR(255)"
	case schema.Time:
		return "VARCHAR(64)" // stratadb has no temporal Kind; stored as text
	case schema.Bytes:
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (d *Dialector) DefaultValueOf(field *schema.Field) clause.Expression {
	return clause.Expr{SQL: "NULL"}
}

func (d *Dialector) BindVarTo(writer clause.Writer, _ *gorm.Statement, _ interface{}) {
	writer.WriteByte('?')
}

func (d *Dialector) QuoteTo(writer clause.Writer, str string) {
	writer.WriteByte('`')
	writer.WriteString(str)
	writer.WriteByte('`')
}

func (d *Dialector) Explain(sql string, vars ...interface{}) string {
	return fmt.Sprintf("%s %v", sql, vars)
}

// CloseDB releases the internal *sql.DB created during Initialize.
func (d *Dialector) CloseDB() error {
	if d.sqlDB != nil {
		return d.sqlDB.Close()
	}
	return nil
}
