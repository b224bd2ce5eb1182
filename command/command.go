// Package command defines the value-typed command union the core executes:
// the boundary between an external front end (parser, RPC surface, REPL)
// and the storage/indexing core. A single closed sum type
// lets DB.Execute dispatch on one Kind switch instead of many option bags.
package command

import "github.com/stratadb/stratadb/value"

// Kind tags which command variant a Command holds.
type Kind int

const (
	KindCreateTable Kind = iota
	KindDropTable
	KindAlterTable
	KindCreateIndex
	KindDropIndex
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
	KindBegin
	KindCommit
	KindRollback
	KindVacuum
)

// ColumnSpec describes one column in a CREATE TABLE.
type ColumnSpec struct {
	Name         string
	Type         value.Kind
	EmbeddingDim int
}

// AlterKind tags which ALTER TABLE sub-operation is requested.
type AlterKind int

const (
	AlterAddColumn AlterKind = iota
	AlterDropColumn
	AlterRenameColumn
)

// AlterTable carries the fields relevant to whichever AlterKind is set.
type AlterTable struct {
	Kind       AlterKind
	Column     ColumnSpec // used by AlterAddColumn
	ColumnName string     // used by AlterDropColumn
	OldName    string     // used by AlterRenameColumn
	NewName    string     // used by AlterRenameColumn
}

// Predicate is a minimal WHERE-clause representation sufficient for the
// core's index-selection hook: an equality test on one
// column. Richer predicates are an executor/front-end concern outside the
// core's scope; the core only needs to recognize the equality case to offer
// index lookup instead of falling back to a full scan.
type Predicate struct {
	Column string
	Equals value.Value
	// HasEquals distinguishes "no predicate" from "predicate present but
	// not an equality the core can use for index selection" — in the
	// latter case the core falls back to a full MVCC scan and the
	// front end is responsible for applying the rest of the filter.
	HasEquals bool
}

// OrderByKind selects how SELECT results should be ordered.
type OrderByKind int

const (
	OrderByNone OrderByKind = iota
	OrderByColumns
	OrderBySimilarityTo
	OrderByVibes
)

// Select carries a SELECT's core-relevant fields. Joins, GROUP BY, and
// HAVING are executor-level concerns the core does not interpret; Select has
// no fields for them, and the core only acts on the fields below.
type Select struct {
	Table       string
	Projections []string
	Predicate   *Predicate
	OrderBy     OrderByKind
	OrderByText string // SIMILARITY TO query text, when OrderBy == OrderBySimilarityTo
	Limit       *int
}

// Assignment is one `column = value` pair in an UPDATE.
type Assignment struct {
	Column string
	Value  value.Value
}

// Command is the closed union the core executes. Exactly the fields
// relevant to Kind are populated; callers switch on Kind first.
type Command struct {
	Kind Kind

	// CREATE/DROP TABLE, CREATE/DROP INDEX, INSERT/UPDATE/DELETE, VACUUM
	Table    string
	IfExists bool

	Columns []ColumnSpec // CREATE TABLE

	Alter AlterTable // ALTER TABLE

	IndexName   string // CREATE/DROP INDEX
	IndexColumn string // CREATE INDEX

	InsertColumns []string        // INSERT: optional explicit column list
	InsertValues  [][]value.Value // INSERT: one row per entry

	Select Select // SELECT

	Assignments []Assignment // UPDATE
	Predicate   *Predicate   // UPDATE, DELETE

	VacuumTable *string // VACUUM: nil means "every table"
}
