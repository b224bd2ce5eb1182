// Package errs defines the stable error kinds stratadb's core surfaces to
// callers. Every error is an *Error tagged with a Kind, so callers match on
// the kind (errors.Is against a Kind, or Of) instead of string-matching
// messages.
package errs

import "fmt"

// Kind names a stable error category. Front ends (CLI exit codes, RPC status
// mapping) key off these, never off Error() text. Kind implements error so a
// bare kind can be the target of errors.Is.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	KindInvalidSyntax               Kind = "InvalidSyntax"
	KindTableNotFound               Kind = "TableNotFound"
	KindColumnNotFound              Kind = "ColumnNotFound"
	KindInvalidColumnType           Kind = "InvalidColumnType"
	KindDimensionMismatch           Kind = "DimensionMismatch"
	KindDuplicateEmbeddingDimension Kind = "DuplicateEmbeddingDimension"
	KindTooManyEmbeddings           Kind = "TooManyEmbeddings"
	KindTransactionAlreadyActive    Kind = "TransactionAlreadyActive"
	KindNoActiveTransaction         Kind = "NoActiveTransaction"
	KindTransactionNotActive        Kind = "TransactionNotActive"
	KindDuplicateExternalId         Kind = "DuplicateExternalId"
	KindNodeNotFound                Kind = "NodeNotFound"
	KindEdgeNotFound                Kind = "EdgeNotFound"
	KindSourceNodeNotFound          Kind = "SourceNodeNotFound"
	KindDestinationNodeNotFound     Kind = "DestinationNodeNotFound"
	KindInvalidWalMagic             Kind = "InvalidWalMagic"
	KindUnsupportedWalVersion       Kind = "UnsupportedWalVersion"
	KindChecksumMismatch            Kind = "ChecksumMismatch"
	KindInvalidRecordType           Kind = "InvalidRecordType"
	KindBufferTooSmall              Kind = "BufferTooSmall"
	KindWalDiskQuotaExceeded        Kind = "WalDiskQuotaExceeded"
	KindAbsolutePathNotAllowed      Kind = "AbsolutePathNotAllowed"
	KindPathTraversalNotAllowed     Kind = "PathTraversalNotAllowed"
	KindInvalidWalPath              Kind = "InvalidWalPath"
	KindWalPathTooLong              Kind = "WalPathTooLong"
	KindSymlinkNotAllowed           Kind = "SymlinkNotAllowed"
	KindCannotDeleteCurrentWalFile  Kind = "CannotDeleteCurrentWalFile"
)

// Error is the single concrete error type for every Kind above. It carries a
// free-form message and optional structured fields for the common cases
// (table/column/name) so callers that want them don't have to parse text.
type Error struct {
	Kind    Kind
	Message string
	Table   string
	Column  string
	Name    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is lets errors.Is(err, errs.KindTableNotFound) work by comparing Kind,
// without requiring callers to know the concrete *Error type.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewTableNotFound(table string) *Error {
	return &Error{Kind: KindTableNotFound, Message: fmt.Sprintf("table %q not found", table), Table: table}
}

func NewColumnNotFound(table, column string) *Error {
	return &Error{Kind: KindColumnNotFound, Message: fmt.Sprintf("column %q not found in table %q", column, table), Table: table, Column: column}
}

func NewDuplicateEmbeddingDimension(table string, dim int) *Error {
	return &Error{Kind: KindDuplicateEmbeddingDimension, Message: fmt.Sprintf("table %q already has an embedding column of dimension %d", table, dim), Table: table}
}

func NewDimensionMismatch(expected, got int) *Error {
	return &Error{Kind: KindDimensionMismatch, Message: fmt.Sprintf("expected dimension %d, got %d", expected, got)}
}

// Of reports whether err is a stratadb *Error of the given Kind.
func Of(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
