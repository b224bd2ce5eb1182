package stratadb

import (
	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/table"
)

// Result is what Execute returns for any command.Command. Only the fields
// relevant to the command that produced it are populated.
type Result struct {
	Rows            []table.RowResult
	RowsAffected    int
	LastInsertRowID uint64
	VectorHits      []hnsw.SearchResult
	TxID            uint64
}
