package stratadb

import (
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/table"
	"github.com/stratadb/stratadb/value"
)

// VectorMatch is one similarity hit resolved back to its table row.
type VectorMatch struct {
	RowID      uint64
	Row        table.Row
	Distance   float32
	ExternalID uint64
}

// SearchSimilar returns the k rows of tableName whose column embedding is
// nearest to query by cosine distance, ascending. Hits whose row is no
// longer visible under a fresh read snapshot (deleted, or superseded by an
// update that re-embedded) are dropped rather than returned stale.
func (db *DB) SearchSimilar(tableName, column string, query []float32, k int) ([]VectorMatch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tbl, col, err := db.embeddingColumn(tableName, column)
	if err != nil {
		return nil, err
	}
	if len(query) != col.EmbeddingDim {
		return nil, errs.NewDimensionMismatch(col.EmbeddingDim, len(query))
	}

	g := db.graphForDim(col.EmbeddingDim)
	hits, err := g.SearchByType(query, k, tableName+"."+column)
	if err != nil {
		return nil, err
	}

	snap := db.tm.ReadSnapshot()
	if db.sessionTx != nil {
		snap = db.sessionTx.Snapshot
	}

	out := make([]VectorMatch, 0, len(hits))
	for _, h := range hits {
		owner, ok := db.embedOwner(col.EmbeddingDim, h.ExternalID)
		if !ok {
			continue
		}
		row, visible := tbl.Get(owner.RowID, snap, db.clog)
		if !visible {
			continue
		}
		// An updated row keeps its stale node in the graph; only the hit
		// whose stored embedding still matches the visible row counts.
		if cur, ok := row[column]; !ok || cur.Kind() != value.KindEmbedding || !value.Equal(cur, value.Embedding(pointOf(g, h.ExternalID))) {
			continue
		}
		out = append(out, VectorMatch{RowID: owner.RowID, Row: row, Distance: h.Distance, ExternalID: h.ExternalID})
	}
	return out, nil
}

// SearchHybrid runs vector-then-graph retrieval: the top-k similarity hits
// for query, expanded by BFS over typed edges up to maxDepth. It returns the
// external ids of every node reached; callers that want rows can resolve
// them through ResolveExternalID.
func (db *DB) SearchHybrid(tableName, column string, query []float32, k int, edgeType *string, maxDepth int) ([]uint64, error) {
	_, col, err := db.embeddingColumn(tableName, column)
	if err != nil {
		return nil, err
	}
	if len(query) != col.EmbeddingDim {
		return nil, errs.NewDimensionMismatch(col.EmbeddingDim, len(query))
	}
	return db.graphForDim(col.EmbeddingDim).SearchThenTraverse(query, k, edgeType, maxDepth)
}

// Graph exposes the HNSW index for dim, creating it if absent, so callers
// can add typed edges and traverse between embedded rows directly.
func (db *DB) Graph(dim int) *hnsw.Graph {
	return db.graphForDim(dim)
}

// ResolveExternalID maps an HNSW external id (for the given dimension) back
// to the table row it was embedded from.
func (db *DB) ResolveExternalID(dim int, extID uint64) (tableName, column string, rowID uint64, ok bool) {
	owner, ok := db.embedOwner(dim, extID)
	if !ok {
		return "", "", 0, false
	}
	return owner.Table, owner.Column, owner.RowID, true
}

func (db *DB) embedOwner(dim int, extID uint64) (embedOwner, bool) {
	db.embedMu.Lock()
	defer db.embedMu.Unlock()
	owner, ok := db.embedOwners[dim][extID]
	return owner, ok
}

func (db *DB) embeddingColumn(tableName, column string) (*table.Table, table.ColumnDef, error) {
	tbl, ok := db.tables.Get(tableName)
	if !ok {
		return nil, table.ColumnDef{}, errs.NewTableNotFound(tableName)
	}
	for _, c := range tbl.Schema.Columns {
		if c.Name == column {
			if c.Type != value.KindEmbedding {
				return nil, table.ColumnDef{}, errs.New(errs.KindInvalidColumnType, "column %q of table %q is not an embedding column", column, tableName)
			}
			return tbl, c, nil
		}
	}
	return nil, table.ColumnDef{}, errs.NewColumnNotFound(tableName, column)
}

func pointOf(g *hnsw.Graph, extID uint64) []float32 {
	p, _ := g.Point(extID)
	return p
}
