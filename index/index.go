// Package index implements the index manager (IM): a registry of named
// indexes over (table, column), each backed by a btree.BTree, with
// statement-time maintenance hooks and equality-predicate selection for the
// executor. The registry is keyed by index name with explicit
// (table, column) metadata, so several named indexes can cover one column.
package index

import (
	"sync"

	"github.com/stratadb/stratadb/btree"
	"github.com/stratadb/stratadb/errs"
	"github.com/stratadb/stratadb/value"
)

// Descriptor is one named index's metadata.
type Descriptor struct {
	Name   string
	Table  string
	Column string
}

type entry struct {
	Descriptor
	tree *btree.BTree
}

// Manager is the index registry. One Manager is shared by the whole
// database; it has no notion of transactions — the caller applies index
// mutations as each statement runs and registers its own undo closures with
// the active mvcc.Transaction, so a rollback removes them again.
type Manager struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	byTable map[string][]*entry // secondary lookup: table -> its indexes
}

func NewManager() *Manager {
	return &Manager{
		byName:  make(map[string]*entry),
		byTable: make(map[string][]*entry),
	}
}

// Create registers a new empty index. Returns an error if name is taken.
func (m *Manager) Create(name, table, column string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[name]; exists {
		return errs.New(errs.KindInvalidSyntax, "index %q already exists", name)
	}
	e := &entry{Descriptor: Descriptor{Name: name, Table: table, Column: column}, tree: btree.New()}
	m.byName[name] = e
	m.byTable[table] = append(m.byTable[table], e)
	return nil
}

// Drop removes a named index.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byName[name]
	if !ok {
		return errs.New(errs.KindInvalidSyntax, "index %q does not exist", name)
	}
	delete(m.byName, name)
	siblings := m.byTable[e.Table]
	for i, s := range siblings {
		if s == e {
			m.byTable[e.Table] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the descriptor+tree for name.
func (m *Manager) Get(name string) (Descriptor, *btree.BTree, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byName[name]
	if !ok {
		return Descriptor{}, nil, false
	}
	return e.Descriptor, e.tree, true
}

// ForColumn returns every index registered on (table, column).
func (m *Manager) ForColumn(table, column string) []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Descriptor
	for _, e := range m.byTable[table] {
		if e.Column == column {
			out = append(out, e.Descriptor)
		}
	}
	return out
}

// OnInsert adds (value, rowID) to every index on (table, column).
func (m *Manager) OnInsert(table, column string, val value.Value, rowID uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.byTable[table] {
		if e.Column == column {
			e.tree.Insert(val, int64(rowID))
		}
	}
}

// OnDelete removes (value, rowID) from every index on (table, column).
func (m *Manager) OnDelete(table, column string, val value.Value, rowID uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.byTable[table] {
		if e.Column == column {
			e.tree.Delete(val, int64(rowID))
		}
	}
}

// OnUpdate removes the old indexed value and inserts the new one, only doing
// work for indexes whose column actually changed value.
func (m *Manager) OnUpdate(table, column string, oldVal, newVal value.Value, rowID uint64) {
	if value.Equal(oldVal, newVal) {
		return
	}
	m.OnDelete(table, column, oldVal, rowID)
	m.OnInsert(table, column, newVal, rowID)
}

// Lookup performs an equality search on name, returning matching row ids.
func (m *Manager) Lookup(name string, key value.Value) ([]uint64, bool) {
	_, tree, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	raw := tree.Search(key)
	out := make([]uint64, len(raw))
	for i, id := range raw {
		out[i] = uint64(id)
	}
	return out, true
}

// DropTable removes every index registered against table, used by DROP TABLE.
func (m *Manager) DropTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byTable[table] {
		delete(m.byName, e.Name)
	}
	delete(m.byTable, table)
}
