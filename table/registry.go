package table

import (
	"sync"

	"github.com/stratadb/stratadb/errs"
)

// Registry is the named-table directory that the root database composes:
// a name-keyed map guarded by one mutex, with create/drop/truncate and an
// if_exists-tolerant drop.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

func (r *Registry) Create(name string, schema Schema) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[name]; exists {
		return nil, errs.New(errs.KindInvalidSyntax, "table %q already exists", name)
	}
	tbl, err := New(name, schema)
	if err != nil {
		return nil, err
	}
	r.tables[name] = tbl
	return tbl, nil
}

func (r *Registry) Get(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tbl, ok := r.tables[name]
	return tbl, ok
}

// Drop removes name. If ifExists is true, a missing table is not an error.
func (r *Registry) Drop(name string, ifExists bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[name]; !ok {
		if ifExists {
			return nil
		}
		return errs.NewTableNotFound(name)
	}
	delete(r.tables, name)
	return nil
}

// Truncate replaces name's rows with an empty table, keeping its schema.
func (r *Registry) Truncate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tbl, ok := r.tables[name]
	if !ok {
		return errs.NewTableNotFound(name)
	}
	fresh, err := New(name, tbl.Schema)
	if err != nil {
		return err
	}
	r.tables[name] = fresh
	return nil
}

// Names returns every registered table name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tables))
	for name := range r.tables {
		out = append(out, name)
	}
	return out
}

// All returns every registered table, for operations (e.g. VACUUM with no
// table named) that apply across the whole database.
func (r *Registry) All() map[string]*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Table, len(r.tables))
	for k, v := range r.tables {
		out[k] = v
	}
	return out
}
