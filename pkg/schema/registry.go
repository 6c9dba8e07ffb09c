package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry binds Go types to TableInfo records and assigns table ids.
// One Registry is shared by every transaction opened against the same
// database.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*TableInfo
	byID   map[uint64]*TableInfo
	byName map[string]*TableInfo
	nextID uint64
}

// NewRegistry creates an empty registry. Table ids are assigned starting
// just above firstID (the first assigned id is firstID+1), which lets a
// migration tool reserve a low range for well-known tables.
func NewRegistry(firstID uint64) *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*TableInfo),
		byID:   make(map[uint64]*TableInfo),
		byName: make(map[string]*TableInfo),
		nextID: firstID,
	}
}

// Register binds ti.Type to ti, assigning ti.Id if it is zero. It fails
// if the type or the name is already registered.
func (r *Registry) Register(ti *TableInfo) (*TableInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[ti.Type]; exists {
		return nil, fmt.Errorf("schema: type %s already registered", ti.Type)
	}
	if _, exists := r.byName[ti.Name]; exists {
		return nil, fmt.Errorf("schema: table name %q already registered", ti.Name)
	}
	if ti.Id == 0 {
		r.nextID++
		ti.Id = r.nextID
	}
	r.byType[ti.Type] = ti
	r.byID[ti.Id] = ti
	r.byName[ti.Name] = ti
	return ti, nil
}

// Lookup returns the TableInfo bound to t, if any.
func (r *Registry) Lookup(t reflect.Type) (*TableInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.byType[t]
	return ti, ok
}

// LookupID returns the TableInfo with the given table id, if any.
func (r *Registry) LookupID(id uint64) (*TableInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.byID[id]
	return ti, ok
}

// LookupName returns the TableInfo with the given table name, if any.
func (r *Registry) LookupName(name string) (*TableInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.byName[name]
	return ti, ok
}

// GetOrRegister returns the TableInfo already bound to t, or builds and
// registers one with build and reports created=true. build is called at
// most once, outside the registry lock's write path only after the read
// path has confirmed the type is unknown.
func (r *Registry) GetOrRegister(t reflect.Type, build func() *TableInfo) (ti *TableInfo, created bool, err error) {
	if ti, ok := r.Lookup(t); ok {
		return ti, false, nil
	}
	ti = build()
	ti.Type = t
	registered, err := r.Register(ti)
	if err != nil {
		return nil, false, err
	}
	return registered, true, nil
}

// All returns every registered TableInfo, in table-id order, for the
// schema persistor and whole-registry walks such as singleton-type
// enumeration and DeleteAllData.
func (r *Registry) All() []*TableInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableInfo, 0, len(r.byID))
	for _, ti := range r.byID {
		out = append(out, ti)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}
