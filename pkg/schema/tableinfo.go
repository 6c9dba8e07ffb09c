package schema

import (
	"io"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/objstore/pkg/oid"
)

// Writer is the context an inline (de)serializer writes through. It is
// implemented by the object transaction core's writer context, which
// also knows how to recurse into nested inline objects and allocate
// dictionary ids — concerns the saver itself never needs to know the
// mechanics of.
type Writer interface {
	io.Writer
	// WriteInline serializes obj as a nested object embedded in the
	// current byte stream, per the inline codec.
	WriteInline(obj any) error
	// AllocateDictionaryID reserves the next local dictionary id.
	AllocateDictionaryID() uint64
}

// Reader is the context an inline (de)serializer reads through.
type Reader interface {
	io.Reader
	// ReadInline materializes a nested inline object.
	ReadInline() (any, error)
	// Track registers obj as "already under construction" before its
	// fields are decoded, so that a cyclic reference back to obj
	// resolves to the same instance instead of looping. ReadInline calls
	// it for every object it constructs.
	Track(obj any)
}

// SaverFunc serializes obj's fields (not its table id/version header,
// which the inline codec writes itself) into w.
type SaverFunc func(w Writer, obj any) error

// LoaderFunc deserializes obj's fields from r. obj has already been
// constructed (by Creator, or by reflection when Creator is nil) and
// registered with the
// reader context for cycle support.
type LoaderFunc func(r Reader, obj any) error

// FreeContentFunc performs the structural, non-materializing traversal
// used to collect dictionary ids transitively owned by an object that
// is about to be deleted.
type FreeContentFunc func(r Reader) ([]uint64, error)

// TableInfo is the persistent description of a user-defined table or the
// instances registered for it. Everything except Id/Name/the version
// fields is supplied by the type's code-generated (or hand-written)
// bindings and is treated as opaque by the transaction core.
type TableInfo struct {
	Id   uint64
	Name string
	Type reflect.Type // pointer type, e.g. reflect.TypeOf((*Foo)(nil))

	ClientTypeVersion    uint32
	LastPersistedVersion int64 // <= 0 means "never persisted"
	NeedStoreSingletonOid bool
	SingletonOid         oid.OID

	// Creator builds a zero-value instance for read paths (inline
	// decode, enumeration, Get). If nil, reflect.New(Type.Elem()) is
	// used.
	Creator func() any
	// Initializer builds the default singleton instance the first time
	// a table's singleton is materialized with nothing on disk yet. If
	// nil, Creator (or reflection) is used instead.
	Initializer func() any

	Saver        SaverFunc
	loaders      map[uint32]LoaderFunc
	freeContents map[uint32]FreeContentFunc

	// SingletonCache holds the serialized singleton content keyed by
	// the transaction number that last read it, so repeated Singleton()
	// calls inside the same snapshot skip the key-value engine. It is
	// small and freely evictable: a miss just re-reads the store.
	SingletonCache *lru.Cache[uint64, []byte]
}

// NewTableInfo constructs a TableInfo for t with an empty loader/
// free-content table and a small singleton content cache.
func NewTableInfo(name string, t reflect.Type) *TableInfo {
	cache, _ := lru.New[uint64, []byte](8)
	return &TableInfo{
		Name:                  name,
		Type:                  t,
		LastPersistedVersion:  -1,
		NeedStoreSingletonOid: false,
		loaders:               make(map[uint32]LoaderFunc),
		freeContents:          make(map[uint32]FreeContentFunc),
		SingletonCache:        cache,
	}
}

// SetLoader registers the loader for a specific persisted schema
// version; older records are read with the loader registered for the
// version stamped in their own key-value entry.
func (ti *TableInfo) SetLoader(version uint32, fn LoaderFunc) {
	ti.loaders[version] = fn
}

// LoaderFor returns the loader registered for version, if any.
func (ti *TableInfo) LoaderFor(version uint32) (LoaderFunc, bool) {
	fn, ok := ti.loaders[version]
	return fn, ok
}

// SetFreeContent registers the structural-traversal function for a
// specific persisted schema version.
func (ti *TableInfo) SetFreeContent(version uint32, fn FreeContentFunc) {
	ti.freeContents[version] = fn
}

// FreeContentFor returns the free-content traversal registered for
// version, if any.
func (ti *TableInfo) FreeContentFor(version uint32) (FreeContentFunc, bool) {
	fn, ok := ti.freeContents[version]
	return fn, ok
}

// New builds a zero-value instance of the registered type, preferring
// the supplied Creator and falling back to reflection.
func (ti *TableInfo) New() any {
	if ti.Creator != nil {
		return ti.Creator()
	}
	return reflect.New(ti.Type.Elem()).Interface()
}

// NewSingletonDefault builds the default instance for a table's
// singleton the first time it is materialized with no prior content.
func (ti *TableInfo) NewSingletonDefault() any {
	if ti.Initializer != nil {
		return ti.Initializer()
	}
	return ti.New()
}
