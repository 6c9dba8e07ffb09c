package objtx

// Key-space prefixes. Each becomes one bucket in the bbolt adapter
// (pkg/kv/boltkv.Buckets carries the matching literal names); objtx
// itself only knows them as opaque bucket identifiers passed to pkg/kv.
var (
	PrefixAllObjects      = []byte("AllObjects")
	PrefixTableNames      = []byte("TableNames")
	PrefixTableVersions   = []byte("TableVersions")
	PrefixTableSingletons = []byte("TableSingletons")
	PrefixAllDictionaries = []byte("AllDictionaries")
	PrefixAllRelationsPK  = []byte("AllRelationsPK")
	PrefixAllRelationsSK  = []byte("AllRelationsSK")
	// PrefixMeta holds database-wide bookkeeping that belongs to neither
	// a specific table nor a specific object, such as the database's own
	// instance identity.
	PrefixMeta = []byte("Meta")
)

// MetaKeyInstanceID is the fixed key under PrefixMeta holding the
// database's randomly generated instance identity, stamped the first
// time objdb.Database.InstanceID is called against a data file and
// never changed afterward.
var MetaKeyInstanceID = []byte("instance-id")
