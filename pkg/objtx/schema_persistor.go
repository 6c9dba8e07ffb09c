package objtx

import (
	"encoding/binary"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/schema"
)

// schemaPersistor performs the lazy, once-per-commit schema bookkeeping:
// a table's TableVersions entry is written only when its registered
// ClientTypeVersion has advanced past what was last persisted, its
// TableNames entry only on the first such write, and a table's
// singleton OID is written only once, the first time that singleton is
// created.
type schemaPersistor struct {
	registry *schema.Registry
}

func newSchemaPersistor(reg *schema.Registry) *schemaPersistor {
	return &schemaPersistor{registry: reg}
}

func tableIDKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// BuildKeyForTableVersions returns the TableVersions key for one specific
// version of a table's descriptor: the table id followed by the version
// number, so every version a table ever advances through gets its own
// entry instead of each bump overwriting the last. cmd/objstore-migrate
// walks keys built by this same function.
func BuildKeyForTableVersions(tableID uint64, version uint32) []byte {
	var k [12]byte
	binary.BigEndian.PutUint64(k[:8], tableID)
	binary.BigEndian.PutUint32(k[8:], version)
	return k[:]
}

// flush walks every registered table and writes whatever lags. The
// in-memory bookkeeping (LastPersistedVersion, NeedStoreSingletonOid)
// is not touched here: the returned apply closure updates it, and the
// caller invokes that only once the key-value commit has succeeded, so
// a failed commit leaves the registry still knowing the schema needs
// persisting.
func (p *schemaPersistor) flush(rw kv.RwTx) (apply func(), err error) {
	type pending struct {
		ti        *schema.TableInfo
		version   bool
		singleton bool
	}
	var updates []pending
	for _, ti := range p.registry.All() {
		u := pending{ti: ti}
		if ti.LastPersistedVersion < int64(ti.ClientTypeVersion) {
			firstPersist := ti.LastPersistedVersion <= 0
			key := BuildKeyForTableVersions(ti.Id, uint32(ti.ClientTypeVersion))
			if err := rw.Put(PrefixTableVersions, key, binary.AppendUvarint(nil, uint64(ti.ClientTypeVersion))); err != nil {
				return nil, err
			}
			if firstPersist {
				if err := rw.Put(PrefixTableNames, tableIDKey(ti.Id), []byte(ti.Name)); err != nil {
					return nil, err
				}
			}
			u.version = true
		}
		if ti.NeedStoreSingletonOid {
			if err := rw.Put(PrefixTableSingletons, tableIDKey(ti.Id), oid.AppendEncode(nil, ti.SingletonOid)); err != nil {
				return nil, err
			}
			u.singleton = true
		}
		if u.version || u.singleton {
			updates = append(updates, u)
		}
	}
	return func() {
		for _, u := range updates {
			if u.version {
				u.ti.LastPersistedVersion = int64(u.ti.ClientTypeVersion)
				metrics.SchemaPersistsTotal.WithLabelValues("version").Inc()
			}
			if u.singleton {
				u.ti.NeedStoreSingletonOid = false
				metrics.SchemaPersistsTotal.WithLabelValues("singleton_oid").Inc()
			}
		}
	}, nil
}
