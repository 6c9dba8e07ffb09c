package objtx

import (
	"fmt"

	"github.com/cuemby/objstore/pkg/oid"
)

// dictionaryKey builds the AllDictionaries key for a local dictionary
// id, the same fixed-width big-endian encoding tableIDKey uses.
func dictionaryKey(id uint64) []byte {
	return tableIDKey(id)
}

// freeDictionaryContent runs the stored record's table's registered
// FreeContent traversal against its persisted bytes and erases every
// dictionary id the traversal reports, so content allocated out-of-line
// via a saver's AllocateDictionaryID calls does not outlive the object
// that owns it. The table is resolved from the frame's own table id, so
// this works for a DeleteOid of an object never materialized in this
// transaction. A no-op for a table with no FreeContent registered for
// the persisted version.
func (t *Transaction) freeDictionaryContent(id oid.OID, data []byte) error {
	r := newReaderCtx(t, data)
	if _, err := r.readVarint(); err != nil { // frame kind
		return nil
	}
	tableID, err := r.readVarint()
	if err != nil {
		return nil
	}
	version, err := r.readVarint()
	if err != nil {
		return nil
	}
	ti, ok := t.owner.Registry().LookupID(tableID)
	if !ok {
		return nil
	}

	free, ok := ti.FreeContentFor(uint32(version))
	if !ok {
		return nil
	}

	ids, err := free(r)
	if err != nil {
		return fmt.Errorf("objtx: freeing content of oid %s: %w", id, err)
	}
	for _, dictID := range ids {
		if err := t.rw.Delete(PrefixAllDictionaries, dictionaryKey(dictID)); err != nil {
			return fmt.Errorf("objtx: erasing dictionary %d: %w", dictID, err)
		}
	}
	return nil
}
