package objtx

import "github.com/cuemby/objstore/pkg/oid"

// dirtySet is the lazily-created OID -> object map drained at commit. It
// stays nil until the first Store so a read-only transaction never
// allocates it. order records insertion order so a drain round writes
// objects in the sequence they were Stored, matching the spec's
// insertion-order commit guarantee rather than Go's randomized map
// iteration order.
type dirtySet struct {
	byOID map[oid.OID]any
	order []oid.OID
}

func (d *dirtySet) ensure() {
	if d.byOID == nil {
		d.byOID = make(map[oid.OID]any)
	}
}

// Add marks o dirty, associating it with obj for the commit drain.
func (d *dirtySet) Add(o oid.OID, obj any) {
	d.ensure()
	if _, already := d.byOID[o]; !already {
		d.order = append(d.order, o)
	}
	d.byOID[o] = obj
}

// Remove drops o from the dirty set, e.g. when an object is deleted
// before it was ever committed.
func (d *dirtySet) Remove(o oid.OID) {
	if d.byOID == nil {
		return
	}
	if _, ok := d.byOID[o]; !ok {
		return
	}
	delete(d.byOID, o)
	for i, id := range d.order {
		if id == o {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether o is currently pending commit. Used as the
// identity map's eviction pin predicate.
func (d *dirtySet) Contains(o oid.OID) bool {
	if d.byOID == nil {
		return false
	}
	_, ok := d.byOID[o]
	return ok
}

// Len reports how many objects are pending commit.
func (d *dirtySet) Len() int {
	return len(d.byOID)
}

// Empty reports whether nothing is pending commit.
func (d *dirtySet) Empty() bool {
	return len(d.byOID) == 0
}

// dirtyEntry pairs an OID with its pending object for one drain round.
type dirtyEntry struct {
	OID oid.OID
	Obj any
}

// drainOnce returns one snapshot round of the pending set in the order
// objects were Stored and clears it, ready to accumulate any new dirty
// objects a saver callback produces during this round. The commit loop
// keeps calling drainOnce until it returns nil, implementing the
// commit fixpoint: a saver can itself call Store, and the object it
// stores is persisted in the same commit.
func (d *dirtySet) drainOnce() []dirtyEntry {
	if d.byOID == nil || len(d.byOID) == 0 {
		return nil
	}
	round := make([]dirtyEntry, 0, len(d.order))
	for _, id := range d.order {
		obj, ok := d.byOID[id]
		if !ok {
			continue
		}
		round = append(round, dirtyEntry{OID: id, Obj: obj})
	}
	d.byOID = nil
	d.order = nil
	return round
}
