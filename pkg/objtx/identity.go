package objtx

import (
	"container/list"

	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/oid"
)

// smallModeLimit is the number of live entries the identity map keeps
// in its cheap strong-reference form before promoting to the bounded
// large-mode tier.
const smallModeLimit = 30

// largeModeCapacity bounds the large-mode tier. The host runtime this
// was ported from relies on weak references plus GC-driven compaction
// to reclaim entries once the caller stops holding them; Go has no
// portable equivalent wired to arbitrary interface values, so this
// follows the fallback the design notes explicitly sanction:
// a bounded map with least-recently-used eviction, pinned against the
// dirty set so an object awaiting commit is never evicted out from
// under it. Unlike true weak references, an evicted-but-still-held
// object will re-materialize as a distinct (field-equal) instance on
// the next Get — an accepted behavioral relaxation for working sets
// that exceed the bound, documented in DESIGN.md.
const largeModeCapacity = 4096

type largeEntry struct {
	oid oid.OID
	obj any
}

// identityMap is the two-tier OID-to-object / object-to-metadata cache:
// a small strong-reference map promoted, irreversibly, to a bounded
// LRU once it grows past smallModeLimit entries.
type identityMap struct {
	isPinned func(oid.OID) bool

	byObj map[any]*metadata

	small      bool
	smallByOID map[oid.OID]any

	ll        *list.List // large mode only; front = most recently used
	byOIDElem map[oid.OID]*list.Element
}

func newIdentityMap(isPinned func(oid.OID) bool) *identityMap {
	return &identityMap{
		isPinned:   isPinned,
		byObj:      make(map[any]*metadata),
		small:      true,
		smallByOID: make(map[oid.OID]any),
	}
}

// Mode reports "small" or "large", exposed for tests and metrics.
func (m *identityMap) Mode() string {
	if m.small {
		return "small"
	}
	return "large"
}

// Len returns the number of live entries (object -> metadata bindings),
// the count both tiers agree on.
func (m *identityMap) Len() int {
	return len(m.byObj)
}

// GetByOID returns the live object bound to o, if any.
func (m *identityMap) GetByOID(o oid.OID) (any, bool) {
	if o == 0 {
		return nil, false
	}
	if m.small {
		obj, ok := m.smallByOID[o]
		return obj, ok
	}
	el, ok := m.byOIDElem[o]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*largeEntry).obj, true
}

// GetMetadata returns the metadata bound to obj by reference identity.
func (m *identityMap) GetMetadata(obj any) (*metadata, bool) {
	md, ok := m.byObj[obj]
	return md, ok
}

// Insert binds both directions for a live object with a real OID. Call
// InsertStub instead for the OID==0 delete-stub case.
func (m *identityMap) Insert(o oid.OID, obj any, md *metadata) {
	m.byObj[obj] = md
	if o == 0 {
		return
	}
	if m.small {
		m.smallByOID[o] = obj
		if len(m.byObj) > smallModeLimit {
			m.promote()
		}
		return
	}
	m.insertLarge(o, obj)
}

// InsertStub records metadata for obj without an OID-side binding. Used
// by Delete when called on an object the transaction has never seen:
// the stub suppresses later Store calls for that reference without
// implying any persisted state.
func (m *identityMap) InsertStub(obj any, md *metadata) {
	m.byObj[obj] = md
}

// Remove unbinds obj (and its OID, if any) from both tiers.
func (m *identityMap) Remove(o oid.OID, obj any) {
	delete(m.byObj, obj)
	if o == 0 {
		return
	}
	if m.small {
		delete(m.smallByOID, o)
		return
	}
	if el, ok := m.byOIDElem[o]; ok {
		m.ll.Remove(el)
		delete(m.byOIDElem, o)
	}
}

func (m *identityMap) promote() {
	m.small = false
	m.ll = list.New()
	m.byOIDElem = make(map[oid.OID]*list.Element, len(m.smallByOID))
	for o, obj := range m.smallByOID {
		m.insertLarge(o, obj)
	}
	m.smallByOID = nil
}

func (m *identityMap) insertLarge(o oid.OID, obj any) {
	if el, ok := m.byOIDElem[o]; ok {
		el.Value.(*largeEntry).obj = obj
		m.ll.MoveToFront(el)
		return
	}
	el := m.ll.PushFront(&largeEntry{oid: o, obj: obj})
	m.byOIDElem[o] = el
	m.evictIfNeeded()
}

// evictIfNeeded drops least-recently-used entries once the large tier
// exceeds its capacity, skipping any entry whose OID the dirty set
// pins. attempts bounds the scan so a tier that is entirely pinned
// (all dirty) cannot loop forever.
func (m *identityMap) evictIfNeeded() {
	attempts := m.ll.Len()
	for m.ll.Len() > largeModeCapacity && attempts > 0 {
		el := m.ll.Back()
		if el == nil {
			return
		}
		entry := el.Value.(*largeEntry)
		if m.isPinned != nil && m.isPinned(entry.oid) {
			m.ll.MoveToFront(el)
			attempts--
			continue
		}
		m.ll.Remove(el)
		delete(m.byOIDElem, entry.oid)
		delete(m.byObj, entry.obj)
		attempts--
		metrics.IdentityMapEvictions.Inc()
	}
}
