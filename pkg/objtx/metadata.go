package objtx

import "github.com/cuemby/objstore/pkg/oid"

// ObjectState is the lifecycle state of an object within one
// transaction. Identity (reference equality) of the Go value is the
// identity map's key; the metadata is the mutable value attached to it.
type ObjectState int

const (
	// StateRead means the object was materialized from storage and has
	// not been modified in this transaction.
	StateRead ObjectState = iota
	// StateDirty means the object must be written at commit.
	StateDirty
	// StateDeleted means the object was erased; it must not be
	// re-stored and must not appear in the dirty set.
	StateDeleted
)

func (s ObjectState) String() string {
	switch s {
	case StateRead:
		return "Read"
	case StateDirty:
		return "Dirty"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// metadata is the per-object bookkeeping the identity map attaches to
// every live object reference. Invariants:
//   - if State == StateDirty and Id != 0, Id is present in the dirty set
//   - if State == StateDeleted, Id is absent from the dirty set and the
//     identity map
//   - an object with Id == 0 is either StateDirty (pending first write)
//     or StateDeleted (never written)
type metadata struct {
	id    oid.OID
	state ObjectState
}

// ID returns the object's OID, or 0 if it has never been assigned one.
func (m *metadata) ID() oid.OID { return m.id }

// State returns the object's current lifecycle state.
func (m *metadata) State() ObjectState { return m.state }
