package objtx

import (
	"fmt"
	"reflect"

	"github.com/cuemby/objstore/pkg/metrics"
)

// relationSearchLimit is how many chain links a GetRelation lookup may
// walk before the whole chain is rehashed into a type-keyed index.
// Most transactions touch three relations or fewer; below that a
// linear scan beats maintaining a map.
const relationSearchLimit = 4

// RelationFactory builds the per-transaction instance of one relation.
// The relation subsystem registers its factories with the owning
// database (directly or through InitRelation); the transaction only
// caches and hands back what the factory built.
type RelationFactory func(t *Transaction) (any, error)

// relationLink is one entry in the transaction's relation chain, tagged
// by the interface type it was requested under.
type relationLink struct {
	typ   reflect.Type
	value any
	next  *relationLink
}

// GetRelation returns this transaction's instance of the relation
// identified by ifaceType, creating it on first use. Lookups probe the
// hash index when one exists, otherwise walk the chain; a hit that
// needed relationSearchLimit or more hops promotes the chain into the
// index, after which the chain is never scanned again.
func (t *Transaction) GetRelation(ifaceType reflect.Type) (any, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if v, ok := t.lookupRelation(ifaceType); ok {
			return v, nil
		}
		if attempt > 0 {
			return nil, fmt.Errorf("objtx: relation %s factory produced no chain entry", ifaceType)
		}
		factory, ok := t.owner.RelationFactory(ifaceType)
		if !ok {
			if !t.owner.AllowAutoRegistration() {
				return nil, fmt.Errorf("%w: relation %s", ErrAutoRegistrationForbidden, ifaceType)
			}
			var err error
			factory, err = t.InitRelation(ifaceType.String(), ifaceType)
			if err != nil {
				return nil, err
			}
		}
		inst, err := factory(t)
		if err != nil {
			return nil, fmt.Errorf("objtx: creating relation %s: %w", ifaceType, err)
		}
		t.prependRelation(ifaceType, inst)
	}
}

func (t *Transaction) lookupRelation(typ reflect.Type) (any, bool) {
	if t.relIndex != nil {
		v, ok := t.relIndex[typ]
		return v, ok
	}
	hops := 0
	for l := t.relChain; l != nil; l = l.next {
		hops++
		if l.typ == typ {
			if hops >= relationSearchLimit {
				t.promoteRelations()
			}
			return l.value, true
		}
	}
	return nil, false
}

func (t *Transaction) prependRelation(typ reflect.Type, v any) {
	t.relChain = &relationLink{typ: typ, value: v, next: t.relChain}
	t.relChainLen++
	if t.relIndex != nil {
		if _, exists := t.relIndex[typ]; !exists {
			t.relIndex[typ] = v
		}
	}
}

// promoteRelations rehashes the whole chain into a type-keyed map. The
// chain head wins on a duplicate type, matching lookup order.
func (t *Transaction) promoteRelations() {
	idx := make(map[reflect.Type]any, t.relChainLen)
	for l := t.relChain; l != nil; l = l.next {
		if _, exists := idx[l.typ]; !exists {
			idx[l.typ] = l.value
		}
	}
	t.relIndex = idx
	metrics.RelationChainPromotionsTotal.Inc()
}

// Relation is the handle InitRelation's default factory builds: the
// name and interface type the relation was registered under, bound to
// one transaction. A relation subsystem that needs real secondary-index
// behavior registers its own factory with the owning database and
// returns its own implementation of the requested interface instead.
type Relation struct {
	name string
	typ  reflect.Type
	tx   *Transaction
}

// Name returns the name the relation was registered under.
func (r *Relation) Name() string { return r.name }

// InterfaceType returns the interface type the relation is looked up by.
func (r *Relation) InterfaceType() reflect.Type { return r.typ }

// Transaction returns the transaction this instance is bound to.
func (r *Relation) Transaction() *Transaction { return r.tx }

// InitRelation validates ifaceType's shape, builds a factory for it,
// registers the factory with the owning database, and returns it. The
// required shape is an interface type: a relation is only ever reached
// through the interface its callers program against, never as a
// concrete struct.
func (t *Transaction) InitRelation(name string, ifaceType reflect.Type) (RelationFactory, error) {
	if ifaceType == nil || ifaceType.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %v is not an interface", ErrRelationShapeInvalid, ifaceType)
	}
	factory := RelationFactory(func(tx *Transaction) (any, error) {
		return &Relation{name: name, typ: ifaceType, tx: tx}, nil
	})
	t.owner.RegisterRelationFactory(ifaceType, factory)
	return factory, nil
}
