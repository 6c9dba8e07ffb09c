package objtx

import (
	"fmt"
	"iter"
	"reflect"
	"sort"
	"time"

	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/oid"
)

// typeAssignableTo reports whether a value of type candidate could be
// asserted into target, mirroring what obj.(T) would do: either the
// types are identical, or target is an interface candidate implements.
func typeAssignableTo(candidate, target reflect.Type) bool {
	if candidate == target {
		return true
	}
	return target.Kind() == reflect.Interface && candidate.Implements(target)
}

// All enumerates every live object of type T: a single pass that walks
// the persisted key-value cursor over every stored object, skipping
// records of other types, and then merges in the dirty objects of this
// transaction whose OIDs are above the last persisted key the walk saw
// and no higher than the owner's last allocated OID when the scan
// began. A cursor-guard token is captured for each persisted entry
// before it is yielded; if anything in this transaction mutates the
// cursor position while the caller is still consuming the sequence,
// remaining persisted entries are re-seeked instead of silently skipped
// or repeated.
func All[T any](t *Transaction) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		start := time.Now()
		defer func() { metrics.EnumerateDuration.Observe(time.Since(start).Seconds()) }()

		if err := t.checkOpen(); err != nil {
			yield(zero, err)
			return
		}

		rt := reflect.TypeOf((*T)(nil)).Elem()

		cursor, err := t.kvtx.Cursor(PrefixAllObjects)
		if err != nil {
			yield(zero, fmt.Errorf("objtx: opening cursor: %w", err))
			return
		}

		ceiling := t.owner.LastAllocatedOID()
		lastSeen := oid.OID(0)

		var k, v []byte
		var ok bool

		advance := func(id oid.OID, token int64) {
			if t.guard.moved(token) {
				metrics.CursorReseeksTotal.Inc()
				k, v, ok = cursor.Seek(oid.AppendEncode(nil, oid.Next(id)))
				return
			}
			k, v, ok = cursor.Next()
		}

		k, v, ok = cursor.First()
		for ok {
			token := t.guard.token()
			id, _, decErr := oid.Decode(k)
			if decErr != nil {
				if !yield(zero, fmt.Errorf("objtx: corrupt oid key: %w", decErr)) {
					return
				}
				k, v, ok = cursor.Next()
				continue
			}
			lastSeen = id

			if _, isDeleted := t.deleted[id]; isDeleted {
				advance(id, token)
				continue
			}

			var obj any
			if live, present := t.identity.GetByOID(id); present {
				obj = live
			} else {
				// Peek the table id out of the stored frame before paying
				// for a full decode: a record whose type cannot possibly
				// satisfy T is skipped without ever materializing it.
				if tableID, peeked := peekTopLevelTableID(v); peeked {
					if ti, found := t.owner.Registry().LookupID(tableID); found && !typeAssignableTo(ti.Type, rt) {
						advance(id, token)
						continue
					}
				}
				obj, err = t.decodeAndTrack(id, v)
				if err != nil {
					if !yield(zero, err) {
						return
					}
					k, v, ok = cursor.Next()
					continue
				}
			}

			typed, matches := obj.(T)
			if matches {
				if !yield(typed, nil) {
					return
				}
			}

			advance(id, token)
		}

		for _, id := range t.dirtyTailOIDs(lastSeen, ceiling) {
			obj, present := t.identity.GetByOID(id)
			if !present {
				continue
			}
			if _, isDeleted := t.deleted[id]; isDeleted {
				continue
			}
			typed, matches := obj.(T)
			if !matches {
				continue
			}
			if !yield(typed, nil) {
				return
			}
		}
	}
}

// dirtyTailOIDs returns, in ascending order, every dirty OID greater
// than lastSeen (so the cursor walk never observed it because it is
// not yet persisted) and no greater than ceiling (the owner's last
// allocation at the moment enumeration began, so a concurrent Store
// that races with this scan is never half-included).
func (t *Transaction) dirtyTailOIDs(lastSeen, ceiling oid.OID) []oid.OID {
	var out []oid.OID
	for id := range t.dirty.byOID {
		if id > lastSeen && id <= ceiling {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
