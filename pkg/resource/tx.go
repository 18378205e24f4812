package resource

import (
	"reflect"

	"github.com/google/uuid"
)

// Resources is the read-only handle passed to a Resources() closure: a
// consistent point-in-time view taken under a shared read lock (spec §4.1,
// §5: "many concurrent readers, one writer at a time").
type Resources struct {
	store *store
}

// ResourcesMut is the read-write handle passed to a ResourcesMut() closure.
// Every Insert/Remove is recorded to an undo log so that returning an error
// discards the whole transaction atomically (spec §5: "commit-or-discard").
type ResourcesMut struct {
	store   *store
	undo    []undoEntry
	changes []change
}

type undoEntry struct {
	typ    reflect.Type
	id     uuid.UUID
	hadOld bool
	old    any
}

// Get retrieves the value of type T stored under id, if any.
func Get[T any](r *Resources, id Identity) (T, bool) {
	return getTyped[T](r.store, id)
}

// List returns every stored value of type T, keyed by its uuid.
func List[T any](r *Resources) map[uuid.UUID]T {
	return listTyped[T](r.store)
}

// GetMut retrieves the value of type T stored under id, if any, within a
// mutation closure.
func GetMut[T any](r *ResourcesMut, id Identity) (T, bool) {
	return getTyped[T](r.store, id)
}

// ListMut returns every stored value of type T within a mutation closure.
func ListMut[T any](r *ResourcesMut) map[uuid.UUID]T {
	return listTyped[T](r.store)
}

// Insert stores value under id, upserting it, and records an Inserted or
// Updated event to be published once the enclosing transaction commits.
func Insert[T any](r *ResourcesMut, id Identity, value T) {
	t := typeOf[T]()
	old, existed := getTyped[T](r.store, id)

	entry := undoEntry{typ: t, id: id.UUID(), hadOld: existed}
	if existed {
		entry.old = old
	}
	r.undo = append(r.undo, entry)

	setTyped[T](r.store, id, value)

	c := change{typ: t, id: id.UUID(), new: value}
	if existed {
		c.kind = Updated
		c.old = old
	} else {
		c.kind = Inserted
	}
	r.changes = append(r.changes, c)
}

// Remove deletes the value of type T stored under id, if any, and records a
// Removed event to be published once the enclosing transaction commits. It
// is a no-op, not an error, when nothing was stored, and then reports
// false (spec §4.1 mirrors a Rust Option-returning remove).
func Remove[T any](r *ResourcesMut, id Identity) (T, bool) {
	t := typeOf[T]()
	old, existed := getTyped[T](r.store, id)
	if !existed {
		return old, false
	}

	r.undo = append(r.undo, undoEntry{typ: t, id: id.UUID(), hadOld: true, old: old})
	deleteTyped[T](r.store, id)
	r.changes = append(r.changes, change{typ: t, id: id.UUID(), kind: Removed, old: old})
	return old, true
}

// rollback undoes every mutation recorded so far, in reverse order, because
// the enclosing transaction's closure returned an error (spec §5:
// "ResourcesMut either fully commits or fully discards").
func (r *ResourcesMut) rollback() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		e := r.undo[i]
		tbl := r.store.table(e.typ)
		if e.hadOld {
			tbl[e.id] = e.old
		} else {
			delete(tbl, e.id)
		}
	}
	r.undo = nil
	r.changes = nil
}
