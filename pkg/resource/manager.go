package resource

import (
	"bytes"
	"encoding/gob"
	"io"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opendut/carl/pkg/log"
	"github.com/opendut/carl/pkg/resource/persistence"
)

// ResourceManager is the top-level handle every other component depends on
// (spec §4.1's "Resource Manager"): it owns the store, the subscription
// bus, and an optional persistence backend, and is the only thing allowed
// to grant mutable access to resources.
type ResourceManager struct {
	store        *store
	bus          *Bus
	snapshotter  persistence.Snapshotter
	registryMu   sync.Mutex
	typeRegistry map[string]reflect.Type
}

// NewResourceManager constructs an empty manager backed by snapshotter. Pass
// persistence.Noop{} to run entirely in memory.
func NewResourceManager(snapshotter persistence.Snapshotter) *ResourceManager {
	return &ResourceManager{
		store:        newStore(),
		bus:          newBus(),
		snapshotter:  snapshotter,
		typeRegistry: make(map[string]reflect.Type),
	}
}

// Bus exposes the subscription bus for use with the package-level Subscribe
// function, since Go methods cannot themselves carry additional type
// parameters.
func (m *ResourceManager) Bus() *Bus {
	return m.bus
}

// snapshotEntry is the on-disk shape of one stored resource. TypeName keys
// back into typeRegistry on Load, since a gob stream of `any` values needs a
// concrete registered type to decode into.
type snapshotEntry struct {
	TypeName string
	Value    any
}

// RegisterPersistentType makes T eligible for snapshotting: every type
// stored in the manager that should survive a restart must be registered
// once during startup, mirroring gob.Register for the concrete value types
// carried as `any` (spec §4.1: persistence is optional per deployment, but
// once enabled it must round-trip every resource kind CARL uses).
func RegisterPersistentType[T any](m *ResourceManager) {
	var zero T
	gob.Register(zero)
	t := typeOf[T]()
	m.registryMu.Lock()
	m.typeRegistry[t.String()] = t
	m.registryMu.Unlock()
}

// Load reads the most recent snapshot from the configured backend, if any,
// and repopulates the store. Call once at startup after registering every
// persistent type.
func (m *ResourceManager) Load() error {
	r, err := m.snapshotter.Load()
	if err != nil {
		return errors.Wrap(err, "loading resource snapshot")
	}
	if r == nil {
		return nil
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading resource snapshot")
	}
	var entries []snapshotEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return errors.Wrap(err, "decoding resource snapshot")
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, e := range entries {
		m.registryMu.Lock()
		t, ok := m.typeRegistry[e.TypeName]
		m.registryMu.Unlock()
		if !ok {
			log.Warnf("resource: snapshot contains unregistered type %q, skipping", e.TypeName)
			continue
		}
		id, ok := identityOf(e.Value)
		if !ok {
			log.Warnf("resource: snapshot entry of type %q has no recognizable id, skipping", e.TypeName)
			continue
		}
		m.store.table(t)[id] = e.Value
	}
	return nil
}

// save serializes the entire store and writes it to the snapshot backend.
// Called after every committed ResourcesMut transaction so a restart never
// loses an acknowledged mutation.
func (m *ResourceManager) save() error {
	m.store.mu.RLock()
	entries := make([]snapshotEntry, 0)
	for t, tbl := range m.store.tables {
		for _, v := range tbl {
			entries = append(entries, snapshotEntry{TypeName: t.String(), Value: v})
		}
	}
	m.store.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return errors.Wrap(err, "encoding resource snapshot")
	}
	if err := m.snapshotter.Save(&buf); err != nil {
		return errors.Wrap(err, "writing resource snapshot")
	}
	return nil
}

// Resources grants fn read-only access to a consistent snapshot of the
// store, held under a shared lock (spec §4.1).
func (m *ResourceManager) Resources(fn func(*Resources) error) error {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return fn(&Resources{store: m.store})
}

// ResourcesMut grants fn exclusive read-write access to the store. If fn
// returns an error, every mutation it made is rolled back and neither the
// snapshot nor any subscriber ever observes it (spec §5: commit-or-discard).
// On success, changes are persisted (if a snapshotter is configured) and
// then published to subscribers, both after the store lock is released.
func (m *ResourceManager) ResourcesMut(fn func(*ResourcesMut) error) error {
	m.store.mu.Lock()
	tx := &ResourcesMut{store: m.store}
	err := fn(tx)
	if err != nil {
		tx.rollback()
		m.store.mu.Unlock()
		return err
	}
	changes := tx.changes
	m.store.mu.Unlock()

	if len(changes) > 0 {
		if _, ok := m.snapshotter.(persistence.Noop); !ok {
			if err := m.save(); err != nil {
				log.Errorf("resource: failed to persist snapshot after commit: %v", err)
			}
		}
	}
	for _, c := range changes {
		m.bus.publish(c)
	}
	return nil
}

// identityOf extracts the uuid.UUID from a decoded resource value by
// looking for a `UUID() uuid.UUID` method (the Identity interface every
// domain type in pkg/types implements) or an embedded Id field implementing
// it.
func identityOf(v any) (uuid.UUID, bool) {
	if ident, ok := v.(Identity); ok {
		return ident.UUID(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return uuid.UUID{}, false
	}
	idField := rv.FieldByName("Id")
	if !idField.IsValid() {
		return uuid.UUID{}, false
	}
	if ident, ok := idField.Interface().(Identity); ok {
		return ident.UUID(), true
	}
	return uuid.UUID{}, false
}
