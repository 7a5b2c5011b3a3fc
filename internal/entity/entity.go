// Package entity holds the state every mapped object carries and the lazy
// relationship proxies built on top of it.
package entity

import (
	"context"
	"maps"
	"reflect"

	"rowgraph/internal/metadata"
)

// Entity is a mapped domain object. Implementations embed Base.
type Entity interface {
	metadata.Describer
	Record() *Base
}

// Session loads related entities on behalf of the proxies.
type Session interface {
	Prototype(e Entity) (*metadata.Prototype, error)
	Find(ctx context.Context, filter Entity) ([]Entity, error)
	Get(ctx context.Context, template Entity, id any) (Entity, error)
}

// Base is the per-instance state of an entity: field values, identifier,
// flags and relationship slots.
type Base struct {
	values    map[string]any
	links     map[string]slot
	id        any
	dirty     bool
	inactive  bool
	persisted bool
	session   Session
}

type slot interface {
	snapshot() func()
}

func (b *Base) Record() *Base { return b }

// Get returns the value of a column field, or nil.
func (b *Base) Get(field string) any {
	return b.values[field]
}

// Has reports whether a column field holds a value.
func (b *Base) Has(field string) bool {
	v, ok := b.values[field]
	return ok && v != nil
}

// Set assigns a column field and marks the entity dirty when the value changes.
func (b *Base) Set(field string, v any) {
	if old, ok := b.values[field]; ok && reflect.DeepEqual(old, v) {
		return
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	if v == nil {
		delete(b.values, field)
	} else {
		b.values[field] = v
	}
	b.dirty = true
}

// Values returns a copy of the column values.
func (b *Base) Values() map[string]any {
	return maps.Clone(b.values)
}

func (b *Base) ID() any { return b.id }

// SetID assigns the identifier. Assigning nil marks the entity dirty.
func (b *Base) SetID(id any) {
	b.id = id
	if id == nil {
		b.dirty = true
	}
}

// IsDirty is true when a field changed since the last save or no identifier
// is set.
func (b *Base) IsDirty() bool {
	return b.dirty || b.id == nil
}

func (b *Base) MarkDirty() { b.dirty = true }

// MarkClean clears the dirty flag after a successful save or load.
func (b *Base) MarkClean() { b.dirty = false }

func (b *Base) Active() bool { return !b.inactive }

func (b *Base) SetActive(active bool) { b.inactive = !active }

// Persisted reports whether the row is known to exist.
func (b *Base) Persisted() bool { return b.persisted }

func (b *Base) MarkPersisted(persisted bool) { b.persisted = persisted }

func (b *Base) Session() Session { return b.session }

// Bind attaches the session used by lazy proxies.
func (b *Base) Bind(s Session) { b.session = s }

// Snapshot captures the instance state, including its relationship slots,
// and returns a function restoring it.
func (b *Base) Snapshot() func() {
	values := maps.Clone(b.values)
	links := maps.Clone(b.links)
	id, dirty, inactive, persisted := b.id, b.dirty, b.inactive, b.persisted
	restores := make([]func(), 0, len(links))
	for _, s := range links {
		restores = append(restores, s.snapshot())
	}
	return func() {
		b.values, b.links = values, links
		b.id, b.dirty, b.inactive, b.persisted = id, dirty, inactive, persisted
		for _, restore := range restores {
			restore()
		}
	}
}

func (b *Base) link(field string, create func() slot) slot {
	if s, ok := b.links[field]; ok {
		return s
	}
	if create == nil {
		return nil
	}
	if b.links == nil {
		b.links = make(map[string]slot)
	}
	s := create()
	b.links[field] = s
	return s
}
