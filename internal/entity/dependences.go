package entity

import (
	"context"
	"fmt"
	"slices"
)

// DependencesSlot is the untyped storage behind a Dependences collection. It
// keeps the fetched list as a backup and classifies every edit against it.
type DependencesSlot struct {
	owner   Entity
	field   string
	loaded  bool
	backup  []Entity
	live    []Entity
	inserts []Entity
	updates []Entity
	deletes []Entity
	dirty   bool
}

// DependencesSlotOf returns the slot of a dependences field, creating it.
func DependencesSlotOf(owner Entity, field string) *DependencesSlot {
	return owner.Record().link(field, func() slot {
		return &DependencesSlot{owner: owner, field: field}
	}).(*DependencesSlot)
}

// PeekDependences returns the slot of a dependences field without creating it.
func PeekDependences(owner Entity, field string) *DependencesSlot {
	s, _ := owner.Record().link(field, nil).(*DependencesSlot)
	return s
}

// Load fetches the collection on first use.
func (s *DependencesSlot) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	items, err := findOwned(ctx, s.owner, s.field)
	if err != nil {
		return err
	}
	s.backup = items
	s.live = slices.Clone(items)
	s.loaded = true
	return nil
}

func (s *DependencesSlot) Loaded() bool { return s.loaded }

// Live returns a copy of the current list.
func (s *DependencesSlot) Live() []Entity { return slices.Clone(s.live) }

// Backup returns a copy of the list as last fetched or saved.
func (s *DependencesSlot) Backup() []Entity { return slices.Clone(s.backup) }

// Pending returns the elements a save must insert, update and delete. Live
// elements edited in place count as updates without a call to Changed.
func (s *DependencesSlot) Pending() (inserts, updates, deletes []Entity) {
	updates = slices.Clone(s.updates)
	for _, e := range s.live {
		if s.editedInPlace(e) {
			updates = append(updates, e)
		}
	}
	return slices.Clone(s.inserts), updates, slices.Clone(s.deletes)
}

// IsDirty reports an explicit change or any pending edit.
func (s *DependencesSlot) IsDirty() bool {
	if s.dirty || len(s.inserts) > 0 || len(s.updates) > 0 || len(s.deletes) > 0 {
		return true
	}
	return slices.ContainsFunc(s.live, s.editedInPlace)
}

// editedInPlace is true for an identified, dirty live element that is not
// already pending.
func (s *DependencesSlot) editedInPlace(e Entity) bool {
	rec := e.Record()
	if rec.ID() == nil || !rec.IsDirty() {
		return false
	}
	return s.indexOf(s.inserts, e) < 0 && s.indexOf(s.updates, e) < 0
}

// Add appends items to the live list.
func (s *DependencesSlot) Add(ctx context.Context, items ...Entity) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	for _, e := range items {
		s.live = append(s.live, e)
		s.classify(e)
	}
	return nil
}

// Changed records that an element of the live list was modified.
func (s *DependencesSlot) Changed(e Entity) {
	if s.indexOf(s.live, e) < 0 {
		return
	}
	s.classify(e)
}

// Remove drops e from the live list.
func (s *DependencesSlot) Remove(ctx context.Context, e Entity) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	i := s.indexOf(s.live, e)
	if i < 0 {
		return nil
	}
	return s.RemoveAt(ctx, i)
}

// RemoveAt drops the i-th element of the live list.
func (s *DependencesSlot) RemoveAt(ctx context.Context, i int) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	if i < 0 || i >= len(s.live) {
		return fmt.Errorf("remove %s[%d]: index out of range (len %d)", s.field, i, len(s.live))
	}
	e := s.live[i]
	s.live = slices.Delete(s.live, i, i+1)
	if e.Record().ID() == nil {
		s.inserts = s.without(s.inserts, e)
		return nil
	}
	s.updates = s.without(s.updates, e)
	if s.indexOf(s.deletes, e) < 0 {
		s.deletes = append(s.deletes, e)
	}
	return nil
}

// Replace swaps the whole live list. Identified elements become updates,
// new ones inserts and backup elements missing from list deletes.
func (s *DependencesSlot) Replace(ctx context.Context, list []Entity) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	for _, old := range slices.Clone(s.live) {
		if s.indexOf(list, old) < 0 {
			if err := s.Remove(ctx, old); err != nil {
				return err
			}
		}
	}
	s.live = slices.Clone(list)
	for _, e := range list {
		s.classify(e)
	}
	s.dirty = true
	return nil
}

// Commit makes the live list the new backup and clears pending edits.
func (s *DependencesSlot) Commit() {
	s.backup = slices.Clone(s.live)
	s.inserts, s.updates, s.deletes = nil, nil, nil
	s.dirty = false
	s.loaded = true
}

func (s *DependencesSlot) classify(e Entity) {
	if e.Record().ID() == nil {
		if s.indexOf(s.inserts, e) < 0 {
			s.inserts = append(s.inserts, e)
		}
		return
	}
	if s.indexOf(s.inserts, e) >= 0 || s.indexOf(s.updates, e) >= 0 {
		return
	}
	s.deletes = s.without(s.deletes, e)
	s.updates = append(s.updates, e)
}

// indexOf matches by instance, then by identifier.
func (s *DependencesSlot) indexOf(list []Entity, e Entity) int {
	for i, x := range list {
		if x == e {
			return i
		}
	}
	id := e.Record().ID()
	if id == nil {
		return -1
	}
	for i, x := range list {
		if x.Record().ID() == id {
			return i
		}
	}
	return -1
}

func (s *DependencesSlot) without(list []Entity, e Entity) []Entity {
	if i := s.indexOf(list, e); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

func (s *DependencesSlot) snapshot() func() {
	loaded, dirty := s.loaded, s.dirty
	backup, live := slices.Clone(s.backup), slices.Clone(s.live)
	inserts, updates, deletes := slices.Clone(s.inserts), slices.Clone(s.updates), slices.Clone(s.deletes)
	return func() {
		s.loaded, s.dirty = loaded, dirty
		s.backup, s.live = backup, live
		s.inserts, s.updates, s.deletes = inserts, updates, deletes
	}
}

// Dependences is a typed view over an owned collection.
type Dependences[E Entity] struct {
	slot *DependencesSlot
}

// DependencesOf returns the typed view of owner's dependences field.
func DependencesOf[E Entity](owner Entity, field string) Dependences[E] {
	return Dependences[E]{slot: DependencesSlotOf(owner, field)}
}

// Items returns the live list, loading it on first use.
func (d Dependences[E]) Items(ctx context.Context) ([]E, error) {
	if err := d.slot.Load(ctx); err != nil {
		return nil, err
	}
	out := make([]E, 0, len(d.slot.live))
	for _, e := range d.slot.live {
		typed, ok := e.(E)
		if !ok {
			return nil, fmt.Errorf("dependences %s holds %T", d.slot.field, e)
		}
		out = append(out, typed)
	}
	return out, nil
}

func (d Dependences[E]) Add(ctx context.Context, items ...E) error {
	untyped := make([]Entity, len(items))
	for i, e := range items {
		untyped[i] = e
	}
	return d.slot.Add(ctx, untyped...)
}

func (d Dependences[E]) Remove(ctx context.Context, e E) error { return d.slot.Remove(ctx, e) }

func (d Dependences[E]) RemoveAt(ctx context.Context, i int) error { return d.slot.RemoveAt(ctx, i) }

func (d Dependences[E]) Changed(e E) { d.slot.Changed(e) }

func (d Dependences[E]) Replace(ctx context.Context, items []E) error {
	untyped := make([]Entity, len(items))
	for i, e := range items {
		untyped[i] = e
	}
	return d.slot.Replace(ctx, untyped)
}

func (d Dependences[E]) IsDirty() bool { return d.slot.IsDirty() }

// Len returns the size of the live list, loading it on first use.
func (d Dependences[E]) Len(ctx context.Context) (int, error) {
	if err := d.slot.Load(ctx); err != nil {
		return 0, err
	}
	return len(d.slot.live), nil
}

// CreateDependence returns a new element whose back-reference already points
// at the owner. It is not tracked until added.
func (d Dependences[E]) CreateDependence(ctx context.Context) (E, error) {
	var zero E
	owner := d.slot.owner
	sess := owner.Record().Session()
	if sess == nil {
		return zero, fmt.Errorf("create %s: owner is not bound to a session", d.slot.field)
	}
	proto, err := sess.Prototype(owner)
	if err != nil {
		return zero, err
	}
	f := proto.Field(d.slot.field)
	if f == nil {
		return zero, fmt.Errorf("create %s: unknown field on %s", d.slot.field, proto.Name)
	}
	e, ok := f.NewTarget().(E)
	if !ok {
		return zero, fmt.Errorf("create %s: target is not %T", d.slot.field, zero)
	}
	e.Record().Bind(sess)
	SetRef(e, f.BackRef, owner)
	return e, nil
}
