package entity

import (
	"context"
	"errors"
	"fmt"
)

// DependenceState tracks what a save must do with an owned entity.
type DependenceState int

const (
	Unknown DependenceState = iota
	Synchronized
	Created
	Modified
	Deleted
)

func (s DependenceState) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ErrDependenceDeleted is returned when assigning to a deleted dependence.
var ErrDependenceDeleted = errors.New("dependence is deleted")

// DependenceSlot is the untyped storage behind a Dependence.
type DependenceSlot struct {
	owner  Entity
	field  string
	state  DependenceState
	value  Entity
	loaded bool
}

// DependenceSlotOf returns the slot of a dependence field, creating it.
func DependenceSlotOf(owner Entity, field string) *DependenceSlot {
	return owner.Record().link(field, func() slot {
		return &DependenceSlot{owner: owner, field: field}
	}).(*DependenceSlot)
}

// PeekDependence returns the slot of a dependence field without creating it.
func PeekDependence(owner Entity, field string) *DependenceSlot {
	s, _ := owner.Record().link(field, nil).(*DependenceSlot)
	return s
}

// State is the stored state, except that a synchronized value edited in
// place since it was loaded or saved reports Modified.
func (s *DependenceSlot) State() DependenceState {
	if s.state == Synchronized && s.value != nil && s.value.Record().IsDirty() {
		return Modified
	}
	return s.state
}

func (s *DependenceSlot) Value() Entity { return s.value }

// Load fetches the owned entity on first use. No matching row leaves the
// state Unknown.
func (s *DependenceSlot) Load(ctx context.Context) error {
	if s.loaded || s.state != Unknown {
		return nil
	}
	items, err := findOwned(ctx, s.owner, s.field)
	if err != nil {
		return err
	}
	s.loaded = true
	if len(items) > 0 {
		s.value = items[0]
		s.state = Synchronized
	}
	return nil
}

// Assign replaces the owned entity and derives the state from it.
func (s *DependenceSlot) Assign(v Entity) error {
	if s.state == Deleted {
		return ErrDependenceDeleted
	}
	s.value = v
	s.loaded = true
	switch {
	case v.Record().ID() == nil:
		s.state = Created
	case v.Record().IsDirty():
		s.state = Modified
	default:
		s.state = Synchronized
	}
	return nil
}

// Delete loads the current value if needed and marks it for deletion.
func (s *DependenceSlot) Delete(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	s.state = Deleted
	return nil
}

// Commit records a successful save of the slot.
func (s *DependenceSlot) Commit() {
	switch s.State() {
	case Created, Modified:
		s.state = Synchronized
	}
}

func (s *DependenceSlot) snapshot() func() {
	state, value, loaded := s.state, s.value, s.loaded
	return func() { s.state, s.value, s.loaded = state, value, loaded }
}

// Dependence is a typed view over a single owned entity.
type Dependence[E Entity] struct {
	slot *DependenceSlot
}

// DependenceOf returns the typed view of owner's dependence field.
func DependenceOf[E Entity](owner Entity, field string) Dependence[E] {
	return Dependence[E]{slot: DependenceSlotOf(owner, field)}
}

// Get returns the owned entity, loading it on first use. ok is false when
// there is none.
func (d Dependence[E]) Get(ctx context.Context) (v E, ok bool, err error) {
	if err := d.slot.Load(ctx); err != nil {
		return v, false, err
	}
	if d.slot.value == nil {
		return v, false, nil
	}
	v, ok = d.slot.value.(E)
	if !ok {
		return v, false, fmt.Errorf("dependence %s holds %T", d.slot.field, d.slot.value)
	}
	return v, true, nil
}

func (d Dependence[E]) Set(v E) error { return d.slot.Assign(v) }

func (d Dependence[E]) Delete(ctx context.Context) error { return d.slot.Delete(ctx) }

func (d Dependence[E]) State() DependenceState { return d.slot.State() }

// IsDirty reports whether a save has work to do for this dependence.
func (d Dependence[E]) IsDirty() bool {
	switch d.slot.State() {
	case Created, Modified, Deleted:
		return true
	}
	return false
}

// findOwned queries the entities of owner's field through the back-reference.
// An owner without identifier owns nothing yet.
func findOwned(ctx context.Context, owner Entity, field string) ([]Entity, error) {
	b := owner.Record()
	if b.ID() == nil || b.Session() == nil {
		return nil, nil
	}
	sess := b.Session()
	proto, err := sess.Prototype(owner)
	if err != nil {
		return nil, err
	}
	f := proto.Field(field)
	if f == nil {
		return nil, fmt.Errorf("%s has no field %s", proto.Name, field)
	}
	filter, ok := f.NewTarget().(Entity)
	if !ok {
		return nil, fmt.Errorf("%s.%s: target is not an entity", proto.Name, field)
	}
	RefSlotOf(filter, f.BackRef).id = b.ID()
	items, err := sess.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load %s.%s: %w", proto.Name, field, err)
	}
	for _, item := range items {
		RefSlotOf(item, f.BackRef).target = owner
	}
	return items, nil
}
