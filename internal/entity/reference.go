package entity

import (
	"context"
	"fmt"
)

// RefState is the resolution state of a reference.
type RefState int

const (
	RefEmpty RefState = iota
	RefIDOnly
	RefResolved
)

func (s RefState) String() string {
	switch s {
	case RefIDOnly:
		return "id_only"
	case RefResolved:
		return "resolved"
	default:
		return "empty"
	}
}

// RefSlot is the untyped storage behind a Reference.
type RefSlot struct {
	id      any
	target  Entity
	cleared bool
}

// ID returns the referenced identifier. A resolved target wins over a bare id
// so that keys assigned to the target after the link are seen.
func (s *RefSlot) ID() any {
	if s.target != nil {
		return s.target.Record().ID()
	}
	return s.id
}

func (s *RefSlot) Target() Entity { return s.target }

func (s *RefSlot) State() RefState {
	switch {
	case s.target != nil:
		return RefResolved
	case s.id != nil:
		return RefIDOnly
	default:
		return RefEmpty
	}
}

// Cleared reports whether the reference was emptied by Clear since it was
// last set, as opposed to never having been loaded.
func (s *RefSlot) Cleared() bool { return s.cleared && s.id == nil && s.target == nil }

func (s *RefSlot) snapshot() func() {
	id, target, cleared := s.id, s.target, s.cleared
	return func() { s.id, s.target, s.cleared = id, target, cleared }
}

// RefSlotOf returns the slot of a reference field, creating an empty one.
func RefSlotOf(owner Entity, field string) *RefSlot {
	return owner.Record().link(field, func() slot { return &RefSlot{} }).(*RefSlot)
}

// PeekRef returns the slot of a reference field without creating it.
func PeekRef(owner Entity, field string) *RefSlot {
	s, _ := owner.Record().link(field, nil).(*RefSlot)
	return s
}

// SetRef points a reference field at target and marks the owner dirty.
func SetRef(owner Entity, field string, target Entity) {
	s := RefSlotOf(owner, field)
	s.id, s.target, s.cleared = nil, target, false
	owner.Record().MarkDirty()
}

// SetRefID points a reference field at an identifier without resolving it.
func SetRefID(owner Entity, field string, id any) {
	s := RefSlotOf(owner, field)
	s.id, s.target, s.cleared = id, nil, false
	owner.Record().MarkDirty()
}

// Reference is a typed view over a many-to-one field.
type Reference[E Entity] struct {
	owner Entity
	field string
}

// ReferenceOf returns the typed view of owner's reference field.
func ReferenceOf[E Entity](owner Entity, field string) Reference[E] {
	return Reference[E]{owner: owner, field: field}
}

func (r Reference[E]) slot() *RefSlot { return RefSlotOf(r.owner, r.field) }

// Get returns the resolved target.
func (r Reference[E]) Get() (E, bool) {
	var zero E
	t := r.slot().target
	if t == nil {
		return zero, false
	}
	e, ok := t.(E)
	return e, ok
}

// Set resolves the reference to v.
func (r Reference[E]) Set(v E) {
	SetRef(r.owner, r.field, v)
}

// SetID points the reference at an identifier without resolving it.
func (r Reference[E]) SetID(id any) {
	SetRefID(r.owner, r.field, id)
}

// Clear empties the reference.
func (r Reference[E]) Clear() {
	s := r.slot()
	if s.id == nil && s.target == nil {
		return
	}
	s.id, s.target, s.cleared = nil, nil, true
	r.owner.Record().MarkDirty()
}

func (r Reference[E]) ID() any { return r.slot().ID() }

func (r Reference[E]) State() RefState { return r.slot().State() }

// Resolve loads the target of an id-only reference through the owner's session.
func (r Reference[E]) Resolve(ctx context.Context) (E, error) {
	var zero E
	s := r.slot()
	switch s.State() {
	case RefResolved:
		e, ok := s.target.(E)
		if !ok {
			return zero, fmt.Errorf("reference %s holds %T", r.field, s.target)
		}
		return e, nil
	case RefEmpty:
		return zero, nil
	}

	sess := r.owner.Record().Session()
	if sess == nil {
		return zero, fmt.Errorf("resolve %s: entity is not bound to a session", r.field)
	}
	proto, err := sess.Prototype(r.owner)
	if err != nil {
		return zero, err
	}
	f := proto.Field(r.field)
	if f == nil {
		return zero, fmt.Errorf("resolve %s: unknown field on %s", r.field, proto.Name)
	}
	template, ok := f.NewTarget().(Entity)
	if !ok {
		return zero, fmt.Errorf("resolve %s: target is not an entity", r.field)
	}
	found, err := sess.Get(ctx, template, s.id)
	if err != nil {
		return zero, err
	}
	e, ok := found.(E)
	if !ok {
		return zero, fmt.Errorf("reference %s resolved to %T", r.field, found)
	}
	s.target = found
	return e, nil
}
