package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry caches one Prototype per Go type.
type Registry struct {
	mu           sync.RWMutex
	byType       map[reflect.Type]*Prototype
	byName       map[string]*Prototype
	failed       map[reflect.Type]error
	group        singleflight.Group
	naming       Naming
	activeColumn string
}

type Option func(*Registry)

// WithNaming sets the table naming convention.
func WithNaming(n Naming) Option {
	return func(r *Registry) { r.naming = n }
}

// WithActiveColumn sets the default soft-delete column.
func WithActiveColumn(column string) Option {
	return func(r *Registry) {
		if column != "" {
			r.activeColumn = column
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byType:       make(map[reflect.Type]*Prototype),
		byName:       make(map[string]*Prototype),
		failed:       make(map[reflect.Type]error),
		activeColumn: "Active",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prototype returns the mapping of d's type, computing it on first use.
func (r *Registry) Prototype(d Describer) (*Prototype, error) {
	t := reflect.TypeOf(d)
	if t == nil {
		return nil, fmt.Errorf("prototype of nil")
	}

	r.mu.RLock()
	p, ok := r.byType[t]
	err := r.failed[t]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if err != nil {
		return nil, err
	}

	v, err, _ := r.group.Do(typeKey(t), func() (any, error) {
		return r.populate(t, d)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Prototype), nil
}

// Register eagerly computes the mapping of each type.
func (r *Registry) Register(ds ...Describer) error {
	for _, d := range ds {
		if _, err := r.Prototype(d); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the prototype registered under an entity name, or nil.
func (r *Registry) Lookup(name string) *Prototype {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns every registered prototype ordered by name.
func (r *Registry) All() []*Prototype {
	r.mu.RLock()
	protos := make([]*Prototype, 0, len(r.byName))
	for _, p := range r.byName {
		protos = append(protos, p)
	}
	r.mu.RUnlock()
	sort.Slice(protos, func(i, j int) bool { return protos[i].Name < protos[j].Name })
	return protos
}

// Target resolves the prototype a reference or dependent field points to.
// For owned fields it also checks that the back-reference is a reference on
// the target.
func (r *Registry) Target(owner *Prototype, f *Field) (*Prototype, error) {
	target := f.NewTarget()
	if target == nil {
		return nil, &MappingError{Entity: owner.Name, Field: f.Name, Reason: "field has no target"}
	}
	tp, err := r.Prototype(target)
	if err != nil {
		return nil, err
	}
	if f.IsOwned() {
		back := tp.Field(f.BackRef)
		if back == nil || back.Kind != KindReference {
			return nil, &MappingError{
				Entity: owner.Name,
				Field:  f.Name,
				Reason: fmt.Sprintf("back-reference %s.%s is not a reference", tp.Name, f.BackRef),
			}
		}
	}
	return tp, nil
}

func (r *Registry) populate(t reflect.Type, d Describer) (*Prototype, error) {
	r.mu.RLock()
	p, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	b := &Builder{}
	d.Describe(b)
	p, err := b.build(typeName(t), r.naming, r.activeColumn)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if other, taken := r.byName[p.Name]; taken && other != p {
			err = &MappingError{Entity: p.Name, Reason: "entity name registered by another type"}
		}
	}
	if err != nil {
		r.failed[t] = err
		return nil, err
	}
	r.byType[t] = p
	r.byName[p.Name] = p
	return p, nil
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// typeKey identifies t by import path, so same-named types from different
// packages populate separately.
func typeKey(t reflect.Type) string {
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	if t.Name() == "" {
		return prefix + t.String()
	}
	return prefix + t.PkgPath() + "." + t.Name()
}
