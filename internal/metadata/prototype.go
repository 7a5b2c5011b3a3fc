package metadata

// Describer is implemented by every mapped type. Describe is called once per
// type, on a throwaway instance, to register the mapping.
type Describer interface {
	Describe(b *Builder)
}

// Prototype is the cached mapping of one entity type. It is never modified
// after the registry publishes it.
type Prototype struct {
	Name         string
	Table        string
	Key          *Field
	Strategy     KeyStrategy
	Fields       []*Field // declaration order, key excluded
	ActiveColumn string
	SoftDelete   bool
	Link         bool // N-M linking entity: referenced ends are persisted first
	Checks       []*Check

	byName map[string]*Field
	ctor   func() Describer
}

// Field returns the named field, including the key, or nil.
func (p *Prototype) Field(name string) *Field {
	return p.byName[name]
}

// New returns a fresh instance of the mapped type.
func (p *Prototype) New() Describer {
	return p.ctor()
}

// Columns returns plain persisted columns in declaration order, key excluded.
func (p *Prototype) Columns() []*Field {
	return p.filter(func(f *Field) bool { return f.Kind == KindColumn && !f.Transient })
}

// References returns the many-to-one fields.
func (p *Prototype) References() []*Field {
	return p.filter(func(f *Field) bool { return f.Kind == KindReference && !f.Transient })
}

// Dependents returns the Dependence and Dependences fields in declaration order.
func (p *Prototype) Dependents() []*Field {
	return p.filter(func(f *Field) bool { return f.IsOwned() })
}

// HasDependents reports whether saving this type can cascade.
func (p *Prototype) HasDependents() bool {
	for _, f := range p.Fields {
		if f.IsOwned() {
			return true
		}
	}
	return false
}

// BoolColumns returns the column names stored as booleans.
func (p *Prototype) BoolColumns() []string {
	var cols []string
	for _, f := range p.Columns() {
		if f.Type == TypeBool {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

func (p *Prototype) filter(keep func(*Field) bool) []*Field {
	var out []*Field
	for _, f := range p.Fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
