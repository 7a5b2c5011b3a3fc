package metadata

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
)

// Builder collects the mapping of one type while its Describe method runs.
type Builder struct {
	name         string
	table        string
	ctor         func() Describer
	key          *Field
	strategy     KeyStrategy
	fields       []*Field
	activeColumn string
	hardDelete   bool
	link         bool
	checks       []*Check
	problems     []string
}

// FieldBuilder refines a field declared on a Builder.
type FieldBuilder struct {
	f *Field
}

// Name overrides the entity name, which defaults to the Go type name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Table overrides the table name produced by the naming convention.
func (b *Builder) Table(table string) *Builder {
	b.table = table
	return b
}

// Constructor registers the factory used to materialize rows.
func (b *Builder) Constructor(fn func() Describer) *Builder {
	b.ctor = fn
	return b
}

// Key marks the primary key field.
func (b *Builder) Key(name string, t FieldType, strategy KeyStrategy) *FieldBuilder {
	if b.key != nil {
		b.problems = append(b.problems, fmt.Sprintf("ambiguous key: %s and %s", b.key.Name, name))
	}
	b.key = &Field{Name: name, Column: name, Kind: KindColumn, Type: t}
	b.strategy = strategy
	return &FieldBuilder{f: b.key}
}

// Column declares a persisted scalar field.
func (b *Builder) Column(name string, t FieldType) *FieldBuilder {
	return b.add(&Field{Name: name, Column: name, Kind: KindColumn, Type: t})
}

// Reference declares a many-to-one field. Its column defaults to the key
// column of the target, or to the field name followed by "Id" when that
// column is already taken on this type.
func (b *Builder) Reference(name string, target func() Describer) *FieldBuilder {
	return b.add(&Field{Name: name, Kind: KindReference, newTarget: target})
}

// Dependence declares a single owned entity found through backRef on the target.
func (b *Builder) Dependence(name, backRef string, target func() Describer) *FieldBuilder {
	return b.add(&Field{Name: name, Kind: KindDependence, BackRef: backRef, newTarget: target})
}

// Dependences declares an owned collection found through backRef on the target.
func (b *Builder) Dependences(name, backRef string, target func() Describer) *FieldBuilder {
	return b.add(&Field{Name: name, Kind: KindDependences, BackRef: backRef, newTarget: target})
}

// ActiveColumn names the soft-delete column for this type.
func (b *Builder) ActiveColumn(column string) *Builder {
	b.activeColumn = column
	return b
}

// HardDelete makes deletes remove rows instead of flipping the active column.
func (b *Builder) HardDelete() *Builder {
	b.hardDelete = true
	return b
}

// Link marks an N-M linking entity.
func (b *Builder) Link() *Builder {
	b.link = true
	return b
}

// Check adds a rule evaluated before every insert and update. The expression
// sees the entity's field values by name and is violated when it yields true.
func (b *Builder) Check(expression, message string) *Builder {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		b.problems = append(b.problems, fmt.Sprintf("check %q: %v", expression, err))
		return b
	}
	b.checks = append(b.checks, &Check{Expression: expression, Message: message, program: prog})
	return b
}

func (b *Builder) add(f *Field) *FieldBuilder {
	for _, existing := range b.fields {
		if existing.Name == f.Name {
			b.problems = append(b.problems, fmt.Sprintf("duplicate field %s", f.Name))
		}
	}
	if f.IsOwned() && f.BackRef == "" {
		b.problems = append(b.problems, fmt.Sprintf("%s %s has no back-reference", f.Kind, f.Name))
	}
	if f.Kind != KindColumn && f.newTarget == nil {
		b.problems = append(b.problems, fmt.Sprintf("%s %s has no target", f.Kind, f.Name))
	}
	b.fields = append(b.fields, f)
	return &FieldBuilder{f: f}
}

// Column overrides the column name.
func (fb *FieldBuilder) Column(column string) *FieldBuilder {
	fb.f.Column = column
	return fb
}

// Transient excludes the field from persistence.
func (fb *FieldBuilder) Transient() *FieldBuilder {
	fb.f.Transient = true
	return fb
}

// Optional joins the reference with a LEFT JOIN so rows without it are kept.
func (fb *FieldBuilder) Optional() *FieldBuilder {
	fb.f.Optional = true
	return fb
}

// Precision sets the decimal scale used when creating the column.
func (fb *FieldBuilder) Precision(scale int) *FieldBuilder {
	fb.f.Precision = scale
	return fb
}

func (b *Builder) build(typeName string, naming Naming, activeColumn string) (*Prototype, error) {
	name := b.name
	if name == "" {
		name = typeName
	}
	if len(b.problems) > 0 {
		return nil, &MappingError{Entity: name, Reason: b.problems[0]}
	}
	if b.ctor == nil {
		return nil, &MappingError{Entity: name, Reason: "no constructor registered"}
	}

	key, fields := b.keyField(name)
	if key.Transient {
		return nil, &MappingError{Entity: name, Field: key.Name, Reason: "key cannot be transient"}
	}

	p := &Prototype{
		Name:         name,
		Table:        b.table,
		Key:          key,
		Strategy:     b.strategy,
		Fields:       fields,
		ActiveColumn: activeColumn,
		SoftDelete:   !b.hardDelete,
		Link:         b.link,
		Checks:       b.checks,
		byName:       make(map[string]*Field, len(fields)+1),
		ctor:         b.ctor,
	}
	if p.Table == "" {
		p.Table = naming.TableName(name)
	}
	if b.activeColumn != "" {
		p.ActiveColumn = b.activeColumn
	}
	if !p.SoftDelete {
		p.ActiveColumn = ""
	}

	p.byName[key.Name] = key
	columns := map[string]string{key.Column: key.Name}
	for _, f := range fields {
		if f.Kind == KindReference && f.Column == "" {
			f.Column = referenceColumn(f, columns, fields)
		}
	}
	for _, f := range fields {
		if _, dup := p.byName[f.Name]; dup {
			return nil, &MappingError{Entity: name, Field: f.Name, Reason: "field collides with key"}
		}
		p.byName[f.Name] = f
		if !f.IsPersisted() {
			continue
		}
		if other, dup := columns[f.Column]; dup {
			return nil, &MappingError{Entity: name, Field: f.Name, Reason: "column " + f.Column + " already mapped by " + other}
		}
		columns[f.Column] = f.Name
	}
	if p.SoftDelete {
		if other, dup := columns[p.ActiveColumn]; dup {
			return nil, &MappingError{Entity: name, Field: other, Reason: "field uses the active column " + p.ActiveColumn}
		}
	}
	return p, nil
}

// keyField returns the declared key. Without one, a column named
// {Name}Id becomes the key; otherwise an implicit integer {Name}Id is used.
func (b *Builder) keyField(name string) (*Field, []*Field) {
	if b.key != nil {
		return b.key, b.fields
	}
	for i, f := range b.fields {
		if f.Kind == KindColumn && f.Name == name+"Id" {
			fields := append(append([]*Field{}, b.fields[:i]...), b.fields[i+1:]...)
			return f, fields
		}
	}
	return &Field{Name: name + "Id", Column: name + "Id", Kind: KindColumn, Type: TypeInt}, b.fields
}

// referenceColumn picks the target's key column unless the key or another
// field of the owner already uses it.
func referenceColumn(f *Field, columns map[string]string, fields []*Field) string {
	col := targetKeyColumn(f.NewTarget())
	if col == "" {
		return f.Name + "Id"
	}
	if _, taken := columns[col]; taken {
		return f.Name + "Id"
	}
	for _, other := range fields {
		if other != f && other.Column == col {
			return f.Name + "Id"
		}
	}
	return col
}

// targetKeyColumn describes d into a scratch builder and reports its key
// column without registering it, so self and mutual references resolve.
func targetKeyColumn(d Describer) string {
	if d == nil {
		return ""
	}
	tb := &Builder{}
	d.Describe(tb)
	name := tb.name
	if name == "" {
		name = typeName(reflect.TypeOf(d))
	}
	key, _ := tb.keyField(name)
	if key.Column == "" {
		return key.Name
	}
	return key.Column
}
