package query

import (
	"errors"
	"fmt"
	"strings"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
	"rowgraph/internal/store"
)

var (
	// ErrMissingIdentifier is returned when an update or delete has no key.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrReferenceCycle is returned when a filter's references loop back.
	ErrReferenceCycle = errors.New("reference cycle")
)

// Mode selects how values reach the database.
type Mode int

const (
	// ModeParams binds values as statement parameters.
	ModeParams Mode = iota
	// ModeLiteral splices values into the statement text.
	ModeLiteral
)

// ParseMode maps a config value to a Mode, defaulting to ModeParams.
func ParseMode(s string) Mode {
	if s == "literal" {
		return ModeLiteral
	}
	return ModeParams
}

const DefaultLikeMarker = "#like#"

// Builder builds statements for registered entity types.
type Builder struct {
	reg        *metadata.Registry
	dialect    store.Dialect
	likeMarker string
	mode       Mode
}

type Option func(*Builder)

func WithLikeMarker(marker string) Option {
	return func(b *Builder) {
		if marker != "" {
			b.likeMarker = marker
		}
	}
}

func WithMode(m Mode) Option {
	return func(b *Builder) { b.mode = m }
}

func NewBuilder(reg *metadata.Registry, dialect store.Dialect, opts ...Option) *Builder {
	b := &Builder{reg: reg, dialect: dialect, likeMarker: DefaultLikeMarker}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Like returns a filter value matching text anywhere, with blanks as wildcards.
func (b *Builder) Like(text string) string {
	return b.likeMarker + "%" + strings.Join(strings.Fields(text), "%") + "%"
}

// BuildInsert collects every persisted field holding a value. A reference
// contributes its target's key and is skipped while that key is unset.
func (b *Builder) BuildInsert(e entity.Entity) (*Statement, error) {
	p, err := b.reg.Prototype(e)
	if err != nil {
		return nil, err
	}
	st := &Statement{Kind: Insert, Prototype: p, Table: p.Table}
	if id := e.Record().ID(); id != nil {
		st.Assignments = append(st.Assignments, Assignment{Column: p.Key.Column, Value: id})
	} else if p.Strategy == metadata.DatabaseGenerated && b.dialect.SupportsReturning() {
		st.Returning = p.Key.Column
	}
	st.Assignments = append(st.Assignments, b.assignments(p, e, false)...)
	if p.SoftDelete {
		st.Assignments = append(st.Assignments, Assignment{Column: p.ActiveColumn, Value: e.Record().Active()})
	}
	return st, nil
}

// BuildUpdate is BuildInsert's column set filtered by key. A reference
// emptied with Clear is written as NULL; one never loaded is left alone.
func (b *Builder) BuildUpdate(e entity.Entity) (*Statement, error) {
	p, err := b.reg.Prototype(e)
	if err != nil {
		return nil, err
	}
	id := e.Record().ID()
	if id == nil {
		return nil, fmt.Errorf("update %s: %w", p.Name, ErrMissingIdentifier)
	}
	return &Statement{
		Kind:        Update,
		Prototype:   p,
		Table:       p.Table,
		Assignments: b.assignments(p, e, true),
		Where:       []Condition{{Column: p.Key.Column, Op: "=", Value: id}},
	}, nil
}

// BuildDelete filters by key only. Whether the row is removed or flagged
// inactive is decided by Render.
func (b *Builder) BuildDelete(e entity.Entity) (*Statement, error) {
	p, err := b.reg.Prototype(e)
	if err != nil {
		return nil, err
	}
	return b.BuildDeleteByID(p, e.Record().ID())
}

// BuildDeleteByID builds a delete for a bare identifier.
func (b *Builder) BuildDeleteByID(p *metadata.Prototype, id any) (*Statement, error) {
	if id == nil {
		return nil, fmt.Errorf("delete %s: %w", p.Name, ErrMissingIdentifier)
	}
	return &Statement{
		Kind:      Delete,
		Prototype: p,
		Table:     p.Table,
		Where:     []Condition{{Column: p.Key.Column, Op: "=", Value: id}},
	}, nil
}

func (b *Builder) assignments(p *metadata.Prototype, e entity.Entity, clearRefs bool) []Assignment {
	rec := e.Record()
	var out []Assignment
	for _, f := range p.Fields {
		if !f.IsPersisted() {
			continue
		}
		switch f.Kind {
		case metadata.KindColumn:
			if rec.Has(f.Name) {
				out = append(out, Assignment{Column: f.Column, Value: rec.Get(f.Name)})
			}
		case metadata.KindReference:
			slot := entity.PeekRef(e, f.Name)
			if slot == nil {
				continue
			}
			if id := slot.ID(); id != nil {
				out = append(out, Assignment{Column: f.Column, Value: id})
			} else if clearRefs && slot.Cleared() {
				out = append(out, Assignment{Column: f.Column, Value: nil})
			}
		}
	}
	return out
}

// BuildSelect builds a query using filter as a query-by-example. The base
// table is aliased t0 and each reference is joined under a fresh alias;
// joined columns are aliased by field path ("Customer.Name").
func (b *Builder) BuildSelect(filter entity.Entity) (*Statement, error) {
	p, err := b.reg.Prototype(filter)
	if err != nil {
		return nil, err
	}
	st := &Statement{Kind: Select, Prototype: p, Table: p.Table}
	sb := &selectBuilder{b: b, st: st, onPath: make(map[*entity.Base]bool)}
	if p.SoftDelete {
		st.Where = append(st.Where, Condition{Alias: "t0", Column: p.ActiveColumn, Op: "=", Value: filter.Record().Active()})
	}
	if err := sb.walk(p, filter, "t0", ""); err != nil {
		return nil, err
	}
	return st, nil
}

type selectBuilder struct {
	b      *Builder
	st     *Statement
	next   int
	onPath map[*entity.Base]bool
}

func (sb *selectBuilder) alias() string {
	sb.next++
	return fmt.Sprintf("t%d", sb.next)
}

// walk projects p's columns under alias and adds filters for the values e
// holds. e may be nil for a plain projection.
func (sb *selectBuilder) walk(p *metadata.Prototype, e entity.Entity, alias, path string) error {
	if e != nil {
		rec := e.Record()
		if sb.onPath[rec] {
			return fmt.Errorf("select %s via %q: %w", p.Name, strings.TrimSuffix(path, "."), ErrReferenceCycle)
		}
		sb.onPath[rec] = true
		defer delete(sb.onPath, rec)
	}

	sb.st.Projections = append(sb.st.Projections, Projection{Alias: alias, Column: p.Key.Column, As: path + p.Key.Name})
	for _, f := range p.Columns() {
		sb.st.Projections = append(sb.st.Projections, Projection{Alias: alias, Column: f.Column, As: path + f.Name})
	}

	if e != nil {
		rec := e.Record()
		if id := rec.ID(); id != nil {
			sb.st.Where = append(sb.st.Where, Condition{Alias: alias, Column: p.Key.Column, Op: "=", Value: id})
		}
		for _, f := range p.Columns() {
			if rec.Has(f.Name) {
				sb.st.Where = append(sb.st.Where, sb.condition(alias, f.Column, rec.Get(f.Name)))
			}
		}
	}

	for _, f := range p.References() {
		target, err := sb.b.reg.Target(p, f)
		if err != nil {
			return err
		}
		joinAlias := sb.alias()
		sb.st.Joins = append(sb.st.Joins, Join{
			Left:         f.Optional,
			Table:        target.Table,
			Alias:        joinAlias,
			Column:       target.Key.Column,
			ParentAlias:  alias,
			ParentColumn: f.Column,
		})

		var sub entity.Entity
		if e != nil {
			if slot := entity.PeekRef(e, f.Name); slot != nil {
				switch slot.State() {
				case entity.RefIDOnly:
					sb.st.Where = append(sb.st.Where, Condition{Alias: alias, Column: f.Column, Op: "=", Value: slot.ID()})
				case entity.RefResolved:
					sub = slot.Target()
				}
			}
		}
		if sub != nil {
			if err := sb.walk(target, sub, joinAlias, path+f.Name+"."); err != nil {
				return err
			}
			continue
		}
		if err := sb.project(target, joinAlias, path+f.Name+"."); err != nil {
			return err
		}
	}
	return nil
}

// project selects a joined table's key and columns without descending
// further. Its own references are selected as bare keys under
// "path.Field.Key" so they load as identifiers.
func (sb *selectBuilder) project(p *metadata.Prototype, alias, path string) error {
	sb.st.Projections = append(sb.st.Projections, Projection{Alias: alias, Column: p.Key.Column, As: path + p.Key.Name})
	for _, f := range p.Columns() {
		sb.st.Projections = append(sb.st.Projections, Projection{Alias: alias, Column: f.Column, As: path + f.Name})
	}
	for _, f := range p.References() {
		target, err := sb.b.reg.Target(p, f)
		if err != nil {
			return err
		}
		sb.st.Projections = append(sb.st.Projections, Projection{Alias: alias, Column: f.Column, As: path + f.Name + "." + target.Key.Name})
	}
	return nil
}

func (sb *selectBuilder) condition(alias, column string, v any) Condition {
	if s, ok := v.(string); ok && strings.HasPrefix(s, sb.b.likeMarker) {
		return Condition{Alias: alias, Column: column, Op: "LIKE", Value: strings.TrimPrefix(s, sb.b.likeMarker)}
	}
	return Condition{Alias: alias, Column: column, Op: "=", Value: v}
}
