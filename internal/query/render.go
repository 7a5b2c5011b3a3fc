package query

import (
	"fmt"
	"strings"

	"rowgraph/internal/store"
)

// Render produces the statement text and its parameters. In literal mode
// the parameters are nil and values are part of the text.
func (b *Builder) Render(st *Statement) (string, []any) {
	var pb store.ParamBuilder
	if b.mode == ModeLiteral {
		pb = &literalParams{}
	} else {
		pb = b.dialect.NewParamBuilder()
	}
	r := &renderer{q: b.dialect.QuoteIdent, pb: pb}

	switch st.Kind {
	case Insert:
		r.insert(st)
	case Update:
		r.update(st)
	case Delete:
		r.deleteStmt(st)
	default:
		r.selectStmt(st)
	}
	return r.sb.String(), pb.Params()
}

type renderer struct {
	sb strings.Builder
	q  func(string) string
	pb store.ParamBuilder
}

func (r *renderer) insert(st *Statement) {
	cols := make([]string, len(st.Assignments))
	vals := make([]string, len(st.Assignments))
	for i, a := range st.Assignments {
		cols[i] = r.q(a.Column)
		vals[i] = r.pb.Add(a.Value)
	}
	fmt.Fprintf(&r.sb, "INSERT INTO %s (%s) VALUES (%s)", r.q(st.Table), strings.Join(cols, ", "), strings.Join(vals, ", "))
	if st.Returning != "" {
		fmt.Fprintf(&r.sb, " RETURNING %s", r.q(st.Returning))
	}
}

func (r *renderer) update(st *Statement) {
	sets := make([]string, len(st.Assignments))
	for i, a := range st.Assignments {
		sets[i] = r.q(a.Column) + " = " + r.pb.Add(a.Value)
	}
	fmt.Fprintf(&r.sb, "UPDATE %s SET %s", r.q(st.Table), strings.Join(sets, ", "))
	r.where(st.Where)
}

// deleteStmt flips the active column unless the type is hard-deleted.
func (r *renderer) deleteStmt(st *Statement) {
	if p := st.Prototype; p != nil && p.SoftDelete {
		fmt.Fprintf(&r.sb, "UPDATE %s SET %s = %s", r.q(st.Table), r.q(p.ActiveColumn), r.pb.Add(false))
	} else {
		fmt.Fprintf(&r.sb, "DELETE FROM %s", r.q(st.Table))
	}
	r.where(st.Where)
}

func (r *renderer) selectStmt(st *Statement) {
	cols := make([]string, len(st.Projections))
	for i, p := range st.Projections {
		cols[i] = p.Alias + "." + r.q(p.Column) + " AS " + r.q(p.As)
	}
	fmt.Fprintf(&r.sb, "SELECT %s FROM %s t0", strings.Join(cols, ", "), r.q(st.Table))
	for _, j := range st.Joins {
		kind := "INNER JOIN"
		if j.Left {
			kind = "LEFT JOIN"
		}
		fmt.Fprintf(&r.sb, " %s %s %s ON %s.%s = %s.%s",
			kind, r.q(j.Table), j.Alias, j.Alias, r.q(j.Column), j.ParentAlias, r.q(j.ParentColumn))
	}
	r.where(st.Where)
	if st.Prototype != nil {
		fmt.Fprintf(&r.sb, " ORDER BY t0.%s", r.q(st.Prototype.Key.Column))
	}
}

func (r *renderer) where(conds []Condition) {
	if len(conds) == 0 {
		return
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		col := r.q(c.Column)
		if c.Alias != "" {
			col = c.Alias + "." + col
		}
		if c.Value == nil {
			parts[i] = col + " IS NULL"
			continue
		}
		parts[i] = col + " " + c.Op + " " + r.pb.Add(c.Value)
	}
	r.sb.WriteString(" WHERE ")
	r.sb.WriteString(strings.Join(parts, " AND "))
}
