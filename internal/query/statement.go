// Package query turns entities and their prototypes into SQL statements.
package query

import "rowgraph/internal/metadata"

type Kind int

const (
	Insert Kind = iota
	Update
	Delete
	Select
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "select"
	}
}

// Assignment is a column/value pair of an INSERT or UPDATE.
type Assignment struct {
	Column string
	Value  any
}

// Condition is one WHERE predicate. Op is "=" or "LIKE".
type Condition struct {
	Alias  string
	Column string
	Op     string
	Value  any
}

// Join attaches a referenced table under Alias.
type Join struct {
	Left         bool
	Table        string
	Alias        string
	Column       string // key column of the joined table
	ParentAlias  string
	ParentColumn string // foreign key column on the parent alias
}

// Projection is a selected column and the field path it materializes into.
type Projection struct {
	Alias  string
	Column string
	As     string
}

// Statement is a built but not yet rendered statement. Soft-delete handling
// for deletes is decided when rendering.
type Statement struct {
	Kind        Kind
	Prototype   *metadata.Prototype
	Table       string
	Assignments []Assignment
	Projections []Projection
	Joins       []Join
	Where       []Condition
	Returning   string // key column reported back by an insert
}

// Columns returns the assigned column names in order.
func (s *Statement) Columns() []string {
	cols := make([]string, len(s.Assignments))
	for i, a := range s.Assignments {
		cols[i] = a.Column
	}
	return cols
}

// Filter returns the condition on column under alias, if any.
func (s *Statement) Filter(alias, column string) (Condition, bool) {
	for _, c := range s.Where {
		if c.Alias == alias && c.Column == column {
			return c, true
		}
	}
	return Condition{}, false
}
