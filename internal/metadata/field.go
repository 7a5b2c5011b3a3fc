package metadata

import "fmt"

// FieldKind classifies a mapped field. It is fixed when the type is registered.
type FieldKind int

const (
	KindColumn FieldKind = iota
	KindReference
	KindDependence
	KindDependences
)

func (k FieldKind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindReference:
		return "reference"
	case KindDependence:
		return "dependence"
	case KindDependences:
		return "dependences"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldType is the storage type of a column or key.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeDecimal
	TypeBool
	TypeTime
	TypeUUID
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "boolean"
	case TypeTime:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// KeyStrategy says who assigns the primary key of a new row.
type KeyStrategy int

const (
	// SelfAssigned keys come from the caller or, when unset, from the key vault.
	SelfAssigned KeyStrategy = iota
	// DatabaseGenerated keys are produced by the database on insert.
	DatabaseGenerated
	// Unmanaged keys must always be supplied by the caller.
	Unmanaged
)

func (s KeyStrategy) String() string {
	switch s {
	case SelfAssigned:
		return "self_assigned"
	case DatabaseGenerated:
		return "database_generated"
	case Unmanaged:
		return "unmanaged"
	default:
		return fmt.Sprintf("KeyStrategy(%d)", int(s))
	}
}

type Field struct {
	Name      string
	Column    string
	Kind      FieldKind
	Type      FieldType
	Transient bool
	Optional  bool   // references only: joined with LEFT JOIN
	BackRef   string // dependence(s) only: reference field on the target pointing at the owner
	Precision int    // decimal scale used for DDL

	newTarget func() Describer
}

// IsPersisted reports whether the field maps to a column of the owning table.
func (f *Field) IsPersisted() bool {
	if f.Transient {
		return false
	}
	return f.Kind == KindColumn || f.Kind == KindReference
}

// IsOwned reports whether the field holds entities owned by the declaring entity.
func (f *Field) IsOwned() bool {
	return f.Kind == KindDependence || f.Kind == KindDependences
}

// NewTarget returns a fresh instance of the related type, or nil for plain columns.
func (f *Field) NewTarget() Describer {
	if f.newTarget == nil {
		return nil
	}
	return f.newTarget()
}
