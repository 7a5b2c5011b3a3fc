package metadata

import "github.com/go-openapi/inflect"

// Naming derives table names from entity names.
type Naming int

const (
	// NamingTypeName uses the entity name unchanged.
	NamingTypeName Naming = iota
	// NamingSnakePlural turns "InvoiceLine" into "invoice_lines".
	NamingSnakePlural
)

// ParseNaming maps a config value to a Naming, defaulting to NamingTypeName.
func ParseNaming(s string) Naming {
	if s == "snake_plural" {
		return NamingSnakePlural
	}
	return NamingTypeName
}

func (n Naming) TableName(entity string) string {
	if n == NamingSnakePlural {
		return inflect.Pluralize(inflect.Underscore(entity))
	}
	return entity
}
