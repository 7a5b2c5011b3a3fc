package metadata

import "fmt"

// MappingError reports a type whose mapping cannot be satisfied. It is
// returned every time the type is looked up.
type MappingError struct {
	Entity string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("mapping %s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("mapping %s: %s", e.Entity, e.Reason)
}
