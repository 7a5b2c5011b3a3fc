package persistence

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
)

// validate runs the prototype's checks against e. A check evaluating to true
// is violated.
func (s *Service) validate(p *metadata.Prototype, e entity.Entity) error {
	if len(p.Checks) == 0 {
		return nil
	}
	env := checkEnv(p, e)
	var details []string
	for _, chk := range p.Checks {
		violated, err := chk.Violated(env)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if violated {
			details = append(details, chk.Message)
		}
	}
	if len(details) > 0 {
		return ValidationError(p.Name, details)
	}
	return nil
}

// checkEnv exposes every column by field name, unset ones as their type's
// zero value, and every reference by the key it points at.
func checkEnv(p *metadata.Prototype, e entity.Entity) map[string]any {
	rec := e.Record()
	env := make(map[string]any, len(p.Fields)+1)
	env[p.Key.Name] = rec.ID()
	for _, f := range p.Fields {
		switch f.Kind {
		case metadata.KindColumn:
			v := rec.Get(f.Name)
			if d, ok := v.(decimal.Decimal); ok {
				v = d.InexactFloat64()
			}
			if v == nil {
				v = zeroValue(f.Type)
			}
			env[f.Name] = v
		case metadata.KindReference:
			var id any
			if slot := entity.PeekRef(e, f.Name); slot != nil {
				id = slot.ID()
			}
			env[f.Name] = id
		}
	}
	return env
}
