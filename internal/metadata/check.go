package metadata

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Check is a compiled validation rule.
type Check struct {
	Expression string
	Message    string
	program    *vm.Program
}

// Violated runs the rule against env.
func (c *Check) Violated(env map[string]any) (bool, error) {
	result, err := expr.Run(c.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate check %q: %w", c.Expression, err)
	}
	violated, _ := result.(bool)
	return violated, nil
}
