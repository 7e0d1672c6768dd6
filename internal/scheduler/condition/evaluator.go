// Package condition evaluates a Condition node's boolean expression
// against the current template context, caching compiled programs since
// the same expression is typically re-evaluated every loop iteration.
package condition

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dipeo/dipeo/internal/domainerr"
)

// Evaluator compiles and runs expr-lang expressions, caching compiled
// programs across calls.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEvaluator returns an Evaluator with an empty compile cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression against vars and requires a boolean result,
// matching a Condition node's single output handle semantics.
func (e *Evaluator) Evaluate(expression string, vars map[string]any) (bool, error) {
	if expression == "" {
		return false, domainerr.NewValidationError("expression", "condition expression is empty")
	}

	program, err := e.compiled(expression)
	if err != nil {
		return false, domainerr.NewValidationError("expression", fmt.Sprintf("compiling %q: %v", expression, err))
	}

	result, err := expr.Run(program, vars)
	if err != nil {
		return false, domainerr.NewHandlerError("", "", "condition", 0, fmt.Sprintf("evaluating %q: %v", expression, err), err, false)
	}

	b, ok := result.(bool)
	if !ok {
		return false, domainerr.NewValidationError("expression", fmt.Sprintf("condition %q did not evaluate to a bool, got %T", expression, result))
	}
	return b, nil
}

func (e *Evaluator) compiled(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()
	return program, nil
}
