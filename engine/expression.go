package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// ExprEvaluator evaluates expr-lang expressions against the slot mapping.
// Used by branch nodes with evaluationType EXPRESSION, where the fixed
// operator set of EvaluateCondition is too narrow.
type ExprEvaluator struct{}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

func (e *ExprEvaluator) Eval(expression string, slots map[string]any) (any, error) {
	// Missing slots evaluate to nil instead of failing compilation; authored
	// expressions routinely reference slots that are filled later.
	program, err := expr.Compile(expression,
		expr.Env(slots),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, slots)
}

// EvalBool evaluates an expression expected to produce a boolean.
func (e *ExprEvaluator) EvalBool(expression string, slots map[string]any) (bool, error) {
	result, err := e.Eval(expression, slots)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %s evaluated to %T, expected boolean", expression, result)
	}
	return b, nil
}
