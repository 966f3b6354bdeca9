package manifest

import (
	"github.com/expr-lang/expr"

	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// EvaluateScoreExpr compiles and runs a small arithmetic expr-lang program
// (e.g. "identity*0.4 + palette*0.25") against env, returning a float64.
// Used for the auditor's composite-score override (auditor.composite_expr,
// evaluated by metrics.Composite), generalizing the teacher's
// ConditionEvaluator to arithmetic instead of boolean results. The retry
// manager's reject-rate stop predicate goes through EvaluateBoolExpr.
func EvaluateScoreExpr(program string, env map[string]interface{}) (float64, error) {
	compiled, err := expr.Compile(program, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return 0, errors.NewValidation(errors.CodeValidationField("auditor.composite_expr"), "auditor.composite_expr", "invalid expression: "+err.Error(), "check operator names and field references")
	}
	out, err := expr.Run(compiled, env)
	if err != nil {
		return 0, errors.NewSystem(errors.CodeSysIO, "evaluate expression", err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, errors.NewSystem(errors.CodeSysIO, "expression did not evaluate to a number", nil)
	}
	return v, nil
}

// EvaluateBoolExpr compiles and runs a boolean expr-lang predicate (e.g.
// "reject_rate > 0.30") against env.
func EvaluateBoolExpr(program string, env map[string]interface{}) (bool, error) {
	compiled, err := expr.Compile(program, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, errors.NewValidation(errors.CodeValidationField("retry.reject_rate_stop_expr"), "retry.reject_rate_stop_expr", "invalid expression: "+err.Error(), "check operator names and field references")
	}
	out, err := expr.Run(compiled, env)
	if err != nil {
		return false, errors.NewSystem(errors.CodeSysIO, "evaluate expression", err)
	}
	v, ok := out.(bool)
	if !ok {
		return false, errors.NewSystem(errors.CodeSysIO, "expression did not evaluate to a bool", nil)
	}
	return v, nil
}
