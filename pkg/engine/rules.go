package engine

import (
	"github.com/expr-lang/expr"
	"github.com/pkg/errors"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// Rule names accepted by COMPARE and VALIDATE steps.
const (
	RuleGreaterThan    = "GREATER_THAN"
	RuleLessThan       = "LESS_THAN"
	RuleGreaterOrEqual = "GREATER_OR_EQUAL"
	RuleLessOrEqual    = "LESS_OR_EQUAL"
	RuleEquals         = "EQUALS"
	RuleNotEquals      = "NOT_EQUALS"
	RuleContains       = "CONTAINS"
)

var ruleOperators = map[string]string{
	RuleGreaterThan:    ">",
	RuleLessThan:       "<",
	RuleGreaterOrEqual: ">=",
	RuleLessOrEqual:    "<=",
	RuleEquals:         "==",
	RuleNotEquals:      "!=",
	RuleContains:       "contains",
}

// EvaluateRule runs a COMPARE/VALIDATE step's rule against its resolved
// config. The step's output is the evaluated result, not raw user entry.
//
// A mismatch is a routable business outcome, not an error: it yields FAILURE
// when the step declares routes (so the failure path or conditions decide what
// happens next) and FLAGGED when the step declares no routes at all, since
// with nowhere to send the mismatch the run must be held for review.
func EvaluateRule(step models.Step, cfg models.StepConfig) (models.Outcome, any, error) {
	op, ok := ruleOperators[cfg.Rule]
	if !ok {
		return models.FlaggedOutcome, nil, &ConfigError{StepID: step.ID, Field: "rule", Detail: "unknown rule " + cfg.Rule}
	}
	passed := Compare(op, cfg.Target, cfg.Value)
	output := map[string]any{
		"passed": passed,
		"rule":   cfg.Rule,
		"target": cfg.Target,
		"value":  cfg.Value,
	}
	if passed {
		return models.SuccessOutcome, output, nil
	}
	if step.Routes != nil {
		return models.FailureOutcome, output, nil
	}
	return models.FlaggedOutcome, output, nil
}

// EvaluateFormula computes a CALCULATE step's formula against the run context.
// The context is exposed as the expression environment, so formulas reference
// the same variable names templates do (step_1_output, custom names, trigger).
func EvaluateFormula(formula string, ctx Context) (any, error) {
	if formula == "" {
		return nil, errors.New("empty formula")
	}
	env := make(map[string]any, len(ctx))
	for k, v := range ctx {
		env[k] = v
	}
	result, err := expr.Eval(formula, env)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluating formula %q", formula)
	}
	return result, nil
}
