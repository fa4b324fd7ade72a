package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
)

func TestEvaluateRule(t *testing.T) {
	routed := models.Step{
		ID:     "check",
		Action: models.ValidateAction,
		Routes: &models.Routes{OnSuccessStepID: "step-3", OnFailureStepID: models.CompletedTarget},
	}
	unrouted := models.Step{ID: "check", Action: models.ValidateAction}

	t.Run("PassingRule", func(t *testing.T) {
		cfg := models.StepConfig{Rule: engine.RuleGreaterThan, Target: "85", Value: "70"}
		outcome, output, err := engine.EvaluateRule(routed, cfg)

		assert.NoError(t, err)
		assert.Equal(t, models.SuccessOutcome, outcome)
		assert.Equal(t, true, output.(map[string]any)["passed"])
	})

	t.Run("MismatchWithRoutesFails", func(t *testing.T) {
		cfg := models.StepConfig{Rule: engine.RuleGreaterThan, Target: "50", Value: "70"}
		outcome, output, err := engine.EvaluateRule(routed, cfg)

		assert.NoError(t, err)
		assert.Equal(t, models.FailureOutcome, outcome)
		assert.Equal(t, false, output.(map[string]any)["passed"])
	})

	t.Run("MismatchWithoutRoutesFlags", func(t *testing.T) {
		cfg := models.StepConfig{Rule: engine.RuleEquals, Target: "a", Value: "b"}
		outcome, _, err := engine.EvaluateRule(unrouted, cfg)

		assert.NoError(t, err)
		assert.Equal(t, models.FlaggedOutcome, outcome)
	})

	t.Run("UnknownRule", func(t *testing.T) {
		cfg := models.StepConfig{Rule: "SOMETHING_ELSE"}
		outcome, _, err := engine.EvaluateRule(routed, cfg)

		assert.Error(t, err)
		assert.Equal(t, models.FlaggedOutcome, outcome)
		var cfgErr *engine.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("ContainsRule", func(t *testing.T) {
		cfg := models.StepConfig{Rule: engine.RuleContains, Target: "high-priority-eu", Value: "priority"}
		outcome, _, err := engine.EvaluateRule(routed, cfg)

		assert.NoError(t, err)
		assert.Equal(t, models.SuccessOutcome, outcome)
	})
}

func TestEvaluateFormula(t *testing.T) {
	ctx := engine.Context{
		"step_1_output": 85.0,
		"quantity":      4,
	}

	t.Run("Arithmetic", func(t *testing.T) {
		result, err := engine.EvaluateFormula("step_1_output * quantity", ctx)
		assert.NoError(t, err)
		assert.Equal(t, 340.0, result)
	})

	t.Run("NestedAccess", func(t *testing.T) {
		ctx := engine.Context{"order": map[string]any{"output": 12.0}}
		result, err := engine.EvaluateFormula("order.output + 1", ctx)
		assert.NoError(t, err)
		assert.Equal(t, 13.0, result)
	})

	t.Run("BadFormula", func(t *testing.T) {
		_, err := engine.EvaluateFormula("step_1_output *", ctx)
		assert.Error(t, err)
	})

	t.Run("EmptyFormula", func(t *testing.T) {
		_, err := engine.EvaluateFormula("", ctx)
		assert.Error(t, err)
	})
}
