package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
)

func threeSteps() []models.Step {
	return []models.Step{
		{ID: "step-1", Action: models.InputAction},
		{ID: "step-2", Action: models.InputAction},
		{ID: "step-3", Action: models.InputAction},
	}
}

func TestRoute(t *testing.T) {
	steps := threeSteps()

	t.Run("SequentialDefault", func(t *testing.T) {
		next := engine.Route(steps[0], models.SuccessOutcome, engine.Context{}, steps)
		assert.Equal(t, "step-2", next)
	})

	t.Run("LastStepCompletes", func(t *testing.T) {
		next := engine.Route(steps[2], models.SuccessOutcome, engine.Context{}, steps)
		assert.Equal(t, models.CompletedTarget, next)
	})

	t.Run("SuccessRouteBeatsConditions", func(t *testing.T) {
		step := steps[0]
		step.Routes = &models.Routes{
			OnSuccessStepID: "step-3",
			Conditions: []models.RouteCondition{
				{Variable: "severity", Operator: "==", Value: "Critical", TargetStepID: "step-2"},
			},
		}
		ctx := engine.Context{"severity": "Critical"}
		assert.Equal(t, "step-3", engine.Route(step, models.SuccessOutcome, ctx, steps))
	})

	t.Run("FailureRoute", func(t *testing.T) {
		step := steps[0]
		step.Routes = &models.Routes{OnFailureStepID: "step-3"}
		assert.Equal(t, "step-3", engine.Route(step, models.FailureOutcome, engine.Context{}, steps))
		assert.Equal(t, "step-3", engine.Route(step, models.FlaggedOutcome, engine.Context{}, steps))
	})

	t.Run("ConditionShortCircuit", func(t *testing.T) {
		step := steps[0]
		step.Routes = &models.Routes{
			Conditions: []models.RouteCondition{
				{Variable: "amount", Operator: ">", Value: "10", TargetStepID: "step-2"},
				{Variable: "amount", Operator: ">", Value: "5", TargetStepID: "step-3"},
			},
		}
		ctx := engine.Context{"amount": 50.0}
		assert.Equal(t, "step-2", engine.Route(step, models.FailureOutcome, ctx, steps))
	})

	t.Run("UndefinedVariableSkipsCondition", func(t *testing.T) {
		step := steps[0]
		step.Routes = &models.Routes{
			Conditions: []models.RouteCondition{
				{Variable: "not_bound", Operator: "==", Value: "x", TargetStepID: "step-3"},
			},
			DefaultNextStepID: "step-2",
		}
		assert.Equal(t, "step-2", engine.Route(step, models.FailureOutcome, engine.Context{}, steps))
	})

	t.Run("GatewayConditions", func(t *testing.T) {
		gateway := models.Step{
			ID:     "gw",
			Action: models.GatewayAction,
			Routes: &models.Routes{
				Conditions: []models.RouteCondition{
					{Variable: "severity", Operator: "==", Value: "Critical", TargetStepID: "step-escalate"},
				},
				DefaultNextStepID: "step-normal",
			},
		}
		all := append(steps,
			models.Step{ID: "step-escalate"}, models.Step{ID: "step-normal"}, gateway)

		assert.Equal(t, "step-escalate",
			engine.Route(gateway, models.SuccessOutcome, engine.Context{"severity": "Critical"}, all))
		assert.Equal(t, "step-normal",
			engine.Route(gateway, models.SuccessOutcome, engine.Context{"severity": "Low"}, all))
	})

	t.Run("ExplicitCompletedTarget", func(t *testing.T) {
		step := steps[0]
		step.Routes = &models.Routes{OnFailureStepID: models.CompletedTarget}
		assert.Equal(t, models.CompletedTarget, engine.Route(step, models.FailureOutcome, engine.Context{}, steps))
	})
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		left     any
		right    string
		expected bool
	}{
		{"NumericGreater", ">", 85.0, "70", true},
		{"NumericGreaterFalse", ">", 50.0, "70", false},
		{"NumericStringOperand", ">=", "70", "70", true},
		{"NumericEquality", "==", "3.0", "3", true},
		{"StringEquality", "==", "Critical", "Critical", true},
		{"StringInequality", "!=", "Low", "Critical", true},
		{"Contains", "contains", "order-1234-eu", "1234", true},
		{"StartsWith", "startsWith", "INV-2026", "INV", true},
		{"EndsWith", "endsWith", "report.pdf", ".pdf", true},
		{"OrderingNeedsNumbers", "<", "apple", "banana", false},
		{"UnknownOperator", "~=", "a", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, engine.Compare(tt.operator, tt.left, tt.right))
		})
	}
}
