package engine

import (
	"strconv"
	"strings"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// Route computes the next target after a step completes. The result is either
// a step id or models.CompletedTarget. Decision order, first match wins:
//
//  1. SUCCESS outcome with an on-success route
//  2. FAILURE/FLAGGED outcome with an on-failure route
//  3. ordered conditions, first whose variable is defined and comparison holds
//  4. declared default next step
//  5. sequential advance by array position (COMPLETED past the last step)
//
// A FLAGGED outcome that reaches past rule 2 does not route at all: the run is
// held at the current step for review. Callers detect that case via outcome,
// not via Route.
func Route(step models.Step, outcome models.Outcome, ctx Context, steps []models.Step) string {
	if r := step.Routes; r != nil {
		if outcome == models.SuccessOutcome && r.OnSuccessStepID != "" {
			return r.OnSuccessStepID
		}
		if (outcome == models.FailureOutcome || outcome == models.FlaggedOutcome) && r.OnFailureStepID != "" {
			return r.OnFailureStepID
		}
		for _, cond := range r.Conditions {
			left, defined := Lookup(ctx, cond.Variable)
			if !defined {
				continue
			}
			if Compare(cond.Operator, left, cond.Value) {
				return cond.TargetStepID
			}
		}
		if r.DefaultNextStepID != "" {
			return r.DefaultNextStepID
		}
	}

	// Sequential fallback.
	for i, s := range steps {
		if s.ID == step.ID {
			if i+1 < len(steps) {
				return steps[i+1].ID
			}
			return models.CompletedTarget
		}
	}
	return models.CompletedTarget
}

// Compare applies one routing operator. When both operands parse as numbers
// the ordering operators (and equality) compare numerically; otherwise the
// comparison is on strings.
func Compare(operator string, left any, right string) bool {
	ls := Stringify(left)
	ln, lerr := strconv.ParseFloat(strings.TrimSpace(ls), 64)
	rn, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	numeric := lerr == nil && rerr == nil

	switch operator {
	case ">":
		return numeric && ln > rn
	case "<":
		return numeric && ln < rn
	case ">=":
		return numeric && ln >= rn
	case "<=":
		return numeric && ln <= rn
	case "==":
		if numeric {
			return ln == rn
		}
		return ls == right
	case "!=":
		if numeric {
			return ln != rn
		}
		return ls != right
	case "contains":
		return strings.Contains(ls, right)
	case "startsWith":
		return strings.HasPrefix(ls, right)
	case "endsWith":
		return strings.HasSuffix(ls, right)
	}
	return false
}
