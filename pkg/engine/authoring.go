package engine

import (
	"fmt"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Problem is one authoring-time finding on a procedure definition.
type Problem struct {
	Severity Severity
	StepID   string
	Message  string
}

func (p Problem) String() string {
	if p.StepID == "" {
		return fmt.Sprintf("%s: %s", p.Severity, p.Message)
	}
	return fmt.Sprintf("%s: step %s: %s", p.Severity, p.StepID, p.Message)
}

// CheckProcedure validates a procedure definition before publication. Errors
// block publication; warnings flag likely authoring bugs (routing-only steps
// without routes, colliding output variable names) that still execute safely.
func CheckProcedure(p models.Procedure) []Problem {
	var problems []Problem

	if len(p.Steps) == 0 {
		problems = append(problems, Problem{Severity: SeverityError, Message: "procedure has no steps"})
		return problems
	}

	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			problems = append(problems, Problem{Severity: SeverityError, Message: "step with empty id"})
			continue
		}
		if seen[s.ID] {
			problems = append(problems, Problem{Severity: SeverityError, StepID: s.ID, Message: "duplicate step id"})
		}
		seen[s.ID] = true
	}

	vars := make(map[string]string)
	for _, s := range p.Steps {
		if v := s.Config.OutputVariable; v != "" {
			if prev, ok := vars[v]; ok {
				problems = append(problems, Problem{
					Severity: SeverityWarning,
					StepID:   s.ID,
					Message:  fmt.Sprintf("output variable %q collides with step %s; later values overwrite earlier ones", v, prev),
				})
			}
			vars[v] = s.ID
		}

		if s.Action.RoutingOnly() && s.Routes == nil {
			problems = append(problems, Problem{
				Severity: SeverityWarning,
				StepID:   s.ID,
				Message:  fmt.Sprintf("%s step has no routes; it will fall back to sequential advance", s.Action),
			})
		}

		if s.Routes != nil {
			for _, target := range routeTargets(*s.Routes) {
				if target == "" || target == models.CompletedTarget {
					continue
				}
				if !seen[target] {
					problems = append(problems, Problem{
						Severity: SeverityError,
						StepID:   s.ID,
						Message:  fmt.Sprintf("route target %q names no step", target),
					})
				}
			}
		}
	}
	return problems
}

// HasErrors reports whether any problem is severe enough to block publication.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

func routeTargets(r models.Routes) []string {
	targets := []string{r.DefaultNextStepID, r.OnSuccessStepID, r.OnFailureStepID}
	for _, c := range r.Conditions {
		targets = append(targets, c.TargetStepID)
	}
	return targets
}
