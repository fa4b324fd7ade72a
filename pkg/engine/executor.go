package engine

import (
	"time"

	"github.com/pkg/errors"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// AssignmentNotice is a side-effect intent: someone now owns the run.
type AssignmentNotice struct {
	AssigneeID string
	StepID     string
}

// CompletionNotice is a side-effect intent: the run finished.
type CompletionNotice struct {
	UserID string
}

// Transition is the outcome of one CompleteStep call: the new run value plus
// the notification intents the caller should emit best-effort. Warnings carry
// authoring defects (bad route targets) that were degraded safely but should
// be logged loudly.
type Transition struct {
	Run        models.Run
	Assignment *AssignmentNotice
	Completion *CompletionNotice
	Warnings   []error
}

// CompleteStep performs one "complete current step" transition as a pure
// computation: validate the submitted output, append the log entry, route,
// and re-resolve ownership. The returned run is a fresh value; the input run
// is never mutated. All I/O (persistence, notification) belongs to the caller.
func CompleteStep(run models.Run, proc models.Procedure, output any, outcome models.Outcome, now time.Time) (Transition, error) {
	step, ok := run.CurrentStep(proc)
	if !ok {
		return Transition{}, errors.Errorf("run %s has no current step (index %d of %d)", run.ID, run.CurrentStepIndex, len(proc.Steps))
	}

	resolved := ResolveConfig(step.Config, run.Log, proc, run.TriggerContext)
	if err := ValidateInput(step, output, resolved); err != nil {
		return Transition{}, err
	}

	next := run
	next.Log = append(append([]models.LogEntry(nil), run.Log...), models.LogEntry{
		StepID:    step.ID,
		StepTitle: step.Title,
		Action:    step.Action,
		Output:    output,
		Outcome:   outcome,
		LoggedAt:  now,
	})

	// A FLAGGED outcome with no explicit failure route holds the run at the
	// current step for review instead of advancing.
	if outcome == models.FlaggedOutcome && (step.Routes == nil || step.Routes.OnFailureStepID == "") {
		next.Status = models.FlaggedRunStatus
		return Transition{Run: next}, nil
	}

	t := Transition{}
	ctx := BuildContext(proc, next.Log).WithTrigger(run.TriggerContext)
	target := Route(step, outcome, ctx, proc.Steps)

	if target == models.CompletedTarget {
		next.Status = models.CompletedRunStatus
		next.CurrentStepIndex = len(proc.Steps)
		completedAt := now
		next.CompletedAt = &completedAt
		t.Run = next
		t.Completion = &CompletionNotice{UserID: run.StartedBy}
		return t, nil
	}

	nextStep, idx := proc.StepByID(target)
	if idx < 0 {
		// Authoring bug: the route names a step that does not exist. Fall back
		// to sequential advance and surface the defect as a warning.
		t.Warnings = append(t.Warnings, &ConfigError{StepID: step.ID, Field: "routes", Detail: "target step " + target + " does not exist"})
		if run.CurrentStepIndex+1 >= len(proc.Steps) {
			next.Status = models.CompletedRunStatus
			next.CurrentStepIndex = len(proc.Steps)
			completedAt := now
			next.CompletedAt = &completedAt
			t.Run = next
			t.Completion = &CompletionNotice{UserID: run.StartedBy}
			return t, nil
		}
		idx = run.CurrentStepIndex + 1
		nextStep = proc.Steps[idx]
	}

	next.CurrentStepIndex = idx
	owner := ResolveAssignment(nextStep, run)
	next.AssigneeID = owner.AssigneeID
	next.AssigneeKind = owner.AssigneeKind
	next.Status = owner.Status
	next.ErrorDetail = ""

	t.Run = next
	t.Assignment = &AssignmentNotice{AssigneeID: owner.AssigneeID, StepID: nextStep.ID}
	return t, nil
}

// Flag marks a run held for review after a system execution failure, keeping
// the technical detail for diagnostics. Business flags and technical failures
// share one "stuck" state on purpose.
func Flag(run models.Run, detail string) models.Run {
	next := run
	next.Status = models.FlaggedRunStatus
	next.ErrorDetail = detail
	return next
}
