package engine

import "github.com/vlied266/work-manager-sub001/pkg/models"

// Ownership is the result of resolving who holds the run after it advances
// onto a new step.
type Ownership struct {
	AssigneeID   string
	AssigneeKind models.AssigneeKind
	Status       models.RunStatus
}

// ResolveAssignment computes the new owner of a run as it advances onto
// nextStep. A step without an assignment falls back to the run's original
// starter. This resolution only applies when the run is actually advancing,
// never on completion or a FLAGGED hold.
func ResolveAssignment(nextStep models.Step, run models.Run) Ownership {
	a := nextStep.Assignment
	if a == nil {
		return Ownership{AssigneeID: run.StartedBy, AssigneeKind: models.UserAssignee, Status: models.InProgressRunStatus}
	}
	switch a.Type {
	case models.SpecificUserAssignment:
		return Ownership{AssigneeID: a.AssigneeID, AssigneeKind: models.UserAssignee, Status: models.InProgressRunStatus}
	case models.TeamQueueAssignment:
		// Claimable by any team member; claiming converts the owner to the
		// specific user.
		return Ownership{AssigneeID: a.AssigneeID, AssigneeKind: models.TeamAssignee, Status: models.OpenForClaimRunStatus}
	}
	return Ownership{AssigneeID: run.StartedBy, AssigneeKind: models.UserAssignee, Status: models.InProgressRunStatus}
}
