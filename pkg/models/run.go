package models

import "time"

type RunStatus string

const (
	InProgressRunStatus   RunStatus = "IN_PROGRESS"
	CompletedRunStatus    RunStatus = "COMPLETED"
	FlaggedRunStatus      RunStatus = "FLAGGED"
	BlockedRunStatus      RunStatus = "BLOCKED"
	OpenForClaimRunStatus RunStatus = "OPEN_FOR_CLAIM"
)

// Outcome classifies a completed step.
type Outcome string

const (
	SuccessOutcome Outcome = "SUCCESS"
	FailureOutcome Outcome = "FAILURE"
	FlaggedOutcome Outcome = "FLAGGED"
)

type AssigneeKind string

const (
	UserAssignee AssigneeKind = "USER"
	TeamAssignee AssigneeKind = "TEAM"
)

// LogEntry is the immutable record of one executed step. Entries are
// append-only; a run's derived context is a pure function of its log.
type LogEntry struct {
	StepID    string    `json:"step_id"`
	StepTitle string    `json:"step_title"`
	Action    Action    `json:"action"`
	Output    any       `json:"output"`
	Outcome   Outcome   `json:"outcome"`
	LoggedAt  time.Time `json:"logged_at"`
}

// Run is a single execution instance of one procedure.
type Run struct {
	ID               string         `json:"id" db:"id"`
	ProcedureID      string         `json:"procedure_id" db:"procedure_id"`
	OrgID            string         `json:"org_id" db:"org_id"`
	CurrentStepIndex int            `json:"current_step_index" db:"current_step_index"` // may equal len(steps) once COMPLETED
	Status           RunStatus      `json:"status" db:"status"`
	Log              []LogEntry     `json:"log"`
	AssigneeID       string         `json:"assignee_id" db:"assignee_id"`
	AssigneeKind     AssigneeKind   `json:"assignee_kind" db:"assignee_kind"`
	StartedBy        string         `json:"started_by" db:"started_by"`
	TriggerContext   map[string]any `json:"trigger_context,omitempty"`
	ErrorDetail      string         `json:"error_detail,omitempty" db:"error_detail"`
	StartedAt        time.Time      `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	Version          int            `json:"version" db:"version"` // bumped on every persisted transition
}

// CurrentStep returns the step the run is parked on, or false when the run has
// advanced past the end of the procedure.
func (r Run) CurrentStep(p Procedure) (Step, bool) {
	if r.CurrentStepIndex < 0 || r.CurrentStepIndex >= len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[r.CurrentStepIndex], true
}
