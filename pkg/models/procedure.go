package models

import "time"

// Action classifies a step and determines which executor handles it.
type Action string

const (
	InputAction     Action = "INPUT"
	FetchAction     Action = "FETCH"
	TransmitAction  Action = "TRANSMIT"
	StoreAction     Action = "STORE"
	CalculateAction Action = "CALCULATE"
	CompareAction   Action = "COMPARE"
	ValidateAction  Action = "VALIDATE"
	GatewayAction   Action = "GATEWAY"
	GenerateAction  Action = "GENERATE"
	AuthorizeAction Action = "AUTHORIZE"
	InspectAction   Action = "INSPECT"
	NegotiateAction Action = "NEGOTIATE"
)

// HumanEntry reports whether the action expects output submitted by a person.
// Everything else is executed by the system without waiting for a human actor.
func (a Action) HumanEntry() bool {
	switch a {
	case InputAction, AuthorizeAction, InspectAction, NegotiateAction:
		return true
	}
	return false
}

// RoutingOnly reports whether the step exists purely to branch. Such steps are
// expected to carry routes; a missing Routes block is an authoring bug.
func (a Action) RoutingOnly() bool {
	switch a {
	case GatewayAction, ValidateAction, CompareAction:
		return true
	}
	return false
}

// CompletedTarget is the sentinel route target that terminates a run.
const CompletedTarget = "COMPLETED"

// RouteCondition is one ordered branching rule. The first condition whose
// variable resolves to a defined value and whose comparison holds wins.
type RouteCondition struct {
	Variable     string `json:"variable" yaml:"variable"`
	Operator     string `json:"operator" yaml:"operator"`
	Value        string `json:"value" yaml:"value"`
	TargetStepID string `json:"target_step_id" yaml:"target_step_id"`
}

// Routes declares non-linear advancement for a step. A nil Routes means
// strictly sequential advancement.
type Routes struct {
	DefaultNextStepID string           `json:"default_next_step_id,omitempty" yaml:"default_next_step_id"`
	OnSuccessStepID   string           `json:"on_success_step_id,omitempty" yaml:"on_success_step_id"`
	OnFailureStepID   string           `json:"on_failure_step_id,omitempty" yaml:"on_failure_step_id"`
	Conditions        []RouteCondition `json:"conditions,omitempty" yaml:"conditions"`
}

type AssignmentType string

const (
	StarterAssignment      AssignmentType = "STARTER"
	SpecificUserAssignment AssignmentType = "SPECIFIC_USER"
	TeamQueueAssignment    AssignmentType = "TEAM_QUEUE"
)

// Assignment declares who owns the run while this step is current.
type Assignment struct {
	Type       AssignmentType `json:"type" yaml:"type"`
	AssigneeID string         `json:"assignee_id,omitempty" yaml:"assignee_id"`
}

// StepConfig holds the action-specific parameters of a step. Known fields are
// typed; anything else an action needs travels in Extra. String values may
// contain {{...}} references resolved against the run context at execution time.
type StepConfig struct {
	InputType      string         `json:"input_type,omitempty" yaml:"input_type"`
	Required       *bool          `json:"required,omitempty" yaml:"required"`
	Min            *float64       `json:"min,omitempty" yaml:"min"`
	Max            *float64       `json:"max,omitempty" yaml:"max"`
	Options        []string       `json:"options,omitempty" yaml:"options"`
	OutputVariable string         `json:"output_variable,omitempty" yaml:"output_variable"`
	Rule           string         `json:"rule,omitempty" yaml:"rule"`
	Target         string         `json:"target,omitempty" yaml:"target"`
	Value          string         `json:"value,omitempty" yaml:"value"`
	Formula        string         `json:"formula,omitempty" yaml:"formula"`
	Destination    string         `json:"destination,omitempty" yaml:"destination"`
	Extra          map[string]any `json:"extra,omitempty" yaml:"extra"`
}

// IsRequired defaults to true unless the step explicitly opts out.
func (c StepConfig) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// Step is the unit of work inside a procedure.
type Step struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Action      Action      `json:"action" yaml:"action"`
	Config      StepConfig  `json:"config" yaml:"config"`
	Routes      *Routes     `json:"routes,omitempty" yaml:"routes"`
	Assignment  *Assignment `json:"assignment,omitempty" yaml:"assignment"`
}

// Procedure is an ordered, immutable-once-published sequence of steps owned by
// an organization.
type Procedure struct {
	ID        string    `json:"id" db:"id" yaml:"id"`
	OrgID     string    `json:"org_id" db:"org_id" yaml:"org_id"`
	Title     string    `json:"title" db:"title" yaml:"title"`
	Steps     []Step    `json:"steps" yaml:"steps"`
	Published bool      `json:"published" db:"published" yaml:"published"`
	CreatedAt time.Time `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" yaml:"-"`
}

// StepByID returns the step with the given id and its position, or -1.
func (p Procedure) StepByID(id string) (Step, int) {
	for i, s := range p.Steps {
		if s.ID == id {
			return s, i
		}
	}
	return Step{}, -1
}
