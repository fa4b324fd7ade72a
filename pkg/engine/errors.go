package engine

import "fmt"

// ValidationError is a local, recoverable failure of a submitted output
// against the step's input constraints. It blocks the submission and leaves
// the run untouched.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

// ConfigError is an authoring-time defect surfaced at run time: an unresolved
// variable reference, a route target naming a missing step, or similar. The
// engine degrades safely (sequential fallback) but the condition should be
// logged loudly as a data-integrity warning.
type ConfigError struct {
	StepID string
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("step %s config %s: %s", e.StepID, e.Field, e.Detail)
}
