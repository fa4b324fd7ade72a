package engine

import (
	"fmt"
	"strings"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// Context is the derived mapping from variable names to values, rebuilt from
// the run log on every read. It is a transient view: never persisted, never
// mutated by the engine after it is built.
type Context map[string]any

// BuildContext derives the variable context from the ordered log of completed
// steps. Each entry is bound under four equivalent names so templates can use
// flat or nested access:
//
//	<var>            raw output (custom output_variable, when declared)
//	step_<i+1>_output  raw output (always present)
//	step_<i+1>       {output: value}
//	<base>           {output: value}, base = var minus a trailing "_output"
//
// Map-valued outputs additionally flatten one level as <var>.<key>. Later
// entries overwrite earlier bindings of the same name; the context reflects
// current state, not history.
func BuildContext(proc models.Procedure, log []models.LogEntry) Context {
	ctx := make(Context, len(log)*4)
	for i, entry := range log {
		// Resolve the producing step by id, not position: branching can
		// execute steps out of declared order.
		varName := fmt.Sprintf("step_%d_output", i+1)
		if step, idx := proc.StepByID(entry.StepID); idx >= 0 && step.Config.OutputVariable != "" {
			varName = step.Config.OutputVariable
		}

		ctx[varName] = entry.Output
		ctx[fmt.Sprintf("step_%d_output", i+1)] = entry.Output
		ctx[fmt.Sprintf("step_%d", i+1)] = map[string]any{"output": entry.Output}

		base := strings.TrimSuffix(varName, "_output")
		if base != varName {
			ctx[base] = map[string]any{"output": entry.Output}
		}

		if m, ok := entry.Output.(map[string]any); ok {
			for k, v := range m {
				ctx[varName+"."+k] = v
			}
		}
	}
	return ctx
}

// WithTrigger returns a copy of ctx with the trigger payload seeded under the
// reserved "trigger" namespace, so steps can reference how the run started as
// well as what has happened so far.
func (c Context) WithTrigger(trigger map[string]any) Context {
	if len(trigger) == 0 {
		return c
	}
	out := make(Context, len(c)+len(trigger)+1)
	for k, v := range c {
		out[k] = v
	}
	out["trigger"] = trigger
	for k, v := range trigger {
		out["trigger."+k] = v
	}
	return out
}
