package engine

import (
	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// ResolveConfig materializes a step's raw config against the run so far:
// the context is rebuilt from the log, seeded with any trigger payload, and
// every string field (recursively through Extra) has its {{...}} references
// replaced. The result is a same-shaped config ready for display, validation
// or execution.
func ResolveConfig(cfg models.StepConfig, log []models.LogEntry, proc models.Procedure, trigger map[string]any) models.StepConfig {
	ctx := BuildContext(proc, log).WithTrigger(trigger)
	return ResolveConfigWith(cfg, ctx)
}

// ResolveConfigWith resolves a config against an already-built context.
func ResolveConfigWith(cfg models.StepConfig, ctx Context) models.StepConfig {
	out := cfg
	out.InputType = resolveString(cfg.InputType, ctx)
	out.OutputVariable = cfg.OutputVariable // variable names are declarations, not templates
	out.Rule = resolveString(cfg.Rule, ctx)
	out.Target = resolveString(cfg.Target, ctx)
	out.Value = resolveString(cfg.Value, ctx)
	out.Formula = resolveString(cfg.Formula, ctx)
	out.Destination = resolveString(cfg.Destination, ctx)
	if len(cfg.Options) > 0 {
		opts := make([]string, len(cfg.Options))
		for i, o := range cfg.Options {
			opts[i] = resolveString(o, ctx)
		}
		out.Options = opts
	}
	if len(cfg.Extra) > 0 {
		out.Extra = resolveValue(cfg.Extra, ctx).(map[string]any)
	}
	return out
}

// CheckResolved returns a ConfigError naming the first field that still
// carries unresolved template markers, or nil.
func CheckResolved(cfg models.StepConfig, stepID string) error {
	fields := map[string]string{
		"target":      cfg.Target,
		"value":       cfg.Value,
		"formula":     cfg.Formula,
		"destination": cfg.Destination,
	}
	for name, v := range fields {
		if Unresolved(v) {
			return &ConfigError{StepID: stepID, Field: name, Detail: "unresolved variable reference: " + v}
		}
	}
	return nil
}

func resolveString(s string, ctx Context) string {
	return Resolve(s, ctx).(string)
}

func resolveValue(v any, ctx Context) any {
	switch t := v.(type) {
	case string:
		return Resolve(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = resolveValue(val, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveValue(val, ctx)
		}
		return out
	}
	return v
}
