package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// ValidateInput checks a proposed output against the step's resolved config.
// It is only meaningful for human-entry actions; automated steps produce
// evaluated results, not raw user entry. A nil return means the output may be
// logged; a *ValidationError blocks submission without touching the run.
func ValidateInput(step models.Step, output any, cfg models.StepConfig) error {
	if !step.Action.HumanEntry() {
		return nil
	}

	empty := isEmpty(output)
	if empty {
		if cfg.IsRequired() {
			field := step.Title
			if field == "" {
				field = step.ID
			}
			return &ValidationError{Field: field, Detail: "a value is required"}
		}
		return nil
	}

	switch cfg.InputType {
	case "number":
		n, err := toNumber(output)
		if err != nil {
			return &ValidationError{Field: step.Title, Detail: "must be a number"}
		}
		if cfg.Min != nil && n < *cfg.Min {
			return &ValidationError{Field: step.Title, Detail: fmt.Sprintf("must be at least %v", *cfg.Min)}
		}
		if cfg.Max != nil && n > *cfg.Max {
			return &ValidationError{Field: step.Title, Detail: fmt.Sprintf("must be at most %v", *cfg.Max)}
		}
	case "file":
		ref, ok := fileReference(output)
		if !ok || strings.TrimSpace(ref) == "" {
			return &ValidationError{Field: step.Title, Detail: "a file reference is required"}
		}
	case "select":
		if len(cfg.Options) > 0 {
			val := Stringify(output)
			for _, opt := range cfg.Options {
				if opt == val {
					return nil
				}
			}
			return &ValidationError{Field: step.Title, Detail: fmt.Sprintf("%q is not one of the allowed options", val)}
		}
	}
	return nil
}

func isEmpty(output any) bool {
	switch v := output.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

// fileReference extracts the reference/URL from a file-upload output, which
// arrives either as a plain string or as an object with a url/reference key.
func fileReference(output any) (string, bool) {
	switch v := output.(type) {
	case string:
		return v, true
	case map[string]any:
		for _, key := range []string{"url", "reference", "file_url"} {
			if s, ok := v[key].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
