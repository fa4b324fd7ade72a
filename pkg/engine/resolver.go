package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches a single {{path.to.value}} reference. The grammar is a
// dotted path with no nested braces.
var refPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Lookup resolves a dotted path against the context. Flattened keys (which
// themselves contain dots) win over segment-by-segment traversal, so both
// access styles stay equivalent. Returns (nil, false) for an undefined path.
func Lookup(ctx Context, path string) (any, bool) {
	if v, ok := ctx[path]; ok {
		return v, true
	}
	segments := strings.Split(path, ".")
	var current any = map[string]any(ctx)
	for _, seg := range segments {
		m, ok := toMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return m, true
	}
	return nil, false
}

// Resolve replaces every {{...}} reference in a string value with the string
// form of the corresponding context lookup. A reference that does not resolve
// is left in place rather than raising: leftover markers are what makes the
// condition diagnosable downstream (see CheckResolved). Non-string values
// pass through unchanged. Resolve is idempotent: a resolved value either has
// no markers left or only markers that still do not resolve.
func Resolve(value any, ctx Context) any {
	s, ok := value.(string)
	if !ok || !strings.Contains(s, "{{") {
		return value
	}
	return refPattern.ReplaceAllStringFunc(s, func(marker string) string {
		path := strings.TrimSpace(marker[2 : len(marker)-2])
		v, found := Lookup(ctx, path)
		if !found {
			return marker
		}
		if v == nil {
			return ""
		}
		return Stringify(v)
	})
}

// Stringify renders a context value the way templates expect: numbers without
// a forced decimal point, everything else via fmt.
func Stringify(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case float32:
		return Stringify(float64(n))
	}
	return fmt.Sprintf("%v", v)
}

// Unresolved reports whether a resolved value still carries template markers.
func Unresolved(value any) bool {
	s, ok := value.(string)
	return ok && refPattern.MatchString(s)
}
