// Package builtin holds the self-management tools the agent always has:
// memory, secrets, skills and budget introspection. World-facing tools are
// registered separately by the runtime host.
package builtin

import "math"

// Planner output arrives as generic JSON, so numeric parameters may decode
// as float64 even when the schema says integer. These helpers coerce.

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}
