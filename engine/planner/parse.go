package planner

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aionlabs/aion/engine/core"
)

// fallbackThinkingMax bounds the raw content preserved when parsing fails
// completely.
const fallbackThinkingMax = 2000

// ParsePlan turns model output into a Plan, repairing the common failure
// shapes in order: fenced JSON, prose around the object, truncated tails,
// and the whole plan nested inside an outer "thinking" field. A response
// that defeats every repair becomes an action-less plan carrying the raw
// text as thinking.
func ParsePlan(content string) *Plan {
	cleaned := stripFences(content)

	if plan := tryDecode(cleaned); plan != nil {
		return unwrapNested(plan)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}") + 1
	if start >= 0 && end > start {
		if plan := tryDecode(cleaned[start:end]); plan != nil {
			return unwrapNested(plan)
		}
	}

	if start >= 0 {
		fragment := cleaned[start:]
		for _, tail := range []string{"}", "]}", `"]}`} {
			if plan := tryDecode(fragment + tail); plan != nil {
				return unwrapNested(plan)
			}
		}
	}

	return &Plan{
		Thinking:      core.Truncate(content, fallbackThinkingMax),
		Actions:       nil,
		StatusMessage: "Processing...",
	}
}

func stripFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if nl := strings.Index(cleaned, "\n"); nl > 0 {
		cleaned = cleaned[nl+1:]
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func tryDecode(text string) *Plan {
	if !gjson.Valid(text) || !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return nil
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil
	}
	return &plan
}

// unwrapNested handles models that wrap the real plan inside the thinking
// field of an outer object.
func unwrapNested(plan *Plan) *Plan {
	if plan.HasActions() || !strings.Contains(plan.Thinking, `"actions"`) {
		return plan
	}
	inner := stripFences(plan.Thinking)
	candidate := tryDecode(inner)
	if candidate == nil {
		start := strings.Index(inner, "{")
		end := strings.LastIndex(inner, "}") + 1
		if start >= 0 && end > start {
			candidate = tryDecode(inner[start:end])
		}
	}
	if candidate != nil && candidate.HasActions() {
		return candidate
	}
	return plan
}
