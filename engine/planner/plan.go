// Package planner produces one Plan per iteration through two phases: a
// cheap triage call decides how much intelligence the situation needs,
// then (if needed) a full planning call at the chosen tier.
package planner

import (
	"encoding/json"
	"math"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/core"
)

// Action is one tool invocation requested by a plan. Tier optionally pins
// which model class executes LLM-backed tools.
type Action struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Tier       string         `json:"tier,omitempty"`
}

// Path returns the path-like parameter used in action signatures, if any.
func (a *Action) Path() string {
	if a.Parameters == nil {
		return ""
	}
	if p, ok := a.Parameters["path"].(string); ok {
		return p
	}
	return ""
}

// GoalsPatch accepts both the tiered object form and the legacy flat list
// (which maps onto short-term goals).
type GoalsPatch struct {
	ShortTerm []string `json:"short_term,omitempty"`
	MidTerm   []string `json:"mid_term,omitempty"`
	LongTerm  []string `json:"long_term,omitempty"`
}

func (g *GoalsPatch) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		g.ShortTerm = flat
		return nil
	}
	type alias GoalsPatch
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*g = GoalsPatch(obj)
	return nil
}

// ToUpdate converts the patch to the agent mutation form.
func (g *GoalsPatch) ToUpdate() *agent.GoalsUpdate {
	if g == nil {
		return nil
	}
	return &agent.GoalsUpdate{ShortTerm: g.ShortTerm, MidTerm: g.MidTerm, LongTerm: g.LongTerm}
}

// NotesUpdate is the scratchpad delta: add entries, remove by index, or
// replace the whole set. Replace is a pointer so an explicit empty list
// clears the scratchpad.
type NotesUpdate struct {
	Add     []string  `json:"add,omitempty"`
	Remove  []int     `json:"remove,omitempty"`
	Replace *[]string `json:"replace,omitempty"`
}

// Plan is the parsed planning response plus routing metadata.
type Plan struct {
	Thinking      string         `json:"thinking"`
	Actions       []Action       `json:"actions"`
	GoalsUpdate   *GoalsPatch    `json:"goals_update,omitempty"`
	NotesUpdate   *NotesUpdate   `json:"short_term_memories_update,omitempty"`
	MemoryConfig  map[string]any `json:"memory_config,omitempty"`
	SleepSeconds  int            `json:"sleep_seconds,omitempty"`
	ChatReply     string         `json:"chat_reply,omitempty"`
	StatusMessage string         `json:"status_message"`

	Triage      *Triage           `json:"-"`
	Model       string            `json:"-"`
	Provider    core.ProviderName `json:"-"`
	TotalTokens int               `json:"-"`
}

// UnmarshalJSON accepts sleep_seconds as any JSON number; models routinely
// emit fractional values and the field rounds to whole seconds.
func (p *Plan) UnmarshalJSON(data []byte) error {
	type alias Plan
	aux := struct {
		*alias
		SleepSeconds float64 `json:"sleep_seconds,omitempty"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.SleepSeconds = int(math.Round(aux.SleepSeconds))
	return nil
}

// HasActions reports whether the plan requests any tool work.
func (p *Plan) HasActions() bool {
	return len(p.Actions) > 0
}

// Triage is the phase-1 verdict.
type Triage struct {
	Complexity    string       `json:"complexity"`
	Tier          string       `json:"tier"`
	Reason        string       `json:"reason"`
	NeedsFullPlan bool         `json:"needs_full_plan"`
	QuickAction   *QuickAction `json:"quick_action,omitempty"`
}

// QuickAction carries the idle short-circuit parameters.
type QuickAction struct {
	SleepSeconds  int    `json:"sleep_seconds"`
	StatusMessage string `json:"status_message"`
}

func (q *QuickAction) UnmarshalJSON(data []byte) error {
	type alias QuickAction
	aux := struct {
		*alias
		SleepSeconds float64 `json:"sleep_seconds"`
	}{alias: (*alias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	q.SleepSeconds = int(math.Round(aux.SleepSeconds))
	return nil
}
