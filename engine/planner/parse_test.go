package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	t.Run("Should parse raw JSON", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"ok","actions":[{"tool":"web_search","parameters":{"query":"go"}}],"status_message":"searching"}`)
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, "web_search", plan.Actions[0].Tool)
		assert.Equal(t, "searching", plan.StatusMessage)
	})

	t.Run("Should round a fractional sleep_seconds without losing actions", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"x","actions":[{"tool":"web_search","parameters":{"query":"go"}}],"sleep_seconds":45.5,"status_message":"ok"}`)
		require.True(t, plan.HasActions())
		assert.Equal(t, "web_search", plan.Actions[0].Tool)
		assert.Equal(t, 46, plan.SleepSeconds)
		assert.Equal(t, "ok", plan.StatusMessage)
	})

	t.Run("Should strip markdown fences", func(t *testing.T) {
		plan := ParsePlan("```json\n{\"thinking\":\"fenced\",\"actions\":[],\"status_message\":\"ok\"}\n```")
		assert.Equal(t, "fenced", plan.Thinking)
		assert.Equal(t, "ok", plan.StatusMessage)
	})

	t.Run("Should extract the object from surrounding prose", func(t *testing.T) {
		plan := ParsePlan("Here is my plan:\n{\"thinking\":\"embedded\",\"actions\":[]}\nThat is all.")
		assert.Equal(t, "embedded", plan.Thinking)
	})

	t.Run("Should repair truncated JSON", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"cut off","actions":[{"tool":"skills","parameters":{}}]`)
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, "skills", plan.Actions[0].Tool)
	})

	t.Run("Should unwrap a plan nested inside thinking", func(t *testing.T) {
		inner := `{"thinking":"real","actions":[{"tool":"memory_write","parameters":{"content":"x"}}],"status_message":"working"}`
		outer, err := json.Marshal(map[string]any{"thinking": "```json\n" + inner + "\n```"})
		require.NoError(t, err)
		plan := ParsePlan(string(outer))
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, "memory_write", plan.Actions[0].Tool)
		assert.Equal(t, "real", plan.Thinking)
	})

	t.Run("Should fall back to an action-less plan on garbage", func(t *testing.T) {
		plan := ParsePlan("I could not decide what to do next.")
		assert.Empty(t, plan.Actions)
		assert.Equal(t, "I could not decide what to do next.", plan.Thinking)
		assert.Equal(t, "Processing...", plan.StatusMessage)
	})

	t.Run("Should accept a flat goals_update list as short-term goals", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"g","actions":[],"goals_update":["ship it","test it"]}`)
		require.NotNil(t, plan.GoalsUpdate)
		assert.Equal(t, []string{"ship it", "test it"}, plan.GoalsUpdate.ShortTerm)
	})

	t.Run("Should accept the tiered goals_update object", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"g","actions":[],"goals_update":{"mid_term":["build"],"long_term":["endure"]}}`)
		require.NotNil(t, plan.GoalsUpdate)
		assert.Empty(t, plan.GoalsUpdate.ShortTerm)
		assert.Equal(t, []string{"build"}, plan.GoalsUpdate.MidTerm)
		assert.Equal(t, []string{"endure"}, plan.GoalsUpdate.LongTerm)
	})

	t.Run("Should distinguish replace from absent in notes update", func(t *testing.T) {
		plan := ParsePlan(`{"thinking":"n","actions":[],"short_term_memories_update":{"replace":[]}}`)
		require.NotNil(t, plan.NotesUpdate)
		require.NotNil(t, plan.NotesUpdate.Replace)
		assert.Empty(t, *plan.NotesUpdate.Replace)

		plan = ParsePlan(`{"thinking":"n","actions":[],"short_term_memories_update":{"add":["note"]}}`)
		require.NotNil(t, plan.NotesUpdate)
		assert.Nil(t, plan.NotesUpdate.Replace)
	})
}

func TestParseTriage(t *testing.T) {
	t.Run("Should parse a full verdict", func(t *testing.T) {
		triage := parseTriage(`{"complexity":"low","tier":"level3","reason":"routine","needs_full_plan":false,"quick_action":{"sleep_seconds":45,"status_message":"napping"}}`)
		assert.Equal(t, "low", triage.Complexity)
		assert.Equal(t, "level3", triage.Tier)
		assert.False(t, triage.NeedsFullPlan)
		require.NotNil(t, triage.QuickAction)
		assert.Equal(t, 45, triage.QuickAction.SleepSeconds)
	})

	t.Run("Should round a fractional quick_action sleep", func(t *testing.T) {
		triage := parseTriage(`{"complexity":"low","tier":"level3","needs_full_plan":false,"quick_action":{"sleep_seconds":89.7,"status_message":"napping"}}`)
		require.NotNil(t, triage.QuickAction)
		assert.Equal(t, 90, triage.QuickAction.SleepSeconds)
	})

	t.Run("Should default to a full plan when the field is absent", func(t *testing.T) {
		triage := parseTriage(`{"complexity":"medium","tier":"level2","reason":"unsure"}`)
		assert.True(t, triage.NeedsFullPlan)
	})

	t.Run("Should fall back to medium on incomplete JSON", func(t *testing.T) {
		triage := parseTriage(`{"reason":"missing fields"}`)
		assert.Equal(t, "medium", triage.Complexity)
		assert.Equal(t, "level2", triage.Tier)
		assert.True(t, triage.NeedsFullPlan)
	})

	t.Run("Should normalize an invalid tier", func(t *testing.T) {
		triage := parseTriage(`{"complexity":"high","tier":"level9","needs_full_plan":true}`)
		assert.Equal(t, "level2", triage.Tier)
	})

	t.Run("Should fall back on non-JSON output", func(t *testing.T) {
		triage := parseTriage("everything looks fine")
		assert.Equal(t, "medium", triage.Complexity)
		assert.True(t, triage.NeedsFullPlan)
	})
}
