package planner

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/memory/embedder"
	"github.com/aionlabs/aion/engine/memory/vectordb"
	"github.com/aionlabs/aion/engine/tool"
	"github.com/aionlabs/aion/pkg/config"
)

// scriptedCompleter returns canned responses in order and records every
// request the planner makes.
type scriptedCompleter struct {
	requests  []*router.Request
	responses []string
}

func (s *scriptedCompleter) Complete(_ context.Context, req *router.Request) (*adapter.Response, error) {
	s.requests = append(s.requests, req)
	content := `{"thinking":"default","actions":[],"status_message":"ok"}`
	if len(s.responses) > 0 {
		content = s.responses[0]
		s.responses = s.responses[1:]
	}
	return &adapter.Response{
		Content:      content,
		Model:        "stub-model",
		Provider:     core.ProviderMistral,
		InputTokens:  100,
		OutputTokens: 50,
		TotalTokens:  150,
	}, nil
}

func (s *scriptedCompleter) queue(contents ...string) *scriptedCompleter {
	s.responses = append(s.responses, contents...)
	return s
}

func newTestPlanner(t *testing.T, completer Completer) *Planner {
	t.Helper()
	working := memory.NewWorkingMemory(memory.DefaultWorkingConfig(), memory.EstimatorCounter{})
	vector, err := memory.NewVectorMemory(vectordb.NewMemoryStore(), embedder.NewHash(64))
	require.NoError(t, err)
	prompt := NewPromptBuilder("## IMMUTABLE SAFETY RULES\n1. Never disable logging.",
		&config.ProvidersConfig{}, nil)
	p, err := New(completer, working, vector, prompt)
	require.NoError(t, err)
	return p
}

func testInput(chats ...string) *Input {
	return &Input{
		State: &agent.State{
			Directive:      "optimize yourself",
			ShortTermGoals: []string{"write tests"},
			Iteration:      3,
		},
		Budget: &budget.Status{
			MonthlyCap:  decimal.NewFromInt(100),
			Spent:       decimal.NewFromInt(20),
			Remaining:   decimal.NewFromInt(80),
			PercentUsed: 20,
		},
		Tools:           []tool.Definition{{Name: "memory_write"}, {Name: "skills"}},
		CreatorMessages: chats,
	}
}

func TestPlanner_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("Should skip triage and force level1 when chat is pending", func(t *testing.T) {
		completer := (&scriptedCompleter{}).queue(
			`{"thinking":"answering","actions":[],"chat_reply":"4","status_message":"replied"}`)
		p := newTestPlanner(t, completer)

		plan, err := p.Plan(ctx, testInput("what is 2+2?"))
		require.NoError(t, err)
		require.Len(t, completer.requests, 1)
		req := completer.requests[0]
		assert.Equal(t, core.TierLevel1, req.Tier)
		assert.Equal(t, core.TierLevel1, req.MinTier)
		assert.Equal(t, "chat_iteration", req.Task)
		assert.Equal(t, "4", plan.ChatReply)
		assert.Equal(t, "creator chat pending", plan.Triage.Reason)

		last := req.Messages[len(req.Messages)-1]
		assert.Contains(t, last.Content, "CREATOR CHAT")
		assert.Contains(t, last.Content, "what is 2+2?")
	})

	t.Run("Should short-circuit to a minimal plan when triage says idle", func(t *testing.T) {
		completer := (&scriptedCompleter{}).queue(
			`{"complexity":"idle","tier":"level3","reason":"nothing pending","needs_full_plan":false,"quick_action":{"sleep_seconds":90,"status_message":"resting"}}`)
		p := newTestPlanner(t, completer)

		plan, err := p.Plan(ctx, testInput())
		require.NoError(t, err)
		require.Len(t, completer.requests, 1)
		assert.Equal(t, core.TierLevel3, completer.requests[0].Tier)
		assert.Equal(t, "triage", completer.requests[0].Task)
		assert.Empty(t, plan.Actions)
		assert.Equal(t, 90, plan.SleepSeconds)
		assert.Equal(t, "resting", plan.StatusMessage)
		assert.Equal(t, "[triage] nothing pending", plan.Thinking)
		assert.Equal(t, "triage-only", plan.Model)
	})

	t.Run("Should default the minimal plan sleep and status", func(t *testing.T) {
		completer := (&scriptedCompleter{}).queue(
			`{"complexity":"idle","tier":"level3","reason":"quiet","needs_full_plan":false}`)
		p := newTestPlanner(t, completer)

		plan, err := p.Plan(ctx, testInput())
		require.NoError(t, err)
		assert.Equal(t, 60, plan.SleepSeconds)
		assert.Equal(t, "Idle — checking for work", plan.StatusMessage)
	})

	t.Run("Should force a full plan after five consecutive idle triages", func(t *testing.T) {
		idle := `{"complexity":"idle","tier":"level3","reason":"quiet","needs_full_plan":false}`
		completer := (&scriptedCompleter{}).queue(idle, idle, idle, idle, idle,
			`{"thinking":"reassessing","actions":[],"status_message":"checked in"}`)
		p := newTestPlanner(t, completer)

		for i := 0; i < 4; i++ {
			plan, err := p.Plan(ctx, testInput())
			require.NoError(t, err)
			assert.Equal(t, "triage-only", plan.Model)
		}

		plan, err := p.Plan(ctx, testInput())
		require.NoError(t, err)
		assert.Equal(t, "stub-model", plan.Model)
		assert.Equal(t, "checked in", plan.StatusMessage)
		// Triage call plus the forced full plan on the 5th iteration.
		require.Len(t, completer.requests, 6)
		full := completer.requests[5]
		assert.Equal(t, core.TierLevel3, full.Tier)
		assert.Equal(t, "planning", full.Task)
		assert.Equal(t, core.TierLevel2, full.MinTier)
	})

	t.Run("Should plan fully at the triage tier with a level2 floor", func(t *testing.T) {
		completer := (&scriptedCompleter{}).queue(
			`{"complexity":"medium","tier":"level2","reason":"work queued","needs_full_plan":true}`,
			`{"thinking":"working","actions":[{"tool":"memory_write","parameters":{"content":"x"}}],"status_message":"busy"}`)
		p := newTestPlanner(t, completer)

		plan, err := p.Plan(ctx, testInput())
		require.NoError(t, err)
		require.Len(t, completer.requests, 2)
		full := completer.requests[1]
		assert.Equal(t, core.TierLevel2, full.Tier)
		assert.Equal(t, core.TierLevel2, full.MinTier)
		assert.Equal(t, "planning", full.Task)
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, 150, plan.TotalTokens)
		assert.Equal(t, core.ProviderMistral, plan.Provider)

		system := full.Messages[0]
		assert.Equal(t, core.RoleSystem, system.Role)
		assert.Contains(t, system.Content, "IMMUTABLE SAFETY RULES")
		assert.Contains(t, system.Content, "optimize yourself")
		assert.Contains(t, system.Content, "memory_write, skills")
	})

	t.Run("Should render the scratchpad into the iteration message", func(t *testing.T) {
		completer := (&scriptedCompleter{}).queue(
			`{"complexity":"medium","tier":"level2","reason":"work","needs_full_plan":true}`,
			`{"thinking":"ok","actions":[],"status_message":"ok"}`)
		p := newTestPlanner(t, completer)
		in := testInput()
		in.State.Notes = []agent.Note{{Content: "deploy blocked on missing token"}}

		_, err := p.Plan(ctx, in)
		require.NoError(t, err)
		last := completer.requests[1].Messages[len(completer.requests[1].Messages)-1]
		assert.Contains(t, last.Content, "SHORT-TERM MEMORIES")
		assert.Contains(t, last.Content, "[0] deploy blocked on missing token")
	})
}

func TestPlanner_LoopDetection(t *testing.T) {
	ctx := context.Background()

	fullPlanWith := func(action string) []string {
		return []string{
			`{"complexity":"medium","tier":"level2","reason":"work","needs_full_plan":true}`,
			action,
		}
	}

	t.Run("Should warn after three identical action signatures", func(t *testing.T) {
		repeated := `{"thinking":"again","actions":[{"tool":"file_write","parameters":{"path":"/data/x.txt","content":"x"}}],"status_message":"writing"}`
		completer := &scriptedCompleter{}
		for i := 0; i < 4; i++ {
			completer.queue(fullPlanWith(repeated)...)
		}
		p := newTestPlanner(t, completer)

		for i := 0; i < 3; i++ {
			_, err := p.Plan(ctx, testInput())
			require.NoError(t, err)
		}
		_, err := p.Plan(ctx, testInput())
		require.NoError(t, err)

		// 4th full-plan request carries the warning from the prior three.
		last := completer.requests[7].Messages[len(completer.requests[7].Messages)-1]
		assert.Contains(t, last.Content, "STUCK LOOP DETECTED")
		assert.Contains(t, last.Content, "file_write:/data/x.txt")
	})

	t.Run("Should warn after four no-action plans out of five", func(t *testing.T) {
		empty := `{"thinking":"nothing","actions":[],"status_message":"idle"}`
		completer := &scriptedCompleter{}
		for i := 0; i < 5; i++ {
			completer.queue(fullPlanWith(empty)...)
		}
		p := newTestPlanner(t, completer)

		for i := 0; i < 4; i++ {
			_, err := p.Plan(ctx, testInput())
			require.NoError(t, err)
		}
		_, err := p.Plan(ctx, testInput())
		require.NoError(t, err)

		last := completer.requests[9].Messages[len(completer.requests[9].Messages)-1]
		assert.Contains(t, last.Content, "no actions for 4+ iterations")
	})
}

func TestActionSignature(t *testing.T) {
	t.Run("Should join tool and path tokens", func(t *testing.T) {
		plan := &Plan{Actions: []Action{
			{Tool: "file_write", Parameters: map[string]any{"path": "/a.txt"}},
			{Tool: "web_search", Parameters: map[string]any{"query": "go"}},
		}}
		assert.Equal(t, "file_write:/a.txt|web_search", actionSignature(plan))
	})

	t.Run("Should cap at five actions", func(t *testing.T) {
		plan := &Plan{}
		for i := 0; i < 7; i++ {
			plan.Actions = append(plan.Actions, Action{Tool: "t"})
		}
		assert.Equal(t, "t|t|t|t|t", actionSignature(plan))
	})

	t.Run("Should mark empty plans", func(t *testing.T) {
		assert.Equal(t, "no_actions", actionSignature(&Plan{}))
	})
}
