package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/pkg/logger"
)

const (
	triageTemperature = 0.2
	triageMaxTokens   = 256
)

// triageSystemPrompt is deliberately small; it rides the cheapest tier
// every non-chat iteration.
const triageSystemPrompt = `You are a task-complexity triage system for an autonomous AI agent.
Your job is to quickly assess the current situation and decide what level of intelligence is needed.

Respond with ONLY a JSON object:
{
  "complexity": "idle|low|medium|high",
  "tier": "level3|level2|level1",
  "reason": "one sentence why",
  "needs_full_plan": true/false,
  "quick_action": null or {"sleep_seconds": N, "status_message": "..."}
}

Guidelines:
- "low" / level3: simple routine checks, basic tool calls. A small model can handle it.
- "medium" / level2: moderate tasks like research, file edits, multi-step plans. Needs a capable model.
- "high" / level1: complex reasoning, architecture decisions, creator chat, coding agent tasks, self-modification. Needs the best model.

ALWAYS escalate to "high" / level1 if:
- There is a creator chat message (the creator expects a thoughtful reply)
- Self-modification or deployment is needed
- Complex multi-step coding is required
- Strategic planning or goal revision is needed

CRITICAL BUDGET RULES:
- The agent has FREE LLM providers (Mistral, Devstral, Ollama) that cost NOTHING.
- Paid budget percentage does NOT matter if free providers exist.
- Even if paid budget shows 95% used, the agent can still work productively using free models.
- Do NOT return "idle" or needs_full_plan=false just because the budget looks low.
- If there are active goals or tasks, ALWAYS set needs_full_plan=true so the agent can work on them.
- Only return needs_full_plan=false if goals are genuinely empty AND no tasks are pending.
- When setting quick_action sleep, use short times (30-60s) not long hibernation (300+).`

// fallbackTriage is used whenever the triage call or its JSON cannot be
// trusted; medium keeps the strongest models out of unknown situations.
func fallbackTriage(reason string) *Triage {
	return &Triage{Complexity: "medium", Tier: "level2", Reason: reason, NeedsFullPlan: true}
}

// triage runs phase 1 against the cheap tier.
func (p *Planner) triage(ctx context.Context, state *agent.State, status *budget.Status) *Triage {
	log := logger.FromContext(ctx)

	goals := state.ShortTermGoals
	if len(goals) > 5 {
		goals = goals[:5]
	}
	goalsJSON, _ := json.Marshal(goals)
	activeTask := state.ActiveTask
	if activeTask == "" {
		activeTask = "None"
	}
	summary := fmt.Sprintf(
		"Iteration #%d. Budget: $%.2f remaining (%.0f%% used). Active task: %s. "+
			"Short-term goals: %s. No creator chat this iteration. "+
			"Assess complexity and decide which tier model should handle planning.",
		state.Iteration, status.RemainingUSD(), status.PercentUsed, activeTask, goalsJSON)

	resp, err := p.router.Complete(ctx, &router.Request{
		Messages: []core.Message{
			core.SystemMessage(triageSystemPrompt),
			core.UserMessage(summary),
		},
		Tier:        core.TierLevel3,
		Temperature: triageTemperature,
		MaxTokens:   triageMaxTokens,
		Task:        "triage",
	})
	if err != nil {
		log.Warn("triage call failed, defaulting to medium", "error", err)
		return fallbackTriage("triage error: " + err.Error())
	}
	triage := parseTriage(resp.Content)
	log.Info("triage verdict",
		"complexity", triage.Complexity, "tier", triage.Tier,
		"needs_full_plan", triage.NeedsFullPlan, "reason", triage.Reason)
	return triage
}

// parseTriage decodes the verdict, tolerating fences and surrounding
// prose. An absent needs_full_plan means a full plan is needed.
func parseTriage(content string) *Triage {
	cleaned := stripFences(content)
	raw := cleaned
	var triage Triage
	if err := json.Unmarshal([]byte(cleaned), &triage); err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}") + 1
		if start < 0 || end <= start {
			return fallbackTriage("triage parse failed")
		}
		raw = cleaned[start:end]
		if err := json.Unmarshal([]byte(raw), &triage); err != nil {
			return fallbackTriage("triage parse failed")
		}
	}
	if triage.Complexity == "" || triage.Tier == "" {
		return fallbackTriage("triage parse incomplete")
	}
	if !gjson.Get(raw, "needs_full_plan").Exists() {
		triage.NeedsFullPlan = true
	}
	switch triage.Tier {
	case "level1", "level2", "level3":
	default:
		triage.Tier = "level2"
	}
	return &triage
}
