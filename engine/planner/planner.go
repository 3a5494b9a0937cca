package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/tool"
	"github.com/aionlabs/aion/pkg/logger"
)

const (
	planTemperature = 0.7
	planMaxTokens   = 4096

	// forceFullPlanAfter bounds consecutive triage-only iterations; the
	// next one escalates to a real (free-tier) plan so the agent reassesses.
	forceFullPlanAfter = 5

	defaultIdleSleep  = 60
	defaultIdleStatus = "Idle — checking for work"
)

// Completer is the router surface the planner consumes.
type Completer interface {
	Complete(ctx context.Context, req *router.Request) (*adapter.Response, error)
}

// Input is everything one planning pass sees.
type Input struct {
	State           *agent.State
	Budget          *budget.Status
	Tools           []tool.Definition
	CreatorMessages []string
}

// Planner runs the two-phase plan cycle. Not safe for concurrent use; the
// iteration loop is its only caller.
type Planner struct {
	router  Completer
	working *memory.WorkingMemory
	vector  *memory.VectorMemory
	prompt  *PromptBuilder

	ring                  signatureRing
	consecutiveTriageOnly int
}

func New(completer Completer, working *memory.WorkingMemory, vector *memory.VectorMemory, prompt *PromptBuilder) (*Planner, error) {
	if completer == nil {
		return nil, core.NewError(errors.New("router is required"), "MISSING_DEPENDENCY", nil)
	}
	if working == nil {
		return nil, core.NewError(errors.New("working memory is required"), "MISSING_DEPENDENCY", nil)
	}
	if vector == nil {
		return nil, core.NewError(errors.New("vector memory is required"), "MISSING_DEPENDENCY", nil)
	}
	if prompt == nil {
		return nil, core.NewError(errors.New("prompt builder is required"), "MISSING_DEPENDENCY", nil)
	}
	return &Planner{router: completer, working: working, vector: vector, prompt: prompt}, nil
}

// Plan produces the iteration's plan. Creator chat skips triage and goes
// straight to a full plan at the strongest tier.
func (p *Planner) Plan(ctx context.Context, in *Input) (*Plan, error) {
	log := logger.FromContext(ctx)
	hasChat := len(in.CreatorMessages) > 0

	var triage *Triage
	if hasChat {
		triage = &Triage{Complexity: "high", Tier: "level1", Reason: "creator chat pending", NeedsFullPlan: true}
		log.Info("triage skipped", "reason", "creator_chat", "tier", triage.Tier)
	} else {
		triage = p.triage(ctx, in.State, in.Budget)
	}

	if !triage.NeedsFullPlan {
		p.consecutiveTriageOnly++
		if p.consecutiveTriageOnly >= forceFullPlanAfter {
			log.Info("forcing full plan after consecutive idle triages",
				"consecutive", p.consecutiveTriageOnly)
			p.consecutiveTriageOnly = 0
			triage.Complexity = "medium"
			triage.Tier = "level3"
			triage.NeedsFullPlan = true
			triage.Reason = "Forced periodic assessment after idle iterations. Check goals and find productive work using free models."
		} else {
			return p.minimalPlan(triage), nil
		}
	}

	p.consecutiveTriageOnly = 0
	return p.fullPlan(ctx, in, triage)
}

// minimalPlan is the idle short-circuit: no actions, no model call beyond
// the triage itself.
func (p *Planner) minimalPlan(triage *Triage) *Plan {
	reason := triage.Reason
	if reason == "" {
		reason = "idle"
	}
	sleep := defaultIdleSleep
	status := defaultIdleStatus
	if triage.QuickAction != nil {
		if triage.QuickAction.SleepSeconds > 0 {
			sleep = triage.QuickAction.SleepSeconds
		}
		if triage.QuickAction.StatusMessage != "" {
			status = triage.QuickAction.StatusMessage
		}
	}
	return &Plan{
		Thinking:      "[triage] " + reason,
		SleepSeconds:  sleep,
		StatusMessage: status,
		Triage:        triage,
		Model:         "triage-only",
		Provider:      "triage-only",
	}
}

func (p *Planner) fullPlan(ctx context.Context, in *Input, triage *Triage) (*Plan, error) {
	log := logger.FromContext(ctx)
	state := in.State
	hasChat := len(in.CreatorMessages) > 0

	p.working.SetSystemPrompt(p.prompt.Build(ctx, state, in.Budget, in.Tools))

	injected := p.retrieveMemories(ctx, in)

	tier := core.ParseTier(triage.Tier)
	p.working.AddMessage(core.UserMessage(p.iterationMessage(in, triage, tier, injected)))

	task := "planning"
	minTier := core.TierLevel2
	if hasChat {
		task = "chat_iteration"
		minTier = core.TierLevel1
	}
	resp, err := p.router.Complete(ctx, &router.Request{
		Messages:    p.working.MessagesForLLM(),
		Tier:        tier,
		MinTier:     minTier,
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
		Task:        task,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: full plan: %w", err)
	}

	plan := ParsePlan(resp.Content)
	plan.Triage = triage
	plan.Model = resp.Model
	plan.Provider = resp.Provider
	plan.TotalTokens = resp.TotalTokens
	p.working.AddMessage(core.AssistantMessage(resp.Content))
	p.ring.track(actionSignature(plan))

	log.Info("plan generated",
		"tier", tier, "model", resp.Model,
		"actions", len(plan.Actions), "has_chat_reply", plan.ChatReply != "",
		"thinking", core.Truncate(plan.Thinking, 100))
	return plan, nil
}

// retrieveMemories queries long-term memory with goals, active task and
// chat text, filters by the relevance threshold and injects the survivors.
// Returns how many were injected.
func (p *Planner) retrieveMemories(ctx context.Context, in *Input) int {
	cfg := p.working.Config()
	state := in.State
	var parts []string
	parts = append(parts, state.ShortTermGoals...)
	parts = append(parts, state.MidTermGoals...)
	parts = append(parts, state.LongTermGoals...)
	if state.ActiveTask != "" {
		parts = append(parts, state.ActiveTask)
	}
	parts = append(parts, in.CreatorMessages...)
	query := strings.TrimSpace(strings.Join(parts, " "))
	if query == "" {
		p.working.InjectMemories(nil)
		return 0
	}
	results, err := p.vector.Search(ctx, query, cfg.RetrievalCount)
	if err != nil {
		logger.FromContext(ctx).Warn("memory retrieval failed", "error", err)
		p.working.InjectMemories(nil)
		return 0
	}
	if cfg.RelevanceThreshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if float64(r.Similarity()) >= cfg.RelevanceThreshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	p.working.InjectMemories(results)
	return len(results)
}

// iterationMessage is the per-iteration user turn: situation, instructions,
// scratchpad, loop warnings and any pending creator chat.
func (p *Planner) iterationMessage(in *Input, triage *Triage, tier core.Tier, injected int) string {
	state := in.State
	cfg := p.working.Config()
	shortJSON, _ := json.Marshal(state.ShortTermGoals)
	midJSON, _ := json.Marshal(state.MidTermGoals)
	longJSON, _ := json.Marshal(state.LongTermGoals)
	activeTask := state.ActiveTask
	if activeTask == "" {
		activeTask = "None"
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		"This is iteration #%d. Short-term goals: %s. Mid-term goals: %s. Long-term goals: %s. "+
			"Active task: %s. Budget remaining: $%.2f (%.0f%% used). "+
			"Memory config: retrieval_count=%d, threshold=%g, decay=%g. "+
			"Memories injected this iteration: %d. "+
			"Triage assessment: complexity=%s, reason=%s. "+
			"You are running on tier=%s for this iteration. "+
			"Plan your next actions. Use tools to accomplish your goals. "+
			"You can update goals at any tier using goals_update with keys: short_term, mid_term, long_term. "+
			"You can tune memory_config: retrieval_count (1-100), relevance_threshold (0-1), decay_factor (0.5-1). "+
			"For each action you can specify \"tier\" to control which model handles that tool. "+
			"Set sleep_seconds to control when you wake next (10-3600). "+
			"Remember: Mistral, Devstral, and Ollama are FREE. Use them to stay productive "+
			"even when paid budget is low. Only sleep long if you truly have zero goals or tasks.",
		state.Iteration, shortJSON, midJSON, longJSON, activeTask,
		in.Budget.RemainingUSD(), in.Budget.PercentUsed,
		cfg.RetrievalCount, cfg.RelevanceThreshold, cfg.DecayFactor,
		injected, triage.Complexity, triage.Reason, tier)

	if len(state.Notes) > 0 {
		fmt.Fprintf(&b, "\n\n📝 **SHORT-TERM MEMORIES** (%d/%d slots):\n", len(state.Notes), agent.MaxNotes)
		for i, note := range state.Notes {
			fmt.Fprintf(&b, "  [%d] %s\n", i, note.Content)
		}
		b.WriteString(
			"\nManage these with `short_term_memories_update`: `{\"add\": [...]}` to add notes, " +
				"`{\"remove\": [0, 3]}` to remove by index, `{\"replace\": [...]}` to overwrite all. " +
				"Old entries auto-expire after 48h.")
	}

	if warning := p.ring.warning(); warning != "" {
		b.WriteString("\n\n" + warning)
	}

	if len(in.CreatorMessages) > 0 {
		b.WriteString("\n\n🔔 **CREATOR CHAT — your creator is talking to you directly. " +
			"You MUST include a `chat_reply` field in your response.**\n")
		for i, msg := range in.CreatorMessages {
			fmt.Fprintf(&b, "\nCreator message %d: %s", i+1, msg)
		}
		b.WriteString("\n\nRespond to the creator in `chat_reply` (markdown is fine). " +
			"You can ALSO take actions in `actions` if the creator asked you to do something. " +
			"Be specific and honest.")
	}

	return b.String()
}
