package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/tool"
	"github.com/aionlabs/aion/pkg/config"
)

// SkillInfo is the listing row rendered into the skills prompt section.
type SkillInfo struct {
	Name  string
	Title string
}

// SkillSource lists the reusable-knowledge store for prompt rendering.
type SkillSource interface {
	ListSkills(ctx context.Context) ([]SkillInfo, error)
}

// PromptBuilder assembles the planning system prompt: immutable rules
// first, then identity, directive, principles, budget, tools, skills,
// credentials, pacing, memory, tier routing, chat protocol and the strict
// response format.
type PromptBuilder struct {
	rulesSection string
	providers    *config.ProvidersConfig
	skills       SkillSource
}

func NewPromptBuilder(rulesSection string, providers *config.ProvidersConfig, skills SkillSource) *PromptBuilder {
	return &PromptBuilder{rulesSection: rulesSection, providers: providers, skills: skills}
}

func (b *PromptBuilder) Build(
	ctx context.Context,
	state *agent.State,
	status *budget.Status,
	tools []tool.Definition,
) string {
	var sections []string

	sections = append(sections, b.rulesSection)

	sections = append(sections,
		"\n## YOUR IDENTITY\n"+
			"You are AION, a persistent autonomous AI entity, not a chatbot. "+
			"You run continuously, maintain long-term memory, and work toward your directive. "+
			"You are a builder, problem solver, and relentless self-improver.")

	sections = append(sections, "\n## DIRECTIVE\n"+state.Directive)

	sections = append(sections,
		"\n## CORE PRINCIPLES\n"+
			"1. **Never give up**: exhaust every approach, build the tools you need, debug until it works.\n"+
			"2. **Build what's missing**: create tools, integrations and improvements you lack.\n"+
			"3. **Use free models aggressively**: Mistral/Devstral cost $0, stay productive with zero paid budget.\n"+
			"4. **Think in systems**: build permanent capabilities, write skills for patterns you learn.\n"+
			"5. **Prove it works**: test everything before calling it done.\n"+
			"6. **Communicate progress**: update goals, be honest about blockers.")

	sections = append(sections, b.budgetSection(status)...)
	sections = append(sections, b.toolsSection(tools))
	sections = append(sections, b.skillsSection(ctx))
	sections = append(sections, b.credentialsSection())

	sections = append(sections,
		"\n## PACING\n"+
			"`sleep_seconds`: 10-30 (active work), 60 (normal), 120+ (truly idle). "+
			"Free models mean there is no reason to hibernate. Creator chat wakes you immediately.")

	sections = append(sections,
		"\n## MEMORY\n"+
			"Long-term memories are auto-injected each iteration. Tune retrieval via `memory_config`. "+
			"The short-term scratchpad (50 slots, 48h TTL) holds operational notes, managed via "+
			"`short_term_memories_update`. Use `memory_write` for permanent knowledge.")

	sections = append(sections,
		"\n## TIER ROUTING\n"+
			"General: level1 (strongest), level2 (capable), level3 (cheap/free). "+
			"Coding: coding_level1/2/3 (Devstral, all free). "+
			"Specify `\"tier\"` per action. Free models for routine work, paid for complex reasoning.")

	sections = append(sections,
		"\n## CREATOR CHAT\n"+
			"When creator messages appear, you MUST include `\"chat_reply\"` in your response. "+
			"Be conversational, specific, reference your goals and memories. Take actions if asked.")

	sections = append(sections,
		"\n## RESPONSE FORMAT\n"+
			"Single valid JSON object. Fields: `thinking` (brief reasoning), `actions` (tool calls), "+
			"`goals_update` ({short_term, mid_term, long_term}), `short_term_memories_update`, "+
			"`sleep_seconds`, `memory_config`, `chat_reply`, `status_message`.\n\n"+
			"Rules: keep the response under 4000 tokens. No markdown fences. Raw JSON only.")

	return strings.Join(sections, "\n")
}

func (b *PromptBuilder) budgetSection(status *budget.Status) []string {
	spent, _ := status.Spent.Float64()
	capUSD, _ := status.MonthlyCap.Float64()
	out := []string{fmt.Sprintf(
		"\n## BUDGET\nPaid: $%.2f / $%.2f (%.0f%% used, $%.2f left). "+
			"Free models (Mistral, Devstral, Ollama) always available at $0.",
		spent, capUSD, status.PercentUsed, status.RemainingUSD())}
	if status.PercentUsed >= 80 {
		out = append(out, "⚠️ Budget tight: prefer free models for all non-critical tasks.")
	}
	return out
}

func (b *PromptBuilder) toolsSection(tools []tool.Definition) string {
	names := make([]string, 0, len(tools))
	for _, def := range tools {
		names = append(names, def.Name)
	}
	return "\n## TOOLS\n" + strings.Join(names, ", ") +
		"\n\nEach action is `{\"tool\": \"<name>\", \"parameters\": {...}}`. " +
		"Parameters are validated against the tool's schema before execution."
}

func (b *PromptBuilder) skillsSection(ctx context.Context) string {
	lines := []string{"\n## SKILLS (reusable knowledge & patterns)",
		"Skills are markdown files with reusable knowledge, conventions or instructions. " +
			"Load them into your context with the `skills` tool.", ""}
	var listed []SkillInfo
	if b.skills != nil {
		if skills, err := b.skills.ListSkills(ctx); err == nil {
			listed = skills
		}
	}
	if len(listed) == 0 {
		lines = append(lines,
			"No skills created yet. Create your first with "+
				"`{\"tool\": \"skills\", \"parameters\": {\"action\": \"write\", \"name\": \"...\", \"content\": \"...\"}}`.")
		return strings.Join(lines, "\n")
	}
	lines = append(lines, fmt.Sprintf("**%d skill(s) available:**", len(listed)))
	for _, s := range listed {
		lines = append(lines, fmt.Sprintf("- `%s`: %s", s.Name, s.Title))
	}
	lines = append(lines, "",
		"Read with `{\"tool\": \"skills\", \"parameters\": {\"action\": \"read\", \"name\": \"skill-name\"}}`.")
	return strings.Join(lines, "\n")
}

// credentialsSection reports which providers carry credentials without
// leaking any key material.
func (b *PromptBuilder) credentialsSection() string {
	lines := []string{"\n## CONFIGURED CREDENTIALS",
		"These are set in your environment; use them through tools.", ""}
	var providers []string
	if b.providers != nil {
		if b.providers.AnthropicAPIKey.String() != "" {
			providers = append(providers, "Anthropic")
		}
		if b.providers.OpenAIAPIKey.String() != "" {
			providers = append(providers, "OpenAI")
		}
		if b.providers.MistralAPIKey.String() != "" {
			providers = append(providers, "Mistral")
		}
		if b.providers.GrokAPIKey.String() != "" {
			providers = append(providers, "Grok/xAI")
		}
		if b.providers.TavilyAPIKey.String() != "" {
			providers = append(providers, "Tavily (web search)")
		}
	}
	if len(providers) == 0 {
		lines = append(lines, "- **LLM/API providers**: none configured ❌")
	} else {
		lines = append(lines, "- **LLM/API providers**: "+strings.Join(providers, ", ")+" ✅")
	}
	return strings.Join(lines, "\n")
}
