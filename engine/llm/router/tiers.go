package router

import "github.com/aionlabs/aion/engine/core"

// Candidate is one provider/model entry of a tier table.
type Candidate struct {
	Provider core.ProviderName `json:"provider"`
	Model    string            `json:"model"`
	Cost     core.CostClass    `json:"cost_class"`
}

// Free reports whether the candidate costs nothing to call.
func (c Candidate) Free() bool {
	return c.Cost == core.CostFree
}

// Table maps tiers to ordered candidate lists, strongest first. Free
// entries appear in every tier so the chain stays walkable with zero paid
// budget.
type Table map[core.Tier][]Candidate

// DefaultTable is the shipped routing configuration.
func DefaultTable() Table {
	return Table{
		core.TierLevel1: {
			{core.ProviderAnthropic, "claude-opus-4-6", core.CostHigh},
			{core.ProviderOpenAI, "gpt-5.2", core.CostHigh},
			{core.ProviderGrok, "grok-4-1-fast-reasoning", core.CostLow},
			{core.ProviderMistral, "mistral-large-latest", core.CostFree},
		},
		core.TierLevel2: {
			{core.ProviderAnthropic, "claude-sonnet-4-20250514", core.CostMedium},
			{core.ProviderOpenAI, "gpt-4o", core.CostMedium},
			{core.ProviderGrok, "grok-4-1-fast-non-reasoning", core.CostLow},
			{core.ProviderMistral, "mistral-large-latest", core.CostFree},
			{core.ProviderGrok, "grok-3-mini", core.CostLow},
			{core.ProviderAnthropic, "claude-haiku-35-20241022", core.CostLow},
			{core.ProviderMistral, "mistral-small-latest", core.CostFree},
		},
		core.TierLevel3: {
			{core.ProviderMistral, "mistral-small-latest", core.CostFree},
			{core.ProviderGrok, "grok-3-mini", core.CostLow},
			{core.ProviderOpenAI, "gpt-4o-mini", core.CostLow},
			{core.ProviderOllama, "mistral:7b-instruct", core.CostFree},
		},
		core.TierLocalOnly: {
			{core.ProviderMistral, "mistral-small-latest", core.CostFree},
			{core.ProviderOllama, "mistral:7b-instruct", core.CostFree},
		},
		core.TierCodingLevel1: {
			{core.ProviderMistral, "devstral-medium-2507", core.CostFree},
			{core.ProviderGrok, "grok-code-fast-1", core.CostLow},
			{core.ProviderGrok, "grok-4-1-fast-reasoning", core.CostLow},
			{core.ProviderAnthropic, "claude-opus-4-6", core.CostHigh},
			{core.ProviderMistral, "mistral-large-latest", core.CostFree},
		},
		core.TierCodingLevel2: {
			{core.ProviderMistral, "devstral-small-2507", core.CostFree},
			{core.ProviderMistral, "devstral-medium-2507", core.CostFree},
			{core.ProviderGrok, "grok-code-fast-1", core.CostLow},
			{core.ProviderAnthropic, "claude-sonnet-4-20250514", core.CostMedium},
			{core.ProviderMistral, "mistral-large-latest", core.CostFree},
		},
		core.TierCodingLevel3: {
			{core.ProviderMistral, "devstral-small-2507", core.CostFree},
			{core.ProviderMistral, "mistral-small-latest", core.CostFree},
			{core.ProviderGrok, "grok-3-mini", core.CostLow},
			{core.ProviderOpenAI, "gpt-4o-mini", core.CostLow},
		},
	}
}

// generalChain and codingChain define the fall-through order; the coding
// chain joins the general chain after coding_level3.
var (
	generalChain = []core.Tier{core.TierLevel1, core.TierLevel2, core.TierLevel3, core.TierLocalOnly}
	codingChain  = []core.Tier{
		core.TierCodingLevel1, core.TierCodingLevel2, core.TierCodingLevel3,
		core.TierLevel3, core.TierLocalOnly,
	}
)

// chainFrom returns the tiers to walk starting at the effective tier.
func chainFrom(tier core.Tier) []core.Tier {
	chain := generalChain
	if tier.IsCoding() {
		chain = codingChain
	}
	for i, t := range chain {
		if t == tier {
			return chain[i:]
		}
	}
	return chain
}

// codingRank orders the coding chain for downgrade math.
var codingRank = map[core.Tier]int{
	core.TierCodingLevel1: 0,
	core.TierCodingLevel2: 1,
	core.TierCodingLevel3: 2,
}

// codingByRank is the inverse of codingRank.
var codingByRank = []core.Tier{core.TierCodingLevel1, core.TierCodingLevel2, core.TierCodingLevel3}
