package core

// ProviderName identifies an LLM or service provider tracked by the runtime.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderMistral   ProviderName = "mistral"
	ProviderGrok      ProviderName = "grok"
	ProviderOllama    ProviderName = "ollama"
	ProviderTavily    ProviderName = "tavily"
	ProviderMock      ProviderName = "mock" // testing only
)

func (p ProviderName) String() string {
	return string(p)
}

// ProviderConfig carries the credentials and endpoint for one provider.
type ProviderConfig struct {
	Provider ProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string       `json:"model"    yaml:"model"    mapstructure:"model"`
	APIKey   string       `json:"api_key"  yaml:"api_key"  mapstructure:"api_key"`
	APIURL   string       `json:"api_url"  yaml:"api_url"  mapstructure:"api_url"`
}

// Tier orders model strength classes from strongest to local-only fallback.
type Tier string

const (
	TierLevel1    Tier = "level1"
	TierLevel2    Tier = "level2"
	TierLevel3    Tier = "level3"
	TierLocalOnly Tier = "local_only"

	TierCodingLevel1 Tier = "coding_level1"
	TierCodingLevel2 Tier = "coding_level2"
	TierCodingLevel3 Tier = "coding_level3"
)

func (t Tier) String() string {
	return string(t)
}

// IsCoding reports whether the tier belongs to the coding chain.
func (t Tier) IsCoding() bool {
	switch t {
	case TierCodingLevel1, TierCodingLevel2, TierCodingLevel3:
		return true
	}
	return false
}

// generalTierRank orders the general chain; lower rank = stronger models.
var generalTierRank = map[Tier]int{
	TierLevel1:    0,
	TierLevel2:    1,
	TierLevel3:    2,
	TierLocalOnly: 3,
}

// Rank returns the position of a general tier in the downgrade order, or -1
// for coding tiers and unknown values.
func (t Tier) Rank() int {
	if r, ok := generalTierRank[t]; ok {
		return r
	}
	return -1
}

// ParseTier normalizes a tier string, defaulting to level2 for unknown input.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierLevel1, TierLevel2, TierLevel3, TierLocalOnly,
		TierCodingLevel1, TierCodingLevel2, TierCodingLevel3:
		return Tier(s)
	}
	return TierLevel2
}

// CostClass buckets a tier-table candidate by expected spend.
type CostClass string

const (
	CostHigh   CostClass = "high"
	CostMedium CostClass = "medium"
	CostLow    CostClass = "low"
	CostFree   CostClass = "free"
)
