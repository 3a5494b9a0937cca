package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aionlabs/aion/engine/core"
)

func TestLookup(t *testing.T) {
	t.Run("Should find a listed model", func(t *testing.T) {
		r := Lookup(core.ProviderAnthropic, "claude-opus-4-6")
		assert.True(t, r.InputPer1M.Equal(decimal.NewFromInt(5)))
		assert.True(t, r.OutputPer1M.Equal(decimal.NewFromInt(25)))
	})

	t.Run("Should normalize case, spaces and underscores", func(t *testing.T) {
		r := Lookup(core.ProviderOpenAI, " GPT_4o ")
		assert.True(t, r.InputPer1M.Equal(decimal.RequireFromString("2.5")))
	})

	t.Run("Should fall back to the provider default for unknown models", func(t *testing.T) {
		r := Lookup(core.ProviderAnthropic, "claude-unreleased")
		assert.True(t, r.InputPer1M.IsZero())
		assert.True(t, r.OutputPer1M.IsZero())
	})

	t.Run("Should return zero for unknown providers", func(t *testing.T) {
		r := Lookup(core.ProviderName("nonexistent"), "whatever")
		assert.True(t, r.InputPer1M.IsZero())
	})
}

func TestEstimate(t *testing.T) {
	t.Run("Should price both directions per million tokens", func(t *testing.T) {
		// 1M input at $3 + 1M output at $15.
		cost := Estimate(core.ProviderAnthropic, "claude-sonnet-4-20250514", 1_000_000, 1_000_000)
		assert.True(t, cost.Equal(decimal.NewFromInt(18)), "got %s", cost)
	})

	t.Run("Should scale fractionally for small calls", func(t *testing.T) {
		// 1000 in + 500 out on gpt-4o: 0.0025 + 0.005 = 0.0075.
		cost := Estimate(core.ProviderOpenAI, "gpt-4o", 1000, 500)
		assert.True(t, cost.Equal(decimal.RequireFromString("0.0075")), "got %s", cost)
	})

	t.Run("Should cost zero for free providers", func(t *testing.T) {
		assert.True(t, Estimate(core.ProviderOllama, "mistral:7b-instruct", 5000, 5000).IsZero())
	})
}
