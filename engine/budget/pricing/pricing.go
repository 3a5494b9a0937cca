// Package pricing holds the static per-million-token cost catalog used for
// usage estimation. Rates drift as vendors reprice; treat values as
// estimates, not invoices.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/core"
)

// Rate is the USD price per one million tokens, split by direction.
type Rate struct {
	InputPer1M  decimal.Decimal
	OutputPer1M decimal.Decimal
}

const defaultModelKey = "default"

var zeroRate = Rate{InputPer1M: decimal.Zero, OutputPer1M: decimal.Zero}

func rate(input, output string) Rate {
	return Rate{
		InputPer1M:  decimal.RequireFromString(input),
		OutputPer1M: decimal.RequireFromString(output),
	}
}

// catalog maps provider -> normalized model -> rate. Unlisted models fall
// back to the provider's "default" entry, which is zero unless stated.
var catalog = map[core.ProviderName]map[string]Rate{
	core.ProviderAnthropic: {
		"claude-opus-4-6":          rate("5", "25"),
		"claude-sonnet-4-20250514": rate("3", "15"),
		"claude-haiku-35-20241022": rate("0.8", "4"),
		defaultModelKey:            zeroRate,
	},
	core.ProviderOpenAI: {
		"gpt-5.2":       rate("1.75", "14"),
		"gpt-4o":        rate("2.5", "10"),
		"gpt-4o-mini":   rate("0.15", "0.6"),
		defaultModelKey: zeroRate,
	},
	core.ProviderMistral: {
		"mistral-large-latest": rate("2", "6"),
		"mistral-small-latest": rate("0.2", "0.6"),
		"devstral-medium-2507": rate("0.4", "2"),
		"devstral-small-2507":  rate("0.1", "0.3"),
		defaultModelKey:        zeroRate,
	},
	core.ProviderGrok: {
		"grok-4-1-fast-reasoning":     rate("0.2", "0.5"),
		"grok-4-1-fast-non-reasoning": rate("0.2", "0.5"),
		"grok-3-mini":                 rate("0.3", "0.5"),
		"grok-code-fast-1":            rate("0.2", "1.5"),
		defaultModelKey:               zeroRate,
	},
	core.ProviderOllama: {
		defaultModelKey: zeroRate,
	},
	core.ProviderTavily: {
		defaultModelKey: zeroRate,
	},
}

// normalizeModel makes lookups tolerant of case, spaces and underscores.
func normalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	model = strings.ReplaceAll(model, "_", "-")
	model = strings.ReplaceAll(model, " ", "-")
	return model
}

// Lookup returns the rate for a provider/model pair, falling back to the
// provider default and then to zero for unknown providers.
func Lookup(provider core.ProviderName, model string) Rate {
	models, ok := catalog[provider]
	if !ok {
		return zeroRate
	}
	if r, ok := models[normalizeModel(model)]; ok {
		return r
	}
	if r, ok := models[defaultModelKey]; ok {
		return r
	}
	return zeroRate
}

var oneMillion = decimal.NewFromInt(1_000_000)

// Estimate computes the USD cost for a call given its token counts.
func Estimate(provider core.ProviderName, model string, inputTokens, outputTokens int) decimal.Decimal {
	r := Lookup(provider, model)
	in := decimal.NewFromInt(int64(inputTokens)).Mul(r.InputPer1M).Div(oneMillion)
	out := decimal.NewFromInt(int64(outputTokens)).Mul(r.OutputPer1M).Div(oneMillion)
	return in.Add(out)
}
