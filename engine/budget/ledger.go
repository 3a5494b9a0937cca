package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/budget/pricing"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/pkg/logger"
)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// defaultBalances is the provider set seeded by EnsureConfig. Balances here
// are starting estimates the creator is expected to correct over time.
func defaultBalances(now time.Time) []Balance {
	return []Balance{
		{
			Provider:         core.ProviderAnthropic,
			KnownBalance:     ptr(decimal.RequireFromString("11.71")),
			Currency:         CurrencyUSD,
			Tier:             TierPaid,
			Notes:            "Prepaid credits",
			BalanceUpdatedAt: now,
		},
		{
			Provider:         core.ProviderOpenAI,
			KnownBalance:     ptr(decimal.RequireFromString("18.85")),
			Currency:         CurrencyUSD,
			Tier:             TierPaid,
			Notes:            "Prepaid credits",
			BalanceUpdatedAt: now,
		},
		{
			Provider:         core.ProviderMistral,
			Currency:         CurrencyUSD,
			Tier:             TierFree,
			Notes:            "Free tier",
			BalanceUpdatedAt: now,
		},
		{
			Provider:         core.ProviderGrok,
			KnownBalance:     ptr(decimal.RequireFromString("25.00")),
			Currency:         CurrencyUSD,
			Tier:             TierPaid,
			Notes:            "$25/month free credits",
			BalanceUpdatedAt: now,
		},
		{
			Provider:         core.ProviderOllama,
			Currency:         CurrencyUSD,
			Tier:             TierFree,
			Notes:            "Local - no cost",
			BalanceUpdatedAt: now,
		},
		{
			Provider:         core.ProviderTavily,
			KnownBalance:     ptr(decimal.NewFromInt(1000)),
			Currency:         CurrencyCredits,
			Tier:             TierFree,
			Notes:            "Monthly plan - 1000 credits/month",
			BalanceUpdatedAt: now,
		},
	}
}

// Ledger is the authoritative budget authority: provider balances, monthly
// spend, pricing and tier recommendation.
type Ledger struct {
	store      Store
	monthlyCap decimal.Decimal
}

func NewLedger(store Store, monthlyCapUSD float64) (*Ledger, error) {
	if store == nil {
		return nil, core.NewError(errors.New("store is required"), "MISSING_DEPENDENCY", nil)
	}
	if monthlyCapUSD < 0 {
		return nil, core.NewError(errors.New("monthly cap must be >= 0"), "INVALID_CONFIG",
			map[string]any{"monthly_cap_usd": monthlyCapUSD})
	}
	return &Ledger{store: store, monthlyCap: decimal.NewFromFloat(monthlyCapUSD)}, nil
}

// monthTag formats the rollover key.
func monthTag(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// EnsureConfig idempotently creates the singleton config row and seeds the
// default provider set. Existing balances are never overwritten; missing
// providers are added and empty currencies reconciled.
func (l *Ledger) EnsureConfig(ctx context.Context) error {
	now := time.Now().UTC()
	err := l.store.Tx(ctx, func(ops Ops) error {
		cfg, err := ops.GetConfig(ctx)
		switch {
		case errors.Is(err, ErrConfigNotFound):
			cfg = &Config{
				MonthlyCap:        l.monthlyCap,
				CurrentMonth:      monthTag(now),
				CurrentMonthTotal: decimal.Zero,
				UpdatedAt:         now,
			}
			if err := ops.SaveConfig(ctx, cfg); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		existing, err := ops.ListBalances(ctx)
		if err != nil {
			return err
		}
		byProvider := make(map[core.ProviderName]Balance, len(existing))
		for _, b := range existing {
			byProvider[b.Provider] = b
		}
		for _, seed := range defaultBalances(now) {
			current, ok := byProvider[seed.Provider]
			if !ok {
				if err := ops.UpsertBalance(ctx, &seed); err != nil {
					return err
				}
				continue
			}
			if current.Currency == "" {
				current.Currency = seed.Currency
				if err := ops.UpsertBalance(ctx, &current); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("budget: ensure config: %w", err)
	}
	return nil
}

// RecordUsage estimates the call cost, appends a usage record, rolls the
// monthly total (resetting on month change) and bumps the provider's spend
// accumulator, all in one transaction.
func (l *Ledger) RecordUsage(
	ctx context.Context,
	provider core.ProviderName,
	model string,
	inputTokens, outputTokens int,
	task string,
) (decimal.Decimal, error) {
	now := time.Now().UTC()
	cost := pricing.Estimate(provider, model, inputTokens, outputTokens)
	err := l.store.Tx(ctx, func(ops Ops) error {
		cfg, err := ops.GetConfig(ctx)
		if errors.Is(err, ErrConfigNotFound) {
			cfg = &Config{MonthlyCap: l.monthlyCap, CurrentMonth: monthTag(now)}
		} else if err != nil {
			return err
		}
		if cfg.CurrentMonth != monthTag(now) {
			cfg.CurrentMonth = monthTag(now)
			cfg.CurrentMonthTotal = decimal.Zero
		}
		cfg.CurrentMonthTotal = cfg.CurrentMonthTotal.Add(cost)
		cfg.UpdatedAt = now
		if err := ops.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		balance, err := ops.GetBalance(ctx, provider)
		if errors.Is(err, ErrBalanceNotFound) {
			balance = &Balance{
				Provider:         provider,
				Currency:         CurrencyUSD,
				Tier:             TierUnknown,
				Notes:            "Auto-created from usage",
				BalanceUpdatedAt: now,
			}
		} else if err != nil {
			return err
		}
		if IsMonetaryCurrency(balance.Currency) {
			balance.SpentTracked = balance.SpentTracked.Add(cost)
		} else {
			balance.SpentTracked = balance.SpentTracked.Add(decimal.NewFromInt(1))
		}
		if err := ops.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		return ops.AppendUsage(ctx, &UsageRecord{
			Timestamp:    now,
			Provider:     provider,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			CostUSD:      cost,
			Task:         task,
		})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("budget: record usage: %w", err)
	}
	logger.FromContext(ctx).Debug("usage recorded",
		"provider", provider, "model", model, "cost_usd", cost.String(),
		"input_tokens", inputTokens, "output_tokens", outputTokens)
	return cost, nil
}

// Status computes the budget snapshot. Overall remaining is the larger of
// the config headroom and the summed monetary provider balances, so a
// creator-set cap always wins upward.
func (l *Ledger) Status(ctx context.Context) (*Status, error) {
	cfg, err := l.store.GetConfig(ctx)
	if errors.Is(err, ErrConfigNotFound) {
		cfg = &Config{MonthlyCap: l.monthlyCap, CurrentMonth: monthTag(time.Now().UTC())}
	} else if err != nil {
		return nil, fmt.Errorf("budget: load config: %w", err)
	}
	balances, err := l.store.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("budget: list balances: %w", err)
	}
	spent := cfg.CurrentMonthTotal
	if cfg.CurrentMonth != monthTag(time.Now().UTC()) {
		// Stale month: the next RecordUsage resets the total; report zero now.
		spent = decimal.Zero
	}
	configRemaining := cfg.MonthlyCap.Sub(spent)
	if configRemaining.IsNegative() {
		configRemaining = decimal.Zero
	}
	providersRemaining := decimal.Zero
	providers := make([]ProviderStatus, 0, len(balances))
	for i := range balances {
		b := balances[i]
		est := b.EstimatedRemaining()
		if est != nil && IsMonetaryCurrency(b.Currency) {
			providersRemaining = providersRemaining.Add(*est)
		}
		providers = append(providers, ProviderStatus{
			Provider:           b.Provider,
			Tier:               b.Tier,
			Currency:           b.Currency,
			KnownBalance:       b.KnownBalance,
			SpentTracked:       b.SpentTracked,
			EstimatedRemaining: est,
			Notes:              b.Notes,
			BalanceUpdatedAt:   b.BalanceUpdatedAt,
		})
	}
	remaining := configRemaining
	source := SourceConfig
	if providersRemaining.GreaterThan(configRemaining) {
		remaining = providersRemaining
		source = SourceProviders
	}
	percent := 0.0
	if cfg.MonthlyCap.IsPositive() {
		percent, _ = spent.Div(cfg.MonthlyCap).Mul(decimal.NewFromInt(100)).Float64()
	}
	return &Status{
		MonthlyCap:  cfg.MonthlyCap,
		Spent:       spent,
		Remaining:   remaining,
		PercentUsed: percent,
		Source:      source,
		Providers:   providers,
	}, nil
}

// UpdateProviderBalance upserts a provider row with a creator-supplied
// balance. Zero-value fields on an existing row are preserved.
func (l *Ledger) UpdateProviderBalance(
	ctx context.Context,
	provider core.ProviderName,
	knownBalance *decimal.Decimal,
	currency string,
	tier ProviderTier,
	notes string,
) error {
	now := time.Now().UTC()
	err := l.store.Tx(ctx, func(ops Ops) error {
		balance, err := ops.GetBalance(ctx, provider)
		if errors.Is(err, ErrBalanceNotFound) {
			balance = &Balance{Provider: provider, Currency: CurrencyUSD, Tier: TierUnknown}
		} else if err != nil {
			return err
		}
		if knownBalance != nil {
			balance.KnownBalance = knownBalance
		}
		if currency != "" {
			balance.Currency = currency
		}
		if tier != "" {
			balance.Tier = tier
		}
		if notes != "" {
			balance.Notes = notes
		}
		balance.BalanceUpdatedAt = now
		return ops.UpsertBalance(ctx, balance)
	})
	if err != nil {
		return fmt.Errorf("budget: update provider balance: %w", err)
	}
	return nil
}

// AddProvider registers a provider row if absent; an existing row is left
// untouched except for empty fields.
func (l *Ledger) AddProvider(
	ctx context.Context,
	provider core.ProviderName,
	knownBalance *decimal.Decimal,
	currency string,
	tier ProviderTier,
	notes string,
) error {
	return l.UpdateProviderBalance(ctx, provider, knownBalance, currency, tier, notes)
}

// CanSpend reports whether the estimated cost fits the remaining budget.
func (l *Ledger) CanSpend(ctx context.Context, estimatedUSD decimal.Decimal) (bool, error) {
	status, err := l.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Remaining.GreaterThanOrEqual(estimatedUSD), nil
}

// RecommendedTier maps budget headroom to a model tier, with a free-provider
// floor: as long as any free provider exists the agent never drops below
// level2, regardless of paid remaining.
func (l *Ledger) RecommendedTier(ctx context.Context) (core.Tier, error) {
	status, err := l.Status(ctx)
	if err != nil {
		return core.TierLocalOnly, err
	}
	return recommendTier(status), nil
}

func recommendTier(status *Status) core.Tier {
	remaining, _ := status.Remaining.Float64()
	tier := core.TierLevel1
	switch {
	case remaining < 1:
		tier = core.TierLocalOnly
	case remaining < 5 || status.PercentUsed >= 80:
		tier = core.TierLevel3
	case remaining < 15 || status.PercentUsed >= 60:
		tier = core.TierLevel2
	}
	if status.HasFreeProvider() && tier.Rank() > core.TierLevel2.Rank() {
		tier = core.TierLevel2
	}
	return tier
}
