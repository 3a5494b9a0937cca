package budget

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/core"
)

// ErrConfigNotFound is returned by stores before EnsureConfig has run.
var ErrConfigNotFound = errors.New("budget config not found")

// ErrBalanceNotFound is returned when a provider row does not exist.
var ErrBalanceNotFound = errors.New("provider balance not found")

// ProviderTier classifies how a provider charges.
type ProviderTier string

const (
	TierPaid    ProviderTier = "paid"
	TierFree    ProviderTier = "free"
	TierUnknown ProviderTier = "unknown"
)

// Currency units. Monetary currencies accumulate estimated USD cost;
// everything else counts one unit per successful call.
const (
	CurrencyUSD      = "USD"
	CurrencyEUR      = "EUR"
	CurrencyGBP      = "GBP"
	CurrencyCredits  = "credits"
	CurrencyRequests = "requests"
)

// IsMonetaryCurrency reports whether spend in the currency is tracked as USD
// cost rather than call counts.
func IsMonetaryCurrency(currency string) bool {
	switch currency {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// Config is the singleton spend ledger header.
type Config struct {
	MonthlyCap        decimal.Decimal `json:"monthly_cap"`
	CurrentMonth      string          `json:"current_month"` // YYYY-MM
	CurrentMonthTotal decimal.Decimal `json:"current_month_total"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Balance is one provider's tracked standing.
type Balance struct {
	Provider         core.ProviderName `json:"provider"`
	KnownBalance     *decimal.Decimal  `json:"known_balance,omitempty"`
	Currency         string            `json:"currency"`
	Tier             ProviderTier      `json:"tier"`
	SpentTracked     decimal.Decimal   `json:"spent_tracked"`
	BalanceUpdatedAt time.Time         `json:"balance_updated_at"`
	Notes            string            `json:"notes"`
}

// EstimatedRemaining returns max(0, known − spent) when a balance is known.
func (b *Balance) EstimatedRemaining() *decimal.Decimal {
	if b.KnownBalance == nil {
		return nil
	}
	remaining := b.KnownBalance.Sub(b.SpentTracked)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &remaining
}

// UsageRecord is one append-only line of the spend log.
type UsageRecord struct {
	ID           int64             `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Provider     core.ProviderName `json:"provider"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	CostUSD      decimal.Decimal   `json:"cost_usd"`
	Task         string            `json:"task"`
}

// ProviderStatus is the per-provider slice of a status snapshot.
type ProviderStatus struct {
	Provider           core.ProviderName `json:"provider"`
	Tier               ProviderTier      `json:"tier"`
	Currency           string            `json:"currency"`
	KnownBalance       *decimal.Decimal  `json:"known_balance,omitempty"`
	SpentTracked       decimal.Decimal   `json:"spent_tracked"`
	EstimatedRemaining *decimal.Decimal  `json:"estimated_remaining,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	BalanceUpdatedAt   time.Time         `json:"balance_updated_at"`
}

// Status source values: which term produced the overall remaining figure.
const (
	SourceConfig    = "config"
	SourceProviders = "providers"
)

// Status is the budget snapshot handed to the planner and control surface.
type Status struct {
	MonthlyCap  decimal.Decimal  `json:"monthly_cap"`
	Spent       decimal.Decimal  `json:"spent"`
	Remaining   decimal.Decimal  `json:"remaining"`
	PercentUsed float64          `json:"percent_used"`
	Source      string           `json:"source"`
	Providers   []ProviderStatus `json:"providers"`
}

// HasFreeProvider reports whether any provider rides a free tier.
func (s *Status) HasFreeProvider() bool {
	for i := range s.Providers {
		if s.Providers[i].Tier == TierFree {
			return true
		}
	}
	return false
}

// RemainingUSD is a float convenience for prompt rendering.
func (s *Status) RemainingUSD() float64 {
	f, _ := s.Remaining.Float64()
	return f
}

// Ops is the set of storage operations the ledger composes. The same
// interface is implemented by the base store and by an open transaction.
type Ops interface {
	GetConfig(ctx context.Context) (*Config, error)
	SaveConfig(ctx context.Context, cfg *Config) error
	GetBalance(ctx context.Context, provider core.ProviderName) (*Balance, error)
	ListBalances(ctx context.Context) ([]Balance, error)
	UpsertBalance(ctx context.Context, balance *Balance) error
	AppendUsage(ctx context.Context, rec *UsageRecord) error
	ListUsage(ctx context.Context, limit int) ([]UsageRecord, error)
}

// Store adds transaction scoping on top of Ops. Ledger mutations run inside
// a single transaction so monthly totals and balance rows move together.
type Store interface {
	Ops
	Tx(ctx context.Context, fn func(ops Ops) error) error
}
