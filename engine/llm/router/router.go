// Package router walks the tier chain for every LLM call: budget-driven
// downgrades, free-first ordering when money is tight, per-candidate retry
// on transient failures and failover to the next entry on anything else.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/journal"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/pkg/logger"
)

// minSpendProbe is the amount checked against the ledger before paying
// candidates are tried.
var minSpendProbe = decimal.NewFromFloat(0.01)

// preferFreeFloorUSD: below this remaining budget, free candidates are
// tried first regardless of the caller flag.
const preferFreeFloorUSD = 10.0

const (
	retryBackoffBase = 500 * time.Millisecond
	retryMaxAttempts = 1
)

// Budget is the ledger surface the router consumes.
type Budget interface {
	RecommendedTier(ctx context.Context) (core.Tier, error)
	CanSpend(ctx context.Context, estimatedUSD decimal.Decimal) (bool, error)
	RecordUsage(ctx context.Context, provider core.ProviderName, model string,
		inputTokens, outputTokens int, task string) (decimal.Decimal, error)
	Status(ctx context.Context) (*budget.Status, error)
}

// ClientSource hands out provider clients; adapter.Factory implements it.
type ClientSource interface {
	Available(provider core.ProviderName) bool
	Client(provider core.ProviderName, model string) (adapter.Client, error)
}

// Request is one routed completion.
type Request struct {
	Messages    []core.Message
	Tier        core.Tier
	MinTier     core.Tier // optional downgrade floor, empty = none
	Task        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	PreferFree  bool
}

// Router resolves requests against the tier table.
type Router struct {
	table   Table
	budget  Budget
	clients ClientSource
	journal journal.Writer
}

func New(table Table, budget Budget, clients ClientSource, jw journal.Writer) (*Router, error) {
	if budget == nil {
		return nil, core.NewError(errors.New("budget is required"), "MISSING_DEPENDENCY", nil)
	}
	if clients == nil {
		return nil, core.NewError(errors.New("client source is required"), "MISSING_DEPENDENCY", nil)
	}
	if jw == nil {
		return nil, core.NewError(errors.New("journal is required"), "MISSING_DEPENDENCY", nil)
	}
	if table == nil {
		table = DefaultTable()
	}
	return &Router{table: table, budget: budget, clients: clients, journal: jw}, nil
}

// Complete walks the chain from the effective tier until one candidate
// answers. The structured ALL_PROVIDERS_FAILED error carries the last
// candidate failure.
func (r *Router) Complete(ctx context.Context, req *Request) (*adapter.Response, error) {
	log := logger.FromContext(ctx)
	if len(req.Messages) == 0 {
		return nil, core.NewError(errors.New("messages are required"), "INVALID_INPUT", nil)
	}
	if req.Tier == "" {
		req.Tier = core.TierLevel2
	}

	effective, err := r.effectiveTier(ctx, req)
	if err != nil {
		return nil, err
	}
	preferFree := req.PreferFree
	if status, statusErr := r.budget.Status(ctx); statusErr == nil {
		preferFree = preferFree || status.RemainingUSD() < preferFreeFloorUSD
	} else {
		log.Warn("budget status unavailable, keeping caller free preference", "error", statusErr)
	}

	var lastErr error
	for _, tier := range chainFrom(effective) {
		candidates := r.table[tier]
		if preferFree {
			candidates = freeFirst(candidates)
		}
		for _, candidate := range candidates {
			if !r.clients.Available(candidate.Provider) {
				continue
			}
			if !candidate.Free() {
				ok, spendErr := r.budget.CanSpend(ctx, minSpendProbe)
				if spendErr != nil {
					log.Warn("can-spend check failed, skipping paid candidate",
						"provider", candidate.Provider, "error", spendErr)
					continue
				}
				if !ok {
					continue
				}
			}
			client, clientErr := r.clients.Client(candidate.Provider, candidate.Model)
			if clientErr != nil {
				log.Warn("provider client unavailable",
					"provider", candidate.Provider, "model", candidate.Model, "error", clientErr)
				lastErr = clientErr
				continue
			}
			resp, callErr := r.callCandidate(ctx, client, candidate, tier, req)
			if callErr != nil {
				lastErr = callErr
				log.Warn("candidate failed, trying next",
					"provider", candidate.Provider, "model", candidate.Model,
					"class", adapter.Classify(callErr), "error", callErr)
				continue
			}
			r.recordSuccess(ctx, candidate, tier, req, resp)
			return resp, nil
		}
	}
	return nil, core.NewError(
		fmt.Errorf("all LLM providers failed: %w", errors.Join(errors.New("chain exhausted"), lastErr)),
		"ALL_PROVIDERS_FAILED",
		map[string]any{"tier": string(effective), "task": req.Task},
	)
}

// effectiveTier applies the budget recommendation, never rising above the
// request and never sinking below the caller floor.
func (r *Router) effectiveTier(ctx context.Context, req *Request) (core.Tier, error) {
	recommended, err := r.budget.RecommendedTier(ctx)
	if err != nil {
		return "", fmt.Errorf("router: recommended tier: %w", err)
	}
	if req.Tier.IsCoding() {
		return r.effectiveCodingTier(ctx, req, recommended), nil
	}
	if recommended.Rank() <= req.Tier.Rank() {
		return req.Tier, nil
	}
	effective := recommended
	if req.MinTier != "" && effective.Rank() > req.MinTier.Rank() {
		effective = req.MinTier
		r.journal.Append(ctx, journal.EventTierDowngradeClamped,
			fmt.Sprintf("budget recommended %s, clamped to floor %s", recommended, effective),
			map[string]any{"requested": string(req.Tier), "recommended": string(recommended), "floor": string(req.MinTier)})
	} else {
		r.journal.Append(ctx, journal.EventTierDowngraded,
			fmt.Sprintf("downgraded %s to %s per budget", req.Tier, effective),
			map[string]any{"requested": string(req.Tier), "recommended": string(recommended)})
	}
	return effective, nil
}

// effectiveCodingTier mirrors the general downgrade inside the coding
// chain: the budget's general recommendation maps onto the same depth,
// capped at coding_level3.
func (r *Router) effectiveCodingTier(ctx context.Context, req *Request, recommended core.Tier) core.Tier {
	requestedRank := codingRank[req.Tier]
	recommendedRank := recommended.Rank()
	if recommendedRank > len(codingByRank)-1 {
		recommendedRank = len(codingByRank) - 1
	}
	if recommendedRank <= requestedRank {
		return req.Tier
	}
	effective := codingByRank[recommendedRank]
	if req.MinTier.IsCoding() && codingRank[effective] > codingRank[req.MinTier] {
		effective = req.MinTier
		r.journal.Append(ctx, journal.EventTierDowngradeClamped,
			fmt.Sprintf("budget recommended %s depth, clamped to floor %s", recommended, effective),
			map[string]any{"requested": string(req.Tier), "recommended": string(recommended), "floor": string(req.MinTier)})
	} else {
		r.journal.Append(ctx, journal.EventTierDowngraded,
			fmt.Sprintf("downgraded %s to %s per budget", req.Tier, effective),
			map[string]any{"requested": string(req.Tier), "recommended": string(recommended)})
	}
	return effective
}

// callCandidate invokes one provider, retrying once on transient classes.
func (r *Router) callCandidate(
	ctx context.Context,
	client adapter.Client,
	candidate Candidate,
	tier core.Tier,
	req *Request,
) (*adapter.Response, error) {
	r.journal.Append(ctx, journal.EventLLMRequest,
		fmt.Sprintf("%s/%s (%s)", candidate.Provider, candidate.Model, tier),
		map[string]any{
			"provider": string(candidate.Provider),
			"model":    candidate.Model,
			"tier":     string(tier),
			"task":     req.Task,
			"messages": len(req.Messages),
		})
	call := &adapter.Request{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	}
	var resp *adapter.Response
	backoff := retry.WithMaxRetries(retryMaxAttempts, retry.NewExponential(retryBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = client.Complete(ctx, call)
		if callErr != nil && adapter.Classify(callErr).Transient() {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Router) recordSuccess(
	ctx context.Context,
	candidate Candidate,
	tier core.Tier,
	req *Request,
	resp *adapter.Response,
) {
	cost, err := r.budget.RecordUsage(ctx, candidate.Provider, candidate.Model,
		resp.InputTokens, resp.OutputTokens, req.Task)
	if err != nil {
		logger.FromContext(ctx).Error("failed to record LLM usage",
			"provider", candidate.Provider, "model", candidate.Model, "error", err)
	}
	costF, _ := cost.Float64()
	r.journal.Append(ctx, journal.EventLLMResponse,
		core.Truncate(resp.Content, 500),
		map[string]any{
			"provider":      string(candidate.Provider),
			"model":         candidate.Model,
			"tier":          string(tier),
			"task":          req.Task,
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
			"cost_usd":      costF,
		})
}

// freeFirst stably moves free candidates ahead of paying ones.
func freeFirst(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Free() {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if !c.Free() {
			out = append(out, c)
		}
	}
	return out
}
