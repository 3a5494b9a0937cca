package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/tool"
)

// BudgetStatusSource is the slice of the ledger this tool needs.
type BudgetStatusSource interface {
	Status(ctx context.Context) (*budget.Status, error)
}

type budgetQueryParams struct{}

// BudgetQueryTool reports spend status. Read-only: the ledger is updated by
// the router, never through a tool.
type BudgetQueryTool struct {
	ledger BudgetStatusSource
}

func NewBudgetQueryTool(ledger BudgetStatusSource) *BudgetQueryTool {
	return &BudgetQueryTool{ledger: ledger}
}

func (t *BudgetQueryTool) Name() string { return "budget_query" }

func (t *BudgetQueryTool) Description() string {
	return "Check your current budget: monthly cap, amount spent, remaining funds and " +
		"per-provider breakdown. Use before planning expensive work."
}

func (t *BudgetQueryTool) Timeout() time.Duration { return 5 * time.Second }

func (t *BudgetQueryTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  tool.SchemaFor(&budgetQueryParams{}),
	}
}

func (t *BudgetQueryTool) Execute(ctx context.Context, _ map[string]any) (*tool.Result, error) {
	status, err := t.ledger.Status(ctx)
	if err != nil {
		return tool.Failure("failed to read budget status: " + err.Error()), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Monthly budget: $%s cap, $%s spent (%.1f%% used), $%s remaining\n",
		status.MonthlyCap.StringFixed(2), status.Spent.StringFixed(2),
		status.PercentUsed, status.Remaining.StringFixed(2))
	if len(status.Providers) > 0 {
		b.WriteString("Providers:\n")
		for i := range status.Providers {
			p := &status.Providers[i]
			fmt.Fprintf(&b, "  %s [%s]: %s %s tracked spend",
				p.Provider, p.Tier, p.SpentTracked.StringFixed(4), p.Currency)
			if p.EstimatedRemaining != nil {
				fmt.Fprintf(&b, ", ~%s %s remaining", p.EstimatedRemaining.StringFixed(2), p.Currency)
			}
			if p.Notes != "" {
				b.WriteString(" (" + p.Notes + ")")
			}
			b.WriteByte('\n')
		}
	}
	return &tool.Result{Success: true, Output: strings.TrimRight(b.String(), "\n")}, nil
}
