package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same operations
// serve direct reads and transactional mutations.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BudgetRepo implements budget.Store. Ledger mutations run inside a single
// transaction via Tx so monthly totals and balance rows move together.
type BudgetRepo struct {
	db *sql.DB
	budgetOps
}

func NewBudgetRepo(db *sql.DB) *BudgetRepo {
	return &BudgetRepo{db: db, budgetOps: budgetOps{q: db}}
}

// Tx runs fn against a transaction-scoped Ops, committing on success.
func (r *BudgetRepo) Tx(ctx context.Context, fn func(ops budget.Ops) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin budget tx: %w", err)
	}
	if err := fn(budgetOps{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("sqlite: rollback budget tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit budget tx: %w", err)
	}
	return nil
}

type budgetOps struct{ q querier }

func (o budgetOps) GetConfig(ctx context.Context) (*budget.Config, error) {
	const q = `SELECT monthly_cap, current_month, current_month_total, updated_at
		FROM budget_config WHERE id = 1`
	var capStr, total, updatedAt string
	cfg := &budget.Config{}
	err := o.q.QueryRowContext(ctx, q).Scan(&capStr, &cfg.CurrentMonth, &total, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, budget.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get budget config: %w", err)
	}
	if cfg.MonthlyCap, err = decimal.NewFromString(capStr); err != nil {
		return nil, fmt.Errorf("sqlite: decode monthly cap: %w", err)
	}
	if cfg.CurrentMonthTotal, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("sqlite: decode month total: %w", err)
	}
	cfg.UpdatedAt = parseTime(updatedAt)
	return cfg, nil
}

func (o budgetOps) SaveConfig(ctx context.Context, cfg *budget.Config) error {
	const q = `INSERT INTO budget_config (id, monthly_cap, current_month, current_month_total, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			monthly_cap = excluded.monthly_cap,
			current_month = excluded.current_month,
			current_month_total = excluded.current_month_total,
			updated_at = excluded.updated_at`
	_, err := o.q.ExecContext(ctx, q,
		cfg.MonthlyCap.String(), cfg.CurrentMonth, cfg.CurrentMonthTotal.String(),
		formatTime(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save budget config: %w", err)
	}
	return nil
}

const balanceColumns = `provider, known_balance, currency, tier, spent_tracked, balance_updated_at, notes`

func (o budgetOps) GetBalance(ctx context.Context, provider core.ProviderName) (*budget.Balance, error) {
	const q = `SELECT ` + balanceColumns + ` FROM provider_balance WHERE provider = ?`
	balance, err := scanBalance(o.q.QueryRowContext(ctx, q, provider.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, budget.ErrBalanceNotFound
	}
	return balance, err
}

func (o budgetOps) ListBalances(ctx context.Context) ([]budget.Balance, error) {
	const q = `SELECT ` + balanceColumns + ` FROM provider_balance ORDER BY provider`
	rows, err := o.q.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list provider balances: %w", err)
	}
	defer rows.Close()
	var out []budget.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter provider balances: %w", err)
	}
	return out, nil
}

func (o budgetOps) UpsertBalance(ctx context.Context, balance *budget.Balance) error {
	var known sql.NullString
	if balance.KnownBalance != nil {
		known = sql.NullString{String: balance.KnownBalance.String(), Valid: true}
	}
	const q = `INSERT INTO provider_balance (` + balanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
			known_balance = excluded.known_balance,
			currency = excluded.currency,
			tier = excluded.tier,
			spent_tracked = excluded.spent_tracked,
			balance_updated_at = excluded.balance_updated_at,
			notes = excluded.notes`
	_, err := o.q.ExecContext(ctx, q,
		balance.Provider.String(), known, balance.Currency, string(balance.Tier),
		balance.SpentTracked.String(), formatTime(balance.BalanceUpdatedAt), balance.Notes)
	if err != nil {
		return fmt.Errorf("sqlite: upsert provider balance: %w", err)
	}
	return nil
}

func (o budgetOps) AppendUsage(ctx context.Context, rec *budget.UsageRecord) error {
	const q = `INSERT INTO budget_usage
		(timestamp, provider, model, input_tokens, output_tokens, cost_usd, task)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := o.q.ExecContext(ctx, q,
		formatTime(rec.Timestamp), rec.Provider.String(), rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD.String(), rec.Task)
	if err != nil {
		return fmt.Errorf("sqlite: insert usage record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (o budgetOps) ListUsage(ctx context.Context, limit int) ([]budget.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, timestamp, provider, model, input_tokens, output_tokens, cost_usd, task
		FROM budget_usage ORDER BY id DESC LIMIT ?`
	rows, err := o.q.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list usage records: %w", err)
	}
	defer rows.Close()
	var out []budget.UsageRecord
	for rows.Next() {
		var (
			rec       budget.UsageRecord
			provider  string
			timestamp string
			cost      string
		)
		if err := rows.Scan(&rec.ID, &timestamp, &provider, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &cost, &rec.Task); err != nil {
			return nil, fmt.Errorf("sqlite: scan usage record: %w", err)
		}
		rec.Provider = core.ProviderName(provider)
		rec.Timestamp = parseTime(timestamp)
		if rec.CostUSD, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("sqlite: decode usage cost: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter usage records: %w", err)
	}
	return out, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanBalance(row rowScanner) (*budget.Balance, error) {
	var (
		balance   budget.Balance
		provider  string
		known     sql.NullString
		tier      string
		spent     string
		updatedAt string
	)
	err := row.Scan(&provider, &known, &balance.Currency, &tier, &spent, &updatedAt, &balance.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan provider balance: %w", err)
	}
	balance.Provider = core.ProviderName(provider)
	balance.Tier = budget.ProviderTier(tier)
	balance.BalanceUpdatedAt = parseTime(updatedAt)
	if balance.SpentTracked, err = decimal.NewFromString(spent); err != nil {
		return nil, fmt.Errorf("sqlite: decode spent tracked: %w", err)
	}
	if known.Valid {
		kb, err := decimal.NewFromString(known.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode known balance: %w", err)
		}
		balance.KnownBalance = &kb
	}
	return &balance, nil
}
