package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aionlabs/aion/engine/tool"
)

// ToolUsageRepo implements tool.UsageStore.
type ToolUsageRepo struct{ db *sql.DB }

func NewToolUsageRepo(db *sql.DB) *ToolUsageRepo { return &ToolUsageRepo{db: db} }

func (r *ToolUsageRepo) AppendToolUsage(ctx context.Context, entry *tool.UsageEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO tool_usage_log
		(tool, success, duration_ms, params_summary, output_head, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	success := 0
	if entry.Success {
		success = 1
	}
	res, err := r.db.ExecContext(ctx, q,
		entry.Tool, success, entry.DurationMS, entry.ParamsSummary,
		entry.OutputHead, entry.Error, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert tool usage: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (r *ToolUsageRepo) ListToolUsage(ctx context.Context, limit int) ([]tool.UsageEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, tool, success, duration_ms, params_summary, output_head, error, created_at
		FROM tool_usage_log ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tool usage: %w", err)
	}
	defer rows.Close()
	var out []tool.UsageEntry
	for rows.Next() {
		var (
			entry     tool.UsageEntry
			success   int
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Tool, &success, &entry.DurationMS,
			&entry.ParamsSummary, &entry.OutputHead, &entry.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan tool usage: %w", err)
		}
		entry.Success = success != 0
		entry.CreatedAt = parseTime(createdAt)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter tool usage: %w", err)
	}
	return out, nil
}
