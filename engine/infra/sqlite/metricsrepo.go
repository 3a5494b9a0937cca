package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Metric is one named measurement with JSON labels.
type Metric struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Value     float64        `json:"value"`
	Labels    map[string]any `json:"labels,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MetricsRepo appends analytics gauges (iteration durations, tool counters).
type MetricsRepo struct{ db *sql.DB }

func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

func (r *MetricsRepo) RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error {
	if labels == nil {
		labels = map[string]any{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("sqlite: encode metric labels: %w", err)
	}
	const q = `INSERT INTO metrics (name, value, labels, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, name, value, string(labelsJSON), formatTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("sqlite: insert metric: %w", err)
	}
	return nil
}

// ListMetrics returns the newest samples for one metric name, oldest first.
func (r *MetricsRepo) ListMetrics(ctx context.Context, name string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, name, value, labels, created_at
		FROM metrics WHERE name = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, name, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list metrics: %w", err)
	}
	defer rows.Close()
	var out []Metric
	for rows.Next() {
		var (
			m         Metric
			labels    string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &labels, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan metric: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		if labels != "" && labels != "{}" {
			if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
				return nil, fmt.Errorf("sqlite: decode metric labels: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter metrics: %w", err)
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}
