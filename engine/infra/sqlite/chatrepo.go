package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aionlabs/aion/engine/agent"
)

// ChatRepo implements agent.ChatStore: the persisted creator/agent transcript.
type ChatRepo struct{ db *sql.DB }

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{db: db} }

func (r *ChatRepo) Insert(ctx context.Context, msg *agent.ChatMessage) (int64, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("sqlite: encode chat metadata: %w", err)
	}
	const q = `INSERT INTO chat_messages (role, content, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		string(msg.Role), msg.Content, msg.Source, string(metaJSON), formatTime(msg.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert chat message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert chat message: %w", err)
	}
	msg.ID = id
	return id, nil
}

func (r *ChatRepo) ListRecent(ctx context.Context, limit int) ([]agent.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, role, content, source, metadata, created_at
		FROM chat_messages ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list chat messages: %w", err)
	}
	defer rows.Close()
	var out []agent.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter chat messages: %w", err)
	}
	// Reverse to oldest-first for rendering.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func scanChatMessage(rows *sql.Rows) (*agent.ChatMessage, error) {
	var (
		msg       agent.ChatMessage
		role      string
		metaJSON  string
		createdAt string
	)
	if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Source, &metaJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: scan chat message: %w", err)
	}
	msg.Role = agent.ChatRole(role)
	msg.CreatedAt = parseTime(createdAt)
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: decode chat metadata: %w", err)
		}
	}
	return &msg, nil
}
