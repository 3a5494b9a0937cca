package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aionlabs/aion/engine/agent"
)

// StateRepo implements agent.Store over the single agent_state row.
type StateRepo struct{ db *sql.DB }

func NewStateRepo(db *sql.DB) *StateRepo { return &StateRepo{db: db} }

const stateColumns = `directive, short_term_goals, mid_term_goals, long_term_goals,
	active_task, iteration, paused, short_term_memories, started_at, last_heartbeat, updated_at`

func (r *StateRepo) Get(ctx context.Context) (*agent.State, error) {
	const q = `SELECT ` + stateColumns + ` FROM agent_state WHERE id = 1`
	var (
		state                        agent.State
		shortGoals, midGoals         string
		longGoals, notes             string
		paused                       int
		startedAt, heartbeat, update string
	)
	err := r.db.QueryRowContext(ctx, q).Scan(
		&state.Directive, &shortGoals, &midGoals, &longGoals,
		&state.ActiveTask, &state.Iteration, &paused, &notes,
		&startedAt, &heartbeat, &update,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agent.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get agent state: %w", err)
	}
	state.Paused = paused != 0
	state.StartedAt = parseTime(startedAt)
	state.LastHeartbeat = parseTime(heartbeat)
	state.UpdatedAt = parseTime(update)
	if err := json.Unmarshal([]byte(shortGoals), &state.ShortTermGoals); err != nil {
		return nil, fmt.Errorf("sqlite: decode short term goals: %w", err)
	}
	if err := json.Unmarshal([]byte(midGoals), &state.MidTermGoals); err != nil {
		return nil, fmt.Errorf("sqlite: decode mid term goals: %w", err)
	}
	if err := json.Unmarshal([]byte(longGoals), &state.LongTermGoals); err != nil {
		return nil, fmt.Errorf("sqlite: decode long term goals: %w", err)
	}
	if err := json.Unmarshal([]byte(notes), &state.Notes); err != nil {
		return nil, fmt.Errorf("sqlite: decode short term memories: %w", err)
	}
	return &state, nil
}

func (r *StateRepo) Create(ctx context.Context, state *agent.State) error {
	cols, err := encodeState(state)
	if err != nil {
		return err
	}
	const q = `INSERT INTO agent_state
		(id, directive, short_term_goals, mid_term_goals, long_term_goals, current_goals,
		 active_task, iteration, paused, short_term_memories, started_at, last_heartbeat, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, cols...); err != nil {
		return fmt.Errorf("sqlite: create agent state: %w", err)
	}
	return nil
}

func (r *StateRepo) Save(ctx context.Context, state *agent.State) error {
	cols, err := encodeState(state)
	if err != nil {
		return err
	}
	const q = `UPDATE agent_state SET
		directive = ?, short_term_goals = ?, mid_term_goals = ?, long_term_goals = ?,
		current_goals = ?, active_task = ?, iteration = ?, paused = ?,
		short_term_memories = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
		WHERE id = 1`
	res, err := r.db.ExecContext(ctx, q, cols...)
	if err != nil {
		return fmt.Errorf("sqlite: save agent state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: save agent state: %w", err)
	}
	if affected == 0 {
		return agent.ErrStateNotFound
	}
	return nil
}

func (r *StateRepo) SetPaused(ctx context.Context, paused bool) error {
	const q = `UPDATE agent_state SET paused = ?, updated_at = ? WHERE id = 1`
	flag := 0
	if paused {
		flag = 1
	}
	if _, err := r.db.ExecContext(ctx, q, flag, formatTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("sqlite: set paused: %w", err)
	}
	return nil
}

func (r *StateRepo) Heartbeat(ctx context.Context, at time.Time) error {
	const q = `UPDATE agent_state SET last_heartbeat = ? WHERE id = 1`
	if _, err := r.db.ExecContext(ctx, q, formatTime(at)); err != nil {
		return fmt.Errorf("sqlite: heartbeat: %w", err)
	}
	return nil
}

// encodeState renders the column values in insert/update order. The legacy
// current_goals column mirrors the short-term tier on every write.
func encodeState(state *agent.State) ([]any, error) {
	shortGoals, err := json.Marshal(orEmpty(state.ShortTermGoals))
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode short term goals: %w", err)
	}
	midGoals, err := json.Marshal(orEmpty(state.MidTermGoals))
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode mid term goals: %w", err)
	}
	longGoals, err := json.Marshal(orEmpty(state.LongTermGoals))
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode long term goals: %w", err)
	}
	notes := state.Notes
	if notes == nil {
		notes = []agent.Note{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode short term memories: %w", err)
	}
	paused := 0
	if state.Paused {
		paused = 1
	}
	return []any{
		state.Directive,
		string(shortGoals), string(midGoals), string(longGoals),
		string(shortGoals), // current_goals legacy mirror
		state.ActiveTask, state.Iteration, paused, string(notesJSON),
		formatTime(state.StartedAt), formatTime(state.LastHeartbeat), formatTime(state.UpdatedAt),
	}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
