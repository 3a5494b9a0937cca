package agent

import (
	"context"
	"time"
)

// Store persists the single agent row. Implementations live in
// engine/infra/sqlite.
type Store interface {
	// Get returns the persisted state, or ErrStateNotFound when the agent
	// has never been bootstrapped.
	Get(ctx context.Context) (*State, error)
	// Create inserts the initial row. Calling it twice is an error.
	Create(ctx context.Context, state *State) error
	// Save overwrites the persisted row with the given state.
	Save(ctx context.Context, state *State) error
	// SetPaused flips only the paused flag.
	SetPaused(ctx context.Context, paused bool) error
	// Heartbeat updates only the liveness timestamp.
	Heartbeat(ctx context.Context, at time.Time) error
}

// ChatStore persists the creator/agent conversation transcript.
type ChatStore interface {
	Insert(ctx context.Context, msg *ChatMessage) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]ChatMessage, error)
}
