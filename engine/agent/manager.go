package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aionlabs/aion/pkg/logger"
)

// Manager owns the in-memory copy of the agent state. The iteration loop is
// the single writer; the watchdog and control surface read concurrently
// through snapshots.
type Manager struct {
	mu    sync.RWMutex
	store Store
	state *State
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// LoadOrCreate returns the persisted state, bootstrapping a fresh one from
// the directive on first run.
func (m *Manager) LoadOrCreate(ctx context.Context, directive string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.store.Get(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = NewState(directive, time.Now().UTC())
		if err := m.store.Create(ctx, state); err != nil {
			return nil, fmt.Errorf("agent: create state: %w", err)
		}
		logger.FromContext(ctx).Info("bootstrapped agent state", "directive", directive)
	case err != nil:
		return nil, fmt.Errorf("agent: load state: %w", err)
	}
	m.state = state
	return state.Clone(), nil
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Iteration returns the current iteration counter without copying the state.
func (m *Manager) Iteration() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0
	}
	return m.state.Iteration
}

// IsPaused reports the cached paused flag.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil && m.state.Paused
}

// LastHeartbeat returns the cached liveness timestamp.
func (m *Manager) LastHeartbeat() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return time.Time{}
	}
	return m.state.LastHeartbeat
}

// mutate clones the cached state, applies fn, persists the clone and swaps
// it in only after the save succeeds.
func (m *Manager) mutate(ctx context.Context, fn func(next *State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return ErrStateNotFound
	}
	next := m.state.Clone()
	fn(next)
	next.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("agent: save state: %w", err)
	}
	m.state = next
	return nil
}

// Update applies a partial update to the directive, goal tiers or active
// task. Nil fields are left untouched.
func (m *Manager) Update(ctx context.Context, req UpdateRequest) error {
	return m.mutate(ctx, func(next *State) {
		if req.Directive != nil {
			next.Directive = *req.Directive
		}
		if req.Goals != nil {
			if req.Goals.ShortTerm != nil {
				next.ShortTermGoals = append([]string(nil), req.Goals.ShortTerm...)
			}
			if req.Goals.MidTerm != nil {
				next.MidTermGoals = append([]string(nil), req.Goals.MidTerm...)
			}
			if req.Goals.LongTerm != nil {
				next.LongTermGoals = append([]string(nil), req.Goals.LongTerm...)
			}
		}
		if req.ActiveTask != nil {
			next.ActiveTask = *req.ActiveTask
		}
	})
}

// IncrementIteration bumps the loop counter and returns the new value.
func (m *Manager) IncrementIteration(ctx context.Context) (int, error) {
	var iteration int
	err := m.mutate(ctx, func(next *State) {
		next.Iteration++
		iteration = next.Iteration
	})
	return iteration, err
}

// SetPaused persists the paused flag. Setting the current value is a no-op.
func (m *Manager) SetPaused(ctx context.Context, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return ErrStateNotFound
	}
	if m.state.Paused == paused {
		return nil
	}
	if err := m.store.SetPaused(ctx, paused); err != nil {
		return fmt.Errorf("agent: set paused: %w", err)
	}
	next := m.state.Clone()
	next.Paused = paused
	next.UpdatedAt = time.Now().UTC()
	m.state = next
	return nil
}

// Heartbeat stamps liveness without rewriting the whole row.
func (m *Manager) Heartbeat(ctx context.Context) error {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return ErrStateNotFound
	}
	if err := m.store.Heartbeat(ctx, now); err != nil {
		return fmt.Errorf("agent: heartbeat: %w", err)
	}
	next := m.state.Clone()
	next.LastHeartbeat = now
	m.state = next
	return nil
}

// AddNotes appends scratch-pad entries, clamping length and evicting FIFO
// past the cap.
func (m *Manager) AddNotes(ctx context.Context, contents []string) error {
	now := time.Now().UTC()
	return m.mutate(ctx, func(next *State) {
		next.Notes = appendNotes(next.Notes, contents, next.Iteration, now)
	})
}

// ReplaceNotes swaps the whole scratch pad for the given entries.
func (m *Manager) ReplaceNotes(ctx context.Context, contents []string) error {
	now := time.Now().UTC()
	return m.mutate(ctx, func(next *State) {
		next.Notes = appendNotes(nil, contents, next.Iteration, now)
	})
}

// RemoveNotes drops scratch-pad entries by their rendered index.
func (m *Manager) RemoveNotes(ctx context.Context, indices []int) error {
	return m.mutate(ctx, func(next *State) {
		next.Notes = removeNotes(next.Notes, indices)
	})
}

// ClearNotes empties the scratch pad.
func (m *Manager) ClearNotes(ctx context.Context) error {
	return m.mutate(ctx, func(next *State) {
		next.Notes = nil
	})
}

// MaintainNotes evicts expired and overflowing scratch-pad entries and
// returns how many were dropped. A zero count skips the save.
func (m *Manager) MaintainNotes(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return 0, ErrStateNotFound
	}
	kept, evicted := expireNotes(m.state.Notes, now)
	if evicted == 0 {
		return 0, nil
	}
	next := m.state.Clone()
	next.Notes = kept
	next.UpdatedAt = now
	if err := m.store.Save(ctx, next); err != nil {
		return 0, fmt.Errorf("agent: save state: %w", err)
	}
	m.state = next
	return evicted, nil
}
