package agent

import (
	"errors"
	"time"

	"github.com/aionlabs/aion/engine/core"
)

// ErrStateNotFound is returned by stores when the singleton row is missing.
var ErrStateNotFound = errors.New("agent state not found")

// Default goal tiers seeded on first run.
var (
	DefaultShortTermGoals = []string{
		"Initialize systems and understand my capabilities",
	}
	DefaultMidTermGoals = []string{
		"Develop self-improvement projects",
		"Test and document all tools",
	}
	DefaultLongTermGoals = []string{
		"Become a capable autonomous assistant",
		"Build lasting infrastructure",
		"Maintain alignment with the creator",
	}
)

// State is the durable singleton describing the agent. Only the Manager
// mutates it; everything else receives snapshots.
type State struct {
	Directive      string    `json:"directive"`
	ShortTermGoals []string  `json:"short_term_goals"`
	MidTermGoals   []string  `json:"mid_term_goals"`
	LongTermGoals  []string  `json:"long_term_goals"`
	ActiveTask     string    `json:"active_task"`
	Iteration      int       `json:"iteration"`
	Paused         bool      `json:"paused"`
	Notes          []Note    `json:"short_term_memories"`
	StartedAt      time.Time `json:"started_at"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewState seeds a fresh state with the given directive and default goals.
func NewState(directive string, now time.Time) *State {
	return &State{
		Directive:      directive,
		ShortTermGoals: core.CloneStrings(DefaultShortTermGoals),
		MidTermGoals:   core.CloneStrings(DefaultMidTermGoals),
		LongTermGoals:  core.CloneStrings(DefaultLongTermGoals),
		Notes:          []Note{},
		StartedAt:      now,
		LastHeartbeat:  now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.ShortTermGoals = core.CloneStrings(s.ShortTermGoals)
	out.MidTermGoals = core.CloneStrings(s.MidTermGoals)
	out.LongTermGoals = core.CloneStrings(s.LongTermGoals)
	out.Notes = make([]Note, len(s.Notes))
	copy(out.Notes, s.Notes)
	return &out
}

// GoalsUpdate replaces whole goal tiers; nil slices leave a tier untouched.
type GoalsUpdate struct {
	ShortTerm []string `json:"short_term,omitempty"`
	MidTerm   []string `json:"mid_term,omitempty"`
	LongTerm  []string `json:"long_term,omitempty"`
}

func (g *GoalsUpdate) IsZero() bool {
	return g == nil || (g.ShortTerm == nil && g.MidTerm == nil && g.LongTerm == nil)
}

// UpdateRequest is a partial state mutation; nil fields are left unchanged.
type UpdateRequest struct {
	Directive  *string
	Goals      *GoalsUpdate
	ActiveTask *string
}

// ChatRole labels transcript rows.
type ChatRole string

const (
	ChatRoleCreator ChatRole = "creator"
	ChatRoleAgent   ChatRole = "agent"
)

// ChatMessage is one persisted line of the creator/agent transcript.
type ChatMessage struct {
	ID        int64          `json:"id"`
	Role      ChatRole       `json:"role"`
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
