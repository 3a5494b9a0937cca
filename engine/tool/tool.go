// Package tool defines the capability contract and the single dispatcher
// every tool invocation flows through.
package tool

import (
	"context"
	"time"
)

// DefaultTimeout bounds tools that do not declare their own limit.
const DefaultTimeout = 60 * time.Second

// Result is the uniform outcome of a tool invocation.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Failure builds an unsuccessful result from a message.
func Failure(message string) *Result {
	return &Result{Success: false, Error: message}
}

// Definition describes a tool to the planner: name, purpose and the JSON
// schema of its parameters.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool is a named capability with a JSON-schema parameter contract and a
// bounded execution timeout. Implementations must honor ctx cancellation
// where they can; the dispatcher enforces the wall clock regardless.
type Tool interface {
	Name() string
	Description() string
	Timeout() time.Duration
	Execute(ctx context.Context, params map[string]any) (*Result, error)
	Definition() Definition
}

// UsageEntry is one analytics row describing a dispatched invocation.
type UsageEntry struct {
	ID            int64     `json:"id"`
	Tool          string    `json:"tool"`
	Success       bool      `json:"success"`
	DurationMS    int64     `json:"duration_ms"`
	ParamsSummary string    `json:"params_summary"`
	OutputHead    string    `json:"output_head"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UsageStore persists usage entries for post-hoc analysis.
type UsageStore interface {
	AppendToolUsage(ctx context.Context, entry *UsageEntry) error
	ListToolUsage(ctx context.Context, limit int) ([]UsageEntry, error)
}
