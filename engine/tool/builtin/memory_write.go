package builtin

import (
	"context"
	"time"

	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/tool"
)

const memoryWriteDefaultImportance = 0.7

type memoryWriteParams struct {
	Content    string  `json:"content"             jsonschema:"required,description=Memory content to store"`
	Importance float64 `json:"importance,omitempty" jsonschema:"description=Importance score 0-1 (default 0.7)"`
	Permanent  bool    `json:"permanent,omitempty"  jsonschema:"description=Never decays or expires when true"`
	TTLHours   int     `json:"ttl_hours,omitempty"  jsonschema:"description=Hours until expiry; -1 keeps forever (default)"`
	Source     string  `json:"source,omitempty"     jsonschema:"description=Origin label (default self)"`
}

// MemoryWriteTool stores a fact in long-term vector memory.
type MemoryWriteTool struct {
	memory *memory.VectorMemory
}

func NewMemoryWriteTool(mem *memory.VectorMemory) *MemoryWriteTool {
	return &MemoryWriteTool{memory: mem}
}

func (t *MemoryWriteTool) Name() string { return "memory_write" }

func (t *MemoryWriteTool) Description() string {
	return "Store a memory in long-term storage. Use for facts, lessons and decisions " +
		"worth keeping across restarts. Set permanent=true for knowledge that must never decay."
}

func (t *MemoryWriteTool) Timeout() time.Duration { return 15 * time.Second }

func (t *MemoryWriteTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  tool.SchemaFor(&memoryWriteParams{}),
	}
}

func (t *MemoryWriteTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	content := stringParam(params, "content")
	if content == "" {
		return tool.Failure("content is required"), nil
	}
	importance := memoryWriteDefaultImportance
	if v, ok := floatParam(params, "importance"); ok {
		importance = v
	}
	ttl := memory.TTLInfinite
	if v, ok := intParam(params, "ttl_hours"); ok {
		ttl = v
	}
	source := stringParam(params, "source")
	if source == "" {
		source = "self"
	}
	entry := memory.Entry{
		Content:    content,
		Importance: importance,
		TTLHours:   ttl,
		Source:     source,
		Permanent:  boolParam(params, "permanent"),
	}
	if entry.Permanent {
		entry.TTLHours = memory.TTLInfinite
	}
	inserted, err := t.memory.Add(ctx, entry, true)
	if err != nil {
		return tool.Failure("failed to store memory: " + err.Error()), nil
	}
	if !inserted {
		return &tool.Result{Success: true, Output: "Merged into an existing similar memory."}, nil
	}
	return &tool.Result{Success: true, Output: "Memory stored."}, nil
}
