package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/tool"
)

type memoryConfigParams struct {
	Action             string  `json:"action"                        jsonschema:"required,description='view' to see current settings or 'update' to change them"`
	RetrievalCount     int     `json:"retrieval_count,omitempty"     jsonschema:"description=Memories to retrieve per iteration (1-100)"`
	RelevanceThreshold float64 `json:"relevance_threshold,omitempty" jsonschema:"description=Minimum similarity 0-1 to include a memory; 0 includes all"`
	DecayFactor        float64 `json:"decay_factor,omitempty"        jsonschema:"description=Importance decay per maintenance cycle (0.5-1); lower decays faster"`
	MaxContextTokens   int     `json:"max_context_tokens,omitempty"  jsonschema:"description=Context window budget in tokens (10000-200000)"`
}

// MemoryConfigTool lets the agent inspect and tune its own working-memory
// settings. Values outside the allowed ranges are clamped, not rejected.
type MemoryConfigTool struct {
	working *memory.WorkingMemory
}

func NewMemoryConfigTool(working *memory.WorkingMemory) *MemoryConfigTool {
	return &MemoryConfigTool{working: working}
}

func (t *MemoryConfigTool) Name() string { return "memory_config" }

func (t *MemoryConfigTool) Description() string {
	return "View or update your memory settings: how many memories you retrieve, how relevant " +
		"they must be, how fast old memories decay, and your context window size. " +
		"Action: 'view' to see current settings, 'update' to change them."
}

func (t *MemoryConfigTool) Timeout() time.Duration { return 5 * time.Second }

func (t *MemoryConfigTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  tool.SchemaFor(&memoryConfigParams{}),
	}
}

func (t *MemoryConfigTool) Execute(_ context.Context, params map[string]any) (*tool.Result, error) {
	switch stringParam(params, "action") {
	case "view":
		return &tool.Result{Success: true, Output: renderConfig("Current memory settings:", t.working.Config())}, nil
	case "update":
		var patch memory.WorkingConfig
		var touched bool
		if v, ok := intParam(params, "retrieval_count"); ok {
			patch.RetrievalCount = v
			touched = true
		}
		if v, ok := floatParam(params, "relevance_threshold"); ok {
			// An explicit zero must not read as "field absent"; a negative
			// value survives the patch check and clamps back to zero.
			if v == 0 {
				v = -1
			}
			patch.RelevanceThreshold = v
			touched = true
		}
		if v, ok := floatParam(params, "decay_factor"); ok {
			patch.DecayFactor = v
			touched = true
		}
		if v, ok := intParam(params, "max_context_tokens"); ok {
			patch.MaxContextTokens = v
			touched = true
		}
		if !touched {
			return tool.Failure("No valid parameters. Provide retrieval_count, relevance_threshold, " +
				"decay_factor, or max_context_tokens."), nil
		}
		updated := t.working.UpdateConfig(patch)
		return &tool.Result{Success: true, Output: renderConfig("Updated memory settings:", updated)}, nil
	default:
		return tool.Failure(fmt.Sprintf("Unknown action: %s. Use 'view' or 'update'.",
			stringParam(params, "action"))), nil
	}
}

func renderConfig(header string, cfg memory.WorkingConfig) string {
	return fmt.Sprintf("%s\n"+
		"  retrieval_count: %d (memories per iteration, 1-100)\n"+
		"  relevance_threshold: %g (0-1, min similarity to include)\n"+
		"  decay_factor: %g (0.5-1, how fast old memories decay)\n"+
		"  max_context_tokens: %d (context window size)",
		header, cfg.RetrievalCount, cfg.RelevanceThreshold, cfg.DecayFactor, cfg.MaxContextTokens)
}
