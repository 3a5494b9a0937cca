package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/journal"
	"github.com/aionlabs/aion/engine/safety"
	"github.com/aionlabs/aion/pkg/logger"
)

const (
	outputJournalHead = 500
	paramsSummaryMax  = 200
)

// Dispatcher is the chokepoint for tool execution: registry lookup, safety
// gate, wall-clock timeout, output sanitization and journaling.
type Dispatcher struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator *safety.Validator
	journal   journal.Writer
	usage     UsageStore
}

// NewDispatcher builds a dispatcher. The usage store may be nil, in which
// case analytics rows are skipped.
func NewDispatcher(validator *safety.Validator, jw journal.Writer, usage UsageStore) (*Dispatcher, error) {
	if validator == nil {
		return nil, core.NewError(errors.New("safety validator is required"), "MISSING_DEPENDENCY", nil)
	}
	if jw == nil {
		return nil, core.NewError(errors.New("journal writer is required"), "MISSING_DEPENDENCY", nil)
	}
	return &Dispatcher{
		tools:     make(map[string]Tool),
		validator: validator,
		journal:   jw,
		usage:     usage,
	}, nil
}

// Register adds a tool to the registry. Re-registering a name is an error.
func (d *Dispatcher) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return core.NewError(errors.New("tool must have a name"), "INVALID_CONFIG", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name()]; exists {
		return core.NewError(errors.New("tool already registered"), "INVALID_CONFIG",
			map[string]any{"tool": t.Name()})
	}
	d.tools[t.Name()] = t
	return nil
}

// Has reports whether a tool name is registered.
func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tools[name]
	return ok
}

// Definitions lists registered tools sorted by name, for prompt rendering.
func (d *Dispatcher) Definitions() []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Definition, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t.Definition())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Execute runs one tool invocation end to end. It never returns nil and
// never panics outward; every failure mode is folded into the Result.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]any) *Result {
	started := time.Now()
	d.mu.RLock()
	t, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		result := Failure(fmt.Sprintf("Unknown tool: %s", name))
		d.record(ctx, name, params, result, time.Since(started))
		return result
	}
	if err := ValidateParams(t.Definition(), params); err != nil {
		result := Failure(fmt.Sprintf("Invalid parameters: %v", err))
		d.record(ctx, name, params, result, time.Since(started))
		return result
	}
	if ok, reason := d.validator.ValidateAction(safety.Action{Tool: name, Parameters: params}); !ok {
		logger.FromContext(ctx).Warn("action blocked by safety", "tool", name, "reason", reason)
		result := Failure("Blocked by safety: " + reason)
		d.record(ctx, name, params, result, time.Since(started))
		return result
	}
	result := d.run(ctx, t, params)
	result.Output = d.validator.SanitizeOutput(result.Output)
	result.Error = d.validator.SanitizeOutput(result.Error)
	d.record(ctx, name, params, result, time.Since(started))
	return result
}

// run invokes the tool under its wall-clock timeout. The tool runs in its
// own goroutine so a non-cooperative implementation cannot stall the loop.
func (d *Dispatcher) run(ctx context.Context, t Tool, params map[string]any) *Result {
	timeout := t.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		result, err := t.Execute(execCtx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return Failure(fmt.Sprintf("Tool timed out after %ds", int(timeout.Seconds())))
		}
		return Failure("Tool canceled: " + execCtx.Err().Error())
	case out := <-done:
		switch {
		case out.err != nil:
			return Failure(out.err.Error())
		case out.result == nil:
			return Failure("Tool returned no result")
		default:
			return out.result
		}
	}
}

// record journals the invocation and appends the analytics row.
func (d *Dispatcher) record(ctx context.Context, name string, params map[string]any, result *Result, took time.Duration) {
	summary := d.validator.SanitizeOutput(summarizeParams(params))
	head := core.Truncate(result.Output, outputJournalHead)
	d.journal.Append(ctx, journal.EventToolExecution, head, map[string]any{
		"tool":           name,
		"success":        result.Success,
		"duration_ms":    took.Milliseconds(),
		"params_summary": summary,
		"error":          result.Error,
	})
	if d.usage == nil {
		return
	}
	entry := &UsageEntry{
		Tool:          name,
		Success:       result.Success,
		DurationMS:    took.Milliseconds(),
		ParamsSummary: summary,
		OutputHead:    head,
		Error:         result.Error,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.usage.AppendToolUsage(ctx, entry); err != nil {
		logger.FromContext(ctx).Warn("tool usage log append failed", "tool", name, "error", err)
	}
}

// summarizeParams renders a compact JSON head of the parameters for audit
// rows. Values are included as-is; the safety layer already rejected actions
// carrying raw secrets.
func summarizeParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%d params (unserializable)", len(params))
	}
	return core.Truncate(string(raw), paramsSummaryMax)
}
