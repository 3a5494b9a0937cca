package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aionlabs/aion/engine/core"
)

// WorkingConfig bounds the in-iteration context window. Values outside the
// clamp ranges are silently pulled back in.
type WorkingConfig struct {
	RetrievalCount     int     `json:"retrieval_count"`
	RelevanceThreshold float64 `json:"relevance_threshold"`
	DecayFactor        float64 `json:"decay_factor"`
	MaxContextTokens   int     `json:"max_context_tokens"`
}

// DefaultWorkingConfig matches the shipped runtime defaults.
func DefaultWorkingConfig() WorkingConfig {
	return WorkingConfig{
		RetrievalCount:     10,
		RelevanceThreshold: 0,
		DecayFactor:        0.95,
		MaxContextTokens:   120000,
	}
}

func clampWorkingConfig(cfg WorkingConfig) WorkingConfig {
	cfg.RetrievalCount = core.ClampInt(cfg.RetrievalCount, 1, 100)
	cfg.RelevanceThreshold = core.ClampFloat(cfg.RelevanceThreshold, 0, 1)
	cfg.DecayFactor = core.ClampFloat(cfg.DecayFactor, 0.5, 1)
	cfg.MaxContextTokens = core.ClampInt(cfg.MaxContextTokens, 10000, 200000)
	return cfg
}

// WorkingMemory is the volatile per-iteration context: a system prompt, a
// rolling message window and memories injected from retrieval. Trimming
// drops the oldest non-system messages until the estimate fits the
// configured token budget.
type WorkingMemory struct {
	mu       sync.Mutex
	cfg      WorkingConfig
	counter  TokenCounter
	system   string
	messages []core.Message
	injected []SearchResult
}

func NewWorkingMemory(cfg WorkingConfig, counter TokenCounter) *WorkingMemory {
	if counter == nil {
		counter = EstimatorCounter{}
	}
	return &WorkingMemory{cfg: clampWorkingConfig(cfg), counter: counter}
}

// Config returns the clamped configuration in effect.
func (w *WorkingMemory) Config() WorkingConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// UpdateConfig applies per-field overrides; zero-valued fields keep their
// current setting. The result is clamped.
func (w *WorkingMemory) UpdateConfig(patch WorkingConfig) WorkingConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.cfg
	if patch.RetrievalCount != 0 {
		next.RetrievalCount = patch.RetrievalCount
	}
	if patch.RelevanceThreshold != 0 {
		next.RelevanceThreshold = patch.RelevanceThreshold
	}
	if patch.DecayFactor != 0 {
		next.DecayFactor = patch.DecayFactor
	}
	if patch.MaxContextTokens != 0 {
		next.MaxContextTokens = patch.MaxContextTokens
	}
	w.cfg = clampWorkingConfig(next)
	return w.cfg
}

// SetSystemPrompt replaces the pinned system message.
func (w *WorkingMemory) SetSystemPrompt(prompt string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.system = prompt
}

// AddMessage appends to the rolling window and trims if the budget is
// exceeded.
func (w *WorkingMemory) AddMessage(msg core.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msg)
	w.trimLocked()
}

// InjectMemories replaces the retrieval block, dropping results below the
// relevance threshold.
func (w *WorkingMemory) InjectMemories(results []SearchResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.injected = w.injected[:0]
	for _, r := range results {
		if float64(r.Similarity()) < w.cfg.RelevanceThreshold {
			continue
		}
		w.injected = append(w.injected, r)
	}
	w.trimLocked()
}

// Messages returns a copy of the rolling window, system prompt excluded.
func (w *WorkingMemory) Messages() []core.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// MessagesForLLM assembles the full exchange: one system message carrying
// the prompt plus the injected-memories block, then the rolling window.
func (w *WorkingMemory) MessagesForLLM() []core.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Message, 0, len(w.messages)+1)
	system := w.system
	if block := w.memoryBlockLocked(); block != "" {
		if system != "" {
			system += "\n" + block
		} else {
			system = block
		}
	}
	if system != "" {
		out = append(out, core.SystemMessage(system))
	}
	out = append(out, w.messages...)
	return out
}

func (w *WorkingMemory) memoryBlockLocked() string {
	if len(w.injected) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## RELEVANT MEMORIES\n")
	for _, r := range w.injected {
		fmt.Fprintf(&b, "- [importance %.2f] %s\n", r.Importance, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// EstimateTokens reports the token estimate of the assembled exchange.
func (w *WorkingMemory) EstimateTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimateLocked()
}

func (w *WorkingMemory) estimateLocked() int {
	total := w.counter.Count(w.system) + w.counter.Count(w.memoryBlockLocked())
	for _, msg := range w.messages {
		total += w.counter.Count(msg.Content)
	}
	return total
}

// trimLocked drops the oldest non-system messages until the estimate fits
// the budget. At least the two most recent messages always survive.
func (w *WorkingMemory) trimLocked() {
	for w.estimateLocked() > w.cfg.MaxContextTokens && len(w.messages) > 2 {
		w.messages = w.messages[1:]
	}
}

// SummarizeAndCompress collapses everything but the last two messages into
// a single summary message. The summary text comes from the caller, which
// typically asks a cheap model for it.
func (w *WorkingMemory) SummarizeAndCompress(summary string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) <= 2 {
		return
	}
	tail := make([]core.Message, 2)
	copy(tail, w.messages[len(w.messages)-2:])
	w.messages = w.messages[:0]
	if summary != "" {
		w.messages = append(w.messages, core.SystemMessage("Summary of earlier conversation:\n"+summary))
	}
	w.messages = append(w.messages, tail...)
	w.trimLocked()
}

// Reset clears the rolling window and injected memories, keeping config
// and system prompt.
func (w *WorkingMemory) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = w.messages[:0]
	w.injected = w.injected[:0]
}
