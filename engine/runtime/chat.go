package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/pkg/logger"
)

// chatQueueSoftCap is advisory: enqueues beyond it still succeed but are
// logged so a runaway caller shows up in the logs.
const chatQueueSoftCap = 50

// SourceTelegram marks chats that need a reply pushed back through the
// ChatReplier in addition to the resolved future.
const SourceTelegram = "telegram"

// ChatResult is what a waiting chat caller eventually receives.
type ChatResult struct {
	Reply       string            `json:"reply"`
	Model       string            `json:"model"`
	Provider    core.ProviderName `json:"provider"`
	TotalTokens int               `json:"total_tokens"`
	Actions     []ActionSummary   `json:"actions,omitempty"`
}

// ActionSummary is the per-action digest attached to a chat result.
type ActionSummary struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// PendingChat is a creator message waiting for the next iteration. The
// future resolves exactly once.
type PendingChat struct {
	Message    string
	Source     string
	EnqueuedAt time.Time

	once   sync.Once
	respCh chan *ChatResult
}

func newPendingChat(message, source string) *PendingChat {
	return &PendingChat{
		Message:    message,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
		respCh:     make(chan *ChatResult, 1),
	}
}

// complete resolves the future. Extra calls are no-ops, so the error path
// can complete best-effort without racing the happy path.
func (p *PendingChat) complete(result *ChatResult) {
	p.once.Do(func() {
		p.respCh <- result
	})
}

// Wait blocks until the chat is served or the context ends.
func (p *PendingChat) Wait(ctx context.Context) (*ChatResult, error) {
	select {
	case result := <-p.respCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// chatQueue is the thread-safe FIFO between external surfaces and the loop.
type chatQueue struct {
	mu      sync.Mutex
	pending []*PendingChat
}

func (q *chatQueue) enqueue(ctx context.Context, message, source string) *PendingChat {
	chat := newPendingChat(message, source)
	q.mu.Lock()
	q.pending = append(q.pending, chat)
	depth := len(q.pending)
	q.mu.Unlock()
	if depth > chatQueueSoftCap {
		logger.FromContext(ctx).Warn("chat queue over soft cap", "depth", depth)
	}
	return chat
}

// drain swaps the whole batch out atomically.
func (q *chatQueue) drain() []*PendingChat {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *chatQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
