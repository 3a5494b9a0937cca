package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/journal"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/memory/embedder"
	"github.com/aionlabs/aion/engine/memory/vectordb"
	"github.com/aionlabs/aion/engine/planner"
	"github.com/aionlabs/aion/engine/safety"
	"github.com/aionlabs/aion/engine/tool"
)

// memStateStore keeps the agent row in memory.
type memStateStore struct {
	mu    sync.Mutex
	state *agent.State
}

func (s *memStateStore) Get(context.Context) (*agent.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, agent.ErrStateNotFound
	}
	return s.state.Clone(), nil
}

func (s *memStateStore) Create(_ context.Context, state *agent.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}

func (s *memStateStore) Save(_ context.Context, state *agent.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}

func (s *memStateStore) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Paused = paused
	return nil
}

func (s *memStateStore) Heartbeat(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastHeartbeat = at
	return nil
}

// scriptedCompleter replays canned responses and records requests.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []*adapter.Response
	requests  []*router.Request
}

func (c *scriptedCompleter) queue(content string) *scriptedCompleter {
	c.responses = append(c.responses, &adapter.Response{
		Content:     content,
		Model:       "stub-model",
		Provider:    core.ProviderName("stub"),
		TotalTokens: 42,
	})
	return c
}

func (c *scriptedCompleter) Complete(_ context.Context, req *router.Request) (*adapter.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &adapter.Response{Content: "{}", Model: "stub-model", Provider: "stub"}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// memJournal collects events in memory.
type memJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (j *memJournal) Append(_ context.Context, eventType, content string, metadata map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, journal.Event{Type: eventType, Content: content, Metadata: metadata})
}

func (j *memJournal) byType(eventType string) []journal.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Event
	for _, e := range j.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubLedger serves a fixed budget status.
type stubLedger struct{ status *budget.Status }

func (s *stubLedger) Status(context.Context) (*budget.Status, error) { return s.status, nil }

func freeStatus() *budget.Status {
	return &budget.Status{
		MonthlyCap:  decimal.NewFromInt(20),
		Spent:       decimal.NewFromInt(2),
		Remaining:   decimal.NewFromInt(18),
		PercentUsed: 10,
		Providers:   []budget.ProviderStatus{{Provider: "mistral", Tier: budget.TierFree}},
	}
}

func paidOnlyStatus(remaining string) *budget.Status {
	rem := decimal.RequireFromString(remaining)
	return &budget.Status{
		MonthlyCap: decimal.NewFromInt(20),
		Remaining:  rem,
		Spent:      decimal.NewFromInt(20).Sub(rem),
		Providers:  []budget.ProviderStatus{{Provider: "openai", Tier: budget.TierPaid}},
	}
}

type loopHarness struct {
	loop      *Loop
	state     *agent.Manager
	completer *scriptedCompleter
	journal   *memJournal
	working   *memory.WorkingMemory
	vector    *memory.VectorMemory
	updates   *[]StatusUpdate
}

func newLoopHarness(t *testing.T, status *budget.Status) *loopHarness {
	t.Helper()
	ctx := context.Background()

	state := agent.NewManager(&memStateStore{})
	_, err := state.LoadOrCreate(ctx, "optimize yourself")
	require.NoError(t, err)

	completer := &scriptedCompleter{}
	working := memory.NewWorkingMemory(memory.DefaultWorkingConfig(), nil)
	vector, err := memory.NewVectorMemory(vectordb.NewMemoryStore(), embedder.NewHash(64))
	require.NoError(t, err)

	validator, err := safety.NewValidator([]string{t.TempDir()}, safety.EnvSecretSource)
	require.NoError(t, err)
	jnl := &memJournal{}
	dispatcher, err := tool.NewDispatcher(validator, jnl, nil)
	require.NoError(t, err)

	prompt := planner.NewPromptBuilder(validator.PromptSection(), nil, nil)
	plnr, err := planner.New(completer, working, vector, prompt)
	require.NoError(t, err)

	broadcaster := NewBroadcaster()
	var updates []StatusUpdate
	var mu sync.Mutex
	broadcaster.Subscribe(func(u StatusUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	loop, err := NewLoop(LoopDeps{
		State:       state,
		Planner:     plnr,
		Dispatcher:  dispatcher,
		Vector:      vector,
		Working:     working,
		Ledger:      &stubLedger{status: status},
		Journal:     jnl,
		Broadcaster: broadcaster,
	})
	require.NoError(t, err)
	return &loopHarness{
		loop:      loop,
		state:     state,
		completer: completer,
		journal:   jnl,
		working:   working,
		vector:    vector,
		updates:   &updates,
	}
}

func TestLoopIteration(t *testing.T) {
	ctx := context.Background()

	t.Run("Should run one happy planning iteration", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		h.completer.
			queue(`{"complexity":"low","tier":"level2","reason":"routine","needs_full_plan":true}`).
			queue(`{"thinking":"hi","actions":[],"status_message":"ok","sleep_seconds":30}`)

		sleepSeconds := h.loop.iterate(ctx)

		assert.Equal(t, 30, sleepSeconds)
		state := h.state.Snapshot()
		assert.Equal(t, 1, state.Iteration)
		assert.Equal(t, "ok", state.ActiveTask)
		assert.Len(t, h.journal.byType(journal.EventPlan), 1)
		assert.Empty(t, h.journal.byType(journal.EventToolOutput))
		assert.Empty(t, h.journal.byType(journal.EventError))
	})

	t.Run("Should serve a pending chat and resolve its future", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		h.completer.
			queue(`{"thinking":"computing","actions":[],"chat_reply":"4","status_message":"replied"}`)

		chat, err := h.loop.EnqueueChat(ctx, "what is 2+2?", "web")
		require.NoError(t, err)

		h.loop.iterate(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		result, err := chat.Wait(waitCtx)
		require.NoError(t, err)
		assert.Equal(t, "4", result.Reply)
		assert.Equal(t, "stub-model", result.Model)
		assert.Equal(t, core.ProviderName("stub"), result.Provider)
		assert.Equal(t, 42, result.TotalTokens)

		creator := h.journal.byType(journal.EventChatCreator)
		require.Len(t, creator, 1)
		assert.Equal(t, "what is 2+2?", creator[0].Content)
		replies := h.journal.byType(journal.EventChatAgent)
		require.Len(t, replies, 1)
		assert.Equal(t, "4", replies[0].Content)
	})

	t.Run("Should fall back to thinking when chat_reply is missing", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		h.completer.
			queue(`{"thinking":"I am pondering","actions":[],"status_message":"busy"}`)

		chat, err := h.loop.EnqueueChat(ctx, "hello?", "web")
		require.NoError(t, err)
		h.loop.iterate(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		result, err := chat.Wait(waitCtx)
		require.NoError(t, err)
		assert.Equal(t, "I am pondering", result.Reply)
	})

	t.Run("Should complete chat futures on iteration failure", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		// No queued responses: completer returns "{}" which parses into a
		// fallback plan, so force a failure through a nil budget instead.
		h.loop.ledger = &failingLedger{}

		chat, err := h.loop.EnqueueChat(ctx, "anyone there?", "web")
		require.NoError(t, err)
		h.loop.iterate(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		result, err := chat.Wait(waitCtx)
		require.NoError(t, err)
		assert.Contains(t, result.Reply, "I encountered an error")
		assert.NotEmpty(t, h.journal.byType(journal.EventError))
	})

	t.Run("Should broadcast planning and idle transitions", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		h.completer.
			queue(`{"complexity":"low","tier":"level2","reason":"routine","needs_full_plan":true}`).
			queue(`{"thinking":"hi","actions":[],"status_message":"ok","sleep_seconds":30}`)

		h.loop.iterate(ctx)

		statuses := make([]string, 0, len(*h.updates))
		for _, u := range *h.updates {
			statuses = append(statuses, u.Status)
		}
		assert.Contains(t, statuses, StatusPlanning)
		assert.Contains(t, statuses, StatusIdle)
	})

	t.Run("Should nap while paused without planning", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		require.NoError(t, h.state.SetPaused(ctx, true))

		done := make(chan struct{})
		go func() {
			h.loop.runOne(ctx)
			close(done)
		}()
		time.Sleep(50 * time.Millisecond)
		h.loop.Wake()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("paused nap was not interrupted")
		}
		assert.Zero(t, h.state.Iteration())
		assert.Empty(t, h.completer.requests)
	})
}

type failingLedger struct{}

func (failingLedger) Status(context.Context) (*budget.Status, error) {
	return nil, assert.AnError
}

func TestInterruptibleSleep(t *testing.T) {
	ctx := context.Background()

	t.Run("Should wake early when a chat is enqueued", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		started := time.Now()
		done := make(chan struct{})
		go func() {
			h.loop.interruptibleSleep(ctx, 5*time.Second)
			close(done)
		}()
		time.Sleep(50 * time.Millisecond)
		_, err := h.loop.EnqueueChat(ctx, "wake up", "web")
		require.NoError(t, err)
		select {
		case <-done:
			assert.Less(t, time.Since(started), 2*time.Second)
		case <-time.After(2 * time.Second):
			t.Fatal("sleep was not interrupted by chat enqueue")
		}
	})

	t.Run("Should not be cut short by a stale wake from the last iteration", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		h.loop.Wake()
		started := time.Now()
		h.loop.interruptibleSleep(ctx, 150*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)
	})

	t.Run("Should skip the nap entirely when a chat raced the drain", func(t *testing.T) {
		h := newLoopHarness(t, freeStatus())
		_, err := h.loop.EnqueueChat(ctx, "already waiting", "web")
		require.NoError(t, err)
		started := time.Now()
		h.loop.interruptibleSleep(ctx, 5*time.Second)
		assert.Less(t, time.Since(started), time.Second)
	})
}

func TestComputeSleep(t *testing.T) {
	plan := func(sleep int, actions int) *planner.Plan {
		p := &planner.Plan{SleepSeconds: sleep}
		for i := 0; i < actions; i++ {
			p.Actions = append(p.Actions, planner.Action{Tool: "web_search"})
		}
		return p
	}

	t.Run("Should honor an explicit request within bounds", func(t *testing.T) {
		assert.Equal(t, 30, computeSleep(plan(30, 1), paidOnlyStatus("15")))
	})

	t.Run("Should clamp explicit requests to the free-provider ceiling", func(t *testing.T) {
		assert.Equal(t, 120, computeSleep(plan(900, 0), freeStatus()))
		assert.Equal(t, 900, computeSleep(plan(900, 0), paidOnlyStatus("15")))
	})

	t.Run("Should enforce the minimum", func(t *testing.T) {
		assert.Equal(t, 10, computeSleep(plan(1, 1), paidOnlyStatus("15")))
	})

	t.Run("Should hibernate when broke with no free providers", func(t *testing.T) {
		assert.Equal(t, 3600, computeSleep(plan(0, 1), paidOnlyStatus("0.50")))
	})

	t.Run("Should stay active on free providers when broke", func(t *testing.T) {
		assert.Equal(t, 60, computeSleep(plan(0, 1), &budget.Status{
			Remaining: decimal.RequireFromString("0.50"),
			Providers: []budget.ProviderStatus{{Provider: "mistral", Tier: budget.TierFree}},
		}))
	})

	t.Run("Should rest longer after an idle iteration", func(t *testing.T) {
		assert.Equal(t, 120, computeSleep(plan(0, 0), paidOnlyStatus("15")))
	})

	t.Run("Should default to thirty seconds after active work", func(t *testing.T) {
		assert.Equal(t, 30, computeSleep(plan(0, 2), paidOnlyStatus("15")))
	})
}

func TestBroadcaster(t *testing.T) {
	t.Run("Should fan out to all subscribers", func(t *testing.T) {
		b := NewBroadcaster()
		var got []string
		var mu sync.Mutex
		record := func(u StatusUpdate) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, u.Status)
		}
		b.Subscribe(record)
		b.Subscribe(record)
		b.Publish(StatusIdle, nil)
		assert.Equal(t, []string{StatusIdle, StatusIdle}, got)
	})

	t.Run("Should survive panicking observers", func(t *testing.T) {
		b := NewBroadcaster()
		b.Subscribe(func(StatusUpdate) { panic("observer bug") })
		var called bool
		b.Subscribe(func(StatusUpdate) { called = true })
		assert.NotPanics(t, func() { b.Publish(StatusError, nil) })
		assert.True(t, called)
	})

	t.Run("Should stop delivering after unsubscribe", func(t *testing.T) {
		b := NewBroadcaster()
		var count int
		cancel := b.Subscribe(func(StatusUpdate) { count++ })
		b.Publish(StatusIdle, nil)
		cancel()
		b.Publish(StatusIdle, nil)
		assert.Equal(t, 1, count)
	})
}

func TestPendingChat(t *testing.T) {
	t.Run("Should resolve exactly once", func(t *testing.T) {
		chat := newPendingChat("hi", "web")
		chat.complete(&ChatResult{Reply: "first"})
		chat.complete(&ChatResult{Reply: "second"})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		result, err := chat.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", result.Reply)
	})

	t.Run("Should respect wait cancellation", func(t *testing.T) {
		chat := newPendingChat("hi", "web")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := chat.Wait(ctx)
		assert.Error(t, err)
	})

	t.Run("Should drain the queue atomically", func(t *testing.T) {
		q := &chatQueue{}
		ctx := context.Background()
		q.enqueue(ctx, "a", "web")
		q.enqueue(ctx, "b", "web")
		batch := q.drain()
		assert.Len(t, batch, 2)
		assert.Empty(t, q.drain())
	})
}
