package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/journal"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/planner"
	"github.com/aionlabs/aion/engine/tool"
	"github.com/aionlabs/aion/pkg/logger"
)

const (
	pausedNap = 5 * time.Second

	resultOutputMax   = 600
	resultErrorMax    = 300
	vectorOutputMax   = 500
	vectorErrorMax    = 300
	chatExcerptMax    = 300
	chatThinkingMax   = 2000
	actionSummaryMax  = 300
	maintenanceEvery  = 10
	deduplicateEvery  = 50
	scratchpadAutoMax = 200
)

// substantiveTools marks tools whose results are worth long-term memory.
// Plumbing tools (state reads, config views) stay out of the vector store.
var substantiveTools = map[string]struct{}{
	"coding_agent":   {},
	"web_search":     {},
	"web_browse":     {},
	"self_modify":    {},
	"self_analysis":  {},
	"send_email":     {},
	"send_telegram":  {},
	"http_request":   {},
	"memory_write":   {},
	"news_monitor":   {},
	"code_exec":      {},
	"browser_agent":  {},
	"code_architect": {},
}

// BudgetReader is the slice of the ledger the loop consumes.
type BudgetReader interface {
	Status(ctx context.Context) (*budget.Status, error)
}

// ChatTranscript persists served chat rows. Optional.
type ChatTranscript interface {
	Insert(ctx context.Context, msg *agent.ChatMessage) (int64, error)
}

// MetricsRecorder stores per-iteration measurements. Optional.
type MetricsRecorder interface {
	RecordMetric(ctx context.Context, name string, value float64, labels map[string]any) error
}

// ChatReplier pushes replies back to an external chat surface. Only
// telegram-source chats go through it today.
type ChatReplier interface {
	Reply(ctx context.Context, chatSource, message string) error
}

// actionResult pairs an executed action with its outcome.
type actionResult struct {
	Tool   string
	Result *tool.Result
}

// Loop is the agent's heartbeat. One goroutine runs it; everything it
// mutates (state, working memory, planner ring) is owned by that goroutine.
type Loop struct {
	state       *agent.Manager
	planner     *planner.Planner
	dispatcher  *tool.Dispatcher
	vector      *memory.VectorMemory
	working     *memory.WorkingMemory
	ledger      BudgetReader
	journal     journal.Writer
	broadcaster *Broadcaster
	chats       *chatQueue
	transcript  ChatTranscript
	metrics     MetricsRecorder
	replier     ChatReplier

	wake             chan struct{}
	iterationTimeout time.Duration
}

// LoopDeps collects the loop's collaborators. Transcript, metrics and
// replier may be nil.
type LoopDeps struct {
	State       *agent.Manager
	Planner     *planner.Planner
	Dispatcher  *tool.Dispatcher
	Vector      *memory.VectorMemory
	Working     *memory.WorkingMemory
	Ledger      BudgetReader
	Journal     journal.Writer
	Broadcaster *Broadcaster
	Transcript  ChatTranscript
	Metrics     MetricsRecorder
	Replier     ChatReplier

	IterationTimeout time.Duration
}

func NewLoop(deps LoopDeps) (*Loop, error) {
	switch {
	case deps.State == nil:
		return nil, core.NewError(errors.New("state manager is required"), "MISSING_DEPENDENCY", nil)
	case deps.Planner == nil:
		return nil, core.NewError(errors.New("planner is required"), "MISSING_DEPENDENCY", nil)
	case deps.Dispatcher == nil:
		return nil, core.NewError(errors.New("dispatcher is required"), "MISSING_DEPENDENCY", nil)
	case deps.Vector == nil:
		return nil, core.NewError(errors.New("vector memory is required"), "MISSING_DEPENDENCY", nil)
	case deps.Working == nil:
		return nil, core.NewError(errors.New("working memory is required"), "MISSING_DEPENDENCY", nil)
	case deps.Ledger == nil:
		return nil, core.NewError(errors.New("budget reader is required"), "MISSING_DEPENDENCY", nil)
	case deps.Journal == nil:
		return nil, core.NewError(errors.New("journal writer is required"), "MISSING_DEPENDENCY", nil)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewBroadcaster()
	}
	if deps.IterationTimeout <= 0 {
		deps.IterationTimeout = 15 * time.Minute
	}
	return &Loop{
		state:            deps.State,
		planner:          deps.Planner,
		dispatcher:       deps.Dispatcher,
		vector:           deps.Vector,
		working:          deps.Working,
		ledger:           deps.Ledger,
		journal:          deps.Journal,
		broadcaster:      deps.Broadcaster,
		chats:            &chatQueue{},
		transcript:       deps.Transcript,
		metrics:          deps.Metrics,
		replier:          deps.Replier,
		wake:             make(chan struct{}, 1),
		iterationTimeout: deps.IterationTimeout,
	}, nil
}

// Wake interrupts the current sleep. Idempotent and non-blocking.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// EnqueueChat queues a creator message for the next iteration and wakes
// the loop.
func (l *Loop) EnqueueChat(ctx context.Context, message, source string) (*PendingChat, error) {
	if strings.TrimSpace(message) == "" {
		return nil, core.NewError(errors.New("chat message is required"), "INVALID_INPUT", nil)
	}
	chat := l.chats.enqueue(ctx, message, source)
	l.Wake()
	logger.FromContext(ctx).Info("chat enqueued", "source", source, "length", len(message))
	return chat, nil
}

// Run iterates until the context is canceled. The in-flight iteration is
// allowed to finish; cancellation lands on the next sleep or top-of-loop
// check.
func (l *Loop) Run(ctx context.Context) error {
	logger.FromContext(ctx).Info("iteration loop starting")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.runOne(ctx)
	}
}

// RunOnce executes a single iteration including its trailing sleep. Used
// by Run and directly by tests.
func (l *Loop) RunOnce(ctx context.Context) {
	l.runOne(ctx)
}

func (l *Loop) runOne(ctx context.Context) {
	// Creator chat is served even while paused.
	if l.state.IsPaused() && l.chats.size() == 0 {
		l.broadcaster.Publish(StatusPaused, nil)
		l.interruptibleSleep(ctx, pausedNap)
		return
	}
	ictx, cancel := context.WithTimeout(ctx, l.iterationTimeout)
	sleepSeconds := l.iterate(ictx)
	cancel()
	l.interruptibleSleep(ctx, time.Duration(sleepSeconds)*time.Second)
}

// iterate runs one full plan/execute/persist pass and returns the next
// sleep in seconds. It never panics outward.
func (l *Loop) iterate(ctx context.Context) (sleepSeconds int) {
	log := logger.FromContext(ctx)
	started := time.Now()
	sleepSeconds = defaultSleepSeconds
	chats := l.chats.drain()
	defer func() {
		if r := recover(); r != nil {
			l.failIteration(ctx, chats, fmt.Errorf("iteration panic: %v", r))
			sleepSeconds = defaultSleepSeconds
		}
	}()

	iteration, err := l.state.IncrementIteration(ctx)
	if err != nil {
		l.failIteration(ctx, chats, err)
		return sleepSeconds
	}
	if err := l.state.Heartbeat(ctx); err != nil {
		log.Warn("heartbeat write failed", "error", err)
	}
	log.Info("iteration start", "iteration", iteration, "chats", len(chats))

	status, err := l.ledger.Status(ctx)
	if err != nil {
		l.failIteration(ctx, chats, err)
		return sleepSeconds
	}

	l.broadcaster.Publish(StatusPlanning, map[string]any{"iteration": iteration})
	in := &planner.Input{
		State:           l.state.Snapshot(),
		Budget:          status,
		Tools:           l.dispatcher.Definitions(),
		CreatorMessages: chatMessages(chats),
	}
	plan, err := l.planner.Plan(ctx, in)
	if err != nil {
		l.failIteration(ctx, chats, err)
		return sleepSeconds
	}
	l.journal.Append(ctx, journal.EventPlan, plan.Thinking, map[string]any{
		"iteration":    iteration,
		"has_chat":     len(chats) > 0,
		"model":        plan.Model,
		"provider":     string(plan.Provider),
		"tokens":       plan.TotalTokens,
		"action_count": len(plan.Actions),
		"status":       plan.StatusMessage,
	})

	results := l.executeActions(ctx, plan)
	l.feedResultsBack(results)
	l.storeToolMemories(ctx, results)
	l.serveChats(ctx, chats, plan, results)
	l.applyPlanDeltas(ctx, iteration, plan, results)
	l.maintain(ctx, iteration)

	if l.metrics != nil {
		elapsed := float64(time.Since(started).Milliseconds())
		if err := l.metrics.RecordMetric(ctx, "iteration_duration_ms", elapsed,
			map[string]any{"iteration": iteration}); err != nil {
			log.Warn("metric write failed", "error", err)
		}
	}

	sleepSeconds = computeSleep(plan, status)
	l.broadcaster.Publish(StatusIdle, map[string]any{
		"iteration":         iteration,
		"status_message":    plan.StatusMessage,
		"next_wake_seconds": sleepSeconds,
		"budget_remaining":  status.Remaining.InexactFloat64(),
		"model":             plan.Model,
		"provider":          string(plan.Provider),
	})
	log.Info("iteration complete",
		"iteration", iteration,
		"actions", len(plan.Actions),
		"chats", len(chats),
		"model", plan.Model,
		"next_sleep", sleepSeconds)
	return sleepSeconds
}

// failIteration is the shared hard-error path: journal, broadcast, make
// sure no chat caller blocks forever.
func (l *Loop) failIteration(ctx context.Context, chats []*PendingChat, err error) {
	logger.FromContext(ctx).Error("iteration failed", "error", err)
	l.journal.Append(ctx, journal.EventError, "Loop error: "+err.Error(), nil)
	l.broadcaster.Publish(StatusError, map[string]any{"error": err.Error()})
	for _, chat := range chats {
		chat.complete(&ChatResult{
			Reply: "I encountered an error during this iteration: " + err.Error(),
		})
	}
}

func (l *Loop) executeActions(ctx context.Context, plan *planner.Plan) []actionResult {
	if !plan.HasActions() {
		return nil
	}
	l.broadcaster.Publish(StatusExecuting, map[string]any{"actions": len(plan.Actions)})
	results := make([]actionResult, 0, len(plan.Actions))
	for i := range plan.Actions {
		action := &plan.Actions[i]
		result := l.dispatcher.Execute(ctx, action.Tool, action.Parameters)
		results = append(results, actionResult{Tool: action.Tool, Result: result})
	}
	return results
}

// feedResultsBack appends a results digest to working memory so the next
// plan sees what just happened.
func (l *Loop) feedResultsBack(results []actionResult) {
	if len(results) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Results from %d action(s) just executed:**\n", len(results))
	for i, r := range results {
		if r.Result.Success {
			output := r.Result.Output
			if output == "" {
				output = "(no output)"
			}
			fmt.Fprintf(&b, "\n%d. ✅ **%s**: %s", i+1, r.Tool, core.Truncate(output, resultOutputMax))
			continue
		}
		errMsg := r.Result.Error
		if errMsg == "" {
			errMsg = "(unknown error)"
		}
		fmt.Fprintf(&b, "\n%d. ❌ **%s** FAILED: %s", i+1, r.Tool, core.Truncate(errMsg, resultErrorMax))
	}
	l.working.AddMessage(core.UserMessage(b.String()))
}

func (l *Loop) storeToolMemories(ctx context.Context, results []actionResult) {
	log := logger.FromContext(ctx)
	for _, r := range results {
		if _, substantive := substantiveTools[r.Tool]; !substantive {
			continue
		}
		var entry memory.Entry
		switch {
		case r.Result.Success && r.Result.Output != "":
			entry = memory.Entry{
				Content:    fmt.Sprintf("[%s] %s", r.Tool, core.Truncate(r.Result.Output, vectorOutputMax)),
				Importance: 0.5,
				Source:     "tool:" + r.Tool,
			}
		case !r.Result.Success && r.Result.Error != "":
			entry = memory.Entry{
				Content:    fmt.Sprintf("[%s FAILED] %s", r.Tool, core.Truncate(r.Result.Error, vectorErrorMax)),
				Importance: 0.6,
				Source:     "tool:" + r.Tool + ":error",
			}
		default:
			continue
		}
		if _, err := l.vector.Add(ctx, entry, true); err != nil {
			log.Warn("tool memory write failed", "tool", r.Tool, "error", err)
		}
	}
}

// serveChats resolves every pending future with the iteration's reply and
// records the exchange in the transcript, journal and vector memory.
func (l *Loop) serveChats(ctx context.Context, chats []*PendingChat, plan *planner.Plan, results []actionResult) {
	if len(chats) == 0 {
		return
	}
	log := logger.FromContext(ctx)
	reply := plan.ChatReply
	if reply == "" {
		if plan.Thinking != "" {
			reply = core.Truncate(plan.Thinking, chatThinkingMax)
		} else {
			reply = plan.StatusMessage
		}
	}
	summaries := make([]ActionSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, ActionSummary{
			Tool:    r.Tool,
			Success: r.Result.Success,
			Output:  core.Truncate(r.Result.Output, actionSummaryMax),
		})
	}
	for _, chat := range chats {
		l.journal.Append(ctx, journal.EventChatCreator, chat.Message,
			map[string]any{"source": chat.Source})
		l.persistChatRow(ctx, agent.ChatRoleCreator, chat.Message, chat.Source)
		if _, err := l.vector.Add(ctx, memory.Entry{
			Content:    "[creator_chat] Creator said: " + core.Truncate(chat.Message, chatExcerptMax),
			Importance: 0.7,
			Source:     "chat:creator",
			Creator:    true,
		}, true); err != nil {
			log.Warn("creator chat memory write failed", "error", err)
		}
		chat.complete(&ChatResult{
			Reply:       reply,
			Model:       plan.Model,
			Provider:    plan.Provider,
			TotalTokens: plan.TotalTokens,
			Actions:     summaries,
		})
		l.persistChatRow(ctx, agent.ChatRoleAgent, reply, chat.Source)
		if l.replier != nil && chat.Source == SourceTelegram {
			if err := l.replier.Reply(ctx, chat.Source, reply); err != nil {
				log.Warn("chat reply delivery failed", "source", chat.Source, "error", err)
			}
		}
	}
	l.journal.Append(ctx, journal.EventChatAgent, reply,
		map[string]any{"chats": len(chats), "model": plan.Model})
	if _, err := l.vector.Add(ctx, memory.Entry{
		Content:    "[agent_chat_reply] I replied to creator: " + core.Truncate(reply, chatExcerptMax),
		Importance: 0.6,
		Source:     "chat:agent",
	}, true); err != nil {
		log.Warn("agent chat memory write failed", "error", err)
	}
	log.Info("chat replies delivered", "count", len(chats))
}

func (l *Loop) persistChatRow(ctx context.Context, role agent.ChatRole, content, source string) {
	if l.transcript == nil {
		return
	}
	if _, err := l.transcript.Insert(ctx, &agent.ChatMessage{
		Role:      role,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logger.FromContext(ctx).Warn("chat transcript write failed", "role", string(role), "error", err)
	}
}

// applyPlanDeltas folds the plan's state mutations back into the agent:
// goals, scratchpad, memory config, active task.
func (l *Loop) applyPlanDeltas(ctx context.Context, iteration int, plan *planner.Plan, results []actionResult) {
	log := logger.FromContext(ctx)
	if update := plan.GoalsUpdate.ToUpdate(); !update.IsZero() {
		if err := l.state.Update(ctx, agent.UpdateRequest{Goals: update}); err != nil {
			log.Warn("goals update failed", "error", err)
		}
	}
	if notes := plan.NotesUpdate; notes != nil {
		if notes.Replace != nil {
			if err := l.state.ReplaceNotes(ctx, *notes.Replace); err != nil {
				log.Warn("scratchpad replace failed", "error", err)
			}
		} else {
			if len(notes.Remove) > 0 {
				if err := l.state.RemoveNotes(ctx, notes.Remove); err != nil {
					log.Warn("scratchpad remove failed", "error", err)
				}
			}
			if len(notes.Add) > 0 {
				if err := l.state.AddNotes(ctx, notes.Add); err != nil {
					log.Warn("scratchpad add failed", "error", err)
				}
			}
		}
	}
	if auto := autoNotes(iteration, results); len(auto) > 0 {
		if err := l.state.AddNotes(ctx, auto); err != nil {
			log.Warn("scratchpad auto-add failed", "error", err)
		}
	}
	if len(plan.MemoryConfig) > 0 {
		l.working.UpdateConfig(workingPatch(plan.MemoryConfig))
	}
	task := plan.StatusMessage
	if err := l.state.Update(ctx, agent.UpdateRequest{ActiveTask: &task}); err != nil {
		log.Warn("active task update failed", "error", err)
	}
}

// autoNotes turns notable results into scratchpad lines so short-term
// context survives even when the plan forgets to record them.
func autoNotes(iteration int, results []actionResult) []string {
	var notes []string
	for _, r := range results {
		switch {
		case !r.Result.Success:
			errMsg := r.Result.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			notes = append(notes, fmt.Sprintf("[iter %d] %s FAILED: %s",
				iteration, r.Tool, core.Truncate(errMsg, scratchpadAutoMax)))
		case len(r.Result.Output) > 20:
			notes = append(notes, fmt.Sprintf("[iter %d] %s OK: %s",
				iteration, r.Tool, core.Truncate(r.Result.Output, scratchpadAutoMax)))
		}
	}
	return notes
}

// workingPatch maps the plan's free-form memory_config object onto a typed
// patch. Unknown keys are ignored; clamping happens downstream.
func workingPatch(raw map[string]any) memory.WorkingConfig {
	var patch memory.WorkingConfig
	if v, ok := asFloat(raw["retrieval_count"]); ok {
		patch.RetrievalCount = int(v)
	}
	if v, ok := asFloat(raw["relevance_threshold"]); ok {
		if v == 0 {
			v = -1
		}
		patch.RelevanceThreshold = v
	}
	if v, ok := asFloat(raw["decay_factor"]); ok {
		patch.DecayFactor = v
	}
	if v, ok := asFloat(raw["max_context_tokens"]); ok {
		patch.MaxContextTokens = int(v)
	}
	return patch
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// maintain runs periodic memory hygiene: decay and prune every 10th
// iteration, full deduplication every 50th.
func (l *Loop) maintain(ctx context.Context, iteration int) {
	log := logger.FromContext(ctx)
	if iteration%maintenanceEvery == 0 {
		if err := l.vector.DecayImportance(ctx, l.working.Config().DecayFactor); err != nil {
			log.Warn("importance decay failed", "error", err)
		}
		if pruned, err := l.vector.PruneExpired(ctx); err != nil {
			log.Warn("memory prune failed", "error", err)
		} else if pruned > 0 {
			log.Info("expired memories pruned", "count", pruned)
		}
		if evicted, err := l.state.MaintainNotes(ctx); err != nil {
			log.Warn("scratchpad maintenance failed", "error", err)
		} else if evicted > 0 {
			log.Info("scratchpad entries evicted", "count", evicted)
		}
	}
	if iteration%deduplicateEvery == 0 {
		if removed, err := l.vector.Deduplicate(ctx); err != nil {
			log.Warn("memory deduplication failed", "error", err)
		} else if removed > 0 {
			log.Info("duplicate memories removed", "count", removed)
		}
	}
}

// interruptibleSleep waits out the duration unless a wake signal or
// cancellation arrives first. The wake latch is cleared on entry so a wake
// already consumed by the previous iteration cannot cut this sleep short;
// chats that raced the drain are caught by the queue check instead.
func (l *Loop) interruptibleSleep(ctx context.Context, d time.Duration) {
	select {
	case <-l.wake:
	default:
	}
	if l.chats.size() > 0 {
		// A chat arrived after the drain; serve it now instead of napping.
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-l.wake:
		logger.FromContext(ctx).Debug("sleep interrupted")
	case <-timer.C:
	}
}

func chatMessages(chats []*PendingChat) []string {
	if len(chats) == 0 {
		return nil
	}
	out := make([]string, 0, len(chats))
	for _, chat := range chats {
		out = append(out, chat.Message)
	}
	return out
}
