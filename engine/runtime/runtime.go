// Package runtime assembles the agent: state, memory, budget, planner,
// tools and the iteration loop, plus the control surface outer layers
// (CLI, HTTP, chat bridges) consume.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"github.com/aionlabs/aion/engine/agent"
	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/infra/sqlite"
	"github.com/aionlabs/aion/engine/journal"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/memory/embedder"
	"github.com/aionlabs/aion/engine/memory/vectordb"
	"github.com/aionlabs/aion/engine/planner"
	"github.com/aionlabs/aion/engine/safety"
	"github.com/aionlabs/aion/engine/secrets"
	"github.com/aionlabs/aion/engine/skills"
	"github.com/aionlabs/aion/engine/tool"
	"github.com/aionlabs/aion/engine/tool/builtin"
	"github.com/aionlabs/aion/pkg/config"
	"github.com/aionlabs/aion/pkg/logger"
)

const embedCacheSize = 1024

// Options configures runtime construction. Completer and Replier are
// optional; a nil Completer builds the real LLM router.
type Options struct {
	Config    *config.Config
	DB        *sql.DB
	Completer planner.Completer
	Replier   ChatReplier
}

// Runtime is the root object. Every component hangs off it explicitly;
// there is no ambient application state.
type Runtime struct {
	cfg         *config.Config
	journal     *journal.Journal
	state       *agent.Manager
	ledger      *budget.Ledger
	working     *memory.WorkingMemory
	vector      *memory.VectorMemory
	secrets     *secrets.Store
	skills      *skills.Store
	dispatcher  *tool.Dispatcher
	planner     *planner.Planner
	broadcaster *Broadcaster
	loop        *Loop

	mu        sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
	started   bool
	loopAlive atomic.Bool
}

// New wires every component from configuration. The database handle is
// owned by the caller; the runtime never closes it.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, core.NewError(errors.New("config is required"), "MISSING_DEPENDENCY", nil)
	}
	if opts.DB == nil {
		return nil, core.NewError(errors.New("database handle is required"), "MISSING_DEPENDENCY", nil)
	}
	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create data dir: %w", err)
	}

	jnl, err := journal.New(dataDir)
	if err != nil {
		return nil, err
	}
	state := agent.NewManager(sqlite.NewStateRepo(opts.DB))
	if _, err := state.LoadOrCreate(ctx, cfg.Runtime.Directive); err != nil {
		return nil, err
	}
	ledger, err := budget.NewLedger(sqlite.NewBudgetRepo(opts.DB), cfg.Budget.MonthlyCapUSD)
	if err != nil {
		return nil, err
	}
	if err := ledger.EnsureConfig(ctx); err != nil {
		return nil, err
	}

	secretsStore, err := secrets.NewStore(filepath.Join(dataDir, ".env"))
	if err != nil {
		return nil, err
	}
	skillsStore, err := skills.NewStore(filepath.Join(dataDir, "skills"))
	if err != nil {
		return nil, err
	}

	embed, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	vectorStore, err := vectordb.NewChromemStore(
		filepath.Join(dataDir, "chroma"), cfg.Memory.EmbedderDimension)
	if err != nil {
		return nil, err
	}
	vector, err := memory.NewVectorMemory(vectorStore, embed)
	if err != nil {
		return nil, err
	}
	working := memory.NewWorkingMemory(memory.WorkingConfig{
		RetrievalCount:     cfg.Memory.RetrievalCount,
		RelevanceThreshold: cfg.Memory.RelevanceThreshold,
		DecayFactor:        cfg.Memory.DecayFactor,
		MaxContextTokens:   cfg.Memory.MaxContextTokens,
	}, memory.NewTokenCounter())

	validator, err := safety.NewValidator([]string{dataDir}, safety.EnvSecretSource)
	if err != nil {
		return nil, err
	}
	dispatcher, err := tool.NewDispatcher(validator, jnl, sqlite.NewToolUsageRepo(opts.DB))
	if err != nil {
		return nil, err
	}
	if err := builtin.RegisterCore(dispatcher, builtin.CoreDeps{
		Vector:  vector,
		Working: working,
		Secrets: secretsStore,
		Skills:  skillsStore,
		Ledger:  ledger,
	}); err != nil {
		return nil, err
	}

	completer := opts.Completer
	if completer == nil {
		rtr, err := router.New(nil, ledger, adapter.NewFactory(&cfg.Providers), jnl)
		if err != nil {
			return nil, err
		}
		completer = rtr
	}
	prompt := planner.NewPromptBuilder(validator.PromptSection(), &cfg.Providers, skillsStore)
	plnr, err := planner.New(completer, working, vector, prompt)
	if err != nil {
		return nil, err
	}

	broadcaster := NewBroadcaster()
	loop, err := NewLoop(LoopDeps{
		State:            state,
		Planner:          plnr,
		Dispatcher:       dispatcher,
		Vector:           vector,
		Working:          working,
		Ledger:           ledger,
		Journal:          jnl,
		Broadcaster:      broadcaster,
		Transcript:       sqlite.NewChatRepo(opts.DB),
		Metrics:          sqlite.NewMetricsRepo(opts.DB),
		Replier:          opts.Replier,
		IterationTimeout: cfg.Runtime.IterationTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:         cfg,
		journal:     jnl,
		state:       state,
		ledger:      ledger,
		working:     working,
		vector:      vector,
		secrets:     secretsStore,
		skills:      skillsStore,
		dispatcher:  dispatcher,
		planner:     plnr,
		broadcaster: broadcaster,
		loop:        loop,
	}, nil
}

func buildEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	dim := cfg.Memory.EmbedderDimension
	if cfg.Memory.EmbedderProvider == "openai" && cfg.Providers.OpenAIAPIKey.IsSet() {
		client, err := openai.New(
			openai.WithToken(cfg.Providers.OpenAIAPIKey.String()),
			openai.WithEmbeddingModel(cfg.Memory.EmbedderModel),
		)
		if err != nil {
			return nil, fmt.Errorf("runtime: build embedding client: %w", err)
		}
		inner, err := embedder.NewLangchain(client, dim)
		if err != nil {
			return nil, err
		}
		return embedder.NewCached(inner, embedCacheSize)
	}
	return embedder.NewCached(embedder.NewHash(dim), embedCacheSize)
}

// Start launches the loop, watchdog and secrets watcher. Idempotent
// start attempts return an error rather than a second set of goroutines.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return core.NewError(errors.New("runtime already started"), "INVALID_STATE", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	r.cancel = cancel
	r.group = group
	r.started = true

	if err := r.secrets.Watch(groupCtx); err != nil {
		logger.FromContext(ctx).Warn("secrets watcher unavailable", "error", err)
	}
	r.startLoop(groupCtx, group)
	watchdog := NewWatchdog(
		r.loopAlive.Load,
		r.state.IsPaused,
		func() { r.startLoop(groupCtx, group) },
	)
	group.Go(func() error {
		return ignoreCancel(watchdog.Run(groupCtx))
	})
	logger.FromContext(ctx).Info("runtime started", "data_dir", r.cfg.Runtime.DataDir)
	return nil
}

// startLoop launches (or relaunches) the loop goroutine. A panic escaping
// an iteration marks the loop dead so the watchdog can bring it back.
func (r *Runtime) startLoop(ctx context.Context, group *errgroup.Group) {
	r.loopAlive.Store(true)
	group.Go(func() error {
		defer func() {
			r.loopAlive.Store(false)
			if rec := recover(); rec != nil {
				logger.FromContext(ctx).Error("iteration loop crashed", "panic", rec)
			}
		}()
		return ignoreCancel(r.loop.Run(ctx))
	})
}

// Stop cancels all runtime goroutines and waits for the in-flight
// iteration to finish. Safe to call more than once.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	cancel, group := r.cancel, r.group
	r.cancel, r.group = nil, nil
	r.started = false
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return ignoreCancel(group.Wait())
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Pause stops planning after the current iteration. Idempotent.
func (r *Runtime) Pause(ctx context.Context) error {
	return r.state.SetPaused(ctx, true)
}

// Resume clears the pause flag and wakes the loop. Idempotent.
func (r *Runtime) Resume(ctx context.Context) error {
	if err := r.state.SetPaused(ctx, false); err != nil {
		return err
	}
	r.loop.Wake()
	return nil
}

// Wake interrupts the current sleep.
func (r *Runtime) Wake() {
	r.loop.Wake()
}

// EnqueueChat queues a creator message and returns its future.
func (r *Runtime) EnqueueChat(ctx context.Context, message, source string) (*PendingChat, error) {
	return r.loop.EnqueueChat(ctx, message, source)
}

// Status returns a snapshot of the agent state.
func (r *Runtime) Status() *agent.State {
	return r.state.Snapshot()
}

// BudgetStatus reports the spend picture.
func (r *Runtime) BudgetStatus(ctx context.Context) (*budget.Status, error) {
	return r.ledger.Status(ctx)
}

// Subscribe attaches a status observer; the returned function detaches it.
func (r *Runtime) Subscribe(obs Observer) func() {
	return r.broadcaster.Subscribe(obs)
}

// Journal exposes the blob journal for read surfaces.
func (r *Runtime) Journal() *journal.Journal { return r.journal }

// Secrets exposes the credential store for admin surfaces.
func (r *Runtime) Secrets() *secrets.Store { return r.secrets }

// Skills exposes the skill library.
func (r *Runtime) Skills() *skills.Store { return r.skills }

// Dispatcher exposes the tool registry for host-registered tools.
func (r *Runtime) Dispatcher() *tool.Dispatcher { return r.dispatcher }
