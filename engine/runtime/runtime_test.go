package runtime

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/infra/sqlite"
	"github.com/aionlabs/aion/engine/llm/adapter"
	"github.com/aionlabs/aion/engine/llm/router"
	"github.com/aionlabs/aion/pkg/config"
)

// staticCompleter always answers with the same plan payload.
type staticCompleter struct{ content string }

func (c staticCompleter) Complete(context.Context, *router.Request) (*adapter.Response, error) {
	return &adapter.Response{
		Content:     c.content,
		Model:       "stub-model",
		Provider:    core.ProviderName("stub"),
		TotalTokens: 7,
	}, nil
}

func newTestRuntime(t *testing.T, completer staticCompleter) *Runtime {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Runtime.DataDir = t.TempDir()
	cfg.Runtime.Directive = "optimize yourself"
	cfg.Memory.EmbedderDimension = 64

	db, err := sqlite.Open(ctx, &sqlite.Config{
		Path: filepath.Join(cfg.Runtime.DataDir, "aion.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rt, err := New(ctx, Options{Config: cfg, DB: db, Completer: completer})
	require.NoError(t, err)
	return rt
}

func TestRuntime(t *testing.T) {
	ctx := context.Background()

	t.Run("Should start, serve a chat and stop cleanly", func(t *testing.T) {
		rt := newTestRuntime(t, staticCompleter{
			content: `{"thinking":"serving","actions":[],"chat_reply":"pong","status_message":"ok"}`,
		})
		idle := make(chan struct{}, 1)
		unsubscribe := rt.Subscribe(func(u StatusUpdate) {
			if u.Status == StatusIdle {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})
		defer unsubscribe()
		chat, err := rt.EnqueueChat(ctx, "ping", "web")
		require.NoError(t, err)
		require.NoError(t, rt.Start(ctx))

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		result, err := chat.Wait(waitCtx)
		require.NoError(t, err)
		assert.Equal(t, "pong", result.Reply)
		assert.Equal(t, "stub-model", result.Model)

		// State deltas land after the chat future resolves; the idle
		// broadcast marks the end of the iteration.
		select {
		case <-idle:
		case <-waitCtx.Done():
			t.Fatal("iteration did not reach idle in time")
		}

		require.NoError(t, rt.Stop())
		assert.GreaterOrEqual(t, rt.Status().Iteration, 1)
		assert.Equal(t, "ok", rt.Status().ActiveTask)
	})

	t.Run("Should reject a second start and tolerate double stop", func(t *testing.T) {
		rt := newTestRuntime(t, staticCompleter{
			content: `{"thinking":"idle","actions":[],"status_message":"idle","sleep_seconds":60}`,
		})
		require.NoError(t, rt.Start(ctx))
		assert.Error(t, rt.Start(ctx))
		require.NoError(t, rt.Stop())
		require.NoError(t, rt.Stop())
	})

	t.Run("Should pause and resume idempotently", func(t *testing.T) {
		rt := newTestRuntime(t, staticCompleter{
			content: `{"thinking":"idle","actions":[],"status_message":"idle"}`,
		})
		require.NoError(t, rt.Pause(ctx))
		require.NoError(t, rt.Pause(ctx))
		assert.True(t, rt.Status().Paused)
		require.NoError(t, rt.Resume(ctx))
		require.NoError(t, rt.Resume(ctx))
		assert.False(t, rt.Status().Paused)
	})

	t.Run("Should expose budget status from the ledger", func(t *testing.T) {
		rt := newTestRuntime(t, staticCompleter{content: `{}`})
		status, err := rt.BudgetStatus(ctx)
		require.NoError(t, err)
		assert.True(t, status.MonthlyCap.Equal(decimal.NewFromInt(100)))
		assert.NotEmpty(t, status.Providers)
	})

	t.Run("Should register the self-management tool set", func(t *testing.T) {
		rt := newTestRuntime(t, staticCompleter{content: `{}`})
		for _, name := range []string{
			"memory_write", "memory_config", "secrets_manager", "skills", "budget_query",
		} {
			assert.True(t, rt.Dispatcher().Has(name), name)
		}
	})

	t.Run("Should fail construction without a database", func(t *testing.T) {
		_, err := New(ctx, Options{Config: config.Default()})
		assert.Error(t, err)
	})
}
