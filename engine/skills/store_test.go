package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip a skill", func(t *testing.T) {
		store := newTestStore(t)
		content := "# Deploy Checklist\n\nSteps to verify before any deploy.\n"
		require.NoError(t, store.Write(ctx, "deploy-checklist", content))

		got, err := store.Read(ctx, "deploy-checklist")
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("Should normalize names with spaces and slashes", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Write(ctx, "Coding Conventions/Go", "# Go Conventions\n\nUse errors.Is.\n"))

		got, err := store.Read(ctx, "coding-conventions-go")
		require.NoError(t, err)
		assert.Contains(t, got, "Go Conventions")
	})

	t.Run("Should extract title and description from headings", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Write(ctx, "error-handling",
			"# Error Handling Patterns\n\nWrap with operation context, classify at the boundary.\n## Details\n"))
		require.NoError(t, store.Write(ctx, "bare-notes", "just text without a heading\n"))

		skills, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, skills, 2)
		assert.Equal(t, "bare-notes", skills[0].Name)
		assert.Equal(t, "Bare Notes", skills[0].Title)
		assert.Equal(t, "error-handling", skills[1].Name)
		assert.Equal(t, "Error Handling Patterns", skills[1].Title)
		assert.Equal(t, "Wrap with operation context, classify at the boundary.", skills[1].Description)
	})

	t.Run("Should return ErrNotFound for missing skills", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Read(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "nope"), ErrNotFound)
	})

	t.Run("Should delete a skill", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Write(ctx, "temp", "# Temp\n\nx\n"))
		require.NoError(t, store.Delete(ctx, "temp"))
		_, err := store.Read(ctx, "temp")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should reject empty writes", func(t *testing.T) {
		store := newTestStore(t)
		assert.Error(t, store.Write(ctx, "", "content"))
		assert.Error(t, store.Write(ctx, "name", "  "))
	})

	t.Run("Should adapt to the planner skill listing", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Write(ctx, "api-patterns", "# API Patterns\n\nRetry on 429.\n"))
		infos, err := store.ListSkills(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "api-patterns", infos[0].Name)
		assert.Equal(t, "API Patterns", infos[0].Title)
	})
}
