package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	store, err := NewStore(path)
	require.NoError(t, err)
	return store, path
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should start empty when the file does not exist", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.Empty(t, store.List())
	})

	t.Run("Should set and read back a value", func(t *testing.T) {
		store, path := newTestStore(t)
		require.NoError(t, store.Set(ctx, "new_service_token", "tok-123456789"))
		t.Cleanup(func() { os.Unsetenv("NEW_SERVICE_TOKEN") })

		got, ok := store.Get("NEW_SERVICE_TOKEN")
		require.True(t, ok)
		assert.Equal(t, "tok-123456789", got)
		assert.Equal(t, "tok-123456789", os.Getenv("NEW_SERVICE_TOKEN"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "NEW_SERVICE_TOKEN=tok-123456789")
	})

	t.Run("Should mask sensitive values in listings", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Set(ctx, "ACME_API_KEY", "abcdefghijklmnop"))
		require.NoError(t, store.Set(ctx, "ACME_REGION", "eu-west-1"))
		t.Cleanup(func() {
			os.Unsetenv("ACME_API_KEY")
			os.Unsetenv("ACME_REGION")
		})

		entries := store.List()
		require.Len(t, entries, 2)
		assert.Equal(t, "ACME_API_KEY", entries[0].Key)
		assert.Equal(t, "abcd...mnop", entries[0].Display)
		assert.Equal(t, "eu-west-1", entries[1].Display)
	})

	t.Run("Should refuse protected keys", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.Error(t, store.Set(ctx, "AION_CREATOR_PASSWORD", "x"))
		assert.Error(t, store.Delete(ctx, "aion_creator_password"))
		_, ok := store.Get("AION_CREATOR_PASSWORD")
		assert.False(t, ok)
	})

	t.Run("Should delete from file and environment", func(t *testing.T) {
		store, path := newTestStore(t)
		require.NoError(t, store.Set(ctx, "TEMP_FLAG", "on"))
		require.NoError(t, store.Delete(ctx, "TEMP_FLAG"))

		_, ok := store.Get("TEMP_FLAG")
		assert.False(t, ok)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "TEMP_FLAG")
	})

	t.Run("Should error deleting a missing key", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.Error(t, store.Delete(ctx, "NEVER_SET"))
	})

	t.Run("Should load existing file contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("EXISTING_URL=https://example.com\n"), 0o600))
		store, err := NewStore(path)
		require.NoError(t, err)
		got, ok := store.Get("EXISTING_URL")
		require.True(t, ok)
		assert.Equal(t, "https://example.com", got)
	})
}

func TestMask(t *testing.T) {
	t.Run("Should fully mask short values", func(t *testing.T) {
		assert.Equal(t, "***", Mask("short"))
		assert.Equal(t, "***", Mask("12345678"))
	})

	t.Run("Should keep head and tail of long values", func(t *testing.T) {
		assert.Equal(t, "abcd...wxyz", Mask("abcdefghijklmnopqrstuvwxyz"))
	})
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive("MISTRAL_API_KEY"))
	assert.True(t, IsSensitive("db_password"))
	assert.True(t, IsSensitive("OAUTH_TOKEN"))
	assert.True(t, IsSensitive("WEBHOOK_SECRET"))
	assert.False(t, IsSensitive("DATA_DIR"))
	assert.False(t, IsSensitive("LOG_LEVEL"))
}
