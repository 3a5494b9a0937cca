// Package secrets is the runtime's credential surface: a typed view over
// the process environment plus the on-disk .env file. Writes go to both,
// the file atomically; an fsnotify watcher folds external edits back in.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/pkg/logger"
)

// protectedKeys can never be read, changed or deleted through the store.
var protectedKeys = map[string]struct{}{
	"AION_CREATOR_PASSWORD": {},
}

// sensitivePrefixes mark keys whose values are only ever shown masked.
var sensitivePrefixes = []string{"PASSWORD", "SECRET", "TOKEN", "KEY"}

// IsSensitive reports whether the key's value must be masked on display.
func IsSensitive(key string) bool {
	upper := strings.ToUpper(key)
	for _, p := range sensitivePrefixes {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

// Mask renders a value for display: head and tail for long values, fully
// opaque for short ones.
func Mask(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// Entry is one masked listing row.
type Entry struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// Store overlays the live environment on the .env file. File contents win
// for listing; the live environment wins for Get so exported overrides
// behave as expected.
type Store struct {
	mu      sync.RWMutex
	envPath string
	values  map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore loads the .env file if present; a missing file is an empty
// store, not an error.
func NewStore(envPath string) (*Store, error) {
	if envPath == "" {
		return nil, core.NewError(errors.New("env path is required"), "INVALID_INPUT", nil)
	}
	s := &Store{envPath: envPath, values: make(map[string]string)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	values, err := godotenv.Read(s.envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("secrets: read env file: %w", err)
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns the raw value; the live environment shadows the file.
func (s *Store) Get(key string) (string, bool) {
	if _, protected := protectedKeys[strings.ToUpper(key)]; protected {
		return "", false
	}
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(strings.ToUpper(key)); ok {
		return v, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[strings.ToUpper(key)]
	return v, ok
}

// Set updates the live environment and persists to the .env file. Keys are
// uppercased on write.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return core.NewError(errors.New("key is required"), "INVALID_INPUT", nil)
	}
	if _, protected := protectedKeys[key]; protected {
		return core.NewError(errors.New("cannot modify protected key"), "PROTECTED_KEY",
			map[string]any{"key": key})
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("secrets: set live env: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	if err := s.persistLocked(); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("secret updated", "key", key)
	return nil
}

// Delete removes the key from both the live environment and the file.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return core.NewError(errors.New("key is required"), "INVALID_INPUT", nil)
	}
	if _, protected := protectedKeys[key]; protected {
		return core.NewError(errors.New("cannot delete protected key"), "PROTECTED_KEY",
			map[string]any{"key": key})
	}
	_, live := os.LookupEnv(key)
	s.mu.Lock()
	_, inFile := s.values[key]
	s.mu.Unlock()
	if !live && !inFile {
		return core.NewError(errors.New("secret not found"), "NOT_FOUND",
			map[string]any{"key": key})
	}
	if live {
		if err := os.Unsetenv(key); err != nil {
			return fmt.Errorf("secrets: unset live env: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	if err := s.persistLocked(); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("secret deleted", "key", key)
	return nil
}

// List returns all stored keys with display-safe values, sorted by key.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.values))
	for key, value := range s.values {
		if _, protected := protectedKeys[key]; protected {
			continue
		}
		display := value
		if IsSensitive(key) {
			display = Mask(value)
		}
		out = append(out, Entry{Key: key, Display: display})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })
	return out
}

// persistLocked writes the whole file atomically: temp file in the same
// directory, then rename.
func (s *Store) persistLocked() error {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(s.values[key]))
		b.WriteByte('\n')
	}
	dir := filepath.Dir(s.envPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("secrets: create env dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("secrets: create temp env file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("secrets: write temp env file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: close temp env file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: chmod temp env file: %w", err)
	}
	if err := os.Rename(tmpName, s.envPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: replace env file: %w", err)
	}
	return nil
}

func quoteIfNeeded(value string) string {
	if strings.ContainsAny(value, " \t\n#\"'") {
		return fmt.Sprintf("%q", value)
	}
	return value
}

// Watch reloads the store when the .env file changes on disk. Stops when
// the context is canceled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("secrets: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.envPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("secrets: watch env dir: %w", err)
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	log := logger.FromContext(ctx)
	go func() {
		defer close(s.done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.envPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					log.Warn("env file reload failed", "error", err)
					continue
				}
				log.Debug("env file reloaded", "path", s.envPath)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("env watcher error", "error", err)
			}
		}
	}()
	return nil
}
