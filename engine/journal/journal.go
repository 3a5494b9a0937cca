package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/pkg/logger"
)

// Event types appended by the runtime. The journal is the append-only record
// every subsystem writes to; nothing in the core reads it on the hot path.
const (
	EventPlan          = "plan"
	EventError         = "error"
	EventToolExecution = "tool_execution"
	EventToolOutput    = "tool_output"
	EventLLMRequest    = "llm_request"
	EventLLMResponse   = "llm_response"
	EventChatCreator   = "chat_creator"
	EventChatAgent     = "chat_agent"
	EventIteration     = "iteration"

	EventTierDowngraded       = "tier_downgraded"
	EventTierDowngradeClamped = "tier_downgrade_clamped"
)

// Event is one JSONL line in a day file.
type Event struct {
	ID        core.ID        `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"event_type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Writer is the narrow journaling contract consumed by the runtime.
type Writer interface {
	Append(ctx context.Context, eventType, content string, metadata map[string]any)
}

// Journal appends events to one JSONL file per UTC day under <dataDir>/blob.
type Journal struct {
	mu  sync.Mutex
	dir string
}

func New(dataDir string) (*Journal, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, core.NewError(errors.New("data dir is required"), "INVALID_CONFIG", nil)
	}
	dir := filepath.Join(dataDir, "blob")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("journal: ensure directory %q: %w", dir, err)
	}
	return &Journal{dir: dir}, nil
}

// Append writes one event line. Journal writes are best-effort: failures are
// logged, never propagated, so observability can not take down an iteration.
func (j *Journal) Append(ctx context.Context, eventType, content string, metadata map[string]any) {
	event := Event{
		ID:        core.NewID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Content:   content,
		Metadata:  metadata,
	}
	if err := j.append(event); err != nil {
		logger.FromContext(ctx).Warn("journal append failed", "event_type", eventType, "error", err)
	}
}

func (j *Journal) append(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("journal: marshal event: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	path := j.dayFile(event.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("journal: open %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: write %q: %w", path, err)
	}
	return nil
}

func (j *Journal) dayFile(ts time.Time) string {
	return filepath.Join(j.dir, ts.UTC().Format("2006-01-02")+".jsonl")
}

// ReadRecent returns up to limit events from the newest day files, newest
// last. Malformed lines are skipped.
func (j *Journal) ReadRecent(_ context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	days, err := j.dayFilesDesc()
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, path := range days {
		fileEvents, err := readEvents(path)
		if err != nil {
			return nil, err
		}
		// Prepend older files so ordering stays oldest-first overall.
		events = append(fileEvents, events...)
		if len(events) >= limit {
			break
		}
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Stats summarizes the journal directory for the status surface.
type Stats struct {
	Days       []DayStats `json:"days"`
	TotalBytes int64      `json:"total_bytes"`
	TotalLines int        `json:"total_lines"`
}

type DayStats struct {
	Day   string `json:"day"`
	Bytes int64  `json:"bytes"`
	Lines int    `json:"lines"`
}

func (j *Journal) Stats(_ context.Context) (*Stats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read directory: %w", err)
	}
	stats := &Stats{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("journal: stat %q: %w", entry.Name(), err)
		}
		lines, err := countLines(filepath.Join(j.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		stats.Days = append(stats.Days, DayStats{
			Day:   strings.TrimSuffix(entry.Name(), ".jsonl"),
			Bytes: info.Size(),
			Lines: lines,
		})
		stats.TotalBytes += info.Size()
		stats.TotalLines += lines
	}
	sort.Slice(stats.Days, func(i, k int) bool { return stats.Days[i].Day < stats.Days[k].Day })
	return stats, nil
}

func (j *Journal) dayFilesDesc() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(j.dir, name)
	}
	return paths, nil
}

func readEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	defer f.Close()
	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %q: %w", path, err)
	}
	return events, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("journal: open %q: %w", path, err)
	}
	defer f.Close()
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("journal: scan %q: %w", path, err)
	}
	return count, nil
}
