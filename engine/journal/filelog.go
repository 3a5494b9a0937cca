package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aionlabs/aion/engine/core"
)

// FileLog mirrors structured runtime events into <dataDir>/logs/YYYY-MM-DD.jsonl
// so operators can grep history without a database client.
type FileLog struct {
	mu  sync.Mutex
	dir string
}

func NewFileLog(dataDir string) (*FileLog, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, core.NewError(errors.New("data dir is required"), "INVALID_CONFIG", nil)
	}
	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("filelog: ensure directory %q: %w", dir, err)
	}
	return &FileLog{dir: dir}, nil
}

// Log appends one event line; keyvals follow the logger convention of
// alternating key/value pairs. Failures are silently dropped; the file log
// is a convenience mirror, not a source of truth.
func (l *FileLog) Log(event string, keyvals ...any) {
	now := time.Now().UTC()
	entry := map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
		"event":     event,
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		entry[key] = normalizeValue(keyvals[i+1])
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	path := filepath.Join(l.dir, now.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case error:
		return val.Error()
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
