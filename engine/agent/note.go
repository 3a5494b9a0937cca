package agent

import (
	"time"

	"github.com/aionlabs/aion/engine/core"
)

// Short-term memory bounds: a capped, time-expiring scratch pad the planner
// renders back to the agent every iteration.
const (
	MaxNotes     = 50
	MaxNoteChars = 500
	NoteMaxAge   = 48 * time.Hour
)

// Note is one scratch-pad entry.
type Note struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Iteration int       `json:"iteration"`
}

// appendNotes adds entries FIFO, clamping content and evicting oldest-first
// past MaxNotes. Returns the new slice.
func appendNotes(notes []Note, contents []string, iteration int, now time.Time) []Note {
	for _, content := range contents {
		content = core.Truncate(content, MaxNoteChars)
		if content == "" {
			continue
		}
		notes = append(notes, Note{Content: content, CreatedAt: now, Iteration: iteration})
	}
	if overflow := len(notes) - MaxNotes; overflow > 0 {
		notes = append([]Note(nil), notes[overflow:]...)
	}
	return notes
}

// removeNotes drops entries by index (as rendered to the agent); out-of-range
// indices are ignored.
func removeNotes(notes []Note, indices []int) []Note {
	if len(indices) == 0 {
		return notes
	}
	drop := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		drop[idx] = struct{}{}
	}
	kept := notes[:0]
	for i := range notes {
		if _, ok := drop[i]; ok {
			continue
		}
		kept = append(kept, notes[i])
	}
	return kept
}

// expireNotes removes entries older than NoteMaxAge and trims FIFO overflow.
// Returns the surviving slice and the eviction count.
func expireNotes(notes []Note, now time.Time) ([]Note, int) {
	kept := make([]Note, 0, len(notes))
	for i := range notes {
		if now.Sub(notes[i].CreatedAt) > NoteMaxAge {
			continue
		}
		kept = append(kept, notes[i])
	}
	if overflow := len(kept) - MaxNotes; overflow > 0 {
		kept = kept[overflow:]
	}
	return kept, len(notes) - len(kept)
}
